package main

import (
	"context"
	"errors"
	"flag"

	"taxpadi-client/internal/models"
	"taxpadi-client/internal/validation"
)

func (a *app) runLogin(ctx context.Context, args []string) error {
	var payload models.LoginPayload

	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(a.term.out)
	fs.StringVar(&payload.Email, "email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	for {
		var err error
		if payload.Email == "" {
			if payload.Email, err = a.term.ask("Email: "); err != nil {
				return err
			}
		}
		if payload.Password == "" {
			if payload.Password, err = a.term.ask("Password: "); err != nil {
				return err
			}
		}

		resp, err := a.auth.Login(ctx, payload)
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			for _, k := range sortedKeys(verrs) {
				a.term.printf("  %s\n", verrs[k])
			}
			if _, bad := verrs["email"]; bad {
				payload.Email = ""
			}
			payload.Password = ""
			continue
		}
		if err != nil {
			return err
		}

		a.term.printf("Signed in as %s %s (%s)\n", resp.Data.User.FirstName, resp.Data.User.LastName, resp.Data.User.Email)
		return nil
	}
}

func (a *app) runLogout(ctx context.Context) error {
	if err := a.auth.Logout(ctx); err != nil {
		// tokens are gone regardless
		a.term.println("Signed out locally; the server could not be reached.")
		return nil
	}
	a.term.println("Signed out.")
	return nil
}

func (a *app) runWhoami() error {
	st := a.auth.State()
	if !st.IsAuthenticated || st.User == nil {
		a.term.println("Not signed in.")
		return nil
	}

	u := st.User
	a.term.printf("%s %s <%s>\n", u.FirstName, u.LastName, u.Email)
	a.term.printf("Account: %s\n", u.UserType)
	if st.Business != nil {
		a.term.printf("Business: %s\n", st.Business.Name)
	}
	if u.PhoneNumber != "" {
		a.term.printf("Phone: %s\n", u.PhoneNumber)
	}
	return nil
}
