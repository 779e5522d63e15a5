package main

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"taxpadi-client/internal/client"
	"taxpadi-client/internal/models"
	"taxpadi-client/internal/onboarding"
	"taxpadi-client/internal/validation"
)

// formField is one question of the account form, keyed by its JSON name
type formField struct {
	key      string
	label    string
	optional bool
	choices  []string
	ptr      func(*onboarding.FormData) *string
}

var personFields = []formField{
	{key: "firstName", label: "First name", ptr: func(f *onboarding.FormData) *string { return &f.FirstName }},
	{key: "lastName", label: "Last name", ptr: func(f *onboarding.FormData) *string { return &f.LastName }},
	{key: "email", label: "Email", ptr: func(f *onboarding.FormData) *string { return &f.Email }},
	{key: "phoneNumber", label: "Phone number", optional: true, ptr: func(f *onboarding.FormData) *string { return &f.PhoneNumber }},
}

var individualFields = []formField{
	{key: "bvn", label: "BVN", optional: true, ptr: func(f *onboarding.FormData) *string { return &f.BVN }},
	{key: "tin", label: "TIN", optional: true, ptr: func(f *onboarding.FormData) *string { return &f.TIN }},
}

var businessFields = []formField{
	{key: "businessName", label: "Business name", ptr: func(f *onboarding.FormData) *string { return &f.BusinessName }},
	{key: "businessType", label: "Business type", choices: models.BusinessTypes, ptr: func(f *onboarding.FormData) *string { return &f.BusinessType }},
	{key: "businessCategory", label: "Business category", choices: models.BusinessCategories, ptr: func(f *onboarding.FormData) *string { return &f.BusinessCategory }},
	{key: "businessEmail", label: "Business email", ptr: func(f *onboarding.FormData) *string { return &f.BusinessEmail }},
	{key: "businessPhone", label: "Business phone", optional: true, ptr: func(f *onboarding.FormData) *string { return &f.BusinessPhone }},
	{key: "registrationNumber", label: "Registration number", optional: true, ptr: func(f *onboarding.FormData) *string { return &f.RegistrationNumber }},
	{key: "address", label: "Address", optional: true, ptr: func(f *onboarding.FormData) *string { return &f.Address }},
	{key: "city", label: "City", optional: true, ptr: func(f *onboarding.FormData) *string { return &f.City }},
	{key: "state", label: "State", optional: true, ptr: func(f *onboarding.FormData) *string { return &f.State }},
}

func fieldsFor(userType models.UserType) []formField {
	fields := append([]formField{}, personFields...)
	if userType == models.UserTypeBusiness {
		return append(fields, businessFields...)
	}
	return append(fields, individualFields...)
}

var userTypeChoices = []models.UserType{
	models.UserTypeIndividual,
	models.UserTypeEmployee,
	models.UserTypeBusiness,
}

func (a *app) runOnboard(ctx context.Context) error {
	if a.auth.State().IsAuthenticated {
		u := a.auth.State().User
		if u != nil && !a.term.confirm(fmt.Sprintf("You are signed in as %s. Create another account?", u.Email)) {
			return nil
		}
	}

	m := onboarding.NewMachine(a.api, onboarding.WithOnAccountCreated(a.auth.SetSession))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.onboardStep(ctx, m); err != nil {
			return err
		}
		if m.State() == onboarding.StateSuccess {
			return nil
		}
	}
}

// onboardStep handles the current state. A nil error means keep going.
func (a *app) onboardStep(ctx context.Context, m *onboarding.Machine) error {
	snap := m.Snapshot()

	switch snap.State {
	case onboarding.StateInitial:
		return m.StartOnboarding()

	case onboarding.StateAccountRequired:
		a.term.println("You need a TaxPadi account to continue.")
		return m.AskPath()

	case onboarding.StateAskingPath:
		if msg := snap.Errors["invitationCode"]; msg != "" {
			a.term.printf("Error: %s\n", msg)
		}
		i, err := a.term.choose("How would you like to get started?", []string{
			"I have an invitation code",
			"Create a new account",
		})
		if err != nil {
			return err
		}
		if i == 0 {
			return m.SelectPath(onboarding.PathInvitation)
		}
		return m.SelectPath(onboarding.PathNewAccount)

	case onboarding.StateVerifyingBusiness:
		code, err := a.term.ask("Invitation code: ")
		if err != nil {
			return err
		}
		err = m.VerifyInvitation(ctx, code)
		var verrs validation.Errors
		switch {
		case errors.As(err, &verrs):
			a.term.printf("Error: %s\n", verrs["invitationCode"])
		case err != nil && !errors.Is(err, onboarding.ErrBusinessNotFound) && !isRequestError(err):
			return err
		}
		return nil

	case onboarding.StateConfirmingBusiness:
		b := snap.Form.VerifiedBusiness
		a.term.printf("Business: %s\n", b.Name)
		if b.Email != "" {
			a.term.printf("Email:    %s\n", b.Email)
		}
		if b.City != "" || b.State != "" {
			a.term.printf("Location: %s %s\n", b.City, b.State)
		}
		return m.ConfirmBusiness(a.term.confirm("Is this your business?"))

	case onboarding.StateAskingUserType:
		labels := make([]string, len(userTypeChoices))
		for i, t := range userTypeChoices {
			labels[i] = string(t)
		}
		i, err := a.term.choose("What kind of account do you need?", labels)
		if err != nil {
			return err
		}
		return m.SelectUserType(userTypeChoices[i])

	case onboarding.StateCollectingInfo:
		return a.collectInfo(ctx, m)

	case onboarding.StateSuccess:
		return nil

	case onboarding.StateError:
		a.term.println("Account creation failed.")
		for _, k := range sortedKeys(snap.Errors) {
			a.term.printf("  %s: %s\n", k, snap.Errors[k])
		}
		if !a.term.confirm("Start over?") {
			return errors.New("onboarding abandoned")
		}
		m.Reset()
		return nil
	}

	return fmt.Errorf("unexpected onboarding state %s", snap.State)
}

// collectInfo asks every field once, then only the fields that failed
// validation, until the form is accepted or the request fails
func (a *app) collectInfo(ctx context.Context, m *onboarding.Machine) error {
	snap := m.Snapshot()
	fields := fieldsFor(snap.Form.UserType)
	if snap.Form.VerifiedBusiness != nil {
		a.term.printf("Joining %s as an employee.\n", snap.Form.VerifiedBusiness.Name)
	}

	pending := fields
	for {
		for _, f := range pending {
			value, err := a.askField(f, *f.ptr(&snap.Form))
			if err != nil {
				return err
			}
			m.UpdateFormData(func(fd *onboarding.FormData) { *f.ptr(fd) = value })
		}

		err := m.SubmitForm(ctx)
		var verrs validation.Errors
		switch {
		case err == nil:
			resp := a.auth.State()
			if resp.User != nil {
				a.term.printf("Welcome, %s! Your account is ready.\n", resp.User.FirstName)
			} else {
				a.term.println("Your account is ready.")
			}
			return nil
		case errors.As(err, &verrs):
			a.term.println("Please fix the following:")
			pending = pending[:0:0]
			for _, f := range fields {
				if msg, ok := verrs[f.key]; ok {
					a.term.printf("  %s: %s\n", f.label, msg)
					pending = append(pending, f)
				}
			}
			if len(pending) == 0 {
				return err
			}
			snap = m.Snapshot()
		case isRequestError(err) || errors.Is(err, onboarding.ErrUserTypeNotSelected):
			a.term.printf("Error: %v\n", err)
			return nil
		default:
			return err
		}
	}
}

func (a *app) askField(f formField, current string) (string, error) {
	if len(f.choices) > 0 {
		i, err := a.term.choose(f.label+":", f.choices)
		if err != nil {
			return "", err
		}
		return f.choices[i], nil
	}
	label := f.label
	if f.optional {
		label += " (optional)"
	}
	return a.term.askDefault(label, current)
}

func isRequestError(err error) bool {
	var apiErr *client.APIError
	return errors.As(err, &apiErr)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
