package onboarding

import (
	"taxpadi-client/internal/models"
	"taxpadi-client/internal/validation"
)

// State is the active step of the onboarding conversation
type State string

const (
	StateInitial            State = "INITIAL"
	StateAccountRequired    State = "ACCOUNT_REQUIRED"
	StateAskingPath         State = "ASKING_PATH"
	StateVerifyingBusiness  State = "VERIFYING_BUSINESS"
	StateConfirmingBusiness State = "CONFIRMING_BUSINESS"
	StateAskingUserType     State = "ASKING_USER_TYPE"
	StateCollectingInfo     State = "COLLECTING_INFO"
	StateCreatingAccount    State = "CREATING_ACCOUNT"
	StateSuccess            State = "SUCCESS"
	StateError              State = "ERROR"
)

// Terminal reports whether s can only be left through Reset
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateError
}

// Path is the user's choice between joining a business and creating a new account
type Path string

const (
	PathInvitation Path = "invitation"
	PathNewAccount Path = "new_account"
)

// FormData accumulates everything collected during onboarding
type FormData struct {
	Path           Path
	InvitationCode string
	UserType       models.UserType

	FirstName   string
	LastName    string
	Email       string
	PhoneNumber string
	BVN         string
	TIN         string

	BusinessName       string
	BusinessType       string
	BusinessCategory   string
	BusinessEmail      string
	BusinessPhone      string
	RegistrationNumber string
	Address            string
	City               string
	State              string

	// VerifiedBusiness is set by a successful invitation lookup and never mutated
	VerifiedBusiness *models.Business
}

// Snapshot is an immutable view of the machine
type Snapshot struct {
	State  State
	Form   FormData
	Errors validation.Errors
}

func initialSnapshot() Snapshot {
	return Snapshot{State: StateInitial, Errors: validation.Errors{}}
}

// action is a single state update applied by reduce
type action interface {
	apply(Snapshot) Snapshot
}

type setState struct{ to State }

func (a setState) apply(s Snapshot) Snapshot {
	s.State = a.to
	return s
}

type patchForm struct{ fn func(*FormData) }

func (a patchForm) apply(s Snapshot) Snapshot {
	a.fn(&s.Form)
	return s
}

type setErrors struct{ errs validation.Errors }

func (a setErrors) apply(s Snapshot) Snapshot {
	s.Errors = a.errs.Clone()
	return s
}

type clearError struct{ field string }

func (a clearError) apply(s Snapshot) Snapshot {
	if _, ok := s.Errors[a.field]; !ok {
		return s
	}
	errs := s.Errors.Clone()
	delete(errs, a.field)
	s.Errors = errs
	return s
}

type reset struct{}

func (reset) apply(Snapshot) Snapshot {
	return initialSnapshot()
}

// reduce returns a new snapshot with every action applied in order.
// The input snapshot is never modified.
func reduce(s Snapshot, actions ...action) Snapshot {
	s.Errors = s.Errors.Clone()
	for _, a := range actions {
		s = a.apply(s)
	}
	return s
}

// buildPayload builds the account payload for the selected user type
func buildPayload(f FormData) models.AccountPayload {
	if f.UserType == models.UserTypeBusiness {
		return models.BusinessAccountPayload{
			UserType:           models.UserTypeBusiness,
			FirstName:          f.FirstName,
			LastName:           f.LastName,
			Email:              f.Email,
			PhoneNumber:        f.PhoneNumber,
			BusinessName:       f.BusinessName,
			BusinessType:       f.BusinessType,
			BusinessCategory:   f.BusinessCategory,
			BusinessEmail:      f.BusinessEmail,
			BusinessPhone:      f.BusinessPhone,
			RegistrationNumber: f.RegistrationNumber,
			Address:            f.Address,
			City:               f.City,
			State:              f.State,
		}
	}

	p := models.IndividualAccountPayload{
		UserType:    f.UserType,
		FirstName:   f.FirstName,
		LastName:    f.LastName,
		Email:       f.Email,
		PhoneNumber: f.PhoneNumber,
		BVN:         f.BVN,
		TIN:         f.TIN,
	}
	if f.VerifiedBusiness != nil {
		p.BusinessID = f.VerifiedBusiness.ID
	}
	return p
}
