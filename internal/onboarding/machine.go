// Package onboarding drives the guided account-creation conversation.
//
// The Machine moves through a fixed set of states, gating form collection
// behind two remote calls: an invitation lookup and account creation. State
// lives in memory for the lifetime of one Machine and is never shared.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"taxpadi-client/internal/client"
	"taxpadi-client/internal/models"
	"taxpadi-client/internal/validation"
)

var (
	// ErrUserTypeNotSelected is returned by SubmitForm when no user type was chosen
	ErrUserTypeNotSelected = errors.New("user type not selected")
	// ErrRequestInFlight is returned when a network call is already running
	ErrRequestInFlight = errors.New("onboarding request already in flight")
	// ErrInvalidTransition is returned when an operation is not allowed in the current state
	ErrInvalidTransition = errors.New("invalid onboarding transition")
	// ErrBusinessNotFound is returned when an invitation code resolves to nothing
	ErrBusinessNotFound = errors.New("business not found")
	// ErrInvalidPath is returned for an unknown onboarding path
	ErrInvalidPath = errors.New("invalid onboarding path")
)

const (
	msgBusinessNotFound = "Business not found"
	msgVerifyFailed     = "Failed to verify invitation code"
)

// AccountService performs the two remote calls of the flow
type AccountService interface {
	VerifyBusiness(ctx context.Context, code string) (*models.BusinessVerificationResponse, error)
	CreateAccount(ctx context.Context, payload models.AccountPayload) (*models.AuthResponse, error)
}

// Machine is the onboarding state machine
type Machine struct {
	service   AccountService
	onCreated func(*models.AuthResponse)

	mu       sync.Mutex
	snap     Snapshot
	inFlight bool
	// generation changes on Reset so late responses are discarded
	generation uint64
}

// Option configures a Machine
type Option func(*Machine)

// WithOnAccountCreated registers a callback run after a successful account creation
func WithOnAccountCreated(fn func(*models.AuthResponse)) Option {
	return func(m *Machine) {
		m.onCreated = fn
	}
}

// NewMachine creates a machine in the INITIAL state
func NewMachine(service AccountService, opts ...Option) *Machine {
	m := &Machine{
		service: service,
		snap:    initialSnapshot(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Snapshot returns a copy of the current state, form data and errors
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.snap
	s.Errors = s.Errors.Clone()
	return s
}

// State returns the active state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.State
}

// IsLoading reports whether a network call is in flight
func (m *Machine) IsLoading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight
}

// StartOnboarding moves to ACCOUNT_REQUIRED
func (m *Machine) StartOnboarding() error {
	return m.transition("StartOnboarding", setState{StateAccountRequired})
}

// AskPath moves to ASKING_PATH
func (m *Machine) AskPath() error {
	return m.transition("AskPath", setState{StateAskingPath})
}

// SelectPath stores the chosen path. invitation moves to VERIFYING_BUSINESS,
// new_account to ASKING_USER_TYPE.
func (m *Machine) SelectPath(path Path) error {
	var next State
	switch path {
	case PathInvitation:
		next = StateVerifyingBusiness
	case PathNewAccount:
		next = StateAskingUserType
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	return m.transition("SelectPath",
		patchForm{func(f *FormData) { f.Path = path }},
		setState{next},
	)
}

// VerifyInvitation resolves code to a business. An invalid code sets the
// invitationCode error and leaves the state unchanged. Not-found and request
// failures set the error and return to ASKING_PATH.
func (m *Machine) VerifyInvitation(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)

	m.mu.Lock()
	if err := m.guardLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	if err := validation.ValidateInvitationCode(code); err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			m.snap = reduce(m.snap, setErrors{verrs})
		}
		m.mu.Unlock()
		return err
	}
	m.snap = reduce(m.snap,
		setState{StateVerifyingBusiness},
		patchForm{func(f *FormData) { f.InvitationCode = code }},
	)
	gen := m.begin()
	m.mu.Unlock()

	log.Printf("[Onboarding] VerifyInvitation started code=%q", code)
	resp, err := m.service.VerifyBusiness(ctx, code)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.finish(gen) {
		log.Printf("[Onboarding] VerifyInvitation result discarded after reset code=%q", code)
		return ErrInvalidTransition
	}

	if err != nil {
		log.Printf("[Onboarding] VerifyInvitation failed code=%q err=%v", code, err)
		m.snap = reduce(m.snap,
			setErrors{validation.Errors{"invitationCode": failureMessage(err, msgVerifyFailed)}},
			setState{StateAskingPath},
		)
		return err
	}

	if resp == nil || !resp.Success || resp.Data.Business == nil {
		log.Printf("[Onboarding] VerifyInvitation completed found=false code=%q", code)
		m.snap = reduce(m.snap,
			setErrors{validation.Errors{"invitationCode": msgBusinessNotFound}},
			setState{StateAskingPath},
		)
		return ErrBusinessNotFound
	}

	business := resp.Data.Business
	m.snap = reduce(m.snap,
		patchForm{func(f *FormData) { f.VerifiedBusiness = business }},
		clearError{"invitationCode"},
		setState{StateConfirmingBusiness},
	)
	log.Printf("[Onboarding] VerifyInvitation completed found=true business_id=%s", business.ID)
	return nil
}

// ConfirmBusiness accepts or rejects the verified business. Accepting joins
// it as an employee; rejecting drops the business and code and returns to
// ASKING_PATH.
func (m *Machine) ConfirmBusiness(confirmed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.guardLocked(); err != nil {
		return err
	}
	if m.snap.State != StateConfirmingBusiness {
		return fmt.Errorf("%w: ConfirmBusiness from %s", ErrInvalidTransition, m.snap.State)
	}

	if confirmed {
		m.snap = reduce(m.snap,
			patchForm{func(f *FormData) { f.UserType = models.UserTypeEmployee }},
			setState{StateCollectingInfo},
		)
	} else {
		m.snap = reduce(m.snap,
			patchForm{func(f *FormData) {
				f.VerifiedBusiness = nil
				f.InvitationCode = ""
			}},
			setState{StateAskingPath},
		)
	}
	log.Printf("[Onboarding] ConfirmBusiness confirmed=%t state=%s", confirmed, m.snap.State)
	return nil
}

// SelectUserType stores the user type and moves to COLLECTING_INFO
func (m *Machine) SelectUserType(userType models.UserType) error {
	if _, ok := models.ParseUserType(string(userType)); !ok {
		return fmt.Errorf("%w: unknown user type %q", ErrInvalidTransition, userType)
	}
	return m.transition("SelectUserType",
		patchForm{func(f *FormData) { f.UserType = userType }},
		setState{StateCollectingInfo},
	)
}

// UpdateFormData applies fn to the form data
func (m *Machine) UpdateFormData(fn func(*FormData)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = reduce(m.snap, patchForm{fn})
}

// SetErrors replaces the field errors
func (m *Machine) SetErrors(errs validation.Errors) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = reduce(m.snap, setErrors{errs})
}

// SubmitForm validates the collected fields and creates the account.
// Without a user type the machine moves to ERROR. A payload that fails
// validation sets field errors and returns validation.Errors without any
// request. A failed request moves to ERROR keeping the current errors.
func (m *Machine) SubmitForm(ctx context.Context) error {
	m.mu.Lock()
	if err := m.guardLocked(); err != nil {
		m.mu.Unlock()
		return err
	}

	if m.snap.Form.UserType == "" {
		m.snap = reduce(m.snap, setState{StateError})
		m.mu.Unlock()
		log.Printf("[Onboarding] SubmitForm failed err=%v", ErrUserTypeNotSelected)
		return ErrUserTypeNotSelected
	}

	payload := buildPayload(m.snap.Form)
	if err := validation.ValidateAccount(payload); err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			m.snap = reduce(m.snap, setErrors{verrs})
		}
		m.mu.Unlock()
		log.Printf("[Onboarding] SubmitForm rejected user_type=%s err=%v", payload.AccountUserType(), err)
		return err
	}

	m.snap = reduce(m.snap, setErrors{nil}, setState{StateCreatingAccount})
	gen := m.begin()
	m.mu.Unlock()

	log.Printf("[Onboarding] SubmitForm started user_type=%s", payload.AccountUserType())
	resp, err := m.service.CreateAccount(ctx, payload)

	m.mu.Lock()
	if !m.finish(gen) {
		m.mu.Unlock()
		log.Printf("[Onboarding] SubmitForm result discarded after reset")
		return ErrInvalidTransition
	}
	if err != nil {
		m.snap = reduce(m.snap, setState{StateError})
		m.mu.Unlock()
		log.Printf("[Onboarding] SubmitForm failed err=%v", err)
		return err
	}
	m.snap = reduce(m.snap, setState{StateSuccess})
	m.mu.Unlock()

	log.Printf("[Onboarding] SubmitForm completed user_id=%s", resp.Data.User.ID)
	if m.onCreated != nil {
		m.onCreated(resp)
	}
	return nil
}

// Reset returns to INITIAL and clears form data and errors
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = reduce(m.snap, reset{})
	m.inFlight = false
	m.generation++
	log.Printf("[Onboarding] Reset")
}

// transition applies actions to a non-terminal, idle machine
func (m *Machine) transition(op string, actions ...action) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.guardLocked(); err != nil {
		log.Printf("[Onboarding] %s rejected state=%s err=%v", op, m.snap.State, err)
		return err
	}
	from := m.snap.State
	m.snap = reduce(m.snap, actions...)
	log.Printf("[Onboarding] %s from=%s to=%s", op, from, m.snap.State)
	return nil
}

func (m *Machine) guardLocked() error {
	if m.inFlight {
		return ErrRequestInFlight
	}
	if m.snap.State.Terminal() || m.snap.State == StateCreatingAccount {
		return fmt.Errorf("%w: machine is in %s", ErrInvalidTransition, m.snap.State)
	}
	return nil
}

func (m *Machine) begin() uint64 {
	m.inFlight = true
	return m.generation
}

// finish ends the in-flight call; false means Reset ran in the meantime
func (m *Machine) finish(gen uint64) bool {
	if gen != m.generation {
		return false
	}
	m.inFlight = false
	return true
}

func failureMessage(err error, fallback string) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}
