// Package validation implements field validation for onboarding and login forms.
//
// Struct schemas are declared with `validate` tags on the payload types in
// internal/models and checked by a shared validator with Nigerian-specific rules
// registered as custom tags (ng_phone, bvn, tin, person_name, business_type,
// business_category).
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"taxpadi-client/internal/models"
)

// Errors maps a field name (JSON name) to a human-readable message
type Errors map[string]string

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+e[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Clone returns an independent copy of e
func (e Errors) Clone() Errors {
	if e == nil {
		return Errors{}
	}
	out := make(Errors, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// InvitationCodeForm is the schema for the invitation code step
type InvitationCodeForm struct {
	InvitationCode string `json:"invitationCode" validate:"required,min=3"`
}

// Validator checks struct schemas
type Validator struct {
	v *validator.Validate
}

var (
	defaultOnce      sync.Once
	defaultValidator *Validator
)

// Default returns the shared validator
func Default() *Validator {
	defaultOnce.Do(func() {
		defaultValidator = New()
	})
	return defaultValidator
}

// New creates a validator with the custom rules registered
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	rules := map[string]func(string) bool{
		"ng_phone":    IsValidNigerianPhone,
		"bvn":         IsValidBVN,
		"tin":         IsValidTIN,
		"person_name": func(s string) bool { return nameRegex.MatchString(s) },
		"business_type": func(s string) bool {
			return slices.Contains(models.BusinessTypes, s)
		},
		"business_category": func(s string) bool {
			return slices.Contains(models.BusinessCategories, s)
		},
	}
	for tag, fn := range rules {
		// registration only fails for empty tags or nil funcs
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return fn(fl.Field().String())
		})
	}

	return &Validator{v: v}
}

// Struct validates s against its `validate` tags.
// It returns nil or an Errors value keyed by JSON field name.
func (val *Validator) Struct(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate: %w", err)
	}

	out := make(Errors, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if _, exists := out[field]; exists {
			continue
		}
		out[field] = message(field, fe.Tag(), fe.Param())
	}
	return out
}

// ValidateAccount validates an account creation payload
func ValidateAccount(p models.AccountPayload) error {
	if p == nil {
		return Errors{"userType": "User type is required"}
	}
	return Default().Struct(p)
}

// ValidateInvitationCode validates the invitation code step
func ValidateInvitationCode(code string) error {
	return Default().Struct(InvitationCodeForm{InvitationCode: strings.TrimSpace(code)})
}

// ValidateLogin validates login credentials
func ValidateLogin(p models.LoginPayload) error {
	return Default().Struct(p)
}

var fieldLabels = map[string]string{
	"firstName":        "First name",
	"lastName":         "Last name",
	"email":            "Email",
	"phoneNumber":      "Phone number",
	"businessName":     "Business name",
	"businessType":     "Business type",
	"businessCategory": "Business category",
	"businessEmail":    "Business email",
	"businessPhone":    "Business phone",
	"invitationCode":   "Invitation code",
	"password":         "Password",
	"userType":         "User type",
}

var fieldMessages = map[string]string{
	"invitationCode.min": "Please enter a valid invitation code",
}

func message(field, tag, param string) string {
	if msg, ok := fieldMessages[field+"."+tag]; ok {
		return msg
	}

	label, ok := fieldLabels[field]
	if !ok {
		label = field
	}

	switch tag {
	case "required":
		return label + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, param)
	case "email":
		return "Please enter a valid email address"
	case "person_name":
		return label + " should only contain letters"
	case "ng_phone":
		return "Please enter a valid Nigerian phone number"
	case "bvn":
		return "BVN must be 11 digits"
	case "tin":
		return "TIN must be in format XXXXXXXXX-XXXX"
	case "business_type":
		return "Please select a valid business type"
	case "business_category":
		return "Please select a valid business category"
	case "oneof", "eq":
		return "Invalid " + strings.ToLower(label)
	default:
		return label + " is invalid"
	}
}
