package validation

import (
	"regexp"
	"strings"
)

var (
	// 08012345678, +2348012345678 or 2348012345678
	nigerianPhoneRegex = regexp.MustCompile(`^(\+?234|0)[7-9][0-1]\d{8}$`)
	bvnRegex           = regexp.MustCompile(`^\d{11}$`)
	tinRegex           = regexp.MustCompile(`^\d{9}-\d{4}$`)
	nameRegex          = regexp.MustCompile(`^[a-zA-Z\s'-]+$`)
	phoneNoiseReplacer = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "\t", "")
)

// Result is the outcome of validating a single value
type Result struct {
	Valid bool
	Error string
}

func ok() Result { return Result{Valid: true} }

func fail(msg string) Result { return Result{Valid: false, Error: msg} }

// IsValidEmail reports whether email is a well-formed address
func IsValidEmail(email string) bool {
	return Default().v.Var(email, "required,email") == nil
}

// IsValidNigerianPhone accepts local (0XXXXXXXXXX) and international (+234 / 234) numbers.
// Spaces, hyphens and parentheses are ignored.
func IsValidNigerianPhone(phone string) bool {
	return nigerianPhoneRegex.MatchString(phoneNoiseReplacer.Replace(phone))
}

// IsValidBVN reports whether bvn is exactly 11 digits
func IsValidBVN(bvn string) bool {
	return bvnRegex.MatchString(strings.ReplaceAll(bvn, " ", ""))
}

// IsValidTIN reports whether tin has the XXXXXXXXX-XXXX format
func IsValidTIN(tin string) bool {
	return tinRegex.MatchString(strings.ReplaceAll(tin, " ", ""))
}

// IsRequired reports whether value has non-blank content
func IsRequired(value string) bool {
	return strings.TrimSpace(value) != ""
}

// IsValidName accepts letters, spaces, hyphens and apostrophes, at least 2 characters
func IsValidName(name string) bool {
	return nameRegex.MatchString(name) && len(strings.TrimSpace(name)) >= 2
}

func ValidateEmail(email string) Result {
	if !IsRequired(email) {
		return fail("Email is required")
	}
	if !IsValidEmail(email) {
		return fail("Please enter a valid email address")
	}
	return ok()
}

func ValidatePhone(phone string, required bool) Result {
	if !IsRequired(phone) {
		if required {
			return fail("Phone number is required")
		}
		return ok()
	}
	if !IsValidNigerianPhone(phone) {
		return fail("Please enter a valid Nigerian phone number")
	}
	return ok()
}

func ValidateName(name, fieldName string) Result {
	if fieldName == "" {
		fieldName = "Name"
	}
	if !IsRequired(name) {
		return fail(fieldName + " is required")
	}
	if !IsValidName(name) {
		return fail(fieldName + " should only contain letters")
	}
	return ok()
}

func ValidateBVN(bvn string, required bool) Result {
	if !IsRequired(bvn) {
		if required {
			return fail("BVN is required")
		}
		return ok()
	}
	if !IsValidBVN(bvn) {
		return fail("BVN must be 11 digits")
	}
	return ok()
}

func ValidateTIN(tin string, required bool) Result {
	if !IsRequired(tin) {
		if required {
			return fail("TIN is required")
		}
		return ok()
	}
	if !IsValidTIN(tin) {
		return fail("TIN must be in format XXXXXXXXX-XXXX")
	}
	return ok()
}
