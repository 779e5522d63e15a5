package models

// UserType distinguishes the kinds of accounts a person can hold
type UserType string

const (
	UserTypeIndividual UserType = "individual"
	UserTypeEmployee   UserType = "employee"
	UserTypeBusiness   UserType = "business"
)

// ParseUserType converts user input into a UserType
func ParseUserType(s string) (UserType, bool) {
	switch UserType(s) {
	case UserTypeIndividual, UserTypeEmployee, UserTypeBusiness:
		return UserType(s), true
	}
	return "", false
}

// User is the authenticated account returned by the auth endpoints
type User struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	FirstName   string   `json:"firstName"`
	LastName    string   `json:"lastName"`
	PhoneNumber string   `json:"phoneNumber,omitempty"`
	UserType    UserType `json:"userType"`
	BusinessID  string   `json:"businessId,omitempty"`
	BVN         string   `json:"bvn,omitempty"`
	TIN         string   `json:"tin,omitempty"`
	IsAdmin     bool     `json:"isAdmin"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt"`
}

// Business is a business record resolved from an invitation code
type Business struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Email              string `json:"email"`
	Phone              string `json:"phone,omitempty"`
	BusinessType       string `json:"businessType,omitempty"`
	Category           string `json:"category,omitempty"`
	RegistrationNumber string `json:"registrationNumber,omitempty"`
	Address            string `json:"address,omitempty"`
	City               string `json:"city,omitempty"`
	State              string `json:"state,omitempty"`
	InvitationCode     string `json:"invitationCode,omitempty"`
	CreatedAt          string `json:"createdAt,omitempty"`
	UpdatedAt          string `json:"updatedAt,omitempty"`
}

// AccountPayload is the body of POST /auth/create-account.
// Implemented only by IndividualAccountPayload and BusinessAccountPayload.
type AccountPayload interface {
	AccountUserType() UserType
	accountPayload()
}

// IndividualAccountPayload creates an individual or employee account
type IndividualAccountPayload struct {
	UserType    UserType `json:"userType" validate:"required,oneof=individual employee"`
	FirstName   string   `json:"firstName" validate:"required,min=2,person_name"`
	LastName    string   `json:"lastName" validate:"required,min=2,person_name"`
	Email       string   `json:"email" validate:"required,email"`
	PhoneNumber string   `json:"phoneNumber,omitempty" validate:"omitempty,ng_phone"`
	BVN         string   `json:"bvn,omitempty" validate:"omitempty,bvn"`
	TIN         string   `json:"tin,omitempty" validate:"omitempty,tin"`
	BusinessID  string   `json:"businessId,omitempty"`
}

func (p IndividualAccountPayload) AccountUserType() UserType { return p.UserType }
func (IndividualAccountPayload) accountPayload()              {}

// BusinessAccountPayload creates a business owner account together with its business
type BusinessAccountPayload struct {
	UserType           UserType `json:"userType" validate:"required,eq=business"`
	FirstName          string   `json:"firstName" validate:"required,min=2,person_name"`
	LastName           string   `json:"lastName" validate:"required,min=2,person_name"`
	Email              string   `json:"email" validate:"required,email"`
	PhoneNumber        string   `json:"phoneNumber,omitempty" validate:"omitempty,ng_phone"`
	BusinessName       string   `json:"businessName" validate:"required,min=2"`
	BusinessType       string   `json:"businessType" validate:"required,business_type"`
	BusinessCategory   string   `json:"businessCategory" validate:"required,business_category"`
	BusinessEmail      string   `json:"businessEmail" validate:"required,email"`
	BusinessPhone      string   `json:"businessPhone,omitempty" validate:"omitempty,ng_phone"`
	RegistrationNumber string   `json:"registrationNumber,omitempty"`
	Address            string   `json:"address,omitempty"`
	City               string   `json:"city,omitempty"`
	State              string   `json:"state,omitempty"`
}

func (p BusinessAccountPayload) AccountUserType() UserType { return p.UserType }
func (BusinessAccountPayload) accountPayload()              {}

// AuthResponse is returned by create-account and login
type AuthResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		User         User      `json:"user"`
		Business     *Business `json:"business,omitempty"`
		AccessToken  string    `json:"accessToken"`
		RefreshToken string    `json:"refreshToken"`
	} `json:"data"`
}

// BusinessVerificationResponse is returned by verify-business
type BusinessVerificationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		Business *Business `json:"business"`
	} `json:"data"`
}

// LoginPayload is the body of POST /auth/login
type LoginPayload struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// RefreshTokenResponse is returned by POST /auth/refresh
type RefreshTokenResponse struct {
	Success bool `json:"success"`
	Data    struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	} `json:"data"`
}

// BusinessTypes lists the accepted business types
var BusinessTypes = []string{
	"Company",
	"Partnership",
	"Sole Proprietorship",
	"LLC",
	"Corporation",
	"Non-Profit",
	"Other",
}

// BusinessCategories lists the accepted business categories
var BusinessCategories = []string{
	"Technology",
	"Retail",
	"Services",
	"Manufacturing",
	"Healthcare",
	"Education",
	"Finance",
	"Real Estate",
	"Construction",
	"Hospitality",
	"Transportation",
	"Agriculture",
	"Entertainment",
	"Professional Services",
	"Other",
}
