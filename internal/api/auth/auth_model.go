package auth

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the user role stored locally and mirrored into provider claims.
// Only patient and doctor are registrable; admin accounts are provisioned
// out-of-band (cmd/seed).
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// RegistrableRole reports whether the role may be chosen at registration.
func RegistrableRole(r Role) bool {
	return r == RolePatient || r == RoleDoctor
}

// Specializations is the fixed set accepted for doctor profiles.
var Specializations = []string{
	"Cardiology",
	"Dermatology",
	"Endocrinology",
	"Gastroenterology",
	"General Medicine",
	"Neurology",
	"Oncology",
	"Orthopedics",
	"Pediatrics",
	"Psychiatry",
	"Pulmonology",
	"Urology",
}

func ValidSpecialization(s string) bool {
	for _, v := range Specializations {
		if v == s {
			return true
		}
	}
	return false
}

const maxNameLength = 100

// User is the local profile record, keyed by the provider-assigned identity
// reference (FirebaseUID). The identity reference is immutable once set.
type User struct {
	ID          uuid.UUID
	FirebaseUID string
	Name        string
	Email       string
	Role        Role

	// Doctor credentials: present iff Role == RoleDoctor.
	Specialization             *string
	LicenseNumber              *string
	MedicalCouncilRegistration *string

	IsVerified     bool
	IsActive       bool
	ProfilePicture *string
	LastLoginAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CanProvideMedicalAdvice is the capability predicate for answering medical
// questions: a doctor must be both verified and active.
func (u *User) CanProvideMedicalAdvice() bool {
	return u.Role == RoleDoctor && u.IsVerified && u.IsActive
}

// Validate re-checks the record invariants before any write. It is the
// storage-side twin of the request validation at the HTTP boundary; both
// must independently reject a doctor record missing credentials.
func (u *User) Validate() error {
	name := strings.TrimSpace(u.Name)
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("name must be at most %d characters", maxNameLength)
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return fmt.Errorf("invalid email address")
	}
	switch u.Role {
	case RolePatient, RoleDoctor, RoleAdmin:
	default:
		return fmt.Errorf("invalid role %q", u.Role)
	}
	if u.Role == RoleDoctor {
		if emptyPtr(u.Specialization) || emptyPtr(u.LicenseNumber) || emptyPtr(u.MedicalCouncilRegistration) {
			return fmt.Errorf("doctor records require specialization, license number and medical council registration")
		}
	}
	return nil
}

func emptyPtr(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

// SanitizedUser is the wire representation: no provider secrets, no internal
// identity reference.
type SanitizedUser struct {
	ID                      uuid.UUID  `json:"id"`
	Name                    string     `json:"name"`
	Email                   string     `json:"email"`
	Role                    Role       `json:"role"`
	Specialization          *string    `json:"specialization,omitempty"`
	IsVerified              bool       `json:"isVerified"`
	IsActive                bool       `json:"isActive"`
	ProfilePicture          *string    `json:"profilePicture,omitempty"`
	CanProvideMedicalAdvice bool       `json:"canProvideMedicalAdvice"`
	LastLoginAt             *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt               time.Time  `json:"createdAt"`
}

func (u *User) Sanitize() *SanitizedUser {
	return &SanitizedUser{
		ID:                      u.ID,
		Name:                    u.Name,
		Email:                   u.Email,
		Role:                    u.Role,
		Specialization:          u.Specialization,
		IsVerified:              u.IsVerified,
		IsActive:                u.IsActive,
		ProfilePicture:          u.ProfilePicture,
		CanProvideMedicalAdvice: u.CanProvideMedicalAdvice(),
		LastLoginAt:             u.LastLoginAt,
		CreatedAt:               u.CreatedAt,
	}
}

// RegisterRequest is the registration payload.
type RegisterRequest struct {
	Name                       string `json:"name"`
	Email                      string `json:"email"`
	Password                   string `json:"password"`
	Role                       string `json:"role"`
	Specialization             string `json:"specialization,omitempty"`
	LicenseNumber              string `json:"licenseNumber,omitempty"`
	MedicalCouncilRegistration string `json:"medicalCouncilRegistration,omitempty"`
}

// LoginRequest carries the provider-issued ID token; the password is never
// sent to this backend.
type LoginRequest struct {
	IDToken string `json:"idToken"`
}

// UpdateProfileRequest carries the mutable profile fields; nil means "leave
// unchanged".
type UpdateProfileRequest struct {
	Name           *string `json:"name,omitempty"`
	Specialization *string `json:"specialization,omitempty"`
	ProfilePicture *string `json:"profilePicture,omitempty"`
}

type ChangePasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

type VerifyDoctorRequest struct {
	IsVerified *bool `json:"isVerified"`
}
