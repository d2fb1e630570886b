// Package identity wraps the external identity provider behind a narrow
// contract. The application never talks to the provider SDK directly and
// never branches on provider-specific error strings: every failure is mapped
// to one of the closed error kinds below.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Claims is the role/verification metadata embedded in issued tokens so
// authorization checks do not need a database round trip.
type Claims struct {
	Role       string `json:"role"`
	IsVerified bool   `json:"isVerified"`
}

// Token is the result of a successful bearer token verification. ExpiresAt
// lets callers that cache verified tokens honor expiry without another
// provider round trip.
type Token struct {
	UID       string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Claims    Claims
}

// NewUserParams describes the account to create at the provider.
type NewUserParams struct {
	Email       string
	Password    string
	DisplayName string
}

// UpdateUserParams carries the mutable provider-side account fields. Nil
// means "leave unchanged".
type UpdateUserParams struct {
	DisplayName *string
	Password    *string
}

// Provider is the identity provider contract consumed by the auth service
// and middleware.
type Provider interface {
	// CreateUser provisions an account and returns its stable identity
	// reference (UID).
	CreateUser(ctx context.Context, params NewUserParams) (string, error)
	// VerifyToken validates a bearer token, including revocation checks.
	VerifyToken(ctx context.Context, token string) (*Token, error)
	SetCustomClaims(ctx context.Context, uid string, claims Claims) error
	UpdateUser(ctx context.Context, uid string, params UpdateUserParams) error
	DeleteUser(ctx context.Context, uid string) error
	// RevokeRefreshTokens invalidates every session for the identity.
	RevokeRefreshTokens(ctx context.Context, uid string) error
}

// Kind is the closed set of provider failure categories.
type Kind int

const (
	KindUnknown Kind = iota
	KindTokenExpired
	KindTokenRevoked
	KindTokenInvalid
	KindEmailExists
	KindInvalidEmail
	KindWeakPassword
	KindNotFound
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindTokenExpired:
		return "token expired"
	case KindTokenRevoked:
		return "token revoked"
	case KindTokenInvalid:
		return "token invalid"
	case KindEmailExists:
		return "email already exists"
	case KindInvalidEmail:
		return "invalid email"
	case KindWeakPassword:
		return "weak password"
	case KindNotFound:
		return "account not found"
	case KindUnavailable:
		return "provider unavailable"
	default:
		return "unknown provider error"
	}
}

// Error is the tagged provider error returned by every Provider
// implementation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("identity: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("identity: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the provider error kind, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given provider error kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
