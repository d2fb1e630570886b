package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var _ Provider = (*LocalProvider)(nil)

const localIssuer = "medicalq-local-identity"

type localAccount struct {
	uid          string
	email        string
	passwordHash []byte
	displayName  string
	claims       Claims
	revokedAt    time.Time
}

// LocalProvider is an in-process identity provider for development and
// tests. It signs HS256 tokens itself instead of delegating to Firebase, but
// honors the exact same contract and error kinds.
type LocalProvider struct {
	mu       sync.RWMutex
	byUID    map[string]*localAccount
	byEmail  map[string]*localAccount
	secret   []byte
	tokenTTL time.Duration
}

func NewLocalProvider(secret string, tokenTTL time.Duration) *LocalProvider {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &LocalProvider{
		byUID:    make(map[string]*localAccount),
		byEmail:  make(map[string]*localAccount),
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
}

type localClaims struct {
	Role       string `json:"role"`
	IsVerified bool   `json:"isVerified"`
	jwt.RegisteredClaims
}

func (p *LocalProvider) CreateUser(ctx context.Context, params NewUserParams) (string, error) {
	if _, err := mail.ParseAddress(params.Email); err != nil {
		return "", newError(KindInvalidEmail, "CreateUser", err)
	}
	if len(params.Password) < 6 {
		return "", newError(KindWeakPassword, "CreateUser", fmt.Errorf("password shorter than 6 characters"))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byEmail[params.Email]; exists {
		return "", newError(KindEmailExists, "CreateUser", fmt.Errorf("account for %s already exists", params.Email))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", newError(KindUnavailable, "CreateUser", err)
	}

	acct := &localAccount{
		uid:          uuid.NewString(),
		email:        params.Email,
		passwordHash: hash,
		displayName:  params.DisplayName,
	}
	p.byUID[acct.uid] = acct
	p.byEmail[acct.email] = acct
	return acct.uid, nil
}

// SignIn exchanges email/password for a signed token. Real deployments do
// this client-side against Firebase; the local driver needs a server-side
// door for dev logins and tests.
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (string, error) {
	p.mu.RLock()
	acct, ok := p.byEmail[email]
	p.mu.RUnlock()
	if !ok {
		return "", newError(KindNotFound, "SignIn", fmt.Errorf("no account for %s", email))
	}
	if err := bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)); err != nil {
		return "", newError(KindTokenInvalid, "SignIn", fmt.Errorf("invalid credentials"))
	}

	now := time.Now()
	claims := localClaims{
		Role:       acct.claims.Role,
		IsVerified: acct.claims.IsVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acct.uid,
			Issuer:    localIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", newError(KindUnavailable, "SignIn", err)
	}
	return signed, nil
}

func (p *LocalProvider) VerifyToken(ctx context.Context, tokenString string) (*Token, error) {
	claims := &localClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, newError(KindTokenExpired, "VerifyToken", err)
		}
		return nil, newError(KindTokenInvalid, "VerifyToken", err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, newError(KindTokenInvalid, "VerifyToken", fmt.Errorf("token claims invalid"))
	}

	issuedAt := time.Time{}
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}
	expiresAt := time.Time{}
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	p.mu.RLock()
	acct, ok := p.byUID[claims.Subject]
	p.mu.RUnlock()
	if ok && !acct.revokedAt.IsZero() && !issuedAt.After(acct.revokedAt) {
		return nil, newError(KindTokenRevoked, "VerifyToken", fmt.Errorf("token issued before revocation"))
	}

	return &Token{
		UID:       claims.Subject,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Claims:    Claims{Role: claims.Role, IsVerified: claims.IsVerified},
	}, nil
}

func (p *LocalProvider) SetCustomClaims(ctx context.Context, uid string, claims Claims) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, ok := p.byUID[uid]
	if !ok {
		return newError(KindNotFound, "SetCustomClaims", fmt.Errorf("no account %s", uid))
	}
	acct.claims = claims
	return nil
}

func (p *LocalProvider) UpdateUser(ctx context.Context, uid string, params UpdateUserParams) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, ok := p.byUID[uid]
	if !ok {
		return newError(KindNotFound, "UpdateUser", fmt.Errorf("no account %s", uid))
	}
	if params.DisplayName != nil {
		acct.displayName = *params.DisplayName
	}
	if params.Password != nil {
		if len(*params.Password) < 6 {
			return newError(KindWeakPassword, "UpdateUser", fmt.Errorf("password shorter than 6 characters"))
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*params.Password), bcrypt.DefaultCost)
		if err != nil {
			return newError(KindUnavailable, "UpdateUser", err)
		}
		acct.passwordHash = hash
	}
	return nil
}

func (p *LocalProvider) DeleteUser(ctx context.Context, uid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, ok := p.byUID[uid]
	if !ok {
		return newError(KindNotFound, "DeleteUser", fmt.Errorf("no account %s", uid))
	}
	delete(p.byUID, uid)
	delete(p.byEmail, acct.email)
	return nil
}

func (p *LocalProvider) RevokeRefreshTokens(ctx context.Context, uid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, ok := p.byUID[uid]
	if !ok {
		return newError(KindNotFound, "RevokeRefreshTokens", fmt.Errorf("no account %s", uid))
	}
	acct.revokedAt = time.Now()
	return nil
}
