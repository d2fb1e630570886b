package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/medicalq/backend/app/observability/metrics"
	"github.com/medicalq/backend/internal/api"
	"github.com/medicalq/backend/internal/identity"
)

type contextKey string

const userKey contextKey = "authUser"
const tokenKey contextKey = "authToken"

// GetUserFromContext returns the authenticated principal, if any.
func GetUserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userKey).(*User)
	return user, ok
}

// GetTokenFromContext returns the verified token attached by Authenticate.
func GetTokenFromContext(ctx context.Context) (*identity.Token, bool) {
	token, ok := ctx.Value(tokenKey).(*identity.Token)
	return token, ok
}

// principal is the cached pairing of a verified token and its local record.
type principal struct {
	user  *User
	token *identity.Token
}

// principalTTL keeps verified principals briefly to avoid a provider round
// trip and a DB lookup on every request. Revocation is still checked on
// cache hits.
const principalTTL = 30 * time.Second

// Middleware verifies bearer credentials and resolves them to local user
// records for downstream handlers.
type Middleware struct {
	provider    identity.Provider
	repo        UserRepo
	revocations *RevocationList
	principals  *gocache.Cache
	logger      *slog.Logger
	metrics     *metrics.AppMetrics
}

func NewMiddleware(provider identity.Provider, repo UserRepo, revocations *RevocationList, logger *slog.Logger) *Middleware {
	return &Middleware{
		provider:    provider,
		repo:        repo,
		revocations: revocations,
		principals:  gocache.New(principalTTL, time.Minute),
		logger:      logger,
		metrics:     metrics.Get(),
	}
}

// resolve authenticates the request and returns either a principal or the
// HTTP status and message to reject with.
func (m *Middleware) resolve(r *http.Request) (*principal, int, string) {
	ctx := r.Context()

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, http.StatusUnauthorized, "Authorization header required"
	}
	headerParts := strings.Split(authHeader, " ")
	if len(headerParts) != 2 || !strings.EqualFold(headerParts[0], "bearer") {
		return nil, http.StatusUnauthorized, "Authorization header format must be Bearer {token}"
	}
	tokenString := headerParts[1]

	if cached, ok := m.principals.Get(tokenString); ok {
		p := cached.(*principal)
		// A cached principal must not outlive its token.
		if !p.token.ExpiresAt.IsZero() && time.Now().After(p.token.ExpiresAt) {
			m.principals.Delete(tokenString)
			return nil, http.StatusUnauthorized, "Token has expired"
		}
		if m.revocations.RevokedSince(ctx, p.token.UID, p.token.IssuedAt) {
			m.principals.Delete(tokenString)
			return nil, http.StatusUnauthorized, "Token has been revoked"
		}
		if !p.user.IsActive {
			return nil, http.StatusForbidden, "Account is deactivated"
		}
		return p, 0, ""
	}

	verifyStart := time.Now()
	token, err := m.provider.VerifyToken(ctx, tokenString)
	m.metrics.IdentityCallDurationSecs.Record(ctx, time.Since(verifyStart).Seconds(),
		metric.WithAttributes(attribute.String("operation", "VerifyToken")))
	m.metrics.TokenVerificationsTotal.Add(ctx, 1)
	if err != nil {
		switch identity.KindOf(err) {
		case identity.KindTokenExpired:
			return nil, http.StatusUnauthorized, "Token has expired"
		case identity.KindTokenRevoked:
			return nil, http.StatusUnauthorized, "Token has been revoked"
		case identity.KindTokenInvalid:
			return nil, http.StatusUnauthorized, "Invalid token"
		default:
			m.logger.ErrorContext(ctx, "Token verification failed unexpectedly", slog.Any("error", err))
			return nil, http.StatusInternalServerError, "Authentication temporarily unavailable"
		}
	}

	if m.revocations.RevokedSince(ctx, token.UID, token.IssuedAt) {
		return nil, http.StatusUnauthorized, "Token has been revoked"
	}

	user, err := m.repo.GetUserByFirebaseUID(ctx, token.UID)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return nil, http.StatusNotFound, "No account found for this identity"
		}
		m.logger.ErrorContext(ctx, "Principal lookup failed", slog.Any("error", err))
		return nil, http.StatusInternalServerError, "Authentication temporarily unavailable"
	}
	if !user.IsActive {
		return nil, http.StatusForbidden, "Account is deactivated"
	}

	p := &principal{user: user, token: token}
	m.principals.SetDefault(tokenString, p)
	return p, 0, ""
}

// Authenticate rejects the request unless a valid bearer token resolves to
// an active local record; the principal and token are attached to the
// request context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, status, message := m.resolve(r)
		if p == nil {
			m.metrics.AuthFailuresTotal.Add(r.Context(), 1, metric.WithAttributes(attribute.Int("status", status)))
			api.ErrorResponse(w, r, status, message)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, p.user)
		ctx = context.WithValue(ctx, tokenKey, p.token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuthenticate performs the same resolution but proceeds
// unauthenticated on any failure; used by routes that personalize for
// logged-in users without requiring login.
func (m *Middleware) OptionalAuthenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			if p, _, _ := m.resolve(r); p != nil {
				ctx := context.WithValue(r.Context(), userKey, p.user)
				ctx = context.WithValue(ctx, tokenKey, p.token)
				r = r.WithContext(ctx)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// requireGate wraps the shared 401/403 split: 401 when no principal is
// present, 403 when the principal lacks privilege. Never any other status.
func requireGate(predicate func(*User) bool, message string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUserFromContext(r.Context())
			if !ok {
				api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !predicate(user) {
				api.ErrorResponse(w, r, http.StatusForbidden, message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireDoctor allows any doctor, verified or not.
func RequireDoctor() func(http.Handler) http.Handler {
	return requireGate(func(u *User) bool {
		return u.Role == RoleDoctor
	}, "Doctor access required")
}

// RequireVerifiedDoctor allows only verified, active doctors.
func RequireVerifiedDoctor() func(http.Handler) http.Handler {
	return requireGate(func(u *User) bool {
		return u.CanProvideMedicalAdvice()
	}, "Verified doctor access required")
}

func RequirePatient() func(http.Handler) http.Handler {
	return requireGate(func(u *User) bool {
		return u.Role == RolePatient
	}, "Patient access required")
}

// RequireAdmin allows active, verified admin accounts. Admins are seeded
// out-of-band; registration never produces one.
func RequireAdmin() func(http.Handler) http.Handler {
	return requireGate(func(u *User) bool {
		return u.Role == RoleAdmin && u.IsActive && u.IsVerified
	}, "Admin access required")
}

// RequireOwnerOrAdmin allows the principal whose id matches the URL
// parameter, or an admin.
func RequireOwnerOrAdmin(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUserFromContext(r.Context())
			if !ok {
				api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
				return
			}
			if user.Role != RoleAdmin {
				targetID, err := uuid.Parse(chi.URLParam(r, param))
				if err != nil || targetID != user.ID {
					api.ErrorResponse(w, r, http.StatusForbidden, "Access restricted to the account owner")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
