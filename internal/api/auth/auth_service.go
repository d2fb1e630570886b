package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/medicalq/backend/app/observability/metrics"
	"github.com/medicalq/backend/internal/api"
	"github.com/medicalq/backend/internal/identity"
)

var _ AuthService = (*AuthServiceImpl)(nil)

// AuthService owns the registration, login and profile lifecycle flows that
// touch both the identity provider and the local user record store.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*User, error)
	// Login exchanges a provider-issued ID token for the local record,
	// updating last-login and lazily repairing drifted claims.
	Login(ctx context.Context, idToken string) (*User, error)
	UpdateProfile(ctx context.Context, user *User, req UpdateProfileRequest) (*User, error)
	ChangePassword(ctx context.Context, user *User, newPassword string) error
	Logout(ctx context.Context, user *User) error
	DeleteAccount(ctx context.Context, user *User) error
	VerifyDoctor(ctx context.Context, doctorID uuid.UUID, verified bool) (*User, error)
}

type AuthServiceImpl struct {
	repo        UserRepo
	provider    identity.Provider
	revocations *RevocationList
	logger      *slog.Logger
	metrics     *metrics.AppMetrics
}

func NewAuthService(repo UserRepo, provider identity.Provider, revocations *RevocationList, logger *slog.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{
		repo:        repo,
		provider:    provider,
		revocations: revocations,
		logger:      logger,
		metrics:     metrics.Get(),
	}
}

const minPasswordLength = 8

// observeProvider records the duration of one identity provider call.
func (s *AuthServiceImpl) observeProvider(ctx context.Context, op string, start time.Time) {
	s.metrics.IdentityCallDurationSecs.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("operation", op)))
}

// mapProviderError translates the closed identity error kinds into the
// domain sentinels the handlers know how to map to HTTP statuses.
func mapProviderError(err error) error {
	switch identity.KindOf(err) {
	case identity.KindEmailExists:
		return fmt.Errorf("%w: email already registered", api.ErrConflict)
	case identity.KindInvalidEmail:
		return fmt.Errorf("%w: invalid email address", api.ErrBadRequest)
	case identity.KindWeakPassword:
		return fmt.Errorf("%w: password does not meet requirements", api.ErrBadRequest)
	case identity.KindTokenExpired, identity.KindTokenRevoked, identity.KindTokenInvalid:
		return fmt.Errorf("%w: %s", api.ErrUnauthenticated, identity.KindOf(err))
	case identity.KindNotFound:
		return fmt.Errorf("%w: identity not found", api.ErrNotFound)
	default:
		return err
	}
}

func (s *AuthServiceImpl) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	l := s.logger.With(slog.String("method", "Register"))

	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := strings.TrimSpace(req.Name)
	role := Role(req.Role)

	if !RegistrableRole(role) {
		return nil, fmt.Errorf("%w: role must be patient or doctor", api.ErrBadRequest)
	}

	// Application-layer uniqueness check ahead of the unique index: the
	// provider and the local store are two sources of truth that must agree,
	// so a local hit must not reach the provider at all.
	if _, err := s.repo.GetUserByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email already registered", api.ErrConflict)
	} else if !errors.Is(err, api.ErrNotFound) {
		return nil, fmt.Errorf("register: uniqueness check failed: %w", err)
	}

	createStart := time.Now()
	uid, err := s.provider.CreateUser(ctx, identity.NewUserParams{
		Email:       email,
		Password:    req.Password,
		DisplayName: name,
	})
	s.observeProvider(ctx, "CreateUser", createStart)
	if err != nil {
		s.metrics.RegisterRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "provider_error")))
		return nil, mapProviderError(err)
	}

	user := &User{
		FirebaseUID: uid,
		Name:        name,
		Email:       email,
		Role:        role,
		// Patients are self-verified; doctors wait for an admin.
		IsVerified: role == RolePatient,
		IsActive:   true,
	}
	if role == RoleDoctor {
		user.Specialization = strPtr(req.Specialization)
		user.LicenseNumber = strPtr(req.LicenseNumber)
		user.MedicalCouncilRegistration = strPtr(req.MedicalCouncilRegistration)
	}

	created, err := s.repo.CreateUser(ctx, user)
	if err != nil {
		// The provider account now exists with no local record. There is no
		// compensating delete here; the gap is logged for reconciliation.
		l.ErrorContext(ctx, "Local record creation failed after provider account was created",
			slog.String("identity_ref", uid), slog.Any("error", err))
		s.metrics.RegisterRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "store_error")))
		return nil, err
	}

	if err := s.provider.SetCustomClaims(ctx, uid, identity.Claims{
		Role:       string(created.Role),
		IsVerified: created.IsVerified,
	}); err != nil {
		l.ErrorContext(ctx, "Failed to set custom claims for new user",
			slog.String("identity_ref", uid), slog.Any("error", err))
		return nil, fmt.Errorf("register: setting claims failed: %w", err)
	}

	s.metrics.RegisterRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "success")))
	l.InfoContext(ctx, "User registered",
		slog.String("user_id", created.ID.String()),
		slog.String("role", string(created.Role)))
	return created, nil
}

func (s *AuthServiceImpl) Login(ctx context.Context, idToken string) (*User, error) {
	l := s.logger.With(slog.String("method", "Login"))

	verifyStart := time.Now()
	token, err := s.provider.VerifyToken(ctx, idToken)
	s.observeProvider(ctx, "VerifyToken", verifyStart)
	if err != nil {
		s.metrics.LoginRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "invalid_token")))
		return nil, mapTokenError(err)
	}

	if s.revocations.RevokedSince(ctx, token.UID, token.IssuedAt) {
		s.metrics.LoginRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "revoked")))
		return nil, fmt.Errorf("%w: token revoked", api.ErrUnauthenticated)
	}

	user, err := s.repo.GetUserByFirebaseUID(ctx, token.UID)
	if err != nil {
		// A verified identity with no local record: registration never
		// completed locally, or the record was removed out-of-band.
		s.metrics.LoginRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "no_record")))
		return nil, err
	}

	if !user.IsActive {
		s.metrics.LoginRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "inactive")))
		return nil, fmt.Errorf("%w: account is deactivated", api.ErrForbidden)
	}

	if err := s.repo.UpdateLastLogin(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("login: updating last login failed: %w", err)
	}

	// Lazy repair: the token claims are the provider's view; if it drifted
	// from the local record, re-issue claims. This is the only
	// reconciliation mechanism between the two stores.
	if token.Claims.Role != string(user.Role) || token.Claims.IsVerified != user.IsVerified {
		if err := s.provider.SetCustomClaims(ctx, token.UID, identity.Claims{
			Role:       string(user.Role),
			IsVerified: user.IsVerified,
		}); err != nil {
			l.WarnContext(ctx, "Claims resync failed; will retry on next login",
				slog.String("user_id", user.ID.String()), slog.Any("error", err))
		} else {
			s.metrics.ClaimsResyncsTotal.Add(ctx, 1)
		}
	}

	s.metrics.LoginRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "success")))
	return user, nil
}

func (s *AuthServiceImpl) UpdateProfile(ctx context.Context, user *User, req UpdateProfileRequest) (*User, error) {
	l := s.logger.With(slog.String("method", "UpdateProfile"))

	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" || len(trimmed) > maxNameLength {
			return nil, fmt.Errorf("%w: name must be 1-%d characters", api.ErrBadRequest, maxNameLength)
		}
		req.Name = &trimmed
	}
	if req.Specialization != nil {
		if user.Role != RoleDoctor {
			return nil, fmt.Errorf("%w: only doctors have a specialization", api.ErrBadRequest)
		}
		if !ValidSpecialization(*req.Specialization) {
			return nil, fmt.Errorf("%w: unknown specialization %q", api.ErrBadRequest, *req.Specialization)
		}
	}

	updated, err := s.repo.UpdateProfile(ctx, user.ID, UpdateProfileParams{
		Name:           req.Name,
		Specialization: req.Specialization,
		ProfilePicture: req.ProfilePicture,
	})
	if err != nil {
		return nil, err
	}

	// Local write first, then the provider display name; a failure here
	// leaves the two out of sync with no compensating transaction.
	if req.Name != nil && *req.Name != user.Name {
		if err := s.provider.UpdateUser(ctx, user.FirebaseUID, identity.UpdateUserParams{
			DisplayName: req.Name,
		}); err != nil {
			l.ErrorContext(ctx, "Provider display name update failed after local write",
				slog.String("user_id", user.ID.String()), slog.Any("error", err))
			return nil, fmt.Errorf("update profile: provider update failed: %w", err)
		}
	}

	return updated, nil
}

func (s *AuthServiceImpl) ChangePassword(ctx context.Context, user *User, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", api.ErrBadRequest, minPasswordLength)
	}

	if err := s.provider.UpdateUser(ctx, user.FirebaseUID, identity.UpdateUserParams{
		Password: &newPassword,
	}); err != nil {
		return mapProviderError(err)
	}

	// The old credential must stop authenticating immediately.
	if err := s.provider.RevokeRefreshTokens(ctx, user.FirebaseUID); err != nil {
		return fmt.Errorf("change password: revoking sessions failed: %w", err)
	}
	s.revocations.Revoke(ctx, user.FirebaseUID)
	return nil
}

func (s *AuthServiceImpl) Logout(ctx context.Context, user *User) error {
	if err := s.provider.RevokeRefreshTokens(ctx, user.FirebaseUID); err != nil {
		return fmt.Errorf("logout: revoking sessions failed: %w", err)
	}
	s.revocations.Revoke(ctx, user.FirebaseUID)
	return nil
}

func (s *AuthServiceImpl) DeleteAccount(ctx context.Context, user *User) error {
	l := s.logger.With(slog.String("method", "DeleteAccount"))

	// Provider account is hard-deleted, local record soft-deleted, in that
	// order. If the soft delete fails the local record points at a dead
	// identity; logged, not compensated.
	if err := s.provider.DeleteUser(ctx, user.FirebaseUID); err != nil {
		if !identity.IsKind(err, identity.KindNotFound) {
			return fmt.Errorf("delete account: provider delete failed: %w", err)
		}
		l.WarnContext(ctx, "Provider account already gone; proceeding with local soft delete",
			slog.String("user_id", user.ID.String()))
	}

	if err := s.repo.SoftDeleteUser(ctx, user.ID); err != nil {
		l.ErrorContext(ctx, "Local soft delete failed after provider account was deleted",
			slog.String("user_id", user.ID.String()), slog.Any("error", err))
		return err
	}

	s.revocations.Revoke(ctx, user.FirebaseUID)
	return nil
}

func (s *AuthServiceImpl) VerifyDoctor(ctx context.Context, doctorID uuid.UUID, verified bool) (*User, error) {
	l := s.logger.With(slog.String("method", "VerifyDoctor"))

	target, err := s.repo.GetUserByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if target.Role != RoleDoctor {
		return nil, fmt.Errorf("%w: target user is not a doctor", api.ErrBadRequest)
	}

	updated, err := s.repo.SetDoctorVerification(ctx, doctorID, verified)
	if err != nil {
		return nil, err
	}

	if err := s.provider.SetCustomClaims(ctx, updated.FirebaseUID, identity.Claims{
		Role:       string(updated.Role),
		IsVerified: updated.IsVerified,
	}); err != nil {
		l.WarnContext(ctx, "Claims update failed after verification change; login will resync",
			slog.String("doctor_id", doctorID.String()), slog.Any("error", err))
	}

	l.InfoContext(ctx, "Doctor verification updated",
		slog.String("doctor_id", doctorID.String()),
		slog.Bool("is_verified", verified))
	return updated, nil
}

// mapTokenError narrows verification failures to 401; provider outages
// surface as opaque 500s.
func mapTokenError(err error) error {
	switch identity.KindOf(err) {
	case identity.KindTokenExpired, identity.KindTokenRevoked, identity.KindTokenInvalid:
		return fmt.Errorf("%w: %s", api.ErrUnauthenticated, identity.KindOf(err))
	default:
		return err
	}
}

func strPtr(s string) *string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
