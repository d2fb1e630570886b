package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medicalq/backend/internal/api"
)

type AuthHandler struct {
	authService AuthService
	logger      *slog.Logger
}

func NewAuthHandler(authService AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// statusFromError maps domain sentinels to the HTTP taxonomy; anything
// unrecognized degrades to a generic 500 with no internal detail leaked.
func statusFromError(err error) (int, string) {
	switch {
	case errors.Is(err, api.ErrBadRequest):
		return http.StatusBadRequest, userFacingMessage(err)
	case errors.Is(err, api.ErrUnauthenticated):
		return http.StatusUnauthorized, userFacingMessage(err)
	case errors.Is(err, api.ErrForbidden):
		return http.StatusForbidden, userFacingMessage(err)
	case errors.Is(err, api.ErrNotFound):
		return http.StatusNotFound, userFacingMessage(err)
	case errors.Is(err, api.ErrConflict):
		return http.StatusConflict, userFacingMessage(err)
	default:
		return http.StatusInternalServerError, "Something went wrong"
	}
}

// userFacingMessage strips the sentinel prefix, keeping the detail portion
// that services attach for the client.
func userFacingMessage(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx >= 0 {
		return msg[idx+2:]
	}
	return msg
}

// Register godoc
// @Summary      Register a new user
// @Description  Creates an identity-provider account and the local profile record.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body body RegisterRequest true "Registration payload"
// @Success      201 {object} api.Response "User created"
// @Failure      400 {object} api.Response "Invalid input"
// @Failure      409 {object} api.Response "Email already registered"
// @Router       /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "Register"))

	var req RegisterRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// Boundary validation; the record store re-checks the doctor invariant
	// independently before the write.
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" || req.Role == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "name, email, password and role are required")
		return
	}
	if !RegistrableRole(Role(req.Role)) {
		api.ErrorResponse(w, r, http.StatusBadRequest, "role must be patient or doctor")
		return
	}
	if Role(req.Role) == RoleDoctor {
		if strings.TrimSpace(req.Specialization) == "" ||
			strings.TrimSpace(req.LicenseNumber) == "" ||
			strings.TrimSpace(req.MedicalCouncilRegistration) == "" {
			api.ErrorResponse(w, r, http.StatusBadRequest,
				"doctors must provide specialization, licenseNumber and medicalCouncilRegistration")
			return
		}
	}

	user, err := h.authService.Register(ctx, req)
	if err != nil {
		l.WarnContext(ctx, "Registration failed", slog.String("email", req.Email), slog.Any("error", err))
		status, msg := statusFromError(err)
		api.ErrorResponse(w, r, status, msg)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusCreated, api.Response{
		Success: true,
		Message: "User registered successfully",
		User:    user.Sanitize(),
	})
}

// Login godoc
// @Summary      Login with a provider-issued ID token
// @Description  Verifies the token, resolves the local record and resyncs drifted claims.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Success      200 {object} api.Response "Authenticated user"
// @Failure      401 {object} api.Response "Invalid or expired token"
// @Failure      403 {object} api.Response "Account deactivated"
// @Failure      404 {object} api.Response "No local record"
// @Router       /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "Login"))

	idToken := bearerToken(r)
	if idToken == "" {
		var req LoginRequest
		if err := api.DecodeJSONBody(w, r, &req); err == nil {
			idToken = req.IDToken
		}
	}
	if idToken == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "idToken is required")
		return
	}

	user, err := h.authService.Login(ctx, idToken)
	if err != nil {
		l.WarnContext(ctx, "Login failed", slog.Any("error", err))
		status, msg := statusFromError(err)
		api.ErrorResponse(w, r, status, msg)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, api.Response{
		Success: true,
		Message: "Login successful",
		User:    user.Sanitize(),
	})
}

// GetProfile returns the already-resolved principal.
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := GetUserFromContext(r.Context())
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, api.Response{
		Success: true,
		User:    user.Sanitize(),
	})
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "UpdateProfile"))

	user, ok := GetUserFromContext(ctx)
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req UpdateProfileRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.authService.UpdateProfile(ctx, user, req)
	if err != nil {
		l.WarnContext(ctx, "Profile update failed", slog.String("user_id", user.ID.String()), slog.Any("error", err))
		status, msg := statusFromError(err)
		api.ErrorResponse(w, r, status, msg)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, api.Response{
		Success: true,
		Message: "Profile updated successfully",
		User:    updated.Sanitize(),
	})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "ChangePassword"))

	user, ok := GetUserFromContext(ctx)
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req ChangePasswordRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.authService.ChangePassword(ctx, user, req.NewPassword); err != nil {
		l.WarnContext(ctx, "Password change failed", slog.String("user_id", user.ID.String()), slog.Any("error", err))
		status, msg := statusFromError(err)
		api.ErrorResponse(w, r, status, msg)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, api.Response{
		Success: true,
		Message: "Password changed successfully",
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := GetUserFromContext(ctx)
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	if err := h.authService.Logout(ctx, user); err != nil {
		h.logger.ErrorContext(ctx, "Logout failed", slog.String("user_id", user.ID.String()), slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to logout")
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, api.Response{
		Success: true,
		Message: "Logged out successfully",
	})
}

func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := GetUserFromContext(ctx)
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	if err := h.authService.DeleteAccount(ctx, user); err != nil {
		h.logger.ErrorContext(ctx, "Account deletion failed", slog.String("user_id", user.ID.String()), slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to delete account")
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, api.Response{
		Success: true,
		Message: "Account deleted successfully",
	})
}

// VerifyDoctor godoc
// @Summary      Set a doctor's verification status
// @Description  Admin-gated; the only write path that may flip isVerified.
// @Tags         Auth
// @Param        doctorID path string true "Doctor ID"
// @Success      200 {object} api.Response "Updated doctor"
// @Failure      400 {object} api.Response "Target is not a doctor"
// @Failure      404 {object} api.Response "No such user"
// @Security     BearerAuth
// @Router       /auth/verify-doctor/{doctorID} [put]
func (h *AuthHandler) VerifyDoctor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "VerifyDoctor"))

	doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid doctor id")
		return
	}

	var req VerifyDoctorRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.IsVerified == nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "isVerified is required")
		return
	}

	doctor, err := h.authService.VerifyDoctor(ctx, doctorID, *req.IsVerified)
	if err != nil {
		l.WarnContext(ctx, "Doctor verification failed", slog.String("doctor_id", doctorID.String()), slog.Any("error", err))
		status, msg := statusFromError(err)
		api.ErrorResponse(w, r, status, msg)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, api.Response{
		Success: true,
		Message: "Doctor verification updated",
		Doctor:  doctor.Sanitize(),
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.Split(header, " ")
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return ""
}
