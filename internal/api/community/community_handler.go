package community

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medicalq/backend/internal/api"
	"github.com/medicalq/backend/internal/api/auth"
)

type CommunityHandler struct {
	communityService CommunityService
	logger           *slog.Logger
}

func NewCommunityHandler(communityService CommunityService, logger *slog.Logger) *CommunityHandler {
	return &CommunityHandler{
		communityService: communityService,
		logger:           logger,
	}
}

func communityStatus(err error) (int, string) {
	switch {
	case errors.Is(err, api.ErrBadRequest):
		return http.StatusBadRequest, trimSentinel(err)
	case errors.Is(err, api.ErrForbidden):
		return http.StatusForbidden, trimSentinel(err)
	case errors.Is(err, api.ErrNotFound):
		return http.StatusNotFound, trimSentinel(err)
	default:
		return http.StatusInternalServerError, "Something went wrong"
	}
}

func trimSentinel(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx >= 0 {
		return msg[idx+2:]
	}
	return msg
}

// CreateQuestion godoc
// @Summary      Post a community question
// @Tags         Community
// @Accept       json
// @Produce      json
// @Param        body body CreateQuestionRequest true "Question payload"
// @Success      201 {object} api.Response
// @Security     BearerAuth
// @Router       /community/questions [post]
func (h *CommunityHandler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "CreateQuestion"))

	user, ok := auth.GetUserFromContext(ctx)
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req CreateQuestionRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	question, err := h.communityService.AskQuestion(ctx, user, req)
	if err != nil {
		l.WarnContext(ctx, "Question creation failed", slog.Any("error", err))
		status, msg := communityStatus(err)
		api.ErrorResponse(w, r, status, msg)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusCreated, api.Response{
		Success: true,
		Message: "Question posted",
		Data:    question,
	})
}

// ListQuestions supports ?limit, ?offset and ?mine=true (requires a
// principal, resolved optionally by the router).
func (h *CommunityHandler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	var authorID *uuid.UUID
	if r.URL.Query().Get("mine") == "true" {
		user, ok := auth.GetUserFromContext(ctx)
		if !ok {
			api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required to filter by your questions")
			return
		}
		authorID = &user.ID
	}

	questions, err := h.communityService.ListQuestions(ctx, limit, offset, authorID)
	if err != nil {
		h.logger.ErrorContext(ctx, "Question listing failed", slog.Any("error", err))
		status, msg := communityStatus(err)
		api.ErrorResponse(w, r, status, msg)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, api.Response{
		Success: true,
		Data:    questions,
	})
}

func (h *CommunityHandler) GetQuestion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	questionID, err := uuid.Parse(chi.URLParam(r, "questionID"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid question id")
		return
	}

	question, err := h.communityService.GetQuestion(ctx, questionID)
	if err != nil {
		status, msg := communityStatus(err)
		api.ErrorResponse(w, r, status, msg)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, api.Response{
		Success: true,
		Data:    question,
	})
}

// CreateAnswer godoc
// @Summary      Answer a question
// @Description  Restricted to verified doctors.
// @Tags         Community
// @Param        questionID path string true "Question ID"
// @Success      201 {object} api.Response
// @Security     BearerAuth
// @Router       /community/questions/{questionID}/answers [post]
func (h *CommunityHandler) CreateAnswer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "CreateAnswer"))

	user, ok := auth.GetUserFromContext(ctx)
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	questionID, err := uuid.Parse(chi.URLParam(r, "questionID"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid question id")
		return
	}

	var req CreateAnswerRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	answer, err := h.communityService.AnswerQuestion(ctx, user, questionID, req)
	if err != nil {
		l.WarnContext(ctx, "Answer creation failed",
			slog.String("question_id", questionID.String()), slog.Any("error", err))
		status, msg := communityStatus(err)
		api.ErrorResponse(w, r, status, msg)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusCreated, api.Response{
		Success: true,
		Message: "Answer posted",
		Data:    answer,
	})
}
