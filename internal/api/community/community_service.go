package community

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/medicalq/backend/internal/api"
	"github.com/medicalq/backend/internal/api/auth"
)

var _ CommunityService = (*CommunityServiceImpl)(nil)

// CommunityService covers the question/answer operations.
type CommunityService interface {
	AskQuestion(ctx context.Context, author *auth.User, req CreateQuestionRequest) (*Question, error)
	ListQuestions(ctx context.Context, limit, offset int, authorID *uuid.UUID) ([]Question, error)
	GetQuestion(ctx context.Context, questionID uuid.UUID) (*QuestionWithAnswers, error)
	AnswerQuestion(ctx context.Context, doctor *auth.User, questionID uuid.UUID, req CreateAnswerRequest) (*Answer, error)
}

type CommunityServiceImpl struct {
	logger *slog.Logger
	repo   CommunityRepo
}

func NewCommunityService(repo CommunityRepo, logger *slog.Logger) *CommunityServiceImpl {
	return &CommunityServiceImpl{
		logger: logger,
		repo:   repo,
	}
}

func (s *CommunityServiceImpl) AskQuestion(ctx context.Context, author *auth.User, req CreateQuestionRequest) (*Question, error) {
	title := strings.TrimSpace(req.Title)
	body := strings.TrimSpace(req.Body)
	if title == "" || body == "" {
		return nil, fmt.Errorf("%w: title and body are required", api.ErrBadRequest)
	}
	if len(title) > maxTitleLength {
		return nil, fmt.Errorf("%w: title must be at most %d characters", api.ErrBadRequest, maxTitleLength)
	}

	question, err := s.repo.CreateQuestion(ctx, author.ID, title, body)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Question created",
		slog.String("question_id", question.ID.String()),
		slog.String("author_id", author.ID.String()))
	return question, nil
}

func (s *CommunityServiceImpl) ListQuestions(ctx context.Context, limit, offset int, authorID *uuid.UUID) ([]Question, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListQuestions(ctx, limit, offset, authorID)
}

func (s *CommunityServiceImpl) GetQuestion(ctx context.Context, questionID uuid.UUID) (*QuestionWithAnswers, error) {
	return s.repo.GetQuestion(ctx, questionID)
}

func (s *CommunityServiceImpl) AnswerQuestion(ctx context.Context, doctor *auth.User, questionID uuid.UUID, req CreateAnswerRequest) (*Answer, error) {
	// The route is gated, but the rule is re-checked here so no alternate
	// caller can attach medical advice from an unverified account.
	if !doctor.CanProvideMedicalAdvice() {
		return nil, fmt.Errorf("%w: only verified doctors can answer questions", api.ErrForbidden)
	}

	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, fmt.Errorf("%w: body is required", api.ErrBadRequest)
	}

	// Existence check keeps the FK violation from surfacing as a 500.
	if _, err := s.repo.GetQuestion(ctx, questionID); err != nil {
		return nil, err
	}

	answer, err := s.repo.CreateAnswer(ctx, questionID, doctor.ID, body)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Answer created",
		slog.String("answer_id", answer.ID.String()),
		slog.String("question_id", questionID.String()),
		slog.String("doctor_id", doctor.ID.String()))
	return answer, nil
}
