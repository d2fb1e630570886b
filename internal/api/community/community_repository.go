package community

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medicalq/backend/internal/api"
	"github.com/medicalq/backend/internal/api/auth"
)

var _ CommunityRepo = (*PostgresCommunityRepo)(nil)

// CommunityRepo is the question/answer store contract.
type CommunityRepo interface {
	CreateQuestion(ctx context.Context, authorID uuid.UUID, title, body string) (*Question, error)
	// ListQuestions returns newest-first; authorID narrows to one author.
	ListQuestions(ctx context.Context, limit, offset int, authorID *uuid.UUID) ([]Question, error)
	GetQuestion(ctx context.Context, questionID uuid.UUID) (*QuestionWithAnswers, error)
	CreateAnswer(ctx context.Context, questionID, doctorID uuid.UUID, body string) (*Answer, error)
}

type PostgresCommunityRepo struct {
	logger *slog.Logger
	db     auth.PGXPool
}

func NewPostgresCommunityRepo(db auth.PGXPool, logger *slog.Logger) *PostgresCommunityRepo {
	return &PostgresCommunityRepo{
		logger: logger,
		db:     db,
	}
}

func (r *PostgresCommunityRepo) CreateQuestion(ctx context.Context, authorID uuid.UUID, title, body string) (*Question, error) {
	query := `
		WITH inserted AS (
			INSERT INTO questions (author_id, title, body)
			VALUES ($1, $2, $3)
			RETURNING id, author_id, title, body, created_at, updated_at
		)
		SELECT i.id, i.author_id, u.name, i.title, i.body, i.created_at, i.updated_at
		FROM inserted i JOIN users u ON u.id = i.author_id`

	var q Question
	err := r.db.QueryRow(ctx, query, authorID, title, body).Scan(
		&q.ID, &q.AuthorID, &q.AuthorName, &q.Title, &q.Body, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	return &q, nil
}

func (r *PostgresCommunityRepo) ListQuestions(ctx context.Context, limit, offset int, authorID *uuid.UUID) ([]Question, error) {
	query := `
		SELECT q.id, q.author_id, u.name, q.title, q.body,
		       (SELECT count(*) FROM answers a WHERE a.question_id = q.id) AS answers,
		       q.created_at, q.updated_at
		FROM questions q
		JOIN users u ON u.id = q.author_id
		WHERE ($3::uuid IS NULL OR q.author_id = $3)
		ORDER BY q.created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset, authorID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	questions := make([]Question, 0, limit)
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.AuthorID, &q.AuthorName, &q.Title, &q.Body, &q.Answers, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list questions: scan failed: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list questions: rows failed: %w", err)
	}
	return questions, nil
}

func (r *PostgresCommunityRepo) GetQuestion(ctx context.Context, questionID uuid.UUID) (*QuestionWithAnswers, error) {
	query := `
		SELECT q.id, q.author_id, u.name, q.title, q.body, q.created_at, q.updated_at
		FROM questions q
		JOIN users u ON u.id = q.author_id
		WHERE q.id = $1`

	var qa QuestionWithAnswers
	err := r.db.QueryRow(ctx, query, questionID).Scan(
		&qa.ID, &qa.AuthorID, &qa.AuthorName, &qa.Title, &qa.Body, &qa.CreatedAt, &qa.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no question with id %s", api.ErrNotFound, questionID)
		}
		return nil, fmt.Errorf("get question: %w", err)
	}

	answerQuery := `
		SELECT a.id, a.question_id, a.doctor_id, u.name, a.body, a.created_at
		FROM answers a
		JOIN users u ON u.id = a.doctor_id
		WHERE a.question_id = $1
		ORDER BY a.created_at ASC`

	rows, err := r.db.Query(ctx, answerQuery, questionID)
	if err != nil {
		return nil, fmt.Errorf("get question: answers query failed: %w", err)
	}
	defer rows.Close()

	qa.AnswerList = []Answer{}
	for rows.Next() {
		var a Answer
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.DoctorID, &a.DoctorName, &a.Body, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("get question: answer scan failed: %w", err)
		}
		qa.AnswerList = append(qa.AnswerList, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get question: answer rows failed: %w", err)
	}
	qa.Answers = len(qa.AnswerList)
	return &qa, nil
}

func (r *PostgresCommunityRepo) CreateAnswer(ctx context.Context, questionID, doctorID uuid.UUID, body string) (*Answer, error) {
	query := `
		WITH inserted AS (
			INSERT INTO answers (question_id, doctor_id, body)
			VALUES ($1, $2, $3)
			RETURNING id, question_id, doctor_id, body, created_at
		)
		SELECT i.id, i.question_id, i.doctor_id, u.name, i.body, i.created_at
		FROM inserted i JOIN users u ON u.id = i.doctor_id`

	var a Answer
	err := r.db.QueryRow(ctx, query, questionID, doctorID, body).Scan(
		&a.ID, &a.QuestionID, &a.DoctorID, &a.DoctorName, &a.Body, &a.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	return &a, nil
}
