package community

import (
	"time"

	"github.com/google/uuid"
)

// Question is a community health question posted by any authenticated user.
type Question struct {
	ID         uuid.UUID `json:"id"`
	AuthorID   uuid.UUID `json:"authorId"`
	AuthorName string    `json:"authorName"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Answers    int       `json:"answers"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Answer is a reply by a verified doctor.
type Answer struct {
	ID         uuid.UUID `json:"id"`
	QuestionID uuid.UUID `json:"questionId"`
	DoctorID   uuid.UUID `json:"doctorId"`
	DoctorName string    `json:"doctorName"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"createdAt"`
}

// QuestionWithAnswers is the detail view.
type QuestionWithAnswers struct {
	Question
	AnswerList []Answer `json:"answerList"`
}

type CreateQuestionRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type CreateAnswerRequest struct {
	Body string `json:"body"`
}

const maxTitleLength = 200

// defaultPageSize caps unbounded listing requests.
const defaultPageSize = 20
const maxPageSize = 100
