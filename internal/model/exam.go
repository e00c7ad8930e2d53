package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// Exam represents an exam entity. Questions are ordered by OrderNum and
// immutable from a session's point of view once the exam is published.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Subject         string     `json:"subject"`
	AuthorID        uuid.UUID  `json:"author_id"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          ExamStatus `json:"status"`
	Questions       []Question `json:"questions,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Duration returns the planned exam length.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// QuestionByID looks up a question by its ID. Returns nil if absent.
func (e *Exam) QuestionByID(id uuid.UUID) *Question {
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			return &e.Questions[i]
		}
	}
	return nil
}

// TotalPoints sums the point weight of every question.
func (e *Exam) TotalPoints() int {
	total := 0
	for i := range e.Questions {
		total += e.Questions[i].Points
	}
	return total
}

// Validate checks the exam and all of its questions.
func (e *Exam) Validate() error {
	if e.Title == "" {
		return errors.New("exam title is required")
	}
	if e.DurationMinutes < 1 {
		return errors.New("exam duration must be at least one minute")
	}
	for i := range e.Questions {
		if err := e.Questions[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title           string `json:"title" binding:"required,min=3,max=255"`
	Description     string `json:"description" binding:"omitempty,max=2000"`
	Subject         string `json:"subject" binding:"required,min=1,max=100"`
	DurationMinutes int    `json:"duration_minutes" binding:"required,min=1,max=480"`
}

// UpdateExamRequest is the payload for updating a draft exam.
type UpdateExamRequest struct {
	Title           string `json:"title" binding:"omitempty,min=3,max=255"`
	Description     *string `json:"description" binding:"omitempty,max=2000"`
	Subject         string `json:"subject" binding:"omitempty,min=1,max=100"`
	DurationMinutes int    `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
}

// ExamPaper is the Redis-cached payload served to takers: the exam header
// plus questions with grading fields stripped.
type ExamPaper struct {
	ExamID          uuid.UUID          `json:"exam_id"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	Subject         string             `json:"subject"`
	DurationMinutes int                `json:"duration_minutes"`
	Questions       []QuestionForTaker `json:"questions"`
}

// Paper builds the taker-facing payload.
func (e *Exam) Paper() ExamPaper {
	qs := make([]QuestionForTaker, 0, len(e.Questions))
	for i := range e.Questions {
		qs = append(qs, e.Questions[i].ForTaker())
	}
	return ExamPaper{
		ExamID:          e.ID,
		Title:           e.Title,
		Description:     e.Description,
		Subject:         e.Subject,
		DurationMinutes: e.DurationMinutes,
		Questions:       qs,
	}
}
