package model

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// QuestionType enumerates the supported question formats.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeTrueFalse      QuestionType = "TRUE_FALSE"
	QuestionTypeNumeric        QuestionType = "NUMERIC"
)

// Question represents a single exam question.
type Question struct {
	ID            uuid.UUID    `json:"id"`
	ExamID        uuid.UUID    `json:"exam_id"`
	QuestionType  QuestionType `json:"question_type"`
	QuestionText  string       `json:"question_text"`
	ImageURL      *string      `json:"image_url,omitempty"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer AnswerValue  `json:"correct_answer"`
	Unit          *string      `json:"unit,omitempty"`
	Points        int          `json:"points"`
	OrderNum      int          `json:"order_num"`
}

// Validate enforces the type-dependent invariants: options are present
// iff the question is multiple choice, the correct answer's kind matches
// the question type (and indexes a real option), units belong to numeric
// questions only, and points is at least 1.
func (q *Question) Validate() error {
	if q.QuestionText == "" {
		return errors.New("question text is required")
	}
	if q.Points < 1 {
		return errors.New("points must be at least 1")
	}

	switch q.QuestionType {
	case QuestionTypeMultipleChoice:
		if len(q.Options) == 0 {
			return errors.New("multiple choice question requires options")
		}
	case QuestionTypeTrueFalse, QuestionTypeNumeric:
		if len(q.Options) > 0 {
			return fmt.Errorf("%s question must not have options", q.QuestionType)
		}
	default:
		return fmt.Errorf("unknown question type %q", q.QuestionType)
	}

	if q.Unit != nil && q.QuestionType != QuestionTypeNumeric {
		return errors.New("unit is only valid for numeric questions")
	}

	if !q.CorrectAnswer.MatchesType(q.QuestionType) {
		return fmt.Errorf("correct answer kind %q does not match question type %q",
			q.CorrectAnswer.Kind(), q.QuestionType)
	}
	if q.QuestionType == QuestionTypeMultipleChoice {
		idx, err := strconv.Atoi(q.CorrectAnswer.Choice())
		if err != nil || idx < 0 || idx >= len(q.Options) {
			return fmt.Errorf("correct option index %q is out of range", q.CorrectAnswer.Choice())
		}
	}

	return nil
}

// QuestionInput is the payload for creating or replacing a question.
type QuestionInput struct {
	QuestionType  string      `json:"question_type" binding:"required,oneof=MULTIPLE_CHOICE TRUE_FALSE NUMERIC"`
	QuestionText  string      `json:"question_text" binding:"required,min=1,max=2000"`
	ImageURL      *string     `json:"image_url" binding:"omitempty,max=512"`
	Options       []string    `json:"options" binding:"omitempty,dive,min=1,max=500"`
	CorrectAnswer AnswerValue `json:"correct_answer"`
	Unit          *string     `json:"unit" binding:"omitempty,max=32"`
	Points        int         `json:"points" binding:"required,min=1,max=100"`
	OrderNum      int         `json:"order_num" binding:"min=0"`
}

// ToQuestion converts the input into a Question owned by the given exam.
func (in *QuestionInput) ToQuestion(examID uuid.UUID) Question {
	return Question{
		ID:            uuid.New(),
		ExamID:        examID,
		QuestionType:  QuestionType(in.QuestionType),
		QuestionText:  in.QuestionText,
		ImageURL:      in.ImageURL,
		Options:       in.Options,
		CorrectAnswer: in.CorrectAnswer,
		Unit:          in.Unit,
		Points:        in.Points,
		OrderNum:      in.OrderNum,
	}
}

// ReplaceQuestionsRequest is the payload for bulk replacing an exam's questions.
type ReplaceQuestionsRequest struct {
	Questions []QuestionInput `json:"questions" binding:"dive"`
}

// QuestionForTaker is a question stripped of the correct answer, sent to
// students taking the exam.
type QuestionForTaker struct {
	ID           uuid.UUID    `json:"id"`
	QuestionType QuestionType `json:"question_type"`
	QuestionText string       `json:"question_text"`
	ImageURL     *string      `json:"image_url,omitempty"`
	Options      []string     `json:"options,omitempty"`
	Unit         *string      `json:"unit,omitempty"`
	Points       int          `json:"points"`
	OrderNum     int          `json:"order_num"`
}

// ForTaker strips the grading fields.
func (q *Question) ForTaker() QuestionForTaker {
	return QuestionForTaker{
		ID:           q.ID,
		QuestionType: q.QuestionType,
		QuestionText: q.QuestionText,
		ImageURL:     q.ImageURL,
		Options:      q.Options,
		Unit:         q.Unit,
		Points:       q.Points,
		OrderNum:     q.OrderNum,
	}
}
