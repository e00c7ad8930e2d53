package model

import (
	"testing"

	"github.com/google/uuid"
)

func validMCQuestion() Question {
	return Question{
		ID:            uuid.New(),
		QuestionType:  QuestionTypeMultipleChoice,
		QuestionText:  "Pick one",
		Options:       []string{"a", "b", "c"},
		CorrectAnswer: ChoiceAnswer("1"),
		Points:        2,
	}
}

func TestQuestionValidate(t *testing.T) {
	unit := "kg"

	tests := []struct {
		name    string
		mutate  func(*Question)
		wantErr bool
	}{
		{"valid multiple choice", func(q *Question) {}, false},
		{"valid true/false", func(q *Question) {
			q.QuestionType = QuestionTypeTrueFalse
			q.Options = nil
			q.CorrectAnswer = BoolAnswer(false)
		}, false},
		{"valid numeric with unit", func(q *Question) {
			q.QuestionType = QuestionTypeNumeric
			q.Options = nil
			q.CorrectAnswer = NumberAnswer(3.5)
			q.Unit = &unit
		}, false},
		{"empty text", func(q *Question) { q.QuestionText = "" }, true},
		{"zero points", func(q *Question) { q.Points = 0 }, true},
		{"multiple choice without options", func(q *Question) { q.Options = nil }, true},
		{"true/false with options", func(q *Question) {
			q.QuestionType = QuestionTypeTrueFalse
			q.CorrectAnswer = BoolAnswer(true)
		}, true},
		{"answer kind mismatch", func(q *Question) { q.CorrectAnswer = BoolAnswer(true) }, true},
		{"correct option out of range", func(q *Question) { q.CorrectAnswer = ChoiceAnswer("7") }, true},
		{"correct option not a number", func(q *Question) { q.CorrectAnswer = ChoiceAnswer("b") }, true},
		{"unit on non-numeric", func(q *Question) { q.Unit = &unit }, true},
		{"unknown type", func(q *Question) {
			q.QuestionType = "ESSAY"
			q.Options = nil
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := validMCQuestion()
			tt.mutate(&q)
			err := q.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestQuestionForTakerStripsAnswer(t *testing.T) {
	q := validMCQuestion()
	paper := q.ForTaker()
	if paper.ID != q.ID || paper.QuestionText != q.QuestionText {
		t.Error("identity fields lost")
	}
	if len(paper.Options) != 3 || paper.Points != 2 {
		t.Error("presentation fields lost")
	}
}

func TestExamHelpers(t *testing.T) {
	examID := uuid.New()
	exam := Exam{
		ID:              examID,
		Title:           "Midterm",
		DurationMinutes: 30,
		Questions: []Question{
			validMCQuestion(),
			{
				ID:            uuid.New(),
				QuestionType:  QuestionTypeNumeric,
				QuestionText:  "Count",
				CorrectAnswer: NumberAnswer(4),
				Points:        3,
			},
		},
	}

	if got := exam.TotalPoints(); got != 5 {
		t.Errorf("TotalPoints = %d, want 5", got)
	}
	if q := exam.QuestionByID(exam.Questions[1].ID); q == nil || q.Points != 3 {
		t.Error("QuestionByID lookup failed")
	}
	if q := exam.QuestionByID(uuid.New()); q != nil {
		t.Error("QuestionByID returned foreign question")
	}
	if err := exam.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	paper := exam.Paper()
	if len(paper.Questions) != 2 || paper.DurationMinutes != 30 {
		t.Errorf("paper incomplete: %+v", paper)
	}
}
