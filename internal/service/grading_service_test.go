package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hallpass-labs/examhall-backend/internal/model"
)

func gradingExam() *model.Exam {
	return &model.Exam{
		ID: uuid.New(),
		Questions: []model.Question{
			{
				ID:            uuid.New(),
				QuestionType:  model.QuestionTypeMultipleChoice,
				Options:       []string{"Joule", "Newton", "Watt"},
				CorrectAnswer: model.ChoiceAnswer("1"),
				Points:        2,
			},
			{
				ID:            uuid.New(),
				QuestionType:  model.QuestionTypeTrueFalse,
				CorrectAnswer: model.BoolAnswer(true),
				Points:        1,
			},
			{
				ID:            uuid.New(),
				QuestionType:  model.QuestionTypeNumeric,
				CorrectAnswer: model.NumberAnswer(9.81),
				Points:        2,
			},
		},
	}
}

func TestGradeWeightsByPoints(t *testing.T) {
	g := NewGradingService(zerolog.Nop())
	exam := gradingExam()

	answers := model.AnswerSet{
		exam.Questions[0].ID: model.ChoiceAnswer("1"), // 2 points
		exam.Questions[1].ID: model.BoolAnswer(false), // wrong
		exam.Questions[2].ID: model.NumberAnswer(9.81), // 2 points
	}

	got := g.Grade(exam, answers)
	want := 80.0 // 4 of 5 points
	if got != want {
		t.Fatalf("Grade() = %v, want %v", got, want)
	}
}

func TestGradeUnansweredScoresZero(t *testing.T) {
	g := NewGradingService(zerolog.Nop())
	exam := gradingExam()

	if got := g.Grade(exam, model.AnswerSet{}); got != 0 {
		t.Fatalf("Grade() with no answers = %v, want 0", got)
	}
}

func TestGradePerfectScore(t *testing.T) {
	g := NewGradingService(zerolog.Nop())
	exam := gradingExam()

	answers := model.AnswerSet{
		exam.Questions[0].ID: model.ChoiceAnswer("1"),
		exam.Questions[1].ID: model.BoolAnswer(true),
		exam.Questions[2].ID: model.NumberAnswer(9.81),
	}

	if got := g.Grade(exam, answers); got != 100 {
		t.Fatalf("Grade() = %v, want 100", got)
	}
}

func TestGradeRoundsToTwoDecimals(t *testing.T) {
	g := NewGradingService(zerolog.Nop())
	exam := &model.Exam{
		ID: uuid.New(),
		Questions: []model.Question{
			{ID: uuid.New(), QuestionType: model.QuestionTypeTrueFalse, CorrectAnswer: model.BoolAnswer(true), Points: 1},
			{ID: uuid.New(), QuestionType: model.QuestionTypeTrueFalse, CorrectAnswer: model.BoolAnswer(true), Points: 1},
			{ID: uuid.New(), QuestionType: model.QuestionTypeTrueFalse, CorrectAnswer: model.BoolAnswer(true), Points: 1},
		},
	}

	answers := model.AnswerSet{
		exam.Questions[0].ID: model.BoolAnswer(true),
	}

	// 1/3 of the points: 33.333... rounds to 33.33.
	if got := g.Grade(exam, answers); got != 33.33 {
		t.Fatalf("Grade() = %v, want 33.33", got)
	}
}

func TestGradeZeroTotalPoints(t *testing.T) {
	g := NewGradingService(zerolog.Nop())
	exam := &model.Exam{ID: uuid.New()}

	if got := g.Grade(exam, model.AnswerSet{}); got != 0 {
		t.Fatalf("Grade() with empty exam = %v, want 0", got)
	}
}

func TestGradeIgnoresTypeMismatchedAnswers(t *testing.T) {
	g := NewGradingService(zerolog.Nop())
	exam := gradingExam()

	// A stored answer of the wrong kind never equals the key.
	answers := model.AnswerSet{
		exam.Questions[1].ID: model.NumberAnswer(1),
	}

	if got := g.Grade(exam, answers); got != 0 {
		t.Fatalf("Grade() = %v, want 0", got)
	}
}
