package service

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/hallpass-labs/examhall-backend/internal/model"
)

// GradingService scores finished submissions against the exam's answer
// key. Grading happens entirely in memory at submit time.
type GradingService struct {
	log zerolog.Logger
}

// NewGradingService creates a new GradingService.
func NewGradingService(log zerolog.Logger) *GradingService {
	return &GradingService{
		log: log.With().Str("component", "grading_service").Logger(),
	}
}

// Grade returns a points-weighted percentage in [0, 100], rounded to two
// decimals. Unanswered and wrong answers score zero; an exam with zero
// total points grades to zero.
func (s *GradingService) Grade(exam *model.Exam, answers model.AnswerSet) float64 {
	total := exam.TotalPoints()
	if total == 0 {
		return 0
	}

	earned := 0
	for i := range exam.Questions {
		q := &exam.Questions[i]
		given, ok := answers[q.ID]
		if !ok {
			continue
		}
		if given.Equal(q.CorrectAnswer) {
			earned += q.Points
		}
	}

	score := float64(earned) / float64(total) * 100
	return math.Round(score*100) / 100
}
