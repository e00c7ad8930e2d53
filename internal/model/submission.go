package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus enumerates submission lifecycle states. COMPLETED is
// terminal: no operation may mutate a completed submission.
type SubmissionStatus string

const (
	SubmissionStatusInProgress SubmissionStatus = "IN_PROGRESS"
	SubmissionStatusCompleted  SubmissionStatus = "COMPLETED"
	SubmissionStatusAbandoned  SubmissionStatus = "ABANDONED"
)

// ExamSubmission is the record of one taker's attempt at one exam.
type ExamSubmission struct {
	ID               uuid.UUID        `json:"id"`
	ExamID           uuid.UUID        `json:"exam_id"`
	TakerID          uuid.UUID        `json:"taker_id"`
	StartedAt        time.Time        `json:"started_at"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	Answers          AnswerSet        `json:"answers"`
	Score            *float64         `json:"score,omitempty"`
	TimeSpentSeconds *int             `json:"time_spent_seconds,omitempty"`
	Status           SubmissionStatus `json:"status"`
}

// Clone returns a deep copy, so a finalized snapshot can be handed to the
// persistence collaborator without sharing the answer map.
func (s *ExamSubmission) Clone() *ExamSubmission {
	out := *s
	out.Answers = s.Answers.Clone()
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	if s.Score != nil {
		v := *s.Score
		out.Score = &v
	}
	if s.TimeSpentSeconds != nil {
		v := *s.TimeSpentSeconds
		out.TimeSpentSeconds = &v
	}
	return &out
}

// QuestionStatus tracks per-question navigation state. Transitions are
// monotonic: unread < read < answered, never regressed.
type QuestionStatus string

const (
	QuestionStatusUnread   QuestionStatus = "unread"
	QuestionStatusRead     QuestionStatus = "read"
	QuestionStatusAnswered QuestionStatus = "answered"
)

// rank orders statuses for the monotonicity check.
func (s QuestionStatus) rank() int {
	switch s {
	case QuestionStatusRead:
		return 1
	case QuestionStatusAnswered:
		return 2
	}
	return 0
}

// AtLeast reports whether s is at or past the given status.
func (s QuestionStatus) AtLeast(other QuestionStatus) bool {
	return s.rank() >= other.rank()
}

// QuestionState pairs a question with its navigation status and the last
// answer given, mirrored from the submission for quick lookup.
type QuestionState struct {
	QuestionID uuid.UUID      `json:"question_id"`
	Status     QuestionStatus `json:"status"`
	Answer     *AnswerValue   `json:"answer,omitempty"`
}

// SessionSnapshot is the wire view of an in-progress attempt, served on
// page reload so the client can restore navigation and the countdown.
type SessionSnapshot struct {
	SubmissionID         uuid.UUID       `json:"submission_id"`
	ExamID               uuid.UUID       `json:"exam_id"`
	CurrentQuestionIndex int             `json:"current_question_index"`
	RemainingSeconds     int             `json:"remaining_seconds"`
	Questions            []QuestionState `json:"questions"`
	Fullscreen           bool            `json:"fullscreen"`
	ViolationCount       int             `json:"violation_count"`
	Status               SubmissionStatus `json:"status"`
}
