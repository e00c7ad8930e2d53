package model

import (
	"time"

	"github.com/google/uuid"
)

// ViolationKind identifies the integrity signal that was observed.
type ViolationKind string

const (
	ViolationVisibilityHidden ViolationKind = "visibility-hidden"
	ViolationFullscreenExit   ViolationKind = "fullscreen-exit"
)

// Valid reports whether the kind is one the engine accepts.
func (k ViolationKind) Valid() bool {
	return k == ViolationVisibilityHidden || k == ViolationFullscreenExit
}

// IntegrityViolation records a single detected signal that the taker may
// have left the exam view. Violations are audit data: they never alter
// answers or question statuses.
type IntegrityViolation struct {
	ID           int64         `json:"id"`
	SubmissionID uuid.UUID     `json:"submission_id"`
	ExamID       uuid.UUID     `json:"exam_id"`
	TakerID      uuid.UUID     `json:"taker_id"`
	Kind         ViolationKind `json:"kind"`
	OccurredAt   time.Time     `json:"occurred_at"`
}
