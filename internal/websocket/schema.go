package websocket

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/hallpass-labs/examhall-backend/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionNavigate   Action = "navigate"
	ActionAnswer     Action = "answer"
	ActionFullscreen Action = "fullscreen"
	ActionViolation  Action = "violation"
	ActionSubmit     Action = "submit"
	ActionPing       Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// NavigateRequest moves the session cursor to a question index.
type NavigateRequest struct {
	Action Action `json:"action"`
	Index  int    `json:"index"`
}

// AnswerRequest records one answer. The value is a bare JSON primitive
// whose type must match the question type.
type AnswerRequest struct {
	Action     Action          `json:"action"`
	QuestionID uuid.UUID       `json:"question_id"`
	Value      json.RawMessage `json:"value"`
}

// FullscreenRequest reports the client's fullscreen flag.
type FullscreenRequest struct {
	Action Action `json:"action"`
	On     bool   `json:"on"`
}

// ViolationRequest reports an integrity signal.
type ViolationRequest struct {
	Action Action              `json:"action"`
	Kind   model.ViolationKind `json:"kind"`
}

// SubmitRequest finishes the attempt.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState     Event = "state"
	EventSaved     Event = "saved"
	EventWarning   Event = "warning"
	EventSubmitted Event = "submitted"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// StateResponse carries the full session snapshot, sent on connect and
// after navigation.
type StateResponse struct {
	Event Event                 `json:"event"`
	State model.SessionSnapshot `json:"state"`
}

// SavedResponse acknowledges one accepted answer.
type SavedResponse struct {
	Event      Event     `json:"event"`
	QuestionID uuid.UUID `json:"question_id"`
}

// WarningResponse notifies the taker after an integrity violation.
type WarningResponse struct {
	Event          Event               `json:"event"`
	Kind           model.ViolationKind `json:"kind"`
	ViolationCount int                 `json:"violation_count"`
}

// SubmittedResponse confirms the terminal submission with its score.
type SubmittedResponse struct {
	Event  Event                  `json:"event"`
	Status model.SubmissionStatus `json:"status"`
	Score  *float64               `json:"score,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
