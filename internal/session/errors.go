package session

import (
	"errors"
	"fmt"
)

// Engine operation errors.
var (
	// ErrInvalidExam means the exam cannot back a session (zero questions).
	ErrInvalidExam = errors.New("exam has no questions")

	// ErrInvalidSessionState means an operation was invoked outside its
	// valid lifecycle state. The session is left unchanged.
	ErrInvalidSessionState = errors.New("operation not valid in current session state")

	// ErrUnknownQuestion means the question ID does not belong to the
	// session's exam.
	ErrUnknownQuestion = errors.New("question does not belong to this exam")

	// ErrAnswerTypeMismatch means the answer's runtime kind does not match
	// the target question's declared type.
	ErrAnswerTypeMismatch = errors.New("answer kind does not match question type")
)

// PersistError wraps a failed submission handoff. The session returns to
// active with the draft intact; a later Submit retries the write.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist submission: %v", e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
