package session

import (
	"sync"

	"github.com/google/uuid"
)

// attemptKey identifies one taker's attempt at one exam.
type attemptKey struct {
	examID  uuid.UUID
	takerID uuid.UUID
}

// Registry tracks the live engines, one per in-progress attempt. Lookup
// by submission ID serves the WebSocket stream; lookup by exam and taker
// serves reconnects after a page reload. Terminal engines are evicted via
// the engine's OnTerminal hook.
type Registry struct {
	mu           sync.RWMutex
	bySubmission map[uuid.UUID]*Engine
	byAttempt    map[attemptKey]uuid.UUID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		bySubmission: make(map[uuid.UUID]*Engine),
		byAttempt:    make(map[attemptKey]uuid.UUID),
	}
}

// Put registers a started engine under its submission ID and attempt key.
func (r *Registry) Put(examID, takerID uuid.UUID, e *Engine) {
	subID := e.SubmissionID()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySubmission[subID] = e
	r.byAttempt[attemptKey{examID: examID, takerID: takerID}] = subID
}

// BySubmission returns the engine for a submission ID, or nil.
func (r *Registry) BySubmission(subID uuid.UUID) *Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bySubmission[subID]
}

// ByAttempt returns the engine for a taker's attempt at an exam, or nil.
func (r *Registry) ByAttempt(examID, takerID uuid.UUID) *Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subID, ok := r.byAttempt[attemptKey{examID: examID, takerID: takerID}]
	if !ok {
		return nil
	}
	return r.bySubmission[subID]
}

// Remove evicts an engine. Safe to call for unknown IDs.
func (r *Registry) Remove(subID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.bySubmission[subID]
	if !ok {
		return
	}
	delete(r.bySubmission, subID)
	exam := e.Exam()
	for key, id := range r.byAttempt {
		if id == subID && key.examID == exam.ID {
			delete(r.byAttempt, key)
			break
		}
	}
}

// Len reports the number of live engines.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySubmission)
}
