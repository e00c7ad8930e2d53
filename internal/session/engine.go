package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hallpass-labs/examhall-backend/internal/model"
)

// State enumerates the session lifecycle.
type State string

const (
	StateLoading    State = "loading"
	StateActive     State = "active"
	StateSubmitting State = "submitting"
	StateCompleted  State = "completed"
	StateAbandoned  State = "abandoned"
)

// Terminal reports whether the state ends the session.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAbandoned
}

// SubmissionPersister is the downstream persistence collaborator. It is
// invoked with a finalized (status COMPLETED or ABANDONED) submission
// snapshot; the engine never retains the snapshot after a successful call.
type SubmissionPersister interface {
	PersistSubmission(ctx context.Context, sub *model.ExamSubmission) error
}

// ViolationReporter receives integrity violations fire-and-forget.
type ViolationReporter interface {
	ReportIntegrityViolation(submissionID, examID, takerID uuid.UUID, kind model.ViolationKind, at time.Time)
}

// AnswerSink receives every accepted answer so it can be snapshotted
// outside the session (crash recovery). Best effort, non-blocking.
type AnswerSink interface {
	SaveAnswer(submissionID, examID, takerID, questionID uuid.UUID, value model.AnswerValue)
}

// Options tunes engine behavior. The zero value gives a one-second tick,
// warn-only violations and wall-clock time.
type Options struct {
	// TickInterval is the countdown granularity. Defaults to one second.
	TickInterval time.Duration

	// MaxViolations, when greater than zero, force-submits the session
	// once the violation count reaches it. Zero keeps violations
	// informational, matching the default warn-only policy.
	MaxViolations int

	// AutoSubmitRetries is how many times a time-expiry auto-submission
	// is retried after a persist failure. Defaults to 3.
	AutoSubmitRetries int

	// Now overrides the time source. Defaults to time.Now.
	Now func() time.Time

	// Sink, if set, receives accepted answers for snapshotting.
	Sink AnswerSink

	// OnTerminal, if set, fires after the session reaches a terminal
	// state. Used by the registry to evict finished engines.
	OnTerminal func(e *Engine)

	Logger zerolog.Logger
}

type violation struct {
	kind model.ViolationKind
	at   time.Time
}

// Engine is the exam-session state machine. It exclusively owns the
// volatile session state and the in-progress submission draft for one
// attempt; every transition is serialized behind one mutex so no two
// operations interleave. The countdown timer is the only concurrently
// scheduled activity and it funnels through the same path.
type Engine struct {
	mu sync.Mutex

	exam  *model.Exam
	sub   *model.ExamSubmission
	state State

	current    int
	remaining  int // whole seconds, never negative
	fullscreen bool
	qstates    []model.QuestionState
	qindex     map[uuid.UUID]int

	violations []violation
	expired    bool // time-expiry auto-submit already triggered

	timerStop chan struct{}

	persister SubmissionPersister
	reporter  ViolationReporter
	opts      Options
	now       func() time.Time
	log       zerolog.Logger
}

// New builds an engine for one attempt. The exam reference is borrowed
// read-only for the session's lifetime. Fails with ErrInvalidExam if the
// exam has zero questions. The session starts in the loading state; call
// Start to begin the attempt.
func New(exam *model.Exam, persister SubmissionPersister, reporter ViolationReporter, opts Options) (*Engine, error) {
	if exam == nil || len(exam.Questions) == 0 {
		return nil, ErrInvalidExam
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.AutoSubmitRetries <= 0 {
		opts.AutoSubmitRetries = 3
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		exam:      exam,
		state:     StateLoading,
		persister: persister,
		reporter:  reporter,
		opts:      opts,
		now:       now,
		log:       opts.Logger.With().Str("component", "session_engine").Str("exam_id", exam.ID.String()).Logger(),
	}, nil
}

// Start transitions loading → active: creates the in-progress submission,
// initializes the countdown to the full planned duration and one unread
// QuestionState per question, and starts the timer.
func (e *Engine) Start(takerID uuid.UUID) (*model.ExamSubmission, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateLoading {
		return nil, ErrInvalidSessionState
	}

	e.sub = &model.ExamSubmission{
		ID:        uuid.New(),
		ExamID:    e.exam.ID,
		TakerID:   takerID,
		StartedAt: e.now(),
		Answers:   make(model.AnswerSet),
		Status:    model.SubmissionStatusInProgress,
	}

	e.remaining = e.plannedSeconds()
	e.qstates = make([]model.QuestionState, len(e.exam.Questions))
	e.qindex = make(map[uuid.UUID]int, len(e.exam.Questions))
	for i := range e.exam.Questions {
		e.qstates[i] = model.QuestionState{
			QuestionID: e.exam.Questions[i].ID,
			Status:     model.QuestionStatusUnread,
		}
		e.qindex[e.exam.Questions[i].ID] = i
	}

	e.state = StateActive
	e.startTimerLocked()

	e.log.Info().
		Str("submission_id", e.sub.ID.String()).
		Str("taker_id", takerID.String()).
		Int("questions", len(e.exam.Questions)).
		Int("remaining_s", e.remaining).
		Msg("Session started")

	return e.sub.Clone(), nil
}

// Resume transitions loading → active with a previously persisted
// in-progress submission, restoring its answers and the remaining time.
// Questions with a saved answer come back as answered, the rest as
// unread. The caller is responsible for not resuming expired attempts.
func (e *Engine) Resume(sub *model.ExamSubmission, remainingSeconds int) (*model.ExamSubmission, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateLoading {
		return nil, ErrInvalidSessionState
	}
	if sub == nil || sub.Status != model.SubmissionStatusInProgress || sub.ExamID != e.exam.ID {
		return nil, ErrInvalidSessionState
	}
	if remainingSeconds < 0 {
		remainingSeconds = 0
	}

	e.sub = sub.Clone()
	if e.sub.Answers == nil {
		e.sub.Answers = make(model.AnswerSet)
	}

	e.remaining = remainingSeconds
	e.qstates = make([]model.QuestionState, len(e.exam.Questions))
	e.qindex = make(map[uuid.UUID]int, len(e.exam.Questions))
	for i := range e.exam.Questions {
		qid := e.exam.Questions[i].ID
		e.qstates[i] = model.QuestionState{
			QuestionID: qid,
			Status:     model.QuestionStatusUnread,
		}
		e.qindex[qid] = i
		if saved, ok := e.sub.Answers[qid]; ok {
			v := saved
			e.qstates[i].Status = model.QuestionStatusAnswered
			e.qstates[i].Answer = &v
		}
	}

	e.state = StateActive
	e.startTimerLocked()

	e.log.Info().
		Str("submission_id", e.sub.ID.String()).
		Int("answers", len(e.sub.Answers)).
		Int("remaining_s", e.remaining).
		Msg("Session resumed")

	return e.sub.Clone(), nil
}

// NavigateTo moves the cursor to the given question index. Out-of-range
// requests are silently ignored: navigation is driven by UI affordances
// that already clamp the range, so tolerance beats throwing here. Moving
// onto an unread question promotes it to read; statuses never regress.
func (e *Engine) NavigateTo(index int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateActive {
		return
	}
	if index < 0 || index >= len(e.qstates) {
		return
	}

	e.current = index
	if e.qstates[index].Status == model.QuestionStatusUnread {
		e.qstates[index].Status = model.QuestionStatusRead
	}
}

// RecordAnswer replaces any prior answer for the question (last write
// wins, at most one entry per question) and promotes its status to
// answered. Re-answering with an identical value is observably a no-op.
// Returns ErrInvalidSessionState outside active, ErrUnknownQuestion for a
// foreign question ID, and ErrAnswerTypeMismatch when the value's kind
// does not match the question's declared type.
func (e *Engine) RecordAnswer(questionID uuid.UUID, value model.AnswerValue) error {
	e.mu.Lock()

	if e.state != StateActive {
		e.mu.Unlock()
		return ErrInvalidSessionState
	}

	idx, ok := e.qindex[questionID]
	if !ok {
		e.mu.Unlock()
		return ErrUnknownQuestion
	}
	if !value.MatchesType(e.exam.Questions[idx].QuestionType) {
		e.mu.Unlock()
		return ErrAnswerTypeMismatch
	}

	if prev, exists := e.sub.Answers[questionID]; exists && prev.Equal(value) {
		e.mu.Unlock()
		return nil
	}

	e.sub.Answers[questionID] = value
	e.qstates[idx].Status = model.QuestionStatusAnswered
	v := value
	e.qstates[idx].Answer = &v

	subID, examID, takerID := e.sub.ID, e.sub.ExamID, e.sub.TakerID
	e.mu.Unlock()

	if e.opts.Sink != nil {
		e.opts.Sink.SaveAnswer(subID, examID, takerID, questionID, value)
	}
	return nil
}

// SetFullscreen records the client's fullscreen flag.
func (e *Engine) SetFullscreen(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateActive {
		e.fullscreen = on
	}
}

// ReportViolation records one integrity signal (count + timestamp) and
// forwards it to the reporter. Violations never alter answers or question
// statuses. When Options.MaxViolations is set and the count reaches it,
// the session is force-submitted. Outside active the signal is dropped.
func (e *Engine) ReportViolation(ctx context.Context, kind model.ViolationKind) (int, error) {
	e.mu.Lock()
	if e.state != StateActive {
		count := len(e.violations)
		e.mu.Unlock()
		return count, nil
	}

	at := e.now()
	e.violations = append(e.violations, violation{kind: kind, at: at})
	count := len(e.violations)
	subID, examID, takerID := e.sub.ID, e.sub.ExamID, e.sub.TakerID
	forced := e.opts.MaxViolations > 0 && count >= e.opts.MaxViolations
	e.mu.Unlock()

	if e.reporter != nil {
		e.reporter.ReportIntegrityViolation(subID, examID, takerID, kind, at)
	}

	e.log.Warn().
		Str("submission_id", subID.String()).
		Str("kind", string(kind)).
		Int("count", count).
		Msg("Integrity violation recorded")

	if forced {
		return count, e.Submit(ctx)
	}
	return count, nil
}

// Submit finalizes the attempt exactly once. The session enters the
// transient submitting state, the timer and monitor stop, and a completed
// snapshot is handed to the persister outside the lock. On failure the
// session returns to active with the draft untouched and the call is
// retryable; on success the session is terminal and the submission
// immutable. Calling Submit outside active returns ErrInvalidSessionState
// with no effect.
func (e *Engine) Submit(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateActive {
		e.mu.Unlock()
		return ErrInvalidSessionState
	}
	e.state = StateSubmitting
	e.stopTimerLocked()

	final := e.sub.Clone()
	completedAt := e.now()
	final.CompletedAt = &completedAt
	spent := e.plannedSeconds() - e.remaining
	final.TimeSpentSeconds = &spent
	final.Status = model.SubmissionStatusCompleted
	e.mu.Unlock()

	if err := e.persister.PersistSubmission(ctx, final); err != nil {
		e.mu.Lock()
		e.state = StateActive
		if e.remaining > 0 {
			e.startTimerLocked()
		}
		e.mu.Unlock()

		e.log.Error().Err(err).
			Str("submission_id", final.ID.String()).
			Msg("Submission persist failed, session back to active")
		return &PersistError{Err: err}
	}

	e.mu.Lock()
	e.sub = final
	e.state = StateCompleted
	e.mu.Unlock()

	e.log.Info().
		Str("submission_id", final.ID.String()).
		Int("answers", len(final.Answers)).
		Int("time_spent_s", spent).
		Msg("Session completed")

	if e.opts.OnTerminal != nil {
		e.opts.OnTerminal(e)
	}
	return nil
}

// Abandon ends the session without completing it. The timer and monitor
// stop synchronously before the terminal transition; the abandoned status
// is persisted best effort.
func (e *Engine) Abandon(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateActive {
		e.mu.Unlock()
		return ErrInvalidSessionState
	}
	e.state = StateAbandoned
	e.stopTimerLocked()

	final := e.sub.Clone()
	final.Status = model.SubmissionStatusAbandoned
	e.sub = final
	e.mu.Unlock()

	if err := e.persister.PersistSubmission(ctx, final.Clone()); err != nil {
		e.log.Error().Err(err).
			Str("submission_id", final.ID.String()).
			Msg("Abandon persist failed")
	}

	e.log.Info().Str("submission_id", final.ID.String()).Msg("Session abandoned")

	if e.opts.OnTerminal != nil {
		e.opts.OnTerminal(e)
	}
	return nil
}

// Snapshot returns a consistent read view of the session for clients.
func (e *Engine) Snapshot() model.SessionSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sub == nil {
		return model.SessionSnapshot{ExamID: e.exam.ID}
	}

	questions := make([]model.QuestionState, len(e.qstates))
	copy(questions, e.qstates)

	return model.SessionSnapshot{
		SubmissionID:         e.sub.ID,
		ExamID:               e.exam.ID,
		CurrentQuestionIndex: e.current,
		RemainingSeconds:     e.remaining,
		Questions:            questions,
		Fullscreen:           e.fullscreen,
		ViolationCount:       len(e.violations),
		Status:               e.sub.Status,
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SubmissionID returns the attempt's submission ID.
func (e *Engine) SubmissionID() uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sub == nil {
		return uuid.Nil
	}
	return e.sub.ID
}

// Exam returns the borrowed read-only exam reference.
func (e *Engine) Exam() *model.Exam { return e.exam }

// Submission returns a copy of the current submission, or nil before
// Start. After a terminal transition this is the immutable final record.
func (e *Engine) Submission() *model.ExamSubmission {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sub == nil {
		return nil
	}
	return e.sub.Clone()
}

// TakerID returns the attempt owner, or uuid.Nil before Start.
func (e *Engine) TakerID() uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sub == nil {
		return uuid.Nil
	}
	return e.sub.TakerID
}

func (e *Engine) plannedSeconds() int {
	return e.exam.DurationMinutes * 60
}

// ─── Countdown timer ────────────────────────────────────────────────

// startTimerLocked launches the ticking goroutine. Caller holds e.mu.
func (e *Engine) startTimerLocked() {
	stop := make(chan struct{})
	e.timerStop = stop
	go e.runTimer(stop)
}

// stopTimerLocked cancels the ticking goroutine. Caller holds e.mu.
// Safe to call when no timer is running. A tick racing with the stop is
// harmless: tick re-checks the state under the lock before decrementing,
// so no decrement is observable after the session leaves active.
func (e *Engine) stopTimerLocked() {
	if e.timerStop != nil {
		close(e.timerStop)
		e.timerStop = nil
	}
}

func (e *Engine) runTimer(stop chan struct{}) {
	ticker := time.NewTicker(e.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if e.tick() {
				e.autoSubmit()
				return
			}
		}
	}
}

// tick decrements the countdown by one second while active. Returns true
// exactly once, when the decrement reaches zero, to trigger the
// time-expiry auto-submission. Remaining time never goes below zero.
func (e *Engine) tick() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateActive {
		return false
	}
	if e.remaining > 0 {
		e.remaining--
	}
	if e.remaining == 0 && !e.expired {
		e.expired = true
		return true
	}
	return false
}

// autoSubmit performs the time-expiry submission. The taker can no longer
// extend time, so persist failures are retried before being surfaced.
func (e *Engine) autoSubmit() {
	ctx := context.Background()
	var err error
	for attempt := 1; attempt <= e.opts.AutoSubmitRetries; attempt++ {
		if err = e.Submit(ctx); err == nil {
			return
		}
		if err == ErrInvalidSessionState {
			return // someone else submitted first
		}
		e.log.Warn().Err(err).Int("attempt", attempt).Msg("Auto-submit retry")
		time.Sleep(time.Duration(attempt) * e.opts.TickInterval)
	}
	e.log.Error().Err(err).
		Str("submission_id", e.SubmissionID().String()).
		Msg("CRITICAL: time-expiry auto-submit exhausted retries, draft retained")
}
