package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hallpass-labs/examhall-backend/internal/model"
)

// fakePersister records handoffs and can be told to fail.
type fakePersister struct {
	mu    sync.Mutex
	calls []*model.ExamSubmission
	fail  error
}

func (p *fakePersister) PersistSubmission(_ context.Context, sub *model.ExamSubmission) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.calls = append(p.calls, sub)
	return nil
}

func (p *fakePersister) setFail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = err
}

func (p *fakePersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakePersister) last() *model.ExamSubmission {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return nil
	}
	return p.calls[len(p.calls)-1]
}

type reported struct {
	subID uuid.UUID
	kind  model.ViolationKind
	at    time.Time
}

type fakeReporter struct {
	mu    sync.Mutex
	calls []reported
}

func (r *fakeReporter) ReportIntegrityViolation(subID, examID, takerID uuid.UUID, kind model.ViolationKind, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, reported{subID: subID, kind: kind, at: at})
}

func (r *fakeReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type savedAnswer struct {
	questionID uuid.UUID
	value      model.AnswerValue
}

type fakeSink struct {
	mu    sync.Mutex
	saves []savedAnswer
}

func (s *fakeSink) SaveAnswer(_, _, _ uuid.UUID, questionID uuid.UUID, value model.AnswerValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, savedAnswer{questionID: questionID, value: value})
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

func strptr(s string) *string { return &s }

// testExam builds a 1-minute exam with one question of each type.
func testExam(t *testing.T) *model.Exam {
	t.Helper()
	examID := uuid.New()
	exam := &model.Exam{
		ID:              examID,
		Title:           "Physics Quiz",
		Subject:         "Physics",
		AuthorID:        uuid.New(),
		DurationMinutes: 1,
		Status:          model.ExamStatusPublished,
		Questions: []model.Question{
			{
				ID:            uuid.New(),
				ExamID:        examID,
				QuestionType:  model.QuestionTypeMultipleChoice,
				QuestionText:  "Speed of light?",
				Options:       []string{"3e8 m/s", "3e6 m/s", "3e10 m/s"},
				CorrectAnswer: model.ChoiceAnswer("0"),
				Points:        2,
				OrderNum:      0,
			},
			{
				ID:            uuid.New(),
				ExamID:        examID,
				QuestionType:  model.QuestionTypeTrueFalse,
				QuestionText:  "Light is a wave.",
				CorrectAnswer: model.BoolAnswer(true),
				Points:        1,
				OrderNum:      1,
			},
			{
				ID:            uuid.New(),
				ExamID:        examID,
				QuestionType:  model.QuestionTypeNumeric,
				QuestionText:  "Gravity on Earth?",
				CorrectAnswer: model.NumberAnswer(9.81),
				Unit:          strptr("m/s²"),
				Points:        3,
				OrderNum:      2,
			},
		},
	}
	if err := exam.Validate(); err != nil {
		t.Fatalf("test exam invalid: %v", err)
	}
	return exam
}

// newTestEngine starts a session with an effectively frozen timer so
// tests drive ticks by hand.
func newTestEngine(t *testing.T, exam *model.Exam, p SubmissionPersister, r ViolationReporter, opts Options) *Engine {
	t.Helper()
	if opts.TickInterval == 0 {
		opts.TickInterval = time.Hour
	}
	opts.Logger = zerolog.Nop()
	e, err := New(exam, p, r, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := e.Start(uuid.New()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return e
}

func TestNewRejectsExamWithoutQuestions(t *testing.T) {
	exam := &model.Exam{ID: uuid.New(), Title: "Empty", DurationMinutes: 10}
	if _, err := New(exam, &fakePersister{}, nil, Options{Logger: zerolog.Nop()}); !errors.Is(err, ErrInvalidExam) {
		t.Fatalf("expected ErrInvalidExam, got %v", err)
	}
	if _, err := New(nil, &fakePersister{}, nil, Options{Logger: zerolog.Nop()}); !errors.Is(err, ErrInvalidExam) {
		t.Fatalf("expected ErrInvalidExam for nil exam, got %v", err)
	}
}

func TestStartInitializesSession(t *testing.T) {
	exam := testExam(t)
	e := newTestEngine(t, exam, &fakePersister{}, nil, Options{})

	snap := e.Snapshot()
	if snap.RemainingSeconds != 60 {
		t.Errorf("remaining = %d, want 60", snap.RemainingSeconds)
	}
	if snap.CurrentQuestionIndex != 0 {
		t.Errorf("index = %d, want 0", snap.CurrentQuestionIndex)
	}
	if len(snap.Questions) != 3 {
		t.Fatalf("question states = %d, want 3", len(snap.Questions))
	}
	for i, qs := range snap.Questions {
		if qs.Status != model.QuestionStatusUnread {
			t.Errorf("question %d status = %q, want unread", i, qs.Status)
		}
	}
	if got := e.State(); got != StateActive {
		t.Errorf("state = %q, want active", got)
	}
}

func TestNavigatePromotesUnreadToRead(t *testing.T) {
	exam := testExam(t)
	e := newTestEngine(t, exam, &fakePersister{}, nil, Options{})

	for _, idx := range []int{1, 2, 0} {
		e.NavigateTo(idx)
		snap := e.Snapshot()
		if snap.CurrentQuestionIndex != idx {
			t.Errorf("index = %d, want %d", snap.CurrentQuestionIndex, idx)
		}
		if !snap.Questions[idx].Status.AtLeast(model.QuestionStatusRead) {
			t.Errorf("question %d status = %q, want at least read", idx, snap.Questions[idx].Status)
		}
	}
}

func TestNavigateOutOfRangeIsNoOp(t *testing.T) {
	exam := testExam(t)
	e := newTestEngine(t, exam, &fakePersister{}, nil, Options{})
	e.NavigateTo(2)

	for _, idx := range []int{5, -1, 3} {
		e.NavigateTo(idx)
		if got := e.Snapshot().CurrentQuestionIndex; got != 2 {
			t.Errorf("after NavigateTo(%d): index = %d, want 2", idx, got)
		}
	}
}

func TestNavigateNeverRegressesStatus(t *testing.T) {
	exam := testExam(t)
	e := newTestEngine(t, exam, &fakePersister{}, nil, Options{})

	q0 := exam.Questions[0].ID
	if err := e.RecordAnswer(q0, model.ChoiceAnswer("1")); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	e.NavigateTo(1)
	e.NavigateTo(0)
	if got := e.Snapshot().Questions[0].Status; got != model.QuestionStatusAnswered {
		t.Errorf("status after revisit = %q, want answered", got)
	}
}

func TestRecordAnswerReplaces(t *testing.T) {
	exam := testExam(t)
	e := newTestEngine(t, exam, &fakePersister{}, nil, Options{})
	q0 := exam.Questions[0].ID

	if err := e.RecordAnswer(q0, model.ChoiceAnswer("2")); err != nil {
		t.Fatalf("first answer: %v", err)
	}
	if err := e.RecordAnswer(q0, model.ChoiceAnswer("3")); err != nil {
		t.Fatalf("revised answer: %v", err)
	}

	snap := e.Snapshot()
	if snap.Questions[0].Answer == nil || !snap.Questions[0].Answer.Equal(model.ChoiceAnswer("3")) {
		t.Errorf("mirrored answer = %+v, want choice 3", snap.Questions[0].Answer)
	}

	// Exactly one entry for the question survives the replacement.
	if err := e.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}

func TestRecordAnswerIdempotent(t *testing.T) {
	exam := testExam(t)
	sink := &fakeSink{}
	e := newTestEngine(t, exam, &fakePersister{}, nil, Options{Sink: sink})
	q1 := exam.Questions[1].ID

	for i := 0; i < 3; i++ {
		if err := e.RecordAnswer(q1, model.BoolAnswer(true)); err != nil {
			t.Fatalf("RecordAnswer #%d: %v", i+1, err)
		}
	}

	// Identical repeats are observably no-ops: one sink save only.
	if got := sink.count(); got != 1 {
		t.Errorf("sink saves = %d, want 1", got)
	}
}

func TestRecordAnswerValidation(t *testing.T) {
	exam := testExam(t)

	tests := []struct {
		name       string
		questionID func() uuid.UUID
		value      model.AnswerValue
		wantErr    error
	}{
		{"choice on true/false", func() uuid.UUID { return exam.Questions[1].ID }, model.ChoiceAnswer("1"), ErrAnswerTypeMismatch},
		{"bool on numeric", func() uuid.UUID { return exam.Questions[2].ID }, model.BoolAnswer(false), ErrAnswerTypeMismatch},
		{"number on multiple choice", func() uuid.UUID { return exam.Questions[0].ID }, model.NumberAnswer(1), ErrAnswerTypeMismatch},
		{"unknown question", uuid.New, model.BoolAnswer(true), ErrUnknownQuestion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, exam, &fakePersister{}, nil, Options{})
			if err := e.RecordAnswer(tt.questionID(), tt.value); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecordAnswerAfterSubmit(t *testing.T) {
	exam := testExam(t)
	p := &fakePersister{}
	e := newTestEngine(t, exam, p, nil, Options{})

	if err := e.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	err := e.RecordAnswer(exam.Questions[0].ID, model.ChoiceAnswer("0"))
	if !errors.Is(err, ErrInvalidSessionState) {
		t.Fatalf("err = %v, want ErrInvalidSessionState", err)
	}
	if got := len(p.last().Answers); got != 0 {
		t.Errorf("persisted answers mutated: %d entries", got)
	}
}

func TestSubmitFinalizesOnce(t *testing.T) {
	exam := testExam(t)
	p := &fakePersister{}
	e := newTestEngine(t, exam, p, nil, Options{})
	q0, q1 := exam.Questions[0].ID, exam.Questions[1].ID

	if err := e.RecordAnswer(q0, model.ChoiceAnswer("0")); err != nil {
		t.Fatal(err)
	}
	if err := e.RecordAnswer(q1, model.BoolAnswer(false)); err != nil {
		t.Fatal(err)
	}

	if err := e.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	sub := p.last()
	if sub.Status != model.SubmissionStatusCompleted {
		t.Errorf("status = %q, want COMPLETED", sub.Status)
	}
	if sub.CompletedAt == nil {
		t.Error("completed_at not set")
	}
	if len(sub.Answers) != 2 {
		t.Errorf("answers = %d, want 2 (unanswered questions allowed)", len(sub.Answers))
	}

	// Second submit: no-op, InvalidSessionState, submission unchanged.
	if err := e.Submit(context.Background()); !errors.Is(err, ErrInvalidSessionState) {
		t.Fatalf("second submit err = %v, want ErrInvalidSessionState", err)
	}
	if got := p.count(); got != 1 {
		t.Errorf("persister invoked %d times, want exactly 1", got)
	}
	if got := e.State(); got != StateCompleted {
		t.Errorf("state = %q, want completed", got)
	}
}

func TestSubmitComputesTimeSpent(t *testing.T) {
	exam := testExam(t)
	p := &fakePersister{}
	e := newTestEngine(t, exam, p, nil, Options{})

	for i := 0; i < 25; i++ {
		if e.tick() {
			t.Fatal("unexpected expiry")
		}
	}
	if err := e.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := *p.last().TimeSpentSeconds; got != 25 {
		t.Errorf("time spent = %d, want 25", got)
	}
}

func TestSubmitPersistFailureIsRetryable(t *testing.T) {
	exam := testExam(t)
	p := &fakePersister{}
	p.setFail(errors.New("connection refused"))
	e := newTestEngine(t, exam, p, nil, Options{})
	q0 := exam.Questions[0].ID

	if err := e.RecordAnswer(q0, model.ChoiceAnswer("1")); err != nil {
		t.Fatal(err)
	}

	err := e.Submit(context.Background())
	var perr *PersistError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *PersistError", err)
	}
	if got := e.State(); got != StateActive {
		t.Fatalf("state after failed persist = %q, want active", got)
	}

	// Draft intact: retry succeeds with the same answers.
	p.setFail(nil)
	if err := e.Submit(context.Background()); err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
	sub := p.last()
	if got, ok := sub.Answers[q0]; !ok || !got.Equal(model.ChoiceAnswer("1")) {
		t.Errorf("retried submission lost the draft answer: %+v", sub.Answers)
	}
}

func TestTickNeverGoesNegative(t *testing.T) {
	exam := testExam(t)
	p := &fakePersister{}
	e := newTestEngine(t, exam, p, nil, Options{})

	prev := e.Snapshot().RemainingSeconds
	expiries := 0
	for i := 0; i < 70; i++ {
		if e.tick() {
			expiries++
		}
		cur := e.Snapshot().RemainingSeconds
		if cur > prev {
			t.Fatalf("remaining increased: %d -> %d", prev, cur)
		}
		if cur < 0 {
			t.Fatalf("remaining went negative: %d", cur)
		}
		prev = cur
	}
	if expiries != 1 {
		t.Errorf("expiry signaled %d times, want exactly 1", expiries)
	}
	if got := e.Snapshot().RemainingSeconds; got != 0 {
		t.Errorf("remaining = %d, want 0", got)
	}
}

func TestTimeExpiryAutoSubmits(t *testing.T) {
	exam := testExam(t)
	p := &fakePersister{}
	e := newTestEngine(t, exam, p, nil, Options{})

	// Drain the countdown; the final tick signals expiry.
	for i := 0; i < 59; i++ {
		if e.tick() {
			t.Fatalf("premature expiry at tick %d", i)
		}
	}
	if !e.tick() {
		t.Fatal("final tick did not signal expiry")
	}
	e.autoSubmit()

	if got := e.State(); got != StateCompleted {
		t.Fatalf("state = %q, want completed", got)
	}
	if got := *p.last().TimeSpentSeconds; got != 60 {
		t.Errorf("time spent = %d, want full planned duration 60", got)
	}
}

func TestTickIgnoredOutsideActive(t *testing.T) {
	exam := testExam(t)
	e := newTestEngine(t, exam, &fakePersister{}, nil, Options{})

	if err := e.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := e.Snapshot().RemainingSeconds
	if e.tick() {
		t.Error("tick signaled expiry in terminal state")
	}
	if got := e.Snapshot().RemainingSeconds; got != before {
		t.Errorf("remaining changed after terminal state: %d -> %d", before, got)
	}
}

func TestViolationsAreAuditOnly(t *testing.T) {
	exam := testExam(t)
	rep := &fakeReporter{}
	e := newTestEngine(t, exam, &fakePersister{}, rep, Options{})
	q0 := exam.Questions[0].ID

	if err := e.RecordAnswer(q0, model.ChoiceAnswer("0")); err != nil {
		t.Fatal(err)
	}

	count, err := e.ReportViolation(context.Background(), model.ViolationVisibilityHidden)
	if err != nil {
		t.Fatalf("ReportViolation: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	count, _ = e.ReportViolation(context.Background(), model.ViolationFullscreenExit)
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if rep.count() != 2 {
		t.Errorf("reporter received %d violations, want 2", rep.count())
	}

	snap := e.Snapshot()
	if snap.ViolationCount != 2 {
		t.Errorf("snapshot violations = %d, want 2", snap.ViolationCount)
	}
	if got := snap.Questions[0].Answer; got == nil || !got.Equal(model.ChoiceAnswer("0")) {
		t.Error("violation altered recorded answer")
	}
	if e.State() != StateActive {
		t.Error("violation changed session state without a threshold configured")
	}
}

func TestViolationThresholdForcesSubmit(t *testing.T) {
	exam := testExam(t)
	p := &fakePersister{}
	e := newTestEngine(t, exam, p, &fakeReporter{}, Options{MaxViolations: 2})

	if _, err := e.ReportViolation(context.Background(), model.ViolationVisibilityHidden); err != nil {
		t.Fatal(err)
	}
	if e.State() != StateActive {
		t.Fatal("submitted below threshold")
	}
	if _, err := e.ReportViolation(context.Background(), model.ViolationVisibilityHidden); err != nil {
		t.Fatalf("threshold violation: %v", err)
	}
	if got := e.State(); got != StateCompleted {
		t.Errorf("state = %q, want completed after reaching threshold", got)
	}
	if p.count() != 1 {
		t.Errorf("persister invoked %d times, want 1", p.count())
	}
}

func TestAbandonEndsSession(t *testing.T) {
	exam := testExam(t)
	p := &fakePersister{}
	e := newTestEngine(t, exam, p, nil, Options{})

	if err := e.Abandon(context.Background()); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	if got := e.State(); got != StateAbandoned {
		t.Errorf("state = %q, want abandoned", got)
	}
	if got := p.last().Status; got != model.SubmissionStatusAbandoned {
		t.Errorf("persisted status = %q, want ABANDONED", got)
	}
	if err := e.Submit(context.Background()); !errors.Is(err, ErrInvalidSessionState) {
		t.Errorf("submit after abandon err = %v, want ErrInvalidSessionState", err)
	}
}

func TestOnTerminalEvictsFromRegistry(t *testing.T) {
	exam := testExam(t)
	takerID := uuid.New()
	reg := NewRegistry()

	opts := Options{
		TickInterval: time.Hour,
		Logger:       zerolog.Nop(),
	}
	opts.OnTerminal = func(e *Engine) { reg.Remove(e.SubmissionID()) }

	e, err := New(exam, &fakePersister{}, nil, opts)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Start(takerID); err != nil {
		t.Fatal(err)
	}
	reg.Put(exam.ID, takerID, e)

	if reg.ByAttempt(exam.ID, takerID) != e {
		t.Fatal("registry lookup by attempt failed")
	}
	if err := e.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	if reg.Len() != 0 {
		t.Errorf("registry len = %d after terminal, want 0", reg.Len())
	}
	if reg.BySubmission(e.SubmissionID()) != nil {
		t.Error("terminal engine still resolvable by submission ID")
	}
}

func TestConcurrentAnswersSerialize(t *testing.T) {
	exam := testExam(t)
	p := &fakePersister{}
	e := newTestEngine(t, exam, p, nil, Options{})
	q2 := exam.Questions[2].ID

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = e.RecordAnswer(q2, model.NumberAnswer(float64(n)))
		}(i)
	}
	wg.Wait()

	if err := e.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Exactly one entry survives regardless of interleaving.
	if got := len(p.last().Answers); got != 1 {
		t.Errorf("answer entries = %d, want 1", got)
	}
}
