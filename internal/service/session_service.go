package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hallpass-labs/examhall-backend/internal/config"
	"github.com/hallpass-labs/examhall-backend/internal/model"
	"github.com/hallpass-labs/examhall-backend/internal/repository"
	"github.com/hallpass-labs/examhall-backend/internal/session"
)

// Session domain errors.
var (
	ErrAlreadySubmitted = errors.New("this exam attempt is already finished")
	ErrNoActiveSession  = errors.New("no active session for this exam")
)

// SessionService bridges the in-memory session engines to storage: it
// owns the engine registry, persists finished submissions, queues
// violations and answer snapshots for the background workers, and feeds
// the live monitor channel.
type SessionService struct {
	cfg      *config.Config
	subRepo  *repository.SubmissionRepository
	exams    *ExamService
	grader   *GradingService
	registry *session.Registry
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	cfg *config.Config,
	subRepo *repository.SubmissionRepository,
	exams *ExamService,
	grader *GradingService,
	rdb *redis.Client,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		cfg:      cfg,
		subRepo:  subRepo,
		exams:    exams,
		grader:   grader,
		registry: session.NewRegistry(),
		rdb:      rdb,
		log:      log.With().Str("component", "session_service").Logger(),
	}
}

// Registry exposes the live engine registry.
func (s *SessionService) Registry() *session.Registry { return s.registry }

// LobbyStatus represents the concrete state of an exam in the lobby.
type LobbyStatus string

const (
	LobbyStatusAvailable  LobbyStatus = "AVAILABLE"
	LobbyStatusInProgress LobbyStatus = "IN_PROGRESS"
	LobbyStatusCompleted  LobbyStatus = "COMPLETED"
)

// LobbyExam represents an exam as displayed in the taker lobby.
type LobbyExam struct {
	model.Exam
	LobbyStatus      LobbyStatus             `json:"lobby_status"`
	SubmissionStatus *model.SubmissionStatus `json:"submission_status,omitempty"`
	Score            *float64                `json:"score,omitempty"`
}

// GetLobby returns published exams overlaid with the taker's attempt
// status.
func (s *SessionService) GetLobby(ctx context.Context, takerID uuid.UUID) ([]LobbyExam, error) {
	exams, err := s.exams.ListPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("list published: %w", err)
	}

	subs, err := s.subRepo.ListByTaker(ctx, takerID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	subMap := make(map[uuid.UUID]*model.ExamSubmission, len(subs))
	for i := range subs {
		subMap[subs[i].ExamID] = &subs[i]
	}

	lobby := make([]LobbyExam, 0, len(exams))
	for i := range exams {
		entry := LobbyExam{Exam: exams[i], LobbyStatus: LobbyStatusAvailable}
		if sub, ok := subMap[exams[i].ID]; ok {
			entry.SubmissionStatus = &sub.Status
			entry.Score = sub.Score
			if sub.Status == model.SubmissionStatusInProgress {
				entry.LobbyStatus = LobbyStatusInProgress
			} else {
				entry.LobbyStatus = LobbyStatusCompleted
			}
		}
		lobby = append(lobby, entry)
	}
	return lobby, nil
}

// StartSession begins or resumes a taker's attempt and returns its live
// engine. Reconnects land on the already-running engine; an in-progress
// submission from a previous process is resumed with its saved answers
// and the remaining wall-clock time. Finished attempts return
// ErrAlreadySubmitted.
func (s *SessionService) StartSession(ctx context.Context, examID, takerID uuid.UUID) (*session.Engine, error) {
	if e := s.registry.ByAttempt(examID, takerID); e != nil {
		return e, nil
	}

	existing, err := s.subRepo.GetByExamAndTaker(ctx, examID, takerID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing submission: %w", err)
	}
	if existing != nil {
		if existing.Status != model.SubmissionStatusInProgress {
			return nil, ErrAlreadySubmitted
		}
		return s.resumeSession(ctx, existing)
	}

	exam, err := s.exams.FetchExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	engine, err := session.New(exam, s, s, s.engineOptions())
	if err != nil {
		return nil, err
	}
	sub, err := engine.Start(takerID)
	if err != nil {
		return nil, err
	}

	if err := s.subRepo.Create(ctx, sub); err != nil {
		// Another node or request won the race; drop the local engine.
		_ = engine.Abandon(ctx)
		if errors.Is(err, repository.ErrDuplicateAttempt) {
			return nil, repository.ErrDuplicateAttempt
		}
		return nil, fmt.Errorf("create submission: %w", err)
	}

	s.registry.Put(examID, takerID, engine)
	s.cacheSessionStart(ctx, exam.ID, takerID, sub.StartedAt)
	s.publishMonitorEvent(exam.ID, monitorEvent{
		Type:         "session_started",
		TakerID:      takerID,
		SubmissionID: sub.ID,
	})

	return engine, nil
}

// resumeSession rebuilds an engine for an in-progress submission that has
// no live engine (process restart). Attempts whose time already ran out
// are finalized immediately.
func (s *SessionService) resumeSession(ctx context.Context, sub *model.ExamSubmission) (*session.Engine, error) {
	exam, err := s.exams.FetchExam(ctx, sub.ExamID)
	if err != nil {
		return nil, err
	}

	elapsed := int(time.Since(s.sessionStart(ctx, sub)).Seconds())
	remaining := exam.DurationMinutes*60 - elapsed

	if remaining <= 0 {
		spent := exam.DurationMinutes * 60
		now := time.Now()
		final := sub.Clone()
		final.CompletedAt = &now
		final.TimeSpentSeconds = &spent
		final.Status = model.SubmissionStatusCompleted
		if err := s.PersistSubmission(ctx, final); err != nil {
			return nil, err
		}
		return nil, ErrAlreadySubmitted
	}

	engine, err := session.New(exam, s, s, s.engineOptions())
	if err != nil {
		return nil, err
	}
	if _, err := engine.Resume(sub, remaining); err != nil {
		return nil, err
	}
	s.registry.Put(sub.ExamID, sub.TakerID, engine)
	return engine, nil
}

// Engine returns the live engine for a taker's attempt, or nil.
func (s *SessionService) Engine(examID, takerID uuid.UUID) *session.Engine {
	return s.registry.ByAttempt(examID, takerID)
}

// GetState returns the current session view for reconnecting clients.
// Live engines answer from memory; otherwise the persisted submission is
// consulted.
func (s *SessionService) GetState(ctx context.Context, examID, takerID uuid.UUID) (*model.SessionSnapshot, error) {
	if e := s.registry.ByAttempt(examID, takerID); e != nil {
		snap := e.Snapshot()
		return &snap, nil
	}

	sub, err := s.subRepo.GetByExamAndTaker(ctx, examID, takerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveSession
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}

	remaining := 0
	if sub.Status == model.SubmissionStatusInProgress {
		duration, err := s.examDuration(ctx, examID)
		if err != nil {
			return nil, err
		}
		remaining = duration*60 - int(time.Since(s.sessionStart(ctx, sub)).Seconds())
		if remaining < 0 {
			remaining = 0
		}
	}

	questions := make([]model.QuestionState, 0, len(sub.Answers))
	for qid, value := range sub.Answers {
		v := value
		questions = append(questions, model.QuestionState{
			QuestionID: qid,
			Status:     model.QuestionStatusAnswered,
			Answer:     &v,
		})
	}

	return &model.SessionSnapshot{
		SubmissionID:     sub.ID,
		ExamID:           examID,
		RemainingSeconds: remaining,
		Questions:        questions,
		Status:           sub.Status,
	}, nil
}

// AbandonSession ends a live attempt without completing it.
func (s *SessionService) AbandonSession(ctx context.Context, examID, takerID uuid.UUID) error {
	e := s.registry.ByAttempt(examID, takerID)
	if e == nil {
		return ErrNoActiveSession
	}
	return e.Abandon(ctx)
}

// ─── Engine collaborators ───────────────────────────────────────────

// PersistSubmission grades and durably stores a finalized submission,
// then clears the attempt's Redis state. Implements
// session.SubmissionPersister.
func (s *SessionService) PersistSubmission(ctx context.Context, sub *model.ExamSubmission) error {
	if sub.Status == model.SubmissionStatusCompleted {
		exam, err := s.exams.FetchExam(ctx, sub.ExamID)
		if err != nil {
			return fmt.Errorf("load exam for grading: %w", err)
		}
		score := s.grader.Grade(exam, sub.Answers)
		sub.Score = &score
	}

	if err := s.subRepo.Finalize(ctx, sub); err != nil {
		return fmt.Errorf("finalize submission: %w", err)
	}

	s.clearSessionCache(sub.ExamID, sub.TakerID)
	s.publishMonitorEvent(sub.ExamID, monitorEvent{
		Type:         "session_finished",
		TakerID:      sub.TakerID,
		SubmissionID: sub.ID,
		Status:       string(sub.Status),
		Score:        sub.Score,
	})

	s.log.Info().
		Str("submission_id", sub.ID.String()).
		Str("status", string(sub.Status)).
		Msg("Submission persisted")
	return nil
}

// violationPayload is the queue wire format consumed by the violation
// worker.
type violationPayload struct {
	SubmissionID uuid.UUID           `json:"submission_id"`
	ExamID       uuid.UUID           `json:"exam_id"`
	TakerID      uuid.UUID           `json:"taker_id"`
	Kind         model.ViolationKind `json:"kind"`
	Timestamp    int64               `json:"timestamp"`
}

// ReportIntegrityViolation queues the violation for batch persistence and
// notifies the live monitor. Implements session.ViolationReporter.
func (s *SessionService) ReportIntegrityViolation(submissionID, examID, takerID uuid.UUID, kind model.ViolationKind, at time.Time) {
	ctx := context.Background()

	payload, err := json.Marshal(violationPayload{
		SubmissionID: submissionID,
		ExamID:       examID,
		TakerID:      takerID,
		Kind:         kind,
		Timestamp:    at.Unix(),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Encode violation payload")
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, payload).Err(); err != nil {
		s.log.Error().Err(err).
			Str("submission_id", submissionID.String()).
			Msg("Queue violation failed")
	}

	s.publishMonitorEvent(examID, monitorEvent{
		Type:         "violation",
		TakerID:      takerID,
		SubmissionID: submissionID,
		Kind:         string(kind),
	})
}

// snapshotPayload is the queue wire format consumed by the snapshot
// worker.
type snapshotPayload struct {
	SubmissionID uuid.UUID         `json:"submission_id"`
	QuestionID   uuid.UUID         `json:"question_id"`
	Value        model.AnswerValue `json:"value"`
}

// SaveAnswer snapshots an accepted answer to Redis for crash recovery and
// queues the durable write. Implements session.AnswerSink.
func (s *SessionService) SaveAnswer(submissionID, examID, takerID, questionID uuid.UUID, value model.AnswerValue) {
	ctx := context.Background()

	raw, err := json.Marshal(value)
	if err != nil {
		s.log.Error().Err(err).Msg("Encode answer snapshot")
		return
	}
	answersKey := config.CacheKey.TakerAnswersKey(examID, takerID)
	if err := s.rdb.HSet(ctx, answersKey, questionID.String(), raw).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Cache answer snapshot failed")
	}

	payload, err := json.Marshal(snapshotPayload{
		SubmissionID: submissionID,
		QuestionID:   questionID,
		Value:        value,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Encode snapshot payload")
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistSnapshotsQueue, payload).Err(); err != nil {
		s.log.Warn().Err(err).
			Str("submission_id", submissionID.String()).
			Msg("Queue answer snapshot failed")
	}
}

func (s *SessionService) engineOptions() session.Options {
	return session.Options{
		MaxViolations: s.cfg.MaxViolations,
		Sink:          s,
		OnTerminal: func(e *session.Engine) {
			s.registry.Remove(e.SubmissionID())
		},
		Logger: s.log,
	}
}

// ─── Redis helpers ──────────────────────────────────────────────────

// monitorEvent is published on the exam's monitor channel for the live
// SSE feed.
type monitorEvent struct {
	Type         string    `json:"type"`
	TakerID      uuid.UUID `json:"taker_id"`
	SubmissionID uuid.UUID `json:"submission_id"`
	Kind         string    `json:"kind,omitempty"`
	Status       string    `json:"status,omitempty"`
	Score        *float64  `json:"score,omitempty"`
}

func (s *SessionService) publishMonitorEvent(examID uuid.UUID, ev monitorEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.rdb.Publish(context.Background(), config.CacheKey.ExamMonitorChannel(examID), data).Err(); err != nil {
		s.log.Debug().Err(err).Msg("Monitor publish failed")
	}
}

func (s *SessionService) cacheSessionStart(ctx context.Context, examID, takerID uuid.UUID, startedAt time.Time) {
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.TakerSessionStartKey(examID, takerID), startedAt.Unix(), 0)
	pipe.Set(ctx, config.CacheKey.TakerActiveExamKey(takerID), examID.String(), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Cache session start failed")
	}
}

// sessionStart resolves the attempt's start time, preferring Redis and
// self-healing from the database row on a miss.
func (s *SessionService) sessionStart(ctx context.Context, sub *model.ExamSubmission) time.Time {
	key := config.CacheKey.TakerSessionStartKey(sub.ExamID, sub.TakerID)
	val, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		if unix, parseErr := strconv.ParseInt(val, 10, 64); parseErr == nil {
			return time.Unix(unix, 0)
		}
	} else if errors.Is(err, redis.Nil) {
		_ = s.rdb.Set(ctx, key, sub.StartedAt.Unix(), 0)
	}
	return sub.StartedAt
}

// examDuration resolves the exam duration in minutes, preferring the
// Redis cache.
func (s *SessionService) examDuration(ctx context.Context, examID uuid.UUID) (int, error) {
	val, err := s.rdb.Get(ctx, config.CacheKey.ExamDurationKey(examID)).Result()
	if err == nil {
		if minutes, parseErr := strconv.Atoi(val); parseErr == nil {
			return minutes, nil
		}
	}
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return 0, fmt.Errorf("get exam duration: %w", err)
	}
	return exam.DurationMinutes, nil
}

func (s *SessionService) clearSessionCache(examID, takerID uuid.UUID) {
	ctx := context.Background()
	err := s.rdb.Del(ctx,
		config.CacheKey.TakerSessionStartKey(examID, takerID),
		config.CacheKey.TakerAnswersKey(examID, takerID),
		config.CacheKey.TakerActiveExamKey(takerID),
	).Err()
	if err != nil {
		s.log.Warn().Err(err).Msg("Clear session cache failed")
	}
}
