package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hallpass-labs/examhall-backend/internal/config"
	"github.com/hallpass-labs/examhall-backend/internal/model"
	"github.com/hallpass-labs/examhall-backend/internal/repository"
	"github.com/hallpass-labs/examhall-backend/internal/response"
)

// Domain Errors
var (
	ErrNotExamAuthor    = errors.New("not the author of this exam")
	ErrNoQuestions      = errors.New("exam has no questions, cannot publish/start")
	ErrExamNotDraft     = errors.New("exam status is not DRAFT")
	ErrExamNotPublished = errors.New("exam status is not PUBLISHED")
	// ErrExamLoad means neither the cache nor the database could produce
	// the exam. Callers surface this as a retryable failure.
	ErrExamLoad = errors.New("exam could not be loaded")
)

// ExamService handles exam authoring, publishing and Redis caching.
type ExamService struct {
	examRepo *repository.ExamRepository
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(examRepo *repository.ExamRepository, rdb *redis.Client, log zerolog.Logger) *ExamService {
	return &ExamService{
		examRepo: examRepo,
		rdb:      rdb,
		log:      log.With().Str("component", "exam_service").Logger(),
	}
}

// GetByID retrieves an exam header by its UUID.
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return s.examRepo.GetByID(ctx, id)
}

// GetWithQuestions retrieves an exam with its full question list,
// including grading fields. Author-only.
func (s *ExamService) GetWithQuestions(ctx context.Context, id, authorID uuid.UUID) (*model.Exam, error) {
	exam, err := s.examRepo.GetWithQuestions(ctx, id)
	if err != nil {
		return nil, err
	}
	if authorID != uuid.Nil && exam.AuthorID != authorID {
		return nil, ErrNotExamAuthor
	}
	return exam, nil
}

// ListByAuthor retrieves exams, filtered by author. uuid.Nil lists all
// exams (admin).
func (s *ExamService) ListByAuthor(ctx context.Context, authorID uuid.UUID, page, perPage int) ([]model.Exam, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	limit := perPage
	offset := (page - 1) * perPage

	exams, total, err := s.examRepo.ListByAuthorPaginated(ctx, authorID, limit, offset)
	if err != nil {
		return nil, nil, err
	}

	if exams == nil {
		exams = []model.Exam{}
	}

	totalPages := (total + perPage - 1) / perPage

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	}

	return exams, pagination, nil
}

// ListPublished returns all published exams, for the taker lobby.
func (s *ExamService) ListPublished(ctx context.Context) ([]model.Exam, error) {
	exams, err := s.examRepo.ListPublished(ctx)
	if err != nil {
		return nil, err
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, nil
}

// Create inserts a new exam as DRAFT.
func (s *ExamService) Create(ctx context.Context, exam *model.Exam) error {
	exam.Status = model.ExamStatusDraft
	if err := exam.Validate(); err != nil {
		return err
	}
	return s.examRepo.Create(ctx, exam)
}

// ReplaceQuestions swaps a draft exam's question list.
func (s *ExamService) ReplaceQuestions(ctx context.Context, examID, authorID uuid.UUID, questions []model.Question) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return err
	}
	if authorID != uuid.Nil && exam.AuthorID != authorID {
		return ErrNotExamAuthor
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	for i := range questions {
		if err := questions[i].Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i+1, err)
		}
	}
	return s.examRepo.ReplaceQuestions(ctx, examID, questions)
}

// Publish changes exam status to PUBLISHED and caches the taker paper in
// Redis. This is the critical path that populates the fast lane.
func (s *ExamService) Publish(ctx context.Context, examID, authorID uuid.UUID) error {
	exam, err := s.examRepo.GetWithQuestions(ctx, examID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}

	if authorID != uuid.Nil && exam.AuthorID != authorID {
		return ErrNotExamAuthor
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	if len(exam.Questions) == 0 {
		return ErrNoQuestions
	}

	// Prewarm cache for this exam.
	if err := s.WarmExamCache(ctx, exam); err != nil {
		return err
	}

	// Update status in PostgreSQL.
	if err := s.examRepo.UpdateStatus(ctx, examID, model.ExamStatusPublished); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	s.log.Info().Str("exam_id", examID.String()).Msg("Exam published")
	return nil
}

// Archive retires a published exam. New attempts are refused; existing
// sessions run to completion.
func (s *ExamService) Archive(ctx context.Context, examID, authorID uuid.UUID) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return err
	}
	if authorID != uuid.Nil && exam.AuthorID != authorID {
		return ErrNotExamAuthor
	}
	if exam.Status != model.ExamStatusPublished {
		return ErrExamNotPublished
	}
	if err := s.examRepo.UpdateStatus(ctx, examID, model.ExamStatusArchived); err != nil {
		return err
	}
	// Drop the cached paper so the lobby stops offering it.
	s.rdb.Del(ctx, config.CacheKey.ExamPaperKey(examID), config.CacheKey.ExamDurationKey(examID))
	s.log.Info().Str("exam_id", examID.String()).Msg("Exam archived")
	return nil
}

// WarmExamCache loads an exam's taker paper and duration from PostgreSQL
// into Redis. Used by Publish and PrewarmAllCaches.
func (s *ExamService) WarmExamCache(ctx context.Context, exam *model.Exam) error {
	if len(exam.Questions) == 0 {
		full, err := s.examRepo.GetWithQuestions(ctx, exam.ID)
		if err != nil {
			return fmt.Errorf("load questions: %w", err)
		}
		exam = full
	}
	if len(exam.Questions) == 0 {
		return ErrNoQuestions
	}

	paper := exam.Paper()
	paperJSON, err := json.Marshal(paper)
	if err != nil {
		return fmt.Errorf("marshal paper: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.ExamPaperKey(exam.ID), paperJSON, 0)
	pipe.Set(ctx, config.CacheKey.ExamDurationKey(exam.ID), strconv.Itoa(exam.DurationMinutes), 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("exam_id", exam.ID.String()).
		Int("questions", len(exam.Questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads all published exams into Redis on application
// startup. This prevents lazy-loading races under thundering herd traffic.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.examRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}

	if len(exams) == 0 {
		s.log.Info().Msg("No published exams to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(exams)).Msg("Prewarming published exams...")

	warmed := 0
	for i := range exams {
		if err := s.WarmExamCache(ctx, &exams[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}

// GetExamPaper retrieves the taker-facing paper, preferring the Redis
// cache and falling back to PostgreSQL. Returns ErrExamLoad when neither
// source can produce it.
func (s *ExamService) GetExamPaper(ctx context.Context, examID uuid.UUID) (*model.ExamPaper, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.ExamPaperKey(examID)).Bytes()
	if err == nil {
		var paper model.ExamPaper
		if err := json.Unmarshal(data, &paper); err == nil {
			return &paper, nil
		}
		s.log.Warn().Str("exam_id", examID.String()).Msg("Corrupt paper cache, falling back to database")
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Paper cache unavailable, falling back to database")
	}

	exam, err := s.examRepo.GetWithQuestions(ctx, examID)
	if err != nil {
		return nil, ErrExamLoad
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotPublished
	}
	if warmErr := s.WarmExamCache(ctx, exam); warmErr != nil {
		s.log.Warn().Err(warmErr).Str("exam_id", examID.String()).Msg("Cache rewarm failed")
	}
	paper := exam.Paper()
	return &paper, nil
}

// FetchExam loads the authoritative exam with grading fields for the
// session engine. Published exams only.
func (s *ExamService) FetchExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.examRepo.GetWithQuestions(ctx, examID)
	if err != nil {
		return nil, ErrExamLoad
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotPublished
	}
	if len(exam.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	return exam, nil
}

// Update modifies an existing draft exam.
func (s *ExamService) Update(ctx context.Context, authorID uuid.UUID, exam *model.Exam) error {
	existing, err := s.examRepo.GetByID(ctx, exam.ID)
	if err != nil {
		return err
	}
	if authorID != uuid.Nil && existing.AuthorID != authorID {
		return ErrNotExamAuthor
	}
	if existing.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	return s.examRepo.Update(ctx, exam)
}

// Delete removes a draft exam.
func (s *ExamService) Delete(ctx context.Context, id, authorID uuid.UUID) error {
	existing, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if authorID != uuid.Nil && existing.AuthorID != authorID {
		return ErrNotExamAuthor
	}
	if existing.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	return s.examRepo.Delete(ctx, id)
}
