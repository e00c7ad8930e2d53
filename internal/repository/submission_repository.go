package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hallpass-labs/examhall-backend/internal/model"
)

var ErrDuplicateAttempt = errors.New("taker already has a submission for this exam")

// ExamResult combines taker identity with their submission outcome.
type ExamResult struct {
	SubmissionID     uuid.UUID              `json:"submission_id"`
	TakerID          uuid.UUID              `json:"taker_id"`
	Name             string                 `json:"name"`
	Email            string                 `json:"email"`
	Score            *float64               `json:"score"`
	Status           model.SubmissionStatus `json:"status"`
	StartedAt        time.Time              `json:"started_at"`
	CompletedAt      *time.Time             `json:"completed_at"`
	TimeSpentSeconds *int                   `json:"time_spent_seconds"`
	ViolationCount   int                    `json:"violation_count"`
}

// SubmissionRepository handles submission and answer data access.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

// Create inserts a new in-progress submission. Returns ErrDuplicateAttempt
// if the taker already has one for this exam.
func (r *SubmissionRepository) Create(ctx context.Context, s *model.ExamSubmission) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO submissions (id, exam_id, taker_id, started_at, status)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (exam_id, taker_id) DO NOTHING
		 RETURNING id`,
		s.ID, s.ExamID, s.TakerID, s.StartedAt, model.SubmissionStatusInProgress,
	).Scan(&s.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicateAttempt
	}
	return err
}

// GetByID retrieves a submission with its saved answers.
func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSubmission, error) {
	s := &model.ExamSubmission{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, taker_id, started_at, completed_at, score, time_spent_seconds, status
		 FROM submissions WHERE id = $1`, id,
	).Scan(&s.ID, &s.ExamID, &s.TakerID, &s.StartedAt, &s.CompletedAt, &s.Score, &s.TimeSpentSeconds, &s.Status)
	if err != nil {
		return nil, err
	}
	answers, err := r.loadAnswers(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Answers = answers
	return s, nil
}

// GetByExamAndTaker retrieves a taker's submission for a specific exam.
func (r *SubmissionRepository) GetByExamAndTaker(ctx context.Context, examID, takerID uuid.UUID) (*model.ExamSubmission, error) {
	s := &model.ExamSubmission{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, taker_id, started_at, completed_at, score, time_spent_seconds, status
		 FROM submissions WHERE exam_id = $1 AND taker_id = $2`, examID, takerID,
	).Scan(&s.ID, &s.ExamID, &s.TakerID, &s.StartedAt, &s.CompletedAt, &s.Score, &s.TimeSpentSeconds, &s.Status)
	if err != nil {
		return nil, err
	}
	answers, err := r.loadAnswers(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	s.Answers = answers
	return s, nil
}

// Finalize persists a finished submission in one transaction: the header
// row gains its terminal status and score, and the answer rows are
// replaced with the final set.
func (r *SubmissionRepository) Finalize(ctx context.Context, s *model.ExamSubmission) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE submissions
		 SET completed_at = $1, score = $2, time_spent_seconds = $3, status = $4
		 WHERE id = $5 AND status = $6`,
		s.CompletedAt, s.Score, s.TimeSpentSeconds, s.Status,
		s.ID, model.SubmissionStatusInProgress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("submission %s is not in progress", s.ID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM submission_answers WHERE submission_id = $1`, s.ID); err != nil {
		return err
	}
	for qid, value := range s.Answers {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode answer: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO submission_answers (submission_id, question_id, value, updated_at)
			 VALUES ($1, $2, $3, NOW())`,
			s.ID, qid, raw); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// UpsertAnswer writes or replaces a single in-progress answer row. Used by
// the snapshot worker for crash recovery; terminal submissions are
// untouched because Finalize replaces the whole set.
func (r *SubmissionRepository) UpsertAnswer(ctx context.Context, submissionID, questionID uuid.UUID, value model.AnswerValue) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode answer: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO submission_answers (submission_id, question_id, value, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (submission_id, question_id)
		 DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		submissionID, questionID, raw)
	return err
}

// ListByTaker retrieves all submissions for a given taker, newest first.
func (r *SubmissionRepository) ListByTaker(ctx context.Context, takerID uuid.UUID) ([]model.ExamSubmission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, taker_id, started_at, completed_at, score, time_spent_seconds, status
		 FROM submissions
		 WHERE taker_id = $1
		 ORDER BY started_at DESC`, takerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []model.ExamSubmission
	for rows.Next() {
		var s model.ExamSubmission
		if err := rows.Scan(&s.ID, &s.ExamID, &s.TakerID, &s.StartedAt, &s.CompletedAt, &s.Score, &s.TimeSpentSeconds, &s.Status); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// ListResultsByExam retrieves all taker results for an exam with pagination.
func (r *SubmissionRepository) ListResultsByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]ExamResult, int64, error) {
	offset := (page - 1) * perPage

	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM submissions WHERE exam_id = $1`, examID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT sub.id, u.id, u.name, u.email,
		        sub.score, sub.status, sub.started_at, sub.completed_at, sub.time_spent_seconds,
		        COUNT(v.id) AS violation_count
		 FROM submissions sub
		 JOIN users u ON sub.taker_id = u.id
		 LEFT JOIN integrity_violations v ON v.submission_id = sub.id
		 WHERE sub.exam_id = $1
		 GROUP BY sub.id, u.id
		 ORDER BY u.name ASC
		 LIMIT $2 OFFSET $3`,
		examID, perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []ExamResult
	for rows.Next() {
		var res ExamResult
		if err := rows.Scan(
			&res.SubmissionID, &res.TakerID, &res.Name, &res.Email,
			&res.Score, &res.Status, &res.StartedAt, &res.CompletedAt, &res.TimeSpentSeconds,
			&res.ViolationCount,
		); err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}
	return results, total, rows.Err()
}

func (r *SubmissionRepository) loadAnswers(ctx context.Context, submissionID uuid.UUID) (model.AnswerSet, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, value FROM submission_answers WHERE submission_id = $1`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := make(model.AnswerSet)
	for rows.Next() {
		var qid uuid.UUID
		var raw []byte
		if err := rows.Scan(&qid, &raw); err != nil {
			return nil, err
		}
		var value model.AnswerValue
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("decode answer: %w", err)
		}
		answers[qid] = value
	}
	return answers, rows.Err()
}
