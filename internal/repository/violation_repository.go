package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hallpass-labs/examhall-backend/internal/model"
)

// ViolationRepository handles integrity violation data access.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// Insert records a single violation.
func (r *ViolationRepository) Insert(ctx context.Context, v *model.IntegrityViolation) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO integrity_violations (submission_id, exam_id, taker_id, kind, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		v.SubmissionID, v.ExamID, v.TakerID, v.Kind, v.OccurredAt,
	).Scan(&v.ID)
}

// BulkInsert writes a batch of violations with COPY.
func (r *ViolationRepository) BulkInsert(ctx context.Context, batch []model.IntegrityViolation) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, v := range batch {
		rows = append(rows, []interface{}{
			v.SubmissionID, v.ExamID, v.TakerID, v.Kind, v.OccurredAt,
		})
	}
	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"integrity_violations"},
		[]string{"submission_id", "exam_id", "taker_id", "kind", "occurred_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// ListBySubmission retrieves all violations for a submission in order of
// occurrence.
func (r *ViolationRepository) ListBySubmission(ctx context.Context, submissionID uuid.UUID) ([]model.IntegrityViolation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, submission_id, exam_id, taker_id, kind, occurred_at
		 FROM integrity_violations
		 WHERE submission_id = $1
		 ORDER BY occurred_at`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var violations []model.IntegrityViolation
	for rows.Next() {
		var v model.IntegrityViolation
		if err := rows.Scan(&v.ID, &v.SubmissionID, &v.ExamID, &v.TakerID, &v.Kind, &v.OccurredAt); err != nil {
			return nil, err
		}
		violations = append(violations, v)
	}
	return violations, rows.Err()
}

// CountByExam returns the number of violations recorded per taker for an exam.
func (r *ViolationRepository) CountByExam(ctx context.Context, examID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT taker_id, COUNT(*)
		 FROM integrity_violations
		 WHERE exam_id = $1
		 GROUP BY taker_id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int64)
	for rows.Next() {
		var tid uuid.UUID
		var count int64
		if err := rows.Scan(&tid, &count); err != nil {
			return nil, err
		}
		counts[tid] = count
	}
	return counts, rows.Err()
}
