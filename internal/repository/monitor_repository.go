package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hallpass-labs/examhall-backend/internal/model"
)

// MonitorRepository provides data access for the live exam monitoring feature.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// GetInProgressTakerIDs returns all taker IDs with an active submission for
// the given exam.
func (r *MonitorRepository) GetInProgressTakerIDs(ctx context.Context, examID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT taker_id FROM submissions WHERE exam_id = $1 AND status = $2`,
		examID, model.SubmissionStatusInProgress,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetAnsweredCounts returns the count of answered questions for every taker
// who has at least one answer recorded in the given exam.
func (r *MonitorRepository) GetAnsweredCounts(ctx context.Context, examID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT sub.taker_id, COUNT(*)
		 FROM submission_answers sa
		 JOIN submissions sub ON sa.submission_id = sub.id
		 WHERE sub.exam_id = $1
		 GROUP BY sub.taker_id`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[uuid.UUID]int64)
	for rows.Next() {
		var tid uuid.UUID
		var count int64
		if err := rows.Scan(&tid, &count); err != nil {
			return nil, err
		}
		result[tid] = count
	}
	return result, rows.Err()
}

// GetViolationCounts returns the number of integrity violations recorded per
// taker in the given exam.
func (r *MonitorRepository) GetViolationCounts(ctx context.Context, examID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT taker_id, COUNT(*)
		 FROM integrity_violations
		 WHERE exam_id = $1
		 GROUP BY taker_id`,
		examID,
	)
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
