package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hallpass-labs/examhall-backend/internal/model"
)

// ExamRepository handles exam and question data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam header (no questions) by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, description, subject, author_id, duration_minutes, status, created_at, updated_at
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.Description, &e.Subject, &e.AuthorID,
		&e.DurationMinutes, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetWithQuestions retrieves an exam together with its ordered questions.
func (r *ExamRepository) GetWithQuestions(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	questions, err := r.listQuestions(ctx, id)
	if err != nil {
		return nil, err
	}
	e.Questions = questions
	return e, nil
}

// ListByAuthorPaginated retrieves exams filtered by author with pagination.
// Pass uuid.Nil to list all exams (admin).
func (r *ExamRepository) ListByAuthorPaginated(ctx context.Context, authorID uuid.UUID, limit, offset int) ([]model.Exam, int, error) {
	where := ``
	var args []interface{}
	if authorID != uuid.Nil {
		args = append(args, authorID)
		where = ` WHERE author_id = $1`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM exams`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, title, description, subject, author_id, duration_minutes, status, created_at, updated_at
	          FROM exams` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.Subject, &e.AuthorID,
			&e.DurationMinutes, &e.Status, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, 0, err
		}
		exams = append(exams, e)
	}
	return exams, total, rows.Err()
}

// Create inserts a new exam header.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, description, subject, author_id, duration_minutes, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.Description, e.Subject, e.AuthorID, e.DurationMinutes, e.Status,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// Update modifies an exam's editable header fields.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams
		 SET title = $1, description = $2, subject = $3, duration_minutes = $4, updated_at = NOW()
		 WHERE id = $5`,
		e.Title, e.Description, e.Subject, e.DurationMinutes, e.ID)
	return err
}

// UpdateStatus updates an exam's status.
func (r *ExamRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ExamStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	return err
}

// Delete removes an exam and, via cascade, its questions.
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
	return err
}

// ListPublished returns all exams with PUBLISHED status.
// Used for cache prewarming on application startup.
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, description, subject, author_id, duration_minutes, status, created_at, updated_at
		 FROM exams WHERE status = $1
		 ORDER BY created_at DESC`, model.ExamStatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.Subject, &e.AuthorID,
			&e.DurationMinutes, &e.Status, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// ReplaceQuestions swaps an exam's full question list in one transaction.
// The incoming order defines order_num.
func (r *ExamRepository) ReplaceQuestions(ctx context.Context, examID uuid.UUID, questions []model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE exam_id = $1`, examID); err != nil {
		return err
	}

	for i := range questions {
		q := &questions[i]
		q.ExamID = examID
		q.OrderNum = i
		correct, err := json.Marshal(q.CorrectAnswer)
		if err != nil {
			return fmt.Errorf("encode correct answer: %w", err)
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO questions (exam_id, question_type, question_text, image_url, options, correct_answer, unit, points, order_num)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING id`,
			q.ExamID, q.QuestionType, q.QuestionText, q.ImageURL, q.Options, correct, q.Unit, q.Points, q.OrderNum,
		).Scan(&q.ID)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// listQuestions retrieves all questions for an exam, ordered by order_num.
func (r *ExamRepository) listQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, question_type, question_text, image_url, options, correct_answer, unit, points, order_num
		 FROM questions WHERE exam_id = $1
		 ORDER BY order_num`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func scanQuestion(row pgx.Row) (model.Question, error) {
	var q model.Question
	var correct []byte
	if err := row.Scan(&q.ID, &q.ExamID, &q.QuestionType, &q.QuestionText, &q.ImageURL,
		&q.Options, &correct, &q.Unit, &q.Points, &q.OrderNum); err != nil {
		return q, err
	}
	if err := json.Unmarshal(correct, &q.CorrectAnswer); err != nil {
		return q, fmt.Errorf("decode correct answer: %w", err)
	}
	return q, nil
}
