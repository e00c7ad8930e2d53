package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hallpass-labs/examhall-backend/internal/repository"
	"github.com/hallpass-labs/examhall-backend/internal/response"
)

// ResultsService serves per-exam outcome listings to professors.
type ResultsService struct {
	subRepo  *repository.SubmissionRepository
	examRepo *repository.ExamRepository
	log      zerolog.Logger
}

// NewResultsService creates a new ResultsService.
func NewResultsService(subRepo *repository.SubmissionRepository, examRepo *repository.ExamRepository, log zerolog.Logger) *ResultsService {
	return &ResultsService{
		subRepo:  subRepo,
		examRepo: examRepo,
		log:      log.With().Str("component", "results_service").Logger(),
	}
}

// ListResults returns paginated results for an exam, with an author check.
func (s *ResultsService) ListResults(ctx context.Context, examID, authorID uuid.UUID, page, perPage int) ([]repository.ExamResult, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 25
	}
	if perPage > 200 {
		perPage = 200
	}

	if err := s.checkAuthor(ctx, examID, authorID); err != nil {
		return nil, nil, err
	}

	results, total, err := s.subRepo.ListResultsByExam(ctx, examID, page, perPage)
	if err != nil {
		return nil, nil, err
	}
	if results == nil {
		results = []repository.ExamResult{}
	}

	totalPages := (int(total) + perPage - 1) / perPage
	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: int(total),
		TotalPages: totalPages,
	}
	return results, pagination, nil
}

// ExportCSV streams every result row for an exam as CSV.
func (s *ResultsService) ExportCSV(ctx context.Context, examID, authorID uuid.UUID, w io.Writer) error {
	if err := s.checkAuthor(ctx, examID, authorID); err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{
		"name", "email", "status", "score", "started_at", "completed_at", "time_spent_seconds", "violations",
	}); err != nil {
		return err
	}

	// Page through everything; exports are not latency sensitive.
	const pageSize = 500
	for page := 1; ; page++ {
		results, total, err := s.subRepo.ListResultsByExam(ctx, examID, page, pageSize)
		if err != nil {
			return fmt.Errorf("list results: %w", err)
		}
		for _, r := range results {
			score := ""
			if r.Score != nil {
				score = strconv.FormatFloat(*r.Score, 'f', 2, 64)
			}
			completed := ""
			if r.CompletedAt != nil {
				completed = r.CompletedAt.UTC().Format(time.RFC3339)
			}
			spent := ""
			if r.TimeSpentSeconds != nil {
				spent = strconv.Itoa(*r.TimeSpentSeconds)
			}
			row := []string{
				r.Name,
				r.Email,
				string(r.Status),
				score,
				r.StartedAt.UTC().Format(time.RFC3339),
				completed,
				spent,
				strconv.Itoa(r.ViolationCount),
			}
			if err := writer.Write(row); err != nil {
				return err
			}
		}
		if int64(page*pageSize) >= total || len(results) == 0 {
			break
		}
	}

	writer.Flush()
	return writer.Error()
}

func (s *ResultsService) checkAuthor(ctx context.Context, examID, authorID uuid.UUID) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return err
	}
	if authorID != uuid.Nil && exam.AuthorID != authorID {
		return ErrNotExamAuthor
	}
	return nil
}
