package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/hallpass-labs/examhall-backend/internal/repository"
)

// MonitorService orchestrates live exam monitoring business logic.
type MonitorService struct {
	monitorRepo *repository.MonitorRepository
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(monitorRepo *repository.MonitorRepository) *MonitorService {
	return &MonitorService{monitorRepo: monitorRepo}
}

// TakerProgressSnapshot holds the answered count and violation count for
// every in-progress taker.
type TakerProgressSnapshot struct {
	AnsweredCounts  map[uuid.UUID]int64 `json:"answered_counts"`
	ViolationCounts map[uuid.UUID]int64 `json:"violation_counts"`
	TotalViolations int64               `json:"total_violations"`
}

// GetTakerProgress returns answered counts and violation counts. The two
// independent fetches run in parallel to minimize latency.
func (s *MonitorService) GetTakerProgress(ctx context.Context, examID uuid.UUID) (*TakerProgressSnapshot, error) {
	snapshot := &TakerProgressSnapshot{
		AnsweredCounts:  make(map[uuid.UUID]int64),
		ViolationCounts: make(map[uuid.UUID]int64),
	}

	var (
		answeredCounts  map[uuid.UUID]int64
		violationCounts map[uuid.UUID]int64
		answeredErr     error
		violationErr    error
		wg              sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		answeredCounts, answeredErr = s.monitorRepo.GetAnsweredCounts(ctx, examID)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		violationCounts, violationErr = s.monitorRepo.GetViolationCounts(ctx, examID)
	}()

	wg.Wait()

	// Answered counts are critical; violation counts are best-effort.
	if answeredErr != nil {
		return nil, answeredErr
	}

	if answeredCounts != nil {
		snapshot.AnsweredCounts = answeredCounts
	}

	if violationErr == nil && violationCounts != nil {
		snapshot.ViolationCounts = violationCounts
		for _, count := range violationCounts {
			snapshot.TotalViolations += count
		}
	}

	return snapshot, nil
}

// GetActiveTakers returns the taker IDs currently in progress for an exam.
func (s *MonitorService) GetActiveTakers(ctx context.Context, examID uuid.UUID) ([]uuid.UUID, error) {
	return s.monitorRepo.GetInProgressTakerIDs(ctx, examID)
}
