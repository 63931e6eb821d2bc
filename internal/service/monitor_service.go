package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/examo-id/examo-backend/internal/repository"
)

// MonitorService orchestrates live exam monitoring business logic.
type MonitorService struct {
	monitorRepo *repository.MonitorRepository
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(monitorRepo *repository.MonitorRepository) *MonitorService {
	return &MonitorService{monitorRepo: monitorRepo}
}

// StudentProgressSnapshot holds the answered count and violation count for
// every in-progress student.
type StudentProgressSnapshot struct {
	AnsweredCounts  map[int]int64 // student_id → answered_count
	ViolationCounts map[int]int64 // student_id → violation_count
	TotalViolations int64
}

// GetStudentProgress fires the two independent fetches in parallel.
// Answered counts are critical; violation counts are best-effort.
func (s *MonitorService) GetStudentProgress(ctx context.Context, examID uuid.UUID) (*StudentProgressSnapshot, error) {
	snapshot := &StudentProgressSnapshot{
		AnsweredCounts:  make(map[int]int64),
		ViolationCounts: make(map[int]int64),
	}

	var (
		answeredCounts  map[int]int64
		violationCounts map[int]int64
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
