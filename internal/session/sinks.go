package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/examo-id/examo-backend/internal/grading"
	"github.com/examo-id/examo-backend/internal/model"
)

// ProgressSnapshot is what autosave flushes: everything needed to restore
// the attempt after a disconnect.
type ProgressSnapshot struct {
	ExamID    uuid.UUID       `json:"exam_id"`
	StudentID int             `json:"student_id"`
	Answers   model.AnswerMap `json:"answers"`
	Logs      []model.ExamLog `json:"logs"`
	SavedAt   time.Time       `json:"saved_at"`
}

// Result is the terminal state of a finished attempt.
type Result struct {
	ExamID      uuid.UUID           `json:"exam_id"`
	StudentID   int                 `json:"student_id"`
	Status      model.AttemptStatus `json:"status"`
	Summary     grading.Summary     `json:"summary"`
	Answers     model.AnswerMap     `json:"answers"`
	Logs        []model.ExamLog     `json:"logs"`
	SubmittedAt time.Time           `json:"submitted_at"`
}

// PersistenceSink receives attempt state for durable storage. Runner
// treats SaveProgress failures as non-fatal: the attempt continues and
// the next flush retries.
type PersistenceSink interface {
	SaveProgress(ctx context.Context, snap ProgressSnapshot) error
	SaveFinalResult(ctx context.Context, res Result) error
}

// ViolationNotifier fans a focus-loss event out to whoever is watching
// the exam (monitor dashboards).
type ViolationNotifier interface {
	NotifyViolation(ctx context.Context, examID uuid.UUID, studentID int, count int, disqualified bool) error
}

// ViolationOutcome tells the caller what a visibility change amounted to.
type ViolationOutcome int

const (
	ViolationNone ViolationOutcome = iota
	ViolationWarned
	ViolationDisqualified
)
