package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt states. COMPLETED and DISQUALIFIED are
// terminal; an attempt is never mutated after reaching one of them.
type AttemptStatus string

const (
	AttemptStatusInProgress   AttemptStatus = "IN_PROGRESS"
	AttemptStatusCompleted    AttemptStatus = "COMPLETED"
	AttemptStatusDisqualified AttemptStatus = "DISQUALIFIED"
)

// Terminal reports whether the status is a final state.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptStatusCompleted || s == AttemptStatusDisqualified
}

// Attempt is one student's pass through one exam.
type Attempt struct {
	ID          uuid.UUID     `json:"id"`
	ExamID      uuid.UUID     `json:"exam_id"`
	StudentID   int           `json:"student_id"`
	Status      AttemptStatus `json:"status"`
	Answers     AnswerMap     `json:"answers,omitempty"`
	Logs        []ExamLog     `json:"logs,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	SubmittedAt *time.Time    `json:"submitted_at,omitempty"`

	// Score fields, populated only at finish time.
	Score               *float64 `json:"score,omitempty"`
	PointsObtained      float64  `json:"points_obtained"`
	TotalPointsPossible float64  `json:"total_points_possible"`
	CorrectCount        int      `json:"correct_count"`
	IncorrectCount      int      `json:"incorrect_count"`
	UnansweredCount     int      `json:"unanswered_count"`
	ViolationCount      int      `json:"violation_count"`
}

// AttemptState is the resume payload for a reloaded exam page: the
// autosaved answers plus the wall-clock-anchored remaining time.
type AttemptState struct {
	ExamID           uuid.UUID `json:"exam_id"`
	StudentID        int       `json:"student_id"`
	AutosavedAnswers AnswerMap `json:"autosaved_answers"`
	Logs             []ExamLog `json:"logs"`
	RemainingSeconds int       `json:"remaining_seconds"`
}
