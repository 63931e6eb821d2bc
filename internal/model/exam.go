package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the lifecycle states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// Exam is the immutable (within an attempt) exam definition.
type Exam struct {
	ID                 uuid.UUID  `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	AuthorID           int        `json:"author_id"`
	DurationMinutes    int        `json:"duration_minutes"`
	RandomizeQuestions bool       `json:"randomize_questions"`
	EntryToken         string     `json:"entry_token,omitempty"`
	ScheduledStart     *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd       *time.Time `json:"scheduled_end,omitempty"`
	Status             ExamStatus `json:"status"`
	Questions          []Question `json:"questions,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TotalPoints sums the point weights of all questions.
func (e *Exam) TotalPoints() float64 {
	var total float64
	for i := range e.Questions {
		total += e.Questions[i].Points
	}
	return total
}

// ExamPayload is the Redis-cached paper sent to students (no answer keys).
type ExamPayload struct {
	ExamID    uuid.UUID         `json:"exam_id"`
	Title     string            `json:"title"`
	Duration  int               `json:"duration_minutes"`
	Questions []StudentQuestion `json:"questions"`
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title           string     `json:"title" binding:"required,min=3,max=255"`
	Description     string     `json:"description" binding:"omitempty,max=2000"`
	DurationMinutes int        `json:"duration_minutes" binding:"required,min=1,max=480"`
	EntryToken      string     `json:"entry_token" binding:"omitempty,min=4,max=20"`
	ScheduledStart  *time.Time `json:"scheduled_start" binding:"omitempty"`
	ScheduledEnd    *time.Time `json:"scheduled_end" binding:"omitempty,gtfield=ScheduledStart"`
	Randomize       bool       `json:"randomize_questions"`
}

// SetQuestionsRequest replaces an exam's full question list.
type SetQuestionsRequest struct {
	Questions []Question `json:"questions" binding:"required,min=1"`
}

// JoinExamRequest is the payload for a student joining an exam.
type JoinExamRequest struct {
	EntryToken string `json:"entry_token" binding:"omitempty,max=20"`
}
