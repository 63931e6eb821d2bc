package model

import (
	"fmt"

	"github.com/google/uuid"
)

// QuestionType enumerates the supported question variants.
type QuestionType string

const (
	QuestionTypeMCQ            QuestionType = "mcq"
	QuestionTypeMultipleSelect QuestionType = "multiple_select"
	QuestionTypeTrueFalse      QuestionType = "true_false"
	QuestionTypeShortAnswer    QuestionType = "short_answer"
	QuestionTypeEssay          QuestionType = "essay"
)

// Question is one exam question. Exactly the key fields matching Type are
// populated; grading never reads a key belonging to another variant.
type Question struct {
	ID               uuid.UUID    `json:"id"`
	Type             QuestionType `json:"type"`
	Text             string       `json:"text"`
	Options          []string     `json:"options,omitempty"`
	CorrectIndex     *int         `json:"correct_index,omitempty"`   // mcq
	CorrectIndices   []int        `json:"correct_indices,omitempty"` // multiple_select
	TrueFalseAnswer  *bool        `json:"true_false_answer,omitempty"`
	ShortAnswer      string       `json:"short_answer,omitempty"`
	EssayAnswer      string       `json:"essay_answer,omitempty"` // reference rubric
	Explanation      string       `json:"explanation,omitempty"`
	Points           float64      `json:"points"`
	RandomizeOptions bool         `json:"randomize_options,omitempty"`
	OrderNum         int          `json:"order_num"`
}

// Validate checks that the question carries the answer-key fields
// appropriate to its type.
func (q *Question) Validate() error {
	if q.Points < 0 {
		return fmt.Errorf("question %s: negative points", q.ID)
	}

	switch q.Type {
	case QuestionTypeMCQ:
		if len(q.Options) == 0 {
			return fmt.Errorf("question %s: mcq requires options", q.ID)
		}
		if q.CorrectIndex == nil {
			return fmt.Errorf("question %s: mcq requires correct_index", q.ID)
		}
		if *q.CorrectIndex < 0 || *q.CorrectIndex >= len(q.Options) {
			return fmt.Errorf("question %s: correct_index %d out of range", q.ID, *q.CorrectIndex)
		}
	case QuestionTypeMultipleSelect:
		if len(q.Options) == 0 {
			return fmt.Errorf("question %s: multiple_select requires options", q.ID)
		}
		if len(q.CorrectIndices) == 0 {
			return fmt.Errorf("question %s: multiple_select requires correct_indices", q.ID)
		}
		for _, idx := range q.CorrectIndices {
			if idx < 0 || idx >= len(q.Options) {
				return fmt.Errorf("question %s: correct index %d out of range", q.ID, idx)
			}
		}
	case QuestionTypeTrueFalse:
		if q.TrueFalseAnswer == nil {
			return fmt.Errorf("question %s: true_false requires true_false_answer", q.ID)
		}
	case QuestionTypeShortAnswer:
		if q.ShortAnswer == "" {
			return fmt.Errorf("question %s: short_answer requires a reference answer", q.ID)
		}
	case QuestionTypeEssay:
		// An empty rubric is allowed; grading degrades to participation-only.
	default:
		return fmt.Errorf("question %s: unknown type %q", q.ID, q.Type)
	}

	return nil
}

// StudentView strips the answer-key fields so the question can be sent to
// a student without leaking the key.
func (q Question) StudentView() StudentQuestion {
	return StudentQuestion{
		ID:       q.ID,
		Type:     q.Type,
		Text:     q.Text,
		Options:  q.Options,
		Points:   q.Points,
		OrderNum: q.OrderNum,
	}
}

// StudentQuestion is a question without the correct answer.
type StudentQuestion struct {
	ID       uuid.UUID    `json:"id"`
	Type     QuestionType `json:"type"`
	Text     string       `json:"text"`
	Options  []string     `json:"options,omitempty"`
	Points   float64      `json:"points"`
	OrderNum int          `json:"order_num"`
}
