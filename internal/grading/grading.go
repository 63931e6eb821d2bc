// Package grading computes final scores for finished attempts. Grading is
// a pure function over the canonical (unshuffled) question list and the
// submitted answer map; persistence of the result belongs to the caller.
package grading

import (
	"math"
	"strings"

	"github.com/examo-id/examo-backend/internal/model"
)

// ParticipationPoints is the flat credit given to a non-empty essay answer
// that does not match the rubric. The answer is still bucketed as
// incorrect for statistics.
const ParticipationPoints = 1

// Bucket classifies a single question's outcome. Every question falls
// into exactly one bucket.
type Bucket int

const (
	BucketUnanswered Bucket = iota
	BucketCorrect
	BucketIncorrect
)

// Stats counts questions per bucket.
type Stats struct {
	Correct    int `json:"correct"`
	Incorrect  int `json:"incorrect"`
	Unanswered int `json:"unanswered"`
	Total      int `json:"total"`
}

// Summary is the aggregate grading result.
type Summary struct {
	Score               int     `json:"score"` // rounded percentage
	PointsObtained      float64 `json:"points_obtained"`
	TotalPointsPossible float64 `json:"total_points_possible"`
	Stats               Stats   `json:"stats"`
}

// Grade scores a full attempt. An empty question list yields an all-zero
// summary. Malformed key data degrades to incorrect/unanswered rather
// than aborting the rest of the attempt.
func Grade(questions []model.Question, answers model.AnswerMap) Summary {
	var s Summary
	s.Stats.Total = len(questions)

	for i := range questions {
		q := &questions[i]
		s.TotalPointsPossible += q.Points

		points, bucket := GradeQuestion(q, answers[q.ID])
		s.PointsObtained += points
		switch bucket {
		case BucketCorrect:
			s.Stats.Correct++
		case BucketIncorrect:
			s.Stats.Incorrect++
		default:
			s.Stats.Unanswered++
		}
	}

	if s.TotalPointsPossible > 0 {
		s.Score = int(math.Round(s.PointsObtained / s.TotalPointsPossible * 100))
	}
	return s
}

// GradeQuestion scores one question against its submitted answer. A nil
// answer, or an empty text answer, counts as unanswered. An answer whose
// variant does not match the question type counts as incorrect.
func GradeQuestion(q *model.Question, ans model.Answer) (float64, Bucket) {
	if isUnanswered(ans) {
		return 0, BucketUnanswered
	}

	switch q.Type {
	case model.QuestionTypeMCQ:
		choice, ok := ans.(model.ChoiceAnswer)
		if !ok || q.CorrectIndex == nil {
			return 0, BucketIncorrect
		}
		if choice.Index == *q.CorrectIndex {
			return q.Points, BucketCorrect
		}
		return 0, BucketIncorrect

	case model.QuestionTypeMultipleSelect:
		multi, ok := ans.(model.MultiChoiceAnswer)
		if !ok {
			return 0, BucketIncorrect
		}
		// Exact set equality; partial overlap earns nothing.
		if indexSetEqual(multi.Indices, q.CorrectIndices) {
			return q.Points, BucketCorrect
		}
		return 0, BucketIncorrect

	case model.QuestionTypeTrueFalse:
		b, ok := ans.(model.BoolAnswer)
		if !ok || q.TrueFalseAnswer == nil {
			return 0, BucketIncorrect
		}
		if b.Value == *q.TrueFalseAnswer {
			return q.Points, BucketCorrect
		}
		return 0, BucketIncorrect

	case model.QuestionTypeShortAnswer:
		text, ok := ans.(model.TextAnswer)
		if !ok || q.ShortAnswer == "" {
			return 0, BucketIncorrect
		}
		if normalizeExact(text.Text) == normalizeExact(q.ShortAnswer) {
			return q.Points, BucketCorrect
		}
		return 0, BucketIncorrect

	case model.QuestionTypeEssay:
		text, ok := ans.(model.TextAnswer)
		if !ok {
			return 0, BucketIncorrect
		}
		return gradeEssay(q, text.Text)
	}

	return 0, BucketIncorrect
}

// gradeEssay applies the three-tier heuristic: empty gets nothing,
// rubric containment (either direction) gets full credit, anything else
// gets the flat participation credit but is still counted incorrect.
func gradeEssay(q *model.Question, answer string) (float64, Bucket) {
	submitted := normalizeExact(answer)
	if submitted == "" {
		return 0, BucketIncorrect
	}

	rubric := normalizeExact(q.EssayAnswer)
	if rubric != "" && (strings.Contains(submitted, rubric) || strings.Contains(rubric, submitted)) {
		return q.Points, BucketCorrect
	}
	return ParticipationPoints, BucketIncorrect
}

// isUnanswered mirrors the runner's progress accounting: only a missing
// answer or an empty-string text answer counts as unanswered. An empty
// multi-choice selection is a (wrong) answer, not a skip.
func isUnanswered(ans model.Answer) bool {
	if ans == nil {
		return true
	}
	if t, ok := ans.(model.TextAnswer); ok {
		return t.Text == ""
	}
	return false
}

// normalizeExact is the authoritative normalization: trim and casefold
// only. The lenient review matcher lives in review.go and is display-only.
func normalizeExact(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func indexSetEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[int]struct{}, len(b))
	for _, idx := range b {
		set[idx] = struct{}{}
	}
	for _, idx := range a {
		if _, ok := set[idx]; !ok {
			return false
		}
	}
	return true
}
