package grading

import (
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/examo-id/examo-backend/internal/model"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func mcq(points float64, correct int, options ...string) model.Question {
	return model.Question{
		ID:           uuid.New(),
		Type:         model.QuestionTypeMCQ,
		Options:      options,
		CorrectIndex: intPtr(correct),
		Points:       points,
	}
}

func TestGradeMCQ(t *testing.T) {
	q := mcq(10, 2, "A", "B", "C", "D")

	tests := []struct {
		name       string
		answer     model.Answer
		wantPoints float64
		wantBucket Bucket
	}{
		{"correct index", model.ChoiceAnswer{Index: 2}, 10, BucketCorrect},
		{"wrong index", model.ChoiceAnswer{Index: 0}, 0, BucketIncorrect},
		{"missing answer", nil, 0, BucketUnanswered},
		{"wrong variant", model.BoolAnswer{Value: true}, 0, BucketIncorrect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points, bucket := GradeQuestion(&q, tt.answer)
			if points != tt.wantPoints || bucket != tt.wantBucket {
				t.Errorf("got (%v, %v), want (%v, %v)", points, bucket, tt.wantPoints, tt.wantBucket)
			}
		})
	}
}

func TestGradeMultipleSelect(t *testing.T) {
	q := model.Question{
		ID:             uuid.New(),
		Type:           model.QuestionTypeMultipleSelect,
		Options:        []string{"A", "B", "C", "D"},
		CorrectIndices: []int{0, 2},
		Points:         5,
	}

	tests := []struct {
		name       string
		indices    []int
		wantPoints float64
		wantBucket Bucket
	}{
		{"exact set", []int{0, 2}, 5, BucketCorrect},
		{"exact set reordered", []int{2, 0}, 5, BucketCorrect},
		{"partial overlap earns nothing", []int{0}, 0, BucketIncorrect},
		{"superset earns nothing", []int{0, 2, 3}, 0, BucketIncorrect},
		{"empty selection is answered and wrong", nil, 0, BucketIncorrect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points, bucket := GradeQuestion(&q, model.MultiChoiceAnswer{Indices: tt.indices})
			if points != tt.wantPoints || bucket != tt.wantBucket {
				t.Errorf("got (%v, %v), want (%v, %v)", points, bucket, tt.wantPoints, tt.wantBucket)
			}
		})
	}
}

func TestGradeTrueFalse(t *testing.T) {
	q := model.Question{
		ID:              uuid.New(),
		Type:            model.QuestionTypeTrueFalse,
		TrueFalseAnswer: boolPtr(true),
		Points:          2,
	}

	if points, bucket := GradeQuestion(&q, model.BoolAnswer{Value: true}); points != 2 || bucket != BucketCorrect {
		t.Errorf("true answer: got (%v, %v)", points, bucket)
	}
	if points, bucket := GradeQuestion(&q, model.BoolAnswer{Value: false}); points != 0 || bucket != BucketIncorrect {
		t.Errorf("false answer: got (%v, %v)", points, bucket)
	}
}

func TestGradeShortAnswer(t *testing.T) {
	q := model.Question{
		ID:          uuid.New(),
		Type:        model.QuestionTypeShortAnswer,
		ShortAnswer: "Jakarta",
		Points:      4,
	}

	tests := []struct {
		name       string
		text       string
		wantPoints float64
		wantBucket Bucket
	}{
		{"exact", "Jakarta", 4, BucketCorrect},
		{"case and whitespace normalized", "  jakarta ", 4, BucketCorrect},
		{"different text", "Bandung", 0, BucketIncorrect},
		{"near miss is not accepted", "jakata", 0, BucketIncorrect},
		{"empty is unanswered", "", 0, BucketUnanswered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points, bucket := GradeQuestion(&q, model.TextAnswer{Text: tt.text})
			if points != tt.wantPoints || bucket != tt.wantBucket {
				t.Errorf("got (%v, %v), want (%v, %v)", points, bucket, tt.wantPoints, tt.wantBucket)
			}
		})
	}
}

func TestGradeEssay(t *testing.T) {
	q := model.Question{
		ID:          uuid.New(),
		Type:        model.QuestionTypeEssay,
		EssayAnswer: "newton",
		Points:      10,
	}

	tests := []struct {
		name       string
		text       string
		wantPoints float64
		wantBucket Bucket
	}{
		{"containment earns full points", "isaac newton discovered gravity", 10, BucketCorrect},
		{"reverse containment earns full points", "new", 10, BucketCorrect},
		{"non-match earns participation credit", "i don't know", ParticipationPoints, BucketIncorrect},
		{"whitespace-only is incorrect with zero", "   ", 0, BucketIncorrect},
		{"empty is unanswered", "", 0, BucketUnanswered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points, bucket := GradeQuestion(&q, model.TextAnswer{Text: tt.text})
			if points != tt.wantPoints || bucket != tt.wantBucket {
				t.Errorf("got (%v, %v), want (%v, %v)", points, bucket, tt.wantPoints, tt.wantBucket)
			}
		})
	}
}

func TestGradeEssayWithoutRubric(t *testing.T) {
	q := model.Question{ID: uuid.New(), Type: model.QuestionTypeEssay, Points: 10}

	points, bucket := GradeQuestion(&q, model.TextAnswer{Text: "anything at all"})
	if points != ParticipationPoints || bucket != BucketIncorrect {
		t.Errorf("missing rubric should degrade to participation credit, got (%v, %v)", points, bucket)
	}
}

func TestGradeAllUnanswered(t *testing.T) {
	questions := []model.Question{
		mcq(10, 0, "A", "B"),
		mcq(10, 1, "A", "B"),
		mcq(10, 0, "A", "B"),
	}

	s := Grade(questions, model.AnswerMap{})
	if s.Score != 0 || s.Stats.Unanswered != 3 || s.Stats.Correct != 0 || s.Stats.Incorrect != 0 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if s.TotalPointsPossible != 30 {
		t.Errorf("total points = %v, want 30", s.TotalPointsPossible)
	}
}

func TestGradeEmptyExam(t *testing.T) {
	s := Grade(nil, model.AnswerMap{})
	want := Summary{}
	if !reflect.DeepEqual(s, want) {
		t.Errorf("empty exam should produce all-zero summary, got %+v", s)
	}
}

func TestGradeBucketsArePartition(t *testing.T) {
	tf := model.Question{ID: uuid.New(), Type: model.QuestionTypeTrueFalse, TrueFalseAnswer: boolPtr(false), Points: 1}
	sa := model.Question{ID: uuid.New(), Type: model.QuestionTypeShortAnswer, ShortAnswer: "x", Points: 1}
	es := model.Question{ID: uuid.New(), Type: model.QuestionTypeEssay, EssayAnswer: "key", Points: 6}
	questions := []model.Question{mcq(10, 1, "A", "B", "C"), tf, sa, es}

	answers := model.AnswerMap{
		questions[0].ID: model.ChoiceAnswer{Index: 1},
		tf.ID:           model.BoolAnswer{Value: true},
		es.ID:           model.TextAnswer{Text: "unrelated"},
		// sa left unanswered
	}

	s := Grade(questions, answers)
	if got := s.Stats.Correct + s.Stats.Incorrect + s.Stats.Unanswered; got != s.Stats.Total {
		t.Fatalf("buckets do not partition: %d + %d + %d != %d",
			s.Stats.Correct, s.Stats.Incorrect, s.Stats.Unanswered, s.Stats.Total)
	}
	if s.Stats.Correct != 1 || s.Stats.Incorrect != 2 || s.Stats.Unanswered != 1 {
		t.Errorf("unexpected stats: %+v", s.Stats)
	}
	// 10 for the mcq + 1 participation for the essay.
	if s.PointsObtained != 11 {
		t.Errorf("points obtained = %v, want 11", s.PointsObtained)
	}
}

func TestGradeScoreRounding(t *testing.T) {
	questions := []model.Question{
		mcq(1, 0, "A", "B"),
		mcq(1, 0, "A", "B"),
		mcq(1, 0, "A", "B"),
	}
	answers := model.AnswerMap{
		questions[0].ID: model.ChoiceAnswer{Index: 0},
	}

	s := Grade(questions, answers)
	// 1/3 of the points: 33.33 rounds to 33.
	if s.Score != 33 {
		t.Errorf("score = %d, want 33", s.Score)
	}
}

func TestGradeIsPure(t *testing.T) {
	questions := []model.Question{mcq(10, 2, "A", "B", "C", "D")}
	answers := model.AnswerMap{questions[0].ID: model.ChoiceAnswer{Index: 2}}

	first := Grade(questions, answers)
	second := Grade(questions, answers)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("grading is not idempotent: %+v vs %+v", first, second)
	}
}
