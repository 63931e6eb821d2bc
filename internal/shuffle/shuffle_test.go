package shuffle

import (
	"context"
	"math/rand"
	"testing"

	"github.com/google/uuid"

	"github.com/examo-id/examo-backend/internal/grading"
	"github.com/examo-id/examo-backend/internal/model"
)

func intPtr(n int) *int { return &n }

func buildExam(randomize bool) *model.Exam {
	questions := make([]model.Question, 0, 8)
	for i := 0; i < 8; i++ {
		questions = append(questions, model.Question{
			ID:               uuid.New(),
			Type:             model.QuestionTypeMCQ,
			Text:             "question",
			Options:          []string{"alpha", "beta", "gamma", "delta"},
			CorrectIndex:     intPtr(i % 4),
			Points:           10,
			RandomizeOptions: true,
			OrderNum:         i + 1,
		})
	}
	questions = append(questions, model.Question{
		ID:               uuid.New(),
		Type:             model.QuestionTypeMultipleSelect,
		Text:             "pick two",
		Options:          []string{"one", "two", "three", "four"},
		CorrectIndices:   []int{1, 3},
		Points:           10,
		RandomizeOptions: true,
	})
	return &model.Exam{
		ID:                 uuid.New(),
		Title:              "Ujian Matematika",
		DurationMinutes:    60,
		RandomizeQuestions: randomize,
		Status:             model.ExamStatusPublished,
		Questions:          questions,
	}
}

func TestSessionOrderIsStable(t *testing.T) {
	store := NewMemoryStore()
	engine := NewEngine(store, WithRand(rand.New(rand.NewSource(42))))
	exam := buildExam(true)
	ctx := context.Background()

	first, err := engine.SessionOrder(ctx, exam, 7, false)
	if err != nil {
		t.Fatalf("first SessionOrder: %v", err)
	}

	// Simulate a reload: same student asks again, engine must return the
	// cached ordering instead of re-rolling.
	second, err := engine.SessionOrder(ctx, exam, 7, false)
	if err != nil {
		t.Fatalf("second SessionOrder: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("length changed across reloads: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("question order changed at position %d", i)
		}
		for j := range first[i].Options {
			if first[i].Options[j] != second[i].Options[j] {
				t.Fatalf("option order changed for question %d", i)
			}
		}
	}
}

func TestSessionOrderPerStudent(t *testing.T) {
	store := NewMemoryStore()
	engine := NewEngine(store, WithRand(rand.New(rand.NewSource(1))))
	exam := buildExam(true)
	ctx := context.Background()

	a, err := engine.SessionOrder(ctx, exam, 1, false)
	if err != nil {
		t.Fatal(err)
	}
	b, err := engine.SessionOrder(ctx, exam, 2, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != len(exam.Questions) || len(b) != len(exam.Questions) {
		t.Fatal("shuffle must not add or drop questions")
	}

	seen := make(map[uuid.UUID]bool)
	for _, q := range a {
		seen[q.ID] = true
	}
	for _, q := range b {
		if !seen[q.ID] {
			t.Fatalf("question %s missing from other student's ordering", q.ID)
		}
	}
}

func TestShuffleScoreInvariance(t *testing.T) {
	// A perfect answer sheet built against the shuffled view must grade
	// to full marks: the remapped keys track the displayed positions.
	store := NewMemoryStore()
	engine := NewEngine(store, WithRand(rand.New(rand.NewSource(99))))
	exam := buildExam(true)

	ordered, err := engine.SessionOrder(context.Background(), exam, 3, false)
	if err != nil {
		t.Fatal(err)
	}

	answers := make(model.AnswerMap)
	for _, q := range ordered {
		switch q.Type {
		case model.QuestionTypeMCQ:
			answers[q.ID] = model.ChoiceAnswer{Index: *q.CorrectIndex}
		case model.QuestionTypeMultipleSelect:
			answers[q.ID] = model.MultiChoiceAnswer{Indices: q.CorrectIndices}
		}
	}

	summary := grading.Grade(ordered, answers)
	if summary.Score != 100 {
		t.Fatalf("expected full marks against shuffled keys, got %d", summary.Score)
	}
	if summary.Stats.Incorrect != 0 || summary.Stats.Unanswered != 0 {
		t.Fatalf("unexpected stats: %+v", summary.Stats)
	}
}

func TestRemapCoversEveryOption(t *testing.T) {
	engine := NewEngine(NewMemoryStore(), WithRand(rand.New(rand.NewSource(5))))
	q := model.Question{
		ID:               uuid.New(),
		Type:             model.QuestionTypeMCQ,
		Options:          []string{"a", "b", "c", "d", "e"},
		CorrectIndex:     intPtr(2),
		RandomizeOptions: true,
	}
	for i := 0; i < 50; i++ {
		shuffled := q
		shuffled.Options = append([]string(nil), q.Options...)
		idx := *q.CorrectIndex
		shuffled.CorrectIndex = &idx
		engine.shuffleOptions(&shuffled)

		if shuffled.Options[*shuffled.CorrectIndex] != "c" {
			t.Fatalf("remapped index %d points at %q, want %q",
				*shuffled.CorrectIndex, shuffled.Options[*shuffled.CorrectIndex], "c")
		}
	}
}

func TestShuffleSkipsShortAndFixedLists(t *testing.T) {
	engine := NewEngine(NewMemoryStore(), WithRand(rand.New(rand.NewSource(5))))

	single := model.Question{
		Type:             model.QuestionTypeMCQ,
		Options:          []string{"only"},
		CorrectIndex:     intPtr(0),
		RandomizeOptions: true,
	}
	engine.shuffleOptions(&single)
	if single.Options[0] != "only" || *single.CorrectIndex != 0 {
		t.Fatal("single-option list must be untouched")
	}

	fixed := model.Question{
		Type:             model.QuestionTypeMCQ,
		Options:          []string{"a", "b", "c"},
		CorrectIndex:     intPtr(1),
		RandomizeOptions: false,
	}
	engine.shuffleOptions(&fixed)
	if fixed.Options[1] != "b" || *fixed.CorrectIndex != 1 {
		t.Fatal("fixed-order options must be untouched")
	}

	essay := model.Question{
		Type:        model.QuestionTypeEssay,
		EssayAnswer: "jawaban",
	}
	engine.shuffleOptions(&essay)
	if essay.EssayAnswer != "jawaban" {
		t.Fatal("non-choice question must be untouched")
	}
}

func TestPreviewBypassesCache(t *testing.T) {
	store := NewMemoryStore()
	engine := NewEngine(store, WithRand(rand.New(rand.NewSource(7))))
	exam := buildExam(true)
	ctx := context.Background()

	if _, err := engine.SessionOrder(ctx, exam, 9, true); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Get(ctx, exam.ID.String(), 9); ok {
		t.Fatal("preview run must not write to the cache")
	}
}

func TestNoRandomizationPreservesAuthoredOrder(t *testing.T) {
	engine := NewEngine(NewMemoryStore(), WithRand(rand.New(rand.NewSource(3))))
	exam := buildExam(false)
	for i := range exam.Questions {
		exam.Questions[i].RandomizeOptions = false
	}

	ordered, err := engine.SessionOrder(context.Background(), exam, 4, false)
	if err != nil {
		t.Fatal(err)
	}
	for i := range ordered {
		if ordered[i].ID != exam.Questions[i].ID {
			t.Fatalf("authored order not preserved at position %d", i)
		}
	}
}
