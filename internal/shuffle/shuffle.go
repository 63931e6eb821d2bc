// Package shuffle derives the per-(exam, student) question ordering shown
// during an attempt. The ordering is generated at most once per attempt
// and cached, so a page reload can never re-roll the paper: regenerating
// mid-attempt would desynchronize stored answer indices from the
// displayed option positions.
package shuffle

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/examo-id/examo-backend/internal/model"
)

// Engine produces and caches session question orderings.
type Engine struct {
	store Store
	rng   *rand.Rand
}

// Option configures an Engine.
type Option func(*Engine)

// WithRand injects a seeded source, used by tests for reproducibility.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

// NewEngine creates an Engine backed by the given cache store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SessionOrder returns the question list as presented to this student:
// cached ordering if one exists, otherwise a freshly shuffled one that is
// stored for the rest of the attempt. Option shuffling remaps the
// answer-key indices so grading against the shuffled view stays
// score-invariant. Preview mode bypasses both the cache read and write.
func (e *Engine) SessionOrder(ctx context.Context, exam *model.Exam, studentID int, preview bool) ([]model.Question, error) {
	if !preview {
		cached, ok, err := e.store.Get(ctx, exam.ID.String(), studentID)
		if err != nil {
			return nil, fmt.Errorf("read shuffle cache: %w", err)
		}
		if ok {
			return cached, nil
		}
	}

	questions := make([]model.Question, len(exam.Questions))
	copy(questions, exam.Questions)

	if exam.RandomizeQuestions {
		fisherYates(e.rng, len(questions), func(i, j int) {
			questions[i], questions[j] = questions[j], questions[i]
		})
	}

	for i := range questions {
		e.shuffleOptions(&questions[i])
	}

	if !preview {
		if err := e.store.Put(ctx, exam.ID.String(), studentID, questions); err != nil {
			return nil, fmt.Errorf("write shuffle cache: %w", err)
		}
	}
	return questions, nil
}

// shuffleOptions permutes one question's options in place and remaps its
// answer-key indices to the new positions. Only choice-based questions
// with RandomizeOptions participate; lists of length 0 or 1 are no-ops.
func (e *Engine) shuffleOptions(q *model.Question) {
	if q.Type != model.QuestionTypeMCQ && q.Type != model.QuestionTypeMultipleSelect {
		return
	}
	if !q.RandomizeOptions || len(q.Options) < 2 {
		return
	}

	// perm[newPos] = oldPos of the option now displayed at newPos.
	perm := make([]int, len(q.Options))
	for i := range perm {
		perm[i] = i
	}
	fisherYates(e.rng, len(perm), func(i, j int) {
		perm[i], perm[j] = perm[j], perm[i]
	})

	shuffled := make([]string, len(q.Options))
	newPos := make(map[int]int, len(perm)) // oldPos -> newPos
	for newIdx, oldIdx := range perm {
		shuffled[newIdx] = q.Options[oldIdx]
		newPos[oldIdx] = newIdx
	}
	q.Options = shuffled

	if q.CorrectIndex != nil {
		if remapped, ok := newPos[*q.CorrectIndex]; ok {
			idx := remapped
			q.CorrectIndex = &idx
		}
	}
	if len(q.CorrectIndices) > 0 {
		remapped := make([]int, 0, len(q.CorrectIndices))
		for _, oldIdx := range q.CorrectIndices {
			if idx, ok := newPos[oldIdx]; ok {
				remapped = append(remapped, idx)
			}
		}
		q.CorrectIndices = remapped
	}
}

// fisherYates runs the unbiased shuffle: for i from the last index down
// to 1, swap element i with a uniform element in [0, i].
func fisherYates(rng *rand.Rand, n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		swap(i, j)
	}
}
