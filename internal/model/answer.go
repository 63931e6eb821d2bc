package model

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// AnswerKind tags the variant of a submitted answer value.
type AnswerKind string

const (
	AnswerKindChoice      AnswerKind = "choice"       // mcq
	AnswerKindMultiChoice AnswerKind = "multi_choice" // multiple_select
	AnswerKindBool        AnswerKind = "bool"         // true_false
	AnswerKindText        AnswerKind = "text"         // short_answer, essay
)

// Answer is a sealed union of the per-question-type answer values.
// Grading type-switches over the concrete types, so an mcq answer can
// never be compared against a true_false key.
type Answer interface {
	Kind() AnswerKind
}

// ChoiceAnswer is a single selected option index (mcq).
type ChoiceAnswer struct {
	Index int
}

// MultiChoiceAnswer is a set of selected option indices (multiple_select).
type MultiChoiceAnswer struct {
	Indices []int
}

// BoolAnswer is a true/false selection.
type BoolAnswer struct {
	Value bool
}

// TextAnswer is free text (short_answer or essay).
type TextAnswer struct {
	Text string
}

func (ChoiceAnswer) Kind() AnswerKind      { return AnswerKindChoice }
func (MultiChoiceAnswer) Kind() AnswerKind { return AnswerKindMultiChoice }
func (BoolAnswer) Kind() AnswerKind        { return AnswerKindBool }
func (TextAnswer) Kind() AnswerKind        { return AnswerKindText }

// ExpectedAnswerKind maps a question type to the answer kind it accepts.
func ExpectedAnswerKind(t QuestionType) AnswerKind {
	switch t {
	case QuestionTypeMCQ:
		return AnswerKindChoice
	case QuestionTypeMultipleSelect:
		return AnswerKindMultiChoice
	case QuestionTypeTrueFalse:
		return AnswerKindBool
	default:
		return AnswerKindText
	}
}

// answerJSON is the wire/storage envelope for the Answer union.
type answerJSON struct {
	Kind    AnswerKind `json:"kind"`
	Index   *int       `json:"index,omitempty"`
	Indices []int      `json:"indices,omitempty"`
	Value   *bool      `json:"value,omitempty"`
	Text    *string    `json:"text,omitempty"`
}

// MarshalAnswer encodes an Answer into its JSON envelope.
func MarshalAnswer(a Answer) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("nil answer")
	}
	env := answerJSON{Kind: a.Kind()}
	switch v := a.(type) {
	case ChoiceAnswer:
		env.Index = &v.Index
	case MultiChoiceAnswer:
		env.Indices = v.Indices
		if env.Indices == nil {
			env.Indices = []int{}
		}
	case BoolAnswer:
		env.Value = &v.Value
	case TextAnswer:
		env.Text = &v.Text
	default:
		return nil, fmt.Errorf("unknown answer type %T", a)
	}
	return json.Marshal(env)
}

// UnmarshalAnswer decodes the JSON envelope back into an Answer.
func UnmarshalAnswer(data []byte) (Answer, error) {
	var env answerJSON
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Kind {
	case AnswerKindChoice:
		if env.Index == nil {
			return nil, fmt.Errorf("choice answer missing index")
		}
		return ChoiceAnswer{Index: *env.Index}, nil
	case AnswerKindMultiChoice:
		return MultiChoiceAnswer{Indices: env.Indices}, nil
	case AnswerKindBool:
		if env.Value == nil {
			return nil, fmt.Errorf("bool answer missing value")
		}
		return BoolAnswer{Value: *env.Value}, nil
	case AnswerKindText:
		if env.Text == nil {
			return nil, fmt.Errorf("text answer missing text")
		}
		return TextAnswer{Text: *env.Text}, nil
	default:
		return nil, fmt.Errorf("unknown answer kind %q", env.Kind)
	}
}

// AnswerMap holds the submitted answers keyed by question ID.
type AnswerMap map[uuid.UUID]Answer

// MarshalJSON encodes every answer through its envelope.
func (m AnswerMap) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m))
	for qid, a := range m {
		raw, err := MarshalAnswer(a)
		if err != nil {
			return nil, fmt.Errorf("answer for %s: %w", qid, err)
		}
		out[qid.String()] = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the envelope map back into typed answers.
func (m *AnswerMap) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(AnswerMap, len(raw))
	for k, v := range raw {
		qid, err := uuid.Parse(k)
		if err != nil {
			return fmt.Errorf("answer key %q: %w", k, err)
		}
		a, err := UnmarshalAnswer(v)
		if err != nil {
			return fmt.Errorf("answer for %s: %w", k, err)
		}
		out[qid] = a
	}
	*m = out
	return nil
}

// Clone returns a shallow copy of the map. MultiChoice index slices are
// copied so callers cannot mutate stored answers in place.
func (m AnswerMap) Clone() AnswerMap {
	out := make(AnswerMap, len(m))
	for k, v := range m {
		if mc, ok := v.(MultiChoiceAnswer); ok {
			indices := make([]int, len(mc.Indices))
			copy(indices, mc.Indices)
			out[k] = MultiChoiceAnswer{Indices: indices}
			continue
		}
		out[k] = v
	}
	return out
}
