package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func intp(v int) *int    { return &v }
func boolp(v bool) *bool { return &v }

func TestQuestionValidate(t *testing.T) {
	tests := []struct {
		name    string
		q       Question
		wantErr string
	}{
		{
			name: "valid mcq",
			q:    Question{Type: QuestionTypeMCQ, Options: []string{"a", "b"}, CorrectIndex: intp(1), Points: 10},
		},
		{
			name:    "mcq without options",
			q:       Question{Type: QuestionTypeMCQ, CorrectIndex: intp(0)},
			wantErr: "requires options",
		},
		{
			name:    "mcq without key",
			q:       Question{Type: QuestionTypeMCQ, Options: []string{"a", "b"}},
			wantErr: "requires correct_index",
		},
		{
			name:    "mcq key out of range",
			q:       Question{Type: QuestionTypeMCQ, Options: []string{"a", "b"}, CorrectIndex: intp(2)},
			wantErr: "out of range",
		},
		{
			name: "valid multiple_select",
			q:    Question{Type: QuestionTypeMultipleSelect, Options: []string{"a", "b", "c"}, CorrectIndices: []int{0, 2}},
		},
		{
			name:    "multiple_select empty key",
			q:       Question{Type: QuestionTypeMultipleSelect, Options: []string{"a", "b"}},
			wantErr: "requires correct_indices",
		},
		{
			name:    "multiple_select index out of range",
			q:       Question{Type: QuestionTypeMultipleSelect, Options: []string{"a", "b"}, CorrectIndices: []int{0, 5}},
			wantErr: "out of range",
		},
		{
			name: "valid true_false",
			q:    Question{Type: QuestionTypeTrueFalse, TrueFalseAnswer: boolp(true)},
		},
		{
			name:    "true_false without key",
			q:       Question{Type: QuestionTypeTrueFalse},
			wantErr: "requires true_false_answer",
		},
		{
			name: "valid short_answer",
			q:    Question{Type: QuestionTypeShortAnswer, ShortAnswer: "jakarta"},
		},
		{
			name:    "short_answer without reference",
			q:       Question{Type: QuestionTypeShortAnswer},
			wantErr: "requires a reference answer",
		},
		{
			name: "essay with empty rubric is allowed",
			q:    Question{Type: QuestionTypeEssay},
		},
		{
			name:    "negative points",
			q:       Question{Type: QuestionTypeEssay, Points: -1},
			wantErr: "negative points",
		},
		{
			name:    "unknown type",
			q:       Question{Type: "matching"},
			wantErr: "unknown type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestStudentViewStripsKeys(t *testing.T) {
	q := Question{
		ID:              uuid.New(),
		Type:            QuestionTypeMCQ,
		Text:            "2+2?",
		Options:         []string{"3", "4"},
		CorrectIndex:    intp(1),
		Explanation:     "basic arithmetic",
		Points:          5,
		OrderNum:        3,
		TrueFalseAnswer: boolp(true),
		ShortAnswer:     "4",
		EssayAnswer:     "four",
	}

	view := q.StudentView()
	if view.ID != q.ID || view.Text != q.Text || view.Points != q.Points || view.OrderNum != q.OrderNum {
		t.Fatal("StudentView dropped a display field")
	}

	raw, err := json.Marshal(view)
	if err != nil {
		t.Fatal(err)
	}

	// The serialized view must not leak any key material.
	for _, leak := range []string{"correct_index", "true_false_answer", "short_answer", "essay_answer", "explanation"} {
		if strings.Contains(string(raw), leak) {
			t.Fatalf("StudentView leaked %q", leak)
		}
	}
}

func TestUnansweredTextDoesNotLeakKind(t *testing.T) {
	a, err := UnmarshalAnswer([]byte(`{"kind":"text","text":""}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := a.(TextAnswer); !ok {
		t.Fatalf("got %T, want TextAnswer", a)
	}
}

func TestAnswerMapRejectsMalformedKeys(t *testing.T) {
	var m AnswerMap
	if err := m.UnmarshalJSON([]byte(`{"not-a-uuid":{"kind":"bool","value":true}}`)); err == nil {
		t.Fatal("expected error for non-UUID key")
	}
	if err := m.UnmarshalJSON([]byte(`{"` + uuid.NewString() + `":{"kind":"choice"}}`)); err == nil {
		t.Fatal("expected error for choice answer missing index")
	}
}
