package websocket

import (
	"encoding/json"
	"time"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer     Action = "answer"
	ActionVisibility Action = "visibility"
	ActionNavigate   Action = "navigate"
	ActionSubmit     Action = "submit"
	ActionPing       Action = "ping"
)

// RequestPayload carries every client action. Unused fields stay at
// their zero value; Action decides which ones matter.
type RequestPayload struct {
	Action Action `json:"action"`

	// ActionAnswer
	QID    string          `json:"q_id,omitempty"`
	Answer json.RawMessage `json:"ans,omitempty"`

	// ActionVisibility
	Hidden bool `json:"hidden,omitempty"`

	// ActionNavigate
	Target string `json:"target,omitempty"` // "next", "prev" or a question index
	Index  int    `json:"index,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState    Event = "state"
	EventSaved    Event = "saved"
	EventWarning  Event = "warning"
	EventFinished Event = "finished"
	EventError    Event = "error"
	EventPong     Event = "pong"
)

// StateResponse is pushed once after connect so the client can render
// the paper exactly where the student left off.
type StateResponse struct {
	Event            Event           `json:"event"`
	RemainingSeconds int             `json:"remaining_seconds"`
	QuestionOrder    []string        `json:"question_order"`
	CurrentIndex     int             `json:"current_index"`
	AnsweredCount    int             `json:"answered_count"`
	Answers          json.RawMessage `json:"answers"`
	ViolationCount   int             `json:"violation_count"`
}

type SavedResponse struct {
	Event         Event  `json:"event"`
	QID           string `json:"q_id"`
	AnsweredCount int    `json:"answered_count"`
}

// WarningResponse is pushed when a tab blur is recorded but the
// violation budget is not yet exhausted.
type WarningResponse struct {
	Event          Event `json:"event"`
	ViolationCount int   `json:"violation_count"`
	MaxViolations  int   `json:"max_violations"`
}

// FinishedResponse is pushed exactly once, whatever ends the attempt:
// submit, expiry or disqualification.
type FinishedResponse struct {
	Event               Event     `json:"event"`
	Status              string    `json:"status"`
	Score               int       `json:"score"`
	PointsObtained      float64   `json:"points_obtained"`
	TotalPointsPossible float64   `json:"total_points_possible"`
	CorrectCount        int       `json:"correct_count"`
	IncorrectCount      int       `json:"incorrect_count"`
	UnansweredCount     int       `json:"unanswered_count"`
	SubmittedAt         time.Time `json:"submitted_at"`
}

type NavigateResponse struct {
	Event        Event `json:"event"`
	CurrentIndex int   `json:"current_index"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}
