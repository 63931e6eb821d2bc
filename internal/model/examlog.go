package model

import "time"

// LogEvent enumerates the audit events recorded during an attempt.
type LogEvent string

const (
	LogEventStart        LogEvent = "start"
	LogEventTabBlur      LogEvent = "tab_blur"
	LogEventTabFocus     LogEvent = "tab_focus"
	LogEventAutosave     LogEvent = "autosave"
	LogEventSubmit       LogEvent = "submit"
	LogEventDisqualified LogEvent = "violation_disqualified"
)

// ExamLog is one immutable entry in an attempt's append-only event log.
// Ordering is significant.
type ExamLog struct {
	Event     LogEvent  `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}
