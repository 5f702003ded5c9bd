package domain

import "time"

// EventStatus is the terminal status a completion event reports.
type EventStatus string

const (
	EventDone   EventStatus = "done"
	EventFailed EventStatus = "failed"
)

// CompletionEvent is the payload pushed over the channel when a job reaches a
// terminal state. Delivery is at-most-once in the happy path, but reconnects
// can replay events, so consumers must treat application as idempotent.
type CompletionEvent struct {
	JobID      string      `json:"job_id"`
	JobType    JobType     `json:"job_type"`
	Status     EventStatus `json:"status"`
	UserID     string      `json:"user_id"`
	TryOnID    string      `json:"vton_id"`
	ResultKey  *string     `json:"result_s3_key"`
	Error      *string     `json:"error"`
	FinishedAt time.Time   `json:"finished_at"`
}

// Result returns the result key or "" when the event carries none.
func (e CompletionEvent) Result() string {
	if e.ResultKey == nil {
		return ""
	}
	return *e.ResultKey
}

// Reason returns the error string or "" when the event carries none.
func (e CompletionEvent) Reason() string {
	if e.Error == nil {
		return ""
	}
	return *e.Error
}
