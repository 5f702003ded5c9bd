package domain

import "time"

// JobType enumerates the backend queues a job can be placed on. The wire
// values match the job_type field of completion events.
type JobType string

const (
	// JobTypeTailor prepares (cleans) the outfit image.
	JobTypeTailor JobType = "tailor"
	// JobTypeTryOn composes the user snap with the outfit. Enqueued on the
	// weaver queue; completion events for it carry job_type "try_on".
	JobTypeTryOn JobType = "try_on"
)

// Job is a queued unit of backend work referencing one try-on record. Jobs
// are fire-and-forget: the client never polls them and learns of completion
// only through the push channel.
type Job struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	TryOnID   string    `json:"vton_id"`
	Type      JobType   `json:"job_type,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
