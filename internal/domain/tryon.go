package domain

import "time"

// State enumerates the derived lifecycle of a try-on record.
type State string

const (
	StatePending  State = "pending"
	StateComplete State = "complete"
	StateFailed   State = "failed"
)

// TryOn is a tracked try-on request. The server owns identity and timestamps;
// output keys are populated asynchronously as jobs complete.
type TryOn struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	UserSnapKey        string    `json:"user_snap,omitempty"`
	UncleanedOutfitKey string    `json:"uncleaned_outfit,omitempty"`
	CleanedOutfitKey   string    `json:"cleaned_outfit,omitempty"`
	OutfitTryOnKey     string    `json:"outfit_try_on,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`

	// Failed and FailureReason are client-side only: "no output key" alone
	// cannot distinguish a pending record from one whose job failed, so the
	// cache records the failure explicitly when a completion event reports it.
	Failed        bool   `json:"-"`
	FailureReason string `json:"-"`

	// Version increments on every reconciliation so a late rollback cannot
	// move the record backward. Zero for records that were never reconciled.
	Version int64 `json:"-"`
}

// State derives the record lifecycle. The terminal output key wins over the
// failure flag only when both are set, since a key means the work finished.
func (t TryOn) State() State {
	if t.OutfitTryOnKey != "" {
		return StateComplete
	}
	if t.Failed {
		return StateFailed
	}
	return StatePending
}
