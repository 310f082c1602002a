package decision

import (
	"fmt"
	"time"
)

// Event names a lifecycle trigger; it doubles as the notification channel.
type Event string

const (
	EventDetect    Event = "detect"
	EventApprove   Event = "approve"
	EventReject    Event = "reject"
	EventUndo      Event = "undo"
	EventScheduler Event = "scheduler"
)

// allowed is the closed transition table. Anything not listed is rejected.
var allowed = map[State]map[State]Event{
	StateDetected: {
		StatePendingCommit: EventApprove,
		StateCancelled:     EventReject,
	},
	StatePendingCommit: {
		StateDetected:      EventUndo,
		StateCancelled:     EventUndo,
		StateCommitted:     EventScheduler,
		StateFailed:        EventScheduler,
		StatePendingCommit: EventScheduler, // commit retry, rescheduled
	},
}

// CanTransition reports whether from -> to is in the table.
func CanTransition(from, to State) bool {
	_, ok := allowed[from][to]
	return ok
}

// EventFor returns the event that drives from -> to.
func EventFor(from, to State) (Event, bool) {
	ev, ok := allowed[from][to]
	return ev, ok
}

// InitialStateAllowed reports whether a decision may be created in s.
func InitialStateAllowed(s State) bool {
	return s == StateDetected || s == StatePendingCommit || s == StateCancelled
}

// Change is a compare-and-set update of one decision row: it applies only
// while the row is still in From (and, if set, still holds ClaimToken).
type Change struct {
	From State
	To   State

	Verdict      Verdict // zero keeps the stored verdict
	Comment      *string
	CommitAt     *time.Time // required when To is pending_commit
	CommittedAt  *time.Time // required when To is committed
	ErrorMessage *string
	Attempts     *int

	ClaimToken string // row must hold this claim
	Unclaimed  bool   // row must not hold a live claim at Now
	Now        time.Time
}

// Validate enforces the table and the timestamp invariants before any write.
func (c Change) Validate() error {
	if !CanTransition(c.From, c.To) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, c.From, c.To)
	}
	if c.To == StatePendingCommit && c.CommitAt == nil {
		return fmt.Errorf("%w: commit_at required for %s", ErrValidation, c.To)
	}
	if c.To != StatePendingCommit && c.CommitAt != nil {
		return fmt.Errorf("%w: commit_at only valid for %s", ErrValidation, StatePendingCommit)
	}
	if c.To == StateCommitted && c.CommittedAt == nil {
		return fmt.Errorf("%w: committed_at required for %s", ErrValidation, c.To)
	}
	if c.To != StateCommitted && c.CommittedAt != nil {
		return fmt.Errorf("%w: committed_at only valid for %s", ErrValidation, StateCommitted)
	}
	if c.Unclaimed && c.Now.IsZero() {
		return fmt.Errorf("%w: Now required with Unclaimed", ErrValidation)
	}
	return nil
}

// ApplyChange mirrors a successful repository Apply on the in-memory row.
func (d *Decision) ApplyChange(c Change) {
	d.State = c.To
	if c.Verdict != "" {
		d.Verdict = c.Verdict
	}
	if c.Comment != nil {
		d.Comment = c.Comment
	}
	if c.ErrorMessage != nil {
		d.ErrorMessage = c.ErrorMessage
	}
	if c.Attempts != nil {
		d.Attempts = *c.Attempts
	}
	d.CommitAt = c.CommitAt
	d.CommittedAt = c.CommittedAt
	d.ClaimToken, d.ClaimedUntil = nil, nil
	d.ActiveKey = nil
	if c.To.Active() {
		k := d.ErpRequisitionID
		d.ActiveKey = &k
	}
}
