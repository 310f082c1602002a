package decision

import (
	"context"
	"time"
)

type Filter struct {
	State State // empty = all
	Limit int   // 0 = no limit
}

type Repository interface {
	// Create inserts a new decision; ErrDuplicateActive if the requisition
	// already has an active one.
	Create(ctx context.Context, d *Decision) error

	GetByID(ctx context.Context, id string) (*Decision, error)

	// Latest decision for a requisition (active or not), newest first.
	GetLatestByRequisitionID(ctx context.Context, erpRequisitionID string) (*Decision, error)
	GetLatestByRequisitionIDForUpdate(ctx context.Context, erpRequisitionID string) (*Decision, error)

	// List returns decisions newest first.
	List(ctx context.Context, f Filter) ([]Decision, error)

	// ListDue returns pending_commit rows with commit_at <= now, oldest due first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]Decision, error)

	// ActiveRequisitionIDs returns the subset of ids that have an active decision.
	ActiveRequisitionIDs(ctx context.Context, erpRequisitionIDs []string) (map[string]struct{}, error)

	// Apply performs the compare-and-set described by c; ErrStaleState when
	// no row matched.
	Apply(ctx context.Context, id string, c Change) error

	// Claim marks a due pending_commit row as owned by token until `until`.
	// It returns false when the row is gone, not due or claimed by someone else.
	Claim(ctx context.Context, id, token string, now, until time.Time) (bool, error)

	// Reserve claims a row that is still in state from and holds no live
	// claim. User actions reserve before calling the ERP so no lock is held
	// across the call.
	Reserve(ctx context.Context, id string, from State, token string, now, until time.Time) (bool, error)

	// Release drops token's claim and leaves everything else as it was.
	Release(ctx context.Context, id, token string) error

	Stats(ctx context.Context, lowThreshold, highThreshold float64) (*Stats, error)
	CreatedSince(ctx context.Context, since time.Time) ([]time.Time, error)
}
