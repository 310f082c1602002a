package decisionmock

import (
	"context"
	"time"

	"erp-approval-middleware/internal/domain/decision"
)

var _ decision.Repository = (*Repo)(nil)

// Repo is a function-backed mock that satisfies decision.Repository.
// Unset reads return context.Canceled; unset writes are no-ops.
type Repo struct {
	CreateFn                            func(ctx context.Context, d *decision.Decision) error
	GetByIDFn                           func(ctx context.Context, id string) (*decision.Decision, error)
	GetLatestByRequisitionIDFn          func(ctx context.Context, erpID string) (*decision.Decision, error)
	GetLatestByRequisitionIDForUpdateFn func(ctx context.Context, erpID string) (*decision.Decision, error)
	ListFn                              func(ctx context.Context, f decision.Filter) ([]decision.Decision, error)
	ListDueFn                           func(ctx context.Context, now time.Time, limit int) ([]decision.Decision, error)
	ActiveRequisitionIDsFn              func(ctx context.Context, ids []string) (map[string]struct{}, error)
	ApplyFn                             func(ctx context.Context, id string, c decision.Change) error
	ClaimFn                             func(ctx context.Context, id, token string, now, until time.Time) (bool, error)
	ReserveFn                           func(ctx context.Context, id string, from decision.State, token string, now, until time.Time) (bool, error)
	ReleaseFn                           func(ctx context.Context, id, token string) error
	StatsFn                             func(ctx context.Context, low, high float64) (*decision.Stats, error)
	CreatedSinceFn                      func(ctx context.Context, since time.Time) ([]time.Time, error)
}

func (m *Repo) Create(ctx context.Context, d *decision.Decision) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, d)
	}
	return nil
}

func (m *Repo) GetByID(ctx context.Context, id string) (*decision.Decision, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, context.Canceled
}

func (m *Repo) GetLatestByRequisitionID(ctx context.Context, erpID string) (*decision.Decision, error) {
	if m.GetLatestByRequisitionIDFn != nil {
		return m.GetLatestByRequisitionIDFn(ctx, erpID)
	}
	return nil, context.Canceled
}

func (m *Repo) GetLatestByRequisitionIDForUpdate(ctx context.Context, erpID string) (*decision.Decision, error) {
	if m.GetLatestByRequisitionIDForUpdateFn != nil {
		return m.GetLatestByRequisitionIDForUpdateFn(ctx, erpID)
	}
	return nil, context.Canceled
}

func (m *Repo) List(ctx context.Context, f decision.Filter) ([]decision.Decision, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, f)
	}
	return nil, context.Canceled
}

func (m *Repo) ListDue(ctx context.Context, now time.Time, limit int) ([]decision.Decision, error) {
	if m.ListDueFn != nil {
		return m.ListDueFn(ctx, now, limit)
	}
	return nil, context.Canceled
}

func (m *Repo) ActiveRequisitionIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	if m.ActiveRequisitionIDsFn != nil {
		return m.ActiveRequisitionIDsFn(ctx, ids)
	}
	return map[string]struct{}{}, nil
}

func (m *Repo) Apply(ctx context.Context, id string, c decision.Change) error {
	if m.ApplyFn != nil {
		return m.ApplyFn(ctx, id, c)
	}
	return nil
}

func (m *Repo) Claim(ctx context.Context, id, token string, now, until time.Time) (bool, error) {
	if m.ClaimFn != nil {
		return m.ClaimFn(ctx, id, token, now, until)
	}
	return false, nil
}

func (m *Repo) Reserve(ctx context.Context, id string, from decision.State, token string, now, until time.Time) (bool, error) {
	if m.ReserveFn != nil {
		return m.ReserveFn(ctx, id, from, token, now, until)
	}
	return true, nil
}

func (m *Repo) Release(ctx context.Context, id, token string) error {
	if m.ReleaseFn != nil {
		return m.ReleaseFn(ctx, id, token)
	}
	return nil
}

func (m *Repo) Stats(ctx context.Context, low, high float64) (*decision.Stats, error) {
	if m.StatsFn != nil {
		return m.StatsFn(ctx, low, high)
	}
	return nil, context.Canceled
}

func (m *Repo) CreatedSince(ctx context.Context, since time.Time) ([]time.Time, error) {
	if m.CreatedSinceFn != nil {
		return m.CreatedSinceFn(ctx, since)
	}
	return nil, context.Canceled
}
