package erpmock

import (
	"context"
	"sync"

	"erp-approval-middleware/internal/adapter/erp"
	"erp-approval-middleware/internal/domain/requisition"
)

var _ erp.Adapter = (*Adapter)(nil)

// Adapter is a function-backed erp.Adapter. Unset writes succeed and are
// recorded in Calls.
type Adapter struct {
	NameValue     string
	FetchStagedFn func(ctx context.Context) ([]requisition.Requisition, error)
	CommitFn      func(ctx context.Context, erpID, comment string) error
	RejectFn      func(ctx context.Context, erpID, comment string) error
	RollbackFn    func(ctx context.Context, erpID string) error
	HealthFn      func(ctx context.Context) erp.Health

	mu    sync.Mutex
	calls []string
}

func (m *Adapter) record(op, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, op+":"+id)
}

// Calls lists "op:erp_requisition_id" for every write, in order.
func (m *Adapter) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *Adapter) Name() string {
	if m.NameValue == "" {
		return "fake"
	}
	return m.NameValue
}

func (m *Adapter) FetchStaged(ctx context.Context) ([]requisition.Requisition, error) {
	if m.FetchStagedFn != nil {
		return m.FetchStagedFn(ctx)
	}
	return nil, nil
}

func (m *Adapter) Commit(ctx context.Context, erpID, comment string) error {
	m.record("commit", erpID)
	if m.CommitFn != nil {
		return m.CommitFn(ctx, erpID, comment)
	}
	return nil
}

func (m *Adapter) Reject(ctx context.Context, erpID, comment string) error {
	m.record("reject", erpID)
	if m.RejectFn != nil {
		return m.RejectFn(ctx, erpID, comment)
	}
	return nil
}

func (m *Adapter) Rollback(ctx context.Context, erpID string) error {
	m.record("rollback", erpID)
	if m.RollbackFn != nil {
		return m.RollbackFn(ctx, erpID)
	}
	return nil
}

func (m *Adapter) Health(ctx context.Context) erp.Health {
	if m.HealthFn != nil {
		return m.HealthFn(ctx)
	}
	return erp.Health{Status: "healthy", Adapter: m.Name()}
}
