package notificationmock

import (
	"context"
	"sync"

	"erp-approval-middleware/internal/domain/notification"
)

var _ notification.Repository = (*Repo)(nil)

// Repo is a function-backed mock that satisfies notification.Repository.
// With CreateFn unset, Create appends to Created.
type Repo struct {
	CreateFn func(ctx context.Context, e *notification.Entry) error
	ListFn   func(ctx context.Context, f notification.Filter) ([]notification.Entry, error)

	mu      sync.Mutex
	Created []notification.Entry
}

func (m *Repo) Create(ctx context.Context, e *notification.Entry) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Created = append(m.Created, *e)
	return nil
}

func (m *Repo) List(ctx context.Context, f notification.Filter) ([]notification.Entry, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, f)
	}
	return nil, context.Canceled
}

// Entries returns a copy of everything recorded by the default Create.
func (m *Repo) Entries() []notification.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notification.Entry(nil), m.Created...)
}
