package usermock

import (
	"context"
	"sync"

	"erp-approval-middleware/internal/domain/user"
)

var _ user.Repository = (*Repo)(nil)

// Repo is an in-memory user.Repository keyed by username.
type Repo struct {
	CreateFn func(ctx context.Context, u *user.User) error

	mu    sync.Mutex
	users map[string]user.User
}

func (m *Repo) Create(ctx context.Context, u *user.User) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, u)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.users == nil {
		m.users = map[string]user.User{}
	}
	if _, ok := m.users[u.Username]; ok {
		return user.ErrDuplicate
	}
	if u.ID == "" {
		u.ID = "u-" + u.Username
	}
	m.users[u.Username] = *u
	return nil
}

func (m *Repo) GetByUsername(_ context.Context, username string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}
