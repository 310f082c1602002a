package user

import "context"

type Repository interface {
	// Create fails with ErrDuplicate when the username is taken.
	Create(ctx context.Context, u *User) error
	GetByUsername(ctx context.Context, username string) (*User, error)
}
