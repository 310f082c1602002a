package notification

import "context"

type Filter struct {
	Channel          Channel
	ErpRequisitionID string
	Limit            int
}

type Repository interface {
	// Append-only: there is no update or delete.
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter) ([]Entry, error)
}
