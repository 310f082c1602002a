package uow

import (
	"context"

	"erp-approval-middleware/internal/domain/decision"
	"erp-approval-middleware/internal/domain/notification"
)

// Repos are bound to the surrounding transaction.
type Repos struct {
	Decisions     decision.Repository
	Notifications notification.Repository
}

type UnitOfWork interface {
	// plain tx
	WithinTx(ctx context.Context, fn func(r Repos) error) error
	// lock the requisition's latest decision first, then pass it in;
	// decision.ErrNotFound when the requisition has none
	WithinDecisionTx(ctx context.Context, erpRequisitionID string, fn func(r Repos, d *decision.Decision) error) error
}
