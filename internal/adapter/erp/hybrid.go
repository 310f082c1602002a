package erp

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"erp-approval-middleware/internal/domain/requisition"
)

// Hybrid prefers the live ERP and falls back to the mock when the live one
// is unavailable. Writes go to whichever backend served the requisition.
type Hybrid struct {
	live     Adapter
	fallback Adapter
	log      *slog.Logger

	source sync.Map // erp_requisition_id -> Adapter
}

func NewHybrid(live, fallback Adapter, log *slog.Logger) *Hybrid {
	if log == nil {
		log = slog.Default()
	}
	return &Hybrid{live: live, fallback: fallback, log: log}
}

func (h *Hybrid) Name() string { return ModeHybrid }

func (h *Hybrid) FetchStaged(ctx context.Context) ([]requisition.Requisition, error) {
	from := h.live
	out, err := h.live.FetchStaged(ctx)
	if errors.Is(err, ErrUnavailable) {
		h.log.Warn("erp hybrid: live fetch unavailable, using fallback", "err", err)
		from = h.fallback
		out, err = h.fallback.FetchStaged(ctx)
	}
	if err != nil {
		return nil, err
	}
	for _, r := range out {
		h.source.Store(r.ErpRequisitionID, from)
	}
	return out, nil
}

// write runs fn on the backend that served id, or live-then-fallback for
// requisitions this process has not fetched.
func (h *Hybrid) write(ctx context.Context, id string, fn func(a Adapter) error) error {
	if a, ok := h.source.Load(id); ok {
		return fn(a.(Adapter))
	}
	err := fn(h.live)
	if errors.Is(err, ErrUnavailable) {
		h.log.Warn("erp hybrid: live write unavailable, using fallback", "erp_requisition_id", id, "err", err)
		return fn(h.fallback)
	}
	return err
}

func (h *Hybrid) Commit(ctx context.Context, erpRequisitionID, comment string) error {
	return h.write(ctx, erpRequisitionID, func(a Adapter) error {
		return a.Commit(ctx, erpRequisitionID, comment)
	})
}

func (h *Hybrid) Reject(ctx context.Context, erpRequisitionID, comment string) error {
	return h.write(ctx, erpRequisitionID, func(a Adapter) error {
		return a.Reject(ctx, erpRequisitionID, comment)
	})
}

func (h *Hybrid) Rollback(ctx context.Context, erpRequisitionID string) error {
	return h.write(ctx, erpRequisitionID, func(a Adapter) error {
		return a.Rollback(ctx, erpRequisitionID)
	})
}

func (h *Hybrid) Health(ctx context.Context) Health {
	live := h.live.Health(ctx)
	fb := h.fallback.Health(ctx)
	out := Health{
		Adapter: ModeHybrid,
		Details: map[string]any{"live": live, "fallback": fb},
	}
	switch {
	case live.Healthy():
		out.Status = "healthy"
	case fb.Healthy():
		out.Status = "degraded"
	default:
		out.Status = "unhealthy"
	}
	return out
}
