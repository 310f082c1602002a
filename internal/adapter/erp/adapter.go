// Package erp holds the integration boundary to the ERP system: one Adapter
// interface with mock, SAP OData and hybrid implementations.
package erp

import (
	"context"
	"errors"
	"time"

	"erp-approval-middleware/internal/domain/requisition"
)

var (
	// ErrUnavailable covers transport failures, timeouts, 5xx and an open breaker.
	ErrUnavailable = errors.New("erp unavailable")
	// ErrRejected is a business refusal (4xx) from the ERP.
	ErrRejected = errors.New("erp rejected the request")
	ErrNotFound = errors.New("requisition not found in erp")
	// ErrAlreadyProcessed means the ERP already holds a final status for the
	// requisition. Commit and reject treat it as success.
	ErrAlreadyProcessed = errors.New("requisition already processed in erp")
)

const (
	ModeMock   = "mock"
	ModeSAP    = "sap"
	ModeHybrid = "hybrid"
)

type Adapter interface {
	Name() string
	// FetchStaged returns requisitions awaiting a decision.
	FetchStaged(ctx context.Context) ([]requisition.Requisition, error)
	// Commit releases an approved requisition.
	Commit(ctx context.Context, erpRequisitionID, comment string) error
	Reject(ctx context.Context, erpRequisitionID, comment string) error
	// Rollback releases anything staged on the ERP side for a pending decision.
	Rollback(ctx context.Context, erpRequisitionID string) error
	Health(ctx context.Context) Health
}

type Health struct {
	Status  string         `json:"status"`
	Adapter string         `json:"adapter"`
	Error   string         `json:"error,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func (h Health) Healthy() bool { return h.Status == "healthy" }

// Observer receives one call per adapter operation.
type Observer interface {
	ObserveERPCall(adapter, op string, elapsed time.Duration, err error)
}

// Instrumented bounds every call with timeout and reports it to obs.
type Instrumented struct {
	next    Adapter
	timeout time.Duration
	obs     Observer
}

func NewInstrumented(next Adapter, timeout time.Duration, obs Observer) *Instrumented {
	return &Instrumented{next: next, timeout: timeout, obs: obs}
}

func (a *Instrumented) Name() string { return a.next.Name() }

func (a *Instrumented) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}

func (a *Instrumented) observe(op string, start time.Time, err error) {
	if a.obs != nil {
		a.obs.ObserveERPCall(a.next.Name(), op, time.Since(start), err)
	}
}

func (a *Instrumented) FetchStaged(ctx context.Context) ([]requisition.Requisition, error) {
	ctx, cancel := a.bound(ctx)
	defer cancel()
	start := time.Now()
	out, err := a.next.FetchStaged(ctx)
	err = timeoutAsUnavailable(ctx, err)
	a.observe("fetch", start, err)
	return out, err
}

func (a *Instrumented) Commit(ctx context.Context, erpRequisitionID, comment string) error {
	ctx, cancel := a.bound(ctx)
	defer cancel()
	start := time.Now()
	err := timeoutAsUnavailable(ctx, a.next.Commit(ctx, erpRequisitionID, comment))
	a.observe("commit", start, err)
	return err
}

func (a *Instrumented) Reject(ctx context.Context, erpRequisitionID, comment string) error {
	ctx, cancel := a.bound(ctx)
	defer cancel()
	start := time.Now()
	err := timeoutAsUnavailable(ctx, a.next.Reject(ctx, erpRequisitionID, comment))
	a.observe("reject", start, err)
	return err
}

func (a *Instrumented) Rollback(ctx context.Context, erpRequisitionID string) error {
	ctx, cancel := a.bound(ctx)
	defer cancel()
	start := time.Now()
	err := timeoutAsUnavailable(ctx, a.next.Rollback(ctx, erpRequisitionID))
	a.observe("rollback", start, err)
	return err
}

func (a *Instrumented) Health(ctx context.Context) Health {
	ctx, cancel := a.bound(ctx)
	defer cancel()
	return a.next.Health(ctx)
}

func timeoutAsUnavailable(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return err
}

// Succeeded treats ErrAlreadyProcessed as success for commit and reject.
func Succeeded(err error) bool {
	return err == nil || errors.Is(err, ErrAlreadyProcessed)
}
