package uowmock

import (
	"context"
	"errors"

	"erp-approval-middleware/internal/domain/decision"
	"erp-approval-middleware/internal/domain/uow"
)

// Ensure compile-time compliance
var _ uow.UnitOfWork = (*UoW)(nil)

var errUnimplemented = errors.New("uowmock: method not implemented")

// UoW is a function-backed mock that satisfies uow.UnitOfWork.
// Fill in the function fields you need in a test; unfilled ones return errUnimplemented.
type UoW struct {
	WithinTxFn         func(ctx context.Context, fn func(r uow.Repos) error) error
	WithinDecisionTxFn func(ctx context.Context, erpID string, fn func(r uow.Repos, d *decision.Decision) error) error
}

// Convenience fluent setters
func New() *UoW { return &UoW{} }
func (m *UoW) WithWithinTx(fn func(context.Context, func(uow.Repos) error) error) *UoW {
	m.WithinTxFn = fn
	return m
}
func (m *UoW) WithWithinDecisionTx(fn func(context.Context, string, func(uow.Repos, *decision.Decision) error) error) *UoW {
	m.WithinDecisionTxFn = fn
	return m
}
func (m *UoW) Reset() { *m = UoW{} }

// Passthrough runs every body directly against repos, locking d for any requisition.
func Passthrough(repos uow.Repos, d *decision.Decision) *UoW {
	return New().
		WithWithinTx(func(_ context.Context, fn func(uow.Repos) error) error { return fn(repos) }).
		WithWithinDecisionTx(func(_ context.Context, _ string, fn func(uow.Repos, *decision.Decision) error) error {
			if d == nil {
				return decision.ErrNotFound
			}
			return fn(repos, d)
		})
}

// Methods implementing UnitOfWork
func (m *UoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	if m.WithinTxFn != nil {
		return m.WithinTxFn(ctx, fn)
	}
	return errUnimplemented
}
func (m *UoW) WithinDecisionTx(ctx context.Context, erpID string, fn func(r uow.Repos, d *decision.Decision) error) error {
	if m.WithinDecisionTxFn != nil {
		return m.WithinDecisionTxFn(ctx, erpID, fn)
	}
	return errUnimplemented
}
