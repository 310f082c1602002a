package erp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"erp-approval-middleware/internal/domain/requisition"
)

// Switchable delegates to one of several named adapters and lets an operator
// change which one at runtime.
type Switchable struct {
	mu       sync.Mutex
	adapters map[string]Adapter
	current  atomic.Pointer[named]
}

type named struct {
	mode string
	a    Adapter
}

func NewSwitchable(adapters map[string]Adapter, initial string) (*Switchable, error) {
	s := &Switchable{adapters: adapters}
	if err := s.Switch(initial); err != nil {
		return nil, err
	}
	return s, nil
}

// Switch makes mode the active adapter.
func (s *Switchable) Switch(mode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.adapters[mode]
	if !ok {
		return fmt.Errorf("unknown or unconfigured erp mode %q", mode)
	}
	s.current.Store(&named{mode: mode, a: a})
	return nil
}

func (s *Switchable) Mode() string { return s.current.Load().mode }

func (s *Switchable) Modes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.adapters))
	for _, m := range []string{ModeMock, ModeSAP, ModeHybrid} {
		if _, ok := s.adapters[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

func (s *Switchable) active() Adapter { return s.current.Load().a }

func (s *Switchable) Name() string { return s.active().Name() }

func (s *Switchable) FetchStaged(ctx context.Context) ([]requisition.Requisition, error) {
	return s.active().FetchStaged(ctx)
}

func (s *Switchable) Commit(ctx context.Context, erpRequisitionID, comment string) error {
	return s.active().Commit(ctx, erpRequisitionID, comment)
}

func (s *Switchable) Reject(ctx context.Context, erpRequisitionID, comment string) error {
	return s.active().Reject(ctx, erpRequisitionID, comment)
}

func (s *Switchable) Rollback(ctx context.Context, erpRequisitionID string) error {
	return s.active().Rollback(ctx, erpRequisitionID)
}

func (s *Switchable) Health(ctx context.Context) Health {
	return s.active().Health(ctx)
}
