package erpmock

import (
	"context"
	"errors"
	"testing"

	"erp-approval-middleware/internal/adapter/erp"
)

func TestAdapter_RecordsWrites(t *testing.T) {
	ctx := context.Background()
	m := &Adapter{RejectFn: func(context.Context, string, string) error { return erp.ErrRejected }}

	if err := m.Commit(ctx, "PR-1", ""); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := m.Reject(ctx, "PR-2", ""); !errors.Is(err, erp.ErrRejected) {
		t.Fatalf("Reject: %v", err)
	}
	_ = m.Rollback(ctx, "PR-3")

	got := m.Calls()
	want := []string{"commit:PR-1", "reject:PR-2", "rollback:PR-3"}
	if len(got) != len(want) {
		t.Fatalf("calls = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if m.Name() != "fake" || !m.Health(ctx).Healthy() {
		t.Fatalf("defaults: %s %+v", m.Name(), m.Health(ctx))
	}
}
