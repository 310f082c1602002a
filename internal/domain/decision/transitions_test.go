package decision

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition_TableIsClosed(t *testing.T) {
	want := map[[2]State]bool{
		{StateDetected, StatePendingCommit}:      true,
		{StateDetected, StateCancelled}:          true,
		{StatePendingCommit, StateDetected}:      true,
		{StatePendingCommit, StateCancelled}:     true,
		{StatePendingCommit, StateCommitted}:     true,
		{StatePendingCommit, StateFailed}:        true,
		{StatePendingCommit, StatePendingCommit}: true,
	}
	for _, from := range States {
		for _, to := range States {
			got := CanTransition(from, to)
			if got != want[[2]State{from, to}] {
				t.Fatalf("CanTransition(%s,%s) = %v", from, to, got)
			}
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, s := range []State{StateCommitted, StateCancelled, StateFailed} {
		if !s.Terminal() || s.Active() {
			t.Fatalf("%s should be terminal", s)
		}
		for _, to := range States {
			if CanTransition(s, to) {
				t.Fatalf("terminal %s must not move to %s", s, to)
			}
		}
	}
}

func TestEventFor(t *testing.T) {
	if ev, ok := EventFor(StateDetected, StatePendingCommit); !ok || ev != EventApprove {
		t.Fatalf("approve event = %v/%v", ev, ok)
	}
	if ev, ok := EventFor(StatePendingCommit, StateCommitted); !ok || ev != EventScheduler {
		t.Fatalf("commit event = %v/%v", ev, ok)
	}
	if _, ok := EventFor(StateCommitted, StateDetected); ok {
		t.Fatalf("committed -> detected must not have an event")
	}
}

func TestChangeValidate(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name    string
		c       Change
		wantErr error
	}{
		{name: "approve ok", c: Change{From: StateDetected, To: StatePendingCommit, CommitAt: &now}},
		{name: "approve missing commit_at", c: Change{From: StateDetected, To: StatePendingCommit}, wantErr: ErrValidation},
		{name: "reject carries commit_at", c: Change{From: StateDetected, To: StateCancelled, CommitAt: &now}, wantErr: ErrValidation},
		{name: "commit ok", c: Change{From: StatePendingCommit, To: StateCommitted, CommittedAt: &now}},
		{name: "commit missing committed_at", c: Change{From: StatePendingCommit, To: StateCommitted}, wantErr: ErrValidation},
		{name: "failed with committed_at", c: Change{From: StatePendingCommit, To: StateFailed, CommittedAt: &now}, wantErr: ErrValidation},
		{name: "illegal committed -> detected", c: Change{From: StateCommitted, To: StateDetected}, wantErr: ErrInvalidState},
		{name: "unclaimed needs now", c: Change{From: StatePendingCommit, To: StateCancelled, Unclaimed: true}, wantErr: ErrValidation},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("want %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDecisionClaimed(t *testing.T) {
	now := time.Now().UTC()
	tok := "t"
	later := now.Add(time.Minute)
	earlier := now.Add(-time.Minute)

	d := &Decision{}
	if d.Claimed(now) {
		t.Fatalf("no claim set")
	}
	d.ClaimToken, d.ClaimedUntil = &tok, &later
	if !d.Claimed(now) {
		t.Fatalf("live claim not detected")
	}
	d.ClaimedUntil = &earlier
	if d.Claimed(now) {
		t.Fatalf("expired claim reported live")
	}
}

func TestApplyChange(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tok := "t"
	key := "PR-1"
	d := &Decision{
		ErpRequisitionID: "PR-1", ActiveKey: &key,
		State: StatePendingCommit, Verdict: VerdictAutoApprove,
		CommitAt: &now, ClaimToken: &tok, ClaimedUntil: &now,
	}
	d.ApplyChange(Change{From: StatePendingCommit, To: StateCommitted, CommittedAt: &now})
	if d.State != StateCommitted || d.CommitAt != nil || d.CommittedAt == nil {
		t.Fatalf("commit not mirrored: %+v", d)
	}
	if d.ActiveKey != nil || d.ClaimToken != nil || d.ClaimedUntil != nil {
		t.Fatalf("terminal row must drop active key and claim")
	}
	if d.Verdict != VerdictAutoApprove {
		t.Fatalf("empty verdict must keep the stored one, got %s", d.Verdict)
	}

	d = &Decision{ErpRequisitionID: "PR-2", State: StateDetected, Verdict: VerdictHold}
	d.ApplyChange(Change{From: StateDetected, To: StatePendingCommit, Verdict: VerdictManualApprove, CommitAt: &now})
	if d.ActiveKey == nil || *d.ActiveKey != "PR-2" || d.Verdict != VerdictManualApprove {
		t.Fatalf("approve not mirrored: %+v", d)
	}
}
