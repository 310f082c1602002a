package policy

import (
	"testing"
	"time"

	"erp-approval-middleware/internal/domain/decision"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestBands_ExhaustiveAndNonOverlapping(t *testing.T) {
	b := DefaultBands()
	counts := map[Band]int{}
	for i := 0; i <= 1000; i++ {
		s := float64(i) / 1000
		band := b.Classify(s)
		counts[band]++
		switch {
		case s < 0.3:
			assert.Equal(t, BandLow, band, "score %.3f", s)
		case s < 0.7:
			assert.Equal(t, BandMedium, band, "score %.3f", s)
		default:
			assert.Equal(t, BandHigh, band, "score %.3f", s)
		}
	}
	assert.Equal(t, 1001, counts[BandLow]+counts[BandMedium]+counts[BandHigh])
}

func TestBands_Boundaries(t *testing.T) {
	b := DefaultBands()
	assert.Equal(t, decision.VerdictAutoApprove, b.Verdict(0.2999))
	assert.Equal(t, decision.VerdictHold, b.Verdict(0.3))
	assert.Equal(t, decision.VerdictHold, b.Verdict(0.6999))
	assert.Equal(t, decision.VerdictReject, b.Verdict(0.7))
	assert.Equal(t, decision.VerdictReject, b.Verdict(1))
}

func TestNewBands(t *testing.T) {
	_, err := NewBands(0.3, 0.7)
	require.NoError(t, err)

	for _, tc := range [][2]float64{{0, 0.7}, {0.7, 0.3}, {0.5, 0.5}, {0.3, 1.2}} {
		_, err := NewBands(tc[0], tc[1])
		assert.Error(t, err, "bands %v", tc)
	}
}

func TestPolicy_Decide(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p := New(DefaultBands(), 5*time.Minute, true)

	low := p.Decide(f(0.1), now)
	assert.Equal(t, decision.VerdictAutoApprove, low.Verdict)
	assert.Equal(t, decision.StatePendingCommit, low.State)
	require.NotNil(t, low.CommitAt)
	assert.Equal(t, now.Add(5*time.Minute), *low.CommitAt)
	assert.Equal(t, "Low risk (score: 0.10) — auto-approved", low.Comment)

	mid := p.Decide(f(0.5), now)
	assert.Equal(t, decision.VerdictHold, mid.Verdict)
	assert.Equal(t, decision.StateDetected, mid.State)
	assert.Nil(t, mid.CommitAt)

	high := p.Decide(f(0.9), now)
	assert.Equal(t, decision.VerdictReject, high.Verdict)
	assert.Equal(t, decision.StateCancelled, high.State)
	assert.Nil(t, high.CommitAt)

	none := p.Decide(nil, now)
	assert.Equal(t, decision.VerdictHold, none.Verdict)
	assert.Equal(t, decision.StateDetected, none.State)
}

func TestPolicy_AutoCommitDisabled(t *testing.T) {
	now := time.Now().UTC()
	p := New(DefaultBands(), time.Minute, false)

	out := p.Decide(f(0.05), now)
	assert.Equal(t, decision.VerdictAutoApprove, out.Verdict)
	assert.Equal(t, decision.StateDetected, out.State)
	assert.Nil(t, out.CommitAt)
}

func TestPolicy_OutcomesAreValidInitialStates(t *testing.T) {
	p := New(DefaultBands(), time.Minute, true)
	for i := 0; i <= 100; i++ {
		out := p.Decide(f(float64(i)/100), time.Now())
		assert.True(t, decision.InitialStateAllowed(out.State))
		assert.Equal(t, out.State == decision.StatePendingCommit, out.CommitAt != nil)
	}
}
