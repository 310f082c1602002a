// Package policy maps a risk score onto a verdict and an initial lifecycle state.
package policy

import (
	"fmt"
	"time"

	"erp-approval-middleware/internal/domain/decision"
)

type Band string

const (
	BandLow    Band = "low"
	BandMedium Band = "medium"
	BandHigh   Band = "high"
)

// Bands splits [0,1] into low [0,Low), medium [Low,High) and high [High,1].
type Bands struct {
	Low  float64
	High float64
}

func NewBands(low, high float64) (Bands, error) {
	if !(low > 0 && low < high && high <= 1) {
		return Bands{}, fmt.Errorf("invalid risk bands: need 0 < low < high <= 1, got %.2f/%.2f", low, high)
	}
	return Bands{Low: low, High: high}, nil
}

func DefaultBands() Bands { return Bands{Low: 0.3, High: 0.7} }

func (b Bands) Classify(score float64) Band {
	switch {
	case score < b.Low:
		return BandLow
	case score < b.High:
		return BandMedium
	default:
		return BandHigh
	}
}

func (b Bands) Verdict(score float64) decision.Verdict {
	switch b.Classify(score) {
	case BandLow:
		return decision.VerdictAutoApprove
	case BandMedium:
		return decision.VerdictHold
	default:
		return decision.VerdictReject
	}
}

// Outcome is what detect persists for a freshly scored requisition.
type Outcome struct {
	Verdict  decision.Verdict
	State    decision.State
	CommitAt *time.Time
	Comment  string
}

type Policy struct {
	bands      Bands
	grace      time.Duration
	autoCommit bool
}

func New(b Bands, grace time.Duration, autoCommit bool) *Policy {
	return &Policy{bands: b, grace: grace, autoCommit: autoCommit}
}

func (p *Policy) Bands() Bands { return p.bands }

func (p *Policy) Grace() time.Duration { return p.grace }

// Decide classifies score. A nil score (scoring failed) always holds in
// detected so it can never reach the ERP without a human.
func (p *Policy) Decide(score *float64, now time.Time) Outcome {
	if score == nil {
		return Outcome{
			Verdict: decision.VerdictHold,
			State:   decision.StateDetected,
			Comment: "Risk scoring failed, manual review required",
		}
	}
	s := *score
	switch v := p.bands.Verdict(s); v {
	case decision.VerdictAutoApprove:
		if !p.autoCommit {
			return Outcome{
				Verdict: v,
				State:   decision.StateDetected,
				Comment: fmt.Sprintf("Low risk (score: %.2f) — auto-commit disabled, awaiting approval", s),
			}
		}
		at := now.Add(p.grace)
		return Outcome{
			Verdict:  v,
			State:    decision.StatePendingCommit,
			CommitAt: &at,
			Comment:  fmt.Sprintf("Low risk (score: %.2f) — auto-approved", s),
		}
	case decision.VerdictHold:
		return Outcome{
			Verdict: v,
			State:   decision.StateDetected,
			Comment: fmt.Sprintf("Medium risk (score: %.2f) — requires approval", s),
		}
	default:
		return Outcome{
			Verdict: decision.VerdictReject,
			State:   decision.StateCancelled,
			Comment: fmt.Sprintf("High risk (score: %.2f) — rejected", s),
		}
	}
}

// CommitAt is the commit time for a decision approved at now.
func (p *Policy) CommitAt(now time.Time) time.Time { return now.Add(p.grace) }
