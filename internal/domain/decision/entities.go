package decision

import (
	"time"

	"gorm.io/datatypes"
)

type State string

const (
	StateDetected      State = "detected"
	StatePendingCommit State = "pending_commit"
	StateCommitted     State = "committed"
	StateCancelled     State = "cancelled"
	StateFailed        State = "failed"
)

var States = []State{StateDetected, StatePendingCommit, StateCommitted, StateCancelled, StateFailed}

// Active decisions hold the per-requisition uniqueness slot.
func (s State) Active() bool { return s == StateDetected || s == StatePendingCommit }

func (s State) Terminal() bool { return !s.Active() }

func (s State) Valid() bool {
	for _, v := range States {
		if s == v {
			return true
		}
	}
	return false
}

// Verdict is stored in the "decision" column.
type Verdict string

const (
	VerdictAutoApprove   Verdict = "auto_approve"
	VerdictManualApprove Verdict = "manual_approve"
	VerdictHold          Verdict = "hold"
	VerdictReject        Verdict = "reject"
)

var Verdicts = []Verdict{VerdictAutoApprove, VerdictManualApprove, VerdictHold, VerdictReject}

// Table: approval_decisions
type Decision struct {
	// Public identifier (32-char lowercase hex)
	ID               string `gorm:"column:id;type:char(32);primaryKey"`
	ErpRequisitionID string `gorm:"column:erp_requisition_id;size:50;not null;index"`
	// Equals ErpRequisitionID while the decision is active, NULL once terminal.
	// The unique index allows many NULLs, so only one active row per requisition.
	ActiveKey *string `gorm:"column:active_key;size:50;uniqueIndex:ux_decisions_active"`

	RiskScore           *float64       `gorm:"column:risk_score"`
	RiskExplanation     string         `gorm:"column:risk_explanation;type:text"`
	RequisitionSnapshot datatypes.JSON `gorm:"column:requisition_snapshot"`

	Verdict Verdict `gorm:"column:decision;size:20;not null"`
	State   State   `gorm:"column:state;size:20;not null;index:idx_decisions_due,priority:1"`
	Comment *string `gorm:"column:comment;type:text"`

	CommitAt     *time.Time `gorm:"column:commit_at;index:idx_decisions_due,priority:2"`
	CommittedAt  *time.Time `gorm:"column:committed_at"`
	ErrorMessage *string    `gorm:"column:error_message;type:text"`
	Attempts     int        `gorm:"column:attempts;not null;default:0"`

	// Scheduler claim; a row with a live claim is being committed.
	ClaimToken   *string    `gorm:"column:claim_token;size:36"`
	ClaimedUntil *time.Time `gorm:"column:claimed_until"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Decision) TableName() string { return "approval_decisions" }

// Claimed reports whether a scheduler claim is still live at now.
func (d *Decision) Claimed(now time.Time) bool {
	return d.ClaimToken != nil && d.ClaimedUntil != nil && d.ClaimedUntil.After(now)
}

func (d *Decision) HasScore() bool { return d.RiskScore != nil }

// Stats is the aggregate view behind the analytics summary.
type Stats struct {
	Total        int64
	ByVerdict    map[Verdict]int64
	AvgRiskScore float64
	LowRisk      int64
	MediumRisk   int64
	HighRisk     int64
}
