package approval

import (
	"encoding/json"
	"time"

	"erp-approval-middleware/internal/domain/decision"
)

type DecisionDTO struct {
	ID               string           `json:"id"`
	ErpRequisitionID string           `json:"erp_requisition_id"`
	RiskScore        *float64         `json:"risk_score"`
	RiskExplanation  string           `json:"risk_explanation"`
	Decision         decision.Verdict `json:"decision"`
	State            decision.State   `json:"state"`
	Comment          *string          `json:"comment"`
	CommitAt         *time.Time       `json:"commit_at"`
	CommittedAt      *time.Time       `json:"committed_at"`
	ErrorMessage     *string          `json:"error_message,omitempty"`
	Attempts         int              `json:"attempts"`
	Requisition      json.RawMessage  `json:"requisition,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func toDTO(d *decision.Decision) DecisionDTO {
	dto := DecisionDTO{
		ID:               d.ID,
		ErpRequisitionID: d.ErpRequisitionID,
		RiskScore:        d.RiskScore,
		RiskExplanation:  d.RiskExplanation,
		Decision:         d.Verdict,
		State:            d.State,
		Comment:          d.Comment,
		CommitAt:         d.CommitAt,
		CommittedAt:      d.CommittedAt,
		ErrorMessage:     d.ErrorMessage,
		Attempts:         d.Attempts,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
	if len(d.RequisitionSnapshot) > 0 {
		dto.Requisition = json.RawMessage(d.RequisitionSnapshot)
	}
	return dto
}

type DetectResult struct {
	StagedCount int    `json:"staged_count"`
	Message     string `json:"message"`
}

type ListResult struct {
	Decisions []DecisionDTO `json:"decisions"`
	Total     int           `json:"total"`
}

type ActionInput struct {
	ErpRequisitionID string
	Comment          string
	Actor            string // username, for logs
}

// ActionResult answers approve, reject and undo.
type ActionResult struct {
	ErpRequisitionID string           `json:"erp_requisition_id"`
	Decision         decision.Verdict `json:"decision"`
	State            decision.State   `json:"state"`
	Message          string           `json:"message"`
}

type BatchInput struct {
	IDs     []string
	Comment string
	Actor   string
}

type BatchItem struct {
	ErpRequisitionID string `json:"erp_requisition_id"`
	Success          bool   `json:"success"`
	Message          string `json:"message"`
}

// BatchResult: Processed + Failed == len(Results) == len(input ids).
type BatchResult struct {
	Processed int         `json:"processed"`
	Failed    int         `json:"failed"`
	Results   []BatchItem `json:"results"`
}
