package mysql

import (
	"context"
	"errors"
	"time"

	"erp-approval-middleware/internal/domain/decision"
	"erp-approval-middleware/pkg/id"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DecisionRepository struct{ db *gorm.DB }

func NewDecisionRepository(db *gorm.DB) *DecisionRepository { return &DecisionRepository{db: db} }

func (r *DecisionRepository) Create(ctx context.Context, d *decision.Decision) error {
	if d.ID == "" {
		d.ID = id.NewID32()
	}
	if !decision.InitialStateAllowed(d.State) {
		return decision.ErrInvalidState
	}
	d.ActiveKey = nil
	if d.State.Active() {
		k := d.ErpRequisitionID
		d.ActiveKey = &k
	}
	err := r.db.WithContext(ctx).Create(d).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return decision.ErrDuplicateActive
	}
	return err
}

func (r *DecisionRepository) GetByID(ctx context.Context, decisionID string) (*decision.Decision, error) {
	var out decision.Decision
	err := r.db.WithContext(ctx).Where("id = ?", decisionID).First(&out).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &out, nil
}

// latest prefers the active decision, then the newest terminal one.
func (r *DecisionRepository) latest(q *gorm.DB, erpRequisitionID string) (*decision.Decision, error) {
	var out decision.Decision
	err := q.Where("erp_requisition_id = ?", erpRequisitionID).
		Order("active_key IS NULL").
		Order("created_at DESC").
		Order("id DESC").
		Take(&out).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &out, nil
}

func (r *DecisionRepository) GetLatestByRequisitionID(ctx context.Context, erpRequisitionID string) (*decision.Decision, error) {
	return r.latest(r.db.WithContext(ctx), erpRequisitionID)
}

func (r *DecisionRepository) GetLatestByRequisitionIDForUpdate(ctx context.Context, erpRequisitionID string) (*decision.Decision, error) {
	return r.latest(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), erpRequisitionID)
}

func (r *DecisionRepository) List(ctx context.Context, f decision.Filter) ([]decision.Decision, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if f.State != "" {
		q = q.Where("state = ?", f.State)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []decision.Decision
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *DecisionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]decision.Decision, error) {
	q := r.db.WithContext(ctx).
		Where("state = ? AND commit_at IS NOT NULL AND commit_at <= ?", decision.StatePendingCommit, now).
		Where("(claim_token IS NULL OR claimed_until IS NULL OR claimed_until < ?)", now).
		Order("commit_at ASC").
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []decision.Decision
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *DecisionRepository) ActiveRequisitionIDs(ctx context.Context, erpRequisitionIDs []string) (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(erpRequisitionIDs))
	if len(erpRequisitionIDs) == 0 {
		return out, nil
	}
	var keys []string
	err := r.db.WithContext(ctx).Model(&decision.Decision{}).
		Where("active_key IN ?", erpRequisitionIDs).
		Pluck("active_key", &keys).Error
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out, nil
}

func (r *DecisionRepository) Apply(ctx context.Context, decisionID string, c decision.Change) error {
	if err := c.Validate(); err != nil {
		return err
	}

	updates := map[string]any{
		"state":         c.To,
		"claim_token":   nil,
		"claimed_until": nil,
		"commit_at":     nil,
		"committed_at":  nil,
		"active_key":    nil,
	}
	if c.To.Active() {
		updates["active_key"] = gorm.Expr("erp_requisition_id")
	}
	if c.CommitAt != nil {
		updates["commit_at"] = *c.CommitAt
	}
	if c.CommittedAt != nil {
		updates["committed_at"] = *c.CommittedAt
	}
	if c.Verdict != "" {
		updates["decision"] = c.Verdict
	}
	if c.Comment != nil {
		updates["comment"] = *c.Comment
	}
	if c.ErrorMessage != nil {
		updates["error_message"] = *c.ErrorMessage
	}
	if c.Attempts != nil {
		updates["attempts"] = *c.Attempts
	}

	q := r.db.WithContext(ctx).Model(&decision.Decision{}).
		Where("id = ? AND state = ?", decisionID, c.From)
	if c.ClaimToken != "" {
		q = q.Where("claim_token = ?", c.ClaimToken)
	}
	if c.Unclaimed {
		q = q.Where("(claim_token IS NULL OR claimed_until IS NULL OR claimed_until < ?)", c.Now)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return decision.ErrDuplicateActive
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return decision.ErrStaleState
	}
	return nil
}

func (r *DecisionRepository) Claim(ctx context.Context, decisionID, token string, now, until time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&decision.Decision{}).
		Where("id = ? AND state = ? AND commit_at <= ?", decisionID, decision.StatePendingCommit, now).
		Where("(claim_token IS NULL OR claimed_until IS NULL OR claimed_until < ?)", now).
		Updates(map[string]any{"claim_token": token, "claimed_until": until})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *DecisionRepository) Reserve(ctx context.Context, decisionID string, from decision.State, token string, now, until time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&decision.Decision{}).
		Where("id = ? AND state = ?", decisionID, from).
		Where("(claim_token IS NULL OR claimed_until IS NULL OR claimed_until < ?)", now).
		Updates(map[string]any{"claim_token": token, "claimed_until": until})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *DecisionRepository) Release(ctx context.Context, decisionID, token string) error {
	return r.db.WithContext(ctx).Model(&decision.Decision{}).
		Where("id = ? AND claim_token = ?", decisionID, token).
		Updates(map[string]any{"claim_token": nil, "claimed_until": nil}).Error
}

func (r *DecisionRepository) Stats(ctx context.Context, low, high float64) (*decision.Stats, error) {
	var agg struct {
		Total    int64
		AvgScore *float64
		Low      int64
		Medium   int64
		High     int64
	}
	err := r.db.WithContext(ctx).Model(&decision.Decision{}).
		Select(`COUNT(*) AS total,
			AVG(risk_score) AS avg_score,
			COALESCE(SUM(CASE WHEN risk_score < ? THEN 1 ELSE 0 END), 0) AS low,
			COALESCE(SUM(CASE WHEN risk_score >= ? AND risk_score < ? THEN 1 ELSE 0 END), 0) AS medium,
			COALESCE(SUM(CASE WHEN risk_score >= ? THEN 1 ELSE 0 END), 0) AS high`,
			low, low, high, high).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Verdict decision.Verdict
		N       int64
	}
	err = r.db.WithContext(ctx).Model(&decision.Decision{}).
		Select("decision AS verdict, COUNT(*) AS n").
		Group("decision").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	st := &decision.Stats{
		Total:      agg.Total,
		ByVerdict:  make(map[decision.Verdict]int64, len(decision.Verdicts)),
		LowRisk:    agg.Low,
		MediumRisk: agg.Medium,
		HighRisk:   agg.High,
	}
	for _, v := range decision.Verdicts {
		st.ByVerdict[v] = 0
	}
	for _, row := range rows {
		st.ByVerdict[row.Verdict] = row.N
	}
	if agg.AvgScore != nil {
		st.AvgRiskScore = *agg.AvgScore
	}
	return st, nil
}

func (r *DecisionRepository) CreatedSince(ctx context.Context, since time.Time) ([]time.Time, error) {
	var out []time.Time
	err := r.db.WithContext(ctx).Model(&decision.Decision{}).
		Where("created_at >= ?", since).
		Order("created_at ASC").
		Pluck("created_at", &out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decision.ErrNotFound
	}
	return err
}
