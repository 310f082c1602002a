package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"erp-approval-middleware/internal/adapter/erp"
	"erp-approval-middleware/internal/domain/decision"
	"erp-approval-middleware/internal/domain/notification"
	"erp-approval-middleware/internal/domain/requisition"
	"erp-approval-middleware/internal/domain/uow"
	"erp-approval-middleware/internal/infrastructure/metrics"
	notify "erp-approval-middleware/internal/usecase/notification"
	"erp-approval-middleware/internal/usecase/policy"
	"erp-approval-middleware/internal/usecase/risk"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Usecase struct {
	uow       uow.UnitOfWork
	decisions decision.Repository
	erp       erp.Adapter
	risk      *risk.Engine
	policy    *policy.Policy
	notes     *notify.Service
	metrics   *metrics.Metrics
	undoTo    decision.State
	log       *slog.Logger
	now       func() time.Time

	reserveTTL time.Duration
	token      func() string
}

type Option func(*Usecase)

func WithLogger(l *slog.Logger) Option { return func(u *Usecase) { u.log = l } }
func WithClock(f func() time.Time) Option { return func(u *Usecase) { u.now = f } }
func WithMetrics(m *metrics.Metrics) Option { return func(u *Usecase) { u.metrics = m } }

// WithUndoTarget sets where undo sends a pending_commit decision:
// detected (default, can be re-approved) or cancelled.
func WithUndoTarget(s decision.State) Option { return func(u *Usecase) { u.undoTo = s } }

// WithReserveTTL bounds how long reject or undo may hold a decision while
// waiting on the ERP.
func WithReserveTTL(d time.Duration) Option { return func(u *Usecase) { u.reserveTTL = d } }

// NewUsecase: decisions serves reads and reservations outside a transaction,
// tx every state change.
func NewUsecase(tx uow.UnitOfWork, decisions decision.Repository, adapter erp.Adapter, engine *risk.Engine, pol *policy.Policy, notes *notify.Service, opts ...Option) *Usecase {
	u := &Usecase{
		uow:       tx,
		decisions: decisions,
		erp:       adapter,
		risk:      engine,
		policy:    pol,
		notes:     notes,
		undoTo:    decision.StateDetected,
		log:       slog.Default(),
		now:       time.Now,

		reserveTTL: 2 * time.Minute,
		token:      uuid.NewString,
	}
	for _, o := range opts {
		o(u)
	}
	return u
}

// Detect pulls staged requisitions, skips the ones that already have an
// active decision, scores and classifies the rest and stores one decision each.
// A requisition that fails to stage is logged and skipped.
func (u *Usecase) Detect(ctx context.Context) (*DetectResult, error) {
	reqs, err := u.erp.FetchStaged(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch staged requisitions: %w", decision.ErrAdapterFailure, err)
	}
	reqs = uniqueRequisitions(reqs)

	ids := make([]string, 0, len(reqs))
	for _, r := range reqs {
		ids = append(ids, r.ErpRequisitionID)
	}
	active, err := u.decisions.ActiveRequisitionIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	staged := 0
	for _, r := range reqs {
		if _, ok := active[r.ErpRequisitionID]; ok {
			u.log.Debug("detect: skipping, active decision exists", "erp_requisition_id", r.ErpRequisitionID)
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, err := u.stage(ctx, r)
		if errors.Is(err, decision.ErrDuplicateActive) {
			// a concurrent detect got there first
			u.log.Debug("detect: lost race for requisition", "erp_requisition_id", r.ErpRequisitionID)
			continue
		}
		if err != nil {
			u.log.Error("detect: failed to stage requisition", "erp_requisition_id", r.ErpRequisitionID, "err", err)
			continue
		}
		staged++
		if d.Verdict == decision.VerdictReject {
			u.pushReject(ctx, d)
		}
	}

	msg := "No pending requisitions found"
	if staged > 0 {
		msg = fmt.Sprintf("Staged %d approval decision(s)", staged)
	}
	u.log.Info("detect: done", "fetched", len(reqs), "staged", staged)
	return &DetectResult{StagedCount: staged, Message: msg}, nil
}

func (u *Usecase) stage(ctx context.Context, r requisition.Requisition) (*decision.Decision, error) {
	now := u.now().UTC()

	var score *float64
	var explanation string
	a, err := u.risk.Assess(r)
	if err != nil {
		u.log.Warn("detect: risk scoring failed", "erp_requisition_id", r.ErpRequisitionID, "err", err)
		explanation = "Risk scoring failed: " + err.Error()
	} else {
		s := a.Score
		score = &s
		explanation = a.Explanation
	}

	out := u.policy.Decide(score, now)
	snapshot, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("snapshot requisition: %w", err)
	}
	comment := out.Comment
	d := &decision.Decision{
		ErpRequisitionID:    r.ErpRequisitionID,
		RiskScore:           score,
		RiskExplanation:     explanation,
		RequisitionSnapshot: datatypes.JSON(snapshot),
		Verdict:             out.Verdict,
		State:               out.State,
		Comment:             &comment,
		CommitAt:            out.CommitAt,
	}

	var entry *notification.Entry
	err = u.uow.WithinTx(ctx, func(repos uow.Repos) error {
		if err := repos.Decisions.Create(ctx, d); err != nil {
			return err
		}
		var err error
		entry, err = u.notes.Record(ctx, repos.Notifications, d, decision.EventDetect, notification.StatusSent, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	u.notes.Publish(entry)
	u.metrics.IncDecisionCreated(string(d.Verdict))
	u.log.Info("detect: staged decision",
		"erp_requisition_id", d.ErpRequisitionID, "decision", d.Verdict, "state", d.State, "risk_score", score)
	return d, nil
}

// pushReject tells the ERP about a detect-time rejection. Best effort: the
// decision is already cancelled locally.
func (u *Usecase) pushReject(ctx context.Context, d *decision.Decision) {
	comment := ""
	if d.Comment != nil {
		comment = *d.Comment
	}
	if err := u.erp.Reject(ctx, d.ErpRequisitionID, comment); !erp.Succeeded(err) {
		u.log.Warn("detect: erp reject failed", "erp_requisition_id", d.ErpRequisitionID, "err", err)
	}
}

func uniqueRequisitions(in []requisition.Requisition) []requisition.Requisition {
	seen := make(map[string]struct{}, len(in))
	out := make([]requisition.Requisition, 0, len(in))
	for _, r := range in {
		if r.ErpRequisitionID == "" {
			continue
		}
		if _, dup := seen[r.ErpRequisitionID]; dup {
			continue
		}
		seen[r.ErpRequisitionID] = struct{}{}
		out = append(out, r)
	}
	return out
}

// List returns decisions newest first, optionally only those in state.
func (u *Usecase) List(ctx context.Context, state string) (*ListResult, error) {
	f := decision.Filter{State: decision.State(state)}
	if state != "" && !f.State.Valid() {
		return nil, fmt.Errorf("%w: unknown state %q", decision.ErrValidation, state)
	}
	rows, err := u.decisions.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := &ListResult{Decisions: make([]DecisionDTO, 0, len(rows)), Total: len(rows)}
	for i := range rows {
		out.Decisions = append(out.Decisions, toDTO(&rows[i]))
	}
	return out, nil
}

// Get returns the requisition's current decision (the active one if any).
func (u *Usecase) Get(ctx context.Context, erpRequisitionID string) (*DecisionDTO, error) {
	d, err := u.decisions.GetLatestByRequisitionID(ctx, erpRequisitionID)
	if err != nil {
		return nil, err
	}
	dto := toDTO(d)
	return &dto, nil
}

func (u *Usecase) Approve(ctx context.Context, in ActionInput) (*ActionResult, error) {
	d, err := u.transition(ctx, in.ErpRequisitionID, decision.EventApprove, in.Comment,
		func(cur *decision.Decision, now time.Time) (decision.Change, error) {
			if cur.State != decision.StateDetected {
				return decision.Change{}, fmt.Errorf("%w: cannot approve a %s decision", decision.ErrInvalidState, cur.State)
			}
			if cur.Claimed(now) {
				return decision.Change{}, fmt.Errorf("%w: another action is in progress", decision.ErrInvalidState)
			}
			if !cur.HasScore() {
				return decision.Change{}, decision.ErrNoScore
			}
			at := u.policy.CommitAt(now)
			comment := appendNote(cur.Comment, actionNote("Approved", "approved", in))
			return decision.Change{
				From:      decision.StateDetected,
				To:        decision.StatePendingCommit,
				Verdict:   decision.VerdictManualApprove,
				Comment:   &comment,
				CommitAt:  &at,
				Unclaimed: true,
				Now:       now,
			}, nil
		}, nil)
	if err != nil {
		return nil, err
	}
	return result(d, "Decision approved successfully"), nil
}

// Reject cancels a detected decision once the ERP has taken the rejection:
// if the ERP refuses, nothing changes.
func (u *Usecase) Reject(ctx context.Context, in ActionInput) (*ActionResult, error) {
	var comment string
	d, err := u.transition(ctx, in.ErpRequisitionID, decision.EventReject, in.Comment,
		func(cur *decision.Decision, now time.Time) (decision.Change, error) {
			if cur.State != decision.StateDetected {
				return decision.Change{}, fmt.Errorf("%w: cannot reject a %s decision", decision.ErrInvalidState, cur.State)
			}
			if cur.Claimed(now) {
				return decision.Change{}, fmt.Errorf("%w: another action is in progress", decision.ErrInvalidState)
			}
			comment = appendNote(cur.Comment, actionNote("Rejected", "rejected", in))
			return decision.Change{
				From:    decision.StateDetected,
				To:      decision.StateCancelled,
				Verdict: decision.VerdictReject,
				Comment: &comment,
			}, nil
		},
		func(ctx context.Context, cur *decision.Decision) error {
			return adapterCall(u.erp.Reject(ctx, cur.ErpRequisitionID, comment))
		})
	if err != nil {
		return nil, err
	}
	return result(d, "Decision rejected successfully"), nil
}

// Undo pulls a pending_commit decision back before the scheduler commits it.
// It is refused while a commit is in flight.
func (u *Usecase) Undo(ctx context.Context, in ActionInput) (*ActionResult, error) {
	d, err := u.transition(ctx, in.ErpRequisitionID, decision.EventUndo, in.Comment,
		func(cur *decision.Decision, now time.Time) (decision.Change, error) {
			if cur.State != decision.StatePendingCommit {
				return decision.Change{}, fmt.Errorf("%w: cannot undo a %s decision", decision.ErrInvalidState, cur.State)
			}
			if cur.Claimed(now) {
				return decision.Change{}, fmt.Errorf("%w: commit in progress", decision.ErrInvalidState)
			}
			c := decision.Change{
				From:      decision.StatePendingCommit,
				To:        u.undoTo,
				Unclaimed: true,
				Now:       now,
			}
			note := "[Cancelled by user]"
			if u.undoTo == decision.StateDetected {
				c.Verdict = decision.VerdictHold
				note = "[Reverted by user]"
			}
			comment := note
			if cur.Comment != nil && *cur.Comment != "" {
				comment = *cur.Comment + " " + note
			}
			c.Comment = &comment
			return c, nil
		},
		func(ctx context.Context, cur *decision.Decision) error {
			return adapterCall(u.erp.Rollback(ctx, cur.ErpRequisitionID))
		})
	if err != nil {
		return nil, err
	}
	msg := "Decision cancelled"
	if d.State == decision.StateDetected {
		msg = "Decision reverted to detected"
	}
	return result(d, msg), nil
}

// transition moves the requisition's latest decision as plan describes. With
// no hook it is a single locked transaction. With a hook (the ERP side
// effect) the row is reserved first and the hook runs with no transaction
// open; the write then only lands for the reservation holder. A hook error
// releases the reservation and leaves the row as it was.
func (u *Usecase) transition(
	ctx context.Context,
	erpRequisitionID string,
	ev decision.Event,
	detail string,
	plan func(cur *decision.Decision, now time.Time) (decision.Change, error),
	hook func(ctx context.Context, cur *decision.Decision) error,
) (*decision.Decision, error) {
	if hook == nil {
		return u.write(ctx, erpRequisitionID, ev, detail, plan, "")
	}

	cur, err := u.decisions.GetLatestByRequisitionID(ctx, erpRequisitionID)
	if err != nil {
		return nil, err
	}
	now := u.now().UTC()
	if _, err := plan(cur, now); err != nil {
		return nil, err
	}
	token := u.token()
	ok, err := u.decisions.Reserve(ctx, cur.ID, cur.State, token, now, now.Add(u.reserveTTL))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: decision changed or another action is in progress", decision.ErrStaleState)
	}

	if err := hook(ctx, cur); err != nil {
		u.release(ctx, cur, token)
		return nil, err
	}

	d, err := u.write(ctx, erpRequisitionID, ev, detail, plan, token)
	if err != nil {
		u.log.Error("decision write failed after the erp accepted the action",
			"erp_requisition_id", erpRequisitionID, "event", ev, "err", err)
		u.release(ctx, cur, token)
		return nil, err
	}
	return d, nil
}

// write locks the latest decision, applies plan's change and records the
// audit entry in one transaction. A non-empty token means the caller holds
// the row's reservation and the change must carry it.
func (u *Usecase) write(
	ctx context.Context,
	erpRequisitionID string,
	ev decision.Event,
	detail string,
	plan func(cur *decision.Decision, now time.Time) (decision.Change, error),
	token string,
) (*decision.Decision, error) {
	var (
		d     *decision.Decision
		from  decision.State
		entry *notification.Entry
	)
	err := u.uow.WithinDecisionTx(ctx, erpRequisitionID, func(r uow.Repos, cur *decision.Decision) error {
		now := u.now().UTC()
		if token != "" {
			if cur.ClaimToken == nil || *cur.ClaimToken != token {
				return fmt.Errorf("%w: reservation lost", decision.ErrStaleState)
			}
			cur.ClaimToken, cur.ClaimedUntil = nil, nil
		}
		c, err := plan(cur, now)
		if err != nil {
			return err
		}
		if token != "" {
			c.ClaimToken, c.Unclaimed = token, false
		}
		if err := r.Decisions.Apply(ctx, cur.ID, c); err != nil {
			return err
		}
		from = cur.State
		cur.ApplyChange(c)
		d = cur
		entry, err = u.notes.Record(ctx, r.Notifications, cur, ev, notification.StatusSent, detail)
		return err
	})
	if err != nil {
		return nil, err
	}

	u.notes.Publish(entry)
	u.metrics.IncTransition(string(from), string(d.State))
	u.log.Info("decision transition",
		"erp_requisition_id", d.ErpRequisitionID, "event", ev, "from", from, "to", d.State)
	return d, nil
}

func (u *Usecase) release(ctx context.Context, d *decision.Decision, token string) {
	if err := u.decisions.Release(context.WithoutCancel(ctx), d.ID, token); err != nil {
		u.log.Warn("release reservation", "erp_requisition_id", d.ErpRequisitionID, "err", err)
	}
}

func adapterCall(err error) error {
	if erp.Succeeded(err) {
		return nil
	}
	return fmt.Errorf("%w: %w", decision.ErrAdapterFailure, err)
}

// actionNote renders "Approved: <comment>" or "Manually approved by <actor>".
func actionNote(label, verb string, in ActionInput) string {
	if in.Comment != "" {
		return label + ": " + in.Comment
	}
	who := in.Actor
	if who == "" {
		who = "manager"
	}
	return "Manually " + verb + " by " + who
}

func appendNote(prev *string, note string) string {
	if prev == nil || *prev == "" {
		return note
	}
	return *prev + " | " + note
}

func result(d *decision.Decision, msg string) *ActionResult {
	return &ActionResult{
		ErpRequisitionID: d.ErpRequisitionID,
		Decision:         d.Verdict,
		State:            d.State,
		Message:          msg,
	}
}
