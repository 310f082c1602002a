// Package scheduler commits pending_commit decisions to the ERP once their
// grace period is over.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"erp-approval-middleware/internal/adapter/erp"
	"erp-approval-middleware/internal/domain/decision"
	"erp-approval-middleware/internal/domain/notification"
	"erp-approval-middleware/internal/domain/uow"
	"erp-approval-middleware/internal/infrastructure/metrics"
	notify "erp-approval-middleware/internal/usecase/notification"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrBusy is returned by Tick while another tick is still running.
var ErrBusy = errors.New("scheduler tick already in progress")

const (
	OutcomeCommitted = "committed"
	OutcomeRetry     = "retry"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomeError     = "error"
)

type Config struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
	MaxAttempts int
	ClaimTTL    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = 2 * time.Minute
	}
	return c
}

type Scheduler struct {
	uow       uow.UnitOfWork
	decisions decision.Repository
	erp       erp.Adapter
	notes     *notify.Service
	metrics   *metrics.Metrics
	cfg       Config
	log       *slog.Logger
	now       func() time.Time
	token     func() string

	busy    atomic.Bool
	running atomic.Bool
}

type Option func(*Scheduler)

func WithLogger(l *slog.Logger) Option { return func(s *Scheduler) { s.log = l } }
func WithClock(f func() time.Time) Option { return func(s *Scheduler) { s.now = f } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Scheduler) { s.metrics = m } }

func New(tx uow.UnitOfWork, decisions decision.Repository, adapter erp.Adapter, notes *notify.Service, cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		uow:       tx,
		decisions: decisions,
		erp:       adapter,
		notes:     notes,
		cfg:       cfg.withDefaults(),
		log:       slog.Default(),
		now:       time.Now,
		token:     uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Running reports whether Run is looping.
func (s *Scheduler) Running() bool { return s.running.Load() }

// Run ticks every Interval until ctx is cancelled. A tick in flight when
// ctx ends is allowed to finish; adapter timeouts bound how long that takes.
func (s *Scheduler) Run(ctx context.Context) {
	s.running.Store(true)
	defer s.running.Store(false)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	s.log.Info("scheduler: started", "interval", s.cfg.Interval, "batch", s.cfg.BatchSize, "concurrency", s.cfg.Concurrency)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler: stopped")
			return
		case <-ticker.C:
			if _, err := s.Tick(context.WithoutCancel(ctx)); err != nil {
				if errors.Is(err, ErrBusy) {
					s.log.Warn("scheduler: previous tick still running, skipping")
					continue
				}
				s.log.Error("scheduler: tick failed", "err", err)
			}
		}
	}
}

// TickResult counts what one tick did with each due decision.
type TickResult struct {
	Due       int
	Committed int
	Retried   int
	Failed    int
	Skipped   int
	Errors    int
}

func (r *TickResult) add(outcome string) {
	switch outcome {
	case OutcomeCommitted:
		r.Committed++
	case OutcomeRetry:
		r.Retried++
	case OutcomeFailed:
		r.Failed++
	case OutcomeSkipped:
		r.Skipped++
	default:
		r.Errors++
	}
}

// Tick commits every decision due at now. Ticks never overlap: a second
// caller gets ErrBusy. Each decision is claimed before the ERP is called, so
// a row is committed at most once even across processes.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return TickResult{}, ErrBusy
	}
	defer s.busy.Store(false)

	start := time.Now()
	defer func() { s.metrics.ObserveTick(time.Since(start)) }()

	now := s.now().UTC()
	due, err := s.decisions.ListDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return TickResult{}, fmt.Errorf("list due decisions: %w", err)
	}
	res := TickResult{Due: len(due)}
	if len(due) == 0 {
		return res, nil
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i := range due {
		d := due[i]
		g.Go(func() error {
			outcome := s.process(ctx, &d, now)
			s.metrics.IncCommitOutcome(outcome)
			mu.Lock()
			res.add(outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info("scheduler: tick done", "due", res.Due, "committed", res.Committed,
		"retried", res.Retried, "failed", res.Failed, "skipped", res.Skipped, "errors", res.Errors)
	return res, nil
}

func (s *Scheduler) process(ctx context.Context, d *decision.Decision, now time.Time) string {
	token := s.token()
	ok, err := s.decisions.Claim(ctx, d.ID, token, now, now.Add(s.cfg.ClaimTTL))
	if err != nil {
		s.log.Error("scheduler: claim failed", "erp_requisition_id", d.ErpRequisitionID, "err", err)
		return OutcomeError
	}
	if !ok {
		// undone, or claimed by another worker since ListDue
		return OutcomeSkipped
	}

	comment := ""
	if d.Comment != nil {
		comment = *d.Comment
	}
	commitErr := s.erp.Commit(ctx, d.ErpRequisitionID, comment)
	if erp.Succeeded(commitErr) {
		return s.committed(ctx, d, token)
	}
	return s.failed(ctx, d, token, commitErr)
}

func (s *Scheduler) committed(ctx context.Context, d *decision.Decision, token string) string {
	at := s.now().UTC()
	c := decision.Change{
		From:        decision.StatePendingCommit,
		To:          decision.StateCommitted,
		CommittedAt: &at,
		ClaimToken:  token,
	}
	entry, err := s.apply(ctx, d, c, notification.StatusSent, "committed via "+s.erp.Name())
	if err != nil {
		// The ERP holds the commit; whoever owns the row now will see
		// AlreadyProcessed on its own attempt.
		s.log.Error("scheduler: commit succeeded but state write failed",
			"erp_requisition_id", d.ErpRequisitionID, "err", err)
		return OutcomeError
	}
	s.notes.Publish(entry)

	if _, err := s.notes.PostCommit(ctx, d); err != nil {
		s.log.Warn("scheduler: post-commit notifications failed", "erp_requisition_id", d.ErpRequisitionID, "err", err)
	}
	s.log.Info("scheduler: committed", "erp_requisition_id", d.ErpRequisitionID, "decision", d.Verdict)
	return OutcomeCommitted
}

// failed records a commit failure. The decision is retried with backoff
// until MaxAttempts, then parked in failed.
func (s *Scheduler) failed(ctx context.Context, d *decision.Decision, token string, commitErr error) string {
	prior := d.Attempts
	attempts := prior + 1
	msg := commitErr.Error()
	c := decision.Change{
		From:         decision.StatePendingCommit,
		To:           decision.StateFailed,
		ErrorMessage: &msg,
		Attempts:     &attempts,
		ClaimToken:   token,
	}
	outcome := OutcomeFailed
	if attempts < s.cfg.MaxAttempts {
		next := s.now().UTC().Add(Backoff(prior))
		c.To = decision.StatePendingCommit
		c.CommitAt = &next
		outcome = OutcomeRetry
	}

	detail := fmt.Sprintf("attempt %d/%d failed: %s", attempts, s.cfg.MaxAttempts, msg)
	entry, err := s.apply(ctx, d, c, notification.StatusFailed, detail)
	if err != nil {
		s.log.Error("scheduler: could not record commit failure", "erp_requisition_id", d.ErpRequisitionID, "err", err)
		return OutcomeError
	}
	s.notes.Publish(entry)
	s.log.Warn("scheduler: commit failed", "erp_requisition_id", d.ErpRequisitionID,
		"attempts", attempts, "state", d.State, "err", commitErr)
	return outcome
}

// apply writes c (guarded by the claim) and its scheduler audit entry in one tx.
func (s *Scheduler) apply(ctx context.Context, d *decision.Decision, c decision.Change, status notification.Status, detail string) (*notification.Entry, error) {
	var entry *notification.Entry
	err := s.uow.WithinTx(ctx, func(r uow.Repos) error {
		if err := r.Decisions.Apply(ctx, d.ID, c); err != nil {
			return err
		}
		d.ApplyChange(c)
		var err error
		entry, err = s.notes.Record(ctx, r.Notifications, d, decision.EventScheduler, status, detail)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncTransition(string(c.From), string(c.To))
	return entry, nil
}

// Backoff is the delay before the next attempt after prior failures:
// 5s, 10s, 20s, ... capped at 5m.
func Backoff(prior int) time.Duration {
	base := 5 * time.Second
	if prior <= 0 {
		return base
	}
	max := 5 * time.Minute
	if prior >= 6 {
		return max
	}
	d := base << prior
	if d > max {
		return max
	}
	return d
}
