package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"erp-approval-middleware/internal/adapter/erp"
	"erp-approval-middleware/internal/adapter/repository/mysql"
	"erp-approval-middleware/internal/domain/decision"
	"erp-approval-middleware/internal/domain/notification"
	"erp-approval-middleware/internal/domain/uow"
	"erp-approval-middleware/internal/testutil/decisionmock"
	"erp-approval-middleware/internal/testutil/erpmock"
	"erp-approval-middleware/internal/testutil/notificationmock"
	"erp-approval-middleware/internal/testutil/uowmock"
	notify "erp-approval-middleware/internal/usecase/notification"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var t0 = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fixture struct {
	db    *gorm.DB
	repo  *mysql.DecisionRepository
	notes *mysql.NotificationRepository
	erp   *erpmock.Adapter
	mu    sync.Mutex
	now   time.Time
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := mysql.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return &fixture{
		db:    db,
		repo:  mysql.NewDecisionRepository(db),
		notes: mysql.NewNotificationRepository(db),
		erp:   &erpmock.Adapter{NameValue: "mock"},
		now:   t0,
	}
}

func (f *fixture) scheduler(cfg Config) *Scheduler {
	svc := notify.NewService(f.notes, notify.WithLogger(quiet()), notify.WithClock(f.clock))
	return New(mysql.NewGormUoW(f.db), f.repo, f.erp, svc, cfg, WithLogger(quiet()), WithClock(f.clock))
}

func (f *fixture) pending(t *testing.T, erpID string, commitAt time.Time) *decision.Decision {
	t.Helper()
	score := 0.1
	comment := "Low risk (score: 0.10) — auto-approved"
	d := &decision.Decision{
		ErpRequisitionID: erpID,
		RiskScore:        &score,
		RiskExplanation:  "All parameters within normal operational thresholds",
		Verdict:          decision.VerdictAutoApprove,
		State:            decision.StatePendingCommit,
		Comment:          &comment,
		CommitAt:         &commitAt,
	}
	if err := f.repo.Create(context.Background(), d); err != nil {
		t.Fatalf("create: %v", err)
	}
	return d
}

func (f *fixture) get(t *testing.T, id string) *decision.Decision {
	t.Helper()
	d, err := f.repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return d
}

func (f *fixture) entries(t *testing.T, ch notification.Channel) []notification.Entry {
	t.Helper()
	out, err := f.notes.List(context.Background(), notification.Filter{Channel: ch})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	return out
}

func TestTick_CommitsOnlyOnceDue(t *testing.T) {
	f := newFixture(t)
	d := f.pending(t, "PR-1", t0.Add(5*time.Minute))
	s := f.scheduler(Config{MaxAttempts: 3})
	ctx := context.Background()

	f.set(t0.Add(4*time.Minute + 59*time.Second))
	res, err := s.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if res.Due != 0 || len(f.erp.Calls()) != 0 {
		t.Fatalf("committed before commit_at: %+v calls=%v", res, f.erp.Calls())
	}

	f.set(t0.Add(5 * time.Minute))
	res, err = s.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if res.Committed != 1 {
		t.Fatalf("result = %+v", res)
	}

	got := f.get(t, d.ID)
	if got.State != decision.StateCommitted || got.CommittedAt == nil || got.CommitAt != nil {
		t.Fatalf("after commit: state=%s committed_at=%v commit_at=%v", got.State, got.CommittedAt, got.CommitAt)
	}
	if got.ClaimToken != nil || got.ActiveKey != nil {
		t.Fatalf("claim/active slot not released")
	}
	if calls := f.erp.Calls(); len(calls) != 1 || calls[0] != "commit:PR-1" {
		t.Fatalf("erp calls = %v", calls)
	}
	for _, ch := range []notification.Channel{notification.ChannelScheduler, notification.ChannelEmail, notification.ChannelSlack} {
		if n := len(f.entries(t, ch)); n != 1 {
			t.Fatalf("%s entries = %d, want 1", ch, n)
		}
	}

	// nothing left to do
	res, err = s.Tick(ctx)
	if err != nil || res.Due != 0 {
		t.Fatalf("second tick: %+v %v", res, err)
	}
}

func TestTick_AlreadyProcessedCountsAsCommitted(t *testing.T) {
	f := newFixture(t)
	d := f.pending(t, "PR-1", t0)
	f.erp.CommitFn = func(context.Context, string, string) error { return erp.ErrAlreadyProcessed }

	res, err := f.scheduler(Config{}).Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if res.Committed != 1 || f.get(t, d.ID).State != decision.StateCommitted {
		t.Fatalf("result = %+v", res)
	}
}

func TestTick_RetriesWithBackoffThenFails(t *testing.T) {
	f := newFixture(t)
	d := f.pending(t, "PR-1", t0)
	f.erp.CommitFn = func(context.Context, string, string) error { return erp.ErrUnavailable }
	s := f.scheduler(Config{MaxAttempts: 2})
	ctx := context.Background()

	res, err := s.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if res.Retried != 1 {
		t.Fatalf("first tick = %+v", res)
	}
	got := f.get(t, d.ID)
	if got.State != decision.StatePendingCommit || got.Attempts != 1 {
		t.Fatalf("after first failure: state=%s attempts=%d", got.State, got.Attempts)
	}
	if got.CommitAt == nil || !got.CommitAt.Equal(t0.Add(5*time.Second)) {
		t.Fatalf("retry commit_at = %v, want +5s", got.CommitAt)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage == "" {
		t.Fatalf("error_message not recorded")
	}
	if got.ClaimToken != nil {
		t.Fatalf("claim not released after failure")
	}

	f.set(t0.Add(4 * time.Second))
	if res, _ := s.Tick(ctx); res.Due != 0 {
		t.Fatalf("retried before backoff elapsed: %+v", res)
	}

	f.set(t0.Add(5 * time.Second))
	res, err = s.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if res.Failed != 1 {
		t.Fatalf("second tick = %+v", res)
	}
	got = f.get(t, d.ID)
	if got.State != decision.StateFailed || got.Attempts != 2 || got.CommitAt != nil || got.ActiveKey != nil {
		t.Fatalf("after final failure: %+v", got)
	}

	entries := f.entries(t, notification.ChannelScheduler)
	if len(entries) != 2 {
		t.Fatalf("scheduler entries = %d, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Status != notification.StatusFailed {
			t.Fatalf("failure entry has status %s", e.Status)
		}
	}
	if n := len(f.entries(t, notification.ChannelEmail)); n != 0 {
		t.Fatalf("email sent for a failed commit")
	}
}

func TestTick_OverlappingSchedulersCommitOnce(t *testing.T) {
	f := newFixture(t)
	d := f.pending(t, "PR-1", t0)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.erp.CommitFn = func(context.Context, string, string) error {
		once.Do(func() { close(entered) })
		<-release
		return nil
	}
	a := f.scheduler(Config{})
	b := f.scheduler(Config{})
	ctx := context.Background()

	done := make(chan TickResult)
	go func() {
		res, err := a.Tick(ctx)
		if err != nil {
			t.Errorf("tick a: %v", err)
		}
		done <- res
	}()
	<-entered

	resB, err := b.Tick(ctx)
	if err != nil {
		t.Fatalf("tick b: %v", err)
	}
	if resB.Skipped != 1 || resB.Committed != 0 {
		t.Fatalf("second scheduler must skip the claimed row: %+v", resB)
	}

	close(release)
	resA := <-done
	if resA.Committed != 1 {
		t.Fatalf("first scheduler = %+v", resA)
	}
	if calls := f.erp.Calls(); len(calls) != 1 {
		t.Fatalf("erp commit called %d times", len(calls))
	}
	if f.get(t, d.ID).State != decision.StateCommitted {
		t.Fatalf("not committed")
	}
}

func TestTick_SameSchedulerDoesNotOverlap(t *testing.T) {
	f := newFixture(t)
	f.pending(t, "PR-1", t0)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.erp.CommitFn = func(context.Context, string, string) error {
		close(entered)
		<-release
		return nil
	}
	s := f.scheduler(Config{})
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Tick(ctx)
	}()
	<-entered

	if _, err := s.Tick(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("want ErrBusy, got %v", err)
	}
	close(release)
	<-done
}

func TestTick_SkipsRowUndoneBeforeClaim(t *testing.T) {
	commitAt := t0
	row := decision.Decision{ID: "d1", ErpRequisitionID: "PR-1", State: decision.StatePendingCommit, CommitAt: &commitAt}
	decisions := &decisionmock.Repo{
		ListDueFn: func(context.Context, time.Time, int) ([]decision.Decision, error) {
			return []decision.Decision{row}, nil
		},
		ClaimFn: func(context.Context, string, string, time.Time, time.Time) (bool, error) { return false, nil },
	}
	notes := &notificationmock.Repo{}
	adapter := &erpmock.Adapter{}
	s := New(uowmock.Passthrough(uow.Repos{Decisions: decisions, Notifications: notes}, nil),
		decisions, adapter, notify.NewService(notes), Config{},
		WithLogger(quiet()), WithClock(func() time.Time { return t0 }))

	res, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if res.Skipped != 1 || len(adapter.Calls()) != 0 {
		t.Fatalf("result = %+v calls=%v", res, adapter.Calls())
	}
}

func TestTick_ListDueError(t *testing.T) {
	boom := errors.New("db down")
	decisions := &decisionmock.Repo{
		ListDueFn: func(context.Context, time.Time, int) ([]decision.Decision, error) { return nil, boom },
	}
	s := New(uowmock.New(), decisions, &erpmock.Adapter{}, notify.NewService(&notificationmock.Repo{}), Config{},
		WithLogger(quiet()))
	if _, err := s.Tick(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("want %v, got %v", boom, err)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	s := f.scheduler(Config{Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	deadline := time.Now().Add(time.Second)
	for !s.Running() {
		if time.Now().After(deadline) {
			t.Fatalf("scheduler never started")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if s.Running() {
		t.Fatalf("Running still true after stop")
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		prior int
		want  time.Duration
	}{
		{-1, 5 * time.Second},
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{5, 160 * time.Second},
		{6, 5 * time.Minute},
		{60, 5 * time.Minute},
	}
	for _, tt := range tests {
		if got := Backoff(tt.prior); got != tt.want {
			t.Fatalf("Backoff(%d) = %v, want %v", tt.prior, got, tt.want)
		}
	}
}
