package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"erp-approval-middleware/internal/adapter/erp"
	httpadp "erp-approval-middleware/internal/adapter/http"
	"erp-approval-middleware/internal/adapter/realtime"
	"erp-approval-middleware/internal/adapter/repository/mysql"
	"erp-approval-middleware/internal/config"
	"erp-approval-middleware/internal/domain/decision"
	"erp-approval-middleware/internal/infrastructure/cache"
	"erp-approval-middleware/internal/infrastructure/db"
	"erp-approval-middleware/internal/infrastructure/metrics"
	"erp-approval-middleware/internal/usecase/analytics"
	"erp-approval-middleware/internal/usecase/approval"
	"erp-approval-middleware/internal/usecase/auth"
	notify "erp-approval-middleware/internal/usecase/notification"
	"erp-approval-middleware/internal/usecase/policy"
	"erp-approval-middleware/internal/usecase/risk"
	"erp-approval-middleware/internal/usecase/scheduler"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	gdb, err := db.OpenGorm(cfg.DBDriver, cfg.DSN(), cfg.AppEnv == "development")
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if err := mysql.Migrate(gdb); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	rdb, err := cache.OpenRedis(cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return fmt.Errorf("open redis: %w", err)
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	switchable, err := buildAdapters(context.Background(), cfg, gdb, log)
	if err != nil {
		return err
	}
	adapter := erp.NewInstrumented(switchable, cfg.AdapterCallTimeout(), m)

	profile := risk.ProductionProfile()
	if cfg.DemoMode {
		profile = risk.DemoProfile()
	}
	if cfg.RiskProfilePath != "" {
		if profile, err = risk.LoadProfile(cfg.RiskProfilePath, profile); err != nil {
			return err
		}
	}
	bands, err := policy.NewBands(cfg.RiskLowThreshold, cfg.RiskHighThreshold)
	if err != nil {
		return err
	}
	pol := policy.New(bands, cfg.GracePeriod(), cfg.AutoCommitEnabled)

	decisions := mysql.NewDecisionRepository(gdb)
	tx := mysql.NewGormUoW(gdb)

	hub := realtime.NewHub(log)
	noteOpts := []notify.Option{notify.WithPublisher(hub), notify.WithLogger(log)}
	if cfg.SlackWebhookURL != "" {
		noteOpts = append(noteOpts, notify.WithSlack(notify.NewSlackWebhook(cfg.SlackWebhookURL, nil)))
	}
	notes := notify.NewService(mysql.NewNotificationRepository(gdb), noteOpts...)

	approvals := approval.NewUsecase(tx, decisions, adapter, risk.NewEngine(profile), pol, notes,
		approval.WithLogger(log),
		approval.WithMetrics(m),
		approval.WithUndoTarget(decision.State(cfg.UndoTarget)),
		approval.WithReserveTTL(cfg.ClaimTTL()),
	)
	sched := scheduler.New(tx, decisions, adapter, notes, scheduler.Config{
		Interval:    cfg.SchedulerTick(),
		BatchSize:   cfg.SchedulerBatchSize,
		Concurrency: cfg.SchedulerWorkers,
		MaxAttempts: cfg.CommitMaxAttempts,
		ClaimTTL:    cfg.ClaimTTL(),
	}, scheduler.WithLogger(log), scheduler.WithMetrics(m))

	authSvc := auth.NewService(mysql.NewUserRepository(gdb), cache.NewTokenDenylist(rdb), cfg.JWTSecret, cfg.JWTExpiry())
	if created, err := authSvc.EnsureAdmin(context.Background(), cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	} else if created {
		log.Info("admin user created", "username", cfg.AdminUsername)
	}

	e := httpadp.NewEcho()
	httpadp.Register(e, httpadp.Routes{
		Health:         httpadp.NewHandler(switchable, sched),
		Auth:           httpadp.NewAuthHandler(authSvc),
		Approvals:      httpadp.NewApprovalHandler(approvals),
		Notifications:  httpadp.NewNotificationHandler(notes, authSvc, hub),
		Analytics:      httpadp.NewAnalyticsHandler(analytics.NewUsecase(decisions, bands)),
		Admin:          httpadp.NewAdminHandler(switchable),
		Authenticator:  authSvc,
		Redis:          rdb,
		IdempotencyTTL: cfg.IdempotencyTTL(),
		Gatherer:       reg,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()

	srvErr := make(chan error, 1)
	go func() {
		addr := ":" + cfg.AppPort
		log.Info("listening", "addr", addr, "erp_mode", switchable.Mode())
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-srvErr:
		stop()
		<-schedDone
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "err", err)
	}
	<-schedDone
	log.Info("stopped")
	return nil
}

// buildAdapters registers every adapter the configuration allows so an admin
// can switch between them at runtime.
func buildAdapters(ctx context.Context, cfg *config.Config, gdb *gorm.DB, log *slog.Logger) (*erp.Switchable, error) {
	mock := erp.NewMock(gdb, erp.WithMockLogger(log))
	if err := mock.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate erp mock: %w", err)
	}
	if _, err := mock.Seed(ctx); err != nil {
		return nil, fmt.Errorf("seed erp mock: %w", err)
	}

	adapters := map[string]erp.Adapter{erp.ModeMock: mock}
	if cfg.SAPBaseURL != "" {
		sap := erp.NewSAP(erp.SAPConfig{
			BaseURL:       cfg.SAPBaseURL,
			ServicePrefix: cfg.SAPServicePrefix,
			Username:      cfg.SAPUsername,
			Password:      cfg.SAPPassword,
			APIKey:        cfg.SAPAPIKey,
			Timeout:       time.Duration(cfg.SAPTimeoutSecs) * time.Second,
			RatePerSecond: cfg.SAPRatePerSecond,
		}, erp.WithSAPLogger(log))
		adapters[erp.ModeSAP] = sap
		adapters[erp.ModeHybrid] = erp.NewHybrid(sap, mock, log)
	}
	return erp.NewSwitchable(adapters, cfg.ERPMode)
}
