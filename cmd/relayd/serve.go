package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"relay/internal/agent"
	"relay/internal/config"
	"relay/internal/logging"
	"relay/internal/notify"
	"relay/internal/orchestrator"
	"relay/internal/scheduler"
	serverhttp "relay/internal/server/http"
	"relay/internal/store"
)

const shutdownGrace = 10 * time.Second

var (
	green = color.New(color.FgGreen).SprintFunc()
	cyan  = color.New(color.FgCyan).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func buildStore(cfg config.Config) (store.StateStore, error) {
	switch cfg.StoreBackend {
	case "file":
		return store.NewFileStore(cfg.StoreDir)
	case "sqlite":
		return store.NewGormStore(cfg.SQLiteDSN)
	case "memory":
		return store.NewMemStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func runServe(ctx context.Context, cfg config.Config) error {
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))
	logger := logging.NewComponentLogger("Main")

	st, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("build %s store: %w", cfg.StoreBackend, err)
	}

	alarms, err := scheduler.NewFileAlarmStore(cfg.AlarmDir)
	if err != nil {
		return fmt.Errorf("build alarm store: %w", err)
	}

	agentClient := agent.NewClient(agent.Config{
		BaseURL:         cfg.AgentBaseURL,
		CallbackBaseURL: cfg.CallbackBaseURL,
		CallbackSecret:  cfg.CallbackSecret,
	}, logging.NewComponentLogger("Agent"))
	notifier := notify.New(cfg.NotifyBaseURL, cfg.NotifySecret, logging.NewComponentLogger("Notify"))

	metricsRegistry := prometheus.NewRegistry()
	metrics := orchestrator.MustNewMetrics(metricsRegistry)

	// The scheduler fires cleanups through the registry, and the registry
	// schedules cleanups on the scheduler; the indirection breaks the
	// construction cycle.
	var (
		registry *orchestrator.Registry
		srv      *serverhttp.Server
	)
	sched := scheduler.New(alarms, func(ctx context.Context, taskID string) error {
		return registry.CleanupExecutor()(ctx, taskID)
	}, cfg.CleanupInterval, logging.NewComponentLogger("Scheduler"))
	registry = orchestrator.NewRegistry(
		orchestrator.Config{
			StreamTimeout:    cfg.StreamTimeout,
			EventBatchSize:   cfg.EventBatchSize,
			CleanupRetention: cfg.CleanupRetention,
		},
		st, agentClient, notifier, sched,
		logging.NewComponentLogger("Orchestrator"),
		orchestrator.WithMetrics(metrics),
		orchestrator.WithWipeCallback(func(taskID string) {
			if srv != nil {
				srv.InvalidateTask(taskID)
			}
		}),
	)

	srv = serverhttp.NewServer(registry, logging.NewComponentLogger("HTTP"))
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Router(metricsRegistry, nil),
	}

	fmt.Printf("%s %s\n", bold(green("relayd")), version)
	fmt.Printf("  listening on %s\n", cyan(cfg.ListenAddr))
	fmt.Printf("  store: %s, stream timeout: %s, retention: %s\n",
		cyan(cfg.StoreBackend), cyan(cfg.StreamTimeout.String()), cyan(cfg.CleanupRetention.String()))
	logger.Info("relayd %s starting on %s (store=%s)", version, cfg.ListenAddr, cfg.StoreBackend)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sched.Start(ctx)
		<-ctx.Done()
		sched.Stop()
		return nil
	})

	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutdown signal received, draining")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("relayd stopped")
	return err
}
