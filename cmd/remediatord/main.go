// remediatord is the control plane daemon: it serves the public API,
// ingests Alertmanager webhooks, evaluates rules and triggers, and runs
// the worker pool that drives queued executions against real hosts.
//
// Usage:
//
//	remediatord --config /etc/remediator/config.yaml
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maftabmirza/remediation-engine-sub001/internal/api"
	"github.com/maftabmirza/remediation-engine-sub001/internal/audit"
	"github.com/maftabmirza/remediation-engine-sub001/internal/cache"
	"github.com/maftabmirza/remediation-engine-sub001/internal/config"
	"github.com/maftabmirza/remediation-engine-sub001/internal/executor"
	"github.com/maftabmirza/remediation-engine-sub001/internal/executor/httpapi"
	"github.com/maftabmirza/remediation-engine-sub001/internal/executor/sshexec"
	"github.com/maftabmirza/remediation-engine-sub001/internal/executor/winrm"
	"github.com/maftabmirza/remediation-engine-sub001/internal/intake"
	"github.com/maftabmirza/remediation-engine-sub001/internal/llmclient"
	"github.com/maftabmirza/remediation-engine-sub001/internal/logging"
	"github.com/maftabmirza/remediation-engine-sub001/internal/orchestrator"
	"github.com/maftabmirza/remediation-engine-sub001/internal/queue"
	"github.com/maftabmirza/remediation-engine-sub001/internal/rules"
	"github.com/maftabmirza/remediation-engine-sub001/internal/safety"
	"github.com/maftabmirza/remediation-engine-sub001/internal/sdnotify"
	"github.com/maftabmirza/remediation-engine-sub001/internal/secretbox"
	"github.com/maftabmirza/remediation-engine-sub001/internal/store"
	"github.com/maftabmirza/remediation-engine-sub001/internal/trigger"
	"github.com/maftabmirza/remediation-engine-sub001/internal/worker"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"

	"go.uber.org/zap"
)

var flagConfig = flag.String("config", "", "YAML config file path (optional; env vars still apply)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New(cfg.Production)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Migrate(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		logger.Fatal("apply migrations", zap.Error(err))
	}

	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect to database", zap.Error(err))
	}
	defer db.Close()

	secrets, err := secretbox.New(cfg.MasterKeyHex)
	if err != nil {
		logger.Fatal("build secret box", zap.Error(err))
	}

	counter := cache.NewFromAddr(cfg.RedisAddr)
	defer counter.Close()

	breakers := safety.NewBreakerManager(db, logger)
	limiter := safety.NewRateLimiter(counter)
	blackout := safety.NewBlackoutChecker()
	approvals := safety.NewApprovalGate(db)

	auditLog := audit.New(db, logger, 1024)
	go auditLog.Run(ctx)

	drivers := map[model.StepType]executor.Driver{
		model.StepTypeSSH:     sshexec.New(logger, "/var/lib/remediator/known_hosts"),
		model.StepTypeWinRM:   winrm.New(logger),
		model.StepTypeHTTPAPI: httpapi.New(logger),
	}

	orch := orchestrator.New(db, auditLog, breakers, limiter, blackout, secrets, drivers,
		cfg.GlobalBreakerFailureThreshold, cfg.GlobalBreakerFailureWindowMinutes, cfg.GlobalBreakerOpenDurationMinutes, logger)

	rulesEngine := rules.NewEngine()
	triggerMatcher := trigger.NewMatcher(db)

	allRules, err := db.ListRules(ctx)
	if err != nil {
		logger.Fatal("load rules", zap.Error(err))
	}
	rulesEngine.LoadRules(allRules)

	allTriggers, err := db.ListAllEnabledTriggers(ctx)
	if err != nil {
		logger.Fatal("load triggers", zap.Error(err))
	}
	triggerMatcher.LoadTriggers(allTriggers)

	var analyzer llmclient.Analyzer
	if cfg.LLMAnalyzerEndpoint != "" {
		analyzer = llmclient.New(cfg.LLMAnalyzerEndpoint)
	}

	evalQueue := queue.New(logger, 256)
	evaluator := worker.NewEvaluator(worker.DefaultEvaluatorConfig(), evalQueue, db, rulesEngine, triggerMatcher, analyzer, auditLog, logger)
	go func() {
		if err := evaluator.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("evaluator stopped", zap.Error(err))
		}
	}()

	intakePipeline := intake.NewPipeline(db, evalQueue.Enqueue)

	pool := worker.New(worker.DefaultConfig(), db, orch, approvals, blackout, auditLog, logger)
	go func() {
		if err := pool.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("worker pool stopped", zap.Error(err))
		}
	}()

	apiServer := api.New(db, intakePipeline, rulesEngine, triggerMatcher, breakers, approvals, secrets, analyzer, cfg.APIBearerToken, logger)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      apiServer.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		_ = sdnotify.Stopping()
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go watchdogLoop(ctx, logger)

	logger.Info("remediatord listening", zap.String("addr", cfg.ListenAddr))
	_ = sdnotify.Ready()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server failed", zap.Error(err))
	}
	logger.Info("remediatord stopped")
}

// watchdogLoop pings systemd's watchdog every 15s when NOTIFY_SOCKET is
// set; sdnotify itself is a no-op off systemd, so this is harmless
// elsewhere.
func watchdogLoop(ctx context.Context, logger *zap.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sdnotify.Watchdog(); err != nil {
				logger.Warn("sd_notify watchdog ping failed", zap.Error(err))
			}
		}
	}
}
