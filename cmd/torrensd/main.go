// torrensd hosts the engine's background duties: it keeps the metrics
// endpoint up, runs retention sweeps on an interval, and can verify
// every audit chain at startup. Transitions themselves arrive through
// the embedding application; torrensd only tends the shared store.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"torrens/internal/config"
	"torrens/internal/domain"
	"torrens/internal/infra/db"
	"torrens/internal/infra/memstore"
	"torrens/internal/infra/sqlitestore"
	"torrens/internal/metrics"
	"torrens/internal/usecase"
)

func main() {
	cfg := config.FromEnv()
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := runDaemon(cfg, logger); err != nil {
		logger.Fatal("torrensd exited", zap.Error(err))
	}
}

func runDaemon(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	audit, closeStores, err := openAuditStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeStores() }()

	// Fail fast on broken table overlays even though the daemon never
	// transitions; the embedding application shares this configuration.
	if _, err := usecase.LoadTables(cfg.TablesDir); err != nil {
		return fmt.Errorf("load tables: %w", err)
	}

	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)
	ledger := usecase.NewLedger(audit, usecase.LedgerConfig{Logger: logger, Metrics: recorder})
	retention := usecase.NewRetention(audit, archivePolicies(cfg.Retention), usecase.RetentionConfig{
		Logger:  logger,
		Metrics: recorder,
	})

	logger.Info("torrensd starting",
		zap.String("storage_driver", cfg.StorageDriver),
		zap.String("metrics_addr", cfg.MetricsAddr),
		zap.Duration("sweep_interval", cfg.SweepInterval),
		zap.Bool("verify_on_start", cfg.VerifyOnStart))

	if cfg.VerifyOnStart {
		verifyAllChains(ctx, audit, ledger, logger)
	}

	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           newMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("torrensd stopping")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			return fmt.Errorf("metrics listener: %w", err)
		case <-ticker.C:
			if _, err := retention.Sweep(ctx); err != nil {
				logger.Error("retention sweep failed", zap.Error(err))
			}
		}
	}
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func openAuditStore(cfg config.Config) (usecase.AuditStore, func() error, error) {
	switch cfg.StorageDriver {
	case "memory":
		return memstore.New(), func() error { return nil }, nil
	case "sqlite":
		s, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, s.Close, nil
	case "postgres":
		s, err := db.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s.Audit, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func verifyAllChains(ctx context.Context, audit usecase.AuditStore, ledger *usecase.Ledger, logger *zap.Logger) {
	chains, err := audit.Chains(ctx)
	if err != nil {
		logger.Error("list audit chains failed", zap.Error(err))
		return
	}
	invalid := 0
	for _, chain := range chains {
		result, err := ledger.VerifyIntegrity(ctx, chain.ResourceType, chain.ResourceID)
		if err != nil {
			logger.Error("chain verification errored",
				zap.String("resource_type", chain.ResourceType),
				zap.String("resource_id", chain.ResourceID),
				zap.Error(err))
			continue
		}
		if !result.Valid {
			invalid++
		}
	}
	logger.Info("startup chain verification complete",
		zap.Int("chains", len(chains)),
		zap.Int("invalid", invalid))
}

func archivePolicies(rules []config.RetentionRule) []usecase.ArchivePolicy {
	policies := make([]usecase.ArchivePolicy, 0, len(rules))
	for _, rule := range rules {
		policy := usecase.ArchivePolicy{RetainFor: rule.RetainFor}
		if rule.EventType != "*" {
			policy.EventTypes = []domain.EventType{domain.EventType(rule.EventType)}
		}
		policies = append(policies, policy)
	}
	return policies
}

func newLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		parsed = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(parsed)
	return zcfg.Build()
}
