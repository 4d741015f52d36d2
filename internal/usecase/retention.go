package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"torrens/internal/domain"
)

// ArchivePolicy archives entries of the listed event types once they age
// past RetainFor. An empty EventTypes list matches every event type; a
// non-positive RetainFor disables the policy.
type ArchivePolicy struct {
	EventTypes []domain.EventType
	RetainFor  time.Duration
}

// Retention flips the archived flag on aged-out entries. Archival is a
// visibility marker only: entries stay in their chains and keep verifying.
type Retention struct {
	store    AuditStore
	policies []ArchivePolicy
	clock    Clock
	logger   *zap.Logger
	metrics  MetricsRecorder
}

type RetentionConfig struct {
	Clock   Clock
	Logger  *zap.Logger
	Metrics MetricsRecorder
}

func NewRetention(store AuditStore, policies []ArchivePolicy, cfg RetentionConfig) *Retention {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retention{
		store:    store,
		policies: policies,
		clock:    ensureClock(cfg.Clock),
		logger:   logger,
		metrics:  ensureMetrics(cfg.Metrics),
	}
}

// Sweep applies every enabled policy once and returns the number of entries
// archived.
func (r *Retention) Sweep(ctx context.Context) (int64, error) {
	now := r.clock().UTC()
	var total int64
	for _, p := range r.policies {
		if p.RetainFor <= 0 {
			continue
		}
		n, err := r.store.MarkArchived(ctx, p.EventTypes, now.Add(-p.RetainFor), now)
		if err != nil {
			return total, systemErr("ARCHIVE_SWEEP_FAILED", err)
		}
		total += n
	}
	if total > 0 {
		r.metrics.CountArchived(total)
		r.logger.Info("archived audit entries", zap.Int64("entries", total))
	}
	return total, nil
}
