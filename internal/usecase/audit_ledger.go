package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"torrens/internal/domain"
)

// Ledger is the append-only, hash-chained audit log. Each
// (resourceType, resourceID) pair forms its own chain; the store serializes
// appends per chain so the previous-hash read and the insert form one
// atomic step.
type Ledger struct {
	store   AuditStore
	clock   Clock
	logger  *zap.Logger
	metrics MetricsRecorder
}

type LedgerConfig struct {
	Clock   Clock
	Logger  *zap.Logger
	Metrics MetricsRecorder
}

func NewLedger(store AuditStore, cfg LedgerConfig) *Ledger {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:   store,
		clock:   ensureClock(cfg.Clock),
		logger:  logger,
		metrics: ensureMetrics(cfg.Metrics),
	}
}

// Append assigns the entry's identity and timestamp if unset, computes the
// hash triple under the chain's append lock and persists the entry. The
// caller never supplies hashes; incoming hash and archival fields are
// discarded.
func (l *Ledger) Append(ctx context.Context, entry domain.AuditLogEntry) (domain.AuditLogEntry, error) {
	if l == nil || l.store == nil {
		return domain.AuditLogEntry{}, domain.SystemError("AUDIT_STORE_REQUIRED", errors.New("audit store required"))
	}
	if err := validateEntry(entry); err != nil {
		return domain.AuditLogEntry{}, err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = l.clock()
	}
	entry.OccurredAt = entry.OccurredAt.UTC().Truncate(time.Microsecond)
	entry.PreviousHash = ""
	entry.CurrentHash = ""
	entry.ChainHash = ""
	entry.Archived = false
	entry.ArchivedAt = nil

	persisted, err := l.store.AppendEntry(ctx, entry.ResourceType, entry.ResourceID,
		func(tail *domain.AuditLogEntry) (domain.AuditLogEntry, error) {
			prevChain := ""
			if tail != nil {
				entry.PreviousHash = tail.CurrentHash
				prevChain = tail.ChainHash
			}
			current, err := computeEntryHash(entry)
			if err != nil {
				return domain.AuditLogEntry{}, domain.SystemError("AUDIT_HASH_FAILED", err)
			}
			entry.CurrentHash = current
			entry.ChainHash = chainLinkHash(prevChain, current)
			return entry, nil
		})
	if err != nil {
		l.metrics.CountAuditAppend("error")
		return domain.AuditLogEntry{}, systemErr("AUDIT_APPEND_FAILED", err)
	}
	l.metrics.CountAuditAppend("ok")
	return persisted, nil
}

// LogEventInput is the caller-facing shape for recording a standalone audit
// event (document viewed, plan signed, record amended) outside the workflow
// write path.
type LogEventInput struct {
	EventType    domain.EventType
	ResourceType string
	ResourceID   string
	ActorID      string
	ActorName    string
	ActorRole    string
	Action       string
	Description  string
	Changes      *domain.ChangeSet
	Metadata     map[string]any
	OccurredAt   time.Time
}

func (l *Ledger) LogEvent(ctx context.Context, in LogEventInput) (domain.AuditLogEntry, error) {
	return l.Append(ctx, domain.AuditLogEntry{
		EventType:    in.EventType,
		ResourceType: in.ResourceType,
		ResourceID:   in.ResourceID,
		ActorID:      in.ActorID,
		ActorName:    in.ActorName,
		ActorRole:    in.ActorRole,
		Action:       in.Action,
		Description:  in.Description,
		Changes:      in.Changes,
		Metadata:     in.Metadata,
		OccurredAt:   in.OccurredAt,
	})
}

// Query returns matching entries, reverse-chronological, plus the total
// match count before paging.
func (l *Ledger) Query(ctx context.Context, q AuditQuery) ([]domain.AuditLogEntry, int64, error) {
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return nil, 0, domain.ValidationError("RANGE_INVALID", "query range ends before it starts")
	}
	q.Page = q.Page.normalized()
	entries, total, err := l.store.QueryEntries(ctx, q)
	if err != nil {
		return nil, 0, systemErr("AUDIT_QUERY_FAILED", err)
	}
	return entries, total, nil
}

// ChainEntries exposes one resource's full chain in insertion order.
func (l *Ledger) ChainEntries(ctx context.Context, resourceType, resourceID string) ([]domain.AuditLogEntry, error) {
	entries, err := l.store.ChainEntries(ctx, resourceType, resourceID)
	if err != nil {
		return nil, systemErr("AUDIT_READ_FAILED", err)
	}
	return entries, nil
}

func validateEntry(e domain.AuditLogEntry) error {
	switch {
	case e.EventType == "":
		return domain.ValidationError("EVENT_TYPE_REQUIRED", "audit entry missing event type")
	case e.ResourceType == "":
		return domain.ValidationError("RESOURCE_TYPE_REQUIRED", "audit entry missing resource type")
	case e.ResourceID == "":
		return domain.ValidationError("RESOURCE_ID_REQUIRED", "audit entry missing resource id")
	case e.ActorID == "":
		return domain.ValidationError("ACTOR_REQUIRED", "audit entry missing actor id")
	}
	return nil
}

// systemErr wraps store failures as SystemError unless the error already
// carries a taxonomy code.
func systemErr(code string, err error) error {
	if err == nil {
		return nil
	}
	var coded *domain.Error
	if errors.As(err, &coded) {
		return err
	}
	return domain.SystemError(code, err)
}
