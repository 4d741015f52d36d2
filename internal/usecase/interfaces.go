package usecase

import (
	"context"
	"time"

	"torrens/internal/domain"
)

// Clock supplies timestamps. A nil Clock means time.Now; all engine
// timestamps are normalized to UTC at microsecond precision.
type Clock func() time.Time

// WorkflowStore is the persistence contract the engine commits through.
// Implementations must honor the compare-and-swap guarantee under
// concurrent writers: CommitTransition succeeds only when the stored
// version still equals expectedVersion, and the state row plus the history
// row commit atomically.
type WorkflowStore interface {
	// LoadEntity reports found=false for entities that never transitioned.
	LoadEntity(ctx context.Context, dom domain.WorkflowDomain, entityID string) (domain.EntityWorkflowRecord, bool, error)
	// CommitTransition persists rec and advances the entity to
	// (rec.ToState, expectedVersion+1). A lost race unwraps to
	// domain.ErrConflict.
	CommitTransition(ctx context.Context, rec domain.TransitionRecord, expectedVersion int64) (domain.EntityWorkflowRecord, error)
	// Transitions returns history in version order, oldest first.
	Transitions(ctx context.Context, dom domain.WorkflowDomain, entityID string, page Page) ([]domain.TransitionRecord, int64, error)
}

// AppendFunc receives the current chain tail (nil for an empty chain) and
// returns the finished entry, hashes included. The store invokes it while
// holding the chain's append serialization, so the tail cannot move between
// the read and the insert.
type AppendFunc func(tail *domain.AuditLogEntry) (domain.AuditLogEntry, error)

// ChainRef identifies one audit chain.
type ChainRef struct {
	ResourceType string
	ResourceID   string
}

// AuditStore persists hash-chained audit entries. Appends for the same
// (resourceType, resourceID) are serialized by the store; appends for
// different resources never contend.
type AuditStore interface {
	AppendEntry(ctx context.Context, resourceType, resourceID string, build AppendFunc) (domain.AuditLogEntry, error)
	// ChainEntries returns the full chain in insertion order, archived
	// entries included.
	ChainEntries(ctx context.Context, resourceType, resourceID string) ([]domain.AuditLogEntry, error)
	QueryEntries(ctx context.Context, q AuditQuery) ([]domain.AuditLogEntry, int64, error)
	// MarkArchived flips the archived flag on matching entries older than
	// the cutoff. Data is never deleted.
	MarkArchived(ctx context.Context, eventTypes []domain.EventType, olderThan, at time.Time) (int64, error)
	Chains(ctx context.Context) ([]ChainRef, error)
}

// AuditQuery narrows QueryEntries. Zero-valued fields are ignored; Archived
// is tri-state (nil = both). Results are reverse-chronological.
type AuditQuery struct {
	EventType    domain.EventType
	ResourceType string
	ResourceID   string
	ActorID      string
	From         time.Time
	To           time.Time
	Archived     *bool
	Page         Page
}

// Decision is an authorization verdict. Reason is optional and only
// meaningful on denials.
type Decision struct {
	Allowed bool
	Reason  string
}

// AuthorizationProvider resolves whether a user holds a role. How roles are
// resolved (profile lookup, policy engine, chained providers) is entirely
// the provider's concern; the engine fails closed on provider errors.
type AuthorizationProvider interface {
	HasRole(ctx context.Context, userID string, role domain.Role) (Decision, error)
	HasAnyRole(ctx context.Context, userID string, roles ...domain.Role) (Decision, error)
}

// IntegrityCache holds recent verification results for callers that poll.
// The ledger itself always verifies fresh.
type IntegrityCache interface {
	Get(ctx context.Context, resourceType, resourceID string) (domain.IntegrityResult, bool)
	Set(ctx context.Context, resourceType, resourceID string, res domain.IntegrityResult)
}

// MetricsRecorder receives engine-level measurements. Implementations must
// be safe for concurrent use.
type MetricsRecorder interface {
	ObserveTransition(dom domain.WorkflowDomain, result string, elapsed time.Duration)
	CountAuditAppend(result string)
	CountOrphanedAppend()
	ObserveIntegrityCheck(result string)
	CountArchived(n int64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveTransition(domain.WorkflowDomain, string, time.Duration) {}
func (noopMetrics) CountAuditAppend(string)                                        {}
func (noopMetrics) CountOrphanedAppend()                                           {}
func (noopMetrics) ObserveIntegrityCheck(string)                                   {}
func (noopMetrics) CountArchived(int64)                                            {}

func ensureMetrics(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return noopMetrics{}
	}
	return m
}

func ensureClock(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// Page is a limit/offset window. Zero or negative limits fall back to the
// default; limits above the cap are clamped.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalized() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
