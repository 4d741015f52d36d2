package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"torrens/internal/domain"
)

// Manager enforces the per-domain state machines and couples every
// successful transition to one audit entry. It holds no per-entity state:
// correctness under concurrent callers rests on the store's
// compare-and-swap and the ledger's per-chain serialization.
type Manager struct {
	store   WorkflowStore
	ledger  *Ledger
	authz   AuthorizationProvider
	tables  *TransitionTable
	bypass  domain.Role
	clock   Clock
	logger  *zap.Logger
	metrics MetricsRecorder
}

type ManagerConfig struct {
	// BypassRole may move entities between any two known states of a
	// domain; terminal states still bind it. Empty selects
	// domain.DefaultBypassRole.
	BypassRole domain.Role
	Clock      Clock
	Logger     *zap.Logger
	Metrics    MetricsRecorder
}

func NewManager(store WorkflowStore, ledger *Ledger, authz AuthorizationProvider, tables *TransitionTable, cfg ManagerConfig) *Manager {
	bypass := cfg.BypassRole
	if bypass == "" {
		bypass = domain.DefaultBypassRole
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:   store,
		ledger:  ledger,
		authz:   authz,
		tables:  tables,
		bypass:  bypass,
		clock:   ensureClock(cfg.Clock),
		logger:  logger,
		metrics: ensureMetrics(cfg.Metrics),
	}
}

// Transition applies one state change for one entity. Validation order:
// domain and states must be known, the persisted state must equal
// fromState, the source state must not be terminal, the actor must hold
// its claimed role and that role must permit the edge. The commit is a
// compare-and-swap on the loaded version; a lost race is a conflict the
// caller may retry after re-reading.
func (m *Manager) Transition(ctx context.Context, dom domain.WorkflowDomain, entityID string, fromState, toState domain.State, actor domain.Actor, reason string) (domain.TransitionRecord, error) {
	started := time.Now()
	rec, err := m.transition(ctx, dom, entityID, fromState, toState, actor, reason)
	m.metrics.ObserveTransition(dom, transitionOutcome(err), time.Since(started))
	return rec, err
}

func (m *Manager) transition(ctx context.Context, dom domain.WorkflowDomain, entityID string, fromState, toState domain.State, actor domain.Actor, reason string) (domain.TransitionRecord, error) {
	var none domain.TransitionRecord

	table, ok := m.tables.Domain(dom)
	if !ok {
		return none, domain.ValidationError("UNKNOWN_DOMAIN", "unknown workflow domain %q", dom)
	}
	if entityID == "" {
		return none, domain.ValidationError("ENTITY_REQUIRED", "entity id required")
	}
	if actor.UserID == "" || actor.Role == "" {
		return none, domain.ValidationError("ACTOR_REQUIRED", "actor user id and role required")
	}
	if !table.KnownState(fromState) {
		return none, domain.ValidationError("UNKNOWN_STATE", "state %q is not part of domain %q", fromState, dom)
	}
	if !table.KnownState(toState) {
		return none, domain.ValidationError("UNKNOWN_STATE", "state %q is not part of domain %q", toState, dom)
	}
	if fromState == toState {
		return none, domain.ValidationError("SAME_STATE", "transition must change state")
	}

	current, found, err := m.store.LoadEntity(ctx, dom, entityID)
	if err != nil {
		return none, systemErr("WORKFLOW_LOAD_FAILED", err)
	}
	if !found {
		current = domain.EntityWorkflowRecord{
			Domain:       dom,
			EntityID:     entityID,
			CurrentState: table.Initial,
		}
	}
	if current.CurrentState != fromState {
		return none, domain.ConflictError("STATE_MISMATCH",
			"entity %s is in state %q, not %q", entityID, current.CurrentState, fromState)
	}
	if table.IsTerminal(fromState) {
		return none, domain.TerminalStateError("TERMINAL_STATE",
			"state %q is terminal for domain %q", fromState, dom)
	}

	bypass := actor.Role == m.bypass
	decision, err := m.authz.HasRole(ctx, actor.UserID, actor.Role)
	if err != nil {
		return none, systemErr("AUTHZ_UNAVAILABLE", err)
	}
	if !decision.Allowed {
		msg := decision.Reason
		if msg == "" {
			msg = fmt.Sprintf("user %s does not hold role %q", actor.UserID, actor.Role)
		}
		return none, domain.AuthorizationError("ROLE_NOT_HELD", "%s", msg)
	}
	if !bypass && !table.Allows(fromState, toState, actor.Role) {
		return none, domain.AuthorizationError("ROLE_NOT_PERMITTED",
			"role %q may not move %s entities from %q to %q", actor.Role, dom, fromState, toState)
	}

	rec := domain.TransitionRecord{
		ID:         uuid.NewString(),
		Domain:     dom,
		EntityID:   entityID,
		FromState:  fromState,
		ToState:    toState,
		ActorID:    actor.UserID,
		ActorName:  actor.Name,
		ActorRole:  actor.Role,
		Reason:     reason,
		Version:    current.Version + 1,
		OccurredAt: m.clock().UTC().Truncate(time.Microsecond),
	}
	if _, err := m.store.CommitTransition(ctx, rec, current.Version); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return none, err
		}
		return none, systemErr("WORKFLOW_COMMIT_FAILED", err)
	}

	m.appendTransitionAudit(ctx, table, rec, bypass)
	return rec, nil
}

// appendTransitionAudit writes the audit entry for a committed transition.
// Append failures must not roll back the commit; the resulting gap is
// surfaced later by chain verification and report event counts.
func (m *Manager) appendTransitionAudit(ctx context.Context, table *DomainTable, rec domain.TransitionRecord, bypass bool) {
	entry := domain.AuditLogEntry{
		EventType:    transitionEventType(rec.FromState, rec.ToState, bypass),
		ResourceType: table.ResourceType,
		ResourceID:   rec.EntityID,
		ActorID:      rec.ActorID,
		ActorName:    rec.ActorName,
		ActorRole:    string(rec.ActorRole),
		Action:       fmt.Sprintf("%s -> %s", rec.FromState, rec.ToState),
		Description:  rec.Reason,
		Changes: &domain.ChangeSet{
			Before: map[string]any{"state": string(rec.FromState)},
			After:  map[string]any{"state": string(rec.ToState)},
		},
		Metadata: map[string]any{
			"chain":          domain.AuditChainVersion,
			"domain":         string(rec.Domain),
			"display_status": table.DisplayStatus(rec.ToState),
			"transition_id":  rec.ID,
			"version":        rec.Version,
		},
		OccurredAt: rec.OccurredAt,
	}
	if _, err := m.ledger.Append(ctx, entry); err != nil {
		m.metrics.CountOrphanedAppend()
		m.logger.Error("audit append failed after committed transition",
			zap.String("domain", string(rec.Domain)),
			zap.String("entity_id", rec.EntityID),
			zap.Int64("version", rec.Version),
			zap.Error(err))
	}
}

// History returns an entity's transitions in version order, oldest first.
func (m *Manager) History(ctx context.Context, dom domain.WorkflowDomain, entityID string, page Page) ([]domain.TransitionRecord, int64, error) {
	if _, ok := m.tables.Domain(dom); !ok {
		return nil, 0, domain.ValidationError("UNKNOWN_DOMAIN", "unknown workflow domain %q", dom)
	}
	if entityID == "" {
		return nil, 0, domain.ValidationError("ENTITY_REQUIRED", "entity id required")
	}
	recs, total, err := m.store.Transitions(ctx, dom, entityID, page.normalized())
	if err != nil {
		return nil, 0, systemErr("WORKFLOW_HISTORY_FAILED", err)
	}
	return recs, total, nil
}

// CurrentState reports an entity's persisted state and version. Entities
// that never transitioned report the domain's initial state at version 0.
func (m *Manager) CurrentState(ctx context.Context, dom domain.WorkflowDomain, entityID string) (domain.EntityWorkflowRecord, error) {
	table, ok := m.tables.Domain(dom)
	if !ok {
		return domain.EntityWorkflowRecord{}, domain.ValidationError("UNKNOWN_DOMAIN", "unknown workflow domain %q", dom)
	}
	if entityID == "" {
		return domain.EntityWorkflowRecord{}, domain.ValidationError("ENTITY_REQUIRED", "entity id required")
	}
	current, found, err := m.store.LoadEntity(ctx, dom, entityID)
	if err != nil {
		return domain.EntityWorkflowRecord{}, systemErr("WORKFLOW_LOAD_FAILED", err)
	}
	if !found {
		return domain.EntityWorkflowRecord{
			Domain:       dom,
			EntityID:     entityID,
			CurrentState: table.Initial,
		}, nil
	}
	return current, nil
}

// DisplayStatus resolves the human-facing status label for a state. Total:
// unknown domains and unmapped states fall back to the raw state string.
func (m *Manager) DisplayStatus(dom domain.WorkflowDomain, state domain.State) string {
	table, ok := m.tables.Domain(dom)
	if !ok {
		return string(state)
	}
	return table.DisplayStatus(state)
}

// Tables exposes the compiled transition tables for read-only inspection.
func (m *Manager) Tables() *TransitionTable { return m.tables }

func transitionEventType(from, to domain.State, bypass bool) domain.EventType {
	if bypass {
		return domain.EventOverride
	}
	switch to {
	case domain.StateApproved:
		return domain.EventApprove
	case domain.StateRejected:
		return domain.EventReject
	case domain.StateSealed:
		return domain.EventSeal
	case domain.StateRegistered:
		return domain.EventRegister
	case domain.StateTransferred:
		return domain.EventTransfer
	case domain.StateSubmitted, domain.StateLodged, domain.StateUnderExamination:
		return domain.EventSubmit
	case domain.StateDraft:
		if from == domain.StateRejected {
			return domain.EventAmend
		}
		return domain.EventUpdate
	default:
		return domain.EventUpdate
	}
}

func transitionOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "validation_error"
	case errors.Is(err, domain.ErrAuthorization):
		return "authorization_error"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrTerminalState):
		return "terminal_state"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "system_error"
	}
}
