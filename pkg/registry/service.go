// Package registry is the public operation surface of the land-registry
// workflow engine: per-domain transition calls, history and audit-trail
// access, integrity verification, and compliance reporting over one
// wired engine instance. HTTP handlers and CLIs call this package and
// translate its structured results; they never reach into the engine.
package registry

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"torrens/internal/domain"
	"torrens/internal/usecase"
)

// Options tunes the wiring. Zero values select the built-in transition
// tables, the default bypass role, wall-clock time, nop logging, and no
// verification caching.
type Options struct {
	Tables      *usecase.TransitionTable
	BypassRole  domain.Role
	Clock       usecase.Clock
	Logger      *zap.Logger
	Metrics     usecase.MetricsRecorder
	VerifyCache usecase.IntegrityCache
}

// Service wires the workflow manager, audit ledger, and compliance
// reporter behind the application-facing operation surface.
type Service struct {
	manager  *usecase.Manager
	ledger   *usecase.Ledger
	reporter *usecase.Reporter
	cache    usecase.IntegrityCache
}

func NewService(workflow usecase.WorkflowStore, audit usecase.AuditStore, authz usecase.AuthorizationProvider, opts Options) (*Service, error) {
	if workflow == nil || audit == nil {
		return nil, domain.ValidationError("STORE_REQUIRED", "workflow and audit stores required")
	}
	if authz == nil {
		return nil, domain.ValidationError("AUTHZ_REQUIRED", "authorization provider required")
	}
	tables := opts.Tables
	if tables == nil {
		tables = usecase.MustBuiltinTables()
	}
	ledger := usecase.NewLedger(audit, usecase.LedgerConfig{
		Clock:   opts.Clock,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	manager := usecase.NewManager(workflow, ledger, authz, tables, usecase.ManagerConfig{
		BypassRole: opts.BypassRole,
		Clock:      opts.Clock,
		Logger:     opts.Logger,
		Metrics:    opts.Metrics,
	})
	return &Service{
		manager:  manager,
		ledger:   ledger,
		reporter: usecase.NewReporter(ledger, opts.Clock),
		cache:    opts.VerifyCache,
	}, nil
}

// TransitionResult is the structured outcome of a transition request.
// Failures carry the taxonomy code and message instead of an error value
// so callers translate them without type-switching.
type TransitionResult struct {
	Success      bool
	NewState     domain.State
	Version      int64
	Transition   *domain.TransitionRecord
	ErrorCode    string
	ErrorMessage string
}

// HistoryPage is one page of an entity's transition history in version
// order. Total counts all transitions, not just this page.
type HistoryPage struct {
	Items []domain.TransitionRecord
	Total int64
}

// AuditPage is one page of audit entries, newest first.
type AuditPage struct {
	Items []domain.AuditLogEntry
	Total int64
}

func (s *Service) TransitionPlanning(ctx context.Context, entityID string, from, to domain.State, actor domain.Actor, reason string) TransitionResult {
	return s.transition(ctx, domain.DomainPlanning, entityID, from, to, actor, reason)
}

func (s *Service) TransitionSurvey(ctx context.Context, entityID string, from, to domain.State, actor domain.Actor, reason string) TransitionResult {
	return s.transition(ctx, domain.DomainSurvey, entityID, from, to, actor, reason)
}

func (s *Service) TransitionDeeds(ctx context.Context, entityID string, from, to domain.State, actor domain.Actor, reason string) TransitionResult {
	return s.transition(ctx, domain.DomainDeeds, entityID, from, to, actor, reason)
}

func (s *Service) transition(ctx context.Context, dom domain.WorkflowDomain, entityID string, from, to domain.State, actor domain.Actor, reason string) TransitionResult {
	rec, err := s.manager.Transition(ctx, dom, entityID, from, to, actor, reason)
	if err != nil {
		code, message := describeError(err)
		return TransitionResult{ErrorCode: code, ErrorMessage: message}
	}
	return TransitionResult{
		Success:    true,
		NewState:   rec.ToState,
		Version:    rec.Version,
		Transition: &rec,
	}
}

func (s *Service) GetHistory(ctx context.Context, dom domain.WorkflowDomain, entityID string, page usecase.Page) (HistoryPage, error) {
	items, total, err := s.manager.History(ctx, dom, entityID, page)
	if err != nil {
		return HistoryPage{}, err
	}
	return HistoryPage{Items: items, Total: total}, nil
}

func (s *Service) GetCurrentState(ctx context.Context, dom domain.WorkflowDomain, entityID string) (domain.EntityWorkflowRecord, error) {
	return s.manager.CurrentState(ctx, dom, entityID)
}

// DisplayStatus is the single source of truth for human-facing status
// labels. Unknown domains and unmapped states return the raw state.
func (s *Service) DisplayStatus(dom domain.WorkflowDomain, state domain.State) string {
	return s.manager.DisplayStatus(dom, state)
}

func (s *Service) LogAuditEvent(ctx context.Context, in usecase.LogEventInput) (domain.AuditLogEntry, error) {
	return s.ledger.LogEvent(ctx, in)
}

func (s *Service) QueryAuditTrail(ctx context.Context, q usecase.AuditQuery) (AuditPage, error) {
	items, total, err := s.ledger.Query(ctx, q)
	if err != nil {
		return AuditPage{}, err
	}
	return AuditPage{Items: items, Total: total}, nil
}

func (s *Service) GenerateComplianceReport(ctx context.Context, req usecase.ReportRequest) (domain.ComplianceReport, error) {
	return s.reporter.Generate(ctx, req)
}

// VerifyAuditTrailIntegrity re-derives the whole chain for one resource.
// With a cache configured, a result within its TTL is returned as-is;
// its VerifiedAt field tells the caller how fresh it is.
func (s *Service) VerifyAuditTrailIntegrity(ctx context.Context, resourceType, resourceID string) (domain.IntegrityResult, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, resourceType, resourceID); ok {
			return cached, nil
		}
	}
	result, err := s.ledger.VerifyIntegrity(ctx, resourceType, resourceID)
	if err != nil {
		return result, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, resourceType, resourceID, result)
	}
	return result, nil
}

// Tables exposes the compiled transition tables for read-only
// inspection.
func (s *Service) Tables() *usecase.TransitionTable {
	return s.manager.Tables()
}

func describeError(err error) (string, string) {
	code := domain.CodeOf(err)
	if code == "" {
		code = "SYSTEM_ERROR"
	}
	var coded *domain.Error
	if errors.As(err, &coded) {
		return code, coded.Message
	}
	return code, err.Error()
}
