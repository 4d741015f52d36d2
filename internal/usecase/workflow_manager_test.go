package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"torrens/internal/domain"
)

type fakeWorkflowStore struct {
	mu        sync.Mutex
	entities  map[string]domain.EntityWorkflowRecord
	history   []domain.TransitionRecord
	loadErr   error
	commitErr error
}

func newFakeWorkflowStore() *fakeWorkflowStore {
	return &fakeWorkflowStore{entities: map[string]domain.EntityWorkflowRecord{}}
}

func entityKey(dom domain.WorkflowDomain, entityID string) string {
	return string(dom) + "/" + entityID
}

func (s *fakeWorkflowStore) LoadEntity(ctx context.Context, dom domain.WorkflowDomain, entityID string) (domain.EntityWorkflowRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return domain.EntityWorkflowRecord{}, false, s.loadErr
	}
	rec, ok := s.entities[entityKey(dom, entityID)]
	return rec, ok, nil
}

func (s *fakeWorkflowStore) CommitTransition(ctx context.Context, rec domain.TransitionRecord, expectedVersion int64) (domain.EntityWorkflowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return domain.EntityWorkflowRecord{}, s.commitErr
	}
	key := entityKey(rec.Domain, rec.EntityID)
	cur, ok := s.entities[key]
	if (ok && cur.Version != expectedVersion) || (!ok && expectedVersion != 0) {
		return domain.EntityWorkflowRecord{}, domain.ConflictError("VERSION_CONFLICT",
			"entity %s changed concurrently", rec.EntityID)
	}
	updated := domain.EntityWorkflowRecord{
		Domain:       rec.Domain,
		EntityID:     rec.EntityID,
		CurrentState: rec.ToState,
		Version:      rec.Version,
		UpdatedAt:    rec.OccurredAt,
	}
	s.entities[key] = updated
	s.history = append(s.history, rec)
	return updated, nil
}

func (s *fakeWorkflowStore) Transitions(ctx context.Context, dom domain.WorkflowDomain, entityID string, page Page) ([]domain.TransitionRecord, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []domain.TransitionRecord
	for _, rec := range s.history {
		if rec.Domain == dom && rec.EntityID == entityID {
			matched = append(matched, rec)
		}
	}
	total := int64(len(matched))
	if page.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[page.Offset:]
	if page.Limit > 0 && len(matched) > page.Limit {
		matched = matched[:page.Limit]
	}
	return matched, total, nil
}

type staticAuthz struct {
	roles map[string][]domain.Role
	err   error
}

func (a *staticAuthz) HasRole(ctx context.Context, userID string, role domain.Role) (Decision, error) {
	if a.err != nil {
		return Decision{}, a.err
	}
	for _, r := range a.roles[userID] {
		if r == role {
			return Decision{Allowed: true}, nil
		}
	}
	return Decision{Reason: fmt.Sprintf("user %s is not assigned role %q", userID, role)}, nil
}

func (a *staticAuthz) HasAnyRole(ctx context.Context, userID string, roles ...domain.Role) (Decision, error) {
	for _, role := range roles {
		d, err := a.HasRole(ctx, userID, role)
		if err != nil || d.Allowed {
			return d, err
		}
	}
	return Decision{Reason: fmt.Sprintf("user %s holds none of the required roles", userID)}, nil
}

type managerFixture struct {
	manager *Manager
	store   *fakeWorkflowStore
	audit   *fakeAuditStore
	authz   *staticAuthz
	metrics *captureMetrics
}

func newManagerFixture() *managerFixture {
	store := newFakeWorkflowStore()
	audit := newFakeAuditStore()
	metrics := newCaptureMetrics()
	authz := &staticAuthz{roles: map[string][]domain.Role{
		"u-planner":     {domain.RolePlanner},
		"u-authority":   {domain.RolePlanningAuthority},
		"u-surveyor":    {domain.RoleSurveyor},
		"u-sg":          {domain.RoleSurveyorGeneral},
		"u-conveyancer": {domain.RoleConveyancer},
		"u-registrar":   {domain.RoleRegistrar},
		"u-admin":       {domain.DefaultBypassRole},
	}}
	ledger := NewLedger(audit, LedgerConfig{Clock: ledgerClock, Metrics: metrics})
	manager := NewManager(store, ledger, authz, MustBuiltinTables(), ManagerConfig{
		Clock:   ledgerClock,
		Metrics: metrics,
	})
	return &managerFixture{manager: manager, store: store, audit: audit, authz: authz, metrics: metrics}
}

func planner() domain.Actor {
	return domain.Actor{UserID: "u-planner", Name: "A. Planner", Role: domain.RolePlanner}
}

func authority() domain.Actor {
	return domain.Actor{UserID: "u-authority", Name: "B. Authority", Role: domain.RolePlanningAuthority}
}

func admin() domain.Actor {
	return domain.Actor{UserID: "u-admin", Name: "C. Admin", Role: domain.DefaultBypassRole}
}

func TestManager_TransitionHappyPath(t *testing.T) {
	f := newManagerFixture()
	ctx := context.Background()

	rec, err := f.manager.Transition(ctx, domain.DomainPlanning, "P1",
		domain.StateDraft, domain.StateSubmitted, planner(), "initial submission")
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("expected generated transition id")
	}
	if rec.Version != 1 {
		t.Fatalf("version = %d, want 1", rec.Version)
	}
	if !rec.OccurredAt.Equal(time.Date(2025, 3, 10, 9, 0, 0, 123456000, time.UTC)) {
		t.Fatalf("timestamp not truncated to microseconds: %v", rec.OccurredAt)
	}

	stored, found, _ := f.store.LoadEntity(ctx, domain.DomainPlanning, "P1")
	if !found || stored.CurrentState != domain.StateSubmitted || stored.Version != 1 {
		t.Fatalf("persisted record wrong: %+v", stored)
	}

	chain := f.audit.chain("planning_plan", "P1")
	if len(chain) != 1 {
		t.Fatalf("audit chain length = %d, want 1", len(chain))
	}
	entry := chain[0]
	if entry.EventType != domain.EventSubmit {
		t.Fatalf("event type = %q, want submit", entry.EventType)
	}
	if entry.Action != "draft -> submitted" || entry.Description != "initial submission" {
		t.Fatalf("entry action/description wrong: %+v", entry)
	}
	if entry.Changes == nil || entry.Changes.Before["state"] != "draft" || entry.Changes.After["state"] != "submitted" {
		t.Fatalf("change set wrong: %+v", entry.Changes)
	}
	if entry.Metadata["display_status"] != "awaiting_planning_authority" {
		t.Fatalf("display status = %v", entry.Metadata["display_status"])
	}
	if entry.Metadata["version"] != int64(1) || entry.Metadata["transition_id"] != rec.ID {
		t.Fatalf("metadata wrong: %+v", entry.Metadata)
	}
	if entry.CurrentHash == "" || entry.ChainHash == "" {
		t.Fatal("audit entry missing hashes")
	}
	if f.metrics.transitions["planning/ok"] != 1 {
		t.Fatalf("transition metrics = %v", f.metrics.transitions)
	}
}

func TestManager_TransitionValidation(t *testing.T) {
	f := newManagerFixture()
	ctx := context.Background()

	cases := []struct {
		name     string
		dom      domain.WorkflowDomain
		entityID string
		from, to domain.State
		actor    domain.Actor
		code     string
	}{
		{"unknown domain", "mining", "P1", domain.StateDraft, domain.StateSubmitted, planner(), "UNKNOWN_DOMAIN"},
		{"missing entity", domain.DomainPlanning, "", domain.StateDraft, domain.StateSubmitted, planner(), "ENTITY_REQUIRED"},
		{"missing actor", domain.DomainPlanning, "P1", domain.StateDraft, domain.StateSubmitted, domain.Actor{}, "ACTOR_REQUIRED"},
		{"unknown from state", domain.DomainPlanning, "P1", "archived", domain.StateSubmitted, planner(), "UNKNOWN_STATE"},
		{"unknown to state", domain.DomainPlanning, "P1", domain.StateDraft, "sealed", planner(), "UNKNOWN_STATE"},
		{"same state", domain.DomainPlanning, "P1", domain.StateDraft, domain.StateDraft, planner(), "SAME_STATE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.manager.Transition(ctx, tc.dom, tc.entityID, tc.from, tc.to, tc.actor, "")
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if code := domain.CodeOf(err); code != tc.code {
				t.Fatalf("error code = %q, want %q", code, tc.code)
			}
		})
	}
	if len(f.audit.chain("planning_plan", "P1")) != 0 {
		t.Fatal("rejected transitions must not write audit entries")
	}
}

func TestManager_StateMismatchIsConflict(t *testing.T) {
	f := newManagerFixture()

	_, err := f.manager.Transition(context.Background(), domain.DomainPlanning, "P1",
		domain.StateSubmitted, domain.StateApproved, authority(), "")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if code := domain.CodeOf(err); code != "STATE_MISMATCH" {
		t.Fatalf("error code = %q, want STATE_MISMATCH", code)
	}
}

func approvePlan(t *testing.T, f *managerFixture, entityID string) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.manager.Transition(ctx, domain.DomainPlanning, entityID,
		domain.StateDraft, domain.StateSubmitted, planner(), "submit"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.manager.Transition(ctx, domain.DomainPlanning, entityID,
		domain.StateSubmitted, domain.StateApproved, authority(), "approve"); err != nil {
		t.Fatalf("approve: %v", err)
	}
}

func TestManager_TerminalStateBindsEveryRole(t *testing.T) {
	f := newManagerFixture()
	ctx := context.Background()
	approvePlan(t, f, "P1")

	_, err := f.manager.Transition(ctx, domain.DomainPlanning, "P1",
		domain.StateApproved, domain.StateRejected, authority(), "")
	if !errors.Is(err, domain.ErrTerminalState) {
		t.Fatalf("expected terminal state error, got %v", err)
	}

	// The bypass role is still bound by terminal states.
	_, err = f.manager.Transition(ctx, domain.DomainPlanning, "P1",
		domain.StateApproved, domain.StateDraft, admin(), "")
	if !errors.Is(err, domain.ErrTerminalState) {
		t.Fatalf("expected terminal state error for bypass role, got %v", err)
	}
}

func TestManager_RoleNotPermittedForEdge(t *testing.T) {
	f := newManagerFixture()
	ctx := context.Background()
	if _, err := f.manager.Transition(ctx, domain.DomainPlanning, "P1",
		domain.StateDraft, domain.StateSubmitted, planner(), ""); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// The user holds the authority role too, but the attempt is made
	// under the planner role claim and the table gives approval to the
	// planning authority only.
	f.authz.roles["u-planner"] = []domain.Role{domain.RolePlanner, domain.RolePlanningAuthority}
	_, err := f.manager.Transition(ctx, domain.DomainPlanning, "P1",
		domain.StateSubmitted, domain.StateApproved, planner(), "")
	if !errors.Is(err, domain.ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if code := domain.CodeOf(err); code != "ROLE_NOT_PERMITTED" {
		t.Fatalf("error code = %q, want ROLE_NOT_PERMITTED", code)
	}
}

func TestManager_RoleNotHeld(t *testing.T) {
	f := newManagerFixture()

	actor := domain.Actor{UserID: "u-stranger", Role: domain.RolePlanner}
	_, err := f.manager.Transition(context.Background(), domain.DomainPlanning, "P1",
		domain.StateDraft, domain.StateSubmitted, actor, "")
	if !errors.Is(err, domain.ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if code := domain.CodeOf(err); code != "ROLE_NOT_HELD" {
		t.Fatalf("error code = %q, want ROLE_NOT_HELD", code)
	}
}

func TestManager_AuthzFailureFailsClosed(t *testing.T) {
	f := newManagerFixture()
	f.authz.err = errors.New("directory unreachable")

	_, err := f.manager.Transition(context.Background(), domain.DomainPlanning, "P1",
		domain.StateDraft, domain.StateSubmitted, planner(), "")
	if !errors.Is(err, domain.ErrSystem) {
		t.Fatalf("expected system error, got %v", err)
	}
	if code := domain.CodeOf(err); code != "AUTHZ_UNAVAILABLE" {
		t.Fatalf("error code = %q, want AUTHZ_UNAVAILABLE", code)
	}
	if len(f.store.history) != 0 {
		t.Fatal("transition must not commit when authorization is unavailable")
	}
}

func TestManager_BypassRoleCrossesAnyEdge(t *testing.T) {
	f := newManagerFixture()

	rec, err := f.manager.Transition(context.Background(), domain.DomainPlanning, "P1",
		domain.StateDraft, domain.StateApproved, admin(), "administrative correction")
	if err != nil {
		t.Fatalf("bypass transition: %v", err)
	}
	if rec.ToState != domain.StateApproved || rec.Version != 1 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	chain := f.audit.chain("planning_plan", "P1")
	if len(chain) != 1 || chain[0].EventType != domain.EventOverride {
		t.Fatalf("bypass transitions must audit as override, got %+v", chain)
	}
}

func TestManager_VersionsAdvanceMonotonically(t *testing.T) {
	f := newManagerFixture()
	ctx := context.Background()

	steps := []struct {
		from, to domain.State
		actor    domain.Actor
		event    domain.EventType
	}{
		{domain.StateDraft, domain.StateSubmitted, planner(), domain.EventSubmit},
		{domain.StateSubmitted, domain.StateRejected, authority(), domain.EventReject},
		{domain.StateRejected, domain.StateDraft, planner(), domain.EventAmend},
		{domain.StateDraft, domain.StateSubmitted, planner(), domain.EventSubmit},
		{domain.StateSubmitted, domain.StateApproved, authority(), domain.EventApprove},
	}
	for i, step := range steps {
		rec, err := f.manager.Transition(ctx, domain.DomainPlanning, "P1", step.from, step.to, step.actor, "")
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if rec.Version != int64(i+1) {
			t.Fatalf("step %d version = %d, want %d", i, rec.Version, i+1)
		}
	}

	chain := f.audit.chain("planning_plan", "P1")
	if len(chain) != len(steps) {
		t.Fatalf("audit chain length = %d, want %d", len(chain), len(steps))
	}
	for i, step := range steps {
		if chain[i].EventType != step.event {
			t.Fatalf("entry %d event = %q, want %q", i, chain[i].EventType, step.event)
		}
	}
	for i := 1; i < len(chain); i++ {
		if chain[i].PreviousHash != chain[i-1].CurrentHash {
			t.Fatalf("audit chain does not link at entry %d", i)
		}
	}
}

func TestManager_CommitConflictPassesThrough(t *testing.T) {
	f := newManagerFixture()
	f.store.commitErr = domain.ConflictError("VERSION_CONFLICT", "lost the race")

	_, err := f.manager.Transition(context.Background(), domain.DomainPlanning, "P1",
		domain.StateDraft, domain.StateSubmitted, planner(), "")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(f.audit.chain("planning_plan", "P1")) != 0 {
		t.Fatal("failed commits must not write audit entries")
	}
	if f.metrics.transitions["planning/conflict"] != 1 {
		t.Fatalf("transition metrics = %v", f.metrics.transitions)
	}
}

func TestManager_AuditFailureDoesNotRollBackCommit(t *testing.T) {
	f := newManagerFixture()
	f.audit.appendErr = errors.New("ledger down")

	rec, err := f.manager.Transition(context.Background(), domain.DomainPlanning, "P1",
		domain.StateDraft, domain.StateSubmitted, planner(), "")
	if err != nil {
		t.Fatalf("transition should succeed despite audit failure: %v", err)
	}
	if rec.Version != 1 {
		t.Fatalf("version = %d, want 1", rec.Version)
	}
	stored, found, _ := f.store.LoadEntity(context.Background(), domain.DomainPlanning, "P1")
	if !found || stored.CurrentState != domain.StateSubmitted {
		t.Fatalf("commit rolled back: %+v", stored)
	}
	if f.metrics.orphaned != 1 {
		t.Fatalf("orphaned append count = %d, want 1", f.metrics.orphaned)
	}
}

func TestManager_History(t *testing.T) {
	f := newManagerFixture()
	ctx := context.Background()
	approvePlan(t, f, "P1")

	recs, total, err := f.manager.History(ctx, domain.DomainPlanning, "P1", Page{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if total != 2 || len(recs) != 2 {
		t.Fatalf("history total=%d len=%d", total, len(recs))
	}
	if recs[0].Version != 1 || recs[1].Version != 2 {
		t.Fatalf("history out of order: %+v", recs)
	}

	if _, _, err := f.manager.History(ctx, "mining", "P1", Page{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for unknown domain, got %v", err)
	}
}

func TestManager_CurrentStateImplicitInitial(t *testing.T) {
	f := newManagerFixture()

	rec, err := f.manager.CurrentState(context.Background(), domain.DomainSurvey, "S1")
	if err != nil {
		t.Fatalf("current state: %v", err)
	}
	if rec.CurrentState != domain.StateDraft || rec.Version != 0 {
		t.Fatalf("implicit initial wrong: %+v", rec)
	}
}

func TestManager_DisplayStatus(t *testing.T) {
	f := newManagerFixture()

	if got := f.manager.DisplayStatus(domain.DomainSurvey, domain.StateSealed); got != "sealed_by_surveyor_general" {
		t.Fatalf("display status = %q", got)
	}
	if got := f.manager.DisplayStatus(domain.DomainSurvey, domain.StateDraft); got != "draft" {
		t.Fatalf("unmapped state should fall back to raw state, got %q", got)
	}
	if got := f.manager.DisplayStatus("mining", domain.StateDraft); got != "draft" {
		t.Fatalf("unknown domain should fall back to raw state, got %q", got)
	}
}

func TestTransitionEventType(t *testing.T) {
	cases := []struct {
		from, to domain.State
		bypass   bool
		want     domain.EventType
	}{
		{domain.StateDraft, domain.StateSubmitted, false, domain.EventSubmit},
		{domain.StateDraft, domain.StateLodged, false, domain.EventSubmit},
		{domain.StateSubmitted, domain.StateUnderExamination, false, domain.EventSubmit},
		{domain.StateSubmitted, domain.StateApproved, false, domain.EventApprove},
		{domain.StateSubmitted, domain.StateRejected, false, domain.EventReject},
		{domain.StateUnderExamination, domain.StateSealed, false, domain.EventSeal},
		{domain.StateLodged, domain.StateRegistered, false, domain.EventRegister},
		{domain.StateRegistered, domain.StateTransferred, false, domain.EventTransfer},
		{domain.StateRejected, domain.StateDraft, false, domain.EventAmend},
		{domain.StateDraft, domain.StateApproved, true, domain.EventOverride},
	}
	for _, tc := range cases {
		if got := transitionEventType(tc.from, tc.to, tc.bypass); got != tc.want {
			t.Fatalf("transitionEventType(%s, %s, %v) = %q, want %q", tc.from, tc.to, tc.bypass, got, tc.want)
		}
	}
}
