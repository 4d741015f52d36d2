package domain

import "time"

type WorkflowDomain string

const (
	DomainPlanning WorkflowDomain = "planning"
	DomainSurvey   WorkflowDomain = "survey"
	DomainDeeds    WorkflowDomain = "deeds"
)

type State string

const (
	StateDraft     State = "draft"
	StateSubmitted State = "submitted"
	StateApproved  State = "approved"
	StateRejected  State = "rejected"

	StateUnderExamination State = "under_examination"
	StateSealed           State = "sealed"

	StateLodged      State = "lodged"
	StateRegistered  State = "registered"
	StateTransferred State = "transferred"
)

type Role string

const (
	RolePlanner           Role = "planner"
	RolePlanningAuthority Role = "planning_authority"
	RoleSurveyor          Role = "surveyor"
	RoleSurveyorGeneral   Role = "surveyor_general"
	RoleConveyancer       Role = "conveyancer"
	RoleRegistrar         Role = "registrar"

	// DefaultBypassRole may move entities between any two states of a
	// domain, subject only to terminal-state and known-state checks.
	DefaultBypassRole Role = "admin"
)

// Actor is the acting principal as resolved by the caller's session layer.
// The engine verifies the claimed Role against an AuthorizationProvider
// before trusting it.
type Actor struct {
	UserID string
	Name   string
	Role   Role
}

// TransitionRecord is the durable history row for one applied transition.
// Version is the entity version the transition produced.
type TransitionRecord struct {
	ID         string
	Domain     WorkflowDomain
	EntityID   string
	FromState  State
	ToState    State
	ActorID    string
	ActorName  string
	ActorRole  Role
	Reason     string
	Version    int64
	OccurredAt time.Time
}

// EntityWorkflowRecord anchors optimistic concurrency for one entity in one
// domain. An entity that has never transitioned is implicitly at the
// domain's initial state with Version 0.
type EntityWorkflowRecord struct {
	Domain       WorkflowDomain
	EntityID     string
	CurrentState State
	Version      int64
	UpdatedAt    time.Time
}
