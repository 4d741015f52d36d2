package domain

import "time"

// AuditChainVersion is recorded in entry metadata so future hash-scheme
// changes can coexist with already-persisted chains.
const AuditChainVersion = "audit_chain_v1"

type EventType string

const (
	EventCreate   EventType = "create"
	EventUpdate   EventType = "update"
	EventDelete   EventType = "delete"
	EventSubmit   EventType = "submit"
	EventApprove  EventType = "approve"
	EventReject   EventType = "reject"
	EventSeal     EventType = "seal"
	EventRegister EventType = "register"
	EventTransfer EventType = "transfer"
	EventAmend    EventType = "amend"
	EventView     EventType = "view"
	EventSign     EventType = "sign"
	EventVerify   EventType = "verify"
	EventArchive  EventType = "archive"
	EventOverride EventType = "override"
)

// ChangeSet captures the before/after images of the fields an event touched.
type ChangeSet struct {
	Before map[string]any `json:"before,omitempty"`
	After  map[string]any `json:"after,omitempty"`
}

// AuditLogEntry is one link in the hash chain for a
// (ResourceType, ResourceID) pair.
//
// PreviousHash is the CurrentHash of the prior entry in the same chain,
// empty for the first entry. CurrentHash covers the entry's business fields
// plus PreviousHash. ChainHash accumulates CurrentHash values across the
// chain. All hashes are lowercase hex SHA-256.
type AuditLogEntry struct {
	ID           string
	EventType    EventType
	ResourceType string
	ResourceID   string
	ActorID      string
	ActorName    string
	ActorRole    string
	Action       string
	Description  string
	Changes      *ChangeSet
	Metadata     map[string]any
	OccurredAt   time.Time
	PreviousHash string
	CurrentHash  string
	ChainHash    string
	Archived     bool
	ArchivedAt   *time.Time
}

// IntegrityResult is the outcome of re-deriving one resource's hash chain.
// TamperDetected means a stored hash no longer matches its recomputation;
// MissingEntries means the recomputed hashes hold but the chain linkage is
// broken, i.e. entries were removed or reordered.
type IntegrityResult struct {
	ResourceType   string    `json:"resource_type"`
	ResourceID     string    `json:"resource_id"`
	Valid          bool      `json:"valid"`
	TamperDetected bool      `json:"tamper_detected"`
	MissingEntries bool      `json:"missing_entries"`
	EntryCount     int       `json:"entry_count"`
	Errors         []string  `json:"errors,omitempty"`
	VerifiedAt     time.Time `json:"verified_at"`
}

type TimelineEntry struct {
	OccurredAt  time.Time `json:"occurred_at"`
	EventType   EventType `json:"event_type"`
	ActorID     string    `json:"actor_id"`
	ActorName   string    `json:"actor_name,omitempty"`
	Action      string    `json:"action,omitempty"`
	Description string    `json:"description,omitempty"`
}

type ActorActivity struct {
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name,omitempty"`
	Events    int    `json:"events"`
}

type ReportPeriod struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ComplianceReport aggregates one resource's audit trail together with a
// fresh integrity verification of its chain.
type ComplianceReport struct {
	ResourceType string            `json:"resource_type"`
	ResourceID   string            `json:"resource_id"`
	Period       *ReportPeriod     `json:"period,omitempty"`
	TotalEvents  int               `json:"total_events"`
	EventCounts  map[EventType]int `json:"event_counts"`
	Actors       []ActorActivity   `json:"actors"`
	Timeline     []TimelineEntry   `json:"timeline"`
	Integrity    IntegrityResult   `json:"integrity"`
	GeneratedAt  time.Time         `json:"generated_at"`
}
