package db

import "time"

type EntityWorkflowModel struct {
	Domain       string    `gorm:"primaryKey"`
	EntityID     string    `gorm:"primaryKey"`
	CurrentState string    `gorm:"not null"`
	Version      int64     `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (EntityWorkflowModel) TableName() string {
	return "entity_workflow"
}

type WorkflowTransitionModel struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	Domain     string `gorm:"uniqueIndex:ux_workflow_transitions_version;not null"`
	EntityID   string `gorm:"uniqueIndex:ux_workflow_transitions_version;not null"`
	FromState  string `gorm:"not null"`
	ToState    string `gorm:"not null"`
	ActorID    string `gorm:"not null"`
	ActorName  string
	ActorRole  string `gorm:"not null"`
	Reason     string
	Version    int64     `gorm:"uniqueIndex:ux_workflow_transitions_version;not null"`
	OccurredAt time.Time `gorm:"not null"`
}

func (WorkflowTransitionModel) TableName() string {
	return "workflow_transitions"
}

type AuditEntryModel struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	Seq          int64  `gorm:"->"`
	ResourceType string `gorm:"uniqueIndex:ux_audit_entries_chain_seq;index:idx_audit_entries_resource;not null"`
	ResourceID   string `gorm:"uniqueIndex:ux_audit_entries_chain_seq;index:idx_audit_entries_resource;not null"`
	ChainSeq     int64  `gorm:"uniqueIndex:ux_audit_entries_chain_seq;not null"`
	EventType    string `gorm:"index;not null"`
	ActorID      string `gorm:"index;not null"`
	ActorName    string
	ActorRole    string
	Action       string
	Description  string
	ChangesJSON  []byte    `gorm:"type:jsonb"`
	MetadataJSON []byte    `gorm:"type:jsonb"`
	OccurredAt   time.Time `gorm:"index;not null"`
	PreviousHash string    `gorm:"not null"`
	CurrentHash  string    `gorm:"not null"`
	ChainHash    string    `gorm:"not null"`
	Archived     bool      `gorm:"not null"`
	ArchivedAt   *time.Time
}

func (AuditEntryModel) TableName() string {
	return "audit_entries"
}

type AuditChainHeadModel struct {
	ResourceType string `gorm:"primaryKey"`
	ResourceID   string `gorm:"primaryKey"`
	Seq          int64  `gorm:"not null"`
}

func (AuditChainHeadModel) TableName() string {
	return "audit_chain_heads"
}
