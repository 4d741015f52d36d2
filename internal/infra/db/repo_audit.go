package db

import (
	"context"
	"time"

	"gorm.io/gorm"

	"torrens/internal/domain"
	"torrens/internal/usecase"
)

// AuditRepository persists hash-chained audit entries. Appends for one
// chain serialize on the chain's head row: the head is locked FOR UPDATE,
// the tail entry is read under that lock, the finished entry is inserted
// and the head advanced, all in one transaction. Concurrent appends to the
// same chain queue on the row lock; other chains are unaffected.
type AuditRepository struct {
	db *gorm.DB
}

var _ usecase.AuditStore = (*AuditRepository)(nil)

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) AppendEntry(ctx context.Context, resourceType, resourceID string, build usecase.AppendFunc) (domain.AuditLogEntry, error) {
	if r.db == nil {
		return domain.AuditLogEntry{}, errDBUnavailable
	}
	var out domain.AuditLogEntry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, tail, err := lockChainHead(ctx, tx, resourceType, resourceID)
		if err != nil {
			return err
		}
		entry, err := build(tail)
		if err != nil {
			return err
		}
		model, err := auditModelFromEntry(entry, seq+1)
		if err != nil {
			return err
		}
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		if err := tx.Exec(
			"UPDATE audit_chain_heads SET seq = ? WHERE resource_type = ? AND resource_id = ?",
			seq+1, resourceType, resourceID).Error; err != nil {
			return err
		}
		out = entry
		return nil
	})
	if err != nil {
		return domain.AuditLogEntry{}, err
	}
	return out, nil
}

// lockChainHead pins the chain for the rest of the transaction and returns
// the current length plus the tail entry, nil for an empty chain.
func lockChainHead(ctx context.Context, tx *gorm.DB, resourceType, resourceID string) (int64, *domain.AuditLogEntry, error) {
	if err := tx.Exec(
		"INSERT INTO audit_chain_heads (resource_type, resource_id, seq) VALUES (?, ?, 0) ON CONFLICT (resource_type, resource_id) DO NOTHING",
		resourceType, resourceID).Error; err != nil {
		return 0, nil, err
	}
	var seq int64
	if err := tx.Raw(
		"SELECT seq FROM audit_chain_heads WHERE resource_type = ? AND resource_id = ? FOR UPDATE",
		resourceType, resourceID).Scan(&seq).Error; err != nil {
		return 0, nil, err
	}
	if seq == 0 {
		return 0, nil, nil
	}
	var model AuditEntryModel
	if err := tx.
		Where("resource_type = ? AND resource_id = ? AND chain_seq = ?", resourceType, resourceID, seq).
		Take(&model).Error; err != nil {
		return 0, nil, err
	}
	tail, err := entryFromAuditModel(model)
	if err != nil {
		return 0, nil, err
	}
	return seq, &tail, nil
}

func (r *AuditRepository) ChainEntries(ctx context.Context, resourceType, resourceID string) ([]domain.AuditLogEntry, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []AuditEntryModel
	if err := r.db.WithContext(ctx).
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Order("chain_seq ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.AuditLogEntry, 0, len(models))
	for _, m := range models {
		entry, err := entryFromAuditModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (r *AuditRepository) QueryEntries(ctx context.Context, q usecase.AuditQuery) ([]domain.AuditLogEntry, int64, error) {
	if r.db == nil {
		return nil, 0, errDBUnavailable
	}

	var total int64
	if err := r.filtered(ctx, q).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	find := r.filtered(ctx, q).
		Order("occurred_at DESC, seq DESC").
		Offset(q.Page.Offset)
	if q.Page.Limit > 0 {
		find = find.Limit(q.Page.Limit)
	}
	var models []AuditEntryModel
	if err := find.Find(&models).Error; err != nil {
		return nil, 0, err
	}

	out := make([]domain.AuditLogEntry, 0, len(models))
	for _, m := range models {
		entry, err := entryFromAuditModel(m)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, entry)
	}
	return out, total, nil
}

func (r *AuditRepository) filtered(ctx context.Context, q usecase.AuditQuery) *gorm.DB {
	tx := r.db.WithContext(ctx).Model(&AuditEntryModel{})
	if q.EventType != "" {
		tx = tx.Where("event_type = ?", string(q.EventType))
	}
	if q.ResourceType != "" {
		tx = tx.Where("resource_type = ?", q.ResourceType)
	}
	if q.ResourceID != "" {
		tx = tx.Where("resource_id = ?", q.ResourceID)
	}
	if q.ActorID != "" {
		tx = tx.Where("actor_id = ?", q.ActorID)
	}
	if !q.From.IsZero() {
		tx = tx.Where("occurred_at >= ?", q.From)
	}
	if !q.To.IsZero() {
		tx = tx.Where("occurred_at <= ?", q.To)
	}
	if q.Archived != nil {
		tx = tx.Where("archived = ?", *q.Archived)
	}
	return tx
}

// MarkArchived flips archival flags only; the append-only trigger rejects
// any other column change.
func (r *AuditRepository) MarkArchived(ctx context.Context, eventTypes []domain.EventType, olderThan, at time.Time) (int64, error) {
	if r.db == nil {
		return 0, errDBUnavailable
	}
	tx := r.db.WithContext(ctx).Model(&AuditEntryModel{}).
		Where("archived = FALSE AND occurred_at < ?", olderThan)
	if len(eventTypes) > 0 {
		types := make([]string, 0, len(eventTypes))
		for _, et := range eventTypes {
			types = append(types, string(et))
		}
		tx = tx.Where("event_type IN ?", types)
	}
	res := tx.Updates(map[string]any{"archived": true, "archived_at": at.UTC()})
	return res.RowsAffected, res.Error
}

func (r *AuditRepository) Chains(ctx context.Context) ([]usecase.ChainRef, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var heads []AuditChainHeadModel
	if err := r.db.WithContext(ctx).
		Order("resource_type ASC, resource_id ASC").
		Find(&heads).Error; err != nil {
		return nil, err
	}
	out := make([]usecase.ChainRef, 0, len(heads))
	for _, h := range heads {
		out = append(out, usecase.ChainRef{ResourceType: h.ResourceType, ResourceID: h.ResourceID})
	}
	return out, nil
}

func auditModelFromEntry(e domain.AuditLogEntry, chainSeq int64) (AuditEntryModel, error) {
	changes, err := marshalChanges(e.Changes)
	if err != nil {
		return AuditEntryModel{}, err
	}
	metadata, err := marshalMetadata(e.Metadata)
	if err != nil {
		return AuditEntryModel{}, err
	}
	return AuditEntryModel{
		ID:           e.ID,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		ChainSeq:     chainSeq,
		EventType:    string(e.EventType),
		ActorID:      e.ActorID,
		ActorName:    e.ActorName,
		ActorRole:    e.ActorRole,
		Action:       e.Action,
		Description:  e.Description,
		ChangesJSON:  changes,
		MetadataJSON: metadata,
		OccurredAt:   e.OccurredAt.UTC(),
		PreviousHash: e.PreviousHash,
		CurrentHash:  e.CurrentHash,
		ChainHash:    e.ChainHash,
		Archived:     e.Archived,
		ArchivedAt:   e.ArchivedAt,
	}, nil
}

func entryFromAuditModel(m AuditEntryModel) (domain.AuditLogEntry, error) {
	changes, err := unmarshalChanges(m.ChangesJSON)
	if err != nil {
		return domain.AuditLogEntry{}, err
	}
	metadata, err := unmarshalMetadata(m.MetadataJSON)
	if err != nil {
		return domain.AuditLogEntry{}, err
	}
	var archivedAt *time.Time
	if m.ArchivedAt != nil {
		at := m.ArchivedAt.UTC()
		archivedAt = &at
	}
	return domain.AuditLogEntry{
		ID:           m.ID,
		EventType:    domain.EventType(m.EventType),
		ResourceType: m.ResourceType,
		ResourceID:   m.ResourceID,
		ActorID:      m.ActorID,
		ActorName:    m.ActorName,
		ActorRole:    m.ActorRole,
		Action:       m.Action,
		Description:  m.Description,
		Changes:      changes,
		Metadata:     metadata,
		OccurredAt:   m.OccurredAt.UTC(),
		PreviousHash: m.PreviousHash,
		CurrentHash:  m.CurrentHash,
		ChainHash:    m.ChainHash,
		Archived:     m.Archived,
		ArchivedAt:   archivedAt,
	}, nil
}
