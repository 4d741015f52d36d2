package db

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"torrens/internal/domain"
	"torrens/internal/usecase"
)

// WorkflowRepository persists entity workflow state and transition history.
// The compare-and-swap lives in the WHERE clause of the state update; the
// state row and the history row commit in one transaction.
type WorkflowRepository struct {
	db *gorm.DB
}

var _ usecase.WorkflowStore = (*WorkflowRepository)(nil)

func NewWorkflowRepository(db *gorm.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

func (r *WorkflowRepository) LoadEntity(ctx context.Context, dom domain.WorkflowDomain, entityID string) (domain.EntityWorkflowRecord, bool, error) {
	if r.db == nil {
		return domain.EntityWorkflowRecord{}, false, errDBUnavailable
	}
	var model EntityWorkflowModel
	err := r.db.WithContext(ctx).
		Where("domain = ? AND entity_id = ?", string(dom), entityID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.EntityWorkflowRecord{}, false, nil
	}
	if err != nil {
		return domain.EntityWorkflowRecord{}, false, err
	}
	return entityFromModel(model), true, nil
}

func (r *WorkflowRepository) CommitTransition(ctx context.Context, rec domain.TransitionRecord, expectedVersion int64) (domain.EntityWorkflowRecord, error) {
	if r.db == nil {
		return domain.EntityWorkflowRecord{}, errDBUnavailable
	}
	if rec.Version != expectedVersion+1 {
		return domain.EntityWorkflowRecord{}, domain.ValidationError("VERSION_INVALID",
			"transition version %d does not follow expected version %d", rec.Version, expectedVersion)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if expectedVersion == 0 {
			res := tx.Exec(
				`INSERT INTO entity_workflow (domain, entity_id, current_state, version, updated_at)
				 VALUES (?, ?, ?, ?, ?)
				 ON CONFLICT (domain, entity_id) DO NOTHING`,
				string(rec.Domain), rec.EntityID, string(rec.ToState), rec.Version, rec.OccurredAt)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return domain.ConflictError("VERSION_CONFLICT",
					"entity %s already exists", rec.EntityID)
			}
		} else {
			res := tx.Exec(
				`UPDATE entity_workflow
				 SET current_state = ?, version = ?, updated_at = ?
				 WHERE domain = ? AND entity_id = ? AND version = ?`,
				string(rec.ToState), rec.Version, rec.OccurredAt,
				string(rec.Domain), rec.EntityID, expectedVersion)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return domain.ConflictError("VERSION_CONFLICT",
					"entity %s is no longer at version %d", rec.EntityID, expectedVersion)
			}
		}

		model := transitionModelFromRecord(rec)
		if err := tx.Create(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ConflictError("VERSION_CONFLICT",
					"entity %s already has a transition at version %d", rec.EntityID, rec.Version)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.EntityWorkflowRecord{}, err
	}
	return domain.EntityWorkflowRecord{
		Domain:       rec.Domain,
		EntityID:     rec.EntityID,
		CurrentState: rec.ToState,
		Version:      rec.Version,
		UpdatedAt:    rec.OccurredAt,
	}, nil
}

func (r *WorkflowRepository) Transitions(ctx context.Context, dom domain.WorkflowDomain, entityID string, page usecase.Page) ([]domain.TransitionRecord, int64, error) {
	if r.db == nil {
		return nil, 0, errDBUnavailable
	}
	base := r.db.WithContext(ctx).Model(&WorkflowTransitionModel{}).
		Where("domain = ? AND entity_id = ?", string(dom), entityID)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	q := r.db.WithContext(ctx).Model(&WorkflowTransitionModel{}).
		Where("domain = ? AND entity_id = ?", string(dom), entityID).
		Order("version ASC").
		Offset(page.Offset)
	if page.Limit > 0 {
		q = q.Limit(page.Limit)
	}
	var models []WorkflowTransitionModel
	if err := q.Find(&models).Error; err != nil {
		return nil, 0, err
	}

	out := make([]domain.TransitionRecord, 0, len(models))
	for _, m := range models {
		out = append(out, recordFromTransitionModel(m))
	}
	return out, total, nil
}

func entityFromModel(m EntityWorkflowModel) domain.EntityWorkflowRecord {
	return domain.EntityWorkflowRecord{
		Domain:       domain.WorkflowDomain(m.Domain),
		EntityID:     m.EntityID,
		CurrentState: domain.State(m.CurrentState),
		Version:      m.Version,
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
}

func transitionModelFromRecord(rec domain.TransitionRecord) WorkflowTransitionModel {
	return WorkflowTransitionModel{
		ID:         rec.ID,
		Domain:     string(rec.Domain),
		EntityID:   rec.EntityID,
		FromState:  string(rec.FromState),
		ToState:    string(rec.ToState),
		ActorID:    rec.ActorID,
		ActorName:  rec.ActorName,
		ActorRole:  string(rec.ActorRole),
		Reason:     rec.Reason,
		Version:    rec.Version,
		OccurredAt: rec.OccurredAt.UTC(),
	}
}

func recordFromTransitionModel(m WorkflowTransitionModel) domain.TransitionRecord {
	return domain.TransitionRecord{
		ID:         m.ID,
		Domain:     domain.WorkflowDomain(m.Domain),
		EntityID:   m.EntityID,
		FromState:  domain.State(m.FromState),
		ToState:    domain.State(m.ToState),
		ActorID:    m.ActorID,
		ActorName:  m.ActorName,
		ActorRole:  domain.Role(m.ActorRole),
		Reason:     m.Reason,
		Version:    m.Version,
		OccurredAt: m.OccurredAt.UTC(),
	}
}
