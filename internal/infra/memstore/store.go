// Package memstore is the in-memory reference implementation of the
// engine's store contracts. It honors the same guarantees as the durable
// backends: version compare-and-swap for workflow commits and serialized
// appends per audit chain. Used for tests and embedded deployments, and as
// the working set behind the sqlite snapshot store.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"torrens/internal/domain"
	"torrens/internal/usecase"
)

type entityKey struct {
	dom domain.WorkflowDomain
	id  string
}

type chainKey struct {
	resourceType string
	resourceID   string
}

type storedEntry struct {
	entry domain.AuditLogEntry
	seq   int64
}

type Store struct {
	mu          sync.RWMutex
	entities    map[entityKey]domain.EntityWorkflowRecord
	transitions map[entityKey][]domain.TransitionRecord
	chains      map[chainKey][]storedEntry
	nextSeq     int64

	lockMu     sync.Mutex
	chainLocks map[chainKey]*sync.Mutex
}

var (
	_ usecase.WorkflowStore = (*Store)(nil)
	_ usecase.AuditStore    = (*Store)(nil)
)

func New() *Store {
	return &Store{
		entities:    map[entityKey]domain.EntityWorkflowRecord{},
		transitions: map[entityKey][]domain.TransitionRecord{},
		chains:      map[chainKey][]storedEntry{},
		chainLocks:  map[chainKey]*sync.Mutex{},
	}
}

func (s *Store) LoadEntity(ctx context.Context, dom domain.WorkflowDomain, entityID string) (domain.EntityWorkflowRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.entities[entityKey{dom, entityID}]
	return rec, ok, nil
}

func (s *Store) CommitTransition(ctx context.Context, rec domain.TransitionRecord, expectedVersion int64) (domain.EntityWorkflowRecord, error) {
	if rec.Version != expectedVersion+1 {
		return domain.EntityWorkflowRecord{}, domain.ValidationError("VERSION_INVALID",
			"transition version %d does not follow expected version %d", rec.Version, expectedVersion)
	}
	key := entityKey{rec.Domain, rec.EntityID}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.entities[key]
	if expectedVersion == 0 {
		if exists {
			return domain.EntityWorkflowRecord{}, domain.ConflictError("VERSION_CONFLICT",
				"entity %s already exists at version %d", rec.EntityID, current.Version)
		}
	} else if !exists || current.Version != expectedVersion {
		got := int64(0)
		if exists {
			got = current.Version
		}
		return domain.EntityWorkflowRecord{}, domain.ConflictError("VERSION_CONFLICT",
			"entity %s is at version %d, expected %d", rec.EntityID, got, expectedVersion)
	}

	updated := domain.EntityWorkflowRecord{
		Domain:       rec.Domain,
		EntityID:     rec.EntityID,
		CurrentState: rec.ToState,
		Version:      rec.Version,
		UpdatedAt:    rec.OccurredAt,
	}
	s.entities[key] = updated
	s.transitions[key] = append(s.transitions[key], cloneRecord(rec))
	return updated, nil
}

func (s *Store) Transitions(ctx context.Context, dom domain.WorkflowDomain, entityID string, page usecase.Page) ([]domain.TransitionRecord, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.transitions[entityKey{dom, entityID}]
	total := int64(len(all))
	ordered := make([]domain.TransitionRecord, len(all))
	copy(ordered, all)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Version < ordered[j].Version })

	out := pageSlice(ordered, page)
	recs := make([]domain.TransitionRecord, len(out))
	for i, r := range out {
		recs[i] = cloneRecord(r)
	}
	return recs, total, nil
}

// AppendEntry holds the chain's own mutex across the tail read, the build
// callback and the insert, so concurrent appends to one chain cannot fork
// it. Appends to different chains do not contend.
func (s *Store) AppendEntry(ctx context.Context, resourceType, resourceID string, build usecase.AppendFunc) (domain.AuditLogEntry, error) {
	key := chainKey{resourceType, resourceID}
	lock := s.chainLock(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	chain := s.chains[key]
	var tail *domain.AuditLogEntry
	if n := len(chain); n > 0 {
		last := cloneEntry(chain[n-1].entry)
		tail = &last
	}
	s.mu.RUnlock()

	entry, err := build(tail)
	if err != nil {
		return domain.AuditLogEntry{}, err
	}

	s.mu.Lock()
	s.nextSeq++
	s.chains[key] = append(s.chains[key], storedEntry{entry: cloneEntry(entry), seq: s.nextSeq})
	s.mu.Unlock()
	return entry, nil
}

func (s *Store) ChainEntries(ctx context.Context, resourceType, resourceID string) ([]domain.AuditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.chains[chainKey{resourceType, resourceID}]
	out := make([]domain.AuditLogEntry, len(chain))
	for i, stored := range chain {
		out[i] = cloneEntry(stored.entry)
	}
	return out, nil
}

func (s *Store) QueryEntries(ctx context.Context, q usecase.AuditQuery) ([]domain.AuditLogEntry, int64, error) {
	s.mu.RLock()
	matched := make([]storedEntry, 0, 64)
	for key, chain := range s.chains {
		if q.ResourceType != "" && key.resourceType != q.ResourceType {
			continue
		}
		if q.ResourceID != "" && key.resourceID != q.ResourceID {
			continue
		}
		for _, stored := range chain {
			if entryMatches(stored.entry, q) {
				matched = append(matched, stored)
			}
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		ti, tj := matched[i].entry.OccurredAt, matched[j].entry.OccurredAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return matched[i].seq > matched[j].seq
	})

	total := int64(len(matched))
	windowed := pageSlice(matched, q.Page)
	out := make([]domain.AuditLogEntry, len(windowed))
	for i, stored := range windowed {
		out[i] = cloneEntry(stored.entry)
	}
	return out, total, nil
}

func (s *Store) MarkArchived(ctx context.Context, eventTypes []domain.EventType, olderThan, at time.Time) (int64, error) {
	match := map[domain.EventType]bool{}
	for _, et := range eventTypes {
		match[et] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for key, chain := range s.chains {
		for i := range chain {
			e := &chain[i].entry
			if e.Archived || !e.OccurredAt.Before(olderThan) {
				continue
			}
			if len(match) > 0 && !match[e.EventType] {
				continue
			}
			archivedAt := at
			e.Archived = true
			e.ArchivedAt = &archivedAt
			count++
		}
		s.chains[key] = chain
	}
	return count, nil
}

func (s *Store) Chains(ctx context.Context) ([]usecase.ChainRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]usecase.ChainRef, 0, len(s.chains))
	for key := range s.chains {
		out = append(out, usecase.ChainRef{ResourceType: key.resourceType, ResourceID: key.resourceID})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ResourceType != out[j].ResourceType {
			return out[i].ResourceType < out[j].ResourceType
		}
		return out[i].ResourceID < out[j].ResourceID
	})
	return out, nil
}

func (s *Store) chainLock(key chainKey) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.chainLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.chainLocks[key] = lock
	}
	return lock
}

func entryMatches(e domain.AuditLogEntry, q usecase.AuditQuery) bool {
	if q.EventType != "" && e.EventType != q.EventType {
		return false
	}
	if q.ActorID != "" && e.ActorID != q.ActorID {
		return false
	}
	if !q.From.IsZero() && e.OccurredAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && e.OccurredAt.After(q.To) {
		return false
	}
	if q.Archived != nil && e.Archived != *q.Archived {
		return false
	}
	return true
}

func pageSlice[T any](in []T, page usecase.Page) []T {
	if page.Offset >= len(in) {
		return nil
	}
	out := in[page.Offset:]
	if page.Limit > 0 && page.Limit < len(out) {
		out = out[:page.Limit]
	}
	return out
}

func cloneRecord(r domain.TransitionRecord) domain.TransitionRecord { return r }

func cloneEntry(e domain.AuditLogEntry) domain.AuditLogEntry {
	out := e
	if e.Changes != nil {
		out.Changes = &domain.ChangeSet{
			Before: cloneMap(e.Changes.Before),
			After:  cloneMap(e.Changes.After),
		}
	}
	out.Metadata = cloneMap(e.Metadata)
	if e.ArchivedAt != nil {
		at := *e.ArchivedAt
		out.ArchivedAt = &at
	}
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch value := v.(type) {
	case map[string]any:
		return cloneMap(value)
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return value
	}
}
