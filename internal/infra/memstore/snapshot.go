package memstore

import (
	"sort"

	"torrens/internal/domain"
)

// Snapshot is the store's full exportable state. Entries carry their global
// insertion order so a restored store pages and chains identically.
type Snapshot struct {
	Entities    []domain.EntityWorkflowRecord `json:"entities"`
	Transitions []domain.TransitionRecord     `json:"transitions"`
	Entries     []domain.AuditLogEntry        `json:"entries"`
}

// Export captures the current state in deterministic order.
func (s *Store) Export() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snap Snapshot
	for _, rec := range s.entities {
		snap.Entities = append(snap.Entities, rec)
	}
	sort.Slice(snap.Entities, func(i, j int) bool {
		if snap.Entities[i].Domain != snap.Entities[j].Domain {
			return snap.Entities[i].Domain < snap.Entities[j].Domain
		}
		return snap.Entities[i].EntityID < snap.Entities[j].EntityID
	})

	for _, recs := range s.transitions {
		for _, r := range recs {
			snap.Transitions = append(snap.Transitions, cloneRecord(r))
		}
	}
	sort.Slice(snap.Transitions, func(i, j int) bool {
		a, b := snap.Transitions[i], snap.Transitions[j]
		if a.Domain != b.Domain {
			return a.Domain < b.Domain
		}
		if a.EntityID != b.EntityID {
			return a.EntityID < b.EntityID
		}
		return a.Version < b.Version
	})

	ordered := make([]storedEntry, 0, 64)
	for _, chain := range s.chains {
		ordered = append(ordered, chain...)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })
	for _, stored := range ordered {
		snap.Entries = append(snap.Entries, cloneEntry(stored.entry))
	}
	return snap
}

// Import replaces the store's state with snap. Entries are re-chained in
// slice order; persisted hashes are kept verbatim, so verification still
// judges the restored data.
func (s *Store) Import(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entities = make(map[entityKey]domain.EntityWorkflowRecord, len(snap.Entities))
	for _, rec := range snap.Entities {
		s.entities[entityKey{rec.Domain, rec.EntityID}] = rec
	}

	s.transitions = map[entityKey][]domain.TransitionRecord{}
	for _, rec := range snap.Transitions {
		key := entityKey{rec.Domain, rec.EntityID}
		s.transitions[key] = append(s.transitions[key], cloneRecord(rec))
	}

	s.chains = map[chainKey][]storedEntry{}
	s.nextSeq = 0
	for _, e := range snap.Entries {
		key := chainKey{e.ResourceType, e.ResourceID}
		s.nextSeq++
		s.chains[key] = append(s.chains[key], storedEntry{entry: cloneEntry(e), seq: s.nextSeq})
	}
}
