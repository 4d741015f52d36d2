package usecase

import (
	"time"

	"torrens/internal/domain"
	"torrens/internal/infra/crypto"
)

// hashTimeFormat renders timestamps for hashing. Entries are truncated to
// microseconds before hashing and storage so the persisted value re-hashes
// identically.
const hashTimeFormat = time.RFC3339Nano

// canonicalEntryPayload assembles the business fields covered by an entry's
// CurrentHash. Hash fields and archival flags are excluded: archival must
// never invalidate a chain.
func canonicalEntryPayload(e domain.AuditLogEntry) map[string]any {
	payload := map[string]any{
		"id":            e.ID,
		"event_type":    string(e.EventType),
		"resource_type": e.ResourceType,
		"resource_id":   e.ResourceID,
		"actor_id":      e.ActorID,
		"actor_name":    e.ActorName,
		"actor_role":    e.ActorRole,
		"action":        e.Action,
		"description":   e.Description,
		"occurred_at":   e.OccurredAt.UTC().Format(hashTimeFormat),
	}
	if e.Changes != nil {
		changes := map[string]any{}
		if e.Changes.Before != nil {
			changes["before"] = e.Changes.Before
		}
		if e.Changes.After != nil {
			changes["after"] = e.Changes.After
		}
		payload["changes"] = changes
	}
	if len(e.Metadata) > 0 {
		payload["metadata"] = e.Metadata
	}
	return payload
}

// computeEntryHash derives CurrentHash: SHA-256 over the entry's canonical
// JSON concatenated with its PreviousHash.
func computeEntryHash(e domain.AuditLogEntry) (string, error) {
	canonical, err := crypto.CanonicalizeAny(canonicalEntryPayload(e))
	if err != nil {
		return "", err
	}
	return crypto.SHA256Hex(append(canonical, []byte(e.PreviousHash)...)), nil
}

// chainLinkHash extends the running chain hash with one entry's
// CurrentHash. The first link is the CurrentHash itself.
func chainLinkHash(prevChainHash, currentHash string) string {
	if prevChainHash == "" {
		return currentHash
	}
	return crypto.SHA256Hex([]byte(prevChainHash + currentHash))
}
