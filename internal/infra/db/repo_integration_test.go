//go:build integration
// +build integration

package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"torrens/internal/domain"
	"torrens/internal/usecase"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN_TEST"))
	if dsn == "" {
		t.Skip("POSTGRES_DSN_TEST not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	lockTestDB(t, db)
	applyMigrations(t, db)
	return db
}

func lockTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	conn, err := sqlDB.Conn(context.Background())
	if err != nil {
		t.Fatalf("open db conn: %v", err)
	}
	if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_lock(412270911)"); err != nil {
		_ = conn.Close()
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock(412270911)")
		_ = conn.Close()
	})
}

func applyMigrations(t *testing.T, db *gorm.DB) {
	t.Helper()
	dir := filepath.Join("..", "..", "..", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	for _, name := range files {
		sqlBytes, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read migration %s: %v", name, err)
		}
		if err := db.Exec(string(sqlBytes)).Error; err != nil {
			t.Fatalf("apply migration %s: %v", name, err)
		}
	}
}

// resetDB truncates every table between tests. Row-level append-only
// triggers do not fire on TRUNCATE, so no trigger juggling is needed.
func resetDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.Exec(`
		TRUNCATE entity_workflow,
			workflow_transitions,
			audit_entries,
			audit_chain_heads
		RESTART IDENTITY CASCADE`).Error; err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func testRecord(entityID string, version int64, from, to domain.State) domain.TransitionRecord {
	return domain.TransitionRecord{
		ID:         uuid.NewString(),
		Domain:     domain.DomainPlanning,
		EntityID:   entityID,
		FromState:  from,
		ToState:    to,
		ActorID:    "user-1",
		ActorName:  "A. Planner",
		ActorRole:  domain.RolePlanner,
		Reason:     "integration",
		Version:    version,
		OccurredAt: time.Date(2026, 2, 1, 10, 0, int(version), 0, time.UTC),
	}
}

func TestWorkflowRepository_CommitLoadHistory(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)
	repo := NewWorkflowRepository(db)
	ctx := context.Background()

	if _, found, err := repo.LoadEntity(ctx, domain.DomainPlanning, "P1"); err != nil || found {
		t.Fatalf("load before commit: found=%v err=%v", found, err)
	}

	first := testRecord("P1", 1, domain.StateDraft, domain.StateSubmitted)
	updated, err := repo.CommitTransition(ctx, first, 0)
	if err != nil {
		t.Fatalf("commit first: %v", err)
	}
	if updated.CurrentState != domain.StateSubmitted || updated.Version != 1 {
		t.Fatalf("unexpected record: %+v", updated)
	}

	got, found, err := repo.LoadEntity(ctx, domain.DomainPlanning, "P1")
	if err != nil || !found {
		t.Fatalf("load after commit: found=%v err=%v", found, err)
	}
	if got.CurrentState != domain.StateSubmitted || got.Version != 1 {
		t.Fatalf("loaded record wrong: %+v", got)
	}
	if !got.UpdatedAt.Equal(first.OccurredAt) {
		t.Fatalf("updated_at = %v, want %v", got.UpdatedAt, first.OccurredAt)
	}

	second := testRecord("P1", 2, domain.StateSubmitted, domain.StateApproved)
	if _, err := repo.CommitTransition(ctx, second, 1); err != nil {
		t.Fatalf("commit second: %v", err)
	}

	recs, total, err := repo.Transitions(ctx, domain.DomainPlanning, "P1", usecase.Page{Limit: 10})
	if err != nil {
		t.Fatalf("transitions: %v", err)
	}
	if total != 2 || len(recs) != 2 {
		t.Fatalf("history total=%d len=%d", total, len(recs))
	}
	if recs[0].Version != 1 || recs[1].Version != 2 {
		t.Fatalf("history out of order: %+v", recs)
	}
	if recs[0].ActorRole != domain.RolePlanner || recs[0].Reason != "integration" {
		t.Fatalf("history row lost fields: %+v", recs[0])
	}
}

func TestWorkflowRepository_StaleVersionConflicts(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)
	repo := NewWorkflowRepository(db)
	ctx := context.Background()

	if _, err := repo.CommitTransition(ctx, testRecord("P1", 1, domain.StateDraft, domain.StateSubmitted), 0); err != nil {
		t.Fatalf("seed commit: %v", err)
	}

	_, err := repo.CommitTransition(ctx, testRecord("P1", 1, domain.StateDraft, domain.StateSubmitted), 0)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on replay, got %v", err)
	}

	_, err = repo.CommitTransition(ctx, testRecord("P1", 3, domain.StateSubmitted, domain.StateApproved), 2)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on future version, got %v", err)
	}

	got, _, err := repo.LoadEntity(ctx, domain.DomainPlanning, "P1")
	if err != nil || got.Version != 1 {
		t.Fatalf("conflicting commits must not advance state: %+v err=%v", got, err)
	}
}

func TestWorkflowRepository_TransitionsAppendOnly(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)
	repo := NewWorkflowRepository(db)
	ctx := context.Background()

	rec := testRecord("P1", 1, domain.StateDraft, domain.StateSubmitted)
	if _, err := repo.CommitTransition(ctx, rec, 0); err != nil {
		t.Fatalf("commit: %v", err)
	}

	err := db.WithContext(ctx).
		Exec("UPDATE workflow_transitions SET reason = ? WHERE id = ?", "rewritten", rec.ID).Error
	if err == nil {
		t.Fatal("expected update to fail on append-only table")
	} else if !strings.Contains(err.Error(), "append-only") {
		t.Fatalf("expected append-only error, got %v", err)
	}

	err = db.WithContext(ctx).
		Exec("DELETE FROM workflow_transitions WHERE id = ?", rec.ID).Error
	if err == nil {
		t.Fatal("expected delete to fail on append-only table")
	} else if !strings.Contains(err.Error(), "append-only") {
		t.Fatalf("expected append-only error, got %v", err)
	}
}
