// Package db is the PostgreSQL backend. The schema is managed by the SQL
// files under migrations/; history tables are append-only, enforced by
// database triggers rather than application discipline.
package db

import (
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Store struct {
	DB       *gorm.DB
	Workflow *WorkflowRepository
	Audit    *AuditRepository
}

func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn required")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{
		DB:       gdb,
		Workflow: NewWorkflowRepository(gdb),
		Audit:    NewAuditRepository(gdb),
	}, nil
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
