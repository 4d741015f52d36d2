package main

import (
	"flag"
	"fmt"

	"torrens/internal/config"
	"torrens/internal/infra/db"
	"torrens/internal/infra/memstore"
	"torrens/internal/infra/sqlitestore"
	"torrens/internal/usecase"
)

// storeFlags selects the backing store for a subcommand. Defaults come
// from the same environment the daemon reads, so the CLI inspects the
// store a running torrensd writes to.
type storeFlags struct {
	driver     string
	sqlitePath string
	dsn        string
}

func (f *storeFlags) register(fs *flag.FlagSet) {
	cfg := config.FromEnv()
	fs.StringVar(&f.driver, "driver", cfg.StorageDriver, "storage driver: memory, sqlite or postgres")
	fs.StringVar(&f.sqlitePath, "sqlite-path", cfg.SQLitePath, "sqlite database path")
	fs.StringVar(&f.dsn, "postgres-dsn", cfg.PostgresDSN, "postgres connection string")
}

func (f *storeFlags) open() (usecase.WorkflowStore, usecase.AuditStore, func() error, error) {
	switch f.driver {
	case "memory":
		s := memstore.New()
		return s, s, func() error { return nil }, nil
	case "sqlite":
		s, err := sqlitestore.Open(f.sqlitePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, s, s.Close, nil
	case "postgres":
		s, err := db.Open(f.dsn)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s.Workflow, s.Audit, s.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown storage driver %q", f.driver)
	}
}
