package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"torrens/internal/config"
	"torrens/internal/domain"
	"torrens/internal/infra/authz"
	"torrens/internal/usecase"
)

func runHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var stores storeFlags
	var domainRaw string
	var entityID string
	var limit int
	var offset int
	var outPath string

	stores.register(fs)
	fs.StringVar(&domainRaw, "domain", "", "workflow domain")
	fs.StringVar(&entityID, "entity-id", "", "entity id")
	fs.IntVar(&limit, "limit", 0, "page size (default 50, max 500)")
	fs.IntVar(&offset, "offset", 0, "page offset")
	fs.StringVar(&outPath, "out", "", "output path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if domainRaw == "" || entityID == "" {
		fmt.Fprintln(os.Stderr, "history requires --domain and --entity-id")
		return 2
	}

	manager, closeStores, code := openManager(stores)
	if code != 0 {
		return code
	}
	defer func() { _ = closeStores() }()

	items, total, err := manager.History(context.Background(), domain.WorkflowDomain(domainRaw), entityID, usecase.Page{Limit: limit, Offset: offset})
	if err != nil {
		fmt.Fprintf(os.Stderr, "load history: %v\n", err)
		return 1
	}
	out := struct {
		Items []domain.TransitionRecord `json:"items"`
		Total int64                     `json:"total"`
	}{Items: items, Total: total}
	if err := writeJSON(outPath, out); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

func runState(args []string) int {
	fs := flag.NewFlagSet("state", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var stores storeFlags
	var domainRaw string
	var entityID string
	var outPath string

	stores.register(fs)
	fs.StringVar(&domainRaw, "domain", "", "workflow domain")
	fs.StringVar(&entityID, "entity-id", "", "entity id")
	fs.StringVar(&outPath, "out", "", "output path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if domainRaw == "" || entityID == "" {
		fmt.Fprintln(os.Stderr, "state requires --domain and --entity-id")
		return 2
	}

	manager, closeStores, code := openManager(stores)
	if code != 0 {
		return code
	}
	defer func() { _ = closeStores() }()

	dom := domain.WorkflowDomain(domainRaw)
	current, err := manager.CurrentState(context.Background(), dom, entityID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load state: %v\n", err)
		return 1
	}
	out := struct {
		Domain        domain.WorkflowDomain `json:"domain"`
		EntityID      string                `json:"entity_id"`
		State         domain.State          `json:"state"`
		DisplayStatus string                `json:"display_status"`
		Version       int64                 `json:"version"`
	}{
		Domain:        current.Domain,
		EntityID:      current.EntityID,
		State:         current.CurrentState,
		DisplayStatus: manager.DisplayStatus(dom, current.CurrentState),
		Version:       current.Version,
	}
	if err := writeJSON(outPath, out); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

// openManager wires a read-only manager over the selected store with the
// same tables the daemon loads.
func openManager(stores storeFlags) (*usecase.Manager, func() error, int) {
	workflow, audit, closeStores, err := stores.open()
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		return nil, nil, 1
	}
	tables, err := usecase.LoadTables(config.FromEnv().TablesDir)
	if err != nil {
		_ = closeStores()
		fmt.Fprintf(os.Stderr, "load tables: %v\n", err)
		return nil, nil, 1
	}
	ledger := usecase.NewLedger(audit, usecase.LedgerConfig{})
	manager := usecase.NewManager(workflow, ledger, authz.NewStatic(), tables, usecase.ManagerConfig{})
	return manager, closeStores, 0
}
