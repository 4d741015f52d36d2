package main

import (
	"flag"
	"fmt"
	"os"

	"torrens/internal/config"
	"torrens/internal/domain"
	"torrens/internal/usecase"
)

type tableDoc struct {
	Domain       domain.WorkflowDomain `json:"domain"`
	ResourceType string                `json:"resource_type"`
	Initial      domain.State          `json:"initial"`
	States       []domain.State        `json:"states"`
	Terminal     []domain.State        `json:"terminal"`
	Edges        []usecase.Edge        `json:"edges"`
	Display      map[string]string     `json:"display,omitempty"`
}

func runTables(args []string) int {
	fs := flag.NewFlagSet("tables", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var tablesDir string
	var outPath string

	fs.StringVar(&tablesDir, "tables-dir", config.FromEnv().TablesDir, "directory of YAML table overlays")
	fs.StringVar(&outPath, "out", "", "output path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	tables, err := usecase.LoadTables(tablesDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load tables: %v\n", err)
		return 1
	}

	var docs []tableDoc
	for _, dom := range tables.Domains() {
		table, _ := tables.Domain(dom)
		doc := tableDoc{
			Domain:       table.Domain,
			ResourceType: table.ResourceType,
			Initial:      table.Initial,
			States:       table.States(),
			Edges:        table.Edges(),
			Display:      map[string]string{},
		}
		for _, s := range table.States() {
			if table.IsTerminal(s) {
				doc.Terminal = append(doc.Terminal, s)
			}
			if label := table.DisplayStatus(s); label != string(s) {
				doc.Display[string(s)] = label
			}
		}
		if len(doc.Display) == 0 {
			doc.Display = nil
		}
		docs = append(docs, doc)
	}

	if err := writeJSON(outPath, docs); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}
