package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"torrens/internal/usecase"
)

func runReport(args []string) int {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var stores storeFlags
	var resourceType string
	var resourceID string
	var fromRaw string
	var toRaw string
	var outPath string

	stores.register(fs)
	fs.StringVar(&resourceType, "resource-type", "", "audit resource type")
	fs.StringVar(&resourceID, "resource-id", "", "audit resource id")
	fs.StringVar(&fromRaw, "from", "", "period start (RFC3339)")
	fs.StringVar(&toRaw, "to", "", "period end (RFC3339)")
	fs.StringVar(&outPath, "out", "", "output path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if resourceType == "" || resourceID == "" {
		fmt.Fprintln(os.Stderr, "report requires --resource-type and --resource-id")
		return 2
	}

	var from, to time.Time
	var err error
	if fromRaw != "" {
		if from, err = time.Parse(time.RFC3339, fromRaw); err != nil {
			fmt.Fprintf(os.Stderr, "parse from: %v\n", err)
			return 2
		}
	}
	if toRaw != "" {
		if to, err = time.Parse(time.RFC3339, toRaw); err != nil {
			fmt.Fprintf(os.Stderr, "parse to: %v\n", err)
			return 2
		}
	}

	_, audit, closeStores, err := stores.open()
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		return 1
	}
	defer func() { _ = closeStores() }()

	ledger := usecase.NewLedger(audit, usecase.LedgerConfig{})
	reporter := usecase.NewReporter(ledger, nil)
	report, err := reporter.Generate(context.Background(), usecase.ReportRequest{
		ResourceType: resourceType,
		ResourceID:   resourceID,
		From:         from,
		To:           to,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate report: %v\n", err)
		return 1
	}
	if err := writeJSON(outPath, report); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}
