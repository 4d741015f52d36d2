package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"torrens/internal/usecase"
)

func runVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var stores storeFlags
	var resourceType string
	var resourceID string
	var outPath string

	stores.register(fs)
	fs.StringVar(&resourceType, "resource-type", "", "audit resource type")
	fs.StringVar(&resourceID, "resource-id", "", "audit resource id")
	fs.StringVar(&outPath, "out", "", "output path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if resourceType == "" || resourceID == "" {
		fmt.Fprintln(os.Stderr, "verify requires --resource-type and --resource-id")
		return 2
	}

	_, audit, closeStores, err := stores.open()
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		return 1
	}
	defer func() { _ = closeStores() }()

	ledger := usecase.NewLedger(audit, usecase.LedgerConfig{})
	result, err := ledger.VerifyIntegrity(context.Background(), resourceType, resourceID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify chain: %v\n", err)
		return 1
	}
	if err := writeJSON(outPath, result); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	// Distinct from runtime failures so scripts can tell "could not
	// verify" (1) apart from "verified and found broken" (3).
	if !result.Valid {
		return 3
	}
	return 0
}
