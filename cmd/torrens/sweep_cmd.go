package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"torrens/internal/config"
	"torrens/internal/domain"
	"torrens/internal/usecase"
)

func runSweep(args []string) int {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var stores storeFlags
	var retentionRaw string

	stores.register(fs)
	fs.StringVar(&retentionRaw, "retention", os.Getenv("TORRENS_RETENTION"),
		`retention rules, e.g. "view=720h,verify=2160h"; * matches every event type`)

	if err := fs.Parse(args); err != nil {
		return 2
	}

	rules := config.ParseRetention(retentionRaw)
	if len(rules) == 0 {
		fmt.Fprintln(os.Stderr, "sweep requires at least one --retention rule")
		return 2
	}

	_, audit, closeStores, err := stores.open()
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		return 1
	}
	defer func() { _ = closeStores() }()

	retention := usecase.NewRetention(audit, archivePolicies(rules), usecase.RetentionConfig{})
	archived, err := retention.Sweep(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "sweep: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stdout, "archived %d entries\n", archived)
	return 0
}

func archivePolicies(rules []config.RetentionRule) []usecase.ArchivePolicy {
	policies := make([]usecase.ArchivePolicy, 0, len(rules))
	for _, rule := range rules {
		policy := usecase.ArchivePolicy{RetainFor: rule.RetainFor}
		if rule.EventType != "*" {
			policy.EventTypes = []domain.EventType{domain.EventType(rule.EventType)}
		}
		policies = append(policies, policy)
	}
	return policies
}
