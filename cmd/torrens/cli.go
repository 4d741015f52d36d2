package main

import (
	"fmt"
	"os"
	"path/filepath"
)

func run(args []string) int {
	if len(args) < 2 {
		usage(args)
		return 2
	}

	switch args[1] {
	case "verify":
		return runVerify(args[2:])
	case "report":
		return runReport(args[2:])
	case "history":
		return runHistory(args[2:])
	case "state":
		return runState(args[2:])
	case "tables":
		return runTables(args[2:])
	case "sweep":
		return runSweep(args[2:])
	}

	usage(args)
	return 2
}

func usage(args []string) {
	name := "torrens"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  %s verify --resource-type <type> --resource-id <id> [store flags] [--out <file>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s report --resource-type <type> --resource-id <id> [--from <rfc3339>] [--to <rfc3339>] [store flags] [--out <file>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s history --domain <domain> --entity-id <id> [--limit <n>] [--offset <n>] [store flags] [--out <file>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s state --domain <domain> --entity-id <id> [store flags] [--out <file>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s tables [--tables-dir <dir>] [--out <file>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s sweep --retention <event=duration,...> [store flags]\n", name)
	fmt.Fprintf(os.Stderr, "\nstore flags: --driver <memory|sqlite|postgres> --sqlite-path <file> --postgres-dsn <dsn>;\n")
	fmt.Fprintf(os.Stderr, "defaults come from TORRENS_STORAGE_DRIVER, TORRENS_SQLITE_PATH and POSTGRES_DSN.\n")
}
