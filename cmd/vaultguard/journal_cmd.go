package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/store"
)

// runJournalCmd implements `vaultguard journal`: lists submission
// records from a persisted journal, one JSON line per record.
func runJournalCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("journal", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		dbPath     string
		vaultHex   string
		unresolved bool
		limit      int
	)
	cmd.StringVar(&dbPath, "db", "", "Path to the journal sqlite file (REQUIRED)")
	cmd.StringVar(&vaultHex, "vault", "", "Filter by vault address")
	cmd.BoolVar(&unresolved, "unresolved", false, "Only records still awaiting resolution")
	cmd.IntVar(&limit, "limit", 50, "Maximum records when filtering by vault")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if dbPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --db is required")
		return 2
	}

	j, err := store.OpenSQLiteJournal(dbPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = j.Close() }()

	ctx := context.Background()
	var records []*store.SubmissionRecord
	switch {
	case unresolved:
		records, err = j.ListUnresolved(ctx)
	case vaultHex != "":
		var vaultAddr contracts.Address
		vaultAddr, err = contracts.ParseAddress(vaultHex)
		if err == nil {
			records, err = j.ListByVault(ctx, vaultAddr, limit)
		}
	default:
		records, err = j.ListUnresolved(ctx)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	enc := json.NewEncoder(stdout)
	for _, r := range records {
		_ = enc.Encode(r)
	}
	return 0
}
