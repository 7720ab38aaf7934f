package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/vaultguard-labs/vaultguard-go/pkg/config"
	"github.com/vaultguard-labs/vaultguard-go/pkg/guard"
)

// runProfileCmd implements `vaultguard profile`: parses and validates
// an operator profile, including compiling its rules, so broken config
// is caught before it reaches a running agent.
//
// Exit codes:
//
//	0 = profile is valid
//	1 = profile failed validation
//	2 = usage error
func runProfileCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("profile", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var file string
	cmd.StringVar(&file, "file", "", "Path to the profile YAML (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if file == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --file is required")
		return 2
	}

	p, err := config.LoadProfile(file)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Invalid: %v\n", err)
		return 1
	}

	// Schema validation accepts the rules structurally; compiling them
	// is the real test.
	exprs := make(map[string]string, len(p.Rules))
	for _, r := range p.Rules {
		exprs[r.Name] = r.Expression
	}
	if _, err := guard.NewRuleSet(exprs); err != nil {
		_, _ = fmt.Fprintf(stderr, "Invalid: %v\n", err)
		return 1
	}

	_ = json.NewEncoder(stdout).Encode(map[string]any{
		"valid":   true,
		"name":    p.Name,
		"rules":   len(p.Rules),
		"profile": p,
	})
	return 0
}
