package guard

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/vaultguard-labs/vaultguard-go/pkg/vault"
)

// RuleSet evaluates owner-configured CEL expressions against a proposed
// transfer, after the canonical checks have passed. Rules are a
// client-side pre-submit courtesy only — the ledger program knows nothing
// about them and they can never loosen the canonical policy.
//
// Each expression sees a single "transfer" map and must yield a bool;
// false blocks the proposal.
type RuleSet struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
	order    []string
}

// NewRuleSet compiles the named expressions. Compilation errors surface
// immediately so misconfigured rules fail at startup, not at spend time.
func NewRuleSet(rules map[string]string) (*RuleSet, error) {
	env, err := cel.NewEnv(
		cel.Variable("transfer", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	rs := &RuleSet{env: env, programs: make(map[string]cel.Program, len(rules))}
	for name, expr := range rules {
		ast, issues := env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %q: compile: %w", name, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %q: program: %w", name, err)
		}
		rs.programs[name] = prg
		rs.order = append(rs.order, name)
	}
	return rs, nil
}

// Check evaluates every rule against the proposal. Returns the name of
// the first rule that rejected it, or "" if all pass.
func (rs *RuleSet) Check(s *vault.State, p Proposal) (string, error) {
	if rs == nil {
		return "", nil
	}

	input := map[string]any{
		"transfer": map[string]any{
			"destination": p.Destination.String(),
			"amount":      p.Amount,
			"balance":     p.Balance,
			"daily_limit": s.DailyLimit,
			"spent_today": s.SpentToday,
			"hour_utc":    p.Now.UTC().Hour(),
			"paused":      s.Paused,
		},
	}

	rs.mu.RLock()
	defer rs.mu.RUnlock()
	for _, name := range rs.order {
		out, _, err := rs.programs[name].Eval(input)
		if err != nil {
			return "", fmt.Errorf("rule %q: eval: %w", name, err)
		}
		ok, isBool := out.Value().(bool)
		if !isBool {
			return "", fmt.Errorf("rule %q: result is not boolean", name)
		}
		if !ok {
			return name, nil
		}
	}
	return "", nil
}
