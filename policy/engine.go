// Package policy evaluates Rego policies with OPA.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Policy names a Rego module and the rule that yields its decision.
type Policy struct {
	Name    string
	Query   string
	Source  string
	Default string // decision used when the query yields no result
}

// Engine is the OPA policy engine.
type Engine struct {
	query           rego.PreparedEvalQuery
	defaultDecision string
}

// NewEngine compiles the policy once; the prepared query is safe for concurrent use.
func NewEngine(ctx context.Context, p Policy) (*Engine, error) {
	r := rego.New(
		rego.Query(p.Query),
		rego.Module(p.Name+".rego", p.Source),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	def := p.Default
	if def == "" {
		def = DecisionDeny
	}
	return &Engine{query: query, defaultDecision: def}, nil
}

// Evaluate runs the policy against input and returns its decision string.
func (e *Engine) Evaluate(ctx context.Context, input interface{}) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return e.defaultDecision, nil
	}

	val := results[0].Expressions[0].Value
	if s, ok := val.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("unexpected policy result type %T", val)
}

// SQLPolicy gates generated SQL: exactly one SELECT statement and none of the
// denylisted substrings anywhere in the upper-cased text.
var SQLPolicy = Policy{
	Name:    "sql_policy",
	Query:   "data.sql_policy.decision",
	Default: DecisionDeny,
	Source: `
package sql_policy

default decision = "deny"

forbidden_tokens := [
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "TRUNCATE",
	"GRANT", "REVOKE", "CREATE", "REPLACE",
	"PG_", "INFORMATION_SCHEMA",
]

decision = "allow" {
	input.statement_count == 1
	input.statement_type == "select"
	not forbidden
}

forbidden {
	some i
	contains(input.query_upper, forbidden_tokens[i])
}
`,
}
