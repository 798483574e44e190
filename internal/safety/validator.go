// Package safety decides whether generated SQL may be executed.
package safety

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/xiaot623/gogo/ragrouter/policy"
)

// RejectionMessage is the answer text used when the validator refuses a query.
const RejectionMessage = "Error: Query blocked by safety policy. Only SELECT statements are allowed."

// Validator accepts only single, read-only SELECT statements.
// It tokenizes the text to count statements and classify the first one, then
// hands the facts to the SQL Rego policy, which makes the final decision.
type Validator struct {
	engine *policy.Engine
	logger *slog.Logger
}

// NewValidator compiles the SQL policy.
func NewValidator(ctx context.Context, logger *slog.Logger) (*Validator, error) {
	engine, err := policy.NewEngine(ctx, policy.SQLPolicy)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{engine: engine, logger: logger.With("component", "sql_validator")}, nil
}

// Validate reports whether query is safe to run. It never panics or returns
// an error: anything it cannot understand is rejected. The denylist is a
// substring match, so a forbidden word inside a string literal also rejects.
func (v *Validator) Validate(ctx context.Context, query string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Warn("sql validation panicked", "panic", r)
			ok = false
		}
	}()

	count, err := countStatements(query)
	if err != nil {
		v.logger.Warn("sql rejected: tokenize failed", "error", err)
		return false
	}

	input := map[string]interface{}{
		"statement_count": count,
		"statement_type":  statementType(query),
		"query_upper":     strings.ToUpper(query),
	}
	decision, err := v.engine.Evaluate(ctx, input)
	if err != nil {
		v.logger.Warn("sql rejected: policy evaluation failed", "error", err)
		return false
	}
	if decision != policy.DecisionAllow {
		v.logger.Info("sql rejected by policy", "statements", count, "type", input["statement_type"])
		return false
	}
	return true
}

// countStatements counts the non-empty statements separated by top-level
// semicolons. Semicolons inside literals and comments do not split.
func countStatements(query string) (int, error) {
	tkn := sqlparser.NewStringTokenizer(query)
	count := 0
	pending := false
	for {
		typ, val := tkn.Scan()
		switch typ {
		case 0:
			if pending {
				count++
			}
			return count, nil
		case sqlparser.LEX_ERROR:
			return 0, fmt.Errorf("unexpected input %q", val)
		case ';':
			if pending {
				count++
			}
			pending = false
		case sqlparser.COMMENT:
		default:
			pending = true
		}
	}
}

func statementType(query string) string {
	switch sqlparser.Preview(query) {
	case sqlparser.StmtSelect:
		return "select"
	case sqlparser.StmtInsert:
		return "insert"
	case sqlparser.StmtReplace:
		return "replace"
	case sqlparser.StmtUpdate:
		return "update"
	case sqlparser.StmtDelete:
		return "delete"
	case sqlparser.StmtDDL:
		return "ddl"
	case sqlparser.StmtOther:
		return "other"
	case sqlparser.StmtUnknown:
		if kw := cteMainKeyword(query); kw != "" {
			return kw
		}
	}
	return "unknown"
}

// cteMainKeyword types a WITH query by the first statement keyword after its
// common table expressions. It returns "" for anything else.
func cteMainKeyword(query string) string {
	tkn := sqlparser.NewStringTokenizer(query)
	seenWith := false
	depth := 0
	for {
		typ, val := tkn.Scan()
		switch typ {
		case 0, sqlparser.LEX_ERROR:
			return ""
		case sqlparser.COMMENT:
			continue
		}
		if !seenWith {
			if typ != sqlparser.WITH {
				return ""
			}
			seenWith = true
			continue
		}
		switch typ {
		case '(':
			depth++
		case ')':
			depth--
		case sqlparser.SELECT, sqlparser.INSERT, sqlparser.UPDATE, sqlparser.DELETE, sqlparser.REPLACE:
			if depth == 0 {
				return string(val)
			}
		}
	}
}
