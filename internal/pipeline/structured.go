package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xiaot623/gogo/ragrouter/internal/adapter/llm"
	"github.com/xiaot623/gogo/ragrouter/internal/adapter/sqlengine"
	"github.com/xiaot623/gogo/ragrouter/internal/domain"
	"github.com/xiaot623/gogo/ragrouter/internal/safety"
)

const noTablesFound = "No tables found."

// QueryValidator accepts or rejects generated SQL.
type QueryValidator interface {
	Validate(ctx context.Context, query string) bool
}

var _ QueryValidator = (*safety.Validator)(nil)

// Structured answers by generating and running a read-only SQL query.
type Structured struct {
	engine       sqlengine.Engine
	validator    QueryValidator
	llm          llm.LLMClient
	model        string
	schemaFilter bool
	logger       *slog.Logger
}

// NewStructured creates a new text-to-SQL pipeline.
func NewStructured(engine sqlengine.Engine, validator QueryValidator, client llm.LLMClient, model string, schemaFilter bool) *Structured {
	return &Structured{
		engine:       engine,
		validator:    validator,
		llm:          client,
		model:        model,
		schemaFilter: schemaFilter,
		logger:       slog.Default().With("component", "pipeline", "destination", domain.DestinationStructuredQuery),
	}
}

// Run generates a query from the message, validates and executes it, and streams the result.
func (p *Structured) Run(ctx context.Context, in Input, emit EmitFunc) Result {
	schema, err := p.schema(ctx, in.Query)
	if err != nil {
		return failed("", domain.StructuredMetadata(""), domain.NewUpstreamError("schema lookup failed", err))
	}

	resp, err := p.llm.CreateChatCompletion(ctx, &llm.ChatCompletionRequest{
		Model: p.model,
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: fmt.Sprintf(sqlSystemPrompt, schema)},
			{Role: llm.RoleUser, Content: in.Query},
		},
		Temperature: 0,
		Operation:   "generate_sql",
	})
	if err != nil {
		return failed("", domain.StructuredMetadata(""), domain.NewUpstreamError("sql generation failed", err))
	}
	query := cleanSQL(resp.Content())
	p.logger.Info("generated sql", "sql", query)
	md := domain.StructuredMetadata(query)

	outcome := OutcomeSuccess
	var runErr error
	var result string
	if !p.validator.Validate(ctx, query) {
		outcome = OutcomeDegraded
		runErr = &domain.Error{Code: domain.ErrorSafetyRejected, Message: "query rejected by safety policy"}
		result = safety.RejectionMessage
	} else if result, err = p.engine.Run(ctx, query); err != nil {
		p.logger.Error("query execution failed", "err", err)
		outcome = OutcomeDegraded
		runErr = err
		result = fmt.Sprintf("Error executing query: %v", err)
	}

	answer := fmt.Sprintf("Executed Query: %s\n\nResult:\n%s", query, result)
	if err := emit(domain.TokenEvent(answer)); err != nil {
		return failed(answer, md, err)
	}
	return Result{Outcome: outcome, Answer: answer, Metadata: md, Err: runErr}
}

func (p *Structured) schema(ctx context.Context, question string) (string, error) {
	tables, err := p.engine.ListTables(ctx)
	if err != nil {
		return "", err
	}
	if len(tables) == 0 {
		return noTablesFound, nil
	}
	if p.schemaFilter {
		tables = relevantTables(tables, question)
	}
	return p.engine.GetSchema(ctx, tables)
}

// cleanSQL drops markdown fences around generated SQL.
func cleanSQL(s string) string {
	s = strings.ReplaceAll(s, "```sql", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// relevantTables keeps tables named in the question, by full or singular
// name. All tables are kept when none match.
func relevantTables(tables []string, question string) []string {
	q := strings.ToLower(question)
	var matched []string
	for _, t := range tables {
		for _, form := range nameForms(t) {
			if strings.Contains(q, form) {
				matched = append(matched, t)
				break
			}
		}
	}
	if len(matched) == 0 {
		return tables
	}
	return matched
}

func nameForms(table string) []string {
	name := strings.ToLower(table)
	forms := []string{name}
	if spaced := strings.ReplaceAll(name, "_", " "); spaced != name {
		forms = append(forms, spaced)
	}
	for _, f := range forms {
		switch {
		case strings.HasSuffix(f, "ies"):
			forms = append(forms, strings.TrimSuffix(f, "ies")+"y")
		case strings.HasSuffix(f, "s"):
			forms = append(forms, strings.TrimSuffix(f, "s"))
		}
	}
	return forms
}
