package sqlengine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type column struct {
	name     string
	dataType string
	notNull  bool
	primary  bool
}

// GetSchema renders CREATE TABLE statements plus a few sample rows for each
// table, in the order given.
func (e *SQLEngine) GetSchema(ctx context.Context, tables []string) (string, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	blocks := make([]string, 0, len(tables))
	for _, table := range tables {
		cols, err := e.columns(ctx, table)
		if err != nil {
			return "", err
		}
		block := renderCreateTable(table, cols)
		if e.sampleRows > 0 {
			sample, err := e.sample(ctx, table)
			if err != nil {
				e.logger.Warn("sample rows unavailable", "table", table, "err", err)
			} else {
				block += "\n\n" + sample
			}
		}
		blocks = append(blocks, block)
	}
	return strings.Join(blocks, "\n\n"), nil
}

func (e *SQLEngine) columns(ctx context.Context, table string) ([]column, error) {
	var (
		rows *sql.Rows
		err  error
	)
	switch e.dialect {
	case DialectPostgres:
		rows, err = e.db.QueryContext(ctx, `SELECT c.column_name, c.data_type, c.is_nullable = 'NO',
				EXISTS (
					SELECT 1 FROM information_schema.table_constraints tc
					JOIN information_schema.key_column_usage k
						ON tc.constraint_name = k.constraint_name AND tc.table_schema = k.table_schema
					WHERE tc.constraint_type = 'PRIMARY KEY'
						AND tc.table_schema = c.table_schema
						AND tc.table_name = c.table_name
						AND k.column_name = c.column_name)
			FROM information_schema.columns c
			WHERE c.table_schema = current_schema() AND c.table_name = $1
			ORDER BY c.ordinal_position`, table)
	default:
		rows, err = e.db.QueryContext(ctx, "SELECT name, type, \"notnull\", pk FROM pragma_table_info(?)", table)
	}
	if err != nil {
		return nil, fmt.Errorf("describe table %s: %w", table, err)
	}
	defer rows.Close()

	var cols []column
	for rows.Next() {
		var c column
		switch e.dialect {
		case DialectPostgres:
			err = rows.Scan(&c.name, &c.dataType, &c.notNull, &c.primary)
		default:
			var notNull, pk int
			err = rows.Scan(&c.name, &c.dataType, &notNull, &pk)
			c.notNull, c.primary = notNull != 0, pk != 0
		}
		if err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", table, err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}
	return cols, nil
}

func renderCreateTable(table string, cols []column) string {
	lines := make([]string, 0, len(cols)+1)
	var pks []string
	for _, c := range cols {
		line := "\t" + c.name
		if c.dataType != "" {
			line += " " + strings.ToUpper(c.dataType)
		}
		if c.notNull {
			line += " NOT NULL"
		}
		if c.primary {
			pks = append(pks, c.name)
		}
		lines = append(lines, line)
	}
	if len(pks) > 0 {
		lines = append(lines, fmt.Sprintf("\tPRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n)", table, strings.Join(lines, ",\n"))
}

func (e *SQLEngine) sample(ctx context.Context, table string) (string, error) {
	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteIdent(table), e.sampleRows))
	if err != nil {
		return "", err
	}
	defer rows.Close()

	names, records, err := readRows(rows)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "/*\n%d rows from %s table:\n", e.sampleRows, table)
	b.WriteString(strings.Join(names, "\t"))
	for _, rec := range records {
		cells := make([]string, len(rec))
		for i, v := range rec {
			cells[i] = plainValue(v)
		}
		b.WriteString("\n" + strings.Join(cells, "\t"))
	}
	b.WriteString("\n*/")
	return b.String(), nil
}
