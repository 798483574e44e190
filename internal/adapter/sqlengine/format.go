package sqlengine

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const maxSampleCell = 100

// numeric marks driver values that arrive as text but are numbers,
// such as Postgres NUMERIC.
type numeric string

func readRows(rows *sql.Rows) ([]string, [][]any, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, nil, err
	}

	var records [][]any
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				switch strings.ToUpper(types[i].DatabaseTypeName()) {
				case "NUMERIC", "DECIMAL":
					values[i] = numeric(b)
				default:
					values[i] = string(b)
				}
			}
		}
		records = append(records, values)
	}
	return names, records, rows.Err()
}

// formatRecords renders rows as a list of tuples, e.g. [('ALFKI', 3), (None, 1.5)].
func formatRecords(records [][]any) string {
	if len(records) == 0 {
		return ""
	}
	tuples := make([]string, len(records))
	for i, rec := range records {
		cells := make([]string, len(rec))
		for j, v := range rec {
			cells[j] = literal(v)
		}
		if len(cells) == 1 {
			tuples[i] = "(" + cells[0] + ",)"
		} else {
			tuples[i] = "(" + strings.Join(cells, ", ") + ")"
		}
	}
	return "[" + strings.Join(tuples, ", ") + "]"
}

func literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case numeric:
		return string(x)
	case string:
		return quote(x)
	case time.Time:
		return quote(x.Format(time.RFC3339))
	default:
		return quote(fmt.Sprint(x))
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), "'", `\'`) + "'"
}

func plainValue(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		s = "None"
	case string:
		s = x
	case time.Time:
		s = x.Format(time.RFC3339)
	default:
		s = strings.Trim(literal(x), "'")
	}
	if r := []rune(s); len(r) > maxSampleCell {
		s = string(r[:maxSampleCell]) + "..."
	}
	return s
}
