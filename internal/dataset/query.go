package dataset

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/data-intelligence/backend/internal/models"
)

// Filter operators accepted by Select.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpContains    = "contains"
	OpIsNull      = "is_null"
	OpNotNull     = "not_null"
)

// Filter is one WHERE condition.
type Filter struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    any    `json:"value,omitempty"`
}

// Metric is one aggregate function applied to a column. Column is ignored
// for count.
type Metric struct {
	Column   string `json:"column,omitempty"`
	Function string `json:"function"` // count, sum, avg, min, max
}

// Aggregation groups rows and computes metrics.
type Aggregation struct {
	GroupBy []string `json:"group_by"`
	Metrics []Metric `json:"metrics"`
}

// Sort orders the result by one column.
type Sort struct {
	Column     string `json:"column"`
	Descending bool   `json:"descending,omitempty"`
}

// Query is a structured data operation: filters, then optional grouping,
// then ordering and a row limit.
type Query struct {
	Filters     []Filter     `json:"filters,omitempty"`
	Aggregation *Aggregation `json:"aggregation,omitempty"`
	Sort        []Sort       `json:"sort,omitempty"`
	Limit       int          `json:"limit,omitempty"`
}

// Result holds the rows produced by a query.
type Result struct {
	Columns   []models.ColumnInfo `json:"columns"`
	Rows      []map[string]any    `json:"rows"`
	TotalRows int                 `json:"total_rows"`
}

// Summary is a whole-dataset profile.
type Summary struct {
	RowCount    int64               `json:"row_count"`
	ColumnCount int                 `json:"column_count"`
	Columns     []models.ColumnInfo `json:"columns"`
	Stats       []map[string]any    `json:"stats"`
}

const defaultLimit = 100

// maxLimit caps result sizes so a single query cannot buffer an entire
// large dataset into the response.
const maxLimit = 10000

// ExportLimit is the row cap for full-result downloads.
const ExportLimit = maxLimit

// Select builds and executes the SQL for a structured query.
func (s *Store) Select(ctx context.Context, q Query) (*Result, error) {
	sqlText, args, err := s.buildSQL(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	// Column types must be read before the cursor is exhausted:
	// Next auto-closes the rows and ColumnTypes fails after that.
	cols, err := resultColumns(rows)
	if err != nil {
		return nil, err
	}

	data, err := rowsToMaps(rows)
	if err != nil {
		return nil, err
	}

	return &Result{
		Columns:   cols,
		Rows:      data,
		TotalRows: len(data),
	}, nil
}

func (s *Store) buildSQL(q Query) (string, []any, error) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT ")
	if agg := q.Aggregation; agg != nil {
		sel, err := s.buildAggregateSelect(agg)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(sel)
	} else {
		sb.WriteString("*")
	}
	sb.WriteString(" FROM dataset")

	if len(q.Filters) > 0 {
		where, filterArgs, err := s.buildWhere(q.Filters)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
		args = append(args, filterArgs...)
	}

	if agg := q.Aggregation; agg != nil && len(agg.GroupBy) > 0 {
		groups := make([]string, len(agg.GroupBy))
		for i, col := range agg.GroupBy {
			if !s.HasColumn(col) {
				return "", nil, fmt.Errorf("unknown column: %s", col)
			}
			groups[i] = quoteIdent(col)
		}
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(groups, ", "))
	}

	if len(q.Sort) > 0 {
		orders := make([]string, len(q.Sort))
		for i, srt := range q.Sort {
			// Aggregated queries may sort by a computed alias.
			if q.Aggregation == nil && !s.HasColumn(srt.Column) {
				return "", nil, fmt.Errorf("unknown column: %s", srt.Column)
			}
			dir := " ASC"
			if srt.Descending {
				dir = " DESC"
			}
			orders[i] = quoteIdent(srt.Column) + dir
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(orders, ", "))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	fmt.Fprintf(&sb, " LIMIT %d", limit)

	return sb.String(), args, nil
}

func (s *Store) buildAggregateSelect(agg *Aggregation) (string, error) {
	var parts []string
	for _, col := range agg.GroupBy {
		if !s.HasColumn(col) {
			return "", fmt.Errorf("unknown column: %s", col)
		}
		parts = append(parts, quoteIdent(col))
	}

	metrics := agg.Metrics
	if len(metrics) == 0 {
		metrics = []Metric{{Function: "count"}}
	}
	for _, m := range metrics {
		switch m.Function {
		case "count":
			parts = append(parts, `COUNT(*) AS "count"`)
		case "sum", "avg", "min", "max":
			if !s.HasColumn(m.Column) {
				return "", fmt.Errorf("unknown column: %s", m.Column)
			}
			parts = append(parts, fmt.Sprintf("%s(%s) AS %s",
				strings.ToUpper(m.Function), quoteIdent(m.Column),
				quoteIdent(m.Function+"_"+m.Column)))
		default:
			return "", fmt.Errorf("unknown aggregate function: %s", m.Function)
		}
	}
	return strings.Join(parts, ", "), nil
}

func (s *Store) buildWhere(filters []Filter) (string, []any, error) {
	var conds []string
	var args []any
	for _, f := range filters {
		if !s.HasColumn(f.Column) {
			return "", nil, fmt.Errorf("unknown column: %s", f.Column)
		}
		col := quoteIdent(f.Column)
		switch f.Operator {
		case OpEquals:
			conds = append(conds, col+" = ?")
			args = append(args, f.Value)
		case OpNotEquals:
			conds = append(conds, col+" != ?")
			args = append(args, f.Value)
		case OpGreaterThan:
			conds = append(conds, col+" > ?")
			args = append(args, f.Value)
		case OpLessThan:
			conds = append(conds, col+" < ?")
			args = append(args, f.Value)
		case OpContains:
			conds = append(conds, "CAST("+col+" AS VARCHAR) LIKE '%' || ? || '%'")
			args = append(args, fmt.Sprintf("%v", f.Value))
		case OpIsNull:
			conds = append(conds, col+" IS NULL")
		case OpNotNull:
			conds = append(conds, col+" IS NOT NULL")
		default:
			return "", nil, fmt.Errorf("unknown filter operator: %s", f.Operator)
		}
	}
	return strings.Join(conds, " AND "), args, nil
}

// rowsToMaps scans all remaining rows into name-keyed maps.
func rowsToMaps(rows *sql.Rows) ([]map[string]any, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, 64)
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		row := make(map[string]any, len(names))
		for i, name := range names {
			row[name] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func resultColumns(rows *sql.Rows) ([]models.ColumnInfo, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	cols := make([]models.ColumnInfo, len(types))
	for i, t := range types {
		cols[i] = models.ColumnInfo{Name: t.Name(), Type: t.DatabaseTypeName()}
	}
	return cols, nil
}

// normalizeValue converts driver types into JSON-friendly values.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return v
	}
}

// WriteCSV writes the result as CSV, header row first, in column order.
func (r *Result) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		header[i] = c.Name
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(r.Columns))
	for _, row := range r.Rows {
		for i, c := range r.Columns {
			v := row[c.Name]
			if v == nil {
				record[i] = ""
				continue
			}
			record[i] = fmt.Sprintf("%v", v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the result rows as a JSON array of objects.
func (r *Result) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	return enc.Encode(r.Rows)
}
