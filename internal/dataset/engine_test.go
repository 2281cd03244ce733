// engine_test.go - Tests for the DuckDB-backed dataset engine
package dataset

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const peopleCSV = `name,age,city
Alice,34,Berlin
Bob,28,Paris
Carol,45,Berlin
Dave,19,London
`

// loadTestCSV writes the sample CSV and loads it into a fresh engine.
func loadTestCSV(t *testing.T) (*Engine, *Store) {
	t.Helper()
	tempDir := t.TempDir()

	path := filepath.Join(tempDir, "people.csv")
	if err := os.WriteFile(path, []byte(peopleCSV), 0644); err != nil {
		t.Fatalf("Failed to write test CSV: %v", err)
	}

	engine, err := NewEngine(filepath.Join(tempDir, "duck"))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	t.Cleanup(engine.Close)

	profile, err := engine.Load(context.Background(), "file-1", path, "csv")
	if err != nil {
		t.Fatalf("Failed to load CSV: %v", err)
	}
	if profile.RowCount != 4 {
		t.Errorf("Expected 4 rows, got %d", profile.RowCount)
	}
	if profile.ColumnCount != 3 {
		t.Errorf("Expected 3 columns, got %d", profile.ColumnCount)
	}

	store, ok := engine.Get("file-1")
	if !ok {
		t.Fatal("Expected store to be registered")
	}
	return engine, store
}

func TestEngine_LoadJSON(t *testing.T) {
	tempDir := t.TempDir()

	path := filepath.Join(tempDir, "data.json")
	content := `[{"name":"Alice","score":10},{"name":"Bob","score":20}]`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test JSON: %v", err)
	}

	engine, err := NewEngine(filepath.Join(tempDir, "duck"))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	defer engine.Close()

	profile, err := engine.Load(context.Background(), "f", path, "json")
	if err != nil {
		t.Fatalf("Failed to load JSON: %v", err)
	}
	if profile.RowCount != 2 || profile.ColumnCount != 2 {
		t.Errorf("Unexpected profile: %+v", profile)
	}
}

func TestEngine_LoadUnsupportedFormat(t *testing.T) {
	engine, err := NewEngine(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	defer engine.Close()

	_, err = engine.Load(context.Background(), "f", "ignored.xlsx", "excel")
	if err == nil || !strings.Contains(err.Error(), "unsupported format") {
		t.Errorf("Expected unsupported-format error, got %v", err)
	}
}

func TestEngine_Remove(t *testing.T) {
	engine, _ := loadTestCSV(t)

	engine.Remove("file-1")
	if _, ok := engine.Get("file-1"); ok {
		t.Error("Expected store to be removed")
	}
	// Removing twice is a no-op.
	engine.Remove("file-1")
}

func TestStore_Preview(t *testing.T) {
	_, store := loadTestCSV(t)

	result, err := store.Preview(context.Background(), 2)
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Errorf("Expected 2 preview rows, got %d", len(result.Rows))
	}
	if len(result.Columns) != 3 {
		t.Errorf("Expected 3 columns, got %d", len(result.Columns))
	}
}

func TestStore_SelectFilters(t *testing.T) {
	_, store := loadTestCSV(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		query    Query
		wantRows int
	}{
		{
			name:     "equals",
			query:    Query{Filters: []Filter{{Column: "city", Operator: OpEquals, Value: "Berlin"}}},
			wantRows: 2,
		},
		{
			name:     "greater than",
			query:    Query{Filters: []Filter{{Column: "age", Operator: OpGreaterThan, Value: 30}}},
			wantRows: 2,
		},
		{
			name:     "contains",
			query:    Query{Filters: []Filter{{Column: "name", Operator: OpContains, Value: "ar"}}},
			wantRows: 1, // Carol
		},
		{
			name: "combined filters",
			query: Query{Filters: []Filter{
				{Column: "city", Operator: OpEquals, Value: "Berlin"},
				{Column: "age", Operator: OpLessThan, Value: 40},
			}},
			wantRows: 1, // Alice
		},
		{
			name:     "not null",
			query:    Query{Filters: []Filter{{Column: "name", Operator: OpNotNull}}},
			wantRows: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := store.Select(ctx, tt.query)
			if err != nil {
				t.Fatalf("Select failed: %v", err)
			}
			if len(result.Rows) != tt.wantRows {
				t.Errorf("Expected %d rows, got %d: %v", tt.wantRows, len(result.Rows), result.Rows)
			}
		})
	}
}

func TestStore_SelectAggregation(t *testing.T) {
	_, store := loadTestCSV(t)

	result, err := store.Select(context.Background(), Query{
		Aggregation: &Aggregation{
			GroupBy: []string{"city"},
			Metrics: []Metric{{Function: "count"}, {Column: "age", Function: "avg"}},
		},
		Sort: []Sort{{Column: "count", Descending: true}},
	})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(result.Rows) != 3 {
		t.Fatalf("Expected 3 groups, got %d", len(result.Rows))
	}

	top := result.Rows[0]
	if top["city"] != "Berlin" {
		t.Errorf("Expected Berlin as largest group, got %v", top["city"])
	}
}

func TestStore_SelectSortAndLimit(t *testing.T) {
	_, store := loadTestCSV(t)

	result, err := store.Select(context.Background(), Query{
		Sort:  []Sort{{Column: "age", Descending: true}},
		Limit: 1,
	})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(result.Rows))
	}
	if result.Rows[0]["name"] != "Carol" {
		t.Errorf("Expected oldest person first, got %v", result.Rows[0])
	}
}

func TestStore_SelectColumnMetadata(t *testing.T) {
	_, store := loadTestCSV(t)
	ctx := context.Background()

	// Column metadata must survive draining the cursor to exhaustion.
	result, err := store.Select(ctx, Query{})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(result.Rows) != 4 {
		t.Fatalf("Expected all 4 rows, got %d", len(result.Rows))
	}
	if len(result.Columns) != 3 {
		t.Fatalf("Expected 3 columns, got %+v", result.Columns)
	}
	for _, col := range result.Columns {
		if col.Name == "" || col.Type == "" {
			t.Errorf("Expected populated column metadata, got %+v", col)
		}
	}

	// An empty result set still carries the schema.
	empty, err := store.Select(ctx, Query{
		Filters: []Filter{{Column: "city", Operator: OpEquals, Value: "Tokyo"}},
	})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(empty.Rows) != 0 {
		t.Fatalf("Expected no rows, got %d", len(empty.Rows))
	}
	if len(empty.Columns) != 3 {
		t.Errorf("Expected schema on empty result, got %+v", empty.Columns)
	}
}

func TestStore_SelectErrors(t *testing.T) {
	_, store := loadTestCSV(t)
	ctx := context.Background()

	if _, err := store.Select(ctx, Query{
		Filters: []Filter{{Column: "missing", Operator: OpEquals, Value: 1}},
	}); err == nil {
		t.Error("Expected error for unknown filter column")
	}

	if _, err := store.Select(ctx, Query{
		Filters: []Filter{{Column: "age", Operator: "between", Value: 1}},
	}); err == nil {
		t.Error("Expected error for unknown operator")
	}

	if _, err := store.Select(ctx, Query{
		Aggregation: &Aggregation{GroupBy: []string{"city"}, Metrics: []Metric{{Column: "age", Function: "median"}}},
	}); err == nil {
		t.Error("Expected error for unknown aggregate function")
	}
}

func TestStore_Summary(t *testing.T) {
	_, store := loadTestCSV(t)

	summary, err := store.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary.RowCount != 4 || summary.ColumnCount != 3 {
		t.Errorf("Unexpected summary counts: %+v", summary)
	}
	if len(summary.Stats) != 3 {
		t.Errorf("Expected one stats row per column, got %d", len(summary.Stats))
	}
}

func TestResult_WriteCSV(t *testing.T) {
	_, store := loadTestCSV(t)

	result, err := store.Select(context.Background(), Query{
		Filters: []Filter{{Column: "city", Operator: OpEquals, Value: "Paris"}},
	})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	var buf bytes.Buffer
	if err := result.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected header + 1 row, got %d lines", len(lines))
	}
	if lines[0] != "name,age,city" {
		t.Errorf("Unexpected header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "Bob") {
		t.Errorf("Unexpected row: %q", lines[1])
	}
}
