// processor_test.go - Tests for the natural-language query processor
package query

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/data-intelligence/backend/internal/dataset"
	"github.com/data-intelligence/backend/internal/models"
)

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		question string
		want     Intent
	}{
		{"show me rows where age is greater than 30", IntentFilter},
		{"filter by city", IntentFilter},
		{"how many orders per region", IntentAggregate},
		{"what is the average price", IntentAggregate},
		{"sort by revenue", IntentSort},
		{"give me a summary of the data", IntentSummarize},
		{"describe the dataset", IntentSummarize},
		{"plot revenue over time", IntentVisualize},
		{"merge with the customers table", IntentJoin},
		{"is there a correlation between age and income", IntentStatistics},
		{"hello", IntentUnknown},
	}

	for _, tt := range tests {
		if got := ClassifyIntent(tt.question); got != tt.want {
			t.Errorf("ClassifyIntent(%q) = %v, want %v", tt.question, got, tt.want)
		}
	}
}

func TestExtractEntities(t *testing.T) {
	columns := []string{"age", "city", "unit_price"}

	e := ExtractEntities(`show rows where age is greater than 30 and city is "Berlin"`, columns)

	if !reflect.DeepEqual(e.Columns, []string{"age", "city"}) {
		t.Errorf("Unexpected columns: %v", e.Columns)
	}
	if !contains(e.Operations, "greater_than") || !contains(e.Operations, "equals") {
		t.Errorf("Unexpected operations: %v", e.Operations)
	}
	if !contains(e.Values, "30") || !contains(e.Values, "Berlin") {
		t.Errorf("Unexpected values: %v", e.Values)
	}
}

func TestExtractEntities_UnderscoreColumns(t *testing.T) {
	e := ExtractEntities("what is the average unit price", []string{"unit_price", "qty"})
	if !reflect.DeepEqual(e.Columns, []string{"unit_price"}) {
		t.Errorf("Expected underscore column to match spaced phrasing, got %v", e.Columns)
	}
}

func TestBuildPlan(t *testing.T) {
	t.Run("filter with numeric value", func(t *testing.T) {
		plan := BuildPlan(IntentFilter, Entities{
			Columns:    []string{"age"},
			Values:     []string{"30"},
			Operations: []string{"greater_than"},
		})
		if len(plan.Filters) != 1 {
			t.Fatalf("Expected one filter, got %+v", plan)
		}
		f := plan.Filters[0]
		if f.Column != "age" || f.Operator != dataset.OpGreaterThan {
			t.Errorf("Unexpected filter: %+v", f)
		}
		if f.Value != 30.0 {
			t.Errorf("Expected numeric value 30.0, got %v (%T)", f.Value, f.Value)
		}
	})

	t.Run("filter defaults to equals", func(t *testing.T) {
		plan := BuildPlan(IntentFilter, Entities{
			Columns: []string{"city"},
			Values:  []string{"Berlin"},
		})
		if plan.Filters[0].Operator != dataset.OpEquals {
			t.Errorf("Expected equals, got %v", plan.Filters[0].Operator)
		}
		if plan.Filters[0].Value != "Berlin" {
			t.Errorf("Expected string value, got %v", plan.Filters[0].Value)
		}
	})

	t.Run("aggregate groups by first column", func(t *testing.T) {
		plan := BuildPlan(IntentAggregate, Entities{Columns: []string{"city"}})
		if plan.Aggregation == nil || plan.Aggregation.GroupBy[0] != "city" {
			t.Fatalf("Unexpected plan: %+v", plan)
		}
		if len(plan.Sort) != 1 || plan.Sort[0].Column != "count" || !plan.Sort[0].Descending {
			t.Errorf("Expected count-descending sort, got %+v", plan.Sort)
		}
	})

	t.Run("sort", func(t *testing.T) {
		plan := BuildPlan(IntentSort, Entities{Columns: []string{"age"}})
		if len(plan.Sort) != 1 || plan.Sort[0].Column != "age" {
			t.Errorf("Unexpected plan: %+v", plan)
		}
	})

	t.Run("no entities falls back to preview", func(t *testing.T) {
		plan := BuildPlan(IntentFilter, Entities{})
		if plan.Limit != 10 || len(plan.Filters) != 0 {
			t.Errorf("Expected preview fallback, got %+v", plan)
		}
	})
}

func TestProcess(t *testing.T) {
	store := loadTestStore(t)
	p := NewProcessor()
	ctx := context.Background()

	t.Run("filter question", func(t *testing.T) {
		resp, err := p.Process(ctx, store, "show me rows where age is greater than 30")
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}
		if resp.Intent != IntentFilter {
			t.Errorf("Expected filter intent, got %v", resp.Intent)
		}
		if resp.Result == nil || len(resp.Result.Rows) != 2 {
			t.Errorf("Expected 2 matching rows, got %+v", resp.Result)
		}
		if resp.Explanation == "" {
			t.Error("Expected an explanation")
		}
	})

	t.Run("aggregate question", func(t *testing.T) {
		resp, err := p.Process(ctx, store, "how many people per city")
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}
		if resp.Intent != IntentAggregate {
			t.Errorf("Expected aggregate intent, got %v", resp.Intent)
		}
		if resp.Result == nil || len(resp.Result.Rows) != 3 {
			t.Errorf("Expected 3 groups, got %+v", resp.Result)
		}
		if resp.Result.Rows[0]["city"] != "Berlin" {
			t.Errorf("Expected Berlin as largest group, got %v", resp.Result.Rows[0])
		}
	})

	t.Run("summary question", func(t *testing.T) {
		resp, err := p.Process(ctx, store, "give me a summary of the data")
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}
		if resp.Summary == nil || resp.Summary.RowCount != 4 {
			t.Errorf("Expected summary with 4 rows, got %+v", resp.Summary)
		}
		if resp.Result != nil {
			t.Error("Summary response should not carry row results")
		}
	})

	t.Run("unknown question falls back to preview", func(t *testing.T) {
		resp, err := p.Process(ctx, store, "hello")
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}
		if resp.Result == nil || len(resp.Result.Rows) != 4 {
			t.Errorf("Expected the full (small) dataset, got %+v", resp.Result)
		}
	})
}

func TestSuggestions(t *testing.T) {
	columns := []models.ColumnInfo{
		{Name: "age", Type: "BIGINT"},
		{Name: "city", Type: "VARCHAR"},
	}

	suggestions := Suggestions(columns)
	if len(suggestions) < 4 {
		t.Fatalf("Expected at least 4 suggestions, got %d", len(suggestions))
	}

	var sawAverage, sawGroup bool
	for _, s := range suggestions {
		if strings.Contains(s.Text, "average age") {
			sawAverage = true
		}
		if strings.Contains(s.Text, "each city") {
			sawGroup = true
		}
	}
	if !sawAverage {
		t.Error("Expected a numeric-column suggestion for age")
	}
	if !sawGroup {
		t.Error("Expected a categorical suggestion for city")
	}
}

func loadTestStore(t *testing.T) *dataset.Store {
	t.Helper()
	tempDir := t.TempDir()

	csv := "name,age,city\nAlice,34,Berlin\nBob,28,Paris\nCarol,45,Berlin\nDave,19,London\n"
	path := filepath.Join(tempDir, "people.csv")
	if err := os.WriteFile(path, []byte(csv), 0644); err != nil {
		t.Fatalf("Failed to write test CSV: %v", err)
	}

	engine, err := dataset.NewEngine(filepath.Join(tempDir, "duck"))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := engine.Load(context.Background(), "f", path, "csv"); err != nil {
		t.Fatalf("Failed to load CSV: %v", err)
	}
	store, _ := engine.Get("f")
	return store
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
