package query

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/data-intelligence/backend/internal/dataset"
	"github.com/data-intelligence/backend/internal/models"
)

// Response is the full outcome of processing one natural-language question.
type Response struct {
	Intent      Intent           `json:"intent"`
	Entities    Entities         `json:"entities"`
	Plan        dataset.Query    `json:"plan"`
	Result      *dataset.Result  `json:"result,omitempty"`
	Summary     *dataset.Summary `json:"summary,omitempty"`
	Explanation string           `json:"explanation"`
}

// Processor answers natural-language questions against a loaded dataset.
type Processor struct{}

// NewProcessor creates a query processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// Process classifies the question, builds a deterministic plan from the
// extracted entities and the dataset schema, and executes it.
func (p *Processor) Process(ctx context.Context, store *dataset.Store, question string) (*Response, error) {
	intent := ClassifyIntent(question)

	columns := store.Columns()
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	entities := ExtractEntities(question, names)

	resp := &Response{
		Intent:      intent,
		Entities:    entities,
		Explanation: explain(intent, entities),
	}

	// Summaries bypass the plan builder entirely.
	if intent == IntentSummarize || intent == IntentStatistics {
		summary, err := store.Summary(ctx)
		if err != nil {
			return nil, err
		}
		resp.Summary = summary
		return resp, nil
	}

	resp.Plan = BuildPlan(intent, entities)
	result, err := store.Select(ctx, resp.Plan)
	if err != nil {
		return nil, fmt.Errorf("executing query plan: %w", err)
	}
	resp.Result = result
	return resp, nil
}

// BuildPlan converts an intent and its entities into a structured query.
// Questions that name no columns fall back to a small preview.
func BuildPlan(intent Intent, e Entities) dataset.Query {
	switch intent {
	case IntentFilter:
		if len(e.Columns) > 0 && len(e.Values) > 0 {
			return dataset.Query{
				Filters: []dataset.Filter{{
					Column:   e.Columns[0],
					Operator: filterOperator(e.Operations),
					Value:    coerceValue(e.Values[0]),
				}},
			}
		}
	case IntentAggregate:
		if len(e.Columns) > 0 {
			return dataset.Query{
				Aggregation: &dataset.Aggregation{
					GroupBy: []string{e.Columns[0]},
					Metrics: []dataset.Metric{{Function: "count"}},
				},
				Sort: []dataset.Sort{{Column: "count", Descending: true}},
			}
		}
	case IntentSort:
		if len(e.Columns) > 0 {
			return dataset.Query{
				Sort: []dataset.Sort{{Column: e.Columns[0], Descending: true}},
			}
		}
	}
	return dataset.Query{Limit: 10}
}

// filterOperator picks the comparison for a filter plan. Null checks and
// inequality phrasing win over the generic contains/equals matches.
func filterOperator(ops []string) string {
	priority := []string{
		dataset.OpIsNull, dataset.OpNotNull,
		dataset.OpGreaterThan, dataset.OpLessThan, dataset.OpNotEquals,
		dataset.OpContains,
	}
	for _, want := range priority {
		for _, op := range ops {
			if op == want {
				return want
			}
		}
	}
	return dataset.OpEquals
}

// coerceValue turns a numeric-looking extracted value into a float so the
// comparison binds against numeric columns.
func coerceValue(v string) any {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

func explain(intent Intent, e Entities) string {
	cols := strings.Join(e.Columns, ", ")
	switch intent {
	case IntentFilter:
		if cols != "" {
			return fmt.Sprintf("Filtered the data on %s based on your criteria.", cols)
		}
		return "Showed a sample of the data matching your request."
	case IntentAggregate:
		if cols != "" {
			return fmt.Sprintf("Grouped the data by %s and computed aggregate values.", cols)
		}
		return "Computed aggregate values over the data."
	case IntentSort:
		if cols != "" {
			return fmt.Sprintf("Sorted the data by %s.", cols)
		}
		return "Sorted the data."
	case IntentSummarize, IntentStatistics:
		return "Generated summary statistics for every column in the dataset."
	case IntentVisualize:
		return "Prepared the data for visualization."
	case IntentJoin:
		return "Joining multiple datasets is not supported yet; showed a sample instead."
	default:
		return "Showed the first rows of the dataset."
	}
}

// Suggestion is one proposed question for a dataset.
type Suggestion struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

// Suggestions derives example questions from the dataset schema: summary
// prompts always, plus per-column prompts keyed by column type.
func Suggestions(columns []models.ColumnInfo) []Suggestion {
	out := []Suggestion{
		{Text: "Show me a summary of the data", Category: "summary"},
		{Text: "Show me the first 10 rows", Category: "preview"},
	}

	for _, col := range columns {
		if isNumericType(col.Type) {
			out = append(out,
				Suggestion{Text: fmt.Sprintf("What is the average %s?", col.Name), Category: "aggregate"},
				Suggestion{Text: fmt.Sprintf("Show rows where %s is greater than 100", col.Name), Category: "filter"},
			)
		} else {
			out = append(out,
				Suggestion{Text: fmt.Sprintf("How many rows are there for each %s?", col.Name), Category: "aggregate"},
			)
		}
		if len(out) >= 8 {
			break
		}
	}
	return out
}

func isNumericType(t string) bool {
	upper := strings.ToUpper(t)
	for _, marker := range []string{"INT", "DOUBLE", "FLOAT", "DECIMAL", "HUGEINT", "REAL"} {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}
