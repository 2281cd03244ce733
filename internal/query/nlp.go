// Package query turns natural-language questions about a dataset into
// structured query plans and executes them against the dataset engine.
// Classification is deterministic keyword/regex matching over the question
// and the dataset schema.
package query

import (
	"regexp"
	"strings"
)

// Intent classifies what kind of data operation a question asks for.
type Intent string

const (
	IntentFilter     Intent = "filter"
	IntentAggregate  Intent = "aggregate"
	IntentSort       Intent = "sort"
	IntentSummarize  Intent = "summarize"
	IntentVisualize  Intent = "visualize"
	IntentJoin       Intent = "join"
	IntentStatistics Intent = "statistics"
	IntentUnknown    Intent = "unknown"
)

// intentKeywords score a question toward each intent. The highest total
// wins; ties resolve in this fixed evaluation order.
var intentKeywords = []struct {
	intent   Intent
	keywords []string
}{
	{IntentFilter, []string{"filter", "where", "show me", "find", "select", "get"}},
	{IntentAggregate, []string{"sum", "count", "average", "mean", "total", "group by", "aggregate", "how many"}},
	{IntentSort, []string{"sort", "order", "arrange", "rank"}},
	{IntentSummarize, []string{"summary", "describe", "overview", "statistics", "stats"}},
	{IntentVisualize, []string{"plot", "chart", "graph", "visualize"}},
	{IntentJoin, []string{"join", "merge", "combine", "relate"}},
	{IntentStatistics, []string{"correlation", "regression", "analysis", "trend", "pattern"}},
}

// operationKeywords map comparison phrasing to filter operators.
var operationKeywords = []struct {
	op       string
	keywords []string
}{
	{"greater_than", []string{"greater than", "more than", "above", ">"}},
	{"less_than", []string{"less than", "below", "under", "<"}},
	{"not_equals", []string{"not equal", "isn't", "!="}},
	{"not_null", []string{"not null", "not empty", "has value"}},
	{"is_null", []string{"null", "empty", "missing", "blank"}},
	{"contains", []string{"contains", "includes", "has", "with"}},
	{"equals", []string{"equals", "is", "=", "=="}},
}

var (
	numericValue = regexp.MustCompile(`\b\d+\.?\d*\b`)
	quotedValue  = regexp.MustCompile(`["']([^"']+)["']`)
)

// ClassifyIntent scores the question against every intent's keyword list.
func ClassifyIntent(question string) Intent {
	q := strings.ToLower(question)

	best := IntentUnknown
	bestScore := 0
	for _, entry := range intentKeywords {
		score := 0
		for _, kw := range entry.keywords {
			if strings.Contains(q, kw) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = entry.intent
		}
	}
	return best
}

// Entities are the dataset references extracted from a question.
type Entities struct {
	Columns    []string `json:"columns"`
	Values     []string `json:"values"`
	Operations []string `json:"operations"`
}

// ExtractEntities pulls column names, operations and literal values out of
// the question. Column matching tries both the raw name and its
// underscores-as-spaces variant.
func ExtractEntities(question string, columns []string) Entities {
	q := strings.ToLower(question)
	e := Entities{
		Columns:    []string{},
		Values:     []string{},
		Operations: []string{},
	}

	for _, col := range columns {
		variants := []string{
			strings.ToLower(col),
			strings.ToLower(strings.ReplaceAll(col, "_", " ")),
		}
		for _, v := range variants {
			if strings.Contains(q, v) {
				e.Columns = append(e.Columns, col)
				break
			}
		}
	}

	for _, entry := range operationKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(q, kw) {
				e.Operations = append(e.Operations, entry.op)
				break
			}
		}
	}

	e.Values = append(e.Values, numericValue.FindAllString(question, -1)...)
	for _, m := range quotedValue.FindAllStringSubmatch(question, -1) {
		e.Values = append(e.Values, m[1])
	}

	return e
}
