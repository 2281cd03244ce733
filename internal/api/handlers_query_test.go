// handlers_query_test.go - Tests for query execution and export handlers
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/data-intelligence/backend/internal/dataset"
	"github.com/data-intelligence/backend/internal/query"
)

// queryEnv uploads a CSV and waits for it to become queryable.
func queryEnv(t *testing.T) (*testEnv, string) {
	t.Helper()
	env := newTestEnv(t)

	c, rec := env.uploadRequest(t, "data.csv", "text/csv", []byte(testCSV), nil)
	if err := env.handlers.Files.HandleUploadFile(c); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	var resp uploadResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	env.waitForIngest(t, resp.FileID)
	return env, resp.FileID
}

func TestQueryHandler_ExecuteQuery(t *testing.T) {
	env, fileID := queryEnv(t)

	body := `{"file_id":"` + fileID + `","query":{"filters":[{"column":"city","operator":"equals","value":"Berlin"}]}}`
	c, rec := jsonRequest(env, http.MethodPost, "/api/query/execute", body)
	if err := env.handlers.Query.HandleExecuteQuery(c); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var result dataset.Result
	decodeEnvelope(t, rec, &result)
	if len(result.Rows) != 2 {
		t.Errorf("Expected 2 rows, got %d", len(result.Rows))
	}
}

func TestQueryHandler_ExecuteQueryErrors(t *testing.T) {
	env, fileID := queryEnv(t)

	// Unknown column is a 400
	body := `{"file_id":"` + fileID + `","query":{"filters":[{"column":"ghost","operator":"equals","value":1}]}}`
	c, _ := jsonRequest(env, http.MethodPost, "/api/query/execute", body)
	err := env.handlers.Query.HandleExecuteQuery(c)
	if apiErr, ok := err.(*APIError); !ok || apiErr.Status != http.StatusBadRequest {
		t.Errorf("Expected 400, got %v", err)
	}

	// Unknown file is a 404
	body = `{"file_id":"ghost","query":{}}`
	c, _ = jsonRequest(env, http.MethodPost, "/api/query/execute", body)
	err = env.handlers.Query.HandleExecuteQuery(c)
	if apiErr, ok := err.(*APIError); !ok || apiErr.Status != http.StatusNotFound {
		t.Errorf("Expected 404, got %v", err)
	}

	// Missing file_id is a validation error
	c, _ = jsonRequest(env, http.MethodPost, "/api/query/execute", `{"query":{}}`)
	err = env.handlers.Query.HandleExecuteQuery(c)
	if apiErr, ok := err.(*APIError); !ok || apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestQueryHandler_NaturalLanguageQuery(t *testing.T) {
	env, fileID := queryEnv(t)

	body := `{"file_id":"` + fileID + `","question":"how many people per city"}`
	c, rec := jsonRequest(env, http.MethodPost, "/api/query/natural-language", body)
	if err := env.handlers.Query.HandleNaturalLanguageQuery(c); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var resp query.Response
	decodeEnvelope(t, rec, &resp)
	if resp.Intent != query.IntentAggregate {
		t.Errorf("Expected aggregate intent, got %v", resp.Intent)
	}
	if resp.Result == nil || len(resp.Result.Rows) != 3 {
		t.Errorf("Expected 3 groups, got %+v", resp.Result)
	}
}

func TestQueryHandler_RowsMsgpack(t *testing.T) {
	env, fileID := queryEnv(t)

	body := `{"file_id":"` + fileID + `","query":{"limit":2}}`
	c, rec := jsonRequest(env, http.MethodPost, "/api/query/rows.msgpack", body)
	if err := env.handlers.Query.HandleRowsMsgpack(c); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/msgpack" {
		t.Errorf("Expected msgpack content type, got %q", ct)
	}

	var decoded map[string]any
	if err := msgpack.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("Failed to decode msgpack: %v", err)
	}
	rows, ok := decoded["rows"].([]any)
	if !ok || len(rows) != 2 {
		t.Errorf("Expected 2 rows, got %v", decoded["rows"])
	}
}

func TestQueryHandler_ExportCSV(t *testing.T) {
	env, fileID := queryEnv(t)

	c, rec := jsonRequest(env, http.MethodGet, "/?format=csv", "")
	c.SetParamNames("id")
	c.SetParamValues(fileID)
	if err := env.handlers.Query.HandleExport(c); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Expected CSV content type, got %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("Expected attachment disposition, got %q", cd)
	}

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 5 {
		t.Errorf("Expected header + 4 rows, got %d lines", len(lines))
	}
	if lines[0] != "name,age,city" {
		t.Errorf("Unexpected header: %q", lines[0])
	}
}

func TestQueryHandler_ExportJSON(t *testing.T) {
	env, fileID := queryEnv(t)

	c, rec := jsonRequest(env, http.MethodGet, "/?format=json", "")
	c.SetParamNames("id")
	c.SetParamValues(fileID)
	if err := env.handlers.Query.HandleExport(c); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var rows []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("Failed to decode export: %v", err)
	}
	if len(rows) != 4 {
		t.Errorf("Expected 4 rows, got %d", len(rows))
	}
}

func TestQueryHandler_ExportBadFormat(t *testing.T) {
	env, fileID := queryEnv(t)

	c, _ := jsonRequest(env, http.MethodGet, "/?format=xml", "")
	c.SetParamNames("id")
	c.SetParamValues(fileID)
	err := env.handlers.Query.HandleExport(c)
	if apiErr, ok := err.(*APIError); !ok || apiErr.Status != http.StatusBadRequest {
		t.Errorf("Expected 400, got %v", err)
	}
}
