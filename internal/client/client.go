// Package client is a Go client for the data intelligence backend:
// file upload with progress reporting, session management, chat
// (complete and streamed) and structured queries. All failures are
// returned as *Error with a user-presentable message.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/data-intelligence/backend/internal/dataset"
	"github.com/data-intelligence/backend/internal/models"
	"github.com/data-intelligence/backend/internal/query"
)

// Client talks to one backend instance.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// New creates a client for the given base URL (scheme://host[:port],
// no trailing slash required). Timeouts are controlled per call via
// context; the underlying http.Client has none so chat streams can
// stay open.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{},
	}
}

// NewWithHTTPClient creates a client using a caller-supplied
// http.Client, for tests and custom transports.
func NewWithHTTPClient(baseURL string, httpc *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpc: httpc}
}

// envelope mirrors the server's {data, message?, success} wrapper used
// by the session, chat and query endpoints.
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message,omitempty"`
	Success bool            `json:"success"`
}

// apiErrorBody mirrors the server's structured error response.
type apiErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// doJSON performs a request with an optional JSON body and decodes the
// raw response body into out (which may be nil).
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &Error{Kind: KindBadRequest, Message: err.Error(), cause: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return networkError(err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return networkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.responseError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindServer, Message: MsgServerError, Status: resp.StatusCode, cause: err}
	}
	return nil
}

// doEnveloped is doJSON for endpoints that wrap their payload in the
// {data, message, success} envelope.
func (c *Client) doEnveloped(ctx context.Context, method, path string, in, out any) error {
	var env envelope
	if err := c.doJSON(ctx, method, path, in, &env); err != nil {
		return err
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &Error{Kind: KindServer, Message: MsgServerError, cause: err}
	}
	return nil
}

// responseError turns a non-2xx response into a typed *Error. The body
// is read in full so the connection can be reused.
func (c *Client) responseError(resp *http.Response) *Error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		return &Error{Kind: KindTooLarge, Message: MsgFileTooLarge, Status: resp.StatusCode}
	}
	if resp.StatusCode >= 500 {
		return &Error{Kind: KindServer, Message: MsgServerError, Status: resp.StatusCode}
	}

	var body apiErrorBody
	msg := ""
	if json.Unmarshal(data, &body) == nil {
		msg = body.Message
		if body.Details != "" {
			msg = body.Details
		}
	}

	kind := KindBadRequest
	switch resp.StatusCode {
	case http.StatusNotFound:
		kind = KindNotFound
		if msg == "" {
			msg = "not found"
		}
	case http.StatusConflict:
		kind = KindConflict
		if msg == "" {
			msg = "conflict"
		}
	default:
		if msg == "" {
			msg = MsgInvalidFormat
		}
	}
	return &Error{Kind: kind, Message: msg, Status: resp.StatusCode}
}

// --- Files ---

// ListFiles fetches metadata for uploaded files, newest first.
func (c *Client) ListFiles(ctx context.Context) ([]models.FileInfo, error) {
	var out struct {
		Files []models.FileInfo `json:"files"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/files", nil, &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

// GetFile fetches metadata for one file.
func (c *Client) GetFile(ctx context.Context, fileID string) (*models.FileInfo, error) {
	var out models.FileInfo
	path := "/api/v1/files/" + url.PathEscape(fileID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteFile removes an uploaded file and its loaded dataset.
func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	path := "/api/v1/files/" + url.PathEscape(fileID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// IngestStatus fetches the ingest job state for a file.
func (c *Client) IngestStatus(ctx context.Context, fileID string) (map[string]any, error) {
	var out map[string]any
	path := "/api/v1/files/" + url.PathEscape(fileID) + "/ingest"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Export downloads a dataset in csv or json format, writing the raw
// payload to w. Returns the number of bytes written.
func (c *Client) Export(ctx context.Context, fileID, format string, w io.Writer) (int64, error) {
	path := fmt.Sprintf("/api/v1/files/%s/export?format=%s",
		url.PathEscape(fileID), url.QueryEscape(format))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, networkError(err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, networkError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, c.responseError(resp)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, networkError(err)
	}
	return n, nil
}

// --- Sessions ---

// CreateSession opens a new analysis session.
func (c *Client) CreateSession(ctx context.Context, name, description string) (*models.DataSession, error) {
	in := map[string]string{"name": name, "description": description}
	var out models.DataSession
	if err := c.doEnveloped(ctx, http.MethodPost, "/api/sessions", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSession fetches one session and refreshes its activity clock.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*models.DataSession, error) {
	var out models.DataSession
	path := "/api/sessions/" + url.PathEscape(sessionID)
	if err := c.doEnveloped(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSessions fetches all sessions, most recently active first.
func (c *Client) ListSessions(ctx context.Context) ([]models.DataSession, error) {
	var out struct {
		Sessions []models.DataSession `json:"sessions"`
	}
	if err := c.doEnveloped(ctx, http.MethodGet, "/api/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// UpdateSessionData shallow-merges keys into the session's client state.
func (c *Client) UpdateSessionData(ctx context.Context, sessionID string, data map[string]any) (*models.DataSession, error) {
	var out models.DataSession
	path := "/api/sessions/" + url.PathEscape(sessionID) + "/data"
	if err := c.doEnveloped(ctx, http.MethodPatch, path, data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AttachFile links an uploaded file to a session.
func (c *Client) AttachFile(ctx context.Context, sessionID, fileID string) (*models.DataSession, error) {
	in := map[string]string{"file_id": fileID}
	var out models.DataSession
	path := "/api/sessions/" + url.PathEscape(sessionID) + "/files"
	if err := c.doEnveloped(ctx, http.MethodPost, path, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SessionStats fetches the file summary for a session.
func (c *Client) SessionStats(ctx context.Context, sessionID string) (*models.SessionStats, error) {
	var out models.SessionStats
	path := "/api/sessions/" + url.PathEscape(sessionID) + "/stats"
	if err := c.doEnveloped(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CloseSession marks a session closed without deleting its history.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	path := "/api/sessions/" + url.PathEscape(sessionID) + "/close"
	return c.doEnveloped(ctx, http.MethodPost, path, nil, nil)
}

// DeleteSession removes a session entirely.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	path := "/api/sessions/" + url.PathEscape(sessionID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// KeepAlive refreshes the session's activity clock.
func (c *Client) KeepAlive(ctx context.Context, sessionID string) error {
	path := "/api/sessions/" + url.PathEscape(sessionID) + "/keepalive"
	return c.doJSON(ctx, http.MethodPost, path, nil, nil)
}

// --- Queries ---

// ExecuteQuery runs a structured query against a loaded dataset.
func (c *Client) ExecuteQuery(ctx context.Context, fileID string, q dataset.Query) (*dataset.Result, error) {
	in := struct {
		FileID string        `json:"file_id"`
		Query  dataset.Query `json:"query"`
	}{fileID, q}
	var out dataset.Result
	if err := c.doEnveloped(ctx, http.MethodPost, "/api/query/execute", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// NaturalLanguageQuery answers a free-form question against a dataset.
func (c *Client) NaturalLanguageQuery(ctx context.Context, fileID, question string) (*query.Response, error) {
	in := struct {
		FileID   string `json:"file_id"`
		Question string `json:"question"`
	}{fileID, question}
	var out query.Response
	if err := c.doEnveloped(ctx, http.MethodPost, "/api/query/natural-language", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
