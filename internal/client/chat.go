// chat.go - Chat message and stream consumption
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/data-intelligence/backend/internal/dataset"
	"github.com/data-intelligence/backend/internal/models"
)

// ChatReply is the complete (non-streamed) response to a chat message.
type ChatReply struct {
	Answer   string          `json:"answer"`
	Intent   string          `json:"intent"`
	Result   *dataset.Result `json:"result,omitempty"`
	FileID   string          `json:"file_id,omitempty"`
	Messages int             `json:"message_count"`
}

type chatRequest struct {
	Message string `json:"message"`
	FileID  string `json:"file_id,omitempty"`
}

// SendMessage sends one chat message and waits for the full answer.
// fileID may be empty to let the server pick the session's most recent
// queryable file.
func (c *Client) SendMessage(ctx context.Context, sessionID, fileID, message string) (*ChatReply, error) {
	var out ChatReply
	path := "/api/sessions/" + url.PathEscape(sessionID) + "/chat"
	if err := c.doEnveloped(ctx, http.MethodPost, path, chatRequest{message, fileID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatHistory fetches the session's conversation in order.
func (c *Client) ChatHistory(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	var out struct {
		Messages []models.ChatMessage `json:"messages"`
	}
	path := "/api/sessions/" + url.PathEscape(sessionID) + "/chat/history"
	if err := c.doEnveloped(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// StreamMessage sends a chat message and returns a channel of server
// events: zero or more chunk events followed by exactly one complete or
// error event. The channel is closed after the terminal event, or when
// ctx is cancelled.
func (c *Client) StreamMessage(ctx context.Context, sessionID, fileID, message string) (<-chan models.StreamEvent, error) {
	data, err := json.Marshal(chatRequest{message, fileID})
	if err != nil {
		return nil, networkError(err)
	}

	path := "/api/sessions/" + url.PathEscape(sessionID) + "/chat/stream"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(string(data)))
	if err != nil {
		return nil, networkError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, networkError(err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, c.responseError(resp)
	}

	events := make(chan models.StreamEvent, 8)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var ev models.StreamEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
			if ev.Type == models.StreamComplete || ev.Type == models.StreamError {
				return
			}
		}
	}()
	return events, nil
}
