// handlers_chat_test.go - Tests for chat handlers
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/data-intelligence/backend/internal/chat"
	"github.com/data-intelligence/backend/internal/models"
)

// chatEnv uploads a CSV, waits for ingest and attaches it to a session.
func chatEnv(t *testing.T) (*testEnv, string) {
	t.Helper()
	env := newTestEnv(t)

	c, rec := env.uploadRequest(t, "data.csv", "text/csv", []byte(testCSV), nil)
	if err := env.handlers.Files.HandleUploadFile(c); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	var resp uploadResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	env.waitForIngest(t, resp.FileID)

	sess, _ := env.sessionMgr.Create("analysis", "")
	env.sessionMgr.AttachFile(sess.ID, resp.FileID)
	return env, sess.ID
}

func TestChatHandler_SendMessage(t *testing.T) {
	env, sessionID := chatEnv(t)

	c, rec := jsonRequest(env, http.MethodPost, "/",
		`{"message":"show me rows where age is greater than 30"}`)
	c.SetParamNames("id")
	c.SetParamValues(sessionID)
	if err := env.handlers.Chat.HandleSendMessage(c); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var reply chat.Reply
	decodeEnvelope(t, rec, &reply)
	if reply.Result == nil || len(reply.Result.Rows) != 2 {
		t.Errorf("Expected 2 rows, got %+v", reply.Result)
	}
	if !strings.Contains(reply.Answer, "Returned 2 rows") {
		t.Errorf("Unexpected answer: %q", reply.Answer)
	}
}

func TestChatHandler_SendMessageValidation(t *testing.T) {
	env, sessionID := chatEnv(t)

	c, _ := jsonRequest(env, http.MethodPost, "/", `{"message":""}`)
	c.SetParamNames("id")
	c.SetParamValues(sessionID)
	err := env.handlers.Chat.HandleSendMessage(c)
	if apiErr, ok := err.(*APIError); !ok || apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Expected validation error, got %v", err)
	}

	c, _ = jsonRequest(env, http.MethodPost, "/", `{"message":"hi"}`)
	c.SetParamNames("id")
	c.SetParamValues("missing")
	err = env.handlers.Chat.HandleSendMessage(c)
	if apiErr, ok := err.(*APIError); !ok || apiErr.Status != http.StatusNotFound {
		t.Errorf("Expected 404, got %v", err)
	}
}

func TestChatHandler_SendMessageNoDataset(t *testing.T) {
	env, _ := chatEnv(t)
	empty, _ := env.sessionMgr.Create("empty", "")

	c, _ := jsonRequest(env, http.MethodPost, "/", `{"message":"hi"}`)
	c.SetParamNames("id")
	c.SetParamValues(empty.ID)
	err := env.handlers.Chat.HandleSendMessage(c)
	if apiErr, ok := err.(*APIError); !ok || apiErr.Status != http.StatusConflict {
		t.Errorf("Expected 409, got %v", err)
	}
}

func TestChatHandler_StreamMessage(t *testing.T) {
	env, sessionID := chatEnv(t)

	c, rec := jsonRequest(env, http.MethodPost, "/",
		`{"message":"show me rows where age is greater than 30"}`)
	c.SetParamNames("id")
	c.SetParamValues(sessionID)
	if err := env.handlers.Chat.HandleStreamMessage(c); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected SSE content type, got %q", ct)
	}

	// Parse SSE frames back into events.
	var events []models.StreamEvent
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev models.StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("Bad SSE frame %q: %v", line, err)
		}
		events = append(events, ev)
	}

	if len(events) < 2 {
		t.Fatalf("Expected chunks plus terminal event, got %v", events)
	}
	if events[len(events)-1].Type != models.StreamComplete {
		t.Errorf("Expected complete terminal event, got %+v", events[len(events)-1])
	}
}

func TestChatHandler_History(t *testing.T) {
	env, sessionID := chatEnv(t)

	c, _ := jsonRequest(env, http.MethodPost, "/", `{"message":"how many people per city"}`)
	c.SetParamNames("id")
	c.SetParamValues(sessionID)
	env.handlers.Chat.HandleSendMessage(c)

	c, rec := jsonRequest(env, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(sessionID)
	if err := env.handlers.Chat.HandleHistory(c); err != nil {
		t.Fatalf("History failed: %v", err)
	}

	var data struct {
		Messages []models.ChatMessage `json:"messages"`
	}
	decodeEnvelope(t, rec, &data)
	if len(data.Messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(data.Messages))
	}
	if data.Messages[0].Role != "user" || data.Messages[1].Role != "assistant" {
		t.Errorf("Unexpected roles: %+v", data.Messages)
	}
}
