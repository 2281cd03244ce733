package models

import "time"

// ChatMessage is one turn in a session's conversation.
type ChatMessage struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream event types for chat responses.
const (
	StreamChunk    = "chunk"
	StreamComplete = "complete"
	StreamError    = "error"
)

// StreamEvent is one server-push event of a streamed chat response.
type StreamEvent struct {
	Type    string `json:"type"` // chunk, complete, error
	Content string `json:"content,omitempty"`
}
