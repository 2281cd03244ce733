package models

import "time"

// SessionStatus represents the lifecycle state of a data session.
type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "active"
	SessionStatusClosed  SessionStatus = "closed"
	SessionStatusExpired SessionStatus = "expired"
)

// DataSession represents one analysis session: a named workspace holding
// attached files, arbitrary client state and a conversation history.
type DataSession struct {
	ID           string         `json:"session_id"`
	Name         string         `json:"name,omitempty"`
	Description  string         `json:"description,omitempty"`
	Status       SessionStatus  `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
	FileIDs      []string       `json:"file_ids,omitempty"`
	Data         map[string]any `json:"session_data,omitempty"`
	MessageCount int            `json:"message_count"`
}

// SessionStats summarizes the files attached to a session.
type SessionStats struct {
	SessionID    string         `json:"session_id"`
	TotalFiles   int            `json:"total_files"`
	TotalSize    int64          `json:"total_size"`
	FileTypes    map[string]int `json:"file_types"`
	MessageCount int            `json:"message_count"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
}
