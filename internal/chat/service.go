// Package chat answers session-scoped questions about uploaded data. Each
// message runs through the natural-language query pipeline against the
// session's active dataset and the exchange is recorded on the session.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/data-intelligence/backend/internal/dataset"
	"github.com/data-intelligence/backend/internal/models"
	"github.com/data-intelligence/backend/internal/query"
	"github.com/data-intelligence/backend/internal/session"
)

// ErrSessionNotFound is returned for messages sent to unknown sessions.
var ErrSessionNotFound = errors.New("chat: session not found")

// ErrNoDataset is returned when a session has no queryable file attached.
var ErrNoDataset = errors.New("chat: no queryable dataset in session")

// Datasets resolves loaded dataset stores. Satisfied by dataset.Engine.
type Datasets interface {
	Get(fileID string) (*dataset.Store, bool)
}

// Service answers chat messages against session datasets.
type Service struct {
	sessions  *session.Manager
	datasets  Datasets
	processor *query.Processor
}

// NewService creates a chat service.
func NewService(sessions *session.Manager, datasets Datasets) *Service {
	return &Service{
		sessions:  sessions,
		datasets:  datasets,
		processor: query.NewProcessor(),
	}
}

// Reply is the full answer to one chat message.
type Reply struct {
	Answer   string          `json:"answer"`
	Intent   query.Intent    `json:"intent"`
	Result   *dataset.Result `json:"result,omitempty"`
	FileID   string          `json:"file_id,omitempty"`
	Messages int             `json:"message_count"`
}

// Send processes one user message in a session. fileID may be empty, in
// which case the most recently attached queryable file is used.
func (s *Service) Send(ctx context.Context, sessionID, fileID, message string) (*Reply, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.sessions.Touch(sessionID)
	s.sessions.AppendMessage(sessionID, models.ChatMessage{Role: "user", Content: message})

	store, resolvedID, err := s.resolveDataset(sess, fileID)
	if err != nil {
		answer := "I can't answer that yet: upload a CSV, JSON or Parquet file to this session first."
		s.sessions.AppendMessage(sessionID, models.ChatMessage{Role: "assistant", Content: answer})
		return nil, err
	}

	resp, err := s.processor.Process(ctx, store, message)
	if err != nil {
		answer := fmt.Sprintf("I couldn't run that query: %v", err)
		s.sessions.AppendMessage(sessionID, models.ChatMessage{Role: "assistant", Content: answer})
		return nil, fmt.Errorf("processing message: %w", err)
	}

	answer := composeAnswer(resp)
	s.sessions.AppendMessage(sessionID, models.ChatMessage{Role: "assistant", Content: answer})

	updated, _ := s.sessions.Get(sessionID)
	reply := &Reply{
		Answer: answer,
		Intent: resp.Intent,
		Result: resp.Result,
		FileID: resolvedID,
	}
	if updated != nil {
		reply.Messages = updated.MessageCount
	}
	return reply, nil
}

// Stream processes one message and delivers the answer as a sequence of
// chunk events followed by a terminal complete or error event. The channel
// is closed after the terminal event.
func (s *Service) Stream(ctx context.Context, sessionID, fileID, message string) <-chan models.StreamEvent {
	out := make(chan models.StreamEvent, 16)

	go func() {
		defer close(out)

		reply, err := s.Send(ctx, sessionID, fileID, message)
		if err != nil {
			emit(ctx, out, models.StreamEvent{Type: models.StreamError, Content: err.Error()})
			return
		}

		for _, chunk := range splitChunks(reply.Answer, 48) {
			if !emit(ctx, out, models.StreamEvent{Type: models.StreamChunk, Content: chunk}) {
				return
			}
		}
		emit(ctx, out, models.StreamEvent{Type: models.StreamComplete})
	}()

	return out
}

func emit(ctx context.Context, out chan<- models.StreamEvent, ev models.StreamEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// resolveDataset picks the dataset a message should run against: the named
// file when given, otherwise the newest attached file with a loaded store.
func (s *Service) resolveDataset(sess *models.DataSession, fileID string) (*dataset.Store, string, error) {
	if fileID != "" {
		store, ok := s.datasets.Get(fileID)
		if !ok {
			return nil, "", fmt.Errorf("%w: %s", dataset.ErrNotLoaded, fileID)
		}
		return store, fileID, nil
	}

	for i := len(sess.FileIDs) - 1; i >= 0; i-- {
		if store, ok := s.datasets.Get(sess.FileIDs[i]); ok {
			return store, sess.FileIDs[i], nil
		}
	}
	return nil, "", ErrNoDataset
}

// composeAnswer turns a query response into the assistant's prose answer.
func composeAnswer(resp *query.Response) string {
	var sb strings.Builder
	sb.WriteString(resp.Explanation)

	switch {
	case resp.Summary != nil:
		fmt.Fprintf(&sb, " The dataset has %d rows and %d columns.",
			resp.Summary.RowCount, resp.Summary.ColumnCount)
	case resp.Result != nil:
		if len(resp.Result.Rows) == 0 {
			sb.WriteString(" No rows matched.")
		} else {
			fmt.Fprintf(&sb, " Returned %d rows.", len(resp.Result.Rows))
		}
	}
	return sb.String()
}

// splitChunks breaks text into word-aligned chunks of at most max runes.
func splitChunks(text string, max int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	var current strings.Builder
	for _, w := range words {
		if current.Len() > 0 && current.Len()+1+len(w) > max {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(w)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
