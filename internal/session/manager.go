// Package session manages data analysis sessions: their metadata, attached
// files, arbitrary session data and the conversation history behind chat.
package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/data-intelligence/backend/internal/models"
)

// MaxSessions limits concurrent sessions to prevent memory exhaustion.
const MaxSessions = 100

// KeepAliveWindow is how long a recently touched session is protected from
// cleanup regardless of age.
const KeepAliveWindow = 5 * time.Minute

// state holds one session plus its conversation history.
type state struct {
	session  *models.DataSession
	messages []models.ChatMessage
}

// Manager handles active analysis sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*state
}

// NewManager creates a session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*state)}
}

// Create starts a new session. When at capacity the oldest closed or
// expired sessions are evicted first; if every session is active the
// creation fails.
func (m *Manager) Create(name, description string) (*models.DataSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= MaxSessions {
		m.evictInactiveLocked(len(m.sessions) - MaxSessions + 1)
		if len(m.sessions) >= MaxSessions {
			return nil, fmt.Errorf("session limit reached (%d active sessions)", MaxSessions)
		}
	}

	now := time.Now()
	sess := &models.DataSession{
		ID:           uuid.New().String(),
		Name:         name,
		Description:  description,
		Status:       models.SessionStatusActive,
		CreatedAt:    now,
		LastActivity: now,
		FileIDs:      []string{},
		Data:         map[string]any{},
	}
	m.sessions[sess.ID] = &state{session: sess}

	return cloneSession(sess), nil
}

// Get returns a session by ID.
func (m *Manager) Get(id string) (*models.DataSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return cloneSession(st.session), true
}

// List returns every session, most recently active first.
func (m *Manager) List() []*models.DataSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.DataSession, 0, len(m.sessions))
	for _, st := range m.sessions {
		out = append(out, cloneSession(st.session))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// Touch updates the session's LastActivity timestamp.
func (m *Manager) Touch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.sessions[id]
	if !ok {
		return false
	}
	st.session.LastActivity = time.Now()
	return true
}

// UpdateData shallow-merges the given keys into the session's data map.
// Existing keys not named in update are preserved.
func (m *Manager) UpdateData(id string, update map[string]any) (*models.DataSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	for k, v := range update {
		st.session.Data[k] = v
	}
	st.session.LastActivity = time.Now()
	return cloneSession(st.session), true
}

// AttachFile records a file ID on the session. Duplicate attaches are no-ops.
func (m *Manager) AttachFile(id, fileID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.sessions[id]
	if !ok {
		return false
	}
	for _, existing := range st.session.FileIDs {
		if existing == fileID {
			return true
		}
	}
	st.session.FileIDs = append(st.session.FileIDs, fileID)
	st.session.LastActivity = time.Now()
	return true
}

// Close marks a session closed. Closed sessions keep their history but
// become eligible for cleanup.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.sessions[id]
	if !ok {
		return false
	}
	st.session.Status = models.SessionStatusClosed
	return true
}

// Delete removes a session entirely.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// AppendMessage adds one conversation turn to a session's history.
func (m *Manager) AppendMessage(id string, msg models.ChatMessage) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.sessions[id]
	if !ok {
		return false
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	st.messages = append(st.messages, msg)
	st.session.MessageCount = len(st.messages)
	st.session.LastActivity = time.Now()
	return true
}

// History returns a session's conversation, oldest first.
func (m *Manager) History(id string) ([]models.ChatMessage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return append([]models.ChatMessage(nil), st.messages...), true
}

// Stats summarizes a session and the files attached to it. The caller
// supplies the file metadata since files live in the storage layer.
func (m *Manager) Stats(id string, files []*models.FileInfo) (*models.SessionStats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.sessions[id]
	if !ok {
		return nil, false
	}

	stats := &models.SessionStats{
		SessionID:    id,
		FileTypes:    make(map[string]int),
		MessageCount: len(st.messages),
		CreatedAt:    st.session.CreatedAt,
		LastActivity: st.session.LastActivity,
	}
	for _, f := range files {
		stats.TotalFiles++
		stats.TotalSize += f.Size
		stats.FileTypes[f.Format]++
	}
	return stats, true
}

// CleanupOldSessions expires and removes sessions idle longer than maxAge.
// Sessions touched within KeepAliveWindow are always kept.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	keepAlive := time.Now().Add(-KeepAliveWindow)

	removed := 0
	for id, st := range m.sessions {
		if st.session.LastActivity.After(keepAlive) {
			continue
		}
		if st.session.LastActivity.Before(cutoff) {
			delete(m.sessions, id)
			removed++
			continue
		}
		// Idle active sessions flip to expired before eventual removal.
		if st.session.Status == models.SessionStatusActive &&
			st.session.LastActivity.Before(keepAlive) {
			st.session.Status = models.SessionStatusExpired
		}
	}
	return removed
}

// evictInactiveLocked removes up to n closed/expired sessions, oldest first.
func (m *Manager) evictInactiveLocked(n int) {
	type candidate struct {
		id   string
		last time.Time
	}
	var candidates []candidate
	for id, st := range m.sessions {
		if st.session.Status != models.SessionStatusActive {
			candidates = append(candidates, candidate{id, st.session.LastActivity})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].last.Before(candidates[j].last)
	})
	for i := 0; i < len(candidates) && i < n; i++ {
		delete(m.sessions, candidates[i].id)
	}
}

func cloneSession(s *models.DataSession) *models.DataSession {
	out := *s
	out.FileIDs = append([]string(nil), s.FileIDs...)
	out.Data = make(map[string]any, len(s.Data))
	for k, v := range s.Data {
		out.Data[k] = v
	}
	return &out
}
