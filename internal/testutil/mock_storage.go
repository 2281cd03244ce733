// Package testutil provides shared test doubles.
package testutil

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/data-intelligence/backend/internal/models"
)

// MockStorage is an in-memory storage.Store for handler tests. Content is
// kept in a map instead of on disk; GetFilePath returns a synthetic path.
type MockStorage struct {
	mu      sync.RWMutex
	files   map[string]*models.FileInfo
	content map[string][]byte

	// SaveErr, when set, makes every Save fail.
	SaveErr error
}

// NewMockStorage creates an empty mock store.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		files:   make(map[string]*models.FileInfo),
		content: make(map[string][]byte),
	}
}

func (m *MockStorage) Save(name, contentType string, r io.Reader) (*models.FileInfo, error) {
	if m.SaveErr != nil {
		return nil, m.SaveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	info := &models.FileInfo{
		ID:           id,
		Filename:     id,
		OriginalName: name,
		Size:         int64(len(data)),
		ContentType:  contentType,
		Format:       models.FormatForName(name),
		UploadedAt:   time.Now(),
		Status:       models.FileStatusUploaded,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[id] = info
	m.content[id] = data

	cp := *info
	return &cp, nil
}

func (m *MockStorage) SaveBytes(name, contentType string, data []byte) (*models.FileInfo, error) {
	return m.Save(name, contentType, bytes.NewReader(data))
}

func (m *MockStorage) Get(id string) (*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.files[id]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", id)
	}
	cp := *info
	return &cp, nil
}

func (m *MockStorage) List(limit int) ([]*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var list []*models.FileInfo
	for _, info := range m.files {
		cp := *info
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].UploadedAt.After(list[j].UploadedAt)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *MockStorage) ListBySession(sessionID string) ([]*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var list []*models.FileInfo
	for _, info := range m.files {
		if info.SessionID == sessionID {
			cp := *info
			list = append(list, &cp)
		}
	}
	return list, nil
}

func (m *MockStorage) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[id]; !ok {
		return fmt.Errorf("file not found: %s", id)
	}
	delete(m.files, id)
	delete(m.content, id)
	return nil
}

func (m *MockStorage) GetFilePath(id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.files[id]; !ok {
		return "", fmt.Errorf("file not found: %s", id)
	}
	return "/mock/" + id, nil
}

func (m *MockStorage) Update(id string, fn func(*models.FileInfo)) (*models.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.files[id]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", id)
	}
	fn(info)
	cp := *info
	return &cp, nil
}

// Content returns the stored bytes for a file.
func (m *MockStorage) Content(id string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.content[id]
	return data, ok
}
