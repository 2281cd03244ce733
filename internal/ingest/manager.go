// Package ingest runs async jobs that load uploaded files into the dataset
// engine and record the resulting profile on the file's metadata.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/data-intelligence/backend/internal/dataset"
	"github.com/data-intelligence/backend/internal/models"
)

// Status represents the ingest processing status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusLoading   Status = "loading"
	StatusProfiling Status = "profiling"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
)

// Job tracks one file's ingest from upload to queryable dataset.
type Job struct {
	ID          string     `json:"id"`
	FileID      string     `json:"file_id"`
	FileName    string     `json:"file_name"`
	Status      Status     `json:"status"`
	Stage       string     `json:"stage"`
	Progress    float64    `json:"progress"`
	RowCount    int64      `json:"row_count,omitempty"`
	ColumnCount int        `json:"column_count,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Done reports whether the job reached a terminal state.
func (j *Job) Done() bool {
	return j.Status == StatusComplete || j.Status == StatusError
}

// Loader loads a file into a queryable store. Satisfied by dataset.Engine.
type Loader interface {
	Load(ctx context.Context, fileID, path, format string) (*dataset.Profile, error)
}

// FileStore is the slice of the storage layer the manager needs.
type FileStore interface {
	GetFilePath(id string) (string, error)
	Update(id string, fn func(*models.FileInfo)) (*models.FileInfo, error)
}

// maxConcurrent bounds how many files load at once; DuckDB loads are
// memory-hungry.
const maxConcurrent = 3

// Manager handles async ingest jobs.
type Manager struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	loader Loader
	store  FileStore
	sem    chan struct{}
}

// NewManager creates an ingest manager.
func NewManager(loader Loader, store FileStore) *Manager {
	return &Manager{
		jobs:   make(map[string]*Job),
		loader: loader,
		store:  store,
		sem:    make(chan struct{}, maxConcurrent),
	}
}

// StartJob begins async ingest of an uploaded file and returns the job
// snapshot immediately.
func (m *Manager) StartJob(fileID, fileName, format string) Job {
	job := &Job{
		ID:        uuid.New().String(),
		FileID:    fileID,
		FileName:  fileName,
		Status:    StatusPending,
		Stage:     "queued",
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	// Snapshot before the worker goroutine starts mutating the job.
	snapshot := *job
	go m.processJob(job, format)

	return snapshot
}

// GetJob returns a snapshot of a job by ID.
func (m *Manager) GetJob(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// GetJobByFile returns the most recent job for a file.
func (m *Manager) GetJobByFile(fileID string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *Job
	for _, job := range m.jobs {
		if job.FileID != fileID {
			continue
		}
		if latest == nil || job.CreatedAt.After(latest.CreatedAt) {
			latest = job
		}
	}
	if latest == nil {
		return Job{}, false
	}
	return *latest, true
}

func (m *Manager) processJob(job *Job, format string) {
	m.sem <- struct{}{}
	defer func() { <-m.sem }()

	m.update(job, StatusLoading, "reading file", 10)

	path, err := m.store.GetFilePath(job.FileID)
	if err != nil {
		m.fail(job, fmt.Sprintf("locating file: %v", err))
		return
	}

	m.markStoreStatus(job.FileID, models.FileStatusLoading)
	m.update(job, StatusLoading, "loading data", 30)

	profile, err := m.loader.Load(context.Background(), job.FileID, path, format)
	if errors.Is(err, dataset.ErrUnsupportedFormat) {
		// Excel and plain-text uploads stay metadata-only but are still
		// usable for download and listing.
		m.markStoreStatus(job.FileID, models.FileStatusReady)
		m.complete(job, "complete (metadata only)")
		return
	}
	if err != nil {
		m.markStoreStatus(job.FileID, models.FileStatusError)
		m.fail(job, fmt.Sprintf("loading data: %v", err))
		return
	}

	m.update(job, StatusProfiling, "profiling columns", 80)

	m.mu.Lock()
	job.RowCount = profile.RowCount
	job.ColumnCount = profile.ColumnCount
	m.mu.Unlock()

	if _, err := m.store.Update(job.FileID, func(fi *models.FileInfo) {
		fi.Status = models.FileStatusReady
		fi.RowCount = profile.RowCount
		fi.ColumnCount = profile.ColumnCount
		fi.Columns = profile.Columns
	}); err != nil {
		m.fail(job, fmt.Sprintf("recording profile: %v", err))
		return
	}

	m.complete(job, "complete")
}

func (m *Manager) markStoreStatus(fileID string, status models.FileStatus) {
	m.store.Update(fileID, func(fi *models.FileInfo) { fi.Status = status })
}

// update advances job state; progress never moves backwards.
func (m *Manager) update(job *Job, status Status, stage string, progress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = status
	job.Stage = stage
	if progress > job.Progress {
		job.Progress = progress
	}
}

func (m *Manager) complete(job *Job, stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusComplete
	job.Stage = stage
	job.Progress = 100
	now := time.Now()
	job.CompletedAt = &now
}

func (m *Manager) fail(job *Job, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusError
	job.Stage = "error"
	job.Error = errMsg
	now := time.Now()
	job.CompletedAt = &now
}

// CleanupOldJobs removes terminal jobs older than maxAge.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for id, job := range m.jobs {
		if job.Done() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
		}
	}
}
