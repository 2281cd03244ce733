// manager_test.go - Tests for async ingest jobs
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/data-intelligence/backend/internal/dataset"
	"github.com/data-intelligence/backend/internal/models"
)

type fakeLoader struct {
	err     error
	profile *dataset.Profile
	delay   time.Duration

	mu     sync.Mutex
	active int
	peak   int
}

func (f *fakeLoader) Load(ctx context.Context, fileID, path, format string) (*dataset.Profile, error) {
	f.mu.Lock()
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.active--
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

type fakeStore struct {
	mu    sync.Mutex
	files map[string]*models.FileInfo
}

func newFakeStore(ids ...string) *fakeStore {
	s := &fakeStore{files: make(map[string]*models.FileInfo)}
	for _, id := range ids {
		s.files[id] = &models.FileInfo{ID: id, Status: models.FileStatusUploaded}
	}
	return s
}

func (s *fakeStore) GetFilePath(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[id]; !ok {
		return "", fmt.Errorf("file not found: %s", id)
	}
	return "/tmp/" + id, nil
}

func (s *fakeStore) Update(id string, fn func(*models.FileInfo)) (*models.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fi, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", id)
	}
	fn(fi)
	snapshot := *fi
	return &snapshot, nil
}

func (s *fakeStore) status(id string) models.FileStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[id].Status
}

// waitForJob polls until the job reaches a terminal state.
func waitForJob(t *testing.T, m *Manager, id string) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := m.GetJob(id)
		if !ok {
			t.Fatalf("Job %s disappeared", id)
		}
		if job.Done() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Job %s did not finish in time", id)
	return Job{}
}

func TestManager_SuccessfulIngest(t *testing.T) {
	loader := &fakeLoader{profile: &dataset.Profile{
		RowCount:    4,
		ColumnCount: 3,
		Columns:     []models.ColumnInfo{{Name: "a", Type: "BIGINT"}},
	}}
	store := newFakeStore("file-1")
	m := NewManager(loader, store)

	started := m.StartJob("file-1", "data.csv", "csv")
	if started.Status != StatusPending {
		t.Errorf("Expected pending status at start, got %v", started.Status)
	}

	job := waitForJob(t, m, started.ID)
	if job.Status != StatusComplete {
		t.Fatalf("Expected complete, got %v (%s)", job.Status, job.Error)
	}
	if job.Progress != 100 {
		t.Errorf("Expected progress 100, got %v", job.Progress)
	}
	if job.RowCount != 4 || job.ColumnCount != 3 {
		t.Errorf("Expected profile on job, got %+v", job)
	}
	if job.CompletedAt == nil {
		t.Error("Expected CompletedAt to be set")
	}

	if store.status("file-1") != models.FileStatusReady {
		t.Errorf("Expected file status ready, got %v", store.status("file-1"))
	}
	if store.files["file-1"].RowCount != 4 {
		t.Errorf("Expected row count recorded on file, got %d", store.files["file-1"].RowCount)
	}
}

func TestManager_StartJobReturnsQueuedSnapshot(t *testing.T) {
	loader := &fakeLoader{
		profile: &dataset.Profile{},
		delay:   20 * time.Millisecond,
	}
	store := newFakeStore("file-1")
	m := NewManager(loader, store)

	// The returned value is copied before the worker goroutine starts,
	// so it must always be the queued state even while the worker is
	// already advancing the shared job.
	started := m.StartJob("file-1", "data.csv", "csv")
	if started.Status != StatusPending || started.Stage != "queued" {
		t.Errorf("Expected queued snapshot, got %v/%q", started.Status, started.Stage)
	}
	if started.Progress != 0 {
		t.Errorf("Expected zero progress in snapshot, got %v", started.Progress)
	}

	job := waitForJob(t, m, started.ID)
	if job.Status != StatusComplete {
		t.Fatalf("Expected complete, got %v (%s)", job.Status, job.Error)
	}
	// The snapshot is detached from the live job.
	if started.Status != StatusPending {
		t.Errorf("Snapshot mutated after completion: %v", started.Status)
	}
}

func TestManager_UnsupportedFormatIsMetadataOnly(t *testing.T) {
	loader := &fakeLoader{err: fmt.Errorf("%w: excel", dataset.ErrUnsupportedFormat)}
	store := newFakeStore("file-1")
	m := NewManager(loader, store)

	started := m.StartJob("file-1", "report.xlsx", "excel")
	job := waitForJob(t, m, started.ID)

	if job.Status != StatusComplete {
		t.Fatalf("Expected complete for metadata-only ingest, got %v (%s)", job.Status, job.Error)
	}
	if store.status("file-1") != models.FileStatusReady {
		t.Errorf("Expected file ready, got %v", store.status("file-1"))
	}
}

func TestManager_LoadErrorMarksFile(t *testing.T) {
	loader := &fakeLoader{err: errors.New("corrupt data")}
	store := newFakeStore("file-1")
	m := NewManager(loader, store)

	started := m.StartJob("file-1", "bad.csv", "csv")
	job := waitForJob(t, m, started.ID)

	if job.Status != StatusError {
		t.Fatalf("Expected error status, got %v", job.Status)
	}
	if job.Error == "" {
		t.Error("Expected error message on job")
	}
	if store.status("file-1") != models.FileStatusError {
		t.Errorf("Expected file status error, got %v", store.status("file-1"))
	}
}

func TestManager_MissingFileFailsJob(t *testing.T) {
	loader := &fakeLoader{profile: &dataset.Profile{}}
	store := newFakeStore()
	m := NewManager(loader, store)

	started := m.StartJob("ghost", "ghost.csv", "csv")
	job := waitForJob(t, m, started.ID)

	if job.Status != StatusError {
		t.Errorf("Expected error for missing file, got %v", job.Status)
	}
}

func TestManager_ConcurrencyCap(t *testing.T) {
	loader := &fakeLoader{
		profile: &dataset.Profile{},
		delay:   30 * time.Millisecond,
	}
	ids := []string{"f1", "f2", "f3", "f4", "f5", "f6"}
	store := newFakeStore(ids...)
	m := NewManager(loader, store)

	jobIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		job := m.StartJob(id, id+".csv", "csv")
		jobIDs = append(jobIDs, job.ID)
	}
	for _, id := range jobIDs {
		waitForJob(t, m, id)
	}

	loader.mu.Lock()
	peak := loader.peak
	loader.mu.Unlock()
	if peak > maxConcurrent {
		t.Errorf("Expected at most %d concurrent loads, saw %d", maxConcurrent, peak)
	}
}

func TestManager_GetJobByFile(t *testing.T) {
	loader := &fakeLoader{profile: &dataset.Profile{}}
	store := newFakeStore("file-1")
	m := NewManager(loader, store)

	started := m.StartJob("file-1", "data.csv", "csv")
	waitForJob(t, m, started.ID)

	job, ok := m.GetJobByFile("file-1")
	if !ok || job.ID != started.ID {
		t.Errorf("Expected to find job by file, got %v %v", job, ok)
	}

	if _, ok := m.GetJobByFile("other"); ok {
		t.Error("Expected no job for unknown file")
	}
}

func TestManager_CleanupOldJobs(t *testing.T) {
	loader := &fakeLoader{profile: &dataset.Profile{}}
	store := newFakeStore("file-1")
	m := NewManager(loader, store)

	started := m.StartJob("file-1", "data.csv", "csv")
	waitForJob(t, m, started.ID)

	// Push the completion time into the past.
	m.mu.Lock()
	past := time.Now().Add(-2 * time.Hour)
	m.jobs[started.ID].CompletedAt = &past
	m.mu.Unlock()

	m.CleanupOldJobs(time.Hour)
	if _, ok := m.GetJob(started.ID); ok {
		t.Error("Expected old job to be cleaned up")
	}
}
