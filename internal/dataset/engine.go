// Package dataset loads uploaded data files into per-file DuckDB stores and
// executes preview, profiling and structured queries against them. Files
// larger than RAM stay queryable because DuckDB spills to its database file.
package dataset

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/marcboeker/go-duckdb"

	"github.com/data-intelligence/backend/internal/models"
)

// ErrUnsupportedFormat is returned for formats the engine cannot load
// (Excel and plain text uploads are metadata-only).
var ErrUnsupportedFormat = errors.New("dataset: unsupported format")

// ErrNotLoaded is returned when querying a file that has no loaded store.
var ErrNotLoaded = errors.New("dataset: file not loaded")

// Engine manages one DuckDB-backed store per uploaded file.
type Engine struct {
	mu      sync.RWMutex
	tempDir string
	stores  map[string]*Store
}

// NewEngine creates a dataset engine keeping its database files in tempDir.
func NewEngine(tempDir string) (*Engine, error) {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("creating dataset temp directory: %w", err)
	}
	return &Engine{
		tempDir: tempDir,
		stores:  make(map[string]*Store),
	}, nil
}

// Load ingests the file at path into a new store for fileID and returns the
// resulting profile. An existing store for the same file is replaced.
func (e *Engine) Load(ctx context.Context, fileID, path, format string) (*Profile, error) {
	store, err := newStore(e.tempDir, fileID)
	if err != nil {
		return nil, err
	}

	if err := store.load(ctx, path, format); err != nil {
		store.Close()
		return nil, err
	}

	e.mu.Lock()
	if old, ok := e.stores[fileID]; ok {
		old.Close()
	}
	e.stores[fileID] = store
	e.mu.Unlock()

	return store.Profile(), nil
}

// Get returns the store for a loaded file.
func (e *Engine) Get(fileID string) (*Store, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	store, ok := e.stores[fileID]
	return store, ok
}

// Remove closes and discards the store for a file, if any.
func (e *Engine) Remove(fileID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if store, ok := e.stores[fileID]; ok {
		store.Close()
		delete(e.stores, fileID)
	}
}

// Close shuts down every store.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, store := range e.stores {
		store.Close()
		delete(e.stores, id)
	}
}

// Store holds one file's data as a DuckDB table named "dataset".
type Store struct {
	db       *sql.DB
	dbPath   string
	columns  []models.ColumnInfo
	rowCount int64
}

// Profile is the schema-level result of loading a file.
type Profile struct {
	RowCount    int64
	ColumnCount int
	Columns     []models.ColumnInfo
}

func newStore(tempDir, fileID string) (*Store, error) {
	dbPath := filepath.Join(tempDir, fmt.Sprintf("dataset_%s.duckdb", fileID))

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='1GB'",
			"PRAGMA threads=4",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating DuckDB connector: %w", err)
	}

	return &Store{
		db:     sql.OpenDB(connector),
		dbPath: dbPath,
	}, nil
}

// load materializes the source file into the dataset table and profiles it.
func (s *Store) load(ctx context.Context, path, format string) error {
	var reader string
	switch format {
	case "csv":
		reader = "read_csv_auto"
	case "json":
		reader = "read_json_auto"
	case "parquet":
		reader = "read_parquet"
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	stmt := fmt.Sprintf("CREATE OR REPLACE TABLE dataset AS SELECT * FROM %s(%s)",
		reader, quoteString(path))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("loading %s data: %w", format, err)
	}

	return s.profile(ctx)
}

func (s *Store) profile(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT column_name, column_type FROM (DESCRIBE dataset)")
	if err != nil {
		return fmt.Errorf("describing dataset: %w", err)
	}
	defer rows.Close()

	s.columns = s.columns[:0]
	for rows.Next() {
		var col models.ColumnInfo
		if err := rows.Scan(&col.Name, &col.Type); err != nil {
			return fmt.Errorf("scanning column info: %w", err)
		}
		s.columns = append(s.columns, col)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dataset").Scan(&s.rowCount); err != nil {
		return fmt.Errorf("counting rows: %w", err)
	}
	return nil
}

// Profile returns the store's schema snapshot.
func (s *Store) Profile() *Profile {
	return &Profile{
		RowCount:    s.rowCount,
		ColumnCount: len(s.columns),
		Columns:     append([]models.ColumnInfo(nil), s.columns...),
	}
}

// Columns returns the ordered column list.
func (s *Store) Columns() []models.ColumnInfo {
	return append([]models.ColumnInfo(nil), s.columns...)
}

// HasColumn reports whether the dataset has the named column.
func (s *Store) HasColumn(name string) bool {
	for _, c := range s.columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Preview returns the first n rows.
func (s *Store) Preview(ctx context.Context, n int) (*Result, error) {
	if n <= 0 {
		n = 100
	}
	return s.Select(ctx, Query{Limit: n})
}

// Summary profiles every column using DuckDB's SUMMARIZE.
func (s *Store) Summary(ctx context.Context) (*Summary, error) {
	rows, err := s.db.QueryContext(ctx, "SUMMARIZE dataset")
	if err != nil {
		return nil, fmt.Errorf("summarizing dataset: %w", err)
	}
	defer rows.Close()

	stats, err := rowsToMaps(rows)
	if err != nil {
		return nil, err
	}

	return &Summary{
		RowCount:    s.rowCount,
		ColumnCount: len(s.columns),
		Columns:     s.Columns(),
		Stats:       stats,
	}, nil
}

// Close releases the database and removes its backing file.
func (s *Store) Close() error {
	var err error
	if s.db != nil {
		err = s.db.Close()
	}
	if s.dbPath != "" {
		os.Remove(s.dbPath)
		os.Remove(s.dbPath + ".wal")
	}
	return err
}

// quoteString escapes a string for embedding as a SQL literal. Table
// functions like read_csv_auto cannot take bind parameters.
func quoteString(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// quoteIdent escapes a column identifier.
func quoteIdent(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}
