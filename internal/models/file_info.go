package models

import (
	"path/filepath"
	"strings"
	"time"
)

// FileStatus tracks a file through its server-side lifecycle.
type FileStatus string

const (
	FileStatusUploaded FileStatus = "uploaded" // bytes on disk, not yet loaded
	FileStatusLoading  FileStatus = "loading"  // ingest job in progress
	FileStatusReady    FileStatus = "ready"    // queryable through the dataset engine
	FileStatusError    FileStatus = "error"    // ingest failed
)

// FileInfo represents metadata about an uploaded data file.
type FileInfo struct {
	ID           string       `json:"file_id"`
	Filename     string       `json:"filename"`
	OriginalName string       `json:"original_filename,omitempty"`
	Size         int64        `json:"size"`
	ContentType  string       `json:"content_type,omitempty"`
	Format       string       `json:"file_type,omitempty"` // csv, excel, json, parquet, text
	UploadedAt   time.Time    `json:"uploaded_at"`
	Status       FileStatus   `json:"status"`
	RowCount     int64        `json:"row_count,omitempty"`
	ColumnCount  int          `json:"column_count,omitempty"`
	Columns      []ColumnInfo `json:"columns,omitempty"`
	Warnings     []string     `json:"warnings,omitempty"`
	SessionID    string       `json:"session_id,omitempty"`
}

// ColumnInfo describes one column of a tabular dataset.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// FormatForName maps a filename extension to the dataset format handled by
// the engine. Unknown extensions map to "unknown".
func FormatForName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return "csv"
	case ".xlsx", ".xls":
		return "excel"
	case ".json":
		return "json"
	case ".parquet":
		return "parquet"
	case ".txt":
		return "text"
	default:
		return "unknown"
	}
}
