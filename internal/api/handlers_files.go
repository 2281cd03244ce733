// handlers_files.go - File upload, validation and dataset metadata handlers
package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/data-intelligence/backend/internal/dataset"
	"github.com/data-intelligence/backend/internal/ingest"
	"github.com/data-intelligence/backend/internal/models"
	"github.com/data-intelligence/backend/internal/query"
	"github.com/data-intelligence/backend/internal/session"
	"github.com/data-intelligence/backend/internal/storage"
	"github.com/data-intelligence/backend/internal/validation"
)

// FileHandlerImpl implements the FileHandler interface
type FileHandlerImpl struct {
	validator  *validation.Service
	store      storage.Store
	ingestMgr  *ingest.Manager
	engine     *dataset.Engine
	sessionMgr *session.Manager
}

// NewFileHandler creates a new file handler instance
func NewFileHandler(validator *validation.Service, store storage.Store, ingestMgr *ingest.Manager, engine *dataset.Engine, sessionMgr *session.Manager) FileHandler {
	return &FileHandlerImpl{
		validator:  validator,
		store:      store,
		ingestMgr:  ingestMgr,
		engine:     engine,
		sessionMgr: sessionMgr,
	}
}

// uploadResponse is the per-file result of an upload.
type uploadResponse struct {
	FileID      string   `json:"file_id"`
	Filename    string   `json:"filename"`
	Size        int64    `json:"size"`
	ContentType string   `json:"content_type"`
	Message     string   `json:"message"`
	Warnings    []string `json:"warnings,omitempty"`
	JobID       string   `json:"job_id,omitempty"`
}

// HandleUploadFile accepts one multipart file, validates it and starts
// async ingest into the dataset engine
func (h *FileHandlerImpl) HandleUploadFile(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}

	resp, apiErr := h.acceptFile(c, fh)
	if apiErr != nil {
		return apiErr
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleUploadMultiple accepts several files under the "files" form field.
// Each file is validated independently; valid files are stored even when
// others in the batch are rejected
func (h *FileHandlerImpl) HandleUploadMultiple(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("invalid multipart form", err)
	}
	files := form.File["files"]
	if len(files) == 0 {
		return NewBadRequestError("no files provided", nil)
	}

	type batchEntry struct {
		Filename string          `json:"filename"`
		Accepted bool            `json:"accepted"`
		Errors   []string        `json:"errors,omitempty"`
		Upload   *uploadResponse `json:"upload,omitempty"`
	}

	results := make([]batchEntry, 0, len(files))
	for _, fh := range files {
		resp, apiErr := h.acceptFile(c, fh)
		if apiErr != nil {
			errs := []string{apiErr.Message}
			if apiErr.Details != "" {
				errs = append(errs, apiErr.Details)
			}
			results = append(results, batchEntry{
				Filename: fh.Filename,
				Accepted: false,
				Errors:   errs,
			})
			continue
		}
		results = append(results, batchEntry{
			Filename: fh.Filename,
			Accepted: true,
			Upload:   resp,
		})
	}

	accepted := 0
	for _, r := range results {
		if r.Accepted {
			accepted++
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Processed %d files, %d accepted", len(results), accepted),
		"files":   results,
	})
}

// acceptFile validates, stores and queues one multipart file.
func (h *FileHandlerImpl) acceptFile(c echo.Context, fh *multipart.FileHeader) (*uploadResponse, *APIError) {
	contentType := fh.Header.Get("Content-Type")
	cfg := h.validator.Config()

	// Oversize uploads get a dedicated status so clients can show a
	// precise message without parsing validation output.
	if fh.Size > cfg.MaxFileSize {
		return nil, NewPayloadTooLargeError(fmt.Sprintf(
			"File is too large (%s). Maximum allowed size is %s",
			validation.FormatBytes(fh.Size), validation.FormatBytes(cfg.MaxFileSize)))
	}

	verdict := h.validator.Validate(validation.Candidate{
		Name:         fh.Filename,
		DeclaredType: contentType,
		Size:         fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	})
	if !verdict.Accepted {
		return nil, NewFileRejectedError(verdict.Errors)
	}

	src, err := fh.Open()
	if err != nil {
		return nil, NewInternalError("failed to read uploaded file", err)
	}
	defer src.Close()

	info, err := h.store.Save(fh.Filename, contentType, src)
	if err != nil {
		return nil, NewInternalError("failed to save file", err)
	}

	if len(verdict.Warnings) > 0 {
		h.store.Update(info.ID, func(fi *models.FileInfo) {
			fi.Warnings = append([]string(nil), verdict.Warnings...)
		})
	}

	if sessionID := c.FormValue("session_id"); sessionID != "" {
		if !h.sessionMgr.AttachFile(sessionID, info.ID) {
			return nil, NewNotFoundError("session", sessionID)
		}
		h.store.Update(info.ID, func(fi *models.FileInfo) { fi.SessionID = sessionID })
	}

	job := h.ingestMgr.StartJob(info.ID, info.OriginalName, info.Format)

	return &uploadResponse{
		FileID:      info.ID,
		Filename:    info.OriginalName,
		Size:        info.Size,
		ContentType: info.ContentType,
		Message:     "File uploaded successfully",
		Warnings:    verdict.Warnings,
		JobID:       job.ID,
	}, nil
}

// HandleListFiles returns uploaded files, newest first. An optional
// session_id query narrows to one session's files
func (h *FileHandlerImpl) HandleListFiles(c echo.Context) error {
	var (
		files []*models.FileInfo
		err   error
	)
	if sessionID := c.QueryParam("session_id"); sessionID != "" {
		files, err = h.store.ListBySession(sessionID)
	} else {
		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		files, err = h.store.List(limit)
	}
	if err != nil {
		return NewInternalError("failed to list files", err)
	}
	if files == nil {
		files = []*models.FileInfo{}
	}
	return c.JSON(http.StatusOK, map[string]any{"files": files})
}

// HandleGetFile returns one file's metadata
func (h *FileHandlerImpl) HandleGetFile(c echo.Context) error {
	id := c.Param("id")
	info, err := h.store.Get(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}
	return c.JSON(http.StatusOK, info)
}

// HandleDeleteFile removes a file and its loaded dataset
func (h *FileHandlerImpl) HandleDeleteFile(c echo.Context) error {
	id := c.Param("id")
	if err := h.store.Delete(id); err != nil {
		return NewNotFoundError("file", id)
	}
	h.engine.Remove(id)
	return c.NoContent(http.StatusNoContent)
}

// HandlePreview returns the first rows of a loaded dataset
func (h *FileHandlerImpl) HandlePreview(c echo.Context) error {
	store, apiErr := h.datasetFor(c)
	if apiErr != nil {
		return apiErr
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	result, err := store.Preview(c.Request().Context(), limit)
	if err != nil {
		return NewInternalError("failed to preview dataset", err)
	}
	return c.JSON(http.StatusOK, result)
}

// HandleSummary returns per-column statistics for a loaded dataset
func (h *FileHandlerImpl) HandleSummary(c echo.Context) error {
	store, apiErr := h.datasetFor(c)
	if apiErr != nil {
		return apiErr
	}

	summary, err := store.Summary(c.Request().Context())
	if err != nil {
		return NewInternalError("failed to summarize dataset", err)
	}
	return c.JSON(http.StatusOK, summary)
}

// HandleSuggestions returns example questions derived from the schema
func (h *FileHandlerImpl) HandleSuggestions(c echo.Context) error {
	store, apiErr := h.datasetFor(c)
	if apiErr != nil {
		return apiErr
	}

	return c.JSON(http.StatusOK, map[string]any{
		"suggestions": query.Suggestions(store.Columns()),
	})
}

// HandleIngestStatus returns the latest ingest job for a file
func (h *FileHandlerImpl) HandleIngestStatus(c echo.Context) error {
	id := c.Param("id")
	job, ok := h.ingestMgr.GetJobByFile(id)
	if !ok {
		return NewNotFoundError("ingest job for file", id)
	}
	return c.JSON(http.StatusOK, job)
}

// HandleIngestProgressStream streams ingest progress via SSE until the job
// reaches a terminal state
func (h *FileHandlerImpl) HandleIngestProgressStream(c echo.Context) error {
	id := c.Param("id")

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	job, ok := h.ingestMgr.GetJobByFile(id)
	if !ok {
		sendSSEError(c, "ingest job not found")
		return nil
	}
	sendSSEData(c, job)
	if job.Done() {
		return nil
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	timeout := time.NewTimer(5 * time.Minute)
	defer timeout.Stop()

	for {
		select {
		case <-ticker.C:
			job, ok := h.ingestMgr.GetJobByFile(id)
			if !ok {
				sendSSEError(c, "ingest job not found")
				return nil
			}
			sendSSEData(c, job)
			if job.Done() {
				return nil
			}

		case <-timeout.C:
			sendSSEError(c, "stream timeout")
			return nil

		case <-c.Request().Context().Done():
			return nil
		}
	}
}

// validationConfigRequest is a partial validation config update.
type validationConfigRequest struct {
	MaxFileSize       *int64   `json:"max_file_size"`
	AllowedTypes      []string `json:"allowed_types"`
	AllowedExtensions []string `json:"allowed_extensions"`
	MaxNameLength     *int     `json:"max_name_length"`
}

// HandleGetValidationConfig returns the active validation limits
func (h *FileHandlerImpl) HandleGetValidationConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, h.validator.Config())
}

// HandleUpdateValidationConfig merges a partial config over the current one
func (h *FileHandlerImpl) HandleUpdateValidationConfig(c echo.Context) error {
	var req validationConfigRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	updated := h.validator.UpdateConfig(validation.Overrides{
		MaxFileSize:       req.MaxFileSize,
		AllowedTypes:      req.AllowedTypes,
		AllowedExtensions: req.AllowedExtensions,
		MaxNameLength:     req.MaxNameLength,
	})
	return c.JSON(http.StatusOK, updated)
}

// datasetFor resolves the loaded dataset store for the :id route param,
// distinguishing missing files from files that are not queryable.
func (h *FileHandlerImpl) datasetFor(c echo.Context) (*dataset.Store, *APIError) {
	id := c.Param("id")
	if _, err := h.store.Get(id); err != nil {
		return nil, NewNotFoundError("file", id)
	}
	store, ok := h.engine.Get(id)
	if !ok {
		return nil, NewConflictError("file is not loaded as a dataset (still ingesting, failed, or not a queryable format)")
	}
	return store, nil
}
