// handlers_query.go - Structured query execution and export handlers
package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/data-intelligence/backend/internal/dataset"
	"github.com/data-intelligence/backend/internal/query"
	"github.com/data-intelligence/backend/internal/storage"
)

// QueryHandlerImpl implements the QueryHandler interface
type QueryHandlerImpl struct {
	engine    *dataset.Engine
	store     storage.Store
	processor *query.Processor
}

// NewQueryHandler creates a new query handler instance
func NewQueryHandler(engine *dataset.Engine, store storage.Store) QueryHandler {
	return &QueryHandlerImpl{
		engine:    engine,
		store:     store,
		processor: query.NewProcessor(),
	}
}

type executeQueryRequest struct {
	FileID string        `json:"file_id"`
	Query  dataset.Query `json:"query"`
}

// HandleExecuteQuery runs a structured query against a loaded dataset
func (h *QueryHandlerImpl) HandleExecuteQuery(c echo.Context) error {
	var req executeQueryRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	store, apiErr := h.datasetByID(req.FileID)
	if apiErr != nil {
		return apiErr
	}

	result, err := store.Select(c.Request().Context(), req.Query)
	if err != nil {
		return NewBadRequestError("query failed", err)
	}
	return respondOK(c, result)
}

type nlQueryRequest struct {
	FileID   string `json:"file_id"`
	Question string `json:"question"`
}

// HandleNaturalLanguageQuery answers a plain-language question against a
// loaded dataset, returning the generated plan alongside the rows
func (h *QueryHandlerImpl) HandleNaturalLanguageQuery(c echo.Context) error {
	var req nlQueryRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.Question == "" {
		return NewValidationError("question")
	}
	store, apiErr := h.datasetByID(req.FileID)
	if apiErr != nil {
		return apiErr
	}

	resp, err := h.processor.Process(c.Request().Context(), store, req.Question)
	if err != nil {
		return NewBadRequestError("query failed", err)
	}
	return respondOK(c, resp)
}

// HandleRowsMsgpack returns query rows in MessagePack format for clients
// that want a compact wire encoding
func (h *QueryHandlerImpl) HandleRowsMsgpack(c echo.Context) error {
	var req executeQueryRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	store, apiErr := h.datasetByID(req.FileID)
	if apiErr != nil {
		return apiErr
	}

	result, err := store.Select(c.Request().Context(), req.Query)
	if err != nil {
		return NewBadRequestError("query failed", err)
	}

	data, err := msgpack.Marshal(map[string]interface{}{
		"columns": result.Columns,
		"rows":    result.Rows,
		"total":   result.TotalRows,
	})
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleExport streams query results as a CSV or JSON download
func (h *QueryHandlerImpl) HandleExport(c echo.Context) error {
	fileID := c.Param("id")
	store, apiErr := h.datasetByID(fileID)
	if apiErr != nil {
		return apiErr
	}

	format := c.QueryParam("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "json" {
		return NewBadRequestError(fmt.Sprintf("unsupported export format: %s", format), nil)
	}

	var q dataset.Query
	q.Limit = dataset.ExportLimit
	result, err := store.Select(c.Request().Context(), q)
	if err != nil {
		return NewInternalError("failed to read dataset", err)
	}

	filename := fileID + "." + format
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename=%q`, filename))

	if format == "json" {
		c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		c.Response().WriteHeader(http.StatusOK)
		return result.WriteJSON(c.Response())
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().WriteHeader(http.StatusOK)
	return result.WriteCSV(c.Response())
}

// datasetByID resolves a loaded dataset store for a file ID.
func (h *QueryHandlerImpl) datasetByID(fileID string) (*dataset.Store, *APIError) {
	if fileID == "" {
		return nil, NewValidationError("file_id")
	}
	if _, err := h.store.Get(fileID); err != nil {
		return nil, NewNotFoundError("file", fileID)
	}
	store, ok := h.engine.Get(fileID)
	if !ok {
		return nil, NewConflictError("file is not loaded as a dataset (still ingesting, failed, or not a queryable format)")
	}
	return store, nil
}
