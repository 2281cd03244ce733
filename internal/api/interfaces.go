// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"github.com/labstack/echo/v4"
)

// FileHandler handles file upload and dataset metadata operations
type FileHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleUploadMultiple(c echo.Context) error
	HandleListFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
	HandlePreview(c echo.Context) error
	HandleSummary(c echo.Context) error
	HandleSuggestions(c echo.Context) error
	HandleIngestStatus(c echo.Context) error
	HandleIngestProgressStream(c echo.Context) error
	HandleGetValidationConfig(c echo.Context) error
	HandleUpdateValidationConfig(c echo.Context) error
}

// SessionHandler handles analysis session operations
type SessionHandler interface {
	HandleCreateSession(c echo.Context) error
	HandleListSessions(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleUpdateSessionData(c echo.Context) error
	HandleAttachFile(c echo.Context) error
	HandleSessionStats(c echo.Context) error
	HandleCloseSession(c echo.Context) error
	HandleDeleteSession(c echo.Context) error
	HandleSessionKeepAlive(c echo.Context) error
}

// ChatHandler handles conversational data queries
type ChatHandler interface {
	HandleSendMessage(c echo.Context) error
	HandleStreamMessage(c echo.Context) error
	HandleHistory(c echo.Context) error
}

// QueryHandler handles structured query execution and export
type QueryHandler interface {
	HandleExecuteQuery(c echo.Context) error
	HandleNaturalLanguageQuery(c echo.Context) error
	HandleRowsMsgpack(c echo.Context) error
	HandleExport(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}
