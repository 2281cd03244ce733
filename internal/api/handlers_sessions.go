// handlers_sessions.go - Analysis session handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/data-intelligence/backend/internal/models"
	"github.com/data-intelligence/backend/internal/session"
	"github.com/data-intelligence/backend/internal/storage"
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	sessionMgr *session.Manager
	store      storage.Store
}

// NewSessionHandler creates a new session handler instance
func NewSessionHandler(sessionMgr *session.Manager, store storage.Store) SessionHandler {
	return &SessionHandlerImpl{
		sessionMgr: sessionMgr,
		store:      store,
	}
}

type createSessionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// HandleCreateSession starts a new analysis session
func (h *SessionHandlerImpl) HandleCreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	sess, err := h.sessionMgr.Create(req.Name, req.Description)
	if err != nil {
		return NewServiceUnavailableError(err.Error())
	}
	return respondCreated(c, sess, "Session created")
}

// HandleListSessions returns all sessions, most recently active first
func (h *SessionHandlerImpl) HandleListSessions(c echo.Context) error {
	return respondOK(c, map[string]any{"sessions": h.sessionMgr.List()})
}

// HandleGetSession returns one session
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	id := c.Param("id")
	sess, ok := h.sessionMgr.Get(id)
	if !ok {
		return NewNotFoundError("session", id)
	}
	h.sessionMgr.Touch(id)
	return respondOK(c, sess)
}

// HandleUpdateSessionData shallow-merges keys into the session data map
func (h *SessionHandlerImpl) HandleUpdateSessionData(c echo.Context) error {
	id := c.Param("id")

	var update map[string]any
	if err := c.Bind(&update); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	sess, ok := h.sessionMgr.UpdateData(id, update)
	if !ok {
		return NewNotFoundError("session", id)
	}
	return respondMessage(c, sess, "Session data updated")
}

type attachFileRequest struct {
	FileID string `json:"file_id"`
}

// HandleAttachFile records an uploaded file on a session
func (h *SessionHandlerImpl) HandleAttachFile(c echo.Context) error {
	id := c.Param("id")

	var req attachFileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.FileID == "" {
		return NewValidationError("file_id")
	}

	if _, err := h.store.Get(req.FileID); err != nil {
		return NewNotFoundError("file", req.FileID)
	}
	if !h.sessionMgr.AttachFile(id, req.FileID) {
		return NewNotFoundError("session", id)
	}
	h.store.Update(req.FileID, func(fi *models.FileInfo) { fi.SessionID = id })

	sess, _ := h.sessionMgr.Get(id)
	return respondMessage(c, sess, "File attached")
}

// HandleSessionStats summarizes a session and its attached files
func (h *SessionHandlerImpl) HandleSessionStats(c echo.Context) error {
	id := c.Param("id")

	files, err := h.store.ListBySession(id)
	if err != nil {
		return NewInternalError("failed to list session files", err)
	}

	stats, ok := h.sessionMgr.Stats(id, files)
	if !ok {
		return NewNotFoundError("session", id)
	}
	return respondOK(c, stats)
}

// HandleCloseSession marks a session closed
func (h *SessionHandlerImpl) HandleCloseSession(c echo.Context) error {
	id := c.Param("id")
	if !h.sessionMgr.Close(id) {
		return NewNotFoundError("session", id)
	}
	sess, _ := h.sessionMgr.Get(id)
	return respondMessage(c, sess, "Session closed")
}

// HandleDeleteSession removes a session entirely
func (h *SessionHandlerImpl) HandleDeleteSession(c echo.Context) error {
	id := c.Param("id")
	if !h.sessionMgr.Delete(id) {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleSessionKeepAlive extends session lifetime for active viewing
func (h *SessionHandlerImpl) HandleSessionKeepAlive(c echo.Context) error {
	id := c.Param("id")
	if !h.sessionMgr.Touch(id) {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}
