// handlers_chat.go - Conversational data query handlers
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/data-intelligence/backend/internal/chat"
	"github.com/data-intelligence/backend/internal/dataset"
	"github.com/data-intelligence/backend/internal/session"
)

// ChatHandlerImpl implements the ChatHandler interface
type ChatHandlerImpl struct {
	chatSvc    *chat.Service
	sessionMgr *session.Manager
}

// NewChatHandler creates a new chat handler instance
func NewChatHandler(chatSvc *chat.Service, sessionMgr *session.Manager) ChatHandler {
	return &ChatHandlerImpl{
		chatSvc:    chatSvc,
		sessionMgr: sessionMgr,
	}
}

type chatMessageRequest struct {
	Message string `json:"message"`
	FileID  string `json:"file_id"`
}

// HandleSendMessage answers one chat message synchronously
func (h *ChatHandlerImpl) HandleSendMessage(c echo.Context) error {
	sessionID := c.Param("id")

	var req chatMessageRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.Message == "" {
		return NewValidationError("message")
	}

	reply, err := h.chatSvc.Send(c.Request().Context(), sessionID, req.FileID, req.Message)
	if err != nil {
		return chatError(sessionID, err)
	}
	return respondOK(c, reply)
}

// HandleStreamMessage answers one chat message as an SSE stream of chunk
// events terminated by a complete or error event
func (h *ChatHandlerImpl) HandleStreamMessage(c echo.Context) error {
	sessionID := c.Param("id")

	var req chatMessageRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.Message == "" {
		return NewValidationError("message")
	}
	if _, ok := h.sessionMgr.Get(sessionID); !ok {
		return NewNotFoundError("session", sessionID)
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	for ev := range h.chatSvc.Stream(ctx, sessionID, req.FileID, req.Message) {
		sendSSEData(c, ev)
	}
	return nil
}

// HandleHistory returns a session's conversation, oldest first
func (h *ChatHandlerImpl) HandleHistory(c echo.Context) error {
	sessionID := c.Param("id")

	history, ok := h.sessionMgr.History(sessionID)
	if !ok {
		return NewNotFoundError("session", sessionID)
	}
	return respondOK(c, map[string]any{"messages": history})
}

// chatError maps chat service failures onto API errors.
func chatError(sessionID string, err error) *APIError {
	switch {
	case errors.Is(err, chat.ErrSessionNotFound):
		return NewNotFoundError("session", sessionID)
	case errors.Is(err, chat.ErrNoDataset):
		return NewConflictError("session has no queryable dataset attached")
	case errors.Is(err, dataset.ErrNotLoaded):
		return NewConflictError("requested file is not loaded as a dataset")
	default:
		return NewInternalError("failed to process message", err)
	}
}
