// websocket.go - Live update channel for ingest progress and streamed chat
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/data-intelligence/backend/internal/chat"
	"github.com/data-intelligence/backend/internal/ingest"
	"github.com/data-intelligence/backend/internal/models"
)

// WebSocket message types
const (
	// Client -> Server
	MsgTypePing            = "ping"
	MsgTypeIngestSubscribe = "ingest:subscribe"
	MsgTypeChatSend        = "chat:send"

	// Server -> Client
	MsgTypePong     = "pong"
	MsgTypeProgress = "progress"
	MsgTypeChunk    = "chunk"
	MsgTypeComplete = "complete"
	MsgTypeError    = "error"
)

// WSMessage is the common frame for both directions.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// IngestSubscribePayload asks for progress pushes for one file's ingest.
type IngestSubscribePayload struct {
	FileID string `json:"file_id"`
}

// ChatSendPayload runs one chat message with streamed delivery.
type ChatSendPayload struct {
	SessionID string `json:"session_id"`
	FileID    string `json:"file_id,omitempty"`
	Message   string `json:"message"`
}

// WSErrorResponse carries an error frame's payload.
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler manages live-update WebSocket connections
type WebSocketHandler struct {
	ingestMgr *ingest.Manager
	chatSvc   *chat.Service
	upgrader  websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(ingestMgr *ingest.Manager, chatSvc *chat.Service) *WebSocketHandler {
	return &WebSocketHandler{
		ingestMgr: ingestMgr,
		chatSvc:   chatSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
		},
	}
}

// HandleWebSocket upgrades the connection and serves the live protocol
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	wsh.sendMessage(ws, WSMessage{Type: "connected", Timestamp: time.Now().UnixMilli()})

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			break
		}

		switch msg.Type {
		case MsgTypePing:
			wsh.sendMessage(ws, WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
		case MsgTypeIngestSubscribe:
			wsh.handleIngestSubscribe(ws, msg)
		case MsgTypeChatSend:
			wsh.handleChatSend(c, ws, msg)
		default:
			wsh.sendError(ws, "Unknown message type: "+msg.Type, "INVALID_TYPE")
		}
	}
	return nil
}

// handleIngestSubscribe pushes ingest progress until the job finishes.
func (wsh *WebSocketHandler) handleIngestSubscribe(ws *websocket.Conn, msg WSMessage) {
	var payload IngestSubscribePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		wsh.sendError(ws, "Invalid subscribe payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	deadline := time.Now().Add(5 * time.Minute)
	for time.Now().Before(deadline) {
		job, ok := wsh.ingestMgr.GetJobByFile(payload.FileID)
		if !ok {
			wsh.sendError(ws, "Ingest job not found: "+payload.FileID, "JOB_NOT_FOUND")
			return
		}

		wsh.sendMessage(ws, WSMessage{
			Type:      MsgTypeProgress,
			ID:        job.ID,
			Timestamp: time.Now().UnixMilli(),
			Payload:   mustJSON(job),
		})
		if job.Done() {
			wsh.sendMessage(ws, WSMessage{
				Type:      MsgTypeComplete,
				ID:        job.ID,
				Timestamp: time.Now().UnixMilli(),
				Payload:   mustJSON(job),
			})
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	wsh.sendError(ws, "Ingest subscription timed out", "TIMEOUT")
}

// handleChatSend streams one chat answer over the socket.
func (wsh *WebSocketHandler) handleChatSend(c echo.Context, ws *websocket.Conn, msg WSMessage) {
	var payload ChatSendPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		wsh.sendError(ws, "Invalid chat payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}
	if payload.Message == "" {
		wsh.sendError(ws, "Message is required", "INVALID_PAYLOAD")
		return
	}

	ctx := c.Request().Context()
	for ev := range wsh.chatSvc.Stream(ctx, payload.SessionID, payload.FileID, payload.Message) {
		frameType := MsgTypeChunk
		switch ev.Type {
		case models.StreamComplete:
			frameType = MsgTypeComplete
		case models.StreamError:
			frameType = MsgTypeError
		}
		wsh.sendMessage(ws, WSMessage{
			Type:      frameType,
			ID:        payload.SessionID,
			Timestamp: time.Now().UnixMilli(),
			Payload:   mustJSON(ev),
		})
	}
}

func (wsh *WebSocketHandler) sendMessage(ws *websocket.Conn, msg WSMessage) {
	ws.WriteJSON(msg)
}

func (wsh *WebSocketHandler) sendError(ws *websocket.Conn, message, code string) {
	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeError,
		Timestamp: time.Now().UnixMilli(),
		Payload:   mustJSON(WSErrorResponse{Message: message, Code: code}),
	})
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
