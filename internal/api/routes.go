// routes.go - Route registration helpers
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/data-intelligence/backend/internal/chat"
	"github.com/data-intelligence/backend/internal/dataset"
	"github.com/data-intelligence/backend/internal/ingest"
	"github.com/data-intelligence/backend/internal/session"
	"github.com/data-intelligence/backend/internal/storage"
	"github.com/data-intelligence/backend/internal/validation"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Validator  *validation.Service
	Store      storage.Store
	Engine     *dataset.Engine
	IngestMgr  *ingest.Manager
	SessionMgr *session.Manager
	ChatSvc    *chat.Service
	Version    string
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Files     FileHandler
	Sessions  SessionHandler
	Chat      ChatHandler
	Query     QueryHandler
	WebSocket *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(deps.Version),
		Files:     NewFileHandler(deps.Validator, deps.Store, deps.IngestMgr, deps.Engine, deps.SessionMgr),
		Sessions:  NewSessionHandler(deps.SessionMgr, deps.Store),
		Chat:      NewChatHandler(deps.ChatSvc, deps.SessionMgr),
		Query:     NewQueryHandler(deps.Engine, deps.Store),
		WebSocket: NewWebSocketHandler(deps.IngestMgr, deps.ChatSvc),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/api/health", handlers.Health.HandleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// File upload and dataset routes
	filesGroup := e.Group("/api/v1/files")
	filesGroup.POST("/upload", handlers.Files.HandleUploadFile)
	filesGroup.POST("/upload-multiple", handlers.Files.HandleUploadMultiple)
	filesGroup.GET("", handlers.Files.HandleListFiles)
	filesGroup.GET("/:id", handlers.Files.HandleGetFile)
	filesGroup.DELETE("/:id", handlers.Files.HandleDeleteFile)
	filesGroup.GET("/:id/preview", handlers.Files.HandlePreview)
	filesGroup.GET("/:id/summary", handlers.Files.HandleSummary)
	filesGroup.GET("/:id/suggestions", handlers.Files.HandleSuggestions)
	filesGroup.GET("/:id/ingest", handlers.Files.HandleIngestStatus)
	filesGroup.GET("/:id/ingest/stream", handlers.Files.HandleIngestProgressStream)
	filesGroup.GET("/:id/export", handlers.Query.HandleExport)

	// Validation config routes
	configGroup := e.Group("/api/v1/config")
	configGroup.GET("/validation", handlers.Files.HandleGetValidationConfig)
	configGroup.PUT("/validation", handlers.Files.HandleUpdateValidationConfig)

	// Session routes
	sessionGroup := e.Group("/api/sessions")
	sessionGroup.POST("", handlers.Sessions.HandleCreateSession)
	sessionGroup.GET("", handlers.Sessions.HandleListSessions)
	sessionGroup.GET("/:id", handlers.Sessions.HandleGetSession)
	sessionGroup.PATCH("/:id/data", handlers.Sessions.HandleUpdateSessionData)
	sessionGroup.POST("/:id/files", handlers.Sessions.HandleAttachFile)
	sessionGroup.GET("/:id/stats", handlers.Sessions.HandleSessionStats)
	sessionGroup.POST("/:id/close", handlers.Sessions.HandleCloseSession)
	sessionGroup.DELETE("/:id", handlers.Sessions.HandleDeleteSession)
	sessionGroup.POST("/:id/keepalive", handlers.Sessions.HandleSessionKeepAlive)

	// Chat routes
	sessionGroup.POST("/:id/chat", handlers.Chat.HandleSendMessage)
	sessionGroup.POST("/:id/chat/stream", handlers.Chat.HandleStreamMessage)
	sessionGroup.GET("/:id/chat/history", handlers.Chat.HandleHistory)

	// Structured query routes
	queryGroup := e.Group("/api/query")
	queryGroup.POST("/execute", handlers.Query.HandleExecuteQuery)
	queryGroup.POST("/natural-language", handlers.Query.HandleNaturalLanguageQuery)
	queryGroup.POST("/rows.msgpack", handlers.Query.HandleRowsMsgpack)

	// Live updates
	e.GET("/api/ws", handlers.WebSocket.HandleWebSocket)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, rateLimit float64) {
	e.HTTPErrorHandler = ErrorHandler
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(MetricsMiddleware())
	if rateLimit > 0 {
		e.Use(middleware.RateLimiter(
			middleware.NewRateLimiterMemoryStore(rate.Limit(rateLimit))))
	}
}
