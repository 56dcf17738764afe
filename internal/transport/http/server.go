package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/relaychat/internal/config"
	"github.com/vovakirdan/relaychat/internal/core"
	"github.com/vovakirdan/relaychat/internal/metrics"
	"github.com/vovakirdan/relaychat/internal/store"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer builds the HTTP server: health, metrics, the WebSocket endpoint and the REST API.
func NewServer(hub *core.Hub, st store.Store, m *metrics.Metrics, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(hub, st, m, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter registers every route on a gin engine.
func NewRouter(hub *core.Hub, st store.Store, m *metrics.Metrics, cfg *config.Config, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(m.Handler()))
	router.GET("/ws", gin.WrapH(NewWSHandler(hub, cfg.MaxMessageChars, logger)))

	users := NewUserHandlers(st, logger)
	messages := NewMessageHandlers(st, hub, logger)

	api := router.Group("/api")
	{
		api.GET("/users", users.ListUsers)
		api.POST("/users", users.CreateUser)
		api.GET("/users/online", users.ListOnlineUsers)
		api.GET("/users/search/:query", users.SearchUsers)
		api.GET("/users/:id", users.GetUser)

		api.GET("/messages/room/:roomId", messages.RoomMessages)
		api.GET("/messages/conversation/:userId1/:userId2", messages.Conversation)
		api.PUT("/messages/read/:roomId", messages.MarkRead)
	}

	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
