package handler

import (
	"context"
	"marketchat/backend/internal/auth"
	"marketchat/backend/internal/chathub"
	"marketchat/backend/internal/storage"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	AllowedOrigins []string
	SendBuffer     int
	// Issuer enables token checks on /ws when set.
	Issuer *auth.Issuer
	// BaseContext outlives individual requests and is handed to sessions.
	BaseContext context.Context
}

// Handler holds the HTTP and WebSocket endpoints.
type Handler struct {
	Hub       *chathub.ManagerService
	Directory storage.Directory
	Pinger    Pinger

	opts     Options
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHandler(hub *chathub.ManagerService, dir storage.Directory, pinger Pinger, opts Options, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	if opts.SendBuffer < 1 {
		opts.SendBuffer = 256
	}
	return &Handler{
		Hub:       hub,
		Directory: dir,
		Pinger:    pinger,
		opts:      opts,
		upgrader:  newUpgrader(opts.AllowedOrigins),
		logger:    logger,
	}
}

// Routes builds the gin engine wrapped in the CORS policy.
func (h *Handler) Routes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.logger), Metrics())

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/contacts", h.GetContacts)
	r.GET("/ws", h.ServeWebSocket)

	c := cors.New(cors.Options{
		AllowedOrigins:   h.opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Length"},
		MaxAge:           300,
		AllowCredentials: true,
	})
	return c.Handler(r)
}
