package handler

import (
	"marketchat/backend/internal/chathub"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Non-browser clients send no Origin.
			return origin == "" || allowed["*"] || allowed[origin]
		},
	}
}

// ServeWebSocket upgrades the request and starts a session for it.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	var userID string
	if h.opts.Issuer != nil {
		var err error
		userID, err = h.authenticate(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
			return
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := chathub.NewWebSocketClient(conn, userID, h.opts.SendBuffer, h.logger)
	session := h.Hub.NewSession(client, c.Query("lang"))
	client.Run(h.opts.BaseContext, session)
}
