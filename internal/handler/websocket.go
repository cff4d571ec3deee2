package handler

import (
	"net/http"
	"strings"

	"meeting_relay/internal/relay"
	"meeting_relay/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	hub      *relay.Hub
	upgrader websocket.Upgrader
	log      logger.Logger
}

func NewWebSocketHandler(hub *relay.Hub, allowedOrigins []string, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log,
	}
}

// originChecker пропускает любой origin, если список пуст
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}

// HandleRelay поднимает соединение релея и обслуживает его до закрытия
func (h *WebSocketHandler) HandleRelay(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Failed to upgrade connection", "error", err, "remote_addr", c.ClientIP())
		return
	}

	h.hub.Serve(conn)
}
