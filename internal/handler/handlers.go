package handler

import (
	"meeting_relay/internal/config"
	"meeting_relay/internal/relay"
	"meeting_relay/internal/service"
	"meeting_relay/pkg/logger"
)

type Handlers struct {
	Health    *HealthHandler
	Room      *RoomHandler
	WebSocket *WebSocketHandler
}

func NewHandlers(services *service.Services, hub *relay.Hub, cfg *config.Config, log logger.Logger) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(cfg),
		Room:      NewRoomHandler(hub, services.Presence, log),
		WebSocket: NewWebSocketHandler(hub, cfg.Relay.AllowedOrigins, log),
	}
}
