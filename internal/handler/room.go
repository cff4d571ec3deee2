package handler

import (
	"errors"
	"net/http"
	"strings"

	"meeting_relay/internal/relay"
	"meeting_relay/internal/service"
	apperrors "meeting_relay/pkg/errors"
	"meeting_relay/pkg/logger"

	"github.com/gin-gonic/gin"
)

type RoomHandler struct {
	hub             *relay.Hub
	presenceService service.PresenceService
	log             logger.Logger
}

func NewRoomHandler(hub *relay.Hub, presenceService service.PresenceService, log logger.Logger) *RoomHandler {
	return &RoomHandler{
		hub:             hub,
		presenceService: presenceService,
		log:             log,
	}
}

// GetParticipants возвращает участников комнаты на этом инстансе
func (h *RoomHandler) GetParticipants(c *gin.Context) {
	roomID := strings.TrimSpace(c.Param("id"))

	members, err := h.hub.Members(roomID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"room_id":      roomID,
		"participants": members,
	})
}

// GetPresence возвращает зеркало присутствия из Redis
func (h *RoomHandler) GetPresence(c *gin.Context) {
	roomID := strings.TrimSpace(c.Param("id"))

	entries, err := h.presenceService.GetParticipants(c.Request.Context(), roomID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrPresenceDisabled) {
			h.log.Error("Failed to read presence", "room_id", roomID, "error", err)
		}
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"room_id":      roomID,
		"participants": entries,
	})
}
