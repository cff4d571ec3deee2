package handler

import (
	"net/http"

	"meeting_relay/internal/config"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	hostIP   string
	relayURL string
}

func NewHealthHandler(cfg *config.Config) *HealthHandler {
	hostIP := cfg.Server.Host
	if hostIP == "" || hostIP == "0.0.0.0" {
		hostIP = config.GetLocalIP()
	}

	return &HealthHandler{
		hostIP:   hostIP,
		relayURL: cfg.Relay.URL,
	}
}

func (h *HealthHandler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "meeting-relay",
	})
}

// ServerInfo возвращает информацию о сервере для клиентов
func (h *HealthHandler) ServerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"host_ip":   h.hostIP,
		"relay_url": h.relayURL,
		"api_base":  "/api/v1",
	})
}
