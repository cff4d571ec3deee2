package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditLog - запись журнала аудита членства в комнатах
type AuditLog struct {
	ID            uuid.UUID              `json:"id"`
	EventTime     time.Time              `json:"event_time"`
	RoomID        string                 `json:"room_id"`
	ParticipantID string                 `json:"participant_id"`
	ConnectionID  string                 `json:"connection_id"`
	EventType     string                 `json:"event_type"`
	Payload       map[string]interface{} `json:"payload"`
}

const (
	EventTypeRoomJoined = "ROOM_JOINED"
	EventTypeRoomLeft   = "ROOM_LEFT"
)
