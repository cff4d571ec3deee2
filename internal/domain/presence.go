package domain

import "time"

// PresenceEntry - участник комнаты в зеркале присутствия (Redis)
type PresenceEntry struct {
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	ConnectionID  string    `json:"connection_id"`
	JoinedAt      time.Time `json:"joined_at"`
}

// RoomMember - участник из реестра релея (источник истины по членству)
type RoomMember struct {
	ConnectionID  string    `json:"connection_id"`
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	JoinedAt      time.Time `json:"joined_at"`
}

// LeaveReason - почему соединение покинуло комнату
type LeaveReason string

const (
	LeaveReasonExplicit   LeaveReason = "leave"
	LeaveReasonDisconnect LeaveReason = "disconnect"
	LeaveReasonRejoin     LeaveReason = "rejoin"
	LeaveReasonShutdown   LeaveReason = "shutdown"
)
