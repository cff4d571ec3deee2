// Package protocol описывает проводной контракт релея чата комнаты:
// имена событий, полезные нагрузки и записи журнала сообщений.
// Пакет общий для сервера (internal/relay) и клиента (pkg/relayclient).
package protocol

import (
	"encoding/json"
	"fmt"

	apperrors "meeting_relay/pkg/errors"
)

// События клиент -> сервер
const (
	EventJoinRoom    = "join-meeting-room"
	EventLeaveRoom   = "leave-meeting-room"
	EventSendMessage = "send-chat-message"
)

// События сервер -> клиент
const (
	EventReceiveMessage = "receive-chat-message"
	EventUserJoined     = "user-joined-chat"
	EventUserLeft       = "user-left-chat"
	EventRelayError     = "relay-error"
)

// SystemSenderID - отправитель уведомлений о входе/выходе
const (
	SystemSenderID   = "system"
	SystemSenderName = "System"
)

// Envelope - один текстовый фрейм WebSocket: {"event": "...", "data": {...}}
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(event string, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return Envelope{Event: event, Data: data}, nil
}

// Decode разбирает Data в payload. Ошибка оборачивает ErrInvalidPayload.
func (e Envelope) Decode(payload interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: empty data: %w", e.Event, apperrors.ErrInvalidPayload)
	}
	if err := json.Unmarshal(e.Data, payload); err != nil {
		return fmt.Errorf("%s: %v: %w", e.Event, err, apperrors.ErrInvalidPayload)
	}
	return nil
}

// MembershipPayload - тело join-meeting-room и leave-meeting-room
type MembershipPayload struct {
	RoomID        string `json:"roomId" validate:"required,max=128"`
	ParticipantID string `json:"participantId" validate:"required,max=128"`
	DisplayName   string `json:"displayName" validate:"max=128"`
}

// SendMessagePayload - тело send-chat-message
type SendMessagePayload struct {
	RoomID      string `json:"roomId" validate:"required,max=128"`
	SenderID    string `json:"senderId" validate:"required,max=128"`
	SenderName  string `json:"senderName" validate:"max=128"`
	Text        string `json:"text" validate:"required"`
	TimestampMs int64  `json:"timestampMs" validate:"gte=0"`
}

// ChatMessagePayload - тело receive-chat-message. isLocal не передается:
// каждый получатель вычисляет его сам.
type ChatMessagePayload struct {
	ID          string `json:"id"`
	SenderID    string `json:"senderId"`
	SenderName  string `json:"senderName"`
	Text        string `json:"text"`
	TimestampMs int64  `json:"timestampMs"`
}

// NotificationPayload - тело user-joined-chat и user-left-chat
type NotificationPayload struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"senderId"`
	SenderName  string    `json:"senderName"`
	Text        string    `json:"text"`
	TimestampMs int64     `json:"timestampMs"`
	Kind        EntryKind `json:"kind"`
}

// ErrorPayload - тело relay-error
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func JoinedText(name string) string {
	return name + " joined the chat"
}

func LeftText(name string) string {
	return name + " left the chat"
}
