package errors

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")
	ErrRoomNotFound   = errors.New("room not found")

	// Ошибки протокола релея
	ErrInvalidPayload = errors.New("invalid payload")
	ErrUnknownEvent   = errors.New("unknown event")
	ErrNotJoined      = errors.New("connection has not joined the room")
	ErrEmptyMessage   = errors.New("message text is empty")
	ErrMessageTooLong = errors.New("message text is too long")
	ErrSlowConsumer   = errors.New("slow consumer")

	// Ошибки клиентского соединения
	ErrRelayUnavailable = errors.New("relay unavailable")
	ErrConnectionLost   = errors.New("relay connection lost")
	ErrServerRejected   = errors.New("relay rejected frame")
	ErrPresenceDisabled = errors.New("presence mirror is not configured")
)

type APIError struct {
	Message string `json:"error"`
	Code    int    `json:"code"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(message string, code int) *APIError {
	return &APIError{
		Message: message,
		Code:    code,
	}
}

func HTTPStatusFromError(err error) int {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Code
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, ErrPresenceDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Коды ошибок, которые сервер отправляет клиенту в событии relay-error
const (
	RelayCodeInvalidPayload = "invalid_payload"
	RelayCodeUnknownEvent   = "unknown_event"
	RelayCodeNotJoined      = "not_joined"
	RelayCodeEmptyMessage   = "empty_message"
	RelayCodeMessageTooLong = "message_too_long"
	RelayCodeInternal       = "internal"
)

func RelayCodeFromError(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPayload):
		return RelayCodeInvalidPayload
	case errors.Is(err, ErrUnknownEvent):
		return RelayCodeUnknownEvent
	case errors.Is(err, ErrNotJoined):
		return RelayCodeNotJoined
	case errors.Is(err, ErrEmptyMessage):
		return RelayCodeEmptyMessage
	case errors.Is(err, ErrMessageTooLong):
		return RelayCodeMessageTooLong
	default:
		return RelayCodeInternal
	}
}
