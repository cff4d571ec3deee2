package relayclient

import (
	"fmt"

	apperrors "meeting_relay/pkg/errors"
	"meeting_relay/pkg/logger"
	"meeting_relay/pkg/protocol"
)

// Multiplexer разбирает входящие фреймы в записи журнала. Порядок
// поступления сохраняется, дубликаты не отбрасываются.
type Multiplexer struct {
	messages *MessageLog
	errs     chan error
	log      logger.Logger
}

func NewMultiplexer(messages *MessageLog, errs chan error, log logger.Logger) *Multiplexer {
	return &Multiplexer{
		messages: messages,
		errs:     errs,
		log:      log,
	}
}

func (x *Multiplexer) HandleEnvelope(binding protocol.ReadyBinding, env protocol.Envelope) {
	switch env.Event {
	case protocol.EventReceiveMessage:
		var msg protocol.ChatMessagePayload
		if err := env.Decode(&msg); err != nil {
			x.HandleError(err)
			return
		}
		x.messages.Append(protocol.ChatEntry{
			ID:          msg.ID,
			SenderID:    msg.SenderID,
			SenderName:  msg.SenderName,
			Text:        msg.Text,
			TimestampMs: msg.TimestampMs,
			IsLocal:     msg.SenderID == binding.Participant.ParticipantID,
			Kind:        protocol.EntryKindMessage,
		})

	case protocol.EventUserJoined, protocol.EventUserLeft:
		var note protocol.NotificationPayload
		if err := env.Decode(&note); err != nil {
			x.HandleError(err)
			return
		}
		x.messages.Append(protocol.ChatEntry{
			ID:          note.ID,
			SenderID:    note.SenderID,
			SenderName:  note.SenderName,
			Text:        note.Text,
			TimestampMs: note.TimestampMs,
			Kind:        protocol.EntryKindNotification,
		})

	case protocol.EventRelayError:
		var payload protocol.ErrorPayload
		if err := env.Decode(&payload); err != nil {
			x.HandleError(err)
			return
		}
		x.HandleError(fmt.Errorf("%s: %s: %w", payload.Code, payload.Message, apperrors.ErrServerRejected))

	default:
		x.log.Debug("Ignoring relay event", "event", env.Event)
	}
}

// HandleError не блокируется: при переполненном канале ошибка только пишется в лог
func (x *Multiplexer) HandleError(err error) {
	select {
	case x.errs <- err:
	default:
		x.log.Warn("Relay error dropped, channel full", "error", err)
	}
}
