package relayclient

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "meeting_relay/pkg/errors"
	"meeting_relay/pkg/protocol"
)

type envelopeSender interface {
	Send(build func(binding protocol.ReadyBinding) (protocol.Envelope, error)) (bool, error)
}

// Submitter отправляет сообщения пользователя. Локально ничего не добавляет:
// сообщение попадает в журнал только эхом от сервера.
type Submitter struct {
	sender        envelopeSender
	maxTextLength int
	now           func() time.Time
}

func NewSubmitter(sender envelopeSender, maxTextLength int) *Submitter {
	return &Submitter{
		sender:        sender,
		maxTextLength: maxTextLength,
		now:           time.Now,
	}
}

// Submit возвращает true, если сообщение ушло в соединение и ввод можно
// очистить. Пустой текст и отсутствие соединения молча отбрасывают сообщение.
func (s *Submitter) Submit(text string) (bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return false, nil
	}
	if s.maxTextLength > 0 && utf8.RuneCountInString(text) > s.maxTextLength {
		return false, fmt.Errorf("%d runes allowed: %w", s.maxTextLength, apperrors.ErrMessageTooLong)
	}

	return s.sender.Send(func(binding protocol.ReadyBinding) (protocol.Envelope, error) {
		return protocol.NewEnvelope(protocol.EventSendMessage, protocol.SendMessagePayload{
			RoomID:      binding.Room.RoomID,
			SenderID:    binding.Participant.ParticipantID,
			SenderName:  binding.Participant.Name(),
			Text:        text,
			TimestampMs: s.now().UnixMilli(),
		})
	})
}
