package relayclient

import (
	"sync"

	"meeting_relay/pkg/protocol"

	"github.com/samber/lo"
)

// MessageLog - журнал комнаты в порядке поступления. Только добавление;
// очищается при завершении сессии, на диск не пишется.
type MessageLog struct {
	mu       sync.RWMutex
	entries  []protocol.ChatEntry
	onAppend func(protocol.ChatEntry)
}

func NewMessageLog(onAppend func(protocol.ChatEntry)) *MessageLog {
	return &MessageLog{onAppend: onAppend}
}

func (l *MessageLog) Append(entry protocol.ChatEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	if l.onAppend != nil {
		l.onAppend(entry)
	}
}

// Entries возвращает копию журнала
func (l *MessageLog) Entries() []protocol.ChatEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]protocol.ChatEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *MessageLog) Messages() []protocol.ChatEntry {
	return lo.Filter(l.Entries(), func(e protocol.ChatEntry, _ int) bool {
		return !e.IsNotification()
	})
}

func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *MessageLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
