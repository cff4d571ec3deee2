package relayclient

import (
	"strings"
	"sync"

	"meeting_relay/pkg/protocol"
)

// CallSession - то немногое, что клиенту нужно от объекта звонка
type CallSession interface {
	RoomID() string
	// LocalParticipant возвращает false, пока локальный участник неизвестен
	LocalParticipant() (protocol.ParticipantIdentity, bool)
}

// Gate пересчитывает ReadyBinding при каждом изменении идентичности.
// Сетевых эффектов не имеет.
type Gate struct {
	mu          sync.Mutex
	roomID      string
	participant *protocol.ParticipantIdentity
	current     *protocol.ReadyBinding
}

func NewGate() *Gate {
	return &Gate{}
}

func (g *Gate) SetRoom(roomID string) (*protocol.ReadyBinding, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roomID = strings.TrimSpace(roomID)
	return g.recomputeLocked()
}

// SetParticipant с nil означает, что участник стал недоступен
func (g *Gate) SetParticipant(participant *protocol.ParticipantIdentity) (*protocol.ReadyBinding, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.participant = normalizeParticipant(participant)
	return g.recomputeLocked()
}

// Observe принимает снимок объекта звонка целиком; nil - звонка нет
func (g *Gate) Observe(call CallSession) (*protocol.ReadyBinding, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if call == nil {
		g.roomID = ""
		g.participant = nil
		return g.recomputeLocked()
	}

	g.roomID = strings.TrimSpace(call.RoomID())
	if p, ok := call.LocalParticipant(); ok {
		g.participant = normalizeParticipant(&p)
	} else {
		g.participant = nil
	}
	return g.recomputeLocked()
}

func (g *Gate) Current() *protocol.ReadyBinding {
	g.mu.Lock()
	defer g.mu.Unlock()
	return copyBinding(g.current)
}

// recomputeLocked сообщает changed ровно один раз на каждое новое значение
func (g *Gate) recomputeLocked() (*protocol.ReadyBinding, bool) {
	next := protocol.NewReadyBinding(g.roomID, g.participant)
	changed := !protocol.SameBinding(next, g.current)
	g.current = next
	return copyBinding(next), changed
}

func normalizeParticipant(p *protocol.ParticipantIdentity) *protocol.ParticipantIdentity {
	if p == nil {
		return nil
	}
	return &protocol.ParticipantIdentity{
		ParticipantID: strings.TrimSpace(p.ParticipantID),
		DisplayName:   strings.TrimSpace(p.DisplayName),
	}
}

func copyBinding(b *protocol.ReadyBinding) *protocol.ReadyBinding {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}
