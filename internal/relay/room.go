package relay

import (
	"sort"
	"sync"
	"time"

	"meeting_relay/internal/domain"
	"meeting_relay/pkg/protocol"
)

type member struct {
	participant protocol.ParticipantIdentity
	joinedAt    time.Time
}

// Room - набор соединений одной встречи. Все рассылки комнаты идут под mu,
// поэтому каждый участник видит события комнаты в одном и том же порядке.
type Room struct {
	id      string
	mu      sync.Mutex
	members map[*Conn]member
	closed  bool // пустая комната, удаленная из реестра
}

func newRoom(id string) *Room {
	return &Room{
		id:      id,
		members: make(map[*Conn]member),
	}
}

func (r *Room) ID() string {
	return r.id
}

// add регистрирует соединение и рассылает уведомление остальным участникам.
// Новое соединение уведомление о себе не получает.
func (r *Room) add(c *Conn, participant protocol.ParticipantIdentity, joinedAt time.Time, notice []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}

	r.broadcastLocked(notice, c)
	r.members[c] = member{participant: participant, joinedAt: joinedAt}
	return true
}

// remove снимает соединение с регистрации и уведомляет оставшихся.
// Возвращает true, если комната опустела (и закрыта).
func (r *Room) remove(c *Conn, notice []byte) (removed, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[c]; !ok {
		return false, len(r.members) == 0
	}
	delete(r.members, c)

	if len(r.members) == 0 {
		r.closed = true
		return true, true
	}

	r.broadcastLocked(notice, nil)
	return true, false
}

func (r *Room) broadcast(frame []byte, except *Conn) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.broadcastLocked(frame, except)
}

func (r *Room) broadcastLocked(frame []byte, except *Conn) int {
	delivered := 0
	for c := range r.members {
		if c == except {
			continue
		}
		if c.enqueue(frame) {
			delivered++
		}
	}
	return delivered
}

func (r *Room) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Room) snapshot() []domain.RoomMember {
	r.mu.Lock()
	members := make([]domain.RoomMember, 0, len(r.members))
	for c, m := range r.members {
		members = append(members, domain.RoomMember{
			ConnectionID:  c.ID(),
			ParticipantID: m.participant.ParticipantID,
			DisplayName:   m.participant.Name(),
			JoinedAt:      m.joinedAt,
		})
	}
	r.mu.Unlock()

	sort.Slice(members, func(i, j int) bool {
		if members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].ConnectionID < members[j].ConnectionID
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members
}
