package relay

import (
	"sync"
	"time"

	"meeting_relay/internal/domain"
	"meeting_relay/internal/metrics"
	"meeting_relay/pkg/logger"
	"meeting_relay/pkg/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type joinedRoom struct {
	room        *Room
	participant protocol.ParticipantIdentity
	joinedAt    time.Time
}

func (j *joinedRoom) member(c *Conn) domain.RoomMember {
	return domain.RoomMember{
		ConnectionID:  c.ID(),
		ParticipantID: j.participant.ParticipantID,
		DisplayName:   j.participant.Name(),
		JoinedAt:      j.joinedAt,
	}
}

// Conn - одно соединение релея на сервере. Читает одна горутина (readPump),
// пишет одна горутина (writePump); остальные только кладут фреймы в send.
type Conn struct {
	id   string
	hub  *Hub
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	log  logger.Logger

	closeOnce sync.Once

	// Принадлежит горутине чтения
	joined *joinedRoom
}

func newConn(hub *Hub, ws *websocket.Conn) *Conn {
	id := uuid.New().String()
	return &Conn{
		id:   id,
		hub:  hub,
		ws:   ws,
		send: make(chan []byte, hub.opts.SendBuffer),
		done: make(chan struct{}),
		log:  hub.log.With("conn_id", id),
	}
}

func (c *Conn) ID() string {
	return c.id
}

// Close инициирует закрытие; безопасно вызывать многократно и под локом комнаты
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// enqueue не блокируется: соединение с переполненным буфером отключается
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		metrics.SlowConsumers.Inc()
		c.log.Warn("Send buffer full, dropping connection")
		c.Close()
		return false
	}
}

// Serve обслуживает соединение до его закрытия. Блокирует вызывающего.
func (h *Hub) Serve(ws *websocket.Conn) {
	c := newConn(h, ws)
	if !h.register(c) {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(h.opts.WriteWait))
		_ = ws.Close()
		return
	}

	c.log.Debug("Relay connection opened", "remote_addr", ws.RemoteAddr().String())
	go c.writePump()
	c.readPump()
}

func (c *Conn) readPump() {
	defer func() {
		c.hub.disconnect(c)
		c.Close()
		c.log.Debug("Relay connection closed")
	}()

	opts := c.hub.opts
	c.ws.SetReadLimit(opts.MaxFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Warn("Relay connection dropped", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.hub.dispatch(c, data)
	}
}

func (c *Conn) writePump() {
	opts := c.hub.opts
	ticker := time.NewTicker(opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("Failed to write frame", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.flush()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(opts.WriteWait))
			return
		}
	}
}

// flush дописывает уже поставленные в очередь фреймы перед закрытием,
// все вместе не дольше WriteWait
func (c *Conn) flush() {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteWait))
	for {
		select {
		case frame := <-c.send:
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}
