package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"meeting_relay/internal/domain"
	"meeting_relay/internal/metrics"
	apperrors "meeting_relay/pkg/errors"
	"meeting_relay/pkg/logger"
	"meeting_relay/pkg/protocol"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
)

// MembershipObserver получает изменения членства после того, как они
// применены к реестру. Вызывается из горутины чтения соединения.
type MembershipObserver interface {
	ParticipantJoined(ctx context.Context, roomID string, member domain.RoomMember)
	ParticipantLeft(ctx context.Context, roomID string, member domain.RoomMember, reason domain.LeaveReason)
}

type Options struct {
	WriteWait     time.Duration
	PongWait      time.Duration
	PingPeriod    time.Duration
	MaxFrameBytes int64
	SendBuffer    int
	MaxTextLength int
	// Таймаут вызовов MembershipObserver
	ObserverTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = 64 * 1024
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.MaxTextLength <= 0 {
		o.MaxTextLength = 4000
	}
	if o.ObserverTimeout <= 0 {
		o.ObserverTimeout = 2 * time.Second
	}
	return o
}

// Hub - реестр комнат релея. Членство в комнатах хранится только здесь.
type Hub struct {
	opts     Options
	observer MembershipObserver
	validate *validator.Validate
	log      logger.Logger

	newID func() string
	now   func() time.Time

	mu       sync.Mutex
	rooms    map[string]*Room
	conns    map[*Conn]struct{}
	shutdown bool

	// Соединения, чей выход еще не доставлен наблюдателю
	served sync.WaitGroup
}

func NewHub(opts Options, observer MembershipObserver, log logger.Logger) *Hub {
	return &Hub{
		opts:     opts.withDefaults(),
		observer: observer,
		validate: validator.New(),
		log:      log,
		newID:    func() string { return ulid.Make().String() },
		now:      time.Now,
		rooms:    make(map[string]*Room),
		conns:    make(map[*Conn]struct{}),
	}
}

// Members возвращает участников комнаты в порядке входа
func (h *Hub) Members(roomID string) ([]domain.RoomMember, error) {
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	h.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("room %q: %w", roomID, apperrors.ErrRoomNotFound)
	}
	return room.snapshot(), nil
}

func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Shutdown закрывает все соединения и ждет, пока каждое пройдет свой путь
// выхода, включая вызов MembershipObserver, либо до отмены ctx.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.shutdown = true
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	h.log.Info("Closing relay connections", "count", len(conns))
	for _, c := range conns {
		c.Close()
	}

	drained := make(chan struct{})
	go func() {
		h.served.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("relay shutdown: %w", ctx.Err())
	}
}

func (h *Hub) register(c *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.shutdown {
		return false
	}
	h.conns[c] = struct{}{}
	h.served.Add(1)
	metrics.ConnectionsActive.Inc()
	return true
}

// disconnect - обязательный запасной путь: соединение, пропавшее без leave,
// все равно объявляется вышедшим.
func (h *Hub) disconnect(c *Conn) {
	h.mu.Lock()
	_, registered := h.conns[c]
	delete(h.conns, c)
	reason := domain.LeaveReasonDisconnect
	if h.shutdown {
		reason = domain.LeaveReasonShutdown
	}
	h.mu.Unlock()

	if registered {
		defer h.served.Done()
		metrics.ConnectionsActive.Dec()
	}
	h.leave(c, reason)
}

func (h *Hub) roomFor(roomID string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, ok := h.rooms[roomID]; ok {
		if !room.isClosed() {
			return room
		}
		metrics.RoomsActive.Dec()
	}

	room := newRoom(roomID)
	h.rooms[roomID] = room
	metrics.RoomsActive.Inc()
	return room
}

func (h *Hub) dropRoom(room *Room) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.rooms[room.id]; ok && current == room {
		delete(h.rooms, room.id)
		metrics.RoomsActive.Dec()
		h.log.Debug("Room removed (empty)", "room_id", room.id)
	}
}

// Join регистрирует соединение в комнате. Повторный join с той же
// идентичностью ничего не делает; join с другой идентичностью сначала
// выполняет выход из прежней комнаты. Пустые после обрезки пробелов
// комната или участник отклоняются.
func (h *Hub) Join(c *Conn, payload protocol.MembershipPayload) error {
	roomID := strings.TrimSpace(payload.RoomID)
	participant := protocol.ParticipantIdentity{
		ParticipantID: strings.TrimSpace(payload.ParticipantID),
		DisplayName:   strings.TrimSpace(payload.DisplayName),
	}
	if roomID == "" || participant.ParticipantID == "" {
		return fmt.Errorf("join: blank room or participant: %w", apperrors.ErrInvalidPayload)
	}
	participant.DisplayName = participant.Name()

	if j := c.joined; j != nil {
		if j.room.id == roomID && j.participant == participant {
			c.log.Debug("Duplicate join ignored", "room_id", roomID)
			return nil
		}
		h.leave(c, domain.LeaveReasonRejoin)
	}

	joinedAt := h.now()
	notice, err := h.notificationFrame(protocol.EventUserJoined, protocol.JoinedText(participant.Name()), joinedAt)
	if err != nil {
		c.log.Error("Failed to build join notification", "error", err)
		return err
	}

	var room *Room
	for {
		room = h.roomFor(roomID)
		if room.add(c, participant, joinedAt, notice) {
			break
		}
	}
	metrics.Broadcasts.WithLabelValues(protocol.EventUserJoined).Inc()

	c.joined = &joinedRoom{room: room, participant: participant, joinedAt: joinedAt}
	c.log.Info("Participant joined", "room_id", room.id, "participant_id", participant.ParticipantID)

	if h.observer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), h.opts.ObserverTimeout)
		defer cancel()
		h.observer.ParticipantJoined(ctx, room.id, c.joined.member(c))
	}
	return nil
}

// Leave обрабатывает явный leave-meeting-room. Идемпотентно: если
// соединение уже снято с регистрации, ничего не рассылается.
func (h *Hub) Leave(c *Conn, payload protocol.MembershipPayload) {
	j := c.joined
	if j == nil {
		c.log.Debug("Leave for connection without room ignored", "room_id", payload.RoomID)
		return
	}
	if j.room.id != strings.TrimSpace(payload.RoomID) {
		c.log.Warn("Leave for foreign room ignored", "room_id", payload.RoomID, "joined_room_id", j.room.id)
		return
	}
	h.leave(c, domain.LeaveReasonExplicit)
}

func (h *Hub) leave(c *Conn, reason domain.LeaveReason) bool {
	j := c.joined
	if j == nil {
		return false
	}
	c.joined = nil

	notice, err := h.notificationFrame(protocol.EventUserLeft, protocol.LeftText(j.participant.Name()), h.now())
	if err != nil {
		c.log.Error("Failed to build leave notification", "error", err)
		return false
	}

	removed, empty := j.room.remove(c, notice)
	if !removed {
		return false
	}
	if empty {
		h.dropRoom(j.room)
	} else {
		metrics.Broadcasts.WithLabelValues(protocol.EventUserLeft).Inc()
	}
	metrics.Departures.WithLabelValues(string(reason)).Inc()
	c.log.Info("Participant left", "room_id", j.room.id, "participant_id", j.participant.ParticipantID, "reason", reason)

	if h.observer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), h.opts.ObserverTimeout)
		defer cancel()
		h.observer.ParticipantLeft(ctx, j.room.id, j.member(c), reason)
	}
	return true
}

// Send рассылает сообщение всем участникам комнаты, включая отправителя.
// id всегда выдается сервером, timestampMs - если отправитель его не указал.
func (h *Hub) Send(c *Conn, payload protocol.SendMessagePayload) error {
	j := c.joined
	if j == nil || j.room.id != strings.TrimSpace(payload.RoomID) {
		return fmt.Errorf("send to %q: %w", payload.RoomID, apperrors.ErrNotJoined)
	}
	if payload.SenderID != j.participant.ParticipantID {
		return fmt.Errorf("sender %q is not %q: %w", payload.SenderID, j.participant.ParticipantID, apperrors.ErrNotJoined)
	}
	if strings.TrimSpace(payload.Text) == "" {
		return apperrors.ErrEmptyMessage
	}
	if utf8.RuneCountInString(payload.Text) > h.opts.MaxTextLength {
		return fmt.Errorf("%d runes allowed: %w", h.opts.MaxTextLength, apperrors.ErrMessageTooLong)
	}

	senderName := strings.TrimSpace(payload.SenderName)
	if senderName == "" {
		senderName = j.participant.Name()
	}
	timestampMs := payload.TimestampMs
	if timestampMs == 0 {
		timestampMs = h.now().UnixMilli()
	}

	frame, err := encodeFrame(protocol.EventReceiveMessage, protocol.ChatMessagePayload{
		ID:          h.newID(),
		SenderID:    payload.SenderID,
		SenderName:  senderName,
		Text:        payload.Text,
		TimestampMs: timestampMs,
	})
	if err != nil {
		return err
	}

	j.room.broadcast(frame, nil)
	metrics.Broadcasts.WithLabelValues(protocol.EventReceiveMessage).Inc()
	return nil
}

// dispatch обрабатывает один входящий фрейм. Фреймы одного соединения
// обрабатываются строго по порядку поступления.
func (h *Hub) dispatch(c *Conn, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.reject(c, fmt.Errorf("frame: %v: %w", err, apperrors.ErrInvalidPayload))
		return
	}
	metrics.FramesReceived.WithLabelValues(eventLabel(env.Event)).Inc()

	var err error
	switch env.Event {
	case protocol.EventJoinRoom:
		var payload protocol.MembershipPayload
		if err = h.decode(env, &payload); err == nil {
			err = h.Join(c, payload)
		}
	case protocol.EventLeaveRoom:
		var payload protocol.MembershipPayload
		if err = h.decode(env, &payload); err == nil {
			h.Leave(c, payload)
		}
	case protocol.EventSendMessage:
		var payload protocol.SendMessagePayload
		if err = h.decode(env, &payload); err == nil {
			err = h.Send(c, payload)
		}
	default:
		err = fmt.Errorf("%q: %w", env.Event, apperrors.ErrUnknownEvent)
	}

	if err != nil {
		h.reject(c, err)
	}
}

func (h *Hub) decode(env protocol.Envelope, payload interface{}) error {
	if err := env.Decode(payload); err != nil {
		return err
	}
	if err := h.validate.Struct(payload); err != nil {
		return fmt.Errorf("%s: %v: %w", env.Event, err, apperrors.ErrInvalidPayload)
	}
	return nil
}

func (h *Hub) reject(c *Conn, err error) {
	code := apperrors.RelayCodeFromError(err)
	metrics.RejectedFrames.WithLabelValues(code).Inc()
	c.log.Debug("Frame rejected", "code", code, "error", err)

	frame, encErr := encodeFrame(protocol.EventRelayError, protocol.ErrorPayload{Code: code, Message: err.Error()})
	if encErr != nil {
		c.log.Error("Failed to encode relay error", "error", encErr)
		return
	}
	c.enqueue(frame)
}

func (h *Hub) notificationFrame(event, text string, at time.Time) ([]byte, error) {
	return encodeFrame(event, protocol.NotificationPayload{
		ID:          h.newID(),
		SenderID:    protocol.SystemSenderID,
		SenderName:  protocol.SystemSenderName,
		Text:        text,
		TimestampMs: at.UnixMilli(),
		Kind:        protocol.EntryKindNotification,
	})
}

func encodeFrame(event string, payload interface{}) ([]byte, error) {
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func eventLabel(event string) string {
	switch event {
	case protocol.EventJoinRoom, protocol.EventLeaveRoom, protocol.EventSendMessage:
		return event
	default:
		return "unknown"
	}
}
