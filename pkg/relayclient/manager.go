package relayclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	apperrors "meeting_relay/pkg/errors"
	"meeting_relay/pkg/logger"
	"meeting_relay/pkg/protocol"
)

// LifecycleEvent - наблюдаемые переходы соединения с релеем
type LifecycleEvent int

const (
	EventConnecting LifecycleEvent = iota
	EventOpened
	EventClosed
	EventConnectFailed
	EventConnectionLost
)

func (e LifecycleEvent) String() string {
	switch e {
	case EventConnecting:
		return "connecting"
	case EventOpened:
		return "opened"
	case EventClosed:
		return "closed"
	case EventConnectFailed:
		return "connect_failed"
	case EventConnectionLost:
		return "connection_lost"
	default:
		return "unknown"
	}
}

// EventHandler получает входящие фреймы и ошибки. Вызывается из цикла
// менеджера, поэтому не должен блокироваться.
type EventHandler interface {
	HandleEnvelope(binding protocol.ReadyBinding, env protocol.Envelope)
	HandleError(err error)
}

type ManagerOptions struct {
	Dialer       Dialer
	SettleDelay  time.Duration
	CloseTimeout time.Duration
	// Сколько исходящих фреймов может ждать записи
	OutboundBuffer int
	Logger         logger.Logger
	OnLifecycle    func(event LifecycleEvent, binding *protocol.ReadyBinding)
}

func (o ManagerOptions) withDefaults() ManagerOptions {
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = 2 * time.Second
	}
	if o.OutboundBuffer <= 0 {
		o.OutboundBuffer = 64
	}
	if o.Logger == nil {
		o.Logger = logger.NewNop()
	}
	return o
}

type connState int

const (
	stateDialing connState = iota
	stateOpen
	stateClosing
)

// activeConn - единственное соединение менеджера (в наборе, открыто или закрывается)
type activeConn struct {
	gen        uint64
	binding    protocol.ReadyBinding
	state      connState
	conn       Conn
	out        chan protocol.Envelope
	cancelDial context.CancelFunc
	announced  bool // был EventOpened
}

// liveConn публикуется для Send; out закрывается только под Manager.mu
type liveConn struct {
	binding protocol.ReadyBinding
	out     chan protocol.Envelope
}

type (
	bindingEvent struct{ binding *protocol.ReadyBinding }
	reconnectEvent struct{}
	closeEvent     struct{}
	dialResult     struct {
		gen  uint64
		conn Conn
		err  error
	}
	inboundEvent struct {
		gen uint64
		env protocol.Envelope
	}
	inboundErrorEvent struct {
		gen uint64
		err error
	}
	readerExited struct {
		gen uint64
		err error
	}
	writerExited struct {
		gen uint64
		err error
	}
)

// Manager владеет соединением с релеем. Все состояние соединения живет в
// одной горутине цикла; набор номера, чтение и запись только присылают
// в нее события.
type Manager struct {
	opts    ManagerOptions
	handler EventHandler
	log     logger.Logger

	events   chan interface{}
	loopDone chan struct{}

	closeOnce sync.Once
	connected atomic.Bool

	mu   sync.Mutex
	live *liveConn

	// Состояние ниже принадлежит горутине цикла
	pending     *protocol.ReadyBinding
	desired     *protocol.ReadyBinding
	active      *activeConn
	gen         uint64
	failed      bool
	closing     bool
	settleTimer *time.Timer
	closeTimer  *time.Timer
}

func NewManager(opts ManagerOptions, handler EventHandler) *Manager {
	opts = opts.withDefaults()
	m := &Manager{
		opts:     opts,
		handler:  handler,
		log:      opts.Logger,
		events:   make(chan interface{}, 64),
		loopDone: make(chan struct{}),
	}
	go m.loop()
	return m
}

// SetBinding сообщает новое значение готовности. Менеджер действует по
// последнему значению, продержавшемуся SettleDelay.
func (m *Manager) SetBinding(binding *protocol.ReadyBinding) {
	m.post(bindingEvent{binding: copyBinding(binding)})
}

// Reconnect повторяет подключение после ConnectFailed или ConnectionLost
func (m *Manager) Reconnect() {
	m.post(reconnectEvent{})
}

// Send ставит фрейм в очередь открытого соединения. Без соединения фрейм
// отбрасывается и возвращается false; в очередь на будущее ничего не кладется.
func (m *Manager) Send(build func(binding protocol.ReadyBinding) (protocol.Envelope, error)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.live == nil {
		return false, nil
	}
	if len(m.live.out) >= m.opts.OutboundBuffer {
		return false, fmt.Errorf("outbound queue full: %w", apperrors.ErrSlowConsumer)
	}

	env, err := build(m.live.binding)
	if err != nil {
		return false, err
	}
	m.live.out <- env
	return true, nil
}

func (m *Manager) Connected() bool {
	return m.connected.Load()
}

// Close отправляет leave, закрывает соединение и останавливает цикл.
// Возвращается не позже чем через CloseTimeout.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.post(closeEvent{})
	})
	<-m.loopDone
}

// post возвращает false, если цикл уже остановлен
func (m *Manager) post(ev interface{}) bool {
	select {
	case m.events <- ev:
		return true
	case <-m.loopDone:
		return false
	}
}

func (m *Manager) loop() {
	defer close(m.loopDone)

	for {
		var settleC, closeC <-chan time.Time
		if m.settleTimer != nil {
			settleC = m.settleTimer.C
		}
		if m.closeTimer != nil {
			closeC = m.closeTimer.C
		}

		select {
		case ev := <-m.events:
			m.handle(ev)
		case <-settleC:
			m.settleTimer = nil
			m.applyPending()
		case <-closeC:
			m.closeTimer = nil
			m.forceClose()
			return
		}

		if m.closing && m.active == nil {
			m.stopTimers()
			return
		}
	}
}

func (m *Manager) handle(ev interface{}) {
	switch ev := ev.(type) {
	case bindingEvent:
		m.schedule(ev.binding)
	case reconnectEvent:
		if m.failed {
			m.log.Debug("Reconnect requested")
		}
		m.failed = false
		m.reconcile()
	case closeEvent:
		m.beginClose()
	case dialResult:
		m.onDialResult(ev)
	case inboundEvent:
		if a := m.current(ev.gen); a != nil && a.state == stateOpen {
			m.handler.HandleEnvelope(a.binding, ev.env)
		}
	case inboundErrorEvent:
		if a := m.current(ev.gen); a != nil && a.state == stateOpen {
			m.handler.HandleError(ev.err)
		}
	case readerExited:
		m.onReaderExited(ev)
	case writerExited:
		m.onWriterExited(ev)
	}
}

func (m *Manager) current(gen uint64) *activeConn {
	if m.active == nil || m.active.gen != gen {
		return nil
	}
	return m.active
}

func (m *Manager) schedule(binding *protocol.ReadyBinding) {
	m.pending = binding
	if m.closing {
		return
	}
	if m.opts.SettleDelay == 0 {
		m.applyPending()
		return
	}
	if m.settleTimer != nil {
		m.settleTimer.Stop()
	}
	m.settleTimer = time.NewTimer(m.opts.SettleDelay)
}

func (m *Manager) applyPending() {
	if !protocol.SameBinding(m.pending, m.desired) {
		m.desired = copyBinding(m.pending)
		m.failed = false
	}
	m.reconcile()
}

// reconcile приводит соединение к desired. Новый набор начинается только
// когда прежнее соединение полностью закрыто.
func (m *Manager) reconcile() {
	if a := m.active; a != nil {
		if a.state == stateOpen && (m.closing || !protocol.SameBinding(m.desired, &a.binding)) {
			m.teardown(a, true)
		}
		return
	}
	if m.closing || m.desired == nil || m.failed {
		return
	}
	m.dial(*m.desired)
}

func (m *Manager) dial(binding protocol.ReadyBinding) {
	m.gen++
	ctx, cancel := context.WithCancel(context.Background())
	a := &activeConn{
		gen:        m.gen,
		binding:    binding,
		state:      stateDialing,
		cancelDial: cancel,
	}
	m.active = a
	m.emit(EventConnecting, &binding)
	m.log.Debug("Dialing relay", "room_id", binding.Room.RoomID, "participant_id", binding.Participant.ParticipantID)

	go func(gen uint64) {
		conn, err := m.opts.Dialer.Dial(ctx)
		if !m.post(dialResult{gen: gen, conn: conn, err: err}) && conn != nil {
			_ = conn.Close()
		}
	}(a.gen)
}

func (m *Manager) onDialResult(ev dialResult) {
	a := m.current(ev.gen)
	if a == nil {
		if ev.conn != nil {
			_ = ev.conn.Close()
		}
		return
	}
	a.cancelDial()

	if ev.err != nil {
		m.active = nil
		if m.closing {
			return
		}
		m.failed = true
		err := ev.err
		if !errors.Is(err, apperrors.ErrRelayUnavailable) {
			err = fmt.Errorf("%v: %w", err, apperrors.ErrRelayUnavailable)
		}
		m.log.Warn("Relay connection failed", "room_id", a.binding.Room.RoomID, "error", err)
		m.emit(EventConnectFailed, &a.binding)
		m.handler.HandleError(err)
		m.reconcile()
		return
	}

	a.conn = ev.conn
	a.out = make(chan protocol.Envelope, m.opts.OutboundBuffer+1)
	go m.writeLoop(a.gen, a.conn, a.out)
	go m.readLoop(a.gen, a.conn)

	// Готовность сменилась, пока шел набор: соединение сразу уходит
	if m.closing || !protocol.SameBinding(m.desired, &a.binding) {
		m.log.Debug("Dial finished for stale binding", "room_id", a.binding.Room.RoomID)
		a.state = stateOpen
		m.teardown(a, true)
		return
	}

	join, err := protocol.NewEnvelope(protocol.EventJoinRoom, a.binding.Membership())
	if err != nil {
		m.handler.HandleError(err)
		a.state = stateOpen
		m.teardown(a, false)
		return
	}

	a.state = stateOpen
	a.announced = true
	m.mu.Lock()
	a.out <- join
	m.live = &liveConn{binding: a.binding, out: a.out}
	m.mu.Unlock()
	m.connected.Store(true)

	m.log.Info("Relay connection opened", "room_id", a.binding.Room.RoomID, "participant_id", a.binding.Participant.ParticipantID)
	m.emit(EventOpened, &a.binding)
}

// teardown закрывает очередь; горутина записи допишет ее (leave последним)
// и закроет соединение
func (m *Manager) teardown(a *activeConn, sendLeave bool) {
	if a.state != stateOpen {
		return
	}
	a.state = stateClosing
	m.connected.Store(false)

	m.mu.Lock()
	if sendLeave {
		if leave, err := protocol.NewEnvelope(protocol.EventLeaveRoom, a.binding.Membership()); err == nil {
			a.out <- leave
		}
	}
	close(a.out)
	if m.live != nil && m.live.out == a.out {
		m.live = nil
	}
	m.mu.Unlock()
}

func (m *Manager) onReaderExited(ev readerExited) {
	a := m.current(ev.gen)
	if a == nil || a.state != stateOpen {
		return
	}
	m.lost(a, ev.err)
	m.teardown(a, false)
}

func (m *Manager) onWriterExited(ev writerExited) {
	a := m.current(ev.gen)
	if a == nil {
		return
	}
	if a.state == stateOpen {
		m.lost(a, ev.err)
		m.connected.Store(false)
		m.mu.Lock()
		if m.live != nil && m.live.out == a.out {
			m.live = nil
		}
		m.mu.Unlock()
	}

	m.active = nil
	if a.announced {
		m.log.Info("Relay connection closed", "room_id", a.binding.Room.RoomID)
		m.emit(EventClosed, &a.binding)
	}
	m.reconcile()
}

func (m *Manager) lost(a *activeConn, cause error) {
	m.failed = true
	err := fmt.Errorf("room %s: %v: %w", a.binding.Room.RoomID, cause, apperrors.ErrConnectionLost)
	m.log.Warn("Relay connection lost", "room_id", a.binding.Room.RoomID, "error", cause)
	m.emit(EventConnectionLost, &a.binding)
	m.handler.HandleError(err)
}

func (m *Manager) beginClose() {
	m.closing = true
	m.pending = nil
	m.desired = nil
	if m.settleTimer != nil {
		m.settleTimer.Stop()
		m.settleTimer = nil
	}

	if a := m.active; a != nil {
		if a.state == stateDialing {
			a.cancelDial()
		}
		m.teardown(a, true)
		m.closeTimer = time.NewTimer(m.opts.CloseTimeout)
	}
}

// forceClose срабатывает, если запись не успела за CloseTimeout
func (m *Manager) forceClose() {
	m.stopTimers()
	m.connected.Store(false)
	if a := m.active; a != nil && a.conn != nil {
		m.log.Warn("Relay connection close timed out", "room_id", a.binding.Room.RoomID)
		_ = a.conn.Close()
	}
	m.active = nil
}

func (m *Manager) stopTimers() {
	if m.settleTimer != nil {
		m.settleTimer.Stop()
		m.settleTimer = nil
	}
	if m.closeTimer != nil {
		m.closeTimer.Stop()
		m.closeTimer = nil
	}
}

func (m *Manager) emit(event LifecycleEvent, binding *protocol.ReadyBinding) {
	if m.opts.OnLifecycle != nil {
		m.opts.OnLifecycle(event, copyBinding(binding))
	}
}

func (m *Manager) writeLoop(gen uint64, conn Conn, out <-chan protocol.Envelope) {
	var err error
	for env := range out {
		if err = conn.WriteEnvelope(env); err != nil {
			break
		}
	}
	_ = conn.Close()
	m.post(writerExited{gen: gen, err: err})
}

func (m *Manager) readLoop(gen uint64, conn Conn) {
	for {
		env, err := conn.ReadEnvelope()
		if err != nil {
			if errors.Is(err, apperrors.ErrInvalidPayload) {
				if !m.post(inboundErrorEvent{gen: gen, err: err}) {
					return
				}
				continue
			}
			m.post(readerExited{gen: gen, err: err})
			return
		}
		if !m.post(inboundEvent{gen: gen, env: env}) {
			return
		}
	}
}
