package relayclient

import (
	"sync"
	"time"

	"meeting_relay/pkg/logger"
	"meeting_relay/pkg/protocol"
)

type Options struct {
	Dialer         Dialer
	SettleDelay    time.Duration
	CloseTimeout   time.Duration
	MaxTextLength  int
	OutboundBuffer int
	ErrorBuffer    int
	Logger         logger.Logger
	OnEntry        func(entry protocol.ChatEntry)
	OnLifecycle    func(event LifecycleEvent, binding *protocol.ReadyBinding)
}

// Session - чат одной встречи на стороне клиента: готовность идентичности,
// соединение с релеем, журнал и исходящие сообщения.
type Session struct {
	gate      *Gate
	manager   *Manager
	messages  *MessageLog
	submitter *Submitter
	errs      chan error

	mu    sync.Mutex
	draft string

	closeOnce sync.Once
}

func NewSession(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.ErrorBuffer <= 0 {
		opts.ErrorBuffer = 16
	}
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = 4000
	}

	s := &Session{
		gate:     NewGate(),
		messages: NewMessageLog(opts.OnEntry),
		errs:     make(chan error, opts.ErrorBuffer),
	}

	mux := NewMultiplexer(s.messages, s.errs, opts.Logger)
	s.manager = NewManager(ManagerOptions{
		Dialer:         opts.Dialer,
		SettleDelay:    opts.SettleDelay,
		CloseTimeout:   opts.CloseTimeout,
		OutboundBuffer: opts.OutboundBuffer,
		Logger:         opts.Logger,
		OnLifecycle:    opts.OnLifecycle,
	}, mux)
	s.submitter = NewSubmitter(s.manager, opts.MaxTextLength)

	return s
}

// UpdateCall принимает новый снимок объекта звонка (nil - звонка нет)
func (s *Session) UpdateCall(call CallSession) {
	s.apply(s.gate.Observe(call))
}

func (s *Session) SetRoom(roomID string) {
	s.apply(s.gate.SetRoom(roomID))
}

func (s *Session) SetParticipant(participant *protocol.ParticipantIdentity) {
	s.apply(s.gate.SetParticipant(participant))
}

func (s *Session) apply(binding *protocol.ReadyBinding, changed bool) {
	if changed {
		s.manager.SetBinding(binding)
	}
}

func (s *Session) Binding() *protocol.ReadyBinding {
	return s.gate.Current()
}

func (s *Session) Submit(text string) (bool, error) {
	return s.submitter.Submit(text)
}

func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
}

func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// SubmitDraft отправляет черновик и очищает его, только если сообщение ушло
func (s *Session) SubmitDraft() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sent, err := s.submitter.Submit(s.draft)
	if sent {
		s.draft = ""
	}
	return sent, err
}

func (s *Session) Reconnect() {
	s.manager.Reconnect()
}

func (s *Session) Connected() bool {
	return s.manager.Connected()
}

func (s *Session) Entries() []protocol.ChatEntry {
	return s.messages.Entries()
}

// Errors - ошибки релея: неудачное подключение, обрыв, отказ сервера.
// Закрывается после Close.
func (s *Session) Errors() <-chan error {
	return s.errs
}

// Close отправляет leave, закрывает соединение и очищает журнал
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.manager.Close()
		s.messages.Clear()
		close(s.errs)
	})
}
