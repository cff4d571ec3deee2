package relayclient

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"meeting_relay/pkg/protocol"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu      sync.Mutex
	written []protocol.Envelope
	closed  bool

	inbound   chan protocol.Envelope
	closeCh   chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan protocol.Envelope, 16),
		closeCh: make(chan struct{}),
	}
}

func (c *fakeConn) WriteEnvelope(env protocol.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.ErrClosedPipe
	}
	c.written = append(c.written, env)
	return nil
}

func (c *fakeConn) ReadEnvelope() (protocol.Envelope, error) {
	select {
	case env := <-c.inbound:
		return env, nil
	case <-c.closeCh:
		return protocol.Envelope{}, io.EOF
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.closeCh)
	})
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.written))
	for _, env := range c.written {
		out = append(out, env.Event)
	}
	return out
}

func (c *fakeConn) envelopes() []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Envelope(nil), c.written...)
}

// push доставляет фрейм так, как будто его прислал сервер
func (c *fakeConn) push(t *testing.T, event string, payload interface{}) {
	t.Helper()
	env, err := protocol.NewEnvelope(event, payload)
	require.NoError(t, err)
	c.inbound <- env
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
	fail  error
	// Если задан, Dial ждет его закрытия
	hold chan struct{}
	// Сколько соединений было не закрыто в момент набора (максимум)
	maxOverlap int
}

func (d *fakeDialer) Dial(ctx context.Context) (Conn, error) {
	d.mu.Lock()
	d.dials++
	open := 0
	for _, c := range d.conns {
		if !c.isClosed() {
			open++
		}
	}
	if open > d.maxOverlap {
		d.maxOverlap = open
	}
	hold := d.hold
	d.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return nil, d.fail
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func (d *fakeDialer) setFail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = err
}

type lifecycleRecorder struct {
	mu     sync.Mutex
	events []LifecycleEvent
}

func (r *lifecycleRecorder) record(event LifecycleEvent, _ *protocol.ReadyBinding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *lifecycleRecorder) count(event LifecycleEvent) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func newTestSession(t *testing.T, dialer *fakeDialer, settle time.Duration) (*Session, *lifecycleRecorder) {
	t.Helper()
	rec := &lifecycleRecorder{}
	s := NewSession(Options{
		Dialer:        dialer,
		SettleDelay:   settle,
		CloseTimeout:  time.Second,
		MaxTextLength: 20,
		OnLifecycle:   rec.record,
	})
	t.Cleanup(s.Close)
	return s, rec
}

func participant(id, name string) *protocol.ParticipantIdentity {
	return &protocol.ParticipantIdentity{ParticipantID: id, DisplayName: name}
}

func waitConnected(t *testing.T, s *Session) {
	t.Helper()
	require.Eventually(t, s.Connected, waitFor, tick)
}

func waitEvents(t *testing.T, c *fakeConn, events ...string) {
	t.Helper()
	require.Eventually(t, func() bool {
		got := c.events()
		if len(got) != len(events) {
			return false
		}
		for i := range got {
			if got[i] != events[i] {
				return false
			}
		}
		return true
	}, waitFor, tick, "want %v", events)
}

func nextError(t *testing.T, s *Session) error {
	t.Helper()
	select {
	case err := <-s.Errors():
		return err
	case <-time.After(waitFor):
		t.Fatal("no error reported")
		return errors.New("unreachable")
	}
}
