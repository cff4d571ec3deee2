package relayclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	apperrors "meeting_relay/pkg/errors"
	"meeting_relay/pkg/protocol"

	"github.com/gorilla/websocket"
)

// Conn - открытое соединение с релеем. WriteEnvelope вызывает только одна
// горутина записи, ReadEnvelope - только одна горутина чтения; Close можно
// вызывать из любой горутины, он разблокирует ReadEnvelope.
type Conn interface {
	WriteEnvelope(env protocol.Envelope) error
	// ReadEnvelope возвращает ошибку с ErrInvalidPayload для битого фрейма;
	// соединение при этом остается рабочим
	ReadEnvelope() (protocol.Envelope, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// WebSocketDialer подключается к релею по WebSocket
type WebSocketDialer struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	MaxFrameBytes    int64
}

func NewWebSocketDialer(url string) *WebSocketDialer {
	return &WebSocketDialer{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		WriteWait:        10 * time.Second,
		MaxFrameBytes:    64 * 1024,
	}
}

func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}

	ws, resp, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", d.URL, resp.Status, apperrors.ErrRelayUnavailable)
		}
		return nil, fmt.Errorf("dial %s: %v: %w", d.URL, err, apperrors.ErrRelayUnavailable)
	}
	if d.MaxFrameBytes > 0 {
		ws.SetReadLimit(d.MaxFrameBytes)
	}

	return &wsConn{ws: ws, writeWait: d.WriteWait}, nil
}

type wsConn struct {
	ws        *websocket.Conn
	writeWait time.Duration
	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) WriteEnvelope(env protocol.Envelope) error {
	if c.writeWait > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
	}
	return c.ws.WriteJSON(env)
}

func (c *wsConn) ReadEnvelope() (protocol.Envelope, error) {
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return protocol.Envelope{}, err
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return protocol.Envelope{}, fmt.Errorf("inbound frame: %v: %w", err, apperrors.ErrInvalidPayload)
		}
		return env, nil
	}
}

// Close отправляет close-фрейм и закрывает сокет; повторные вызовы ничего не делают
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
