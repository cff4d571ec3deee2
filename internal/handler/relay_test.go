package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"meeting_relay/internal/config"
	"meeting_relay/internal/middleware"
	"meeting_relay/internal/relay"
	"meeting_relay/internal/repository"
	"meeting_relay/internal/service"
	"meeting_relay/pkg/logger"
	"meeting_relay/pkg/protocol"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	hub *relay.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Relay: config.RelayConfig{URL: config.DefaultRelayURL},
	}
	log := logger.NewNop()
	services := service.NewServices(&repository.Repositories{}, cfg, log)
	hub := relay.NewHub(relay.Options{}, services.Membership, log)
	handlers := NewHandlers(services, hub, cfg, log)

	router := gin.New()
	router.Use(middleware.ErrorHandler())
	router.GET("/server-info", handlers.Health.ServerInfo)
	router.GET("/ws/chat", handlers.WebSocket.HandleRelay)
	router.GET("/api/v1/rooms/:id/participants", handlers.Room.GetParticipants)
	router.GET("/api/v1/rooms/:id/presence", handlers.Room.GetPresence)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, hub.Shutdown(ctx))
		srv.Close()
	})
	return &testServer{Server: srv, hub: hub}
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/chat"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func (s *testServer) participants(t *testing.T, roomID string) (int, []map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(s.URL + "/api/v1/rooms/" + roomID + "/participants")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Participants []map[string]interface{} `json:"participants"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body.Participants
}

func write(t *testing.T, ws *websocket.Conn, event string, payload interface{}) {
	t.Helper()
	env, err := protocol.NewEnvelope(event, payload)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(env))
}

func read(t *testing.T, ws *websocket.Conn) protocol.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	var env protocol.Envelope
	require.NoError(t, ws.ReadJSON(&env))
	return env
}

func TestRelay_AliceBobOverWebSocket(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.dial(t)
	bob := srv.dial(t)

	write(t, alice, protocol.EventJoinRoom, protocol.MembershipPayload{RoomID: "room-42", ParticipantID: "u1", DisplayName: "alice"})
	require.Eventually(t, func() bool {
		status, members := srv.participants(t, "room-42")
		return status == http.StatusOK && len(members) == 1
	}, 3*time.Second, 10*time.Millisecond)

	write(t, bob, protocol.EventJoinRoom, protocol.MembershipPayload{RoomID: "room-42", ParticipantID: "u2", DisplayName: "bob"})

	env := read(t, alice)
	require.Equal(t, protocol.EventUserJoined, env.Event)
	var joined protocol.NotificationPayload
	require.NoError(t, env.Decode(&joined))
	require.Equal(t, "bob joined the chat", joined.Text)
	require.Equal(t, protocol.SystemSenderID, joined.SenderID)

	write(t, bob, protocol.EventSendMessage, protocol.SendMessagePayload{RoomID: "room-42", SenderID: "u2", SenderName: "bob", Text: "hi"})

	for _, ws := range []*websocket.Conn{alice, bob} {
		env := read(t, ws)
		require.Equal(t, protocol.EventReceiveMessage, env.Event)
		var msg protocol.ChatMessagePayload
		require.NoError(t, env.Decode(&msg))
		require.Equal(t, "hi", msg.Text)
		require.Equal(t, "u2", msg.SenderID)
		require.NotEmpty(t, msg.ID)
		require.NotZero(t, msg.TimestampMs)
	}

	// Обрыв без leave
	require.NoError(t, bob.UnderlyingConn().Close())

	env = read(t, alice)
	require.Equal(t, protocol.EventUserLeft, env.Event)
	var left protocol.NotificationPayload
	require.NoError(t, env.Decode(&left))
	require.Equal(t, "bob left the chat", left.Text)

	status, members := srv.participants(t, "room-42")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, members, 1)
	require.Equal(t, "u1", members[0]["participant_id"])
}

func TestRelay_InvalidFrameKeepsConnection(t *testing.T) {
	srv := newTestServer(t)
	ws := srv.dial(t)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{not json")))

	env := read(t, ws)
	require.Equal(t, protocol.EventRelayError, env.Event)
	var payload protocol.ErrorPayload
	require.NoError(t, env.Decode(&payload))
	require.Equal(t, "invalid_payload", payload.Code)

	write(t, ws, protocol.EventJoinRoom, protocol.MembershipPayload{RoomID: "room-1", ParticipantID: "u1"})
	require.Eventually(t, func() bool {
		status, _ := srv.participants(t, "room-1")
		return status == http.StatusOK
	}, 3*time.Second, 10*time.Millisecond)
}

func TestRoomHandler_UnknownRoomAndDisabledPresence(t *testing.T) {
	srv := newTestServer(t)

	status, _ := srv.participants(t, "nope")
	require.Equal(t, http.StatusNotFound, status)

	resp, err := http.Get(srv.URL + "/api/v1/rooms/nope/presence")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealthHandler_ServerInfoAdvertisesRelay(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/server-info")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, config.DefaultRelayURL, body["relay_url"])
	require.Equal(t, "/api/v1", body["api_base"])
}
