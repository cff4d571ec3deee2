package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"meeting_relay/internal/config"
	"meeting_relay/internal/domain"
	"meeting_relay/internal/repository"
	apperrors "meeting_relay/pkg/errors"
	"meeting_relay/pkg/logger"

	"github.com/stretchr/testify/require"
)

type fakePresenceRepo struct {
	mu      sync.Mutex
	rooms   map[string]map[string]*domain.PresenceEntry
	failAdd bool
}

func newFakePresenceRepo() *fakePresenceRepo {
	return &fakePresenceRepo{rooms: make(map[string]map[string]*domain.PresenceEntry)}
}

func (r *fakePresenceRepo) AddParticipant(_ context.Context, roomID string, entry *domain.PresenceEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAdd {
		return errors.New("redis down")
	}
	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[string]*domain.PresenceEntry)
	}
	r.rooms[roomID][entry.ParticipantID] = entry
	return nil
}

func (r *fakePresenceRepo) RemoveParticipant(_ context.Context, roomID, participantID, connectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.rooms[roomID][participantID]; ok && entry.ConnectionID == connectionID {
		delete(r.rooms[roomID], participantID)
	}
	return nil
}

func (r *fakePresenceRepo) GetParticipants(_ context.Context, roomID string) ([]*domain.PresenceEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.PresenceEntry, 0)
	for _, e := range r.rooms[roomID] {
		out = append(out, e)
	}
	return out, nil
}

type fakeAuditRepo struct {
	mu   sync.Mutex
	logs []*domain.AuditLog
}

func (r *fakeAuditRepo) CreateLog(_ context.Context, log *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return nil
}

func member(connID, participantID, name string) domain.RoomMember {
	return domain.RoomMember{
		ConnectionID:  connID,
		ParticipantID: participantID,
		DisplayName:   name,
		JoinedAt:      time.UnixMilli(1_700_000_000_000),
	}
}

func TestMembershipService_MirrorsPresenceAndAudits(t *testing.T) {
	presenceRepo := newFakePresenceRepo()
	auditRepo := &fakeAuditRepo{}
	repos := &repository.Repositories{Presence: presenceRepo, Audit: auditRepo}
	services := NewServices(repos, &config.Config{}, logger.NewNop())
	ctx := context.Background()

	services.Membership.ParticipantJoined(ctx, "room-42", member("c1", "u1", "alice"))

	entries, err := services.Presence.GetParticipants(ctx, "room-42")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "alice", entries[0].DisplayName)

	services.Membership.ParticipantLeft(ctx, "room-42", member("c1", "u1", "alice"), domain.LeaveReasonDisconnect)

	entries, err = services.Presence.GetParticipants(ctx, "room-42")
	require.NoError(t, err)
	require.Empty(t, entries)

	require.Len(t, auditRepo.logs, 2)
	require.Equal(t, domain.EventTypeRoomJoined, auditRepo.logs[0].EventType)
	require.Equal(t, domain.EventTypeRoomLeft, auditRepo.logs[1].EventType)
	require.Equal(t, "disconnect", auditRepo.logs[1].Payload["reason"])
	require.Equal(t, "c1", auditRepo.logs[1].ConnectionID)
}

func TestMembershipService_StaleLeaveKeepsNewerConnection(t *testing.T) {
	presenceRepo := newFakePresenceRepo()
	services := NewServices(&repository.Repositories{Presence: presenceRepo}, &config.Config{}, logger.NewNop())
	ctx := context.Background()

	// Given u1 reconnected on c2 before c1's departure was processed
	services.Membership.ParticipantJoined(ctx, "room-42", member("c1", "u1", "alice"))
	services.Membership.ParticipantJoined(ctx, "room-42", member("c2", "u1", "alice"))
	services.Membership.ParticipantLeft(ctx, "room-42", member("c1", "u1", "alice"), domain.LeaveReasonDisconnect)

	entries, err := services.Presence.GetParticipants(ctx, "room-42")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "c2", entries[0].ConnectionID)
}

func TestMembershipService_ToleratesSinkFailures(t *testing.T) {
	presenceRepo := newFakePresenceRepo()
	presenceRepo.failAdd = true
	services := NewServices(&repository.Repositories{Presence: presenceRepo}, &config.Config{}, logger.NewNop())

	require.NotPanics(t, func() {
		services.Membership.ParticipantJoined(context.Background(), "room-42", member("c1", "u1", "alice"))
	})
}

func TestPresenceService_DisabledWithoutRedis(t *testing.T) {
	services := NewServices(&repository.Repositories{}, &config.Config{}, logger.NewNop())

	_, err := services.Presence.GetParticipants(context.Background(), "room-42")
	require.True(t, errors.Is(err, apperrors.ErrPresenceDisabled))
	require.Nil(t, services.Audit)

	// the observer is still safe to call
	services.Membership.ParticipantJoined(context.Background(), "room-42", member("c1", "u1", "alice"))
}
