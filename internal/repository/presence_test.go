package repository

import (
	"context"
	"testing"
	"time"

	"meeting_relay/internal/domain"
	"meeting_relay/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newPresenceRepo(t *testing.T) (PresenceRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewPresenceRepository(rdb, time.Hour, logger.NewNop()), mr
}

func entry(participantID, connectionID string, joinedAtMs int64) *domain.PresenceEntry {
	return &domain.PresenceEntry{
		ParticipantID: participantID,
		DisplayName:   participantID + "-name",
		ConnectionID:  connectionID,
		JoinedAt:      time.UnixMilli(joinedAtMs).UTC(),
	}
}

func TestPresenceRepository_AddAndListInJoinOrder(t *testing.T) {
	repo, mr := newPresenceRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.AddParticipant(ctx, "room-42", entry("u2", "c2", 2000)))
	require.NoError(t, repo.AddParticipant(ctx, "room-42", entry("u1", "c1", 1000)))
	require.NoError(t, repo.AddParticipant(ctx, "room-7", entry("u3", "c3", 500)))

	entries, err := repo.GetParticipants(ctx, "room-42")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "u1", entries[0].ParticipantID)
	require.Equal(t, "u2", entries[1].ParticipantID)
	require.Equal(t, "u1-name", entries[0].DisplayName)

	require.Equal(t, time.Hour, mr.TTL("room:room-42:participants"))
}

func TestPresenceRepository_RemoveOnlyOwnConnection(t *testing.T) {
	repo, _ := newPresenceRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.AddParticipant(ctx, "room-42", entry("u1", "c2", 2000)))

	// Поздний выход старого соединения не трогает новую запись
	require.NoError(t, repo.RemoveParticipant(ctx, "room-42", "u1", "c1"))
	entries, err := repo.GetParticipants(ctx, "room-42")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, repo.RemoveParticipant(ctx, "room-42", "u1", "c2"))
	entries, err = repo.GetParticipants(ctx, "room-42")
	require.NoError(t, err)
	require.Empty(t, entries)

	// Повторное удаление безопасно
	require.NoError(t, repo.RemoveParticipant(ctx, "room-42", "u1", "c2"))
}

func TestPresenceRepository_TwoConnectionsOfOneParticipant(t *testing.T) {
	repo, _ := newPresenceRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.AddParticipant(ctx, "room-42", entry("u1", "c1", 1000)))
	require.NoError(t, repo.AddParticipant(ctx, "room-42", entry("u1", "c2", 2000)))

	entries, err := repo.GetParticipants(ctx, "room-42")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "c1", entries[0].ConnectionID)
	require.Equal(t, "c2", entries[1].ConnectionID)

	// Новое соединение уходит первым, старое остается в зеркале
	require.NoError(t, repo.RemoveParticipant(ctx, "room-42", "u1", "c2"))
	entries, err = repo.GetParticipants(ctx, "room-42")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "c1", entries[0].ConnectionID)
}

func TestPresenceRepository_UnknownRoomIsEmpty(t *testing.T) {
	repo, _ := newPresenceRepo(t)

	entries, err := repo.GetParticipants(context.Background(), "nope")
	require.NoError(t, err)
	require.Empty(t, entries)
}
