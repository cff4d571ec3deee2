package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"meeting_relay/internal/domain"
	"meeting_relay/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const (
	// Ключ зеркала присутствия: hash participant_id:connection_id -> PresenceEntry (JSON)
	RoomParticipantsKeyPrefix = "room:%s:participants"
)

type PresenceRepository interface {
	// Добавить участника в зеркало присутствия комнаты
	AddParticipant(ctx context.Context, roomID string, entry *domain.PresenceEntry) error

	// Удалить участника. Удаляется только запись этого соединения:
	// у участника с двумя соединениями остается запись второго.
	RemoveParticipant(ctx context.Context, roomID string, participantID string, connectionID string) error

	// Получить участников комнаты в порядке входа
	GetParticipants(ctx context.Context, roomID string) ([]*domain.PresenceEntry, error)
}

type presenceRepository struct {
	rdb *redis.Client
	ttl time.Duration
	log logger.Logger
}

func NewPresenceRepository(rdb *redis.Client, ttl time.Duration, log logger.Logger) PresenceRepository {
	return &presenceRepository{
		rdb: rdb,
		ttl: ttl,
		log: log,
	}
}

func (r *presenceRepository) key(roomID string) string {
	return fmt.Sprintf(RoomParticipantsKeyPrefix, roomID)
}

func presenceField(participantID, connectionID string) string {
	return participantID + ":" + connectionID
}

func (r *presenceRepository) AddParticipant(ctx context.Context, roomID string, entry *domain.PresenceEntry) error {
	key := r.key(roomID)

	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal presence entry: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key, presenceField(entry.ParticipantID, entry.ConnectionID), entryJSON)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Error("Failed to save presence to Redis", "error", err, "room_id", roomID)
		return fmt.Errorf("failed to save presence: %w", err)
	}

	return nil
}

func (r *presenceRepository) RemoveParticipant(ctx context.Context, roomID string, participantID string, connectionID string) error {
	err := r.rdb.HDel(ctx, r.key(roomID), presenceField(participantID, connectionID)).Err()
	if err != nil && err != redis.Nil {
		r.log.Error("Failed to remove presence from Redis", "error", err, "room_id", roomID)
		return fmt.Errorf("failed to remove presence: %w", err)
	}
	return nil
}

func (r *presenceRepository) GetParticipants(ctx context.Context, roomID string) ([]*domain.PresenceEntry, error) {
	values, err := r.rdb.HGetAll(ctx, r.key(roomID)).Result()
	if err != nil {
		if err == redis.Nil {
			return []*domain.PresenceEntry{}, nil
		}
		r.log.Error("Failed to get presence from Redis", "error", err, "room_id", roomID)
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}

	entries := make([]*domain.PresenceEntry, 0, len(values))
	for _, raw := range values {
		var entry domain.PresenceEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			r.log.Warn("Failed to unmarshal presence entry", "error", err)
			continue
		}
		entries = append(entries, &entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].JoinedAt.Before(entries[j].JoinedAt)
	})

	return entries, nil
}
