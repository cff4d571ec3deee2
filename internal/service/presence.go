package service

import (
	"context"

	"meeting_relay/internal/domain"
	"meeting_relay/internal/repository"
	apperrors "meeting_relay/pkg/errors"
	"meeting_relay/pkg/logger"
)

// PresenceService ведет зеркало присутствия в Redis. Источник истины по
// членству - реестр релея; зеркало нужно для просмотра между инстансами.
type PresenceService interface {
	Joined(ctx context.Context, roomID string, member domain.RoomMember) error
	Left(ctx context.Context, roomID string, member domain.RoomMember) error
	GetParticipants(ctx context.Context, roomID string) ([]*domain.PresenceEntry, error)
}

type presenceService struct {
	presenceRepo repository.PresenceRepository
	log          logger.Logger
}

func NewPresenceService(presenceRepo repository.PresenceRepository, log logger.Logger) PresenceService {
	return &presenceService{
		presenceRepo: presenceRepo,
		log:          log,
	}
}

func (s *presenceService) Joined(ctx context.Context, roomID string, member domain.RoomMember) error {
	return s.presenceRepo.AddParticipant(ctx, roomID, &domain.PresenceEntry{
		ParticipantID: member.ParticipantID,
		DisplayName:   member.DisplayName,
		ConnectionID:  member.ConnectionID,
		JoinedAt:      member.JoinedAt,
	})
}

func (s *presenceService) Left(ctx context.Context, roomID string, member domain.RoomMember) error {
	return s.presenceRepo.RemoveParticipant(ctx, roomID, member.ParticipantID, member.ConnectionID)
}

func (s *presenceService) GetParticipants(ctx context.Context, roomID string) ([]*domain.PresenceEntry, error) {
	if s.presenceRepo == nil {
		return nil, apperrors.ErrPresenceDisabled
	}
	return s.presenceRepo.GetParticipants(ctx, roomID)
}
