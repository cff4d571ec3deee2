package service

import (
	"context"
	"time"

	"meeting_relay/internal/domain"
	"meeting_relay/internal/repository"
	"meeting_relay/pkg/logger"

	"github.com/google/uuid"
)

type AuditService interface {
	LogMembership(ctx context.Context, eventType string, roomID string, member domain.RoomMember, payload map[string]interface{}) error
}

type auditService struct {
	auditRepo repository.AuditRepository
	log       logger.Logger
	now       func() time.Time
}

func NewAuditService(auditRepo repository.AuditRepository, log logger.Logger) AuditService {
	return &auditService{
		auditRepo: auditRepo,
		log:       log,
		now:       time.Now,
	}
}

func (s *auditService) LogMembership(ctx context.Context, eventType string, roomID string, member domain.RoomMember, payload map[string]interface{}) error {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["display_name"] = member.DisplayName

	auditLog := &domain.AuditLog{
		ID:            uuid.New(),
		EventTime:     s.now(),
		RoomID:        roomID,
		ParticipantID: member.ParticipantID,
		ConnectionID:  member.ConnectionID,
		EventType:     eventType,
		Payload:       payload,
	}

	return s.auditRepo.CreateLog(ctx, auditLog)
}
