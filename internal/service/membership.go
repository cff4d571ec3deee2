package service

import (
	"context"
	"time"

	"meeting_relay/internal/domain"
	"meeting_relay/internal/metrics"
	"meeting_relay/pkg/logger"
)

// MembershipService получает изменения членства от релея и раскладывает их
// по зеркалу присутствия и журналу аудита. Ошибки хранилищ только
// логируются: релей продолжает работать без них.
type MembershipService struct {
	presence PresenceService
	audit    AuditService
	log      logger.Logger
}

func NewMembershipService(presence PresenceService, audit AuditService, log logger.Logger) *MembershipService {
	return &MembershipService{
		presence: presence,
		audit:    audit,
		log:      log,
	}
}

func (s *MembershipService) ParticipantJoined(ctx context.Context, roomID string, member domain.RoomMember) {
	if s.presence != nil {
		start := time.Now()
		if err := s.presence.Joined(ctx, roomID, member); err != nil {
			s.log.Warn("Presence update failed", "error", err, "room_id", roomID, "participant_id", member.ParticipantID)
		}
		metrics.MembershipSinkLatency.WithLabelValues("redis").Observe(time.Since(start).Seconds())
	}

	if s.audit != nil {
		start := time.Now()
		if err := s.audit.LogMembership(ctx, domain.EventTypeRoomJoined, roomID, member, nil); err != nil {
			s.log.Warn("Audit log failed", "error", err, "room_id", roomID, "participant_id", member.ParticipantID)
		}
		metrics.MembershipSinkLatency.WithLabelValues("postgres").Observe(time.Since(start).Seconds())
	}
}

func (s *MembershipService) ParticipantLeft(ctx context.Context, roomID string, member domain.RoomMember, reason domain.LeaveReason) {
	if s.presence != nil {
		start := time.Now()
		if err := s.presence.Left(ctx, roomID, member); err != nil {
			s.log.Warn("Presence update failed", "error", err, "room_id", roomID, "participant_id", member.ParticipantID)
		}
		metrics.MembershipSinkLatency.WithLabelValues("redis").Observe(time.Since(start).Seconds())
	}

	if s.audit != nil {
		start := time.Now()
		payload := map[string]interface{}{"reason": string(reason)}
		if err := s.audit.LogMembership(ctx, domain.EventTypeRoomLeft, roomID, member, payload); err != nil {
			s.log.Warn("Audit log failed", "error", err, "room_id", roomID, "participant_id", member.ParticipantID)
		}
		metrics.MembershipSinkLatency.WithLabelValues("postgres").Observe(time.Since(start).Seconds())
	}
}
