package repository

import (
	"context"

	"meeting_relay/internal/domain"
	"meeting_relay/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

type AuditRepository interface {
	CreateLog(ctx context.Context, log *domain.AuditLog) error
}

type auditRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewAuditRepository(db *pgxpool.Pool, log logger.Logger) AuditRepository {
	return &auditRepository{db: db, log: log}
}

func (r *auditRepository) CreateLog(ctx context.Context, auditLog *domain.AuditLog) error {
	query := `
		INSERT INTO relay_audit_log (id, event_time, room_id, participant_id, connection_id, event_type, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Exec(ctx, query,
		auditLog.ID, auditLog.EventTime, auditLog.RoomID, auditLog.ParticipantID,
		auditLog.ConnectionID, auditLog.EventType, auditLog.Payload,
	)
	if err != nil {
		r.log.Error("Failed to create audit log", "error", err)
		return err
	}

	return nil
}
