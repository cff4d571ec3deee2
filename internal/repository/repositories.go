package repository

import (
	"time"

	"meeting_relay/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Repositories - необязательные хранилища: nil, если бэкенд не настроен
type Repositories struct {
	Presence PresenceRepository
	Audit    AuditRepository
}

func NewRepositories(db *pgxpool.Pool, rdb *redis.Client, presenceTTL time.Duration, log logger.Logger) *Repositories {
	repos := &Repositories{}

	if rdb != nil {
		repos.Presence = NewPresenceRepository(rdb, presenceTTL, log)
		log.Info("Presence repository initialized")
	} else {
		log.Warn("Redis is not configured, presence mirror disabled")
	}

	if db != nil {
		repos.Audit = NewAuditRepository(db, log)
		log.Info("Audit repository initialized")
	} else {
		log.Warn("Database is not configured, audit trail disabled")
	}

	return repos
}
