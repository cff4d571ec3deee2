package service

import (
	"meeting_relay/internal/config"
	"meeting_relay/internal/repository"
	"meeting_relay/pkg/logger"
)

type Services struct {
	Presence   PresenceService
	Audit      AuditService
	Membership *MembershipService
}

func NewServices(repos *repository.Repositories, cfg *config.Config, log logger.Logger) *Services {
	services := &Services{
		Presence: NewPresenceService(repos.Presence, log),
	}

	if repos.Audit != nil {
		services.Audit = NewAuditService(repos.Audit, log)
		log.Info("Audit service initialized")
	}

	// Наблюдатель членства пишет только в настроенные хранилища
	var presence PresenceService
	if repos.Presence != nil {
		presence = services.Presence
	}
	services.Membership = NewMembershipService(presence, services.Audit, log)

	if cfg.IsProduction() && repos.Presence == nil {
		log.Warn("Running in production without presence mirror")
	}

	return services
}
