package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"icepos/backend/internal/cache"
	"icepos/backend/internal/domain"
	"icepos/backend/internal/store"
	"icepos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Service carries the shift, sale, stock-intake and reporting flows.
// It owns no locks: every concurrency guarantee is delegated to the
// repository's atomic primitives.
type Service struct {
	repo        store.Repository
	statusCache cache.StatusCache
	liveTTL     time.Duration
	log         logrus.FieldLogger
}

func New(repo store.Repository, statusCache cache.StatusCache, liveTTL time.Duration, log logrus.FieldLogger) *Service {
	if statusCache == nil {
		statusCache = cache.NoopStatusCache{}
	}
	if liveTTL <= 0 {
		liveTTL = 10 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Service{
		repo:        repo,
		statusCache: statusCache,
		liveTTL:     liveTTL,
		log:         log,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

// logAudit records an action best-effort. Audit failures never fail the
// operation that triggered them.
func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("aud"),
		Actor:      actor.Username,
		ActorRole:  actor.Role.String(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		s.log.WithFields(logrus.Fields{
			"action": action,
			"entity": entityType + "/" + entityID,
		}).WithError(err).Warn("audit log write failed")
	}
}
