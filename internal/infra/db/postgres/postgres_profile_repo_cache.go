package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"interview-copilot/internal/domain/model"
	"interview-copilot/internal/domain/ports/repository"
	"interview-copilot/internal/infra/metrics"
	red "interview-copilot/internal/infra/redis"
)

var _ repository.ProfileRepository = (*profileRepoCacheDecorator)(nil)

// Cache is the subset of the Redis client the decorators need.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// profileRepoCacheDecorator fronts profile lookups with Redis. Profiles are
// written by another service, so entries only expire by TTL.
type profileRepoCacheDecorator struct {
	inner repository.ProfileRepository
	cache Cache
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewProfileRepoCacheDecorator(inner repository.ProfileRepository, cache Cache, ttl time.Duration, logger *zerolog.Logger) repository.ProfileRepository {
	l := logger.With().Str("component", "ProfileCache").Logger()
	return &profileRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: &l}
}

func profileKey(requesterID string) string { return "profile:" + requesterID }

func (d *profileRepoCacheDecorator) FindByRequester(ctx context.Context, requesterID string) (*model.Profile, error) {
	key := profileKey(requesterID)
	val, err := d.cache.Get(ctx, key)
	switch {
	case err == nil:
		var p model.Profile
		if json.Unmarshal([]byte(val), &p) == nil {
			metrics.IncCacheRequest("profile", "hit")
			return &p, nil
		}
		metrics.IncCacheRequest("profile", "error")
	case red.IsMiss(err):
		metrics.IncCacheRequest("profile", "miss")
	default:
		metrics.IncCacheRequest("profile", "error")
		d.log.Warn().Err(err).Msg("profile cache read failed")
	}

	p, err := d.inner.FindByRequester(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(p); err == nil {
		if err := d.cache.Set(ctx, key, b, d.ttl); err != nil {
			d.log.Warn().Err(err).Msg("profile cache write failed")
		}
	}
	return p, nil
}
