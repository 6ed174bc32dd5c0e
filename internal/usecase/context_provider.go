package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"interview-copilot/internal/domain"
	"interview-copilot/internal/domain/model"
	"interview-copilot/internal/domain/ports/repository"
)

// ContextProvider resolves the profile folded into prompts. A missing or
// unreadable profile degrades to the empty profile.
type ContextProvider struct {
	profiles repository.ProfileRepository
	log      *zerolog.Logger
}

func NewContextProvider(profiles repository.ProfileRepository, logger *zerolog.Logger) *ContextProvider {
	l := logger.With().Str("component", "ContextProvider").Logger()
	return &ContextProvider{profiles: profiles, log: &l}
}

func (c *ContextProvider) Resolve(ctx context.Context, requesterID string) model.Profile {
	if c == nil || c.profiles == nil || requesterID == "" {
		return model.Profile{}
	}
	p, err := c.profiles.FindByRequester(ctx, requesterID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			c.log.Warn().Err(err).Str("requester_id", requesterID).Msg("profile lookup failed; continuing without context")
		}
		return model.Profile{RequesterID: requesterID}
	}
	return *p
}
