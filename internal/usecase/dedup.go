package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"interview-copilot/internal/domain"
	"interview-copilot/internal/domain/model"
	"interview-copilot/internal/domain/ports/repository"
)

const DefaultDedupWindow = 8 * time.Second

// DedupGuard suppresses a cleaned question that was already recorded for the
// same session within the window. It never writes.
type DedupGuard struct {
	questions repository.QuestionRepository
	window    time.Duration
	now       func() time.Time
	log       *zerolog.Logger
}

func NewDedupGuard(questions repository.QuestionRepository, window time.Duration, logger *zerolog.Logger) *DedupGuard {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	l := logger.With().Str("component", "DedupGuard").Logger()
	return &DedupGuard{questions: questions, window: window, now: time.Now, log: &l}
}

// Lookup returns the earlier record when text is a duplicate. Storage errors
// fail open.
func (g *DedupGuard) Lookup(ctx context.Context, sessionID, text string) (*model.QuestionRecord, bool) {
	since := g.now().Add(-g.window)
	rec, err := g.questions.FindRecentDuplicate(ctx, sessionID, model.NormalizeQuestion(text), since)
	switch {
	case err == nil:
		return rec, true
	case errors.Is(err, domain.ErrNotFound):
		return nil, false
	default:
		g.log.Warn().Err(err).Str("session_id", sessionID).Msg("dedup lookup failed; admitting question")
		return nil, false
	}
}

func (g *DedupGuard) IsDuplicate(ctx context.Context, sessionID, text string) bool {
	_, dup := g.Lookup(ctx, sessionID, text)
	return dup
}
