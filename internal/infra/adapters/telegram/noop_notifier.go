package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"interview-copilot/internal/domain/ports/adapter"
)

var _ adapter.AlertNotifier = (*NoopNotifier)(nil)

// NoopNotifier logs alerts instead of sending them. Used when no bot token
// is configured.
type NoopNotifier struct {
	log *zerolog.Logger
}

func NewNoopNotifier(logger *zerolog.Logger) *NoopNotifier {
	l := logger.With().Str("component", "NoopNotifier").Logger()
	return &NoopNotifier{log: &l}
}

func (n *NoopNotifier) Notify(ctx context.Context, text string) error {
	n.log.Info().Str("alert", text).Msg("alert (not delivered)")
	return nil
}
