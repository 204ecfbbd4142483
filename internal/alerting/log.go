package alerting

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes messages to the log instead of a chat. Used when no
// Telegram credentials are configured and by the simulate command.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier returns a notifier that logs every message at warn level.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs msg and never fails.
func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Warn().Str("kind", msg.Kind).Msg(msg.Text)
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
