package email

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/AntonTsoy/session-service/internal/user"
)

// Notifier is told when a login replaced a session that was still live,
// i.e. the account was signed in from a new place.
type Notifier interface {
	SessionSuperseded(ctx context.Context, identity user.Identity)
}

// LogNotifier writes the warning to the log instead of sending mail.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "email").Logger()}
}

func (n *LogNotifier) SessionSuperseded(ctx context.Context, identity user.Identity) {
	n.log.Warn().
		Str("subject_id", identity.SubjectID).
		Str("user", identity.DisplayName).
		Msg("new login replaced an active session")
}
