package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/AntonTsoy/session-service/internal/metrics"
)

// RunSweeper removes expired records every interval until ctx is done.
// Reads never depend on it: expired records are already treated as absent.
func RunSweeper(ctx context.Context, registry Registry, interval time.Duration, log zerolog.Logger, m *metrics.Metrics) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			n, err := registry.Sweep(ctx, now)
			if err != nil {
				log.Warn().Err(err).Msg("sweep expired sessions")
				continue
			}
			m.Swept(n)
			if n > 0 {
				log.Debug().Int("removed", n).Msg("swept expired sessions")
			}
		}
	}
}
