package relay

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RunSweeper removes expired sessions from reg every interval until ctx is
// cancelled. Each expired session is published as EventSessionExpired.
func RunSweeper(ctx context.Context, reg *Registry, interval time.Duration, events EventPublisher) {
	if events == nil {
		events = NopPublisher{}
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired := reg.sweep(reg.now())
			for _, s := range expired {
				events.Publish(newEvent(EventSessionExpired, s.ID, "", ""))
			}
			if len(expired) > 0 {
				log.Info().Int("expired", len(expired)).Msg("Swept expired sessions")
			}
		}
	}
}
