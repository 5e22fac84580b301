package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"tether/internal/config"
	"tether/internal/relay"
)

// Relay is the assembled relay process.
type Relay struct {
	Registry *relay.Registry
	Server   *relay.Server
	nats     *relay.NATSPublisher
}

// NewRelay builds the relay from cfg. When NATS is configured, lifecycle
// events go to NATS as well as the log, and /ready tracks the NATS link.
func NewRelay(cfg *config.Server, version string) (*Relay, error) {
	reg := relay.NewRegistry(cfg.Relay.SessionTTL)

	var (
		events relay.EventPublisher = relay.LogPublisher{}
		nc     *relay.NATSPublisher
		ready  = func() error { return nil }
	)
	if cfg.NATS.URL != "" {
		var err error
		nc, err = relay.NewNATSPublisher(relay.NATSConfig{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			Name:          "tether-relay",
			ReconnectWait: 2 * time.Second,
			MaxReconnects: -1,
		})
		if err != nil {
			return nil, fmt.Errorf("nats: %w", err)
		}
		events = relay.MultiPublisher{relay.LogPublisher{}, nc}
		ready = func() error {
			if !nc.IsConnected() {
				return fmt.Errorf("nats disconnected")
			}
			return nil
		}
		log.Info().Str("url", cfg.NATS.URL).Str("prefix", cfg.NATS.SubjectPrefix).Msg("Publishing lifecycle events to NATS")
	}

	srv := relay.NewServer(relay.ServerConfig{
		Addr:              cfg.Relay.Addr(),
		Version:           version,
		HeartbeatInterval: cfg.Relay.HeartbeatInterval,
		CleanupInterval:   cfg.Relay.CleanupInterval,
		MaxPayloadBytes:   cfg.Relay.MaxPayloadBytes,
		SendBuffer:        cfg.Relay.SendBuffer,
		RateLimitRPS:      cfg.Relay.RateLimitRPS,
		RateLimitBurst:    cfg.Relay.RateLimitBurst,
	}, reg, relay.WithPublisher(events), relay.WithReadiness(ready))

	return &Relay{Registry: reg, Server: srv, nats: nc}, nil
}

// Run serves until ctx is cancelled, then drains the event publisher.
func (r *Relay) Run(ctx context.Context) error {
	defer r.Close()
	return r.Server.Run(ctx)
}

// Close releases the NATS connection, if any.
func (r *Relay) Close() {
	if r.nats != nil {
		r.nats.Close()
		r.nats = nil
	}
}
