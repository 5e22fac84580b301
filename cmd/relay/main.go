package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"tether/internal/app"
	"tether/internal/config"
	"tether/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configFile string
		envFile    string
		port       int
	)
	cmd := &cobra.Command{
		Use:          "relay",
		Short:        "Blind websocket relay for tether sessions",
		Version:      version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServer(config.Sources{File: configFile, EnvFile: envFile})
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Relay.Port = port
			}
			if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
				return err
			}

			log.Info().
				Str("version", version).
				Str("addr", cfg.Relay.Addr()).
				Dur("session_ttl", cfg.Relay.SessionTTL).
				Dur("heartbeat", cfg.Relay.HeartbeatInterval).
				Int("max_payload", cfg.Relay.MaxPayloadBytes).
				Msg("Starting relay")

			r, err := app.NewRelay(cfg, version)
			if err != nil {
				log.Error().Err(err).Msg("Relay setup failed")
				return err
			}
			if err := r.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Relay stopped")
				return err
			}
			log.Info().Msg("Relay stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "optional YAML config file")
	cmd.Flags().StringVar(&envFile, "env-file", "", "optional .env file (default ./.env if present)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides RELAY_PORT)")
	return cmd
}
