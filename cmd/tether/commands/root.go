package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"tether/internal/app"
	"tether/internal/config"
	"tether/internal/logging"
)

var (
	home       string
	passphrase string
	relayURL   string
	configFile string
	envFile    string
	logLevel   string

	wire *app.Wire
)

// Execute runs the CLI until ctx is cancelled.
func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:           "tether",
		Short:         "Pair a desktop and a phone over an end-to-end encrypted relay",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient(config.Sources{File: configFile, EnvFile: envFile})
			if err != nil {
				return err
			}
			if home != "" {
				cfg.Home = home
			}
			if relayURL != "" {
				cfg.RelayURL = relayURL
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if passphrase == "" {
				passphrase = os.Getenv("TETHER_PASSPHRASE")
			}
			if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
				return err
			}
			wire = app.NewWire(app.Config{Home: cfg.Home, RelayURL: cfg.RelayURL})
			return nil
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "pairing dir (default ~/.tether)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the saved pairing (or TETHER_PASSPHRASE)")
	root.PersistentFlags().StringVar(&relayURL, "relay", "", "relay URL for new pairings (e.g. ws://127.0.0.1:8080)")
	root.PersistentFlags().StringVar(&configFile, "config", "", "optional YAML config file")
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "optional .env file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (default from LOG_LEVEL or info)")

	root.AddCommand(pairCmd(), connectCmd(), resumeCmd(), inspectCmd())
	return root.ExecuteContext(ctx)
}
