package commands

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"tether/internal/endpoint"
	"tether/internal/pairing"
)

// connectCmd pairs as the mobile from a pairing code given as the argument.
func connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <pairing-code>",
		Short: "Pair as the mobile from a pairing code",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := pairing.Compact(strings.Join(args, " "))
			if err != nil {
				return err
			}
			m, err := endpoint.NewMobile(code)
			if err != nil {
				return fmt.Errorf("pairing code: %w", err)
			}
			defer m.Close()
			fmt.Printf("Desktop fingerprint: %s\nCheck that it matches the desktop screen.\n", m.DesktopFingerprint())

			r := endpoint.NewMobileRunner(m, interactiveConfig(cmd))
			onPaired := func() {
				if passphrase == "" {
					log.Warn().Msg("No passphrase given; pairing will not be saved")
					return
				}
				if err := wire.SaveMobile(passphrase, m); err != nil {
					log.Error().Err(err).Msg("Failed to save pairing")
					return
				}
				log.Info().Str("dir", wire.Pairings.Dir()).Msg("Pairing saved")
			}
			return runInteractive(cmd, r, onPaired)
		},
	}
}
