package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"tether/internal/endpoint"
)

// pairCmd starts the desktop side: it prints the pairing code, waits for the
// mobile and then relays stdin and stdout.
func pairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pair",
		Short: "Start a desktop session and print the pairing code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := wire.NewDesktop()
			if err != nil {
				return err
			}
			defer d.Close()

			code, err := d.PairingString()
			if err != nil {
				return err
			}
			fmt.Printf("Pairing code (scan or paste on the mobile):\n\n%s\n\nFingerprint: %s\n", code, d.Fingerprint())

			r := endpoint.NewDesktopRunner(d, interactiveConfig(cmd))
			onPaired := func() {
				if passphrase == "" {
					log.Warn().Msg("No passphrase given; pairing will not be saved")
					return
				}
				if err := wire.SaveDesktop(passphrase, d); err != nil {
					log.Error().Err(err).Msg("Failed to save pairing")
					return
				}
				log.Info().Str("dir", wire.Pairings.Dir()).Msg("Pairing saved")
			}
			return runInteractive(cmd, r, onPaired)
		},
	}
}
