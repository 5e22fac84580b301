package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func resumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Rejoin the saved session with the saved keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			res, err := wire.Resume(passphrase, interactiveConfig(cmd))
			if err != nil {
				return err
			}
			defer res.Close()

			fmt.Printf("Resuming %s session %s via %s\n", res.Record.Role, res.Record.Session, res.Record.RelayURL)
			return runInteractive(cmd, res.Runner, nil)
		},
	}
}
