package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tether/internal/crypto"
	"tether/internal/pairing"
	"tether/internal/store"
)

// inspectCmd decodes a pairing code, or with no argument shows the saved
// pairing without needing the passphrase.
func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [pairing-code]",
		Short: "Decode a pairing code, or show the saved pairing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return showSaved()
			}
			code, err := pairing.Compact(strings.Join(args, " "))
			if err != nil {
				return err
			}
			hs, err := pairing.Decode(code)
			if err != nil {
				return err
			}
			pub, err := hs.PublicKey()
			if err != nil {
				return err
			}
			fmt.Printf("Version:     %s\n", hs.Version)
			fmt.Printf("Relay:       %s\n", hs.RelayURL)
			fmt.Printf("Session:     %s\n", crypto.FingerprintString(hs.SessionID))
			fmt.Printf("Fingerprint: %s\n", crypto.Fingerprint(pub[:]))
			fmt.Printf("Size:        %d/%d bytes\n", len(code), pairing.MaxEncodedLen)
			return nil
		},
	}
}

func showSaved() error {
	info, err := wire.Pairings.Info()
	if errors.Is(err, store.ErrNoPairing) {
		fmt.Println("No saved pairing.")
		return nil
	}
	if err != nil {
		return err
	}
	age, err := wire.PairingAge()
	if err != nil {
		return err
	}
	fmt.Printf("Role:             %s\n", info.Role)
	fmt.Printf("Relay:            %s\n", info.RelayURL)
	fmt.Printf("Session:          %s\n", info.Session)
	fmt.Printf("Fingerprint:      %s\n", info.Fingerprint)
	if info.PeerFingerprint != "" {
		fmt.Printf("Peer fingerprint: %s\n", info.PeerFingerprint)
	}
	fmt.Printf("Paired:           %s (%s ago)\n", info.CreatedAt.Local().Format(time.RFC1123), age.Truncate(time.Second))
	return nil
}
