package app

import "tether/internal/endpoint"

// Config holds runtime wiring options for building the CLI.
type Config struct {
	Home     string          // pairing directory, e.g. $HOME/.tether
	RelayURL string          // relay URL for new pairings, e.g. ws://127.0.0.1:8080
	Dial     endpoint.Dialer // optional; defaults to relay.Dial
}
