// Package commands defines the tether CLI and wires dependencies for
// subcommands.
//
// Commands
//
//   - pair     Start a desktop session and print the pairing code
//   - connect  Pair as the mobile from a pairing code
//   - resume   Rejoin the saved session with the saved keys
//   - inspect  Decode a pairing code, or show the saved pairing
//
// # Implementation
//
// The root command loads configuration (environment, optional .env, optional
// YAML via --config), sets up logging and builds an app.Wire before any
// subcommand runs. pair, connect and resume then run an endpoint.Runner:
// lines typed on stdin are sealed and sent to the peer, and messages from the
// peer are printed to stdout. With a passphrase the pairing is saved so
// resume can reconnect later.
package commands
