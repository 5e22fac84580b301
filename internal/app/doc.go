// Package app wires tether's components for the two binaries.
//
// Relay assembles the registry, router, websocket server and lifecycle event
// publishers for the relay process. Wire assembles the pairing store and relay
// dialer for the CLI and turns saved or fresh pairings into endpoint Runners.
package app
