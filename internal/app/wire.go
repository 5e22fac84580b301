package app

import (
	"errors"
	"fmt"
	"time"

	"tether/internal/endpoint"
	"tether/internal/protocol"
	"tether/internal/relay"
	"tether/internal/store"
)

// Wire bundles the pairing store and relay dialer for the CLI.
type Wire struct {
	Pairings *store.PairingFileStore
	RelayURL string
	Dial     endpoint.Dialer
}

// NewWire constructs the CLI dependencies from cfg.
func NewWire(cfg Config) *Wire {
	dial := cfg.Dial
	if dial == nil {
		dial = relay.Dial
	}
	return &Wire{
		Pairings: store.NewPairingFileStore(cfg.Home),
		RelayURL: cfg.RelayURL,
		Dial:     dial,
	}
}

// RunnerConfig returns base runner settings using this wire's dialer.
func (w *Wire) RunnerConfig() endpoint.RunnerConfig {
	return endpoint.RunnerConfig{Dial: w.Dial}
}

// SaveDesktop persists a paired desktop so it can be resumed.
func (w *Wire) SaveDesktop(passphrase string, d *endpoint.Desktop) error {
	rec := store.PairingRecord{
		Role:      protocol.RoleDesktop,
		SessionID: d.SessionID(),
		RelayURL:  d.RelayURL(),
		KeyPair:   d.KeyPair(),
	}
	if peer, ok := d.PeerPublicKey(); ok {
		rec.PeerPublicKey = &peer
	}
	return w.Pairings.Save(passphrase, rec)
}

// SaveMobile persists a mobile pairing.
func (w *Wire) SaveMobile(passphrase string, m *endpoint.Mobile) error {
	desktop := m.DesktopPublicKey()
	return w.Pairings.Save(passphrase, store.PairingRecord{
		Role:          protocol.RoleMobile,
		SessionID:     m.SessionID(),
		RelayURL:      m.RelayURL(),
		KeyPair:       m.KeyPair(),
		PeerPublicKey: &desktop,
	})
}

// Resumed is a runner rebuilt from a saved pairing.
type Resumed struct {
	Runner *endpoint.Runner
	Record store.PairingInfo
	close  func()
}

// Close wipes the restored secret key.
func (r *Resumed) Close() { r.close() }

// Resume loads the saved pairing and builds a runner for its role. The
// saved keys are reused, so the peer sees the same fingerprint as before.
func (w *Wire) Resume(passphrase string, cfg endpoint.RunnerConfig) (*Resumed, error) {
	rec, err := w.Pairings.Load(passphrase)
	if err != nil {
		return nil, err
	}
	if cfg.Dial == nil {
		cfg.Dial = w.Dial
	}
	info := rec.Info()

	switch rec.Role {
	case protocol.RoleDesktop:
		d := endpoint.RestoreDesktop(rec.SessionID, rec.RelayURL, rec.KeyPair, rec.PeerPublicKey)
		rec.Wipe()
		return &Resumed{Runner: endpoint.NewDesktopRunner(d, cfg), Record: info, close: d.Close}, nil
	case protocol.RoleMobile:
		m := endpoint.RestoreMobile(rec.SessionID, rec.RelayURL, rec.KeyPair, *rec.PeerPublicKey)
		rec.Wipe()
		return &Resumed{Runner: endpoint.NewMobileRunner(m, cfg), Record: info, close: m.Close}, nil
	}
	return nil, fmt.Errorf("resume: unexpected role %q", rec.Role)
}

// ErrNoRelay is returned when a new pairing has no relay to point at.
var ErrNoRelay = errors.New("app: no relay url configured")

// NewDesktop starts a fresh pairing against the configured relay.
func (w *Wire) NewDesktop() (*endpoint.Desktop, error) {
	if w.RelayURL == "" {
		return nil, ErrNoRelay
	}
	return endpoint.NewDesktop(w.RelayURL)
}

// PairingAge reports how long ago the saved pairing was made.
func (w *Wire) PairingAge() (time.Duration, error) {
	info, err := w.Pairings.Info()
	if err != nil {
		return 0, err
	}
	return time.Since(info.CreatedAt), nil
}
