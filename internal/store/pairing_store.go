package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"tether/internal/crypto"
	"tether/internal/protocol"
)

const (
	pairingFile     = "pairing.json.enc"
	pairingInfoFile = "pairing.json"
)

// ErrNoPairing is returned when nothing has been saved yet.
var ErrNoPairing = errors.New("store: no saved pairing")

// PairingRecord is everything an endpoint needs to rejoin its session.
type PairingRecord struct {
	Role          protocol.Role     `json:"role"`
	SessionID     string            `json:"session_id"`
	RelayURL      string            `json:"relay_url"`
	KeyPair       crypto.KeyPair    `json:"key_pair"`
	PeerPublicKey *crypto.PublicKey `json:"peer_public_key,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Validate checks the fields a resume depends on.
func (r PairingRecord) Validate() error {
	if !r.Role.Valid() {
		return fmt.Errorf("store: invalid role %q", r.Role)
	}
	if !protocol.ValidSessionID(r.SessionID) {
		return errors.New("store: invalid session id")
	}
	if !protocol.ValidRelayURL(r.RelayURL) {
		return fmt.Errorf("store: invalid relay url %q", r.RelayURL)
	}
	if r.Role == protocol.RoleMobile && r.PeerPublicKey == nil {
		return errors.New("store: mobile record needs the desktop public key")
	}
	return nil
}

// Wipe clears the secret key.
func (r *PairingRecord) Wipe() { r.KeyPair.Wipe() }

// PairingInfo is the non-secret summary of a PairingRecord.
type PairingInfo struct {
	Role            protocol.Role `json:"role"`
	Session         string        `json:"session"`
	RelayURL        string        `json:"relay_url"`
	Fingerprint     string        `json:"fingerprint"`
	PeerFingerprint string        `json:"peer_fingerprint,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Info summarises r without secrets. The session id appears only as a
// fingerprint.
func (r PairingRecord) Info() PairingInfo {
	info := PairingInfo{
		Role:        r.Role,
		Session:     crypto.FingerprintString(r.SessionID),
		RelayURL:    r.RelayURL,
		Fingerprint: crypto.Fingerprint(r.KeyPair.PublicKey.Slice()),
		CreatedAt:   r.CreatedAt,
	}
	if r.PeerPublicKey != nil {
		info.PeerFingerprint = crypto.Fingerprint(r.PeerPublicKey.Slice())
	}
	return info
}

// PairingFileStore keeps one PairingRecord under a directory.
type PairingFileStore struct {
	dir string
	kdf scryptParams
	mu  sync.Mutex
}

// NewPairingFileStore returns a store rooted at dir. The directory is created
// on first save.
func NewPairingFileStore(dir string) *PairingFileStore {
	return &PairingFileStore{dir: dir, kdf: defaultScrypt}
}

// Dir returns the store directory.
func (s *PairingFileStore) Dir() string { return s.dir }

// Save encrypts rec under passphrase, replacing any previous pairing.
func (s *PairingFileStore) Save(passphrase string, rec PairingRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	defer crypto.Wipe(raw)

	sealed, err := encrypt(passphrase, raw, s.kdf)
	if err != nil {
		return fmt.Errorf("store: seal pairing: %w", err)
	}
	if err := writeFile(filepath.Join(s.dir, pairingFile), sealed, 0o600); err != nil {
		return fmt.Errorf("store: write pairing: %w", err)
	}
	if err := writeJSON(filepath.Join(s.dir, pairingInfoFile), rec.Info(), 0o600); err != nil {
		return fmt.Errorf("store: write pairing info: %w", err)
	}
	return nil
}

// Load decrypts the saved pairing.
func (s *PairingFileStore) Load(passphrase string) (PairingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sealed, err := readFile(filepath.Join(s.dir, pairingFile))
	if err != nil {
		return PairingRecord{}, err
	}
	if sealed == nil {
		return PairingRecord{}, ErrNoPairing
	}
	raw, err := decrypt(passphrase, sealed)
	if err != nil {
		return PairingRecord{}, err
	}
	defer crypto.Wipe(raw)

	var rec PairingRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return PairingRecord{}, fmt.Errorf("store: decode pairing: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return PairingRecord{}, err
	}
	return rec, nil
}

// Info reads the clear-text summary without the passphrase.
func (s *PairingFileStore) Info() (PairingInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var info PairingInfo
	found, err := readJSON(filepath.Join(s.dir, pairingInfoFile), &info)
	if err != nil {
		return PairingInfo{}, fmt.Errorf("store: read pairing info: %w", err)
	}
	if !found {
		return PairingInfo{}, ErrNoPairing
	}
	return info, nil
}

// Delete forgets the pairing.
func (s *PairingFileStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := removeFile(filepath.Join(s.dir, pairingFile)); err != nil {
		return err
	}
	return removeFile(filepath.Join(s.dir, pairingInfoFile))
}
