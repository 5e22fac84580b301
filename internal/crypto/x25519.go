package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of X25519 keys and of the derived shared secret.
const KeySize = 32

// sharedSecretInfo domain-separates the HKDF output from other uses of the
// same DH value.
var sharedSecretInfo = []byte("tether/shared-secret/v1")

// ErrLowOrderKey is returned when a peer public key produces an all-zero
// Diffie-Hellman output.
var ErrLowOrderKey = errors.New("crypto: low-order public key")

// PublicKey is a Curve25519 public key.
type PublicKey [KeySize]byte

// Slice returns the key as a []byte.
func (p PublicKey) Slice() []byte { return p[:] }

// SecretKey is a Curve25519 private key.
type SecretKey [KeySize]byte

// Slice returns the key as a []byte.
func (k SecretKey) Slice() []byte { return k[:] }

// SharedSecret is the symmetric key both endpoints derive independently.
type SharedSecret [KeySize]byte

// Wipe zeroes the secret in place.
func (s *SharedSecret) Wipe() { Wipe(s[:]) }

// KeyPair is an X25519 key pair owned by exactly one endpoint.
type KeyPair struct {
	PublicKey PublicKey
	SecretKey SecretKey
}

// Wipe zeroes the secret half of the pair.
func (kp *KeyPair) Wipe() { Wipe(kp.SecretKey[:]) }

// GenerateKeyPair returns a fresh Curve25519 key pair.
// The private key is clamped per RFC 7748.
func GenerateKeyPair() (KeyPair, error) {
	return generateKeyPair(rand.Reader)
}

func generateKeyPair(r io.Reader) (kp KeyPair, err error) {
	if _, err = io.ReadFull(r, kp.SecretKey[:]); err != nil {
		return KeyPair{}, fmt.Errorf("crypto: read entropy: %w", err)
	}
	clamp(&kp.SecretKey)
	pub, err := curve25519.X25519(kp.SecretKey.Slice(), curve25519.Basepoint)
	if err != nil {
		kp.Wipe()
		return KeyPair{}, err
	}
	copy(kp.PublicKey[:], pub)
	return kp, nil
}

// DeriveSharedSecret computes X25519(ourSecret, theirPublic) and stretches it
// with HKDF-SHA256. derive(A.secret, B.public) == derive(B.secret, A.public).
func DeriveSharedSecret(ourSecret SecretKey, theirPublic PublicKey) (SharedSecret, error) {
	var out SharedSecret

	dh, err := curve25519.X25519(ourSecret.Slice(), theirPublic.Slice())
	if err != nil {
		// x/crypto reports the all-zero output as an error.
		return out, fmt.Errorf("%w: %v", ErrLowOrderKey, err)
	}
	defer Wipe(dh)

	r := hkdf.New(sha256.New, dh, nil, sharedSecretInfo)
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return SharedSecret{}, fmt.Errorf("crypto: derive shared secret: %w", err)
	}
	return out, nil
}

// PublicKeyFromBytes copies b into a PublicKey, checking its length.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != KeySize {
		return pk, fmt.Errorf("crypto: public key must be %d bytes, got %d", KeySize, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

func clamp(k *SecretKey) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}
