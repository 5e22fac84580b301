package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// NonceSize is the XChaCha20-Poly1305 nonce length.
const NonceSize = chacha20poly1305.NonceSizeX

// ErrDecrypt is returned for every authentication failure. It deliberately
// does not say whether the key, nonce or ciphertext was wrong.
var ErrDecrypt = errors.New("crypto: could not decrypt")

// Nonce is a single-use XChaCha20-Poly1305 nonce.
type Nonce [NonceSize]byte

// Slice returns the nonce as a []byte.
func (n Nonce) Slice() []byte { return n[:] }

// NonceFromBytes copies b into a Nonce, checking its length.
func NonceFromBytes(b []byte) (Nonce, error) {
	var n Nonce
	if len(b) != NonceSize {
		return n, fmt.Errorf("crypto: nonce must be %d bytes, got %d", NonceSize, len(b))
	}
	copy(n[:], b)
	return n, nil
}

// GenerateNonce returns 24 random bytes. Never reuse a nonce with the same
// shared secret; call this once per Encrypt.
func GenerateNonce() (Nonce, error) {
	var n Nonce
	if _, err := io.ReadFull(rand.Reader, n[:]); err != nil {
		return n, fmt.Errorf("crypto: read entropy: %w", err)
	}
	return n, nil
}

// Encrypt seals plaintext under secret with a freshly generated nonce.
func Encrypt(plaintext []byte, secret SharedSecret) ([]byte, Nonce, error) {
	return EncryptWithAD(plaintext, nil, secret)
}

// EncryptWithAD is Encrypt with associated data bound to the ciphertext.
func EncryptWithAD(plaintext, ad []byte, secret SharedSecret) ([]byte, Nonce, error) {
	nonce, err := GenerateNonce()
	if err != nil {
		return nil, nonce, err
	}
	aead, err := chacha20poly1305.NewX(secret[:])
	if err != nil {
		return nil, nonce, err
	}
	return aead.Seal(nil, nonce[:], plaintext, ad), nonce, nil
}

// Decrypt opens ciphertext. Any mismatch yields ErrDecrypt.
func Decrypt(ciphertext []byte, nonce Nonce, secret SharedSecret) ([]byte, error) {
	return DecryptWithAD(ciphertext, nil, nonce, secret)
}

// DecryptWithAD opens ciphertext sealed by EncryptWithAD with the same ad.
func DecryptWithAD(ciphertext, ad []byte, nonce Nonce, secret SharedSecret) ([]byte, error) {
	if len(ciphertext) < chacha20poly1305.Overhead {
		return nil, ErrDecrypt
	}
	aead, err := chacha20poly1305.NewX(secret[:])
	if err != nil {
		return nil, ErrDecrypt
	}
	pt, err := aead.Open(nil, nonce[:], ciphertext, ad)
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}
