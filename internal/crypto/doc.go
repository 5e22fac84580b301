// Package crypto exposes the key and envelope primitives used by tether.
//
// Contents
//
//   - X25519 key pair generation and clamping (GenerateKeyPair)
//   - Shared-secret derivation: X25519 followed by HKDF-SHA256
//     (DeriveSharedSecret)
//   - XChaCha20-Poly1305 sealing with a fresh 24-byte nonce per call
//     (GenerateNonce, Encrypt, Decrypt and the WithAD variants)
//   - Constant-time comparison and best-effort wiping of secret material
//     (ConstantTimeEqual, Wipe)
//   - Short public-key fingerprints for display and logging (Fingerprint)
//
// # Notes
//
// Decrypt never panics on bad input. Every authentication failure, whether
// from a wrong secret, a mismatched nonce or modified ciphertext, is reported
// as ErrDecrypt so callers can treat it as an ordinary per-message outcome.
//
// Keys are fixed-size arrays. Callers should Wipe secrets at their last use
// site; under a garbage collector this reduces, but does not eliminate, the
// lifetime of secret bytes in memory.
package crypto
