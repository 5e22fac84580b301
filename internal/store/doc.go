// Package store persists an endpoint's pairing so a session can be resumed
// after a restart without scanning a new code.
//
// Two files live in the configured home directory:
//   - pairing.json.enc holds the PairingRecord, including the secret key,
//     sealed with ChaCha20-Poly1305 under a scrypt-derived passphrase key.
//   - pairing.json holds PairingInfo in clear: role, relay URL and
//     fingerprints only, so status can be shown without the passphrase.
//
// The shared secret is never written; it is derived again on resume. Writes
// go through a temp file and rename.
package store
