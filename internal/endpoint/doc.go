// Package endpoint implements the two ends of a tether session.
//
// # Pairing
//
// The desktop generates an ephemeral X25519 key pair and a random session id,
// and shows both, with the relay URL, as a pairing string (usually a QR code).
// The mobile decodes it, generates its own key pair and answers through the
// relay with a HandshakeResponse. Both sides derive the same shared secret;
// the desktop confirms with a HandshakeComplete.
//
// # Channel
//
// After the handshake every application message travels as an
// EncryptedEnvelope sealed with XChaCha20-Poly1305. The session id and sender
// role are bound in as associated data, so an envelope cannot be replayed
// into another session or reflected back at its sender. A ReplayGuard rejects
// stale timestamps and repeated nonces.
//
// # Runner
//
// Runner drives a Desktop or Mobile over a relay.Client, rejoins after
// connection loss with exponential backoff and hands decrypted application
// messages to a callback.
package endpoint
