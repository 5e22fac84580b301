// Package protocol defines the messages exchanged between tether endpoints
// and the frames spoken to the relay.
//
// # Message families
//
//   - Handshake: HandshakeInit (out-of-band only), HandshakeResponse
//     (mobile to desktop, cleartext through the relay) and HandshakeComplete
//     (desktop to mobile).
//   - EncryptedEnvelope: the only shape that carries application data
//     through the relay. Routing fields are cleartext, the body is not.
//   - Application: Command (mobile to desktop) and Event (desktop to mobile),
//     which only ever exist as envelope plaintext.
//
// Every message carries a "type" discriminator. Parse reads the
// discriminator first and dispatches to the variant's validator; an
// unrecognised discriminator is ErrUnknownType, never a silent drop.
//
// # Relay frames
//
// Inbound and Outbound are the relay wire protocol. The relay validates the
// routing fields of an Inbound frame and treats Payload as opaque text.
//
// This package is pure data and validation: it performs no I/O.
package protocol
