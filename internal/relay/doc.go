// Package relay implements the blind relay that pairs a desktop and a mobile
// endpoint by session id and forwards their frames to each other.
//
// The relay never sees plaintext or key material. It routes on the cleartext
// session id and role of each frame and forwards the payload string
// byte-for-byte; after the handshake that payload is an encrypted envelope it
// cannot open.
//
// Components:
//   - Registry holds sessions and their two role slots under a single lock.
//     Joining an occupied slot displaces the previous connection.
//   - Router is a per-frame state machine. It maps (connection, state, frame)
//     to a new state and a list of actions for the transport to perform.
//   - Server is the gin + gorilla/websocket transport: one reader and one
//     writer goroutine per connection, a sweeper for expired sessions, and the
//     /health, /ready and /metrics endpoints.
//   - Client is the endpoint side of the websocket connection.
//
// Wire protocol: endpoints send join, message, ping and leave frames and
// receive joined, peer_joined, peer_left, message, pong and error frames. On
// join the joiner gets joined and, when the other role is already present,
// both the existing peer and the joiner get peer_joined, so clients must
// expect peer_joined immediately after joined. A connection that has been
// displaced may no longer send; its message frames are answered with
// "Not joined to a session".
//
// Close codes: 1000 normal, 4000 session expired, 4001 replaced by a newer
// connection, 4002 slow consumer.
//
// Delivery is at-most-once. Nothing is queued for an absent peer; the sender
// gets a "Peer not connected" error instead.
package relay
