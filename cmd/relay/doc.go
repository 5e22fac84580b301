// Package main runs the tether relay.
//
// Endpoints
//
//	GET /ws
//	    Upgrade to a websocket carrying JSON relay frames. Inbound frames are
//	    {session_id, role, type, payload?} with type join, message, ping or
//	    leave. Outbound frames are {type, payload?, error?} with type joined,
//	    peer_joined, peer_left, message, pong or error.
//
//	GET /health
//	    {"status":"ok","version":...,"uptime":...,"totalSessions":n,"activeSessions":m}
//
//	GET /ready
//	    200 once serving, 503 if the configured event sink is disconnected.
//
//	GET /metrics
//	    Prometheus text format counters and gauges.
//
// Behaviour
//
//   - All state is held in memory and lost on process exit.
//   - Sessions expire SESSION_TTL after the last join or ping and are swept
//     every CLEANUP_INTERVAL.
//   - Websocket upgrades are rate limited per client IP.
//   - When NATS_URL is set, session lifecycle events are published to
//     <NATS_SUBJECT_PREFIX>.<event>. Events carry a fingerprint of the session
//     id, never the id itself or any payload.
//
// Configuration is read from the environment, an optional .env file and an
// optional YAML file given with --config.
package main
