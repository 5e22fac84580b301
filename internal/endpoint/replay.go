package endpoint

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"tether/internal/crypto"
)

// Replay defaults.
const (
	DefaultReplayWindow     = 2 * time.Minute
	DefaultReplaySkew       = 30 * time.Second
	DefaultReplayMaxEntries = 4096
)

// ReplayConfig bounds what a ReplayGuard accepts.
type ReplayConfig struct {
	// Window is how old a message may be.
	Window time.Duration
	// Skew is how far in the future a message may be stamped.
	Skew time.Duration
	// MaxEntries caps the nonce cache; the oldest entries are evicted first.
	MaxEntries int
}

func (c *ReplayConfig) setDefaults() {
	if c.Window <= 0 {
		c.Window = DefaultReplayWindow
	}
	if c.Skew <= 0 {
		c.Skew = DefaultReplaySkew
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultReplayMaxEntries
	}
}

type seenNonce struct {
	nonce crypto.Nonce
	at    time.Time
	ts    int64
}

// ReplayGuard rejects envelopes with stale timestamps or repeated nonces.
// Nonces expire after twice the window, by which time their envelopes are
// already stale. Under MaxEntries pressure the oldest nonces go first, and
// the guard then refuses every envelope stamped at or before the newest
// evicted timestamp, since it can no longer tell those apart from replays.
type ReplayGuard struct {
	cfg ReplayConfig
	now func() time.Time

	mu    sync.Mutex
	seen  map[crypto.Nonce]time.Time
	order []seenNonce
	// floor is the highest envelope timestamp (ms) evicted for capacity.
	floor int64
}

// NewReplayGuard returns a guard with cfg, defaults filled in.
func NewReplayGuard(cfg ReplayConfig) *ReplayGuard {
	cfg.setDefaults()
	return &ReplayGuard{
		cfg:  cfg,
		now:  time.Now,
		seen: make(map[crypto.Nonce]time.Time),
	}
}

// SetClock overrides time.Now, for tests.
func (g *ReplayGuard) SetClock(now func() time.Time) { g.now = now }

// Check reports whether an envelope stamped timestampMs (Unix milliseconds)
// with nonce may be accepted. It does not record the nonce.
func (g *ReplayGuard) Check(nonce crypto.Nonce, timestampMs int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	ts := time.UnixMilli(timestampMs)
	if ts.Before(now.Add(-g.cfg.Window)) || ts.After(now.Add(g.cfg.Skew)) {
		return fmt.Errorf("%w: stamped %s, now %s", ErrStaleMessage,
			ts.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
	}
	if g.floor != 0 && timestampMs <= g.floor {
		return fmt.Errorf("%w: stamped at or before evicted %s", ErrStaleMessage,
			time.UnixMilli(g.floor).UTC().Format(time.RFC3339Nano))
	}
	g.expireLocked(now)
	if _, ok := g.seen[nonce]; ok {
		return ErrReplay
	}
	return nil
}

// Record remembers nonce, from an envelope stamped timestampMs, as accepted.
// Call it only after the envelope authenticated, so forged envelopes cannot
// fill the cache.
func (g *ReplayGuard) Record(nonce crypto.Nonce, timestampMs int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if _, ok := g.seen[nonce]; ok {
		return
	}
	g.seen[nonce] = now
	g.order = append(g.order, seenNonce{nonce: nonce, at: now, ts: timestampMs})

	for len(g.order) > g.cfg.MaxEntries {
		if ev := g.evictOldestLocked(); ev.ts > g.floor {
			g.floor = ev.ts
		}
	}
	if len(g.order) == g.cfg.MaxEntries {
		log.Debug().Int("entries", len(g.order)).Msg("Replay cache at capacity")
	}
}

// Len returns the number of remembered nonces.
func (g *ReplayGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.order)
}

func (g *ReplayGuard) expireLocked(now time.Time) {
	cutoff := now.Add(-2 * g.cfg.Window)
	for len(g.order) > 0 && g.order[0].at.Before(cutoff) {
		g.evictOldestLocked()
	}
}

func (g *ReplayGuard) evictOldestLocked() seenNonce {
	ev := g.order[0]
	delete(g.seen, ev.nonce)
	g.order[0] = seenNonce{}
	g.order = g.order[1:]
	return ev
}
