package endpoint_test

import (
	"errors"
	"testing"
	"time"

	"tether/internal/crypto"
	"tether/internal/endpoint"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newGuard(cfg endpoint.ReplayConfig) (*endpoint.ReplayGuard, *clock) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	g := endpoint.NewReplayGuard(cfg)
	g.SetClock(clk.Now)
	return g, clk
}

func nonce(b byte) crypto.Nonce {
	var n crypto.Nonce
	n[0] = b
	return n
}

func TestReplayGuard_Window(t *testing.T) {
	g, clk := newGuard(endpoint.ReplayConfig{Window: 2 * time.Minute, Skew: 30 * time.Second})
	now := clk.now.UnixMilli()

	cases := []struct {
		name string
		ts   int64
		want error
	}{
		{"current", now, nil},
		{"just inside window", now - (2*time.Minute - time.Second).Milliseconds(), nil},
		{"too old", now - (2*time.Minute + time.Second).Milliseconds(), endpoint.ErrStaleMessage},
		{"small skew", now + (20 * time.Second).Milliseconds(), nil},
		{"too far ahead", now + time.Minute.Milliseconds(), endpoint.ErrStaleMessage},
	}
	for i, tc := range cases {
		err := g.Check(nonce(byte(i)), tc.ts)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestReplayGuard_RepeatedNonce(t *testing.T) {
	g, clk := newGuard(endpoint.ReplayConfig{})
	ts := clk.now.UnixMilli()

	if err := g.Check(nonce(1), ts); err != nil {
		t.Fatalf("first check: %v", err)
	}
	// Checking alone does not consume the nonce.
	if err := g.Check(nonce(1), ts); err != nil {
		t.Fatalf("second check before record: %v", err)
	}
	g.Record(nonce(1), ts)
	if err := g.Check(nonce(1), ts); !errors.Is(err, endpoint.ErrReplay) {
		t.Fatalf("after record: err = %v, want ErrReplay", err)
	}
	if err := g.Check(nonce(2), ts); err != nil {
		t.Fatalf("distinct nonce: %v", err)
	}
}

func TestReplayGuard_ExpiresAfterRetention(t *testing.T) {
	g, clk := newGuard(endpoint.ReplayConfig{Window: time.Minute})
	g.Record(nonce(1), clk.now.UnixMilli())

	clk.now = clk.now.Add(90 * time.Second)
	if err := g.Check(nonce(1), clk.now.UnixMilli()); !errors.Is(err, endpoint.ErrReplay) {
		t.Fatalf("within retention: err = %v", err)
	}

	clk.now = clk.now.Add(time.Minute)
	if err := g.Check(nonce(1), clk.now.UnixMilli()); err != nil {
		t.Fatalf("after retention: %v", err)
	}
	if g.Len() != 0 {
		t.Fatalf("Len = %d after expiry", g.Len())
	}
}

func TestReplayGuard_EvictsOldestAtCapacity(t *testing.T) {
	g, clk := newGuard(endpoint.ReplayConfig{MaxEntries: 3})
	for i := byte(1); i <= 4; i++ {
		g.Record(nonce(i), clk.now.UnixMilli())
		clk.now = clk.now.Add(time.Millisecond)
	}
	if g.Len() != 3 {
		t.Fatalf("Len = %d, want 3", g.Len())
	}
	ts := clk.now.UnixMilli()
	if err := g.Check(nonce(1), ts); err != nil {
		t.Fatalf("oldest nonce still cached: %v", err)
	}
	if err := g.Check(nonce(4), ts); !errors.Is(err, endpoint.ErrReplay) {
		t.Fatalf("newest nonce evicted: %v", err)
	}
}

func TestReplayGuard_EvictionRaisesFloor(t *testing.T) {
	g, clk := newGuard(endpoint.ReplayConfig{MaxEntries: 4})

	stamps := make([]int64, 5)
	for i := range stamps {
		stamps[i] = clk.now.UnixMilli()
		g.Record(nonce(byte(i)), stamps[i])
		clk.now = clk.now.Add(time.Second)
	}

	// nonce 0 was evicted but its stamp is still inside the window.
	if err := g.Check(nonce(0), stamps[0]); !errors.Is(err, endpoint.ErrStaleMessage) {
		t.Fatalf("evicted envelope replayed: err = %v, want ErrStaleMessage", err)
	}
	if err := g.Check(nonce(1), stamps[1]); !errors.Is(err, endpoint.ErrReplay) {
		t.Fatalf("cached envelope replayed: err = %v, want ErrReplay", err)
	}
	if err := g.Check(nonce(9), clk.now.UnixMilli()); err != nil {
		t.Fatalf("fresh envelope: %v", err)
	}
}
