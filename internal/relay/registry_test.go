package relay_test

import (
	"sync"
	"testing"
	"time"

	"tether/internal/protocol"
	"tether/internal/relay"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClockedRegistry(ttl time.Duration) (*relay.Registry, *fakeClock) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	return relay.NewRegistry(ttl, relay.WithClock(clk.Now)), clk
}

func TestRegistry_PeerLookup(t *testing.T) {
	reg := relay.NewRegistry(time.Hour)
	d, m := newFakeConn("d"), newFakeConn("m")

	if _, _, peer := reg.AddClient("S", protocol.RoleDesktop, d); peer != nil {
		t.Fatal("peer reported before mobile joined")
	}
	if _, ok := reg.Peer("S", protocol.RoleDesktop); ok {
		t.Fatal("desktop has a peer before mobile joined")
	}

	_, displaced, peer := reg.AddClient("S", protocol.RoleMobile, m)
	if displaced != nil {
		t.Fatal("unexpected displacement")
	}
	if peer == nil || peer.Conn != d {
		t.Fatalf("mobile join peer = %+v, want desktop", peer)
	}

	got, ok := reg.Peer("S", protocol.RoleDesktop)
	if !ok || got.Conn != m || got.Role != protocol.RoleMobile {
		t.Fatalf("Peer(desktop) = %+v, %v", got, ok)
	}
	got, ok = reg.Peer("S", protocol.RoleMobile)
	if !ok || got.Conn != d {
		t.Fatalf("Peer(mobile) = %+v, %v", got, ok)
	}
}

func TestRegistry_DeletesWhenEmpty(t *testing.T) {
	reg := relay.NewRegistry(time.Hour)
	d, m := newFakeConn("d"), newFakeConn("m")
	reg.AddClient("S", protocol.RoleDesktop, d)
	reg.AddClient("S", protocol.RoleMobile, m)

	if _, ok := reg.RemoveClient("S", protocol.RoleDesktop); !ok {
		t.Fatal("remove desktop failed")
	}
	if _, ok := reg.Get("S"); !ok {
		t.Fatal("session deleted while mobile still present")
	}
	if _, ok := reg.RemoveClient("S", protocol.RoleMobile); !ok {
		t.Fatal("remove mobile failed")
	}
	if _, ok := reg.Get("S"); ok {
		t.Fatal("empty session not deleted")
	}
	if _, ok := reg.RemoveClient("S", protocol.RoleMobile); ok {
		t.Fatal("remove from missing session reported ok")
	}
}

func TestRegistry_Displacement(t *testing.T) {
	reg := relay.NewRegistry(time.Hour)
	old, repl := newFakeConn("old"), newFakeConn("new")

	reg.AddClient("S", protocol.RoleDesktop, old)
	_, displaced, _ := reg.AddClient("S", protocol.RoleDesktop, repl)
	if displaced == nil || displaced.Conn != old {
		t.Fatalf("displaced = %+v, want old conn", displaced)
	}

	sess, _ := reg.Get("S")
	if sess.Desktop == nil || sess.Desktop.Conn != repl {
		t.Fatal("replacement not installed")
	}
}

func TestRegistry_RemoveClientIfIgnoresStaleConn(t *testing.T) {
	reg := relay.NewRegistry(time.Hour)
	old, repl := newFakeConn("old"), newFakeConn("new")
	reg.AddClient("S", protocol.RoleDesktop, old)
	reg.AddClient("S", protocol.RoleDesktop, repl)

	if _, _, ok := reg.RemoveClientIf("S", protocol.RoleDesktop, old); ok {
		t.Fatal("stale connection evicted its replacement")
	}
	if _, _, ok := reg.RemoveClientIf("S", protocol.RoleDesktop, repl); !ok {
		t.Fatal("current connection could not be removed")
	}
	if _, ok := reg.Get("S"); ok {
		t.Fatal("empty session not deleted")
	}
}

func TestRegistry_StaleConnHasNoMembership(t *testing.T) {
	reg, clk := newClockedRegistry(time.Minute)
	d, old, repl := newFakeConn("d"), newFakeConn("old"), newFakeConn("new")
	reg.AddClient("S", protocol.RoleDesktop, d)
	reg.AddClient("S", protocol.RoleMobile, old)
	reg.AddClient("S", protocol.RoleMobile, repl)

	if peer, member := reg.PeerFor("S", protocol.RoleMobile, old); member || peer != nil {
		t.Fatalf("stale conn: member=%v peer=%v", member, peer)
	}
	peer, member := reg.PeerFor("S", protocol.RoleMobile, repl)
	if !member || peer == nil || peer.Conn != d {
		t.Fatalf("current conn: member=%v peer=%+v", member, peer)
	}
	if _, member := reg.PeerFor("missing", protocol.RoleMobile, repl); member {
		t.Fatal("membership in a missing session")
	}

	before, _ := reg.Get("S")
	clk.Advance(30 * time.Second)
	if reg.UpdateHeartbeatIf("S", protocol.RoleMobile, old) {
		t.Fatal("stale conn refreshed the replacement's heartbeat")
	}
	if after, _ := reg.Get("S"); !after.ExpiresAt.Equal(before.ExpiresAt) {
		t.Fatalf("expiry moved by stale heartbeat: %v -> %v", before.ExpiresAt, after.ExpiresAt)
	}
	if !reg.UpdateHeartbeatIf("S", protocol.RoleMobile, repl) {
		t.Fatal("current conn heartbeat failed")
	}
}

func TestRegistry_ConcurrentJoinsLeaveOneSurvivor(t *testing.T) {
	reg := relay.NewRegistry(time.Hour)
	const n = 32

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		displacedN int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, displaced, _ := reg.AddClient("S", protocol.RoleMobile, newFakeConn("c"))
			if displaced != nil {
				mu.Lock()
				displacedN++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if displacedN != n-1 {
		t.Fatalf("displacements = %d, want %d", displacedN, n-1)
	}
	sess, _ := reg.Get("S")
	if sess.Mobile == nil {
		t.Fatal("no survivor installed")
	}
}

func TestRegistry_HeartbeatExtendsTTL(t *testing.T) {
	reg, clk := newClockedRegistry(time.Minute)
	reg.AddClient("S", protocol.RoleDesktop, newFakeConn("d"))
	first, _ := reg.Get("S")

	clk.Advance(30 * time.Second)
	if !reg.UpdateHeartbeat("S", protocol.RoleDesktop) {
		t.Fatal("heartbeat for present client failed")
	}
	second, _ := reg.Get("S")
	if !second.ExpiresAt.After(first.ExpiresAt) {
		t.Fatal("heartbeat did not extend expiry")
	}
	if reg.UpdateHeartbeat("S", protocol.RoleMobile) {
		t.Fatal("heartbeat for absent role reported ok")
	}
}

func TestRegistry_TTLNeverRegresses(t *testing.T) {
	reg, clk := newClockedRegistry(time.Minute)
	reg.AddClient("S", protocol.RoleDesktop, newFakeConn("d"))
	before, _ := reg.Get("S")

	// A clock that steps backwards must not pull expiry in.
	clk.Advance(-10 * time.Second)
	reg.AddClient("S", protocol.RoleMobile, newFakeConn("m"))
	after, _ := reg.Get("S")

	if after.ExpiresAt.Before(before.ExpiresAt) {
		t.Fatalf("expiry moved back: %v -> %v", before.ExpiresAt, after.ExpiresAt)
	}
}

func TestRegistry_SweepClosesBothConnections(t *testing.T) {
	reg, clk := newClockedRegistry(time.Minute)
	d, m := newFakeConn("d"), newFakeConn("m")
	reg.AddClient("S", protocol.RoleDesktop, d)
	reg.AddClient("S", protocol.RoleMobile, m)
	reg.AddClient("fresh", protocol.RoleDesktop, newFakeConn("f"))

	if n := reg.SweepExpired(clk.Now()); n != 0 {
		t.Fatalf("swept %d live sessions", n)
	}

	clk.Advance(2 * time.Minute)
	reg.UpdateHeartbeat("fresh", protocol.RoleDesktop)

	if n := reg.SweepExpired(clk.Now()); n != 1 {
		t.Fatalf("swept %d sessions, want 1", n)
	}
	if d.closeCode() != relay.CloseSessionExpired || m.closeCode() != relay.CloseSessionExpired {
		t.Fatalf("close codes = %d, %d; want %d", d.closeCode(), m.closeCode(), relay.CloseSessionExpired)
	}
	if _, ok := reg.Get("S"); ok {
		t.Fatal("expired session still present")
	}
	if _, ok := reg.Get("fresh"); !ok {
		t.Fatal("refreshed session was swept")
	}
}

func TestRegistry_Stats(t *testing.T) {
	reg := relay.NewRegistry(time.Hour)
	reg.GetOrCreate("idle")
	reg.AddClient("S", protocol.RoleDesktop, newFakeConn("d"))

	st := reg.Stats()
	if st.TotalSessions != 2 || st.ActiveSessions != 1 {
		t.Fatalf("stats = %+v", st)
	}
}
