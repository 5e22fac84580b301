package endpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"tether/internal/crypto"
	"tether/internal/protocol"
	"tether/internal/relay"
)

// Status is a coarse connection state reported to the user interface.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusJoined       Status = "joined"
	StatusPeerJoined   Status = "peer_joined"
	StatusPaired       Status = "paired"
	StatusPeerLeft     Status = "peer_left"
	StatusDisconnected Status = "disconnected"
)

// Dialer opens a relay connection.
type Dialer func(ctx context.Context, relayURL string) (*relay.Client, error)

// RunnerConfig tunes a Runner. Zero values take defaults.
type RunnerConfig struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// PingInterval is the period of relay pings that keep the session alive.
	PingInterval time.Duration
	Dial         Dialer

	OnMessage func(protocol.Message)
	OnStatus  func(Status)
}

func (c *RunnerConfig) setDefaults() {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.Dial == nil {
		c.Dial = relay.Dial
	}
	if c.OnMessage == nil {
		c.OnMessage = func(protocol.Message) {}
	}
	if c.OnStatus == nil {
		c.OnStatus = func(Status) {}
	}
}

type participant interface {
	SessionID() string
	RelayURL() string
	Role() protocol.Role
}

// Runner keeps one endpoint joined to its relay session. It performs the
// handshake, reconnects with exponential backoff and delivers decrypted
// application messages to OnMessage.
type Runner struct {
	cfg     RunnerConfig
	self    participant
	desktop *Desktop
	mobile  *Mobile

	mu      sync.Mutex
	client  *relay.Client
	channel *Channel

	pairedOnce sync.Once
	paired     chan struct{}
}

// NewDesktopRunner runs the desktop side.
func NewDesktopRunner(d *Desktop, cfg RunnerConfig) *Runner {
	cfg.setDefaults()
	return &Runner{cfg: cfg, self: d, desktop: d, paired: make(chan struct{})}
}

// NewMobileRunner runs the mobile side.
func NewMobileRunner(m *Mobile, cfg RunnerConfig) *Runner {
	cfg.setDefaults()
	return &Runner{cfg: cfg, self: m, mobile: m, paired: make(chan struct{})}
}

// Role is the side this runner plays.
func (r *Runner) Role() protocol.Role { return r.self.Role() }

// Paired is closed after the first successful handshake.
func (r *Runner) Paired() <-chan struct{} { return r.paired }

// Channel returns the current channel, or nil before pairing.
func (r *Runner) Channel() *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channel
}

// Send seals m and forwards it to the peer.
func (r *Runner) Send(m protocol.Message) error {
	r.mu.Lock()
	ch, cl := r.channel, r.client
	r.mu.Unlock()

	if ch == nil {
		return ErrNotPaired
	}
	if cl == nil {
		return fmt.Errorf("send: %w", relay.ErrClientClosed)
	}
	payload, err := ch.SealMessage(m)
	if err != nil {
		return err
	}
	return cl.Send(r.self.SessionID(), r.self.Role(), payload)
}

// Run connects and serves until ctx is cancelled or a terminal error occurs:
// ErrReplaced, or ErrHandshake on the mobile side.
func (r *Runner) Run(ctx context.Context) error {
	defer r.closeChannel()

	attempt := 0
	for {
		r.cfg.OnStatus(StatusConnecting)
		joined, err := r.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrReplaced) || errors.Is(err, ErrHandshake) {
			return err
		}
		if joined {
			attempt = 0
		}
		delay := backoff(attempt, r.cfg.InitialBackoff, r.cfg.MaxBackoff)
		attempt++

		r.cfg.OnStatus(StatusDisconnected)
		log.Warn().Err(err).Dur("retry_in", delay).Msg("Relay connection lost")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// runOnce serves a single relay connection. joined reports whether the relay
// acknowledged our join.
func (r *Runner) runOnce(ctx context.Context) (joined bool, err error) {
	cl, err := r.cfg.Dial(ctx, r.self.RelayURL())
	if err != nil {
		return false, err
	}
	defer cl.Close()

	r.setClient(cl)
	defer r.setClient(nil)

	sid, role := r.self.SessionID(), r.self.Role()
	if err := cl.Join(sid, role); err != nil {
		return false, err
	}

	ping := time.NewTicker(r.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = cl.Leave(sid, role)
			return joined, ctx.Err()
		case <-ping.C:
			if err := cl.Ping(); err != nil {
				return joined, err
			}
		case f, ok := <-cl.Frames():
			if !ok {
				err := cl.Err()
				if relay.CloseCode(err) == relay.CloseReplaced {
					return joined, ErrReplaced
				}
				return joined, err
			}
			if f.Type == protocol.OutJoined {
				joined = true
			}
			if err := r.handleFrame(cl, f); err != nil {
				return joined, err
			}
		}
	}
}

func (r *Runner) handleFrame(cl *relay.Client, f protocol.Outbound) error {
	switch f.Type {
	case protocol.OutJoined:
		r.cfg.OnStatus(StatusJoined)
	case protocol.OutPeerJoined:
		r.cfg.OnStatus(StatusPeerJoined)
		if r.mobile != nil {
			// Also covers a desktop that restarted and lost its channel.
			return r.sendHandshake(cl, r.mobile.Response())
		}
	case protocol.OutPeerLeft:
		r.cfg.OnStatus(StatusPeerLeft)
	case protocol.OutError:
		if f.Error == relay.ErrMsgReplaced {
			return ErrReplaced
		}
		log.Warn().Str("error", f.Error).Msg("Relay reported an error")
	case protocol.OutMessage:
		return r.handlePayload(cl, f.Payload)
	}
	return nil
}

func (r *Runner) handlePayload(cl *relay.Client, payload string) error {
	m, err := protocol.ParseRelayed([]byte(payload))
	if err != nil {
		log.Warn().Err(err).Msg("Dropping unreadable payload")
		return nil
	}

	switch msg := m.(type) {
	case protocol.HandshakeResponse:
		if r.desktop == nil {
			return nil
		}
		ch, complete, err := r.desktop.AcceptResponse(msg)
		if sendErr := r.sendHandshake(cl, complete); sendErr != nil {
			return sendErr
		}
		if err != nil {
			log.Warn().Err(err).Msg("Rejected handshake response")
			return nil
		}
		r.setChannel(ch)
		if peer, ok := r.desktop.PeerPublicKey(); ok {
			log.Info().Str("peer", crypto.Fingerprint(peer[:])).Msg("Paired with mobile")
		}

	case protocol.HandshakeComplete:
		if r.mobile == nil {
			return nil
		}
		ch, err := r.mobile.Complete(msg)
		if err != nil {
			return err
		}
		r.setChannel(ch)
		log.Info().Str("desktop", r.mobile.DesktopFingerprint()).Msg("Paired with desktop")

	case protocol.EncryptedEnvelope:
		ch := r.Channel()
		if ch == nil {
			log.Debug().Err(ErrNotPaired).Msg("Dropping envelope")
			return nil
		}
		app, err := ch.OpenMessage(msg)
		if err != nil {
			log.Warn().Err(err).Msg("Dropping envelope")
			return nil
		}
		r.cfg.OnMessage(app)
	}
	return nil
}

func (r *Runner) sendHandshake(cl *relay.Client, m protocol.Message) error {
	payload, err := encodePayload(m)
	if err != nil {
		return err
	}
	return cl.Send(r.self.SessionID(), r.self.Role(), payload)
}

func (r *Runner) setClient(cl *relay.Client) {
	r.mu.Lock()
	r.client = cl
	r.mu.Unlock()
}

func (r *Runner) setChannel(ch *Channel) {
	r.mu.Lock()
	old := r.channel
	r.channel = ch
	r.mu.Unlock()
	if old != nil {
		old.Close()
	}
	r.pairedOnce.Do(func() { close(r.paired) })
	r.cfg.OnStatus(StatusPaired)
}

func (r *Runner) closeChannel() {
	r.mu.Lock()
	ch := r.channel
	r.channel = nil
	r.mu.Unlock()
	if ch != nil {
		ch.Close()
	}
}

// backoff doubles base per attempt, capped at max.
func backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt > 16 {
		attempt = 16
	}
	d := base << uint(attempt)
	if d <= 0 || d > max {
		d = max
	}
	return d
}
