package endpoint_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"tether/internal/crypto"
	"tether/internal/endpoint"
	"tether/internal/protocol"
)

const testRelay = "wss://relay.example"

// pair runs the handshake in memory and returns both channels.
func pair(t *testing.T, opts ...endpoint.ChannelOption) (*endpoint.Desktop, *endpoint.Channel, *endpoint.Channel) {
	t.Helper()
	d, err := endpoint.NewDesktop(testRelay, opts...)
	if err != nil {
		t.Fatalf("NewDesktop: %v", err)
	}
	code, err := d.PairingString()
	if err != nil {
		t.Fatalf("PairingString: %v", err)
	}
	m, err := endpoint.NewMobile(code, opts...)
	if err != nil {
		t.Fatalf("NewMobile: %v", err)
	}
	dch, complete, err := d.AcceptResponse(m.Response())
	if err != nil {
		t.Fatalf("AcceptResponse: %v", err)
	}
	mch, err := m.Complete(complete)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	return d, dch, mch
}

func TestHandshake_BothSidesAgree(t *testing.T) {
	d, dch, mch := pair(t)
	defer dch.Close()
	defer mch.Close()

	if dch.SessionID() != d.SessionID() || mch.SessionID() != d.SessionID() {
		t.Fatal("channels bound to different sessions")
	}

	env, err := mch.Seal([]byte("ls -la"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	pt, err := dch.Open(env)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(pt, []byte("ls -la")) {
		t.Fatalf("plaintext = %q", pt)
	}

	env, err = dch.Seal([]byte("total 0"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := mch.Open(env); err != nil {
		t.Fatalf("Open on mobile: %v", err)
	}
}

func TestHandshake_MobileSeesDesktopFingerprint(t *testing.T) {
	d, err := endpoint.NewDesktop(testRelay)
	if err != nil {
		t.Fatalf("NewDesktop: %v", err)
	}
	code, _ := d.PairingString()
	m, err := endpoint.NewMobile(code)
	if err != nil {
		t.Fatalf("NewMobile: %v", err)
	}
	if m.DesktopFingerprint() != d.Fingerprint() {
		t.Fatalf("fingerprints differ: %s vs %s", m.DesktopFingerprint(), d.Fingerprint())
	}
	if m.RelayURL() != testRelay || m.SessionID() != d.SessionID() {
		t.Fatal("pairing fields not carried over")
	}
}

func TestNewDesktop_RejectsBadRelayURL(t *testing.T) {
	if _, err := endpoint.NewDesktop("not a url"); !errors.Is(err, protocol.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestNewMobile_RejectsGarbage(t *testing.T) {
	if _, err := endpoint.NewMobile(`{"v":"1"`); err == nil {
		t.Fatal("truncated pairing string accepted")
	}
}

func TestAcceptResponse_SessionMismatch(t *testing.T) {
	d, _ := endpoint.NewDesktop(testRelay)
	kp, _ := crypto.GenerateKeyPair()

	ch, complete, err := d.AcceptResponse(protocol.NewHandshakeResponse("someone-else", kp.PublicKey))
	if !errors.Is(err, endpoint.ErrHandshake) {
		t.Fatalf("err = %v, want ErrHandshake", err)
	}
	if ch != nil {
		t.Fatal("channel returned on failure")
	}
	if complete.Success || complete.Error == "" {
		t.Fatalf("complete = %+v, want failure with reason", complete)
	}
	if err := complete.Validate(); err != nil {
		t.Fatalf("failure complete invalid: %v", err)
	}
}

func TestAcceptResponse_PinnedPeer(t *testing.T) {
	kp, _ := crypto.GenerateKeyPair()
	mobileKP, _ := crypto.GenerateKeyPair()
	d := endpoint.RestoreDesktop("S-pinned", testRelay, kp, &mobileKP.PublicKey)

	other, _ := crypto.GenerateKeyPair()
	if _, _, err := d.AcceptResponse(protocol.NewHandshakeResponse("S-pinned", other.PublicKey)); !errors.Is(err, endpoint.ErrHandshake) {
		t.Fatalf("foreign key accepted: %v", err)
	}
	ch, complete, err := d.AcceptResponse(protocol.NewHandshakeResponse("S-pinned", mobileKP.PublicKey))
	if err != nil || !complete.Success {
		t.Fatalf("pinned key rejected: %v", err)
	}
	ch.Close()
}

func TestMobileComplete_Rejection(t *testing.T) {
	d, _ := endpoint.NewDesktop(testRelay)
	code, _ := d.PairingString()
	m, _ := endpoint.NewMobile(code)

	_, err := m.Complete(protocol.NewHandshakeComplete(d.SessionID(), false, "unexpected mobile key"))
	if !errors.Is(err, endpoint.ErrHandshake) {
		t.Fatalf("err = %v, want ErrHandshake", err)
	}
	_, err = m.Complete(protocol.NewHandshakeComplete("other", true, ""))
	if !errors.Is(err, endpoint.ErrHandshake) {
		t.Fatalf("wrong session: err = %v", err)
	}
}

func TestChannel_RejectsReflectionAndForeignSession(t *testing.T) {
	_, dch, mch := pair(t)

	own, _ := dch.Seal([]byte("x"))
	if _, err := dch.Open(own); !errors.Is(err, endpoint.ErrReflected) {
		t.Fatalf("reflected: err = %v", err)
	}

	env, _ := mch.Seal([]byte("x"))
	env.SessionID = "another-session"
	if _, err := dch.Open(env); !errors.Is(err, endpoint.ErrWrongSession) {
		t.Fatalf("foreign session: err = %v", err)
	}
}

func TestChannel_TamperFailsDecrypt(t *testing.T) {
	_, dch, mch := pair(t)

	env, _ := mch.Seal([]byte("secret"))
	ct, _ := crypto.FromB64(env.Ciphertext)
	ct[0] ^= 1
	env.Ciphertext = crypto.B64(ct)
	if _, err := dch.Open(env); !errors.Is(err, crypto.ErrDecrypt) {
		t.Fatalf("err = %v, want ErrDecrypt", err)
	}
}

func TestChannel_ReplayRejected(t *testing.T) {
	_, dch, mch := pair(t)

	env, _ := mch.Seal([]byte("once"))
	if _, err := dch.Open(env); err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if _, err := dch.Open(env); !errors.Is(err, endpoint.ErrReplay) {
		t.Fatalf("second Open: err = %v, want ErrReplay", err)
	}
}

func TestChannel_StaleRejected(t *testing.T) {
	d, _ := endpoint.NewDesktop(testRelay)
	code, _ := d.PairingString()
	late := func() time.Time { return time.Now().Add(-10 * time.Minute) }
	m, _ := endpoint.NewMobile(code, endpoint.WithChannelClock(late))

	dch, complete, err := d.AcceptResponse(m.Response())
	if err != nil {
		t.Fatalf("AcceptResponse: %v", err)
	}
	mch, err := m.Complete(complete)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	env, _ := mch.Seal([]byte("late"))
	if _, err := dch.Open(env); !errors.Is(err, endpoint.ErrStaleMessage) {
		t.Fatalf("err = %v, want ErrStaleMessage", err)
	}
}

func TestChannel_MessageRoundTrip(t *testing.T) {
	_, dch, mch := pair(t)

	payload, err := mch.SealMessage(protocol.NewCommand(protocol.CommandInput, "echo hi\n"))
	if err != nil {
		t.Fatalf("SealMessage: %v", err)
	}
	m, err := protocol.ParseRelayed([]byte(payload))
	if err != nil {
		t.Fatalf("ParseRelayed: %v", err)
	}
	env, ok := m.(protocol.EncryptedEnvelope)
	if !ok {
		t.Fatalf("payload parsed as %T", m)
	}
	app, err := dch.OpenMessage(env)
	if err != nil {
		t.Fatalf("OpenMessage: %v", err)
	}
	cmd, ok := app.(protocol.Command)
	if !ok || cmd.Name != protocol.CommandInput || cmd.Content != "echo hi\n" {
		t.Fatalf("got %+v", app)
	}
}

func TestChannel_ClosedRefuses(t *testing.T) {
	_, dch, mch := pair(t)
	env, _ := mch.Seal([]byte("x"))

	dch.Close()
	if _, err := dch.Open(env); !errors.Is(err, endpoint.ErrChannelClosed) {
		t.Fatalf("Open after Close: %v", err)
	}
	if _, err := dch.Seal([]byte("x")); !errors.Is(err, endpoint.ErrChannelClosed) {
		t.Fatalf("Seal after Close: %v", err)
	}
}
