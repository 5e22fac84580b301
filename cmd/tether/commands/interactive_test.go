package commands

import (
	"bytes"
	"testing"

	"tether/internal/protocol"
)

func TestOutgoing_ByRole(t *testing.T) {
	if m, ok := outgoing(protocol.RoleMobile, "ls").(protocol.Command); !ok || m.Content != "ls\n" || m.Validate() != nil {
		t.Fatalf("mobile line = %+v", m)
	}
	if m, ok := outgoing(protocol.RoleDesktop, "ok").(protocol.Event); !ok || m.Kind != protocol.EventOutput || m.Validate() != nil {
		t.Fatalf("desktop line = %+v", m)
	}
}

func TestPrintMessage(t *testing.T) {
	var buf bytes.Buffer
	code := 2
	printMessage(&buf, protocol.NewCommand(protocol.CommandInput, "pwd\n"))
	printMessage(&buf, protocol.Event{Type: protocol.TypeEvent, Kind: protocol.EventExit, ExitCode: &code, Timestamp: 1})

	want := "< pwd\n* exited with 2\n"
	if buf.String() != want {
		t.Fatalf("output = %q, want %q", buf.String(), want)
	}
}
