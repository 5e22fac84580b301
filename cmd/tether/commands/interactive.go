package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"tether/internal/endpoint"
	"tether/internal/protocol"
)

func interactiveConfig(cmd *cobra.Command) endpoint.RunnerConfig {
	cfg := wire.RunnerConfig()
	out := cmd.OutOrStdout()
	cfg.OnMessage = func(m protocol.Message) { printMessage(out, m) }
	cfg.OnStatus = func(s endpoint.Status) {
		log.Debug().Str("status", string(s)).Msg("Session status")
		switch s {
		case endpoint.StatusPeerLeft:
			fmt.Fprintln(out, "* peer disconnected")
		case endpoint.StatusPaired:
			fmt.Fprintln(out, "* paired")
		}
	}
	return cfg
}

// runInteractive runs r, waits for pairing, then sends each stdin line to the
// peer until EOF or cancellation.
func runInteractive(cmd *cobra.Command, r *endpoint.Runner, onPaired func()) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	select {
	case <-r.Paired():
	case err := <-errCh:
		return quiet(err)
	}
	if onPaired != nil {
		onPaired()
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Type lines to send; Ctrl-D to quit.")

	lines := scanLines(cmd.InOrStdin())
	for {
		select {
		case err := <-errCh:
			return quiet(err)
		case line, ok := <-lines:
			if !ok {
				if r.Role() == protocol.RoleMobile {
					_ = r.Send(protocol.NewCommand(protocol.CommandExit, ""))
				}
				cancel()
				return quiet(<-errCh)
			}
			if err := r.Send(outgoing(r.Role(), line)); err != nil {
				log.Warn().Err(err).Msg("Message not sent")
			}
		}
	}
}

// outgoing wraps a typed line in the message the role sends.
func outgoing(role protocol.Role, line string) protocol.Message {
	if role == protocol.RoleMobile {
		return protocol.NewCommand(protocol.CommandInput, line+"\n")
	}
	return protocol.NewEvent(protocol.EventOutput, line+"\n")
}

func printMessage(w io.Writer, m protocol.Message) {
	switch msg := m.(type) {
	case protocol.Command:
		switch msg.Name {
		case protocol.CommandInput:
			fmt.Fprint(w, "< ", msg.Content)
		case protocol.CommandResize:
			fmt.Fprintf(w, "* resize %dx%d\n", msg.Cols, msg.Rows)
		default:
			fmt.Fprintf(w, "* %s\n", msg.Name)
		}
	case protocol.Event:
		switch msg.Kind {
		case protocol.EventExit:
			code := 0
			if msg.ExitCode != nil {
				code = *msg.ExitCode
			}
			fmt.Fprintf(w, "* exited with %d\n", code)
		case protocol.EventError:
			fmt.Fprintf(w, "! %s\n", msg.Content)
		default:
			fmt.Fprint(w, "> ", msg.Content)
		}
	}
}

func scanLines(r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			out <- sc.Text()
		}
	}()
	return out
}

func quiet(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
