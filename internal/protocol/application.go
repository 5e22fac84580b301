package protocol

import (
	"time"

	"github.com/google/uuid"
)

// CommandName enumerates the commands a mobile endpoint can issue.
type CommandName string

const (
	CommandInput     CommandName = "input"
	CommandInterrupt CommandName = "interrupt"
	CommandResize    CommandName = "resize"
	CommandExit      CommandName = "exit"
)

// EventKind enumerates what a desktop endpoint reports back.
type EventKind string

const (
	EventOutput EventKind = "output"
	EventStatus EventKind = "status"
	EventExit   EventKind = "exit"
	EventError  EventKind = "error"
)

// Command travels mobile to desktop inside an envelope.
type Command struct {
	Type      Type        `json:"type" validate:"eq=command"`
	ID        string      `json:"id" validate:"required"`
	Name      CommandName `json:"name" validate:"required,oneof=input interrupt resize exit"`
	Content   string      `json:"content,omitempty"`
	Cols      int         `json:"cols,omitempty" validate:"gte=0"`
	Rows      int         `json:"rows,omitempty" validate:"gte=0"`
	Timestamp int64       `json:"timestamp" validate:"gt=0"`
}

// NewCommand stamps a command with a fresh id and the current time.
func NewCommand(name CommandName, content string) Command {
	return Command{
		Type:      TypeCommand,
		ID:        uuid.NewString(),
		Name:      name,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}
}

func (m Command) MessageType() Type { return TypeCommand }

func (m Command) Validate() error {
	if err := check(m); err != nil {
		return err
	}
	switch m.Name {
	case CommandInput:
		if len(m.Content) == 0 {
			return invalidf("content must not be empty for %s", m.Name)
		}
	case CommandResize:
		if m.Cols <= 0 || m.Rows <= 0 {
			return invalidf("cols and rows must be positive for %s", m.Name)
		}
	}
	return nil
}

// Event travels desktop to mobile inside an envelope.
type Event struct {
	Type      Type      `json:"type" validate:"eq=event"`
	ID        string    `json:"id,omitempty"`
	Kind      EventKind `json:"kind" validate:"required,oneof=output status exit error"`
	Content   string    `json:"content"`
	ExitCode  *int      `json:"exitCode,omitempty"`
	Timestamp int64     `json:"timestamp" validate:"gt=0"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(kind EventKind, content string) Event {
	return Event{
		Type:      TypeEvent,
		ID:        uuid.NewString(),
		Kind:      kind,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}
}

func (m Event) MessageType() Type { return TypeEvent }

func (m Event) Validate() error {
	if err := check(m); err != nil {
		return err
	}
	if (m.Kind == EventOutput || m.Kind == EventError) && len(m.Content) == 0 {
		return invalidf("content must not be empty for %s", m.Kind)
	}
	return nil
}
