// Package notify sends run notifications through an external mail command.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Subjects used by the pipelines.
const (
	SubjectError     = "ERROR: HPCDME during registration"
	SubjectWarning   = "WARNING: HPCDME during registration"
	SubjectCompleted = "COMPLETED: HPCDME script completed a registration job"
)

// Message is one notification.
type Message struct {
	Subject string
	Body    string
}

// Notifier delivers messages.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Nop discards every message.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, Message) error { return nil }

// Placeholders substituted in Command arguments.
const (
	PlaceholderSubject    = "{subject}"
	PlaceholderRecipients = "{recipients}"
)

// Command runs an external program per message with the body on stdin,
// e.g. `mail -s {subject} {recipients}`.
type Command struct {
	Argv       []string
	Recipients []string
}

// ParseCommand splits template on whitespace. Placeholders must stand as
// whole arguments.
func ParseCommand(template string, recipients []string) (*Command, error) {
	argv := strings.Fields(template)
	if len(argv) == 0 {
		return nil, errors.New("notify command is empty")
	}
	return &Command{Argv: argv, Recipients: recipients}, nil
}

// Args returns the argv for msg with placeholders substituted.
func (c *Command) Args(msg Message) []string {
	out := make([]string, len(c.Argv))
	for i, a := range c.Argv {
		switch a {
		case PlaceholderSubject:
			out[i] = msg.Subject
		case PlaceholderRecipients:
			out[i] = strings.Join(c.Recipients, ",")
		default:
			out[i] = a
		}
	}
	return out
}

// Notify runs the command once for msg.
func (c *Command) Notify(ctx context.Context, msg Message) error {
	args := c.Args(msg)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = strings.NewReader(msg.Body)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("notify %q: %w: %s", msg.Subject, err, strings.TrimSpace(out.String()))
	}
	return nil
}
