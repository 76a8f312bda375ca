// Package notify is the user-facing feedback adapter. The agent has no
// dialog surface, so notices go to a writer and the server-switch question
// is answered by a preconfigured policy.
package notify

import (
	"context"
	"fmt"
	"io"

	"github.com/InterCode-Team/open-collaboration-tools/internal/ports"
)

type Console struct {
	out io.Writer
	// followEmbedded answers ConfirmServerSwitch without a prompt: true
	// follows the server embedded in a room reference.
	followEmbedded bool
}

var _ ports.Notifier = (*Console)(nil)

func NewConsole(out io.Writer, followEmbedded bool) *Console {
	return &Console{out: out, followEmbedded: followEmbedded}
}

func (c *Console) Info(message string) {
	_, _ = fmt.Fprintln(c.out, message)
}

func (c *Console) Error(message string) {
	_, _ = fmt.Fprintln(c.out, "error: "+message)
}

func (c *Console) ConfirmServerSwitch(ctx context.Context, configured, embedded string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if c.followEmbedded {
		_, _ = fmt.Fprintf(c.out, "Switching collaboration server: %s -> %s\n", configured, embedded)
	}
	return c.followEmbedded, nil
}
