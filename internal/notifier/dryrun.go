package notifier

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// DryRunNotifier prints what would be posted without contacting Discord
type DryRunNotifier struct {
	out     io.Writer
	mention string
}

// NewDryRunNotifier creates a dry-run notifier writing to out (stdout when nil)
func NewDryRunNotifier(out io.Writer, mention string) *DryRunNotifier {
	if out == nil {
		out = os.Stdout
	}
	return &DryRunNotifier{out: out, mention: mention}
}

// Notify prints the announcement that would be posted
func (n *DryRunNotifier) Notify(_ context.Context, message string) (int, error) {
	lines := strings.Count(message, "\n") + 1
	if _, err := fmt.Fprintf(n.out, "--- Announcement (%d competitions) ---\n%s\n\n", lines, Format(n.mention, message)); err != nil {
		return 0, fmt.Errorf("writing announcement: %w", err)
	}
	return 1, nil
}
