package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/pfrederiksen/wca-events/internal/event"
	"github.com/pfrederiksen/wca-events/internal/poller"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

func parseFormat(s string) (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if format != FormatText && format != FormatJSON {
		return "", fmt.Errorf("invalid format: %s (must be 'text' or 'json')", s)
	}
	return format, nil
}

// OutputResult contains data to be output
type OutputResult struct {
	CheckedAt  time.Time      `json:"checked_at"`
	Country    string         `json:"country"`
	NewEvents  []event.Key    `json:"new_events"`
	EventCount int            `json:"event_count"`
	DryRun     bool           `json:"dry_run,omitempty"`
	Cycle      *poller.Result `json:"cycle"`
}

// WriteOutput writes the result in the specified format
func WriteOutput(w io.Writer, result *OutputResult, format OutputFormat, verbose bool) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, result)
	case FormatText:
		return writeText(w, result, verbose)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// writeJSON outputs results as JSON
func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// writeText outputs results as human-readable text
func writeText(w io.Writer, result *OutputResult, verbose bool) error {
	if verbose && result.Cycle != nil {
		fmt.Fprintf(w, "Scraped %s competitions, %s in %s",
			humanize.Comma(int64(result.Cycle.Scraped)),
			humanize.Comma(int64(result.Cycle.Matched)),
			result.Country)
		if result.Cycle.Skipped > 0 {
			fmt.Fprintf(w, " (%d without a usable location)", result.Cycle.Skipped)
		}
		fmt.Fprintf(w, "\nCycle %s took %s\n\n", result.Cycle.ID, result.Cycle.Duration)
	}

	if result.EventCount == 0 {
		fmt.Fprintln(w, "No new competitions found.")
		return nil
	}

	for _, key := range result.NewEvents {
		fmt.Fprintf(w, "NEW: %s\n", key)
	}

	fmt.Fprintf(w, "\nTotal: %d new", result.EventCount)
	switch {
	case result.DryRun:
		fmt.Fprint(w, " (dry run, nothing posted)")
	case result.Cycle != nil && result.Cycle.Error != "":
		fmt.Fprint(w, ", announcement failed")
	case result.Cycle != nil:
		fmt.Fprintf(w, ", announced in %s", pluralize(result.Cycle.Channels, "channel"))
	}
	fmt.Fprintln(w)

	return nil
}

// WriteSeen writes the seen keys in the specified format
func WriteSeen(w io.Writer, keys []string, format OutputFormat) error {
	if format == FormatJSON {
		return writeJSON(w, map[string]interface{}{
			"count":  len(keys),
			"events": keys,
		})
	}

	if len(keys) == 0 {
		fmt.Fprintln(w, "No competitions seen yet.")
		return nil
	}
	for _, k := range keys {
		fmt.Fprintln(w, k)
	}
	fmt.Fprintf(w, "\nTotal: %s\n", pluralize(len(keys), "competition"))
	return nil
}

func pluralize(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return humanize.Comma(int64(n)) + " " + word + "s"
}
