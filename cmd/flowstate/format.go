package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"flowstate-go/internal/flow"
)

const defaultWidth = 100

// terminalWidth returns the width of stdout, or defaultWidth when stdout is
// not a terminal.
func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return defaultWidth
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}

// truncate shortens s to at most width runes, marking the cut with "...".
func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}

// ago renders t relative to now, or "never" for nil.
func ago(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return humanize.Time(*t)
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

// describeOutcome renders a sync outcome as a single line.
func describeOutcome(outcome flow.SyncOutcome) string {
	head := ""
	if c := outcome.Head(); c != nil && c.ShortHash != "" {
		head = " at " + c.ShortHash
	}

	switch o := outcome.(type) {
	case flow.CommittedLocalOnly:
		if !o.Committed {
			return "Nothing to commit; no remote configured"
		}
		return "Committed locally" + head + "; no remote configured"
	case flow.Synced:
		if !o.Pushed {
			return "Pulled" + head + " but push failed: " + o.PushError
		}
		return "Synced" + head
	case flow.Conflict:
		return "Conflict with remote; local commit kept" + head + ". Resolve manually and sync again"
	case flow.PartialSync:
		return "Pull failed" + head + "; push skipped: " + o.PullError
	default:
		return outcome.Status()
	}
}

// parseID parses a positional record ID argument.
func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

// optionalInt64 returns the flag value if it was set on the command line.
func optionalInt64(cmd *cobra.Command, name string) *int64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetInt64(name)
	return &v
}

// optionalString returns the flag value if it was set on the command line.
func optionalString(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}

func optionalFloat64(cmd *cobra.Command, name string) *float64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetFloat64(name)
	return &v
}
