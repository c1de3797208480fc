package app

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/emmett/earworm/internal/store"
	"github.com/emmett/earworm/internal/strategy"
)

// Catalog prints strategies, the queue and the library for the CLI
type Catalog struct {
	out io.Writer
}

// NewCatalog creates a Catalog writing to out (default: os.Stdout)
func NewCatalog(out io.Writer) *Catalog {
	if out == nil {
		out = os.Stdout
	}
	return &Catalog{out: out}
}

// ListStrategies prints the built-in presets and marks the active one
func (c *Catalog) ListStrategies(active string) error {
	if active == "" {
		active = strategy.DefaultPresetName
	}
	fmt.Fprintln(c.out, "Available strategies:")
	fmt.Fprintln(c.out)

	for i, p := range strategy.Presets() {
		marker := ""
		if p.Name == active {
			marker = " [ACTIVE]"
		}
		fmt.Fprintf(c.out, "%d. %s%s\n", i+1, p.Name, marker)
		fmt.Fprintf(c.out, "   %s\n", p.Description)
		fmt.Fprintf(c.out, "   Slices: %s\n", describeSlices(p.Strategy))
		fmt.Fprintln(c.out)
	}

	fmt.Fprintln(c.out, "To use a strategy, set strategy.preset in the config or run:")
	fmt.Fprintln(c.out, "  earworm -strategy <name>")
	return nil
}

// describeSlices renders the windows a strategy emits, e.g. "0-3s, 0-6s"
func describeSlices(s *strategy.Strategy) string {
	cursor := strategy.NewCursor(s)
	var parts []string
	for !cursor.Finished() {
		slice, ok := cursor.Advance(cursor.Next())
		if !ok {
			break
		}
		parts = append(parts, fmt.Sprintf("%s-%s", seconds(slice.From), seconds(slice.To)))
	}
	return strings.Join(parts, ", ")
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%gs", d.Seconds())
}

// ListQueue prints queued recordings
func (c *Catalog) ListQueue(entries []store.QueuedAttempt) error {
	if len(entries) == 0 {
		fmt.Fprintln(c.out, "The recognition queue is empty.")
		return nil
	}

	fmt.Fprintf(c.out, "Queued recordings (%d):\n\n", len(entries))
	for _, e := range entries {
		reason := "pending"
		if e.Failure != nil {
			reason = e.Failure.String()
		}
		fmt.Fprintf(c.out, "#%d  %s  %s  %s\n", e.ID, e.CreatedAt.Format("2006-01-02 15:04"), e.Duration, reason)
		if e.Retries > 0 {
			fmt.Fprintf(c.out, "     retried %d time(s), last %s\n", e.Retries, e.LastRetryAt.Format("2006-01-02 15:04"))
		}
	}

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "To retry a recording, run:")
	fmt.Fprintln(c.out, "  earworm -retry <id>")
	return nil
}

// ListLibrary prints recognized tracks
func (c *Catalog) ListLibrary(entries []store.LibraryEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(c.out, "No tracks recognized yet.")
		return nil
	}

	fmt.Fprintf(c.out, "Recognized tracks (%d):\n\n", len(entries))
	for i, e := range entries {
		fmt.Fprintf(c.out, "%d. %s", i+1, e.Track)
		if e.Track.Album != "" {
			fmt.Fprintf(c.out, " (%s)", e.Track.Album)
		}
		fmt.Fprintln(c.out)
		fmt.Fprintf(c.out, "   Last heard: %s", e.LastSeen.Format("2006-01-02 15:04"))
		if e.Count > 1 {
			fmt.Fprintf(c.out, ", %d times", e.Count)
		}
		fmt.Fprintln(c.out)
		if e.Track.Links.Odesli != "" {
			fmt.Fprintf(c.out, "   %s\n", e.Track.Links.Odesli)
		}
	}
	return nil
}
