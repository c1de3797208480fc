package output

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/emmett/earworm/internal/recognition"
)

// ConsoleOutput renders recognition progress for a terminal
type ConsoleOutput struct {
	mu            sync.Mutex
	writer        io.Writer
	errWriter     io.Writer
	showTimestamp bool
	showLinks     bool
	statusActive  bool
}

// ConsoleConfig configures console output behavior
type ConsoleConfig struct {
	// ShowTimestamp prefixes each line with a timestamp
	ShowTimestamp bool

	// ShowLinks lists every streaming link of a match
	ShowLinks bool

	// Writer is the output destination (default: os.Stdout)
	Writer io.Writer

	// ErrWriter receives errors (default: os.Stderr)
	ErrWriter io.Writer
}

// NewConsoleOutput creates a new console output handler
func NewConsoleOutput(config ConsoleConfig) *ConsoleOutput {
	writer := config.Writer
	if writer == nil {
		writer = os.Stdout
	}
	errWriter := config.ErrWriter
	if errWriter == nil {
		errWriter = os.Stderr
	}

	return &ConsoleOutput{
		writer:        writer,
		errWriter:     errWriter,
		showTimestamp: config.ShowTimestamp,
		showLinks:     config.ShowLinks,
	}
}

// DefaultConsoleOutput creates a console output with default settings
func DefaultConsoleOutput() *ConsoleOutput {
	return NewConsoleOutput(ConsoleConfig{ShowTimestamp: true, ShowLinks: true})
}

// TaskChanged renders a task transition
func (c *ConsoleOutput) TaskChanged(task recognition.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch task.State.(type) {
	case recognition.Recognizing:
		c.status("Listening...")
	case recognition.Cancelled:
		c.line("Cancelled")
	case recognition.Done:
		rec := NewTaskRecord(task)
		if rec.Track == nil {
			c.line(describeFailure(rec))
			return
		}
		c.line("♪ " + rec.Track.String())
		if rec.Track.Album != "" {
			fmt.Fprintf(c.writer, "  Album: %s\n", rec.Track.Album)
		}
		if c.showLinks {
			c.links(rec.Track.Links)
		}
	}
}

func (c *ConsoleOutput) links(l recognition.Links) {
	for _, link := range []struct{ name, url string }{
		{"song.link", l.Odesli},
		{"Spotify", l.Spotify},
		{"Apple Music", l.AppleMusic},
		{"YouTube Music", l.YouTubeMusic},
		{"YouTube", l.YouTube},
		{"Deezer", l.Deezer},
		{"SoundCloud", l.SoundCloud},
		{"Tidal", l.Tidal},
		{"Amazon Music", l.AmazonMusic},
		{"Napster", l.Napster},
	} {
		if link.url != "" {
			fmt.Fprintf(c.writer, "  %-13s %s\n", link.name+":", link.url)
		}
	}
}

// line writes a finished line, replacing any status line
func (c *ConsoleOutput) line(text string) {
	if c.statusActive {
		fmt.Fprintf(c.writer, "\r%80s\r", " ")
		c.statusActive = false
	}
	if c.showTimestamp {
		fmt.Fprintf(c.writer, "[%s] %s\n", time.Now().Format("15:04:05"), text)
	} else {
		fmt.Fprintf(c.writer, "%s\n", text)
	}
}

func (c *ConsoleOutput) status(text string) {
	fmt.Fprintf(c.writer, "\r[*] %s", text)
	c.statusActive = true
}

// Info writes an informational message
func (c *ConsoleOutput) Info(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.line("[INFO] " + msg)
}

// Error writes an error message to the error writer
func (c *ConsoleOutput) Error(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.errWriter, "[ERROR] %s\n", msg)
}

// Status writes a status message that the next line overwrites
func (c *ConsoleOutput) Status(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status(msg)
}
