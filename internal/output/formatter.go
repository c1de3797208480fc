package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/emmett/earworm/internal/recognition"
)

// TaskRecord is the serialized view of a task transition
type TaskRecord struct {
	Session       string                     `json:"session"`
	ID            *int64                     `json:"id,omitempty"`
	State         string                     `json:"state"`
	Launched      bool                       `json:"launched,omitempty"`
	Track         *recognition.Track         `json:"track,omitempty"`
	Reason        *recognition.FailureReason `json:"reason,omitempty"`
	Action        string                     `json:"action,omitempty"`
	Saved         bool                       `json:"saved,omitempty"`
	RetryLaunched bool                       `json:"retry_launched,omitempty"`
	Timestamp     time.Time                  `json:"timestamp"`
}

// NewTaskRecord flattens a task for output
func NewTaskRecord(task recognition.Task) TaskRecord {
	rec := TaskRecord{
		Session:   task.SessionID.String(),
		ID:        task.ID,
		Launched:  task.Launched,
		Timestamp: time.Now(),
	}

	switch s := task.State.(type) {
	case recognition.Done:
		rec.State = "done"
		out := s.Outcome
		if out.Success() {
			rec.Track = out.Track
		} else {
			reason := out.Reason
			rec.Reason = &reason
			rec.Action = out.Action.String()
			rec.Saved = out.Saved
			rec.RetryLaunched = out.RetryLaunched
		}
	case nil:
		rec.State = recognition.Created{}.String()
	default:
		rec.State = s.String()
	}
	return rec
}

// Event represents a system event
type Event struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Formatter is the interface for output formatters
type Formatter interface {
	// WriteTask writes a task transition
	WriteTask(rec TaskRecord) error

	// WriteEvent writes a system event (e.g. device changes)
	WriteEvent(eventType, message string) error

	// Flush ensures all buffered output is written
	Flush() error

	// Close closes the formatter and releases resources
	Close() error
}

// NewFormatter returns the formatter for "json" or "text"
func NewFormatter(format string, w io.Writer) (Formatter, error) {
	switch strings.ToLower(format) {
	case "json":
		return NewJSONFormatter(w), nil
	case "text", "":
		return NewPlainTextFormatter(w), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// JSONFormatter writes one JSON object per line
type JSONFormatter struct {
	writer  io.Writer
	encoder *json.Encoder
	results []TaskRecord
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(writer io.Writer) *JSONFormatter {
	return &JSONFormatter{
		writer:  writer,
		encoder: json.NewEncoder(writer),
	}
}

// WriteTask writes every transition; terminal ones are also kept for Results
func (j *JSONFormatter) WriteTask(rec TaskRecord) error {
	if rec.State == "done" || rec.State == "cancelled" {
		j.results = append(j.results, rec)
	}
	return j.encoder.Encode(rec)
}

// WriteEvent writes a system event
func (j *JSONFormatter) WriteEvent(eventType, message string) error {
	return j.encoder.Encode(Event{
		Type:      eventType,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// Flush is a no-op, the encoder writes immediately
func (j *JSONFormatter) Flush() error {
	return nil
}

// Close closes the formatter
func (j *JSONFormatter) Close() error {
	return nil
}

// Results returns all terminal task records written so far
func (j *JSONFormatter) Results() []TaskRecord {
	return j.results
}

// PlainTextFormatter writes finished tasks as single lines
type PlainTextFormatter struct {
	writer io.Writer
}

// NewPlainTextFormatter creates a new plain text formatter
func NewPlainTextFormatter(writer io.Writer) *PlainTextFormatter {
	return &PlainTextFormatter{writer: writer}
}

// WriteTask writes terminal transitions only
func (p *PlainTextFormatter) WriteTask(rec TaskRecord) error {
	var line string
	switch {
	case rec.Track != nil:
		line = rec.Track.String()
		if rec.Track.Album != "" {
			line += " (" + rec.Track.Album + ")"
		}
		if link := firstLink(rec.Track.Links); link != "" {
			line += " " + link
		}
	case rec.Reason != nil:
		line = describeFailure(rec)
	case rec.State == "cancelled":
		line = "cancelled"
	default:
		return nil
	}

	_, err := fmt.Fprintf(p.writer, "[%s] %s\n", rec.Timestamp.Format("15:04:05"), line)
	return err
}

// WriteEvent writes a system event
func (p *PlainTextFormatter) WriteEvent(eventType, message string) error {
	_, err := fmt.Fprintf(p.writer, "[%s] [%s] %s\n", time.Now().Format("15:04:05"), eventType, message)
	return err
}

// Flush ensures all buffered output is written
func (p *PlainTextFormatter) Flush() error {
	return nil
}

// Close closes the formatter
func (p *PlainTextFormatter) Close() error {
	return nil
}

// Observe adapts a formatter into a task observer. Write errors are logged.
func Observe(f Formatter, logger *zap.Logger) recognition.Observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return recognition.ObserverFunc(func(task recognition.Task) {
		if err := f.WriteTask(NewTaskRecord(task)); err != nil {
			logger.Warn("failed to write task", zap.Error(err))
		}
	})
}

func describeFailure(rec TaskRecord) string {
	var b strings.Builder
	switch rec.Reason.Category {
	case recognition.NoMatches:
		b.WriteString("no match")
	case recognition.BadConnection:
		b.WriteString("no connection")
	default:
		b.WriteString("failed")
	}
	if rec.Reason.Message != "" {
		b.WriteString(": " + rec.Reason.Message)
	}
	if rec.Saved && rec.ID != nil {
		fmt.Fprintf(&b, " (queued as #%d", *rec.ID)
		if rec.RetryLaunched {
			b.WriteString(", retrying")
		}
		b.WriteString(")")
	}
	return b.String()
}

func firstLink(l recognition.Links) string {
	for _, u := range []string{l.Odesli, l.Spotify, l.AppleMusic, l.YouTubeMusic, l.YouTube, l.Deezer} {
		if u != "" {
			return u
		}
	}
	return ""
}
