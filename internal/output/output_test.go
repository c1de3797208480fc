package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmett/earworm/internal/recognition"
)

func doneTask(t *testing.T, outcome recognition.Outcome) recognition.Task {
	t.Helper()
	task, err := recognition.NewTask(false).Transition(recognition.Recognizing{})
	require.NoError(t, err)
	task, err = task.Transition(recognition.Done{Outcome: outcome})
	require.NoError(t, err)
	return task
}

var song = &recognition.Track{
	Title:  "Windowlicker",
	Artist: "Aphex Twin",
	Album:  "Windowlicker",
	Links: recognition.Links{
		Odesli:  "https://song.link/x",
		Spotify: "https://open.spotify.com/track/x",
	},
}

func TestTaskRecord(t *testing.T) {
	t.Parallel()

	rec := NewTaskRecord(doneTask(t, recognition.Outcome{Track: song}))
	assert.Equal(t, "done", rec.State)
	assert.Equal(t, song, rec.Track)
	assert.Nil(t, rec.Reason)

	failed := doneTask(t, recognition.Outcome{
		Reason:        recognition.FailureReason{Category: recognition.BadConnection, Message: "timeout"},
		Action:        recognition.SaveAndLaunch,
		Saved:         true,
		RetryLaunched: true,
	}).WithID(4)
	rec = NewTaskRecord(failed)
	require.NotNil(t, rec.Reason)
	assert.Equal(t, "save_and_launch", rec.Action)
	assert.Equal(t, int64(4), *rec.ID)
	assert.True(t, rec.Saved)

	assert.Equal(t, "created", NewTaskRecord(recognition.NewTask(true)).State)
}

func TestJSONFormatter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	f, err := NewFormatter("json", &buf)
	require.NoError(t, err)

	Observe(f, nil).TaskChanged(recognition.NewTask(false))
	Observe(f, nil).TaskChanged(doneTask(t, recognition.Outcome{Track: song}))
	require.NoError(t, f.WriteEvent("device", "default microphone"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, "done", rec["state"])
	assert.Equal(t, "Aphex Twin", rec["track"].(map[string]any)["artist"])

	assert.Len(t, f.(*JSONFormatter).Results(), 1)
}

func TestPlainTextFormatter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	f := NewPlainTextFormatter(&buf)

	require.NoError(t, f.WriteTask(NewTaskRecord(recognition.NewTask(false))))
	assert.Empty(t, buf.String(), "non-terminal states are skipped")

	require.NoError(t, f.WriteTask(NewTaskRecord(doneTask(t, recognition.Outcome{Track: song}))))
	assert.Contains(t, buf.String(), "Aphex Twin - Windowlicker (Windowlicker) https://song.link/x")

	buf.Reset()
	failed := doneTask(t, recognition.Outcome{
		Reason: recognition.FailureReason{Category: recognition.NoMatches},
		Action: recognition.Save,
		Saved:  true,
	}).WithID(12)
	require.NoError(t, f.WriteTask(NewTaskRecord(failed)))
	assert.Contains(t, buf.String(), "no match (queued as #12)")
}

func TestNewFormatterUnknown(t *testing.T) {
	t.Parallel()
	_, err := NewFormatter("xml", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestConsoleOutput(t *testing.T) {
	t.Parallel()
	var out, errOut bytes.Buffer
	c := NewConsoleOutput(ConsoleConfig{ShowLinks: true, Writer: &out, ErrWriter: &errOut})

	task := recognition.NewTask(false)
	c.TaskChanged(task)
	assert.Empty(t, out.String())

	task, err := task.Transition(recognition.Recognizing{})
	require.NoError(t, err)
	c.TaskChanged(task)
	assert.Equal(t, "\r[*] Listening...", out.String())

	task, err = task.Transition(recognition.Done{Outcome: recognition.Outcome{Track: song}})
	require.NoError(t, err)
	c.TaskChanged(task)
	assert.Contains(t, out.String(), "♪ Aphex Twin - Windowlicker\n")
	assert.Contains(t, out.String(), "  Album: Windowlicker\n")
	assert.Contains(t, out.String(), "Spotify:      https://open.spotify.com/track/x\n")

	c.Error("boom")
	assert.Equal(t, "[ERROR] boom\n", errOut.String())
}

func TestConsoleOutputFailureAndCancel(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	c := NewConsoleOutput(ConsoleConfig{Writer: &out})

	c.TaskChanged(doneTask(t, recognition.Outcome{
		Reason:        recognition.FailureReason{Category: recognition.BadConnection, Message: "offline"},
		Saved:         true,
		RetryLaunched: true,
	}).WithID(3))
	assert.Equal(t, "no connection: offline (queued as #3, retrying)\n", out.String())

	out.Reset()
	task, err := recognition.NewTask(false).Transition(recognition.Cancelled{})
	require.NoError(t, err)
	c.TaskChanged(task)
	assert.Equal(t, "Cancelled\n", out.String())
}
