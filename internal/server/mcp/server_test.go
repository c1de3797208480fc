package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmett/earworm/internal/recognition"
	"github.com/emmett/earworm/internal/store"
)

type fakeBackend struct {
	task    recognition.Task
	err     error
	got     []byte
	library []store.LibraryEntry
	queue   []store.QueuedAttempt
}

func (f *fakeBackend) RecognizeWAV(_ context.Context, data []byte) (recognition.Task, error) {
	f.got = data
	return f.task, f.err
}

func (f *fakeBackend) Library() ([]store.LibraryEntry, error) { return f.library, nil }

func (f *fakeBackend) Queue() ([]store.QueuedAttempt, error) { return f.queue, nil }

func connect(t *testing.T, backend Backend) *sdk.ClientSession {
	t.Helper()
	ctx := context.Background()
	srv := NewServer(Config{ServerName: "earworm-test", ServerVersion: "test"}, backend, nil)

	serverTransport, clientTransport := sdk.NewInMemoryTransports()
	ss, err := srv.mcpServer.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := sdk.NewClient(&sdk.Implementation{Name: "client", Version: "test"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func call(t *testing.T, cs *sdk.ClientSession, name string, args map[string]any, out any) *sdk.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &sdk.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	if out != nil && !res.IsError {
		raw, err := json.Marshal(res.StructuredContent)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, out))
	}
	return res
}

func doneTask(t *testing.T, outcome recognition.Outcome) recognition.Task {
	t.Helper()
	task, err := recognition.NewTask(false).Transition(recognition.Done{Outcome: outcome})
	require.NoError(t, err)
	return task
}

func TestToolsListed(t *testing.T) {
	cs := connect(t, &fakeBackend{})
	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"recognize_audio", "list_library", "list_queue"}, names)
}

func TestRecognizeAudioMatch(t *testing.T) {
	backend := &fakeBackend{task: doneTask(t, recognition.Outcome{Track: &recognition.Track{
		Title:  "Xtal",
		Artist: "Aphex Twin",
		Links:  recognition.Links{Spotify: "https://open.spotify.com/track/x"},
	}})}
	cs := connect(t, backend)

	var out RecognizeOutput
	res := call(t, cs, "recognize_audio", map[string]any{
		"audio": base64.StdEncoding.EncodeToString([]byte("RIFF....")),
	}, &out)
	require.False(t, res.IsError)

	assert.Equal(t, []byte("RIFF...."), backend.got)
	assert.True(t, out.Matched)
	assert.Equal(t, "done", out.State)
	require.NotNil(t, out.Track)
	assert.Equal(t, "Aphex Twin", out.Track.Artist)
	assert.Equal(t, "https://open.spotify.com/track/x", out.Track.Links.Spotify)
}

func TestRecognizeAudioQueued(t *testing.T) {
	task := doneTask(t, recognition.Outcome{
		Reason: recognition.FailureReason{Category: recognition.NoMatches},
		Action: recognition.Save,
		Saved:  true,
	}).WithID(5)
	cs := connect(t, &fakeBackend{task: task})

	var out RecognizeOutput
	call(t, cs, "recognize_audio", map[string]any{"audio": base64.StdEncoding.EncodeToString([]byte("x"))}, &out)

	assert.False(t, out.Matched)
	assert.Equal(t, "no_matches", out.Failure)
	require.NotNil(t, out.QueueID)
	assert.Equal(t, int64(5), *out.QueueID)
}

func TestRecognizeAudioErrors(t *testing.T) {
	cs := connect(t, &fakeBackend{err: errors.New("not a wav file")})

	res := call(t, cs, "recognize_audio", map[string]any{"audio": "!!!"}, nil)
	assert.True(t, res.IsError)

	res = call(t, cs, "recognize_audio", map[string]any{"audio": base64.StdEncoding.EncodeToString([]byte("x"))}, nil)
	assert.True(t, res.IsError)
}

func TestListLibrary(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	cs := connect(t, &fakeBackend{library: []store.LibraryEntry{
		{Key: "mb:1", Track: recognition.Track{Title: "A", Artist: "X"}, LastSeen: now, Count: 2},
		{Key: "mb:2", Track: recognition.Track{Title: "B", Artist: "Y"}, LastSeen: now.Add(-time.Hour), Count: 1},
	}})

	var out ListLibraryOutput
	call(t, cs, "list_library", map[string]any{"limit": 1}, &out)
	require.Len(t, out.Tracks, 1)
	assert.Equal(t, "mb:1", out.Tracks[0].Key)
	assert.Equal(t, 2, out.Tracks[0].Count)
}

func TestListQueueEmpty(t *testing.T) {
	cs := connect(t, &fakeBackend{})

	var out ListQueueOutput
	res := call(t, cs, "list_queue", nil, &out)
	require.False(t, res.IsError)
	assert.NotNil(t, out.Entries)
	assert.Empty(t, out.Entries)
}

func TestListQueue(t *testing.T) {
	reason := recognition.FailureReason{Category: recognition.BadConnection}
	cs := connect(t, &fakeBackend{queue: []store.QueuedAttempt{
		{ID: 3, Duration: "30s", Failure: &reason, Retries: 1},
	}})

	var out ListQueueOutput
	call(t, cs, "list_queue", nil, &out)
	require.Len(t, out.Entries, 1)
	assert.Equal(t, int64(3), out.Entries[0].ID)
	assert.Equal(t, "bad_connection", out.Entries[0].Failure)
}
