package mcp

import (
	"time"

	"github.com/emmett/earworm/internal/output"
	"github.com/emmett/earworm/internal/recognition"
	"github.com/emmett/earworm/internal/store"
)

// Tool inputs

type RecognizeArgs struct {
	Audio string `json:"audio" jsonschema:"base64 encoded WAV file containing the music to identify"`
}

type ListLibraryArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of tracks to return, most recent first"`
}

type ListQueueArgs struct{}

// Tool outputs

// TrackInfo is a recognized track
type TrackInfo struct {
	Title        string            `json:"title"`
	Artist       string            `json:"artist"`
	Album        string            `json:"album,omitempty"`
	ReleaseDate  string            `json:"release_date,omitempty"`
	ISRC         string            `json:"isrc,omitempty"`
	ArtworkURL   string            `json:"artwork_url,omitempty"`
	Links        recognition.Links `json:"links"`
	RecognizedAt time.Time         `json:"recognized_at"`
}

// RecognizeOutput describes how a recognition ended
type RecognizeOutput struct {
	Matched bool       `json:"matched"`
	State   string     `json:"state"`
	Track   *TrackInfo `json:"track,omitempty"`
	Failure string     `json:"failure,omitempty"`
	QueueID *int64     `json:"queue_id,omitempty"`
}

// LibraryItem is one library entry
type LibraryItem struct {
	Key      string    `json:"key"`
	Track    TrackInfo `json:"track"`
	LastSeen time.Time `json:"last_seen"`
	Count    int       `json:"count"`
}

type ListLibraryOutput struct {
	Tracks []LibraryItem `json:"tracks"`
}

// QueueItem is one queued recording
type QueueItem struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Duration  string    `json:"duration"`
	Failure   string    `json:"failure,omitempty"`
	Retries   int       `json:"retries"`
}

type ListQueueOutput struct {
	Entries []QueueItem `json:"entries"`
}

func trackInfo(t recognition.Track) TrackInfo {
	return TrackInfo{
		Title:        t.Title,
		Artist:       t.Artist,
		Album:        t.Album,
		ReleaseDate:  t.ReleaseDate,
		ISRC:         t.ISRC,
		ArtworkURL:   t.Artwork.URL,
		Links:        t.Links,
		RecognizedAt: t.RecognizedAt,
	}
}

func recognizeOutput(task recognition.Task) RecognizeOutput {
	rec := output.NewTaskRecord(task)
	out := RecognizeOutput{State: rec.State, QueueID: rec.ID}
	if rec.Track != nil {
		info := trackInfo(*rec.Track)
		out.Matched = true
		out.Track = &info
	}
	if rec.Reason != nil {
		out.Failure = rec.Reason.String()
	}
	return out
}

func libraryItem(e store.LibraryEntry) LibraryItem {
	return LibraryItem{Key: e.Key, Track: trackInfo(e.Track), LastSeen: e.LastSeen, Count: e.Count}
}

func queueItem(e store.QueuedAttempt) QueueItem {
	item := QueueItem{ID: e.ID, CreatedAt: e.CreatedAt, Duration: e.Duration, Retries: e.Retries}
	if e.Failure != nil {
		item.Failure = e.Failure.String()
	}
	return item
}
