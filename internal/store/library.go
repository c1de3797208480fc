package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/emmett/earworm/internal/recognition"
)

// LibraryEntry is a recognized track with its recognition history
type LibraryEntry struct {
	Key       string            `json:"key"`
	Track     recognition.Track `json:"track"`
	FirstSeen time.Time         `json:"first_seen"`
	LastSeen  time.Time         `json:"last_seen"`
	Count     int               `json:"count"`
}

// TrackKey identifies a track in the library. The MusicBrainz id is used
// when known, otherwise a hash of artist and title.
func TrackKey(t recognition.Track) string {
	if t.MusicBrainzID != "" {
		return "mb:" + t.MusicBrainzID
	}
	norm := strings.ToLower(strings.TrimSpace(t.Artist)) + "|" + strings.ToLower(strings.TrimSpace(t.Title))
	return "xx:" + strconv.FormatUint(xxhash.ChecksumString64(norm), 16)
}

// AddTrack records a recognition of track. Recognizing a known track again
// refreshes its metadata and bumps the count.
func (s *Store) AddTrack(ctx context.Context, track recognition.Track) (LibraryEntry, error) {
	if err := ctx.Err(); err != nil {
		return LibraryEntry{}, err
	}
	if track.Title == "" {
		return LibraryEntry{}, errors.New("track has no title")
	}

	seen := track.RecognizedAt
	if seen.IsZero() {
		seen = time.Now()
	}
	key := TrackKey(track)

	var entry LibraryEntry
	err := s.db.Update(func(txn *badger.Txn) error {
		err := getJSON(txn, []byte(prefixLibrary+key), &entry)
		switch {
		case errors.Is(err, ErrNotFound):
			entry = LibraryEntry{Key: key, FirstSeen: seen}
		case err != nil:
			return err
		}
		entry.Track = track
		entry.LastSeen = seen
		entry.Count++
		return setJSON(txn, []byte(prefixLibrary+key), entry)
	})
	if err != nil {
		return LibraryEntry{}, fmt.Errorf("failed to save track: %w", err)
	}

	s.logger.Info("track saved", zap.String("key", key), zap.Stringer("track", track), zap.Int("count", entry.Count))
	return entry, nil
}

// Track returns one library entry by key
func (s *Store) Track(key string) (LibraryEntry, error) {
	var e LibraryEntry
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, []byte(prefixLibrary+key), &e)
	})
	if err != nil {
		return LibraryEntry{}, fmt.Errorf("track %s: %w", key, err)
	}
	return e, nil
}

// Library returns all entries, most recently recognized first
func (s *Store) Library() ([]LibraryEntry, error) {
	var out []LibraryEntry
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		out, err = scan[LibraryEntry](txn, prefixLibrary)
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out, nil
}

// RemoveTrack deletes a library entry
func (s *Store) RemoveTrack(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(prefixLibrary + key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("track %s: %w", key, ErrNotFound)
			}
			return err
		}
		return txn.Delete([]byte(prefixLibrary + key))
	})
}
