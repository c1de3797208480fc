// Package store keeps queued recognition attempts and the library of
// recognized tracks in a Badger database.
package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OneOfOne/xxhash"
	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a queue entry or library track does not exist
var ErrNotFound = errors.New("not found")

const (
	prefixQueue     = "queue/"
	prefixRecording = "rec/"
	prefixLibrary   = "lib/"
	keySequence     = "seq/queue"

	sequenceBandwidth = 16
	launchBacklog     = 16
)

// Store is a Badger-backed queue and library
type Store struct {
	db       *badger.DB
	seq      *badger.Sequence
	launches chan int64
	logger   *zap.Logger
}

// Open opens the database in dir. An empty dir keeps everything in memory.
func Open(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	seq, err := db.GetSequence([]byte(keySequence), sequenceBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open queue sequence: %w", err)
	}

	logger.Debug("store opened", zap.String("dir", dir))
	return &Store{
		db:       db,
		seq:      seq,
		launches: make(chan int64, launchBacklog),
		logger:   logger,
	}, nil
}

// Close releases the sequence lease and closes the database
func (s *Store) Close() error {
	var errs []error
	if err := s.seq.Release(); err != nil {
		errs = append(errs, fmt.Errorf("failed to release sequence: %w", err))
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close store: %w", err))
	}
	return errors.Join(errs...)
}

func queueKey(id int64) []byte {
	key := make([]byte, len(prefixQueue)+8)
	copy(key, prefixQueue)
	binary.BigEndian.PutUint64(key[len(prefixQueue):], uint64(id))
	return key
}

func recordingKey(data []byte) []byte {
	key := make([]byte, len(prefixRecording)+8)
	copy(key, prefixRecording)
	binary.BigEndian.PutUint64(key[len(prefixRecording):], xxhash.Checksum64(data))
	return key
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// scan decodes every value under prefix in key order
func scan[T any](txn *badger.Txn, prefix string) ([]T, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	var out []T
	for it.Rewind(); it.Valid(); it.Next() {
		var v T
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		}); err != nil {
			return nil, fmt.Errorf("corrupt entry %q: %w", it.Item().Key(), err)
		}
		out = append(out, v)
	}
	return out, nil
}
