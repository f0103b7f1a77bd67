// Package core is an embedded, append-only, log-structured key-value store.
//
// Writes are appended to segment files in a data directory, an in-memory key
// directory maps every live key to the location of its latest entry, and a
// read is a single positional read through that index. Reopening a directory
// replays every segment to rebuild the key directory.
//
// Superseded and deleted entries are never reclaimed; old segment files grow
// until something outside the store removes them.
package core

import (
	"fmt"
	"os"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/0xRadioAc7iv/segcask/internal/lock"
	"github.com/0xRadioAc7iv/segcask/pkg/keys"
)

// Bitcask is an open store over one data directory. It is safe for
// concurrent use.
//
// For a single key, the put or delete that completes last is the one later
// gets observe. Writes never hold the key directory lock while doing I/O:
// the entry is appended first, then the index is updated.
//
// Writers to the same key that are not ordered by the caller can finish
// their index updates in a different order than their appends reached disk.
// The running store then reports one winner, while reopening the directory
// replays the log and reports the other. Callers that need a stable winner
// across restarts must order their writes to a key themselves.
type Bitcask[K comparable] struct {
	lockFile *os.File
	segments *SegmentManager[K]
	keyDir   *KeyDir[K]
	logger   *zap.Logger
	closed   atomic.Bool

	DirectoryPath string
}

// Open opens the store in dir, creating the directory if needed, and
// rebuilds the key directory from the segment files found there. Segments
// roll over once they reach roughly maxSegmentSize bytes.
//
// Only one store may have a directory open at a time.
func Open[K comparable](dir string, maxSegmentSize int64, codec keys.Codec[K], opts ...Option) (*Bitcask[K], error) {
	if maxSegmentSize <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSegmentSize, maxSegmentSize)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if err := openDataDirectory(dir, o.logger); err != nil {
		return nil, err
	}

	lf, err := lock.LockDirectory(dir)
	if err != nil {
		return nil, err
	}

	keyDir := NewKeyDir[K]()

	segments, err := OpenSegmentManager(dir, maxSegmentSize, codec, keyDir, opts...)
	if err != nil {
		lock.UnlockDirectory(lf)
		return nil, err
	}

	return &Bitcask[K]{
		lockFile:      lf,
		segments:      segments,
		keyDir:        keyDir,
		logger:        o.logger,
		DirectoryPath: dir,
	}, nil
}

func openDataDirectory(dir string, logger *zap.Logger) error {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("core: %s is not a directory", dir)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return err
	}

	logger.Info("data directory does not exist, creating it", zap.String("dir", dir))
	return os.MkdirAll(dir, dataDirPerm)
}

// Put stores value under key. Overwriting a key appends a new entry; the
// old one stays on disk but is no longer reachable.
func (bk *Bitcask[K]) Put(key K, value []byte) error {
	if bk.closed.Load() {
		return ErrClosed
	}

	loc, err := bk.segments.Append(key, value)
	if err != nil {
		return err
	}

	bk.keyDir.Put(key, loc)
	return nil
}

// Get returns the value stored under key. A missing key is (nil, false, nil).
// A key whose entry cannot be read back is an integrity failure and is
// reported as an error.
func (bk *Bitcask[K]) Get(key K) ([]byte, bool, error) {
	if bk.closed.Load() {
		return nil, false, ErrClosed
	}

	loc, ok := bk.keyDir.Get(key)
	if !ok {
		return nil, false, nil
	}

	e, err := bk.segments.Read(loc.SegmentID, loc.Offset, loc.Length)
	if err != nil {
		return nil, false, fmt.Errorf("read %d@%d: %w", loc.SegmentID, loc.Offset, err)
	}
	if e.Tombstone || e.Key != key {
		return nil, false, fmt.Errorf("%w: index entry %d@%d does not hold a live value for the key",
			ErrCorruptFrame, loc.SegmentID, loc.Offset)
	}

	return e.Value, true, nil
}

// Delete appends a tombstone for key and drops it from the index. Deleting
// a key that does not exist is not an error.
func (bk *Bitcask[K]) Delete(key K) error {
	if bk.closed.Load() {
		return ErrClosed
	}

	if _, err := bk.segments.AppendDelete(key); err != nil {
		return err
	}

	bk.keyDir.Remove(key)
	return nil
}

func (bk *Bitcask[K]) Exists(key K) bool {
	_, ok := bk.keyDir.Get(key)
	return ok
}

// Count returns the number of live keys.
func (bk *Bitcask[K]) Count() int {
	return bk.keyDir.Len()
}

// Keys returns every live key, in no particular order.
func (bk *Bitcask[K]) Keys() []K {
	return bk.keyDir.Keys()
}

// Sync commits the active segment to stable storage.
func (bk *Bitcask[K]) Sync() error {
	if bk.closed.Load() {
		return ErrClosed
	}
	return bk.segments.Flush()
}

func (bk *Bitcask[K]) Stats() SegmentStats {
	return bk.segments.Stats()
}

// Close flushes and closes every segment and releases the directory lock.
// Calling Close more than once is a no-op.
func (bk *Bitcask[K]) Close() error {
	if !bk.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := bk.segments.Close()
	if err != nil {
		bk.logger.Error("closing segments", zap.Error(err))
	}

	if bk.lockFile != nil {
		lock.UnlockDirectory(bk.lockFile)
	}

	return err
}
