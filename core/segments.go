package core

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/0xRadioAc7iv/segcask/internal/record"
	"github.com/0xRadioAc7iv/segcask/internal/segment"
	"github.com/0xRadioAc7iv/segcask/pkg/keys"
)

// SegmentManager owns the single active segment and every sealed segment of
// a data directory.
//
// Appends take the lock exclusively. Reads take it shared: segment files are
// read with positional reads, so readers do not share a file cursor and only
// need protection from a concurrent rollover or Close.
type SegmentManager[K comparable] struct {
	mu     sync.RWMutex
	active *segment.Segment[K]
	sealed map[uint64]*segment.Segment[K]
	closed bool

	dir            string
	maxSegmentSize int64
	codec          keys.Codec[K]
	ids            IDGenerator
	syncOnWrite    bool
	logger         *zap.Logger
}

// SegmentStats is a point-in-time view of the segment set.
type SegmentStats struct {
	ActiveID   uint64
	ActiveSize int64
	SealedIDs  []uint64 // ascending
}

// OpenSegmentManager discovers the segment files in dir and replays every
// entry into keyDir, oldest segment first and in offset order within each
// segment. The newest segment becomes active; the rest are sealed. An empty
// directory gets a fresh active segment.
//
// An incomplete entry at the very end of the newest segment is what a crash
// during append leaves behind; it is truncated away. Damage anywhere else
// fails with ErrCorruptFrame.
func OpenSegmentManager[K comparable](dir string, maxSegmentSize int64, codec keys.Codec[K], keyDir *KeyDir[K], opts ...Option) (*SegmentManager[K], error) {
	if maxSegmentSize <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSegmentSize, maxSegmentSize)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	sm := &SegmentManager[K]{
		sealed:         make(map[uint64]*segment.Segment[K]),
		dir:            dir,
		maxSegmentSize: maxSegmentSize,
		codec:          codec,
		ids:            o.ids,
		syncOnWrite:    o.syncOnWrite,
		logger:         o.logger,
	}

	ids, err := sm.scanSegmentIDs()
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		sm.logger.Info("no segments found, creating first active segment", zap.String("dir", dir))

		id := sm.ids.Next()
		active, err := segment.Create(id, dir, codec)
		if err != nil {
			return nil, err
		}
		sm.active = active
		return sm, nil
	}

	if ob, ok := sm.ids.(observer); ok {
		ob.Observe(ids[len(ids)-1])
	}

	if err := sm.load(ids, keyDir); err != nil {
		sm.closeAll()
		return nil, err
	}

	sm.logger.Info("segments loaded",
		zap.String("dir", dir),
		zap.Int("sealed", len(sm.sealed)),
		zap.Uint64("active_id", sm.active.ID()),
		zap.Int64("active_size", sm.active.Size()),
		zap.Int("keys", keyDir.Len()),
	)

	return sm, nil
}

// scanSegmentIDs looks for segment files inside the data directory and
// returns their ids in ascending order.
func (sm *SegmentManager[K]) scanSegmentIDs() ([]uint64, error) {
	entries, err := os.ReadDir(sm.dir)
	if err != nil {
		return nil, err
	}

	ids := []uint64{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		id, ok := segment.ParseFileName(entry.Name())
		if !ok {
			if strings.HasSuffix(entry.Name(), segment.FileSuffix) {
				sm.logger.Warn("skipping file with unparseable segment name", zap.String("file", entry.Name()))
			}
			continue
		}
		ids = append(ids, id)
	}

	slices.Sort(ids)
	return ids, nil
}

func (sm *SegmentManager[K]) load(ids []uint64, keyDir *KeyDir[K]) error {
	newest := ids[len(ids)-1]

	for _, id := range ids {
		var seg *segment.Segment[K]
		var err error

		if id == newest {
			seg, err = segment.Create(id, sm.dir, sm.codec)
		} else {
			seg, err = segment.OpenSealed(id, sm.dir, sm.codec)
		}
		if err != nil {
			return err
		}

		if id == newest {
			sm.active = seg
		} else {
			sm.sealed[id] = seg
		}

		err = seg.Replay(func(e record.Entry[K], loc segment.Location) error {
			if e.Tombstone {
				keyDir.Remove(e.Key)
			} else {
				keyDir.Put(e.Key, loc)
			}
			return nil
		})

		var torn *segment.TornTailError
		switch {
		case err == nil:
		case errors.As(err, &torn) && id == newest:
			dropped := seg.Size() - torn.Offset
			saved, err := seg.SaveTail(torn.Offset)
			if err != nil {
				return fmt.Errorf("save torn tail of segment %d: %w", id, err)
			}
			sm.logger.Warn("truncating incomplete entry at end of active segment",
				zap.Uint64("segment_id", id),
				zap.Int64("offset", torn.Offset),
				zap.Int64("dropped_bytes", dropped),
				zap.String("saved_to", saved),
			)
			if err := seg.Truncate(torn.Offset); err != nil {
				return fmt.Errorf("truncate segment %d: %w", id, err)
			}
		case errors.As(err, &torn):
			return fmt.Errorf("%w: %v", ErrCorruptFrame, err)
		default:
			return err
		}
	}

	return nil
}

// Append writes a live entry for key, rolling the active segment over first
// if it has reached the size threshold.
func (sm *SegmentManager[K]) Append(key K, value []byte) (EntryLocation, error) {
	return sm.append(record.NewEntry(key, value))
}

// AppendDelete writes a tombstone for key.
func (sm *SegmentManager[K]) AppendDelete(key K) (EntryLocation, error) {
	return sm.append(record.NewTombstone(key))
}

func (sm *SegmentManager[K]) append(e record.Entry[K]) (EntryLocation, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.closed {
		return EntryLocation{}, ErrClosed
	}

	if err := sm.maybeRollOver(); err != nil {
		return EntryLocation{}, err
	}

	loc, err := sm.active.Append(e)
	if err != nil {
		return EntryLocation{}, err
	}

	if sm.syncOnWrite {
		if err := sm.active.Flush(); err != nil {
			return EntryLocation{}, err
		}
	}

	return loc, nil
}

// maybeRollOver seals the active segment and starts a new one once the
// active segment has reached maxSegmentSize. It runs before the write, so a
// segment can overshoot the threshold by at most one entry.
//
// Caller must hold sm.mu exclusively.
func (sm *SegmentManager[K]) maybeRollOver() error {
	size := sm.active.Size()
	if size < sm.maxSegmentSize {
		return nil
	}

	id := sm.ids.Next()
	if id <= sm.active.ID() {
		return fmt.Errorf("%w: got %d after %d", ErrIDNotIncreasing, id, sm.active.ID())
	}

	next, err := segment.Create(id, sm.dir, sm.codec)
	if err != nil {
		return err
	}

	old := sm.active
	if err := old.Seal(); err != nil {
		if delErr := next.Delete(); delErr != nil {
			sm.logger.Error("removing unused segment after failed seal", zap.Uint64("segment_id", id), zap.Error(delErr))
		}
		return fmt.Errorf("seal segment %d: %w", old.ID(), err)
	}

	sm.sealed[old.ID()] = old
	sm.active = next

	sm.logger.Info("rolled over active segment",
		zap.Uint64("sealed_id", old.ID()),
		zap.Int64("sealed_size", size),
		zap.Uint64("active_id", id),
	)

	return nil
}

// Read decodes the entry at offset in the given segment.
func (sm *SegmentManager[K]) Read(segmentID uint64, offset int64, size uint32) (record.Entry[K], error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if sm.closed {
		return record.Entry[K]{}, ErrClosed
	}

	if sm.active.ID() == segmentID {
		return sm.active.Read(offset, size)
	}

	seg, ok := sm.sealed[segmentID]
	if !ok {
		return record.Entry[K]{}, fmt.Errorf("%w: %d", ErrUnknownSegment, segmentID)
	}
	return seg.Read(offset, size)
}

// Flush commits the active segment to stable storage.
func (sm *SegmentManager[K]) Flush() error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if sm.closed {
		return ErrClosed
	}
	return sm.active.Flush()
}

func (sm *SegmentManager[K]) Stats() SegmentStats {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	stats := SegmentStats{SealedIDs: make([]uint64, 0, len(sm.sealed))}
	if sm.active != nil {
		stats.ActiveID = sm.active.ID()
		stats.ActiveSize = sm.active.Size()
	}
	for id := range sm.sealed {
		stats.SealedIDs = append(stats.SealedIDs, id)
	}
	slices.Sort(stats.SealedIDs)

	return stats
}

// Close flushes the active segment and closes every segment file.
func (sm *SegmentManager[K]) Close() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.closed {
		return nil
	}
	sm.closed = true

	return sm.closeAll()
}

func (sm *SegmentManager[K]) closeAll() error {
	var errs []error

	if sm.active != nil {
		errs = append(errs, sm.active.Close())
	}
	for _, seg := range sm.sealed {
		errs = append(errs, seg.Close())
	}

	return errors.Join(errs...)
}
