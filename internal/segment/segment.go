// Package segment ties one append-only log file to a numeric identity and
// speaks whole entries instead of raw bytes.
package segment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/0xRadioAc7iv/segcask/internal/logfile"
	"github.com/0xRadioAc7iv/segcask/internal/record"
	"github.com/0xRadioAc7iv/segcask/pkg/keys"
)

// FileSuffix identifies segment files inside a data directory.
const FileSuffix = "_segment.data"

// Location is where an encoded entry lives on disk. It is everything needed
// to read the entry back.
type Location struct {
	SegmentID uint64
	Offset    int64
	Length    uint32
}

// Segment is one log file plus its id.
type Segment[K comparable] struct {
	id    uint64
	file  *logfile.File
	codec keys.Codec[K]
}

// FileName returns the file name used for segment id.
func FileName(id uint64) string {
	return strconv.FormatUint(id, 10) + FileSuffix
}

// ParseFileName extracts the segment id from a file name produced by FileName.
func ParseFileName(name string) (uint64, bool) {
	prefix, ok := strings.CutSuffix(name, FileSuffix)
	if !ok || prefix == "" {
		return 0, false
	}

	id, err := strconv.ParseUint(prefix, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Create opens (creating if needed) the segment file for id in dir, ready
// for appends.
func Create[K comparable](id uint64, dir string, codec keys.Codec[K]) (*Segment[K], error) {
	f, err := logfile.Open(filepath.Join(dir, FileName(id)))
	if err != nil {
		return nil, fmt.Errorf("create segment %d: %w", id, err)
	}
	return &Segment[K]{id: id, file: f, codec: codec}, nil
}

// OpenSealed opens an existing segment for reads only.
func OpenSealed[K comparable](id uint64, dir string, codec keys.Codec[K]) (*Segment[K], error) {
	f, err := logfile.OpenReadOnly(filepath.Join(dir, FileName(id)))
	if err != nil {
		return nil, fmt.Errorf("open segment %d: %w", id, err)
	}
	return &Segment[K]{id: id, file: f, codec: codec}, nil
}

func (s *Segment[K]) ID() uint64 { return s.id }

// Size is the current write offset of the segment file.
func (s *Segment[K]) Size() int64 { return s.file.Size() }

func (s *Segment[K]) Path() string { return s.file.Path() }

// Append encodes e, writes it, and returns where it landed.
func (s *Segment[K]) Append(e record.Entry[K]) (Location, error) {
	encoded, err := record.Encode(&e, s.codec)
	if err != nil {
		return Location{}, err
	}

	offset, err := s.file.Append(encoded)
	if err != nil {
		return Location{}, fmt.Errorf("segment %d: %w", s.id, err)
	}

	return Location{
		SegmentID: s.id,
		Offset:    offset,
		Length:    uint32(len(encoded)),
	}, nil
}

// Read fetches exactly size bytes at offset and decodes them as one entry.
func (s *Segment[K]) Read(offset int64, size uint32) (record.Entry[K], error) {
	buf, err := s.file.Read(offset, int(size))
	if err != nil {
		return record.Entry[K]{}, fmt.Errorf("segment %d: %w", s.id, err)
	}
	if len(buf) < int(size) {
		return record.Entry[K]{}, fmt.Errorf("%w: segment %d: read %d of %d bytes at %d",
			record.ErrCorruptFrame, s.id, len(buf), size, offset)
	}

	e, n, err := record.Decode(buf, 0, s.codec)
	if err != nil {
		return record.Entry[K]{}, err
	}
	if n != int(size) {
		return record.Entry[K]{}, fmt.Errorf("%w: segment %d: entry at %d is %d bytes, expected %d",
			record.ErrCorruptFrame, s.id, offset, n, size)
	}

	return e, nil
}

// ErrTornTail is returned by Replay when the file ends in the middle of an
// entry. The entries before it were all delivered.
var ErrTornTail = errors.New("segment: incomplete entry at end of file")

// TornTailError reports where the last complete entry ended.
type TornTailError struct {
	SegmentID uint64
	Offset    int64 // first byte of the incomplete entry
}

func (e *TornTailError) Error() string {
	return fmt.Sprintf("segment %d: incomplete entry at offset %d", e.SegmentID, e.Offset)
}

func (e *TornTailError) Unwrap() error { return ErrTornTail }

// Replay calls fn for every entry in the segment in offset order.
//
// If the file ends partway through an entry, Replay returns a
// *TornTailError. Any other malformed entry yields record.ErrCorruptFrame.
func (s *Segment[K]) Replay(fn func(e record.Entry[K], loc Location) error) error {
	buf, err := s.file.ReadAll()
	if err != nil {
		return fmt.Errorf("segment %d: %w", s.id, err)
	}

	offset := 0
	for offset < len(buf) {
		if len(buf)-offset < record.HeaderSize {
			return &TornTailError{SegmentID: s.id, Offset: int64(offset)}
		}

		length, err := record.FrameLength(buf, offset)
		if err != nil {
			return fmt.Errorf("segment %d at %d: %w", s.id, offset, err)
		}
		if len(buf)-offset < length {
			if next, ok := s.intactEntriesAfter(buf, offset+1); ok {
				return fmt.Errorf("%w: segment %d: entry at %d claims %d bytes but complete entries follow at %d",
					record.ErrCorruptFrame, s.id, offset, length, next)
			}
			return &TornTailError{SegmentID: s.id, Offset: int64(offset)}
		}

		e, n, err := record.Decode(buf, offset, s.codec)
		if err != nil {
			return fmt.Errorf("segment %d at %d: %w", s.id, offset, err)
		}

		loc := Location{SegmentID: s.id, Offset: int64(offset), Length: uint32(n)}
		if err := fn(e, loc); err != nil {
			return err
		}

		offset += n
	}

	return nil
}

// intactEntriesAfter reports whether some offset at or after from starts a
// run of well-formed entries that ends exactly at the end of buf. A crash
// during append leaves a prefix of one entry, never whole entries behind it,
// so such a run means the header before it is damaged.
func (s *Segment[K]) intactEntriesAfter(buf []byte, from int) (int, bool) {
	for start := from; len(buf)-start > record.HeaderSize; start++ {
		offset := start
		for offset < len(buf) {
			_, n, err := record.Decode(buf, offset, s.codec)
			if err != nil {
				break
			}
			offset += n
		}
		if offset == len(buf) {
			return start, true
		}
	}
	return 0, false
}

// TornSuffix is appended to a segment file name for the bytes recovery cut
// off its tail.
const TornSuffix = ".torn"

// SaveTail copies everything from offset to the end of the segment into a
// sidecar file next to it and returns the sidecar path. Earlier content of
// the sidecar is kept.
func (s *Segment[K]) SaveTail(offset int64) (string, error) {
	size := s.file.Size()
	if offset >= size {
		return "", nil
	}

	tail, err := s.file.Read(offset, int(size-offset))
	if err != nil {
		return "", err
	}

	path := s.file.Path() + TornSuffix
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(tail); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

// Truncate drops everything from size onwards. Used to discard a torn tail.
func (s *Segment[K]) Truncate(size int64) error {
	return s.file.Truncate(size)
}

// Flush commits appended entries to stable storage.
func (s *Segment[K]) Flush() error { return s.file.Flush() }

// Seal stops accepting appends. Reads keep working.
func (s *Segment[K]) Seal() error { return s.file.Seal() }

func (s *Segment[K]) Close() error { return s.file.Close() }

// Delete closes the segment and removes its file.
func (s *Segment[K]) Delete() error { return s.file.Delete() }
