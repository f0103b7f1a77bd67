package core

import (
	"errors"

	"github.com/0xRadioAc7iv/segcask/internal/logfile"
	"github.com/0xRadioAc7iv/segcask/internal/record"
)

var (
	// ErrUnknownSegment is returned when a read names a segment id the
	// manager never created. It means the key directory and the segment set
	// have diverged.
	ErrUnknownSegment = errors.New("core: unknown segment")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("core: store is closed")

	// ErrIDNotIncreasing is returned when the id generator hands out an id
	// that is not greater than every segment id already in use.
	ErrIDNotIncreasing = errors.New("core: segment id not increasing")

	// ErrInvalidSegmentSize is returned when the maximum segment size is not
	// positive.
	ErrInvalidSegmentSize = errors.New("core: max segment size must be positive")

	// ErrCorruptFrame is returned when bytes on disk do not decode as an entry.
	ErrCorruptFrame = record.ErrCorruptFrame

	// ErrShortWrite is returned when an append was only partially written.
	ErrShortWrite = logfile.ErrShortWrite
)
