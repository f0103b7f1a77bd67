package record

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/0xRadioAc7iv/segcask/pkg/keys"
)

// ErrCorruptFrame is returned when a buffer does not hold a well-formed entry.
var ErrCorruptFrame = errors.New("record: corrupt frame")

// ErrEntryTooLarge is returned when a key or value does not fit the u32
// length fields of the header.
var ErrEntryTooLarge = errors.New("record: entry too large")

// Timestamp (4) + KeySize (4) + ValueSize (4)
const HeaderSize = 12

// TombstoneSize is the trailing live/deleted marker counted inside ValueSize.
const TombstoneSize = 1

const (
	tombstoneLive    byte = 0
	tombstoneDeleted byte = 1
)

// Entry is one record of the log.
//
// On disk:
//
//	| timestamp u32 | key_len u32 | value_len+1 u32 | key | value | tombstone u8 |
//
// All integers are little-endian.
type Entry[K comparable] struct {
	Timestamp uint32 // Unix seconds, filled in by Encode when zero
	Key       K
	Value     []byte // Always empty when Tombstone is set
	Tombstone bool
}

func NewEntry[K comparable](key K, value []byte) Entry[K] {
	return Entry[K]{Key: key, Value: value}
}

func NewTombstone[K comparable](key K) Entry[K] {
	return Entry[K]{Key: key, Tombstone: true}
}

// Encode serializes e. When e.Timestamp is zero it is set to the current
// wall-clock time before writing.
func Encode[K comparable](e *Entry[K], codec keys.Codec[K]) ([]byte, error) {
	keyBytes, err := codec.Marshal(e.Key)
	if err != nil {
		return nil, err
	}

	value := e.Value
	tombstone := tombstoneLive
	if e.Tombstone {
		value = nil
		tombstone = tombstoneDeleted
	}

	if uint64(len(keyBytes)) > math.MaxUint32 || uint64(len(value)) > math.MaxUint32-TombstoneSize {
		return nil, fmt.Errorf("%w: key %d bytes, value %d bytes", ErrEntryTooLarge, len(keyBytes), len(value))
	}

	if e.Timestamp == 0 {
		e.Timestamp = uint32(time.Now().Unix())
	}

	buf := &bytes.Buffer{}
	buf.Grow(HeaderSize + len(keyBytes) + len(value) + TombstoneSize)

	if err := binary.Write(buf, binary.LittleEndian, e.Timestamp); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(keyBytes))); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(value)+TombstoneSize)); err != nil {
		return nil, err
	}
	buf.Write(keyBytes)
	buf.Write(value)
	buf.WriteByte(tombstone)

	return buf.Bytes(), nil
}

type header struct {
	timestamp uint32
	keySize   uint32
	valueSize uint32 // includes the tombstone byte
}

func readHeader(buf []byte, start int) (header, error) {
	if start < 0 || len(buf)-start < HeaderSize {
		return header{}, fmt.Errorf("%w: need %d header bytes at offset %d, have %d",
			ErrCorruptFrame, HeaderSize, start, max(len(buf)-start, 0))
	}

	h := header{
		timestamp: binary.LittleEndian.Uint32(buf[start:]),
		keySize:   binary.LittleEndian.Uint32(buf[start+4:]),
		valueSize: binary.LittleEndian.Uint32(buf[start+8:]),
	}
	if h.valueSize < TombstoneSize {
		return header{}, fmt.Errorf("%w: value length %d leaves no room for tombstone", ErrCorruptFrame, h.valueSize)
	}

	return h, nil
}

func (h header) frameLength() int64 {
	return HeaderSize + int64(h.keySize) + int64(h.valueSize)
}

// FrameLength reads only the header at start and returns the total encoded
// length of the entry it describes. It does not check that the whole frame
// is present in buf.
func FrameLength(buf []byte, start int) (int, error) {
	h, err := readHeader(buf, start)
	if err != nil {
		return 0, err
	}
	return int(h.frameLength()), nil
}

// Decode parses one entry starting at buf[start]. It returns the entry and
// the number of bytes it occupied.
//
// Key bytes are handed to codec.Unmarshal; its error is returned unchanged.
func Decode[K comparable](buf []byte, start int, codec keys.Codec[K]) (Entry[K], int, error) {
	h, err := readHeader(buf, start)
	if err != nil {
		return Entry[K]{}, 0, err
	}

	total := h.frameLength()
	if int64(len(buf)-start) < total {
		return Entry[K]{}, 0, fmt.Errorf("%w: frame needs %d bytes at offset %d, have %d",
			ErrCorruptFrame, total, start, len(buf)-start)
	}

	keyStart := start + HeaderSize
	valueStart := keyStart + int(h.keySize)
	tombstoneAt := valueStart + int(h.valueSize) - TombstoneSize

	var deleted bool
	switch buf[tombstoneAt] {
	case tombstoneLive:
	case tombstoneDeleted:
		deleted = true
	default:
		return Entry[K]{}, 0, fmt.Errorf("%w: bad tombstone byte %#x", ErrCorruptFrame, buf[tombstoneAt])
	}

	if deleted && tombstoneAt != valueStart {
		return Entry[K]{}, 0, fmt.Errorf("%w: tombstone carries %d value bytes", ErrCorruptFrame, tombstoneAt-valueStart)
	}

	key, err := codec.Unmarshal(buf[keyStart:valueStart])
	if err != nil {
		return Entry[K]{}, 0, err
	}

	value := make([]byte, tombstoneAt-valueStart)
	copy(value, buf[valueStart:tombstoneAt])

	return Entry[K]{
		Timestamp: h.timestamp,
		Key:       key,
		Value:     value,
		Tombstone: deleted,
	}, int(total), nil
}
