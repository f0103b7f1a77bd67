// Package keys defines the key capability the storage engine is generic over.
//
// A key type K must be comparable so it can live in the in-memory key
// directory. A Codec turns K into the bytes written to a segment and back.
package keys

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrInvalidEncoding is returned by a codec when stored key bytes cannot be
// turned back into a key.
var ErrInvalidEncoding = errors.New("keys: invalid key encoding")

// Codec serializes keys of type K to bytes and back.
//
// Errors returned by a Codec are propagated by the engine unchanged.
type Codec[K comparable] interface {
	Marshal(key K) ([]byte, error)
	Unmarshal(data []byte) (K, error)
}

// String is a Codec for UTF-8 string keys.
var String Codec[string] = stringCodec{}

// Bytes is a Codec for arbitrary binary keys held in a string.
// Unlike String it accepts any byte sequence.
var Bytes Codec[string] = bytesCodec{}

// Uint64 is a Codec for numeric keys stored as 8 little-endian bytes.
var Uint64 Codec[uint64] = uint64Codec{}

type stringCodec struct{}

func (stringCodec) Marshal(key string) ([]byte, error) {
	if !utf8.ValidString(key) {
		return nil, ErrInvalidEncoding
	}
	return []byte(key), nil
}

func (stringCodec) Unmarshal(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", ErrInvalidEncoding
	}
	return string(data), nil
}

type bytesCodec struct{}

func (bytesCodec) Marshal(key string) ([]byte, error) { return []byte(key), nil }

func (bytesCodec) Unmarshal(data []byte) (string, error) { return string(data), nil }

type uint64Codec struct{}

func (uint64Codec) Marshal(key uint64) ([]byte, error) {
	return binary.LittleEndian.AppendUint64(nil, key), nil
}

func (uint64Codec) Unmarshal(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("%w: want 8 bytes, got %d", ErrInvalidEncoding, len(data))
	}
	return binary.LittleEndian.Uint64(data), nil
}
