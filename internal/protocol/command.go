// Package protocol implements the length-prefixed framing spoken between the
// segcask server and its clients.
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Command names understood by the server.
const (
	CmdPing   = "ping"
	CmdSet    = "set"
	CmdGet    = "get"
	CmdDelete = "delete"
	CmdExists = "exists"
	CmdCount  = "count"
	CmdList   = "list"
	CmdHelp   = "help"
)

// MaxPayloadSize caps a single key, value or response body so a corrupt or
// hostile length prefix cannot make the reader allocate without bound.
const MaxPayloadSize = 64 * 1024 * 1024

var (
	ErrCommandTooLong = errors.New("protocol: command name longer than 255 bytes")
	ErrFrameTooLarge  = errors.New("protocol: frame exceeds maximum payload size")
)

// Command represents a decoded client command received by the server.
//
// A Command consists of a command name (Cmd), an optional key, and an optional
// value. The meaning of Key and Val depends on the command type.
type Command struct {
	Cmd string
	Key string
	Val []byte
}

// EncodeCommand serializes a client command into its wire format.
//
// The command is encoded as:
//
//	<cmd_len:uint8><key_len:uint32><val_len:uint32><cmd><key><val>
//
// All integer fields are encoded using big-endian byte order.
func EncodeCommand(cmd, key string, val []byte) ([]byte, error) {
	if len(cmd) > math.MaxUint8 {
		return nil, ErrCommandTooLong
	}
	if len(key) > MaxPayloadSize || len(val) > MaxPayloadSize {
		return nil, ErrFrameTooLarge
	}

	buf := &bytes.Buffer{}
	buf.Grow(1 + 4 + 4 + len(cmd) + len(key) + len(val))

	buf.WriteByte(uint8(len(cmd)))
	if err := binary.Write(buf, binary.BigEndian, uint32(len(key))); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.BigEndian, uint32(len(val))); err != nil {
		return nil, err
	}

	buf.WriteString(cmd)
	buf.WriteString(key)
	buf.Write(val)

	return buf.Bytes(), nil
}

// DecodeCommand reads one command from r. It blocks until the full command
// has been read or an error occurs.
func DecodeCommand(r io.Reader) (*Command, error) {
	var header [9]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	cmdLen := int(header[0])
	keyLen := binary.BigEndian.Uint32(header[1:5])
	valLen := binary.BigEndian.Uint32(header[5:9])

	if keyLen > MaxPayloadSize || valLen > MaxPayloadSize {
		return nil, fmt.Errorf("%w: key %d bytes, value %d bytes", ErrFrameTooLarge, keyLen, valLen)
	}

	payload := make([]byte, cmdLen+int(keyLen)+int(valLen))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, unexpected(err)
	}

	return &Command{
		Cmd: string(payload[:cmdLen]),
		Key: string(payload[cmdLen : cmdLen+int(keyLen)]),
		Val: payload[cmdLen+int(keyLen):],
	}, nil
}

// unexpected reports a stream that ended after the header as truncated.
func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
