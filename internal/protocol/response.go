package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Status tells the client how to read a response body.
type Status uint8

const (
	StatusOK    Status = iota // body is the result
	StatusNil                 // key not found, body is empty
	StatusError               // body is an error message
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNil:
		return "nil"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

type Response struct {
	Status Status
	Body   []byte
}

// EncodeResponse serializes a response as
//
//	<status:uint8><body_len:uint32><body>
//
// with big-endian lengths.
func EncodeResponse(resp Response) ([]byte, error) {
	if len(resp.Body) > MaxPayloadSize {
		return nil, ErrFrameTooLarge
	}

	buf := &bytes.Buffer{}
	buf.Grow(1 + 4 + len(resp.Body))

	buf.WriteByte(byte(resp.Status))
	if err := binary.Write(buf, binary.BigEndian, uint32(len(resp.Body))); err != nil {
		return nil, err
	}
	buf.Write(resp.Body)

	return buf.Bytes(), nil
}

func DecodeResponse(r io.Reader) (Response, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Response{}, err
	}

	status := Status(header[0])
	if status > StatusError {
		return Response{}, fmt.Errorf("protocol: unknown response %v", status)
	}

	bodyLen := binary.BigEndian.Uint32(header[1:])
	if bodyLen > MaxPayloadSize {
		return Response{}, fmt.Errorf("%w: body %d bytes", ErrFrameTooLarge, bodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return Response{}, unexpected(err)
	}

	return Response{Status: status, Body: body}, nil
}

func OK(body string) Response { return Response{Status: StatusOK, Body: []byte(body)} }

func Nil() Response { return Response{Status: StatusNil} }

func Error(msg string) Response { return Response{Status: StatusError, Body: []byte(msg)} }
