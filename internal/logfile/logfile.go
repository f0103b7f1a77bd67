// Package logfile implements a single append-only file.
//
// Appends go through an O_APPEND handle and reads go through a separate
// read-only handle using positional reads, so writers and readers never move
// each other's cursor and any number of readers can run at once.
package logfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	// ErrShortWrite is returned when the OS accepted fewer bytes than were
	// appended. The file framing after the returned offset is unknown.
	ErrShortWrite = errors.New("logfile: short write")

	// ErrReadOnly is returned by mutating calls on a file opened without an
	// append handle, or after Seal.
	ErrReadOnly = errors.New("logfile: file is read-only")

	errClosed = errors.New("logfile: file is closed")
)

// appendHandle is the write side of a File. *os.File opened with O_APPEND in
// production.
type appendHandle interface {
	io.Writer
	Sync() error
	Close() error
}

// File is an append-only file on disk.
type File struct {
	path string

	mu     sync.Mutex // guards writer, offset and broken
	writer appendHandle
	offset int64
	broken error // set when a torn append could not be rolled back

	reader *os.File
}

// Open opens or creates the file at path for appending and reading.
// The write offset starts at the current end of the file.
func Open(path string) (*File, error) {
	writer, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	info, err := writer.Stat()
	if err != nil {
		writer.Close()
		return nil, err
	}

	reader, err := os.Open(path)
	if err != nil {
		writer.Close()
		return nil, err
	}

	return &File{
		path:   path,
		writer: writer,
		offset: info.Size(),
		reader: reader,
	}, nil
}

// OpenReadOnly opens an existing file for reading only.
func OpenReadOnly(path string) (*File, error) {
	reader, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := reader.Stat()
	if err != nil {
		reader.Close()
		return nil, err
	}

	return &File{path: path, reader: reader, offset: info.Size()}, nil
}

func (f *File) Path() string { return f.path }

// Size returns the current write offset, which is the length of the file.
func (f *File) Size() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offset
}

// Append writes data at the end of the file and returns the offset it was
// written at.
func (f *File) Append(data []byte) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writer == nil {
		return 0, ErrReadOnly
	}
	if f.broken != nil {
		return 0, f.broken
	}

	offset := f.offset

	n, err := f.writer.Write(data)
	if n == len(data) {
		f.offset += int64(n)
		return offset, nil
	}
	shortErr := fmt.Errorf("%w: %s at %d: wrote %d of %d bytes", ErrShortWrite, f.path, offset, n, len(data))
	if err != nil {
		shortErr = fmt.Errorf("%w: %w", shortErr, err)
	}

	// Drop the partial bytes so the next append starts where offset says.
	if truncErr := os.Truncate(f.path, offset); truncErr != nil {
		f.broken = fmt.Errorf("%w: rollback failed, file no longer appendable: %w", shortErr, truncErr)
		return 0, f.broken
	}
	return 0, shortErr
}

// Read reads up to size bytes starting at offset. Fewer than size bytes are
// returned, without error, when the end of the file is reached first.
func (f *File) Read(offset int64, size int) ([]byte, error) {
	if f.reader == nil {
		return nil, errClosed
	}

	buf := make([]byte, size)
	n, err := f.reader.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read %s at %d: %w", f.path, offset, err)
	}

	return buf[:n], nil
}

// ReadAll returns the whole content of the file.
func (f *File) ReadAll() ([]byte, error) {
	if f.reader == nil {
		return nil, errClosed
	}

	info, err := f.reader.Stat()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, info.Size())
	n, err := f.reader.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}

	return buf[:n], nil
}

// Flush commits appended data to stable storage.
func (f *File) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writer == nil {
		return ErrReadOnly
	}
	return f.writer.Sync()
}

// Truncate cuts the file down to size bytes and moves the write offset there.
func (f *File) Truncate(size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Truncate(f.path, size); err != nil {
		return err
	}
	f.offset = size

	if f.writer != nil {
		return f.writer.Sync()
	}
	return nil
}

// Seal flushes and closes the append handle. The file stays readable.
func (f *File) Seal() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writer == nil {
		return nil
	}

	if err := f.writer.Sync(); err != nil {
		return err
	}
	err := f.writer.Close()
	f.writer = nil
	return err
}

// Close seals the file and closes the read handle.
func (f *File) Close() error {
	sealErr := f.Seal()

	var closeErr error
	if f.reader != nil {
		closeErr = f.reader.Close()
		f.reader = nil
	}

	return errors.Join(sealErr, closeErr)
}

// Delete closes the file and removes it from disk.
func (f *File) Delete() error {
	if err := f.Close(); err != nil {
		return err
	}
	return os.Remove(f.path)
}
