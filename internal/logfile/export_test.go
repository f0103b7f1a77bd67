package logfile

import "io"

// WrapWriter replaces the append handle of f with wrap(current handle).
func (f *File) WrapWriter(wrap func(w io.Writer) io.Writer) {
	f.mu.Lock()
	defer f.mu.Unlock()

	inner := f.writer
	f.writer = struct {
		io.Writer
		syncCloser
	}{wrap(inner), inner}
}

type syncCloser interface {
	Sync() error
	Close() error
}
