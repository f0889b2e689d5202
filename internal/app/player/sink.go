package player

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
)

// Sink receives frames from the pump.
type Sink interface {
	WriteFrame(frame []byte) error
}

// DiscardSink drops every frame.
type DiscardSink struct{}

// WriteFrame implements Sink.
func (DiscardSink) WriteFrame([]byte) error { return nil }

// WriterSink writes raw frames to an io.Writer.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink that writes to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// NewFileSink creates a sink appending raw PCM to <dir>/<tenant>.pcm.
func NewFileSink(dir, tenant string) (*WriterSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create output directory %s", dir)
	}
	path := filepath.Join(dir, filepath.Base(tenant)+".pcm")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open output file %s", path)
	}
	return NewWriterSink(f), nil
}

// WriteFrame implements Sink.
func (s *WriterSink) WriteFrame(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write(frame)
	return err
}

// Close closes the underlying writer if it is an io.Closer.
func (s *WriterSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
