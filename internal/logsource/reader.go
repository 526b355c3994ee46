package logsource

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/tinytelemetry/loglens/internal/model"
)

const (
	// DefaultBuffer is the default channel buffer size for read lines.
	DefaultBuffer = 4096

	// DefaultMaxLineSize is the default maximum size (in bytes) of a single line.
	DefaultMaxLineSize = 1024 * 1024 // 1MB

	readBufferSize = 64 * 1024
)

// Config holds tunable parameters for line sources.
type Config struct {
	BufferSize  int
	MaxLineSize int
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBuffer
	}
	if c.MaxLineSize <= 0 {
		c.MaxLineSize = DefaultMaxLineSize
	}
	return c
}

// ReaderSource streams lines from an io.Reader in a background goroutine.
// Lines are emitted in input order and numbered from 1. Lines longer than
// MaxLineSize are emitted as oversize envelopes with no content.
type ReaderSource struct {
	name   string
	label  string
	ch     chan model.IngestEnvelope
	cancel context.CancelFunc
	closer io.Closer

	mu  sync.Mutex
	err error
}

// NewFileSource opens path and starts streaming its lines.
// The open error is returned directly so callers can fail before any analysis begins.
func NewFileSource(ctx context.Context, path string, conf ...Config) (*ReaderSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if stat.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return newReaderSource(ctx, "file", path, f, f, conf...), nil
}

// NewStdinSource streams lines from standard input.
func NewStdinSource(ctx context.Context, conf ...Config) *ReaderSource {
	return newReaderSource(ctx, "stdin", "-", os.Stdin, nil, conf...)
}

// NewReaderSource streams lines from an arbitrary reader. It does not close r.
func NewReaderSource(ctx context.Context, name string, r io.Reader, conf ...Config) *ReaderSource {
	return newReaderSource(ctx, name, name, r, nil, conf...)
}

func newReaderSource(ctx context.Context, name, label string, r io.Reader, closer io.Closer, conf ...Config) *ReaderSource {
	var c Config
	if len(conf) > 0 {
		c = conf[0]
	}
	c = c.withDefaults()

	ctx, cancel := context.WithCancel(ctx)
	s := &ReaderSource{
		name:   name,
		label:  label,
		ch:     make(chan model.IngestEnvelope, c.BufferSize),
		cancel: cancel,
		closer: closer,
	}
	go s.read(ctx, r, c.MaxLineSize)
	return s
}

func (s *ReaderSource) read(ctx context.Context, r io.Reader, maxLineSize int) {
	defer close(s.ch)
	if s.closer != nil {
		defer s.closer.Close()
	}

	br := bufio.NewReaderSize(r, readBufferSize)
	lineNo := 0
	for {
		line, oversize, err := readLine(br, maxLineSize)
		if err != nil && !errors.Is(err, io.EOF) {
			s.setErr(fmt.Errorf("logsource: read %s: %w", s.label, err))
			return
		}
		eof := errors.Is(err, io.EOF)
		if eof && line == "" && !oversize {
			return
		}

		lineNo++
		env := model.IngestEnvelope{
			Source:   s.name,
			Line:     line,
			LineNo:   lineNo,
			Oversize: oversize,
		}
		select {
		case s.ch <- env:
		case <-ctx.Done():
			s.setErr(ctx.Err())
			return
		}
		if eof {
			return
		}
	}
}

// readLine reads one newline-terminated line without the trailing "\r\n".
// Content beyond maxLineSize is discarded and the line is reported as oversize.
func readLine(r *bufio.Reader, maxLineSize int) (string, bool, error) {
	var (
		buf      []byte
		oversize bool
	)
	for {
		chunk, err := r.ReadSlice('\n')
		if !oversize {
			buf = append(buf, chunk...)
			if len(bytes.TrimRight(buf, "\r\n")) > maxLineSize {
				oversize = true
				buf = nil
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if oversize {
			return "", true, err
		}
		return string(bytes.TrimRight(buf, "\r\n")), false, err
	}
}

func (s *ReaderSource) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *ReaderSource) Lines() <-chan model.IngestEnvelope { return s.ch }
func (s *ReaderSource) Stop()                              { s.cancel() }
func (s *ReaderSource) Name() string                       { return s.name }

// Label returns the human-readable input name (file path or "-").
func (s *ReaderSource) Label() string { return s.label }

func (s *ReaderSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
