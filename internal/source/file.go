package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// FileSource replays 8-bit unsigned I/Q samples from a file or stdin.
type FileSource struct {
	name   string
	r      io.Reader
	closer io.Closer
	loop   bool
	logger *logrus.Logger
}

// OpenFile opens path for replay; "-" reads stdin. Looping needs a
// seekable file and is ignored for stdin.
func OpenFile(path string, loop bool, logger *logrus.Logger) (*FileSource, error) {
	if path == "-" {
		if loop {
			logger.Warn("Looping is not supported on stdin, reading once")
		}
		return &FileSource{name: "stdin", r: os.Stdin, logger: logger}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sample file: %w", err)
	}
	return &FileSource{name: path, r: f, closer: f, loop: loop, logger: logger}, nil
}

// NewReaderSource wraps an arbitrary reader; it is never looped.
func NewReaderSource(name string, r io.Reader, logger *logrus.Logger) *FileSource {
	return &FileSource{name: name, r: r, logger: logger}
}

// Run publishes the file batch by batch, waiting for the consumer to drain
// each one. At end of input it closes the handoff unless looping.
func (f *FileSource) Run(ctx context.Context, h *Handoff) error {
	defer h.Close()

	f.logger.WithFields(logrus.Fields{
		"file": f.name,
		"loop": f.loop,
	}).Info("Reading samples from file")

	batch := make([]byte, h.BatchSize())
	var batches int

	for {
		n, err := io.ReadFull(f.r, batch)
		if n > 0 {
			if perr := h.PublishWait(ctx, batch[:n]); perr != nil {
				if errors.Is(perr, ErrClosed) || errors.Is(perr, context.Canceled) {
					return nil
				}
				return perr
			}
			batches++
		}

		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
			if !f.loop {
				f.logger.WithField("batches", batches).Info("End of sample file")
				return nil
			}
			seeker, ok := f.r.(io.Seeker)
			if !ok {
				return nil
			}
			if _, serr := seeker.Seek(0, io.SeekStart); serr != nil {
				return fmt.Errorf("failed to rewind sample file: %w", serr)
			}
			if n == 0 && batches == 0 {
				// empty file, nothing to loop over
				return nil
			}
		default:
			return fmt.Errorf("failed to read samples: %w", err)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close releases the underlying file.
func (f *FileSource) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}
