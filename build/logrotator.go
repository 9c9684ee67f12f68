package build

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
	"github.com/klauspost/compress/zstd"
)

// newCompressor returns the compressor rotated log files are written with.
func newCompressor(name string) (rotator.Compressor, error) {
	switch name {
	case Gzip:
		return gzip.NewWriter(nil), nil

	case Zstd:
		return zstd.NewWriter(nil)

	default:
		return nil, fmt.Errorf("unknown log compressor: %v", name)
	}
}

// RotatingLogWriter writes log lines to a size rotated, compressed log file.
// The zero value, and a writer for a disabled file logger, discards
// everything.
type RotatingLogWriter struct {
	pipe *io.PipeWriter
	done chan struct{}

	rotator *rotator.Rotator
}

// NewRotatingLogWriter opens logFile according to cfg. Close must be called
// on shutdown to flush the last lines.
func NewRotatingLogWriter(cfg *FileLoggerConfig,
	logFile string) (*RotatingLogWriter, error) {

	w := &RotatingLogWriter{}
	if cfg.Disable {
		return w, nil
	}

	compressor, err := newCompressor(cfg.Compressor)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w.rotator, err = rotator.New(
		logFile, int64(cfg.MaxLogFileSize*1024), false, cfg.MaxLogFiles,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create file rotator: %w", err)
	}
	w.rotator.SetCompressor(compressor, logCompressors[cfg.Compressor])

	pr, pw := io.Pipe()
	w.pipe = pw
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)

		err := w.rotator.Run(pr)
		if err != nil && !errors.Is(err, io.EOF) {
			_, _ = fmt.Fprintf(os.Stderr, "log rotator: %v\n", err)

			// Fail writers instead of blocking them.
			_ = pr.CloseWithError(err)
		}
	}()

	return w, nil
}

// Write implements io.Writer.
func (w *RotatingLogWriter) Write(b []byte) (int, error) {
	if w.pipe == nil {
		return len(b), nil
	}

	return w.pipe.Write(b)
}

// Close flushes pending lines to the log file and closes it. The command
// exits right after, so it waits for the rotator to drain the pipe.
func (w *RotatingLogWriter) Close() error {
	if w.pipe == nil {
		return nil
	}

	_ = w.pipe.Close()
	<-w.done

	return w.rotator.Close()
}
