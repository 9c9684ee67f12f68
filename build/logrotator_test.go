package build

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRotatingLogWriter(t *testing.T) {
	t.Parallel()

	logFile := filepath.Join(t.TempDir(), "mainnet", "qvault.log")

	cfg := DefaultLogConfig()
	w, err := NewRotatingLogWriter(cfg.File, logFile)
	require.NoError(t, err)

	mgr := NewSubLoggerManager(w)
	mgr.GenSubLogger("VALT").Infof("created vault %s", "qv123")
	require.NoError(t, w.Close())

	contents, err := os.ReadFile(logFile)
	require.NoError(t, err)
	require.Contains(t, string(contents), "VALT: created vault qv123")
}

func TestRotatingLogWriterDisabled(t *testing.T) {
	t.Parallel()

	logFile := filepath.Join(t.TempDir(), "qvault.log")

	cfg := DefaultLogConfig()
	cfg.File.Disable = true
	w, err := NewRotatingLogWriter(cfg.File, logFile)
	require.NoError(t, err)

	n, err := w.Write([]byte("dropped\n"))
	require.NoError(t, err)
	require.Equal(t, 8, n)
	require.NoError(t, w.Close())

	_, err = os.Stat(logFile)
	require.True(t, os.IsNotExist(err))

	// The zero value discards as well.
	var zero RotatingLogWriter
	_, err = zero.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, zero.Close())
}

func TestRotatingLogWriterBadCompressor(t *testing.T) {
	t.Parallel()

	cfg := DefaultLogConfig()
	cfg.File.Compressor = "lz4"
	_, err := NewRotatingLogWriter(
		cfg.File, filepath.Join(t.TempDir(), "qvault.log"),
	)
	require.ErrorContains(t, err, "unknown log compressor")
}
