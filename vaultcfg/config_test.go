package vaultcfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/quantumvault/qvault/chainsvc"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, contents string) {
	t.Helper()

	err := os.WriteFile(
		filepath.Join(dir, DefaultConfigFilename), []byte(contents),
		0600,
	)
	require.NoError(t, err)
}

// TestLoadDefaults asserts a missing config file yields the defaults and
// that arguments after the first non-option are handed back.
func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg, rest, err := Load([]string{
		"--qvaultdir=" + dir, "create", "--level=maximum",
	})
	require.NoError(t, err)

	require.Equal(t, []string{"create", "--level=maximum"}, rest)
	require.Equal(t, "mainnet", cfg.Network)
	require.Equal(t, filepath.Join(dir, DefaultConfigFilename),
		cfg.ConfigFile)
	require.Equal(t, filepath.Join(dir, defaultLogDirname), cfg.LogDir)
	require.EqualValues(t, DefaultFeeRate, cfg.Spend.FeeRate)
	require.Equal(t, ProviderWhatsOnChain, cfg.Indexer.Provider)
	require.Equal(t, []string{chainsvc.WhatsOnChainURL + "main"},
		cfg.Indexer.URLs)
}

// TestLoadLayers asserts the config file overrides the defaults and the
// command line overrides the config file.
func TestLoadLayers(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfig(t, dir, `
[Application Options]
network=testnet3
debuglevel=debug

[spend]
spend.feerate=500
spend.minoutput=1000

[indexer]
indexer.provider=esplora
indexer.url=https://one.example/api/
indexer.url=https://two.example/api
indexer.requesttimeout=5s
`)

	cfg, rest, err := Load([]string{
		"--qvaultdir=" + dir, "--spend.feerate=750", "status",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"status"}, rest)

	require.Equal(t, "testnet3", cfg.Network)
	require.Equal(t, "debug", cfg.DebugLevel)
	require.EqualValues(t, 750, cfg.Spend.FeeRate)
	require.EqualValues(t, 1000, cfg.Spend.MinOutput)
	require.Equal(t, ProviderEsplora, cfg.Indexer.Provider)
	require.Equal(t, []string{
		"https://one.example/api", "https://two.example/api",
	}, cfg.Indexer.URLs)
	require.Equal(t, 5*time.Second, cfg.Indexer.RequestTimeout)

	clients := cfg.ClientConfigs()
	require.Len(t, clients, 2)
	require.Equal(t, "https://two.example/api", clients[1].URL)
	require.Equal(t, 5*time.Second, clients[1].RequestTimeout)

	require.Equal(t, filepath.Join(
		dir, defaultLogDirname, "testnet3", defaultLogFilename,
	), cfg.LogFile())
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	t.Run("malformed file", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "[spend]\nspend.feerate=lots\n")

		_, _, err := Load([]string{"--qvaultdir=" + dir})
		var iniErr *flags.IniError
		require.ErrorAs(t, err, &iniErr)
	})

	t.Run("unknown network", func(t *testing.T) {
		_, _, err := Load([]string{
			"--qvaultdir=" + t.TempDir(), "--network=simnet",
		})
		require.Error(t, err)
	})

	t.Run("invalid value", func(t *testing.T) {
		_, _, err := Load([]string{
			"--qvaultdir=" + t.TempDir(), "--spend.feerate=0",
		})
		require.ErrorContains(t, err, "spend.feerate")
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		mutate   func(*Config)
		err      string
		provider string
		url      string
	}{{
		name:     "regtest defaults to local esplora",
		mutate:   func(c *Config) { c.Network = "regtest" },
		provider: ProviderEsplora,
		url:      DefaultRegtestURL,
	}, {
		name: "testnet esplora",
		mutate: func(c *Config) {
			c.Network = "testnet3"
			c.Indexer.Provider = ProviderEsplora
		},
		provider: ProviderEsplora,
		url:      "https://blockstream.info/testnet/api",
	}, {
		name: "regtest whatsonchain needs a url",
		mutate: func(c *Config) {
			c.Network = "regtest"
			c.Indexer.Provider = ProviderWhatsOnChain
		},
		err: "set indexer.url",
	}, {
		name:   "negative min output",
		mutate: func(c *Config) { c.Spend.MinOutput = -1 },
		err:    "spend.minoutput",
	}, {
		name:   "negative dust relay fee",
		mutate: func(c *Config) { c.Spend.DustRelayFee = -1 },
		err:    "spend.dustrelayfee",
	}, {
		name:   "zero timeout",
		mutate: func(c *Config) { c.Indexer.RequestTimeout = 0 },
		err:    "indexer.requesttimeout",
	}, {
		name:   "negative retries",
		mutate: func(c *Config) { c.Indexer.MaxRetries = -1 },
		err:    "indexer.maxretries",
	}, {
		name:   "negative rate limit",
		mutate: func(c *Config) { c.Indexer.RateLimit = -1 },
		err:    "indexer.ratelimit",
	}, {
		name: "bad compressor",
		mutate: func(c *Config) {
			c.LogConfig.File.Compressor = "lz4"
		},
		err: "invalid log compressor",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if tc.err != "" {
				require.ErrorContains(t, err, tc.err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.provider, cfg.Indexer.Provider)
			require.Equal(t, []string{tc.url}, cfg.Indexer.URLs)
		})
	}
}

func TestCleanAndExpandPath(t *testing.T) {
	t.Setenv("QVAULT_TEST_DIR", "/tmp/qv")

	require.Empty(t, CleanAndExpandPath(""))
	require.Equal(t, "/tmp/qv/logs",
		CleanAndExpandPath("$QVAULT_TEST_DIR/./logs/"))
}
