// Package vaultcfg holds the qvault configuration. Options are resolved in
// three layers: built in defaults, then the INI config file, then command
// line flags.
package vaultcfg

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	flags "github.com/jessevdk/go-flags"
	"github.com/quantumvault/qvault/build"
	"github.com/quantumvault/qvault/chainsvc"
	"github.com/quantumvault/qvault/vault"
)

const (
	// DefaultConfigFilename is the default configuration file name qvault
	// tries to load.
	DefaultConfigFilename = "qvault.conf"

	defaultLogDirname  = "logs"
	defaultLogFilename = "qvault.log"
	defaultLogLevel    = "info"
	defaultNetwork     = "mainnet"

	// DefaultFeeRate is the fee rate used when neither a rate is
	// configured nor an estimate is requested.
	DefaultFeeRate = 1000

	// ProviderEsplora selects the Esplora indexer API.
	ProviderEsplora = "esplora"

	// ProviderWhatsOnChain selects the WhatsOnChain indexer API.
	ProviderWhatsOnChain = "whatsonchain"

	// DefaultRegtestURL is where a local electrs instance listens.
	DefaultRegtestURL = "http://localhost:3002"
)

var (
	// DefaultQVaultDir is the default directory holding the config file
	// and logs.
	DefaultQVaultDir = btcutil.AppDataDir("qvault", false)

	// DefaultConfigFile is the default full path of the config file.
	DefaultConfigFile = filepath.Join(
		DefaultQVaultDir, DefaultConfigFilename,
	)

	defaultLogDir = filepath.Join(DefaultQVaultDir, defaultLogDirname)
)

// Spend holds the options of spend construction.
//
//nolint:lll
type Spend struct {
	FeeRate      int64 `long:"feerate" description:"Fee rate in sat/kB. Ignored when estimatefee is set."`
	EstimateFee  bool  `long:"estimatefee" description:"Ask the indexer for the next block fee rate."`
	MinOutput    int64 `long:"minoutput" description:"Smallest output a spend may create, in satoshis."`
	DustRelayFee int64 `long:"dustrelayfee" description:"Relay fee in sat/kB the dust threshold is derived from."`
}

// Indexer holds the options of the ledger indexer and broadcasters.
//
//nolint:lll
type Indexer struct {
	Provider       string        `long:"provider" description:"The indexer API." choice:"esplora" choice:"whatsonchain"`
	URLs           []string      `long:"url" description:"Base URL of an indexer API. The first one answers queries, all are used to broadcast in order. Defaults depend on the network."`
	RequestTimeout time.Duration `long:"requesttimeout" description:"Timeout for a single HTTP request."`
	MaxRetries     int           `long:"maxretries" description:"Maximum number of times to retry a failed request."`
	RateLimit      float64       `long:"ratelimit" description:"Maximum requests per second, 0 for no limit."`
}

// Config is the complete qvault configuration.
//
//nolint:lll
type Config struct {
	ShowVersion bool `short:"V" long:"version" description:"Display version information and exit"`

	QVaultDir  string `long:"qvaultdir" description:"The base directory for the config file and logs."`
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	LogDir     string `long:"logdir" description:"Directory to log output."`
	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <global-level>,<subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems."`

	Network string `long:"network" description:"The ledger network." choice:"mainnet" choice:"testnet3" choice:"regtest"`

	Spend *Spend `group:"spend" namespace:"spend"`

	Indexer *Indexer `group:"indexer" namespace:"indexer"`

	LogConfig *build.LogConfig `group:"logging" namespace:"logging"`
}

// DefaultConfig returns a config with every default value populated.
func DefaultConfig() Config {
	return Config{
		QVaultDir:  DefaultQVaultDir,
		ConfigFile: DefaultConfigFile,
		LogDir:     defaultLogDir,
		DebugLevel: defaultLogLevel,
		Network:    defaultNetwork,
		Spend: &Spend{
			FeeRate:      DefaultFeeRate,
			MinOutput:    int64(vault.DefaultMinOutput),
			DustRelayFee: int64(vault.DefaultDustRelayFee),
		},
		Indexer: &Indexer{
			RequestTimeout: chainsvc.DefaultRequestTimeout,
			MaxRetries:     chainsvc.DefaultMaxRetries,
			RateLimit:      chainsvc.DefaultRateLimit,
		},
		LogConfig: build.DefaultLogConfig(),
	}
}

// parserOptions stop at the first non-option so everything from the command
// name on is handed back to the caller.
const parserOptions = flags.HelpFlag | flags.PassDoubleDash |
	flags.PassAfterNonOption

// Load initializes and parses the config using a config file and command
// line options. It returns the validated config and the arguments left after
// the options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
func Load(args []string) (*Config, []string, error) {
	// Pre-parse the command line options to pick up an alternative config
	// file.
	preCfg := DefaultConfig()
	if _, err := flags.NewParser(&preCfg, parserOptions).ParseArgs(
		args,
	); err != nil {
		return nil, nil, err
	}

	// If the config file path has not been modified by the user, then
	// we'll use the default config file path. However, if the user has
	// modified their qvaultdir, then we should assume they intend to use
	// the config file within it.
	configFileDir := CleanAndExpandPath(preCfg.QVaultDir)
	configFilePath := CleanAndExpandPath(preCfg.ConfigFile)
	if configFileDir != DefaultQVaultDir &&
		configFilePath == DefaultConfigFile {

		configFilePath = filepath.Join(
			configFileDir, DefaultConfigFilename,
		)
	}

	// Next, load any additional configuration options from the file.
	var configFileError error
	cfg := DefaultConfig()
	if err := flags.IniParse(configFilePath, &cfg); err != nil {
		// If it's a parsing related error, then we'll return
		// immediately, otherwise we can proceed as possibly the config
		// file doesn't exist which is OK.
		var iniErr *flags.IniError
		if errors.As(err, &iniErr) {
			return nil, nil, err
		}

		configFileError = err
	}

	// Finally, parse the remaining command line options again to ensure
	// they take precedence.
	rest, err := flags.NewParser(&cfg, parserOptions).ParseArgs(args)
	if err != nil {
		return nil, nil, err
	}

	if configFileDir != DefaultQVaultDir && cfg.LogDir == defaultLogDir {
		cfg.LogDir = filepath.Join(configFileDir, defaultLogDirname)
	}
	cfg.QVaultDir = configFileDir
	cfg.ConfigFile = configFilePath
	cfg.LogDir = CleanAndExpandPath(cfg.LogDir)

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	if configFileError != nil && !os.IsNotExist(configFileError) {
		return nil, nil, configFileError
	}

	return &cfg, rest, nil
}

// Validate checks the config for values that make no sense and fills in the
// indexer defaults of the network.
func (c *Config) Validate() error {
	if _, err := vault.NetworkParams(c.Network); err != nil {
		return err
	}

	switch {
	case c.Spend.FeeRate <= 0:
		return fmt.Errorf("spend.feerate must be positive, got %d",
			c.Spend.FeeRate)

	case c.Spend.MinOutput < 0:
		return fmt.Errorf("spend.minoutput must be non-negative, got "+
			"%d", c.Spend.MinOutput)

	case c.Spend.DustRelayFee < 0:
		return fmt.Errorf("spend.dustrelayfee must be non-negative, "+
			"got %d", c.Spend.DustRelayFee)

	case c.Indexer.RequestTimeout <= 0:
		return fmt.Errorf("indexer.requesttimeout must be positive")

	case c.Indexer.MaxRetries < 0:
		return fmt.Errorf("indexer.maxretries must be non-negative")

	case c.Indexer.RateLimit < 0:
		return fmt.Errorf("indexer.ratelimit must be non-negative")
	}

	if c.Indexer.Provider == "" {
		c.Indexer.Provider = defaultProvider(c.Network)
	}
	if len(c.Indexer.URLs) == 0 {
		url, err := defaultIndexerURL(c.Indexer.Provider, c.Network)
		if err != nil {
			return err
		}
		c.Indexer.URLs = []string{url}
	}
	for i, url := range c.Indexer.URLs {
		c.Indexer.URLs[i] = strings.TrimRight(url, "/")
	}

	return c.LogConfig.Validate()
}

// ClientConfigs returns one indexer client config per configured URL.
func (c *Config) ClientConfigs() []*chainsvc.ClientConfig {
	cfgs := make([]*chainsvc.ClientConfig, 0, len(c.Indexer.URLs))
	for _, url := range c.Indexer.URLs {
		cfgs = append(cfgs, &chainsvc.ClientConfig{
			URL:            url,
			RequestTimeout: c.Indexer.RequestTimeout,
			MaxRetries:     c.Indexer.MaxRetries,
			RateLimit:      c.Indexer.RateLimit,
		})
	}

	return cfgs
}

// LogFile returns the path of the rotating log file.
func (c *Config) LogFile() string {
	return filepath.Join(c.LogDir, c.Network, defaultLogFilename)
}

func defaultProvider(network string) string {
	if network == "regtest" {
		return ProviderEsplora
	}

	return ProviderWhatsOnChain
}

func defaultIndexerURL(provider, network string) (string, error) {
	switch {
	case provider == ProviderEsplora && network == "mainnet":
		return "https://blockstream.info/api", nil

	case provider == ProviderEsplora && network == "testnet3":
		return "https://blockstream.info/testnet/api", nil

	case provider == ProviderEsplora:
		return DefaultRegtestURL, nil

	case provider == ProviderWhatsOnChain && network == "mainnet":
		return chainsvc.WhatsOnChainURL + "main", nil

	case provider == ProviderWhatsOnChain && network == "testnet3":
		return chainsvc.WhatsOnChainURL + "test", nil
	}

	return "", fmt.Errorf("no default %s url for %s, set indexer.url",
		provider, network)
}

// CleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
// This function is taken from https://github.com/btcsuite/btcd
func CleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
