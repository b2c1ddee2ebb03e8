// config.go - Configuration management for the ledger daemon
package main

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"zkledger/internal/network"
	"zkledger/p2p"
)

const envPrefix = "ZKLEDGER"

const (
	cfgConfigFile = "config"
	cfgNetwork    = "network"
	cfgListen     = "listen"
	cfgLedgerPath = "ledger-path"
	cfgKeyDir     = "key-dir"
	cfgLogLevel   = "log-level"
	cfgLogFile    = "log-file"
	cfgWorkers    = "max-concurrency"
	cfgTimeout    = "timeout"
	cfgAudit      = "enable-audit"
	cfgAuditPath  = "audit-log-path"
	cfgRateTokens = "rate-limit-tokens"
	cfgRateRefill = "rate-limit-refill"
	cfgRatePeriod = "rate-limit-period"
	cfgNodeID     = "node-id"
	cfgPeers      = "peers"
)

// Config represents the daemon configuration
type Config struct {
	Network       string `mapstructure:"network"`
	ListenAddress string `mapstructure:"listen"`

	// File paths
	LedgerPath string `mapstructure:"ledger-path"`
	KeyDir     string `mapstructure:"key-dir"`

	// Logging
	LogLevel string `mapstructure:"log-level"`
	LogFile  string `mapstructure:"log-file"`

	// Performance
	MaxConcurrency int           `mapstructure:"max-concurrency"`
	Timeout        time.Duration `mapstructure:"timeout"`

	// Security
	EnableAudit  bool   `mapstructure:"enable-audit"`
	AuditLogPath string `mapstructure:"audit-log-path"`

	// Per-client limit on transaction submissions
	RateLimitTokens int           `mapstructure:"rate-limit-tokens"`
	RateLimitRefill int           `mapstructure:"rate-limit-refill"`
	RateLimitPeriod time.Duration `mapstructure:"rate-limit-period"`

	// Transaction relay
	NodeID string   `mapstructure:"node-id"`
	Peers  []string `mapstructure:"peers"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Network:         "testnet2",
		ListenAddress:   "127.0.0.1:8080",
		LedgerPath:      "zkledger.db",
		KeyDir:          "keys",
		LogLevel:        "info",
		LogFile:         "zkledger.log",
		MaxConcurrency:  4,
		Timeout:         30 * time.Second,
		EnableAudit:     true,
		AuditLogPath:    "audit.log",
		RateLimitTokens: 20,
		RateLimitRefill: 5,
		RateLimitPeriod: time.Second,
		NodeID:          "node0",
		Peers:           []string{},
	}
}

func newFlagSet() *flag.FlagSet {
	d := DefaultConfig()
	fs := flag.NewFlagSet("zkledgerd", flag.ContinueOnError)
	fs.String(cfgConfigFile, "", "path to a config file (json, yaml or toml); created with defaults if missing")
	fs.String(cfgNetwork, d.Network, "network profile (testnet1, testnet2)")
	fs.String(cfgListen, d.ListenAddress, "HTTP bind address")
	fs.String(cfgLedgerPath, d.LedgerPath, "ledger database file")
	fs.String(cfgKeyDir, d.KeyDir, "directory of the Groth16 keys")
	fs.String(cfgLogLevel, d.LogLevel, "log level (debug, info, warn, error)")
	fs.String(cfgLogFile, d.LogFile, "log file, empty for console only")
	fs.Int(cfgWorkers, d.MaxConcurrency, "transactions verified in parallel during validation")
	fs.Duration(cfgTimeout, d.Timeout, "HTTP read and write timeout")
	fs.Bool(cfgAudit, d.EnableAudit, "write audit events to the audit log")
	fs.String(cfgAuditPath, d.AuditLogPath, "audit log file")
	fs.Int(cfgRateTokens, d.RateLimitTokens, "submission burst per client")
	fs.Int(cfgRateRefill, d.RateLimitRefill, "tokens refilled per period")
	fs.Duration(cfgRatePeriod, d.RateLimitPeriod, "refill period")
	fs.String(cfgNodeID, d.NodeID, "identifier announced to peers")
	fs.StringSlice(cfgPeers, d.Peers, "peers to relay transactions to, as id=host:port")
	return fs
}

// LoadConfig resolves the configuration from defaults, an optional config file, ZKLEDGER_*
// environment variables and command line flags, in increasing precedence.
func LoadConfig(args []string) (*Config, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, "parse flags")
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, errors.Wrap(err, "bind flags")
	}

	if path := v.GetString(cfgConfigFile); path != "" {
		v.SetConfigFile(path)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if err := v.SafeWriteConfigAs(path); err != nil {
				return nil, errors.Wrapf(err, "write default config %s", path)
			}
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault(cfgNetwork, d.Network)
	v.SetDefault(cfgListen, d.ListenAddress)
	v.SetDefault(cfgLedgerPath, d.LedgerPath)
	v.SetDefault(cfgKeyDir, d.KeyDir)
	v.SetDefault(cfgLogLevel, d.LogLevel)
	v.SetDefault(cfgLogFile, d.LogFile)
	v.SetDefault(cfgWorkers, d.MaxConcurrency)
	v.SetDefault(cfgTimeout, d.Timeout)
	v.SetDefault(cfgAudit, d.EnableAudit)
	v.SetDefault(cfgAuditPath, d.AuditLogPath)
	v.SetDefault(cfgRateTokens, d.RateLimitTokens)
	v.SetDefault(cfgRateRefill, d.RateLimitRefill)
	v.SetDefault(cfgRatePeriod, d.RateLimitPeriod)
	v.SetDefault(cfgNodeID, d.NodeID)
	v.SetDefault(cfgPeers, d.Peers)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := network.ByName(c.Network); err != nil {
		return err
	}
	if c.ListenAddress == "" {
		return errors.New("listen must be set")
	}
	if c.LedgerPath == "" {
		return errors.New("ledger-path must be set")
	}
	if c.MaxConcurrency <= 0 {
		return errors.New("max-concurrency must be positive")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.RateLimitTokens <= 0 || c.RateLimitRefill <= 0 || c.RateLimitPeriod <= 0 {
		return errors.New("rate limit settings must be positive")
	}
	if c.EnableAudit && c.AuditLogPath == "" {
		return errors.New("audit-log-path must be set when audit is enabled")
	}
	if c.NodeID == "" {
		return errors.New("node-id must be set")
	}
	if _, err := p2p.ParsePeers(c.Peers); err != nil {
		return err
	}
	return nil
}
