// Package config handles fluxnoded's runtime configuration: network
// selection, data directory layout, and the tuning knobs for the store
// and logging subsystems. Grounded on the teacher's root config package
// (Config struct, per-OS DefaultDataDir, directory helpers), generalized
// from the teacher's P2P/RPC/wallet/mining/sub-chain node settings (all
// out of scope for the chainstate engine) down to the settings this
// engine's ambient shell actually needs, and re-plumbed through Viper for
// YAML-file-plus-environment-variable loading in place of the teacher's
// hand-rolled .conf parser.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/fluxd-org/fluxd/internal/params"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Config holds fluxnoded's runtime configuration. Unlike params.ConsensusParams
// (immutable, must match across every node on a network), every field here
// is a local operational choice.
type Config struct {
	Network NetworkType `mapstructure:"network"`
	DataDir string      `mapstructure:"datadir"`

	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Store   StoreConfig   `mapstructure:"store"`
}

// LogConfig holds logging settings, matching internal/log.Init's parameters.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
	JSON  bool   `mapstructure:"json"`
}

// MetricsConfig holds the Prometheus exposition endpoint settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// StoreConfig holds the KV store's backpressure watchdog thresholds
// (spec.md §4.1), in bytes. Zero disables the corresponding watchdog.
type StoreConfig struct {
	WriteBufferLimit int64 `mapstructure:"write_buffer_limit"`
	JournalLimit     int64 `mapstructure:"journal_limit"`
	FlatFileMaxSize  int64 `mapstructure:"flat_file_max_size"`
}

// ConsensusParams returns the network's immutable consensus parameters.
// Consensus parameters never hot-reload (an explicit Non-goal): callers
// must restart the node to pick up a params.go change.
func (c *Config) ConsensusParams() params.ConsensusParams {
	if c.Network == Testnet {
		return params.Mainnet() // no distinct testnet schedule defined yet; see DESIGN.md.
	}
	return params.Mainnet()
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.fluxd
//	macOS:   ~/Library/Application Support/Fluxd
//	Windows: %APPDATA%\Fluxd
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fluxd"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Fluxd")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Fluxd")
		}
		return filepath.Join(home, "AppData", "Roaming", "Fluxd")
	default:
		return filepath.Join(home, ".fluxd")
	}
}

// Default returns the default configuration for network.
func Default(network NetworkType) *Config {
	return &Config{
		Network: network,
		DataDir: DefaultDataDir(),
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9100",
		},
		Store: StoreConfig{
			WriteBufferLimit: 512 << 20,
			JournalLimit:     2 << 30,
			FlatFileMaxSize:  128 << 20,
		},
	}
}

// ChainDataDir returns the network-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// StoreDir returns the KV store's on-disk directory.
func (c *Config) StoreDir() string {
	return filepath.Join(c.ChainDataDir(), "chainstate")
}

// BlocksDir returns the block flat-file log's directory.
func (c *Config) BlocksDir() string {
	return filepath.Join(c.ChainDataDir(), "blocks")
}

// UndoDir returns the undo flat-file log's directory.
func (c *Config) UndoDir() string {
	return filepath.Join(c.ChainDataDir(), "undo")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// EnsureDirs creates every directory Config names, if missing.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.ChainDataDir(), c.StoreDir(), c.BlocksDir(), c.UndoDir(), c.LogsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return nil
}

// Validate checks cfg for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	if cfg.Store.WriteBufferLimit < 0 || cfg.Store.JournalLimit < 0 || cfg.Store.FlatFileMaxSize < 0 {
		return fmt.Errorf("store limits must be non-negative")
	}
	return nil
}

// Load builds a Config by layering, in increasing priority: built-in
// defaults for the selected network, an optional YAML config file, and
// FLUXD_-prefixed environment variables. configFile may be empty, in
// which case only defaults and environment overrides apply.
func Load(network NetworkType, configFile string) (*Config, error) {
	if network == "" {
		network = Mainnet
	}
	defaults := Default(network)

	v := viper.New()
	v.SetEnvPrefix("fluxd")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, defaults)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	cfg := *defaults
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("network", string(d.Network))
	v.SetDefault("datadir", d.DataDir)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("store.write_buffer_limit", d.Store.WriteBufferLimit)
	v.SetDefault("store.journal_limit", d.Store.JournalLimit)
	v.SetDefault("store.flat_file_max_size", d.Store.FlatFileMaxSize)
}
