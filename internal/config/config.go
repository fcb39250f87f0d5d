// Package config handles configuration loading and validation for the
// btczs-l2 core.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the node.
type Config struct {
	RPC       RPCConfig       `mapstructure:"rpc"`
	Network   NetworkConfig   `mapstructure:"network"`
	Burnchain BurnchainConfig `mapstructure:"burnchain"`
	Fee       FeeConfig       `mapstructure:"fee"`
	Stacking  StackingConfig  `mapstructure:"stacking"`
	Issuance  IssuanceConfig  `mapstructure:"issuance"`
	Store     StoreConfig     `mapstructure:"store"`
	API       APIConfig       `mapstructure:"api"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Log       LogConfig       `mapstructure:"log"`
	Profiling ProfilingConfig `mapstructure:"profiling"`
}

// RPCConfig defines the L1 JSON-RPC endpoint(s) this node indexes.
type RPCConfig struct {
	URL       string        `mapstructure:"url"`
	User      string        `mapstructure:"user"`
	Password  string        `mapstructure:"password"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Upstreams []string      `mapstructure:"upstreams"`
}

// NetworkConfig selects which L1 network this node anchors to.
type NetworkConfig struct {
	Name string `mapstructure:"name"` // "mainnet", "testnet", "regtest"
}

// BurnchainConfig controls the burnchain indexer (C3).
type BurnchainConfig struct {
	StartHeight    uint64        `mapstructure:"start_height"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	DataDir        string        `mapstructure:"data_dir"`
	MinBurnAmount  uint64        `mapstructure:"min_burn_amount"`
	MaxBurnAmount  uint64        `mapstructure:"max_burn_amount"`
}

// FeeConfig mirrors the fee engine defaults (C9).
type FeeConfig struct {
	BaseFeeRate           uint64  `mapstructure:"base_fee_rate"`
	MinFee                uint64  `mapstructure:"min_fee"`
	MaxFee                uint64  `mapstructure:"max_fee"`
	OperationMultiplier   float64 `mapstructure:"operation_multiplier"`
	CongestionFactor      float64 `mapstructure:"congestion_factor"`
}

// StackingConfig mirrors reward-cycle and stacking constants (C8).
type StackingConfig struct {
	CycleLength       uint64 `mapstructure:"cycle_length"`
	PrepareLength     uint64 `mapstructure:"prepare_length"`
	MinStackingAmount uint64 `mapstructure:"min_stacking_amount"`
	MaxCycles         uint64 `mapstructure:"max_cycles"`
	ConversionFactor  uint64 `mapstructure:"conversion_factor"`
}

// IssuanceConfig mirrors the halving schedule and supply cap (C7).
type IssuanceConfig struct {
	GenesisReward      uint64 `mapstructure:"genesis_reward"`
	HalvingInterval    uint64 `mapstructure:"halving_interval"`
	TotalSupply        uint64 `mapstructure:"total_supply"`
	MicroUnitsPerToken uint64 `mapstructure:"micro_units_per_token"`
}

// StoreConfig defines the external KV/transaction backend (§6).
type StoreConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// APIConfig defines the read-only explorer HTTP surface.
type APIConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Bind        string        `mapstructure:"bind"`
	StatsCache  time.Duration `mapstructure:"stats_cache"`
	CORSOrigins []string      `mapstructure:"cors_origins"`
}

// StreamConfig defines the WebSocket push server that broadcasts sealed
// snapshots and cycle seals to subscribed explorer clients.
type StreamConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bind    string `mapstructure:"bind"`
}

// TelemetryConfig defines APM wrapping.
type TelemetryConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	AppName    string `mapstructure:"app_name"`
	LicenseKey string `mapstructure:"license_key"`
}

// NotifyConfig defines the Discord/Telegram webhook channels used for
// sortition-win and reorg-detected notifications.
type NotifyConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DiscordURL   string `mapstructure:"discord_url"`
	TelegramBot  string `mapstructure:"telegram_bot"`
	TelegramChat string `mapstructure:"telegram_chat"`
	NodeName     string `mapstructure:"node_name"`
	NodeURL      string `mapstructure:"node_url"`
}

// ProfilingConfig defines the pprof debug server.
type ProfilingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bind    string `mapstructure:"bind"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Load reads configuration from file and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/btczs-node")
	}

	v.SetEnvPrefix("BTCZS_NODE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values, pinned from
// original_source/btczs-core constants (see SPEC_FULL.md).
func setDefaults(v *viper.Viper) {
	v.SetDefault("rpc.url", "http://127.0.0.1:1979")
	v.SetDefault("rpc.timeout", "10s")

	v.SetDefault("network.name", "mainnet")

	v.SetDefault("burnchain.start_height", 0)
	v.SetDefault("burnchain.poll_interval", "30s")
	v.SetDefault("burnchain.data_dir", "./data")
	v.SetDefault("burnchain.min_burn_amount", 1000)
	v.SetDefault("burnchain.max_burn_amount", 100000000000)

	v.SetDefault("fee.base_fee_rate", 100)
	v.SetDefault("fee.min_fee", 1000)
	v.SetDefault("fee.max_fee", 1000000000)
	v.SetDefault("fee.operation_multiplier", 1.5)
	v.SetDefault("fee.congestion_factor", 0.0)

	v.SetDefault("stacking.cycle_length", 2100)
	v.SetDefault("stacking.prepare_length", 100)
	v.SetDefault("stacking.min_stacking_amount", 1000000000)
	v.SetDefault("stacking.max_cycles", 12)
	v.SetDefault("stacking.conversion_factor", 1000)

	v.SetDefault("issuance.genesis_reward", 12500000000)
	v.SetDefault("issuance.halving_interval", 840000)
	v.SetDefault("issuance.total_supply", uint64(21000000000000000))
	v.SetDefault("issuance.micro_units_per_token", 1000000)

	v.SetDefault("store.url", "127.0.0.1:6379")
	v.SetDefault("store.db", 0)

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.bind", "0.0.0.0:8080")
	v.SetDefault("api.stats_cache", "10s")
	v.SetDefault("api.cors_origins", []string{"*"})

	v.SetDefault("stream.enabled", true)
	v.SetDefault("stream.bind", "0.0.0.0:8081")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.app_name", "btczs-l2")

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.node_name", "btczs-l2")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("profiling.enabled", false)
	v.SetDefault("profiling.bind", "127.0.0.1:6060")
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.RPC.URL == "" {
		return fmt.Errorf("rpc.url is required")
	}

	switch c.Network.Name {
	case "mainnet", "testnet", "regtest":
	default:
		return fmt.Errorf("network.name must be one of mainnet, testnet, regtest")
	}

	if c.Burnchain.MinBurnAmount > c.Burnchain.MaxBurnAmount {
		return fmt.Errorf("burnchain.min_burn_amount must be <= max_burn_amount")
	}

	if c.Fee.MinFee > c.Fee.MaxFee {
		return fmt.Errorf("fee.min_fee must be <= fee.max_fee")
	}

	if c.Stacking.PrepareLength >= c.Stacking.CycleLength {
		return fmt.Errorf("stacking.prepare_length must be < stacking.cycle_length")
	}

	if c.Stacking.ConversionFactor == 0 {
		return fmt.Errorf("stacking.conversion_factor must be > 0")
	}

	if c.Issuance.HalvingInterval == 0 {
		return fmt.Errorf("issuance.halving_interval must be > 0")
	}

	return nil
}
