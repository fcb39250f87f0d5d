package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		RPC: RPCConfig{
			URL:     "http://127.0.0.1:1979",
			Timeout: 10 * time.Second,
		},
		Network: NetworkConfig{Name: "mainnet"},
		Burnchain: BurnchainConfig{
			MinBurnAmount: 1000,
			MaxBurnAmount: 100000000000,
		},
		Fee: FeeConfig{
			MinFee: 1000,
			MaxFee: 1000000000,
		},
		Stacking: StackingConfig{
			CycleLength:      2100,
			PrepareLength:    100,
			ConversionFactor: 1000,
		},
		Issuance: IssuanceConfig{
			HalvingInterval: 840000,
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing rpc url",
			mutate:  func(c *Config) { c.RPC.URL = "" },
			wantErr: true,
			errMsg:  "rpc.url is required",
		},
		{
			name:    "invalid network name",
			mutate:  func(c *Config) { c.Network.Name = "devnet" },
			wantErr: true,
			errMsg:  "network.name must be one of mainnet, testnet, regtest",
		},
		{
			name: "invalid burn range",
			mutate: func(c *Config) {
				c.Burnchain.MinBurnAmount = 100
				c.Burnchain.MaxBurnAmount = 50
			},
			wantErr: true,
			errMsg:  "burnchain.min_burn_amount must be <= max_burn_amount",
		},
		{
			name: "invalid fee range",
			mutate: func(c *Config) {
				c.Fee.MinFee = 5000
				c.Fee.MaxFee = 1000
			},
			wantErr: true,
			errMsg:  "fee.min_fee must be <= fee.max_fee",
		},
		{
			name:    "prepare length too large",
			mutate:  func(c *Config) { c.Stacking.PrepareLength = 2100 },
			wantErr: true,
			errMsg:  "stacking.prepare_length must be < stacking.cycle_length",
		},
		{
			name:    "zero conversion factor",
			mutate:  func(c *Config) { c.Stacking.ConversionFactor = 0 },
			wantErr: true,
			errMsg:  "stacking.conversion_factor must be > 0",
		},
		{
			name:    "zero halving interval",
			mutate:  func(c *Config) { c.Issuance.HalvingInterval = 0 },
			wantErr: true,
			errMsg:  "issuance.halving_interval must be > 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error but got nil")
				}
				if tt.errMsg != "" && err.Error() != tt.errMsg {
					t.Errorf("Error = %q, want %q", err.Error(), tt.errMsg)
				}
			} else if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestConfigStructs(t *testing.T) {
	rpc := RPCConfig{
		URL:       "http://127.0.0.1:1979",
		Timeout:   10 * time.Second,
		Upstreams: []string{"http://127.0.0.1:1979", "http://127.0.0.2:1979"},
	}
	if len(rpc.Upstreams) != 2 {
		t.Errorf("RPCConfig.Upstreams len = %d, want 2", len(rpc.Upstreams))
	}

	fee := FeeConfig{
		BaseFeeRate:         100,
		MinFee:              1000,
		MaxFee:              1000000000,
		OperationMultiplier: 1.5,
	}
	if fee.OperationMultiplier != 1.5 {
		t.Errorf("FeeConfig.OperationMultiplier = %f, want 1.5", fee.OperationMultiplier)
	}

	stacking := StackingConfig{
		CycleLength:       2100,
		PrepareLength:     100,
		MinStackingAmount: 1000000000,
		MaxCycles:         12,
		ConversionFactor:  1000,
	}
	if stacking.MaxCycles != 12 {
		t.Errorf("StackingConfig.MaxCycles = %d, want 12", stacking.MaxCycles)
	}

	issuance := IssuanceConfig{
		GenesisReward:      12500000000,
		HalvingInterval:    840000,
		TotalSupply:        21000000000000000,
		MicroUnitsPerToken: 1000000,
	}
	if issuance.HalvingInterval != 840000 {
		t.Errorf("IssuanceConfig.HalvingInterval = %d, want 840000", issuance.HalvingInterval)
	}

	api := APIConfig{
		Enabled:     true,
		Bind:        "0.0.0.0:8080",
		StatsCache:  10 * time.Second,
		CORSOrigins: []string{"*"},
	}
	if !api.Enabled {
		t.Error("APIConfig.Enabled should be true")
	}

	telemetry := TelemetryConfig{
		Enabled:    true,
		AppName:    "btczs-l2",
		LicenseKey: "license_key_here",
	}
	if telemetry.AppName != "btczs-l2" {
		t.Errorf("TelemetryConfig.AppName = %s, want btczs-l2", telemetry.AppName)
	}

	log := LogConfig{
		Level:  "debug",
		Format: "json",
		File:   "/var/log/btczs-node.log",
	}
	if log.Level != "debug" {
		t.Errorf("LogConfig.Level = %s, want debug", log.Level)
	}
}

func TestLoadWithTempConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
rpc:
  url: "http://127.0.0.1:1979"
  timeout: 10s

network:
  name: "testnet"

burnchain:
  min_burn_amount: 1000
  max_burn_amount: 100000000000

fee:
  min_fee: 1000
  max_fee: 1000000000

stacking:
  cycle_length: 2100
  prepare_length: 100
  conversion_factor: 1000

issuance:
  halving_interval: 840000
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.RPC.URL != "http://127.0.0.1:1979" {
		t.Errorf("RPC.URL = %s, want http://127.0.0.1:1979", cfg.RPC.URL)
	}

	if cfg.Network.Name != "testnet" {
		t.Errorf("Network.Name = %s, want testnet", cfg.Network.Name)
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Invalid network name should fail Validate().
	configContent := `
rpc:
  url: "http://127.0.0.1:1979"

network:
  name: "devnet"
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() should return error for invalid config")
	}
}

func TestLoadNonexistentConfig(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() should return error for non-existent config")
	}
}
