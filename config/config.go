package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	DataDir        string `toml:"DataDir"`
	ProgramID      string `toml:"ProgramID"`
	RecordDeposit  uint64 `toml:"RecordDeposit"`
	AccountDeposit uint64 `toml:"AccountDeposit"`

	Log       LogConfig       `toml:"log"`
	RPC       RPCConfig       `toml:"rpc"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Genesis   GenesisConfig   `toml:"genesis"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level      string `toml:"Level"`
	Env        string `toml:"Env"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// RPCConfig tunes the JSON-RPC listener.
type RPCConfig struct {
	RateLimitPerSecond  float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst      int     `toml:"RateLimitBurst"`
	MaxBodyBytes        int64   `toml:"MaxBodyBytes"`
	ReadTimeoutSeconds  int     `toml:"ReadTimeoutSeconds"`
	WriteTimeoutSeconds int     `toml:"WriteTimeoutSeconds"`
	EventHistory        int     `toml:"EventHistory"`
	// TrustedProxies lists peers, as IPs or CIDR blocks, whose X-Real-IP and
	// X-Forwarded-For headers identify the client for rate limiting.
	TrustedProxies    []string `toml:"TrustedProxies"`
	TrustProxyHeaders bool     `toml:"TrustProxyHeaders"`
}

// TelemetryConfig controls OTLP export. Both exporters are off by default.
type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	// Headers uses the OTEL_EXPORTER_OTLP_HEADERS form: key=value,key=value.
	Headers string `toml:"Headers"`
	Traces  bool   `toml:"Traces"`
	Metrics bool   `toml:"Metrics"`
}

// GenesisConfig lists reserve balances credited once when the data directory
// is first initialised.
type GenesisConfig struct {
	Reserve []ReserveAlloc `toml:"reserve"`
}

// ReserveAlloc credits Amount to the bech32 identity.
type ReserveAlloc struct {
	Identity string `toml:"Identity"`
	Amount   uint64 `toml:"Amount"`
}

const (
	DefaultRPCAddress     = "127.0.0.1:8547"
	DefaultDataDir        = "./auction-data"
	DefaultProgramID      = "auction-house"
	DefaultRecordDeposit  = 10
	DefaultAccountDeposit = 2
)

// Load loads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a configuration populated with defaults.
func Default() *Config {
	cfg := &Config{
		RPCAddress:     DefaultRPCAddress,
		DataDir:        DefaultDataDir,
		ProgramID:      DefaultProgramID,
		RecordDeposit:  DefaultRecordDeposit,
		AccountDeposit: DefaultAccountDeposit,
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = DefaultRPCAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = DefaultDataDir
	}
	if strings.TrimSpace(c.ProgramID) == "" {
		c.ProgramID = DefaultProgramID
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.RPC.RateLimitPerSecond == 0 {
		c.RPC.RateLimitPerSecond = 20
	}
	if c.RPC.RateLimitBurst == 0 {
		c.RPC.RateLimitBurst = 40
	}
	if c.RPC.MaxBodyBytes == 0 {
		c.RPC.MaxBodyBytes = 1 << 20
	}
	if c.RPC.ReadTimeoutSeconds == 0 {
		c.RPC.ReadTimeoutSeconds = 10
	}
	if c.RPC.WriteTimeoutSeconds == 0 {
		c.RPC.WriteTimeoutSeconds = 10
	}
	if c.RPC.EventHistory == 0 {
		c.RPC.EventHistory = 1024
	}
	if c.Genesis.Reserve == nil {
		c.Genesis.Reserve = []ReserveAlloc{}
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
