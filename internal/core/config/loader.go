package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// envOverrides are secrets and endpoints that may be supplied through
// PRIME_* environment variables instead of the file.
type envOverrides struct {
	DatabaseURL     string `envconfig:"PRIME_DATABASE_URL"`
	RedisURL        string `envconfig:"PRIME_REDIS_URL"`
	RedisPassword   string `envconfig:"PRIME_REDIS_PASSWORD"`
	IbetRPCURL      string `envconfig:"PRIME_IBET_RPC_URL"`
	EthereumRPCURL  string `envconfig:"PRIME_ETHEREUM_RPC_URL"`
	RelayerPassword string `envconfig:"PRIME_RELAYER_PASSWORD"`
	CustodySecret   string `envconfig:"PRIME_CUSTODY_SECRET"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	env.apply(&cfg)

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (e envOverrides) apply(cfg *AppConfig) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Database.URL, e.DatabaseURL)
	set(&cfg.Redis.URL, e.RedisURL)
	set(&cfg.Redis.Password, e.RedisPassword)
	set(&cfg.Chains.Ibet.RPCURL, e.IbetRPCURL)
	set(&cfg.Chains.Ethereum.RPCURL, e.EthereumRPCURL)
	set(&cfg.Relay.Password, e.RelayerPassword)
	set(&cfg.Custody.Secret, e.CustodySecret)
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Chains.Ibet.Name == "" {
		cfg.Chains.Ibet.Name = "ibet"
	}
	name := cfg.Chains.Ethereum.Name
	if name == "" {
		name = "ethereum"
	}
	if cfg.Chains.Ethereum.RPCURL == "" {
		cfg.Chains.Ethereum = cfg.Chains.Ibet
	}
	cfg.Chains.Ethereum.Name = name
	for _, c := range []*ChainConfig{&cfg.Chains.Ibet, &cfg.Chains.Ethereum} {
		if c.ReceiptTimeout == 0 {
			c.ReceiptTimeout = 30 * time.Second
		}
	}

	if cfg.Indexer.Interval == 0 {
		cfg.Indexer.Interval = 10 * time.Second
	}
	if cfg.Indexer.Timeout == 0 {
		cfg.Indexer.Timeout = 5 * time.Minute
	}
	if cfg.Indexer.MaxBlockRange == 0 {
		cfg.Indexer.MaxBlockRange = 1_000_000
	}
	if cfg.Indexer.Concurrency == 0 {
		cfg.Indexer.Concurrency = 8
	}

	if cfg.Relay.Interval == 0 {
		cfg.Relay.Interval = 10 * time.Second
	}
	if cfg.Relay.Timeout == 0 {
		cfg.Relay.Timeout = 2 * time.Minute
	}
	if cfg.Bridge.Interval == 0 {
		cfg.Bridge.Interval = 10 * time.Second
	}
	if cfg.Bridge.Timeout == 0 {
		cfg.Bridge.Timeout = 2 * time.Minute
	}
	if cfg.Bridge.KeyCacheSize == 0 {
		cfg.Bridge.KeyCacheSize = 128
	}

	if cfg.Notifier.Interval == 0 {
		cfg.Notifier.Interval = 5 * time.Second
	}
	if cfg.Notifier.BatchSize == 0 {
		cfg.Notifier.BatchSize = 100
	}
	if cfg.Notifier.Sink == "" {
		cfg.Notifier.Sink = "redis"
		if cfg.Redis.URL == "" {
			cfg.Notifier.Sink = "log"
		}
	}
}

// Validate reports settings the enabled services cannot run without.
func (c *AppConfig) Validate() error {
	needsChain := c.Indexer.Enabled || c.Relay.Enabled || c.Bridge.Enabled
	if needsChain && c.Chains.Ibet.RPCURL == "" {
		return fmt.Errorf("chains.ibet.rpc_url is required")
	}
	if c.Relay.Enabled && c.Relay.Keyfile == "" {
		return fmt.Errorf("relay.keyfile is required when the relay is enabled")
	}
	if c.Bridge.Enabled && c.Custody.Secret == "" {
		return fmt.Errorf("custody.secret is required when the bridge is enabled")
	}
	switch c.Notifier.Sink {
	case "log":
	case "redis":
		if c.Notifier.Enabled && c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required for the redis notification sink")
		}
	default:
		return fmt.Errorf("unknown notifier.sink %q", c.Notifier.Sink)
	}
	return nil
}
