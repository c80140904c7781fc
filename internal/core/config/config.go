package config

import (
	"time"

	redisclient "github.com/BoostryJP/ibet-Prime-sub007/internal/infra/redis"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"` // empty url = in-memory store
	Redis    redisclient.Config `yaml:"redis"`    // empty url = no Redis
	Chains   ChainsConfig       `yaml:"chains"`
	Indexer  IndexerConfig      `yaml:"indexer"`
	Relay    RelayConfig        `yaml:"relay"`
	Bridge   BridgeConfig       `yaml:"bridge"`
	Custody  CustodyConfig      `yaml:"custody"`
	Notifier NotifierConfig     `yaml:"notifier"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ChainsConfig names the two ledgers. The indexer and the bridge work on
// ibet; the relay submits to ethereum.
type ChainsConfig struct {
	Ibet     ChainConfig `yaml:"ibet"`
	Ethereum ChainConfig `yaml:"ethereum"` // empty rpc_url = same as ibet
}

// ChainConfig holds settings for one ledger.
type ChainConfig struct {
	Name           string        `yaml:"name"`
	RPCURL         string        `yaml:"rpc_url"`
	ChainID        int64         `yaml:"chain_id"`
	ReceiptTimeout time.Duration `yaml:"receipt_timeout"`
}

// IndexerConfig holds position indexer settings.
type IndexerConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	Timeout       time.Duration `yaml:"timeout"`
	CursorName    string        `yaml:"cursor_name"`
	StartBlock    uint64        `yaml:"start_block"`
	MaxBlockRange uint64        `yaml:"max_block_range"`
	Concurrency   int           `yaml:"concurrency"`
}

// RelayConfig holds settings of the authorized transaction relay.
type RelayConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	Timeout       time.Duration `yaml:"timeout"`
	Confirmations uint64        `yaml:"confirmations"`
	Keyfile       string        `yaml:"keyfile"`
	Password      string        `yaml:"password"`
	Forward       bool          `yaml:"forward"` // mirror BURN and ACCEPT_TRADE onto the bridge queue
}

// BridgeConfig holds settings of the cross-chain bridge relay.
type BridgeConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	Timeout       time.Duration `yaml:"timeout"`
	Confirmations uint64        `yaml:"confirmations"`
	KeyCacheSize  int           `yaml:"key_cache_size"`
}

// CustodyConfig holds issuer key custody settings.
type CustodyConfig struct {
	Secret string `yaml:"secret"` // encrypts issuer keyfile passwords
}

// NotifierConfig holds notification outbox settings.
type NotifierConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	BatchSize     int           `yaml:"batch_size"`
	Confirmations uint64        `yaml:"confirmations"`
	Sink          string        `yaml:"sink"` // redis, log
}
