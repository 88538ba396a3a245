// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Ledger backends.
const (
	LedgerContract = "contract"
	LedgerPostgres = "postgres"
	LedgerMemory   = "memory"
)

// Config holds all runtime settings.
type Config struct {
	// Upstream APIs
	NeynarURL    string `env:"NEYNAR_API_URL"    envDefault:"https://api.neynar.com"`
	NeynarAPIKey string `env:"NEYNAR_API_KEY"`
	AlchemyURL   string `env:"ALCHEMY_NFT_URL"   envDefault:"https://eth-mainnet.g.alchemy.com/nft/v3"`
	AlchemyKey   string `env:"ALCHEMY_API_KEY"`

	// Enrichment
	FetchTimeout     time.Duration `env:"FETCH_TIMEOUT"      envDefault:"10s"`
	ActivityPageSize int           `env:"ACTIVITY_PAGE_SIZE" envDefault:"100"`
	UpstreamRPS      float64       `env:"UPSTREAM_RPS"       envDefault:"5"`
	UpstreamBurst    int           `env:"UPSTREAM_BURST"     envDefault:"10"`
	UpstreamRetries  int           `env:"UPSTREAM_RETRIES"   envDefault:"2"`
	BreakerFailures  uint32        `env:"BREAKER_FAILURES"   envDefault:"5"`
	BreakerCooldown  time.Duration `env:"BREAKER_COOLDOWN"   envDefault:"30s"`

	// Identity cache
	RedisAddr        string        `env:"REDIS_ADDR"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	IdentityCacheTTL time.Duration `env:"IDENTITY_CACHE_TTL" envDefault:"1h"`

	// Ledger
	LedgerBackend   string        `env:"LEDGER_BACKEND"   envDefault:"memory"`
	RPCEndpoint     string        `env:"RPC_URL"`
	WSEndpoint      string        `env:"WS_URL"`
	ContractAddress string        `env:"CONTRACT_ADDRESS"`
	PrivateKey      string        `env:"PRIVATE_KEY"`
	ChainID         int64         `env:"CHAIN_ID"         envDefault:"1"`
	ConfirmTimeout  time.Duration `env:"CONFIRM_TIMEOUT"  envDefault:"2m"`
	PostgresDSN     string        `env:"POSTGRES_DSN"`

	// Snapshots
	ClickhouseDSN string `env:"CLICKHOUSE_DSN"`

	// Reconciliation
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"5m"`

	// Server
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":3000"`
	LogLevel   string `env:"LOG_LEVEL"   envDefault:"info"`
	LogPretty  bool   `env:"LOG_PRETTY"  envDefault:"false"`
}

// Load reads .env (without overriding the process environment) and parses Config.
func Load() (*Config, error) {
	LoadEnvFile(".env")

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field requirements for the selected backends.
func (c *Config) Validate() error {
	switch c.LedgerBackend {
	case LedgerContract:
		if c.RPCEndpoint == "" || c.ContractAddress == "" {
			return fmt.Errorf("ledger backend %q requires RPC_URL and CONTRACT_ADDRESS", c.LedgerBackend)
		}
	case LedgerPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("ledger backend %q requires POSTGRES_DSN", c.LedgerBackend)
		}
	case LedgerMemory:
	default:
		return fmt.Errorf("unknown ledger backend %q", c.LedgerBackend)
	}
	if c.ActivityPageSize <= 0 {
		return fmt.Errorf("ACTIVITY_PAGE_SIZE must be positive, got %d", c.ActivityPageSize)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive, got %s", c.FetchTimeout)
	}
	return nil
}

// LoadEnvFile loads KEY=VALUE lines from path if it exists.
// Existing environment variables are not overridden.
func LoadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"`)

		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
}
