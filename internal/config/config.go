// Package config defines the bot configuration, its defaults and validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration. Fields come from a TOML file and are then
// overridden by TERMARB_* environment variables.
type Config struct {
	Wallet    WalletConfig    `toml:"wallet"`
	Chain     ChainConfig     `toml:"chain"`
	Engine    EngineConfig    `toml:"engine"`
	Collector CollectorConfig `toml:"collector"`
	Executor  ExecutorConfig  `toml:"executor"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Archive   ArchiveConfig   `toml:"archive"`
	Replay    ReplayConfig    `toml:"replay"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
	Interval  duration        `toml:"interval"`
}

// WalletConfig holds the signing key source.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig locates the node and the protocol contracts. A contract address
// may be given directly or read from a deployment JSON file.
type ChainConfig struct {
	RPCURL                      string `toml:"rpc_url"`
	ChainID                     int64  `toml:"chain_id"`
	CurrencyController          string `toml:"currency_controller"`
	CurrencyControllerFile      string `toml:"currency_controller_file"`
	LendingMarketController     string `toml:"lending_market_controller"`
	LendingMarketControllerFile string `toml:"lending_market_controller_file"`
	GasLimitBufferPct           uint64 `toml:"gas_limit_buffer_pct"`
}

// FeesConfig is the USD cost charged against every opportunity.
type FeesConfig struct {
	SwapUSD      float64 `toml:"swap_usd"`
	BorrowGasUSD float64 `toml:"borrow_gas_usd"`
	LendGasUSD   float64 `toml:"lend_gas_usd"`
}

// EngineConfig configures detection.
type EngineConfig struct {
	// Matcher is "cross_product" or "sorted_merge".
	Matcher string `toml:"matcher"`
	// Prices maps a token symbol to its USD price.
	Prices map[string]float64 `toml:"prices"`
	Fees   FeesConfig         `toml:"fees"`
	// EstimateFees replaces the static gas fees with a node estimate of
	// createOrder, priced with GasToken.
	EstimateFees bool   `toml:"estimate_fees"`
	GasToken     string `toml:"gas_token"`
}

// CollectorConfig configures quote collection.
type CollectorConfig struct {
	Currencies         []string `toml:"currencies"`
	MarketsPerCurrency int      `toml:"markets_per_currency"`
	MaxTrade           uint64   `toml:"max_trade"`
	RequestTimeout     duration `toml:"request_timeout"`
	Concurrency        int      `toml:"concurrency"`
	// RPCRateLimit caps node calls per RPCRateWindow through Redis. Zero
	// disables limiting.
	RPCRateLimit  int      `toml:"rpc_rate_limit"`
	RPCRateWindow duration `toml:"rpc_rate_window"`
}

// ExecutorConfig configures order submission.
type ExecutorConfig struct {
	// Selection is "first" or "best".
	Selection    string   `toml:"selection"`
	Decimals     int      `toml:"decimals"`
	DryRun       bool     `toml:"dry_run"`
	MinProfitUSD float64  `toml:"min_profit_usd"`
	LockTTL      duration `toml:"lock_ttl"`
	DedupTTL     duration `toml:"dedup_ttl"`
}

// PostgresConfig holds database connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
	// Stream, when set, also appends detection events to this stream.
	Stream string `toml:"stream"`
}

// S3Config holds object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	KeyPrefix      string `toml:"key_prefix"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls snapshot archiving to S3.
type ArchiveConfig struct {
	Enabled bool `toml:"enabled"`
}

// ReplayConfig names the snapshot replay mode reads: a local file, an S3
// key, or the latest snapshot of a day ("2006-01-02").
type ReplayConfig struct {
	File string `toml:"file"`
	Key  string `toml:"key"`
	Day  string `toml:"day"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit caps requests per client per RateWindow. Needs Redis.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration decodes TOML strings such as "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with working defaults.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			ChainID:           11155111,
			GasLimitBufferPct: 20,
		},
		Engine: EngineConfig{
			Matcher: "cross_product",
			Prices: map[string]float64{
				"ETH":  1.0,
				"EFIL": 1.0,
				"USDC": 1.0,
				"WBTC": 1.0,
			},
			GasToken: "ETH",
		},
		Collector: CollectorConfig{
			MarketsPerCurrency: 2,
			MaxTrade:           100,
			RequestTimeout:     duration{10 * time.Second},
			Concurrency:        4,
			RPCRateWindow:      duration{time.Second},
		},
		Executor: ExecutorConfig{
			Selection: "first",
			Decimals:  18,
			DryRun:    true,
			LockTTL:   duration{2 * time.Minute},
			DedupTTL:  duration{10 * time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "termarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "termarb",
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "termarb-data",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:    true,
			Port:       8000,
			RateWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"order_submitted", "execution_failed"},
		},
		Mode:     "scan",
		LogLevel: "info",
		Interval: duration{time.Minute},
	}
}

var validModes = map[string]bool{
	"scan":    true,
	"execute": true,
	"replay":  true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validMatchers = map[string]bool{
	"cross_product": true,
	"sorted_merge":  true,
}

var validSelections = map[string]bool{
	"first": true,
	"best":  true,
}

// NeedsChain reports whether the mode reads the protocol.
func (c *Config) NeedsChain() bool {
	return c.Mode == "scan" || c.Mode == "execute"
}

// Validate returns one error listing every problem found.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if !validModes[c.Mode] {
		add("unknown mode %q (valid: scan, execute, replay)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}
	if c.Interval.Duration <= 0 {
		add("interval must be positive")
	}

	if c.Mode == "execute" && !c.Executor.DryRun {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			add("wallet: private_key or encrypted_key_path is required to submit orders")
		}
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		add("wallet: key_password is required when encrypted_key_path is set")
	}

	if c.NeedsChain() {
		if c.Chain.RPCURL == "" {
			add("chain: rpc_url must not be empty")
		}
		if c.Chain.ChainID <= 0 {
			add("chain: chain_id must be positive")
		}
		if c.Chain.CurrencyController == "" && c.Chain.CurrencyControllerFile == "" {
			add("chain: currency_controller or currency_controller_file is required")
		}
		if c.Chain.LendingMarketController == "" && c.Chain.LendingMarketControllerFile == "" {
			add("chain: lending_market_controller or lending_market_controller_file is required")
		}
	}

	if !validMatchers[c.Engine.Matcher] {
		add("engine: unknown matcher %q (valid: cross_product, sorted_merge)", c.Engine.Matcher)
	}
	for token, price := range c.Engine.Prices {
		if price < 0 {
			add("engine: price of %s must not be negative", token)
		}
	}
	if c.Engine.Fees.SwapUSD < 0 || c.Engine.Fees.BorrowGasUSD < 0 || c.Engine.Fees.LendGasUSD < 0 {
		add("engine: fees must not be negative")
	}
	if c.Engine.EstimateFees {
		if _, ok := c.Engine.Prices[c.Engine.GasToken]; !ok {
			add("engine: estimate_fees needs a price for gas_token %q", c.Engine.GasToken)
		}
	}

	if c.Collector.MarketsPerCurrency < 1 {
		add("collector: markets_per_currency must be >= 1")
	}
	if c.Collector.Concurrency < 1 {
		add("collector: concurrency must be >= 1")
	}
	if c.Collector.RPCRateLimit > 0 && !c.Redis.Enabled {
		add("collector: rpc_rate_limit needs redis.enabled")
	}

	if !validSelections[c.Executor.Selection] {
		add("executor: unknown selection %q (valid: first, best)", c.Executor.Selection)
	}
	if c.Executor.Decimals < 0 || c.Executor.Decimals > 77 {
		add("executor: decimals must be 0-77, got %d", c.Executor.Decimals)
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				add("postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				add("postgres: port must be 1-65535, got %d", c.Postgres.Port)
			}
			if c.Postgres.Database == "" {
				add("postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			add("postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		add("redis: addr must not be empty")
	}

	if c.Archive.Enabled && c.S3.Bucket == "" {
		add("s3: bucket must not be empty when archive is enabled")
	}

	if c.Mode == "replay" {
		n := 0
		for _, v := range []string{c.Replay.File, c.Replay.Key, c.Replay.Day} {
			if v != "" {
				n++
			}
		}
		if n != 1 {
			add("replay: set exactly one of file, key, day")
		}
		if (c.Replay.Key != "" || c.Replay.Day != "") && c.S3.Bucket == "" {
			add("replay: s3.bucket is required to read archived snapshots")
		}
		if c.Replay.Day != "" {
			if _, err := time.Parse(time.DateOnly, c.Replay.Day); err != nil {
				add("replay: day must be YYYY-MM-DD")
			}
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server: port must be 1-65535, got %d", c.Server.Port)
		}
		if c.Server.RateLimit > 0 && !c.Redis.Enabled {
			add("server: rate_limit needs redis.enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
