package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TERMARB_"

// Load decodes the TOML file at path on top of Defaults, loads .env if
// present and applies TERMARB_* overrides. An empty path skips the file.
// The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Wallet.PrivateKey, "WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "WALLET_KEY_PASSWORD")

	setStr(&cfg.Chain.RPCURL, "CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "CHAIN_ID")
	setStr(&cfg.Chain.CurrencyController, "CHAIN_CURRENCY_CONTROLLER")
	setStr(&cfg.Chain.CurrencyControllerFile, "CHAIN_CURRENCY_CONTROLLER_FILE")
	setStr(&cfg.Chain.LendingMarketController, "CHAIN_LENDING_MARKET_CONTROLLER")
	setStr(&cfg.Chain.LendingMarketControllerFile, "CHAIN_LENDING_MARKET_CONTROLLER_FILE")

	setStr(&cfg.Engine.Matcher, "ENGINE_MATCHER")
	setBool(&cfg.Engine.EstimateFees, "ENGINE_ESTIMATE_FEES")
	setFloat64(&cfg.Engine.Fees.SwapUSD, "ENGINE_FEES_SWAP_USD")
	setFloat64(&cfg.Engine.Fees.BorrowGasUSD, "ENGINE_FEES_BORROW_GAS_USD")
	setFloat64(&cfg.Engine.Fees.LendGasUSD, "ENGINE_FEES_LEND_GAS_USD")
	setPrices(cfg.Engine.Prices, "ENGINE_PRICES")

	setStringSlice(&cfg.Collector.Currencies, "COLLECTOR_CURRENCIES")
	setInt(&cfg.Collector.MarketsPerCurrency, "COLLECTOR_MARKETS_PER_CURRENCY")
	setUint64(&cfg.Collector.MaxTrade, "COLLECTOR_MAX_TRADE")
	setDuration(&cfg.Collector.RequestTimeout, "COLLECTOR_REQUEST_TIMEOUT")
	setInt(&cfg.Collector.RPCRateLimit, "COLLECTOR_RPC_RATE_LIMIT")

	setStr(&cfg.Executor.Selection, "EXECUTOR_SELECTION")
	setInt(&cfg.Executor.Decimals, "EXECUTOR_DECIMALS")
	setBool(&cfg.Executor.DryRun, "EXECUTOR_DRY_RUN")
	setFloat64(&cfg.Executor.MinProfitUSD, "EXECUTOR_MIN_PROFIT_USD")

	setBool(&cfg.Postgres.Enabled, "POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "POSTGRES_RUN_MIGRATIONS")

	setBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "REDIS_KEY_PREFIX")

	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setStr(&cfg.S3.KeyPrefix, "S3_KEY_PREFIX")
	setBool(&cfg.S3.UseSSL, "S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")
	setBool(&cfg.Archive.Enabled, "ARCHIVE_ENABLED")

	setBool(&cfg.Server.Enabled, "SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SERVER_API_KEY")

	setStr(&cfg.Notify.TelegramToken, "NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NOTIFY_EVENTS")

	setStr(&cfg.Mode, "MODE")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
	setDuration(&cfg.Interval, "INTERVAL")
}

func env(key string) string { return os.Getenv(EnvPrefix + key) }

func setStr(dst *string, key string) {
	if v := env(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if n, err := strconv.Atoi(env(key)); err == nil {
		*dst = n
	}
}

func setInt64(dst *int64, key string) {
	if n, err := strconv.ParseInt(env(key), 10, 64); err == nil {
		*dst = n
	}
}

func setUint64(dst *uint64, key string) {
	if n, err := strconv.ParseUint(env(key), 10, 64); err == nil {
		*dst = n
	}
}

func setFloat64(dst *float64, key string) {
	if f, err := strconv.ParseFloat(env(key), 64); err == nil {
		*dst = f
	}
}

func setBool(dst *bool, key string) {
	if b, err := strconv.ParseBool(env(key)); err == nil {
		*dst = b
	}
}

func setDuration(dst *duration, key string) {
	if d, err := time.ParseDuration(env(key)); err == nil {
		dst.Duration = d
	}
}

func setStringSlice(dst *[]string, key string) {
	v := env(key)
	if v == "" {
		return
	}
	var cleaned []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}

// setPrices merges "ETH=2500,USDC=1" into dst. Malformed entries are ignored.
func setPrices(dst map[string]float64, key string) {
	for _, pair := range strings.Split(env(key), ",") {
		token, price, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(price), 64); err == nil {
			dst[strings.TrimSpace(token)] = f
		}
	}
}
