package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/alanyoungcy/termarb/internal/blob/s3"
	"github.com/alanyoungcy/termarb/internal/cache/redis"
	"github.com/alanyoungcy/termarb/internal/config"
	"github.com/alanyoungcy/termarb/internal/crypto"
	"github.com/alanyoungcy/termarb/internal/domain"
	"github.com/alanyoungcy/termarb/internal/notify"
	"github.com/alanyoungcy/termarb/internal/platform/securedfinance"
	"github.com/alanyoungcy/termarb/internal/server/handler"
	"github.com/alanyoungcy/termarb/internal/snapshot"
	"github.com/alanyoungcy/termarb/internal/store/postgres"
)

// Dependencies bundles the infrastructure the modes run on. Every field
// except Notifier and Health may be nil when its backend is not configured.
type Dependencies struct {
	// Postgres
	ExecutionStore *postgres.ExecutionStore
	AuditStore     domain.AuditStore

	// Redis
	SignalBus   domain.SignalBus
	LockManager domain.LockManager
	RPCLimiter  domain.RateLimiter
	APILimiter  domain.RateLimiter

	// S3
	Archive *snapshot.Archive

	// Chain
	Protocol *securedfinance.Client
	// Account is the signing address, or the zero address when read-only.
	Account common.Address

	Notifier *notify.Notifier
	Health   map[string]handler.HealthCheck
}

// needsS3 reports whether archived snapshots are written or read.
func needsS3(cfg *config.Config) bool {
	if cfg.Mode == "replay" {
		return cfg.Replay.Key != "" || cfg.Replay.Day != ""
	}
	return cfg.Archive.Enabled
}

// Wire constructs the concrete dependencies and returns them with a cleanup
// function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{Health: map[string]handler.HealthCheck{}}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}
		deps.ExecutionStore = postgres.NewExecutionStore(pg.Pool())
		deps.AuditStore = postgres.NewAuditStore(pg.Pool())
		deps.Health["postgres"] = pg.Ping
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.SignalBus = redis.NewSignalBus(rc)
		deps.LockManager = redis.NewLockManager(rc)
		if cfg.Collector.RPCRateLimit > 0 {
			deps.RPCLimiter = redis.NewRateLimiter(rc, cfg.Collector.RPCRateLimit, cfg.Collector.RPCRateWindow.Duration)
		}
		if cfg.Server.RateLimit > 0 {
			deps.APILimiter = redis.NewRateLimiter(rc, cfg.Server.RateLimit, cfg.Server.RateWindow.Duration)
		}
		deps.Health["redis"] = rc.Ping
	}

	// --- S3 snapshot archive ---
	if needsS3(cfg) {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			KeyPrefix:      cfg.S3.KeyPrefix,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.Archive = snapshot.NewArchive(s3blob.NewWriter(sc), s3blob.NewReader(sc))
		deps.Health["s3"] = sc.Health
	}

	// --- Protocol client ---
	if cfg.NeedsChain() {
		client, account, eth, err := dialProtocol(ctx, cfg, logger)
		if err != nil {
			return fail("protocol", err)
		}
		closers = append(closers, eth.Close)
		deps.Protocol = client
		deps.Account = account
		deps.Health["chain"] = func(ctx context.Context) error {
			_, err := eth.BlockNumber(ctx)
			return err
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// dialProtocol connects to the node and builds the protocol client. A signer
// is attached only when a key is configured.
func dialProtocol(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*securedfinance.Client, common.Address, *ethclient.Client, error) {
	ccy, err := contractAddress(cfg.Chain.CurrencyController, cfg.Chain.CurrencyControllerFile)
	if err != nil {
		return nil, common.Address{}, nil, fmt.Errorf("currency controller: %w", err)
	}
	lmc, err := contractAddress(cfg.Chain.LendingMarketController, cfg.Chain.LendingMarketControllerFile)
	if err != nil {
		return nil, common.Address{}, nil, fmt.Errorf("lending market controller: %w", err)
	}

	var (
		signer  securedfinance.TxSigner
		account common.Address
	)
	if cfg.Wallet.PrivateKey != "" || cfg.Wallet.EncryptedKeyPath != "" {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return nil, common.Address{}, nil, err
		}
		s, err := crypto.NewSigner(key, cfg.Chain.ChainID)
		if err != nil {
			return nil, common.Address{}, nil, err
		}
		signer, account = s, s.Address()
		logger.Info("wallet loaded", slog.String("address", account.Hex()))
	}

	eth, err := securedfinance.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, common.Address{}, nil, err
	}
	client, err := securedfinance.New(eth, securedfinance.Config{
		CurrencyController:      ccy,
		LendingMarketController: lmc,
		GasLimitBufferPct:       cfg.Chain.GasLimitBufferPct,
	}, signer, logger)
	if err != nil {
		eth.Close()
		return nil, common.Address{}, nil, err
	}
	return client, account, eth, nil
}

// contractAddress prefers an explicit address over a deployment file.
func contractAddress(addr, file string) (common.Address, error) {
	if addr != "" {
		return securedfinance.ParseAddress(addr)
	}
	return securedfinance.LoadAddress(file)
}
