package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validScan() Config {
	cfg := Defaults()
	cfg.Chain.RPCURL = "https://rpc.example/key"
	cfg.Chain.CurrencyController = "0x0000000000000000000000000000000000000001"
	cfg.Chain.LendingMarketController = "0x0000000000000000000000000000000000000002"
	return cfg
}

func TestDefaultsScanValid(t *testing.T) {
	cfg := validScan()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Engine.Matcher = "quantum"
	cfg.Executor.Selection = "random"
	cfg.Executor.Decimals = 78

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"unknown mode", "unknown matcher", "unknown selection", "decimals"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidateExecuteNeedsWallet(t *testing.T) {
	cfg := validScan()
	cfg.Mode = "execute"
	cfg.Executor.DryRun = false
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "wallet") {
		t.Fatalf("err = %v", err)
	}
	cfg.Executor.DryRun = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("dry run should not need a wallet: %v", err)
	}
}

func TestValidateReplay(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "replay"
	if err := cfg.Validate(); err == nil {
		t.Fatal("replay without a source should fail")
	}
	cfg.Replay.File = "snap.json"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("replay from file: %v", err)
	}
	cfg.Replay.Day = "yesterday"
	if err := cfg.Validate(); err == nil {
		t.Fatal("two sources should fail")
	}
}

func TestValidateRateLimitsNeedRedis(t *testing.T) {
	cfg := validScan()
	cfg.Collector.RPCRateLimit = 10
	cfg.Server.RateLimit = 10
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "rpc_rate_limit") || !strings.Contains(err.Error(), "server: rate_limit") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "termarb.toml")
	data := `
mode = "execute"
interval = "30s"

[chain]
rpc_url = "https://rpc.example"
currency_controller = "0x01"
lending_market_controller = "0x02"

[engine]
matcher = "sorted_merge"
[engine.prices]
ETH = 2500.0

[executor]
selection = "best"
dedup_ttl = "5m"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TERMARB_EXECUTOR_MIN_PROFIT_USD", "2.5")
	t.Setenv("TERMARB_ENGINE_PRICES", "USDC=0.99, bad")
	t.Setenv("TERMARB_COLLECTOR_CURRENCIES", "ETH, USDC,")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mode != "execute" || cfg.Interval.Duration != 30*time.Second {
		t.Fatalf("top level = %q %v", cfg.Mode, cfg.Interval)
	}
	if cfg.Engine.Matcher != "sorted_merge" || cfg.Executor.Selection != "best" {
		t.Fatalf("engine/executor = %+v %+v", cfg.Engine, cfg.Executor)
	}
	if cfg.Engine.Prices["ETH"] != 2500 || cfg.Engine.Prices["USDC"] != 0.99 || cfg.Engine.Prices["WBTC"] != 1 {
		t.Fatalf("prices = %v", cfg.Engine.Prices)
	}
	if cfg.Executor.MinProfitUSD != 2.5 || cfg.Executor.DedupTTL.Duration != 5*time.Minute {
		t.Fatalf("executor = %+v", cfg.Executor)
	}
	if len(cfg.Collector.Currencies) != 2 || cfg.Collector.Currencies[1] != "USDC" {
		t.Fatalf("currencies = %v", cfg.Collector.Currencies)
	}
	if cfg.Collector.MaxTrade != 100 {
		t.Fatalf("default max trade lost: %d", cfg.Collector.MaxTrade)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.toml")
	if err := os.WriteFile(path, []byte("[engine]\nmatchr = \"x\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "engine.matchr") {
		t.Fatalf("err = %v", err)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xdead"
	cfg.Postgres.Password = "pw"
	cfg.Chain.RPCURL = "https://rpc.example/secret"

	out := RedactedConfig(&cfg)
	if out.Wallet.PrivateKey != redacted || out.Postgres.Password != redacted || out.Chain.RPCURL != redacted {
		t.Fatalf("not redacted: %+v", out)
	}
	if out.Redis.Password != "" {
		t.Fatal("empty secret should stay empty")
	}
	out.Engine.Prices["ETH"] = 99
	if cfg.Engine.Prices["ETH"] == 99 {
		t.Fatal("redacted copy shares the price map")
	}
	if cfg.Wallet.PrivateKey != "0xdead" {
		t.Fatal("original modified")
	}
}
