package config

const redacted = "***"

// RedactedConfig returns a copy of cfg with secrets replaced by "***", safe
// to log.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)
	// RPC URLs often embed a provider key in the path.
	redact(&out.Chain.RPCURL)

	if cfg.Engine.Prices != nil {
		out.Engine.Prices = make(map[string]float64, len(cfg.Engine.Prices))
		for k, v := range cfg.Engine.Prices {
			out.Engine.Prices[k] = v
		}
	}
	out.Collector.Currencies = append([]string(nil), cfg.Collector.Currencies...)
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	return out
}

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
