package config

import (
	"encoding/json"
	"os"
)

type Config struct {
	DatabaseURL         string
	RedisURL            string
	NatsURL             string
	KafkaBrokers        string
	Port                string
	SettlementCurrency  string
	DefaultWebhookURL   string
	WebhookSecret       string
	MerchantWebhookURLs map[string]string
	ProviderSecrets     map[string]string
	JaegerEndpoint      string
}

func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8082"
	}

	settlementCurrency := os.Getenv("SETTLEMENT_CURRENCY")
	if settlementCurrency == "" {
		settlementCurrency = "USD"
	}

	return &Config{
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		NatsURL:             os.Getenv("NATS_URL"),
		KafkaBrokers:        os.Getenv("KAFKA_BROKERS"),
		Port:                port,
		SettlementCurrency:  settlementCurrency,
		DefaultWebhookURL:   os.Getenv("DEFAULT_WEBHOOK_URL"),
		WebhookSecret:       os.Getenv("WEBHOOK_SECRET"),
		MerchantWebhookURLs: jsonMapEnv("MERCHANT_WEBHOOK_URLS"),
		ProviderSecrets:     jsonMapEnv("PROVIDER_SECRETS"),
		JaegerEndpoint:      os.Getenv("JAEGER_ENDPOINT"),
	}
}

// jsonMapEnv parses a JSON object env var; malformed values yield an empty map.
func jsonMapEnv(name string) map[string]string {
	m := map[string]string{}
	raw := os.Getenv(name)
	if raw == "" {
		return m
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return map[string]string{}
	}
	return m
}
