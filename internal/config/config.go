package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Bank API (single provider; sandbox/production selected per tenant)
	BankProductionURL string
	BankSandboxURL    string
	BankScopes        string
	BankTimeout       time.Duration

	// TLS: permissive server-certificate validation for environments that
	// intercept or proxy TLS. Deployment-level toggle, never per request.
	BankTLSSkipVerify bool

	// Credential encryption
	CryptoSecret string

	// Resilience (document store only; bank calls are never auto-retried)
	MaxRetries         int
	InitialBackoff     time.Duration
	WebhookMaxInFlight int

	// Tenant-config cache
	ConfigCacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// Supabase (document store)
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string

	// API auth
	JWTSecret string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		BankProductionURL: getEnv("BANK_PRODUCTION_URL", "https://cdpj.partners.bancointer.com.br"),
		BankSandboxURL:    getEnv("BANK_SANDBOX_URL", "https://cdpj-sandbox.partners.uatinter.co"),
		BankScopes:        getEnv("BANK_SCOPES", "cob.read cob.write cobv.read cobv.write pix.read"),
		BankTimeout:       getEnvDuration("BANK_TIMEOUT", 30*time.Second),
		BankTLSSkipVerify: getEnv("BANK_TLS_SKIP_VERIFY", "false") == "true",

		CryptoSecret: getEnv("CRYPTO_SECRET", ""),

		MaxRetries:         getEnvInt("MAX_RETRIES", 3),
		InitialBackoff:     getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		WebhookMaxInFlight: getEnvInt("WEBHOOK_MAX_IN_FLIGHT", 8),

		ConfigCacheTTL: getEnvDuration("CONFIG_CACHE_TTL", 1*time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),

		// No default: an empty secret disables auth and the router logs a
		// loud warning, which beats silently running under a known key.
		JWTSecret: getEnv("JWT_SECRET", ""),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
