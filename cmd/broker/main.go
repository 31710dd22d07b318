package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rfmelo/pix-broker/internal/config"
	"github.com/rfmelo/pix-broker/internal/domain"
	"github.com/rfmelo/pix-broker/internal/handler"
	"github.com/rfmelo/pix-broker/internal/infra/bank"
	"github.com/rfmelo/pix-broker/internal/infra/cache"
	"github.com/rfmelo/pix-broker/internal/infra/crypto"
	"github.com/rfmelo/pix-broker/internal/infra/observability"
	"github.com/rfmelo/pix-broker/internal/infra/resilience"
	"github.com/rfmelo/pix-broker/internal/infra/supabase"
	"github.com/rfmelo/pix-broker/internal/service"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("bank_production_url", cfg.BankProductionURL),
		zap.String("bank_sandbox_url", cfg.BankSandboxURL),
		zap.Duration("bank_timeout", cfg.BankTimeout),
		zap.Bool("bank_tls_skip_verify", cfg.BankTLSSkipVerify),
		zap.Duration("config_cache_ttl", cfg.ConfigCacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "pix-broker")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Credential codec ---
	codec, err := crypto.NewCodec(cfg.CryptoSecret, logger)
	if err != nil {
		logger.Fatal("failed to init credential codec", zap.Error(err))
	}

	// --- Bank integration ---
	certs := bank.NewCertLoader()
	transport := bank.TransportBuilder{
		Timeout:            cfg.BankTimeout,
		InsecureSkipVerify: cfg.BankTLSSkipVerify,
	}
	endpoints := bank.Endpoints{
		Production: cfg.BankProductionURL,
		Sandbox:    cfg.BankSandboxURL,
	}
	tokenManager := bank.NewTokenManager(codec, certs, transport, endpoints, cfg.BankScopes, metrics, logger)
	bankCB := resilience.NewCircuitBreaker("bank-pix")
	bankClient := bank.NewClient(tokenManager, certs, transport, endpoints, bankCB, metrics, logger)

	// --- Document store ---
	if cfg.SupabaseURL == "" {
		logger.Fatal("SUPABASE_URL is required: the broker has no in-memory persistence")
	}
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.WebhookMaxInFlight,
	}
	storeCB := resilience.NewCircuitBreaker("supabase")
	store := supabase.NewClient(
		&http.Client{Timeout: 10 * time.Second},
		cfg.SupabaseURL,
		cfg.SupabaseAnonKey,
		cfg.SupabaseServiceKey,
		storeCB,
		resilienceCfg,
		logger,
	)

	// --- Services ---
	configCache := cache.New[*domain.TenantBankConfig](cfg.ConfigCacheTTL)
	chargeSvc := service.NewChargeService(store, store, bankClient, configCache, metrics, logger)
	tenantSvc := service.NewTenantService(store, codec, tokenManager, bankClient, configCache, logger)
	webhookSvc := service.NewWebhookService(store, cfg.WebhookMaxInFlight, metrics, logger)

	// --- Router ---
	var jwtSecret []byte
	if cfg.JWTSecret != "" {
		jwtSecret = []byte(cfg.JWTSecret)
	}
	router := handler.NewRouter(chargeSvc, tenantSvc, webhookSvc, jwtSecret, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
