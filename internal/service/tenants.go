package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rfmelo/pix-broker/internal/domain"
	"github.com/rfmelo/pix-broker/internal/infra/crypto"
	"github.com/rfmelo/pix-broker/internal/port"
)

var tenantTracer = otel.Tracer("service/tenants")

// Connection test outcomes persisted on the tenant record.
const (
	testStatusOK     = "ok"
	testStatusFailed = "failed"
)

// TenantService manages per-tenant bank integration settings. It owns
// credential encryption and the cache/token invalidation that must follow
// every configuration change.
type TenantService struct {
	store       port.TenantStore
	codec       *crypto.Codec
	tokens      port.TokenSource
	bank        port.BankCharger
	configCache port.Cache[*domain.TenantBankConfig]
	logger      *zap.Logger
}

// NewTenantService creates a tenant service.
func NewTenantService(store port.TenantStore, codec *crypto.Codec, tokens port.TokenSource, bank port.BankCharger, configCache port.Cache[*domain.TenantBankConfig], logger *zap.Logger) *TenantService {
	return &TenantService{
		store:       store,
		codec:       codec,
		tokens:      tokens,
		bank:        bank,
		configCache: configCache,
		logger:      logger,
	}
}

// UpsertBankConfig encrypts and stores a tenant's bank credentials, then
// drops any cached config and token so the next call uses fresh material.
// The stored config is inactive until TestConnection validates it.
func (s *TenantService) UpsertBankConfig(ctx context.Context, tenantID string, update *domain.BankConfigUpdate) (*domain.BankConfigView, error) {
	ctx, span := tenantTracer.Start(ctx, "TenantService.UpsertBankConfig")
	defer span.End()
	span.SetAttributes(attribute.String("tenant.id", tenantID))

	encryptedID, err := s.codec.Encrypt(update.ClientID)
	if err != nil {
		return nil, err
	}
	encryptedSecret, err := s.codec.Encrypt(update.ClientSecret)
	if err != nil {
		return nil, err
	}

	cfg := &domain.TenantBankConfig{
		TenantID:              tenantID,
		EncryptedClientID:     encryptedID,
		EncryptedClientSecret: encryptedSecret,
		PixKey:                update.PixKey,
		Sandbox:               update.Sandbox,
		CertificateB64:        update.CertificateB64,
		PrivateKeyB64:         update.PrivateKeyB64,
		CertificatePath:       update.CertificatePath,
		PrivateKeyPath:        update.PrivateKeyPath,
		// Activation requires a successful connection test; untested
		// credentials must not be chargeable.
		Active: false,
	}

	stored, err := s.store.UpsertBankConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Stale material must not outlive the update.
	s.configCache.Delete(tenantID)
	s.tokens.Invalidate(tenantID)

	s.logger.Info("tenant bank config updated",
		zap.String("tenant_id", tenantID),
		zap.Bool("sandbox", stored.Sandbox),
	)
	return maskConfig(stored), nil
}

// GetBankConfig returns the masked configuration view.
func (s *TenantService) GetBankConfig(ctx context.Context, tenantID string) (*domain.BankConfigView, error) {
	ctx, span := tenantTracer.Start(ctx, "TenantService.GetBankConfig")
	defer span.End()
	span.SetAttributes(attribute.String("tenant.id", tenantID))

	cfg, err := s.store.GetBankConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return maskConfig(cfg), nil
}

// TestConnection probes the bank with a token exchange and records the
// outcome on the tenant record. A failing probe deactivates the
// integration until the next successful update or test.
func (s *TenantService) TestConnection(ctx context.Context, tenantID string) (*domain.ConnectionTestResult, error) {
	ctx, span := tenantTracer.Start(ctx, "TenantService.TestConnection")
	defer span.End()
	span.SetAttributes(attribute.String("tenant.id", tenantID))

	cfg, err := s.store.GetBankConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	// The probe must hit the bank, not a cached token.
	s.tokens.Invalidate(tenantID)

	status := testStatusOK
	active := true
	if _, probeErr := s.tokens.GetAccessToken(ctx, cfg); probeErr != nil {
		status = testStatusFailed
		active = false
		s.logger.Warn("bank connection test failed",
			zap.String("tenant_id", tenantID),
			zap.Error(probeErr),
		)
	}

	if err := s.store.UpdateBankConfigStatus(ctx, tenantID, active, status); err != nil {
		return nil, err
	}
	s.configCache.Delete(tenantID)

	return &domain.ConnectionTestResult{
		TenantID: tenantID,
		Active:   active,
		Status:   status,
	}, nil
}

func maskConfig(cfg *domain.TenantBankConfig) *domain.BankConfigView {
	return &domain.BankConfigView{
		TenantID:        cfg.TenantID,
		PixKey:          cfg.PixKey,
		Sandbox:         cfg.Sandbox,
		Active:          cfg.Active,
		LastTestStatus:  cfg.LastTestStatus,
		CredentialsSet:  cfg.EncryptedClientID != "" && cfg.EncryptedClientSecret != "",
		CertificatesSet: (cfg.CertificateB64 != "" && cfg.PrivateKeyB64 != "") || (cfg.CertificatePath != "" && cfg.PrivateKeyPath != ""),
		UpdatedAt:       cfg.UpdatedAt,
	}
}
