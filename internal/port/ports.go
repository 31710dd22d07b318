// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/rfmelo/pix-broker/internal/domain"
)

// TenantStore persists per-tenant bank configuration.
// Implemented by the Supabase adapter (or any other document store).
type TenantStore interface {
	GetBankConfig(ctx context.Context, tenantID string) (*domain.TenantBankConfig, error)
	UpsertBankConfig(ctx context.Context, cfg *domain.TenantBankConfig) (*domain.TenantBankConfig, error)
	UpdateBankConfigStatus(ctx context.Context, tenantID string, active bool, lastTestStatus string) error
}

// ChargeStore persists charge records. Charge persistence is owned here,
// never by the bank client.
type ChargeStore interface {
	CreateCharge(ctx context.Context, rec *domain.ChargeRecord) (*domain.ChargeRecord, error)
	GetCharge(ctx context.Context, tenantID, txid string) (*domain.ChargeRecord, error)
	ListCharges(ctx context.Context, tenantID string, page, pageSize int) ([]domain.ChargeRecord, error)
	UpdateChargeStatus(ctx context.Context, chargeID string, status domain.ChargeStatus) error

	// FindChargesByTxID searches across ALL tenants. The bank's webhook
	// payload carries no tenant identifier, so reconciliation cannot scope
	// the lookup; see the webhook service for the caveats.
	FindChargesByTxID(ctx context.Context, txid string) ([]domain.ChargeRecord, error)
}

// TokenSource yields bearer tokens for a tenant's bank API session.
type TokenSource interface {
	GetAccessToken(ctx context.Context, cfg *domain.TenantBankConfig) (string, error)
	Invalidate(tenantID string)
}

// BankCharger performs charge operations against the bank's PIX API.
type BankCharger interface {
	CreateImmediateCharge(ctx context.Context, cfg *domain.TenantBankConfig, req *domain.ChargeRequest) (*domain.ChargeResult, error)
	CreateDueDateCharge(ctx context.Context, cfg *domain.TenantBankConfig, req *domain.ChargeRequest) (*domain.ChargeResult, error)
	QueryCharge(ctx context.Context, cfg *domain.TenantBankConfig, txid string, kind domain.ChargeKind) (*domain.ChargeResult, error)
	FetchQRCode(ctx context.Context, cfg *domain.TenantBankConfig, locationID int64) (payload, imageDataURI string, err error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
