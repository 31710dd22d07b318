package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rfmelo/pix-broker/internal/domain"
	"github.com/rfmelo/pix-broker/internal/infra/resilience"
)

// ============================================================
// Tenant bank configuration (implements port.TenantStore)
// ============================================================

// tenantBankConfigRow maps the tenant_bank_configs table columns.
type tenantBankConfigRow struct {
	TenantID              string `json:"tenant_id"`
	EncryptedClientID     string `json:"encrypted_client_id"`
	EncryptedClientSecret string `json:"encrypted_client_secret"`
	PixKey                string `json:"pix_key"`
	Sandbox               bool   `json:"sandbox"`
	CertificateB64        string `json:"certificate_b64"`
	PrivateKeyB64         string `json:"private_key_b64"`
	CertificatePath       string `json:"certificate_path"`
	PrivateKeyPath        string `json:"private_key_path"`
	Active                bool   `json:"active"`
	LastTestStatus        string `json:"last_test_status"`
	CreatedAt             string `json:"created_at"`
	UpdatedAt             string `json:"updated_at"`
}

func (r tenantBankConfigRow) toDomain() *domain.TenantBankConfig {
	createdAt, _ := time.Parse(time.RFC3339, r.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, r.UpdatedAt)
	return &domain.TenantBankConfig{
		TenantID:              r.TenantID,
		EncryptedClientID:     r.EncryptedClientID,
		EncryptedClientSecret: r.EncryptedClientSecret,
		PixKey:                r.PixKey,
		Sandbox:               r.Sandbox,
		CertificateB64:        r.CertificateB64,
		PrivateKeyB64:         r.PrivateKeyB64,
		CertificatePath:       r.CertificatePath,
		PrivateKeyPath:        r.PrivateKeyPath,
		Active:                r.Active,
		LastTestStatus:        r.LastTestStatus,
		CreatedAt:             createdAt,
		UpdatedAt:             updatedAt,
	}
}

// GetBankConfig fetches a tenant's bank integration record.
func (c *Client) GetBankConfig(ctx context.Context, tenantID string) (*domain.TenantBankConfig, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetBankConfig")
	defer span.End()
	span.SetAttributes(attribute.String("tenant.id", tenantID))

	var cfg *domain.TenantBankConfig

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("tenant_bank_configs?tenant_id=eq.%s&limit=1", url.QueryEscape(tenantID))
			body, err := c.doRequest(ctx, http.MethodGet, path)
			if err != nil {
				return err
			}

			if body == nil || string(body) == "[]" {
				return &domain.ErrNotFound{Resource: "bank_config", ID: tenantID}
			}

			var rows []tenantBankConfigRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("decode tenant_bank_configs: %w", err)
			}
			if len(rows) == 0 {
				return &domain.ErrNotFound{Resource: "bank_config", ID: tenantID}
			}

			cfg = rows[0].toDomain()
			return nil
		})
	})
	if err != nil {
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			return nil, notFound
		}
		return nil, &domain.ErrExternalService{Service: "supabase/tenant_bank_configs", Err: err}
	}

	return cfg, nil
}

// UpsertBankConfig creates or replaces a tenant's bank configuration.
// Secrets arrive already encrypted; this layer never sees plaintext.
func (c *Client) UpsertBankConfig(ctx context.Context, cfg *domain.TenantBankConfig) (*domain.TenantBankConfig, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertBankConfig")
	defer span.End()
	span.SetAttributes(attribute.String("tenant.id", cfg.TenantID))

	data := map[string]any{
		"tenant_id":               cfg.TenantID,
		"encrypted_client_id":     cfg.EncryptedClientID,
		"encrypted_client_secret": cfg.EncryptedClientSecret,
		"pix_key":                 cfg.PixKey,
		"sandbox":                 cfg.Sandbox,
		"certificate_b64":         cfg.CertificateB64,
		"private_key_b64":         cfg.PrivateKeyB64,
		"certificate_path":        cfg.CertificatePath,
		"private_key_path":        cfg.PrivateKeyPath,
		"active":                  cfg.Active,
		"last_test_status":        cfg.LastTestStatus,
		"updated_at":              time.Now().UTC().Format(time.RFC3339),
	}

	body, err := c.doUpsert(ctx, "tenant_bank_configs", data)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/tenant_bank_configs", Err: err}
	}

	var rows []tenantBankConfigRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode tenant_bank_configs: %w", err)
	}
	if len(rows) == 0 {
		return cfg, nil
	}
	return rows[0].toDomain(), nil
}

// UpdateBankConfigStatus records the outcome of a connection test.
func (c *Client) UpdateBankConfigStatus(ctx context.Context, tenantID string, active bool, lastTestStatus string) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateBankConfigStatus")
	defer span.End()
	span.SetAttributes(attribute.String("tenant.id", tenantID))

	path := fmt.Sprintf("tenant_bank_configs?tenant_id=eq.%s", url.QueryEscape(tenantID))
	data := map[string]any{
		"active":           active,
		"last_test_status": lastTestStatus,
		"updated_at":       time.Now().UTC().Format(time.RFC3339),
	}
	if err := c.doPatch(ctx, path, data); err != nil {
		return &domain.ErrExternalService{Service: "supabase/tenant_bank_configs", Err: err}
	}
	return nil
}
