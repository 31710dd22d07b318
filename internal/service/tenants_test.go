package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rfmelo/pix-broker/internal/domain"
	"github.com/rfmelo/pix-broker/internal/infra/cache"
	"github.com/rfmelo/pix-broker/internal/infra/crypto"
	"github.com/rfmelo/pix-broker/internal/service"
)

type mockTokenSource struct {
	mu          sync.Mutex
	err         error
	invalidated []string
	calls       int
}

func (m *mockTokenSource) GetAccessToken(_ context.Context, _ *domain.TenantBankConfig) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return "tok", nil
}

func (m *mockTokenSource) Invalidate(tenantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, tenantID)
}

func newTenantService(t *testing.T, store *mockTenantStore, tokens *mockTokenSource, configCache *cache.InMemory[*domain.TenantBankConfig]) *service.TenantService {
	t.Helper()
	codec, err := crypto.NewCodec("segredo-de-teste", zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return service.NewTenantService(store, codec, tokens, &mockBankCharger{}, configCache, zap.NewNop())
}

func TestUpsertBankConfig_EncryptsAndInvalidates(t *testing.T) {
	store := &mockTenantStore{}
	tokens := &mockTokenSource{}
	configCache := cache.New[*domain.TenantBankConfig](time.Minute)
	configCache.Set("t1", activeConfig("t1"))

	svc := newTenantService(t, store, tokens, configCache)
	view, err := svc.UpsertBankConfig(context.Background(), "t1", &domain.BankConfigUpdate{
		ClientID:     "client-abc",
		ClientSecret: "secret-xyz",
		PixKey:       "chave@empresa.com",
		Sandbox:      true,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	store.mu.Lock()
	upserted := store.upserted
	store.mu.Unlock()
	if upserted == nil {
		t.Fatal("expected config to be persisted")
	}
	if upserted.EncryptedClientID == "client-abc" || upserted.EncryptedClientSecret == "secret-xyz" {
		t.Error("credentials must never be persisted as plaintext")
	}
	if upserted.Active {
		t.Error("untested config must not start active")
	}

	if !view.CredentialsSet {
		t.Error("expected credentialsSet in the view")
	}
	if view.CertificatesSet {
		t.Error("no certificate material was provided")
	}

	tokens.mu.Lock()
	defer tokens.mu.Unlock()
	if len(tokens.invalidated) != 1 || tokens.invalidated[0] != "t1" {
		t.Errorf("expected token invalidation for t1, got %v", tokens.invalidated)
	}
	if _, ok := configCache.Get("t1"); ok {
		t.Error("expected cached config to be dropped after update")
	}
}

func TestUpsertBankConfig_InactiveUntilTested(t *testing.T) {
	store := &mockTenantStore{}
	tokens := &mockTokenSource{}
	configCache := cache.New[*domain.TenantBankConfig](time.Minute)

	svc := newTenantService(t, store, tokens, configCache)
	view, err := svc.UpsertBankConfig(context.Background(), "t1", &domain.BankConfigUpdate{
		ClientID:     "client-abc",
		ClientSecret: "secret-xyz",
		PixKey:       "chave@empresa.com",
	})
	if err != nil {
		t.Fatal(err)
	}
	if view.Active {
		t.Error("view must report the config as inactive before a connection test")
	}

	// Until a probe succeeds, the charge path's active gate must reject
	// this tenant.
	store.mu.Lock()
	store.config = store.upserted
	store.mu.Unlock()
	charges := newChargeService(store, &mockChargeStore{}, &mockBankCharger{})
	_, err = charges.CreateCharge(context.Background(), "t1", &domain.ChargeRequest{
		Amount: decimal.NewFromInt(25),
		Payer:  domain.Payer{Name: "Ana", CPF: "11122233344"},
	})
	var validationErr *domain.ErrValidation
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation rejection for untested config, got %v", err)
	}

	result, err := svc.TestConnection(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if !result.Active || result.Status != "ok" {
		t.Errorf("expected active/ok after successful probe, got %+v", result)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if !store.statusActive {
		t.Error("expected persisted activation after the probe")
	}
}

func TestGetBankConfig_MasksSecrets(t *testing.T) {
	cfg := activeConfig("t1")
	cfg.CertificateB64 = "Y2VydA=="
	cfg.PrivateKeyB64 = "a2V5"
	store := &mockTenantStore{config: cfg}

	svc := newTenantService(t, store, &mockTokenSource{}, cache.New[*domain.TenantBankConfig](time.Minute))
	view, err := svc.GetBankConfig(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}

	if !view.CredentialsSet || !view.CertificatesSet {
		t.Error("expected both flags set")
	}
	if view.PixKey != cfg.PixKey {
		t.Errorf("expected pix key in view, got %q", view.PixKey)
	}
}

func TestTestConnection_SuccessMarksActive(t *testing.T) {
	store := &mockTenantStore{config: activeConfig("t1")}
	tokens := &mockTokenSource{}

	svc := newTenantService(t, store, tokens, cache.New[*domain.TenantBankConfig](time.Minute))
	result, err := svc.TestConnection(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}

	if !result.Active || result.Status != "ok" {
		t.Errorf("expected active/ok, got %+v", result)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if !store.statusActive || store.statusValue != "ok" {
		t.Errorf("expected persisted active/ok, got %v/%q", store.statusActive, store.statusValue)
	}

	tokens.mu.Lock()
	defer tokens.mu.Unlock()
	if len(tokens.invalidated) == 0 {
		t.Error("probe must invalidate the cached token first")
	}
}

func TestTestConnection_FailureDeactivates(t *testing.T) {
	store := &mockTenantStore{config: activeConfig("t1")}
	tokens := &mockTokenSource{err: &domain.ErrAuthenticationFailed{TenantID: "t1", Code: "invalid_client"}}

	svc := newTenantService(t, store, tokens, cache.New[*domain.TenantBankConfig](time.Minute))
	result, err := svc.TestConnection(context.Background(), "t1")
	if err != nil {
		t.Fatalf("a failed probe is a result, not an error: %v", err)
	}

	if result.Active || result.Status != "failed" {
		t.Errorf("expected inactive/failed, got %+v", result)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.statusActive {
		t.Error("expected persisted deactivation")
	}
}

func TestTestConnection_UnknownTenant(t *testing.T) {
	svc := newTenantService(t, &mockTenantStore{}, &mockTokenSource{}, cache.New[*domain.TenantBankConfig](time.Minute))

	_, err := svc.TestConnection(context.Background(), "ghost")
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
