package bank

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rfmelo/pix-broker/internal/domain"
	"github.com/rfmelo/pix-broker/internal/infra/crypto"
	"github.com/rfmelo/pix-broker/internal/infra/observability"
)

// Tokens expire on the bank's clock; renewing a minute early keeps a
// charge call from racing the expiry.
const tokenRenewalSkew = 60 * time.Second

type cachedToken struct {
	accessToken string
	expiresAt   time.Time
}

// TokenManager owns the OAuth2 client-credentials exchange and the
// in-memory per-tenant token cache. One instance per process; entries for
// different tenants are fully independent. Concurrent callers for the
// same tenant may both exchange when the cache is cold; the bank issuing
// two valid tokens is benign, so there is no per-tenant exchange lock.
type TokenManager struct {
	mu     sync.RWMutex
	tokens map[string]cachedToken

	codec     *crypto.Codec
	certs     *CertLoader
	transport TransportBuilder
	endpoints Endpoints
	scopes    string
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewTokenManager creates a token manager. Scopes is the provider-defined
// capability string sent on every exchange.
func NewTokenManager(codec *crypto.Codec, certs *CertLoader, transport TransportBuilder, endpoints Endpoints, scopes string, metrics *observability.Metrics, logger *zap.Logger) *TokenManager {
	return &TokenManager{
		tokens:    make(map[string]cachedToken),
		codec:     codec,
		certs:     certs,
		transport: transport,
		endpoints: endpoints,
		scopes:    scopes,
		metrics:   metrics,
		logger:    logger,
	}
}

// GetAccessToken returns a valid bearer token for the tenant, exchanging
// credentials with the bank only when the cache is cold or expired. The
// cached path does no network I/O and no allocation beyond the map read.
func (m *TokenManager) GetAccessToken(ctx context.Context, cfg *domain.TenantBankConfig) (string, error) {
	m.mu.RLock()
	tok, ok := m.tokens[cfg.TenantID]
	m.mu.RUnlock()

	if ok && time.Now().Before(tok.expiresAt) {
		m.metrics.IncrTokenCacheHit(cfg.TenantID)
		return tok.accessToken, nil
	}

	m.metrics.IncrTokenCacheMiss(cfg.TenantID)
	return m.exchange(ctx, cfg)
}

// Invalidate evicts the tenant's cached token. Safe to call when no entry
// exists. Called on configuration change and when a downstream call comes
// back unauthorized.
func (m *TokenManager) Invalidate(tenantID string) {
	m.mu.Lock()
	delete(m.tokens, tenantID)
	m.mu.Unlock()
}

// exchange performs the mTLS-secured OAuth2 client-credentials exchange
// and caches the result with an early-renewal expiry.
func (m *TokenManager) exchange(ctx context.Context, cfg *domain.TenantBankConfig) (string, error) {
	ctx, span := tracer.Start(ctx, "TokenManager.exchange")
	defer span.End()
	span.SetAttributes(attribute.String("tenant.id", cfg.TenantID))

	clientID := m.decryptCredential(cfg.EncryptedClientID, "client_id", cfg.TenantID)
	clientSecret := m.decryptCredential(cfg.EncryptedClientSecret, "client_secret", cfg.TenantID)
	if clientID == "" || clientSecret == "" {
		return "", &domain.ErrAuthenticationFailed{
			TenantID:    cfg.TenantID,
			Description: "client credentials are empty after decryption",
		}
	}

	certPEM, keyPEM, err := m.certs.Resolve(cfg)
	if err != nil {
		return "", err
	}
	httpClient, err := m.transport.Build(certPEM, keyPEM)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("grant_type", "client_credentials")
	form.Set("scope", m.scopes)

	endpoint := m.endpoints.BaseURL(cfg.Sandbox) + "/oauth/v2/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpClient.Do(req)
	if err != nil {
		m.metrics.IncrTokenExchange("failure")
		return "", &domain.ErrExternalService{Service: "bank/oauth", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		m.metrics.IncrTokenExchange("failure")
		return "", &domain.ErrExternalService{Service: "bank/oauth", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		m.metrics.IncrTokenExchange("failure")
		var oauthErr oauthError
		_ = json.Unmarshal(body, &oauthErr)
		m.logger.Warn("bank: token exchange rejected",
			zap.String("tenant_id", cfg.TenantID),
			zap.Int("status", resp.StatusCode),
			zap.String("error_code", oauthErr.Code),
		)
		return "", &domain.ErrAuthenticationFailed{
			TenantID:    cfg.TenantID,
			Code:        oauthErr.Code,
			Description: oauthErr.Description,
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil || tr.AccessToken == "" {
		m.metrics.IncrTokenExchange("failure")
		return "", &domain.ErrAuthenticationFailed{
			TenantID:    cfg.TenantID,
			Description: "token endpoint returned no access token",
		}
	}

	expiresAt := time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - tokenRenewalSkew)
	m.mu.Lock()
	m.tokens[cfg.TenantID] = cachedToken{accessToken: tr.AccessToken, expiresAt: expiresAt}
	m.mu.Unlock()

	m.metrics.IncrTokenExchange("success")
	m.logger.Debug("bank: token exchanged",
		zap.String("tenant_id", cfg.TenantID),
		zap.Int64("expires_in", tr.ExpiresIn),
	)
	return tr.AccessToken, nil
}

// decryptCredential decrypts a stored credential and trims the surrounding
// whitespace that copy-pasted credentials tend to carry. Decryption
// failure degrades to treating the stored value as plaintext.
func (m *TokenManager) decryptCredential(stored, field, tenantID string) string {
	plain, err := m.codec.Decrypt(stored)
	if err != nil {
		m.logger.Warn("bank: credential decryption failed, using stored value as-is",
			zap.String("tenant_id", tenantID),
			zap.String("field", field),
			zap.Error(err),
		)
		plain = stored
	}
	return strings.TrimSpace(plain)
}
