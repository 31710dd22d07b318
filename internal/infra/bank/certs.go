package bank

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/rfmelo/pix-broker/internal/domain"
)

// CertLoader resolves a tenant's mTLS certificate and private key into
// transport-ready byte buffers. Nothing is cached: configuration may
// change between calls, so material is resolved fresh every time.
type CertLoader struct{}

// NewCertLoader creates a certificate loader.
func NewCertLoader() *CertLoader {
	return &CertLoader{}
}

// Resolve returns (certPEM, keyPEM) for the tenant. Inline base64 fields
// take priority; tenant-scoped file paths are the fallback. With neither
// configured the call fails before any network I/O can happen.
func (l *CertLoader) Resolve(cfg *domain.TenantBankConfig) ([]byte, []byte, error) {
	if cfg.CertificateB64 != "" && cfg.PrivateKeyB64 != "" {
		certPEM, err := base64.StdEncoding.DecodeString(cfg.CertificateB64)
		if err != nil {
			return nil, nil, &domain.ErrTransportConstruction{Err: fmt.Errorf("decode inline certificate: %w", err)}
		}
		keyPEM, err := base64.StdEncoding.DecodeString(cfg.PrivateKeyB64)
		if err != nil {
			return nil, nil, &domain.ErrTransportConstruction{Err: fmt.Errorf("decode inline private key: %w", err)}
		}
		return certPEM, keyPEM, nil
	}

	if cfg.CertificatePath != "" && cfg.PrivateKeyPath != "" {
		certPEM, err := os.ReadFile(cfg.CertificatePath)
		if err != nil {
			return nil, nil, &domain.ErrTransportConstruction{Err: fmt.Errorf("read certificate file: %w", err)}
		}
		keyPEM, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, nil, &domain.ErrTransportConstruction{Err: fmt.Errorf("read private key file: %w", err)}
		}
		return certPEM, keyPEM, nil
	}

	return nil, nil, &domain.ErrCertificatesMissing{TenantID: cfg.TenantID}
}
