package bank

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/rfmelo/pix-broker/internal/domain"
)

// TransportBuilder constructs HTTPS clients bound to a tenant's client
// certificate. The bank's OAuth endpoint itself requires mTLS, so every
// outbound call, token exchange included, goes through a client built here.
type TransportBuilder struct {
	// Timeout bounds every outbound bank call. A timeout surfaces as a
	// transient failure to the caller; it is never retried automatically.
	Timeout time.Duration

	// InsecureSkipVerify disables server-certificate validation for
	// deployments behind TLS-intercepting proxies. Deployment-level
	// toggle only.
	InsecureSkipVerify bool
}

// Build parses the PEM pair and returns an mTLS-configured client.
// Malformed material fails here, before any request is attempted.
func (b TransportBuilder) Build(certPEM, keyPEM []byte) (*http.Client, error) {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, &domain.ErrTransportConstruction{Err: err}
	}

	tlsCfg := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: b.InsecureSkipVerify,
	}

	return &http.Client{
		Timeout: b.Timeout,
		Transport: &http.Transport{
			TLSClientConfig: tlsCfg,
		},
	}, nil
}

// Endpoints holds the provider's two base URLs. The tenant's sandbox flag
// picks which one a call goes to.
type Endpoints struct {
	Production string
	Sandbox    string
}

// BaseURL returns the base URL for the tenant's environment.
func (e Endpoints) BaseURL(sandbox bool) string {
	if sandbox {
		return e.Sandbox
	}
	return e.Production
}
