package domain

import "time"

// TenantBankConfig is a tenant's ("empresa") bank integration record.
// Client id/secret are stored encrypted; certificate material is either
// inline (base64) or referenced by tenant-scoped file paths.
type TenantBankConfig struct {
	TenantID              string    `json:"tenantId"`
	EncryptedClientID     string    `json:"-"`
	EncryptedClientSecret string    `json:"-"`
	PixKey                string    `json:"pixKey"`
	Sandbox               bool      `json:"sandbox"`
	CertificateB64        string    `json:"-"`
	PrivateKeyB64         string    `json:"-"`
	CertificatePath       string    `json:"-"`
	PrivateKeyPath        string    `json:"-"`
	Active                bool      `json:"active"`
	LastTestStatus        string    `json:"lastTestStatus,omitempty"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// BankConfigUpdate is the routing-layer payload for configuring a tenant's
// bank credentials. Plaintext secrets here only; encryption happens in the
// tenant service before anything is persisted.
type BankConfigUpdate struct {
	ClientID        string `json:"clientId" validate:"required"`
	ClientSecret    string `json:"clientSecret" validate:"required"`
	PixKey          string `json:"pixKey" validate:"required"`
	Sandbox         bool   `json:"sandbox"`
	CertificateB64  string `json:"certificate,omitempty"`
	PrivateKeyB64   string `json:"privateKey,omitempty"`
	CertificatePath string `json:"certificatePath,omitempty"`
	PrivateKeyPath  string `json:"privateKeyPath,omitempty"`
}

// BankConfigView is the masked representation returned by the API.
// Secrets never leave the service.
type BankConfigView struct {
	TenantID        string    `json:"tenantId"`
	PixKey          string    `json:"pixKey"`
	Sandbox         bool      `json:"sandbox"`
	Active          bool      `json:"active"`
	LastTestStatus  string    `json:"lastTestStatus,omitempty"`
	CredentialsSet  bool      `json:"credentialsSet"`
	CertificatesSet bool      `json:"certificatesSet"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ConnectionTestResult reports the outcome of a token-acquisition probe.
type ConnectionTestResult struct {
	TenantID string `json:"tenantId"`
	Active   bool   `json:"active"`
	Status   string `json:"status"`
}
