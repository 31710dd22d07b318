package bank_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rfmelo/pix-broker/internal/domain"
	"github.com/rfmelo/pix-broker/internal/infra/bank"
)

// testCertPEM generates a throwaway self-signed certificate and key pair.
func testCertPEM(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "tenant-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}

func TestCertLoader_InlineBase64(t *testing.T) {
	certPEM, keyPEM := testCertPEM(t)

	cfg := &domain.TenantBankConfig{
		TenantID:       "tenant-1",
		CertificateB64: base64.StdEncoding.EncodeToString(certPEM),
		PrivateKeyB64:  base64.StdEncoding.EncodeToString(keyPEM),
	}

	gotCert, gotKey, err := bank.NewCertLoader().Resolve(cfg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if string(gotCert) != string(certPEM) || string(gotKey) != string(keyPEM) {
		t.Error("resolved material does not match the inline fields")
	}
}

func TestCertLoader_InlineWinsOverFiles(t *testing.T) {
	certPEM, keyPEM := testCertPEM(t)

	cfg := &domain.TenantBankConfig{
		TenantID:        "tenant-1",
		CertificateB64:  base64.StdEncoding.EncodeToString(certPEM),
		PrivateKeyB64:   base64.StdEncoding.EncodeToString(keyPEM),
		CertificatePath: "/nonexistent/cert.pem",
		PrivateKeyPath:  "/nonexistent/key.pem",
	}

	if _, _, err := bank.NewCertLoader().Resolve(cfg); err != nil {
		t.Fatalf("expected inline material to win, got error: %v", err)
	}
}

func TestCertLoader_FileFallback(t *testing.T) {
	certPEM, keyPEM := testCertPEM(t)

	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := &domain.TenantBankConfig{
		TenantID:        "tenant-1",
		CertificatePath: certPath,
		PrivateKeyPath:  keyPath,
	}

	gotCert, _, err := bank.NewCertLoader().Resolve(cfg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if string(gotCert) != string(certPEM) {
		t.Error("resolved certificate does not match the file contents")
	}
}

func TestCertLoader_Missing(t *testing.T) {
	cfg := &domain.TenantBankConfig{TenantID: "tenant-1"}

	_, _, err := bank.NewCertLoader().Resolve(cfg)
	var missing *domain.ErrCertificatesMissing
	if !errors.As(err, &missing) {
		t.Fatalf("expected ErrCertificatesMissing, got %v", err)
	}
	if missing.TenantID != "tenant-1" {
		t.Errorf("expected tenant-1 in error, got %q", missing.TenantID)
	}
}

func TestCertLoader_MalformedInlineBase64(t *testing.T) {
	cfg := &domain.TenantBankConfig{
		TenantID:       "tenant-1",
		CertificateB64: "%%%not-base64%%%",
		PrivateKeyB64:  "also-not###",
	}

	_, _, err := bank.NewCertLoader().Resolve(cfg)
	var transportErr *domain.ErrTransportConstruction
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected ErrTransportConstruction, got %v", err)
	}
}
