package integration_test

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

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

var jwtSecret = []byte("integration-test-secret")

// --- Fake bank (OAuth + PIX API) ---

type fakeBank struct {
	mu       sync.Mutex
	server   *httptest.Server
	paidTxid string
}

func newFakeBank(t *testing.T) *fakeBank {
	t.Helper()
	fb := &fakeBank{}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v2/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("client_id") == "" || r.PostForm.Get("client_secret") == "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid_client"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "integration-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/pix/v2/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/pix/v2/"), "/")
		if len(parts) < 2 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		txid := parts[1]

		status := "ATIVA"
		fb.mu.Lock()
		if fb.paidTxid == txid {
			status = "CONCLUIDA"
		}
		fb.mu.Unlock()

		json.NewEncoder(w).Encode(map[string]any{
			"txid":          txid,
			"status":        status,
			"calendario":    map[string]any{"criacao": time.Now().UTC().Format(time.RFC3339), "expiracao": 3600},
			"valor":         map[string]any{"original": "75.50"},
			"pixCopiaECola": "00020126580014br.gov.bcb.pix0136" + txid,
		})
	})

	fb.server = httptest.NewTLSServer(mux)
	t.Cleanup(fb.server.Close)
	return fb
}

func (fb *fakeBank) markPaid(txid string) {
	fb.mu.Lock()
	fb.paidTxid = txid
	fb.mu.Unlock()
}

// --- Fake Supabase (PostgREST subset: eq filters, limit, upsert, patch) ---

type fakeSupabase struct {
	mu     sync.Mutex
	tables map[string][]map[string]any
	server *httptest.Server
}

func newFakeSupabase(t *testing.T) *fakeSupabase {
	t.Helper()
	fs := &fakeSupabase{tables: map[string][]map[string]any{}}

	fs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")

		filters := map[string]string{}
		for key, vals := range r.URL.Query() {
			if key == "limit" || key == "offset" || key == "order" || key == "select" {
				continue
			}
			if len(vals) > 0 && strings.HasPrefix(vals[0], "eq.") {
				filters[key] = strings.TrimPrefix(vals[0], "eq.")
			}
		}

		fs.mu.Lock()
		defer fs.mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			out := []map[string]any{}
			for _, row := range fs.tables[table] {
				if rowMatches(row, filters) {
					out = append(out, row)
				}
			}
			json.NewEncoder(w).Encode(out)

		case http.MethodPost:
			var row map[string]any
			json.NewDecoder(r.Body).Decode(&row)
			// Upsert semantics on tenant_id for config rows.
			if table == "tenant_bank_configs" {
				replaced := false
				for i, existing := range fs.tables[table] {
					if existing["tenant_id"] == row["tenant_id"] {
						fs.tables[table][i] = row
						replaced = true
					}
				}
				if !replaced {
					fs.tables[table] = append(fs.tables[table], row)
				}
			} else {
				fs.tables[table] = append(fs.tables[table], row)
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode([]map[string]any{row})

		case http.MethodPatch:
			var patch map[string]any
			json.NewDecoder(r.Body).Decode(&patch)
			for i, row := range fs.tables[table] {
				if rowMatches(row, filters) {
					for k, v := range patch {
						fs.tables[table][i][k] = v
					}
				}
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(fs.server.Close)
	return fs
}

func rowMatches(row map[string]any, filters map[string]string) bool {
	for k, want := range filters {
		if fmt.Sprintf("%v", row[k]) != want {
			return false
		}
	}
	return true
}

// --- Helpers ---

func certPair(t *testing.T) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "integration-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return base64.StdEncoding.EncodeToString(certPEM), base64.StdEncoding.EncodeToString(keyPEM)
}

func tenantToken(t *testing.T, tenantID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": tenantID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwtSecret)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func call(router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// TestIntegration_FullChargeFlow wires the real components (codec, token
// manager, bank client, supabase adapter, services, router) against fake
// bank and store backends and walks the complete tenant journey:
// configure → test connection → create charge → webhook payment → query.
func TestIntegration_FullChargeFlow(t *testing.T) {
	fb := newFakeBank(t)
	fs := newFakeSupabase(t)

	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	codec, err := crypto.NewCodec("integration-crypto-secret", logger)
	if err != nil {
		t.Fatal(err)
	}

	certs := bank.NewCertLoader()
	transport := bank.TransportBuilder{Timeout: 5 * time.Second, InsecureSkipVerify: true}
	endpoints := bank.Endpoints{Production: fb.server.URL, Sandbox: fb.server.URL}
	tokenManager := bank.NewTokenManager(codec, certs, transport, endpoints, "cob.read cob.write pix.read", metrics, logger)
	bankClient := bank.NewClient(tokenManager, certs, transport, endpoints, resilience.NewCircuitBreaker("bank-it"), metrics, logger)

	store := supabase.NewClient(
		&http.Client{Timeout: 5 * time.Second},
		fs.server.URL,
		"anon", "service-role",
		resilience.NewCircuitBreaker("supabase-it"),
		resilience.Config{MaxRetries: 1, InitialBackoff: 10 * time.Millisecond},
		logger,
	)

	configCache := cache.New[*domain.TenantBankConfig](time.Minute)
	chargeSvc := service.NewChargeService(store, store, bankClient, configCache, metrics, logger)
	tenantSvc := service.NewTenantService(store, codec, tokenManager, bankClient, configCache, logger)
	webhookSvc := service.NewWebhookService(store, 4, metrics, logger)

	router := handler.NewRouter(chargeSvc, tenantSvc, webhookSvc, jwtSecret, metrics, logger)
	token := tenantToken(t, "empresa-1")

	// 1. Configure the tenant's bank integration.
	certB64, keyB64 := certPair(t)
	rec := call(router, http.MethodPut, "/v1/tenants/empresa-1/bank-config", token, map[string]any{
		"clientId":     "client-empresa-1",
		"clientSecret": "secret-empresa-1",
		"pixKey":       "financeiro@empresa1.com",
		"sandbox":      true,
		"certificate":  certB64,
		"privateKey":   keyB64,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("bank-config upsert failed: %d %s", rec.Code, rec.Body.String())
	}

	// 2. Probe the connection.
	rec = call(router, http.MethodPost, "/v1/tenants/empresa-1/bank-config/test", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("connection test failed: %d %s", rec.Code, rec.Body.String())
	}
	var probe domain.ConnectionTestResult
	json.Unmarshal(rec.Body.Bytes(), &probe)
	if probe.Status != "ok" {
		t.Fatalf("expected probe ok, got %+v", probe)
	}

	// 3. Create a charge.
	rec = call(router, http.MethodPost, "/v1/tenants/empresa-1/charges", token, map[string]any{
		"amount":      "75.50",
		"description": "Mensalidade agosto",
		"payer":       map[string]any{"name": "Ana Souza", "cpf": "111.222.333-44"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("charge creation failed: %d %s", rec.Code, rec.Body.String())
	}
	var created domain.ChargeRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if len(created.TxID) != 32 {
		t.Errorf("expected 32-char txid, got %q", created.TxID)
	}
	if created.QRCodePayload == "" {
		t.Error("expected qr payload on the created charge")
	}
	if created.Status != domain.ChargeStatusPending {
		t.Errorf("expected pending, got %s", created.Status)
	}

	// 4. The bank settles the payment and posts the webhook.
	fb.markPaid(created.TxID)
	rec = call(router, http.MethodPost, "/v1/webhooks/pix", "", map[string]any{
		"pix": []map[string]any{
			{"txid": created.TxID, "endToEndId": "E1234", "valor": "75.50", "horario": time.Now().UTC().Format(time.RFC3339)},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook delivery failed: %d", rec.Code)
	}

	// 5. Query reflects the settled state.
	rec = call(router, http.MethodGet, "/v1/tenants/empresa-1/charges/"+created.TxID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("charge query failed: %d %s", rec.Code, rec.Body.String())
	}
	var fetched domain.ChargeRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &fetched); err != nil {
		t.Fatal(err)
	}
	if fetched.Status != domain.ChargeStatusPaid {
		t.Errorf("expected paid after webhook, got %s", fetched.Status)
	}

	// 6. Listing shows the one charge.
	rec = call(router, http.MethodGet, "/v1/tenants/empresa-1/charges", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("charge list failed: %d", rec.Code)
	}
	var page struct {
		Charges []domain.ChargeRecord `json:"charges"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Charges) != 1 {
		t.Errorf("expected 1 charge in listing, got %d", len(page.Charges))
	}
}
