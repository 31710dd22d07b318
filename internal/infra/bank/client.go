// Package bank implements the client for the bank's PIX charge API:
// per-tenant mTLS transport, OAuth token lifecycle and the charge
// create/query operations.
package bank

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rfmelo/pix-broker/internal/domain"
	"github.com/rfmelo/pix-broker/internal/infra/observability"
)

var tracer = otel.Tracer("bank")

// Default charge parameters when the request leaves them unset.
const (
	defaultExpirySeconds = 3600
	defaultDaysAfterDue  = 30
)

// Client performs charge operations against the bank. It holds no
// per-tenant state itself; tokens live in the TokenManager and
// certificates are resolved fresh per call.
type Client struct {
	tokens    *TokenManager
	certs     *CertLoader
	transport TransportBuilder
	endpoints Endpoints
	cb        *gobreaker.CircuitBreaker
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewClient creates a charge client.
func NewClient(tokens *TokenManager, certs *CertLoader, transport TransportBuilder, endpoints Endpoints, cb *gobreaker.CircuitBreaker, metrics *observability.Metrics, logger *zap.Logger) *Client {
	return &Client{
		tokens:    tokens,
		certs:     certs,
		transport: transport,
		endpoints: endpoints,
		cb:        cb,
		metrics:   metrics,
		logger:    logger,
	}
}

// callResult is the outcome of a single bank API call. Callers branch on
// the status: 2xx is success, 401 is the unauthorized variant that powers
// the one-shot retry, anything else is a plain failure.
type callResult struct {
	Status int
	Body   []byte
}

func (r callResult) ok() bool           { return r.Status >= 200 && r.Status < 300 }
func (r callResult) unauthorized() bool { return r.Status == http.StatusUnauthorized }

// CreateImmediateCharge creates a cob charge under a freshly generated
// txid and returns the bank's view of it.
func (c *Client) CreateImmediateCharge(ctx context.Context, cfg *domain.TenantBankConfig, req *domain.ChargeRequest) (*domain.ChargeResult, error) {
	ctx, span := tracer.Start(ctx, "BankClient.CreateImmediateCharge")
	defer span.End()
	span.SetAttributes(attribute.String("tenant.id", cfg.TenantID))

	if err := validateChargeRequest(req); err != nil {
		return nil, err
	}

	expiry := req.ExpirySeconds
	if expiry <= 0 {
		expiry = defaultExpirySeconds
	}

	txid := NewTxID()
	payload := chargePayload{
		Calendar:     calendar{Expiration: expiry},
		Debtor:       buildDebtor(req.Payer),
		Amount:       chargeAmount{Original: req.Amount.StringFixed(2)},
		Key:          cfg.PixKey,
		PayerRequest: req.Description,
	}

	res, err := c.createCharge(ctx, cfg, "cob", txid, payload)
	if err != nil {
		return nil, err
	}

	c.metrics.IncrChargeCreated(string(domain.ChargeKindImmediate))
	return c.toResult(ctx, cfg, res), nil
}

// CreateDueDateCharge creates a cobv charge: due date plus a post-due
// validity window instead of an expiry countdown.
func (c *Client) CreateDueDateCharge(ctx context.Context, cfg *domain.TenantBankConfig, req *domain.ChargeRequest) (*domain.ChargeResult, error) {
	ctx, span := tracer.Start(ctx, "BankClient.CreateDueDateCharge")
	defer span.End()
	span.SetAttributes(attribute.String("tenant.id", cfg.TenantID))

	if err := validateChargeRequest(req); err != nil {
		return nil, err
	}
	if req.DueDate == "" {
		return nil, &domain.ErrValidation{Field: "dueDate", Message: "due date is required"}
	}

	daysAfterDue := req.DaysAfterDue
	if daysAfterDue <= 0 {
		daysAfterDue = defaultDaysAfterDue
	}

	txid := NewTxID()
	payload := chargePayload{
		Calendar:     calendar{DueDate: req.DueDate, DaysAfterDue: daysAfterDue},
		Debtor:       buildDebtor(req.Payer),
		Amount:       chargeAmount{Original: req.Amount.StringFixed(2)},
		Key:          cfg.PixKey,
		PayerRequest: req.Description,
	}

	res, err := c.createCharge(ctx, cfg, "cobv", txid, payload)
	if err != nil {
		return nil, err
	}

	c.metrics.IncrChargeCreated(string(domain.ChargeKindDueDate))
	return c.toResult(ctx, cfg, res), nil
}

// QueryCharge fetches the bank's current state for a charge.
func (c *Client) QueryCharge(ctx context.Context, cfg *domain.TenantBankConfig, txid string, kind domain.ChargeKind) (*domain.ChargeResult, error) {
	ctx, span := tracer.Start(ctx, "BankClient.QueryCharge")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", cfg.TenantID),
		attribute.String("charge.txid", txid),
	)

	segment := "cob"
	if kind == domain.ChargeKindDueDate {
		segment = "cobv"
	}

	res, err := c.doAuthorized(ctx, cfg, http.MethodGet, fmt.Sprintf("/pix/v2/%s/%s", segment, txid), nil)
	if err != nil {
		c.metrics.IncrBankError("query_charge")
		return nil, err
	}
	if res.Status == http.StatusNotFound {
		return nil, &domain.ErrNotFound{Resource: "charge", ID: txid}
	}
	if !res.ok() {
		c.metrics.IncrBankError("query_charge")
		return nil, &domain.ErrChargeQueryFailed{TxID: txid, StatusCode: res.Status, Detail: apiErrorDetail(res.Body)}
	}

	var cr chargeResponse
	if err := json.Unmarshal(res.Body, &cr); err != nil {
		return nil, &domain.ErrChargeQueryFailed{TxID: txid, StatusCode: res.Status, Detail: "malformed response body"}
	}
	return c.toResult(ctx, cfg, &cr), nil
}

// FetchQRCode retrieves the QR payload and PNG for a charge location.
// The image comes back as a data URI.
func (c *Client) FetchQRCode(ctx context.Context, cfg *domain.TenantBankConfig, locationID int64) (string, string, error) {
	ctx, span := tracer.Start(ctx, "BankClient.FetchQRCode")
	defer span.End()

	res, err := c.doAuthorized(ctx, cfg, http.MethodGet, fmt.Sprintf("/pix/v2/loc/%d/qrcode", locationID), nil)
	if err != nil {
		return "", "", err
	}
	if !res.ok() {
		return "", "", &domain.ErrChargeQueryFailed{TxID: fmt.Sprintf("loc:%d", locationID), StatusCode: res.Status, Detail: apiErrorDetail(res.Body)}
	}

	var qr qrcodeResponse
	if err := json.Unmarshal(res.Body, &qr); err != nil {
		return "", "", &domain.ErrChargeQueryFailed{TxID: fmt.Sprintf("loc:%d", locationID), StatusCode: res.Status, Detail: "malformed response body"}
	}

	image := qr.ImageBase64
	if image != "" && !strings.HasPrefix(image, "data:") {
		image = "data:image/png;base64," + image
	}
	return qr.QRCode, image, nil
}

// createCharge PUTs a charge payload and decodes the bank's response.
func (c *Client) createCharge(ctx context.Context, cfg *domain.TenantBankConfig, segment, txid string, payload chargePayload) (*chargeResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	res, err := c.doAuthorized(ctx, cfg, http.MethodPut, fmt.Sprintf("/pix/v2/%s/%s", segment, txid), body)
	if err != nil {
		c.metrics.IncrBankError("create_charge")
		return nil, err
	}
	if !res.ok() {
		c.metrics.IncrBankError("create_charge")
		if res.unauthorized() {
			return nil, &domain.ErrAuthenticationFailed{
				TenantID:    cfg.TenantID,
				Description: "charge call unauthorized after token refresh",
			}
		}
		return nil, &domain.ErrChargeCreationFailed{TxID: txid, StatusCode: res.Status, Detail: apiErrorDetail(res.Body)}
	}

	var cr chargeResponse
	if err := json.Unmarshal(res.Body, &cr); err != nil {
		return nil, &domain.ErrChargeCreationFailed{TxID: txid, StatusCode: res.Status, Detail: "malformed response body"}
	}
	if cr.TxID == "" {
		cr.TxID = txid
	}
	return &cr, nil
}

// doAuthorized issues one bank API call with a bearer token. On a 401 the
// cached token is evicted, a fresh one is exchanged and the identical
// request is retried exactly once; a second 401 is returned to the caller.
func (c *Client) doAuthorized(ctx context.Context, cfg *domain.TenantBankConfig, method, path string, body []byte) (*callResult, error) {
	// Fail fast on missing certificate material, before any token or
	// network work.
	certPEM, keyPEM, err := c.certs.Resolve(cfg)
	if err != nil {
		return nil, err
	}
	httpClient, err := c.transport.Build(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}

	token, err := c.tokens.GetAccessToken(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res, err := c.send(ctx, httpClient, cfg, method, path, body, token)
	if err != nil {
		return nil, err
	}

	if res.unauthorized() {
		c.logger.Info("bank: unauthorized with cached token, refreshing once",
			zap.String("tenant_id", cfg.TenantID),
			zap.String("path", path),
		)
		c.tokens.Invalidate(cfg.TenantID)

		token, err = c.tokens.GetAccessToken(ctx, cfg)
		if err != nil {
			return nil, err
		}
		res, err = c.send(ctx, httpClient, cfg, method, path, body, token)
		if err != nil {
			return nil, err
		}
	}

	return res, nil
}

// send performs a single HTTP exchange. The circuit breaker guards
// transport-level failures only; HTTP error statuses are results, not
// breaker failures.
func (c *Client) send(ctx context.Context, httpClient *http.Client, cfg *domain.TenantBankConfig, method, path string, body []byte, token string) (*callResult, error) {
	out, err := c.cb.Execute(func() (any, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		url := c.endpoints.BaseURL(cfg.Sandbox) + path
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return &callResult{Status: resp.StatusCode, Body: respBody}, nil
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "bank/pix", Err: err}
	}
	return out.(*callResult), nil
}

// toResult maps the bank's charge representation onto the internal one.
func (c *Client) toResult(ctx context.Context, cfg *domain.TenantBankConfig, cr *chargeResponse) *domain.ChargeResult {
	amount, err := decimal.NewFromString(cr.Amount.Original)
	if err != nil {
		c.logger.Warn("bank: unparseable charge amount",
			zap.String("txid", cr.TxID),
			zap.String("valor", cr.Amount.Original),
			zap.Error(err),
		)
	}
	createdAt, err := time.Parse(time.RFC3339, cr.Calendar.CreatedAt)
	if err != nil && cr.Calendar.CreatedAt != "" {
		c.logger.Warn("bank: unparseable charge timestamp",
			zap.String("txid", cr.TxID),
			zap.String("criacao", cr.Calendar.CreatedAt),
			zap.Error(err),
		)
	}

	result := &domain.ChargeResult{
		TxID:          cr.TxID,
		Status:        MapStatus(cr.Status),
		RawStatus:     cr.Status,
		Amount:        amount,
		QRCodePayload: cr.PixCopiaECola,
		LocationID:    cr.Loc.ID,
		CreatedAt:     createdAt,
		ExpirySeconds: cr.Calendar.Expiration,
		DueDate:       cr.Calendar.DueDate,
		DaysAfterDue:  cr.Calendar.DaysAfterDue,
	}

	for _, p := range cr.Pix {
		paid, _ := decimal.NewFromString(p.Amount)
		paidAt, _ := time.Parse(time.RFC3339, p.Timestamp)
		result.ReceivedPayments = append(result.ReceivedPayments, domain.ReceivedPayment{
			EndToEndID: p.EndToEndID,
			Amount:     paid,
			PaidAt:     paidAt,
			PayerInfo:  p.PayerInfo,
		})
	}

	// Older API versions omit pixCopiaECola on creation; the payload can
	// still be fetched through the charge location.
	if result.QRCodePayload == "" && cr.Loc.ID != 0 {
		payload, image, err := c.FetchQRCode(ctx, cfg, cr.Loc.ID)
		if err != nil {
			c.logger.Warn("bank: qrcode fetch failed",
				zap.String("tenant_id", cfg.TenantID),
				zap.Int64("location_id", cr.Loc.ID),
				zap.Error(err),
			)
		} else {
			result.QRCodePayload = payload
			result.QRCodeImage = image
		}
	}

	return result
}

// MapStatus maps the bank's native status vocabulary onto the internal
// three-state enum. Unrecognized values default to pending.
func MapStatus(native string) domain.ChargeStatus {
	switch native {
	case "CONCLUIDA":
		return domain.ChargeStatusPaid
	case "REMOVIDA_PELO_USUARIO_RECEBEDOR", "REMOVIDA_PELO_PSP":
		return domain.ChargeStatusCancelled
	default:
		return domain.ChargeStatusPending
	}
}

const txidAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// TxIDLength is the provider-facing transaction id length.
const TxIDLength = 32

// NewTxID generates a random alphanumeric transaction id, uniform over
// [a-zA-Z0-9]. Uniqueness is probabilistic only: there is no
// collision-avoidance against ids issued by other processes or tenants.
func NewTxID() string {
	out := make([]byte, 0, TxIDLength)
	buf := make([]byte, TxIDLength*2)
	for len(out) < TxIDLength {
		if _, err := rand.Read(buf); err != nil {
			panic("bank: crypto/rand unavailable: " + err.Error())
		}
		for _, b := range buf {
			// Rejection sampling keeps the distribution uniform:
			// 248 is the largest multiple of 62 below 256.
			if b >= 248 {
				continue
			}
			out = append(out, txidAlphabet[int(b)%len(txidAlphabet)])
			if len(out) == TxIDLength {
				break
			}
		}
	}
	return string(out)
}

// buildDebtor converts a payer into the wire shape. CNPJ wins over CPF;
// tax ids are digit-stripped before transmission.
func buildDebtor(p domain.Payer) *debtor {
	d := &debtor{
		Name:   p.Name,
		Street: p.Street,
		City:   p.City,
		State:  p.State,
		Zip:    p.Zip,
	}
	if p.CNPJ != "" {
		d.CNPJ = OnlyDigits(p.CNPJ)
	} else {
		d.CPF = OnlyDigits(p.CPF)
	}
	return d
}

// OnlyDigits strips every non-digit character from a tax id.
func OnlyDigits(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

// validateChargeRequest is the defensive boundary check. The routing layer
// validates first; malformed input reaching here is still rejected.
func validateChargeRequest(req *domain.ChargeRequest) error {
	if !req.Amount.IsPositive() {
		return &domain.ErrValidation{Field: "amount", Message: "amount must be positive"}
	}
	if req.Payer.Name == "" {
		return &domain.ErrValidation{Field: "payer.name", Message: "payer name is required"}
	}
	if req.Payer.Document() == "" {
		return &domain.ErrValidation{Field: "payer", Message: "payer tax id (cpf or cnpj) is required"}
	}
	return nil
}

// apiErrorDetail extracts a human-readable detail from the provider's
// problem document, falling back to the raw body.
func apiErrorDetail(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil {
		if len(e.Violations) > 0 {
			return fmt.Sprintf("%s: %s (%s)", e.Title, e.Violations[0].Reason, e.Violations[0].Property)
		}
		if e.Detail != "" {
			if e.Title != "" {
				return e.Title + ": " + e.Detail
			}
			return e.Detail
		}
	}
	return string(body)
}
