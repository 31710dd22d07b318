package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rfmelo/pix-broker/internal/domain"
	"github.com/rfmelo/pix-broker/internal/infra/resilience"
)

// ============================================================
// Charge records (implements port.ChargeStore)
// ============================================================

const defaultPageSize = 50

// chargeRow maps the pix_charges table columns.
type chargeRow struct {
	ID            string `json:"id"`
	TenantID      string `json:"tenant_id"`
	TxID          string `json:"txid"`
	Kind          string `json:"kind"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	Description   string `json:"description"`
	PayerName     string `json:"payer_name"`
	PayerDocument string `json:"payer_document"`
	QRCodePayload string `json:"qr_code_payload"`
	DueDate       string `json:"due_date"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

func (r chargeRow) toDomain() domain.ChargeRecord {
	amount, _ := decimal.NewFromString(r.Amount)
	createdAt, _ := time.Parse(time.RFC3339, r.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, r.UpdatedAt)
	return domain.ChargeRecord{
		ID:            r.ID,
		TenantID:      r.TenantID,
		TxID:          r.TxID,
		Kind:          domain.ChargeKind(r.Kind),
		Status:        domain.ChargeStatus(r.Status),
		Amount:        amount,
		Description:   r.Description,
		PayerName:     r.PayerName,
		PayerDocument: r.PayerDocument,
		QRCodePayload: r.QRCodePayload,
		DueDate:       r.DueDate,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}
}

// CreateCharge persists a new charge record.
func (c *Client) CreateCharge(ctx context.Context, rec *domain.ChargeRecord) (*domain.ChargeRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateCharge")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", rec.TenantID),
		attribute.String("charge.txid", rec.TxID),
	)

	data := map[string]any{
		"id":              rec.ID,
		"tenant_id":       rec.TenantID,
		"txid":            rec.TxID,
		"kind":            string(rec.Kind),
		"status":          string(rec.Status),
		"amount":          rec.Amount.StringFixed(2),
		"description":     rec.Description,
		"payer_name":      rec.PayerName,
		"payer_document":  rec.PayerDocument,
		"qr_code_payload": rec.QRCodePayload,
		"due_date":        rec.DueDate,
	}

	body, err := c.doPost(ctx, "pix_charges", data)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/pix_charges", Err: err}
	}

	var rows []chargeRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode pix_charges: %w", err)
	}
	if len(rows) == 0 {
		return rec, nil
	}
	out := rows[0].toDomain()
	return &out, nil
}

// GetCharge fetches one charge, scoped to the tenant.
func (c *Client) GetCharge(ctx context.Context, tenantID, txid string) (*domain.ChargeRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetCharge")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("charge.txid", txid),
	)

	path := fmt.Sprintf("pix_charges?tenant_id=eq.%s&txid=eq.%s&limit=1",
		url.QueryEscape(tenantID), url.QueryEscape(txid))
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/pix_charges", Err: err}
	}
	if body == nil || string(body) == "[]" {
		return nil, &domain.ErrNotFound{Resource: "charge", ID: txid}
	}

	var rows []chargeRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode pix_charges: %w", err)
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "charge", ID: txid}
	}
	out := rows[0].toDomain()
	return &out, nil
}

// ListCharges returns a page of a tenant's charges, newest first.
func (c *Client) ListCharges(ctx context.Context, tenantID string, page, pageSize int) ([]domain.ChargeRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListCharges")
	defer span.End()
	span.SetAttributes(attribute.String("tenant.id", tenantID))

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	offset := (page - 1) * pageSize

	var records []domain.ChargeRecord

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("pix_charges?tenant_id=eq.%s&order=created_at.desc&limit=%d&offset=%d",
				url.QueryEscape(tenantID), pageSize, offset)
			body, err := c.doRequest(ctx, http.MethodGet, path)
			if err != nil {
				return err
			}

			if body == nil || string(body) == "[]" {
				records = []domain.ChargeRecord{}
				return nil
			}

			var rows []chargeRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("decode pix_charges: %w", err)
			}

			records = make([]domain.ChargeRecord, 0, len(rows))
			for _, r := range rows {
				records = append(records, r.toDomain())
			}
			return nil
		})
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/pix_charges", Err: err}
	}

	return records, nil
}

// UpdateChargeStatus moves a stored charge to a new lifecycle state.
func (c *Client) UpdateChargeStatus(ctx context.Context, chargeID string, status domain.ChargeStatus) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateChargeStatus")
	defer span.End()
	span.SetAttributes(attribute.String("charge.id", chargeID))

	path := fmt.Sprintf("pix_charges?id=eq.%s", url.QueryEscape(chargeID))
	data := map[string]any{
		"status":     string(status),
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}
	if err := c.doPatch(ctx, path, data); err != nil {
		return &domain.ErrExternalService{Service: "supabase/pix_charges", Err: err}
	}
	return nil
}

// FindChargesByTxID searches across ALL tenants. Webhook payloads carry no
// tenant identifier, so reconciliation has nothing better to scope by.
func (c *Client) FindChargesByTxID(ctx context.Context, txid string) ([]domain.ChargeRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.FindChargesByTxID")
	defer span.End()
	span.SetAttributes(attribute.String("charge.txid", txid))

	path := fmt.Sprintf("pix_charges?txid=eq.%s", url.QueryEscape(txid))
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/pix_charges", Err: err}
	}
	if body == nil || string(body) == "[]" {
		return []domain.ChargeRecord{}, nil
	}

	var rows []chargeRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode pix_charges: %w", err)
	}

	records := make([]domain.ChargeRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.toDomain())
	}
	return records, nil
}
