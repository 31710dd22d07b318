// Package service provides the business logic layer (use cases):
// charge orchestration, tenant bank configuration and webhook
// reconciliation.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rfmelo/pix-broker/internal/domain"
	"github.com/rfmelo/pix-broker/internal/infra/observability"
	"github.com/rfmelo/pix-broker/internal/port"
)

var chargeTracer = otel.Tracer("service/charges")

// ChargeService orchestrates charge creation and lookup: resolves the
// tenant's bank configuration, calls the bank and persists the record.
type ChargeService struct {
	tenants     port.TenantStore
	charges     port.ChargeStore
	bank        port.BankCharger
	configCache port.Cache[*domain.TenantBankConfig]
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewChargeService creates a charge service.
func NewChargeService(tenants port.TenantStore, charges port.ChargeStore, bank port.BankCharger, configCache port.Cache[*domain.TenantBankConfig], metrics *observability.Metrics, logger *zap.Logger) *ChargeService {
	return &ChargeService{
		tenants:     tenants,
		charges:     charges,
		bank:        bank,
		configCache: configCache,
		metrics:     metrics,
		logger:      logger,
	}
}

// resolveConfig loads a tenant's bank configuration, cache first.
// Inactive configurations are rejected before any bank traffic.
func (s *ChargeService) resolveConfig(ctx context.Context, tenantID string) (*domain.TenantBankConfig, error) {
	if cfg, ok := s.configCache.Get(tenantID); ok {
		return cfg, nil
	}

	cfg, err := s.tenants.GetBankConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !cfg.Active {
		return nil, &domain.ErrValidation{Field: "tenant", Message: "bank integration is not active for this tenant"}
	}

	s.configCache.Set(tenantID, cfg)
	return cfg, nil
}

// CreateCharge creates an immediate (cob) charge and persists the record.
func (s *ChargeService) CreateCharge(ctx context.Context, tenantID string, req *domain.ChargeRequest) (*domain.ChargeRecord, error) {
	return s.create(ctx, tenantID, req, domain.ChargeKindImmediate)
}

// CreateDueDateCharge creates a due-date (cobv) charge and persists the record.
func (s *ChargeService) CreateDueDateCharge(ctx context.Context, tenantID string, req *domain.ChargeRequest) (*domain.ChargeRecord, error) {
	return s.create(ctx, tenantID, req, domain.ChargeKindDueDate)
}

func (s *ChargeService) create(ctx context.Context, tenantID string, req *domain.ChargeRequest, kind domain.ChargeKind) (*domain.ChargeRecord, error) {
	ctx, span := chargeTracer.Start(ctx, "ChargeService.CreateCharge")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("charge.kind", string(kind)),
	)

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("create_charge", time.Since(start)) }()

	cfg, err := s.resolveConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var result *domain.ChargeResult
	if kind == domain.ChargeKindDueDate {
		result, err = s.bank.CreateDueDateCharge(ctx, cfg, req)
	} else {
		result, err = s.bank.CreateImmediateCharge(ctx, cfg, req)
	}
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec := &domain.ChargeRecord{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		TxID:          result.TxID,
		Kind:          kind,
		Status:        result.Status,
		Amount:        req.Amount,
		Description:   req.Description,
		PayerName:     req.Payer.Name,
		PayerDocument: req.Payer.Document(),
		QRCodePayload: result.QRCodePayload,
		DueDate:       result.DueDate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	stored, err := s.charges.CreateCharge(ctx, rec)
	if err != nil {
		// The bank charge exists even if persistence failed; surface the
		// txid so the caller can reconcile.
		s.logger.Error("charge created at bank but persistence failed",
			zap.String("tenant_id", tenantID),
			zap.String("txid", result.TxID),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("charge created",
		zap.String("tenant_id", tenantID),
		zap.String("txid", stored.TxID),
		zap.String("kind", string(kind)),
		zap.String("amount", req.Amount.StringFixed(2)),
	)
	return stored, nil
}

// GetCharge returns the stored charge, refreshed against the bank's
// current view. A status change at the bank is persisted on the way out.
func (s *ChargeService) GetCharge(ctx context.Context, tenantID, txid string) (*domain.ChargeRecord, error) {
	ctx, span := chargeTracer.Start(ctx, "ChargeService.GetCharge")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("charge.txid", txid),
	)

	rec, err := s.charges.GetCharge(ctx, tenantID, txid)
	if err != nil {
		return nil, err
	}

	cfg, err := s.resolveConfig(ctx, tenantID)
	if err != nil {
		// Config problems must not hide the stored record.
		s.logger.Warn("charge refresh skipped: bank config unavailable",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return rec, nil
	}

	result, err := s.bank.QueryCharge(ctx, cfg, txid, rec.Kind)
	if err != nil {
		s.logger.Warn("charge refresh failed, serving stored state",
			zap.String("tenant_id", tenantID),
			zap.String("txid", txid),
			zap.Error(err),
		)
		return rec, nil
	}

	if result.Status != rec.Status {
		if err := s.charges.UpdateChargeStatus(ctx, rec.ID, result.Status); err != nil {
			s.logger.Error("failed to persist refreshed charge status",
				zap.String("charge_id", rec.ID),
				zap.Error(err),
			)
		} else {
			rec.Status = result.Status
			rec.UpdatedAt = time.Now().UTC()
		}
	}
	if rec.QRCodePayload == "" && result.QRCodePayload != "" {
		rec.QRCodePayload = result.QRCodePayload
	}

	return rec, nil
}

// ListCharges returns a page of the tenant's stored charges.
func (s *ChargeService) ListCharges(ctx context.Context, tenantID string, page, pageSize int) ([]domain.ChargeRecord, error) {
	ctx, span := chargeTracer.Start(ctx, "ChargeService.ListCharges")
	defer span.End()
	span.SetAttributes(attribute.String("tenant.id", tenantID))

	return s.charges.ListCharges(ctx, tenantID, page, pageSize)
}
