package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rfmelo/pix-broker/internal/domain"
	"github.com/rfmelo/pix-broker/internal/infra/observability"
	"github.com/rfmelo/pix-broker/internal/infra/resilience"
	"github.com/rfmelo/pix-broker/internal/port"
)

var webhookTracer = otel.Tracer("service/webhook")

// WebhookService reconciles bank payment notifications against stored
// charges.
//
// The bank's webhook payload identifies payments by txid only; there is no
// tenant discriminator. Reconciliation therefore searches charges across
// all tenants by txid and trusts the txid's randomness for disambiguation.
// A txid collision across tenants would mark both charges paid.
type WebhookService struct {
	charges  port.ChargeStore
	metrics  *observability.Metrics
	logger   *zap.Logger
	bulkhead *resilience.Bulkhead
}

// NewWebhookService creates a webhook reconciliation service. maxInFlight
// bounds how many notifications of one batch are reconciled concurrently.
func NewWebhookService(charges port.ChargeStore, maxInFlight int, metrics *observability.Metrics, logger *zap.Logger) *WebhookService {
	if maxInFlight <= 0 {
		maxInFlight = 8
	}
	return &WebhookService{
		charges:  charges,
		metrics:  metrics,
		logger:   logger,
		bulkhead: resilience.NewBulkhead(maxInFlight),
	}
}

// ProcessPixNotifications reconciles a webhook batch. Each entry is
// handled independently; one bad entry never blocks the rest, and the
// batch always succeeds from the bank's point of view (the handler
// returns 200 regardless).
func (s *WebhookService) ProcessPixNotifications(ctx context.Context, hook *domain.PixWebhook) {
	ctx, span := webhookTracer.Start(ctx, "WebhookService.ProcessPixNotifications")
	defer span.End()

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("webhook_batch", time.Since(start)) }()

	g, ctx := errgroup.WithContext(ctx)

	for _, pix := range hook.Pix {
		pix := pix
		g.Go(func() error {
			if err := s.bulkhead.Acquire(ctx); err != nil {
				s.metrics.IncrWebhookEvent("error")
				return nil
			}
			defer s.bulkhead.Release()

			s.reconcile(ctx, pix)
			return nil
		})
	}
	g.Wait()
}

func (s *WebhookService) reconcile(ctx context.Context, pix domain.WebhookPix) {
	if pix.TxID == "" {
		s.metrics.IncrWebhookEvent("invalid")
		s.logger.Warn("webhook entry without txid, skipping",
			zap.String("end_to_end_id", pix.EndToEndID),
		)
		return
	}

	records, err := s.charges.FindChargesByTxID(ctx, pix.TxID)
	if err != nil {
		s.metrics.IncrWebhookEvent("error")
		s.logger.Error("webhook reconciliation lookup failed",
			zap.String("txid", pix.TxID),
			zap.Error(err),
		)
		return
	}
	if len(records) == 0 {
		s.metrics.IncrWebhookEvent("unmatched")
		s.logger.Warn("webhook payment for unknown txid",
			zap.String("txid", pix.TxID),
			zap.String("end_to_end_id", pix.EndToEndID),
		)
		return
	}
	if len(records) > 1 {
		s.logger.Warn("txid matched charges in multiple tenants, marking all",
			zap.String("txid", pix.TxID),
			zap.Int("matches", len(records)),
		)
	}

	for _, rec := range records {
		if rec.Status == domain.ChargeStatusPaid {
			s.metrics.IncrWebhookEvent("duplicate")
			continue
		}
		if err := s.charges.UpdateChargeStatus(ctx, rec.ID, domain.ChargeStatusPaid); err != nil {
			s.metrics.IncrWebhookEvent("error")
			s.logger.Error("failed to mark charge paid",
				zap.String("charge_id", rec.ID),
				zap.String("txid", pix.TxID),
				zap.Error(err),
			)
			continue
		}
		s.metrics.IncrWebhookEvent("matched")
		s.logger.Info("charge marked paid via webhook",
			zap.String("tenant_id", rec.TenantID),
			zap.String("txid", pix.TxID),
			zap.String("end_to_end_id", pix.EndToEndID),
			zap.String("amount", pix.Amount),
		)
	}
}
