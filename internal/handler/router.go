// Package handler provides the HTTP routing layer of the broker. It is
// deliberately thin: decode, validate, call a service, encode.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/rfmelo/pix-broker/internal/infra/observability"
	"github.com/rfmelo/pix-broker/internal/service"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
// jwtSecret empty disables authentication (local development only).
func NewRouter(charges *service.ChargeService, tenants *service.TenantService, webhooks *service.WebhookService, jwtSecret []byte, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler())
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// Webhooks: called by the bank, never by tenants.
		// The bank cannot present our JWTs, so this route sits outside
		// the auth group; payload trust comes from mTLS at the edge.
		// =============================================
		r.Post("/webhooks/pix", pixWebhookHandler(webhooks, logger))

		r.Group(func(r chi.Router) {
			if len(jwtSecret) > 0 {
				r.Use(JWTAuthMiddleware(jwtSecret, logger))
			} else {
				logger.Warn("JWT secret not configured, API authentication is DISABLED")
			}

			// =============================================
			// Tenant bank configuration
			// =============================================
			r.Put("/tenants/{tenantId}/bank-config", upsertBankConfigHandler(tenants, logger))
			r.Get("/tenants/{tenantId}/bank-config", getBankConfigHandler(tenants, logger))
			r.Post("/tenants/{tenantId}/bank-config/test", testBankConfigHandler(tenants, logger))

			// =============================================
			// Charges (PIX)
			// =============================================
			r.Post("/tenants/{tenantId}/charges", createChargeHandler(charges, logger))
			r.Post("/tenants/{tenantId}/charges/due-date", createDueDateChargeHandler(charges, logger))
			r.Get("/tenants/{tenantId}/charges", listChargesHandler(charges, logger))
			r.Get("/tenants/{tenantId}/charges/{txid}", getChargeHandler(charges, logger))

			// =============================================
			// Boletos — reserved, not implemented
			// =============================================
			r.Post("/tenants/{tenantId}/boletos", createBoletoHandler(logger))

			// =============================================
			// Metrics snapshot
			// =============================================
			r.Get("/metrics/bank", bankMetricsHandler(metrics, logger))
		})
	})

	return r
}

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// bankMetricsHandler serves the JSON counter snapshot.
func bankMetricsHandler(metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetBankSnapshot())
	}
}

// createBoletoHandler reserves the boleto surface. Issuing boletos needs a
// different bank product (cobranca/v3) that is not integrated yet.
func createBoletoHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Info("boleto creation requested but not implemented",
			zap.String("tenant_id", chi.URLParam(r, "tenantId")),
		)
		writeError(w, http.StatusNotImplemented, "boleto issuance is not implemented")
	}
}
