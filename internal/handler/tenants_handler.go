package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rfmelo/pix-broker/internal/domain"
	"github.com/rfmelo/pix-broker/internal/service"
)

// ============================================================
// Tenant bank configuration — /v1/tenants/{tenantId}/bank-config
// ============================================================

func upsertBankConfigHandler(svc *service.TenantService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/tenants/{tenantId}/bank-config")
		defer span.End()

		tenantID := chi.URLParam(r, "tenantId")
		if !authorizedForTenant(ctx, tenantID) {
			writeError(w, http.StatusForbidden, "token not valid for this tenant")
			return
		}
		span.SetAttributes(attribute.String("tenant.id", tenantID))

		var update domain.BankConfigUpdate
		if err := decodeAndValidate(r, &update); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		view, err := svc.UpsertBankConfig(ctx, tenantID, &update)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func getBankConfigHandler(svc *service.TenantService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/tenants/{tenantId}/bank-config")
		defer span.End()

		tenantID := chi.URLParam(r, "tenantId")
		if !authorizedForTenant(ctx, tenantID) {
			writeError(w, http.StatusForbidden, "token not valid for this tenant")
			return
		}
		span.SetAttributes(attribute.String("tenant.id", tenantID))

		view, err := svc.GetBankConfig(ctx, tenantID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func testBankConfigHandler(svc *service.TenantService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/tenants/{tenantId}/bank-config/test")
		defer span.End()

		tenantID := chi.URLParam(r, "tenantId")
		if !authorizedForTenant(ctx, tenantID) {
			writeError(w, http.StatusForbidden, "token not valid for this tenant")
			return
		}
		span.SetAttributes(attribute.String("tenant.id", tenantID))

		result, err := svc.TestConnection(ctx, tenantID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
