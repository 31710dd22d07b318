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
// Charges — POST/GET /v1/tenants/{tenantId}/charges
// ============================================================

func createChargeHandler(svc *service.ChargeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/tenants/{tenantId}/charges")
		defer span.End()

		tenantID := chi.URLParam(r, "tenantId")
		if !authorizedForTenant(ctx, tenantID) {
			writeError(w, http.StatusForbidden, "token not valid for this tenant")
			return
		}
		span.SetAttributes(attribute.String("tenant.id", tenantID))

		var req domain.ChargeRequest
		if err := decodeAndValidate(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		rec, err := svc.CreateCharge(ctx, tenantID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

func createDueDateChargeHandler(svc *service.ChargeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/tenants/{tenantId}/charges/due-date")
		defer span.End()

		tenantID := chi.URLParam(r, "tenantId")
		if !authorizedForTenant(ctx, tenantID) {
			writeError(w, http.StatusForbidden, "token not valid for this tenant")
			return
		}
		span.SetAttributes(attribute.String("tenant.id", tenantID))

		var req domain.ChargeRequest
		if err := decodeAndValidate(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if req.DueDate == "" {
			writeError(w, http.StatusBadRequest, "dueDate is required")
			return
		}

		rec, err := svc.CreateDueDateCharge(ctx, tenantID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

func getChargeHandler(svc *service.ChargeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/tenants/{tenantId}/charges/{txid}")
		defer span.End()

		tenantID := chi.URLParam(r, "tenantId")
		txid := chi.URLParam(r, "txid")
		if !authorizedForTenant(ctx, tenantID) {
			writeError(w, http.StatusForbidden, "token not valid for this tenant")
			return
		}
		span.SetAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("charge.txid", txid),
		)

		rec, err := svc.GetCharge(ctx, tenantID, txid)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func listChargesHandler(svc *service.ChargeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/tenants/{tenantId}/charges")
		defer span.End()

		tenantID := chi.URLParam(r, "tenantId")
		if !authorizedForTenant(ctx, tenantID) {
			writeError(w, http.StatusForbidden, "token not valid for this tenant")
			return
		}
		span.SetAttributes(attribute.String("tenant.id", tenantID))

		page, pageSize := parsePagination(r)
		records, err := svc.ListCharges(ctx, tenantID, page, pageSize)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"charges":  records,
			"page":     page,
			"pageSize": pageSize,
		})
	}
}
