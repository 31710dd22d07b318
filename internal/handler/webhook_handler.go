package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/rfmelo/pix-broker/internal/domain"
	"github.com/rfmelo/pix-broker/internal/service"
)

// ============================================================
// Webhooks — POST /v1/webhooks/pix
// ============================================================

// pixWebhookHandler receives payment notifications from the bank. It
// always answers 200: a non-2xx would make the bank retry the delivery,
// and reconciliation failures are our problem, not theirs.
func pixWebhookHandler(svc *service.WebhookService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/webhooks/pix")
		defer span.End()

		var hook domain.PixWebhook
		if err := json.NewDecoder(r.Body).Decode(&hook); err != nil {
			logger.Warn("webhook: malformed payload", zap.Error(err))
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}

		svc.ProcessPixNotifications(ctx, &hook)
		writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
	}
}
