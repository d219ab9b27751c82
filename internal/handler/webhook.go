package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tabletap/internal/provider"
	"tabletap/internal/service"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// Reconciler is the webhook-processing boundary.
type Reconciler interface {
	Handle(ctx context.Context, providerName string, body []byte, sigHeader string) error
}

// WebhookHandler receives provider callbacks. Responses never echo internal
// order state: a minimal ack on success, 401 on signature failure, 404 for a
// provider we do not integrate.
func WebhookHandler(reconciler Reconciler, selector *provider.Selector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerName := chi.URLParam(r, "provider")

		p, ok := selector.Get(providerName)
		if !ok || p.SignatureHeader() == "" {
			http.Error(w, "unknown provider", http.StatusNotFound)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}

		sigHeader := r.Header.Get(p.SignatureHeader())

		err = reconciler.Handle(r.Context(), providerName, body, sigHeader)
		if err != nil {
			switch {
			case errors.Is(err, provider.ErrSignatureVerification):
				writeAck(w, http.StatusUnauthorized, "signature verification failed")
			case errors.Is(err, service.ErrUnknownProvider):
				http.Error(w, "unknown provider", http.StatusNotFound)
			default:
				// Not durably recorded; let the provider retry.
				slog.Error("webhook processing failed", "provider", providerName, "error", err)
				writeAck(w, http.StatusInternalServerError, "error")
			}
			return
		}

		writeAck(w, http.StatusOK, "ok")
	}
}

func writeAck(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write([]byte(`{"status":"` + status + `"}`))
}
