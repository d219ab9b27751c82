package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"tabletap/internal/provider"
	"tabletap/internal/service"
)

func CreateIntentHandler(paymentSvc *service.PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.CreateIntentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		if req.OrderID == "" || req.Currency == "" || req.Country == "" {
			http.Error(w, "order_id, currency and country required", http.StatusBadRequest)
			return
		}

		result, err := paymentSvc.CreateIntent(r.Context(), req)
		if err != nil {
			switch {
			case errors.Is(err, provider.ErrNoProviderAvailable):
				http.Error(w, "payment method unavailable for this country/currency", http.StatusServiceUnavailable)
			case errors.Is(err, service.ErrOrderNotFound):
				http.Error(w, "order not found", http.StatusNotFound)
			case errors.Is(err, service.ErrOrderAlreadyPaid):
				http.Error(w, "order already paid", http.StatusConflict)
			case errors.Is(err, service.ErrAmountMismatch):
				http.Error(w, "amount does not match order total", http.StatusUnprocessableEntity)
			default:
				slog.Error("create intent failed", "order", req.OrderID, "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}
