package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tabletap/internal/model"
	"tabletap/internal/mw"
	"tabletap/internal/service"
)

func CreateOrderHandler(orderSvc *service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.CreateOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		if req.RestaurantID == "" {
			http.Error(w, "restaurant_id required", http.StatusBadRequest)
			return
		}
		if req.SubtotalCents < 0 || req.TaxCents < 0 || req.TipCents < 0 {
			http.Error(w, "amounts must be non-negative", http.StatusUnprocessableEntity)
			return
		}

		order, err := orderSvc.Create(r.Context(), req)
		if err != nil {
			slog.Error("order create failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(order)
	}
}

func ListOrdersHandler(orderSvc *service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := mw.PrincipalFrom(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		orders, err := orderSvc.ListByRestaurant(r.Context(), principal.RestaurantID)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		if len(orders) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(orders); err != nil {
			http.Error(w, "encode error", http.StatusInternalServerError)
		}
	}
}

type updateStatusRequest struct {
	Status model.OrderStatus `json:"status"`
}

type transitionError struct {
	Error  string            `json:"error"`
	Detail string            `json:"detail,omitempty"`
	Status model.OrderStatus `json:"current_status,omitempty"`
}

// UpdateStatusHandler applies a staff status change through the state
// machine. The Idempotency-Key header, when present, is the staff-action
// request id; a retried request with the same key is a harmless replay.
func UpdateStatusHandler(orderSvc *service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := mw.PrincipalFrom(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		orderID := chi.URLParam(r, "orderID")

		var req updateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		order, err := orderSvc.GetByID(r.Context(), orderID)
		if err != nil {
			if errors.Is(err, service.ErrOrderNotFound) {
				http.Error(w, "order not found", http.StatusNotFound)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		// Cross-tenant ids are indistinguishable from unknown ones.
		if order.RestaurantID != principal.RestaurantID {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}

		idempotencyKey := r.Header.Get("Idempotency-Key")
		if idempotencyKey == "" {
			idempotencyKey = "staff:" + uuid.NewString()
		}

		ev := model.Event{Kind: model.EventStaffSetStatus, NewStatus: req.Status}
		updated, err := orderSvc.Transition(r.Context(), orderID, ev, idempotencyKey)
		if err != nil && !errors.Is(err, service.ErrDuplicateEvent) {
			switch {
			case errors.Is(err, model.ErrInvalidTransition):
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				json.NewEncoder(w).Encode(transitionError{
					Error:  "invalid_transition",
					Detail: err.Error(),
					Status: order.Status,
				})
			case errors.Is(err, service.ErrOrderNotFound):
				http.Error(w, "order not found", http.StatusNotFound)
			default:
				slog.Error("status update failed", "order", orderID, "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(updated)
	}
}
