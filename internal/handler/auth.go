package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"tabletap/internal/service"
)

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func LoginHandler(authSvc *service.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		user, err := authSvc.Authenticate(r.Context(), req.Login, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidCredentials):
				http.Error(w, "invalid login or password", http.StatusUnauthorized)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		token, err := authSvc.IssueStaffToken(user)
		if err != nil {
			http.Error(w, "token generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Authorization", "Bearer "+token)
		w.WriteHeader(http.StatusOK)
	}
}

type tableSessionRequest struct {
	RestaurantID string `json:"restaurant_id"`
	TableNumber  int    `json:"table_number"`
}

// TableSessionHandler mints the short-lived guest token the table page holds
// for its realtime subscription.
func TableSessionHandler(authSvc *service.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tableSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		if req.RestaurantID == "" || req.TableNumber <= 0 {
			http.Error(w, "restaurant_id and table_number required", http.StatusBadRequest)
			return
		}

		token, err := authSvc.IssueTableToken(r.Context(), req.RestaurantID, req.TableNumber)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrRestaurantNotFound):
				http.Error(w, "restaurant not found", http.StatusNotFound)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"token": token})
	}
}
