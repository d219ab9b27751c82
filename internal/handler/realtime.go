package handler

import (
	"encoding/json"
	"net/http"

	"tabletap/internal/broadcast"
	"tabletap/internal/mw"
)

type realtimeAuthRequest struct {
	Token    string   `json:"token,omitempty"`
	Channels []string `json:"channels"`
}

type realtimeAuthResponse struct {
	Grants map[string]bool `json:"grants"`
}

// RealtimeAuthHandler is the handshake: the connection presents a staff or
// guest table token and a list of channels, and gets a per-channel
// grant/deny. Unauthorized channels are denied here, never silently
// ignored downstream.
func RealtimeAuthHandler(resolver mw.SessionResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req realtimeAuthRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		token := req.Token
		if token == "" {
			token, _ = mw.BearerToken(r)
		}
		if token == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		principal, err := resolver.ResolveSession(token)
		if err != nil {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}

		if len(req.Channels) == 0 {
			http.Error(w, "channels required", http.StatusBadRequest)
			return
		}

		resp := realtimeAuthResponse{Grants: make(map[string]bool, len(req.Channels))}
		for _, channel := range req.Channels {
			resp.Grants[channel] = broadcast.Authorize(principal, channel)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
