package http

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Admin surface: operator introspection of a session's flow state and a
// kill switch. Guarded by the X-Admin-API-Key header; an empty configured
// key disables the routes entirely.

func WithAdminKey(next http.Handler, key string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Admin-API-Key")
		if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid admin api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdminSessionGet reports the flow state of a session without touching it.
// Token and claim material never leaves the store through this endpoint.
func (h *Handlers) AdminSessionGet(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	if sid == "" {
		WriteError(w, http.StatusBadRequest, "missing_sid", "session id required")
		return
	}

	resp := map[string]any{
		"session_id": sid,
		"state":      string(h.Flow.CurrentState(sid)),
	}
	if cust, ok := h.Flow.Customer(sid); ok {
		resp["party_id"] = cust.PartyID
		resp["customer_name"] = cust.CustomerName
	}
	if selected, ok := h.Sessions.Selected(sid); ok {
		resp["selected_party_id"] = selected
	}
	if ch, ok := h.Sessions.Challenge(sid); ok {
		resp["otp_pending"] = true
		resp["otp_issued_at"] = ch.IssuedAt
	}
	WriteJSON(w, http.StatusOK, resp)
}

// AdminSessionClear force-terminates a session.
func (h *Handlers) AdminSessionClear(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	if sid == "" {
		WriteError(w, http.StatusBadRequest, "missing_sid", "session id required")
		return
	}
	h.Flow.SignOut(r.Context(), sid)
	w.WriteHeader(http.StatusNoContent)
}
