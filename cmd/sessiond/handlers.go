package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/api"
	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/session"
)

func writeHTTPError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": code})
}

func mapSessionErr(err error) (int, string) {
	var ib *api.InsufficientBalanceError
	var rl *api.RateLimitedError
	var ve *api.ValidationError
	switch {
	case errors.As(err, &ib):
		return http.StatusPaymentRequired, "insufficient_balance"
	case errors.As(err, &rl):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, "invalid_request"
	case errors.Is(err, session.ErrSessionTerminated):
		return http.StatusConflict, "session_terminated"
	case errors.Is(err, session.ErrConnectTimeout):
		return http.StatusGatewayTimeout, "connect_timeout"
	case errors.Is(err, api.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, api.ErrTransient):
		return http.StatusBadGateway, "backend_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func mapGiftErr(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrRoleNotAllowed):
		return http.StatusForbidden, "role_not_allowed"
	case errors.Is(err, session.ErrGiftsDisabled):
		return http.StatusConflict, "gifts_disabled"
	case errors.Is(err, session.ErrInsufficientGiftCoins):
		return http.StatusPaymentRequired, "insufficient_gift_coins"
	case errors.Is(err, session.ErrGiftNotFound):
		return http.StatusNotFound, "gift_not_found"
	case errors.Is(err, session.ErrGiftOutcomeUnknown):
		return http.StatusAccepted, "gift_outcome_pending"
	default:
		return mapSessionErr(err)
	}
}

func lookupSession(manager *session.Manager, w http.ResponseWriter, r *http.Request) (*session.Coordinator, bool) {
	room := chi.URLParam(r, "room")
	if room == "" {
		writeHTTPError(w, http.StatusBadRequest, "invalid_request")
		return nil, false
	}
	c, ok := manager.Get(room)
	if !ok {
		writeHTTPError(w, http.StatusNotFound, "session_not_found")
		return nil, false
	}
	return c, true
}

type identityBody struct {
	ID          string `json:"id"`
	Role        string `json:"role"`
	DisplayName string `json:"displayName"`
}

func (b identityBody) toIdentity() session.Identity {
	return session.Identity{ID: b.ID, Role: session.Role(b.Role), DisplayName: b.DisplayName}
}

func (b identityBody) valid() bool {
	return b.ID != "" && (b.Role == string(session.RoleHost) || b.Role == string(session.RoleGuest))
}

func sessionsCreateHandler(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Room   string       `json:"room"`
			Local  identityBody `json:"local"`
			Remote identityBody `json:"remote"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if body.Room == "" || !body.Local.valid() {
			writeHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}

		c, created, err := manager.Open(r.Context(), body.Room, body.Local.toIdentity(), body.Remote.toIdentity())
		if err != nil {
			// A failed start still leaves a verdict worth reporting.
			status, code := mapSessionErr(err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":   code,
				"verdict": c.Verdict(),
			})
			return
		}
		if created {
			w.WriteHeader(http.StatusCreated)
		}
		_ = json.NewEncoder(w).Encode(sessionView(body.Room, c))
	}
}

func sessionStateHandler(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := lookupSession(manager, w, r)
		if !ok {
			return
		}
		_ = json.NewEncoder(w).Encode(sessionView(chi.URLParam(r, "room"), c))
	}
}

func sessionView(room string, c *session.Coordinator) map[string]any {
	out := map[string]any{
		"room":              room,
		"state":             c.State().String(),
		"elapsedSeconds":    c.ElapsedSeconds(),
		"balance":           c.Balance(),
		"lowBalanceWarning": c.LowBalanceWarning(),
	}
	if p := c.RemoteParticipant(); p != nil {
		out["remote"] = p
	}
	if v := c.Verdict(); v != nil {
		out["verdict"] = v
	}
	if err := c.Err(); err != nil {
		_, code := mapSessionErr(err)
		out["error"] = code
	}
	return out
}

func sessionSkipHandler(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := lookupSession(manager, w, r)
		if !ok {
			return
		}
		if err := c.Skip(r.Context()); err != nil {
			status, code := mapSessionErr(err)
			writeHTTPError(w, status, code)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "verdict": c.Verdict()})
	}
}

func sessionEndHandler(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := lookupSession(manager, w, r)
		if !ok {
			return
		}
		if err := c.End(r.Context()); err != nil {
			status, code := mapSessionErr(err)
			writeHTTPError(w, status, code)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "verdict": c.Verdict()})
	}
}

func giftListHandler(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := lookupSession(manager, w, r)
		if !ok {
			return
		}
		items := c.Gifts().Pending()
		if items == nil {
			items = []session.GiftInfo{}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
	}
}

func giftCreateHandler(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := lookupSession(manager, w, r)
		if !ok {
			return
		}
		var body struct {
			GiftID      string `json:"giftId"`
			RecipientID string `json:"recipientId"`
			Message     string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if body.GiftID == "" || body.RecipientID == "" {
			writeHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}

		// Hosts offer a gift for the guest to settle; guests pay immediately.
		var info session.GiftInfo
		var err error
		if c.LocalRole() == session.RoleGuest {
			info, err = c.Gifts().Send(r.Context(), body.GiftID, body.RecipientID, body.Message)
		} else {
			info, err = c.Gifts().Request(r.Context(), body.GiftID, body.RecipientID, body.Message)
		}
		if err != nil {
			status, code := mapGiftErr(err)
			writeHTTPError(w, status, code)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(info)
	}
}

func giftAcceptHandler(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := lookupSession(manager, w, r)
		if !ok {
			return
		}
		requestID := chi.URLParam(r, "request_id")
		if requestID == "" {
			writeHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		if err := c.Gifts().Accept(r.Context(), requestID); err != nil {
			status, code := mapGiftErr(err)
			writeHTTPError(w, status, code)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "balance": c.Balance()})
	}
}

func giftRejectHandler(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := lookupSession(manager, w, r)
		if !ok {
			return
		}
		requestID := chi.URLParam(r, "request_id")
		if requestID == "" {
			writeHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		if err := c.Gifts().Reject(r.Context(), requestID); err != nil {
			status, code := mapGiftErr(err)
			writeHTTPError(w, status, code)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}
