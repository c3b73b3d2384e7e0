package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/api"
	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/config"
	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/registry"
	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/session"
	"github.com/Juliannaranjo05/ligan-finally-sub002/internal/transport"
)

// stubBackend answers every call with benign defaults.
type stubBackend struct {
	tokenErr error
}

func (s *stubBackend) Token(context.Context, api.TokenRequest) (api.Credential, error) {
	if s.tokenErr != nil {
		return api.Credential{}, s.tokenErr
	}
	return api.Credential{Token: "tok", ServerURL: "wss://room.test"}, nil
}

func (s *stubBackend) QuickBalance(context.Context) (api.QuickBalance, error) {
	return api.QuickBalance{TotalCoins: 100, GiftCoins: 50, RemainingMinutes: 10}, nil
}

func (s *stubBackend) PeriodicDeduction(context.Context, api.DeductionRequest) (api.DeductionResult, error) {
	return api.DeductionResult{Success: true, RemainingBalance: 90, MinutesRemaining: 9}, nil
}

func (s *stubBackend) StatusUpdates(context.Context) (api.StatusUpdate, error) {
	return api.StatusUpdate{}, nil
}

func (s *stubBackend) NotifyPartnerNext(context.Context, string) error { return nil }
func (s *stubBackend) NotifyPartnerStop(context.Context, string) error { return nil }

func (s *stubBackend) GiftRequest(_ context.Context, req api.GiftRequestBody) (api.GiftRequestResult, error) {
	return api.GiftRequestResult{RequestID: req.RequestID, PriceCoins: 10}, nil
}

func (s *stubBackend) GiftAccept(context.Context, api.GiftAcceptBody) error           { return nil }
func (s *stubBackend) GiftReject(context.Context, api.GiftRejectBody) error           { return nil }
func (s *stubBackend) ProcessSessionEarnings(context.Context, api.EarningsRequest) error { return nil }

type stubConn struct{}

func (stubConn) State() transport.State                 { return transport.StateConnected }
func (stubConn) Participants() []transport.Participant  { return nil }
func (stubConn) Disconnect() error                      { return nil }

type stubDialer struct{}

func (stubDialer) Dial(_ context.Context, _ transport.Credential, h transport.Handlers) (transport.Connection, error) {
	if h.OnStateChanged != nil {
		h.OnStateChanged(transport.StateConnected)
	}
	return stubConn{}, nil
}

func newTestServer(t *testing.T, backend session.Backend) (*httptest.Server, *session.Manager) {
	t.Helper()
	manager := session.NewManager(session.ManagerConfig{
		Backend:       backend,
		Dialer:        stubDialer{},
		Registry:      registry.NewMemory(),
		CostPerMinute: 10,
	})
	t.Cleanup(manager.Shutdown)
	srv := httptest.NewServer(newRouter(config.ServerConfig{AdminAPIKey: "admin-key"}, manager))
	t.Cleanup(srv.Close)
	return srv, manager
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func createSession(t *testing.T, srv *httptest.Server, room, role string) {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/sessions", map[string]any{
		"room":   room,
		"local":  map[string]string{"id": "u1", "role": role, "displayName": "Ava"},
		"remote": map[string]string{"id": "u2", "role": "guest"},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d, want 201", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, &stubBackend{})
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	srv, _ := newTestServer(t, &stubBackend{})

	resp := postJSON(t, srv.URL+"/api/sessions", map[string]any{"room": ""})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty room status = %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/sessions", map[string]any{
		"room":  "r1",
		"local": map[string]string{"id": "u1", "role": "referee"},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad role status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateAndFetchSession(t *testing.T) {
	srv, _ := newTestServer(t, &stubBackend{})
	createSession(t, srv, "room-1", "host")

	resp, err := http.Get(srv.URL + "/api/sessions/room-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var view map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view["room"] != "room-1" {
		t.Fatalf("room = %v", view["room"])
	}
	if _, ok := view["state"]; !ok {
		t.Fatal("state missing from view")
	}
}

func TestCreateSessionInsufficientBalance(t *testing.T) {
	srv, _ := newTestServer(t, &stubBackend{
		tokenErr: &api.InsufficientBalanceError{RequiredCoins: 10},
	})

	resp := postJSON(t, srv.URL+"/api/sessions", map[string]any{
		"room":  "room-2",
		"local": map[string]string{"id": "u1", "role": "guest"},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", resp.StatusCode)
	}
	var body struct {
		Error   string           `json:"error"`
		Verdict *session.Verdict `json:"verdict"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "insufficient_balance" {
		t.Fatalf("error = %q", body.Error)
	}
	if body.Verdict == nil || body.Verdict.Reason != session.ReasonBalanceExhausted {
		t.Fatalf("verdict = %+v, want balance_exhausted", body.Verdict)
	}
}

func TestSkipProducesVerdict(t *testing.T) {
	srv, _ := newTestServer(t, &stubBackend{})
	createSession(t, srv, "room-3", "host")

	resp := postJSON(t, srv.URL+"/api/sessions/room-3/skip", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		OK      bool             `json:"ok"`
		Verdict *session.Verdict `json:"verdict"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Verdict == nil || body.Verdict.Reason != session.ReasonSelfInitiatedNext {
		t.Fatalf("verdict = %+v, want self_initiated_next", body.Verdict)
	}

	// Ending an already-decided session conflicts.
	resp2 := postJSON(t, srv.URL+"/api/sessions/room-3/end", nil)
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusConflict {
		t.Fatalf("end after skip status = %d, want 409", resp2.StatusCode)
	}
}

func TestSessionNotFound(t *testing.T) {
	srv, _ := newTestServer(t, &stubBackend{})
	resp, err := http.Get(srv.URL + "/api/sessions/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGiftFlowOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t, &stubBackend{})
	createSession(t, srv, "room-4", "host")

	resp := postJSON(t, srv.URL+"/api/sessions/room-4/gifts", map[string]string{
		"giftId":      "rose",
		"recipientId": "u2",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("gift create status = %d, want 201", resp.StatusCode)
	}
	var info session.GiftInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.RequestID == "" || info.State != session.GiftPending {
		t.Fatalf("gift info = %+v", info)
	}

	resp2 := postJSON(t, srv.URL+"/api/sessions/room-4/gifts/"+info.RequestID+"/accept", nil)
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("accept status = %d, want 200", resp2.StatusCode)
	}

	// Duplicate accept converges to OK without a second charge.
	resp3 := postJSON(t, srv.URL+"/api/sessions/room-4/gifts/"+info.RequestID+"/accept", nil)
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusOK {
		t.Fatalf("duplicate accept status = %d, want 200", resp3.StatusCode)
	}

	resp4 := postJSON(t, srv.URL+"/api/sessions/room-4/gifts/unknown/accept", nil)
	resp4.Body.Close()
	if resp4.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown gift status = %d, want 404", resp4.StatusCode)
	}
}

func TestAdminVarsRequiresKey(t *testing.T) {
	srv, _ := newTestServer(t, &stubBackend{})

	resp, err := http.Get(srv.URL + "/api/debug/vars")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/debug/vars", nil)
	req.Header.Set("X-Admin-Key", "admin-key")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get with key: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200", resp2.StatusCode)
	}
}
