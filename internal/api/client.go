package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the billing/notification backend. It owns status-code
// classification; callers only see the sentinel errors from errors.go.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Token(ctx context.Context, req TokenRequest) (Credential, error) {
	var cred Credential
	err := c.do(ctx, http.MethodPost, "/token", req, &cred)
	return cred, err
}

func (c *Client) QuickBalance(ctx context.Context) (QuickBalance, error) {
	var bal QuickBalance
	err := c.do(ctx, http.MethodGet, "/balance/quick", nil, &bal)
	return bal, err
}

func (c *Client) PeriodicDeduction(ctx context.Context, req DeductionRequest) (DeductionResult, error) {
	var res DeductionResult
	err := c.do(ctx, http.MethodPost, "/billing/periodic-deduction", req, &res)
	return res, err
}

func (c *Client) StatusUpdates(ctx context.Context) (StatusUpdate, error) {
	var upd StatusUpdate
	err := c.do(ctx, http.MethodGet, "/status/updates", nil, &upd)
	return upd, err
}

func (c *Client) NotifyPartnerNext(ctx context.Context, room string) error {
	return c.do(ctx, http.MethodPost, "/notify/partner-next", map[string]string{"room": room}, nil)
}

func (c *Client) NotifyPartnerStop(ctx context.Context, room string) error {
	return c.do(ctx, http.MethodPost, "/notify/partner-stop", map[string]string{"room": room}, nil)
}

func (c *Client) GiftRequest(ctx context.Context, req GiftRequestBody) (GiftRequestResult, error) {
	var res GiftRequestResult
	err := c.do(ctx, http.MethodPost, "/gifts/request", req, &res)
	return res, err
}

func (c *Client) GiftAccept(ctx context.Context, req GiftAcceptBody) error {
	return c.do(ctx, http.MethodPost, "/gifts/accept", req, nil)
}

func (c *Client) GiftReject(ctx context.Context, req GiftRejectBody) error {
	return c.do(ctx, http.MethodPost, "/gifts/reject", req, nil)
}

func (c *Client) ProcessSessionEarnings(ctx context.Context, req EarningsRequest) error {
	return c.do(ctx, http.MethodPost, "/earnings/process-session", req, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return classify(resp)
}

func classify(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusPaymentRequired:
		var body struct {
			RequiredCoins int64 `json:"requiredCoins"`
			CurrentCoins  int64 `json:"currentCoins"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return &InsufficientBalanceError{RequiredCoins: body.RequiredCoins, CurrentCoins: body.CurrentCoins}
	case http.StatusTooManyRequests:
		var body struct {
			RetryAfter int `json:"retryAfter"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return &RateLimitedError{RetryAfter: time.Duration(body.RetryAfter) * time.Second}
	case http.StatusUnprocessableEntity:
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return &ValidationError{Code: body.Error}
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrAlreadyProcessed
	default:
		return fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	}
}
