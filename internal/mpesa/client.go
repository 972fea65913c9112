package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/njathi/homework-buddy-ai/internal/config"
)

const timestampLayout = "20060102150405"

// Client talks to the Safaricom Daraja API: OAuth token issuance plus the
// STK push that asks the customer's phone to authorize a payment.
type Client struct {
	baseURL        string
	shortcode      string
	passkey        string
	consumerKey    string
	consumerSecret string
	callbackURL    string
	httpClient     *http.Client
	log            *slog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

type STKPushRequest struct {
	Phone       string
	Amount      int
	Reference   string
	Description string
}

// STKPushResult is the gateway's synchronous acknowledgement. ResponseCode
// "0" means the push was accepted for processing; the final outcome arrives
// later on the callback URL.
type STKPushResult struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:        fmt.Sprintf("https://%s.safaricom.co.ke", cfg.MpesaEnv),
		shortcode:      cfg.MpesaShortcode,
		passkey:        cfg.MpesaPasskey,
		consumerKey:    cfg.MpesaConsumerKey,
		consumerSecret: cfg.MpesaConsumerSecret,
		callbackURL:    cfg.MpesaCallbackURL,
		httpClient:     &http.Client{Timeout: timeout},
		log:            log,
	}
}

// STKPush dispatches a CustomerPayBillOnline push to the customer's phone.
// The reference travels as AccountReference and is echoed back on the
// asynchronous callback.
func (c *Client) STKPush(ctx context.Context, req STKPushRequest) (*STKPushResult, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("mpesa token: %w", err)
	}

	timestamp := time.Now().Format(timestampLayout)
	payload := map[string]any{
		"BusinessShortCode": c.shortcode,
		"Password":          stkPassword(c.shortcode, c.passkey, timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            req.Amount,
		"PartyA":            req.Phone,
		"PartyB":            c.shortcode,
		"PhoneNumber":       req.Phone,
		"CallBackURL":       c.callbackURL,
		"AccountReference":  req.Reference,
		"TransactionDesc":   req.Description,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal stk payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build stk request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("stk push: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read stk response: %w", err)
	}
	if resp.StatusCode >= 300 {
		c.log.Error("stk push rejected", "status", resp.StatusCode, "body", truncateBody(rawBody))
		return nil, fmt.Errorf("stk push failed: status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
	}

	var result STKPushResult
	if err := json.Unmarshal(rawBody, &result); err != nil {
		return nil, fmt.Errorf("decode stk response: %w (body=%s)", err, truncateBody(rawBody))
	}
	return &result, nil
}

// token returns a cached OAuth access token, refreshing it when it is within
// a minute of expiring.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(c.consumerKey, c.consumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("token request failed: status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return "", fmt.Errorf("decode token response: %w (body=%s)", err, truncateBody(rawBody))
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}

	ttl := time.Hour
	if secs, err := time.ParseDuration(parsed.ExpiresIn + "s"); err == nil && secs > 0 {
		ttl = secs
	}
	c.accessToken = parsed.AccessToken
	c.tokenExpiry = time.Now().Add(ttl)
	return c.accessToken, nil
}

// stkPassword derives the Lipa Na M-Pesa password for a given timestamp.
func stkPassword(shortcode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
