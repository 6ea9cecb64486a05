// Package paystack talks to the Paystack transaction API.
package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"eventpass-backend/gateway"
	"eventpass-backend/monitoring"
)

const (
	DefaultBaseURL = "https://api.paystack.co"
	// SignatureHeader carries the hex HMAC-SHA512 of the raw webhook body.
	SignatureHeader = "x-paystack-signature"
	// StatusNotFound is reported when Paystack has no record of a reference.
	StatusNotFound = "not_found"

	maxBodyBytes = 1 << 20
)

type Options struct {
	BaseURL    string
	SecretKey  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is safe for concurrent use.
type Client struct {
	baseURL   string
	secretKey string
	timeout   time.Duration
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}

	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		secretKey: opts.SecretKey,
		timeout:   opts.Timeout,
		http:      opts.HTTPClient,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "paystack",
			MaxRequests: 3,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
			},
		}),
	}
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type transactionData struct {
	Reference string     `json:"reference"`
	Status    string     `json:"status"`
	Amount    int64      `json:"amount"`
	Currency  string     `json:"currency"`
	PaidAt    *time.Time `json:"paid_at"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type response struct {
	code int
	body []byte
}

// Verify asks Paystack for the current state of a transaction.
func (c *Client) Verify(ctx context.Context, reference string) (*gateway.Transaction, error) {
	resp, err := c.call(ctx, "verify", http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, err
	}

	if resp.code == http.StatusNotFound || resp.code == http.StatusBadRequest {
		return &gateway.Transaction{Reference: reference, Status: StatusNotFound, Raw: resp.body}, nil
	}
	if resp.code != http.StatusOK {
		return nil, fmt.Errorf("%w: verify returned %d", gateway.ErrUnavailable, resp.code)
	}

	var env envelope
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return nil, fmt.Errorf("%w: decode verify response: %v", gateway.ErrUnavailable, err)
	}
	if !env.Status {
		return &gateway.Transaction{Reference: reference, Status: StatusNotFound, Raw: resp.body}, nil
	}

	var data transactionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: decode transaction: %v", gateway.ErrUnavailable, err)
	}
	if data.Reference == "" {
		data.Reference = reference
	}

	return &gateway.Transaction{
		Reference: data.Reference,
		Status:    data.Status,
		Amount:    data.Amount,
		Currency:  strings.ToUpper(data.Currency),
		PaidAt:    data.PaidAt,
		Raw:       env.Data,
	}, nil
}

// Initialize opens a hosted checkout for a reference we generated.
func (c *Client) Initialize(ctx context.Context, req *gateway.InitializeRequest) (*gateway.InitializeResult, error) {
	payload := map[string]interface{}{
		"reference": req.Reference,
		"email":     req.Email,
		"amount":    req.Amount,
		"currency":  req.Currency,
	}
	if req.CallbackURL != "" {
		payload["callback_url"] = req.CallbackURL
	}
	if len(req.Metadata) > 0 {
		payload["metadata"] = req.Metadata
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	resp, err := c.call(ctx, "initialize", http.MethodPost, "/transaction/initialize", body)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return nil, fmt.Errorf("%w: decode initialize response: %v", gateway.ErrUnavailable, err)
	}
	if resp.code != http.StatusOK || !env.Status {
		return nil, fmt.Errorf("%w: initialize rejected (%d): %s", gateway.ErrUnavailable, resp.code, env.Message)
	}

	var data initializeData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: decode authorization: %v", gateway.ErrUnavailable, err)
	}
	if data.Reference == "" {
		data.Reference = req.Reference
	}

	return &gateway.InitializeResult{
		Reference:        data.Reference,
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
	}, nil
}

// VerifySignature checks a webhook body against its x-paystack-signature.
func (c *Client) VerifySignature(body []byte, signature string) bool {
	if signature == "" || c.secretKey == "" {
		return false
	}
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, []byte(c.secretKey))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// call runs one request through the breaker. Transport errors and 5xx
// responses count as breaker failures, 4xx responses do not.
func (c *Client) call(ctx context.Context, operation, method, path string, body []byte) (*response, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.secretKey)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		httpResp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
		if err != nil {
			return nil, err
		}
		if httpResp.StatusCode >= 500 {
			return nil, fmt.Errorf("%s returned %d", operation, httpResp.StatusCode)
		}
		return &response{code: httpResp.StatusCode, body: raw}, nil
	})
	if err != nil {
		monitoring.ObserveGateway(operation, "error", start)
		return nil, fmt.Errorf("%w: %s: %v", gateway.ErrUnavailable, operation, err)
	}

	monitoring.ObserveGateway(operation, "ok", start)
	return result.(*response), nil
}
