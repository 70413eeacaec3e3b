package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"travel/internal/metrics"
)

const (
	opInitialize = "initialize"
	opVerify     = "verify"

	statusSuccess = "success"

	// maxBodyBytes caps how much of a gateway response is read.
	maxBodyBytes = 1 << 20
	// maxMessageLen caps the gateway message surfaced to clients.
	maxMessageLen = 200
)

// Config holds the gateway client configuration.
type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
	// Transport overrides http.DefaultTransport, e.g. for APM instrumentation.
	Transport http.RoundTripper
}

// InitializeRequest contains the parameters for starting a checkout.
type InitializeRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Email       string
	FirstName   string
	LastName    string
	TxRef       string
	CallbackURL string
	ReturnURL   string
	Title       string
	Description string
}

// InitializeResult is the outcome of a successful initialize call.
type InitializeResult struct {
	CheckoutURL string
}

// ExternalStatus is the gateway's verdict on a transaction.
type ExternalStatus string

const (
	ExternalStatusSuccess ExternalStatus = "success"
	ExternalStatusFailed  ExternalStatus = "failed"
)

// VerifyResult is the outcome of a verify call that reached a verdict.
type VerifyResult struct {
	Status        ExternalStatus
	PaymentMethod string
	Reference     string
}

// Succeeded reports whether the gateway confirmed the payment.
func (r *VerifyResult) Succeeded() bool {
	return r.Status == ExternalStatusSuccess
}

// Client is a Chapa API client. It performs exactly one HTTP request per call.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewClient creates a new Client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:  cfg.SecretKey,
		httpClient: &http.Client{Timeout: timeout, Transport: cfg.Transport},
	}
}

type customization struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type initializePayload struct {
	Amount        string        `json:"amount"`
	Currency      string        `json:"currency"`
	Email         string        `json:"email"`
	FirstName     string        `json:"first_name"`
	LastName      string        `json:"last_name"`
	TxRef         string        `json:"tx_ref"`
	CallbackURL   string        `json:"callback_url"`
	ReturnURL     string        `json:"return_url"`
	Customization customization `json:"customization"`
}

// envelope is the common shape of Chapa responses.
type envelope struct {
	Message json.RawMessage `json:"message"`
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
}

type initializeData struct {
	CheckoutURL string `json:"checkout_url"`
}

type verifyData struct {
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method"`
	Method        string `json:"method"`
	Reference     string `json:"reference"`
}

// Initialize starts a hosted checkout for the transaction.
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	body, err := json.Marshal(initializePayload{
		Amount:      req.Amount.StringFixed(2),
		Currency:    req.Currency,
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		TxRef:       req.TxRef,
		CallbackURL: req.CallbackURL,
		ReturnURL:   req.ReturnURL,
		Customization: customization{
			Title:       req.Title,
			Description: req.Description,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode initialize request: %w", err)
	}

	env, status, err := c.do(ctx, opInitialize, http.MethodPost, "/transaction/initialize", body)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK || env.Status != statusSuccess {
		return nil, rejected(opInitialize, status, messageOf(env.Message))
	}

	var data initializeData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.CheckoutURL == "" {
		return nil, unavailable(opInitialize, status, errors.New("response missing checkout url"))
	}

	return &InitializeResult{CheckoutURL: data.CheckoutURL}, nil
}

// Verify asks the gateway for the final status of a transaction.
func (c *Client) Verify(ctx context.Context, txRef string) (*VerifyResult, error) {
	env, status, err := c.do(ctx, opVerify, http.MethodGet, "/transaction/verify/"+url.PathEscape(txRef), nil)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK || env.Status != statusSuccess {
		return nil, rejected(opVerify, status, messageOf(env.Message))
	}

	var data verifyData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, unavailable(opVerify, status, fmt.Errorf("decode verify data: %w", err))
	}

	result := &VerifyResult{
		Status:        ExternalStatusFailed,
		PaymentMethod: data.PaymentMethod,
		Reference:     data.Reference,
	}
	if result.PaymentMethod == "" {
		result.PaymentMethod = data.Method
	}
	if data.Status == statusSuccess {
		result.Status = ExternalStatusSuccess
	}

	return result, nil
}

// do performs one authenticated request and decodes the response envelope.
// Transport failures, 5xx answers and undecodable bodies become ErrUnavailable.
func (c *Client) do(ctx context.Context, op, method, path string, body []byte) (*envelope, int, error) {
	start := time.Now()
	outcome := "error"
	defer func() {
		metrics.ObserveGateway(op, outcome, time.Since(start))
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, unavailable(op, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, resp.StatusCode, unavailable(op, resp.StatusCode, fmt.Errorf("gateway returned status %d", resp.StatusCode))
	}

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&env); err != nil {
		return nil, resp.StatusCode, unavailable(op, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}

	if resp.StatusCode == http.StatusOK && env.Status == statusSuccess {
		outcome = "success"
	} else {
		outcome = "rejected"
	}

	return &env, resp.StatusCode, nil
}

// messageOf extracts a client-safe message. Chapa sends either a string or
// an object of field errors; only strings are passed through.
func messageOf(raw json.RawMessage) string {
	var msg string
	if err := json.Unmarshal(raw, &msg); err != nil || msg == "" {
		return "request was not accepted"
	}
	if len(msg) > maxMessageLen {
		cut := maxMessageLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return msg
}
