package chapa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Transaction verification outcomes reported by the gateway.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusPending = "pending"
)

// Client talks to the Chapa payment gateway over HTTPS.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewClient constructs a gateway client. The timeout bounds every outbound call.
func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// InitializeRequest is the checkout session payload.
type InitializeRequest struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	TxRef       string `json:"tx_ref"`
	CallbackURL string `json:"callback_url,omitempty"`
	ReturnURL   string `json:"return_url,omitempty"`
}

// InitializeResponse carries the hosted checkout URL.
type InitializeResponse struct {
	CheckoutURL string
}

// VerifyResponse reports the final state of a transaction.
type VerifyResponse struct {
	Status   string
	Amount   float64
	Currency string
	TxRef    string
}

type apiEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// GatewayError distinguishes transient transport failures from explicit
// rejections so callers can decide whether a retry is worthwhile.
type GatewayError struct {
	Retryable bool
	Message   string
	Err       error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chapa: %s: %v", e.Message, e.Err)
	}
	return "chapa: " + e.Message
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Initialize creates a hosted checkout session and returns its URL.
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &GatewayError{Retryable: false, Message: "encode initialize payload", Err: err}
	}

	envelope, err := c.do(ctx, http.MethodPost, "/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var data struct {
		CheckoutURL string `json:"checkout_url"`
	}
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return nil, &GatewayError{Retryable: false, Message: "decode initialize response", Err: err}
		}
	}
	if data.CheckoutURL == "" {
		return nil, &GatewayError{Retryable: false, Message: "gateway returned no checkout url"}
	}
	return &InitializeResponse{CheckoutURL: data.CheckoutURL}, nil
}

// Verify fetches the final status of a transaction by its reference.
func (c *Client) Verify(ctx context.Context, txRef string) (*VerifyResponse, error) {
	envelope, err := c.do(ctx, http.MethodGet, "/transaction/verify/"+txRef, nil)
	if err != nil {
		return nil, err
	}

	var data struct {
		Status   string  `json:"status"`
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
		TxRef    string  `json:"tx_ref"`
	}
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return nil, &GatewayError{Retryable: false, Message: "decode verify response", Err: err}
		}
	}
	if data.Status == "" {
		data.Status = StatusPending
	}
	return &VerifyResponse{Status: data.Status, Amount: data.Amount, Currency: data.Currency, TxRef: data.TxRef}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body *bytes.Reader) (*apiEnvelope, error) {
	var reqBody *bytes.Reader
	if body == nil {
		reqBody = bytes.NewReader(nil)
	} else {
		reqBody = body
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, &GatewayError{Retryable: false, Message: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &GatewayError{Retryable: true, Message: "gateway unreachable", Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, &GatewayError{Retryable: resp.StatusCode >= 500, Message: "decode gateway response", Err: err}
	}

	if resp.StatusCode >= 500 {
		return nil, &GatewayError{Retryable: true, Message: fmt.Sprintf("gateway error (%d): %s", resp.StatusCode, envelope.Message)}
	}
	if resp.StatusCode >= 400 {
		return nil, &GatewayError{Retryable: false, Message: fmt.Sprintf("gateway rejected request (%d): %s", resp.StatusCode, envelope.Message)}
	}
	return &envelope, nil
}
