package client

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"order-payment-core/internal/config"
	"order-payment-core/internal/metrics"

	"github.com/google/uuid"
)

// GatewayErrorClass splits gateway failures into the three cases callers
// handle differently: prompt another instrument, retry the same idempotency
// key, or give up.
type GatewayErrorClass string

const (
	GatewayDeclined  GatewayErrorClass = "declined"
	GatewayTransient GatewayErrorClass = "transient"
	GatewayFatal     GatewayErrorClass = "fatal"
)

type GatewayError struct {
	Class       GatewayErrorClass
	StatusCode  int
	DeclineCode string
	Message     string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s (status=%d): %s", e.Class, e.StatusCode, e.Message)
}

func IsGatewayDeclined(err error) bool { return hasGatewayClass(err, GatewayDeclined) }
func IsGatewayTransient(err error) bool { return hasGatewayClass(err, GatewayTransient) }

func hasGatewayClass(err error, class GatewayErrorClass) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr) && gwErr.Class == class
}

// ErrSignatureInvalid is returned for webhook bodies whose signature header
// does not match the shared secret.
var ErrSignatureInvalid = errors.New("webhook signature invalid")

type CreateIntentRequest struct {
	OrderID     string
	Amount      int64 // minor currency units
	Currency    string
	MethodToken string // optional saved instrument
	Attempt     int
}

type CreateIntentResponse struct {
	IntentID     string
	ClientSecret string
}

type GatewayClient interface {
	CreateIntent(ctx context.Context, req *CreateIntentRequest) (*CreateIntentResponse, error)
	ConfirmIntent(ctx context.Context, intentID string) error
	Refund(ctx context.Context, intentID string, amount int64) (string, error)
	VerifySignature(body []byte, signatureHeader string) error
}

type gatewayClientImpl struct {
	httpClient       *http.Client
	baseApiURL       string
	apiKey           string
	webhookSecret    string
	transientRetries int
	metrics          *metrics.Metrics
}

func NewGatewayClient(gatewayCfg *config.Gateway, m *metrics.Metrics) GatewayClient {
	return &gatewayClientImpl{
		httpClient: &http.Client{
			Timeout: gatewayCfg.RequestTimeout,
		},
		baseApiURL:       gatewayCfg.BaseApiURL,
		apiKey:           gatewayCfg.APIKey,
		webhookSecret:    gatewayCfg.WebhookSecret,
		transientRetries: gatewayCfg.TransientRetries,
		metrics:          m,
	}
}

// idempotencyKey is derived deterministically from the order and attempt
// number, so HTTP-level retries can never mint a second gateway-side intent.
func idempotencyKey(orderID string, attempt int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s:%d", orderID, attempt))).String()
}

func (c *gatewayClientImpl) CreateIntent(ctx context.Context, req *CreateIntentRequest) (*CreateIntentResponse, error) {
	if req.Amount <= 0 {
		return nil, &GatewayError{Class: GatewayFatal, Message: "amount must be a positive integer in minor units"}
	}
	if req.Currency == "" {
		return nil, &GatewayError{Class: GatewayFatal, Message: "currency is required"}
	}

	payload := map[string]interface{}{
		"amount":   req.Amount,
		"currency": req.Currency,
		"metadata": map[string]string{
			"order_id": req.OrderID,
		},
	}
	if req.MethodToken != "" {
		payload["payment_method"] = req.MethodToken
	}

	var result struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
	}

	err := c.do(ctx, "create_intent", http.MethodPost, "/v1/payment_intents",
		payload, idempotencyKey(req.OrderID, req.Attempt), &result)
	if err != nil {
		return nil, err
	}

	return &CreateIntentResponse{
		IntentID:     result.ID,
		ClientSecret: result.ClientSecret,
	}, nil
}

func (c *gatewayClientImpl) ConfirmIntent(ctx context.Context, intentID string) error {
	path := fmt.Sprintf("/v1/payment_intents/%s/confirm", intentID)
	return c.do(ctx, "confirm_intent", http.MethodPost, path, nil, "", nil)
}

func (c *gatewayClientImpl) Refund(ctx context.Context, intentID string, amount int64) (string, error) {
	if amount <= 0 {
		return "", &GatewayError{Class: GatewayFatal, Message: "refund amount must be a positive integer in minor units"}
	}

	payload := map[string]interface{}{
		"payment_intent": intentID,
		"amount":         amount,
	}

	var result struct {
		ID string `json:"id"`
	}

	key := uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("refund:%s:%d", intentID, amount))).String()
	if err := c.do(ctx, "refund", http.MethodPost, "/v1/refunds", payload, key, &result); err != nil {
		return "", err
	}

	return result.ID, nil
}

// VerifySignature checks the HMAC-SHA256 hex digest of the raw body against
// the shared webhook secret.
func (c *gatewayClientImpl) VerifySignature(body []byte, signatureHeader string) error {
	if signatureHeader == "" {
		return ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signatureHeader)) {
		return ErrSignatureInvalid
	}
	return nil
}

// do issues one gateway call, classifying failures and retrying transient
// ones with the same idempotency key.
func (c *gatewayClientImpl) do(ctx context.Context, op, method, path string, payload interface{}, idemKey string, out interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal req payload: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.transientRetries; attempt++ {
		lastErr = c.doOnce(ctx, op, method, path, body, idemKey, out)
		if lastErr == nil || !IsGatewayTransient(lastErr) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
		}
	}

	return lastErr
}

func (c *gatewayClientImpl) doOnce(ctx context.Context, op, method, path string, body []byte, idemKey string, out interface{}) error {
	start := time.Now()
	defer func() {
		c.metrics.GatewayRequestSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseApiURL+path, reader)
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// network failures are safe to retry under the same idempotency key
		return &GatewayError{Class: GatewayTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyHTTPError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode gateway response: %w", err)
		}
	}
	return nil
}

func classifyHTTPError(resp *http.Response) *GatewayError {
	raw, _ := io.ReadAll(resp.Body)

	var errBody struct {
		Error struct {
			Code        string `json:"code"`
			DeclineCode string `json:"decline_code"`
			Message     string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(raw, &errBody)

	msg := errBody.Error.Message
	if msg == "" {
		msg = string(raw)
	}

	gwErr := &GatewayError{
		StatusCode:  resp.StatusCode,
		DeclineCode: errBody.Error.DeclineCode,
		Message:     msg,
	}

	switch {
	case resp.StatusCode == http.StatusPaymentRequired || errBody.Error.Code == "card_declined":
		gwErr.Class = GatewayDeclined
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		gwErr.Class = GatewayTransient
	default:
		gwErr.Class = GatewayFatal
	}

	return gwErr
}
