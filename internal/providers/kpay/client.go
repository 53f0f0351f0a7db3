package kpay

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	domainErrors "github.com/ikazeshop/payments/internal/domain/errors"
	"github.com/ikazeshop/payments/internal/domain/payment"
	"github.com/ikazeshop/payments/internal/infrastructure/observability"
	"github.com/ikazeshop/payments/internal/providers"
	"github.com/ikazeshop/payments/pkg/retry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	actionPay         = "pay"
	actionCheckStatus = "checkstatus"

	maxResponseBytes = 1 << 20
)

// Client calls the KPay gateway. It implements providers.Gateway.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     zerolog.Logger
	metrics    *observability.Metrics
	tracer     trace.Tracer
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New validates cfg and builds a client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg:        cfg.withDefaults(),
		httpClient: &http.Client{},
		logger:     zerolog.Nop(),
		tracer:     observability.Tracer(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type payRequest struct {
	Action      string      `json:"action"`
	MSISDN      string      `json:"msisdn"`
	Email       string      `json:"email"`
	Details     string      `json:"details"`
	RefID       string      `json:"refid"`
	Amount      json.Number `json:"amount"`
	Currency    string      `json:"currency"`
	CName       string      `json:"cname"`
	CNumber     string      `json:"cnumber"`
	PMethod     string      `json:"pmethod"`
	RetailerID  string      `json:"retailerid"`
	ReturnURL   string      `json:"returl"`
	RedirectURL string      `json:"redirecturl"`
	BankID      string      `json:"bankid"`
	LogoURL     string      `json:"logourl"`
}

type statusRequest struct {
	Action string `json:"action"`
	TID    string `json:"tid,omitempty"`
	RefID  string `json:"refid,omitempty"`
}

// Initiate starts a payment. A nonzero ReturnCode in the response is a
// gateway rejection, not an error.
func (c *Client) Initiate(ctx context.Context, req providers.InitiateRequest) (*providers.GatewayResponse, error) {
	info, ok := req.Method.Info()
	if !ok {
		return nil, domainErrors.ErrUnsupportedMethod
	}

	phone := FormatPhoneNumber(req.CustomerPhone)
	details := req.Details
	if details == "" {
		details = "Payment " + req.Reference
	}

	body := payRequest{
		Action:      actionPay,
		MSISDN:      phone,
		Email:       req.CustomerEmail,
		Details:     details,
		RefID:       req.Reference,
		Amount:      json.Number(req.Amount.String()),
		Currency:    payment.Currency,
		CName:       req.CustomerName,
		CNumber:     phone,
		PMethod:     info.PMethod,
		RetailerID:  c.cfg.RetailerID,
		ReturnURL:   c.cfg.WebhookURL,
		RedirectURL: req.RedirectURL,
		BankID:      info.BankID,
		LogoURL:     c.cfg.LogoURL,
	}

	raw, err := c.post(ctx, actionPay, req.Reference, body)
	if err != nil {
		return nil, err
	}
	return Normalize(raw), nil
}

// CheckStatus queries a transaction by tid, refid or both.
func (c *Client) CheckStatus(ctx context.Context, req providers.StatusRequest) (*providers.GatewayResponse, error) {
	if req.TransactionID == "" && req.Reference == "" {
		return nil, domainErrors.ErrMissingIdentifier
	}

	raw, err := c.post(ctx, actionCheckStatus, req.Reference, statusRequest{
		Action: actionCheckStatus,
		TID:    req.TransactionID,
		RefID:  req.Reference,
	})
	if err != nil {
		return nil, err
	}
	return Normalize(raw), nil
}

func (c *Client) post(ctx context.Context, action, reference string, body any) (map[string]any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("kpay: marshal %s request: %w", action, err)
	}

	ctx, span := c.tracer.Start(ctx, "kpay."+action, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("kpay.action", action),
		attribute.String("kpay.refid", reference),
	)

	start := time.Now()
	baseURL := c.cfg.BaseURL
	switched := false

	policy := retry.LinearConfig(uint(c.cfg.MaxAttempts), c.cfg.BackoffMin, c.cfg.BackoffMax)
	policy.RetryIf = func(err error) bool {
		return !errors.Is(err, context.Canceled)
	}
	policy.OnRetry = func(n uint, err error) {
		c.logger.Warn().Err(err).
			Str("action", action).
			Str("reference", reference).
			Uint("attempt", n+1).
			Msg("KPay call failed, retrying")
		c.observeRetry(action, "retry")
	}

	raw, err := retry.DoWithResult(ctx, policy, func() (map[string]any, error) {
		raw, err := c.do(ctx, baseURL, payload)
		if err != nil && !switched && c.cfg.AlternateBaseURL != "" && isConnectError(err) {
			switched = true
			baseURL = c.cfg.AlternateBaseURL
			span.AddEvent("kpay.fallback", trace.WithAttributes(attribute.String("kpay.base_url", baseURL)))
			c.logger.Warn().Err(err).Str("base_url", baseURL).Msg("KPay unreachable, switching to alternate URL")
			c.observeRetry(action, "fallback")
		}
		return raw, err
	})

	outcome := "success"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if c.metrics != nil {
		c.metrics.GatewayRequestsTotal.WithLabelValues(action, outcome).Inc()
		c.metrics.GatewayRequestDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("kpay %s: %w", action, err)
	}
	return raw, nil
}

func (c *Client) do(ctx context.Context, url string, payload []byte) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Basic "+basicAuth(c.cfg.Username, c.cfg.Password))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return raw, nil
}

func (c *Client) observeRetry(action, reason string) {
	if c.metrics != nil {
		c.metrics.GatewayRetries.WithLabelValues(action, reason).Inc()
	}
}

func basicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

// isConnectError reports DNS failures and dial errors, including dial timeouts.
func isConnectError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// Normalize maps a decoded KPay body, including webhook callbacks, to a
// GatewayResponse.
func Normalize(raw map[string]any) *providers.GatewayResponse {
	return &providers.GatewayResponse{
		TransactionID:    stringField(raw, "tid"),
		Reference:        stringField(raw, "refid"),
		AuthKey:          stringField(raw, "authkey"),
		ReturnCode:       intField(raw, "retcode"),
		Reply:            stringField(raw, "reply"),
		StatusID:         statusField(raw, "statusid"),
		StatusDesc:       stringField(raw, "statusdesc"),
		MomTransactionID: stringField(raw, "momtransactionid"),
		CheckoutURL:      providers.ExtractCheckoutURL(raw),
		Raw:              raw,
	}
}

func stringField(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func intField(raw map[string]any, key string) int {
	switch v := raw[key].(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	default:
		return 0
	}
}

// statusField keeps the two digit form even when KPay sends a bare number.
func statusField(raw map[string]any, key string) string {
	if v, ok := raw[key].(float64); ok {
		return fmt.Sprintf("%02d", int(v))
	}
	return stringField(raw, key)
}
