package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	domainErrors "github.com/ikazeshop/payments/internal/domain/errors"
	"github.com/ikazeshop/payments/internal/domain/order"
	"github.com/ikazeshop/payments/internal/domain/outbox"
	"github.com/ikazeshop/payments/internal/domain/payment"
	"github.com/ikazeshop/payments/internal/infrastructure/observability"
	"github.com/ikazeshop/payments/internal/providers"
	"github.com/ikazeshop/payments/internal/providers/kpay"
	"github.com/ikazeshop/payments/pkg/saga"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Config holds the public URLs and defaults the orchestrator needs.
type Config struct {
	// AppBaseURL is the public storefront URL, without trailing slash.
	AppBaseURL       string
	GuestEmailDomain string
}

// PaymentService initiates KPay payments and reconciles their status.
type PaymentService struct {
	paymentRepo payment.Repository
	orderRepo   order.Repository
	outboxRepo  outbox.Repository
	txManager   TransactionManager
	gateway     providers.Gateway
	cfg         Config

	logger  zerolog.Logger
	metrics *observability.Metrics
	locker  Locker
	now     func() time.Time
}

type Option func(*PaymentService)

func WithLogger(l zerolog.Logger) Option {
	return func(s *PaymentService) { s.logger = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *PaymentService) { s.metrics = m }
}

// WithLocker serializes background reconciliation per payment.
func WithLocker(l Locker) Option {
	return func(s *PaymentService) { s.locker = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *PaymentService) { s.now = now }
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	paymentRepo payment.Repository,
	orderRepo order.Repository,
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	gateway providers.Gateway,
	cfg Config,
	opts ...Option,
) *PaymentService {
	cfg.AppBaseURL = strings.TrimRight(cfg.AppBaseURL, "/")
	if cfg.GuestEmailDomain == "" {
		cfg.GuestEmailDomain = "ikazeshop.rw"
	}
	s := &PaymentService{
		paymentRepo: paymentRepo,
		orderRepo:   orderRepo,
		outboxRepo:  outboxRepo,
		txManager:   txManager,
		gateway:     gateway,
		cfg:         cfg,
		logger:      zerolog.Nop(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Initiate starts or resumes a payment attempt and returns the checkout URL
// supplied by the gateway.
func (s *PaymentService) Initiate(ctx context.Context, req InitiatePaymentRequest) (*InitiatePaymentResponse, error) {
	method, err := s.validateInitiate(req)
	if err != nil {
		return nil, err
	}

	var orderID *string
	if req.OrderID != "" {
		if err := s.checkOrder(ctx, req.OrderID, req); err != nil {
			return nil, err
		}
		orderID = &req.OrderID
	}

	if err := providers.Ready(s.gateway); err != nil {
		return nil, err
	}

	existing, reference, err := s.resolveAttempt(ctx, req, orderID, method)
	if err != nil {
		return nil, err
	}

	if existing != nil && existing.Status == payment.StatusCompleted {
		s.countInitiation(method, "already_completed")
		return initiateResponse(existing, ""), nil
	}

	customer := s.customerSnapshot(req)
	var (
		p        = existing
		resp     *providers.GatewayResponse
		reused   = existing != nil
		gatewayC = context.WithoutCancel(ctx)
	)

	sg := saga.New("initiate_payment").
		AddStep(saga.Step{
			Name: "reserve attempt",
			Execute: func(ctx context.Context) error {
				if p != nil {
					return nil
				}
				stored, err := s.reserve(ctx, reference, orderID, req, method, customer)
				if err != nil {
					return err
				}
				p = stored
				return nil
			},
			Compensate: func(ctx context.Context, cause error) error {
				return s.failAttempt(context.WithoutCancel(ctx), p, cause.Error(), payment.EventFailed)
			},
		}).
		AddStep(saga.Step{
			Name: "call gateway",
			Execute: func(ctx context.Context) error {
				if p.Status == payment.StatusCompleted {
					return nil
				}
				r, err := s.gateway.Initiate(gatewayC, providers.InitiateRequest{
					Reference:     p.Reference,
					Amount:        p.Amount,
					Method:        p.Method,
					CustomerName:  p.Customer.Name,
					CustomerEmail: p.Customer.Email,
					CustomerPhone: p.Customer.Phone,
					Details:       paymentDetails(p),
					RedirectURL:   s.statusPageURL(p.ID, req.RedirectURL),
				})
				if err != nil {
					return err
				}
				resp = r
				return nil
			},
		})

	if _, err := sg.Execute(ctx); err != nil {
		return nil, s.initiateError(method, p, err)
	}

	if p.Status == payment.StatusCompleted {
		s.countInitiation(method, "already_completed")
		return initiateResponse(p, ""), nil
	}

	log := observability.PaymentLogger(s.logger, p.ID.String(), p.Reference)

	if !resp.Accepted() {
		msg := kpay.UserMessage(resp.ReturnCode)
		p.RecordInitiation(resp.TransactionID, resp.AuthKey, resp.ReturnCode, resp.Raw)
		if err := s.failAttempt(ctx, p, msg, payment.EventGatewayRejected); err != nil {
			log.Error().Err(err).Msg("Failed to record gateway rejection")
		}
		s.countInitiation(method, "rejected")
		return nil, &domainErrors.GatewayRejectedError{
			PaymentID:  p.ID.String(),
			ReturnCode: resp.ReturnCode,
			Message:    msg,
		}
	}

	p.RecordInitiation(resp.TransactionID, resp.AuthKey, resp.ReturnCode, resp.Raw)
	eventType := payment.EventInitiated
	if reused {
		eventType = payment.EventReinitiated
	}
	if err := s.paymentRepo.Update(ctx, p); err != nil {
		log.Error().Err(err).Msg("Failed to store gateway linkage after acceptance")
	} else if err := s.paymentRepo.AddEvent(ctx, payment.NewEvent(p, eventType, map[string]any{
		"method":         string(p.Method),
		"transaction_id": resp.TransactionID,
	})); err != nil {
		log.Warn().Err(err).Msg("Failed to record initiation event")
	}

	log.Info().
		Str("method", string(method)).
		Str("transaction_id", resp.TransactionID).
		Bool("reused", reused).
		Msg("Payment initiated")
	s.countInitiation(method, "accepted")

	out := initiateResponse(p, resp.CheckoutURL)
	out.Reused = reused
	return out, nil
}

func (s *PaymentService) validateInitiate(req InitiatePaymentRequest) (payment.Method, error) {
	if !req.Amount.IsPositive() {
		return "", domainErrors.NewValidationError("amount", "must be greater than 0")
	}
	if strings.TrimSpace(req.Method) == "" {
		return "", domainErrors.NewValidationError("paymentMethod", "is required")
	}
	method, err := payment.ParseMethod(req.Method)
	if err != nil {
		return "", err
	}
	if req.OrderID == "" && !hasCart(req.Cart) {
		return "", domainErrors.NewValidationError("orderId", "either orderId or cart is required")
	}
	return method, nil
}

// checkOrder runs the order gates: existence, status, amount, already paid
// and in-flight attempts.
func (s *PaymentService) checkOrder(ctx context.Context, orderID string, req InitiatePaymentRequest) error {
	o, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if !o.AcceptsPayment() {
		return domainErrors.NewDomainError("invalid_order_state",
			fmt.Sprintf("order %s is %s", o.ID, o.Status), domainErrors.ErrInvalidOrderState)
	}
	if !o.MatchesAmount(req.Amount) {
		return domainErrors.NewDomainError("amount_mismatch",
			fmt.Sprintf("amount %s does not match order total %s", req.Amount.StringFixed(2), o.Total.StringFixed(2)),
			domainErrors.ErrAmountMismatch)
	}

	paid, err := s.paymentRepo.FindCompletedForOrder(ctx, orderID)
	if err != nil && !errors.Is(err, domainErrors.ErrPaymentNotFound) {
		return err
	}
	if paid != nil {
		return domainErrors.ErrAlreadyPaid
	}

	pending, err := s.paymentRepo.FindLatestPendingForOrder(ctx, orderID)
	if err != nil && !errors.Is(err, domainErrors.ErrPaymentNotFound) {
		return err
	}
	if pending != nil && pending.InFlight(s.now()) {
		return &domainErrors.PaymentInProgressError{PaymentID: pending.ID.String()}
	}
	return nil
}

// hasCart reports whether raw holds an inline cart. null, an empty array and
// an empty object do not count.
func hasCart(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	switch string(trimmed) {
	case "null", "[]", "{}":
		return false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err == nil {
		return len(items) > 0
	}
	return true
}

// reusable reports whether p was made for the same order, amount and method
// as the request.
func reusable(p *payment.Payment, orderID *string, amount decimal.Decimal, method payment.Method) bool {
	if p.Method != method || !p.Amount.Equal(amount) {
		return false
	}
	if orderID == nil {
		return p.IsSession()
	}
	return p.OrderID != nil && *p.OrderID == *orderID
}

// resolveAttempt finds the attempt to resume, if any, and the reference a new
// attempt would use. A row is only reused while it is pending or completed
// and was made for the same order, amount and method.
func (s *PaymentService) resolveAttempt(
	ctx context.Context,
	req InitiatePaymentRequest,
	orderID *string,
	method payment.Method,
) (*payment.Payment, string, error) {
	var (
		existing *payment.Payment
		err      error
	)
	switch {
	case req.ClientReference != "":
		existing, err = s.paymentRepo.GetByReference(ctx, req.ClientReference)
	case req.ClientPaymentID != "":
		id, parseErr := uuid.Parse(req.ClientPaymentID)
		if parseErr == nil {
			existing, err = s.paymentRepo.GetByID(ctx, id)
		}
	}
	if err != nil && !errors.Is(err, domainErrors.ErrPaymentNotFound) {
		return nil, "", err
	}

	if existing != nil && !reusable(existing, orderID, req.Amount, method) {
		s.logger.Info().
			Str("payment_id", existing.ID.String()).
			Str("stored_method", string(existing.Method)).
			Str("requested_method", string(method)).
			Str("stored_amount", existing.Amount.StringFixed(2)).
			Str("requested_amount", req.Amount.StringFixed(2)).
			Msg("Payment request changed, starting a new attempt")
		existing = nil
	}
	if existing != nil && existing.Status == payment.StatusFailed {
		existing = nil
	}
	if existing != nil {
		return existing, existing.Reference, nil
	}

	reference := payment.GenerateReference(s.now())
	dup, err := s.paymentRepo.GetByReference(ctx, reference)
	if err != nil && !errors.Is(err, domainErrors.ErrPaymentNotFound) {
		return nil, "", err
	}
	if dup != nil && reusable(dup, orderID, req.Amount, method) && dup.Status != payment.StatusFailed {
		return dup, dup.Reference, nil
	}
	if dup != nil {
		reference = payment.GenerateReference(s.now())
	}
	return nil, reference, nil
}

// reserve inserts the pending attempt. A concurrent insert of the same
// reference wins and its row is used instead.
func (s *PaymentService) reserve(
	ctx context.Context,
	reference string,
	orderID *string,
	req InitiatePaymentRequest,
	method payment.Method,
	customer payment.Customer,
) (*payment.Payment, error) {
	p, err := payment.NewPayment(reference, orderID, req.Amount, method, customer)
	if err != nil {
		return nil, err
	}
	p.Cart = req.Cart

	stored, created, err := s.paymentRepo.CreateOrGet(ctx, p)
	if err != nil {
		return nil, err
	}
	if !created {
		s.logger.Info().
			Str("reference", reference).
			Str("payment_id", stored.ID.String()).
			Msg("Reference already reserved by a concurrent request")
		if stored.Status == payment.StatusFailed {
			return nil, domainErrors.ErrDuplicateReference
		}
	}
	return stored, nil
}

// failAttempt marks p failed and records eventType. A nil or already failed
// attempt is left alone.
func (s *PaymentService) failAttempt(ctx context.Context, p *payment.Payment, reason, eventType string) error {
	if p == nil || p.Status == payment.StatusFailed {
		return nil
	}
	if err := p.MarkFailed(reason); err != nil {
		return err
	}
	if err := s.paymentRepo.Update(ctx, p); err != nil {
		return err
	}
	s.countTransition(payment.StatusFailed, "initiate")
	return s.paymentRepo.AddEvent(ctx, payment.NewEvent(p, eventType, map[string]any{"error": reason}))
}

func (s *PaymentService) initiateError(method payment.Method, p *payment.Payment, err error) error {
	if s.metrics != nil {
		s.metrics.PaymentErrors.WithLabelValues("initiate", errorType(err)).Inc()
	}
	s.countInitiation(method, "error")

	var (
		ve *domainErrors.ValidationError
		de *domainErrors.DomainError
	)
	switch {
	case errors.As(err, &ve):
		return ve
	case errors.Is(err, domainErrors.ErrUnsupportedMethod):
		return domainErrors.ErrUnsupportedMethod
	case errors.Is(err, domainErrors.ErrDuplicateReference):
		return domainErrors.ErrDuplicateReference
	case errors.Is(err, domainErrors.ErrGatewayMisconfigured), errors.Is(err, domainErrors.ErrProviderUnavailable):
		if errors.As(err, &de) {
			return de
		}
	}

	ev := s.logger.Error().Err(err)
	if p != nil {
		ev = ev.Str("payment_id", p.ID.String()).Str("reference", p.Reference)
	}
	ev.Msg("Payment initiation failed")

	return domainErrors.NewDomainError("gateway_unavailable",
		"payment gateway is unavailable, please try again", domainErrors.ErrGatewayUnavailable)
}

var nonDigits = regexp.MustCompile(`\D`)

func (s *PaymentService) customerSnapshot(req InitiatePaymentRequest) payment.Customer {
	phone := kpay.FormatPhoneNumber(strings.TrimSpace(req.CustomerPhone))
	email := strings.TrimSpace(req.CustomerEmail)
	if email == "" {
		local := nonDigits.ReplaceAllString(phone, "")
		if local == "" {
			local = fmt.Sprintf("%d", s.now().UnixMilli())
		}
		email = fmt.Sprintf("guest_%s@guest.%s", local, s.cfg.GuestEmailDomain)
	}
	return payment.Customer{
		Name:  strings.TrimSpace(req.CustomerName),
		Email: email,
		Phone: phone,
	}
}

// statusPageURL is the gateway redirect target. Customers always land on the
// status page, which forwards to next once the payment settles.
func (s *PaymentService) statusPageURL(paymentID uuid.UUID, next string) string {
	if next == "" {
		next = s.cfg.AppBaseURL + "/checkout/success"
	}
	q := url.Values{}
	q.Set("paymentId", paymentID.String())
	q.Set("next", next)
	return s.cfg.AppBaseURL + "/payment/status?" + q.Encode()
}

func paymentDetails(p *payment.Payment) string {
	if p.OrderID != nil && *p.OrderID != "" {
		return "Order " + *p.OrderID
	}
	return "Payment " + p.Reference
}

func initiateResponse(p *payment.Payment, checkoutURL string) *InitiatePaymentResponse {
	if checkoutURL == "" {
		checkoutURL = providers.ExtractCheckoutURL(p.GatewayResponse)
	}
	resp := &InitiatePaymentResponse{
		PaymentID:   p.ID.String(),
		Reference:   p.Reference,
		CheckoutURL: checkoutURL,
		Status:      p.Status,
	}
	if p.GatewayTransactionID != nil {
		resp.TransactionID = *p.GatewayTransactionID
	}
	return resp
}

// GetPayment returns an attempt with its audit trail.
func (s *PaymentService) GetPayment(ctx context.Context, id uuid.UUID) (*PaymentDetails, error) {
	p, err := s.paymentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	events, err := s.paymentRepo.GetEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PaymentDetails{Payment: p, Events: events}, nil
}

// ListPayments lists attempts for the back office.
func (s *PaymentService) ListPayments(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, error) {
	return s.paymentRepo.List(ctx, filter.Normalized())
}

func (s *PaymentService) countInitiation(method payment.Method, outcome string) {
	if s.metrics != nil {
		s.metrics.PaymentsInitiated.WithLabelValues(string(method), outcome).Inc()
	}
}

func (s *PaymentService) countTransition(status payment.Status, source string) {
	if s.metrics != nil {
		s.metrics.PaymentStatusTransitions.WithLabelValues(string(status), source).Inc()
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, domainErrors.ErrGatewayMisconfigured):
		return "misconfigured"
	case errors.Is(err, domainErrors.ErrProviderUnavailable):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, domainErrors.ErrProviderTimeout):
		return "timeout"
	case errors.Is(err, domainErrors.ErrDuplicateReference):
		return "duplicate_reference"
	default:
		return "gateway_error"
	}
}

// Abandon flags a pending attempt as given up by the client so the order can
// be paid with a new attempt inside the in-flight window. The attempt itself
// stays pending until the gateway settles it.
func (s *PaymentService) Abandon(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	p, err := s.paymentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != payment.StatusPending || p.ClientTimeout {
		return p, nil
	}
	p.ClientTimeout = true
	p.UpdatedAt = s.now()
	if err := s.paymentRepo.Update(ctx, p); err != nil {
		return nil, err
	}
	log := observability.PaymentLogger(s.logger, p.ID.String(), p.Reference)
	log.Info().Msg("Payment abandoned by client")
	return p, nil
}
