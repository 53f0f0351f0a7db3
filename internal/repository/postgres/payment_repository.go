package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	domainErrors "github.com/ikazeshop/payments/internal/domain/errors"
	"github.com/ikazeshop/payments/internal/domain/payment"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const paymentColumns = `id, reference, order_id, amount, currency, payment_method,
		customer_name, customer_email, customer_phone,
		gateway_transaction_id, gateway_auth_key, gateway_return_code, gateway_response, gateway_mom_transaction_id,
		status, failure_reason, client_timeout, cart, created_at, updated_at, completed_at`

// allowedSortColumns is a whitelist of columns valid for ORDER BY.
var allowedSortColumns = map[string]string{
	"created_at": "created_at",
	"amount":     "amount",
	"status":     "status",
	"updated_at": "updated_at",
}

// PaymentRepository implements payment.Repository using PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// CreateOrGet inserts p. If another request already stored the same
// reference, that row is returned with created=false.
func (r *PaymentRepository) CreateOrGet(ctx context.Context, p *payment.Payment) (*payment.Payment, bool, error) {
	gatewayResponse, err := marshalObject(p.GatewayResponse)
	if err != nil {
		return nil, false, fmt.Errorf("marshal gateway response: %w", err)
	}

	tag, err := r.db(ctx).Exec(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		 ON CONFLICT (reference) DO NOTHING`,
		p.ID, p.Reference, p.OrderID, decimalToNumeric(p.Amount), p.Currency, string(p.Method),
		p.Customer.Name, p.Customer.Email, p.Customer.Phone,
		p.GatewayTransactionID, p.GatewayAuthKey, p.GatewayReturnCode, gatewayResponse, p.GatewayMomTransactionID,
		string(p.Status), p.FailureReason, p.ClientTimeout, nullableJSON(p.Cart), p.CreatedAt, p.UpdatedAt, p.CompletedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, false, domainErrors.ErrDuplicateReference
		}
		return nil, false, fmt.Errorf("insert payment: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return p, true, nil
	}

	existing, err := r.GetByReference(ctx, p.Reference)
	if err != nil {
		return nil, false, fmt.Errorf("fetch conflicting payment: %w", err)
	}
	return existing, false, nil
}

// GetByID retrieves a payment by its ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return r.scanPayment(r.db(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

// GetByReference retrieves a payment by its reference.
func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*payment.Payment, error) {
	return r.scanPayment(r.db(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE reference = $1`, reference))
}

// GetByTransactionID retrieves the newest payment carrying the gateway transaction id.
func (r *PaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*payment.Payment, error) {
	return r.scanPayment(r.db(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE gateway_transaction_id = $1
		 ORDER BY created_at DESC LIMIT 1`, transactionID))
}

// FindLatestPendingForOrder returns the newest pending attempt the client has not abandoned.
func (r *PaymentRepository) FindLatestPendingForOrder(ctx context.Context, orderID string) (*payment.Payment, error) {
	return r.scanPayment(r.db(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE order_id = $1 AND status = 'pending' AND client_timeout = FALSE
		 ORDER BY created_at DESC LIMIT 1`, orderID))
}

// FindCompletedForOrder returns a completed attempt for the order. Legacy
// "successful" rows count as completed.
func (r *PaymentRepository) FindCompletedForOrder(ctx context.Context, orderID string) (*payment.Payment, error) {
	return r.scanPayment(r.db(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE order_id = $1 AND status IN ('completed', 'successful')
		 ORDER BY created_at DESC LIMIT 1`, orderID))
}

// Update writes the gateway linkage and status fields of an existing payment.
func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	gatewayResponse, err := marshalObject(p.GatewayResponse)
	if err != nil {
		return fmt.Errorf("marshal gateway response: %w", err)
	}

	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payments SET
		  gateway_transaction_id=$1, gateway_auth_key=$2, gateway_return_code=$3,
		  gateway_response=$4, gateway_mom_transaction_id=$5,
		  status=$6, failure_reason=$7, client_timeout=$8, updated_at=$9, completed_at=$10
		 WHERE id=$11`,
		p.GatewayTransactionID, p.GatewayAuthKey, p.GatewayReturnCode,
		gatewayResponse, p.GatewayMomTransactionID,
		string(p.Status), p.FailureReason, p.ClientTimeout, p.UpdatedAt, p.CompletedAt,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrPaymentNotFound
	}
	return nil
}

// List lists payments with optional filters.
func (r *PaymentRepository) List(ctx context.Context, f payment.ListFilter) ([]*payment.Payment, error) {
	query, args := buildListQuery(f)

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	return r.collect(rows)
}

// ListStalePending returns pending, non-abandoned attempts created before the cutoff, oldest first.
func (r *PaymentRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*payment.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE status = 'pending' AND client_timeout = FALSE AND created_at < $1
		 ORDER BY created_at ASC LIMIT $2`, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale payments: %w", err)
	}
	defer rows.Close()

	return r.collect(rows)
}

// AddEvent inserts a payment event.
func (r *PaymentRepository) AddEvent(ctx context.Context, event *payment.PaymentEvent) error {
	data, err := json.Marshal(event.EventData)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO payment_events (id, payment_id, event_type, event_data, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.PaymentID, event.EventType, data, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment event: %w", err)
	}
	return nil
}

// GetEvents retrieves events for a payment.
func (r *PaymentRepository) GetEvents(ctx context.Context, paymentID uuid.UUID) ([]*payment.PaymentEvent, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, payment_id, event_type, event_data, created_at
		 FROM payment_events WHERE payment_id = $1 ORDER BY created_at ASC`, paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list payment events: %w", err)
	}
	defer rows.Close()

	var events []*payment.PaymentEvent
	for rows.Next() {
		e := &payment.PaymentEvent{}
		var data []byte
		if err := rows.Scan(&e.ID, &e.PaymentID, &e.EventType, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal(data, &e.EventData); err != nil {
			return nil, fmt.Errorf("unmarshal event data: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// buildListQuery renders the admin listing query with positional args.
func buildListQuery(f payment.ListFilter) (string, []any) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.OrderID != nil {
		query += fmt.Sprintf(" AND order_id = $%d", argIdx)
		args = append(args, *f.OrderID)
		argIdx++
	}
	if f.Status != nil {
		if *f.Status == payment.StatusCompleted {
			query += fmt.Sprintf(" AND status IN ($%d, 'successful')", argIdx)
		} else {
			query += fmt.Sprintf(" AND status = $%d", argIdx)
		}
		args = append(args, string(*f.Status))
		argIdx++
	}
	if f.Method != nil {
		query += fmt.Sprintf(" AND payment_method = $%d", argIdx)
		args = append(args, string(*f.Method))
		argIdx++
	}

	// Strict whitelist for sort column
	sortBy := "created_at"
	if col, ok := allowedSortColumns[f.SortBy]; ok {
		sortBy = col
	}
	sortOrder := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		sortOrder = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", sortBy, sortOrder)

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	return query, args
}

// --- scanning helpers ---

func (r *PaymentRepository) collect(rows pgx.Rows) ([]*payment.Payment, error) {
	var payments []*payment.Payment
	for rows.Next() {
		p, err := r.scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// scanPayment scans a payment from any source implementing the scanner interface.
func (r *PaymentRepository) scanPayment(s scanner) (*payment.Payment, error) {
	p := &payment.Payment{}
	var (
		amountStr       string
		method          string
		status          string
		gatewayResponse []byte
		cart            []byte
	)
	err := s.Scan(
		&p.ID, &p.Reference, &p.OrderID, &amountStr, &p.Currency, &method,
		&p.Customer.Name, &p.Customer.Email, &p.Customer.Phone,
		&p.GatewayTransactionID, &p.GatewayAuthKey, &p.GatewayReturnCode, &gatewayResponse, &p.GatewayMomTransactionID,
		&status, &p.FailureReason, &p.ClientTimeout, &cart, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	amount, err := numericToDecimal(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	p.Amount = amount
	p.Method = payment.Method(method)
	p.Status = payment.ParseStatus(status)

	p.GatewayResponse = make(map[string]any)
	if len(gatewayResponse) > 0 {
		if err := json.Unmarshal(gatewayResponse, &p.GatewayResponse); err != nil {
			return nil, fmt.Errorf("unmarshal gateway response: %w", err)
		}
	}
	if len(cart) > 0 {
		p.Cart = json.RawMessage(cart)
	}
	return p, nil
}

func marshalObject(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func nullableJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
