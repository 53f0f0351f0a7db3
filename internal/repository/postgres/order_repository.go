package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/ikazeshop/payments/internal/domain/errors"
	"github.com/ikazeshop/payments/internal/domain/order"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderRepository reads storefront orders and writes only their payment columns.
type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	o := &order.Order{}
	var (
		totalStr      string
		paymentStatus *string
		customerPhone *string
	)
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, total, status, payment_status, is_paid, customer_phone, updated_at
		 FROM orders WHERE id = $1`, id,
	).Scan(&o.ID, &totalStr, &o.Status, &paymentStatus, &o.IsPaid, &customerPhone, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	total, err := numericToDecimal(totalStr)
	if err != nil {
		return nil, fmt.Errorf("parse order total: %w", err)
	}
	o.Total = total
	if paymentStatus != nil {
		ps := order.PaymentStatus(*paymentStatus)
		o.PaymentStatus = &ps
	}
	if customerPhone != nil {
		o.CustomerPhone = *customerPhone
	}
	return o, nil
}

// UpdatePaymentStatus sets payment_status, is_paid and updated_at. The order
// lifecycle status is left alone.
func (r *OrderRepository) UpdatePaymentStatus(ctx context.Context, id string, status order.PaymentStatus, isPaid bool, at time.Time) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE orders SET payment_status = $1, is_paid = $2, updated_at = $3 WHERE id = $4`,
		string(status), isPaid, at, id,
	)
	if err != nil {
		return fmt.Errorf("update order payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrOrderNotFound
	}
	return nil
}
