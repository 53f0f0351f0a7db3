package service

import (
	"context"

	"github.com/ikazeshop/payments/internal/domain/outbox"
)

// TransactionManager defines the interface for transaction management.
// Services use this to wrap multiple repository operations in a single transaction.
type TransactionManager interface {
	// WithTransaction executes the given function within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// Otherwise, it is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker serializes work on one key across processes. WithLock returns
// errors.ErrLockAcquisitionFailed without running fn when the key is held.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// EventPublisher delivers outbox entries to downstream consumers.
type EventPublisher interface {
	PublishOutboxEntry(ctx context.Context, entry *outbox.Entry) error
}
