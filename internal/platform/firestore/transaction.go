package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

// TxFunc runs inside a Firestore transaction. ctx carries tx for TxFromContext.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

type txSettings struct {
	attempts int
	timeout  time.Duration
}

type TxOption func(*txSettings)

// WithTxAttempts caps how many times Firestore retries a contended transaction.
func WithTxAttempts(n int) TxOption {
	return func(s *txSettings) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithTxTimeout bounds the whole transaction including retries. A caller deadline that is
// already shorter wins.
func WithTxTimeout(d time.Duration) TxOption {
	return func(s *txSettings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

type txKey struct{}

func TxFromContext(ctx context.Context) (*firestore.Transaction, bool) {
	tx, ok := ctx.Value(txKey{}).(*firestore.Transaction)
	return tx, ok && tx != nil
}

// RunTransaction runs fn in a transaction on client. Nested calls join the transaction
// already on ctx.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	switch {
	case client == nil:
		return WrapError("transaction", errors.New("firestore: nil client"))
	case fn == nil:
		return WrapError("transaction", errors.New("firestore: nil transaction func"))
	}
	if tx, ok := TxFromContext(ctx); ok {
		return fn(ctx, tx)
	}

	s := txSettings{attempts: 5, timeout: 15 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > s.timeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	err := client.RunTransaction(ctx, func(txCtx context.Context, tx *firestore.Transaction) error {
		return fn(context.WithValue(txCtx, txKey{}, tx), tx)
	}, firestore.MaxAttempts(s.attempts))
	return WrapError("transaction", err)
}

// UnitOfWork runs repository calls in one Firestore transaction. Firestore rejects reads
// after writes in a transaction, so callers load everything before mutating.
type UnitOfWork struct {
	provider *Provider
	opts     []TxOption
}

func NewUnitOfWork(provider *Provider, opts ...TxOption) *UnitOfWork {
	return &UnitOfWork{provider: provider, opts: opts}
}

func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if u == nil || u.provider == nil {
		return WrapError("transaction", errors.New("firestore: nil provider"))
	}
	return u.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	}, u.opts...)
}
