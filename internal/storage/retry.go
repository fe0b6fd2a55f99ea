package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"marketchat/backend/internal/metrics"
	"marketchat/backend/internal/models"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// RetryPolicy bounds every store call. Attempts counts the first try.
type RetryPolicy struct {
	Timeout  time.Duration
	Attempts int
	Backoff  time.Duration
}

// ResilientStore puts a deadline on every call to the wrapped store and
// retries failures that are safe to repeat. Reads are retried on any error;
// Append only when the statement provably never reached the server, so a
// retry can not insert the same message twice.
type ResilientStore struct {
	store  MessageStore
	policy RetryPolicy
	logger *zap.Logger
}

func NewResilientStore(store MessageStore, policy RetryPolicy, logger *zap.Logger) *ResilientStore {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResilientStore{store: store, policy: policy, logger: logger}
}

func (r *ResilientStore) Append(ctx context.Context, p AppendParams) (*models.Message, error) {
	var msg *models.Message
	err := r.do(ctx, "append", safeToRetryWrite, func(ctx context.Context) error {
		var err error
		msg, err = r.store.Append(ctx, p)
		return err
	})
	return msg, err
}

func (r *ResilientStore) History(ctx context.Context, a, b string) ([]models.Message, error) {
	var rows []models.Message
	err := r.do(ctx, "history", retryRead, func(ctx context.Context) error {
		var err error
		rows, err = r.store.History(ctx, a, b)
		return err
	})
	return rows, err
}

func (r *ResilientStore) Latest(ctx context.Context, a, b string) (*models.Message, error) {
	var msg *models.Message
	err := r.do(ctx, "latest", retryRead, func(ctx context.Context) error {
		var err error
		msg, err = r.store.Latest(ctx, a, b)
		return err
	})
	return msg, err
}

func (r *ResilientStore) FindMessage(ctx context.Context, id uint64) (*models.Message, error) {
	var msg *models.Message
	err := r.do(ctx, "find", retryRead, func(ctx context.Context) error {
		var err error
		msg, err = r.store.FindMessage(ctx, id)
		return err
	})
	return msg, err
}

func (r *ResilientStore) do(ctx context.Context, op string, retryable func(error) bool, fn func(context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		callCtx, cancel := r.callContext(ctx)
		start := time.Now()
		err = fn(callCtx)
		cancel()
		metrics.StorageLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())

		if err == nil {
			return nil
		}
		if ctx.Err() != nil || attempt >= r.policy.Attempts || !retryable(err) {
			break
		}

		metrics.StorageRetries.WithLabelValues(op).Inc()
		r.logger.Warn("retrying store call",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if !sleep(ctx, r.policy.Backoff*time.Duration(attempt)) {
			break
		}
	}
	return persistenceError(op, err)
}

func (r *ResilientStore) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.policy.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.policy.Timeout)
}

func retryRead(error) bool { return true }

func safeToRetryWrite(err error) bool {
	return pgconn.SafeToRetry(err) || errors.Is(err, driver.ErrBadConn)
}

// sleep waits for d or until ctx ends. It reports whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
