// Package store defines the durable-store boundary the point service runs
// against, plus its Postgres and in-memory implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/punchamoorthee/pointops/internal/models"
)

var (
	// ErrNotFound is returned when a point read matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey is returned when an insert violates a unique
	// constraint (point key, idempotency key, order number, user summary).
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrVersionConflict is returned when a version-guarded write targets a
	// stale row. The caller is expected to retry the whole unit of work.
	ErrVersionConflict = errors.New("version conflict")
)

// Tx is one atomic unit of work. Every mutation buffered through a Tx
// commits together or not at all; version-guarded updates surface
// ErrVersionConflict at the latest on commit.
type Tx interface {
	GetTransactionByPointKey(ctx context.Context, pointKey string) (*models.PointTransaction, error)
	GetTransactionByOrderNumber(ctx context.Context, orderNumber string) (*models.PointTransaction, error)
	// ListAvailableEarnLots returns the user's spendable EARN lots in
	// allocation order: manual grants first, then soonest expiration, then
	// oldest issuance.
	ListAvailableEarnLots(ctx context.Context, userID string, now time.Time) ([]*models.PointTransaction, error)
	InsertTransaction(ctx context.Context, tx *models.PointTransaction) error
	// UpdateTransaction writes AvailableBalance/UpdatedAt guarded by the
	// row's version; the version is bumped on success.
	UpdateTransaction(ctx context.Context, tx *models.PointTransaction) error

	InsertLedger(ctx context.Context, ledger *models.PointLedger) error
	// ListLedgersByUsePointKey returns ledger rows in draw (insertion) order.
	ListLedgersByUsePointKey(ctx context.Context, usePointKey string) ([]*models.PointLedger, error)
	UpdateLedger(ctx context.Context, ledger *models.PointLedger) error

	GetSummary(ctx context.Context, userID string) (*models.UserPointSummary, error)
	// GetSummaryForUpdate additionally takes an exclusive row lock where the
	// backing store supports one, serializing concurrent cancellations.
	GetSummaryForUpdate(ctx context.Context, userID string) (*models.UserPointSummary, error)
	InsertSummary(ctx context.Context, summary *models.UserPointSummary) error
	// UpdateSummary writes TotalBalance/UpdatedAt guarded by the row's
	// version; the version is bumped on success.
	UpdateSummary(ctx context.Context, summary *models.UserPointSummary) error

	GetIdempotencyRecord(ctx context.Context, key string) (*models.IdempotencyRecord, error)
	InsertIdempotencyRecord(ctx context.Context, record *models.IdempotencyRecord) error
}

// Store is the durable store. Read-only queries run outside any transaction.
type Store interface {
	// WithinTx runs fn inside one atomic unit of work, committing on nil
	// and rolling back on error.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetIdempotencyRecord(ctx context.Context, key string) (*models.IdempotencyRecord, error)
	GetSummary(ctx context.Context, userID string) (*models.UserPointSummary, error)
	ListAvailableEarnLots(ctx context.Context, userID string, now time.Time) ([]*models.PointTransaction, error)
	ListTransactionsByUser(ctx context.Context, userID string, limit, offset int) ([]*models.PointTransaction, error)
	CountTransactionsByUser(ctx context.Context, userID string) (int64, error)
	GetConfigValue(ctx context.Context, key string) (string, error)
	DeleteExpiredIdempotencyRecords(ctx context.Context, now time.Time) (int64, error)
}
