package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/punchamoorthee/pointops/internal/models"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
)

// Postgres is the pgx-backed Store. Units of work run as RepeatableRead
// transactions; optimistic versions are enforced with version-guarded
// UPDATEs, and unique violations map to ErrDuplicateKey.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a pool and verifies it with a ping.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrDuplicateKey
		case pgSerializationFailure:
			return ErrVersionConflict
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (p *Postgres) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	pgtx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer pgtx.Rollback(ctx)

	if err := fn(&pgTx{tx: pgtx}); err != nil {
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return mapPgError(err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const transactionColumns = `id, point_key, user_id, transaction_type, amount, available_balance,
	is_manual_grant, expiration_date, order_number, reference_point_key, description,
	version, created_at, updated_at`

func scanTransaction(row pgx.Row) (*models.PointTransaction, error) {
	var t models.PointTransaction
	var orderNumber, referenceKey, description *string
	err := row.Scan(&t.ID, &t.PointKey, &t.UserID, &t.Type, &t.Amount, &t.AvailableBalance,
		&t.IsManualGrant, &t.ExpirationDate, &orderNumber, &referenceKey, &description,
		&t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	if orderNumber != nil {
		t.OrderNumber = *orderNumber
	}
	if referenceKey != nil {
		t.ReferencePointKey = *referenceKey
	}
	if description != nil {
		t.Description = *description
	}
	return &t, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func getTransactionBy(ctx context.Context, q querier, column, value string) (*models.PointTransaction, error) {
	return scanTransaction(q.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM point_transactions WHERE `+column+` = $1`, value))
}

func listAvailableEarnLots(ctx context.Context, q querier, userID string, now time.Time) ([]*models.PointTransaction, error) {
	rows, err := q.Query(ctx,
		`SELECT `+transactionColumns+` FROM point_transactions
		 WHERE user_id = $1 AND transaction_type = 'EARN'
		   AND available_balance > 0 AND expiration_date > $2
		 ORDER BY is_manual_grant DESC, expiration_date ASC, created_at ASC, id ASC`,
		userID, now)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var lots []*models.PointTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, t)
	}
	return lots, rows.Err()
}

func (t *pgTx) GetTransactionByPointKey(ctx context.Context, pointKey string) (*models.PointTransaction, error) {
	return getTransactionBy(ctx, t.tx, "point_key", pointKey)
}

func (t *pgTx) GetTransactionByOrderNumber(ctx context.Context, orderNumber string) (*models.PointTransaction, error) {
	return getTransactionBy(ctx, t.tx, "order_number", orderNumber)
}

func (t *pgTx) ListAvailableEarnLots(ctx context.Context, userID string, now time.Time) ([]*models.PointTransaction, error) {
	return listAvailableEarnLots(ctx, t.tx, userID, now)
}

func (t *pgTx) InsertTransaction(ctx context.Context, row *models.PointTransaction) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO point_transactions
		   (point_key, user_id, transaction_type, amount, available_balance, is_manual_grant,
		    expiration_date, order_number, reference_point_key, description, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $11, $11)
		 RETURNING id`,
		row.PointKey, row.UserID, row.Type, row.Amount, row.AvailableBalance, row.IsManualGrant,
		row.ExpirationDate, nullable(row.OrderNumber), nullable(row.ReferencePointKey),
		nullable(row.Description), row.CreatedAt,
	).Scan(&row.ID)
	if err != nil {
		return mapPgError(err)
	}
	row.Version = 1
	row.UpdatedAt = row.CreatedAt
	return nil
}

func (t *pgTx) UpdateTransaction(ctx context.Context, row *models.PointTransaction) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE point_transactions
		    SET available_balance = $1, version = version + 1, updated_at = now()
		  WHERE point_key = $2 AND version = $3`,
		row.AvailableBalance, row.PointKey, row.Version)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	row.Version++
	return nil
}

func (t *pgTx) InsertLedger(ctx context.Context, ledger *models.PointLedger) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO point_ledgers (use_point_key, earn_point_key, used_amount, canceled_amount, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, now(), now())
		 RETURNING id, created_at, updated_at`,
		ledger.UsePointKey, ledger.EarnPointKey, ledger.UsedAmount, ledger.CanceledAmount,
	).Scan(&ledger.ID, &ledger.CreatedAt, &ledger.UpdatedAt)
	return mapPgError(err)
}

func (t *pgTx) ListLedgersByUsePointKey(ctx context.Context, usePointKey string) ([]*models.PointLedger, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, use_point_key, earn_point_key, used_amount, canceled_amount, created_at, updated_at
		   FROM point_ledgers WHERE use_point_key = $1 ORDER BY id ASC`, usePointKey)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var ledgers []*models.PointLedger
	for rows.Next() {
		var l models.PointLedger
		if err := rows.Scan(&l.ID, &l.UsePointKey, &l.EarnPointKey, &l.UsedAmount,
			&l.CanceledAmount, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		ledgers = append(ledgers, &l)
	}
	return ledgers, rows.Err()
}

func (t *pgTx) UpdateLedger(ctx context.Context, ledger *models.PointLedger) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE point_ledgers SET canceled_amount = $1, updated_at = now() WHERE id = $2`,
		ledger.CanceledAmount, ledger.ID)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const summaryColumns = `id, user_id, total_balance, version, updated_at`

func scanSummary(row pgx.Row) (*models.UserPointSummary, error) {
	var s models.UserPointSummary
	if err := row.Scan(&s.ID, &s.UserID, &s.TotalBalance, &s.Version, &s.UpdatedAt); err != nil {
		return nil, mapPgError(err)
	}
	return &s, nil
}

func (t *pgTx) GetSummary(ctx context.Context, userID string) (*models.UserPointSummary, error) {
	return scanSummary(t.tx.QueryRow(ctx,
		`SELECT `+summaryColumns+` FROM user_point_summaries WHERE user_id = $1`, userID))
}

func (t *pgTx) GetSummaryForUpdate(ctx context.Context, userID string) (*models.UserPointSummary, error) {
	return scanSummary(t.tx.QueryRow(ctx,
		`SELECT `+summaryColumns+` FROM user_point_summaries WHERE user_id = $1 FOR UPDATE`, userID))
}

func (t *pgTx) InsertSummary(ctx context.Context, summary *models.UserPointSummary) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO user_point_summaries (user_id, total_balance, version, updated_at)
		 VALUES ($1, $2, 1, now())
		 RETURNING id, updated_at`,
		summary.UserID, summary.TotalBalance,
	).Scan(&summary.ID, &summary.UpdatedAt)
	if err != nil {
		return mapPgError(err)
	}
	summary.Version = 1
	return nil
}

func (t *pgTx) UpdateSummary(ctx context.Context, summary *models.UserPointSummary) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE user_point_summaries
		    SET total_balance = $1, version = version + 1, updated_at = now()
		  WHERE user_id = $2 AND version = $3`,
		summary.TotalBalance, summary.UserID, summary.Version)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	summary.Version++
	return nil
}

func scanIdempotencyRecord(row pgx.Row) (*models.IdempotencyRecord, error) {
	var r models.IdempotencyRecord
	err := row.Scan(&r.ID, &r.IdempotencyKey, &r.ResponseBody, &r.HTTPStatus, &r.CreatedAt, &r.ExpiresAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	return &r, nil
}

const idempotencyColumns = `id, idempotency_key, response_body, http_status, created_at, expires_at`

func (t *pgTx) GetIdempotencyRecord(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	return scanIdempotencyRecord(t.tx.QueryRow(ctx,
		`SELECT `+idempotencyColumns+` FROM idempotency_records WHERE idempotency_key = $1`, key))
}

func (t *pgTx) InsertIdempotencyRecord(ctx context.Context, record *models.IdempotencyRecord) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO idempotency_records (idempotency_key, response_body, http_status, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		record.IdempotencyKey, record.ResponseBody, record.HTTPStatus, record.CreatedAt, record.ExpiresAt,
	).Scan(&record.ID)
	return mapPgError(err)
}

// Pool-level read paths.

func (p *Postgres) GetIdempotencyRecord(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	return scanIdempotencyRecord(p.pool.QueryRow(ctx,
		`SELECT `+idempotencyColumns+` FROM idempotency_records WHERE idempotency_key = $1`, key))
}

func (p *Postgres) GetSummary(ctx context.Context, userID string) (*models.UserPointSummary, error) {
	return scanSummary(p.pool.QueryRow(ctx,
		`SELECT `+summaryColumns+` FROM user_point_summaries WHERE user_id = $1`, userID))
}

func (p *Postgres) ListAvailableEarnLots(ctx context.Context, userID string, now time.Time) ([]*models.PointTransaction, error) {
	return listAvailableEarnLots(ctx, p.pool, userID, now)
}

func (p *Postgres) ListTransactionsByUser(ctx context.Context, userID string, limit, offset int) ([]*models.PointTransaction, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM point_transactions
		  WHERE user_id = $1
		  ORDER BY created_at DESC, id DESC
		  LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var out []*models.PointTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) CountTransactionsByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM point_transactions WHERE user_id = $1`, userID).Scan(&n)
	return n, mapPgError(err)
}

func (p *Postgres) GetConfigValue(ctx context.Context, key string) (string, error) {
	var value string
	err := p.pool.QueryRow(ctx,
		`SELECT config_value FROM system_configs WHERE config_key = $1`, key).Scan(&value)
	if err != nil {
		return "", mapPgError(err)
	}
	return value, nil
}

func (p *Postgres) DeleteExpiredIdempotencyRecords(ctx context.Context, now time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM idempotency_records WHERE expires_at < $1`, now)
	if err != nil {
		return 0, mapPgError(err)
	}
	return tag.RowsAffected(), nil
}
