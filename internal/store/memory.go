package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/punchamoorthee/pointops/internal/models"
)

// Memory is an in-process Store with the same optimistic-version semantics
// as the Postgres store. It backs memory fallback mode and the test suite:
// transactions buffer their writes and validate row versions at commit, so
// concurrent units of work race exactly as they do against Postgres.
type Memory struct {
	mu           sync.Mutex
	nextID       int64
	transactions map[string]*models.PointTransaction // by point key
	byOrder      map[string]string                   // order number -> point key (USE rows)
	ledgers      []*models.PointLedger
	summaries    map[string]*models.UserPointSummary // by user id
	idempotency  map[string]*models.IdempotencyRecord
	configs      map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[string]*models.PointTransaction),
		byOrder:      make(map[string]string),
		summaries:    make(map[string]*models.UserPointSummary),
		idempotency:  make(map[string]*models.IdempotencyRecord),
		configs:      make(map[string]string),
	}
}

// SetConfigValue seeds a system config key. Used by tests and memory mode.
func (m *Memory) SetConfigValue(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[key] = value
}

// ForceExpire rewrites a lot's expiration date in place, bypassing version
// checks. Test hook for exercising expired-lot cancellation paths.
func (m *Memory) ForceExpire(pointKey string, at time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.transactions[pointKey]
	if !ok {
		return false
	}
	exp := at
	row.ExpirationDate = &exp
	return true
}

func cloneTransaction(t *models.PointTransaction) *models.PointTransaction {
	c := *t
	if t.ExpirationDate != nil {
		exp := *t.ExpirationDate
		c.ExpirationDate = &exp
	}
	return &c
}

func cloneLedger(l *models.PointLedger) *models.PointLedger {
	c := *l
	return &c
}

func cloneSummary(s *models.UserPointSummary) *models.UserPointSummary {
	c := *s
	return &c
}

func cloneRecord(r *models.IdempotencyRecord) *models.IdempotencyRecord {
	c := *r
	c.ResponseBody = append([]byte(nil), r.ResponseBody...)
	return &c
}

type versionedWrite[T any] struct {
	row      T
	expected int64
}

type memTx struct {
	m *Memory

	insTransactions []*models.PointTransaction
	updTransactions []versionedWrite[*models.PointTransaction]
	insLedgers      []*models.PointLedger
	updLedgers      []*models.PointLedger
	insSummaries    []*models.UserPointSummary
	updSummaries    []versionedWrite[*models.UserPointSummary]
	insRecords      []*models.IdempotencyRecord
}

// WithinTx runs fn against a buffered view and commits its writes under the
// store lock, failing the whole unit with ErrVersionConflict or
// ErrDuplicateKey when validation trips.
func (m *Memory) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memTx{m: m}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

func (tx *memTx) commit() error {
	m := tx.m
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ins := range tx.insTransactions {
		if _, ok := m.transactions[ins.PointKey]; ok {
			return ErrDuplicateKey
		}
		if ins.Type == models.TypeUse && ins.OrderNumber != "" {
			if _, ok := m.byOrder[ins.OrderNumber]; ok {
				return ErrDuplicateKey
			}
		}
	}
	for _, ins := range tx.insSummaries {
		if _, ok := m.summaries[ins.UserID]; ok {
			return ErrDuplicateKey
		}
	}
	for _, ins := range tx.insRecords {
		if _, ok := m.idempotency[ins.IdempotencyKey]; ok {
			return ErrDuplicateKey
		}
	}
	for _, upd := range tx.updTransactions {
		current, ok := m.transactions[upd.row.PointKey]
		if !ok {
			return ErrNotFound
		}
		if current.Version != upd.expected {
			return ErrVersionConflict
		}
	}
	for _, upd := range tx.updSummaries {
		current, ok := m.summaries[upd.row.UserID]
		if !ok {
			return ErrNotFound
		}
		if current.Version != upd.expected {
			return ErrVersionConflict
		}
	}
	for _, upd := range tx.updLedgers {
		if upd.ID <= 0 || int(upd.ID) > len(m.ledgers) {
			return ErrNotFound
		}
	}

	now := time.Now()
	for _, ins := range tx.insTransactions {
		m.nextID++
		row := cloneTransaction(ins)
		row.ID = m.nextID
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		row.UpdatedAt = row.CreatedAt
		row.Version = 1
		m.transactions[row.PointKey] = row
		if row.Type == models.TypeUse && row.OrderNumber != "" {
			m.byOrder[row.OrderNumber] = row.PointKey
		}
	}
	for _, upd := range tx.updTransactions {
		current := m.transactions[upd.row.PointKey]
		current.AvailableBalance = upd.row.AvailableBalance
		current.Version++
		current.UpdatedAt = now
	}
	for _, ins := range tx.insLedgers {
		row := cloneLedger(ins)
		row.ID = int64(len(m.ledgers) + 1)
		row.CreatedAt = now
		row.UpdatedAt = now
		m.ledgers = append(m.ledgers, row)
	}
	for _, upd := range tx.updLedgers {
		current := m.ledgers[upd.ID-1]
		current.CanceledAmount = upd.CanceledAmount
		current.UpdatedAt = now
	}
	for _, ins := range tx.insSummaries {
		m.nextID++
		row := cloneSummary(ins)
		row.ID = m.nextID
		row.Version = 1
		row.UpdatedAt = now
		m.summaries[row.UserID] = row
	}
	for _, upd := range tx.updSummaries {
		current := m.summaries[upd.row.UserID]
		current.TotalBalance = upd.row.TotalBalance
		current.Version++
		current.UpdatedAt = now
	}
	for _, ins := range tx.insRecords {
		m.nextID++
		row := cloneRecord(ins)
		row.ID = m.nextID
		m.idempotency[row.IdempotencyKey] = row
	}
	return nil
}

func (tx *memTx) GetTransactionByPointKey(ctx context.Context, pointKey string) (*models.PointTransaction, error) {
	return tx.m.getTransactionByPointKey(pointKey)
}

func (tx *memTx) GetTransactionByOrderNumber(ctx context.Context, orderNumber string) (*models.PointTransaction, error) {
	m := tx.m
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.byOrder[orderNumber]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTransaction(m.transactions[key]), nil
}

func (tx *memTx) ListAvailableEarnLots(ctx context.Context, userID string, now time.Time) ([]*models.PointTransaction, error) {
	return tx.m.ListAvailableEarnLots(ctx, userID, now)
}

func (tx *memTx) InsertTransaction(ctx context.Context, row *models.PointTransaction) error {
	tx.insTransactions = append(tx.insTransactions, cloneTransaction(row))
	return nil
}

func (tx *memTx) UpdateTransaction(ctx context.Context, row *models.PointTransaction) error {
	tx.updTransactions = append(tx.updTransactions, versionedWrite[*models.PointTransaction]{
		row:      cloneTransaction(row),
		expected: row.Version,
	})
	return nil
}

func (tx *memTx) InsertLedger(ctx context.Context, ledger *models.PointLedger) error {
	tx.insLedgers = append(tx.insLedgers, cloneLedger(ledger))
	return nil
}

func (tx *memTx) ListLedgersByUsePointKey(ctx context.Context, usePointKey string) ([]*models.PointLedger, error) {
	m := tx.m
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PointLedger
	for _, l := range m.ledgers {
		if l.UsePointKey == usePointKey {
			out = append(out, cloneLedger(l))
		}
	}
	return out, nil
}

func (tx *memTx) UpdateLedger(ctx context.Context, ledger *models.PointLedger) error {
	tx.updLedgers = append(tx.updLedgers, cloneLedger(ledger))
	return nil
}

func (tx *memTx) GetSummary(ctx context.Context, userID string) (*models.UserPointSummary, error) {
	return tx.m.GetSummary(ctx, userID)
}

func (tx *memTx) GetSummaryForUpdate(ctx context.Context, userID string) (*models.UserPointSummary, error) {
	// No row locks in memory mode; the commit-time version check is the
	// only guard, which is sufficient for correctness.
	return tx.m.GetSummary(ctx, userID)
}

func (tx *memTx) InsertSummary(ctx context.Context, summary *models.UserPointSummary) error {
	tx.insSummaries = append(tx.insSummaries, cloneSummary(summary))
	return nil
}

func (tx *memTx) UpdateSummary(ctx context.Context, summary *models.UserPointSummary) error {
	tx.updSummaries = append(tx.updSummaries, versionedWrite[*models.UserPointSummary]{
		row:      cloneSummary(summary),
		expected: summary.Version,
	})
	return nil
}

func (tx *memTx) GetIdempotencyRecord(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	return tx.m.GetIdempotencyRecord(ctx, key)
}

func (tx *memTx) InsertIdempotencyRecord(ctx context.Context, record *models.IdempotencyRecord) error {
	tx.insRecords = append(tx.insRecords, cloneRecord(record))
	return nil
}

func (m *Memory) getTransactionByPointKey(pointKey string) (*models.PointTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.transactions[pointKey]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTransaction(row), nil
}

func (m *Memory) GetSummary(ctx context.Context, userID string) (*models.UserPointSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.summaries[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSummary(row), nil
}

func (m *Memory) GetIdempotencyRecord(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.idempotency[key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(row), nil
}

func (m *Memory) ListAvailableEarnLots(ctx context.Context, userID string, now time.Time) ([]*models.PointTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var lots []*models.PointTransaction
	for _, row := range m.transactions {
		if row.UserID != userID || row.Type != models.TypeEarn {
			continue
		}
		if row.AvailableBalance <= 0 {
			continue
		}
		if row.ExpirationDate == nil || !row.ExpirationDate.After(now) {
			continue
		}
		lots = append(lots, cloneTransaction(row))
	}
	sort.Slice(lots, func(i, j int) bool {
		a, b := lots[i], lots[j]
		if a.IsManualGrant != b.IsManualGrant {
			return a.IsManualGrant
		}
		if !a.ExpirationDate.Equal(*b.ExpirationDate) {
			return a.ExpirationDate.Before(*b.ExpirationDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return strings.Compare(a.PointKey, b.PointKey) < 0
	})
	return lots, nil
}

func (m *Memory) ListTransactionsByUser(ctx context.Context, userID string, limit, offset int) ([]*models.PointTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []*models.PointTransaction
	for _, row := range m.transactions {
		if row.UserID == userID {
			rows = append(rows, cloneTransaction(row))
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m *Memory) CountTransactionsByUser(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, row := range m.transactions {
		if row.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) GetConfigValue(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.configs[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (m *Memory) DeleteExpiredIdempotencyRecords(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, rec := range m.idempotency {
		if rec.ExpiresAt.Before(now) {
			delete(m.idempotency, key)
			n++
		}
	}
	return n, nil
}
