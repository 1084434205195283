package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/pointops/internal/models"
)

func earnLot(key, userID string, amount int64, manual bool, expiresIn time.Duration) *models.PointTransaction {
	exp := time.Now().Add(expiresIn)
	return &models.PointTransaction{
		PointKey:         key,
		UserID:           userID,
		Type:             models.TypeEarn,
		Amount:           amount,
		AvailableBalance: amount,
		IsManualGrant:    manual,
		ExpirationDate:   &exp,
		CreatedAt:        time.Now(),
	}
}

func TestMemoryInsertAndReadBack(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	err := m.WithinTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.InsertTransaction(ctx, earnLot("PT1", "u1", 100, false, time.Hour)))
		return tx.InsertSummary(ctx, &models.UserPointSummary{UserID: "u1", TotalBalance: 100})
	})
	require.NoError(t, err)

	summary, err := m.GetSummary(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(100), summary.TotalBalance)
	require.Equal(t, int64(1), summary.Version)

	_, err = m.GetSummary(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryDuplicateInsertsFailWholeTx(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	seed := func() error {
		return m.WithinTx(ctx, func(tx Tx) error {
			return tx.InsertTransaction(ctx, earnLot("PT1", "u1", 100, false, time.Hour))
		})
	}
	require.NoError(t, seed())
	require.ErrorIs(t, seed(), ErrDuplicateKey)

	err := m.WithinTx(ctx, func(tx Tx) error {
		return tx.InsertIdempotencyRecord(ctx, &models.IdempotencyRecord{
			IdempotencyKey: "idem-1",
			ResponseBody:   []byte(`{}`),
			HTTPStatus:     200,
			ExpiresAt:      time.Now().Add(time.Hour),
		})
	})
	require.NoError(t, err)

	// The duplicate record fails the transaction, and its other writes
	// must not land.
	err = m.WithinTx(ctx, func(tx Tx) error {
		if err := tx.InsertTransaction(ctx, earnLot("PT2", "u1", 50, false, time.Hour)); err != nil {
			return err
		}
		return tx.InsertIdempotencyRecord(ctx, &models.IdempotencyRecord{
			IdempotencyKey: "idem-1",
			ResponseBody:   []byte(`{}`),
			HTTPStatus:     200,
			ExpiresAt:      time.Now().Add(time.Hour),
		})
	})
	require.ErrorIs(t, err, ErrDuplicateKey)

	err = m.WithinTx(ctx, func(tx Tx) error {
		_, err := tx.GetTransactionByPointKey(ctx, "PT2")
		require.ErrorIs(t, err, ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.WithinTx(ctx, func(tx Tx) error {
		return tx.InsertSummary(ctx, &models.UserPointSummary{UserID: "u1", TotalBalance: 100})
	}))

	// Read the summary, let a concurrent unit of work bump it, then try to
	// write through the stale version.
	err := m.WithinTx(ctx, func(tx Tx) error {
		stale, err := tx.GetSummary(ctx, "u1")
		require.NoError(t, err)

		require.NoError(t, m.WithinTx(ctx, func(other Tx) error {
			current, err := other.GetSummary(ctx, "u1")
			require.NoError(t, err)
			current.TotalBalance = 150
			return other.UpdateSummary(ctx, current)
		}))

		stale.TotalBalance = 200
		return tx.UpdateSummary(ctx, stale)
	})
	require.ErrorIs(t, err, ErrVersionConflict)

	summary, err := m.GetSummary(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(150), summary.TotalBalance)
}

func TestMemoryListAvailableEarnLotsOrdering(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.WithinTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.InsertTransaction(ctx, earnLot("PT-regular-late", "u1", 100, false, 30*24*time.Hour)))
		require.NoError(t, tx.InsertTransaction(ctx, earnLot("PT-regular-soon", "u1", 100, false, 10*24*time.Hour)))
		require.NoError(t, tx.InsertTransaction(ctx, earnLot("PT-manual", "u1", 100, true, 365*24*time.Hour)))
		require.NoError(t, tx.InsertTransaction(ctx, earnLot("PT-expired", "u1", 100, false, -time.Hour)))
		drained := earnLot("PT-drained", "u1", 100, false, 24*time.Hour)
		drained.AvailableBalance = 0
		require.NoError(t, tx.InsertTransaction(ctx, drained))
		return tx.InsertTransaction(ctx, earnLot("PT-other-user", "u2", 100, true, 24*time.Hour))
	}))

	lots, err := m.ListAvailableEarnLots(ctx, "u1", time.Now())
	require.NoError(t, err)

	keys := make([]string, len(lots))
	for i, lot := range lots {
		keys[i] = lot.PointKey
	}
	require.Equal(t, []string{"PT-manual", "PT-regular-soon", "PT-regular-late"}, keys)
}

func TestMemoryDeleteExpiredIdempotencyRecords(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.WithinTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.InsertIdempotencyRecord(ctx, &models.IdempotencyRecord{
			IdempotencyKey: "old",
			ResponseBody:   []byte(`{}`),
			HTTPStatus:     200,
			ExpiresAt:      time.Now().Add(-time.Minute),
		}))
		return tx.InsertIdempotencyRecord(ctx, &models.IdempotencyRecord{
			IdempotencyKey: "fresh",
			ResponseBody:   []byte(`{}`),
			HTTPStatus:     200,
			ExpiresAt:      time.Now().Add(time.Hour),
		})
	}))

	deleted, err := m.DeleteExpiredIdempotencyRecords(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	_, err = m.GetIdempotencyRecord(ctx, "old")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = m.GetIdempotencyRecord(ctx, "fresh")
	require.NoError(t, err)
}
