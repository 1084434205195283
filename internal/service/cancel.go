package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/punchamoorthee/pointops/internal/models"
	"github.com/punchamoorthee/pointops/internal/store"
)

// CancelEarn reverses an earn lot that has not been drawn from at all.
func (s *PointService) CancelEarn(ctx context.Context, req *models.CancelEarnRequest, idempotencyKey string) (*Result, error) {
	return s.execute(ctx, "cancel_earn", idempotencyKey, func(tx store.Tx, now time.Time) (any, error) {
		if req.PointKey == "" {
			return nil, errInvalidRequest("pointKey is required")
		}

		original, err := tx.GetTransactionByPointKey(ctx, req.PointKey)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, errPointKeyNotFound(req.PointKey)
			}
			return nil, err
		}
		if original.Type != models.TypeEarn {
			return nil, errPointKeyNotFound(req.PointKey)
		}

		used := original.Amount - original.AvailableBalance
		if used > 0 {
			return nil, errCannotCancelUsedPoint(req.PointKey, used, original.Amount)
		}

		cancelLot := &models.PointTransaction{
			PointKey:          s.keys.Next(),
			UserID:            original.UserID,
			Type:              models.TypeCancelEarn,
			Amount:            original.Amount,
			AvailableBalance:  0,
			ReferencePointKey: req.PointKey,
			Description:       req.Reason,
			CreatedAt:         now,
		}
		if err := tx.InsertTransaction(ctx, cancelLot); err != nil {
			return nil, err
		}

		// Already equal to the full amount, forced to zero so the lot can
		// never fund a later use.
		original.AvailableBalance = 0
		if err := tx.UpdateTransaction(ctx, original); err != nil {
			return nil, err
		}

		summary, err := tx.GetSummaryForUpdate(ctx, original.UserID)
		if err != nil {
			return nil, fmt.Errorf("summary missing for user %s: %w", original.UserID, err)
		}
		summary.TotalBalance -= original.Amount
		if err := tx.UpdateSummary(ctx, summary); err != nil {
			return nil, err
		}

		return &models.CancelEarnResponse{
			CancelPointKey:   cancelLot.PointKey,
			OriginalPointKey: req.PointKey,
			CanceledAmount:   original.Amount,
			TotalBalance:     summary.TotalBalance,
			CanceledAt:       now,
		}, nil
	})
}

// CancelUse reverses part or all of a use. Ledger rows whose earn lot has
// expired since the draw are handled first, in draw order, by re-issuing
// the lot's entire original amount as a fresh lot; still-valid rows are
// then restored in place in reverse draw order, so the most recent draw is
// given back first. Expiry is judged at cancellation time, not use time.
func (s *PointService) CancelUse(ctx context.Context, req *models.CancelUseRequest, idempotencyKey string) (*Result, error) {
	return s.execute(ctx, "cancel_use", idempotencyKey, func(tx store.Tx, now time.Time) (any, error) {
		if req.UsePointKey == "" && req.OrderNumber == "" {
			return nil, errInvalidRequest("usePointKey or orderNumber is required")
		}
		if req.Amount < 1 {
			return nil, errInvalidAmount(req.Amount)
		}

		useLot, err := s.lookupUseLot(ctx, tx, req)
		if err != nil {
			return nil, err
		}

		ledgers, err := tx.ListLedgersByUsePointKey(ctx, useLot.PointKey)
		if err != nil {
			return nil, err
		}
		if len(ledgers) == 0 {
			return nil, fmt.Errorf("no ledger rows for use %s", useLot.PointKey)
		}

		var alreadyCanceled int64
		for _, ledger := range ledgers {
			alreadyCanceled += ledger.CanceledAmount
		}
		availableToCancel := useLot.Amount - alreadyCanceled
		if req.Amount > availableToCancel {
			return nil, errExceedOriginalUseAmount(useLot.Amount, req.Amount, alreadyCanceled)
		}

		earnLots := make(map[string]*models.PointTransaction, len(ledgers))
		for _, ledger := range ledgers {
			if _, ok := earnLots[ledger.EarnPointKey]; ok {
				continue
			}
			earn, err := tx.GetTransactionByPointKey(ctx, ledger.EarnPointKey)
			if err != nil {
				return nil, fmt.Errorf("earn lot %s missing for use %s: %w", ledger.EarnPointKey, useLot.PointKey, err)
			}
			earnLots[ledger.EarnPointKey] = earn
		}

		remaining := req.Amount
		var restored []models.RestoredPointDetail
		var newlyEarned []models.NewlyEarnedPointDetail

		// Pass 1: expired lots, draw order. An expired lot cannot be
		// restored in place, so its usage is reversed by issuing the
		// original earn amount as a brand-new lot.
		for _, ledger := range ledgers {
			if remaining <= 0 {
				break
			}
			rowAvailable := ledger.UsedAmount - ledger.CanceledAmount
			if rowAvailable <= 0 {
				continue
			}
			earn := earnLots[ledger.EarnPointKey]
			if !earn.ExpiredAt(now) {
				continue
			}

			portion := min(remaining, rowAvailable)
			newExpiration := now.AddDate(0, 0, s.cfg.DefaultExpirationDays(ctx))
			reissued := &models.PointTransaction{
				PointKey:         s.keys.Next(),
				UserID:           useLot.UserID,
				Type:             models.TypeEarn,
				Amount:           earn.Amount,
				AvailableBalance: earn.Amount,
				ExpirationDate:   &newExpiration,
				Description:      fmt.Sprintf("re-issued by use cancellation (original %s expired)", ledger.EarnPointKey),
				CreatedAt:        now,
			}
			if err := tx.InsertTransaction(ctx, reissued); err != nil {
				return nil, err
			}
			newlyEarned = append(newlyEarned, models.NewlyEarnedPointDetail{
				PointKey:       reissued.PointKey,
				Amount:         earn.Amount,
				ExpirationDate: newExpiration,
			})

			ledger.CanceledAmount += portion
			if err := tx.UpdateLedger(ctx, ledger); err != nil {
				return nil, err
			}
			remaining -= portion
		}

		// Pass 2: still-valid lots, reverse draw order.
		for i := len(ledgers) - 1; i >= 0 && remaining > 0; i-- {
			ledger := ledgers[i]
			rowAvailable := ledger.UsedAmount - ledger.CanceledAmount
			if rowAvailable <= 0 {
				continue
			}
			earn := earnLots[ledger.EarnPointKey]
			if earn.ExpiredAt(now) {
				continue
			}

			portion := min(remaining, rowAvailable)
			earn.AvailableBalance += portion
			if err := tx.UpdateTransaction(ctx, earn); err != nil {
				return nil, err
			}
			ledger.CanceledAmount += portion
			if err := tx.UpdateLedger(ctx, ledger); err != nil {
				return nil, err
			}
			restored = append(restored, models.RestoredPointDetail{
				EarnPointKey:   ledger.EarnPointKey,
				RestoredAmount: portion,
				IsExpired:      false,
			})
			remaining -= portion
		}

		if remaining > 0 {
			return nil, fmt.Errorf("cancellation shortfall for use %s: %d of %d not covered by ledger rows",
				useLot.PointKey, remaining, req.Amount)
		}

		cancelLot := &models.PointTransaction{
			PointKey:          s.keys.Next(),
			UserID:            useLot.UserID,
			Type:              models.TypeCancelUse,
			Amount:            req.Amount,
			AvailableBalance:  0,
			ReferencePointKey: useLot.PointKey,
			Description:       req.Reason,
			CreatedAt:         now,
		}
		if err := tx.InsertTransaction(ctx, cancelLot); err != nil {
			return nil, err
		}

		summary, err := tx.GetSummaryForUpdate(ctx, useLot.UserID)
		if err != nil {
			return nil, fmt.Errorf("summary missing for user %s: %w", useLot.UserID, err)
		}
		summary.TotalBalance += req.Amount
		if err := tx.UpdateSummary(ctx, summary); err != nil {
			return nil, err
		}

		if restored == nil {
			restored = []models.RestoredPointDetail{}
		}
		if newlyEarned == nil {
			newlyEarned = []models.NewlyEarnedPointDetail{}
		}
		return &models.CancelUseResponse{
			CancelUsePointKey:   cancelLot.PointKey,
			OriginalUsePointKey: useLot.PointKey,
			CanceledAmount:      req.Amount,
			TotalBalance:        summary.TotalBalance,
			RestoredPoints:      restored,
			NewlyEarnedPoints:   newlyEarned,
			CanceledAt:          now,
		}, nil
	})
}

// lookupUseLot resolves the target USE row by point key or order number.
// A key that resolves to a non-USE row is reported as not found.
func (s *PointService) lookupUseLot(ctx context.Context, tx store.Tx, req *models.CancelUseRequest) (*models.PointTransaction, error) {
	identifier := req.UsePointKey
	var lot *models.PointTransaction
	var err error
	if req.UsePointKey != "" {
		lot, err = tx.GetTransactionByPointKey(ctx, req.UsePointKey)
	} else {
		identifier = req.OrderNumber
		lot, err = tx.GetTransactionByOrderNumber(ctx, req.OrderNumber)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errPointKeyNotFound(identifier)
		}
		return nil, err
	}
	if lot.Type != models.TypeUse {
		return nil, errPointKeyNotFound(identifier)
	}
	return lot, nil
}
