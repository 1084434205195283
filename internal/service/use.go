package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/punchamoorthee/pointops/internal/models"
	"github.com/punchamoorthee/pointops/internal/store"
)

// Use draws the requested amount from the user's spendable lots, manual
// grants first, then soonest-to-expire, then oldest. One ledger row is
// recorded per lot drawn, in draw order.
func (s *PointService) Use(ctx context.Context, req *models.UseRequest, idempotencyKey string) (*Result, error) {
	return s.execute(ctx, "use", idempotencyKey, func(tx store.Tx, now time.Time) (any, error) {
		if req.UserID == "" {
			return nil, errInvalidRequest("userId is required")
		}
		if req.OrderNumber == "" {
			return nil, errInvalidRequest("orderNumber is required")
		}
		if req.Amount < 1 {
			return nil, errInvalidAmount(req.Amount)
		}

		if _, err := tx.GetTransactionByOrderNumber(ctx, req.OrderNumber); err == nil {
			return nil, errDuplicateOrderNumber(req.OrderNumber)
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}

		// The cached summary is the authoritative balance check; the
		// optimistic version guard keeps it consistent with the draw-down
		// below.
		summary, err := tx.GetSummary(ctx, req.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, errInsufficientBalance(0, req.Amount)
			}
			return nil, err
		}
		if summary.TotalBalance < req.Amount {
			return nil, errInsufficientBalance(summary.TotalBalance, req.Amount)
		}

		lots, err := tx.ListAvailableEarnLots(ctx, req.UserID, now)
		if err != nil {
			return nil, err
		}
		if len(lots) == 0 {
			return nil, errInsufficientBalance(0, req.Amount)
		}

		remaining := req.Amount
		var usedFrom []models.UsedFromDetail
		for _, lot := range lots {
			if remaining <= 0 {
				break
			}
			draw := min(remaining, lot.AvailableBalance)
			lot.AvailableBalance -= draw
			if err := tx.UpdateTransaction(ctx, lot); err != nil {
				return nil, err
			}
			usedFrom = append(usedFrom, models.UsedFromDetail{
				EarnPointKey: lot.PointKey,
				UsedAmount:   draw,
			})
			remaining -= draw
		}
		if remaining > 0 {
			// The summary said the balance was there but the lots did not
			// cover it: the balance cache has diverged from the ledger.
			return nil, fmt.Errorf("allocation shortfall for user %s: summary %d, uncovered %d",
				req.UserID, summary.TotalBalance, remaining)
		}

		useLot := &models.PointTransaction{
			PointKey:         s.keys.Next(),
			UserID:           req.UserID,
			Type:             models.TypeUse,
			Amount:           req.Amount,
			AvailableBalance: 0,
			OrderNumber:      req.OrderNumber,
			Description:      fmt.Sprintf("points used for order %s", req.OrderNumber),
			CreatedAt:        now,
		}
		if err := tx.InsertTransaction(ctx, useLot); err != nil {
			return nil, err
		}

		for _, detail := range usedFrom {
			if err := tx.InsertLedger(ctx, &models.PointLedger{
				UsePointKey:  useLot.PointKey,
				EarnPointKey: detail.EarnPointKey,
				UsedAmount:   detail.UsedAmount,
			}); err != nil {
				return nil, err
			}
		}

		summary.TotalBalance -= req.Amount
		if err := tx.UpdateSummary(ctx, summary); err != nil {
			return nil, err
		}

		return &models.UseResponse{
			UsePointKey:      useLot.PointKey,
			UserID:           req.UserID,
			OrderNumber:      req.OrderNumber,
			UsedAmount:       req.Amount,
			RemainingBalance: summary.TotalBalance,
			UsedFrom:         usedFrom,
			UsedAt:           now,
		}, nil
	})
}
