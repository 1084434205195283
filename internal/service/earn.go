package service

import (
	"context"
	"time"

	"github.com/punchamoorthee/pointops/internal/models"
	"github.com/punchamoorthee/pointops/internal/store"
)

// Earn creates a new earn lot and credits the user's balance.
//
// Validation order: positive amount, per-transaction cap, expiration-days
// range (default substituted when omitted), then the per-user balance cap
// against the cached summary.
func (s *PointService) Earn(ctx context.Context, req *models.EarnRequest, idempotencyKey string) (*Result, error) {
	return s.execute(ctx, "earn", idempotencyKey, func(tx store.Tx, now time.Time) (any, error) {
		if req.UserID == "" {
			return nil, errInvalidRequest("userId is required")
		}
		if req.Amount < 1 {
			return nil, errInvalidAmount(req.Amount)
		}

		maxEarn := s.cfg.MaxEarnPerTransaction(ctx)
		if req.Amount > maxEarn {
			return nil, errExceedMaxEarnLimit(req.Amount, maxEarn)
		}

		expirationDays, err := s.resolveExpirationDays(ctx, req.ExpirationDays)
		if err != nil {
			return nil, err
		}

		summary, isNew, err := getOrNewSummary(ctx, tx, req.UserID)
		if err != nil {
			return nil, err
		}

		maxBalance := s.cfg.MaxBalancePerUser(ctx)
		newTotalBalance := summary.TotalBalance + req.Amount
		if newTotalBalance > maxBalance {
			return nil, errExceedUserMaxBalance(summary.TotalBalance, maxBalance, req.Amount)
		}

		expirationDate := now.AddDate(0, 0, expirationDays)
		lot := &models.PointTransaction{
			PointKey:         s.keys.Next(),
			UserID:           req.UserID,
			Type:             models.TypeEarn,
			Amount:           req.Amount,
			AvailableBalance: req.Amount,
			IsManualGrant:    req.IsManualGrant,
			ExpirationDate:   &expirationDate,
			Description:      req.Description,
			CreatedAt:        now,
		}
		if err := tx.InsertTransaction(ctx, lot); err != nil {
			return nil, err
		}

		summary.TotalBalance = newTotalBalance
		if isNew {
			err = tx.InsertSummary(ctx, summary)
		} else {
			err = tx.UpdateSummary(ctx, summary)
		}
		if err != nil {
			return nil, err
		}

		return &models.EarnResponse{
			PointKey:         lot.PointKey,
			UserID:           req.UserID,
			Amount:           req.Amount,
			AvailableBalance: req.Amount,
			TotalBalance:     newTotalBalance,
			ExpirationDate:   expirationDate,
			IsManualGrant:    req.IsManualGrant,
			CreatedAt:        now,
		}, nil
	})
}

// resolveExpirationDays substitutes the configured default when days is nil
// and otherwise enforces the configured min/max range.
func (s *PointService) resolveExpirationDays(ctx context.Context, days *int) (int, error) {
	if days == nil {
		return s.cfg.DefaultExpirationDays(ctx), nil
	}
	minDays := s.cfg.MinExpirationDays(ctx)
	maxDays := s.cfg.MaxExpirationDays(ctx)
	if *days < minDays || *days > maxDays {
		return 0, errInvalidExpirationDays(*days, minDays, maxDays)
	}
	return *days, nil
}
