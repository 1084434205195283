package service

import (
	"context"
	"errors"

	"github.com/punchamoorthee/pointops/internal/models"
	"github.com/punchamoorthee/pointops/internal/store"
)

const defaultHistoryPageSize = 20

// GetBalance returns the user's cached total plus the spendable lots in
// allocation order. An unknown user reads as a zero balance.
func (s *PointService) GetBalance(ctx context.Context, userID string) (*models.BalanceResponse, error) {
	if userID == "" {
		return nil, errInvalidRequest("userId is required")
	}

	var totalBalance int64
	summary, err := s.store.GetSummary(ctx, userID)
	if err == nil {
		totalBalance = summary.TotalBalance
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, errInternal()
	}

	lots, err := s.store.ListAvailableEarnLots(ctx, userID, s.now())
	if err != nil {
		return nil, errInternal()
	}

	available := make([]models.AvailablePointDetail, 0, len(lots))
	for _, lot := range lots {
		available = append(available, models.AvailablePointDetail{
			PointKey:         lot.PointKey,
			Amount:           lot.Amount,
			AvailableBalance: lot.AvailableBalance,
			IsManualGrant:    lot.IsManualGrant,
			ExpirationDate:   lot.ExpirationDate,
		})
	}

	return &models.BalanceResponse{
		UserID:          userID,
		TotalBalance:    totalBalance,
		AvailablePoints: available,
	}, nil
}

// GetHistory returns one newest-first page of the user's transactions.
func (s *PointService) GetHistory(ctx context.Context, userID string, page, size int) (*models.HistoryResponse, error) {
	if userID == "" {
		return nil, errInvalidRequest("userId is required")
	}
	if page < 0 {
		page = 0
	}
	if size < 1 {
		size = defaultHistoryPageSize
	}

	total, err := s.store.CountTransactionsByUser(ctx, userID)
	if err != nil {
		return nil, errInternal()
	}
	rows, err := s.store.ListTransactionsByUser(ctx, userID, size, page*size)
	if err != nil {
		return nil, errInternal()
	}

	transactions := make([]models.TransactionDetail, 0, len(rows))
	for _, row := range rows {
		transactions = append(transactions, models.TransactionDetail{
			PointKey:    row.PointKey,
			Type:        row.Type,
			Amount:      row.Amount,
			Balance:     row.AvailableBalance,
			OrderNumber: row.OrderNumber,
			Description: row.Description,
			CreatedAt:   row.CreatedAt,
		})
	}

	totalPages := int((total + int64(size) - 1) / int64(size))
	return &models.HistoryResponse{
		UserID:       userID,
		Transactions: transactions,
		Page: models.PageInfo{
			Number:        page,
			Size:          size,
			TotalElements: total,
			TotalPages:    totalPages,
		},
	}, nil
}
