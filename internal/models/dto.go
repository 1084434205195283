package models

import "time"

// EarnRequest is the payload for POST /api/v1/points/earn.
type EarnRequest struct {
	UserID         string `json:"userId"`
	Amount         int64  `json:"amount"`
	IsManualGrant  bool   `json:"isManualGrant"`
	ExpirationDays *int   `json:"expirationDays,omitempty"`
	Description    string `json:"description,omitempty"`
}

// EarnResponse reports the lot created by an earn.
type EarnResponse struct {
	PointKey         string    `json:"pointKey"`
	UserID           string    `json:"userId"`
	Amount           int64     `json:"amount"`
	AvailableBalance int64     `json:"availableBalance"`
	TotalBalance     int64     `json:"totalBalance"`
	ExpirationDate   time.Time `json:"expirationDate"`
	IsManualGrant    bool      `json:"isManualGrant"`
	CreatedAt        time.Time `json:"createdAt"`
}

// CancelEarnRequest is the payload for POST /api/v1/points/cancel-earn.
type CancelEarnRequest struct {
	PointKey string `json:"pointKey"`
	Reason   string `json:"reason,omitempty"`
}

// CancelEarnResponse reports a reversed earn lot.
type CancelEarnResponse struct {
	CancelPointKey   string    `json:"cancelPointKey"`
	OriginalPointKey string    `json:"originalPointKey"`
	CanceledAmount   int64     `json:"canceledAmount"`
	TotalBalance     int64     `json:"totalBalance"`
	CanceledAt       time.Time `json:"canceledAt"`
}

// UseRequest is the payload for POST /api/v1/points/use.
type UseRequest struct {
	UserID      string `json:"userId"`
	OrderNumber string `json:"orderNumber"`
	Amount      int64  `json:"amount"`
}

// UsedFromDetail is one leg of a use: the amount drawn from one earn lot.
type UsedFromDetail struct {
	EarnPointKey string `json:"earnPointKey"`
	UsedAmount   int64  `json:"usedAmount"`
}

// UseResponse reports a use and its per-lot draw breakdown.
type UseResponse struct {
	UsePointKey      string           `json:"usePointKey"`
	UserID           string           `json:"userId"`
	OrderNumber      string           `json:"orderNumber"`
	UsedAmount       int64            `json:"usedAmount"`
	RemainingBalance int64            `json:"remainingBalance"`
	UsedFrom         []UsedFromDetail `json:"usedFrom"`
	UsedAt           time.Time        `json:"usedAt"`
}

// CancelUseRequest is the payload for POST /api/v1/points/cancel-use.
// Exactly one of UsePointKey and OrderNumber identifies the use to reverse.
type CancelUseRequest struct {
	UsePointKey string `json:"usePointKey,omitempty"`
	OrderNumber string `json:"orderNumber,omitempty"`
	Amount      int64  `json:"amount"`
	Reason      string `json:"reason,omitempty"`
}

// RestoredPointDetail is balance given back in place on a still-valid lot.
type RestoredPointDetail struct {
	EarnPointKey   string `json:"earnPointKey"`
	RestoredAmount int64  `json:"restoredAmount"`
	IsExpired      bool   `json:"isExpired"`
}

// NewlyEarnedPointDetail is a fresh lot issued because the original lot had
// expired by the time its usage was canceled.
type NewlyEarnedPointDetail struct {
	PointKey       string    `json:"pointKey"`
	Amount         int64     `json:"amount"`
	ExpirationDate time.Time `json:"expirationDate"`
}

// CancelUseResponse reports a (possibly partial) use reversal.
type CancelUseResponse struct {
	CancelUsePointKey   string                   `json:"cancelUsePointKey"`
	OriginalUsePointKey string                   `json:"originalUsePointKey"`
	CanceledAmount      int64                    `json:"canceledAmount"`
	TotalBalance        int64                    `json:"totalBalance"`
	RestoredPoints      []RestoredPointDetail    `json:"restoredPoints"`
	NewlyEarnedPoints   []NewlyEarnedPointDetail `json:"newlyEarnedPoints"`
	CanceledAt          time.Time                `json:"canceledAt"`
}

// AvailablePointDetail is one spendable lot in a balance response.
type AvailablePointDetail struct {
	PointKey         string     `json:"pointKey"`
	Amount           int64      `json:"amount"`
	AvailableBalance int64      `json:"availableBalance"`
	IsManualGrant    bool       `json:"isManualGrant"`
	ExpirationDate   *time.Time `json:"expirationDate,omitempty"`
}

// BalanceResponse is the payload for GET /api/v1/points/balance/{userId}.
type BalanceResponse struct {
	UserID          string                 `json:"userId"`
	TotalBalance    int64                  `json:"totalBalance"`
	AvailablePoints []AvailablePointDetail `json:"availablePoints"`
}

// TransactionDetail is one history entry.
type TransactionDetail struct {
	PointKey    string          `json:"pointKey"`
	Type        TransactionType `json:"type"`
	Amount      int64           `json:"amount"`
	Balance     int64           `json:"balance"`
	OrderNumber string          `json:"orderNumber,omitempty"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// PageInfo describes one page of a paged listing.
type PageInfo struct {
	Number        int   `json:"number"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

// HistoryResponse is the payload for GET /api/v1/points/history/{userId}.
type HistoryResponse struct {
	UserID       string              `json:"userId"`
	Transactions []TransactionDetail `json:"transactions"`
	Page         PageInfo            `json:"page"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
}
