package models

import "time"

// TransactionType tags a point transaction row with the event kind.
type TransactionType string

const (
	TypeEarn       TransactionType = "EARN"
	TypeCancelEarn TransactionType = "CANCEL_EARN"
	TypeUse        TransactionType = "USE"
	TypeCancelUse  TransactionType = "CANCEL_USE"
)

// Valid reports whether t is one of the four known event kinds.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeEarn, TypeCancelEarn, TypeUse, TypeCancelUse:
		return true
	}
	return false
}

// PointTransaction is one row of the point ledger: an earn lot, a use, or a
// cancellation of either. AvailableBalance is only meaningful for EARN rows;
// it is zero for every other kind.
type PointTransaction struct {
	ID                int64           `json:"-"`
	PointKey          string          `json:"pointKey"`
	UserID            string          `json:"userId"`
	Type              TransactionType `json:"type"`
	Amount            int64           `json:"amount"`
	AvailableBalance  int64           `json:"availableBalance"`
	IsManualGrant     bool            `json:"isManualGrant"`
	ExpirationDate    *time.Time      `json:"expirationDate,omitempty"`
	OrderNumber       string          `json:"orderNumber,omitempty"`
	ReferencePointKey string          `json:"referencePointKey,omitempty"`
	Description       string          `json:"description,omitempty"`
	Version           int64           `json:"-"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// ExpiredAt reports whether the lot's expiration has passed at the given
// instant. Rows without an expiration never expire.
func (t *PointTransaction) ExpiredAt(now time.Time) bool {
	return t.ExpirationDate != nil && t.ExpirationDate.Before(now)
}

// PointLedger attributes part of a USE transaction to the earn lot it drew
// from. Insertion order is the draw order and is significant for
// cancellation.
type PointLedger struct {
	ID             int64     `json:"-"`
	UsePointKey    string    `json:"usePointKey"`
	EarnPointKey   string    `json:"earnPointKey"`
	UsedAmount     int64     `json:"usedAmount"`
	CanceledAmount int64     `json:"canceledAmount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// UserPointSummary caches a user's total balance with an optimistic version.
type UserPointSummary struct {
	ID           int64     `json:"-"`
	UserID       string    `json:"userId"`
	TotalBalance int64     `json:"totalBalance"`
	Version      int64     `json:"-"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// IdempotencyRecord maps a client key to the response it produced.
type IdempotencyRecord struct {
	ID             int64
	IdempotencyKey string
	ResponseBody   []byte
	HTTPStatus     int
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// SystemConfig is one tunable limit stored as a key/value pair.
type SystemConfig struct {
	ID          int64
	ConfigKey   string
	ConfigValue string
	Description string
	UpdatedAt   time.Time
}
