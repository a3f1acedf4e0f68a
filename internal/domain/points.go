package domain

import "time"

type TransactionType string

const (
	TransactionEarn       TransactionType = "earn"
	TransactionRedeem     TransactionType = "redeem"
	TransactionAdjustment TransactionType = "adjustment"
)

// ReferenceType names what caused a points transaction.
type ReferenceType string

const (
	ReferenceOrder  ReferenceType = "order"
	ReferenceReward ReferenceType = "reward"
	ReferenceNone   ReferenceType = "none"
)

type Reference struct {
	Type ReferenceType `json:"type"`
	ID   int64         `json:"id,omitempty"`
}

func OrderReference(orderID int64) Reference {
	return Reference{Type: ReferenceOrder, ID: orderID}
}

// PointsTransaction is one entry in a customer's ledger. Points are positive
// for earn and negative for redeem.
type PointsTransaction struct {
	ID          int64           `json:"id"`
	CustomerID  int64           `json:"customer_id"`
	Points      int64           `json:"points"`
	Type        TransactionType `json:"type"`
	Description string          `json:"description"`
	Reference   Reference       `json:"reference"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Balance is derived from a customer's transactions.
type Balance struct {
	CustomerID       int64 `json:"customer_id"`
	Points           int64 `json:"points"`
	Value            Money `json:"value"`
	LifetimeEarned   int64 `json:"lifetime_earned"`
	LifetimeRedeemed int64 `json:"lifetime_redeemed"`
}

// SumPoints folds transactions into a balance.
func SumPoints(customerID int64, txs []PointsTransaction, pointValue Money) Balance {
	b := Balance{CustomerID: customerID}
	for _, tx := range txs {
		b.Points += tx.Points
		switch {
		case tx.Type == TransactionEarn:
			b.LifetimeEarned += tx.Points
		case tx.Type == TransactionRedeem:
			b.LifetimeRedeemed -= tx.Points
		}
	}
	b.Value = PointsValue(b.Points, pointValue)
	return b
}

// PointsValue converts points to money at pointValue per point.
func PointsValue(points int64, pointValue Money) Money {
	if points <= 0 {
		return 0
	}
	return pointValue * Money(points)
}
