package interfaces

import (
	"context"
	"time"

	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/google/uuid"
)

// OrderMutation changes a locked order in place and describes what else must
// be written in the same transaction.
type OrderMutation func(order *domain.Order) (*OrderChange, error)

type OrderChange struct {
	StatusLog     *domain.StatusLog
	NewPromotions []domain.AppliedPromotion
	Outbox        []domain.OutboxMessage
}

// Интерфейсы Репозиториев (Adapter/Postgres)
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id int64) (*domain.Order, error)
	GenerateOrderNumber(ctx context.Context) (string, error)
	GetStatusHistory(ctx context.Context, orderID int64) ([]*domain.StatusLog, error)
	// UpdateLocked loads the order with a row lock, applies mutate and
	// commits the order together with the returned change.
	UpdateLocked(ctx context.Context, orderID int64, mutate OrderMutation) (*domain.Order, error)
}

type PromotionRepository interface {
	FindByID(ctx context.Context, id int64) (*domain.Promotion, error)
	CountUsages(ctx context.Context, promotionID int64) (int, error)
	ReleaseUsages(ctx context.Context, orderID int64) (int64, error)
}

type RedeemRequest struct {
	CustomerID  int64
	OrderID     int64
	Points      int64
	Credit      domain.Money
	Description string
}

// RedeemCheck runs inside the redemption transaction with the customer's
// account and the order locked. balance is the current derived balance.
type RedeemCheck func(order *domain.Order, balance int64) error

type RedeemResult struct {
	Transaction domain.PointsTransaction
	Order       *domain.Order
	Balance     int64
}

type PointsRepository interface {
	// Earn records a positive transaction. It returns false when the same
	// earn for the same reference was already recorded.
	Earn(ctx context.Context, tx *domain.PointsTransaction) (bool, error)
	Redeem(ctx context.Context, req RedeemRequest, check RedeemCheck) (*RedeemResult, error)
	Balance(ctx context.Context, customerID int64) (domain.Balance, error)
	History(ctx context.Context, customerID int64, limit, offset int) ([]domain.PointsTransaction, error)
	FindTransaction(ctx context.Context, id int64) (*domain.PointsTransaction, error)
}

type RewardRepository interface {
	FindProduct(ctx context.Context, id int64) (*domain.ProductReward, error)
	// FindVariant also reports whether the parent product is active.
	FindVariant(ctx context.Context, id int64) (*domain.VariantReward, bool, error)
	FindCombo(ctx context.Context, id int64) (*domain.ComboReward, error)
	ListActive(ctx context.Context) ([]domain.Reward, error)
}

type OutboxRepository interface {
	// Claim leases up to limit due messages so that concurrent relays skip them.
	Claim(ctx context.Context, limit int, lease time.Duration) ([]domain.OutboxMessage, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, retryAt time.Time, lastErr string, dead bool) error
}
