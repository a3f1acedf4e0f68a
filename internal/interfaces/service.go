package interfaces

import (
	"context"
	"errors"

	"github.com/YelzhanWeb/tablehub/internal/domain"
)

// Команды для сервисов
type PlaceOrderCommand struct {
	CustomerID   int64
	RestaurantID int64
	ServiceType  string
	Items        []PlaceOrderItemCommand
	PromotionIDs []int64
}

type PlaceOrderItemCommand struct {
	ProductID int64
	VariantID *int64
	Name      string
	Quantity  int
	UnitPrice domain.Money
	Options   []domain.SelectedOption
}

// NotifyOptions controls the optional side effects of a status change. The
// broadcast itself is always emitted.
type NotifyOptions struct {
	Customer bool
}

type UpdateStatusCommand struct {
	OrderID   int64
	NewStatus domain.Status
	Note      string
	Actor     string
	Notify    NotifyOptions
}

type RedeemCommand struct {
	CustomerID     int64
	OrderID        int64
	Points         int64
	IdempotencyKey string
}

type RedeemOutcome struct {
	Transaction domain.PointsTransaction
	Balance     domain.Balance
	Replayed    bool
}

// Интерфейсы Сервисов (Business Logic)
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (*domain.Order, error)
}

type StatusService interface {
	UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (*domain.Order, error)
}

type PromotionService interface {
	ApplyPromotion(ctx context.Context, orderID, promotionID int64) (*domain.Order, domain.DiscountResult, error)
}

type TrackingService interface {
	GetOrder(ctx context.Context, orderID int64) (*domain.Order, error)
	GetOrderHistory(ctx context.Context, orderID int64) ([]*domain.StatusLog, error)
}

type PointsService interface {
	Redeem(ctx context.Context, cmd RedeemCommand) (*RedeemOutcome, error)
	Balance(ctx context.Context, customerID int64) (domain.Balance, error)
	History(ctx context.Context, customerID int64, limit, offset int) ([]domain.PointsTransaction, error)
}

type RewardService interface {
	ResolveReward(ctx context.Context, rewardType domain.RewardType, id int64) (domain.RewardView, error)
	Catalog(ctx context.Context) ([]domain.RewardView, error)
}

// Кэш и идемпотентность (Adapter/Redis)
var ErrCacheMiss = errors.New("cache miss")

type CatalogCache interface {
	GetCatalog(ctx context.Context) ([]domain.RewardView, error)
	SetCatalog(ctx context.Context, views []domain.RewardView) error
}

// IdempotencyStore remembers request keys. Claim returns claimed=false and
// the stored result when the key is already taken; an empty result means
// the first request is still running.
type IdempotencyStore interface {
	Claim(ctx context.Context, key string) (result string, claimed bool, err error)
	Complete(ctx context.Context, key, result string) error
	Release(ctx context.Context, key string) error
}
