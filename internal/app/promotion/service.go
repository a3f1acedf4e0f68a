package promotion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/YelzhanWeb/tablehub/internal/adapter/logger"
	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("tablehub/promotion")

type Service struct {
	orderRepo interfaces.OrderRepository
	promoRepo interfaces.PromotionRepository
	logger    logger.Logger
	now       func() time.Time
}

func NewService(orderRepo interfaces.OrderRepository, promoRepo interfaces.PromotionRepository, logger logger.Logger) *Service {
	return &Service{
		orderRepo: orderRepo,
		promoRepo: promoRepo,
		logger:    logger,
		now:       time.Now,
	}
}

// ApplyPromotion evaluates a promotion against a pending order and snapshots
// the discount onto it. Applying a promotion that is already on the order
// returns the order unchanged.
func (s *Service) ApplyPromotion(ctx context.Context, orderID, promotionID int64) (*domain.Order, domain.DiscountResult, error) {
	ctx, span := tracer.Start(ctx, "promotion.ApplyPromotion")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", orderID), attribute.Int64("promotion.id", promotionID))

	promo, err := s.promoRepo.FindByID(ctx, promotionID)
	if err != nil {
		return nil, domain.DiscountResult{}, err
	}

	if exhausted, err := s.exhausted(ctx, promo); err != nil {
		return nil, domain.DiscountResult{}, err
	} else if exhausted {
		return s.unchanged(ctx, orderID, domain.NotApplied(promo, "usage limit reached"))
	}

	now := s.now()
	var result domain.DiscountResult

	order, err := s.orderRepo.UpdateLocked(ctx, orderID, func(order *domain.Order) (*interfaces.OrderChange, error) {
		if order.Status != domain.StatusPending {
			return nil, &domain.InvalidOrderError{OrderID: order.ID, Reason: "promotions can only be applied to pending orders"}
		}

		result = Evaluate(order, promo, now)
		if !result.Applied {
			return nil, nil
		}

		applied := Snapshot(promo, result, now)
		order.ApplyPromotion(applied)
		order.UpdatedAt = now

		return &interfaces.OrderChange{NewPromotions: []domain.AppliedPromotion{applied}}, nil
	})
	if errors.Is(err, domain.ErrPromotionExhausted) {
		return s.unchanged(ctx, orderID, domain.NotApplied(promo, "usage limit reached"))
	}
	if err != nil {
		return nil, domain.DiscountResult{}, err
	}

	if result.Applied {
		s.logger.Debug("promotion_applied", fmt.Sprintf("Promotion %d applied to order %d", promo.ID, order.ID), "", map[string]interface{}{
			"order_id":     order.ID,
			"promotion_id": promo.ID,
			"discount":     result.Discount.String(),
		})
	} else {
		s.logger.Debug("promotion_skipped", result.Reason, "", map[string]interface{}{
			"order_id":     order.ID,
			"promotion_id": promo.ID,
			"type":         promo.Type,
		})
	}

	return order, result, nil
}

// ApplyAtCheckout applies promotions to an order that is being placed and
// returns the snapshots that were added. Unknown types and repeated ids
// leave the order unchanged.
func ApplyAtCheckout(order *domain.Order, promos []*domain.Promotion, now time.Time) []domain.DiscountResult {
	results := make([]domain.DiscountResult, 0, len(promos))
	for _, promo := range promos {
		result := Evaluate(order, promo, now)
		if result.Applied {
			order.ApplyPromotion(Snapshot(promo, result, now))
		}
		results = append(results, result)
	}
	return results
}

func (s *Service) exhausted(ctx context.Context, promo *domain.Promotion) (bool, error) {
	if promo.MaxUses == nil {
		return false, nil
	}
	used, err := s.promoRepo.CountUsages(ctx, promo.ID)
	if err != nil {
		return false, fmt.Errorf("failed to count promotion usages: %w", err)
	}
	return used >= *promo.MaxUses, nil
}

func (s *Service) unchanged(ctx context.Context, orderID int64, result domain.DiscountResult) (*domain.Order, domain.DiscountResult, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, domain.DiscountResult{}, err
	}
	return order, result, nil
}
