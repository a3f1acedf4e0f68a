package promotion

import (
	"time"

	"github.com/YelzhanWeb/tablehub/internal/domain"
)

// Kind identifies one discount strategy.
type Kind uint8

const (
	TwoForOne Kind = iota + 1
	DailySpecial
	PercentageDiscount
	BundleSpecial
)

// strategies is the resolution order; the first kind that handles a type wins.
var strategies = [...]Kind{TwoForOne, DailySpecial, PercentageDiscount, BundleSpecial}

func (k Kind) String() string {
	switch k {
	case TwoForOne:
		return "two_for_one"
	case DailySpecial:
		return "daily_special"
	case PercentageDiscount:
		return "percentage_discount"
	case BundleSpecial:
		return "bundle_special"
	}
	return "unknown"
}

func (k Kind) CanHandle(t domain.PromotionType) bool {
	switch k {
	case TwoForOne:
		return t == domain.PromotionTwoForOne
	case DailySpecial:
		return t == domain.PromotionDailySpecial
	case PercentageDiscount:
		return t == domain.PromotionPercentageDiscount
	case BundleSpecial:
		return t == domain.PromotionBundleSpecial
	}
	return false
}

// Resolve finds the strategy for a promotion type. An unhandled type is not
// an error: callers treat it as a promotion that discounts nothing.
func Resolve(t domain.PromotionType) (Kind, bool) {
	for _, k := range strategies {
		if k.CanHandle(t) {
			return k, true
		}
	}
	return 0, false
}

// Apply computes the discount of promo on order without changing the order.
func (k Kind) Apply(order *domain.Order, promo *domain.Promotion, now time.Time) domain.DiscountResult {
	var (
		discount domain.Money
		reason   string
	)

	switch k {
	case TwoForOne:
		discount, reason = twoForOne(order, promo.Params)
	case DailySpecial:
		discount, reason = dailySpecial(order, promo.Params, now)
	case PercentageDiscount:
		discount, reason = percentageDiscount(order, promo.Params)
	case BundleSpecial:
		discount, reason = bundleSpecial(order, promo.Params)
	default:
		return domain.NotApplied(promo, "no strategy for promotion type")
	}

	if reason != "" {
		return domain.NotApplied(promo, reason)
	}

	discount = domain.MinMoney(discount, order.DiscountableAmount())
	if discount <= 0 {
		return domain.NotApplied(promo, "no qualifying items")
	}

	return domain.DiscountResult{
		PromotionID: promo.ID,
		Type:        promo.Type,
		Discount:    discount,
		Applied:     true,
	}
}

// Evaluate resolves the strategy for promo and applies it, checking the
// promotion's own preconditions first. The order is not modified.
func Evaluate(order *domain.Order, promo *domain.Promotion, now time.Time) domain.DiscountResult {
	if order.HasPromotion(promo.ID) {
		return domain.NotApplied(promo, "already applied")
	}
	if promo.RestaurantID != 0 && promo.RestaurantID != order.RestaurantID {
		return domain.NotApplied(promo, "promotion belongs to another restaurant")
	}
	if !promo.LiveAt(now) {
		return domain.NotApplied(promo, "promotion is not active")
	}

	kind, ok := Resolve(promo.Type)
	if !ok {
		return domain.NotApplied(promo, "no strategy for promotion type")
	}
	return kind.Apply(order, promo, now)
}

// Snapshot turns an applied result into the record kept on the order.
func Snapshot(promo *domain.Promotion, result domain.DiscountResult, now time.Time) domain.AppliedPromotion {
	return domain.AppliedPromotion{
		PromotionID: promo.ID,
		Type:        promo.Type,
		Name:        promo.Name,
		Discount:    result.Discount,
		AppliedAt:   now,
	}
}
