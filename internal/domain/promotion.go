package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PromotionType string

const (
	PromotionTwoForOne          PromotionType = "two_for_one"
	PromotionDailySpecial       PromotionType = "daily_special"
	PromotionPercentageDiscount PromotionType = "percentage_discount"
	PromotionBundleSpecial      PromotionType = "bundle_special"
)

// Promotion is defined by restaurant staff and evaluated against pending
// orders. Its per-type settings live in Params.
type Promotion struct {
	ID           int64
	RestaurantID int64
	Name         string
	Type         PromotionType
	IsActive     bool
	StartsAt     *time.Time
	EndsAt       *time.Time
	MaxUses      *int
	Params       PromotionParams
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PromotionParams is stored as JSON next to the promotion row.
type PromotionParams struct {
	ProductIDs       []int64          `json:"product_ids,omitempty"`
	Percentage       *decimal.Decimal `json:"percentage,omitempty"`
	SpecialPrice     *Money           `json:"special_price,omitempty"`
	Days             []string         `json:"days,omitempty"`
	StartTime        string           `json:"start_time,omitempty"`
	EndTime          string           `json:"end_time,omitempty"`
	BundleProductIDs []int64          `json:"bundle_product_ids,omitempty"`
	BundlePrice      *Money           `json:"bundle_price,omitempty"`
	MinSubtotal      *Money           `json:"min_subtotal,omitempty"`
	MaxDiscount      *Money           `json:"max_discount,omitempty"`
}

// AppliesTo reports whether a product is in scope. An empty product list
// covers every product.
func (p PromotionParams) AppliesTo(productID int64) bool {
	if len(p.ProductIDs) == 0 {
		return true
	}
	for _, id := range p.ProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}

// LiveAt reports whether the promotion is switched on and inside its date range.
func (p *Promotion) LiveAt(t time.Time) bool {
	if !p.IsActive {
		return false
	}
	if p.StartsAt != nil && t.Before(*p.StartsAt) {
		return false
	}
	if p.EndsAt != nil && !t.Before(*p.EndsAt) {
		return false
	}
	return true
}

// AppliedPromotion is the snapshot kept on an order once a promotion is applied.
type AppliedPromotion struct {
	PromotionID int64         `json:"promotion_id"`
	Type        PromotionType `json:"type"`
	Name        string        `json:"name"`
	Discount    Money         `json:"discount"`
	AppliedAt   time.Time     `json:"applied_at"`
}

// DiscountResult is what a strategy computed for one order.
type DiscountResult struct {
	PromotionID int64
	Type        PromotionType
	Discount    Money
	Applied     bool
	Reason      string
}

func NotApplied(p *Promotion, reason string) DiscountResult {
	return DiscountResult{PromotionID: p.ID, Type: p.Type, Reason: reason}
}
