package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Order represents a customer purchase at one restaurant
type Order struct {
	ID                int64
	Number            string
	CustomerID        int64
	RestaurantID      int64
	ServiceType       ServiceType
	Status            Status
	PreviousStatus    *Status
	Items             []OrderItem
	Subtotal          Money
	Discount          Money
	PointsCredit      Money
	Total             Money
	PointsEligible    bool
	AppliedPromotions []AppliedPromotion
	StatusChangedAt   *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
	CancelledAt       *time.Time
}

// OrderItem represents a line of an order
type OrderItem struct {
	ID        int64
	OrderID   int64
	ProductID int64
	VariantID *int64
	Name      string
	Quantity  int
	UnitPrice Money
	Options   []SelectedOption
}

// SelectedOption is one choice made in a product's option section,
// e.g. section "Size", option "Large".
type SelectedOption struct {
	Section       string `json:"section"`
	Option        string `json:"option"`
	PriceModifier Money  `json:"price_modifier"`
}

// UnitTotal is the unit price including option modifiers.
func (i OrderItem) UnitTotal() Money {
	total := i.UnitPrice
	for _, opt := range i.Options {
		total += opt.PriceModifier
	}
	return total
}

func (i OrderItem) LineTotal() Money {
	return i.UnitTotal().Times(i.Quantity)
}

// NewOrder creates a pending order with totals computed
func NewOrder(customerID, restaurantID int64, serviceType ServiceType, items []OrderItem, now time.Time) (*Order, error) {
	order := &Order{
		CustomerID:   customerID,
		RestaurantID: restaurantID,
		ServiceType:  serviceType,
		Items:        items,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := order.Validate(); err != nil {
		return nil, err
	}

	order.Recalculate()
	order.PointsEligible = order.Subtotal > 0

	return order, nil
}

// Validate applies business validation rules
func (o *Order) Validate() error {
	if o.CustomerID < 1 {
		return errors.New("customer id is required")
	}

	if o.RestaurantID < 1 {
		return errors.New("restaurant id is required")
	}

	if !o.ServiceType.Valid() {
		return ErrInvalidServiceType
	}

	if len(o.Items) < 1 || len(o.Items) > 50 {
		return errors.New("order must have 1-50 items")
	}

	for _, item := range o.Items {
		if item.ProductID < 1 {
			return errors.New("item product id is required")
		}
		if len(item.Name) < 1 || len(item.Name) > 100 {
			return errors.New("item name must be 1-100 characters")
		}
		if item.Quantity < 1 || item.Quantity > 99 {
			return errors.New("item quantity must be 1-99")
		}
		if item.UnitPrice < 0 {
			return errors.New("item price must not be negative")
		}
		if item.UnitTotal() < 0 {
			return errors.New("item options must not reduce the price below zero")
		}
	}

	return nil
}

// Recalculate derives subtotal, discount and total from the items, the
// applied promotion snapshot and the points credit.
func (o *Order) Recalculate() {
	var subtotal Money
	for _, item := range o.Items {
		subtotal += item.LineTotal()
	}

	var discount Money
	for _, p := range o.AppliedPromotions {
		discount += p.Discount
	}

	o.Subtotal = subtotal
	o.Discount = MinMoney(discount, subtotal)
	o.Total = MaxMoney(0, subtotal-o.Discount-o.PointsCredit)
}

// DiscountableAmount is what promotions may still take off the subtotal.
func (o *Order) DiscountableAmount() Money {
	return MaxMoney(0, o.Subtotal-o.Discount)
}

func (o *Order) HasPromotion(promotionID int64) bool {
	for _, p := range o.AppliedPromotions {
		if p.PromotionID == promotionID {
			return true
		}
	}
	return false
}

// ApplyPromotion snapshots an applied promotion onto the order. It returns
// false, leaving the order untouched, when the promotion is already applied.
func (o *Order) ApplyPromotion(applied AppliedPromotion) bool {
	if o.HasPromotion(applied.PromotionID) {
		return false
	}
	applied.Discount = MinMoney(MaxMoney(0, applied.Discount), o.DiscountableAmount())
	o.AppliedPromotions = append(o.AppliedPromotions, applied)
	o.Recalculate()
	return true
}

func (o *Order) AddPointsCredit(credit Money) {
	o.PointsCredit += credit
	o.Recalculate()
}

// EarnablePoints is floor(total × pointsPerUnit) where total is in whole
// currency units.
func (o *Order) EarnablePoints(pointsPerUnit decimal.Decimal) int64 {
	if !o.PointsEligible || o.Total <= 0 {
		return 0
	}
	return o.Total.Decimal().Mul(pointsPerUnit).Floor().IntPart()
}

// TransitionTo transitions the order to a new status
func (o *Order) TransitionTo(newStatus Status, at time.Time) error {
	if !o.CanTransitionTo(newStatus) {
		return &InvalidTransitionError{OrderID: o.ID, From: o.Status, To: newStatus}
	}

	previous := o.Status
	o.PreviousStatus = &previous
	o.Status = newStatus
	o.StatusChangedAt = &at
	o.UpdatedAt = at

	switch newStatus {
	case StatusCompleted:
		o.CompletedAt = &at
	case StatusCancelled:
		o.CancelledAt = &at
	}

	return nil
}

// CanTransitionTo checks if the order can transition to the new status
func (o *Order) CanTransitionTo(newStatus Status) bool {
	if o.Status.IsTerminal() {
		return false
	}
	return CanTransition(o.Status, newStatus, o.ServiceType)
}

// Clone returns a deep copy, so a caller can mutate it without touching o.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = make([]OrderItem, len(o.Items))
	for i, item := range o.Items {
		item.Options = append([]SelectedOption(nil), item.Options...)
		c.Items[i] = item
	}
	c.AppliedPromotions = append([]AppliedPromotion(nil), o.AppliedPromotions...)
	if o.PreviousStatus != nil {
		prev := *o.PreviousStatus
		c.PreviousStatus = &prev
	}
	return &c
}
