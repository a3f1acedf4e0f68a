package promotion

import (
	"testing"
	"time"

	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Saturday, 13:30 UTC.
var saturdayLunch = time.Date(2026, 3, 14, 13, 30, 0, 0, time.UTC)

func newOrder(t *testing.T, items ...domain.OrderItem) *domain.Order {
	t.Helper()
	order, err := domain.NewOrder(1, 1, domain.ServiceTypePickup, items, saturdayLunch)
	require.NoError(t, err)
	return order
}

func money(m domain.Money) *domain.Money { return &m }

func pct(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func activePromo(id int64, t domain.PromotionType, params domain.PromotionParams) *domain.Promotion {
	return &domain.Promotion{ID: id, Name: string(t), Type: t, IsActive: true, Params: params}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		promoType domain.PromotionType
		want      Kind
		found     bool
	}{
		{domain.PromotionTwoForOne, TwoForOne, true},
		{domain.PromotionDailySpecial, DailySpecial, true},
		{domain.PromotionPercentageDiscount, PercentageDiscount, true},
		{domain.PromotionBundleSpecial, BundleSpecial, true},
		{"unknown_type", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.promoType), func(t *testing.T) {
			kind, ok := Resolve(tt.promoType)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func TestUnknownTypeLeavesTotalUnchanged(t *testing.T) {
	order := newOrder(t, domain.OrderItem{ProductID: 1, Name: "Soup", Quantity: 2, UnitPrice: 800})
	before := order.Total

	results := ApplyAtCheckout(order, []*domain.Promotion{activePromo(9, "unknown_type", domain.PromotionParams{})}, saturdayLunch)

	require.Len(t, results, 1)
	assert.False(t, results[0].Applied)
	assert.Equal(t, "no strategy for promotion type", results[0].Reason)
	assert.Equal(t, before, order.Total)
	assert.Empty(t, order.AppliedPromotions)
}

func TestTwoForOne(t *testing.T) {
	order := newOrder(t,
		domain.OrderItem{ProductID: 1, Name: "Burger", Quantity: 3, UnitPrice: 1000,
			Options: []domain.SelectedOption{{Section: "Extras", Option: "Cheese", PriceModifier: 150}}},
		domain.OrderItem{ProductID: 2, Name: "Fries", Quantity: 2, UnitPrice: 400},
	)

	all := TwoForOne.Apply(order, activePromo(1, domain.PromotionTwoForOne, domain.PromotionParams{}), saturdayLunch)
	require.True(t, all.Applied)
	assert.Equal(t, domain.Money(1150+400), all.Discount)

	burgersOnly := TwoForOne.Apply(order, activePromo(1, domain.PromotionTwoForOne, domain.PromotionParams{ProductIDs: []int64{1}}), saturdayLunch)
	require.True(t, burgersOnly.Applied)
	assert.Equal(t, domain.Money(1150), burgersOnly.Discount)

	single := newOrder(t, domain.OrderItem{ProductID: 1, Name: "Burger", Quantity: 1, UnitPrice: 1000})
	none := TwoForOne.Apply(single, activePromo(1, domain.PromotionTwoForOne, domain.PromotionParams{}), saturdayLunch)
	assert.False(t, none.Applied)
	assert.Equal(t, "no qualifying items", none.Reason)
}

func TestDailySpecial(t *testing.T) {
	order := newOrder(t, domain.OrderItem{ProductID: 5, Name: "Pasta", Quantity: 2, UnitPrice: 1400})

	tests := []struct {
		name     string
		params   domain.PromotionParams
		applied  bool
		discount domain.Money
	}{
		{"special price", domain.PromotionParams{SpecialPrice: money(900), Days: []string{"saturday"}}, true, 1000},
		{"percentage", domain.PromotionParams{Percentage: pct(25), Days: []string{"Saturday", "Sunday"}}, true, 700},
		{"wrong day", domain.PromotionParams{SpecialPrice: money(900), Days: []string{"Monday"}}, false, 0},
		{"inside lunch window", domain.PromotionParams{SpecialPrice: money(900), StartTime: "11:00", EndTime: "14:00"}, true, 1000},
		{"after window", domain.PromotionParams{SpecialPrice: money(900), StartTime: "11:00", EndTime: "13:30"}, false, 0},
		{"special above regular price", domain.PromotionParams{SpecialPrice: money(1500)}, false, 0},
		{"not configured", domain.PromotionParams{}, false, 0},
		{"bad window", domain.PromotionParams{SpecialPrice: money(900), StartTime: "noon"}, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DailySpecial.Apply(order, activePromo(2, domain.PromotionDailySpecial, tt.params), saturdayLunch)
			assert.Equal(t, tt.applied, result.Applied, result.Reason)
			assert.Equal(t, tt.discount, result.Discount)
		})
	}
}

func TestWithinWindow_Overnight(t *testing.T) {
	late := time.Date(2026, 3, 14, 23, 15, 0, 0, time.UTC)
	early := time.Date(2026, 3, 14, 1, 45, 0, 0, time.UTC)
	noon := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	for _, at := range []time.Time{late, early} {
		ok, err := withinWindow("22:00", "02:00", at)
		require.NoError(t, err)
		assert.True(t, ok, at.Format("15:04"))
	}

	ok, err := withinWindow("22:00", "02:00", noon)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPercentageDiscount(t *testing.T) {
	order := newOrder(t,
		domain.OrderItem{ProductID: 1, Name: "Steak", Quantity: 1, UnitPrice: 3333},
		domain.OrderItem{ProductID: 2, Name: "Wine", Quantity: 1, UnitPrice: 2000},
	)

	tests := []struct {
		name     string
		params   domain.PromotionParams
		applied  bool
		discount domain.Money
	}{
		// 15% of 53.33 = 7.9995, rounded half-up.
		{"whole order", domain.PromotionParams{Percentage: pct(15)}, true, 800},
		{"one product", domain.PromotionParams{Percentage: pct(10), ProductIDs: []int64{2}}, true, 200},
		{"capped", domain.PromotionParams{Percentage: pct(50), MaxDiscount: money(1000)}, true, 1000},
		{"below minimum", domain.PromotionParams{Percentage: pct(10), MinSubtotal: money(6000)}, false, 0},
		{"no percentage", domain.PromotionParams{}, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := PercentageDiscount.Apply(order, activePromo(3, domain.PromotionPercentageDiscount, tt.params), saturdayLunch)
			assert.Equal(t, tt.applied, result.Applied, result.Reason)
			assert.Equal(t, tt.discount, result.Discount)
		})
	}
}

func TestBundleSpecial(t *testing.T) {
	params := domain.PromotionParams{BundleProductIDs: []int64{1, 2}, BundlePrice: money(1200)}

	order := newOrder(t,
		domain.OrderItem{ProductID: 1, Name: "Burger", Quantity: 2, UnitPrice: 1000},
		domain.OrderItem{ProductID: 2, Name: "Soda", Quantity: 3, UnitPrice: 300},
	)
	result := BundleSpecial.Apply(order, activePromo(4, domain.PromotionBundleSpecial, params), saturdayLunch)
	require.True(t, result.Applied)
	// two bundles, each 13.00 regular for 12.00
	assert.Equal(t, domain.Money(200), result.Discount)

	incomplete := newOrder(t, domain.OrderItem{ProductID: 1, Name: "Burger", Quantity: 2, UnitPrice: 1000})
	result = BundleSpecial.Apply(incomplete, activePromo(4, domain.PromotionBundleSpecial, params), saturdayLunch)
	assert.False(t, result.Applied)
	assert.Equal(t, "bundle is incomplete", result.Reason)

	pricey := domain.PromotionParams{BundleProductIDs: []int64{1, 2}, BundlePrice: money(5000)}
	result = BundleSpecial.Apply(order, activePromo(4, domain.PromotionBundleSpecial, pricey), saturdayLunch)
	assert.False(t, result.Applied)
}

func TestDiscountNeverExceedsSubtotal(t *testing.T) {
	order := newOrder(t, domain.OrderItem{ProductID: 1, Name: "Tea", Quantity: 4, UnitPrice: 250})

	promos := []*domain.Promotion{
		activePromo(1, domain.PromotionTwoForOne, domain.PromotionParams{}),
		activePromo(2, domain.PromotionPercentageDiscount, domain.PromotionParams{Percentage: pct(80)}),
	}
	results := ApplyAtCheckout(order, promos, saturdayLunch)

	require.Len(t, results, 2)
	assert.Equal(t, domain.Money(500), results[0].Discount)
	assert.Equal(t, domain.Money(500), results[1].Discount)
	assert.Equal(t, domain.Money(1000), order.Discount)
	assert.Equal(t, domain.Money(0), order.Total)
}

func TestEvaluatePreconditions(t *testing.T) {
	order := newOrder(t, domain.OrderItem{ProductID: 1, Name: "Tea", Quantity: 2, UnitPrice: 250})
	yesterday := saturdayLunch.Add(-24 * time.Hour)

	inactive := activePromo(1, domain.PromotionTwoForOne, domain.PromotionParams{})
	inactive.IsActive = false
	assert.Equal(t, "promotion is not active", Evaluate(order, inactive, saturdayLunch).Reason)

	expired := activePromo(2, domain.PromotionTwoForOne, domain.PromotionParams{})
	expired.EndsAt = &yesterday
	assert.Equal(t, "promotion is not active", Evaluate(order, expired, saturdayLunch).Reason)

	elsewhere := activePromo(3, domain.PromotionTwoForOne, domain.PromotionParams{})
	elsewhere.RestaurantID = 42
	assert.Equal(t, "promotion belongs to another restaurant", Evaluate(order, elsewhere, saturdayLunch).Reason)

	valid := activePromo(4, domain.PromotionTwoForOne, domain.PromotionParams{})
	ApplyAtCheckout(order, []*domain.Promotion{valid}, saturdayLunch)
	assert.Equal(t, "already applied", Evaluate(order, valid, saturdayLunch).Reason)
}
