package promotion

import (
	"strings"
	"time"

	"github.com/YelzhanWeb/tablehub/internal/domain"
)

// twoForOne makes every second unit of an applicable line free.
func twoForOne(order *domain.Order, params domain.PromotionParams) (domain.Money, string) {
	var discount domain.Money
	for _, item := range order.Items {
		if !params.AppliesTo(item.ProductID) {
			continue
		}
		discount += item.UnitTotal().Times(item.Quantity / 2)
	}
	return discount, ""
}

// dailySpecial reprices applicable lines on the configured days and hours,
// either to a fixed unit price or by a percentage.
func dailySpecial(order *domain.Order, params domain.PromotionParams, now time.Time) (domain.Money, string) {
	if params.SpecialPrice == nil && params.Percentage == nil {
		return 0, "daily special has neither price nor percentage"
	}
	if !onDay(params.Days, now) {
		return 0, "not offered today"
	}
	inWindow, err := withinWindow(params.StartTime, params.EndTime, now)
	if err != nil {
		return 0, "invalid time window"
	}
	if !inWindow {
		return 0, "outside the offer hours"
	}

	var discount domain.Money
	for _, item := range order.Items {
		if !params.AppliesTo(item.ProductID) {
			continue
		}
		if params.SpecialPrice != nil {
			perUnit := domain.MaxMoney(0, item.UnitTotal()-*params.SpecialPrice)
			discount += perUnit.Times(item.Quantity)
			continue
		}
		discount += item.LineTotal().Percent(*params.Percentage)
	}
	return discount, ""
}

func percentageDiscount(order *domain.Order, params domain.PromotionParams) (domain.Money, string) {
	if params.Percentage == nil || !params.Percentage.IsPositive() {
		return 0, "percentage is not set"
	}

	var base domain.Money
	for _, item := range order.Items {
		if params.AppliesTo(item.ProductID) {
			base += item.LineTotal()
		}
	}

	if params.MinSubtotal != nil && base < *params.MinSubtotal {
		return 0, "order is below the minimum subtotal"
	}

	discount := base.Percent(*params.Percentage)
	if params.MaxDiscount != nil {
		discount = domain.MinMoney(discount, *params.MaxDiscount)
	}
	return discount, ""
}

// bundleSpecial sells each complete set of bundle products at the bundle
// price. A product listed twice must be ordered twice per bundle; the
// cheapest line of each product sets the regular price.
func bundleSpecial(order *domain.Order, params domain.PromotionParams) (domain.Money, string) {
	if len(params.BundleProductIDs) == 0 || params.BundlePrice == nil {
		return 0, "bundle is not configured"
	}

	required := make(map[int64]int)
	for _, id := range params.BundleProductIDs {
		required[id]++
	}

	ordered := make(map[int64]int)
	cheapest := make(map[int64]domain.Money)
	for _, item := range order.Items {
		if _, ok := required[item.ProductID]; !ok {
			continue
		}
		ordered[item.ProductID] += item.Quantity
		unit := item.UnitTotal()
		if current, seen := cheapest[item.ProductID]; !seen || unit < current {
			cheapest[item.ProductID] = unit
		}
	}

	bundles := -1
	var regular domain.Money
	for id, need := range required {
		sets := ordered[id] / need
		if bundles < 0 || sets < bundles {
			bundles = sets
		}
		regular += cheapest[id].Times(need)
	}
	if bundles <= 0 {
		return 0, "bundle is incomplete"
	}

	perBundle := regular - *params.BundlePrice
	if perBundle <= 0 {
		return 0, "bundle price is not lower than the regular price"
	}
	return perBundle.Times(bundles), ""
}

func onDay(days []string, now time.Time) bool {
	if len(days) == 0 {
		return true
	}
	today := now.Weekday().String()
	for _, d := range days {
		if strings.EqualFold(strings.TrimSpace(d), today) {
			return true
		}
	}
	return false
}

// withinWindow checks now against a [start, end) "HH:MM" window. A window
// whose end is not after its start runs past midnight.
func withinWindow(start, end string, now time.Time) (bool, error) {
	if start == "" && end == "" {
		return true, nil
	}
	from, err := minuteOfDay(start, 0)
	if err != nil {
		return false, err
	}
	to, err := minuteOfDay(end, 24*60)
	if err != nil {
		return false, err
	}

	current := now.Hour()*60 + now.Minute()
	if from < to {
		return current >= from && current < to, nil
	}
	return current >= from || current < to, nil
}

func minuteOfDay(value string, fallback int) (int, error) {
	if value == "" {
		return fallback, nil
	}
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
