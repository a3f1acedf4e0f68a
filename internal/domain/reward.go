package domain

type RewardType string

const (
	RewardProduct        RewardType = "product"
	RewardProductVariant RewardType = "product_variant"
	RewardCombo          RewardType = "combo"
)

func (t RewardType) Valid() bool {
	switch t {
	case RewardProduct, RewardProductVariant, RewardCombo:
		return true
	}
	return false
}

// Reward is one of ProductReward, VariantReward or ComboReward.
type Reward interface {
	RewardType() RewardType
	Active() bool
	sealedReward()
}

type ProductReward struct {
	ID           int64
	Name         string
	PointsCost   *int64
	IsRedeemable bool
	IsActive     bool
	Variants     []VariantReward
}

type VariantReward struct {
	ID           int64
	ProductID    int64
	Name         string
	PointsCost   *int64
	IsRedeemable bool
	IsActive     bool
}

type ComboReward struct {
	ID           int64
	Name         string
	PointsCost   *int64
	IsRedeemable bool
	IsActive     bool
	Items        []string
}

func (ProductReward) RewardType() RewardType { return RewardProduct }
func (VariantReward) RewardType() RewardType { return RewardProductVariant }
func (ComboReward) RewardType() RewardType   { return RewardCombo }

func (r ProductReward) Active() bool { return r.IsActive }
func (r VariantReward) Active() bool { return r.IsActive }
func (r ComboReward) Active() bool   { return r.IsActive }

func (ProductReward) sealedReward() {}
func (VariantReward) sealedReward() {}
func (ComboReward) sealedReward()   {}

// ActiveVariants returns the variants that can currently be offered.
func (r ProductReward) ActiveVariants() []VariantReward {
	var active []VariantReward
	for _, v := range r.Variants {
		if v.IsActive {
			active = append(active, v)
		}
	}
	return active
}

type RewardView struct {
	Type         RewardType      `json:"type"`
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	PointsCost   *int64          `json:"points_cost"`
	IsRedeemable bool            `json:"is_redeemable"`
	Variants     []VariantOption `json:"variants,omitempty"`
	Items        []string        `json:"items,omitempty"`
}

type VariantOption struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	PointsCost *int64 `json:"points_cost"`
}

// ViewReward renders a reward. A product with active variants is only
// redeemable through those variants, so its own cost is suppressed.
func ViewReward(r Reward) RewardView {
	switch r := r.(type) {
	case ProductReward:
		view := RewardView{
			Type:         RewardProduct,
			ID:           r.ID,
			Name:         r.Name,
			PointsCost:   r.PointsCost,
			IsRedeemable: r.IsRedeemable && r.PointsCost != nil,
		}
		if variants := r.ActiveVariants(); len(variants) > 0 {
			view.PointsCost = nil
			view.IsRedeemable = false
			for _, v := range variants {
				view.Variants = append(view.Variants, VariantOption{ID: v.ID, Name: v.Name, PointsCost: v.PointsCost})
				if v.IsRedeemable && v.PointsCost != nil {
					view.IsRedeemable = true
				}
			}
		}
		return view
	case VariantReward:
		return RewardView{
			Type:         RewardProductVariant,
			ID:           r.ID,
			Name:         r.Name,
			PointsCost:   r.PointsCost,
			IsRedeemable: r.IsRedeemable && r.PointsCost != nil,
		}
	case ComboReward:
		return RewardView{
			Type:         RewardCombo,
			ID:           r.ID,
			Name:         r.Name,
			PointsCost:   r.PointsCost,
			IsRedeemable: r.IsRedeemable && r.PointsCost != nil,
			Items:        r.Items,
		}
	}
	return RewardView{}
}
