package postgres

import (
	"context"
	"fmt"

	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
)

type rewardRepository struct {
	db DB
}

func NewRewardRepository(db DB) interfaces.RewardRepository {
	return &rewardRepository{db: db}
}

func (r *rewardRepository) FindProduct(ctx context.Context, id int64) (*domain.ProductReward, error) {
	var p domain.ProductReward
	err := r.db.QueryRow(ctx, `
		SELECT id, name, points_cost, is_redeemable, is_active FROM products WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.PointsCost, &p.IsRedeemable, &p.IsActive)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NewNotFound("product", id)
		}
		return nil, fmt.Errorf("failed to load product: %w", err)
	}

	variants, err := r.variants(ctx, `WHERE product_id = $1`, id)
	if err != nil {
		return nil, err
	}
	p.Variants = variants
	return &p, nil
}

func (r *rewardRepository) FindVariant(ctx context.Context, id int64) (*domain.VariantReward, bool, error) {
	var (
		v            domain.VariantReward
		parentActive bool
	)
	err := r.db.QueryRow(ctx, `
		SELECT v.id, v.product_id, v.name, v.points_cost, v.is_redeemable, v.is_active, p.is_active
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = $1
	`, id).Scan(&v.ID, &v.ProductID, &v.Name, &v.PointsCost, &v.IsRedeemable, &v.IsActive, &parentActive)
	if err != nil {
		if isNoRows(err) {
			return nil, false, domain.NewNotFound("product variant", id)
		}
		return nil, false, fmt.Errorf("failed to load product variant: %w", err)
	}
	return &v, parentActive, nil
}

func (r *rewardRepository) FindCombo(ctx context.Context, id int64) (*domain.ComboReward, error) {
	var c domain.ComboReward
	err := r.db.QueryRow(ctx, `
		SELECT id, name, points_cost, is_redeemable, is_active FROM combos WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.PointsCost, &c.IsRedeemable, &c.IsActive)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NewNotFound("combo", id)
		}
		return nil, fmt.Errorf("failed to load combo: %w", err)
	}

	items, err := r.comboItems(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	c.Items = items[id]
	return &c, nil
}

// ListActive returns active products, each with all of its variants, and
// active combos. Standalone variants are reached through their product.
func (r *rewardRepository) ListActive(ctx context.Context) ([]domain.Reward, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, points_cost, is_redeemable, is_active
		FROM products WHERE is_active
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	var products []domain.ProductReward
	for rows.Next() {
		var p domain.ProductReward
		if err := rows.Scan(&p.ID, &p.Name, &p.PointsCost, &p.IsRedeemable, &p.IsActive); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read products: %w", err)
	}

	variants, err := r.variants(ctx, `WHERE product_id IN (SELECT id FROM products WHERE is_active)`)
	if err != nil {
		return nil, err
	}
	byProduct := make(map[int64][]domain.VariantReward)
	for _, v := range variants {
		byProduct[v.ProductID] = append(byProduct[v.ProductID], v)
	}

	rows, err = r.db.Query(ctx, `
		SELECT id, name, points_cost, is_redeemable, is_active
		FROM combos WHERE is_active
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list combos: %w", err)
	}
	var (
		combos   []domain.ComboReward
		comboIDs []int64
	)
	for rows.Next() {
		var c domain.ComboReward
		if err := rows.Scan(&c.ID, &c.Name, &c.PointsCost, &c.IsRedeemable, &c.IsActive); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan combo: %w", err)
		}
		combos = append(combos, c)
		comboIDs = append(comboIDs, c.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read combos: %w", err)
	}

	items, err := r.comboItems(ctx, comboIDs)
	if err != nil {
		return nil, err
	}

	rewards := make([]domain.Reward, 0, len(products)+len(combos))
	for _, p := range products {
		p.Variants = byProduct[p.ID]
		rewards = append(rewards, p)
	}
	for _, c := range combos {
		c.Items = items[c.ID]
		rewards = append(rewards, c)
	}
	return rewards, nil
}

func (r *rewardRepository) variants(ctx context.Context, where string, args ...any) ([]domain.VariantReward, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, product_id, name, points_cost, is_redeemable, is_active
		FROM product_variants `+where+`
		ORDER BY product_id, id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load product variants: %w", err)
	}
	defer rows.Close()

	var variants []domain.VariantReward
	for rows.Next() {
		var v domain.VariantReward
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Name, &v.PointsCost, &v.IsRedeemable, &v.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan product variant: %w", err)
		}
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read product variants: %w", err)
	}
	return variants, nil
}

// comboItems returns the product names in each combo, in combo order.
func (r *rewardRepository) comboItems(ctx context.Context, comboIDs []int64) (map[int64][]string, error) {
	items := make(map[int64][]string)
	if len(comboIDs) == 0 {
		return items, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT ci.combo_id, p.name
		FROM combo_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.combo_id = ANY($1)
		ORDER BY ci.combo_id, ci.position
	`, comboIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load combo items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			comboID int64
			name    string
		)
		if err := rows.Scan(&comboID, &name); err != nil {
			return nil, fmt.Errorf("failed to scan combo item: %w", err)
		}
		items[comboID] = append(items[comboID], name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read combo items: %w", err)
	}
	return items, nil
}
