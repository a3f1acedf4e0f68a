package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
)

type promotionRepository struct {
	db DB
}

func NewPromotionRepository(db DB) interfaces.PromotionRepository {
	return &promotionRepository{db: db}
}

func (r *promotionRepository) FindByID(ctx context.Context, id int64) (*domain.Promotion, error) {
	query := `
		SELECT id, restaurant_id, name, type, is_active, starts_at, ends_at, max_uses, params, created_at, updated_at
		FROM promotions
		WHERE id = $1
	`

	var (
		p      domain.Promotion
		kind   string
		params []byte
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.RestaurantID, &p.Name, &kind, &p.IsActive, &p.StartsAt, &p.EndsAt, &p.MaxUses,
		&params, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NewNotFound("promotion", id)
		}
		return nil, fmt.Errorf("failed to load promotion: %w", err)
	}
	p.Type = domain.PromotionType(kind)

	if len(params) > 0 {
		if err := json.Unmarshal(params, &p.Params); err != nil {
			return nil, fmt.Errorf("failed to decode params of promotion %d: %w", id, err)
		}
	}
	return &p, nil
}

func (r *promotionRepository) CountUsages(ctx context.Context, promotionID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM promotion_usages
		WHERE promotion_id = $1 AND released_at IS NULL
	`, promotionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count promotion usages: %w", err)
	}
	return count, nil
}

// ReleaseUsages gives back the uses a cancelled order held. Releasing twice
// affects no rows the second time.
func (r *promotionRepository) ReleaseUsages(ctx context.Context, orderID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE promotion_usages
		SET released_at = now()
		WHERE order_id = $1 AND released_at IS NULL
	`, orderID)
	if err != nil {
		return 0, fmt.Errorf("failed to release promotion usages: %w", err)
	}
	return tag.RowsAffected(), nil
}
