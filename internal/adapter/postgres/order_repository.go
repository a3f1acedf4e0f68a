package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
)

const orderColumns = `id, number, customer_id, restaurant_id, service_type, status, previous_status,
	subtotal_cents, discount_cents, points_credit_cents, total_cents, points_eligible,
	status_changed_at, created_at, updated_at, completed_at, cancelled_at`

type orderRepository struct {
	db DB
}

func NewOrderRepository(db DB) interfaces.OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return beginFailed(err)
	}
	defer tx.Rollback(ctx)

	// Insert order
	query := `
		INSERT INTO orders (number, customer_id, restaurant_id, service_type, status,
		                    subtotal_cents, discount_cents, points_credit_cents, total_cents,
		                    points_eligible, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	err = tx.QueryRow(ctx, query,
		order.Number, order.CustomerID, order.RestaurantID, string(order.ServiceType), string(order.Status),
		int64(order.Subtotal), int64(order.Discount), int64(order.PointsCredit), int64(order.Total),
		order.PointsEligible, order.CreatedAt, order.UpdatedAt,
	).Scan(&order.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s: %w", domain.ErrOrderNumberTaken, order.Number, err)
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}

	// Insert order items with their options
	for i := range order.Items {
		if err := insertItem(ctx, tx, order.ID, i, &order.Items[i]); err != nil {
			return err
		}
	}

	if err := insertPromotions(ctx, tx, order.ID, order.AppliedPromotions); err != nil {
		return err
	}

	// Log initial status
	err = insertStatusLog(ctx, tx, order.ID, &domain.StatusLog{
		Status:    order.Status,
		ChangedBy: "order-service",
		ChangedAt: order.CreatedAt,
	})
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return commitFailed(err)
	}
	return nil
}

func (r *orderRepository) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	return loadOrder(ctx, r.db, id, false)
}

// UpdateLocked holds SELECT ... FOR UPDATE on the order row for the whole
// mutation, so concurrent status changes and redemptions on the same order
// serialize.
func (r *orderRepository) UpdateLocked(ctx context.Context, orderID int64, mutate interfaces.OrderMutation) (*domain.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, beginFailed(err)
	}
	defer tx.Rollback(ctx)

	stored, err := loadOrder(ctx, tx, orderID, true)
	if err != nil {
		return nil, err
	}

	working := stored.Clone()
	change, err := mutate(working)
	if err != nil {
		return nil, err
	}
	if change == nil {
		return stored, nil
	}

	if err := applyChange(ctx, tx, working, change); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, commitFailed(err)
	}
	return working, nil
}

// applyChange writes a mutated order and everything its change carries.
func applyChange(ctx context.Context, tx Tx, order *domain.Order, change *interfaces.OrderChange) error {
	query := `
		UPDATE orders
		SET status = $1, previous_status = $2,
		    subtotal_cents = $3, discount_cents = $4, points_credit_cents = $5, total_cents = $6,
		    status_changed_at = $7, updated_at = $8, completed_at = $9, cancelled_at = $10
		WHERE id = $11
	`
	_, err := tx.Exec(ctx, query,
		string(order.Status), statusPtr(order.PreviousStatus),
		int64(order.Subtotal), int64(order.Discount), int64(order.PointsCredit), int64(order.Total),
		order.StatusChangedAt, order.UpdatedAt, order.CompletedAt, order.CancelledAt,
		order.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}

	if err := insertPromotions(ctx, tx, order.ID, change.NewPromotions); err != nil {
		return err
	}
	if change.StatusLog != nil {
		if err := insertStatusLog(ctx, tx, order.ID, change.StatusLog); err != nil {
			return err
		}
	}
	return insertOutbox(ctx, tx, change.Outbox)
}

func (r *orderRepository) GetStatusHistory(ctx context.Context, orderID int64) ([]*domain.StatusLog, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check order: %w", err)
	}
	if !exists {
		return nil, domain.NewNotFound("order", orderID)
	}

	query := `
		SELECT id, order_id, previous_status, status, changed_by, changed_at, notes
		FROM order_status_log
		WHERE order_id = $1
		ORDER BY changed_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query status history: %w", err)
	}
	defer rows.Close()

	var logs []*domain.StatusLog
	for rows.Next() {
		var (
			log      domain.StatusLog
			previous *string
			status   string
		)
		if err := rows.Scan(&log.ID, &log.OrderID, &previous, &status, &log.ChangedBy, &log.ChangedAt, &log.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan status log: %w", err)
		}
		log.Status = domain.Status(status)
		log.PreviousStatus = toStatus(previous)
		logs = append(logs, &log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read status history: %w", err)
	}

	return logs, nil
}

func (r *orderRepository) GenerateOrderNumber(ctx context.Context) (string, error) {
	day := time.Now().UTC().Truncate(24 * time.Hour)

	// the upsert takes a row lock, so concurrent callers never share a value
	query := `
		INSERT INTO order_number_counters (day, last_value)
		VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET last_value = order_number_counters.last_value + 1
		RETURNING last_value
	`

	var seq int
	if err := r.db.QueryRow(ctx, query, day).Scan(&seq); err != nil {
		return "", fmt.Errorf("failed to allocate order number: %w", err)
	}

	return fmt.Sprintf("ORD_%s_%03d", day.Format("20060102"), seq), nil
}

// loadOrder reads an order with its items, options and applied promotions.
// Every result set is drained before the next query runs, since a pgx
// connection carries one query at a time.
func loadOrder(ctx context.Context, q Querier, id int64, forUpdate bool) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	order, err := scanOrder(q.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NewNotFound("order", id)
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	if order.Items, err = loadItems(ctx, q, id); err != nil {
		return nil, err
	}
	if order.AppliedPromotions, err = loadAppliedPromotions(ctx, q, id); err != nil {
		return nil, err
	}
	return order, nil
}

func scanOrder(row Row) (*domain.Order, error) {
	var (
		o                   domain.Order
		serviceType, status string
		previous            *string
		subtotal, discount  int64
		pointsCredit, total int64
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.CustomerID, &o.RestaurantID, &serviceType, &status, &previous,
		&subtotal, &discount, &pointsCredit, &total, &o.PointsEligible,
		&o.StatusChangedAt, &o.CreatedAt, &o.UpdatedAt, &o.CompletedAt, &o.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	o.ServiceType = domain.ServiceType(serviceType)
	o.Status = domain.Status(status)
	o.PreviousStatus = toStatus(previous)
	o.Subtotal = domain.Money(subtotal)
	o.Discount = domain.Money(discount)
	o.PointsCredit = domain.Money(pointsCredit)
	o.Total = domain.Money(total)
	return &o, nil
}

func loadItems(ctx context.Context, q Querier, orderID int64) ([]domain.OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, variant_id, name, quantity, unit_price_cents
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}

	var items []domain.OrderItem
	index := make(map[int64]int)
	for rows.Next() {
		var (
			item  domain.OrderItem
			price int64
		)
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.VariantID, &item.Name, &item.Quantity, &price); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		item.UnitPrice = domain.Money(price)
		index[item.ID] = len(items)
		items = append(items, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read order items: %w", err)
	}

	rows, err = q.Query(ctx, `
		SELECT o.order_item_id, o.section, o.option, o.price_modifier_cents
		FROM order_item_options o
		JOIN order_items i ON i.id = o.order_item_id
		WHERE i.order_id = $1
		ORDER BY o.order_item_id, o.position
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load item options: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			itemID   int64
			opt      domain.SelectedOption
			modifier int64
		)
		if err := rows.Scan(&itemID, &opt.Section, &opt.Option, &modifier); err != nil {
			return nil, fmt.Errorf("failed to scan item option: %w", err)
		}
		opt.PriceModifier = domain.Money(modifier)
		if i, ok := index[itemID]; ok {
			items[i].Options = append(items[i].Options, opt)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read item options: %w", err)
	}
	return items, nil
}

func loadAppliedPromotions(ctx context.Context, q Querier, orderID int64) ([]domain.AppliedPromotion, error) {
	rows, err := q.Query(ctx, `
		SELECT promotion_id, type, name, discount_cents, applied_at
		FROM order_promotions
		WHERE order_id = $1
		ORDER BY applied_at, promotion_id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load applied promotions: %w", err)
	}
	defer rows.Close()

	var applied []domain.AppliedPromotion
	for rows.Next() {
		var (
			p        domain.AppliedPromotion
			kind     string
			discount int64
		)
		if err := rows.Scan(&p.PromotionID, &kind, &p.Name, &discount, &p.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan applied promotion: %w", err)
		}
		p.Type = domain.PromotionType(kind)
		p.Discount = domain.Money(discount)
		applied = append(applied, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read applied promotions: %w", err)
	}
	return applied, nil
}

func insertItem(ctx context.Context, tx Tx, orderID int64, position int, item *domain.OrderItem) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO order_items (order_id, position, product_id, variant_id, name, quantity, unit_price_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, orderID, position, item.ProductID, item.VariantID, item.Name, item.Quantity, int64(item.UnitPrice),
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("failed to insert order item: %w", err)
	}
	item.OrderID = orderID

	for i, opt := range item.Options {
		_, err := tx.Exec(ctx, `
			INSERT INTO order_item_options (order_item_id, position, section, option, price_modifier_cents)
			VALUES ($1, $2, $3, $4, $5)
		`, item.ID, i, opt.Section, opt.Option, int64(opt.PriceModifier))
		if err != nil {
			return fmt.Errorf("failed to insert item option: %w", err)
		}
	}
	return nil
}

// insertPromotions snapshots applied promotions on the order and takes one
// usage of each. All of them are taken or the transaction fails.
func insertPromotions(ctx context.Context, tx Tx, orderID int64, applied []domain.AppliedPromotion) error {
	for _, p := range applied {
		if err := reserveUsage(ctx, tx, p.PromotionID, orderID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO order_promotions (order_id, promotion_id, type, name, discount_cents, applied_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, orderID, p.PromotionID, string(p.Type), p.Name, int64(p.Discount), p.AppliedAt)
		if err != nil {
			return fmt.Errorf("failed to record applied promotion: %w", err)
		}
	}
	return nil
}

// reserveUsage locks the promotion row so that two orders cannot both take
// its last remaining use.
func reserveUsage(ctx context.Context, tx Tx, promotionID, orderID int64) error {
	var maxUses *int
	err := tx.QueryRow(ctx, `SELECT max_uses FROM promotions WHERE id = $1 FOR UPDATE`, promotionID).Scan(&maxUses)
	if err != nil {
		if isNoRows(err) {
			return domain.NewNotFound("promotion", promotionID)
		}
		return fmt.Errorf("failed to lock promotion: %w", err)
	}

	if maxUses != nil {
		var used int
		err := tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM promotion_usages
			WHERE promotion_id = $1 AND released_at IS NULL
		`, promotionID).Scan(&used)
		if err != nil {
			return fmt.Errorf("failed to count promotion usages: %w", err)
		}
		if used >= *maxUses {
			return domain.ErrPromotionExhausted
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO promotion_usages (promotion_id, order_id)
		VALUES ($1, $2)
		ON CONFLICT (promotion_id, order_id) DO UPDATE SET released_at = NULL, used_at = now()
	`, promotionID, orderID)
	if err != nil {
		return fmt.Errorf("failed to record promotion usage: %w", err)
	}
	return nil
}

func insertStatusLog(ctx context.Context, tx Tx, orderID int64, log *domain.StatusLog) error {
	query := `
		INSERT INTO order_status_log (order_id, previous_status, status, changed_by, changed_at, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.Exec(ctx, query, orderID, statusPtr(log.PreviousStatus), string(log.Status), log.ChangedBy, log.ChangedAt, log.Notes)
	if err != nil {
		return fmt.Errorf("failed to log status: %w", err)
	}
	return nil
}

func statusPtr(s *domain.Status) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func toStatus(s *string) *domain.Status {
	if s == nil {
		return nil
	}
	v := domain.Status(*s)
	return &v
}
