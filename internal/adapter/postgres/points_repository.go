package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
)

const transactionColumns = `id, customer_id, points, type, description, reference_type, reference_id, created_at`

type pointsRepository struct {
	db DB
}

func NewPointsRepository(db DB) interfaces.PointsRepository {
	return &pointsRepository{db: db}
}

func (r *pointsRepository) Earn(ctx context.Context, ptx *domain.PointsTransaction) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, beginFailed(err)
	}
	defer tx.Rollback(ctx)

	if err := lockAccount(ctx, tx, ptx.CustomerID); err != nil {
		return false, err
	}

	// the partial unique index makes a repeated earn for the same reference a no-op
	query := `
		INSERT INTO points_transactions (customer_id, points, type, description, reference_type, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (customer_id, reference_type, reference_id)
		    WHERE type = 'earn' AND reference_type <> 'none'
		DO NOTHING
		RETURNING id, created_at
	`
	refType, refID := referenceArgs(ptx.Reference)
	err = tx.QueryRow(ctx, query,
		ptx.CustomerID, ptx.Points, string(ptx.Type), ptx.Description, refType, refID, ptx.CreatedAt,
	).Scan(&ptx.ID, &ptx.CreatedAt)
	if isNoRows(err) {
		existing, err := scanTransaction(tx.QueryRow(ctx, `
			SELECT `+transactionColumns+`
			FROM points_transactions
			WHERE customer_id = $1 AND type = 'earn' AND reference_type = $2 AND reference_id = $3
		`, ptx.CustomerID, refType, refID))
		if err != nil {
			return false, fmt.Errorf("failed to load existing earn: %w", err)
		}
		*ptx = *existing
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert points transaction: %w", err)
	}

	if err := syncAccountBalance(ctx, tx, ptx.CustomerID); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, commitFailed(err)
	}
	return true, nil
}

// Redeem locks the customer's account row and then the order row, always in
// that order. The balance is summed from the ledger under the account lock,
// so two redemptions for the same customer cannot both spend the same points.
func (r *pointsRepository) Redeem(ctx context.Context, req interfaces.RedeemRequest, check interfaces.RedeemCheck) (*interfaces.RedeemResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, beginFailed(err)
	}
	defer tx.Rollback(ctx)

	if err := lockAccount(ctx, tx, req.CustomerID); err != nil {
		return nil, err
	}

	balance, err := ledgerSum(ctx, tx, req.CustomerID)
	if err != nil {
		return nil, err
	}

	order, err := loadOrder(ctx, tx, req.OrderID, true)
	if err != nil {
		return nil, err
	}
	if err := check(order, balance); err != nil {
		return nil, err
	}

	now := time.Now()
	order.AddPointsCredit(req.Credit)
	order.UpdatedAt = now
	if err := applyChange(ctx, tx, order, &interfaces.OrderChange{}); err != nil {
		return nil, err
	}

	redeemed := domain.PointsTransaction{
		CustomerID:  req.CustomerID,
		Points:      -req.Points,
		Type:        domain.TransactionRedeem,
		Description: req.Description,
		Reference:   domain.OrderReference(req.OrderID),
		CreatedAt:   now,
	}
	refType, refID := referenceArgs(redeemed.Reference)
	err = tx.QueryRow(ctx, `
		INSERT INTO points_transactions (customer_id, points, type, description, reference_type, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, redeemed.CustomerID, redeemed.Points, string(redeemed.Type), redeemed.Description, refType, refID, redeemed.CreatedAt,
	).Scan(&redeemed.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert redemption: %w", err)
	}

	if err := syncAccountBalance(ctx, tx, req.CustomerID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, commitFailed(err)
	}

	return &interfaces.RedeemResult{
		Transaction: redeemed,
		Order:       order,
		Balance:     balance - req.Points,
	}, nil
}

func (r *pointsRepository) Balance(ctx context.Context, customerID int64) (domain.Balance, error) {
	query := `
		SELECT COALESCE(SUM(points), 0),
		       COALESCE(SUM(points) FILTER (WHERE type = 'earn'), 0),
		       COALESCE(-SUM(points) FILTER (WHERE type = 'redeem'), 0)
		FROM points_transactions
		WHERE customer_id = $1
	`
	b := domain.Balance{CustomerID: customerID}
	if err := r.db.QueryRow(ctx, query, customerID).Scan(&b.Points, &b.LifetimeEarned, &b.LifetimeRedeemed); err != nil {
		return domain.Balance{}, fmt.Errorf("failed to sum points: %w", err)
	}
	return b, nil
}

func (r *pointsRepository) History(ctx context.Context, customerID int64, limit, offset int) ([]domain.PointsTransaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM points_transactions
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, customerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query points history: %w", err)
	}
	defer rows.Close()

	var txs []domain.PointsTransaction
	for rows.Next() {
		ptx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan points transaction: %w", err)
		}
		txs = append(txs, *ptx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read points history: %w", err)
	}
	return txs, nil
}

func (r *pointsRepository) FindTransaction(ctx context.Context, id int64) (*domain.PointsTransaction, error) {
	ptx, err := scanTransaction(r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM points_transactions WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NewNotFound("points transaction", id)
		}
		return nil, fmt.Errorf("failed to load points transaction: %w", err)
	}
	return ptx, nil
}

// lockAccount creates the account row on first use and locks it for the
// rest of the transaction.
func lockAccount(ctx context.Context, tx Tx, customerID int64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO points_accounts (customer_id) VALUES ($1)
		ON CONFLICT (customer_id) DO NOTHING
	`, customerID)
	if err != nil {
		return fmt.Errorf("failed to create points account: %w", err)
	}

	var locked int64
	err = tx.QueryRow(ctx, `SELECT customer_id FROM points_accounts WHERE customer_id = $1 FOR UPDATE`, customerID).Scan(&locked)
	if err != nil {
		return fmt.Errorf("failed to lock points account: %w", err)
	}
	return nil
}

func ledgerSum(ctx context.Context, q Querier, customerID int64) (int64, error) {
	var sum int64
	err := q.QueryRow(ctx, `SELECT COALESCE(SUM(points), 0) FROM points_transactions WHERE customer_id = $1`, customerID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum points: %w", err)
	}
	return sum, nil
}

// syncAccountBalance refreshes the cached balance column from the ledger.
// Reads never trust the column.
func syncAccountBalance(ctx context.Context, tx Tx, customerID int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE points_accounts
		SET balance = (SELECT COALESCE(SUM(points), 0) FROM points_transactions WHERE customer_id = $1),
		    updated_at = now()
		WHERE customer_id = $1
	`, customerID)
	if err != nil {
		return fmt.Errorf("failed to update points account: %w", err)
	}
	return nil
}

func scanTransaction(row Row) (*domain.PointsTransaction, error) {
	var (
		ptx           domain.PointsTransaction
		kind, refType string
		refID         *int64
	)
	if err := row.Scan(&ptx.ID, &ptx.CustomerID, &ptx.Points, &kind, &ptx.Description, &refType, &refID, &ptx.CreatedAt); err != nil {
		return nil, err
	}
	ptx.Type = domain.TransactionType(kind)
	ptx.Reference = domain.Reference{Type: domain.ReferenceType(refType)}
	if refID != nil {
		ptx.Reference.ID = *refID
	}
	return &ptx, nil
}

func referenceArgs(ref domain.Reference) (string, *int64) {
	if ref.Type == "" || ref.Type == domain.ReferenceNone {
		return string(domain.ReferenceNone), nil
	}
	id := ref.ID
	return string(ref.Type), &id
}
