package memory

import (
	"context"
	"sync"
	"time"

	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
)

// PointsStore keeps one ledger for all customers. Redemptions are
// serialized by the store mutex, the in-process counterpart of the account
// row lock.
type PointsStore struct {
	mu     sync.Mutex
	txs    []domain.PointsTransaction
	orders *OrderStore
}

var _ interfaces.PointsRepository = (*PointsStore)(nil)

func NewPointsStore(orders *OrderStore) *PointsStore {
	return &PointsStore{orders: orders}
}

func (s *PointsStore) Earn(_ context.Context, tx *domain.PointsTransaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.txs {
		if existing.CustomerID == tx.CustomerID && existing.Type == domain.TransactionEarn &&
			existing.Reference == tx.Reference && tx.Reference.Type != domain.ReferenceNone {
			*tx = existing
			return false, nil
		}
	}

	s.insert(tx)
	return true, nil
}

func (s *PointsStore) Redeem(ctx context.Context, req interfaces.RedeemRequest, check interfaces.RedeemCheck) (*interfaces.RedeemResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var balance int64
	order, err := s.orders.UpdateLocked(ctx, req.OrderID, func(order *domain.Order) (*interfaces.OrderChange, error) {
		balance = s.balance(req.CustomerID)
		if err := check(order, balance); err != nil {
			return nil, err
		}
		order.AddPointsCredit(req.Credit)
		order.UpdatedAt = time.Now()
		return &interfaces.OrderChange{}, nil
	})
	if err != nil {
		return nil, err
	}

	tx := domain.PointsTransaction{
		CustomerID:  req.CustomerID,
		Points:      -req.Points,
		Type:        domain.TransactionRedeem,
		Description: req.Description,
		Reference:   domain.OrderReference(req.OrderID),
	}
	s.insert(&tx)

	return &interfaces.RedeemResult{Transaction: tx, Order: order, Balance: balance - req.Points}, nil
}

func (s *PointsStore) Balance(_ context.Context, customerID int64) (domain.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.SumPoints(customerID, s.forCustomer(customerID), 0), nil
}

func (s *PointsStore) History(_ context.Context, customerID int64, limit, offset int) ([]domain.PointsTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txs := s.forCustomer(customerID)
	var newestFirst []domain.PointsTransaction
	for i := len(txs) - 1; i >= 0; i-- {
		newestFirst = append(newestFirst, txs[i])
	}
	if offset >= len(newestFirst) {
		return nil, nil
	}
	end := offset + limit
	if end > len(newestFirst) {
		end = len(newestFirst)
	}
	return newestFirst[offset:end], nil
}

func (s *PointsStore) FindTransaction(_ context.Context, id int64) (*domain.PointsTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range s.txs {
		if tx.ID == id {
			found := tx
			return &found, nil
		}
	}
	return nil, domain.NewNotFound("points transaction", id)
}

func (s *PointsStore) insert(tx *domain.PointsTransaction) {
	tx.ID = int64(len(s.txs) + 1)
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	s.txs = append(s.txs, *tx)
}

func (s *PointsStore) balance(customerID int64) int64 {
	var sum int64
	for _, tx := range s.txs {
		if tx.CustomerID == customerID {
			sum += tx.Points
		}
	}
	return sum
}

func (s *PointsStore) forCustomer(customerID int64) []domain.PointsTransaction {
	var txs []domain.PointsTransaction
	for _, tx := range s.txs {
		if tx.CustomerID == customerID {
			txs = append(txs, tx)
		}
	}
	return txs
}
