package points

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/YelzhanWeb/tablehub/internal/adapter/logger"
	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

var tracer = otel.Tracer("tablehub/points")

type Service struct {
	repo        interfaces.PointsRepository
	idempotency interfaces.IdempotencyStore
	logger      logger.Logger
	pointValue  domain.Money
	now         func() time.Time
}

// NewService builds the ledger service. idempotency may be nil, in which case
// Idempotency-Key is ignored.
func NewService(repo interfaces.PointsRepository, idempotency interfaces.IdempotencyStore, logger logger.Logger, pointValue domain.Money) *Service {
	return &Service{
		repo:        repo,
		idempotency: idempotency,
		logger:      logger,
		pointValue:  pointValue,
		now:         time.Now,
	}
}

// Earn credits points for a reference. Recording the same earn twice is a
// no-op that returns the existing transaction and false.
func (s *Service) Earn(ctx context.Context, customerID, points int64, ref domain.Reference, description string) (*domain.PointsTransaction, bool, error) {
	if points < 1 {
		return nil, false, fmt.Errorf("points to earn must be positive, got %d", points)
	}

	tx := &domain.PointsTransaction{
		CustomerID:  customerID,
		Points:      points,
		Type:        domain.TransactionEarn,
		Description: description,
		Reference:   ref,
		CreatedAt:   s.now(),
	}

	created, err := s.repo.Earn(ctx, tx)
	if err != nil {
		return nil, false, err
	}

	if created {
		s.logger.Info("points_earned", fmt.Sprintf("Customer %d earned %d points", customerID, points), "", map[string]interface{}{
			"customer_id":    customerID,
			"transaction_id": tx.ID,
			"reference":      ref,
		})
	} else {
		s.logger.Debug("points_earn_duplicate", "Earn already recorded", "", map[string]interface{}{
			"customer_id": customerID,
			"reference":   ref,
		})
	}
	return tx, created, nil
}

// Redeem converts points into credit on one of the customer's pending orders.
func (s *Service) Redeem(ctx context.Context, cmd interfaces.RedeemCommand) (*interfaces.RedeemOutcome, error) {
	ctx, span := tracer.Start(ctx, "points.Redeem")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("customer.id", cmd.CustomerID),
		attribute.Int64("order.id", cmd.OrderID),
		attribute.Int64("points", cmd.Points),
	)

	outcome, err := s.redeem(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return outcome, nil
}

func (s *Service) redeem(ctx context.Context, cmd interfaces.RedeemCommand) (*interfaces.RedeemOutcome, error) {
	if cmd.Points < 1 {
		return nil, &domain.InvalidOrderError{OrderID: cmd.OrderID, Reason: "points to redeem must be at least 1"}
	}

	key := s.idempotencyKey(cmd)
	if key != "" {
		previous, claimed, err := s.idempotency.Claim(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to claim idempotency key: %w", err)
		}
		if !claimed {
			return s.replay(ctx, cmd.CustomerID, previous)
		}
	}

	credit := domain.PointsValue(cmd.Points, s.pointValue)
	result, err := s.repo.Redeem(ctx, interfaces.RedeemRequest{
		CustomerID:  cmd.CustomerID,
		OrderID:     cmd.OrderID,
		Points:      cmd.Points,
		Credit:      credit,
		Description: fmt.Sprintf("Redeemed %d points on order %d", cmd.Points, cmd.OrderID),
	}, s.check(cmd, credit))
	if err != nil {
		s.release(ctx, key)
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) && notFound.Entity == "order" {
			return nil, &domain.InvalidOrderError{OrderID: cmd.OrderID, Reason: "order not found"}
		}
		return nil, err
	}

	if key != "" {
		if err := s.idempotency.Complete(ctx, key, strconv.FormatInt(result.Transaction.ID, 10)); err != nil {
			s.logger.Error("idempotency_complete_failed", "Failed to store redemption result", "", map[string]interface{}{
				"customer_id": cmd.CustomerID,
			}, err)
		}
	}

	s.logger.Info("points_redeemed", fmt.Sprintf("Customer %d redeemed %d points", cmd.CustomerID, cmd.Points), "", map[string]interface{}{
		"customer_id":    cmd.CustomerID,
		"order_id":       cmd.OrderID,
		"transaction_id": result.Transaction.ID,
		"credit":         credit.String(),
		"order_total":    result.Order.Total.String(),
	})

	balance, err := s.Balance(ctx, cmd.CustomerID)
	if err != nil {
		return nil, err
	}
	return &interfaces.RedeemOutcome{Transaction: result.Transaction, Balance: balance}, nil
}

// check runs with the account and the order locked.
func (s *Service) check(cmd interfaces.RedeemCommand, credit domain.Money) interfaces.RedeemCheck {
	return func(order *domain.Order, balance int64) error {
		if order.CustomerID != cmd.CustomerID {
			return &domain.InvalidOrderError{OrderID: order.ID, Reason: "order belongs to another customer"}
		}
		if order.Status != domain.StatusPending {
			return &domain.InvalidOrderError{OrderID: order.ID, Reason: "points can only be redeemed on pending orders"}
		}
		if cmd.Points > balance {
			return &domain.InsufficientPointsError{CustomerID: cmd.CustomerID, Requested: cmd.Points, Available: balance}
		}
		if credit > order.Total {
			return &domain.InvalidOrderError{OrderID: order.ID, Reason: fmt.Sprintf("credit %s exceeds the payable total %s", credit, order.Total)}
		}
		return nil
	}
}

func (s *Service) replay(ctx context.Context, customerID int64, previous string) (*interfaces.RedeemOutcome, error) {
	if previous == "" {
		return nil, domain.ErrRequestInProgress
	}

	txID, err := strconv.ParseInt(previous, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt idempotency result %q: %w", previous, err)
	}
	tx, err := s.repo.FindTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	balance, err := s.Balance(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return &interfaces.RedeemOutcome{Transaction: *tx, Balance: balance, Replayed: true}, nil
}

func (s *Service) release(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.idempotency.Release(ctx, key); err != nil {
		s.logger.Error("idempotency_release_failed", "Failed to release idempotency key", "", nil, err)
	}
}

func (s *Service) idempotencyKey(cmd interfaces.RedeemCommand) string {
	if s.idempotency == nil || cmd.IdempotencyKey == "" {
		return ""
	}
	return fmt.Sprintf("redeem:%d:%s", cmd.CustomerID, cmd.IdempotencyKey)
}

func (s *Service) Balance(ctx context.Context, customerID int64) (domain.Balance, error) {
	balance, err := s.repo.Balance(ctx, customerID)
	if err != nil {
		return domain.Balance{}, err
	}
	balance.Value = domain.PointsValue(balance.Points, s.pointValue)
	return balance, nil
}

func (s *Service) History(ctx context.Context, customerID int64, limit, offset int) ([]domain.PointsTransaction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.History(ctx, customerID, limit, offset)
}
