package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/YelzhanWeb/tablehub/internal/adapter/logger"
	"github.com/YelzhanWeb/tablehub/internal/app/order"
	"github.com/YelzhanWeb/tablehub/internal/app/points"
	"github.com/YelzhanWeb/tablehub/internal/app/promotion"
	"github.com/YelzhanWeb/tablehub/internal/app/reward"
	"github.com/YelzhanWeb/tablehub/internal/app/status"
	"github.com/YelzhanWeb/tablehub/internal/app/tracking"
	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/testutil/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockRewardRepository struct {
	Products map[int64]*domain.ProductReward
	Combos   map[int64]*domain.ComboReward
}

func (m *MockRewardRepository) FindProduct(_ context.Context, id int64) (*domain.ProductReward, error) {
	if p, ok := m.Products[id]; ok {
		return p, nil
	}
	return nil, domain.NewNotFound("product", id)
}

func (m *MockRewardRepository) FindVariant(_ context.Context, id int64) (*domain.VariantReward, bool, error) {
	for _, p := range m.Products {
		for _, v := range p.Variants {
			if v.ID == id {
				return &v, p.IsActive, nil
			}
		}
	}
	return nil, false, domain.NewNotFound("product variant", id)
}

func (m *MockRewardRepository) FindCombo(_ context.Context, id int64) (*domain.ComboReward, error) {
	if c, ok := m.Combos[id]; ok {
		return c, nil
	}
	return nil, domain.NewNotFound("combo", id)
}

func (m *MockRewardRepository) ListActive(context.Context) ([]domain.Reward, error) {
	var out []domain.Reward
	for _, p := range m.Products {
		out = append(out, *p)
	}
	for _, c := range m.Combos {
		out = append(out, *c)
	}
	return out, nil
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type server struct {
	handler http.Handler
	points  *points.Service
}

func newServer(t *testing.T) *server {
	t.Helper()
	log := logger.Nop{}

	promotions := memory.NewPromotionStore()
	orders := memory.NewOrderStore(promotions)
	ledger := memory.NewPointsStore(orders)

	cost := int64(120)
	rewards := &MockRewardRepository{
		Products: map[int64]*domain.ProductReward{
			1: {ID: 1, Name: "Margherita", PointsCost: &cost, IsRedeemable: true, IsActive: true},
		},
		Combos: map[int64]*domain.ComboReward{},
	}

	pointsSvc := points.NewService(ledger, nil, log, domain.Money(10))
	h := Handlers{
		Orders: NewOrderHandler(
			order.NewService(orders, promotions, log),
			status.NewService(orders, nil, log, decimal.NewFromInt(1)),
			promotion.NewService(orders, promotions, log),
			log,
		),
		Tracking: NewTrackingHandler(tracking.NewService(orders, log), log),
		Points:   NewPointsHandler(pointsSvc, log),
		Rewards:  NewRewardHandler(reward.NewService(rewards, nil, log), log),
	}
	return &server{handler: NewRouter(h, log, 0), points: pointsSvc}
}

func (s *server) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *server) placeOrder(t *testing.T, customerID int64) domain.OrderView {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/orders", map[string]any{
		"customer_id":   customerID,
		"restaurant_id": 3,
		"service_type":  "pickup",
		"items": []map[string]any{
			{"product_id": 1, "name": "Margherita", "quantity": 2, "unit_price": "12.50"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var view domain.OrderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	return view
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCreateOrder(t *testing.T) {
	s := newServer(t)

	view := s.placeOrder(t, 7)

	assert.NotZero(t, view.ID)
	assert.Equal(t, domain.StatusPending, view.Status)
	assert.Equal(t, domain.Money(2500), view.Subtotal)
	assert.Equal(t, domain.Money(2500), view.Total)
	require.Len(t, view.Items, 1)
	assert.Equal(t, domain.Money(2500), view.Items[0].LineTotal)
}

func TestCreateOrder_ValidationErrors(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/orders", map[string]any{
		"customer_id":   7,
		"restaurant_id": 3,
		"service_type":  "drive_through",
		"items": []map[string]any{
			{"product_id": 1, "name": "Margherita", "quantity": 0, "unit_price": "12.50"},
		},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "Validation failed", resp.Error)

	fields := make([]string, len(resp.Errors))
	for i, e := range resp.Errors {
		fields[i] = e.Field
	}
	assert.ElementsMatch(t, []string{"service_type", "items[0].quantity"}, fields)
}

func TestCreateOrder_MalformedBody(t *testing.T) {
	s := newServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decodeError(t, rec).Error)
}

func TestUpdateStatus_AndHistory(t *testing.T) {
	s := newServer(t)
	view := s.placeOrder(t, 7)
	base := fmt.Sprintf("/api/v1/orders/%d", view.ID)

	rec := s.do(t, http.MethodPatch, base+"/status", map[string]any{"status": "preparing", "actor": "kitchen"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated domain.OrderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, domain.StatusPreparing, updated.Status)
	require.NotNil(t, updated.PreviousStatus)
	assert.Equal(t, domain.StatusPending, *updated.PreviousStatus)

	rec = s.do(t, http.MethodGet, base+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []StatusLogResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 2)
	assert.Equal(t, domain.StatusPreparing, history[1].Status)
	assert.Equal(t, "kitchen", history[1].ChangedBy)
}

func TestUpdateStatus_InvalidTransition(t *testing.T) {
	s := newServer(t)
	view := s.placeOrder(t, 7)
	path := fmt.Sprintf("/api/v1/orders/%d/status", view.ID)

	rec := s.do(t, http.MethodPatch, path, map[string]any{"status": "completed"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orders/%d", view.ID), nil)
	var current domain.OrderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &current))
	assert.Equal(t, domain.StatusPending, current.Status)
}

func TestUpdateStatus_UnknownStatus(t *testing.T) {
	s := newServer(t)
	view := s.placeOrder(t, 7)

	rec := s.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/orders/%d/status", view.ID), map[string]any{"status": "burnt"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.Len(t, decodeError(t, rec).Errors, 1)
	assert.Equal(t, "status", decodeError(t, rec).Errors[0].Field)
}

func TestGetOrder_NotFoundAndBadID(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/orders/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/orders/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "orderID", decodeError(t, rec).Errors[0].Field)
}

func TestRedeem(t *testing.T) {
	s := newServer(t)
	view := s.placeOrder(t, 7)
	_, _, err := s.points.Earn(context.Background(), 7, 100, domain.Reference{Type: domain.ReferenceNone}, "welcome")
	require.NoError(t, err)

	path := "/api/v1/customers/7/points/redeem"
	rec := s.do(t, http.MethodPost, path, map[string]any{"order_id": view.ID, "points_to_redeem": 50})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp RedeemResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(-50), resp.Transaction.Points)
	assert.Equal(t, int64(50), resp.Balance.Points)

	rec = s.do(t, http.MethodPost, path, map[string]any{"order_id": view.ID, "points_to_redeem": 60})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/customers/7/points", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balance domain.Balance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &balance))
	assert.Equal(t, int64(50), balance.Points)

	rec = s.do(t, http.MethodGet, "/api/v1/customers/7/points/transactions?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Len(t, history.Transactions, 1)
	assert.Equal(t, 1, history.Limit)
}

func TestRedeem_Validation(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/customers/7/points/redeem", map[string]any{"points_to_redeem": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, decodeError(t, rec).Errors, 2)

	rec = s.do(t, http.MethodGet, "/api/v1/customers/7/points/transactions?limit=500", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRewards(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/rewards", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var catalog []domain.RewardView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &catalog))
	require.Len(t, catalog, 1)
	assert.Equal(t, "Margherita", catalog[0].Name)

	rec = s.do(t, http.MethodGet, "/api/v1/rewards/product/1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/rewards/gift_card/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.NewNotFound("order", 1), http.StatusNotFound},
		{&domain.InvalidTransitionError{OrderID: 1, From: domain.StatusPending, To: domain.StatusCompleted}, http.StatusConflict},
		{fmt.Errorf("claim: %w", domain.ErrRequestInProgress), http.StatusConflict},
		{domain.ErrPromotionExhausted, http.StatusConflict},
		{&domain.InsufficientPointsError{CustomerID: 1, Requested: 60, Available: 50}, http.StatusUnprocessableEntity},
		{&domain.InvalidOrderError{OrderID: 1, Reason: "not pending"}, http.StatusUnprocessableEntity},
		{&domain.PersistenceError{Op: "commit", Err: errors.New("conn reset")}, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestRespondServiceError_PersistenceSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	respondServiceError(rec, req, logger.Nop{}, "test", &domain.PersistenceError{Op: "begin", Err: errors.New("pool closed")})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, retryAfterSeconds, rec.Header().Get("Retry-After"))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(logger.Nop{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map write")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", decodeError(t, rec).Error)
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	healthz(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	healthz(failingPinger{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
