package reward

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/YelzhanWeb/tablehub/internal/adapter/logger"
	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockRewardRepository implements interfaces.RewardRepository
type MockRewardRepository struct {
	Products  map[int64]domain.ProductReward
	Variants  map[int64]domain.VariantReward
	Combos    map[int64]domain.ComboReward
	ListDelay time.Duration
	ListCalls int32
}

func (m *MockRewardRepository) FindProduct(_ context.Context, id int64) (*domain.ProductReward, error) {
	p, ok := m.Products[id]
	if !ok {
		return nil, domain.NewNotFound("product", id)
	}
	return &p, nil
}

func (m *MockRewardRepository) FindVariant(_ context.Context, id int64) (*domain.VariantReward, bool, error) {
	v, ok := m.Variants[id]
	if !ok {
		return nil, false, domain.NewNotFound("product variant", id)
	}
	return &v, m.Products[v.ProductID].IsActive, nil
}

func (m *MockRewardRepository) FindCombo(_ context.Context, id int64) (*domain.ComboReward, error) {
	c, ok := m.Combos[id]
	if !ok {
		return nil, domain.NewNotFound("combo", id)
	}
	return &c, nil
}

func (m *MockRewardRepository) ListActive(ctx context.Context) ([]domain.Reward, error) {
	atomic.AddInt32(&m.ListCalls, 1)
	if m.ListDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.ListDelay):
		}
	}

	var rewards []domain.Reward
	for _, p := range m.Products {
		rewards = append(rewards, p)
	}
	for _, c := range m.Combos {
		rewards = append(rewards, c)
	}
	return rewards, nil
}

// MockCatalogCache implements interfaces.CatalogCache
type MockCatalogCache struct {
	mu    sync.Mutex
	views []domain.RewardView
	set   bool
}

func (m *MockCatalogCache) GetCatalog(context.Context) ([]domain.RewardView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.set {
		return nil, interfaces.ErrCacheMiss
	}
	return m.views, nil
}

func (m *MockCatalogCache) SetCatalog(_ context.Context, views []domain.RewardView) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views, m.set = views, true
	return nil
}

func cost(v int64) *int64 { return &v }

func newRepo() *MockRewardRepository {
	return &MockRewardRepository{
		Products: map[int64]domain.ProductReward{
			1: {ID: 1, Name: "Coffee", PointsCost: cost(50), IsRedeemable: true, IsActive: true, Variants: []domain.VariantReward{
				{ID: 10, ProductID: 1, Name: "Small", PointsCost: cost(40), IsRedeemable: true, IsActive: true},
				{ID: 11, ProductID: 1, Name: "Large", PointsCost: cost(60), IsRedeemable: true, IsActive: true},
				{ID: 12, ProductID: 1, Name: "Seasonal", PointsCost: cost(70), IsRedeemable: true, IsActive: false},
			}},
			2: {ID: 2, Name: "Cookie", PointsCost: cost(20), IsRedeemable: true, IsActive: true},
			3: {ID: 3, Name: "Retired cake", PointsCost: cost(90), IsRedeemable: true, IsActive: false, Variants: []domain.VariantReward{
				{ID: 30, ProductID: 3, Name: "Slice", PointsCost: cost(30), IsRedeemable: true, IsActive: true},
			}},
			4: {ID: 4, Name: "Water", IsRedeemable: true, IsActive: true},
		},
		Variants: map[int64]domain.VariantReward{
			10: {ID: 10, ProductID: 1, Name: "Small", PointsCost: cost(40), IsRedeemable: true, IsActive: true},
			12: {ID: 12, ProductID: 1, Name: "Seasonal", PointsCost: cost(70), IsRedeemable: true, IsActive: false},
			30: {ID: 30, ProductID: 3, Name: "Slice", PointsCost: cost(30), IsRedeemable: true, IsActive: true},
		},
		Combos: map[int64]domain.ComboReward{
			5: {ID: 5, Name: "Breakfast", PointsCost: cost(150), IsRedeemable: true, IsActive: true, Items: []string{"Coffee", "Croissant"}},
		},
	}
}

func TestResolveReward_ProductWithVariants(t *testing.T) {
	svc := NewService(newRepo(), nil, logger.Nop{})

	view, err := svc.ResolveReward(context.Background(), domain.RewardProduct, 1)
	require.NoError(t, err)

	assert.Nil(t, view.PointsCost)
	assert.True(t, view.IsRedeemable)
	require.Len(t, view.Variants, 2)
	assert.Equal(t, "Small", view.Variants[0].Name)
	assert.Equal(t, int64(40), *view.Variants[0].PointsCost)
	assert.Equal(t, int64(60), *view.Variants[1].PointsCost)
}

func TestResolveReward_PlainProductAndCombo(t *testing.T) {
	svc := NewService(newRepo(), nil, logger.Nop{})

	cookie, err := svc.ResolveReward(context.Background(), domain.RewardProduct, 2)
	require.NoError(t, err)
	require.NotNil(t, cookie.PointsCost)
	assert.Equal(t, int64(20), *cookie.PointsCost)
	assert.Empty(t, cookie.Variants)

	water, err := svc.ResolveReward(context.Background(), domain.RewardProduct, 4)
	require.NoError(t, err)
	assert.False(t, water.IsRedeemable)

	combo, err := svc.ResolveReward(context.Background(), domain.RewardCombo, 5)
	require.NoError(t, err)
	assert.Equal(t, domain.RewardCombo, combo.Type)
	assert.Equal(t, []string{"Coffee", "Croissant"}, combo.Items)
}

func TestResolveReward_NotFound(t *testing.T) {
	svc := NewService(newRepo(), nil, logger.Nop{})

	tests := []struct {
		name       string
		rewardType domain.RewardType
		id         int64
	}{
		{"unknown type", "gift_card", 1},
		{"missing product", domain.RewardProduct, 99},
		{"inactive product", domain.RewardProduct, 3},
		{"inactive variant", domain.RewardProductVariant, 12},
		{"variant of inactive product", domain.RewardProductVariant, 30},
		{"missing combo", domain.RewardCombo, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ResolveReward(context.Background(), tt.rewardType, tt.id)
			var notFound *domain.NotFoundError
			assert.True(t, errors.As(err, &notFound), "got %v", err)
		})
	}

	variant, err := svc.ResolveReward(context.Background(), domain.RewardProductVariant, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.RewardProductVariant, variant.Type)
}

func TestCatalog_OnlyRedeemableAndCached(t *testing.T) {
	repo := newRepo()
	cache := &MockCatalogCache{}
	svc := NewService(repo, cache, logger.Nop{})

	views, err := svc.Catalog(context.Background())
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, v := range views {
		names[v.Name] = true
	}
	assert.Equal(t, map[string]bool{"Coffee": true, "Cookie": true, "Breakfast": true}, names)

	_, err = svc.Catalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&repo.ListCalls))
}

func TestCatalog_ConcurrentMissesShareOneLoad(t *testing.T) {
	repo := newRepo()
	repo.ListDelay = 50 * time.Millisecond
	svc := NewService(repo, nil, logger.Nop{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			views, err := svc.Catalog(context.Background())
			assert.NoError(t, err)
			assert.Len(t, views, 3)
		}()
	}
	wg.Wait()

	assert.Less(t, atomic.LoadInt32(&repo.ListCalls), int32(8))
}

func TestCatalog_CancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	repo := newRepo()
	repo.ListDelay = 50 * time.Millisecond
	svc := NewService(repo, nil, logger.Nop{})

	ctx, cancel := context.WithCancel(context.Background())
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		svc.Catalog(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	secondDone := make(chan struct{})
	var (
		views []domain.RewardView
		err   error
	)
	go func() {
		defer close(secondDone)
		views, err = svc.Catalog(context.Background())
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	<-firstDone
	<-secondDone

	require.NoError(t, err)
	assert.Len(t, views, 3)
	assert.Equal(t, int32(1), atomic.LoadInt32(&repo.ListCalls))
}
