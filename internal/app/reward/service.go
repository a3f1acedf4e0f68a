package reward

import (
	"context"
	"errors"
	"fmt"

	"github.com/YelzhanWeb/tablehub/internal/adapter/logger"
	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
	"golang.org/x/sync/singleflight"
)

type Service struct {
	repo   interfaces.RewardRepository
	cache  interfaces.CatalogCache
	logger logger.Logger
	loads  singleflight.Group
}

// NewService wires the catalog. cache may be nil.
func NewService(repo interfaces.RewardRepository, cache interfaces.CatalogCache, logger logger.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// ResolveReward loads one reward of the given type. Unknown types, missing
// ids and inactive rewards are all reported as not found.
func (s *Service) ResolveReward(ctx context.Context, rewardType domain.RewardType, id int64) (domain.RewardView, error) {
	reward, err := s.find(ctx, rewardType, id)
	if err != nil {
		return domain.RewardView{}, err
	}
	return domain.ViewReward(reward), nil
}

func (s *Service) find(ctx context.Context, rewardType domain.RewardType, id int64) (domain.Reward, error) {
	switch rewardType {
	case domain.RewardProduct:
		product, err := s.repo.FindProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		if !product.IsActive {
			return nil, domain.NewNotFound("product", id)
		}
		return *product, nil

	case domain.RewardProductVariant:
		variant, parentActive, err := s.repo.FindVariant(ctx, id)
		if err != nil {
			return nil, err
		}
		if !variant.IsActive || !parentActive {
			return nil, domain.NewNotFound("product variant", id)
		}
		return *variant, nil

	case domain.RewardCombo:
		combo, err := s.repo.FindCombo(ctx, id)
		if err != nil {
			return nil, err
		}
		if !combo.IsActive {
			return nil, domain.NewNotFound("combo", id)
		}
		return *combo, nil
	}

	return nil, domain.NewNotFound("reward type", rewardType)
}

// Catalog lists every active reward that can be redeemed. Concurrent cache
// misses share one database load.
func (s *Service) Catalog(ctx context.Context) ([]domain.RewardView, error) {
	if s.cache != nil {
		views, err := s.cache.GetCatalog(ctx)
		if err == nil {
			return views, nil
		}
		if !errors.Is(err, interfaces.ErrCacheMiss) {
			s.logger.Error("catalog_cache_read_failed", "Failed to read reward catalog from cache", "", nil, err)
		}
	}

	// the load is shared, so one caller going away must not fail the others
	v, err, _ := s.loads.Do("catalog", func() (interface{}, error) {
		return s.load(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.RewardView), nil
}

func (s *Service) load(ctx context.Context) ([]domain.RewardView, error) {
	rewards, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}

	views := make([]domain.RewardView, 0, len(rewards))
	for _, r := range rewards {
		if !r.Active() {
			continue
		}
		if view := domain.ViewReward(r); view.IsRedeemable {
			views = append(views, view)
		}
	}

	if s.cache != nil {
		if err := s.cache.SetCatalog(ctx, views); err != nil {
			s.logger.Error("catalog_cache_write_failed", "Failed to cache reward catalog", "", nil, err)
		}
	}

	s.logger.Debug("catalog_loaded", fmt.Sprintf("Loaded %d rewards", len(views)), "", nil)
	return views, nil
}
