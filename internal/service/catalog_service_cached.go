package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/go-pos/internal/domain"
)

type cachedCatalogService struct {
	next        CatalogService
	redisClient *redis.Client
	cacheTTL    time.Duration
}

// NewCachedCatalogService caches product reads behind a short TTL.
// Stock-sensitive reads bypass the cache, and the settlement path
// invalidates sold products explicitly.
func NewCachedCatalogService(next CatalogService, redisClient *redis.Client, cacheTTL time.Duration) CatalogService {
	return &cachedCatalogService{
		next:        next,
		redisClient: redisClient,
		cacheTTL:    cacheTTL,
	}
}

func (s *cachedCatalogService) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	key := fmt.Sprintf("product:%d", id)

	val, err := s.redisClient.Get(ctx, key).Result()
	if err == nil {
		var product domain.Product
		if err := json.Unmarshal([]byte(val), &product); err == nil {
			return &product, nil
		}
	}

	product, err := s.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(product); err == nil {
		s.redisClient.Set(ctx, key, data, s.cacheTTL)
	}

	return product, nil
}

func (s *cachedCatalogService) List(ctx context.Context, limit, offset int64, search string) ([]domain.Product, int64, error) {
	return s.next.List(ctx, limit, offset, search)
}

// AvailableStock is never served from cache: the quantity gate must
// see a fresh read on every attempt.
func (s *cachedCatalogService) AvailableStock(ctx context.Context, id int64) (int32, error) {
	return s.next.AvailableStock(ctx, id)
}

// Invalidate drops the cached entries for products whose stock just
// changed.
func (s *cachedCatalogService) Invalidate(ctx context.Context, ids ...int64) {
	for _, id := range ids {
		s.redisClient.Del(ctx, fmt.Sprintf("product:%d", id))
	}
}
