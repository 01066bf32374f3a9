package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakashimaa/go-pos/internal/domain"
	"github.com/sakashimaa/go-pos/internal/repository"
	"go.uber.org/zap"
)

type CatalogService interface {
	FindByID(ctx context.Context, id int64) (*domain.Product, error)
	List(ctx context.Context, limit, offset int64, search string) ([]domain.Product, int64, error)
	AvailableStock(ctx context.Context, id int64) (int32, error)
}

type catalogService struct {
	productRepo repository.ProductRepository
	logger      *zap.Logger
}

func NewCatalogService(productRepo repository.ProductRepository, logger *zap.Logger) CatalogService {
	return &catalogService{
		productRepo: productRepo,
		logger:      logger,
	}
}

func (s *catalogService) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	res, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			s.logger.Warn("product not found", zap.Int64("product_id", id))
			return nil, err
		}

		s.logger.Error("error getting product", zap.Error(err))
		return nil, fmt.Errorf("error getting product by id: %w", err)
	}

	return res, nil
}

func (s *catalogService) List(ctx context.Context, limit, offset int64, search string) ([]domain.Product, int64, error) {
	list, quantity, err := s.productRepo.List(ctx, limit, offset, search)
	if err != nil {
		s.logger.Error("list error", zap.Error(err))
		return nil, 0, fmt.Errorf("error listing products: %w", err)
	}

	return list, quantity, nil
}

// AvailableStock reads the live quantity straight from the store.
// Every cart mutation re-checks through here; stock moves under
// concurrent terminals, so the answer is never cached.
func (s *catalogService) AvailableStock(ctx context.Context, id int64) (int32, error) {
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}

	return product.StockQuantity, nil
}
