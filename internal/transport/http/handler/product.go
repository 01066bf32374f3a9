package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-pos/internal/domain"
	"github.com/sakashimaa/go-pos/internal/service"
	"github.com/sakashimaa/go-pos/pkg/mylogger"
	"go.uber.org/zap"
)

type ProductHandler struct {
	catalog service.CatalogService
	logger  *zap.Logger
}

func NewProductHandler(catalog service.CatalogService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		catalog: catalog,
		logger:  logger,
	}
}

type productResponse struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	Price             string `json:"price"`
	StockQuantity     int32  `json:"stock_quantity"`
	LowStock          bool   `json:"low_stock"`
	LowStockThreshold int32  `json:"low_stock_threshold"`
	CategoryID        *int64 `json:"category_id,omitempty"`
	Sku               string `json:"sku"`
}

func toProductResponse(p *domain.Product) productResponse {
	return productResponse{
		ID:                p.ID,
		Name:              p.Name,
		Description:       p.Description,
		Price:             p.Price.StringFixed(2),
		StockQuantity:     p.StockQuantity,
		LowStock:          p.StockQuantity <= p.LowStockThreshold,
		LowStockThreshold: p.LowStockThreshold,
		CategoryID:        p.CategoryID,
		Sku:               p.Sku,
	}
}

func (h *ProductHandler) FindByID(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), time.Second)
	defer cancel()

	idStr := c.Params("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"invalid product id",
			zap.String("id", idStr),
		)

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid id",
		})
	}

	product, err := h.catalog.FindByID(ctx, id)
	if err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"find by id failed",
			zap.Int64("product_id", id),
			zap.Error(err),
		)

		return c.Status(statusFromError(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(toProductResponse(product))
}

func (h *ProductHandler) ListProducts(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), time.Second)
	defer cancel()

	offset := int64(c.QueryInt("offset", 0))
	limit := int64(c.QueryInt("limit", 20))
	search := c.Query("search")

	products, total, err := h.catalog.List(ctx, limit, offset, search)
	if err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"list products failed",
			zap.Error(err),
		)

		return c.Status(statusFromError(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	items := make([]productResponse, 0, len(products))
	for i := range products {
		items = append(items, toProductResponse(&products[i]))
	}

	mylogger.Info(
		ctx,
		h.logger,
		"list products succeeded",
		zap.Int64("offset", offset),
		zap.Int64("limit", limit),
		zap.String("search", search),
		zap.Int64("total", total),
	)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"products":    items,
		"total_count": total,
	})
}
