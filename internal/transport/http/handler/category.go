package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-pos/internal/category"
	"github.com/sakashimaa/go-pos/internal/repository"
	"github.com/sakashimaa/go-pos/pkg/mylogger"
	"go.uber.org/zap"
)

type CategoryHandler struct {
	categories repository.CategoryRepository
	resolver   *category.Resolver
	logger     *zap.Logger
}

func NewCategoryHandler(categories repository.CategoryRepository, resolver *category.Resolver, logger *zap.Logger) *CategoryHandler {
	return &CategoryHandler{
		categories: categories,
		resolver:   resolver,
		logger:     logger,
	}
}

// Subcategories returns the children of the given parent, or the root
// categories when no parent is given.
func (h *CategoryHandler) Subcategories(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), time.Second)
	defer cancel()

	var parentID *int64
	if raw := c.Query("parent_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid parent_id",
			})
		}
		parentID = &id
	}

	children, err := h.categories.Children(ctx, parentID)
	if err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"subcategories lookup failed",
			zap.Error(err),
		)

		return c.Status(statusFromError(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"categories": children,
	})
}

// Chain returns the root-to-leaf ancestor chain of a category, the
// shape a terminal needs to rebuild its level selectors.
func (h *CategoryHandler) Chain(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), time.Second)
	defer cancel()

	idStr := c.Params("id")
	leafID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid category id",
		})
	}

	chain, err := h.resolver.ResolveChain(ctx, leafID)
	if err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"chain resolution failed",
			zap.Int64("category_id", leafID),
			zap.Error(err),
		)

		return c.Status(statusFromError(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"chain": chain,
	})
}
