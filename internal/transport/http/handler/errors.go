package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-pos/internal/cart"
	"github.com/sakashimaa/go-pos/internal/category"
	"github.com/sakashimaa/go-pos/internal/repository"
	"github.com/sakashimaa/go-pos/internal/service"
)

// statusFromError maps service and repository errors onto HTTP status
// codes. Anything unmapped is a 500.
func statusFromError(err error) int {
	var quantityErr *service.QuantityRejectedError
	var stockErr *service.StockRejectionError

	switch {
	case errors.As(err, &quantityErr):
		return fiber.StatusBadRequest
	case errors.As(err, &stockErr):
		return fiber.StatusConflict
	case errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrCategoryNotFound),
		errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, cart.ErrProductNotInCart):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrSettlementInProgress):
		return fiber.StatusConflict
	case errors.Is(err, service.ErrInsufficientPayment):
		return fiber.StatusPaymentRequired
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, cart.ErrNegativeQuantity),
		errors.Is(err, category.ErrLevelOutOfRange),
		errors.Is(err, category.ErrNotAnOption):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}
