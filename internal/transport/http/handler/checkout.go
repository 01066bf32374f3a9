package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-pos/internal/domain"
	"github.com/sakashimaa/go-pos/internal/repository"
	"github.com/sakashimaa/go-pos/internal/service"
	"github.com/sakashimaa/go-pos/pkg/mylogger"
	"github.com/sakashimaa/go-pos/pkg/utils"
	"go.uber.org/zap"
)

type CheckoutHandler struct {
	checkout service.CheckoutService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewCheckoutHandler(checkout service.CheckoutService, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		validate: validator.New(),
		logger:   logger,
	}
}

type orderItemResponse struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Quantity  int32  `json:"quantity"`
	Returned  bool   `json:"returned"`
}

type orderResponse struct {
	ID            int64               `json:"id"`
	Status        string              `json:"status"`
	CustomerID    *int64              `json:"customer_id,omitempty"`
	CustomerName  string              `json:"customer_name,omitempty"`
	Items         []orderItemResponse `json:"items"`
	Subtotal      string              `json:"subtotal"`
	Tax           string              `json:"tax"`
	Total         string              `json:"total"`
	PaymentMethod string              `json:"payment_method,omitempty"`
	AmountPaid    string              `json:"amount_paid,omitempty"`
	Change        string              `json:"change,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

func toOrderResponse(order *domain.Order) orderResponse {
	resp := orderResponse{
		ID:           order.ID,
		Status:       string(order.Status),
		CustomerID:   order.CustomerID,
		CustomerName: order.CustomerName,
		Subtotal:     order.Subtotal.StringFixed(2),
		Tax:          order.Tax.StringFixed(2),
		Total:        order.Total.StringFixed(2),
		CreatedAt:    order.CreatedAt,
	}

	for _, item := range order.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price.StringFixed(2),
			Quantity:  item.Quantity,
			Returned:  item.Returned,
		})
	}

	if order.Payment != nil {
		resp.PaymentMethod = string(order.Payment.Method)
		resp.AmountPaid = order.Payment.AmountPaid.StringFixed(2)
		resp.Change = order.Payment.ChangeAmount.StringFixed(2)
	}

	return resp
}

func (h *CheckoutHandler) CompleteSale(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	sessionID := c.Params("id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "session id is required",
		})
	}

	req := new(service.CompleteSaleRequest)
	if err := c.BodyParser(req); err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"body parsing failed",
			zap.Error(err),
		)

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": utils.FormatValidationError(err),
		})
	}

	result, err := h.checkout.CompleteSale(ctx, sessionID, req)
	if err != nil {
		var stockErr *service.StockRejectionError
		if errors.As(err, &stockErr) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"state":      string(result.State),
				"error":      "stock rejection",
				"product_id": stockErr.ProductID,
				"cause":      stockErr.Err.Error(),
			})
		}

		if errors.Is(err, service.ErrInsufficientPayment) {
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"state": string(result.State),
				"error": err.Error(),
			})
		}

		mylogger.Warn(
			ctx,
			h.logger,
			"complete sale failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)

		return c.Status(statusFromError(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	status := fiber.StatusCreated
	if result.Replayed {
		status = fiber.StatusOK
	}

	return c.Status(status).JSON(fiber.Map{
		"state":         string(result.State),
		"order":         toOrderResponse(result.Order),
		"change":        result.Change.StringFixed(2),
		"low_stock_ids": result.LowStock,
		"replayed":      result.Replayed,
	})
}

type RefundInput struct {
	ItemIDs []int64 `json:"item_ids" validate:"required,min=1"`
	Reason  string  `json:"reason" validate:"max=500"`
}

func (h *CheckoutHandler) Refund(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	idStr := c.Params("id")
	orderID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid order id",
		})
	}

	input := new(RefundInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": utils.FormatValidationError(err),
		})
	}

	if err := h.checkout.Refund(ctx, orderID, input.ItemIDs, input.Reason); err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"refund failed",
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)

		return c.Status(statusFromError(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	mylogger.Info(
		ctx,
		h.logger,
		"refund processed",
		zap.Int64("order_id", orderID),
		zap.Int("items_count", len(input.ItemIDs)),
	)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
	})
}

func (h *CheckoutHandler) GetOrder(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), time.Second)
	defer cancel()

	idStr := c.Params("id")
	orderID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid order id",
		})
	}

	order, err := h.checkout.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "order not found",
			})
		}

		return c.Status(statusFromError(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(toOrderResponse(order))
}
