package handler

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-pos/internal/service"
	"github.com/sakashimaa/go-pos/pkg/mylogger"
	"github.com/sakashimaa/go-pos/pkg/utils"
	"go.uber.org/zap"
)

type TerminalHandler struct {
	terminal service.TerminalService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewTerminalHandler(terminal service.TerminalService, logger *zap.Logger) *TerminalHandler {
	return &TerminalHandler{
		terminal: terminal,
		validate: validator.New(),
		logger:   logger,
	}
}

func (h *TerminalHandler) OpenSession(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), time.Second)
	defer cancel()

	id := h.terminal.OpenSession(ctx)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session_id": id,
	})
}

func (h *TerminalHandler) CloseSession(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), time.Second)
	defer cancel()

	sessionID := c.Params("id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "session id is required",
		})
	}

	if err := h.terminal.CloseSession(ctx, sessionID); err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"close session failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)

		return c.Status(statusFromError(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
	})
}

func (h *TerminalHandler) MutateCart(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), time.Second)
	defer cancel()

	sessionID := c.Params("id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "session id is required",
		})
	}

	op := new(service.CartOp)
	if err := c.BodyParser(op); err != nil {
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

	if err := h.validate.Struct(op); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": utils.FormatValidationError(err),
		})
	}

	view, err := h.terminal.MutateCart(ctx, sessionID, *op)
	if err != nil {
		var quantityErr *service.QuantityRejectedError
		if errors.As(err, &quantityErr) {
			// The cart is unchanged; the reason drives UI feedback.
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":      "quantity rejected",
				"reason":     string(quantityErr.Reason),
				"product_id": quantityErr.ProductID,
				"candidate":  quantityErr.Candidate,
			})
		}

		mylogger.Warn(
			ctx,
			h.logger,
			"cart mutation failed",
			zap.String("session_id", sessionID),
			zap.String("action", string(op.Action)),
			zap.Error(err),
		)

		return c.Status(statusFromError(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(view)
}

func (h *TerminalHandler) GetTotals(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), time.Second)
	defer cancel()

	sessionID := c.Params("id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "session id is required",
		})
	}

	view, err := h.terminal.GetTotals(ctx, sessionID)
	if err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"get totals failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)

		return c.Status(statusFromError(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(view)
}
