package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-pos/internal/transport/http/handler"
)

type Handlers struct {
	Terminal *handler.TerminalHandler
	Product  *handler.ProductHandler
	Checkout *handler.CheckoutHandler
	Category *handler.CategoryHandler
}

func RegisterRoutes(app *fiber.App, h *Handlers) {
	api := app.Group("/api")

	sessions := api.Group("/sessions")
	sessions.Post("", h.Terminal.OpenSession)
	sessions.Delete("/:id", h.Terminal.CloseSession)
	sessions.Post("/:id/cart", h.Terminal.MutateCart)
	sessions.Get("/:id/cart", h.Terminal.GetTotals)
	sessions.Post("/:id/checkout", h.Checkout.CompleteSale)

	products := api.Group("/products")
	products.Get("/:id", h.Product.FindByID)
	products.Get("", h.Product.ListProducts)

	orders := api.Group("/orders")
	orders.Get("/:id", h.Checkout.GetOrder)
	orders.Post("/:id/refund", h.Checkout.Refund)

	categories := api.Group("/categories")
	categories.Get("", h.Category.Subcategories)
	categories.Get("/:id/chain", h.Category.Chain)
}
