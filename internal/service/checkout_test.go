package service

import (
	"errors"

	"github.com/sakashimaa/go-pos/internal/domain"
	"github.com/sakashimaa/go-pos/internal/repository"
	"github.com/shopspring/decimal"
)

func (s *IntegrationTestSuite) TestCompleteSale_Success() {
	widgetID := s.seedProduct("widget", "19.99", 10, 2, "SKU-W")
	gadgetID := s.seedProduct("gadget", "5.005", 10, 2, "SKU-G")

	sessionID := s.Terminal.OpenSession(s.Ctx)
	s.addToCart(sessionID, widgetID, 3)
	s.addToCart(sessionID, gadgetID, 2)

	result, err := s.Checkout.CompleteSale(s.Ctx, sessionID, &CompleteSaleRequest{
		IdempotencyKey: "sale-1",
		PaymentMethod:  "cash",
		AmountPaid:     "80.00",
	})
	s.Require().NoError(err)
	s.Require().Equal(StateSettled, result.State)
	s.Require().False(result.Replayed)

	order := result.Order
	s.Require().NotZero(order.ID)
	s.Require().Equal("69.98", order.Subtotal.StringFixed(2))
	s.Require().Equal("7.00", order.Tax.StringFixed(2))
	s.Require().Equal("76.98", order.Total.StringFixed(2))
	s.Require().Equal("3.02", result.Change.StringFixed(2))

	s.Require().Equal(int32(7), s.stockOf(widgetID))
	s.Require().Equal(int32(8), s.stockOf(gadgetID))

	// The cart empties only after settlement.
	view, err := s.Terminal.GetTotals(s.Ctx, sessionID)
	s.Require().NoError(err)
	s.Require().Empty(view.Items)

	var outboxCount int
	err = s.DbPool.QueryRow(
		s.Ctx,
		"SELECT COUNT(*) FROM outbox WHERE event_type = 'SaleCompleted'",
	).Scan(&outboxCount)
	s.Require().NoError(err)
	s.Require().Equal(1, outboxCount)
}

func (s *IntegrationTestSuite) TestSubCentPriceRoundTrips() {
	gadgetID := s.seedProduct("gadget", "5.005", 10, 2, "SKU-G")

	// The column must hand back the catalog price at full precision;
	// a 2-place column would round it to 5.01 on write and the worked
	// totals above would come out a cent high.
	product, err := s.Catalog.FindByID(s.Ctx, gadgetID)
	s.Require().NoError(err)
	s.Require().True(
		product.Price.Equal(decimal.RequireFromString("5.005")),
		"expected 5.005, got %s", product.Price,
	)

	sessionID := s.Terminal.OpenSession(s.Ctx)
	s.addToCart(sessionID, gadgetID, 2)

	result, err := s.Checkout.CompleteSale(s.Ctx, sessionID, &CompleteSaleRequest{
		IdempotencyKey: "sale-subcent",
		PaymentMethod:  "cash",
		AmountPaid:     "20.00",
	})
	s.Require().NoError(err)
	s.Require().Equal("10.01", result.Order.Subtotal.StringFixed(2))

	// The captured unit price survives on the order item too.
	stored, err := s.orderRepo.GetByID(s.Ctx, result.Order.ID)
	s.Require().NoError(err)
	s.Require().Len(stored.Items, 1)
	s.Require().True(
		stored.Items[0].Price.Equal(decimal.RequireFromString("5.005")),
		"expected 5.005, got %s", stored.Items[0].Price,
	)
}

func (s *IntegrationTestSuite) TestCompleteSale_IdempotentReplay() {
	widgetID := s.seedProduct("widget", "10.00", 10, 2, "SKU-W")

	sessionID := s.Terminal.OpenSession(s.Ctx)
	s.addToCart(sessionID, widgetID, 2)

	first, err := s.Checkout.CompleteSale(s.Ctx, sessionID, &CompleteSaleRequest{
		IdempotencyKey: "sale-replay",
		PaymentMethod:  "card",
		AmountPaid:     "22.00",
	})
	s.Require().NoError(err)
	s.Require().Equal(StateSettled, first.State)

	// The retry returns the original order and takes no stock.
	second, err := s.Checkout.CompleteSale(s.Ctx, sessionID, &CompleteSaleRequest{
		IdempotencyKey: "sale-replay",
		PaymentMethod:  "card",
		AmountPaid:     "22.00",
	})
	s.Require().NoError(err)
	s.Require().True(second.Replayed)
	s.Require().Equal(first.Order.ID, second.Order.ID)

	s.Require().Equal(int32(8), s.stockOf(widgetID))
}

func (s *IntegrationTestSuite) TestCompleteSale_InsufficientStock() {
	widgetID := s.seedProduct("widget", "10.00", 10, 2, "SKU-W")
	scarceID := s.seedProduct("scarce", "5.00", 5, 2, "SKU-S")

	sessionID := s.Terminal.OpenSession(s.Ctx)
	s.addToCart(sessionID, widgetID, 2)
	s.addToCart(sessionID, scarceID, 5)

	// Someone else buys the scarce product between cart and checkout.
	_, err := s.DbPool.Exec(
		s.Ctx,
		"UPDATE products SET stock_quantity = 3 WHERE id = $1",
		scarceID,
	)
	s.Require().NoError(err)

	result, err := s.Checkout.CompleteSale(s.Ctx, sessionID, &CompleteSaleRequest{
		IdempotencyKey: "sale-short",
		PaymentMethod:  "cash",
		AmountPaid:     "100.00",
	})

	var stockErr *StockRejectionError
	s.Require().ErrorAs(err, &stockErr)
	s.Require().Equal(scarceID, stockErr.ProductID)
	s.Require().True(errors.Is(err, repository.ErrInsufficientStock))
	s.Require().Equal(StateRejectedStock, result.State)

	// The widget hold rolled back with the transaction.
	s.Require().Equal(int32(10), s.stockOf(widgetID))
	s.Require().Equal(int32(3), s.stockOf(scarceID))

	// The cart survives for another attempt.
	view, err := s.Terminal.GetTotals(s.Ctx, sessionID)
	s.Require().NoError(err)
	s.Require().Len(view.Items, 2)
}

func (s *IntegrationTestSuite) TestCompleteSale_InsufficientPayment() {
	widgetID := s.seedProduct("widget", "10.00", 10, 2, "SKU-W")

	sessionID := s.Terminal.OpenSession(s.Ctx)
	s.addToCart(sessionID, widgetID, 2)

	result, err := s.Checkout.CompleteSale(s.Ctx, sessionID, &CompleteSaleRequest{
		IdempotencyKey: "sale-broke",
		PaymentMethod:  "cash",
		AmountPaid:     "20.00",
	})
	s.Require().ErrorIs(err, ErrInsufficientPayment)
	s.Require().Equal(StateRejectedPayment, result.State)

	// The reservation rolled back; nothing was sold.
	s.Require().Equal(int32(10), s.stockOf(widgetID))

	var orderCount int
	s.Require().NoError(
		s.DbPool.QueryRow(s.Ctx, "SELECT COUNT(*) FROM orders").Scan(&orderCount),
	)
	s.Require().Zero(orderCount)
}

func (s *IntegrationTestSuite) TestCompleteSale_EmptyCart() {
	sessionID := s.Terminal.OpenSession(s.Ctx)

	_, err := s.Checkout.CompleteSale(s.Ctx, sessionID, &CompleteSaleRequest{
		IdempotencyKey: "sale-empty",
		PaymentMethod:  "cash",
		AmountPaid:     "10.00",
	})
	s.Require().ErrorIs(err, ErrEmptyCart)
}

func (s *IntegrationTestSuite) TestCompleteSale_LowStockFlagged() {
	widgetID := s.seedProduct("widget", "10.00", 6, 5, "SKU-W")

	sessionID := s.Terminal.OpenSession(s.Ctx)
	s.addToCart(sessionID, widgetID, 2)

	result, err := s.Checkout.CompleteSale(s.Ctx, sessionID, &CompleteSaleRequest{
		IdempotencyKey: "sale-low",
		PaymentMethod:  "upi",
		AmountPaid:     "22.00",
	})
	s.Require().NoError(err)

	// 6 - 2 = 4, at or below the threshold of 5.
	s.Require().Equal([]int64{widgetID}, result.LowStock)
}

func (s *IntegrationTestSuite) TestRefund_RestoresStock() {
	widgetID := s.seedProduct("widget", "10.00", 10, 2, "SKU-W")
	gadgetID := s.seedProduct("gadget", "5.00", 10, 2, "SKU-G")

	sessionID := s.Terminal.OpenSession(s.Ctx)
	s.addToCart(sessionID, widgetID, 3)
	s.addToCart(sessionID, gadgetID, 1)

	result, err := s.Checkout.CompleteSale(s.Ctx, sessionID, &CompleteSaleRequest{
		IdempotencyKey: "sale-refund",
		PaymentMethod:  "cash",
		AmountPaid:     "50.00",
	})
	s.Require().NoError(err)
	s.Require().Equal(int32(7), s.stockOf(widgetID))

	var widgetItemID int64
	for _, item := range result.Order.Items {
		if item.ProductID == widgetID {
			widgetItemID = item.ID
		}
	}
	s.Require().NotZero(widgetItemID)

	err = s.Checkout.Refund(s.Ctx, result.Order.ID, []int64{widgetItemID}, "damaged")
	s.Require().NoError(err)

	s.Require().Equal(int32(10), s.stockOf(widgetID))
	s.Require().Equal(int32(9), s.stockOf(gadgetID))

	// A second refund of the same item is a no-op error.
	err = s.Checkout.Refund(s.Ctx, result.Order.ID, []int64{widgetItemID}, "again")
	s.Require().Error(err)
	s.Require().Equal(int32(10), s.stockOf(widgetID))

	order, err := s.Checkout.GetOrder(s.Ctx, result.Order.ID)
	s.Require().NoError(err)
	for _, item := range order.Items {
		if item.ProductID == widgetID {
			s.Require().True(item.Returned)
		}
	}

	var outboxCount int
	s.Require().NoError(
		s.DbPool.QueryRow(
			s.Ctx,
			"SELECT COUNT(*) FROM outbox WHERE event_type = 'SaleRefunded'",
		).Scan(&outboxCount),
	)
	s.Require().Equal(1, outboxCount)
}

func (s *IntegrationTestSuite) TestGetOrder_NotFound() {
	_, err := s.Checkout.GetOrder(s.Ctx, 424242)
	s.Require().ErrorIs(err, repository.ErrOrderNotFound)
}

func (s *IntegrationTestSuite) TestCompleteSale_PaymentRecorded() {
	widgetID := s.seedProduct("widget", "19.99", 10, 2, "SKU-W")

	sessionID := s.Terminal.OpenSession(s.Ctx)
	s.addToCart(sessionID, widgetID, 1)

	result, err := s.Checkout.CompleteSale(s.Ctx, sessionID, &CompleteSaleRequest{
		IdempotencyKey: "sale-payment",
		PaymentMethod:  "cash",
		AmountPaid:     "25.00",
	})
	s.Require().NoError(err)

	stored, err := s.orderRepo.GetByID(s.Ctx, result.Order.ID)
	s.Require().NoError(err)
	s.Require().NotNil(stored.Payment)
	s.Require().Equal(domain.PaymentMethodCash, stored.Payment.Method)
	s.Require().Equal("25.00", stored.Payment.AmountPaid.StringFixed(2))
	// 19.99 + 2.00 tax = 21.99; change 3.01.
	s.Require().Equal("3.01", stored.Payment.ChangeAmount.StringFixed(2))
}
