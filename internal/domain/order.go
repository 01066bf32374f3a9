package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type PaymentMethod string

const (
	PaymentMethodCash PaymentMethod = "cash"
	PaymentMethodCard PaymentMethod = "card"
	PaymentMethodUPI  PaymentMethod = "upi"
)

type Order struct {
	ID             int64           `db:"id"`
	IdempotencyKey string          `db:"idempotency_key"`
	CustomerID     *int64          `db:"customer_id"`
	CustomerName   string          `db:"customer_name"`
	SalespersonID  *int64          `db:"salesperson_id"`
	Status         OrderStatus     `db:"status"`
	Items          []OrderItem     `db:"items"`
	Subtotal       decimal.Decimal `db:"subtotal"`
	Tax            decimal.Decimal `db:"tax"`
	Total          decimal.Decimal `db:"total"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`

	Payment *Payment `db:"-"`
}

type OrderItem struct {
	ID        int64           `db:"id"`
	OrderID   int64           `db:"order_id"`
	ProductID int64           `db:"product_id"`
	Name      string          `db:"name"`
	Price     decimal.Decimal `db:"price"`
	Quantity  int32           `db:"quantity"`
	Returned  bool            `db:"returned"`
}

// Payment is the settlement record attached to a completed order.
// ChangeAmount is the displayed cash change, floored at zero; the
// charged total is never reduced by that floor.
type Payment struct {
	ID           int64           `db:"id"`
	OrderID      int64           `db:"order_id"`
	Method       PaymentMethod   `db:"method"`
	AmountPaid   decimal.Decimal `db:"amount_paid"`
	ChangeAmount decimal.Decimal `db:"change_amount"`
	CreatedAt    time.Time       `db:"created_at"`
}
