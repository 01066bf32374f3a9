package domain

import "time"

type SaleItemEvent struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Quantity  int32  `json:"quantity"`
	LowStock  bool   `json:"low_stock"`
}

type SaleCompletedEvent struct {
	OrderID       int64           `json:"order_id"`
	CustomerID    *int64          `json:"customer_id,omitempty"`
	Items         []SaleItemEvent `json:"items"`
	Subtotal      string          `json:"subtotal"`
	Tax           string          `json:"tax"`
	Total         string          `json:"total"`
	PaymentMethod string          `json:"payment_method"`
	CompletedAt   time.Time       `json:"completed_at"`
}

type SaleRefundedEvent struct {
	OrderID    int64           `json:"order_id"`
	Items      []SaleItemEvent `json:"items"`
	Reason     string          `json:"reason"`
	RefundedAt time.Time       `json:"refunded_at"`
}
