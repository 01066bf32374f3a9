package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID                int64           `db:"id"`
	Name              string          `db:"name"`
	Description       string          `db:"description"`
	Price             decimal.Decimal `db:"price"`
	StockQuantity     int32           `db:"stock_quantity"`
	LowStockThreshold int32           `db:"low_stock_threshold"`
	CategoryID        *int64          `db:"category_id"`
	Sku               string          `db:"sku"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}
