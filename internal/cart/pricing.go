package cart

import "github.com/shopspring/decimal"

type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Calculator computes order totals from line items. Each line extension
// is rounded to 2 decimal places BEFORE summation so that long carts
// never accumulate cent drift; the configured tax rate is applied to
// the already-rounded subtotal.
type Calculator struct {
	taxRate decimal.Decimal
}

func NewCalculator(taxRate decimal.Decimal) Calculator {
	return Calculator{taxRate: taxRate}
}

func (c Calculator) TaxRate() decimal.Decimal {
	return c.taxRate
}

func (c Calculator) Calculate(items []LineItem) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		extension := item.UnitPrice.Mul(decimal.NewFromInt32(item.Quantity)).Round(2)
		subtotal = subtotal.Add(extension)
	}

	if c.taxRate.IsZero() {
		return Totals{Subtotal: subtotal, Tax: decimal.Zero, Total: subtotal}
	}

	tax := subtotal.Mul(c.taxRate).Round(2)
	total := subtotal.Add(tax).Round(2)

	return Totals{Subtotal: subtotal, Tax: tax, Total: total}
}
