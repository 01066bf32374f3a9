package cart

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrNegativeQuantity = errors.New("quantity cannot be negative")
var ErrProductNotInCart = errors.New("product not in cart")

type LineItem struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int32           `json:"quantity"`
}

// Cart is the in-progress order of a single terminal session. Line
// items keep insertion order and the unit price captured when the
// product was first added, so a mid-cart price change on the catalog
// side does not drift the order. The cart holds no stock knowledge:
// callers validate quantities with CheckQuantity before mutating.
type Cart struct {
	items  []LineItem
	index  map[int64]int
	calc   Calculator
	totals *Totals
}

func New(calc Calculator) *Cart {
	return &Cart{
		index: make(map[int64]int),
		calc:  calc,
	}
}

func (c *Cart) Quantity(productID int64) (int32, bool) {
	i, ok := c.index[productID]
	if !ok {
		return 0, false
	}

	return c.items[i].Quantity, true
}

// WouldBeValid pre-checks a candidate quantity against a stock
// snapshot without touching the cart, for UI feedback.
func (c *Cart) WouldBeValid(candidate, available int32) CheckResult {
	return CheckQuantity(candidate, available)
}

// AddOrIncrement adds quantity to an existing line ("add N more") or
// appends a new line with the given unit price. A line that already
// exists keeps its captured price; the incoming one is ignored.
func (c *Cart) AddOrIncrement(productID int64, name string, unitPrice decimal.Decimal, quantity int32) error {
	if quantity <= 0 {
		return ErrNegativeQuantity
	}

	if i, ok := c.index[productID]; ok {
		c.items[i].Quantity += quantity
		c.invalidate()
		return nil
	}

	c.index[productID] = len(c.items)
	c.items = append(c.items, LineItem{
		ProductID: productID,
		Name:      name,
		UnitPrice: unitPrice,
		Quantity:  quantity,
	})
	c.invalidate()

	return nil
}

// SetQuantity replaces the stored quantity outright. Driving a line to
// zero removes it; a line is never retained at zero.
func (c *Cart) SetQuantity(productID int64, quantity int32) error {
	if quantity < 0 {
		return ErrNegativeQuantity
	}

	if _, ok := c.index[productID]; !ok {
		return ErrProductNotInCart
	}

	if quantity == 0 {
		return c.Remove(productID)
	}

	c.items[c.index[productID]].Quantity = quantity
	c.invalidate()

	return nil
}

func (c *Cart) Remove(productID int64) error {
	i, ok := c.index[productID]
	if !ok {
		return ErrProductNotInCart
	}

	c.items = append(c.items[:i], c.items[i+1:]...)
	delete(c.index, productID)
	for id, j := range c.index {
		if j > i {
			c.index[id] = j - 1
		}
	}
	c.invalidate()

	return nil
}

func (c *Cart) Clear() {
	c.items = nil
	c.index = make(map[int64]int)
	c.invalidate()
}

// LineItems returns a copy of the lines in display order. The copy is
// also the frozen snapshot settlement works from.
func (c *Cart) LineItems() []LineItem {
	out := make([]LineItem, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Cart) IsEmpty() bool {
	return len(c.items) == 0
}

// Totals recomputes lazily; any successful mutation invalidates the
// cached value.
func (c *Cart) Totals() Totals {
	if c.totals == nil {
		t := c.calc.Calculate(c.items)
		c.totals = &t
	}

	return *c.totals
}

func (c *Cart) invalidate() {
	c.totals = nil
}
