package service

import (
	"errors"
	"fmt"

	"github.com/sakashimaa/go-pos/internal/cart"
)

var ErrSessionNotFound = errors.New("terminal session not found")
var ErrEmptyCart = errors.New("cart is empty")
var ErrSettlementInProgress = errors.New("settlement already in progress for this cart")
var ErrInsufficientPayment = errors.New("insufficient payment amount")

// QuantityRejectedError reports a cart mutation refused by the
// quantity gate. The cart is left exactly as it was.
type QuantityRejectedError struct {
	ProductID int64
	Candidate int32
	Reason    cart.RejectReason
}

func (e *QuantityRejectedError) Error() string {
	return fmt.Sprintf("quantity %d rejected for product %d: %s", e.Candidate, e.ProductID, e.Reason)
}

// StockRejectionError reports which product sank a settlement attempt
// during reservation, wrapping the ledger-level cause so callers can
// tell out-of-stock from not-found.
type StockRejectionError struct {
	ProductID int64
	Err       error
}

func (e *StockRejectionError) Error() string {
	return fmt.Sprintf("reservation failed for product %d: %v", e.ProductID, e.Err)
}

func (e *StockRejectionError) Unwrap() error {
	return e.Err
}
