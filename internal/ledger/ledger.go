package ledger

import (
	"context"
	"errors"
	"sync"
)

var ErrProductNotFound = errors.New("product not found")
var ErrInsufficientStock = errors.New("insufficient stock")
var ErrUnknownReservation = errors.New("reservation not held")

// Reservation is a transient hold against available stock, valid for
// the duration of a single settlement attempt. It is committed or
// released as a whole set, never partially.
type Reservation struct {
	ProductID int64
	Quantity  int32
}

// Ledger is the authoritative source of per-product availability.
// TryReserve is atomic with respect to concurrent callers: two
// simultaneous holds on the same product can never together exceed
// what is on hand.
type Ledger interface {
	AvailableStock(ctx context.Context, productID int64) (int32, error)
	TryReserve(ctx context.Context, productID int64, quantity int32) error
	Commit(ctx context.Context, reservations []Reservation) error
	Release(ctx context.Context, reservations []Reservation) error
}

// Memory is the in-process rendition of the ledger, for deployments
// that embed the terminal without a database (a kiosk build wires it
// where the server wires the product repository). The Postgres-backed
// settlement path gets the same semantics from conditional stock
// decrements inside the checkout transaction; see
// repository.ProductRepository.Reserve.
type Memory struct {
	mu     sync.Mutex
	onHand map[int64]int32
	held   map[int64]int32
}

func NewMemory(initial map[int64]int32) *Memory {
	onHand := make(map[int64]int32, len(initial))
	for id, qty := range initial {
		onHand[id] = qty
	}

	return &Memory{
		onHand: onHand,
		held:   make(map[int64]int32),
	}
}

func (m *Memory) AvailableStock(_ context.Context, productID int64) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	onHand, ok := m.onHand[productID]
	if !ok {
		return 0, ErrProductNotFound
	}

	return onHand - m.held[productID], nil
}

func (m *Memory) TryReserve(_ context.Context, productID int64, quantity int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	onHand, ok := m.onHand[productID]
	if !ok {
		return ErrProductNotFound
	}

	if quantity <= 0 || onHand-m.held[productID] < quantity {
		return ErrInsufficientStock
	}

	m.held[productID] += quantity

	return nil
}

// Commit decrements on-hand stock for every reservation in the set, or
// none of them if any hold is missing.
func (m *Memory) Commit(_ context.Context, reservations []Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range reservations {
		if m.held[r.ProductID] < r.Quantity {
			return ErrUnknownReservation
		}
	}

	for _, r := range reservations {
		m.onHand[r.ProductID] -= r.Quantity
		m.held[r.ProductID] -= r.Quantity
	}

	return nil
}

func (m *Memory) Release(_ context.Context, reservations []Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range reservations {
		if m.held[r.ProductID] < r.Quantity {
			return ErrUnknownReservation
		}
	}

	for _, r := range reservations {
		m.held[r.ProductID] -= r.Quantity
	}

	return nil
}
