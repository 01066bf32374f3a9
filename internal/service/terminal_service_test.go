package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sakashimaa/go-pos/internal/cart"
	"github.com/sakashimaa/go-pos/internal/domain"
	"github.com/sakashimaa/go-pos/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCatalog struct {
	products map[int64]*domain.Product
	stock    map[int64]int32
}

func (f *fakeCatalog) FindByID(_ context.Context, id int64) (*domain.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return p, nil
}

func (f *fakeCatalog) List(_ context.Context, _, _ int64, _ string) ([]domain.Product, int64, error) {
	return nil, 0, nil
}

func (f *fakeCatalog) AvailableStock(_ context.Context, id int64) (int32, error) {
	stock, ok := f.stock[id]
	if !ok {
		return 0, repository.ErrProductNotFound
	}
	return stock, nil
}

func newTestTerminal() (TerminalService, *fakeCatalog) {
	catalog := &fakeCatalog{
		products: map[int64]*domain.Product{
			1: {ID: 1, Name: "widget", Price: decimal.RequireFromString("19.99")},
			2: {ID: 2, Name: "gadget", Price: decimal.RequireFromString("5.005")},
		},
		stock: map[int64]int32{1: 5, 2: 10},
	}

	calc := cart.NewCalculator(decimal.RequireFromString("0.10"))

	return NewTerminalService(catalog, calc, zap.NewNop()), catalog
}

func TestTerminal_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	terminal, _ := newTestTerminal()

	id := terminal.OpenSession(ctx)
	require.NotEmpty(t, id)

	view, err := terminal.GetTotals(ctx, id)
	require.NoError(t, err)
	require.Empty(t, view.Items)

	require.NoError(t, terminal.CloseSession(ctx, id))
	require.ErrorIs(t, terminal.CloseSession(ctx, id), ErrSessionNotFound)

	_, err = terminal.GetTotals(ctx, id)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestTerminal_AddComputesTotals(t *testing.T) {
	ctx := context.Background()
	terminal, _ := newTestTerminal()
	id := terminal.OpenSession(ctx)

	_, err := terminal.MutateCart(ctx, id, CartOp{Action: CartOpAdd, ProductID: 1, Quantity: 3})
	require.NoError(t, err)

	view, err := terminal.MutateCart(ctx, id, CartOp{Action: CartOpAdd, ProductID: 2, Quantity: 2})
	require.NoError(t, err)

	require.Equal(t, "69.98", view.Subtotal)
	require.Equal(t, "7.00", view.Tax)
	require.Equal(t, "76.98", view.Total)
}

func TestTerminal_AddBeyondStockRejected(t *testing.T) {
	ctx := context.Background()
	terminal, _ := newTestTerminal()
	id := terminal.OpenSession(ctx)

	_, err := terminal.MutateCart(ctx, id, CartOp{Action: CartOpAdd, ProductID: 1, Quantity: 4})
	require.NoError(t, err)

	// 4 already in the cart plus 2 more exceeds the 5 on hand.
	_, err = terminal.MutateCart(ctx, id, CartOp{Action: CartOpAdd, ProductID: 1, Quantity: 2})

	var rejected *QuantityRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, cart.ReasonExceedsStock, rejected.Reason)
	require.Equal(t, int32(6), rejected.Candidate)

	// The rejected mutation left the cart as it was.
	view, err := terminal.GetTotals(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int32(4), view.Items[0].Quantity)
}

func TestTerminal_StockChangeAffectsNextAttempt(t *testing.T) {
	ctx := context.Background()
	terminal, catalog := newTestTerminal()
	id := terminal.OpenSession(ctx)

	_, err := terminal.MutateCart(ctx, id, CartOp{Action: CartOpSet, ProductID: 1, Quantity: 1})
	require.ErrorIs(t, err, cart.ErrProductNotInCart)

	_, err = terminal.MutateCart(ctx, id, CartOp{Action: CartOpAdd, ProductID: 1, Quantity: 2})
	require.NoError(t, err)

	_, err = terminal.MutateCart(ctx, id, CartOp{Action: CartOpSet, ProductID: 1, Quantity: 6})
	var rejected *QuantityRejectedError
	require.ErrorAs(t, err, &rejected)

	// Restock between attempts; the same request now passes because
	// every attempt reads stock fresh.
	catalog.stock[1] = 10

	view, err := terminal.MutateCart(ctx, id, CartOp{Action: CartOpSet, ProductID: 1, Quantity: 6})
	require.NoError(t, err)
	require.Equal(t, int32(6), view.Items[0].Quantity)
}

func TestTerminal_SetZeroRejected(t *testing.T) {
	ctx := context.Background()
	terminal, _ := newTestTerminal()
	id := terminal.OpenSession(ctx)

	_, err := terminal.MutateCart(ctx, id, CartOp{Action: CartOpAdd, ProductID: 1, Quantity: 2})
	require.NoError(t, err)

	// Zero is not a valid quantity entry; removal is its own action.
	_, err = terminal.MutateCart(ctx, id, CartOp{Action: CartOpSet, ProductID: 1, Quantity: 0})

	var rejected *QuantityRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, cart.ReasonZero, rejected.Reason)

	view, err := terminal.MutateCart(ctx, id, CartOp{Action: CartOpRemove, ProductID: 1})
	require.NoError(t, err)
	require.Empty(t, view.Items)
}

func TestTerminal_UnknownProduct(t *testing.T) {
	ctx := context.Background()
	terminal, _ := newTestTerminal()
	id := terminal.OpenSession(ctx)

	_, err := terminal.MutateCart(ctx, id, CartOp{Action: CartOpAdd, ProductID: 99, Quantity: 1})
	require.True(t, errors.Is(err, repository.ErrProductNotFound))
}

func TestTerminal_SnapshotAndClear(t *testing.T) {
	ctx := context.Background()
	terminal, _ := newTestTerminal()
	id := terminal.OpenSession(ctx)

	_, err := terminal.MutateCart(ctx, id, CartOp{Action: CartOpAdd, ProductID: 1, Quantity: 2})
	require.NoError(t, err)

	snapshot, err := terminal.SnapshotCart(id)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	require.Equal(t, "19.99", snapshot[0].UnitPrice.StringFixed(2))

	require.NoError(t, terminal.ClearCart(id))

	view, err := terminal.GetTotals(ctx, id)
	require.NoError(t, err)
	require.Empty(t, view.Items)

	// The earlier snapshot is unaffected by the clear.
	require.Len(t, snapshot, 1)
}
