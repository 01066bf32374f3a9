package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemory_TryReserve(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(map[int64]int32{1: 5})

	require.NoError(t, m.TryReserve(ctx, 1, 3))

	available, err := m.AvailableStock(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int32(2), available)

	require.ErrorIs(t, m.TryReserve(ctx, 1, 3), ErrInsufficientStock)
	require.NoError(t, m.TryReserve(ctx, 1, 2))

	available, err = m.AvailableStock(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, available)
}

func TestMemory_UnknownProduct(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	_, err := m.AvailableStock(ctx, 42)
	require.ErrorIs(t, err, ErrProductNotFound)
	require.ErrorIs(t, m.TryReserve(ctx, 42, 1), ErrProductNotFound)

	// Not-found wins over the quantity check for a product the ledger
	// has never seen.
	require.ErrorIs(t, m.TryReserve(ctx, 42, 0), ErrProductNotFound)
}

func TestMemory_NonPositiveQuantityRejected(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(map[int64]int32{1: 5})

	require.ErrorIs(t, m.TryReserve(ctx, 1, 0), ErrInsufficientStock)
	require.ErrorIs(t, m.TryReserve(ctx, 1, -3), ErrInsufficientStock)

	available, err := m.AvailableStock(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int32(5), available)
}

func TestMemory_CommitDecrementsOnHand(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(map[int64]int32{1: 5, 2: 3})

	require.NoError(t, m.TryReserve(ctx, 1, 2))
	require.NoError(t, m.TryReserve(ctx, 2, 1))

	res := []Reservation{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}}
	require.NoError(t, m.Commit(ctx, res))

	available, err := m.AvailableStock(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int32(3), available)

	available, err = m.AvailableStock(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, int32(2), available)
}

func TestMemory_ReleaseRestoresAvailability(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(map[int64]int32{1: 5})

	require.NoError(t, m.TryReserve(ctx, 1, 5))
	require.ErrorIs(t, m.TryReserve(ctx, 1, 1), ErrInsufficientStock)

	require.NoError(t, m.Release(ctx, []Reservation{{ProductID: 1, Quantity: 5}}))

	available, err := m.AvailableStock(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int32(5), available)
}

func TestMemory_CommitAllOrNothing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(map[int64]int32{1: 5, 2: 5})

	require.NoError(t, m.TryReserve(ctx, 1, 2))

	// Product 2 was never reserved, so nothing moves, including the
	// hold that does exist.
	res := []Reservation{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}}
	require.ErrorIs(t, m.Commit(ctx, res), ErrUnknownReservation)

	available, err := m.AvailableStock(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int32(3), available)
}

func TestMemory_ConcurrentReservesNeverOversell(t *testing.T) {
	ctx := context.Background()

	const stock = 100
	const workers = 50
	const perWorker = 3

	m := NewMemory(map[int64]int32{1: stock})

	var granted atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.TryReserve(ctx, 1, perWorker); err == nil {
				granted.Add(perWorker)
			}
		}()
	}

	wg.Wait()

	require.LessOrEqual(t, granted.Load(), int32(stock))

	available, err := m.AvailableStock(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, stock-granted.Load(), available)
}
