package category

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sakashimaa/go-pos/internal/domain"
	"github.com/stretchr/testify/require"
)

// fakeDirectory serves a fixed tree:
//
//	1 electronics
//	  11 phones
//	    111 android
//	    112 ios
//	  12 laptops
//	2 groceries
type fakeDirectory struct {
	mu       sync.Mutex
	blocked  map[int64]chan struct{}
	children map[int64][]domain.CategoryNode
	roots    []domain.CategoryNode
	parents  map[int64]*int64
}

func newFakeDirectory() *fakeDirectory {
	ptr := func(id int64) *int64 { return &id }

	return &fakeDirectory{
		blocked: make(map[int64]chan struct{}),
		roots: []domain.CategoryNode{
			{ID: 1, Name: "electronics"},
			{ID: 2, Name: "groceries"},
		},
		children: map[int64][]domain.CategoryNode{
			1: {
				{ID: 11, Name: "phones", ParentID: ptr(1)},
				{ID: 12, Name: "laptops", ParentID: ptr(1)},
			},
			11: {
				{ID: 111, Name: "android", ParentID: ptr(11)},
				{ID: 112, Name: "ios", ParentID: ptr(11)},
			},
		},
		parents: map[int64]*int64{
			1: nil, 2: nil,
			11: ptr(1), 12: ptr(1),
			111: ptr(11), 112: ptr(11),
		},
	}
}

// blockChildren makes the next Children call for parentID wait until
// the returned function is called, to interleave concurrent selects.
func (d *fakeDirectory) blockChildren(parentID int64) func() {
	ch := make(chan struct{})
	d.mu.Lock()
	d.blocked[parentID] = ch
	d.mu.Unlock()

	return func() { close(ch) }
}

func (d *fakeDirectory) Children(_ context.Context, parentID *int64) ([]domain.CategoryNode, error) {
	if parentID == nil {
		return d.roots, nil
	}

	d.mu.Lock()
	ch := d.blocked[*parentID]
	delete(d.blocked, *parentID)
	d.mu.Unlock()

	if ch != nil {
		<-ch
	}

	return d.children[*parentID], nil
}

func (d *fakeDirectory) AncestorChain(_ context.Context, leafID int64) ([]domain.CategoryNode, error) {
	var chain []domain.CategoryNode

	id := leafID
	for {
		parent, ok := d.parents[id]
		if !ok {
			return nil, ErrNotAnOption
		}

		chain = append([]domain.CategoryNode{{ID: id, ParentID: parent}}, chain...)
		if parent == nil {
			return chain, nil
		}
		id = *parent
	}
}

func ptr(id int64) *int64 { return &id }

func TestChainState_SelectOpensNextLevel(t *testing.T) {
	ctx := context.Background()
	s := NewChainState(newFakeDirectory())

	require.NoError(t, s.Init(ctx))
	require.NoError(t, s.SelectAt(ctx, 0, ptr(1)))

	levels := s.Levels()
	require.Len(t, levels, 2)
	require.Equal(t, int64(11), levels[1].Options[0].ID)

	final, ok := s.FinalCategory()
	require.True(t, ok)
	require.Equal(t, int64(1), final)
}

func TestChainState_LeafSelectOpensNothing(t *testing.T) {
	ctx := context.Background()
	s := NewChainState(newFakeDirectory())

	require.NoError(t, s.Init(ctx))
	require.NoError(t, s.SelectAt(ctx, 0, ptr(1)))
	require.NoError(t, s.SelectAt(ctx, 1, ptr(12)))

	require.Len(t, s.Levels(), 2)

	final, ok := s.FinalCategory()
	require.True(t, ok)
	require.Equal(t, int64(12), final)
}

func TestChainState_ChangingUpperLevelDiscardsDeeper(t *testing.T) {
	ctx := context.Background()
	s := NewChainState(newFakeDirectory())

	require.NoError(t, s.Init(ctx))
	require.NoError(t, s.SelectAt(ctx, 0, ptr(1)))
	require.NoError(t, s.SelectAt(ctx, 1, ptr(11)))
	require.NoError(t, s.SelectAt(ctx, 2, ptr(111)))
	require.Len(t, s.Levels(), 3)

	// Re-selecting at the root throws away phones and android.
	require.NoError(t, s.SelectAt(ctx, 0, ptr(2)))

	levels := s.Levels()
	require.Len(t, levels, 1)
	require.Equal(t, int64(2), *levels[0].Selected)

	final, ok := s.FinalCategory()
	require.True(t, ok)
	require.Equal(t, int64(2), final)
}

func TestChainState_EmptySelectionClearsFinal(t *testing.T) {
	ctx := context.Background()
	s := NewChainState(newFakeDirectory())

	require.NoError(t, s.Init(ctx))
	require.NoError(t, s.SelectAt(ctx, 0, ptr(1)))
	require.NoError(t, s.SelectAt(ctx, 1, ptr(11)))

	require.NoError(t, s.SelectAt(ctx, 0, nil))

	levels := s.Levels()
	require.Len(t, levels, 1)
	require.Nil(t, levels[0].Selected)

	_, ok := s.FinalCategory()
	require.False(t, ok)
}

func TestChainState_RejectedSelectionLeavesChainIntact(t *testing.T) {
	ctx := context.Background()
	s := NewChainState(newFakeDirectory())

	require.NoError(t, s.Init(ctx))
	require.NoError(t, s.SelectAt(ctx, 0, ptr(1)))
	require.NoError(t, s.SelectAt(ctx, 1, ptr(11)))
	require.Len(t, s.Levels(), 3)

	// android is not an option at the root; the refusal must not
	// truncate the chain or clear what was already resolved.
	require.ErrorIs(t, s.SelectAt(ctx, 0, ptr(111)), ErrNotAnOption)

	levels := s.Levels()
	require.Len(t, levels, 3)
	require.Equal(t, int64(1), *levels[0].Selected)
	require.Equal(t, int64(11), *levels[1].Selected)

	final, ok := s.FinalCategory()
	require.True(t, ok)
	require.Equal(t, int64(11), final)
}

func TestChainState_RejectsForeignOption(t *testing.T) {
	ctx := context.Background()
	s := NewChainState(newFakeDirectory())

	require.NoError(t, s.Init(ctx))
	require.ErrorIs(t, s.SelectAt(ctx, 0, ptr(11)), ErrNotAnOption)
	require.ErrorIs(t, s.SelectAt(ctx, 3, ptr(1)), ErrLevelOutOfRange)

	_, ok := s.FinalCategory()
	require.False(t, ok)
}

func TestChainState_LoadRebuildsFromLeaf(t *testing.T) {
	ctx := context.Background()
	s := NewChainState(newFakeDirectory())

	require.NoError(t, s.Load(ctx, 111))

	levels := s.Levels()
	require.Len(t, levels, 3)
	require.Equal(t, int64(1), *levels[0].Selected)
	require.Equal(t, int64(11), *levels[1].Selected)
	require.Equal(t, int64(111), *levels[2].Selected)

	final, ok := s.FinalCategory()
	require.True(t, ok)
	require.Equal(t, int64(111), final)
}

func TestChainState_StaleFetchIsDiscarded(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	s := NewChainState(dir)

	require.NoError(t, s.Init(ctx))

	release := dir.blockChildren(1)

	done := make(chan error, 1)
	go func() {
		done <- s.SelectAt(ctx, 0, ptr(1))
	}()

	// The second select lands while the first is still fetching
	// children of electronics; the first must not open a phones level
	// under groceries.
	require.Eventually(t, func() bool {
		dir.mu.Lock()
		defer dir.mu.Unlock()
		return dir.blocked[1] == nil
	}, time.Second, time.Millisecond)

	require.NoError(t, s.SelectAt(ctx, 0, ptr(2)))
	release()
	require.NoError(t, <-done)

	levels := s.Levels()
	require.Len(t, levels, 1)
	require.Equal(t, int64(2), *levels[0].Selected)

	final, ok := s.FinalCategory()
	require.True(t, ok)
	require.Equal(t, int64(2), final)
}

func TestResolver_ResolveChain(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(newFakeDirectory())

	chain, err := r.ResolveChain(ctx, 112)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	require.Equal(t, int64(1), chain[0].ID)
	require.Equal(t, int64(11), chain[1].ID)
	require.Equal(t, int64(112), chain[2].ID)
}
