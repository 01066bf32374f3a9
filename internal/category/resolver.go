package category

import (
	"context"
	"errors"
	"sync"

	"github.com/sakashimaa/go-pos/internal/domain"
)

var ErrLevelOutOfRange = errors.New("no such chain level")
var ErrNotAnOption = errors.New("category is not an option at this level")

// Directory is the read-only catalog lookup the resolver runs against.
// Children with a nil parent returns the root categories.
type Directory interface {
	Children(ctx context.Context, parentID *int64) ([]domain.CategoryNode, error)
	AncestorChain(ctx context.Context, leafID int64) ([]domain.CategoryNode, error)
}

// Level is one dropdown in the cascading chain: the selectable options
// at that depth plus the current selection, nil while the placeholder
// is showing.
type Level struct {
	Options  []domain.CategoryNode
	Selected *int64
}

// ChainState manages the root-to-leaf selection chain backing a
// product-form category picker; server-side callers that only need a
// stored leaf expanded use Resolver via the category chain endpoint
// instead. Depth is always
// contiguous: a level only exists while every ancestor level above it
// holds a selection, so changing the selection at depth d discards
// everything deeper before the children of the new value are fetched.
// Concurrent selects follow last-request-wins: a fetch superseded by a
// newer select never applies its stale result.
type ChainState struct {
	mu     sync.Mutex
	dir    Directory
	levels []Level
	final  *int64
	gen    uint64
}

func NewChainState(dir Directory) *ChainState {
	return &ChainState{dir: dir}
}

// Init populates the root level. Must be called before SelectAt.
func (s *ChainState) Init(ctx context.Context) error {
	roots, err := s.dir.Children(ctx, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.levels = []Level{{Options: roots}}
	s.final = nil
	s.gen++

	return nil
}

// Load reconstructs the full chain from a stored leaf id, selecting
// every level on the way down and leaving the leaf as the final
// category. Mirrors editing an existing product's classification.
func (s *ChainState) Load(ctx context.Context, leafID int64) error {
	chain, err := s.dir.AncestorChain(ctx, leafID)
	if err != nil {
		return err
	}

	roots, err := s.dir.Children(ctx, nil)
	if err != nil {
		return err
	}

	levels := []Level{{Options: roots}}
	for i, node := range chain {
		id := node.ID
		levels[i].Selected = &id

		children, err := s.dir.Children(ctx, &id)
		if err != nil {
			return err
		}
		if len(children) == 0 {
			break
		}

		levels = append(levels, Level{Options: children})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	leaf := leafID
	s.levels = levels
	s.final = &leaf
	s.gen++

	return nil
}

// SelectAt applies a selection change at the given depth. A non-nil id
// becomes the final category and, when it has children, opens the next
// level. A nil id clears the selection, discards everything deeper and
// leaves the final category unresolved. A rejected selection leaves
// the chain exactly as it was.
func (s *ChainState) SelectAt(ctx context.Context, level int, id *int64) error {
	s.mu.Lock()

	if level < 0 || level >= len(s.levels) {
		s.mu.Unlock()
		return ErrLevelOutOfRange
	}

	if id != nil && !isOption(s.levels[level].Options, *id) {
		s.mu.Unlock()
		return ErrNotAnOption
	}

	// The candidate passed; everything below the changed level is
	// stale from here on.
	s.levels = s.levels[:level+1]
	s.levels[level].Selected = nil
	s.gen++

	if id == nil {
		s.final = nil
		s.mu.Unlock()
		return nil
	}

	selected := *id
	s.levels[level].Selected = &selected
	s.final = &selected
	gen := s.gen

	s.mu.Unlock()

	children, err := s.dir.Children(ctx, &selected)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A newer select started while we were fetching; the last request
	// initiated wins and this result is dropped.
	if s.gen != gen {
		return nil
	}

	if len(children) > 0 {
		s.levels = append(s.levels, Level{Options: children})
	}

	return nil
}

// FinalCategory reports the currently resolved leaf, if any.
func (s *ChainState) FinalCategory() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.final == nil {
		return 0, false
	}

	return *s.final, true
}

// Levels returns a snapshot of the chain for rendering.
func (s *ChainState) Levels() []Level {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Level, len(s.levels))
	for i, l := range s.levels {
		options := make([]domain.CategoryNode, len(l.Options))
		copy(options, l.Options)

		out[i] = Level{Options: options}
		if l.Selected != nil {
			id := *l.Selected
			out[i].Selected = &id
		}
	}

	return out
}

func isOption(options []domain.CategoryNode, id int64) bool {
	for _, o := range options {
		if o.ID == id {
			return true
		}
	}

	return false
}

// Resolver answers one-shot chain lookups decoupled from any dropdown
// state.
type Resolver struct {
	dir Directory
}

func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// ResolveChain returns the ordered root-to-leaf chain for a leaf id.
func (r *Resolver) ResolveChain(ctx context.Context, leafID int64) ([]domain.CategoryNode, error) {
	return r.dir.AncestorChain(ctx, leafID)
}
