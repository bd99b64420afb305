// Package pricer resolves item prices against a catalog snapshot: it walks the price
// tree for an item's attributes, derives an ask from the bid, and flattens a whole
// snapshot into a price list.
package pricer

import (
	"errors"
	"fmt"

	"github.com/rewired-gh/skupricer/internal/catalog"
	"github.com/rewired-gh/skupricer/internal/sku"
)

var (
	// ErrUnsupportedItem is returned for items that are never priced: qualities outside
	// [MinQuality, MaxQuality] and denied base ids.
	ErrUnsupportedItem = errors.New("unsupported item")
	// ErrNotFound is returned by lookups when the catalog holds no price after every fallback.
	ErrNotFound = errors.New("price not found")
)

// Supported quality range.
const (
	MinQuality = 0
	MaxQuality = 15
)

// Match is the outcome of a resolution. Found is false when nothing matched, which
// is not an error. Attributes is the attribute set that matched; it differs from the
// request when Approximate is set.
type Match struct {
	Found       bool
	Approximate bool
	Entry       catalog.PriceEntry
	Attributes  sku.Attributes
}

// Resolver finds the most specific catalog price for an item.
type Resolver struct {
	denied map[int]bool
}

// NewResolver creates a resolver that refuses the base ids in denyList.
func NewResolver(denyList []int) *Resolver {
	denied := make(map[int]bool, len(denyList))
	for _, id := range denyList {
		denied[id] = true
	}
	return &Resolver{denied: denied}
}

// Supported reports whether attrs may be priced at all. It never looks at a catalog.
func (r *Resolver) Supported(attrs sku.Attributes) error {
	if attrs.Quality < MinQuality || attrs.Quality > MaxQuality {
		return fmt.Errorf("%w: quality %d outside [%d,%d]", ErrUnsupportedItem, attrs.Quality, MinQuality, MaxQuality)
	}
	if r.denied[attrs.BaseID] {
		return fmt.Errorf("%w: base id %d is denied", ErrUnsupportedItem, attrs.BaseID)
	}
	return nil
}

// Resolve looks attrs up in snap. An exact walk is tried first, then the relaxation
// ladder; a ladder hit is marked Approximate.
func (r *Resolver) Resolve(snap *catalog.Snapshot, attrs sku.Attributes) (Match, error) {
	if err := r.Supported(attrs); err != nil {
		return Match{}, err
	}

	if entry, ok := lookup(snap, attrs); ok {
		return Match{Found: true, Entry: entry, Attributes: attrs}, nil
	}

	for _, alt := range relaxations(attrs) {
		if entry, ok := lookup(snap, alt); ok {
			return Match{Found: true, Approximate: true, Entry: entry, Attributes: alt}, nil
		}
	}
	return Match{}, nil
}

func lookup(snap *catalog.Snapshot, attrs sku.Attributes) (catalog.PriceEntry, bool) {
	path := catalog.Path(attrs)
	for _, candidate := range snap.Candidates(attrs.BaseID) {
		if entry, ok := descend(candidate.Prices, path); ok {
			return entry, true
		}
	}
	return catalog.PriceEntry{}, false
}

// descend follows path from root. A missing label falls back to NormalLabel except at
// strict levels. A leaf reached early is a match unless the path still has an effect
// id to consume.
func descend(root *catalog.Node, path []string) (catalog.PriceEntry, bool) {
	wantsEffect := len(path) > int(catalog.LevelEffect)
	node := root
	for depth := 0; depth <= catalog.MaxDepth; depth++ {
		if node.IsLeaf() {
			if wantsEffect && depth < len(path) {
				return catalog.PriceEntry{}, false
			}
			return node.First()
		}
		if depth >= len(path) {
			return catalog.PriceEntry{}, false
		}

		next := node.Child(path[depth])
		if next == nil && !catalog.Level(depth).Strict() {
			next = node.Child(catalog.NormalLabel)
		}
		if next == nil {
			return catalog.PriceEntry{}, false
		}
		node = next
	}
	return catalog.PriceEntry{}, false
}

// relaxations returns the ladder of progressively weaker attribute sets: drop the
// killstreak, then also quality2, then also festive, then australium as well. An
// unusual effect is never dropped, so a generic unusual price cannot stand in for a
// specific effect. Steps identical to the request or an earlier step are skipped.
func relaxations(attrs sku.Attributes) []sku.Attributes {
	steps := make([]sku.Attributes, 0, 4)

	a := attrs
	a.Killstreak = 0
	steps = append(steps, a)
	a.Quality2 = 0
	steps = append(steps, a)
	a.Festive = false
	steps = append(steps, a)
	a.Australium = false
	if !a.IsUnusual() {
		a.Effect = 0
	}
	steps = append(steps, a)

	out := steps[:0]
	prev := attrs
	for _, s := range steps {
		if s == prev {
			continue
		}
		out = append(out, s)
		prev = s
	}
	return out
}
