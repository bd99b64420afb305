package pricer

import (
	"time"

	"github.com/rewired-gh/skupricer/internal/catalog"
	"github.com/rewired-gh/skupricer/internal/logger"
	"github.com/rewired-gh/skupricer/internal/models"
	"github.com/rewired-gh/skupricer/internal/sku"
)

// ExtractAll flattens snap into one price per SKU. Entries are visited in document
// order, base ids in declared order, and children in label order; the first leaf to
// produce a SKU wins. Leaves whose labels do not rebuild into a valid, supported item
// are skipped, as are inner nodes below the last level.
func (r *Resolver) ExtractAll(snap *catalog.Snapshot, codec *sku.Codec) []models.ResolvedPrice {
	x := &extractor{
		resolver:  r,
		codec:     codec,
		fetchedAt: snap.FetchedAt,
		seen:      make(map[string]bool),
	}
	for i := range snap.Entries {
		entry := &snap.Entries[i]
		for _, baseID := range entry.BaseIDs {
			x.walk(entry.Prices, sku.Attributes{BaseID: baseID, Tradable: true, Craftable: true}, 0)
		}
	}
	if x.skipped > 0 {
		logger.Debug("Price list extraction skipped %d leaves or branches", x.skipped)
	}
	return x.out
}

type extractor struct {
	resolver  *Resolver
	codec     *sku.Codec
	fetchedAt time.Time
	seen      map[string]bool
	out       []models.ResolvedPrice
	skipped   int
}

func (x *extractor) walk(node *catalog.Node, attrs sku.Attributes, depth int) {
	if node == nil {
		return
	}
	if node.IsLeaf() {
		x.emit(node, attrs)
		return
	}
	if depth >= catalog.MaxDepth {
		x.skipped++
		return
	}
	for _, label := range node.Keys() {
		next := attrs
		if err := catalog.ApplyLabel(&next, catalog.Level(depth), label); err != nil {
			x.skipped++
			continue
		}
		x.walk(node.Child(label), next, depth+1)
	}
}

func (x *extractor) emit(node *catalog.Node, attrs sku.Attributes) {
	entry, ok := node.First()
	if !ok {
		return
	}
	if x.resolver.Supported(attrs) != nil {
		x.skipped++
		return
	}
	key, err := x.codec.Encode(attrs)
	if err != nil {
		x.skipped++
		return
	}
	if x.seen[key] {
		return
	}
	x.seen[key] = true

	bid, ask := Synthesize(entry, attrs)
	ts := entry.LastUpdate
	if ts.IsZero() {
		ts = x.fetchedAt
	}
	x.out = append(x.out, models.ResolvedPrice{
		SKU:       key,
		Bid:       bid,
		Ask:       ask,
		Unit:      entry.Unit,
		Source:    models.SourceCatalog,
		Timestamp: ts,
	})
}
