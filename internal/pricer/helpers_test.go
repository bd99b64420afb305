package pricer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/skupricer/internal/catalog"
	"github.com/rewired-gh/skupricer/internal/currency"
	"github.com/shopspring/decimal"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func metal(v string) catalog.PriceEntry {
	return catalog.PriceEntry{Bid: d(v), Unit: currency.Metal, LastUpdate: testTime}
}

func keys(v string) catalog.PriceEntry {
	return catalog.PriceEntry{Bid: d(v), Unit: currency.Keys, LastUpdate: testTime}
}

// tree builds a price tree from slash separated label paths.
func tree(t *testing.T, leaves map[string]catalog.PriceEntry) *catalog.Node {
	t.Helper()
	root := map[string]interface{}{}
	for path, entry := range leaves {
		labels := strings.Split(path, "/")
		cur := root
		for _, label := range labels[:len(labels)-1] {
			next, ok := cur[label].(map[string]interface{})
			if !ok {
				if _, isLeaf := cur[label].(catalog.PriceEntry); isLeaf {
					t.Fatalf("path %s passes through a leaf", path)
				}
				next = map[string]interface{}{}
				cur[label] = next
			}
			cur = next
		}
		cur[labels[len(labels)-1]] = entry
	}
	return toNode(root)
}

func toNode(m map[string]interface{}) *catalog.Node {
	children := make(map[string]*catalog.Node, len(m))
	for label, v := range m {
		switch v := v.(type) {
		case catalog.PriceEntry:
			children[label] = catalog.Leaf(v)
		case map[string]interface{}:
			children[label] = toNode(v)
		}
	}
	return catalog.Branch(children)
}

func snapshotOf(entries ...catalog.Entry) *catalog.Snapshot {
	return catalog.NewSnapshot(entries, testTime, 1)
}

type fakeFetcher struct {
	result      catalog.Result
	err         error
	calls       int
	invalidated int
}

func (f *fakeFetcher) Fetch(ctx context.Context) (catalog.Result, error) {
	f.calls++
	return f.result, f.err
}

func (f *fakeFetcher) Invalidate() {
	f.invalidated++
}
