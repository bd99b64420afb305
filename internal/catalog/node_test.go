package catalog

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/rewired-gh/skupricer/internal/currency"
	"github.com/rewired-gh/skupricer/internal/sku"
	"github.com/shopspring/decimal"
)

func TestNodeUnmarshalShapes(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantLeaf  bool
		wantCount int
		wantKeys  []string
	}{
		{
			name:      "array leaf",
			input:     `[{"currency":"metal","value":2,"last_update":1700000000},{"currency":"keys","value":"1.5"}]`,
			wantLeaf:  true,
			wantCount: 2,
		},
		{
			name:      "array leaf drops bad entries",
			input:     `[{"currency":"hats","value":2},{"value":3},"junk",{"currency":"metal","value":1.33}]`,
			wantLeaf:  true,
			wantCount: 1,
		},
		{
			name:      "single object leaf",
			input:     `{"currency":"keys","value":12,"value_high":14}`,
			wantLeaf:  true,
			wantCount: 1,
		},
		{
			name:     "inner node with mixed keys",
			input:    `{"Tradable":{},"11":[],"6":[],"100":[]}`,
			wantLeaf: false,
			wantKeys: []string{"6", "11", "100", "Tradable"},
		},
		{
			name:      "single object leaf with bad value",
			input:     `{"currency":"metal","value":"abc"}`,
			wantLeaf:  true,
			wantCount: 0,
		},
		{
			name:     "entry keys on an inner node are labels",
			input:    `{"currency":"metal","6":[{"currency":"metal","value":1}]}`,
			wantLeaf: false,
			wantKeys: []string{"6", "currency"},
		},
		{
			name:     "scalar becomes empty inner node",
			input:    `42`,
			wantLeaf: false,
			wantKeys: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n Node
			if err := json.Unmarshal([]byte(tt.input), &n); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if n.IsLeaf() != tt.wantLeaf {
				t.Fatalf("IsLeaf() = %v, want %v", n.IsLeaf(), tt.wantLeaf)
			}
			if tt.wantLeaf && len(n.Entries()) != tt.wantCount {
				t.Errorf("Expected %d entries, got %d", tt.wantCount, len(n.Entries()))
			}
			if !tt.wantLeaf && len(tt.wantKeys) > 0 && !reflect.DeepEqual(n.Keys(), tt.wantKeys) {
				t.Errorf("Keys() = %v, want %v", n.Keys(), tt.wantKeys)
			}
			if !tt.wantLeaf && len(tt.wantKeys) == 0 && len(n.Keys()) != 0 {
				t.Errorf("Expected no keys, got %v", n.Keys())
			}
		})
	}
}

func TestNodeUnmarshalDeepTree(t *testing.T) {
	const depth = 500
	var b strings.Builder
	for i := 0; i < depth; i++ {
		b.WriteString(`{"Normal":`)
	}
	b.WriteString(`[{"currency":"metal","value":"1.33"}]`)
	b.WriteString(strings.Repeat("}", depth))

	var root Node
	if err := json.Unmarshal([]byte(b.String()), &root); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	n := &root
	for i := 0; i < depth; i++ {
		if n.IsLeaf() {
			t.Fatalf("Leaf reached early at depth %d", i)
		}
		n = n.Child(NormalLabel)
	}
	entry, ok := n.First()
	if !ok || !entry.Bid.Equal(decimal.RequireFromString("1.33")) {
		t.Errorf("Expected leaf 1.33 at depth %d, got %+v (%v)", depth, entry, ok)
	}
}

func TestNodeEntryFields(t *testing.T) {
	var n Node
	input := `{"currency":"keys","value":12,"value_high":"14.5","last_update":1700000000}`
	if err := json.Unmarshal([]byte(input), &n); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	entry, ok := n.First()
	if !ok {
		t.Fatal("Expected a first entry")
	}
	if entry.Unit != currency.Keys {
		t.Errorf("Expected keys unit, got %s", entry.Unit)
	}
	if !entry.Bid.Equal(decimal.NewFromInt(12)) {
		t.Errorf("Expected bid 12, got %s", entry.Bid)
	}
	if !entry.AskOverride.Valid || !entry.AskOverride.Decimal.Equal(decimal.RequireFromString("14.5")) {
		t.Errorf("Expected ask override 14.5, got %+v", entry.AskOverride)
	}
	if entry.LastUpdate.Unix() != 1700000000 {
		t.Errorf("Expected last update 1700000000, got %d", entry.LastUpdate.Unix())
	}
}

func TestNilNodeIsSafe(t *testing.T) {
	var n *Node
	if n.IsLeaf() {
		t.Error("nil node should not be a leaf")
	}
	if n.Child("6") != nil {
		t.Error("nil node should have no children")
	}
	if _, ok := n.First(); ok {
		t.Error("nil node should have no entries")
	}
}

func TestPathAndApplyLabelAreInverse(t *testing.T) {
	cases := []sku.Attributes{
		{BaseID: 1, Quality: 6, Tradable: true, Craftable: true},
		{BaseID: 1, Quality: 11, Tradable: false, Craftable: false, Killstreak: 2, Festive: true},
		{BaseID: 1, Quality: 6, Tradable: true, Craftable: true, Quality2: sku.QualityStrange, Australium: true, Killstreak: 3},
		{BaseID: 1, Quality: 5, Tradable: true, Craftable: true, Effect: 13},
	}

	for _, want := range cases {
		path := Path(want)
		got := sku.Attributes{BaseID: want.BaseID}
		for depth, label := range path {
			if err := ApplyLabel(&got, Level(depth), label); err != nil {
				t.Fatalf("ApplyLabel(%d, %q) failed: %v", depth, label, err)
			}
		}
		if got != want {
			t.Errorf("Path %v rebuilt %+v, want %+v", path, got, want)
		}
	}
}

func TestPath(t *testing.T) {
	attrs := sku.Attributes{BaseID: 200, Quality: 6, Tradable: true, Craftable: false, Killstreak: 3}
	want := []string{"6", "Tradable", "Non-Craftable", "Professional Killstreak", "Normal", "Normal", "Normal"}
	if got := Path(attrs); !reflect.DeepEqual(got, want) {
		t.Errorf("Path() = %v, want %v", got, want)
	}

	unusual := sku.Attributes{BaseID: 378, Quality: 5, Tradable: true, Craftable: true, Effect: 13}
	if got := Path(unusual); len(got) != MaxDepth || got[MaxDepth-1] != "13" {
		t.Errorf("Expected effect id as final segment, got %v", got)
	}
}

func TestApplyLabelRejects(t *testing.T) {
	var attrs sku.Attributes
	if err := ApplyLabel(&attrs, LevelKillstreak, "Mega Killstreak"); err == nil {
		t.Error("Expected error for unknown killstreak label")
	}
	if err := ApplyLabel(&attrs, LevelEffect, "Normal"); err == nil {
		t.Error("Expected error for non-numeric effect")
	}
	if err := ApplyLabel(&attrs, Level(MaxDepth), "x"); err == nil {
		t.Error("Expected error beyond the last level")
	}
	if !LevelEffect.Strict() || LevelKillstreak.Strict() {
		t.Error("Only the effect level should be strict")
	}
}

func TestNewSnapshotIndex(t *testing.T) {
	entries := []Entry{
		{Name: "A", BaseIDs: []int{1, 2, 2}, Prices: Branch(nil)},
		{Name: "B", BaseIDs: []int{2}, Prices: Branch(nil)},
	}
	snap := NewSnapshot(entries, testTime, 7)

	if snap.Version != 7 {
		t.Errorf("Expected version 7, got %d", snap.Version)
	}
	if got := snap.Candidates(1); len(got) != 1 || got[0].Name != "A" {
		t.Errorf("Unexpected candidates for 1: %v", got)
	}
	got := snap.Candidates(2)
	if len(got) != 2 || got[0].Name != "A" || got[1].Name != "B" {
		t.Errorf("Expected [A B] for base id 2, got %d entries", len(got))
	}
	if snap.Candidates(3) != nil {
		t.Error("Expected no candidates for unknown base id")
	}
}
