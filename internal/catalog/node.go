package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rewired-gh/skupricer/internal/currency"
	"github.com/shopspring/decimal"
)

// PriceEntry is one price quote at a leaf of the catalog tree.
type PriceEntry struct {
	Bid         decimal.Decimal
	Unit        currency.Unit
	LastUpdate  time.Time
	AskOverride decimal.NullDecimal
}

// wireEntry is the JSON form of a PriceEntry.
type wireEntry struct {
	Currency   string           `json:"currency"`
	Value      *decimal.Decimal `json:"value"`
	ValueHigh  *decimal.Decimal `json:"value_high"`
	LastUpdate float64          `json:"last_update"`
}

func (w wireEntry) toEntry() (PriceEntry, bool) {
	unit, err := currency.ParseUnit(w.Currency)
	if err != nil || w.Value == nil || w.Value.IsNegative() {
		return PriceEntry{}, false
	}
	entry := PriceEntry{
		Bid:  *w.Value,
		Unit: unit,
	}
	if w.LastUpdate > 0 {
		entry.LastUpdate = time.Unix(int64(w.LastUpdate), 0).UTC()
	}
	if w.ValueHigh != nil {
		entry.AskOverride = decimal.NewNullDecimal(*w.ValueHigh)
	}
	return entry, true
}

// Node is a catalog tree node: either a leaf holding price entries or an inner node
// keyed by label. The zero value is an empty inner node.
type Node struct {
	leaf     bool
	entries  []PriceEntry
	children map[string]*Node
	keys     []string
}

// Leaf builds a leaf node.
func Leaf(entries ...PriceEntry) *Node {
	return &Node{leaf: true, entries: entries}
}

// Branch builds an inner node.
func Branch(children map[string]*Node) *Node {
	n := &Node{children: children}
	n.sortKeys()
	return n
}

// IsLeaf reports whether n holds price entries rather than children.
func (n *Node) IsLeaf() bool {
	return n != nil && n.leaf
}

// Entries returns the price entries of a leaf in document order.
func (n *Node) Entries() []PriceEntry {
	if !n.IsLeaf() {
		return nil
	}
	return n.entries
}

// First returns the first price entry of a leaf.
func (n *Node) First() (PriceEntry, bool) {
	if !n.IsLeaf() || len(n.entries) == 0 {
		return PriceEntry{}, false
	}
	return n.entries[0], true
}

// Child returns the child under label, or nil.
func (n *Node) Child(label string) *Node {
	if n == nil || n.leaf {
		return nil
	}
	return n.children[label]
}

// Keys returns the child labels in traversal order: numeric labels ascending,
// then the rest lexically.
func (n *Node) Keys() []string {
	if n == nil || n.leaf {
		return nil
	}
	return n.keys
}

func (n *Node) sortKeys() {
	n.keys = make([]string, 0, len(n.children))
	for k := range n.children {
		n.keys = append(n.keys, k)
	}
	sort.Slice(n.keys, func(i, j int) bool {
		return labelLess(n.keys[i], n.keys[j])
	})
}

func labelLess(a, b string) bool {
	ai, aErr := strconv.Atoi(a)
	bi, bErr := strconv.Atoi(b)
	switch {
	case aErr == nil && bErr == nil:
		return ai < bi
	case aErr == nil:
		return true
	case bErr == nil:
		return false
	default:
		return a < b
	}
}

// UnmarshalJSON decodes any JSON value into a node. Arrays become leaves (entries that
// do not decode are dropped), objects carrying both "currency" and "value" become
// single-entry leaves, other objects become inner nodes, and scalars become empty
// inner nodes that never match.
func (n *Node) UnmarshalJSON(data []byte) error {
	*n = Node{}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	node, err := decodeNode(json.NewDecoder(bytes.NewReader(data)))
	if err != nil {
		return err
	}
	*n = *node
	return nil
}

// entryFields are the object keys that belong to a price entry.
var entryFields = map[string]bool{
	"currency":    true,
	"value":       true,
	"value_high":  true,
	"last_update": true,
}

// decodeNode reads one value from dec. The tree is walked token by token so each
// level is scanned once.
func decodeNode(dec *json.Decoder) (*Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch tok {
	case json.Delim('['):
		return decodeLeaf(dec)
	case json.Delim('{'):
		return decodeObject(dec)
	default:
		return &Node{}, nil
	}
}

func decodeLeaf(dec *json.Decoder) (*Node, error) {
	n := &Node{leaf: true}
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		var w wireEntry
		if err := json.Unmarshal(raw, &w); err != nil {
			continue
		}
		if entry, ok := w.toEntry(); ok {
			n.entries = append(n.entries, entry)
		}
	}
	// closing ]
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return n, nil
}

func decodeObject(dec *json.Decoder) (*Node, error) {
	children := make(map[string]*Node)
	var fields map[string]json.RawMessage
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		label, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", tok)
		}

		if entryFields[label] {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return nil, err
			}
			if fields == nil {
				fields = make(map[string]json.RawMessage, len(entryFields))
			}
			fields[label] = raw
			continue
		}

		child, err := decodeNode(dec)
		if err != nil {
			return nil, err
		}
		children[label] = child
	}
	// closing }
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	if fields["currency"] != nil && fields["value"] != nil {
		n := &Node{leaf: true}
		if entry, ok := entryFromFields(fields); ok {
			n.entries = []PriceEntry{entry}
		}
		return n, nil
	}

	// Entry keys on an inner node are ordinary labels.
	for label, raw := range fields {
		child := &Node{}
		if err := child.UnmarshalJSON(raw); err != nil {
			return nil, err
		}
		children[label] = child
	}
	return Branch(children), nil
}

func entryFromFields(fields map[string]json.RawMessage) (PriceEntry, bool) {
	var w wireEntry
	targets := map[string]interface{}{
		"currency":    &w.Currency,
		"value":       &w.Value,
		"value_high":  &w.ValueHigh,
		"last_update": &w.LastUpdate,
	}
	for label, raw := range fields {
		if err := json.Unmarshal(raw, targets[label]); err != nil {
			return PriceEntry{}, false
		}
	}
	return w.toEntry()
}
