// Package models defines the core domain entities for skupricer.
// These models represent resolved catalog prices, price-list entries, and the rows the
// price-list store keeps for them. All models include built-in validation.
//
// Terminology:
//   - SKU: the canonical item key, e.g. "5021;6" for the key item.
//   - Bid/Ask: what we pay for an item and what we sell it for.
//   - Keys/Metal: the two currency units; metal is written in refined with scrap as 0.11.
package models

import (
	"errors"
	"time"

	"github.com/rewired-gh/skupricer/internal/currency"
	"github.com/shopspring/decimal"
)

// KeySKU is the key item, the currency all other prices are denominated against.
const KeySKU = "5021;6"

// Price sources.
const (
	SourceCatalog     = "catalog"
	SourceApproximate = "catalog-approximate"
	SourceManual      = "manual"
	SourceAutokeys    = "autokeys"
)

// ResolvedPrice is the outcome of pricing one SKU against a catalog snapshot.
// Approximate is set when the price came from a relaxed attribute set rather than
// the requested one.
type ResolvedPrice struct {
	SKU         string          `json:"sku"`
	Bid         decimal.Decimal `json:"bid"`
	Ask         decimal.Decimal `json:"ask"`
	Unit        currency.Unit   `json:"unit"`
	Source      string          `json:"source"`
	Approximate bool            `json:"approximate"`
	Timestamp   time.Time       `json:"timestamp"` // catalog last_update of the quote
}

// Validate checks that all resolved price fields are valid
func (p *ResolvedPrice) Validate() error {
	if p.SKU == "" {
		return errors.New("sku must not be empty")
	}
	if !p.Unit.Valid() {
		return errors.New("unit must be keys or metal")
	}
	if p.Bid.IsNegative() {
		return errors.New("bid must not be negative")
	}
	if p.Ask.LessThan(p.Bid) {
		return errors.New("ask must be >= bid")
	}
	if p.Source == "" {
		return errors.New("source must not be empty")
	}
	if p.Approximate && p.Source == SourceCatalog {
		return errors.New("approximate price must not claim an exact catalog source")
	}
	return nil
}
