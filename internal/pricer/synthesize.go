package pricer

import (
	"github.com/rewired-gh/skupricer/internal/catalog"
	"github.com/rewired-gh/skupricer/internal/currency"
	"github.com/rewired-gh/skupricer/internal/sku"
	"github.com/shopspring/decimal"
)

// Category selects the margin row for an item.
type Category int

const (
	CategoryDefault Category = iota
	CategoryKillstreak
	CategoryProfessionalKillstreak
	CategoryAustralium
	CategoryUnusual
)

func (c Category) String() string {
	switch c {
	case CategoryUnusual:
		return "unusual"
	case CategoryAustralium:
		return "australium"
	case CategoryProfessionalKillstreak:
		return "professional killstreak"
	case CategoryKillstreak:
		return "killstreak"
	default:
		return "default"
	}
}

// CategoryOf picks the category of attrs. Unusual wins over australium, which wins over
// killstreak.
func CategoryOf(attrs sku.Attributes) Category {
	switch {
	case attrs.IsUnusual():
		return CategoryUnusual
	case attrs.Australium:
		return CategoryAustralium
	case attrs.Killstreak == 3:
		return CategoryProfessionalKillstreak
	case attrs.Killstreak > 0:
		return CategoryKillstreak
	default:
		return CategoryDefault
	}
}

// Margin is the ask markup for one category and unit: the larger of Rate*bid and Floor.
type Margin struct {
	Rate  decimal.Decimal
	Floor decimal.Decimal
}

func margin(rate, floor string) Margin {
	return Margin{Rate: decimal.RequireFromString(rate), Floor: decimal.RequireFromString(floor)}
}

var marginTable = map[Category]map[currency.Unit]Margin{
	CategoryUnusual: {
		currency.Keys:  margin("0.02", "0.5"),
		currency.Metal: margin("0.02", "0.33"),
	},
	CategoryAustralium: {
		currency.Keys:  margin("0.03", "0.25"),
		currency.Metal: margin("0.03", "0.22"),
	},
	CategoryProfessionalKillstreak: {
		currency.Keys:  margin("0.04", "0.1"),
		currency.Metal: margin("0.04", "0.11"),
	},
	CategoryKillstreak: {
		currency.Keys:  margin("0.03", "0.1"),
		currency.Metal: margin("0.03", "0.11"),
	},
	CategoryDefault: {
		currency.Keys:  margin("0.05", "0.05"),
		currency.Metal: margin("0", "0.11"),
	},
}

// MarginFor returns the margin row for a category and unit.
func MarginFor(c Category, unit currency.Unit) (Margin, bool) {
	m, ok := marginTable[c][unit]
	return m, ok
}

// Synthesize derives the ask for a catalog bid. An ask override above the bid is used
// as is. Otherwise the category margin is added; metal asks round up to a whole scrap
// and key asks round to two places.
func Synthesize(entry catalog.PriceEntry, attrs sku.Attributes) (bid, ask decimal.Decimal) {
	bid = entry.Bid
	if entry.AskOverride.Valid && entry.AskOverride.Decimal.GreaterThan(bid) {
		return bid, entry.AskOverride.Decimal
	}

	m, ok := MarginFor(CategoryOf(attrs), entry.Unit)
	if !ok {
		return bid, bid
	}
	markup := decimal.Max(bid.Mul(m.Rate), m.Floor)
	ask = bid.Add(markup)

	if entry.Unit == currency.Metal {
		return bid, currency.CeilScrap(ask)
	}
	return bid, ask.Round(2)
}
