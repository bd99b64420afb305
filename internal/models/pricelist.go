package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/rewired-gh/skupricer/internal/currency"
	"github.com/shopspring/decimal"
)

// Intent tells the trading side what to do with a price-list entry.
type Intent int

const (
	IntentBuy  Intent = 0
	IntentSell Intent = 1
	IntentBank Intent = 2
)

func (i Intent) String() string {
	switch i {
	case IntentBuy:
		return "buy"
	case IntentSell:
		return "sell"
	case IntentBank:
		return "bank"
	default:
		return fmt.Sprintf("intent(%d)", int(i))
	}
}

// Valid reports whether i is a known intent.
func (i Intent) Valid() bool {
	return i >= IntentBuy && i <= IntentBank
}

// Currencies is a price split into whole keys plus metal.
type Currencies struct {
	Keys  int             `json:"keys"`
	Metal decimal.Decimal `json:"metal"`
}

// Validate checks that both parts are non-negative.
func (c Currencies) Validate() error {
	if c.Keys < 0 {
		return errors.New("keys must not be negative")
	}
	if c.Metal.IsNegative() {
		return errors.New("metal must not be negative")
	}
	return nil
}

// Exceeds reports whether c is worth more than other. Metal below one key's worth is
// assumed, so keys compare first.
func (c Currencies) Exceeds(other Currencies) bool {
	if c.Keys != other.Keys {
		return c.Keys > other.Keys
	}
	return c.Metal.GreaterThan(other.Metal)
}

// SplitCurrencies turns a single-unit amount into whole keys plus metal. The fractional
// key part is converted with rate; it fails with currency.ErrNoKeyRate if that is needed
// and rate is unusable.
func SplitCurrencies(amount decimal.Decimal, unit currency.Unit, rate currency.Converter) (Currencies, error) {
	switch unit {
	case currency.Metal:
		return Currencies{Metal: amount}, nil
	case currency.Keys:
		whole := amount.Floor()
		c := Currencies{Keys: int(whole.IntPart())}
		frac := amount.Sub(whole)
		if frac.IsZero() {
			c.Metal = decimal.Zero
			return c, nil
		}
		if rate == nil {
			return Currencies{}, currency.ErrNoKeyRate
		}
		metal, err := rate.ToMetal(frac, currency.Keys)
		if err != nil {
			return Currencies{}, err
		}
		c.Metal = metal
		return c, nil
	default:
		return Currencies{}, fmt.Errorf("unknown currency unit %q", unit)
	}
}

// PriceListEntry is one row the trading side prices against.
type PriceListEntry struct {
	SKU       string     `json:"sku"`
	Enabled   bool       `json:"enabled"`
	Autoprice bool       `json:"autoprice"`
	Min       int        `json:"min"`
	Max       int        `json:"max"`
	Intent    Intent     `json:"intent"`
	Buy       Currencies `json:"buy"`
	Sell      Currencies `json:"sell"`
}

// Validate checks that all price-list entry fields are valid
func (e *PriceListEntry) Validate() error {
	if e.SKU == "" {
		return errors.New("sku must not be empty")
	}
	if !e.Intent.Valid() {
		return fmt.Errorf("unknown intent %d", int(e.Intent))
	}
	if e.Min < 0 {
		return errors.New("min must not be negative")
	}
	if e.Max < e.Min {
		return errors.New("max must be >= min")
	}
	if err := e.Buy.Validate(); err != nil {
		return fmt.Errorf("buy: %w", err)
	}
	if err := e.Sell.Validate(); err != nil {
		return fmt.Errorf("sell: %w", err)
	}
	if !e.Autoprice && e.Buy.Exceeds(e.Sell) {
		return errors.New("buy price must not exceed sell price")
	}
	return nil
}

// StoredEntry is a price-list entry as persisted by the store.
type StoredEntry struct {
	PriceListEntry
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that all stored entry fields are valid
func (s *StoredEntry) Validate() error {
	if err := s.PriceListEntry.Validate(); err != nil {
		return err
	}
	if s.Source == "" {
		return errors.New("source must not be empty")
	}
	if s.UpdatedAt.IsZero() {
		return errors.New("updated at must be set")
	}
	return nil
}
