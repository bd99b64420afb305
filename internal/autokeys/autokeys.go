// Package autokeys prices the key item itself. It derives a buy, sell or bank entry for
// the key from the live (or operator pinned) key price and an optional scrap offset,
// and submits it to the price-list store.
package autokeys

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rewired-gh/skupricer/internal/currency"
	"github.com/rewired-gh/skupricer/internal/logger"
	"github.com/rewired-gh/skupricer/internal/models"
	"github.com/shopspring/decimal"
)

// Direction is the stance of a key entry.
type Direction int

const (
	Buy Direction = iota
	Sell
	Bank
)

func (d Direction) String() string {
	return d.Intent().String()
}

// Intent maps the direction to its price-list intent code.
func (d Direction) Intent() models.Intent {
	switch d {
	case Buy:
		return models.IntentBuy
	case Sell:
		return models.IntentSell
	default:
		return models.IntentBank
	}
}

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d >= Buy && d <= Bank
}

// ParseDirection maps "buy", "sell" or "bank" to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	case "bank":
		return Bank, nil
	default:
		return 0, fmt.Errorf("unknown autokeys direction %q", s)
	}
}

// ManualPrice is an operator pinned key price in metal.
type ManualPrice struct {
	Enabled bool
	Buy     decimal.Decimal
	Sell    decimal.Decimal
}

// ScrapAdjustment shifts the key price by Value scrap: up when buying, down when selling.
type ScrapAdjustment struct {
	Enabled bool
	Value   int
}

// Settings is the read-only configuration of an Adjuster.
type Settings struct {
	Manual     ManualPrice
	Adjustment ScrapAdjustment
}

func (s Settings) adjusts(dir Direction) bool {
	return s.Adjustment.Enabled && s.Adjustment.Value != 0 && dir != Bank
}

// PriceSource resolves a SKU's current price. *pricer.Service implements it.
type PriceSource interface {
	GetPrice(ctx context.Context, key string) (models.ResolvedPrice, error)
}

// PriceStore persists price-list entries. *storage.Storage implements it.
type PriceStore interface {
	UpdatePrice(ctx context.Context, entry models.PriceListEntry, autoprice bool, source string) (models.StoredEntry, error)
}

// Alerter is told about failed submissions.
type Alerter interface {
	AlertSubmissionFailure(entry models.PriceListEntry, err error) error
}

// SubmitResult is the outcome of one Submit call.
type SubmitResult struct {
	Entry  models.PriceListEntry
	Stored models.StoredEntry
	Err    error
}

// Adjuster computes and submits key price-list entries. It holds no state between calls.
type Adjuster struct {
	settings Settings
	prices   PriceSource
	store    PriceStore
	alerter  Alerter
}

// NewAdjuster creates an adjuster. alerter may be nil.
func NewAdjuster(settings Settings, prices PriceSource, store PriceStore, alerter Alerter) *Adjuster {
	return &Adjuster{
		settings: settings,
		prices:   prices,
		store:    store,
		alerter:  alerter,
	}
}

// Compute builds the key entry for dir with the given stock thresholds.
//
// A pinned price without an offset is used verbatim. An enabled offset moves both the
// buy and sell price by the offset, added for Buy and subtracted for Sell; Bank entries
// are never offset. Anything else yields an autopriced entry seeded with the live price.
func (a *Adjuster) Compute(ctx context.Context, dir Direction, min, max int) (models.PriceListEntry, error) {
	if !dir.Valid() {
		return models.PriceListEntry{}, fmt.Errorf("unknown direction %d", int(dir))
	}

	entry := models.PriceListEntry{
		SKU:     models.KeySKU,
		Enabled: true,
		Min:     min,
		Max:     max,
		Intent:  dir.Intent(),
	}

	bid, ask, err := a.currentPrice(ctx)
	if err != nil {
		return models.PriceListEntry{}, err
	}

	switch {
	case a.settings.adjusts(dir):
		offset := int64(a.settings.Adjustment.Value)
		if dir == Sell {
			offset = -offset
		}
		bid = currency.AddScrap(bid, offset)
		ask = currency.AddScrap(ask, offset)
	case a.settings.Manual.Enabled:
		// pinned price as is
	default:
		entry.Autoprice = true
	}

	entry.Buy = models.Currencies{Metal: bid}
	entry.Sell = models.Currencies{Metal: ask}

	if err := entry.Validate(); err != nil {
		return models.PriceListEntry{}, fmt.Errorf("invalid key entry: %w", err)
	}
	return entry, nil
}

// currentPrice returns the pinned key price when enabled, otherwise the live one.
func (a *Adjuster) currentPrice(ctx context.Context) (bid, ask decimal.Decimal, err error) {
	if a.settings.Manual.Enabled {
		return a.settings.Manual.Buy, a.settings.Manual.Sell, nil
	}
	if a.prices == nil {
		return decimal.Zero, decimal.Zero, errors.New("no key price source configured")
	}

	price, err := a.prices.GetPrice(ctx, models.KeySKU)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to get key price: %w", err)
	}
	if price.Unit != currency.Metal {
		return decimal.Zero, decimal.Zero, fmt.Errorf("key price must be in metal, got %s", price.Unit)
	}
	return price.Bid, price.Ask, nil
}

// Submit computes the entry for dir and stores it on its own goroutine. The returned
// channel receives exactly one result and is then closed. Failures are logged and
// alerted but never retried.
func (a *Adjuster) Submit(ctx context.Context, dir Direction, min, max int) <-chan SubmitResult {
	results := make(chan SubmitResult, 1)

	go func() {
		defer close(results)

		res := a.submit(ctx, dir, min, max)
		if res.Err != nil {
			logger.Error("Autokeys %s submission failed: %v", dir, res.Err)
			if a.alerter != nil {
				if err := a.alerter.AlertSubmissionFailure(res.Entry, res.Err); err != nil {
					logger.Warn("Failed to send autokeys alert: %v", err)
				}
			}
		} else {
			logger.Info("Autokeys %s entry stored: buy %s / sell %s ref (autoprice=%v)",
				dir, res.Entry.Buy.Metal, res.Entry.Sell.Metal, res.Entry.Autoprice)
		}
		results <- res
	}()

	return results
}

func (a *Adjuster) submit(ctx context.Context, dir Direction, min, max int) SubmitResult {
	entry, err := a.Compute(ctx, dir, min, max)
	if err != nil {
		return SubmitResult{Entry: models.PriceListEntry{SKU: models.KeySKU, Intent: dir.Intent(), Min: min, Max: max}, Err: err}
	}
	if a.store == nil {
		return SubmitResult{Entry: entry, Err: errors.New("no price store configured")}
	}

	stored, err := a.store.UpdatePrice(ctx, entry, entry.Autoprice, a.source(entry, dir))
	if err != nil {
		return SubmitResult{Entry: entry, Err: fmt.Errorf("failed to update price: %w", err)}
	}
	return SubmitResult{Entry: entry, Stored: stored}
}

func (a *Adjuster) source(entry models.PriceListEntry, dir Direction) string {
	switch {
	case entry.Autoprice:
		return models.SourceCatalog
	case a.settings.adjusts(dir):
		return models.SourceAutokeys
	default:
		return models.SourceManual
	}
}
