package pricer

import (
	"context"
	"fmt"

	"github.com/rewired-gh/skupricer/internal/catalog"
	"github.com/rewired-gh/skupricer/internal/currency"
	"github.com/rewired-gh/skupricer/internal/logger"
	"github.com/rewired-gh/skupricer/internal/models"
	"github.com/rewired-gh/skupricer/internal/sku"
)

// Fetcher supplies catalog snapshots. *catalog.Cache implements it.
type Fetcher interface {
	Fetch(ctx context.Context) (catalog.Result, error)
	Invalidate()
}

// Service ties the codec, the catalog cache and the resolver together.
type Service struct {
	codec    *sku.Codec
	resolver *Resolver
	catalog  Fetcher
}

// NewService creates a pricing service.
func NewService(codec *sku.Codec, resolver *Resolver, fetcher Fetcher) *Service {
	return &Service{
		codec:    codec,
		resolver: resolver,
		catalog:  fetcher,
	}
}

// GetPrice prices one SKU. Unsupported items are rejected before the catalog is
// fetched. A stale catalog still answers; the warning is only logged.
func (s *Service) GetPrice(ctx context.Context, key string) (models.ResolvedPrice, error) {
	attrs, err := s.codec.Parse(key)
	if err != nil {
		return models.ResolvedPrice{}, err
	}
	// A deny entry matches the id as requested and the id it is priced under.
	if err := s.resolver.Supported(attrs); err != nil {
		return models.ResolvedPrice{}, err
	}
	// The catalog lists aliased items under their canonical id.
	attrs.BaseID = s.codec.Canonical(attrs.BaseID)
	if err := s.resolver.Supported(attrs); err != nil {
		return models.ResolvedPrice{}, err
	}
	canonical, err := s.codec.Encode(attrs)
	if err != nil {
		return models.ResolvedPrice{}, err
	}

	res, err := s.catalog.Fetch(ctx)
	if err != nil {
		return models.ResolvedPrice{}, err
	}
	if res.Warning != nil {
		logger.Warn("Pricing %s from stale catalog (version %d): %v", canonical, res.Snapshot.Version, res.Warning)
	}

	match, err := s.resolver.Resolve(res.Snapshot, attrs)
	if err != nil {
		return models.ResolvedPrice{}, err
	}
	if !match.Found {
		return models.ResolvedPrice{}, fmt.Errorf("%w: %s", ErrNotFound, canonical)
	}

	bid, ask := Synthesize(match.Entry, attrs)
	price := models.ResolvedPrice{
		SKU:         canonical,
		Bid:         bid,
		Ask:         ask,
		Unit:        match.Entry.Unit,
		Source:      models.SourceCatalog,
		Approximate: match.Approximate,
		Timestamp:   match.Entry.LastUpdate,
	}
	if match.Approximate {
		price.Source = models.SourceApproximate
		logger.Debug("Approximate price for %s via %+v", canonical, match.Attributes)
	}
	if price.Timestamp.IsZero() {
		price.Timestamp = res.Snapshot.FetchedAt
	}
	return price, nil
}

// Pricelist flattens the current catalog into a price list.
func (s *Service) Pricelist(ctx context.Context) ([]models.ResolvedPrice, error) {
	res, err := s.catalog.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if res.Warning != nil {
		logger.Warn("Extracting price list from stale catalog (version %d): %v", res.Snapshot.Version, res.Warning)
	}
	return s.resolver.ExtractAll(res.Snapshot, s.codec), nil
}

// Refresh forces a catalog fetch.
func (s *Service) Refresh(ctx context.Context) (catalog.Result, error) {
	s.catalog.Invalidate()
	return s.catalog.Fetch(ctx)
}

// KeyRate returns a converter built from the key's catalog bid in metal.
func (s *Service) KeyRate(ctx context.Context) (currency.KeyRate, error) {
	price, err := s.GetPrice(ctx, models.KeySKU)
	if err != nil {
		return currency.KeyRate{}, fmt.Errorf("failed to price key: %w", err)
	}
	if price.Unit != currency.Metal {
		return currency.KeyRate{}, fmt.Errorf("%w: key priced in %s", currency.ErrNoKeyRate, price.Unit)
	}
	return currency.KeyRate{Metal: price.Bid}, nil
}
