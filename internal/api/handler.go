// Package api serves prices, the flattened price list and the stored price list over
// HTTP, and exposes catalog refresh and autokeys submission to operators.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rewired-gh/skupricer/internal/autokeys"
	"github.com/rewired-gh/skupricer/internal/catalog"
	"github.com/rewired-gh/skupricer/internal/currency"
	"github.com/rewired-gh/skupricer/internal/models"
	"github.com/rewired-gh/skupricer/internal/storage"
	"github.com/shopspring/decimal"
)

// Pricer is the pricing surface. *pricer.Service implements it.
type Pricer interface {
	GetPrice(ctx context.Context, key string) (models.ResolvedPrice, error)
	Pricelist(ctx context.Context) ([]models.ResolvedPrice, error)
	Refresh(ctx context.Context) (catalog.Result, error)
	KeyRate(ctx context.Context) (currency.KeyRate, error)
}

// KeySubmitter submits key price-list entries. *autokeys.Adjuster implements it.
type KeySubmitter interface {
	Submit(ctx context.Context, dir autokeys.Direction, min, max int) <-chan autokeys.SubmitResult
}

// PriceList reads the stored price list. *storage.Storage implements it.
type PriceList interface {
	GetPrice(ctx context.Context, sku string) (models.StoredEntry, error)
	History(ctx context.Context, sku string, limit int) ([]storage.HistoryEntry, error)
}

// CatalogState reports the snapshot currently held. *catalog.Cache implements it.
type CatalogState interface {
	Current() *catalog.Snapshot
}

// Handler contains the HTTP handlers and their dependencies. Any dependency may be nil;
// its routes are then not mounted.
type Handler struct {
	Pricer     Pricer
	Autokeys   KeySubmitter
	Store      PriceList
	Catalog    CatalogState
	Thresholds func(dir autokeys.Direction) (min, max int)

	now func() time.Time
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Catalog   *CatalogStatus `json:"catalog,omitempty"`
}

// CatalogStatus describes the held snapshot.
type CatalogStatus struct {
	Version    uint64    `json:"version"`
	Items      int       `json:"items"`
	FetchedAt  time.Time `json:"fetched_at"`
	AgeSeconds int64     `json:"age_seconds"`
}

// Health handles GET /api/v1/health. Without a catalog snapshot the service is
// reported as degraded.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	resp := HealthResponse{Status: "healthy", Timestamp: now.UTC()}

	if h.Catalog != nil {
		snap := h.Catalog.Current()
		if snap == nil {
			resp.Status = "degraded"
		} else {
			resp.Catalog = &CatalogStatus{
				Version:    snap.Version,
				Items:      len(snap.Entries),
				FetchedAt:  snap.FetchedAt.UTC(),
				AgeSeconds: int64(snap.Age(now).Seconds()),
			}
		}
	}

	w.Header().Set("Cache-Control", "no-store")
	ok(w, resp)
}

// MetalValue is a price normalized to refined metal.
type MetalValue struct {
	Bid decimal.Decimal `json:"bid"`
	Ask decimal.Decimal `json:"ask"`
}

// PriceResponse is a resolved price plus its metal value when a key rate is known.
type PriceResponse struct {
	models.ResolvedPrice
	MetalValue *MetalValue `json:"metal_value,omitempty"`
}

// GetPrice handles GET /api/v1/prices/{sku}
func (h *Handler) GetPrice(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "sku")

	price, err := h.Pricer.GetPrice(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ok(w, PriceResponse{ResolvedPrice: price, MetalValue: h.metalValue(r.Context(), price)})
}

func (h *Handler) metalValue(ctx context.Context, price models.ResolvedPrice) *MetalValue {
	if price.Unit == currency.Metal {
		return &MetalValue{Bid: price.Bid, Ask: price.Ask}
	}

	rate, err := h.Pricer.KeyRate(ctx)
	if err != nil {
		return nil
	}
	bid, err := rate.ToMetal(price.Bid, price.Unit)
	if err != nil {
		return nil
	}
	ask, err := rate.ToMetal(price.Ask, price.Unit)
	if err != nil {
		return nil
	}
	return &MetalValue{Bid: bid, Ask: ask}
}

// GetPricelist handles GET /api/v1/pricelist
func (h *Handler) GetPricelist(w http.ResponseWriter, r *http.Request) {
	prices, err := h.Pricer.Pricelist(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	meta := &Meta{Total: len(prices)}
	if h.Catalog != nil {
		if snap := h.Catalog.Current(); snap != nil {
			meta.CatalogVersion = snap.Version
		}
	}
	writeJSON(w, http.StatusOK, prices, meta)
}

// RefreshResponse reports a forced catalog fetch.
type RefreshResponse struct {
	Version   uint64    `json:"version"`
	Items     int       `json:"items"`
	FetchedAt time.Time `json:"fetched_at"`
	Stale     bool      `json:"stale"`
	Warning   string    `json:"warning,omitempty"`
}

// RefreshCatalog handles POST /api/v1/catalog/refresh
func (h *Handler) RefreshCatalog(w http.ResponseWriter, r *http.Request) {
	res, err := h.Pricer.Refresh(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := RefreshResponse{
		Version:   res.Snapshot.Version,
		Items:     len(res.Snapshot.Entries),
		FetchedAt: res.Snapshot.FetchedAt.UTC(),
		Stale:     res.Stale,
	}
	if res.Warning != nil {
		resp.Warning = res.Warning.Error()
	}
	ok(w, resp)
}

// SubmitAutokeys handles POST /api/v1/autokeys/{direction}?min=&max=
// It waits for the submission outcome. The submission itself is not tied to the
// request, so a client that goes away does not abort the store write.
func (h *Handler) SubmitAutokeys(w http.ResponseWriter, r *http.Request) {
	dir, err := autokeys.ParseDirection(chi.URLParam(r, "direction"))
	if err != nil {
		writeError(w, r, BadRequest(err.Error()))
		return
	}

	var min, max int
	if h.Thresholds != nil {
		min, max = h.Thresholds(dir)
	}
	if min, err = intParam(r, "min", min); err != nil {
		writeError(w, r, err)
		return
	}
	if max, err = intParam(r, "max", max); err != nil {
		writeError(w, r, err)
		return
	}
	if min < 0 || max < min {
		writeError(w, r, BadRequest("thresholds must satisfy 0 <= min <= max"))
		return
	}

	results := h.Autokeys.Submit(context.WithoutCancel(r.Context()), dir, min, max)
	select {
	case res := <-results:
		if res.Err != nil {
			writeError(w, r, submissionError(res.Err))
			return
		}
		ok(w, res.Stored)
	case <-r.Context().Done():
		writeError(w, r, ServiceUnavailable("request cancelled before the submission finished"))
	}
}

func submissionError(err error) error {
	if errors.Is(err, catalog.ErrCatalogUnavailable) {
		return err
	}
	return &Error{StatusCode: http.StatusBadGateway, Code: "SUBMISSION_FAILED", Message: err.Error()}
}

// StoredResponse is a stored row plus its recent history.
type StoredResponse struct {
	models.StoredEntry
	History []storage.HistoryEntry `json:"history,omitempty"`
}

// GetStored handles GET /api/v1/stored/{sku}?history=N
func (h *Handler) GetStored(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "sku")

	limit, err := intParam(r, "history", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	entry, err := h.Store.GetPrice(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := StoredResponse{StoredEntry: entry}
	if limit > 0 {
		if resp.History, err = h.Store.History(r.Context(), key, limit); err != nil {
			writeError(w, r, err)
			return
		}
	}
	ok(w, resp)
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, BadRequest("invalid " + name + " parameter")
	}
	return n, nil
}

func (h *Handler) clock() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now()
}
