// Package storage persists the price list in SQLite.
// It keeps one row per SKU plus an append-only history of every stored price, with
// history rotation to prevent unbounded growth.
//
// Rows written by autokeys or an operator are never overwritten by a catalog seed;
// only autopriced rows follow the catalog.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/skupricer/internal/currency"
	"github.com/rewired-gh/skupricer/internal/logger"
	"github.com/rewired-gh/skupricer/internal/models"
	"github.com/shopspring/decimal"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a SKU has no stored row.
var ErrNotFound = errors.New("price not stored")

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Storage is a thread-safe SQLite price-list store
type Storage struct {
	db *sql.DB
	mu sync.RWMutex

	// Configuration
	maxHistoryPerSKU int
	now              func() time.Time
}

// HistoryEntry is one past price of a SKU.
type HistoryEntry struct {
	ID        string            `json:"id"`
	SKU       string            `json:"sku"`
	Buy       models.Currencies `json:"buy"`
	Sell      models.Currencies `json:"sell"`
	Source    string            `json:"source"`
	CreatedAt time.Time         `json:"created_at"`
}

// New opens (creating if needed) the database at dbPath. MemoryPath gives a private
// in-memory database; an empty path uses the OS temp directory.
func New(dbPath string, maxHistoryPerSKU int) (*Storage, error) {
	if dbPath == "" {
		dbPath = DefaultPath()
	}
	dsn := dbPath
	if dbPath != MemoryPath {
		if dir := filepath.Dir(dbPath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", dbPath)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports one writer; one connection also keeps :memory: alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Debug("Storage initialized with database: %s", dbPath)
	return &Storage{
		db:               db,
		maxHistoryPerSKU: maxHistoryPerSKU,
		now:              time.Now,
	}, nil
}

// DefaultPath is the database location used when none is configured.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), "skupricer", "prices.db")
}

func createTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS pricelist (
		sku TEXT PRIMARY KEY,
		enabled INTEGER NOT NULL,
		autoprice INTEGER NOT NULL,
		min INTEGER NOT NULL,
		max INTEGER NOT NULL,
		intent INTEGER NOT NULL,
		buy_keys INTEGER NOT NULL,
		buy_metal TEXT NOT NULL,
		sell_keys INTEGER NOT NULL,
		sell_metal TEXT NOT NULL,
		source TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS price_history (
		id TEXT PRIMARY KEY,
		sku TEXT NOT NULL,
		buy_keys INTEGER NOT NULL,
		buy_metal TEXT NOT NULL,
		sell_keys INTEGER NOT NULL,
		sell_metal TEXT NOT NULL,
		source TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_sku ON price_history(sku, created_at);
	`
	_, err := db.Exec(query)
	return err
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

const upsertQuery = `
	INSERT INTO pricelist (sku, enabled, autoprice, min, max, intent, buy_keys, buy_metal, sell_keys, sell_metal, source, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(sku) DO UPDATE SET
		enabled = excluded.enabled,
		autoprice = excluded.autoprice,
		min = excluded.min,
		max = excluded.max,
		intent = excluded.intent,
		buy_keys = excluded.buy_keys,
		buy_metal = excluded.buy_metal,
		sell_keys = excluded.sell_keys,
		sell_metal = excluded.sell_metal,
		source = excluded.source,
		updated_at = excluded.updated_at`

const historyQuery = `
	INSERT INTO price_history (id, sku, buy_keys, buy_metal, sell_keys, sell_metal, source, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// UpdatePrice stores entry under its SKU and appends it to the history.
func (s *Storage) UpdatePrice(ctx context.Context, entry models.PriceListEntry, autoprice bool, source string) (models.StoredEntry, error) {
	entry.Autoprice = autoprice
	stored := models.StoredEntry{
		PriceListEntry: entry,
		Source:         source,
		UpdatedAt:      s.now().UTC().Truncate(time.Millisecond),
	}
	if err := stored.Validate(); err != nil {
		return models.StoredEntry{}, fmt.Errorf("invalid price entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.StoredEntry{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, upsertQuery, rowArgs(stored)...); err != nil {
		return models.StoredEntry{}, fmt.Errorf("failed to upsert price %s: %w", entry.SKU, err)
	}
	if _, err := tx.ExecContext(ctx, historyQuery, historyArgs(stored)...); err != nil {
		return models.StoredEntry{}, fmt.Errorf("failed to record history for %s: %w", entry.SKU, err)
	}
	if err := tx.Commit(); err != nil {
		return models.StoredEntry{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return stored, nil
}

// SeedPrices writes a catalog extraction as autopriced rows. Rows that exist and are
// not autopriced are left alone. Key prices are split into whole keys plus metal with
// rate; prices that cannot be split are skipped. It returns the number of rows written.
func (s *Storage) SeedPrices(ctx context.Context, prices []models.ResolvedPrice, rate currency.Converter) (int, error) {
	if len(prices) == 0 {
		return 0, nil
	}
	updatedAt := s.now().UTC().Truncate(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertQuery+` WHERE pricelist.autoprice = 1`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	written, skipped := 0, 0
	for _, p := range prices {
		buy, err := models.SplitCurrencies(p.Bid, p.Unit, rate)
		if err != nil {
			skipped++
			continue
		}
		sell, err := models.SplitCurrencies(p.Ask, p.Unit, rate)
		if err != nil {
			skipped++
			continue
		}
		row := models.StoredEntry{
			PriceListEntry: models.PriceListEntry{
				SKU:       p.SKU,
				Enabled:   true,
				Autoprice: true,
				Min:       0,
				Max:       1,
				Intent:    models.IntentBank,
				Buy:       buy,
				Sell:      sell,
			},
			Source:    p.Source,
			UpdatedAt: updatedAt,
		}
		if err := row.Validate(); err != nil {
			skipped++
			continue
		}

		res, err := stmt.ExecContext(ctx, rowArgs(row)...)
		if err != nil {
			return 0, fmt.Errorf("failed to seed price %s: %w", p.SKU, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			written += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	if skipped > 0 {
		logger.Warn("Seeding skipped %d of %d prices", skipped, len(prices))
	}
	return written, nil
}

const selectColumns = `sku, enabled, autoprice, min, max, intent, buy_keys, buy_metal, sell_keys, sell_metal, source, updated_at`

// GetPrice returns the stored row for sku, or ErrNotFound.
func (s *Storage) GetPrice(ctx context.Context, sku string) (models.StoredEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM pricelist WHERE sku = ?`, sku)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StoredEntry{}, fmt.Errorf("%w: %s", ErrNotFound, sku)
	}
	if err != nil {
		return models.StoredEntry{}, fmt.Errorf("failed to get price %s: %w", sku, err)
	}
	return entry, nil
}

// ListPrices returns every stored row ordered by SKU.
func (s *Storage) ListPrices(ctx context.Context) ([]models.StoredEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM pricelist ORDER BY sku`)
	if err != nil {
		return nil, fmt.Errorf("failed to list prices: %w", err)
	}
	defer rows.Close()

	entries := make([]models.StoredEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// History returns up to limit past prices of sku, newest first.
func (s *Storage) History(ctx context.Context, sku string, limit int) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, buy_keys, buy_metal, sell_keys, sell_metal, source, created_at
		FROM price_history WHERE sku = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, sku, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get history for %s: %w", sku, err)
	}
	defer rows.Close()

	history := make([]HistoryEntry, 0)
	for rows.Next() {
		var (
			h                   HistoryEntry
			buyMetal, sellMetal string
			createdAt           int64
		)
		if err := rows.Scan(&h.ID, &h.SKU, &h.Buy.Keys, &buyMetal, &h.Sell.Keys, &sellMetal, &h.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		if h.Buy.Metal, err = decimal.NewFromString(buyMetal); err != nil {
			return nil, fmt.Errorf("corrupt buy metal %q: %w", buyMetal, err)
		}
		if h.Sell.Metal, err = decimal.NewFromString(sellMetal); err != nil {
			return nil, fmt.Errorf("corrupt sell metal %q: %w", sellMetal, err)
		}
		h.CreatedAt = time.UnixMilli(createdAt).UTC()
		history = append(history, h)
	}
	return history, rows.Err()
}

// RotateHistory removes history rows beyond the per-SKU limit, oldest first.
func (s *Storage) RotateHistory(ctx context.Context) (int, error) {
	if s.maxHistoryPerSKU <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM price_history WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY sku ORDER BY created_at DESC, rowid DESC) AS rn
				FROM price_history
			) WHERE rn > ?
		)`, s.maxHistoryPerSKU)
	if err != nil {
		return 0, fmt.Errorf("failed to rotate history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (models.StoredEntry, error) {
	var (
		e                   models.StoredEntry
		intent              int
		buyMetal, sellMetal string
		updatedAt           int64
	)
	err := row.Scan(&e.SKU, &e.Enabled, &e.Autoprice, &e.Min, &e.Max, &intent,
		&e.Buy.Keys, &buyMetal, &e.Sell.Keys, &sellMetal, &e.Source, &updatedAt)
	if err != nil {
		return models.StoredEntry{}, err
	}
	e.Intent = models.Intent(intent)
	if e.Buy.Metal, err = decimal.NewFromString(buyMetal); err != nil {
		return models.StoredEntry{}, fmt.Errorf("corrupt buy metal %q: %w", buyMetal, err)
	}
	if e.Sell.Metal, err = decimal.NewFromString(sellMetal); err != nil {
		return models.StoredEntry{}, fmt.Errorf("corrupt sell metal %q: %w", sellMetal, err)
	}
	e.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return e, nil
}

func rowArgs(e models.StoredEntry) []any {
	return []any{
		e.SKU, e.Enabled, e.Autoprice, e.Min, e.Max, int(e.Intent),
		e.Buy.Keys, e.Buy.Metal.String(), e.Sell.Keys, e.Sell.Metal.String(),
		e.Source, e.UpdatedAt.UnixMilli(),
	}
}

func historyArgs(e models.StoredEntry) []any {
	return []any{
		uuid.NewString(), e.SKU,
		e.Buy.Keys, e.Buy.Metal.String(), e.Sell.Keys, e.Sell.Metal.String(),
		e.Source, e.UpdatedAt.UnixMilli(),
	}
}
