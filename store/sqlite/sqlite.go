/*
Package sqlite provides a SQLite-backed implementation of the stock stores.

PURPOSE:
  Durable single-node store for the catalog and the movement ledger. It is
  the default driver for cmd/server.

INTERFACES IMPLEMENTED:
  stock.AtomicLedgerStore: append-only ledger, transfer pairs in one sql.Tx
  stock.CatalogStore:      products and warehouses
  stock.Snapshotter:       catalog + ledger read inside one read transaction

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on ledger_entries
  - No DELETE statements on ledger_entries (except Reset, used by demo reloads)
  - Corrections are new Adjustment entries

KEY TABLES:
  products:       catalog, sku is UNIQUE
  warehouses:     storage locations
  ledger_entries: immutable movements; quantities stored as decimal TEXT

QUANTITIES:
  SQLite has no exact decimal type. Quantities, thresholds and prices are
  written with decimal.Decimal.String() and parsed back, so 0.1 + 0.2 stays
  0.3 after a round trip.

USAGE:
  store, err := sqlite.New("./data/stock.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := stock.NewLedger(store)
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/stock-engine/stock"
)

// Store implements the stock store interfaces using SQLite.
type Store struct {
	db *sql.DB

	// SQLite allows one writer; serialising here avoids SQLITE_BUSY under WAL.
	mu sync.RWMutex
}

var (
	_ stock.AtomicLedgerStore = (*Store)(nil)
	_ stock.CatalogStore      = (*Store)(nil)
	_ stock.Snapshotter       = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		sku TEXT NOT NULL UNIQUE,
		category TEXT NOT NULL DEFAULT '',
		uom TEXT NOT NULL DEFAULT '',
		min_stock_level TEXT NOT NULL DEFAULT '0',
		reorder_point TEXT NOT NULL DEFAULT '0',
		price TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS warehouses (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Ledger (append-only). No foreign keys: the aggregator tolerates
	-- entries whose product was never registered.
	CREATE TABLE IF NOT EXISTS ledger_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		product_id TEXT NOT NULL,
		warehouse_id TEXT NOT NULL,
		quantity TEXT NOT NULL,
		status TEXT NOT NULL,
		reference_doc TEXT,
		partner TEXT,
		counterpart_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_product
		ON ledger_entries(product_id);
	CREATE INDEX IF NOT EXISTS idx_ledger_reference
		ON ledger_entries(reference_doc) WHERE reference_doc IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LEDGER (stock.AtomicLedgerStore)
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// AppendOne adds a single entry to the ledger.
func (s *Store) AppendOne(ctx context.Context, e stock.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return appendEntry(ctx, s.db, e)
}

// AppendAtomic adds every entry in one transaction, or none of them.
func (s *Store) AppendAtomic(ctx context.Context, entries []stock.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, e := range entries {
		if err := appendEntry(ctx, sqlTx, e); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

func appendEntry(ctx context.Context, db execer, e stock.Entry) error {
	query := `
		INSERT INTO ledger_entries
		(id, type, product_id, warehouse_id, quantity, status, reference_doc, partner, counterpart_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		e.ID,
		e.Type,
		e.ProductID,
		e.WarehouseID,
		e.Quantity.String(),
		e.Status,
		nullString(e.ReferenceDoc),
		nullString(e.Partner),
		nullString(string(e.CounterpartID)),
		formatTime(e.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", stock.ErrDuplicateEntry, e.ID)
		}
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

// FetchAll returns the whole ledger in append order.
func (s *Store) FetchAll(ctx context.Context) ([]stock.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryEntries(ctx, s.db)
}

func queryEntries(ctx context.Context, db querier) ([]stock.Entry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, type, product_id, warehouse_id, quantity, status,
		       reference_doc, partner, counterpart_id, created_at
		FROM ledger_entries
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []stock.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (stock.Entry, error) {
	var (
		e            stock.Entry
		quantity     string
		referenceDoc sql.NullString
		partner      sql.NullString
		counterpart  sql.NullString
		createdAt    string
	)

	err := rows.Scan(
		&e.ID, &e.Type, &e.ProductID, &e.WarehouseID, &quantity, &e.Status,
		&referenceDoc, &partner, &counterpart, &createdAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}

	if e.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return e, fmt.Errorf("entry %s: bad quantity %q: %w", e.ID, quantity, err)
	}
	e.ReferenceDoc = referenceDoc.String
	e.Partner = partner.String
	e.CounterpartID = stock.EntryID(counterpart.String)
	e.CreatedAt = parseTime(createdAt)

	return e, nil
}

// =============================================================================
// CATALOG (stock.CatalogStore)
// =============================================================================

func (s *Store) AppendProduct(ctx context.Context, p stock.Product) error {
	return s.AppendProductWithEntries(ctx, p, nil)
}

// AppendProductWithEntries inserts the product and its opening entries in
// one transaction.
func (s *Store) AppendProductWithEntries(ctx context.Context, p stock.Product, entries []stock.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO products
		(id, name, sku, category, uom, min_stock_level, reorder_point, price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.Name, p.SKU, p.Category, p.UoM,
		p.MinStockLevel.String(), p.ReorderPoint.String(), p.Price.String(),
		formatTime(p.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			if strings.Contains(err.Error(), "products.sku") {
				return fmt.Errorf("%w: %s", stock.ErrDuplicateSKU, p.SKU)
			}
			return fmt.Errorf("%w: %s", stock.ErrDuplicateProduct, p.ID)
		}
		return fmt.Errorf("failed to save product: %w", err)
	}

	for _, e := range entries {
		if err := appendEntry(ctx, sqlTx, e); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

func (s *Store) AppendWarehouse(ctx context.Context, w stock.Warehouse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO warehouses (id, name, location, created_at)
		VALUES (?, ?, ?, ?)
	`, w.ID, w.Name, w.Location, formatTime(w.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", stock.ErrDuplicateWarehouse, w.ID)
		}
		return fmt.Errorf("failed to save warehouse: %w", err)
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context) ([]stock.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryProducts(ctx, s.db)
}

func (s *Store) ListWarehouses(ctx context.Context) ([]stock.Warehouse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryWarehouses(ctx, s.db)
}

func queryProducts(ctx context.Context, db querier) ([]stock.Product, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, sku, category, uom, min_stock_level, reorder_point, price, created_at
		FROM products
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []stock.Product
	for rows.Next() {
		var (
			p                      stock.Product
			minLevel, reorder, pri string
			createdAt              string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &p.Category, &p.UoM,
			&minLevel, &reorder, &pri, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		p.MinStockLevel = parseDecimal(minLevel)
		p.ReorderPoint = parseDecimal(reorder)
		p.Price = parseDecimal(pri)
		p.CreatedAt = parseTime(createdAt)
		products = append(products, p)
	}

	return products, rows.Err()
}

func queryWarehouses(ctx context.Context, db querier) ([]stock.Warehouse, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, location, created_at
		FROM warehouses
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query warehouses: %w", err)
	}
	defer rows.Close()

	var warehouses []stock.Warehouse
	for rows.Next() {
		var (
			w         stock.Warehouse
			createdAt string
		)
		if err := rows.Scan(&w.ID, &w.Name, &w.Location, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan warehouse: %w", err)
		}
		w.CreatedAt = parseTime(createdAt)
		warehouses = append(warehouses, w)
	}

	return warehouses, rows.Err()
}

// =============================================================================
// SNAPSHOT + ADMIN
// =============================================================================

// Snapshot reads catalog and ledger inside one transaction.
func (s *Store) Snapshot(ctx context.Context) (stock.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stock.Snapshot{}, fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer tx.Rollback()

	snap := stock.Snapshot{TakenAt: time.Now().UTC()}
	if snap.Products, err = queryProducts(ctx, tx); err != nil {
		return stock.Snapshot{}, err
	}
	if snap.Warehouses, err = queryWarehouses(ctx, tx); err != nil {
		return stock.Snapshot{}, err
	}
	if snap.Entries, err = queryEntries(ctx, tx); err != nil {
		return stock.Snapshot{}, err
	}
	return snap, tx.Commit()
}

// Reset clears all data (for demo reloads only).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"ledger_entries", "products", "warehouses"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// parseDecimal reads a catalog threshold; unreadable values count as zero.
func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
