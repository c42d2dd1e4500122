/*
Package postgres provides a PostgreSQL-backed implementation of the stock stores.

PURPOSE:
  Multi-instance deployments share one ledger. Quantities are NUMERIC and map
  straight onto decimal.Decimal through the pgx-shopspring-decimal codec,
  registered on every pooled connection.

INTERFACES IMPLEMENTED:
  stock.AtomicLedgerStore: transfer pairs are inserted in one pgx.Tx
  stock.CatalogStore:      products and warehouses
  stock.Snapshotter:       REPEATABLE READ, read-only transaction

USAGE:
  store, err := postgres.New(ctx, os.Getenv("DATABASE_URL"))
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/warp/stock-engine/stock"
)

type Store struct {
	pool *pgxpool.Pool
}

var (
	_ stock.AtomicLedgerStore = (*Store)(nil)
	_ stock.CatalogStore      = (*Store)(nil)
	_ stock.Snapshotter       = (*Store)(nil)
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// New connects, registers the decimal codec and migrates the schema.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	// NUMERIC <-> decimal.Decimal on every connection of the pool.
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %v", stock.ErrStoreUnavailable, err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	sku TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	uom TEXT NOT NULL DEFAULT '',
	min_stock_level NUMERIC NOT NULL DEFAULT 0,
	reorder_point NUMERIC NOT NULL DEFAULT 0,
	price NUMERIC NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT products_sku_key UNIQUE (sku)
);

CREATE TABLE IF NOT EXISTS warehouses (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL,
	product_id TEXT NOT NULL,
	warehouse_id TEXT NOT NULL,
	quantity NUMERIC NOT NULL CHECK (quantity <> 0),
	status TEXT NOT NULL,
	reference_doc TEXT NOT NULL DEFAULT '',
	counterpart_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

ALTER TABLE ledger_entries ADD COLUMN IF NOT EXISTS partner TEXT NOT NULL DEFAULT '';

CREATE INDEX IF NOT EXISTS idx_ledger_entries_product ON ledger_entries (product_id);
`

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// LEDGER
// =============================================================================

func (s *Store) AppendOne(ctx context.Context, e stock.Entry) error {
	return insertEntry(ctx, s.pool, e)
}

// AppendAtomic inserts every entry in one transaction; any failure rolls
// the whole batch back.
func (s *Store) AppendAtomic(ctx context.Context, entries []stock.Entry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, e := range entries {
		if err := insertEntry(ctx, tx, e); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func insertEntry(ctx context.Context, db dbtx, e stock.Entry) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := db.Exec(ctx, `
		INSERT INTO ledger_entries
		(id, type, product_id, warehouse_id, quantity, status, reference_doc, partner, counterpart_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(e.ID), string(e.Type), string(e.ProductID), string(e.WarehouseID),
		e.Quantity, string(e.Status), e.ReferenceDoc, e.Partner, string(e.CounterpartID), createdAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", stock.ErrDuplicateEntry, e.ID)
		}
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

func (s *Store) FetchAll(ctx context.Context) ([]stock.Entry, error) {
	return queryEntries(ctx, s.pool)
}

func queryEntries(ctx context.Context, db dbtx) ([]stock.Entry, error) {
	rows, err := db.Query(ctx, `
		SELECT id, type, product_id, warehouse_id, quantity, status,
		       reference_doc, partner, counterpart_id, created_at
		FROM ledger_entries ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (stock.Entry, error) {
		var (
			e                                   stock.Entry
			id, typ, pid, wid, status, counterp string
		)
		err := row.Scan(&id, &typ, &pid, &wid, &e.Quantity, &status, &e.ReferenceDoc, &e.Partner, &counterp, &e.CreatedAt)
		e.ID = stock.EntryID(id)
		e.Type = stock.MovementType(typ)
		e.ProductID = stock.ProductID(pid)
		e.WarehouseID = stock.WarehouseID(wid)
		e.Status = stock.Status(status)
		e.CounterpartID = stock.EntryID(counterp)
		e.CreatedAt = e.CreatedAt.UTC()
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan ledger: %w", err)
	}
	return entries, nil
}

// =============================================================================
// CATALOG
// =============================================================================

func (s *Store) AppendProduct(ctx context.Context, p stock.Product) error {
	return s.AppendProductWithEntries(ctx, p, nil)
}

// AppendProductWithEntries inserts the product and its opening entries in
// one transaction.
func (s *Store) AppendProductWithEntries(ctx context.Context, p stock.Product, entries []stock.Entry) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO products
		(id, name, sku, category, uom, min_stock_level, reorder_point, price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(p.ID), p.Name, p.SKU, p.Category, p.UoM,
		p.MinStockLevel, p.ReorderPoint, p.Price, createdAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == "products_sku_key" {
				return fmt.Errorf("%w: %s", stock.ErrDuplicateSKU, p.SKU)
			}
			return fmt.Errorf("%w: %s", stock.ErrDuplicateProduct, p.ID)
		}
		return fmt.Errorf("insert product: %w", err)
	}

	for _, e := range entries {
		if err := insertEntry(ctx, tx, e); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) AppendWarehouse(ctx context.Context, w stock.Warehouse) error {
	createdAt := w.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO warehouses (id, name, location, created_at)
		VALUES ($1, $2, $3, $4)`,
		string(w.ID), w.Name, w.Location, createdAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", stock.ErrDuplicateWarehouse, w.ID)
		}
		return fmt.Errorf("insert warehouse: %w", err)
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context) ([]stock.Product, error) {
	return queryProducts(ctx, s.pool)
}

func (s *Store) ListWarehouses(ctx context.Context) ([]stock.Warehouse, error) {
	return queryWarehouses(ctx, s.pool)
}

func queryProducts(ctx context.Context, db dbtx) ([]stock.Product, error) {
	rows, err := db.Query(ctx, `
		SELECT id, name, sku, category, uom, min_stock_level, reorder_point, price, created_at
		FROM products ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (stock.Product, error) {
		var (
			p  stock.Product
			id string
		)
		err := row.Scan(&id, &p.Name, &p.SKU, &p.Category, &p.UoM,
			&p.MinStockLevel, &p.ReorderPoint, &p.Price, &p.CreatedAt)
		p.ID = stock.ProductID(id)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan products: %w", err)
	}
	return products, nil
}

func queryWarehouses(ctx context.Context, db dbtx) ([]stock.Warehouse, error) {
	rows, err := db.Query(ctx, `
		SELECT id, name, location, created_at
		FROM warehouses ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query warehouses: %w", err)
	}
	warehouses, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (stock.Warehouse, error) {
		var (
			w  stock.Warehouse
			id string
		)
		err := row.Scan(&id, &w.Name, &w.Location, &w.CreatedAt)
		w.ID = stock.WarehouseID(id)
		return w, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan warehouses: %w", err)
	}
	return warehouses, nil
}

// =============================================================================
// SNAPSHOT + ADMIN
// =============================================================================

// Snapshot reads catalog and ledger from one REPEATABLE READ transaction, so
// no append can land between the three reads.
func (s *Store) Snapshot(ctx context.Context) (stock.Snapshot, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return stock.Snapshot{}, fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

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
	return snap, tx.Commit(ctx)
}

// Reset clears all data (for demo reloads only).
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE ledger_entries, products, warehouses`)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// isUniqueViolation reports a unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
