// Package firestore stores the catalog and ledger in Cloud Firestore.
//
// Collections:
//
//	products/{id}     catalog
//	skus/{sku}        uniqueness marker, created in the same transaction as the product
//	warehouses/{id}
//	ledger/{entryId}  append-only movements
//
// Quantities are stored as decimal strings; Firestore numbers are float64.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/warp/stock-engine/stock"
)

const (
	productsCol   = "products"
	skusCol       = "skus"
	warehousesCol = "warehouses"
	ledgerCol     = "ledger"
)

type Store struct {
	Client *firestore.Client
	log    *zap.Logger
}

var (
	_ stock.AtomicLedgerStore = (*Store)(nil)
	_ stock.CatalogStore      = (*Store)(nil)
	_ stock.Subscriber        = (*Store)(nil)
	_ stock.Snapshotter       = (*Store)(nil)
)

// New opens a client. An empty credentialsFile uses Application Default
// Credentials; FIRESTORE_EMULATOR_HOST is honoured by the client library.
// log receives listener failures; nil discards them.
func New(ctx context.Context, projectID, credentialsFile string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var (
		client *firestore.Client
		err    error
	)
	if credentialsFile != "" {
		client, err = firestore.NewClient(ctx, projectID, option.WithCredentialsFile(credentialsFile))
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return &Store{Client: client, log: log}, nil
}

func (s *Store) Close() error {
	if s == nil || s.Client == nil {
		return nil
	}
	return s.Client.Close()
}

// =============================================================================
// DOCUMENTS
// =============================================================================

type entryDoc struct {
	ID            string    `firestore:"id"`
	Type          string    `firestore:"type"`
	ProductID     string    `firestore:"productId"`
	WarehouseID   string    `firestore:"warehouseId"`
	Quantity      string    `firestore:"quantity"`
	Status        string    `firestore:"status"`
	ReferenceDoc  string    `firestore:"referenceDoc"`
	Partner       string    `firestore:"partner,omitempty"`
	CounterpartID string    `firestore:"counterpartId,omitempty"`
	CreatedAt     time.Time `firestore:"createdAt"`
}

type productDoc struct {
	ID            string    `firestore:"id"`
	Name          string    `firestore:"name"`
	SKU           string    `firestore:"sku"`
	Category      string    `firestore:"category"`
	UoM           string    `firestore:"uom"`
	MinStockLevel string    `firestore:"minStockLevel"`
	ReorderPoint  string    `firestore:"reorderPoint"`
	Price         string    `firestore:"price"`
	CreatedAt     time.Time `firestore:"createdAt"`
}

type warehouseDoc struct {
	ID        string    `firestore:"id"`
	Name      string    `firestore:"name"`
	Location  string    `firestore:"location"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func toEntryDoc(e stock.Entry) entryDoc {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return entryDoc{
		ID:            string(e.ID),
		Type:          string(e.Type),
		ProductID:     string(e.ProductID),
		WarehouseID:   string(e.WarehouseID),
		Quantity:      e.Quantity.String(),
		Status:        string(e.Status),
		ReferenceDoc:  e.ReferenceDoc,
		Partner:       e.Partner,
		CounterpartID: string(e.CounterpartID),
		CreatedAt:     createdAt.UTC(),
	}
}

func (d entryDoc) entry() (stock.Entry, error) {
	q, err := decimal.NewFromString(d.Quantity)
	if err != nil {
		return stock.Entry{}, fmt.Errorf("entry %s: bad quantity %q: %w", d.ID, d.Quantity, err)
	}
	return stock.Entry{
		ID:            stock.EntryID(d.ID),
		Type:          stock.MovementType(d.Type),
		ProductID:     stock.ProductID(d.ProductID),
		WarehouseID:   stock.WarehouseID(d.WarehouseID),
		Quantity:      q,
		Status:        stock.Status(d.Status),
		ReferenceDoc:  d.ReferenceDoc,
		Partner:       d.Partner,
		CounterpartID: stock.EntryID(d.CounterpartID),
		CreatedAt:     d.CreatedAt.UTC(),
	}, nil
}

func decimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// LEDGER
// =============================================================================

func (s *Store) AppendOne(ctx context.Context, e stock.Entry) error {
	_, err := s.Client.Collection(ledgerCol).Doc(string(e.ID)).Create(ctx, toEntryDoc(e))
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("%w: %s", stock.ErrDuplicateEntry, e.ID)
		}
		return fmt.Errorf("create ledger entry: %w", err)
	}
	return nil
}

// AppendAtomic creates every entry document in one transaction. Create
// fails on an existing id, which aborts the whole commit.
func (s *Store) AppendAtomic(ctx context.Context, entries []stock.Entry) error {
	err := s.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, e := range entries {
			ref := s.Client.Collection(ledgerCol).Doc(string(e.ID))
			if err := tx.Create(ref, toEntryDoc(e)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("%w: %v", stock.ErrDuplicateEntry, err)
		}
		return fmt.Errorf("ledger transaction: %w", err)
	}
	return nil
}

func (s *Store) FetchAll(ctx context.Context) ([]stock.Entry, error) {
	it := s.Client.Collection(ledgerCol).OrderBy("createdAt", firestore.Asc).Documents(ctx)
	return readEntries(it)
}

func readEntries(it *firestore.DocumentIterator) ([]stock.Entry, error) {
	defer it.Stop()

	var out []stock.Entry
	for {
		doc, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read ledger: %w", err)
		}
		var d entryDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode ledger entry %s: %w", doc.Ref.ID, err)
		}
		e, err := d.entry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Subscribe listens to the ledger collection. Each callback receives the
// full ledger as of one server snapshot, so a transfer pair committed in one
// transaction always arrives whole. The first snapshot is delivered before
// Subscribe returns.
func (s *Store) Subscribe(ctx context.Context, onChange func([]stock.Entry)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	it := s.Client.Collection(ledgerCol).OrderBy("createdAt", firestore.Asc).Snapshots(ctx)

	first, err := it.Next()
	if err != nil {
		it.Stop()
		cancel()
		return nil, fmt.Errorf("listen to ledger: %w", err)
	}
	entries, err := readEntries(first.Documents)
	if err != nil {
		it.Stop()
		cancel()
		return nil, err
	}
	onChange(entries)

	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() == nil {
					s.log.Error("ledger listener stopped", zap.Error(err))
				}
				return
			}
			entries, err := readEntries(snap.Documents)
			if err != nil {
				s.log.Warn("skipping unreadable ledger snapshot",
					zap.Time("read_time", snap.ReadTime), zap.Error(err))
				continue
			}
			onChange(entries)
		}
	}()
	return cancel, nil
}

// =============================================================================
// CATALOG
// =============================================================================

// AppendProduct creates the product and its sku marker together.
func (s *Store) AppendProduct(ctx context.Context, p stock.Product) error {
	return s.AppendProductWithEntries(ctx, p, nil)
}

// AppendProductWithEntries creates the product, its sku marker and its
// opening ledger entries in one transaction.
func (s *Store) AppendProductWithEntries(ctx context.Context, p stock.Product, entries []stock.Entry) error {
	productRef := s.Client.Collection(productsCol).Doc(string(p.ID))
	skuRef := s.Client.Collection(skusCol).Doc(p.SKU)

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	doc := productDoc{
		ID:            string(p.ID),
		Name:          p.Name,
		SKU:           p.SKU,
		Category:      p.Category,
		UoM:           p.UoM,
		MinStockLevel: p.MinStockLevel.String(),
		ReorderPoint:  p.ReorderPoint.String(),
		Price:         p.Price.String(),
		CreatedAt:     createdAt.UTC(),
	}

	err := s.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(productRef); err == nil {
			return fmt.Errorf("%w: %s", stock.ErrDuplicateProduct, p.ID)
		} else if status.Code(err) != codes.NotFound {
			return err
		}
		if _, err := tx.Get(skuRef); err == nil {
			return fmt.Errorf("%w: %s", stock.ErrDuplicateSKU, p.SKU)
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		if err := tx.Create(productRef, doc); err != nil {
			return err
		}
		if err := tx.Create(skuRef, map[string]any{"productId": string(p.ID)}); err != nil {
			return err
		}
		for _, e := range entries {
			if err := tx.Create(s.Client.Collection(ledgerCol).Doc(string(e.ID)), toEntryDoc(e)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("%w: %v", stock.ErrDuplicateEntry, err)
	}
	return err
}

func (s *Store) AppendWarehouse(ctx context.Context, w stock.Warehouse) error {
	createdAt := w.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.Client.Collection(warehousesCol).Doc(string(w.ID)).Create(ctx, warehouseDoc{
		ID: string(w.ID), Name: w.Name, Location: w.Location, CreatedAt: createdAt.UTC(),
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("%w: %s", stock.ErrDuplicateWarehouse, w.ID)
		}
		return fmt.Errorf("create warehouse: %w", err)
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context) ([]stock.Product, error) {
	return readProducts(s.Client.Collection(productsCol).OrderBy("createdAt", firestore.Asc).Documents(ctx))
}

func (s *Store) ListWarehouses(ctx context.Context) ([]stock.Warehouse, error) {
	return readWarehouses(s.Client.Collection(warehousesCol).OrderBy("createdAt", firestore.Asc).Documents(ctx))
}

func readProducts(it *firestore.DocumentIterator) ([]stock.Product, error) {
	defer it.Stop()

	var out []stock.Product
	for {
		doc, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read products: %w", err)
		}
		var d productDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode product %s: %w", doc.Ref.ID, err)
		}
		out = append(out, stock.Product{
			ID:            stock.ProductID(d.ID),
			Name:          d.Name,
			SKU:           d.SKU,
			Category:      d.Category,
			UoM:           d.UoM,
			MinStockLevel: decimalOrZero(d.MinStockLevel),
			ReorderPoint:  decimalOrZero(d.ReorderPoint),
			Price:         decimalOrZero(d.Price),
			CreatedAt:     d.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func readWarehouses(it *firestore.DocumentIterator) ([]stock.Warehouse, error) {
	defer it.Stop()

	var out []stock.Warehouse
	for {
		doc, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read warehouses: %w", err)
		}
		var d warehouseDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode warehouse %s: %w", doc.Ref.ID, err)
		}
		out = append(out, stock.Warehouse{
			ID: stock.WarehouseID(d.ID), Name: d.Name, Location: d.Location, CreatedAt: d.CreatedAt.UTC(),
		})
	}
	return out, nil
}

// Snapshot reads the three collections inside one read-only transaction.
func (s *Store) Snapshot(ctx context.Context) (stock.Snapshot, error) {
	var snap stock.Snapshot

	err := s.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		products, err := readProducts(tx.Documents(s.Client.Collection(productsCol).OrderBy("createdAt", firestore.Asc)))
		if err != nil {
			return err
		}
		warehouses, err := readWarehouses(tx.Documents(s.Client.Collection(warehousesCol).OrderBy("createdAt", firestore.Asc)))
		if err != nil {
			return err
		}
		entries, err := readEntries(tx.Documents(s.Client.Collection(ledgerCol).OrderBy("createdAt", firestore.Asc)))
		if err != nil {
			return err
		}
		snap = stock.Snapshot{Products: products, Warehouses: warehouses, Entries: entries, TakenAt: time.Now().UTC()}
		return nil
	}, firestore.ReadOnly)
	if err != nil {
		return stock.Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	return snap, nil
}
