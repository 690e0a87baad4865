package orders

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/araddon/dateparse"
	_ "modernc.org/sqlite"
)

// Order is the purchase context a complaint is evaluated against.
type Order struct {
	ID             string
	CustomerID     string
	ProductID      string
	Size           int
	OutletID       string
	PurchaseDate   time.Time
	WarrantyMonths int

	// Valid is false when the row is missing required fields; such orders
	// route to manual review instead of policy arbitration.
	Valid bool
}

// ElapsedDays returns the calendar-day difference between the purchase date
// and now. Time of day never shifts a policy window; POS rows often carry a
// purchase timestamp. Negative when the recorded purchase date lies in the
// future.
func (o Order) ElapsedDays(now time.Time) int {
	return int(civilDate(now).Sub(civilDate(o.PurchaseDate)).Hours() / 24)
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WarrantyValid reports whether now falls inside the order's warranty period.
func (o Order) WarrantyValid(now time.Time) bool {
	if o.WarrantyMonths <= 0 {
		return false
	}
	return !now.After(o.PurchaseDate.AddDate(0, o.WarrantyMonths, 0))
}

// Lookup is the read-only order collaborator.
type Lookup interface {
	Get(ctx context.Context, orderID string) (Order, error)
}

// SQLiteLookup reads orders from the retail SQLite replica with a
// read-through TTL cache. Order rows change rarely; the cache keeps repeat
// turns of one session from hammering the replica.
type SQLiteLookup struct {
	db  *sql.DB
	ttl time.Duration

	mu    sync.Mutex
	cache map[string]cachedOrder
}

type cachedOrder struct {
	order   Order
	expires time.Time
}

// NewSQLiteLookup opens the orders replica.
func NewSQLiteLookup(path string, ttl time.Duration) (*SQLiteLookup, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("orders: open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("orders: wal: %w", err)
	}

	l := &SQLiteLookup{db: db, ttl: ttl, cache: make(map[string]cachedOrder)}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLookup) migrate() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			id              TEXT PRIMARY KEY,
			customer_id     TEXT NOT NULL DEFAULT '',
			product_id      TEXT NOT NULL DEFAULT '',
			size            INTEGER NOT NULL DEFAULT 0,
			outlet_id       TEXT NOT NULL DEFAULT '',
			purchase_date   TEXT NOT NULL DEFAULT '',
			warranty_months INTEGER NOT NULL DEFAULT 0
		);
	`)
	if err != nil {
		return fmt.Errorf("orders: migrate: %w", err)
	}
	return nil
}

// Get returns the order for orderID. Rows with an unparseable purchase date
// or missing product/outlet come back with Valid=false rather than an error;
// a missing row is an error.
func (l *SQLiteLookup) Get(ctx context.Context, orderID string) (Order, error) {
	l.mu.Lock()
	if c, ok := l.cache[orderID]; ok && time.Now().Before(c.expires) {
		l.mu.Unlock()
		return c.order, nil
	}
	l.mu.Unlock()

	row := l.db.QueryRowContext(ctx, `
		SELECT id, customer_id, product_id, size, outlet_id, purchase_date, warranty_months
		FROM orders WHERE id = ?`, orderID)

	var o Order
	var purchaseDate string
	err := row.Scan(&o.ID, &o.CustomerID, &o.ProductID, &o.Size, &o.OutletID, &purchaseDate, &o.WarrantyMonths)
	if err == sql.ErrNoRows {
		return Order{}, fmt.Errorf("orders: order %q not found", orderID)
	}
	if err != nil {
		return Order{}, fmt.Errorf("orders: get %s: %w", orderID, err)
	}

	o.Valid = true
	// Upstream systems write purchase dates in whatever format the POS of
	// the day used; parse leniently rather than rejecting the row.
	o.PurchaseDate, err = dateparse.ParseAny(purchaseDate)
	if err != nil {
		o.Valid = false
	}
	if o.ProductID == "" || o.OutletID == "" {
		o.Valid = false
	}

	l.mu.Lock()
	l.cache[orderID] = cachedOrder{order: o, expires: time.Now().Add(l.ttl)}
	l.mu.Unlock()
	return o, nil
}

// Close closes the underlying database.
func (l *SQLiteLookup) Close() error {
	return l.db.Close()
}

// DB returns the underlying database connection (for testing or seeding).
func (l *SQLiteLookup) DB() *sql.DB {
	return l.db
}
