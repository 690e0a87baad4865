package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Checker is the read-only stock collaborator. Callers treat any error as
// "unavailable"; a stock miss can only ever downgrade a decision toward
// manual review, never upgrade one.
type Checker interface {
	Available(ctx context.Context, outletID, productID string, size int) (bool, error)
}

// SQLiteChecker reads stock levels from the retail SQLite replica with a
// short TTL cache. Stock moves faster than orders, so the TTL here should be
// a fraction of the orders cache TTL.
type SQLiteChecker struct {
	db  *sql.DB
	ttl time.Duration

	mu    sync.Mutex
	cache map[string]cachedStock
}

type cachedStock struct {
	available bool
	expires   time.Time
}

// NewSQLiteChecker opens the stock replica.
func NewSQLiteChecker(path string, ttl time.Duration) (*SQLiteChecker, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("inventory: open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("inventory: wal: %w", err)
	}

	c := &SQLiteChecker{db: db, ttl: ttl, cache: make(map[string]cachedStock)}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLiteChecker) migrate() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS stock (
			outlet_id  TEXT NOT NULL,
			product_id TEXT NOT NULL,
			size       INTEGER NOT NULL,
			quantity   INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (outlet_id, product_id, size)
		);
	`)
	if err != nil {
		return fmt.Errorf("inventory: migrate: %w", err)
	}
	return nil
}

// Available reports whether the outlet has the product in the given size.
// A missing row means no stock, not an error.
func (c *SQLiteChecker) Available(ctx context.Context, outletID, productID string, size int) (bool, error) {
	key := fmt.Sprintf("%s|%s|%d", outletID, productID, size)

	c.mu.Lock()
	if cached, ok := c.cache[key]; ok && time.Now().Before(cached.expires) {
		c.mu.Unlock()
		return cached.available, nil
	}
	c.mu.Unlock()

	var quantity int
	err := c.db.QueryRowContext(ctx,
		`SELECT quantity FROM stock WHERE outlet_id = ? AND product_id = ? AND size = ?`,
		outletID, productID, size).Scan(&quantity)
	if err == sql.ErrNoRows {
		quantity = 0
	} else if err != nil {
		return false, fmt.Errorf("inventory: query %s: %w", key, err)
	}

	available := quantity > 0
	c.mu.Lock()
	c.cache[key] = cachedStock{available: available, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return available, nil
}

// Close closes the underlying database.
func (c *SQLiteChecker) Close() error {
	return c.db.Close()
}

// DB returns the underlying database connection (for testing or seeding).
func (c *SQLiteChecker) DB() *sql.DB {
	return c.db
}
