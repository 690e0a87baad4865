package orders

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestLookup(t *testing.T, ttl time.Duration) *SQLiteLookup {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orders.db")
	l, err := NewSQLiteLookup(path, ttl)
	if err != nil {
		t.Fatalf("failed to create lookup: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func seedOrder(t *testing.T, l *SQLiteLookup, id, purchaseDate, productID, outletID string, warrantyMonths int) {
	t.Helper()
	_, err := l.DB().Exec(`
		INSERT INTO orders (id, customer_id, product_id, size, outlet_id, purchase_date, warranty_months)
		VALUES (?, 'cust-1', ?, 42, ?, ?, ?)`,
		id, productID, outletID, purchaseDate, warrantyMonths)
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
}

func TestGetParsesMixedDateFormats(t *testing.T) {
	l := newTestLookup(t, time.Minute)

	for _, tc := range []struct {
		id   string
		date string
	}{
		{"ord-iso", "2026-08-20"},
		{"ord-us", "08/20/2026"},
		{"ord-long", "Aug 20, 2026"},
		{"ord-rfc", "2026-08-20T10:30:00Z"},
	} {
		seedOrder(t, l, tc.id, tc.date, "shoe-1", "outlet-1", 6)
		o, err := l.Get(context.Background(), tc.id)
		if err != nil {
			t.Fatalf("get %s: %v", tc.id, err)
		}
		if !o.Valid {
			t.Errorf("%s: order should be valid", tc.id)
		}
		if o.PurchaseDate.Year() != 2026 || o.PurchaseDate.Month() != time.August || o.PurchaseDate.Day() != 20 {
			t.Errorf("%s: parsed date = %v", tc.id, o.PurchaseDate)
		}
	}
}

func TestGetMarksBrokenRowsInvalid(t *testing.T) {
	l := newTestLookup(t, time.Minute)

	seedOrder(t, l, "ord-baddate", "not a date", "shoe-1", "outlet-1", 6)
	seedOrder(t, l, "ord-noproduct", "2026-08-20", "", "outlet-1", 6)

	for _, id := range []string{"ord-baddate", "ord-noproduct"} {
		o, err := l.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if o.Valid {
			t.Errorf("%s: broken row should be invalid", id)
		}
	}
}

func TestGetMissingOrderErrors(t *testing.T) {
	l := newTestLookup(t, time.Minute)
	if _, err := l.Get(context.Background(), "nope"); err == nil {
		t.Error("expected error for missing order")
	}
}

func TestGetCachesWithinTTL(t *testing.T) {
	l := newTestLookup(t, time.Minute)
	seedOrder(t, l, "ord-1", "2026-08-20", "shoe-1", "outlet-1", 6)

	if _, err := l.Get(context.Background(), "ord-1"); err != nil {
		t.Fatalf("get: %v", err)
	}

	// Delete behind the cache; a cached read must still succeed.
	if _, err := l.DB().Exec(`DELETE FROM orders WHERE id = 'ord-1'`); err != nil {
		t.Fatalf("delete: %v", err)
	}
	o, err := l.Get(context.Background(), "ord-1")
	if err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if o.ProductID != "shoe-1" {
		t.Errorf("cached order = %+v", o)
	}
}

func TestElapsedDays(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	o := Order{PurchaseDate: time.Date(2026, 8, 22, 12, 0, 0, 0, time.UTC)}
	if got := o.ElapsedDays(now); got != 10 {
		t.Errorf("elapsed = %d, want 10", got)
	}

	future := Order{PurchaseDate: time.Date(2026, 9, 5, 12, 0, 0, 0, time.UTC)}
	if got := future.ElapsedDays(now); got >= 0 {
		t.Errorf("future purchase should be negative, got %d", got)
	}
}

func TestElapsedDaysIgnoresTimeOfDay(t *testing.T) {
	// A late-evening purchase evaluated the next morning is still a full
	// calendar day apart; less than 24 elapsed hours must not shave a day
	// off the policy window.
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	o := Order{PurchaseDate: time.Date(2026, 8, 25, 23, 0, 0, 0, time.UTC)}
	if got := o.ElapsedDays(now); got != 7 {
		t.Errorf("elapsed = %d, want 7 calendar days", got)
	}

	sameDay := Order{PurchaseDate: time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)}
	if got := sameDay.ElapsedDays(now); got != 0 {
		t.Errorf("same-day purchase elapsed = %d, want 0", got)
	}

	// A timestamp later today is still today; only a later calendar date
	// counts as a future purchase.
	laterToday := Order{PurchaseDate: time.Date(2026, 9, 1, 20, 0, 0, 0, time.UTC)}
	if got := laterToday.ElapsedDays(now); got != 0 {
		t.Errorf("later-today purchase elapsed = %d, want 0", got)
	}

	tomorrow := Order{PurchaseDate: time.Date(2026, 9, 2, 2, 0, 0, 0, time.UTC)}
	if got := tomorrow.ElapsedDays(now); got != -1 {
		t.Errorf("next-day purchase elapsed = %d, want -1", got)
	}
}

func TestWarrantyValid(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	in := Order{PurchaseDate: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), WarrantyMonths: 6}
	if !in.WarrantyValid(now) {
		t.Error("order inside 6-month warranty should be valid")
	}
	out := Order{PurchaseDate: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC), WarrantyMonths: 6}
	if out.WarrantyValid(now) {
		t.Error("order past warranty should be invalid")
	}
	none := Order{PurchaseDate: now, WarrantyMonths: 0}
	if none.WarrantyValid(now) {
		t.Error("zero warranty months should be invalid")
	}
}
