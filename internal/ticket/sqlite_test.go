package ticket

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stride-io/stride/pkg/protocol"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.DB().Close() })
	return s
}

func manualOutcome(ticketID string) protocol.DecisionOutcome {
	visitBy := "2026-09-08"
	return protocol.DecisionOutcome{
		Decision:      protocol.DecisionManualReview,
		PolicyApplied: protocol.CategoryPtr(protocol.PolicyInspection),
		Reason:        "no policy matched cleanly; store inspection required",
		VisitRequired: true,
		OutletID:      protocol.StringPtr("outlet-7"),
		VisitBy:       &visitBy,
		TicketID:      &ticketID,
	}
}

func newTicket(id, sessionID, orderID string) *protocol.Ticket {
	return &protocol.Ticket{
		ID:        id,
		SessionID: sessionID,
		OrderID:   orderID,
		Outcome:   manualOutcome(id),
		Status:    protocol.TicketOpen,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)

	created, err := s.Create(newTicket("AB12CD34", "sess-1", "ord-1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Get(created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SessionID != "sess-1" {
		t.Errorf("session_id = %q", got.SessionID)
	}
	if got.Status != protocol.TicketOpen {
		t.Errorf("status = %q, want open", got.Status)
	}
	if got.Outcome.Decision != protocol.DecisionManualReview {
		t.Errorf("outcome decision = %q", got.Outcome.Decision)
	}
	if got.Outcome.VisitBy == nil || *got.Outcome.VisitBy != "2026-09-08" {
		t.Errorf("outcome visit_by = %v", got.Outcome.VisitBy)
	}
}

func TestCreateIsIdempotentPerSession(t *testing.T) {
	s := newTestStore(t)

	first, err := s.Create(newTicket("AAAA1111", "sess-1", "ord-1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := s.Create(newTicket("BBBB2222", "sess-1", "ord-1"))
	if err != nil {
		t.Fatalf("second create: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("second create returned %q, want existing ticket %q", second.ID, first.ID)
	}

	all, err := s.List(Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected exactly one ticket for the session, got %d", len(all))
	}
}

func TestGetBySession(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Create(newTicket("AAAA1111", "sess-9", "ord-9")); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetBySession("sess-9")
	if err != nil {
		t.Fatalf("get by session: %v", err)
	}
	if got.ID != "AAAA1111" {
		t.Errorf("id = %q", got.ID)
	}

	if _, err := s.GetBySession("missing"); err == nil {
		t.Error("expected error for unknown session")
	}
}

func TestListFilters(t *testing.T) {
	s := newTestStore(t)

	mustCreate := func(id, sess, order string) {
		t.Helper()
		if _, err := s.Create(newTicket(id, sess, order)); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	mustCreate("AAAA1111", "s1", "ord-1")
	mustCreate("BBBB2222", "s2", "ord-1")
	mustCreate("CCCC3333", "s3", "ord-2")

	if err := s.UpdateStatus("BBBB2222", protocol.TicketResolved, "clerk-1", "handled at counter"); err != nil {
		t.Fatalf("update status: %v", err)
	}

	open := protocol.TicketOpen
	got, err := s.List(Filter{Status: &open, OrderID: "ord-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "AAAA1111" {
		t.Errorf("filtered list = %v", got)
	}

	limited, err := s.List(Filter{Limit: 2})
	if err != nil {
		t.Fatalf("list limit: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limit 2 returned %d", len(limited))
	}
}

func TestCountOpenByOrder(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Create(newTicket("AAAA1111", "s1", "ord-1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Create(newTicket("BBBB2222", "s2", "ord-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	n, err := s.CountOpenByOrder("ord-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("open count = %d, want 2", n)
	}

	if err := s.UpdateStatus("AAAA1111", protocol.TicketResolved, "clerk-1", ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	n, err = s.CountOpenByOrder("ord-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("open count after resolve = %d, want 1", n)
	}
}

func TestUpdateStatusWritesAudit(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Create(newTicket("AAAA1111", "s1", "ord-1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.UpdateStatus("AAAA1111", protocol.TicketResolved, "clerk-3", "replaced in store"); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.Get("AAAA1111")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ResolvedAt == nil {
		t.Error("resolved_at not stamped")
	}
	if len(got.Audit) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(got.Audit))
	}
	if got.Audit[0].Actor != "clerk-3" {
		t.Errorf("audit actor = %q", got.Audit[0].Actor)
	}

	if err := s.UpdateStatus("MISSING0", protocol.TicketClosed, "clerk-3", ""); err == nil {
		t.Error("expected error for unknown ticket")
	}
}

func TestAppendAuditIsAppendOnly(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Create(newTicket("AAAA1111", "s1", "ord-1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, entry := range []string{"first look", "second look"} {
		if err := s.AppendAudit("AAAA1111", "clerk-1", entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := s.Get("AAAA1111")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Audit) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(got.Audit))
	}
	if got.Audit[0].Entry != "first look" || got.Audit[1].Entry != "second look" {
		t.Errorf("audit order wrong: %v", got.Audit)
	}
}

func TestNewIDShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		if len(id) != 8 {
			t.Fatalf("id %q length = %d, want 8", id, len(id))
		}
		for _, c := range id {
			if !('A' <= c && c <= 'Z') && !('0' <= c && c <= '9') {
				t.Fatalf("id %q contains invalid character %q", id, c)
			}
		}
		seen[id] = true
	}
	if len(seen) < 95 {
		t.Errorf("ids look non-random: %d unique of 100", len(seen))
	}
}
