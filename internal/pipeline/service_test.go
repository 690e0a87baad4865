package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stride-io/stride/internal/arbiter"
	"github.com/stride-io/stride/internal/orders"
	"github.com/stride-io/stride/internal/outcome"
	"github.com/stride-io/stride/internal/policy"
	"github.com/stride-io/stride/internal/session"
	"github.com/stride-io/stride/internal/ticket"
	"github.com/stride-io/stride/pkg/protocol"
)

type scriptedExtractor struct {
	signals []protocol.ComplaintSignal
	calls   int
}

func (s *scriptedExtractor) Extract(ctx context.Context, history []protocol.ChatMessage, utterance string) protocol.ComplaintSignal {
	if s.calls >= len(s.signals) {
		return protocol.AmbiguousSignal()
	}
	sig := s.signals[s.calls]
	s.calls++
	return sig
}

type fakeInventory struct{ available bool }

func (f *fakeInventory) Available(ctx context.Context, outletID, productID string, size int) (bool, error) {
	return f.available, nil
}

type fakeOrders struct {
	purchaseDaysAgo int
}

func (f *fakeOrders) Get(ctx context.Context, orderID string) (orders.Order, error) {
	return orders.Order{
		ID:             orderID,
		ProductID:      "shoe-1",
		Size:           42,
		OutletID:       "outlet-1",
		PurchaseDate:   time.Now().AddDate(0, 0, -f.purchaseDaysAgo),
		WarrantyMonths: 6,
		Valid:          true,
	}, nil
}

// newTestService wires the real arbitration and emission path over a real
// ticket store, with extraction and the retail replicas faked.
func newTestService(t *testing.T, ex session.Extractor, daysAgo int, stock bool) (*Service, *ticket.SQLiteStore) {
	t.Helper()

	store, err := ticket.NewSQLiteStore(filepath.Join(t.TempDir(), "tickets.db"))
	if err != nil {
		t.Fatalf("ticket store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	arb := arbiter.New(policy.NewMatcher(policy.Default()), &fakeInventory{available: stock}, store, nil, 0.65, nil)
	em := outcome.New(store, nil, nil)
	mgr := session.NewManager(ex, arb, &fakeOrders{purchaseDaysAgo: daysAgo}, em, 3, 30*time.Minute, nil)
	return New(mgr, store), store
}

func confident(intent protocol.Intent, defect string) protocol.ComplaintSignal {
	return protocol.ComplaintSignal{Intent: intent, DefectType: defect, AmbiguityScore: 0.1}
}

func TestReturnWithinWindowEndToEnd(t *testing.T) {
	svc, store := newTestService(t, &scriptedExtractor{signals: []protocol.ComplaintSignal{
		confident(protocol.IntentReturnRefund, ""),
	}}, 3, true)

	reply, err := svc.HandleMessage(context.Background(), "", "ord-1", "I want to return these shoes")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	o := reply.Outcome
	if o == nil || o.Decision != protocol.DecisionApproved {
		t.Fatalf("outcome = %+v", o)
	}
	if o.PolicyApplied == nil || *o.PolicyApplied != protocol.PolicyReturn {
		t.Errorf("policy = %v", o.PolicyApplied)
	}
	if !o.VisitRequired || o.VisitBy == nil || o.TicketID != nil {
		t.Errorf("approved shape wrong: %+v", o)
	}
	if err := o.Validate(); err != nil {
		t.Errorf("outcome invalid: %v", err)
	}

	// No ticket rows for approved outcomes.
	all, err := store.List(ticket.Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("tickets = %d, want 0", len(all))
	}
}

func TestLateReturnRejectedEndToEnd(t *testing.T) {
	svc, store := newTestService(t, &scriptedExtractor{signals: []protocol.ComplaintSignal{
		confident(protocol.IntentReturnRefund, ""),
	}}, 12, true)

	reply, err := svc.HandleMessage(context.Background(), "", "ord-1", "refund please")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	o := reply.Outcome
	if o == nil || o.Decision != protocol.DecisionRejected {
		t.Fatalf("outcome = %+v", o)
	}
	if o.VisitRequired || o.OutletID != nil || o.VisitBy != nil || o.TicketID != nil {
		t.Errorf("rejected outcome must be bare: %+v", o)
	}
	all, _ := store.List(ticket.Filter{})
	if len(all) != 0 {
		t.Errorf("tickets = %d, want 0 for rejection", len(all))
	}
}

func TestManufacturingDefectReplacementEndToEnd(t *testing.T) {
	svc, _ := newTestService(t, &scriptedExtractor{signals: []protocol.ComplaintSignal{
		confident(protocol.IntentReplacementRepair, protocol.DefectManufacturing),
	}}, 10, true)

	reply, err := svc.HandleMessage(context.Background(), "", "ord-1", "the sole detached, I want a new pair")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	o := reply.Outcome
	if o == nil || o.Decision != protocol.DecisionApproved {
		t.Fatalf("outcome = %+v", o)
	}
	if *o.PolicyApplied != protocol.PolicyReplacement {
		t.Errorf("policy = %v, want REPLACEMENT", *o.PolicyApplied)
	}
}

func TestNoStockCreatesInspectionTicket(t *testing.T) {
	svc, store := newTestService(t, &scriptedExtractor{signals: []protocol.ComplaintSignal{
		confident(protocol.IntentReplacementRepair, protocol.DefectManufacturing),
	}}, 10, false)

	reply, err := svc.HandleMessage(context.Background(), "", "ord-1", "new pair please")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	o := reply.Outcome
	if o == nil || o.Decision != protocol.DecisionManualReview {
		t.Fatalf("outcome = %+v", o)
	}
	if o.TicketID == nil {
		t.Fatal("manual review without a ticket")
	}
	if err := o.Validate(); err != nil {
		t.Errorf("outcome invalid: %v", err)
	}

	tk, err := svc.GetTicket(*o.TicketID)
	if err != nil {
		t.Fatalf("get ticket: %v", err)
	}
	if tk.SessionID != reply.SessionID {
		t.Errorf("ticket session = %q, want %q", tk.SessionID, reply.SessionID)
	}
	if tk.Status != protocol.TicketOpen {
		t.Errorf("ticket status = %q", tk.Status)
	}
	if len(*o.TicketID) != 8 {
		t.Errorf("ticket id %q not 8 chars", *o.TicketID)
	}

	n, err := store.CountOpenByOrder("ord-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("open tickets = %d", n)
	}
}

func TestClarificationLimitForcesManual(t *testing.T) {
	svc, _ := newTestService(t, &scriptedExtractor{}, 5, true)

	var sessionID string
	var last *session.Reply
	for i := 0; i < 3; i++ {
		reply, err := svc.HandleMessage(context.Background(), sessionID, "ord-1", "something about shoes")
		if err != nil {
			t.Fatalf("turn %d: %v", i+1, err)
		}
		sessionID = reply.SessionID
		last = reply
	}

	if last.Status != protocol.SessionResolved {
		t.Fatalf("status = %q after 3 turns", last.Status)
	}
	o := last.Outcome
	if o == nil || o.Decision != protocol.DecisionManualReview {
		t.Fatalf("outcome = %+v", o)
	}
	if !strings.Contains(o.Reason, "clarification limit") {
		t.Errorf("reason = %q", o.Reason)
	}
	if o.TicketID == nil {
		t.Error("forced manual review must carry a ticket")
	}
}

func TestSealedSessionKeepsOneTicket(t *testing.T) {
	svc, store := newTestService(t, &scriptedExtractor{signals: []protocol.ComplaintSignal{
		confident(protocol.IntentInspection, ""),
		confident(protocol.IntentReturnRefund, ""),
	}}, 5, true)

	first, err := svc.HandleMessage(context.Background(), "", "ord-1", "please inspect them")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if first.Outcome == nil || first.Outcome.Decision != protocol.DecisionManualReview {
		t.Fatalf("outcome = %+v", first.Outcome)
	}

	second, err := svc.HandleMessage(context.Background(), first.SessionID, "ord-1", "actually refund me")
	if err != nil {
		t.Fatalf("second handle: %v", err)
	}
	if second.Outcome.Decision != protocol.DecisionManualReview {
		t.Error("sealed session changed its outcome")
	}
	if *second.Outcome.TicketID != *first.Outcome.TicketID {
		t.Error("ticket id changed across re-delivery")
	}

	all, _ := store.List(ticket.Filter{})
	if len(all) != 1 {
		t.Errorf("tickets = %d, want exactly 1", len(all))
	}
}
