package outcome

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stride-io/stride/internal/events"
	"github.com/stride-io/stride/pkg/protocol"
)

type fakeTickets struct {
	bySession map[string]*protocol.Ticket
	failures  int
	creates   int
}

func newFakeTickets() *fakeTickets {
	return &fakeTickets{bySession: make(map[string]*protocol.Ticket)}
}

func (f *fakeTickets) Create(t *protocol.Ticket) (*protocol.Ticket, error) {
	f.creates++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("store down")
	}
	if existing, ok := f.bySession[t.SessionID]; ok {
		return existing, nil
	}
	f.bySession[t.SessionID] = t
	return t, nil
}

type fakePublisher struct {
	published []events.OutcomeEvent
	err       error
}

func (f *fakePublisher) PublishOutcome(ctx context.Context, e events.OutcomeEvent) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, e)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func manualOutcome() *protocol.DecisionOutcome {
	o := &protocol.DecisionOutcome{
		Decision:      protocol.DecisionManualReview,
		PolicyApplied: protocol.CategoryPtr(protocol.PolicyInspection),
		Reason:        "store inspection required",
		VisitRequired: true,
		OutletID:      protocol.StringPtr("outlet-1"),
	}
	o.SetVisitBy(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
	return o
}

func rejectedOutcome() *protocol.DecisionOutcome {
	return &protocol.DecisionOutcome{
		Decision: protocol.DecisionRejected,
		Reason:   "no applicable policy",
	}
}

func TestEmitManualCreatesTicket(t *testing.T) {
	tickets := newFakeTickets()
	pub := &fakePublisher{}
	e := New(tickets, pub, nil)

	o := manualOutcome()
	if err := e.Emit(context.Background(), "sess-1", "ord-1", o, time.Now()); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if o.TicketID == nil {
		t.Fatal("manual outcome must carry a ticket id")
	}
	if err := o.Validate(); err != nil {
		t.Errorf("emitted outcome invalid: %v", err)
	}
	if len(pub.published) != 1 {
		t.Errorf("published %d events, want 1", len(pub.published))
	}
	if pub.published[0].SessionID != "sess-1" {
		t.Errorf("event session = %q", pub.published[0].SessionID)
	}
}

func TestEmitIsIdempotentPerSession(t *testing.T) {
	tickets := newFakeTickets()
	e := New(tickets, nil, nil)

	first := manualOutcome()
	if err := e.Emit(context.Background(), "sess-1", "ord-1", first, time.Now()); err != nil {
		t.Fatalf("emit: %v", err)
	}
	second := manualOutcome()
	if err := e.Emit(context.Background(), "sess-1", "ord-1", second, time.Now()); err != nil {
		t.Fatalf("second emit: %v", err)
	}
	if *first.TicketID != *second.TicketID {
		t.Errorf("ticket ids differ across re-emit: %q vs %q", *first.TicketID, *second.TicketID)
	}
	if len(tickets.bySession) != 1 {
		t.Errorf("expected one ticket, got %d", len(tickets.bySession))
	}
}

func TestEmitRetriesTicketCreateOnce(t *testing.T) {
	tickets := newFakeTickets()
	tickets.failures = 1
	e := New(tickets, nil, nil)

	o := manualOutcome()
	if err := e.Emit(context.Background(), "sess-1", "ord-1", o, time.Now()); err != nil {
		t.Fatalf("emit should recover after one retry: %v", err)
	}
	if tickets.creates != 2 {
		t.Errorf("creates = %d, want 2", tickets.creates)
	}
}

func TestEmitFailsWhenTicketCannotBeCreated(t *testing.T) {
	tickets := newFakeTickets()
	tickets.failures = 2
	e := New(tickets, nil, nil)

	o := manualOutcome()
	if err := e.Emit(context.Background(), "sess-1", "ord-1", o, time.Now()); err == nil {
		t.Fatal("expected error when ticket store stays down")
	}
}

func TestEmitRejectedNeedsNoTicket(t *testing.T) {
	tickets := newFakeTickets()
	e := New(tickets, nil, nil)

	o := rejectedOutcome()
	if err := e.Emit(context.Background(), "sess-1", "ord-1", o, time.Now()); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if o.TicketID != nil {
		t.Error("rejected outcome must not carry a ticket")
	}
	if tickets.creates != 0 {
		t.Errorf("creates = %d, want 0", tickets.creates)
	}
}

func TestEmitRejectsIllegalCombination(t *testing.T) {
	e := New(newFakeTickets(), nil, nil)

	o := rejectedOutcome()
	o.VisitRequired = true
	if err := e.Emit(context.Background(), "sess-1", "ord-1", o, time.Now()); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestEmitSurvivesPublishFailure(t *testing.T) {
	tickets := newFakeTickets()
	pub := &fakePublisher{err: errors.New("broker down")}
	e := New(tickets, pub, nil)

	o := manualOutcome()
	if err := e.Emit(context.Background(), "sess-1", "ord-1", o, time.Now()); err != nil {
		t.Fatalf("publish failure must not fail the emit: %v", err)
	}
}
