package outcome

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stride-io/stride/internal/events"
	"github.com/stride-io/stride/internal/ticket"
	"github.com/stride-io/stride/pkg/protocol"
)

// TicketCreator is the slice of the ticket store the emitter needs.
type TicketCreator interface {
	Create(t *protocol.Ticket) (*protocol.Ticket, error)
}

// Emitter finalizes a resolved session: it materializes the inspection
// ticket for manual outcomes, enforces the outcome field-combination table,
// and publishes the outcome event. Ticket creation is idempotent per
// session, so re-emitting after a partial failure is safe.
type Emitter struct {
	tickets   TicketCreator
	publisher events.Publisher
	logger    *slog.Logger
}

// New creates an Emitter. publisher may be nil when event publishing is not
// configured.
func New(tickets TicketCreator, publisher events.Publisher, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{tickets: tickets, publisher: publisher, logger: logger}
}

// Emit completes the outcome and returns it ready for the caller. The
// returned outcome always passes Validate; an error here means the outcome
// could not be completed and the session must not be sealed.
func (e *Emitter) Emit(ctx context.Context, sessionID, orderID string, o *protocol.DecisionOutcome, now time.Time) error {
	if o.Decision == protocol.DecisionManualReview {
		tk, err := e.createTicket(sessionID, orderID, o, now)
		if err != nil {
			return fmt.Errorf("outcome: ticket for session %s: %w", sessionID, err)
		}
		o.TicketID = &tk.ID
	}

	if err := o.Validate(); err != nil {
		return fmt.Errorf("outcome: session %s: %w", sessionID, err)
	}

	if e.publisher != nil {
		event := events.OutcomeEvent{
			SessionID:  sessionID,
			OrderID:    orderID,
			Outcome:    *o,
			ResolvedAt: now,
		}
		if err := e.publisher.PublishOutcome(ctx, event); err != nil {
			// Publishing is advisory; the decision stands.
			e.logger.Warn("outcome event publish failed", "session", sessionID, "error", err)
		}
	}
	return nil
}

func (e *Emitter) createTicket(sessionID, orderID string, o *protocol.DecisionOutcome, now time.Time) (*protocol.Ticket, error) {
	tk := &protocol.Ticket{
		ID:        ticket.NewID(),
		SessionID: sessionID,
		OrderID:   orderID,
		Outcome:   *o,
		Status:    protocol.TicketOpen,
		CreatedAt: now.UTC(),
	}

	created, err := e.tickets.Create(tk)
	if err != nil {
		e.logger.Warn("ticket create failed, retrying once", "session", sessionID, "error", err)
		created, err = e.tickets.Create(tk)
	}
	return created, err
}
