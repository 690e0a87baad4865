package ticket

import "github.com/stride-io/stride/pkg/protocol"

// Store is the persistence interface for inspection tickets.
type Store interface {
	// Create inserts a ticket for the outcome's session. If a ticket already
	// exists for the session it is returned unchanged; creation is idempotent
	// per session.
	Create(t *protocol.Ticket) (*protocol.Ticket, error)
	// Get retrieves a ticket by ID, including its audit trail.
	Get(id string) (*protocol.Ticket, error)
	// GetBySession retrieves the ticket created for a session, if any.
	GetBySession(sessionID string) (*protocol.Ticket, error)
	// List returns tickets matching the filter, newest first.
	List(filter Filter) ([]*protocol.Ticket, error)
	// CountOpenByOrder counts unresolved tickets for an order.
	CountOpenByOrder(orderID string) (int, error)
	// UpdateStatus changes a ticket's status and records who did it.
	UpdateStatus(ticketID string, status protocol.TicketStatus, actor, note string) error
	// AppendAudit adds an audit note. The trail is append-only.
	AppendAudit(ticketID, actor, entry string) error
}

// Filter constrains ticket list queries.
type Filter struct {
	Status  *protocol.TicketStatus
	OrderID string
	Limit   int // 0 = no limit
}
