package protocol

import "time"

// TicketStatus tracks a ticket through manual handling.
type TicketStatus string

const (
	TicketOpen     TicketStatus = "open"
	TicketResolved TicketStatus = "resolved"
	TicketClosed   TicketStatus = "closed"
)

// Ticket is the inspection work item created for MANUAL_REVIEW outcomes.
// One ticket per session, keyed by the session ID for idempotent creation.
type Ticket struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	OrderID   string       `json:"order_id,omitempty"`
	Outcome   DecisionOutcome `json:"outcome"`
	Status    TicketStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	ResolvedAt *time.Time  `json:"resolved_at,omitempty"`
	Audit     []AuditEntry `json:"audit,omitempty"`
}

// AuditEntry is an append-only note on a ticket. Entries are never rewritten.
type AuditEntry struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticket_id"`
	Actor     string    `json:"actor"`
	Entry     string    `json:"entry"`
	CreatedAt time.Time `json:"created_at"`
}
