package pipeline

import (
	"context"

	"github.com/stride-io/stride/internal/session"
	"github.com/stride-io/stride/internal/ticket"
	"github.com/stride-io/stride/pkg/protocol"
)

// Service is the complaint pipeline facade: conversation turns go through
// the session manager, ticket reads and updates go to the store. It is what
// the API server and CLI bind to.
type Service struct {
	sessions *session.Manager
	tickets  ticket.Store
}

// New creates a Service.
func New(sessions *session.Manager, tickets ticket.Store) *Service {
	return &Service{sessions: sessions, tickets: tickets}
}

func (s *Service) HandleMessage(ctx context.Context, sessionID, orderID, text string) (*session.Reply, error) {
	return s.sessions.HandleMessage(ctx, sessionID, orderID, text)
}

func (s *Service) CancelSession(sessionID string) error {
	return s.sessions.Cancel(sessionID)
}

func (s *Service) SessionCount() int {
	return s.sessions.Count()
}

func (s *Service) ListTickets(filter ticket.Filter) ([]*protocol.Ticket, error) {
	return s.tickets.List(filter)
}

func (s *Service) GetTicket(id string) (*protocol.Ticket, error) {
	return s.tickets.Get(id)
}

func (s *Service) UpdateTicketStatus(id string, status protocol.TicketStatus, actor, note string) error {
	return s.tickets.UpdateStatus(id, status, actor, note)
}
