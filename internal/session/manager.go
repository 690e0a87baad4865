package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stride-io/stride/internal/arbiter"
	"github.com/stride-io/stride/internal/orders"
	"github.com/stride-io/stride/pkg/protocol"
)

const clarificationPrompt = "Could you clarify what you would like us to do: a refund, a replacement, or a repair? If the shoes are damaged, please describe what happened."

// Extractor turns an utterance into a complaint signal.
type Extractor interface {
	Extract(ctx context.Context, history []protocol.ChatMessage, utterance string) protocol.ComplaintSignal
}

// Decider resolves signals into an outcome or a clarification request.
type Decider interface {
	Decide(ctx context.Context, in arbiter.Input) arbiter.Result
}

// OutcomeEmitter finalizes a terminal outcome.
type OutcomeEmitter interface {
	Emit(ctx context.Context, sessionID, orderID string, o *protocol.DecisionOutcome, now time.Time) error
}

// Reply is what one conversation turn produces.
type Reply struct {
	SessionID     string                    `json:"session_id"`
	Status        protocol.SessionStatus    `json:"status"`
	Turns         int                       `json:"turns"`
	Clarification string                    `json:"clarification,omitempty"`
	Outcome       *protocol.DecisionOutcome `json:"outcome,omitempty"`
}

// Manager owns all live sessions. Each session serializes its own turns; a
// session reaches exactly one outcome and keeps returning it afterwards.
type Manager struct {
	extractor Extractor
	decider   Decider
	orders    orders.Lookup
	emitter   OutcomeEmitter

	maxTurns int
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager.
func NewManager(extractor Extractor, decider Decider, orderLookup orders.Lookup, emitter OutcomeEmitter, maxTurns int, ttl time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		extractor: extractor,
		decider:   decider,
		orders:    orderLookup,
		emitter:   emitter,
		maxTurns:  maxTurns,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

// HandleMessage processes one customer turn. An empty sessionID starts a new
// session. Once a session is resolved, further messages return the sealed
// outcome unchanged.
func (m *Manager) HandleMessage(ctx context.Context, sessionID, orderID, text string) (*Reply, error) {
	return m.handleTurn(ctx, m.getOrCreate(sessionID, orderID), text)
}

func (m *Manager) handleTurn(ctx context.Context, s *Session, text string) (*Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelled {
		return nil, fmt.Errorf("session %s: cancelled", s.ID)
	}

	now := m.now()
	s.UpdatedAt = now

	if s.Status == protocol.SessionResolved {
		return &Reply{SessionID: s.ID, Status: s.Status, Turns: s.Turns, Outcome: s.Outcome}, nil
	}

	s.Turns++
	sig := m.extractor.Extract(ctx, s.History, text)
	s.Signal = merge(s.Signal, sig)

	order := m.lookupOrder(ctx, s.OrderID)
	elapsed := order.ElapsedDays(now)
	s.Signal.ElapsedDays = elapsed
	s.Signal.WarrantyValid = order.WarrantyValid(now)

	result := m.decider.Decide(ctx, arbiter.Input{
		Signal:      s.Signal,
		Utterance:   text,
		ElapsedDays: elapsed,
		OrderID:     s.OrderID,
		OrderValid:  order.Valid,
		OutletID:    order.OutletID,
		ProductID:   order.ProductID,
		Size:        order.Size,
		Final:       s.Turns >= m.maxTurns,
		Now:         now,
	})

	s.History = append(s.History, protocol.ChatMessage{Role: "user", Content: text})

	if result.NeedsClarification {
		s.Status = protocol.SessionAwaitingClarification
		s.History = append(s.History, protocol.ChatMessage{Role: "assistant", Content: clarificationPrompt})
		m.logger.Info("clarification requested", "session", s.ID, "turn", s.Turns)
		return &Reply{SessionID: s.ID, Status: s.Status, Turns: s.Turns, Clarification: clarificationPrompt}, nil
	}

	if err := m.emitter.Emit(ctx, s.ID, s.OrderID, result.Outcome, now); err != nil {
		// The session stays open; the customer can retry the turn.
		return nil, fmt.Errorf("session %s: %w", s.ID, err)
	}

	s.Outcome = result.Outcome
	s.Status = protocol.SessionResolved
	s.History = append(s.History, protocol.ChatMessage{Role: "assistant", Content: result.Outcome.Reason})
	m.logger.Info("session resolved",
		"session", s.ID, "order", s.OrderID,
		"decision", result.Outcome.Decision, "turns", s.Turns)

	return &Reply{SessionID: s.ID, Status: s.Status, Turns: s.Turns, Outcome: s.Outcome}, nil
}

// Cancel drops a session without an outcome. It waits out a turn already
// holding the session, then bars any turn still queued on it; once Cancel
// returns, no later turn can seal the session or create a ticket.
func (m *Manager) Cancel(sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %q not found", sessionID)
	}

	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()

	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	return nil
}

// Get returns a live session by ID.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep drops sessions idle past the TTL and returns how many were removed.
// Resolved sessions age out the same way; their outcome and ticket survive
// in the stores.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("swept idle sessions", "removed", removed, "remaining", len(m.sessions))
	}
	return removed
}

func (m *Manager) getOrCreate(sessionID, orderID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionID != "" {
		if s, ok := m.sessions[sessionID]; ok {
			return s
		}
	} else {
		sessionID = uuid.NewString()
	}

	now := m.now()
	s := &Session{
		ID:        sessionID,
		OrderID:   orderID,
		Status:    protocol.SessionOpen,
		Signal:    protocol.AmbiguousSignal(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.sessions[sessionID] = s
	return s
}

// lookupOrder fetches order context, degrading to an invalid order on any
// failure so arbitration routes to manual review.
func (m *Manager) lookupOrder(ctx context.Context, orderID string) orders.Order {
	if orderID == "" {
		return orders.Order{}
	}
	o, err := m.orders.Get(ctx, orderID)
	if err != nil {
		m.logger.Warn("order lookup failed", "order", orderID, "error", err)
		return orders.Order{}
	}
	return o
}
