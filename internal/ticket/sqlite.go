package ticket

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/stride-io/stride/pkg/protocol"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ticket store: open: %w", err)
	}

	// Enable WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ticket store: wal: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tickets (
			id          TEXT PRIMARY KEY,
			session_id  TEXT NOT NULL UNIQUE,
			order_id    TEXT NOT NULL DEFAULT '',
			outcome     TEXT NOT NULL,
			status      TEXT NOT NULL DEFAULT 'open',
			created_at  TEXT NOT NULL,
			resolved_at TEXT
		);

		CREATE TABLE IF NOT EXISTS ticket_audit (
			id         TEXT PRIMARY KEY,
			ticket_id  TEXT NOT NULL REFERENCES tickets(id),
			actor      TEXT NOT NULL,
			entry      TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_audit_ticket ON ticket_audit(ticket_id);
		CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
		CREATE INDEX IF NOT EXISTS idx_tickets_order ON tickets(order_id);
	`)
	if err != nil {
		return fmt.Errorf("ticket store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Create(t *protocol.Ticket) (*protocol.Ticket, error) {
	outcome, err := json.Marshal(t.Outcome)
	if err != nil {
		return nil, fmt.Errorf("ticket store: marshal outcome: %w", err)
	}

	// The UNIQUE constraint on session_id makes creation idempotent: a
	// concurrent or repeated create for the same session is a no-op and the
	// existing row wins.
	_, err = s.db.Exec(`
		INSERT INTO tickets (id, session_id, order_id, outcome, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING
	`, t.ID, t.SessionID, t.OrderID, string(outcome), string(t.Status), t.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("ticket store: create: %w", err)
	}

	return s.GetBySession(t.SessionID)
}

func (s *SQLiteStore) Get(id string) (*protocol.Ticket, error) {
	row := s.db.QueryRow(`SELECT id, session_id, order_id, outcome, status, created_at, resolved_at FROM tickets WHERE id = ?`, id)
	t, err := scanTicket(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("ticket %q not found", id)
		}
		return nil, fmt.Errorf("ticket store: get: %w", err)
	}

	audit, err := s.loadAudit(t.ID)
	if err != nil {
		return nil, err
	}
	t.Audit = audit
	return t, nil
}

func (s *SQLiteStore) GetBySession(sessionID string) (*protocol.Ticket, error) {
	row := s.db.QueryRow(`SELECT id, session_id, order_id, outcome, status, created_at, resolved_at FROM tickets WHERE session_id = ?`, sessionID)
	t, err := scanTicket(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no ticket for session %q", sessionID)
		}
		return nil, fmt.Errorf("ticket store: get by session: %w", err)
	}

	audit, err := s.loadAudit(t.ID)
	if err != nil {
		return nil, err
	}
	t.Audit = audit
	return t, nil
}

func (s *SQLiteStore) List(filter Filter) ([]*protocol.Ticket, error) {
	query := "SELECT id, session_id, order_id, outcome, status, created_at, resolved_at FROM tickets WHERE 1=1"
	var args []any

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	if filter.OrderID != "" {
		query += " AND order_id = ?"
		args = append(args, filter.OrderID)
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("ticket store: list: %w", err)
	}
	defer rows.Close()

	var tickets []*protocol.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("ticket store: list scan: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (s *SQLiteStore) CountOpenByOrder(orderID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM tickets WHERE order_id = ? AND status = 'open'`, orderID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ticket store: count open: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) UpdateStatus(ticketID string, status protocol.TicketStatus, actor, note string) error {
	var resolvedAt *string
	if status == protocol.TicketResolved || status == protocol.TicketClosed {
		v := time.Now().UTC().Format(time.RFC3339)
		resolvedAt = &v
	}

	result, err := s.db.Exec(`UPDATE tickets SET status = ?, resolved_at = COALESCE(?, resolved_at) WHERE id = ?`,
		string(status), resolvedAt, ticketID)
	if err != nil {
		return fmt.Errorf("ticket store: update status: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("ticket %q not found", ticketID)
	}

	entry := fmt.Sprintf("status changed to %s", status)
	if note != "" {
		entry += ": " + note
	}
	return s.AppendAudit(ticketID, actor, entry)
}

func (s *SQLiteStore) AppendAudit(ticketID, actor, entry string) error {
	_, err := s.db.Exec(`INSERT INTO ticket_audit (id, ticket_id, actor, entry, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), ticketID, actor, entry, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("ticket store: append audit: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection (for testing or direct access).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// --- helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanTicket(row scannable) (*protocol.Ticket, error) {
	var t protocol.Ticket
	var outcomeJSON, status, createdAtStr string
	var resolvedAtStr *string

	err := row.Scan(&t.ID, &t.SessionID, &t.OrderID, &outcomeJSON, &status, &createdAtStr, &resolvedAtStr)
	if err != nil {
		return nil, err
	}

	t.Status = protocol.TicketStatus(status)
	if err := json.Unmarshal([]byte(outcomeJSON), &t.Outcome); err != nil {
		return nil, fmt.Errorf("ticket store: decode outcome: %w", err)
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
	if resolvedAtStr != nil {
		rt, _ := time.Parse(time.RFC3339, *resolvedAtStr)
		t.ResolvedAt = &rt
	}
	return &t, nil
}

func (s *SQLiteStore) loadAudit(ticketID string) ([]protocol.AuditEntry, error) {
	rows, err := s.db.Query(`SELECT id, actor, entry, created_at FROM ticket_audit WHERE ticket_id = ? ORDER BY created_at`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("ticket store: load audit: %w", err)
	}
	defer rows.Close()

	var audit []protocol.AuditEntry
	for rows.Next() {
		var a protocol.AuditEntry
		var ts string
		if err := rows.Scan(&a.ID, &a.Actor, &a.Entry, &ts); err != nil {
			return nil, fmt.Errorf("ticket store: scan audit: %w", err)
		}
		a.TicketID = ticketID
		a.CreatedAt, _ = time.Parse(time.RFC3339, ts)
		audit = append(audit, a)
	}
	return audit, rows.Err()
}
