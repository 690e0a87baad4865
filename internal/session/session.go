package session

import (
	"sync"
	"time"

	"github.com/stride-io/stride/pkg/protocol"
)

// Session accumulates one customer's complaint conversation up to its single
// terminal outcome.
type Session struct {
	mu sync.Mutex

	// cancelled bars any turn that was already queued on the session when
	// it was cancelled; set once, under mu.
	cancelled bool

	ID        string
	OrderID   string
	Status    protocol.SessionStatus
	Turns     int
	Signal    protocol.ComplaintSignal
	History   []protocol.ChatMessage
	Outcome   *protocol.DecisionOutcome
	CreatedAt time.Time
	UpdatedAt time.Time
}

// merge folds a new turn's signal into the accumulated one. A confident new
// intent replaces the old interpretation; an ambiguous turn keeps what
// earlier turns established. Defect and misuse evidence accumulates, with
// the newest non-empty value winning.
func merge(acc, next protocol.ComplaintSignal) protocol.ComplaintSignal {
	out := acc
	if next.Intent != protocol.IntentAmbiguous {
		out.Intent = next.Intent
		out.AmbiguityScore = next.AmbiguityScore
	}
	if next.DefectType != "" {
		out.DefectType = next.DefectType
	}
	if next.MisuseFlag != nil {
		out.MisuseFlag = next.MisuseFlag
	}
	return out
}
