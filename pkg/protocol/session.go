package protocol

// SessionStatus is the clarification state machine's position.
type SessionStatus string

const (
	SessionOpen                  SessionStatus = "OPEN"
	SessionAwaitingClarification SessionStatus = "AWAITING_CLARIFICATION"
	SessionResolved              SessionStatus = "RESOLVED"
)
