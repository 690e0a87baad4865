package arbiter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stride-io/stride/internal/policy"
	"github.com/stride-io/stride/pkg/protocol"
)

// InventoryChecker is the read-only stock collaborator. Implementations must
// report false on any failure; the arbitrator never treats an error as
// availability.
type InventoryChecker interface {
	Available(ctx context.Context, outletID, productID string, size int) (bool, error)
}

// TicketCounter reports unresolved tickets already open for an order.
type TicketCounter interface {
	CountOpenByOrder(orderID string) (int, error)
}

// Phraser selects explanatory policy phrasing for the reason field. It is
// advisory only: it never influences which rule is chosen.
type Phraser interface {
	Phrase(ctx context.Context, utterance string, category protocol.PolicyCategory) (string, error)
}

// Input carries everything one arbitration needs. The arbitrator itself
// holds no per-session state.
type Input struct {
	Signal      protocol.ComplaintSignal
	Utterance   string
	ElapsedDays int

	OrderID    string
	OrderValid bool
	OutletID   string
	ProductID  string
	Size       int

	// Final forces a terminal outcome: the session has no clarification
	// turns left, so ambiguity can no longer defer.
	Final bool
	Now   time.Time
}

// Result is either exactly one outcome or a request for clarification,
// never both.
type Result struct {
	Outcome            *protocol.DecisionOutcome
	NeedsClarification bool
}

// Arbiter resolves candidate rules and accumulated signals into one
// canonical outcome by fixed precedence.
type Arbiter struct {
	matcher   *policy.Matcher
	inventory InventoryChecker
	tickets   TicketCounter
	phraser   Phraser
	threshold float64
	logger    *slog.Logger
}

// New creates an Arbiter. phraser may be nil.
func New(matcher *policy.Matcher, inventory InventoryChecker, tickets TicketCounter, phraser Phraser, ambiguityThreshold float64, logger *slog.Logger) *Arbiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Arbiter{
		matcher:   matcher,
		inventory: inventory,
		tickets:   tickets,
		phraser:   phraser,
		threshold: ambiguityThreshold,
		logger:    logger,
	}
}

// Decide runs the precedence chain. Evaluated in order, first match wins:
//
//  1. a violated ineligible condition rejects
//  2. the most specific eligible rule applies
//  3. approved replacements are downgraded when stock is unavailable
//  4. no clean rule / sustained ambiguity / repeat tickets fall to inspection
//  5. return/refund past the return window is strictly rejected, never
//     falling through to inspection or paid repair
func (a *Arbiter) Decide(ctx context.Context, in Input) Result {
	if in.ElapsedDays < 0 {
		return terminal(a.reject(ctx, in, nil,
			"purchase date is after the evaluation date; rejected pending data correction"))
	}

	if !in.OrderValid {
		return terminal(a.manual(ctx, in, protocol.PolicyInspection,
			"order not found or missing required fields; manual review required"))
	}

	if ambiguous(in.Signal, a.threshold) {
		if !in.Final {
			return Result{NeedsClarification: true}
		}
		return terminal(a.manual(ctx, in, protocol.PolicyInspection, "clarification limit reached"))
	}

	candidates := a.matcher.Match(in.Signal, in.ElapsedDays)

	// Precedence 1: any candidate's ineligible condition satisfied by the
	// signal rejects outright.
	for _, r := range candidates {
		for _, cond := range r.IneligibleConditions {
			if in.Signal.HasCondition(cond) {
				cat := r.Category
				return terminal(a.reject(ctx, in, &cat,
					fmt.Sprintf("not eligible under %s policy: product condition %q", r.Category, cond)))
			}
		}
	}

	if len(candidates) > 0 {
		// Precedence 2: most specific rule wins (candidates are pre-sorted,
		// ties broken by declaration order).
		rule := candidates[0]
		switch rule.Decision {
		case policy.DecideReject:
			cat := rule.Category
			return terminal(a.reject(ctx, in, &cat, rule.Explanation))
		case policy.DecideManual:
			return terminal(a.manual(ctx, in, rule.Category, rule.Explanation))
		}

		// Precedence 3: replacement approvals require live stock.
		if rule.Category == protocol.PolicyReplacement {
			available, err := a.inventory.Available(ctx, in.OutletID, in.ProductID, in.Size)
			if err != nil {
				a.logger.Warn("inventory lookup failed, treating as unavailable",
					"order", in.OrderID, "error", err)
				available = false
			}
			if !available {
				return terminal(a.manual(ctx, in, protocol.PolicyReplacement,
					"replacement eligible but stock unavailable; manual review required"))
			}
		}

		return terminal(a.approve(ctx, in, rule.Category,
			fmt.Sprintf("%s approved under policy %s (%d days since purchase)", rule.Category, rule.Name, in.ElapsedDays)))
	}

	// Precedence 5 before the inspection fall-through: strict return window.
	if in.Signal.Intent == protocol.IntentReturnRefund {
		window := a.matcher.Table().ReturnWindowMax()
		if in.ElapsedDays > window {
			cat := protocol.PolicyReturn
			return terminal(a.reject(ctx, in, &cat,
				fmt.Sprintf("return/refund requested after %d days; policy limit is %d days", in.ElapsedDays, window)))
		}
	}

	if in.Signal.Intent == protocol.IntentGeneralChat {
		return terminal(a.reject(ctx, in, nil, "no applicable policy"))
	}

	// Precedence 4: inspection fallback, also covering repeat tickets.
	if open, err := a.tickets.CountOpenByOrder(in.OrderID); err != nil {
		a.logger.Warn("open ticket count failed", "order", in.OrderID, "error", err)
	} else if open >= 2 {
		return terminal(a.manual(ctx, in, protocol.PolicyInspection,
			fmt.Sprintf("order has %d unresolved tickets; manual review required", open)))
	}
	return terminal(a.manual(ctx, in, protocol.PolicyInspection,
		"no policy matched cleanly; store inspection required"))
}

func terminal(o *protocol.DecisionOutcome) Result {
	return Result{Outcome: o}
}

func ambiguous(sig protocol.ComplaintSignal, threshold float64) bool {
	return sig.Intent == protocol.IntentAmbiguous || sig.AmbiguityScore > threshold
}

func (a *Arbiter) approve(ctx context.Context, in Input, cat protocol.PolicyCategory, reason string) *protocol.DecisionOutcome {
	o := &protocol.DecisionOutcome{
		Decision:      protocol.DecisionApproved,
		PolicyApplied: protocol.CategoryPtr(cat),
		Reason:        a.phrase(ctx, in, cat, reason),
		VisitRequired: true,
		OutletID:      outletPtr(in),
	}
	o.SetVisitBy(in.Now)
	return o
}

func (a *Arbiter) manual(ctx context.Context, in Input, cat protocol.PolicyCategory, reason string) *protocol.DecisionOutcome {
	o := &protocol.DecisionOutcome{
		Decision:      protocol.DecisionManualReview,
		PolicyApplied: protocol.CategoryPtr(cat),
		Reason:        a.phrase(ctx, in, cat, reason),
		VisitRequired: true,
		OutletID:      outletPtr(in),
	}
	o.SetVisitBy(in.Now)
	return o
}

// outletPtr keeps outlet_id null when the order carries no outlet, as on the
// invalid-order path.
func outletPtr(in Input) *string {
	if in.OutletID == "" {
		return nil
	}
	return protocol.StringPtr(in.OutletID)
}

func (a *Arbiter) reject(ctx context.Context, in Input, cat *protocol.PolicyCategory, reason string) *protocol.DecisionOutcome {
	return &protocol.DecisionOutcome{
		Decision:      protocol.DecisionRejected,
		PolicyApplied: cat,
		Reason:        reason,
	}
}

// phrase appends explanatory policy text selected by semantic similarity.
// Selection failures fall back to the rule-derived reason alone.
func (a *Arbiter) phrase(ctx context.Context, in Input, cat protocol.PolicyCategory, reason string) string {
	if a.phraser == nil || in.Utterance == "" {
		return reason
	}
	text, err := a.phraser.Phrase(ctx, in.Utterance, cat)
	if err != nil || text == "" {
		return reason
	}
	return reason + " " + text
}
