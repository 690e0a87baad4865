package protocol

import (
	"fmt"
	"time"
)

// Decision is one of the three terminal outcomes. There is no fourth value.
type Decision string

const (
	DecisionApproved     Decision = "APPROVED"
	DecisionRejected     Decision = "REJECTED"
	DecisionManualReview Decision = "MANUAL_REVIEW"
)

// PolicyCategory identifies which policy family produced an outcome.
type PolicyCategory string

const (
	PolicyReturn      PolicyCategory = "RETURN"
	PolicyReplacement PolicyCategory = "REPLACEMENT"
	PolicyRepair      PolicyCategory = "REPAIR"
	PolicyPaidRepair  PolicyCategory = "PAID_REPAIR"
	PolicyInspection  PolicyCategory = "INSPECTION"
)

// VisitByFormat is the wire format for the visit_by date.
const VisitByFormat = "2006-01-02"

// DecisionOutcome is the single canonical result of a resolved session.
// The JSON shape is consumed by ticketing and response generation; nullable
// fields use pointers so absent values serialize as JSON null.
type DecisionOutcome struct {
	Decision      Decision        `json:"decision"`
	PolicyApplied *PolicyCategory `json:"policy_applied"`
	Reason        string          `json:"reason"`
	VisitRequired bool            `json:"visit_required"`
	OutletID      *string         `json:"outlet_id"`
	VisitBy       *string         `json:"visit_by"`
	TicketID      *string         `json:"ticket_id"`
}

// Validate checks the outcome against the legal field-combination table.
// A violation is a programming error, never a customer-visible decision.
func (o *DecisionOutcome) Validate() error {
	switch o.Decision {
	case DecisionRejected:
		if o.VisitRequired {
			return fmt.Errorf("outcome: REJECTED must not require a visit")
		}
		if o.OutletID != nil || o.VisitBy != nil {
			return fmt.Errorf("outcome: REJECTED must not carry visit fields")
		}
		if o.TicketID != nil {
			return fmt.Errorf("outcome: REJECTED must not carry a ticket")
		}
	case DecisionApproved:
		if !o.VisitRequired {
			return fmt.Errorf("outcome: APPROVED requires a store visit")
		}
		if o.TicketID != nil {
			return fmt.Errorf("outcome: APPROVED must not carry a ticket")
		}
		if o.PolicyApplied == nil {
			return fmt.Errorf("outcome: APPROVED requires policy_applied")
		}
	case DecisionManualReview:
		if !o.VisitRequired {
			return fmt.Errorf("outcome: MANUAL_REVIEW requires a store visit")
		}
		if o.TicketID == nil {
			return fmt.Errorf("outcome: MANUAL_REVIEW requires a ticket")
		}
	default:
		return fmt.Errorf("outcome: unknown decision %q", o.Decision)
	}
	if o.VisitRequired && o.VisitBy == nil {
		return fmt.Errorf("outcome: visit_required without visit_by")
	}
	if !o.VisitRequired && o.VisitBy != nil {
		return fmt.Errorf("outcome: visit_by set without visit_required")
	}
	return nil
}

// SetVisitBy stamps the visit deadline, seven days after the decision date.
func (o *DecisionOutcome) SetVisitBy(decisionDate time.Time) {
	v := decisionDate.AddDate(0, 0, 7).Format(VisitByFormat)
	o.VisitBy = &v
}

// CategoryPtr is a convenience for building outcomes with a nullable category.
func CategoryPtr(c PolicyCategory) *PolicyCategory { return &c }

// StringPtr is a convenience for nullable string fields.
func StringPtr(s string) *string { return &s }
