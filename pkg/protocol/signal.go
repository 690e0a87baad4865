package protocol

// Intent is the closed set of customer intents the analyzer may emit.
type Intent string

const (
	IntentReturnRefund      Intent = "return_refund_request"
	IntentReplacementRepair Intent = "replacement_repair_request"
	IntentPaidRepair        Intent = "paid_repair"
	IntentInspection        Intent = "inspection_request"
	IntentGeneralChat       Intent = "general_chat"
	IntentAmbiguous         Intent = "ambiguous"
)

// ValidIntent reports whether s is a member of the intent set.
func ValidIntent(s Intent) bool {
	switch s {
	case IntentReturnRefund, IntentReplacementRepair, IntentPaidRepair,
		IntentInspection, IntentGeneralChat, IntentAmbiguous:
		return true
	}
	return false
}

// Well-known defect tags. DefectType is a free tag; these are the values the
// analyzer is prompted to use.
const (
	DefectManufacturing = "manufacturing"
	DefectWear          = "wear"
	DefectWaterDamage   = "water_damage"
)

// Condition tags derived from a signal, matched against rule condition lists.
const (
	ConditionMisuse        = "misuse"
	ConditionWorn          = "worn"
	ConditionManufacturing = "manufacturing_defect"
)

// ComplaintSignal is the structured interpretation of one customer utterance.
// Immutable once created; merging across turns produces a new value.
type ComplaintSignal struct {
	Intent         Intent  `json:"intent"`
	DefectType     string  `json:"defect_type,omitempty"`
	MisuseFlag     *bool   `json:"misuse_flag,omitempty"`
	AmbiguityScore float64 `json:"ambiguity_score"`

	// Derived from the order at evaluation time, not from language.
	ElapsedDays   int  `json:"elapsed_days"`
	WarrantyValid bool `json:"warranty_months_valid"`
}

// AmbiguousSignal is the fail-closed signal emitted when extraction cannot
// produce a confident interpretation.
func AmbiguousSignal() ComplaintSignal {
	return ComplaintSignal{Intent: IntentAmbiguous, AmbiguityScore: 1.0}
}

// Conditions returns the condition tags this signal satisfies, for matching
// against a rule's required and ineligible condition lists.
func (s ComplaintSignal) Conditions() []string {
	var tags []string
	if s.MisuseFlag != nil && *s.MisuseFlag {
		tags = append(tags, ConditionMisuse)
	}
	switch s.DefectType {
	case DefectManufacturing:
		tags = append(tags, ConditionManufacturing)
	case DefectWear:
		tags = append(tags, ConditionWorn)
	}
	return tags
}

// HasCondition reports whether the signal satisfies the given condition tag.
func (s ComplaintSignal) HasCondition(tag string) bool {
	for _, c := range s.Conditions() {
		if c == tag {
			return true
		}
	}
	return false
}
