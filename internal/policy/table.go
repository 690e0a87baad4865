package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stride-io/stride/pkg/protocol"
)

// RuleDecision is what a rule yields when it matches.
type RuleDecision string

const (
	DecideApprove RuleDecision = "approve"
	DecideReject  RuleDecision = "reject"
	DecideManual  RuleDecision = "manual"
)

// Rule is one row of the policy table. Rules are loaded once and never
// mutated at runtime.
type Rule struct {
	Name                 string                   `yaml:"name"`
	Category             protocol.PolicyCategory  `yaml:"category"`
	EligibleIntents      []protocol.Intent        `yaml:"eligible_intents"`
	MinDays              *int                     `yaml:"min_days"` // nil = unbounded below
	MaxDays              *int                     `yaml:"max_days"` // nil = unbounded above
	Decision             RuleDecision             `yaml:"decision"`
	RequiredConditions   []string                 `yaml:"required_conditions"`
	IneligibleConditions []string                 `yaml:"ineligible_conditions"`
	Explanation          string                   `yaml:"explanation"` // customer-facing phrasing source
}

// Eligible reports whether the rule accepts the given intent.
func (r *Rule) Eligible(intent protocol.Intent) bool {
	for _, i := range r.EligibleIntents {
		if i == intent {
			return true
		}
	}
	return false
}

// InWindow reports whether elapsed days fall inside the rule's policy window.
func (r *Rule) InWindow(elapsedDays int) bool {
	if r.MinDays != nil && elapsedDays < *r.MinDays {
		return false
	}
	if r.MaxDays != nil && elapsedDays > *r.MaxDays {
		return false
	}
	return true
}

// WindowWidth is the rule's specificity measure: a narrower window is more
// specific. Unbounded windows are the least specific.
func (r *Rule) WindowWidth() int {
	const unbounded = 1 << 30
	if r.MinDays == nil || r.MaxDays == nil {
		return unbounded
	}
	return *r.MaxDays - *r.MinDays
}

// Table is the immutable, versioned policy rule collection.
type Table struct {
	Version string `yaml:"version"`
	Rules   []Rule `yaml:"rules"`
}

// LoadFile reads and validates a policy table from YAML.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", path, err)
	}
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("policy: parse %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("policy: %s: %w", path, err)
	}
	return &t, nil
}

// Validate checks table schema constraints.
func (t *Table) Validate() error {
	if t.Version == "" {
		return fmt.Errorf("version is required")
	}
	if len(t.Rules) == 0 {
		return fmt.Errorf("at least one rule is required")
	}
	seen := make(map[string]bool, len(t.Rules))
	for i, r := range t.Rules {
		if r.Name == "" {
			return fmt.Errorf("rules[%d]: name is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("rules[%d]: duplicate name %q", i, r.Name)
		}
		seen[r.Name] = true
		switch r.Category {
		case protocol.PolicyReturn, protocol.PolicyReplacement, protocol.PolicyRepair,
			protocol.PolicyPaidRepair, protocol.PolicyInspection:
		default:
			return fmt.Errorf("rule %q: unknown category %q", r.Name, r.Category)
		}
		switch r.Decision {
		case DecideApprove, DecideReject, DecideManual:
		default:
			return fmt.Errorf("rule %q: unknown decision %q", r.Name, r.Decision)
		}
		if len(r.EligibleIntents) == 0 {
			return fmt.Errorf("rule %q: eligible_intents is required", r.Name)
		}
		for _, in := range r.EligibleIntents {
			if !protocol.ValidIntent(in) || in == protocol.IntentAmbiguous {
				return fmt.Errorf("rule %q: invalid intent %q", r.Name, in)
			}
		}
		if r.MinDays != nil && *r.MinDays < 0 {
			return fmt.Errorf("rule %q: min_days must be >= 0", r.Name)
		}
		if r.MinDays != nil && r.MaxDays != nil && *r.MaxDays < *r.MinDays {
			return fmt.Errorf("rule %q: max_days < min_days", r.Name)
		}
	}
	return nil
}

// ReturnWindowMax returns the widest max_days among approve rules of the
// RETURN category. The arbitrator uses it for the strict return-window
// rejection. Falls back to 7 if the table defines no bounded return rule.
func (t *Table) ReturnWindowMax() int {
	max := -1
	for _, r := range t.Rules {
		if r.Category == protocol.PolicyReturn && r.Decision == DecideApprove && r.MaxDays != nil {
			if *r.MaxDays > max {
				max = *r.MaxDays
			}
		}
	}
	if max < 0 {
		return 7
	}
	return max
}

func days(n int) *int { return &n }

// Default is the built-in policy table, mirroring the published STRIDE
// footwear policy documents: 7-day returns, 30-day replacement for
// manufacturing defects, 180-day warranty repair, paid repair after that.
func Default() *Table {
	return &Table{
		Version: "builtin-v2",
		Rules: []Rule{
			{
				Name:                 "return_within_week",
				Category:             protocol.PolicyReturn,
				EligibleIntents:      []protocol.Intent{protocol.IntentReturnRefund},
				MinDays:              days(0),
				MaxDays:              days(7),
				Decision:             DecideApprove,
				IneligibleConditions: []string{protocol.ConditionMisuse, protocol.ConditionWorn},
				Explanation:          "Unused footwear can be returned at the store within 7 days of purchase for a refund or exchange.",
			},
			{
				Name:                 "replacement_within_week",
				Category:             protocol.PolicyReplacement,
				EligibleIntents:      []protocol.Intent{protocol.IntentReplacementRepair},
				MinDays:              days(0),
				MaxDays:              days(7),
				Decision:             DecideApprove,
				IneligibleConditions: []string{protocol.ConditionMisuse, protocol.ConditionWorn},
				Explanation:          "Defective pairs reported within 7 days are replaced outright, subject to stock at your outlet.",
			},
			{
				Name:                 "replacement_manufacturing_defect",
				Category:             protocol.PolicyReplacement,
				EligibleIntents:      []protocol.Intent{protocol.IntentReplacementRepair},
				MinDays:              days(0),
				MaxDays:              days(30),
				Decision:             DecideApprove,
				RequiredConditions:   []string{protocol.ConditionManufacturing},
				IneligibleConditions: []string{protocol.ConditionMisuse, protocol.ConditionWorn},
				Explanation:          "Manufacturing defects found within 30 days qualify for a replacement pair, subject to stock at your outlet.",
			},
			{
				Name:                 "repair_in_warranty",
				Category:             protocol.PolicyRepair,
				EligibleIntents:      []protocol.Intent{protocol.IntentReplacementRepair},
				MinDays:              days(8),
				MaxDays:              days(180),
				Decision:             DecideApprove,
				IneligibleConditions: []string{protocol.ConditionMisuse, protocol.ConditionWorn},
				Explanation:          "Within the 180-day warranty we repair defects free of charge at the store workshop.",
			},
			{
				Name:            "paid_repair_out_of_warranty",
				Category:        protocol.PolicyPaidRepair,
				EligibleIntents: []protocol.Intent{protocol.IntentReplacementRepair, protocol.IntentPaidRepair},
				MinDays:         days(181),
				Decision:        DecideApprove,
				Explanation:     "After the 180-day warranty, repairs are offered as a paid service at standard workshop rates.",
			},
			{
				Name:            "paid_repair_on_request",
				Category:        protocol.PolicyPaidRepair,
				EligibleIntents: []protocol.Intent{protocol.IntentPaidRepair},
				MinDays:         days(0),
				MaxDays:         days(180),
				Decision:        DecideApprove,
				Explanation:     "Paid repair service is available on request at standard workshop rates.",
			},
			{
				Name:            "inspection_on_request",
				Category:        protocol.PolicyInspection,
				EligibleIntents: []protocol.Intent{protocol.IntentInspection},
				MinDays:         days(0),
				Decision:        DecideManual,
				Explanation:     "A store inspection will assess the product before any further action.",
			},
		},
	}
}
