package policy

import (
	"sort"

	"github.com/stride-io/stride/pkg/protocol"
)

// Matcher filters the policy table against a signal and elapsed-day count.
// It is pure: identical inputs always yield identical candidate lists.
type Matcher struct {
	table *Table
}

// NewMatcher creates a Matcher over an immutable table.
func NewMatcher(table *Table) *Matcher {
	return &Matcher{table: table}
}

// Table exposes the underlying table for reason phrasing and window lookups.
func (m *Matcher) Table() *Table { return m.table }

// Match returns candidate rules for the signal, most specific first.
//
// Stage 1 keeps rules whose intent set includes the signal's intent, whose
// window contains elapsedDays, and whose required conditions are all
// satisfied. Stage 2 orders survivors by ascending window width; ties keep
// declaration order (sort is stable, never random).
func (m *Matcher) Match(sig protocol.ComplaintSignal, elapsedDays int) []Rule {
	var candidates []Rule
	for _, r := range m.table.Rules {
		if !r.Eligible(sig.Intent) {
			continue
		}
		if !r.InWindow(elapsedDays) {
			continue
		}
		if !requiredMet(r, sig) {
			continue
		}
		candidates = append(candidates, r)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].WindowWidth() < candidates[j].WindowWidth()
	})
	return candidates
}

func requiredMet(r Rule, sig protocol.ComplaintSignal) bool {
	for _, cond := range r.RequiredConditions {
		if !sig.HasCondition(cond) {
			return false
		}
	}
	return true
}
