package matcher

import (
	"sort"

	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/internal/rules"

	"github.com/shopspring/decimal"
)

// OutcomeKind discriminates what a strategy concluded about a candidate set
type OutcomeKind int

const (
	// OutcomeMatch reconciled within tolerance; a Match record is created
	OutcomeMatch OutcomeKind = iota
	// OutcomeDiscrepancy failed to reconcile; a Discrepancy record is created
	OutcomeDiscrepancy
	// OutcomeDeferred could not reconcile under this strategy but may still
	// be claimed by a later tier; becomes a Discrepancy only if the items
	// stay unclaimed through the whole run
	OutcomeDeferred
	// OutcomeSkipped lacked the inputs the rule requires; recorded as
	// "insufficient data", not a discrepancy
	OutcomeSkipped
)

// Outcome is the result of evaluating candidates under one rule
type Outcome struct {
	Kind               OutcomeKind
	Participants       []*models.LineItem
	Confidence         int
	Difference         decimal.Decimal
	NormalizedVariance decimal.Decimal
	Annotation         string
	Reason             string
}

// CandidateSet is the rule-scoped pool the orchestrator hands a strategy:
// items matching the rule's source and target patterns that have not yet
// been claimed for this rule's roles, plus the full snapshot for formula
// references.
type CandidateSet struct {
	Sources  []*models.LineItem
	Targets  []*models.LineItem
	Snapshot []*models.LineItem
}

// Strategy evaluates a rule over its candidate set. Implementations must be
// pure: no retained state, identical outcomes for identical inputs. An item
// used in one Match outcome must not appear in another outcome from the same
// call (the no-double-claim invariant within a rule).
type Strategy interface {
	Name() models.MatchStrategy
	Evaluate(set *CandidateSet, rule *rules.MatchRule) ([]*Outcome, error)
}

// Strategies returns the strategy instances in orchestration priority order:
// cheap, high-certainty strategies claim obvious matches before the
// heuristic ones see the remainder.
func Strategies(config *MatchingConfig) []Strategy {
	if config == nil {
		config = DefaultMatchingConfig()
	}

	return []Strategy{
		NewExactStrategy(),
		NewFuzzyStrategy(config),
		NewCalculatedStrategy(config),
		NewInferredStrategy(config),
	}
}

// sortByID orders items by ID so evaluation order, and therefore every
// outcome, is deterministic across runs
func sortByID(items []*models.LineItem) []*models.LineItem {
	sorted := make([]*models.LineItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return sorted
}

// normalizedVariance expresses a difference relative to a base amount.
// A zero base yields a variance of 1 per unit of difference sign, keeping
// the classifier's percentage thresholds meaningful.
func normalizedVariance(difference, base decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		if difference.IsZero() {
			return decimal.Zero
		}
		return decimal.NewFromInt(1)
	}
	return difference.Abs().Div(base.Abs())
}
