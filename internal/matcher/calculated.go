package matcher

import (
	"errors"

	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/internal/rules"

	"github.com/shopspring/decimal"
)

// AnnotationFormulaUndefined marks discrepancies caused by a zero
// denominator during formula evaluation
const AnnotationFormulaUndefined = "formula undefined"

// CalculatedStrategy evaluates a rule's formula over one or more source line
// items and compares the result against the target using the same tolerance
// logic as fuzzy matching. Confidence is scaled into the rule's configured
// band (50-95 by default): derived relationships carry more assumption risk
// than direct comparisons, so they never reach 100.
type CalculatedStrategy struct {
	config *MatchingConfig
}

// NewCalculatedStrategy creates a calculated matching strategy
func NewCalculatedStrategy(config *MatchingConfig) *CalculatedStrategy {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	return &CalculatedStrategy{config: config}
}

// Name returns the strategy identifier
func (s *CalculatedStrategy) Name() models.MatchStrategy {
	return models.StrategyCalculated
}

// Evaluate computes the formula over the full snapshot and compares it
// against the best available target. Missing formula inputs or targets are
// skipped as insufficient data; a zero denominator becomes a discrepancy
// annotated "formula undefined".
func (s *CalculatedStrategy) Evaluate(set *CandidateSet, rule *rules.MatchRule) ([]*Outcome, error) {
	expr := rule.CompiledFormula()
	if expr == nil {
		return nil, errors.New("calculated rule has no compiled formula")
	}

	if len(set.Targets) == 0 {
		return []*Outcome{{
			Kind:   OutcomeSkipped,
			Reason: "insufficient data",
		}}, nil
	}

	participants := s.formulaParticipants(expr, set.Snapshot)

	derived, err := expr.Evaluate(set.Snapshot)
	if err != nil {
		if errors.Is(err, rules.ErrNoMatchingItems) {
			return []*Outcome{{
				Kind:   OutcomeSkipped,
				Reason: "insufficient data",
			}}, nil
		}

		if errors.Is(err, rules.ErrFormulaUndefined) {
			target := sortByID(set.Targets)[0]
			return []*Outcome{{
				Kind:         OutcomeDiscrepancy,
				Participants: append(participants, target),
				Annotation:   AnnotationFormulaUndefined,
			}}, nil
		}

		return nil, err
	}

	// Tie-break across plausible targets: smallest absolute variance wins.
	var target *models.LineItem
	targetDiff := decimal.Zero
	for _, candidate := range sortByID(set.Targets) {
		diff := derived.Sub(candidate.NormalizedAmount()).Abs()
		if target == nil || diff.LessThan(targetDiff) {
			target = candidate
			targetDiff = diff
		}
	}

	difference := derived.Sub(target.NormalizedAmount())
	tolerance := rule.ToleranceFor(target.NormalizedAmount())

	if difference.IsZero() || (rule.HasTolerance() && difference.Abs().LessThanOrEqual(tolerance)) {
		return []*Outcome{{
			Kind:         OutcomeMatch,
			Participants: append(participants, target),
			Confidence:   s.confidence(rule, difference.Abs(), tolerance),
			Difference:   difference,
		}}, nil
	}

	return []*Outcome{{
		Kind:               OutcomeDiscrepancy,
		Participants:       append(participants, target),
		Difference:         difference,
		NormalizedVariance: normalizedVariance(difference, target.NormalizedAmount()),
	}}, nil
}

// formulaParticipants collects the line items the formula's references read,
// in deterministic order
func (s *CalculatedStrategy) formulaParticipants(expr *rules.Expr, snapshot []*models.LineItem) []*models.LineItem {
	seen := make(map[string]bool)
	var participants []*models.LineItem

	for _, pattern := range expr.References() {
		for _, item := range pattern.Select(snapshot) {
			if !seen[item.ID] {
				seen[item.ID] = true
				participants = append(participants, item)
			}
		}
	}

	return sortByID(participants)
}

// confidence maps the variance ratio into the rule's confidence band with
// linear decay: band max at zero variance, band min at the boundary
func (s *CalculatedStrategy) confidence(rule *rules.MatchRule, absDifference, tolerance decimal.Decimal) int {
	min, max := rule.ConfidenceBand()

	if absDifference.IsZero() || !tolerance.IsPositive() {
		return max
	}

	ratio, _ := absDifference.Div(tolerance).Float64()
	if ratio > 1 {
		ratio = 1
	}

	return max - int(ratio*float64(max-min)+0.5)
}
