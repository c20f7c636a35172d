package matcher

import (
	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/internal/rules"

	"github.com/shopspring/decimal"
)

// ExactStrategy matches two line items on byte-exact equality of their
// normalized amounts: same currency scale, zero tolerance. Exact matches
// carry confidence 100 and are auto-approved.
type ExactStrategy struct{}

// NewExactStrategy creates an exact matching strategy
func NewExactStrategy() *ExactStrategy {
	return &ExactStrategy{}
}

// Name returns the strategy identifier
func (s *ExactStrategy) Name() models.MatchStrategy {
	return models.StrategyExact
}

// Evaluate pairs each source with the first target carrying an identical
// normalized amount. Sources without an equal target are deferred: they fall
// through to later tiers and only become discrepancies if nothing claims
// them by the end of the run.
func (s *ExactStrategy) Evaluate(set *CandidateSet, rule *rules.MatchRule) ([]*Outcome, error) {
	if len(set.Sources) == 0 || len(set.Targets) == 0 {
		return []*Outcome{{
			Kind:   OutcomeSkipped,
			Reason: "insufficient data",
		}}, nil
	}

	sources := sortByID(set.Sources)
	targets := sortByID(set.Targets)

	claimed := make(map[string]bool, len(targets))
	var outcomes []*Outcome

	for _, source := range sources {
		sourceAmount := source.NormalizedAmount()

		var matched *models.LineItem
		var closest *models.LineItem
		closestDiff := decimal.Zero

		for _, target := range targets {
			if claimed[target.ID] {
				continue
			}

			if sourceAmount.Equal(target.NormalizedAmount()) {
				matched = target
				break
			}

			diff := sourceAmount.Sub(target.NormalizedAmount()).Abs()
			if closest == nil || diff.LessThan(closestDiff) {
				closest = target
				closestDiff = diff
			}
		}

		if matched != nil {
			claimed[matched.ID] = true
			outcomes = append(outcomes, &Outcome{
				Kind:         OutcomeMatch,
				Participants: []*models.LineItem{source, matched},
				Confidence:   100,
				Difference:   decimal.Zero,
			})
			continue
		}

		if closest != nil {
			difference := sourceAmount.Sub(closest.NormalizedAmount())
			outcomes = append(outcomes, &Outcome{
				Kind:               OutcomeDeferred,
				Participants:       []*models.LineItem{source, closest},
				Difference:         difference,
				NormalizedVariance: normalizedVariance(difference, closest.NormalizedAmount()),
			})
		}
	}

	return outcomes, nil
}
