package matcher

import (
	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/internal/rules"

	"github.com/shopspring/decimal"
)

// FuzzyStrategy matches two line items within an absolute or relative
// tolerance, whichever the rule specifies; when both are given the looser of
// the two applies. Confidence decays linearly from 100 at zero variance to
// the configured floor at the tolerance boundary. Pairs beyond the boundary
// are emitted as discrepancies.
type FuzzyStrategy struct {
	config *MatchingConfig
}

// NewFuzzyStrategy creates a fuzzy matching strategy
func NewFuzzyStrategy(config *MatchingConfig) *FuzzyStrategy {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	return &FuzzyStrategy{config: config}
}

// Name returns the strategy identifier
func (s *FuzzyStrategy) Name() models.MatchStrategy {
	return models.StrategyFuzzy
}

// Evaluate pairs each source with the in-tolerance target of smallest
// absolute variance (the tie-break rule for multiple plausible targets).
// Sources whose closest target lies beyond tolerance become discrepancies.
func (s *FuzzyStrategy) Evaluate(set *CandidateSet, rule *rules.MatchRule) ([]*Outcome, error) {
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

		var best *models.LineItem
		bestDiff := decimal.Zero

		for _, target := range targets {
			if claimed[target.ID] {
				continue
			}

			diff := sourceAmount.Sub(target.NormalizedAmount()).Abs()
			if best == nil || diff.LessThan(bestDiff) {
				best = target
				bestDiff = diff
			}
		}

		if best == nil {
			continue // every target already claimed by an earlier source
		}

		difference := sourceAmount.Sub(best.NormalizedAmount())
		tolerance := rule.ToleranceFor(sourceAmount)

		if rule.HasTolerance() && difference.Abs().LessThanOrEqual(tolerance) {
			claimed[best.ID] = true
			outcomes = append(outcomes, &Outcome{
				Kind:         OutcomeMatch,
				Participants: []*models.LineItem{source, best},
				Confidence:   s.confidence(difference.Abs(), tolerance),
				Difference:   difference,
			})
			continue
		}

		if difference.IsZero() {
			// Zero-tolerance rule with identical amounts still reconciles.
			claimed[best.ID] = true
			outcomes = append(outcomes, &Outcome{
				Kind:         OutcomeMatch,
				Participants: []*models.LineItem{source, best},
				Confidence:   100,
				Difference:   decimal.Zero,
			})
			continue
		}

		claimed[best.ID] = true
		outcomes = append(outcomes, &Outcome{
			Kind:               OutcomeDiscrepancy,
			Participants:       []*models.LineItem{source, best},
			Difference:         difference,
			NormalizedVariance: normalizedVariance(difference, best.NormalizedAmount()),
		})
	}

	return outcomes, nil
}

// confidence maps a variance ratio onto the [floor,100] band with linear
// decay: 100 at zero variance, floor at the tolerance boundary
func (s *FuzzyStrategy) confidence(absDifference, tolerance decimal.Decimal) int {
	if absDifference.IsZero() {
		return 100
	}

	ratio, _ := absDifference.Div(tolerance).Float64()
	if ratio > 1 {
		ratio = 1
	}

	span := float64(100 - s.config.FuzzyConfidenceFloor)
	return 100 - int(ratio*span+0.5)
}
