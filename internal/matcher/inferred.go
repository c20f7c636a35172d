package matcher

import (
	"strings"

	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/internal/rules"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"
)

// InferredStrategy is the heuristic fallback for pairs unclaimed by the
// exact, fuzzy, and calculated tiers. It scores plausibility from weighted
// signals (period match, property match, description text similarity,
// magnitude proximity) into the configured 50-69 confidence band. Inferred
// matches are never auto-approved: they always require human action.
//
// The strategy is a deterministic stand-in for a future learned scorer and
// must stay swappable behind the Strategy interface.
type InferredStrategy struct {
	config *MatchingConfig
}

// NewInferredStrategy creates an inferred matching strategy
func NewInferredStrategy(config *MatchingConfig) *InferredStrategy {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	return &InferredStrategy{config: config}
}

// Name returns the strategy identifier
func (s *InferredStrategy) Name() models.MatchStrategy {
	return models.StrategyInferred
}

// Evaluate scores every remaining source/target pair and greedily claims
// the highest-scoring pairs above the signal threshold. Pairs below the
// threshold produce nothing: inferred is a proposal mechanism, not a
// discrepancy detector.
func (s *InferredStrategy) Evaluate(set *CandidateSet, rule *rules.MatchRule) ([]*Outcome, error) {
	if len(set.Sources) == 0 || len(set.Targets) == 0 {
		return []*Outcome{{
			Kind:   OutcomeSkipped,
			Reason: "insufficient data",
		}}, nil
	}

	sources := sortByID(set.Sources)
	targets := sortByID(set.Targets)

	type scoredPair struct {
		source *models.LineItem
		target *models.LineItem
		score  float64
	}

	var pairs []scoredPair
	for _, source := range sources {
		for _, target := range targets {
			if score := s.signalScore(source, target); score >= s.config.InferredSignalThreshold {
				pairs = append(pairs, scoredPair{source: source, target: target, score: score})
			}
		}
	}

	// Greedy assignment, strongest signal first. Score ties fall back to ID
	// order so repeated runs propose identical pairs.
	for i := 0; i < len(pairs); i++ {
		for j := i + 1; j < len(pairs); j++ {
			better := pairs[j].score > pairs[i].score ||
				(pairs[j].score == pairs[i].score &&
					pairs[j].source.ID+pairs[j].target.ID < pairs[i].source.ID+pairs[i].target.ID)
			if better {
				pairs[i], pairs[j] = pairs[j], pairs[i]
			}
		}
	}

	claimedSources := make(map[string]bool)
	claimedTargets := make(map[string]bool)
	var outcomes []*Outcome

	for _, pair := range pairs {
		if claimedSources[pair.source.ID] || claimedTargets[pair.target.ID] {
			continue
		}
		claimedSources[pair.source.ID] = true
		claimedTargets[pair.target.ID] = true

		difference := pair.source.NormalizedAmount().Sub(pair.target.NormalizedAmount())
		outcomes = append(outcomes, &Outcome{
			Kind:         OutcomeMatch,
			Participants: []*models.LineItem{pair.source, pair.target},
			Confidence:   s.confidence(pair.score),
			Difference:   difference,
		})
	}

	return outcomes, nil
}

// signalScore combines the weighted plausibility signals into a 0-1 score
func (s *InferredStrategy) signalScore(source, target *models.LineItem) float64 {
	w := s.config.Weights

	var score float64
	if source.PeriodID == target.PeriodID {
		score += w.PeriodWeight
	}
	if source.PropertyID == target.PropertyID {
		score += w.PropertyWeight
	}
	score += w.TextWeight * textSimilarity(source.Description, target.Description)
	score += w.MagnitudeWeight * magnitudeProximity(source.NormalizedAmount(), target.NormalizedAmount())

	return score
}

// confidence maps a 0-1 signal score into the inferred confidence band
func (s *InferredStrategy) confidence(score float64) int {
	min := s.config.InferredMinConfidence
	max := s.config.InferredMaxConfidence

	confidence := min + int(score*float64(max-min)+0.5)
	if confidence > max {
		confidence = max
	}
	return confidence
}

// textSimilarity scores description closeness as 1 minus the normalized
// levenshtein distance. Empty descriptions contribute nothing.
func textSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))

	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}

	distance := levenshtein.ComputeDistance(a, b)
	return 1 - float64(distance)/float64(longest)
}

// magnitudeProximity scores how close two amounts are on a 0-1 scale
func magnitudeProximity(a, b decimal.Decimal) float64 {
	if a.IsZero() && b.IsZero() {
		return 1
	}

	larger := a.Abs()
	if b.Abs().GreaterThan(larger) {
		larger = b.Abs()
	}

	ratio, _ := a.Sub(b).Abs().Div(larger).Float64()
	if ratio > 1 {
		ratio = 1
	}
	return 1 - ratio
}
