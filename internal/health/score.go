// Package health computes the composite 0-100 consistency score for a
// reconciliation session.
//
// The score normalizes the summed penalties against the worst possible run
// (every evaluation producing a CRITICAL discrepancy) rather than averaging
// penalty per evaluation, so an all-critical run scores exactly 0 and a
// clean run exactly 100.
package health

import (
	"fmt"
	"math"

	"property-reconciliation-engine/internal/models"
)

// PenaltyWeights assigns a penalty to each discrepancy severity. Weights are
// tunable but must be monotonic in severity.
type PenaltyWeights struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// DefaultPenaltyWeights returns the standard penalty weights
func DefaultPenaltyWeights() PenaltyWeights {
	return PenaltyWeights{
		Critical: 20,
		High:     8,
		Medium:   3,
		Low:      1,
	}
}

// Validate enforces monotonicity and positivity of the weights
func (w PenaltyWeights) Validate() error {
	if w.Low <= 0 {
		return fmt.Errorf("low penalty must be positive, got %d", w.Low)
	}
	if !(w.Critical >= w.High && w.High >= w.Medium && w.Medium >= w.Low) {
		return fmt.Errorf("penalty weights must be monotonic in severity: critical=%d high=%d medium=%d low=%d",
			w.Critical, w.High, w.Medium, w.Low)
	}
	return nil
}

// penalty returns the weight for a severity
func (w PenaltyWeights) penalty(severity models.Severity) int {
	switch severity {
	case models.SeverityCritical:
		return w.Critical
	case models.SeverityHigh:
		return w.High
	case models.SeverityMedium:
		return w.Medium
	default:
		return w.Low
	}
}

// Aggregator computes session health scores
type Aggregator struct {
	weights PenaltyWeights
}

// NewAggregator creates an aggregator with the given weights
func NewAggregator(weights PenaltyWeights) (*Aggregator, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{weights: weights}, nil
}

// NewDefaultAggregator creates an aggregator with the default weights
func NewDefaultAggregator() *Aggregator {
	a, _ := NewAggregator(DefaultPenaltyWeights())
	return a
}

// Score computes the composite health score from the session's discrepancies
// and the total number of rule evaluations. Accumulated penalties are
// normalized against the worst case (every evaluation a critical
// discrepancy), so a run where all evaluations fail critically scores 0 and
// a run with no discrepancies scores 100. Approved and auto-approved matches
// contribute zero penalty. The result is an integer in [0,100].
func (a *Aggregator) Score(discrepancies []*models.Discrepancy, totalEvaluations int) int {
	if totalEvaluations <= 0 || len(discrepancies) == 0 {
		return 100
	}

	totalPenalty := 0
	for _, d := range discrepancies {
		totalPenalty += a.weights.penalty(d.Severity)
	}

	worstCase := a.weights.Critical * totalEvaluations
	score := 100 - int(math.Round(100*float64(totalPenalty)/float64(worstCase)))

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
