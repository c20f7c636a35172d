// Package matcher implements the four matching strategies the orchestrator
// runs over a session's candidate pools: exact, fuzzy, calculated, and
// inferred. All strategies sit behind one Strategy interface so the
// orchestrator never branches on strategy type.
package matcher

import (
	"fmt"
	"math"
)

// SignalWeights are the relative weights of the inferred strategy's
// plausibility signals. They must sum to 1.
type SignalWeights struct {
	PeriodWeight    float64 `json:"period_weight"`
	PropertyWeight  float64 `json:"property_weight"`
	TextWeight      float64 `json:"text_weight"`
	MagnitudeWeight float64 `json:"magnitude_weight"`
}

// MatchingConfig holds tunable parameters shared by the strategies
type MatchingConfig struct {
	// FuzzyConfidenceFloor is the confidence assigned at the tolerance
	// boundary; confidence decays linearly from 100 at zero variance down
	// to this floor.
	FuzzyConfidenceFloor int `json:"fuzzy_confidence_floor"`

	// InferredMinConfidence and InferredMaxConfidence bound the inferred
	// strategy's output band. Inferred matches are never auto-approved.
	InferredMinConfidence int `json:"inferred_min_confidence"`
	InferredMaxConfidence int `json:"inferred_max_confidence"`

	// InferredSignalThreshold is the minimum combined signal score (0-1)
	// below which no inferred match is emitted.
	InferredSignalThreshold float64 `json:"inferred_signal_threshold"`

	Weights SignalWeights `json:"weights"`
}

// DefaultMatchingConfig returns the standard strategy configuration
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		FuzzyConfidenceFloor:    70,
		InferredMinConfidence:   50,
		InferredMaxConfidence:   69,
		InferredSignalThreshold: 0.5,
		Weights: SignalWeights{
			PeriodWeight:    0.25,
			PropertyWeight:  0.25,
			TextWeight:      0.30,
			MagnitudeWeight: 0.20,
		},
	}
}

// StrictMatchingConfig returns a configuration requiring stronger inferred
// signals before proposing a match
func StrictMatchingConfig() *MatchingConfig {
	config := DefaultMatchingConfig()
	config.FuzzyConfidenceFloor = 80
	config.InferredSignalThreshold = 0.75
	return config
}

// Validate checks the configuration invariants
func (c *MatchingConfig) Validate() error {
	if c.FuzzyConfidenceFloor < 0 || c.FuzzyConfidenceFloor >= 100 {
		return fmt.Errorf("fuzzy confidence floor must be in [0,100), got %d", c.FuzzyConfidenceFloor)
	}

	if c.InferredMinConfidence < 0 || c.InferredMaxConfidence > 99 {
		return fmt.Errorf("inferred confidence band must stay within [0,99], got [%d,%d]",
			c.InferredMinConfidence, c.InferredMaxConfidence)
	}

	if c.InferredMinConfidence > c.InferredMaxConfidence {
		return fmt.Errorf("inferred min confidence %d exceeds max %d",
			c.InferredMinConfidence, c.InferredMaxConfidence)
	}

	if c.InferredSignalThreshold < 0 || c.InferredSignalThreshold > 1 {
		return fmt.Errorf("inferred signal threshold must be in [0,1], got %f", c.InferredSignalThreshold)
	}

	sum := c.Weights.PeriodWeight + c.Weights.PropertyWeight +
		c.Weights.TextWeight + c.Weights.MagnitudeWeight
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("signal weights must sum to 1, got %f", sum)
	}

	return nil
}

// Clone returns a copy of the configuration
func (c *MatchingConfig) Clone() *MatchingConfig {
	clone := *c
	return &clone
}
