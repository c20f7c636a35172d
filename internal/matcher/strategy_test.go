package matcher

import (
	"testing"

	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/internal/rules"

	"github.com/shopspring/decimal"
)

func testItem(id string, docType models.DocumentType, accountID string, amount float64) *models.LineItem {
	return models.NewLineItem(id, "bldg-7", "2024-Q4", docType, accountID, decimal.NewFromFloat(amount))
}

func pairRule(strategy models.MatchStrategy, absTol, pctTol int64) *rules.MatchRule {
	return &rules.MatchRule{
		Name:              "test-rule",
		Category:          rules.CategoryCash,
		Strategy:          strategy,
		SourcePattern:     "balance_sheet:cash",
		TargetPattern:     "cash_flow:ending_cash_balance",
		AbsoluteTolerance: decimal.NewFromInt(absTol),
		PercentTolerance:  decimal.NewFromInt(pctTol),
	}
}

func pairSet(sourceAmount, targetAmount float64) *CandidateSet {
	source := testItem("li-001", models.DocumentBalanceSheet, "cash", sourceAmount)
	target := testItem("li-002", models.DocumentCashFlow, "ending_cash_balance", targetAmount)
	return &CandidateSet{
		Sources:  []*models.LineItem{source},
		Targets:  []*models.LineItem{target},
		Snapshot: []*models.LineItem{source, target},
	}
}

func singleOutcome(t *testing.T, outcomes []*Outcome, err error) *Outcome {
	t.Helper()
	if err != nil {
		t.Fatalf("Unexpected evaluation error: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("Expected 1 outcome, got %d", len(outcomes))
	}
	return outcomes[0]
}

func TestStrategies_PriorityOrder(t *testing.T) {
	strategies := Strategies(nil)

	expected := []models.MatchStrategy{
		models.StrategyExact,
		models.StrategyFuzzy,
		models.StrategyCalculated,
		models.StrategyInferred,
	}

	if len(strategies) != len(expected) {
		t.Fatalf("Expected %d strategies, got %d", len(expected), len(strategies))
	}
	for i, strategy := range strategies {
		if strategy.Name() != expected[i] {
			t.Errorf("Position %d: expected %s, got %s", i, expected[i], strategy.Name())
		}
	}
}

func TestMatchingConfig_Validate(t *testing.T) {
	if err := DefaultMatchingConfig().Validate(); err != nil {
		t.Errorf("Expected default config to validate, got: %v", err)
	}
	if err := StrictMatchingConfig().Validate(); err != nil {
		t.Errorf("Expected strict config to validate, got: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*MatchingConfig)
	}{
		{"floor out of range", func(c *MatchingConfig) { c.FuzzyConfidenceFloor = 100 }},
		{"inferred band reaches 100", func(c *MatchingConfig) { c.InferredMaxConfidence = 100 }},
		{"inverted inferred band", func(c *MatchingConfig) { c.InferredMinConfidence = 80 }},
		{"threshold above 1", func(c *MatchingConfig) { c.InferredSignalThreshold = 1.5 }},
		{"weights do not sum to 1", func(c *MatchingConfig) { c.Weights.TextWeight = 0.9 }},
	}

	for _, tt := range tests {
		config := DefaultMatchingConfig()
		tt.mutate(config)
		if err := config.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestNormalizedVariance(t *testing.T) {
	variance := normalizedVariance(decimal.NewFromInt(-1000), decimal.NewFromInt(2000))
	if !variance.Equal(decimal.NewFromFloat(0.5)) {
		t.Errorf("Expected variance 0.5, got %s", variance)
	}

	// Zero base with a nonzero difference counts as full variance
	variance = normalizedVariance(decimal.NewFromInt(10), decimal.Zero)
	if !variance.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected variance 1 for zero base, got %s", variance)
	}

	variance = normalizedVariance(decimal.Zero, decimal.Zero)
	if !variance.IsZero() {
		t.Errorf("Expected zero variance, got %s", variance)
	}
}
