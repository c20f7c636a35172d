package health

import (
	"testing"

	"property-reconciliation-engine/internal/models"

	"github.com/shopspring/decimal"
)

func discrepancyWith(severity models.Severity) *models.Discrepancy {
	return models.NewDiscrepancy("rule", models.StrategyFuzzy, []string{"li-001"},
		decimal.NewFromInt(100), decimal.NewFromFloat(0.1), severity)
}

func TestScore_NoDiscrepancies(t *testing.T) {
	aggregator := NewDefaultAggregator()

	if score := aggregator.Score(nil, 10); score != 100 {
		t.Errorf("Expected a clean run to score 100, got %d", score)
	}
}

func TestScore_AllCriticalScoresZero(t *testing.T) {
	aggregator := NewDefaultAggregator()

	var discrepancies []*models.Discrepancy
	for i := 0; i < 5; i++ {
		discrepancies = append(discrepancies, discrepancyWith(models.SeverityCritical))
	}

	if score := aggregator.Score(discrepancies, 5); score != 0 {
		t.Errorf("Expected every evaluation failing critically to score 0, got %d", score)
	}
}

func TestScore_Bounds(t *testing.T) {
	aggregator := NewDefaultAggregator()

	mixed := []*models.Discrepancy{
		discrepancyWith(models.SeverityCritical),
		discrepancyWith(models.SeverityHigh),
		discrepancyWith(models.SeverityMedium),
		discrepancyWith(models.SeverityLow),
	}

	for evaluations := 4; evaluations <= 100; evaluations += 12 {
		score := aggregator.Score(mixed, evaluations)
		if score < 0 || score > 100 {
			t.Errorf("Score out of bounds for %d evaluations: %d", evaluations, score)
		}
	}
}

func TestScore_MoreSevereScoresLower(t *testing.T) {
	aggregator := NewDefaultAggregator()

	critical := aggregator.Score([]*models.Discrepancy{discrepancyWith(models.SeverityCritical)}, 10)
	high := aggregator.Score([]*models.Discrepancy{discrepancyWith(models.SeverityHigh)}, 10)
	medium := aggregator.Score([]*models.Discrepancy{discrepancyWith(models.SeverityMedium)}, 10)
	low := aggregator.Score([]*models.Discrepancy{discrepancyWith(models.SeverityLow)}, 10)

	if !(critical < high && high < medium && medium < low) {
		t.Errorf("Expected severity ordering in scores: critical=%d high=%d medium=%d low=%d",
			critical, high, medium, low)
	}
	if low >= 100 {
		t.Errorf("Expected any discrepancy to cost at least a point, got %d", low)
	}
}

func TestScore_ZeroEvaluations(t *testing.T) {
	aggregator := NewDefaultAggregator()

	if score := aggregator.Score([]*models.Discrepancy{discrepancyWith(models.SeverityHigh)}, 0); score != 100 {
		t.Errorf("Expected no evaluations to score 100, got %d", score)
	}
}

func TestPenaltyWeights_Validate(t *testing.T) {
	if err := DefaultPenaltyWeights().Validate(); err != nil {
		t.Errorf("Expected default weights to validate, got: %v", err)
	}

	nonMonotonic := PenaltyWeights{Critical: 5, High: 8, Medium: 3, Low: 1}
	if err := nonMonotonic.Validate(); err == nil {
		t.Error("Expected non-monotonic weights to fail validation")
	}

	zeroLow := PenaltyWeights{Critical: 20, High: 8, Medium: 3, Low: 0}
	if err := zeroLow.Validate(); err == nil {
		t.Error("Expected zero low penalty to fail validation")
	}

	if _, err := NewAggregator(nonMonotonic); err == nil {
		t.Error("Expected NewAggregator to reject invalid weights")
	}
}
