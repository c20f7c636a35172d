// Package classify assigns severities to failed rule evaluations. Severity
// is a pure function of the rule category and the variance magnitude, so it
// is recomputed identically on every run and never persisted independently
// of its inputs.
package classify

import (
	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/internal/rules"

	"github.com/shopspring/decimal"
)

// Thresholds define the variance boundaries between severity levels. Either
// an absolute difference or a normalized (relative) variance crossing a
// boundary promotes the severity.
type Thresholds struct {
	HighAbsolute     decimal.Decimal
	HighNormalized   decimal.Decimal
	MediumAbsolute   decimal.Decimal
	MediumNormalized decimal.Decimal
}

// DefaultThresholds returns the standard severity boundaries: variances over
// $500k or 10% are HIGH, over $100k or 2% are MEDIUM, anything below is LOW
func DefaultThresholds() Thresholds {
	return Thresholds{
		HighAbsolute:     decimal.NewFromInt(500000),
		HighNormalized:   decimal.NewFromFloat(0.10),
		MediumAbsolute:   decimal.NewFromInt(100000),
		MediumNormalized: decimal.NewFromFloat(0.02),
	}
}

// Classifier maps failed rule evaluations to severities
type Classifier struct {
	thresholds Thresholds
}

// NewClassifier creates a classifier with the given thresholds
func NewClassifier(thresholds Thresholds) *Classifier {
	return &Classifier{thresholds: thresholds}
}

// NewDefaultClassifier creates a classifier with the default thresholds
func NewDefaultClassifier() *Classifier {
	return NewClassifier(DefaultThresholds())
}

// Severity derives the severity for a discrepancy under the given rule.
// Fundamental identity checks are critical regardless of magnitude; other
// categories grade by variance.
func (c *Classifier) Severity(rule *rules.MatchRule, difference, normalizedVariance decimal.Decimal) models.Severity {
	if rule.Category.IsFundamental() {
		return models.SeverityCritical
	}

	absDiff := difference.Abs()
	absVariance := normalizedVariance.Abs()

	if absDiff.GreaterThan(c.thresholds.HighAbsolute) ||
		absVariance.GreaterThan(c.thresholds.HighNormalized) {
		return models.SeverityHigh
	}

	if absDiff.GreaterThan(c.thresholds.MediumAbsolute) ||
		absVariance.GreaterThan(c.thresholds.MediumNormalized) {
		return models.SeverityMedium
	}

	return models.SeverityLow
}

// CategorySeverity derives the severity a rejected match re-enters at,
// inherited from the rule category. Rejected fundamental checks come back
// critical; cash and debt relationships are high, operating relationships
// medium, everything else low.
func (c *Classifier) CategorySeverity(category rules.RuleCategory) models.Severity {
	switch category {
	case rules.CategoryFundamental:
		return models.SeverityCritical
	case rules.CategoryCash, rules.CategoryDebt:
		return models.SeverityHigh
	case rules.CategoryRevenue, rules.CategoryExpense:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}
