// Package rules defines the static catalog of cross-document relationships
// the reconciliation engine evaluates: which accounts are compared, by which
// strategy, and under what tolerance or formula.
package rules

import (
	"fmt"
	"path"
	"strings"

	"property-reconciliation-engine/internal/models"

	"github.com/shopspring/decimal"
)

// RuleCategory groups rules by the kind of financial relationship they
// check. The discrepancy classifier keys severity off the category.
type RuleCategory string

const (
	// CategoryFundamental marks identity checks that must always hold,
	// such as balance sheet equation cross-checks. Any variance is critical.
	CategoryFundamental RuleCategory = "fundamental"
	CategoryCash        RuleCategory = "cash"
	CategoryRevenue     RuleCategory = "revenue"
	CategoryDebt        RuleCategory = "debt"
	CategoryExpense     RuleCategory = "expense"
	CategoryOther       RuleCategory = "other"
)

// IsValid checks if the category is known
func (c RuleCategory) IsValid() bool {
	switch c {
	case CategoryFundamental, CategoryCash, CategoryRevenue, CategoryDebt,
		CategoryExpense, CategoryOther:
		return true
	}
	return false
}

// IsFundamental reports whether variances under this category are always
// classified critical, regardless of magnitude
func (c RuleCategory) IsFundamental() bool {
	return c == CategoryFundamental
}

// AccountPattern selects line items by document type and account identifier,
// written as "doctype:account_glob" (e.g. "balance_sheet:cash",
// "rent_roll:unit_*"). The account segment supports glob wildcards.
type AccountPattern string

// Validate checks the pattern shape and document type
func (p AccountPattern) Validate() error {
	docPart, accountPart, ok := strings.Cut(string(p), ":")
	if !ok {
		return fmt.Errorf("account pattern %q must be of the form doctype:account", string(p))
	}

	if _, err := models.ParseDocumentType(docPart); err != nil {
		return fmt.Errorf("account pattern %q: %w", string(p), err)
	}

	if strings.TrimSpace(accountPart) == "" {
		return fmt.Errorf("account pattern %q has an empty account segment", string(p))
	}

	// path.Match reports malformed globs eagerly
	if _, err := path.Match(accountPart, "sample"); err != nil {
		return fmt.Errorf("account pattern %q has a malformed glob: %w", string(p), err)
	}

	return nil
}

// DocumentType returns the document type segment of the pattern
func (p AccountPattern) DocumentType() (models.DocumentType, error) {
	docPart, _, _ := strings.Cut(string(p), ":")
	return models.ParseDocumentType(docPart)
}

// Matches reports whether the line item falls under this pattern
func (p AccountPattern) Matches(item *models.LineItem) bool {
	docPart, accountPart, ok := strings.Cut(string(p), ":")
	if !ok {
		return false
	}

	docType, err := models.ParseDocumentType(docPart)
	if err != nil || item.DocumentType != docType {
		return false
	}

	matched, err := path.Match(accountPart, item.AccountID)
	return err == nil && matched
}

// Select returns the line items matching the pattern, preserving input order
func (p AccountPattern) Select(items []*models.LineItem) []*models.LineItem {
	var selected []*models.LineItem
	for _, item := range items {
		if p.Matches(item) {
			selected = append(selected, item)
		}
	}
	return selected
}

// MatchRule is a named cross-document relationship bound to exactly one
// matching strategy. Rules are configuration: loaded once per session and
// never mutated during a run.
type MatchRule struct {
	Name     string               `json:"name" validate:"required"`
	Category RuleCategory         `json:"category" validate:"required"`
	Strategy models.MatchStrategy `json:"strategy" validate:"required"`

	// SourcePattern and TargetPattern select the candidate roles for pair
	// rules. Calculated rules use Formula instead of SourcePattern.
	SourcePattern AccountPattern `json:"sourcePattern,omitempty"`
	TargetPattern AccountPattern `json:"targetPattern" validate:"required"`

	// Tolerances for fuzzy and calculated comparison. When both are set the
	// looser of the two applies. PercentTolerance is expressed in percent
	// (10 means 10%).
	AbsoluteTolerance decimal.Decimal `json:"absoluteTolerance"`
	PercentTolerance  decimal.Decimal `json:"percentTolerance"`

	// Formula is the derived-relationship expression for calculated rules,
	// parsed once at registry load.
	Formula string `json:"formula,omitempty"`

	// MinConfidence and MaxConfidence bound the confidence range for
	// calculated rules. Zero values fall back to the 50-95 default band.
	MinConfidence int `json:"minConfidence,omitempty" validate:"min=0,max=100"`
	MaxConfidence int `json:"maxConfidence,omitempty" validate:"min=0,max=100"`

	// AllowSilentReject permits rejecting a match under this rule without
	// converting it back into a discrepancy.
	AllowSilentReject bool `json:"allowSilentReject,omitempty"`

	expr *Expr
}

// Validate performs semantic validation beyond struct tags
func (r *MatchRule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name cannot be empty")
	}

	if !r.Category.IsValid() {
		return fmt.Errorf("rule %s: invalid category %q", r.Name, r.Category)
	}

	if !r.Strategy.IsValid() {
		return fmt.Errorf("rule %s: invalid strategy %q", r.Name, r.Strategy)
	}

	if err := r.TargetPattern.Validate(); err != nil {
		return fmt.Errorf("rule %s: target: %w", r.Name, err)
	}

	if r.Strategy == models.StrategyCalculated {
		if strings.TrimSpace(r.Formula) == "" {
			return fmt.Errorf("rule %s: calculated rules require a formula", r.Name)
		}
	} else {
		if strings.TrimSpace(r.Formula) != "" {
			return fmt.Errorf("rule %s: only calculated rules may carry a formula", r.Name)
		}
		if err := r.SourcePattern.Validate(); err != nil {
			return fmt.Errorf("rule %s: source: %w", r.Name, err)
		}
	}

	if r.AbsoluteTolerance.IsNegative() {
		return fmt.Errorf("rule %s: absolute tolerance cannot be negative", r.Name)
	}

	if r.PercentTolerance.IsNegative() {
		return fmt.Errorf("rule %s: percent tolerance cannot be negative", r.Name)
	}

	if r.MinConfidence > 0 && r.MaxConfidence > 0 && r.MinConfidence > r.MaxConfidence {
		return fmt.Errorf("rule %s: min confidence %d exceeds max confidence %d",
			r.Name, r.MinConfidence, r.MaxConfidence)
	}

	return nil
}

// Compile parses the rule's formula into its expression tree. Calling
// Compile on a non-calculated rule is a no-op.
func (r *MatchRule) Compile() error {
	if r.Strategy != models.StrategyCalculated {
		return nil
	}

	expr, err := ParseFormula(r.Formula)
	if err != nil {
		return fmt.Errorf("rule %s: %w", r.Name, err)
	}

	r.expr = expr
	return nil
}

// CompiledFormula returns the parsed expression tree, or nil if the rule has
// not been compiled or carries no formula
func (r *MatchRule) CompiledFormula() *Expr {
	return r.expr
}

// HasTolerance reports whether the rule defines any comparison tolerance
func (r *MatchRule) HasTolerance() bool {
	return r.AbsoluteTolerance.IsPositive() || r.PercentTolerance.IsPositive()
}

// ToleranceFor returns the effective absolute tolerance for comparing
// against the given base amount, taking the looser of the absolute and
// relative tolerances when both are configured.
func (r *MatchRule) ToleranceFor(base decimal.Decimal) decimal.Decimal {
	tolerance := r.AbsoluteTolerance

	if r.PercentTolerance.IsPositive() {
		relative := base.Abs().Mul(r.PercentTolerance).Div(decimal.NewFromInt(100))
		if relative.GreaterThan(tolerance) {
			tolerance = relative
		}
	}

	return tolerance
}

// ConfidenceBand returns the rule's calculated-strategy confidence range,
// applying the 50-95 default band where unset
func (r *MatchRule) ConfidenceBand() (min, max int) {
	min, max = r.MinConfidence, r.MaxConfidence
	if min == 0 {
		min = 50
	}
	if max == 0 {
		max = 95
	}
	return min, max
}

// String returns a string representation of the MatchRule
func (r *MatchRule) String() string {
	return fmt.Sprintf("MatchRule{Name: %s, Category: %s, Strategy: %s}",
		r.Name, r.Category, r.Strategy)
}
