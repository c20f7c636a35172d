package rules

import (
	"fmt"

	"property-reconciliation-engine/internal/models"
	engineerrors "property-reconciliation-engine/pkg/errors"
	"property-reconciliation-engine/pkg/logger"

	"github.com/shopspring/decimal"
)

// Registry is the static catalog of match rules for a session. Rules keep
// their load order within a strategy tier, which fixes the orchestrator's
// evaluation order and keeps re-runs reproducible.
type Registry struct {
	rules  []*MatchRule
	byName map[string]*MatchRule
	logger logger.Logger
}

// NewRegistry validates, compiles, and catalogs the given rules. A rule that
// fails validation rejects the whole registry: bad configuration should
// surface at session start, never mid-run.
func NewRegistry(ruleList []*MatchRule) (*Registry, error) {
	log := logger.WithComponent("rule_registry")

	registry := &Registry{
		byName: make(map[string]*MatchRule, len(ruleList)),
		logger: log,
	}

	for _, rule := range ruleList {
		if err := rule.Validate(); err != nil {
			return nil, engineerrors.RuleError(engineerrors.CodeInvalidRule, rule.Name, err)
		}

		if err := rule.Compile(); err != nil {
			return nil, engineerrors.RuleError(engineerrors.CodeInvalidFormula, rule.Name, err)
		}

		if _, exists := registry.byName[rule.Name]; exists {
			return nil, engineerrors.RuleError(engineerrors.CodeInvalidRule, rule.Name,
				fmt.Errorf("duplicate rule name"))
		}

		registry.rules = append(registry.rules, rule)
		registry.byName[rule.Name] = rule
	}

	log.WithField("rule_count", len(registry.rules)).Debug("Rule registry loaded")
	return registry, nil
}

// All returns the rules in load order
func (r *Registry) All() []*MatchRule {
	return r.rules
}

// Len returns the number of cataloged rules
func (r *Registry) Len() int {
	return len(r.rules)
}

// ByStrategy returns the rules bound to the given strategy, in load order
func (r *Registry) ByStrategy(strategy models.MatchStrategy) []*MatchRule {
	var selected []*MatchRule
	for _, rule := range r.rules {
		if rule.Strategy == strategy {
			selected = append(selected, rule)
		}
	}
	return selected
}

// FindByName returns the rule with the given name, or nil
func (r *Registry) FindByName(name string) *MatchRule {
	return r.byName[name]
}

// DefaultRules returns the built-in cross-document rule catalog for
// real-estate reconciliation. Deployments extend or replace it with a rule
// definition file.
func DefaultRules() []*MatchRule {
	pct := func(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

	return []*MatchRule{
		{
			Name:          "bs-cash-vs-cf-ending-balance",
			Category:      CategoryCash,
			Strategy:      models.StrategyExact,
			SourcePattern: "balance_sheet:cash",
			TargetPattern: "cash_flow:ending_cash_balance",
		},
		{
			Name:              "bs-cash-vs-cf-ending-balance-fuzzy",
			Category:          CategoryCash,
			Strategy:          models.StrategyFuzzy,
			SourcePattern:     "balance_sheet:cash",
			TargetPattern:     "cash_flow:ending_cash_balance",
			PercentTolerance:  pct(2),
			AbsoluteTolerance: decimal.NewFromInt(1000),
		},
		{
			Name:             "mortgage-principal-vs-bs-debt",
			Category:         CategoryDebt,
			Strategy:         models.StrategyFuzzy,
			SourcePattern:    "mortgage_statement:principal_balance",
			TargetPattern:    "balance_sheet:mortgage_payable",
			PercentTolerance: pct(1),
		},
		{
			Name:             "rent-roll-vs-is-base-rentals",
			Category:         CategoryRevenue,
			Strategy:         models.StrategyCalculated,
			TargetPattern:    "income_statement:base_rentals",
			Formula:          "sum(rent_roll:annual_rent_*)",
			PercentTolerance: pct(5),
			MinConfidence:    50,
			MaxConfidence:    95,
		},
		{
			Name:          "bs-equation-identity",
			Category:      CategoryFundamental,
			Strategy:      models.StrategyCalculated,
			TargetPattern: "balance_sheet:total_assets",
			Formula:       "value(balance_sheet:total_liabilities) + value(balance_sheet:total_equity)",
			MinConfidence: 90,
			MaxConfidence: 95,
		},
		{
			Name:             "noi-derivation",
			Category:         CategoryExpense,
			Strategy:         models.StrategyCalculated,
			TargetPattern:    "income_statement:net_operating_income",
			Formula:          "value(income_statement:total_revenue) - value(income_statement:operating_expenses)",
			PercentTolerance: pct(2),
			MinConfidence:    60,
			MaxConfidence:    95,
		},
		{
			Name:              "mortgage-interest-vs-is-interest",
			Category:          CategoryExpense,
			Strategy:          models.StrategyFuzzy,
			SourcePattern:     "mortgage_statement:interest_paid_ytd",
			TargetPattern:     "income_statement:interest_expense",
			PercentTolerance:  pct(3),
			AbsoluteTolerance: decimal.NewFromInt(500),
		},
		{
			Name:              "unclaimed-revenue-inference",
			Category:          CategoryOther,
			Strategy:          models.StrategyInferred,
			SourcePattern:     "rent_roll:*",
			TargetPattern:     "income_statement:*",
			AllowSilentReject: true,
		},
	}
}
