package rules

import (
	"testing"

	"property-reconciliation-engine/internal/models"
)

func TestNewRegistry_DefaultCatalog(t *testing.T) {
	registry, err := NewRegistry(DefaultRules())
	if err != nil {
		t.Fatalf("Expected default catalog to load, got: %v", err)
	}

	if registry.Len() != len(DefaultRules()) {
		t.Errorf("Expected %d rules, got %d", len(DefaultRules()), registry.Len())
	}

	// Every calculated rule is compiled at load
	for _, rule := range registry.ByStrategy(models.StrategyCalculated) {
		if rule.CompiledFormula() == nil {
			t.Errorf("Rule %s: expected compiled formula", rule.Name)
		}
	}
}

func TestNewRegistry_RejectsDuplicateNames(t *testing.T) {
	rule := &MatchRule{
		Name:          "dup",
		Category:      CategoryCash,
		Strategy:      models.StrategyExact,
		SourcePattern: "balance_sheet:cash",
		TargetPattern: "cash_flow:ending_cash_balance",
	}
	other := *rule

	if _, err := NewRegistry([]*MatchRule{rule, &other}); err == nil {
		t.Error("Expected duplicate rule names to be rejected")
	}
}

func TestNewRegistry_RejectsInvalidRule(t *testing.T) {
	rule := &MatchRule{
		Name:          "broken",
		Category:      CategoryCash,
		Strategy:      models.StrategyExact,
		TargetPattern: "cash_flow:ending_cash_balance",
		// missing source pattern
	}

	if _, err := NewRegistry([]*MatchRule{rule}); err == nil {
		t.Error("Expected invalid rule to reject the registry")
	}
}

func TestNewRegistry_RejectsBadFormula(t *testing.T) {
	rule := &MatchRule{
		Name:          "bad-formula",
		Category:      CategoryRevenue,
		Strategy:      models.StrategyCalculated,
		TargetPattern: "income_statement:base_rentals",
		Formula:       "total(rent_roll:*)",
	}

	if _, err := NewRegistry([]*MatchRule{rule}); err == nil {
		t.Error("Expected unknown aggregate to reject the registry")
	}
}

func TestRegistry_ByStrategyPreservesLoadOrder(t *testing.T) {
	registry, err := NewRegistry(DefaultRules())
	if err != nil {
		t.Fatalf("Failed to load default catalog: %v", err)
	}

	fuzzy := registry.ByStrategy(models.StrategyFuzzy)
	if len(fuzzy) < 2 {
		t.Fatalf("Expected at least 2 fuzzy rules in the default catalog, got %d", len(fuzzy))
	}

	var fromCatalog []string
	for _, rule := range DefaultRules() {
		if rule.Strategy == models.StrategyFuzzy {
			fromCatalog = append(fromCatalog, rule.Name)
		}
	}
	for i, rule := range fuzzy {
		if rule.Name != fromCatalog[i] {
			t.Errorf("Position %d: expected %s, got %s", i, fromCatalog[i], rule.Name)
		}
	}
}

func TestRegistry_FindByName(t *testing.T) {
	registry, err := NewRegistry(DefaultRules())
	if err != nil {
		t.Fatalf("Failed to load default catalog: %v", err)
	}

	if registry.FindByName("bs-equation-identity") == nil {
		t.Error("Expected to find bs-equation-identity")
	}
	if registry.FindByName("no-such-rule") != nil {
		t.Error("Expected nil for unknown rule name")
	}
}
