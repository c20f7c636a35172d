package rules

import (
	"testing"

	"property-reconciliation-engine/internal/models"

	"github.com/shopspring/decimal"
)

func testItem(id string, docType models.DocumentType, accountID string, amount float64) *models.LineItem {
	return models.NewLineItem(id, "bldg-7", "2024-Q4", docType, accountID, decimal.NewFromFloat(amount))
}

func TestAccountPattern_Validate(t *testing.T) {
	tests := []struct {
		pattern AccountPattern
		wantErr bool
	}{
		{"balance_sheet:cash", false},
		{"rent_roll:annual_rent_*", false},
		{"income_statement:*", false},
		{"cash", true},                // missing doctype segment
		{"general_ledger:cash", true}, // unknown doctype
		{"balance_sheet:", true},      // empty account segment
		{"balance_sheet:[", true},     // malformed glob
	}

	for _, tt := range tests {
		err := tt.pattern.Validate()
		if tt.wantErr && err == nil {
			t.Errorf("pattern %q: expected validation error", tt.pattern)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("pattern %q: unexpected error: %v", tt.pattern, err)
		}
	}
}

func TestAccountPattern_Matches(t *testing.T) {
	cash := testItem("li-001", models.DocumentBalanceSheet, "cash", 1000)
	rent := testItem("li-002", models.DocumentRentRoll, "annual_rent_unit1", 60000)

	if !AccountPattern("balance_sheet:cash").Matches(cash) {
		t.Error("Expected balance_sheet:cash to match the cash item")
	}
	if AccountPattern("balance_sheet:cash").Matches(rent) {
		t.Error("Expected balance_sheet:cash not to match a rent roll item")
	}
	if !AccountPattern("rent_roll:annual_rent_*").Matches(rent) {
		t.Error("Expected glob pattern to match annual_rent_unit1")
	}
	if AccountPattern("income_statement:cash").Matches(cash) {
		t.Error("Expected document type mismatch to fail")
	}
}

func TestAccountPattern_Select(t *testing.T) {
	items := []*models.LineItem{
		testItem("li-001", models.DocumentRentRoll, "annual_rent_unit1", 60000),
		testItem("li-002", models.DocumentBalanceSheet, "cash", 1000),
		testItem("li-003", models.DocumentRentRoll, "annual_rent_unit2", 40000),
	}

	selected := AccountPattern("rent_roll:annual_rent_*").Select(items)
	if len(selected) != 2 {
		t.Fatalf("Expected 2 selected items, got %d", len(selected))
	}
	// Input order is preserved
	if selected[0].ID != "li-001" || selected[1].ID != "li-003" {
		t.Errorf("Expected selection in input order, got %s then %s", selected[0].ID, selected[1].ID)
	}
}

func TestMatchRule_Validate(t *testing.T) {
	valid := &MatchRule{
		Name:          "test-rule",
		Category:      CategoryCash,
		Strategy:      models.StrategyExact,
		SourcePattern: "balance_sheet:cash",
		TargetPattern: "cash_flow:ending_cash_balance",
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected valid rule, got: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*MatchRule)
	}{
		{"empty name", func(r *MatchRule) { r.Name = "" }},
		{"invalid category", func(r *MatchRule) { r.Category = "bogus" }},
		{"invalid strategy", func(r *MatchRule) { r.Strategy = "GUESS" }},
		{"invalid target pattern", func(r *MatchRule) { r.TargetPattern = "cash" }},
		{"formula on non-calculated rule", func(r *MatchRule) { r.Formula = "sum(rent_roll:*)" }},
		{"missing source pattern", func(r *MatchRule) { r.SourcePattern = "" }},
		{"negative absolute tolerance", func(r *MatchRule) { r.AbsoluteTolerance = decimal.NewFromInt(-1) }},
		{"inverted confidence band", func(r *MatchRule) { r.MinConfidence = 90; r.MaxConfidence = 60 }},
	}

	for _, tt := range tests {
		rule := *valid
		tt.mutate(&rule)
		if err := rule.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}

	calculated := &MatchRule{
		Name:          "calc-rule",
		Category:      CategoryRevenue,
		Strategy:      models.StrategyCalculated,
		TargetPattern: "income_statement:base_rentals",
	}
	if err := calculated.Validate(); err == nil {
		t.Error("Expected calculated rule without formula to fail validation")
	}

	calculated.Formula = "sum(rent_roll:annual_rent_*)"
	if err := calculated.Validate(); err != nil {
		t.Errorf("Expected calculated rule with formula to validate, got: %v", err)
	}
}

func TestMatchRule_ToleranceFor(t *testing.T) {
	rule := &MatchRule{
		AbsoluteTolerance: decimal.NewFromInt(1000),
		PercentTolerance:  decimal.NewFromInt(2),
	}

	// 2% of 10,000 = 200: absolute tolerance is looser
	tolerance := rule.ToleranceFor(decimal.NewFromInt(10000))
	if !tolerance.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Expected tolerance 1000, got %s", tolerance)
	}

	// 2% of 100,000 = 2000: relative tolerance is looser
	tolerance = rule.ToleranceFor(decimal.NewFromInt(100000))
	if !tolerance.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("Expected tolerance 2000, got %s", tolerance)
	}

	// Negative bases use the absolute value
	tolerance = rule.ToleranceFor(decimal.NewFromInt(-100000))
	if !tolerance.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("Expected tolerance 2000 for negative base, got %s", tolerance)
	}
}

func TestMatchRule_HasTolerance(t *testing.T) {
	rule := &MatchRule{}
	if rule.HasTolerance() {
		t.Error("Expected no tolerance on a zero-value rule")
	}

	rule.AbsoluteTolerance = decimal.NewFromInt(100)
	if !rule.HasTolerance() {
		t.Error("Expected absolute tolerance to count")
	}

	rule = &MatchRule{PercentTolerance: decimal.NewFromInt(2)}
	if !rule.HasTolerance() {
		t.Error("Expected percent tolerance to count")
	}
}

func TestMatchRule_ConfidenceBand(t *testing.T) {
	rule := &MatchRule{}
	min, max := rule.ConfidenceBand()
	if min != 50 || max != 95 {
		t.Errorf("Expected default band [50,95], got [%d,%d]", min, max)
	}

	rule.MinConfidence = 60
	rule.MaxConfidence = 90
	min, max = rule.ConfidenceBand()
	if min != 60 || max != 90 {
		t.Errorf("Expected band [60,90], got [%d,%d]", min, max)
	}
}

func TestMatchRule_Compile(t *testing.T) {
	rule := &MatchRule{
		Name:          "calc-rule",
		Category:      CategoryRevenue,
		Strategy:      models.StrategyCalculated,
		TargetPattern: "income_statement:base_rentals",
		Formula:       "sum(rent_roll:annual_rent_*)",
	}

	if err := rule.Compile(); err != nil {
		t.Fatalf("Expected formula to compile, got: %v", err)
	}
	if rule.CompiledFormula() == nil {
		t.Error("Expected compiled formula to be retained")
	}

	rule.Formula = "sum(rent_roll:annual_rent_*"
	if err := rule.Compile(); err == nil {
		t.Error("Expected unterminated formula to fail compilation")
	}

	pair := &MatchRule{Strategy: models.StrategyExact}
	if err := pair.Compile(); err != nil {
		t.Errorf("Expected Compile on a pair rule to be a no-op, got: %v", err)
	}
}
