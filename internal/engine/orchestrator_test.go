package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/internal/rules"

	"github.com/shopspring/decimal"
)

func testItem(id string, docType models.DocumentType, accountID string, amount float64) *models.LineItem {
	return models.NewLineItem(id, "bldg-7", "2024-Q4", docType, accountID, decimal.NewFromFloat(amount))
}

// propertySnapshot is a full document set for one (property, period) pair
// exercising every strategy tier of the default catalog.
func propertySnapshot() []*models.LineItem {
	return []*models.LineItem{
		// Cash reconciles exactly between balance sheet and cash flow
		testItem("li-001", models.DocumentBalanceSheet, "cash", 1000.00),
		testItem("li-002", models.DocumentCashFlow, "ending_cash_balance", 1000.00),
		// Mortgage principal within 1% of balance sheet debt
		testItem("li-003", models.DocumentMortgageStatement, "principal_balance", 800000),
		testItem("li-004", models.DocumentBalanceSheet, "mortgage_payable", 804000),
		// Rent roll sums exactly to base rentals
		testItem("li-005", models.DocumentRentRoll, "annual_rent_unit1", 60000),
		testItem("li-006", models.DocumentRentRoll, "annual_rent_unit2", 40000),
		testItem("li-007", models.DocumentIncomeStatement, "base_rentals", 100000),
		// Balance sheet equation off by 50,000: a critical discrepancy
		testItem("li-008", models.DocumentBalanceSheet, "total_liabilities", 900000),
		testItem("li-009", models.DocumentBalanceSheet, "total_equity", 300000),
		testItem("li-010", models.DocumentBalanceSheet, "total_assets", 1250000),
		// Interest paid disagrees with interest expense beyond tolerance
		testItem("li-011", models.DocumentMortgageStatement, "interest_paid_ytd", 45000),
		testItem("li-012", models.DocumentIncomeStatement, "interest_expense", 52000),
	}
}

func defaultSetup(t *testing.T) (*Orchestrator, *rules.Registry) {
	t.Helper()
	orchestrator, err := NewOrchestrator(nil, nil)
	if err != nil {
		t.Fatalf("Failed to create orchestrator: %v", err)
	}
	registry, err := rules.LoadDefaultRegistry()
	if err != nil {
		t.Fatalf("Failed to load default registry: %v", err)
	}
	return orchestrator, registry
}

func TestOrchestrator_RunFullSnapshot(t *testing.T) {
	orchestrator, registry := defaultSetup(t)

	result, err := orchestrator.Run(context.Background(), propertySnapshot(), registry)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Exact cash, fuzzy cash, mortgage principal, rent roll derivation
	if len(result.Matches) != 4 {
		t.Fatalf("Expected 4 matches, got %d: %v", len(result.Matches), result.Matches)
	}
	// Balance sheet equation and interest expense
	if len(result.Discrepancies) != 2 {
		t.Fatalf("Expected 2 discrepancies, got %d", len(result.Discrepancies))
	}
	if result.RuleEvaluations != 6 {
		t.Errorf("Expected 6 rule evaluations, got %d", result.RuleEvaluations)
	}

	byRule := make(map[string]*models.Match)
	for _, match := range result.Matches {
		byRule[match.RuleID] = match
	}

	exact := byRule["bs-cash-vs-cf-ending-balance"]
	if exact == nil {
		t.Fatal("Expected the exact cash rule to match")
	}
	if exact.Confidence != 100 || exact.Status != models.MatchApproved {
		t.Errorf("Expected exact match auto-approved at 100, got %d/%s", exact.Confidence, exact.Status)
	}

	mortgage := byRule["mortgage-principal-vs-bs-debt"]
	if mortgage == nil {
		t.Fatal("Expected the mortgage principal rule to match")
	}
	if mortgage.Status != models.MatchPending {
		t.Errorf("Expected fuzzy match to stay pending, got %s", mortgage.Status)
	}
	if mortgage.Confidence <= 70 || mortgage.Confidence >= 100 {
		t.Errorf("Expected fuzzy confidence inside (70,100), got %d", mortgage.Confidence)
	}

	rentRoll := byRule["rent-roll-vs-is-base-rentals"]
	if rentRoll == nil {
		t.Fatal("Expected the rent roll derivation to match")
	}
	if rentRoll.Strategy != models.StrategyCalculated {
		t.Errorf("Expected calculated strategy, got %s", rentRoll.Strategy)
	}

	severities := make(map[string]models.Severity)
	for _, d := range result.Discrepancies {
		severities[d.RuleID] = d.Severity
	}
	if severities["bs-equation-identity"] != models.SeverityCritical {
		t.Errorf("Expected balance sheet equation variance to be CRITICAL, got %s",
			severities["bs-equation-identity"])
	}
	if severities["mortgage-interest-vs-is-interest"] != models.SeverityHigh {
		t.Errorf("Expected interest variance to be HIGH, got %s",
			severities["mortgage-interest-vs-is-interest"])
	}

	// NOI inputs are absent and the inferred pools are fully claimed
	if len(result.Skips) == 0 {
		t.Error("Expected skipped rules for missing inputs")
	}
}

// canonicalize projects a result onto its semantic content, excluding
// generated record IDs and timestamps, so two runs can be compared.
func canonicalize(result *Result) []string {
	var lines []string
	for _, m := range result.Matches {
		ids := append([]string(nil), m.LineItemIDs...)
		sort.Strings(ids)
		lines = append(lines, fmt.Sprintf("match|%s|%s|%d|%s|%s",
			m.RuleID, m.Strategy, m.Confidence, m.Difference.String(), strings.Join(ids, ",")))
	}
	for _, d := range result.Discrepancies {
		ids := append([]string(nil), d.LineItemIDs...)
		sort.Strings(ids)
		lines = append(lines, fmt.Sprintf("discrepancy|%s|%s|%s|%s|%s",
			d.RuleID, d.Strategy, d.Severity, d.Difference.String(), strings.Join(ids, ",")))
	}
	return lines
}

func TestOrchestrator_RunIsIdempotent(t *testing.T) {
	orchestrator, registry := defaultSetup(t)

	first, err := orchestrator.Run(context.Background(), propertySnapshot(), registry)
	if err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	second, err := orchestrator.Run(context.Background(), propertySnapshot(), registry)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	firstLines := canonicalize(first)
	secondLines := canonicalize(second)

	if len(firstLines) != len(secondLines) {
		t.Fatalf("Record counts differ between runs: %d vs %d", len(firstLines), len(secondLines))
	}
	for i := range firstLines {
		if firstLines[i] != secondLines[i] {
			t.Errorf("Run output differs at record %d:\n  %s\n  %s", i, firstLines[i], secondLines[i])
		}
	}
}

func TestOrchestrator_SequentialMatchesParallel(t *testing.T) {
	registry, err := rules.LoadDefaultRegistry()
	if err != nil {
		t.Fatalf("Failed to load registry: %v", err)
	}

	parallel, err := NewOrchestrator(nil, &Config{ParallelRules: true, MaxConcurrency: 4})
	if err != nil {
		t.Fatalf("Failed to create parallel orchestrator: %v", err)
	}
	sequential, err := NewOrchestrator(nil, &Config{ParallelRules: false, MaxConcurrency: 1})
	if err != nil {
		t.Fatalf("Failed to create sequential orchestrator: %v", err)
	}

	parallelResult, err := parallel.Run(context.Background(), propertySnapshot(), registry)
	if err != nil {
		t.Fatalf("Parallel run failed: %v", err)
	}
	sequentialResult, err := sequential.Run(context.Background(), propertySnapshot(), registry)
	if err != nil {
		t.Fatalf("Sequential run failed: %v", err)
	}

	p := canonicalize(parallelResult)
	s := canonicalize(sequentialResult)
	if len(p) != len(s) {
		t.Fatalf("Record counts differ: parallel %d, sequential %d", len(p), len(s))
	}
	for i := range p {
		if p[i] != s[i] {
			t.Errorf("Record %d differs:\n  parallel:   %s\n  sequential: %s", i, p[i], s[i])
		}
	}
}

func TestOrchestrator_NoDoubleClaimPerRule(t *testing.T) {
	orchestrator, registry := defaultSetup(t)

	result, err := orchestrator.Run(context.Background(), propertySnapshot(), registry)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Within one rule, no line item may appear in two matches
	seen := make(map[string]map[string]bool)
	for _, match := range result.Matches {
		if seen[match.RuleID] == nil {
			seen[match.RuleID] = make(map[string]bool)
		}
		for _, id := range match.LineItemIDs {
			if seen[match.RuleID][id] {
				t.Errorf("Rule %s claims line item %s twice", match.RuleID, id)
			}
			seen[match.RuleID][id] = true
		}
	}
}

func TestOrchestrator_CancelledBeforeStart(t *testing.T) {
	orchestrator, registry := defaultSetup(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := orchestrator.Run(ctx, propertySnapshot(), registry)
	if err == nil {
		t.Fatal("Expected cancellation error")
	}
	if result == nil {
		t.Fatal("Expected a partial result alongside the cancellation error")
	}
	if len(result.Matches) != 0 || len(result.Discrepancies) != 0 {
		t.Error("Expected no records committed before the first tier")
	}
}

func TestOrchestrator_DeferredExactBecomesDiscrepancy(t *testing.T) {
	orchestrator, err := NewOrchestrator(nil, nil)
	if err != nil {
		t.Fatalf("Failed to create orchestrator: %v", err)
	}

	exactOnly, err := rules.NewRegistry([]*rules.MatchRule{{
		Name:          "cash-exact",
		Category:      rules.CategoryCash,
		Strategy:      models.StrategyExact,
		SourcePattern: "balance_sheet:cash",
		TargetPattern: "cash_flow:ending_cash_balance",
	}})
	if err != nil {
		t.Fatalf("Failed to build registry: %v", err)
	}

	snapshot := []*models.LineItem{
		testItem("li-001", models.DocumentBalanceSheet, "cash", 1000),
		testItem("li-002", models.DocumentCashFlow, "ending_cash_balance", 2000),
	}

	result, err := orchestrator.Run(context.Background(), snapshot, exactOnly)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Matches) != 0 {
		t.Errorf("Expected no matches, got %d", len(result.Matches))
	}
	if len(result.Discrepancies) != 1 {
		t.Fatalf("Expected the unclaimed deferred pair to become a discrepancy, got %d", len(result.Discrepancies))
	}
	if result.Discrepancies[0].Severity != models.SeverityHigh {
		t.Errorf("Expected 50%% variance to classify HIGH, got %s", result.Discrepancies[0].Severity)
	}
}

func TestOrchestrator_DeferredPairClaimedByLaterTier(t *testing.T) {
	orchestrator, err := NewOrchestrator(nil, nil)
	if err != nil {
		t.Fatalf("Failed to create orchestrator: %v", err)
	}

	registry, err := rules.NewRegistry([]*rules.MatchRule{
		{
			Name:          "cash-exact",
			Category:      rules.CategoryCash,
			Strategy:      models.StrategyExact,
			SourcePattern: "balance_sheet:cash",
			TargetPattern: "cash_flow:ending_cash_balance",
		},
		{
			Name:              "cash-fuzzy",
			Category:          rules.CategoryCash,
			Strategy:          models.StrategyFuzzy,
			SourcePattern:     "balance_sheet:cash",
			TargetPattern:     "cash_flow:ending_cash_balance",
			AbsoluteTolerance: decimal.NewFromInt(1000),
		},
	})
	if err != nil {
		t.Fatalf("Failed to build registry: %v", err)
	}

	snapshot := []*models.LineItem{
		testItem("li-001", models.DocumentBalanceSheet, "cash", 1000),
		testItem("li-002", models.DocumentCashFlow, "ending_cash_balance", 2000),
	}

	result, err := orchestrator.Run(context.Background(), snapshot, registry)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// The fuzzy tier claims the deferred pair, so no discrepancy survives
	if len(result.Matches) != 1 {
		t.Fatalf("Expected the fuzzy rule to claim the pair, got %d matches", len(result.Matches))
	}
	if result.Matches[0].RuleID != "cash-fuzzy" {
		t.Errorf("Expected cash-fuzzy to own the match, got %s", result.Matches[0].RuleID)
	}
	if len(result.Discrepancies) != 0 {
		t.Errorf("Expected no discrepancies for a claimed deferred pair, got %d", len(result.Discrepancies))
	}
}

func TestOrchestrator_FaultyRuleIsSkippedNotFatal(t *testing.T) {
	orchestrator, err := NewOrchestrator(nil, nil)
	if err != nil {
		t.Fatalf("Failed to create orchestrator: %v", err)
	}

	// The calculated rule's value() reference is ambiguous at evaluation
	// time: two items match a single-item reference.
	registry, err := rules.NewRegistry([]*rules.MatchRule{
		{
			Name:          "ambiguous-value",
			Category:      rules.CategoryRevenue,
			Strategy:      models.StrategyCalculated,
			TargetPattern: "income_statement:base_rentals",
			Formula:       "value(rent_roll:annual_rent_*)",
		},
		{
			Name:          "cash-exact",
			Category:      rules.CategoryCash,
			Strategy:      models.StrategyExact,
			SourcePattern: "balance_sheet:cash",
			TargetPattern: "cash_flow:ending_cash_balance",
		},
	})
	if err != nil {
		t.Fatalf("Failed to build registry: %v", err)
	}

	snapshot := []*models.LineItem{
		testItem("li-001", models.DocumentRentRoll, "annual_rent_unit1", 60000),
		testItem("li-002", models.DocumentRentRoll, "annual_rent_unit2", 40000),
		testItem("li-003", models.DocumentIncomeStatement, "base_rentals", 100000),
		testItem("li-004", models.DocumentBalanceSheet, "cash", 500),
		testItem("li-005", models.DocumentCashFlow, "ending_cash_balance", 500),
	}

	result, err := orchestrator.Run(context.Background(), snapshot, registry)
	if err != nil {
		t.Fatalf("Expected the run to survive a faulty rule, got: %v", err)
	}

	if len(result.Matches) != 1 {
		t.Errorf("Expected the healthy rule to still match, got %d matches", len(result.Matches))
	}

	found := false
	for _, skip := range result.Skips {
		if skip.RuleName == "ambiguous-value" {
			found = true
		}
	}
	if !found {
		t.Error("Expected the faulty rule to be recorded as skipped")
	}
}
