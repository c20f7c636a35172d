package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewMatch_AutoApproval(t *testing.T) {
	match := NewMatch("rule-1", StrategyExact, []string{"li-001", "li-002"}, 100, decimal.Zero)

	if match.Status != MatchApproved {
		t.Errorf("Expected confidence 100 to auto-approve, got status %s", match.Status)
	}
	if match.ID == "" {
		t.Error("Expected a generated match ID")
	}
}

func TestNewMatch_PendingBelowFull(t *testing.T) {
	match := NewMatch("rule-1", StrategyFuzzy, []string{"li-001", "li-002"}, 85, decimal.NewFromInt(50))

	if match.Status != MatchPending {
		t.Errorf("Expected confidence 85 to stay pending, got status %s", match.Status)
	}
	if match.Confidence != 85 {
		t.Errorf("Expected confidence 85, got %d", match.Confidence)
	}
}

func TestNewMatch_ClampsConfidence(t *testing.T) {
	match := NewMatch("rule-1", StrategyExact, []string{"li-001"}, 120, decimal.Zero)

	if match.Confidence != 100 {
		t.Errorf("Expected confidence clamped to 100, got %d", match.Confidence)
	}
	if match.Status != MatchApproved {
		t.Errorf("Expected clamped match to be approved, got %s", match.Status)
	}
}

func TestMatch_References(t *testing.T) {
	match := NewMatch("rule-1", StrategyExact, []string{"li-001", "li-002"}, 100, decimal.Zero)

	if !match.References("li-001") {
		t.Error("Expected match to reference li-001")
	}
	if match.References("li-999") {
		t.Error("Expected match not to reference li-999")
	}
}

func TestNewDiscrepancy_StartsOpen(t *testing.T) {
	d := NewDiscrepancy("rule-1", StrategyFuzzy, []string{"li-001", "li-002"},
		decimal.NewFromInt(1000), decimal.NewFromFloat(0.5), SeverityHigh)

	if d.Status != DiscrepancyOpen {
		t.Errorf("Expected new discrepancy to be OPEN, got %s", d.Status)
	}
	if d.Severity != SeverityHigh {
		t.Errorf("Expected severity HIGH, got %s", d.Severity)
	}
}

func TestSeverity_Rank(t *testing.T) {
	ordered := []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Rank() <= ordered[i-1].Rank() {
			t.Errorf("Expected %s to rank above %s", ordered[i], ordered[i-1])
		}
	}
}

func TestSessionState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    SessionState
		terminal bool
	}{
		{SessionCreated, false},
		{SessionRunning, false},
		{SessionValidated, false},
		{SessionCompleted, true},
		{SessionAborted, true},
	}

	for _, tt := range tests {
		if got := tt.state.IsTerminal(); got != tt.terminal {
			t.Errorf("%s.IsTerminal() = %v, expected %v", tt.state, got, tt.terminal)
		}
	}
}

func TestSession_PairKey(t *testing.T) {
	session := NewSession("bldg-7", "2024-Q4", "standard")

	if session.PairKey() != "bldg-7|2024-Q4" {
		t.Errorf("Unexpected pair key %q", session.PairKey())
	}
	if session.State != SessionCreated {
		t.Errorf("Expected new session in CREATED, got %s", session.State)
	}
}

func TestSession_FindRecords(t *testing.T) {
	session := NewSession("bldg-7", "2024-Q4", "standard")
	match := NewMatch("rule-1", StrategyExact, []string{"li-001"}, 100, decimal.Zero)
	discrepancy := NewDiscrepancy("rule-2", StrategyFuzzy, []string{"li-002"},
		decimal.NewFromInt(10), decimal.Zero, SeverityLow)

	session.Matches = append(session.Matches, match)
	session.Discrepancies = append(session.Discrepancies, discrepancy)

	if session.FindMatch(match.ID) != match {
		t.Error("Expected to find match by ID")
	}
	if session.FindMatch("missing") != nil {
		t.Error("Expected nil for unknown match ID")
	}
	if session.FindDiscrepancy(discrepancy.ID) != discrepancy {
		t.Error("Expected to find discrepancy by ID")
	}
	if session.FindDiscrepancy("missing") != nil {
		t.Error("Expected nil for unknown discrepancy ID")
	}
}
