package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MatchStrategy identifies which matching strategy produced a record
type MatchStrategy string

const (
	// StrategyExact compares normalized amounts for byte-exact equality
	StrategyExact MatchStrategy = "EXACT"
	// StrategyFuzzy compares amounts within an absolute or relative tolerance
	StrategyFuzzy MatchStrategy = "FUZZY"
	// StrategyCalculated compares a formula-derived value against a target
	StrategyCalculated MatchStrategy = "CALCULATED"
	// StrategyInferred scores heuristic plausibility signals
	StrategyInferred MatchStrategy = "INFERRED"
)

// String returns the string representation of MatchStrategy
func (s MatchStrategy) String() string {
	return string(s)
}

// IsValid checks if the strategy identifier is known
func (s MatchStrategy) IsValid() bool {
	switch s {
	case StrategyExact, StrategyFuzzy, StrategyCalculated, StrategyInferred:
		return true
	}
	return false
}

// MatchStatus is the auditor-workflow status of a Match
type MatchStatus string

const (
	MatchPending  MatchStatus = "PENDING"
	MatchApproved MatchStatus = "APPROVED"
	MatchRejected MatchStatus = "REJECTED"
)

// Severity expresses how serious an unreconciled discrepancy is
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Rank returns an ordering value for severity comparisons, higher is worse
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// DiscrepancyStatus is the auditor-workflow status of a Discrepancy
type DiscrepancyStatus string

const (
	DiscrepancyOpen          DiscrepancyStatus = "OPEN"
	DiscrepancyInvestigating DiscrepancyStatus = "INVESTIGATING"
	DiscrepancyResolved      DiscrepancyStatus = "RESOLVED"
)

// Match is the outcome of successfully comparing line items under a rule.
// A confidence of 100 auto-approves the match at creation time; anything
// lower stays PENDING until an auditor acts on it.
type Match struct {
	ID          string          `json:"id"`
	RuleID      string          `json:"ruleId"`
	Strategy    MatchStrategy   `json:"strategy"`
	LineItemIDs []string        `json:"lineItemIds"`
	Confidence  int             `json:"confidence"`
	Status      MatchStatus     `json:"status"`
	Difference  decimal.Decimal `json:"difference"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	DecidedAt   *time.Time      `json:"decidedAt,omitempty"`
}

// NewMatch creates a Match, auto-approving it when confidence is exactly 100
func NewMatch(ruleID string, strategy MatchStrategy, itemIDs []string, confidence int, difference decimal.Decimal) *Match {
	status := MatchPending
	if confidence >= 100 {
		confidence = 100
		status = MatchApproved
	}

	return &Match{
		ID:          uuid.NewString(),
		RuleID:      ruleID,
		Strategy:    strategy,
		LineItemIDs: itemIDs,
		Confidence:  confidence,
		Status:      status,
		Difference:  difference,
		CreatedAt:   time.Now().UTC(),
	}
}

// String returns a string representation of the Match
func (m *Match) String() string {
	return fmt.Sprintf("Match{Rule: %s, Strategy: %s, Confidence: %d, Status: %s}",
		m.RuleID, m.Strategy, m.Confidence, m.Status)
}

// References reports whether the match involves the given line item
func (m *Match) References(lineItemID string) bool {
	for _, id := range m.LineItemIDs {
		if id == lineItemID {
			return true
		}
	}
	return false
}

// Clone returns an independent copy of the match
func (m *Match) Clone() *Match {
	clone := *m
	clone.LineItemIDs = append([]string(nil), m.LineItemIDs...)
	if m.DecidedAt != nil {
		decidedAt := *m.DecidedAt
		clone.DecidedAt = &decidedAt
	}
	return &clone
}

// Discrepancy is the outcome of a rule evaluation that failed to reconcile
// within tolerance. Severity is derived from the rule category and the
// normalized variance and is never set directly by a user.
type Discrepancy struct {
	ID                 string            `json:"id"`
	RuleID             string            `json:"ruleId"`
	Strategy           MatchStrategy     `json:"strategy"`
	LineItemIDs        []string          `json:"lineItemIds"`
	Difference         decimal.Decimal   `json:"difference"`
	NormalizedVariance decimal.Decimal   `json:"normalizedVariance"`
	Severity           Severity          `json:"severity"`
	Status             DiscrepancyStatus `json:"status"`
	Annotation         string            `json:"annotation,omitempty"`
	ResolutionNotes    string            `json:"resolutionNotes,omitempty"`
	OverrideValue      *decimal.Decimal  `json:"overrideValue,omitempty"`
	CreatedAt          time.Time         `json:"createdAt"`
	ResolvedAt         *time.Time        `json:"resolvedAt,omitempty"`
}

// NewDiscrepancy creates an OPEN Discrepancy for a failed rule evaluation
func NewDiscrepancy(ruleID string, strategy MatchStrategy, itemIDs []string, difference, variance decimal.Decimal, severity Severity) *Discrepancy {
	return &Discrepancy{
		ID:                 uuid.NewString(),
		RuleID:             ruleID,
		Strategy:           strategy,
		LineItemIDs:        itemIDs,
		Difference:         difference,
		NormalizedVariance: variance,
		Severity:           severity,
		Status:             DiscrepancyOpen,
		CreatedAt:          time.Now().UTC(),
	}
}

// String returns a string representation of the Discrepancy
func (d *Discrepancy) String() string {
	return fmt.Sprintf("Discrepancy{Rule: %s, Severity: %s, Status: %s, Difference: %s}",
		d.RuleID, d.Severity, d.Status, d.Difference.String())
}

// Clone returns an independent copy of the discrepancy
func (d *Discrepancy) Clone() *Discrepancy {
	clone := *d
	clone.LineItemIDs = append([]string(nil), d.LineItemIDs...)
	if d.OverrideValue != nil {
		override := *d.OverrideValue
		clone.OverrideValue = &override
	}
	if d.ResolvedAt != nil {
		resolvedAt := *d.ResolvedAt
		clone.ResolvedAt = &resolvedAt
	}
	return &clone
}

// SessionState is the lifecycle state of a reconciliation session
type SessionState string

const (
	SessionCreated   SessionState = "CREATED"
	SessionRunning   SessionState = "RUNNING"
	SessionValidated SessionState = "VALIDATED"
	SessionCompleted SessionState = "COMPLETED"
	SessionAborted   SessionState = "ABORTED"
)

// IsTerminal reports whether the state permits no further transitions
func (s SessionState) IsTerminal() bool {
	return s == SessionCompleted || s == SessionAborted
}

// Session is one bounded reconciliation run for a (property, period) pair.
// At most one non-terminal session may exist per pair; the session manager
// enforces that invariant.
type Session struct {
	ID              string         `json:"id"`
	PropertyID      string         `json:"propertyId"`
	PeriodID        string         `json:"periodId"`
	Type            string         `json:"type,omitempty"`
	State           SessionState   `json:"state"`
	Matches         []*Match       `json:"matches,omitempty"`
	Discrepancies   []*Discrepancy `json:"discrepancies,omitempty"`
	HealthScore     *int           `json:"healthScore,omitempty"`
	RuleEvaluations int            `json:"ruleEvaluations"`
	RulesSkipped    int            `json:"rulesSkipped"`
	CreatedAt       time.Time      `json:"createdAt"`
	CompletedAt     *time.Time     `json:"completedAt,omitempty"`
}

// NewSession creates a Session in the CREATED state
func NewSession(propertyID, periodID, sessionType string) *Session {
	return &Session{
		ID:         uuid.NewString(),
		PropertyID: propertyID,
		PeriodID:   periodID,
		Type:       sessionType,
		State:      SessionCreated,
		CreatedAt:  time.Now().UTC(),
	}
}

// PairKey returns the mutual-exclusion key for the (property, period) pair
func (s *Session) PairKey() string {
	return s.PropertyID + "|" + s.PeriodID
}

// FindMatch returns the match with the given ID, or nil
func (s *Session) FindMatch(matchID string) *Match {
	for _, m := range s.Matches {
		if m.ID == matchID {
			return m
		}
	}
	return nil
}

// FindDiscrepancy returns the discrepancy with the given ID, or nil
func (s *Session) FindDiscrepancy(discrepancyID string) *Discrepancy {
	for _, d := range s.Discrepancies {
		if d.ID == discrepancyID {
			return d
		}
	}
	return nil
}

// Snapshot returns an independent copy of the session, including its match
// and discrepancy records. The session store hands snapshots to readers so
// concurrent auditor mutations never touch memory a reader holds.
func (s *Session) Snapshot() *Session {
	snapshot := *s
	if s.HealthScore != nil {
		score := *s.HealthScore
		snapshot.HealthScore = &score
	}
	if s.CompletedAt != nil {
		completedAt := *s.CompletedAt
		snapshot.CompletedAt = &completedAt
	}
	if s.Matches != nil {
		snapshot.Matches = make([]*Match, len(s.Matches))
		for i, m := range s.Matches {
			snapshot.Matches[i] = m.Clone()
		}
	}
	if s.Discrepancies != nil {
		snapshot.Discrepancies = make([]*Discrepancy, len(s.Discrepancies))
		for i, d := range s.Discrepancies {
			snapshot.Discrepancies[i] = d.Clone()
		}
	}
	return &snapshot
}

// AuditEntry is an append-only record of an automated decision or a human
// action taken against a session's records. Entries are never mutated or
// deleted.
type AuditEntry struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"sessionId"`
	TargetID     string    `json:"targetId,omitempty"`
	Action       string    `json:"action"`
	Actor        string    `json:"actor"`
	BeforeStatus string    `json:"beforeStatus,omitempty"`
	AfterStatus  string    `json:"afterStatus,omitempty"`
	Detail       string    `json:"detail,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// SystemActor identifies automated engine decisions in the audit trail
const SystemActor = "system"
