// Package session owns the reconciliation run lifecycle and the auditor
// decision workflow layered on top of automated findings.
package session

import (
	"context"
	"time"

	"property-reconciliation-engine/internal/audit"
	"property-reconciliation-engine/internal/classify"
	"property-reconciliation-engine/internal/engine"
	"property-reconciliation-engine/internal/health"
	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/internal/provider"
	"property-reconciliation-engine/internal/rules"
	engineerrors "property-reconciliation-engine/pkg/errors"
	"property-reconciliation-engine/pkg/logger"

	"github.com/shopspring/decimal"
)

// Audit trail action names
const (
	actionSessionCreated   = "session_created"
	actionRunStarted       = "run_started"
	actionRunValidated     = "run_validated"
	actionSessionAborted   = "session_aborted"
	actionSessionCompleted = "session_completed"
	actionAutomatedMatch   = "automated_match"
	actionDiscrepancyFound = "discrepancy_detected"
	actionMatchApproved    = "match_approved"
	actionMatchRejected    = "match_rejected"
	actionInvestigation    = "investigation_started"
	actionResolved         = "discrepancy_resolved"
)

// Manager coordinates session lifecycle, runs, and auditor actions. It is
// the only component that mutates sessions; concurrency safety comes from
// the store's per-operation locking plus the one-active-session invariant,
// not from global locks.
type Manager struct {
	store        *Store
	provider     provider.LineItemProvider
	registry     *rules.Registry
	orchestrator *engine.Orchestrator
	classifier   *classify.Classifier
	aggregator   *health.Aggregator
	trail        *audit.Trail
	logger       logger.Logger
}

// NewManager wires a session manager from its collaborators. A nil
// orchestrator, classifier, aggregator, or trail falls back to defaults.
func NewManager(lineItems provider.LineItemProvider, registry *rules.Registry, orchestrator *engine.Orchestrator) (*Manager, error) {
	if lineItems == nil {
		return nil, engineerrors.ValidationError(engineerrors.CodeMissingField, "line_item_provider", nil, nil)
	}

	if registry == nil {
		return nil, engineerrors.ValidationError(engineerrors.CodeMissingField, "rule_registry", nil, nil)
	}

	if orchestrator == nil {
		var err error
		orchestrator, err = engine.NewOrchestrator(nil, nil)
		if err != nil {
			return nil, err
		}
	}

	return &Manager{
		store:        NewStore(),
		provider:     lineItems,
		registry:     registry,
		orchestrator: orchestrator,
		classifier:   classify.NewDefaultClassifier(),
		aggregator:   health.NewDefaultAggregator(),
		trail:        audit.NewTrail(),
		logger:       logger.WithComponent("session_manager"),
	}, nil
}

// Trail exposes the audit trail for read-only inspection
func (m *Manager) Trail() *audit.Trail {
	return m.trail
}

// CreateSession opens a new session for the (property, period) pair. It
// fails with a duplicate-session error while another non-terminal session
// exists for the same pair.
func (m *Manager) CreateSession(propertyID, periodID, sessionType string) (*models.Session, error) {
	if propertyID == "" {
		return nil, engineerrors.ValidationError(engineerrors.CodeMissingField, "property_id", propertyID, nil)
	}
	if periodID == "" {
		return nil, engineerrors.ValidationError(engineerrors.CodeMissingField, "period_id", periodID, nil)
	}

	session := models.NewSession(propertyID, periodID, sessionType)
	if err := m.store.Create(session); err != nil {
		return nil, err
	}

	m.trail.Record(session.ID, "", actionSessionCreated, models.SystemActor,
		"", string(models.SessionCreated), propertyID+"/"+periodID)

	m.logger.WithFields(logger.Fields{
		"session_id":  session.ID,
		"property_id": propertyID,
		"period_id":   periodID,
	}).Info("Session created")

	return session.Snapshot(), nil
}

// RunSummary is the caller-facing outcome of a reconciliation run
type RunSummary struct {
	SessionID               string                       `json:"sessionId"`
	Matches                 int                          `json:"matches"`
	Discrepancies           int                          `json:"discrepancies"`
	DiscrepanciesBySeverity map[models.Severity]int      `json:"discrepanciesBySeverity"`
	MatchesByStrategy       map[models.MatchStrategy]int `json:"matchesByStrategy"`
	SkippedRules            []engine.RuleSkip            `json:"skippedRules,omitempty"`
	HealthScore             int                          `json:"healthScore"`
}

// RunReconciliation executes the matching battery for a CREATED session and
// transitions it to VALIDATED. On cancellation or failure the session is
// ABORTED, preserving any records committed before the failure for
// post-mortem inspection.
func (m *Manager) RunReconciliation(ctx context.Context, sessionID string) (*RunSummary, error) {
	var propertyID, periodID string

	err := m.store.Update(sessionID, func(s *models.Session) error {
		if s.State != models.SessionCreated {
			return engineerrors.SessionStateError(sessionID, string(s.State), string(models.SessionCreated))
		}
		s.State = models.SessionRunning
		propertyID, periodID = s.PropertyID, s.PeriodID
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.trail.Record(sessionID, "", actionRunStarted, models.SystemActor,
		string(models.SessionCreated), string(models.SessionRunning), "")

	op := logger.NewOperationLogger("reconciliation_run", m.logger).
		WithField("session_id", sessionID)

	items, err := m.provider.FetchLineItems(ctx, propertyID, periodID)
	if err != nil {
		op.Error(err, "Line item fetch failed")
		m.abort(sessionID, models.SessionRunning, "line item fetch failed: "+err.Error())
		return nil, engineerrors.Wrap(err, engineerrors.CategoryInternal,
			engineerrors.CodeUnexpectedError, "failed to fetch line items")
	}
	op.WithField("line_items", len(items)).Step("line_items_fetched")

	result, runErr := m.orchestrator.Run(ctx, items, m.registry)

	// Commit whatever the run produced, even on failure.
	commitErr := m.store.Update(sessionID, func(s *models.Session) error {
		if result != nil {
			s.Matches = result.Matches
			s.Discrepancies = result.Discrepancies
			s.RuleEvaluations = result.RuleEvaluations
			s.RulesSkipped = len(result.Skips)
		}

		if runErr != nil {
			s.State = models.SessionAborted
			return nil
		}

		score := m.aggregator.Score(s.Discrepancies, s.RuleEvaluations)
		s.HealthScore = &score
		s.State = models.SessionValidated
		return nil
	})
	if commitErr != nil {
		return nil, commitErr
	}

	if runErr != nil {
		op.Error(runErr, "Reconciliation run aborted")
		m.trail.Record(sessionID, "", actionSessionAborted, models.SystemActor,
			string(models.SessionRunning), string(models.SessionAborted), runErr.Error())
		return nil, engineerrors.Wrap(runErr, engineerrors.CategoryEvaluation,
			engineerrors.CodeEvaluationFailed, "reconciliation run aborted")
	}

	m.recordRunAudit(sessionID, result)

	summary := m.buildSummary(sessionID, result)
	m.trail.Record(sessionID, "", actionRunValidated, models.SystemActor,
		string(models.SessionRunning), string(models.SessionValidated), "")

	op.WithField("matches", summary.Matches).
		WithField("discrepancies", summary.Discrepancies).
		WithField("health_score", summary.HealthScore).
		Success("Reconciliation run validated")

	return summary, nil
}

// recordRunAudit appends one audit entry per automated decision
func (m *Manager) recordRunAudit(sessionID string, result *engine.Result) {
	for _, match := range result.Matches {
		m.trail.Record(sessionID, match.ID, actionAutomatedMatch, models.SystemActor,
			"", string(match.Status), match.RuleID)
	}
	for _, d := range result.Discrepancies {
		m.trail.Record(sessionID, d.ID, actionDiscrepancyFound, models.SystemActor,
			"", string(d.Status), d.RuleID)
	}
}

func (m *Manager) buildSummary(sessionID string, result *engine.Result) *RunSummary {
	summary := &RunSummary{
		SessionID:               sessionID,
		Matches:                 len(result.Matches),
		Discrepancies:           len(result.Discrepancies),
		DiscrepanciesBySeverity: make(map[models.Severity]int),
		MatchesByStrategy:       make(map[models.MatchStrategy]int),
		SkippedRules:            result.Skips,
	}

	for _, match := range result.Matches {
		summary.MatchesByStrategy[match.Strategy]++
	}
	for _, d := range result.Discrepancies {
		summary.DiscrepanciesBySeverity[d.Severity]++
	}

	summary.HealthScore = m.aggregator.Score(result.Discrepancies, result.RuleEvaluations)
	return summary
}

// abort transitions a session to ABORTED from any non-terminal state
func (m *Manager) abort(sessionID string, from models.SessionState, reason string) {
	_ = m.store.Update(sessionID, func(s *models.Session) error {
		if s.State.IsTerminal() {
			return nil
		}
		s.State = models.SessionAborted
		return nil
	})
	m.trail.Record(sessionID, "", actionSessionAborted, models.SystemActor,
		string(from), string(models.SessionAborted), reason)
}

// AbortSession cancels a session from any non-terminal state. Committed
// records are preserved.
func (m *Manager) AbortSession(sessionID, actor, reason string) error {
	var before models.SessionState

	err := m.store.Update(sessionID, func(s *models.Session) error {
		if s.State.IsTerminal() {
			return engineerrors.SessionStateError(sessionID, string(s.State), "any non-terminal state")
		}
		before = s.State
		s.State = models.SessionAborted
		return nil
	})
	if err != nil {
		return err
	}

	m.trail.Record(sessionID, "", actionSessionAborted, actor,
		string(before), string(models.SessionAborted), reason)
	return nil
}

// GetSession returns the session with the given ID
func (m *Manager) GetSession(sessionID string) (*models.Session, error) {
	return m.store.Get(sessionID)
}

// ApproveMatch approves a pending match. Allowed only while the session is
// VALIDATED; expectedStatus implements the optimistic-concurrency guard.
func (m *Manager) ApproveMatch(matchID, actor, notes string, expectedStatus models.MatchStatus) error {
	sessionID, err := m.store.SessionForMatch(matchID)
	if err != nil {
		return err
	}

	err = m.store.Update(sessionID, func(s *models.Session) error {
		if s.State != models.SessionValidated {
			return engineerrors.SessionStateError(sessionID, string(s.State), string(models.SessionValidated))
		}

		match := s.FindMatch(matchID)
		if match == nil {
			return engineerrors.RecordNotFoundError("match", matchID)
		}

		if match.Status != expectedStatus {
			return engineerrors.ConflictError(matchID, string(expectedStatus), string(match.Status))
		}

		now := time.Now().UTC()
		match.Status = models.MatchApproved
		match.Notes = notes
		match.DecidedAt = &now
		return nil
	})
	if err != nil {
		return err
	}

	m.trail.Record(sessionID, matchID, actionMatchApproved, actor,
		string(expectedStatus), string(models.MatchApproved), notes)
	return nil
}

// RejectMatch rejects a match and, unless the rule permits silent rejection,
// converts it back into an OPEN discrepancy at a severity inherited from the
// rule category.
func (m *Manager) RejectMatch(matchID, actor, reason string, expectedStatus models.MatchStatus) error {
	sessionID, err := m.store.SessionForMatch(matchID)
	if err != nil {
		return err
	}

	var reopened *models.Discrepancy

	err = m.store.Update(sessionID, func(s *models.Session) error {
		if s.State != models.SessionValidated {
			return engineerrors.SessionStateError(sessionID, string(s.State), string(models.SessionValidated))
		}

		match := s.FindMatch(matchID)
		if match == nil {
			return engineerrors.RecordNotFoundError("match", matchID)
		}

		if match.Status != expectedStatus {
			return engineerrors.ConflictError(matchID, string(expectedStatus), string(match.Status))
		}

		now := time.Now().UTC()
		match.Status = models.MatchRejected
		match.Notes = reason
		match.DecidedAt = &now

		rule := m.registry.FindByName(match.RuleID)
		if rule != nil && rule.AllowSilentReject {
			return nil
		}

		severity := models.SeverityCritical
		if rule != nil {
			severity = m.classifier.CategorySeverity(rule.Category)
		}

		reopened = models.NewDiscrepancy(match.RuleID, match.Strategy, match.LineItemIDs,
			match.Difference, decimal.Zero, severity)
		reopened.Annotation = "reopened by match rejection"
		s.Discrepancies = append(s.Discrepancies, reopened)
		return nil
	})
	if err != nil {
		return err
	}

	m.trail.Record(sessionID, matchID, actionMatchRejected, actor,
		string(expectedStatus), string(models.MatchRejected), reason)

	if reopened != nil {
		m.trail.Record(sessionID, reopened.ID, actionDiscrepancyFound, models.SystemActor,
			string(models.MatchRejected), string(models.DiscrepancyOpen), "reopened by rejection of match "+matchID)
	}
	return nil
}

// StartInvestigation moves an open discrepancy to INVESTIGATING
func (m *Manager) StartInvestigation(discrepancyID, actor string, expectedStatus models.DiscrepancyStatus) error {
	return m.updateDiscrepancy(discrepancyID, actor, expectedStatus, actionInvestigation,
		func(d *models.Discrepancy) {
			d.Status = models.DiscrepancyInvestigating
		})
}

// ResolveDiscrepancy resolves a discrepancy with auditor notes and an
// optional override value. The derived severity and the underlying line
// items are never altered.
func (m *Manager) ResolveDiscrepancy(discrepancyID, actor, notes string, overrideValue *decimal.Decimal, expectedStatus models.DiscrepancyStatus) error {
	return m.updateDiscrepancy(discrepancyID, actor, expectedStatus, actionResolved,
		func(d *models.Discrepancy) {
			now := time.Now().UTC()
			d.Status = models.DiscrepancyResolved
			d.ResolutionNotes = notes
			d.OverrideValue = overrideValue
			d.ResolvedAt = &now
		})
}

func (m *Manager) updateDiscrepancy(discrepancyID, actor string, expectedStatus models.DiscrepancyStatus, action string, mutate func(*models.Discrepancy)) error {
	sessionID, err := m.store.SessionForDiscrepancy(discrepancyID)
	if err != nil {
		return err
	}

	var after models.DiscrepancyStatus

	err = m.store.Update(sessionID, func(s *models.Session) error {
		if s.State != models.SessionValidated {
			return engineerrors.SessionStateError(sessionID, string(s.State), string(models.SessionValidated))
		}

		d := s.FindDiscrepancy(discrepancyID)
		if d == nil {
			return engineerrors.RecordNotFoundError("discrepancy", discrepancyID)
		}

		if d.Status != expectedStatus {
			return engineerrors.ConflictError(discrepancyID, string(expectedStatus), string(d.Status))
		}

		mutate(d)
		after = d.Status
		return nil
	})
	if err != nil {
		return err
	}

	m.trail.Record(sessionID, discrepancyID, action, actor, string(expectedStatus), string(after), "")
	return nil
}

// CompleteSession freezes a VALIDATED session. It fails while any CRITICAL
// discrepancy remains OPEN or INVESTIGATING.
func (m *Manager) CompleteSession(sessionID string) error {
	err := m.store.Update(sessionID, func(s *models.Session) error {
		if s.State != models.SessionValidated {
			return engineerrors.SessionStateError(sessionID, string(s.State), string(models.SessionValidated))
		}

		unresolved := 0
		for _, d := range s.Discrepancies {
			if d.Severity == models.SeverityCritical && d.Status != models.DiscrepancyResolved {
				unresolved++
			}
		}
		if unresolved > 0 {
			return engineerrors.UnresolvedCriticalDiscrepancyError(sessionID, unresolved)
		}

		now := time.Now().UTC()
		s.State = models.SessionCompleted
		s.CompletedAt = &now
		return nil
	})
	if err != nil {
		return err
	}

	m.trail.Record(sessionID, "", actionSessionCompleted, models.SystemActor,
		string(models.SessionValidated), string(models.SessionCompleted), "")

	m.logger.WithField("session_id", sessionID).Info("Session completed")
	return nil
}

// HealthScore returns the health score of the latest completed session for
// the (property, period) pair
func (m *Manager) HealthScore(propertyID, periodID string) (int, error) {
	session, err := m.store.LatestCompleted(propertyID, periodID)
	if err != nil {
		return 0, err
	}

	if session.HealthScore == nil {
		return 0, engineerrors.InternalError("health score lookup",
			nil).WithContext("session_id", session.ID)
	}

	return *session.HealthScore, nil
}
