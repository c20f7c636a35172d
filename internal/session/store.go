package session

import (
	"sort"
	"sync"

	"property-reconciliation-engine/internal/models"
	engineerrors "property-reconciliation-engine/pkg/errors"
)

// Store is the in-memory session repository. It enforces the
// one-active-session-per-(property,period) invariant and indexes match and
// discrepancy IDs back to their owning session so auditor actions need only
// a record ID.
type Store struct {
	mu               sync.RWMutex
	sessions         map[string]*models.Session
	activeByPair     map[string]string
	matchIndex       map[string]string
	discrepancyIndex map[string]string
}

// NewStore creates an empty session store
func NewStore() *Store {
	return &Store{
		sessions:         make(map[string]*models.Session),
		activeByPair:     make(map[string]string),
		matchIndex:       make(map[string]string),
		discrepancyIndex: make(map[string]string),
	}
}

// Create registers a new session, failing when an active (non-terminal)
// session already exists for the (property, period) pair
func (s *Store) Create(session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, exists := s.activeByPair[session.PairKey()]; exists {
		return engineerrors.DuplicateSessionError(session.PropertyID, session.PeriodID, existingID)
	}

	s.sessions[session.ID] = session
	s.activeByPair[session.PairKey()] = session.ID
	return nil
}

// Get returns an independent snapshot of the session with the given ID.
// Readers never receive the live session; all mutations go through Update.
func (s *Store) Get(sessionID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, engineerrors.SessionNotFoundError(sessionID)
	}
	return session.Snapshot(), nil
}

// Update applies fn to the session under the store lock. When the session
// reaches a terminal state the pair's active slot is released, admitting a
// future session for the same (property, period).
func (s *Store) Update(sessionID string, fn func(*models.Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return engineerrors.SessionNotFoundError(sessionID)
	}

	if err := fn(session); err != nil {
		return err
	}

	if session.State.IsTerminal() {
		if s.activeByPair[session.PairKey()] == sessionID {
			delete(s.activeByPair, session.PairKey())
		}
	}

	s.indexRecords(session)
	return nil
}

// indexRecords refreshes the record-to-session indexes after a mutation
func (s *Store) indexRecords(session *models.Session) {
	for _, m := range session.Matches {
		s.matchIndex[m.ID] = session.ID
	}
	for _, d := range session.Discrepancies {
		s.discrepancyIndex[d.ID] = session.ID
	}
}

// SessionForMatch returns the ID of the session owning the match
func (s *Store) SessionForMatch(matchID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessionID, exists := s.matchIndex[matchID]
	if !exists {
		return "", engineerrors.RecordNotFoundError("match", matchID)
	}
	return sessionID, nil
}

// SessionForDiscrepancy returns the ID of the session owning the discrepancy
func (s *Store) SessionForDiscrepancy(discrepancyID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessionID, exists := s.discrepancyIndex[discrepancyID]
	if !exists {
		return "", engineerrors.RecordNotFoundError("discrepancy", discrepancyID)
	}
	return sessionID, nil
}

// LatestCompleted returns the most recently completed session for the
// (property, period) pair, or an error if none exists
func (s *Store) LatestCompleted(propertyID, periodID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var completed []*models.Session
	for _, session := range s.sessions {
		if session.PropertyID == propertyID && session.PeriodID == periodID &&
			session.State == models.SessionCompleted {
			completed = append(completed, session)
		}
	}

	if len(completed) == 0 {
		return nil, engineerrors.SessionNotFoundError(propertyID + "|" + periodID).
			WithSuggestion("complete a reconciliation session for this property and period first")
	}

	sort.Slice(completed, func(i, j int) bool {
		return completed[i].CompletedAt.After(*completed[j].CompletedAt)
	})

	return completed[0].Snapshot(), nil
}
