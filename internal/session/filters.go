package session

import (
	"property-reconciliation-engine/internal/models"
)

// MatchFilter narrows a match listing. Zero-value fields match everything;
// Limit of zero means no page cap.
type MatchFilter struct {
	Status   models.MatchStatus
	Strategy models.MatchStrategy
	RuleID   string
	Offset   int
	Limit    int
}

func (f MatchFilter) accepts(m *models.Match) bool {
	if f.Status != "" && m.Status != f.Status {
		return false
	}
	if f.Strategy != "" && m.Strategy != f.Strategy {
		return false
	}
	if f.RuleID != "" && m.RuleID != f.RuleID {
		return false
	}
	return true
}

// DiscrepancyFilter narrows a discrepancy listing
type DiscrepancyFilter struct {
	Status   models.DiscrepancyStatus
	Severity models.Severity
	Strategy models.MatchStrategy
	RuleID   string
	Offset   int
	Limit    int
}

func (f DiscrepancyFilter) accepts(d *models.Discrepancy) bool {
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	if f.Severity != "" && d.Severity != f.Severity {
		return false
	}
	if f.Strategy != "" && d.Strategy != f.Strategy {
		return false
	}
	if f.RuleID != "" && d.RuleID != f.RuleID {
		return false
	}
	return true
}

// ListMatches returns the matches of a session that pass the filter, in
// creation order, plus the total count before pagination.
func (m *Manager) ListMatches(sessionID string, filter MatchFilter) ([]*models.Match, int, error) {
	session, err := m.store.Get(sessionID)
	if err != nil {
		return nil, 0, err
	}

	var filtered []*models.Match
	for _, match := range session.Matches {
		if filter.accepts(match) {
			filtered = append(filtered, match)
		}
	}

	total := len(filtered)
	return paginate(filtered, filter.Offset, filter.Limit), total, nil
}

// ListDiscrepancies returns the discrepancies of a session that pass the
// filter, in creation order, plus the total count before pagination.
func (m *Manager) ListDiscrepancies(sessionID string, filter DiscrepancyFilter) ([]*models.Discrepancy, int, error) {
	session, err := m.store.Get(sessionID)
	if err != nil {
		return nil, 0, err
	}

	var filtered []*models.Discrepancy
	for _, d := range session.Discrepancies {
		if filter.accepts(d) {
			filtered = append(filtered, d)
		}
	}

	total := len(filtered)
	return paginate(filtered, filter.Offset, filter.Limit), total, nil
}

func paginate[T any](records []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(records) {
		return nil
	}

	page := records[offset:]
	if limit > 0 && limit < len(page) {
		page = page[:limit]
	}
	return page
}
