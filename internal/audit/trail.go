// Package audit keeps the append-only log of every automated decision and
// human action taken against reconciliation sessions.
package audit

import (
	"math/rand"
	"sync"
	"time"

	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/pkg/logger"

	"github.com/oklog/ulid/v2"
)

// Trail is an in-memory append-only audit log. Entry IDs are ULIDs, so the
// log's lexical ID order is also its time order. Entries are copied on the
// way in and out; nothing handed to a caller can mutate the log.
type Trail struct {
	mu      sync.RWMutex
	entries []models.AuditEntry
	entropy *ulid.MonotonicEntropy
	logger  logger.Logger
}

// NewTrail creates an empty audit trail
func NewTrail() *Trail {
	return &Trail{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		logger:  logger.WithComponent("audit_trail"),
	}
}

// Record appends an entry for an action, filling in ID and timestamp.
// It returns the stored entry.
func (t *Trail) Record(sessionID, targetID, action, actor, beforeStatus, afterStatus, detail string) models.AuditEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	entry := models.AuditEntry{
		ID:           ulid.MustNew(ulid.Timestamp(now), t.entropy).String(),
		SessionID:    sessionID,
		TargetID:     targetID,
		Action:       action,
		Actor:        actor,
		BeforeStatus: beforeStatus,
		AfterStatus:  afterStatus,
		Detail:       detail,
		Timestamp:    now,
	}

	t.entries = append(t.entries, entry)

	t.logger.WithFields(logger.Fields{
		"session_id": sessionID,
		"action":     action,
		"actor":      actor,
	}).Debug("Audit entry recorded")

	return entry
}

// EntriesFor returns the entries for a session in append order
func (t *Trail) EntriesFor(sessionID string) []models.AuditEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var selected []models.AuditEntry
	for _, entry := range t.entries {
		if entry.SessionID == sessionID {
			selected = append(selected, entry)
		}
	}
	return selected
}

// Len returns the total number of entries in the trail
func (t *Trail) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
