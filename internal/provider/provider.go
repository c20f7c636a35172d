// Package provider defines the engine's read-only view of the external line
// item store. The engine consumes already-extracted, already-validated line
// items; ingestion and table extraction live elsewhere.
package provider

import (
	"context"

	"property-reconciliation-engine/internal/models"
)

// LineItemProvider supplies the comparable line items for a
// (property, period) pair. Implementations must return a complete,
// already-fetched snapshot: the engine performs no I/O of its own during a
// run.
type LineItemProvider interface {
	FetchLineItems(ctx context.Context, propertyID, periodID string) ([]*models.LineItem, error)
}

// StaticProvider serves a fixed, pre-loaded snapshot. Used by tests and by
// callers that assemble line items themselves.
type StaticProvider struct {
	items []*models.LineItem
}

// NewStaticProvider creates a provider over the given items
func NewStaticProvider(items []*models.LineItem) *StaticProvider {
	return &StaticProvider{items: items}
}

// FetchLineItems returns the items belonging to the (property, period) pair
func (p *StaticProvider) FetchLineItems(_ context.Context, propertyID, periodID string) ([]*models.LineItem, error) {
	var selected []*models.LineItem
	for _, item := range p.items {
		if item.PropertyID == propertyID && item.PeriodID == periodID {
			selected = append(selected, item)
		}
	}
	return selected, nil
}
