package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"property-reconciliation-engine/internal/models"
	engineerrors "property-reconciliation-engine/pkg/errors"
	"property-reconciliation-engine/pkg/logger"
)

// SnapshotFile is the on-disk shape of an extracted line item snapshot
type SnapshotFile struct {
	LineItems []*models.LineItem `json:"lineItems"`
}

// SnapshotProvider loads line items from a JSON snapshot file exported by
// the extraction pipeline. The file is read and validated once; fetches are
// served from memory.
type SnapshotProvider struct {
	static *StaticProvider
	path   string
}

// NewSnapshotProvider reads and validates the snapshot at the given path.
// Individual invalid records are collected and reported together rather than
// failing on the first one.
func NewSnapshotProvider(path string) (*SnapshotProvider, error) {
	log := logger.WithComponent("snapshot_provider")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, engineerrors.ConfigurationError(engineerrors.CodeMissingConfig, path, err).
			WithSuggestion("check that the line item snapshot file exists and is readable")
	}

	var file SnapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, engineerrors.ConfigurationError(engineerrors.CodeInvalidConfig, path, err).
			WithSuggestion("check the snapshot file for JSON syntax errors")
	}

	var invalid []string
	for i, item := range file.LineItems {
		if err := item.Validate(); err != nil {
			invalid = append(invalid, fmt.Sprintf("record %d: %v", i, err))
		}
	}

	if len(invalid) > 0 {
		return nil, engineerrors.ValidationError(engineerrors.CodeInvalidData, "lineItems", invalid, nil).
			WithSuggestion("fix or remove the invalid line item records").
			WithContext("invalid_count", len(invalid)).
			WithContext("path", path)
	}

	log.WithFields(logger.Fields{
		"path":       path,
		"item_count": len(file.LineItems),
	}).Info("Loaded line item snapshot")

	return &SnapshotProvider{
		static: NewStaticProvider(file.LineItems),
		path:   path,
	}, nil
}

// FetchLineItems returns the snapshot items for the (property, period) pair
func (p *SnapshotProvider) FetchLineItems(ctx context.Context, propertyID, periodID string) ([]*models.LineItem, error) {
	return p.static.FetchLineItems(ctx, propertyID, periodID)
}
