// Package reporter renders reconciliation session results for human and
// programmatic consumers.
//
// Supported output formats:
//   - Console: tabular summary for terminal display
//   - JSON: structured data for programmatic consumption
//   - CSV: flat record export for spreadsheet applications
//
// A report always covers a single session. The console format leads with
// the session lifecycle state and health score, then breaks matches down
// by strategy and status and discrepancies by severity, and finally lists
// the individual records the configuration asks for.
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(nil)
//	err = generator.GenerateReport(session, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"property-reconciliation-engine/internal/models"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeMatches       bool `json:"include_matches"`
	IncludeDiscrepancies bool `json:"include_discrepancies"`
	IncludeAuditTrail    bool `json:"include_audit_trail"`

	// Console formatting options
	MaxItems int `json:"max_items"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:               FormatConsole,
		IncludeMatches:       true,
		IncludeDiscrepancies: true,
		IncludeAuditTrail:    false,
		MaxItems:             50,
		CSVDelimiter:         ',',
		CSVHeaders:           true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.MaxItems < 0 {
		return fmt.Errorf("max items must not be negative, got %d", c.MaxItems)
	}

	return nil
}

// ReportGenerator renders session reports in the configured format
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a report generator with the specified
// configuration. A nil configuration uses the defaults.
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{config: config}, nil
}

// GenerateReport renders the session to the writer in the configured format
func (rg *ReportGenerator) GenerateReport(session *models.Session, writer io.Writer) error {
	if session == nil {
		return fmt.Errorf("session cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(session, writer)
	case FormatJSON:
		return rg.generateJSONReport(session, writer)
	case FormatCSV:
		return rg.generateCSVReport(session, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// GenerateAuditReport renders the audit trail entries for a session
func (rg *ReportGenerator) GenerateAuditReport(entries []models.AuditEntry, writer io.Writer) error {
	if rg.config.Format == FormatJSON {
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)
	}

	fmt.Fprintf(writer, "%-27s %-24s %-12s %-15s %-15s %s\n",
		"TIMESTAMP", "ACTION", "ACTOR", "BEFORE", "AFTER", "TARGET")
	for _, entry := range entries {
		fmt.Fprintf(writer, "%-27s %-24s %-12s %-15s %-15s %s\n",
			entry.Timestamp.Format(time.RFC3339),
			entry.Action, entry.Actor, entry.BeforeStatus, entry.AfterStatus, entry.TargetID)
	}
	return nil
}

func (rg *ReportGenerator) generateConsoleReport(session *models.Session, writer io.Writer) error {
	fmt.Fprintf(writer, "RECONCILIATION SESSION REPORT\n")
	fmt.Fprintf(writer, "Session:  %s\n", session.ID)
	fmt.Fprintf(writer, "Property: %s  Period: %s\n", session.PropertyID, session.PeriodID)
	fmt.Fprintf(writer, "State:    %s\n", session.State)
	if session.HealthScore != nil {
		fmt.Fprintf(writer, "Health:   %d/100\n", *session.HealthScore)
	}
	fmt.Fprintf(writer, "Created:  %s\n", session.CreatedAt.Format(time.RFC3339))
	if session.CompletedAt != nil {
		fmt.Fprintf(writer, "Completed: %s\n", session.CompletedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(writer, "\n=== SUMMARY ===\n")
	rg.printSummaryTable(session, writer)

	if rg.config.IncludeMatches && len(session.Matches) > 0 {
		fmt.Fprintf(writer, "\n=== MATCHES ===\n")
		rg.printMatches(session.Matches, writer)
	}

	if rg.config.IncludeDiscrepancies && len(session.Discrepancies) > 0 {
		fmt.Fprintf(writer, "\n=== DISCREPANCIES ===\n")
		rg.printDiscrepancies(session.Discrepancies, writer)
	}

	return nil
}

func (rg *ReportGenerator) printSummaryTable(session *models.Session, writer io.Writer) {
	byStrategy := make(map[models.MatchStrategy]int)
	pending, approved, rejected := 0, 0, 0
	for _, m := range session.Matches {
		byStrategy[m.Strategy]++
		switch m.Status {
		case models.MatchPending:
			pending++
		case models.MatchApproved:
			approved++
		case models.MatchRejected:
			rejected++
		}
	}

	bySeverity := make(map[models.Severity]int)
	openDiscrepancies := 0
	for _, d := range session.Discrepancies {
		bySeverity[d.Severity]++
		if d.Status != models.DiscrepancyResolved {
			openDiscrepancies++
		}
	}

	fmt.Fprintf(writer, "Rule evaluations:   %d\n", session.RuleEvaluations)
	fmt.Fprintf(writer, "Rules skipped:      %d\n", session.RulesSkipped)
	fmt.Fprintf(writer, "Matches:            %d (approved %d, pending %d, rejected %d)\n",
		len(session.Matches), approved, pending, rejected)
	for _, strategy := range []models.MatchStrategy{
		models.StrategyExact, models.StrategyFuzzy, models.StrategyCalculated, models.StrategyInferred,
	} {
		if count := byStrategy[strategy]; count > 0 {
			fmt.Fprintf(writer, "  %-12s      %d\n", strategy, count)
		}
	}
	fmt.Fprintf(writer, "Discrepancies:      %d (%d unresolved)\n",
		len(session.Discrepancies), openDiscrepancies)
	for _, severity := range []models.Severity{
		models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow,
	} {
		if count := bySeverity[severity]; count > 0 {
			fmt.Fprintf(writer, "  %-12s      %d\n", severity, count)
		}
	}
}

func (rg *ReportGenerator) printMatches(matches []*models.Match, writer io.Writer) {
	fmt.Fprintf(writer, "%-38s %-12s %-10s %-8s %s\n",
		"RULE", "STRATEGY", "STATUS", "CONF", "DIFFERENCE")

	limit := len(matches)
	if rg.config.MaxItems > 0 && rg.config.MaxItems < limit {
		limit = rg.config.MaxItems
	}

	for _, m := range matches[:limit] {
		fmt.Fprintf(writer, "%-38s %-12s %-10s %-8d %s\n",
			truncate(m.RuleID, 38), m.Strategy, m.Status, m.Confidence, m.Difference.StringFixed(2))
	}

	if limit < len(matches) {
		fmt.Fprintf(writer, "... %d more\n", len(matches)-limit)
	}
}

func (rg *ReportGenerator) printDiscrepancies(discrepancies []*models.Discrepancy, writer io.Writer) {
	// Worst first, then by rule name for a stable layout
	sorted := make([]*models.Discrepancy, len(discrepancies))
	copy(sorted, discrepancies)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Severity.Rank() != sorted[j].Severity.Rank() {
			return sorted[i].Severity.Rank() > sorted[j].Severity.Rank()
		}
		return sorted[i].RuleID < sorted[j].RuleID
	})

	fmt.Fprintf(writer, "%-38s %-10s %-14s %-14s %s\n",
		"RULE", "SEVERITY", "STATUS", "DIFFERENCE", "NOTE")

	limit := len(sorted)
	if rg.config.MaxItems > 0 && rg.config.MaxItems < limit {
		limit = rg.config.MaxItems
	}

	for _, d := range sorted[:limit] {
		note := d.Annotation
		if d.ResolutionNotes != "" {
			note = d.ResolutionNotes
		}
		fmt.Fprintf(writer, "%-38s %-10s %-14s %-14s %s\n",
			truncate(d.RuleID, 38), d.Severity, d.Status, d.Difference.StringFixed(2), note)
	}

	if limit < len(sorted) {
		fmt.Fprintf(writer, "... %d more\n", len(sorted)-limit)
	}
}

func (rg *ReportGenerator) generateJSONReport(session *models.Session, writer io.Writer) error {
	filtered := *session
	if !rg.config.IncludeMatches {
		filtered.Matches = nil
	}
	if !rg.config.IncludeDiscrepancies {
		filtered.Discrepancies = nil
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(&filtered)
}

func (rg *ReportGenerator) generateCSVReport(session *models.Session, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter
	defer csvWriter.Flush()

	if rg.config.CSVHeaders {
		headers := []string{
			"Type", "ID", "Rule", "Strategy", "Status",
			"Severity", "Confidence", "Difference", "Line_Items", "Notes",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	if rg.config.IncludeMatches {
		for _, m := range session.Matches {
			record := []string{
				"Match", m.ID, m.RuleID, string(m.Strategy), string(m.Status),
				"", fmt.Sprintf("%d", m.Confidence), m.Difference.StringFixed(2),
				strings.Join(m.LineItemIDs, ";"), m.Notes,
			}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write match record: %w", err)
			}
		}
	}

	if rg.config.IncludeDiscrepancies {
		for _, d := range session.Discrepancies {
			notes := d.Annotation
			if d.ResolutionNotes != "" {
				notes = d.ResolutionNotes
			}
			record := []string{
				"Discrepancy", d.ID, d.RuleID, string(d.Strategy), string(d.Status),
				string(d.Severity), "", d.Difference.StringFixed(2),
				strings.Join(d.LineItemIDs, ";"), notes,
			}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write discrepancy record: %w", err)
			}
		}
	}

	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
