package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"property-reconciliation-engine/internal/provider"
	"property-reconciliation-engine/internal/reporter"
	"property-reconciliation-engine/internal/rules"
	"property-reconciliation-engine/internal/session"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the run command
var (
	lineItemsFile string
	rulesFile     string
	propertyID    string
	periodID      string
	outputFormat  string
	outputFile    string
	complete      bool
	showAudit     bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a reconciliation session over a line item snapshot",
	Long: `Run creates a session for the given property and period, fetches the
line items from a JSON snapshot file, executes every matching rule, and
reports the resulting matches, discrepancies, and health score.

The session is left in the VALIDATED state so findings can be reviewed;
pass --complete to finalize it immediately (this fails while any CRITICAL
discrepancy remains unresolved).

Examples:
  # Run with the built-in rule catalog
  reconengine run --line-items items.json --property bldg-7 --period 2024-Q4

  # Custom rules, JSON report written to a file
  reconengine run --line-items items.json --rules rules.json \
    --property bldg-7 --period 2024-Q4 \
    --output-format json --output-file report.json

  # Finalize in one step when findings need no review
  reconengine run --line-items items.json --property bldg-7 --period 2024-Q4 --complete`,

	PreRunE: validateRunFlags,
	RunE:    runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	// Required flags
	runCmd.Flags().StringVarP(&lineItemsFile, "line-items", "l", "", "path to line item snapshot JSON file (required)")
	runCmd.Flags().StringVarP(&propertyID, "property", "p", "", "property identifier (required)")
	runCmd.Flags().StringVar(&periodID, "period", "", "reporting period identifier (required)")

	// Optional flags
	runCmd.Flags().StringVarP(&rulesFile, "rules", "r", "", "path to rule catalog JSON file (default: built-in catalog)")
	runCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	runCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	runCmd.Flags().BoolVar(&complete, "complete", false, "complete the session after a clean run")
	runCmd.Flags().BoolVar(&showAudit, "audit", false, "append the audit trail to the report")

	runCmd.MarkFlagRequired("line-items")
	runCmd.MarkFlagRequired("property")
	runCmd.MarkFlagRequired("period")

	// Bind flags to viper
	viper.BindPFlag("line-items", runCmd.Flags().Lookup("line-items"))
	viper.BindPFlag("rules", runCmd.Flags().Lookup("rules"))
	viper.BindPFlag("property", runCmd.Flags().Lookup("property"))
	viper.BindPFlag("period", runCmd.Flags().Lookup("period"))
	viper.BindPFlag("output-format", runCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", runCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("complete", runCmd.Flags().Lookup("complete"))
	viper.BindPFlag("audit", runCmd.Flags().Lookup("audit"))
}

func validateRunFlags(cmd *cobra.Command, args []string) error {
	// Viper values allow overrides from the config file and environment
	lineItemsFile = viper.GetString("line-items")
	rulesFile = viper.GetString("rules")
	propertyID = viper.GetString("property")
	periodID = viper.GetString("period")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")
	complete = viper.GetBool("complete")
	showAudit = viper.GetBool("audit")

	if lineItemsFile == "" {
		return fmt.Errorf("line-items is required")
	}
	if propertyID == "" {
		return fmt.Errorf("property is required")
	}
	if periodID == "" {
		return fmt.Errorf("period is required")
	}

	if err := validateFileExists(lineItemsFile, "line item snapshot file"); err != nil {
		return err
	}
	if rulesFile != "" {
		if err := validateFileExists(rulesFile, "rule catalog file"); err != nil {
			return err
		}
	}

	if !reporter.OutputFormat(outputFormat).IsValid() {
		return fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", outputFormat)
	}

	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory does not exist: %s", dir)
			}
		}
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("%s is not readable: %w", description, err)
	}
	file.Close()

	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	handler := NewCLIErrorHandler()

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Starting reconciliation...\n")
		fmt.Fprintf(os.Stderr, "Line items: %s\n", lineItemsFile)
		fmt.Fprintf(os.Stderr, "Property: %s  Period: %s\n", propertyID, periodID)
		if rulesFile != "" {
			fmt.Fprintf(os.Stderr, "Rules: %s\n", rulesFile)
		}
	}

	var registry *rules.Registry
	var err error
	if rulesFile != "" {
		registry, err = rules.LoadRules(rulesFile)
	} else {
		registry, err = rules.LoadDefaultRegistry()
	}
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	lineItems, err := provider.NewSnapshotProvider(lineItemsFile)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	manager, err := session.NewManager(lineItems, registry, nil)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	sess, err := manager.CreateSession(propertyID, periodID, "standard")
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	summary, err := manager.RunReconciliation(ctx, sess.ID)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	if complete {
		if err := manager.CompleteSession(sess.ID); err != nil {
			os.Exit(handler.HandleError(err))
		}
	}

	sess, err = manager.GetSession(sess.ID)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	reportConfig := reporter.DefaultReportConfig()
	reportConfig.Format = reporter.OutputFormat(outputFormat)
	reportConfig.IncludeAuditTrail = showAudit

	generator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return fmt.Errorf("failed to create report generator: %w", err)
	}

	var output *os.File
	if outputFile != "" {
		output, err = os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer output.Close()
	} else {
		output = os.Stdout
	}

	if err := generator.GenerateReport(sess, output); err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if showAudit && outputFormat == "console" {
		fmt.Fprintf(output, "\n=== AUDIT TRAIL ===\n")
		if err := generator.GenerateAuditReport(manager.Trail().EntriesFor(sess.ID), output); err != nil {
			return fmt.Errorf("failed to generate audit report: %w", err)
		}
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "\nReconciliation completed.\n")
		fmt.Fprintf(os.Stderr, "Found %d matches and %d discrepancies.\n",
			summary.Matches, summary.Discrepancies)
		fmt.Fprintf(os.Stderr, "Health score: %d/100\n", summary.HealthScore)
		if len(summary.SkippedRules) > 0 {
			fmt.Fprintf(os.Stderr, "Skipped %d rules:\n", len(summary.SkippedRules))
			for _, skip := range summary.SkippedRules {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", skip.RuleName, skip.Reason)
			}
		}
	}

	return nil
}
