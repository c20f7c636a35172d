package cmd

import (
	"fmt"
	"os"

	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/internal/rules"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var validateRulesFile string

// rulesCmd groups rule catalog subcommands
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate rule catalogs",
}

// rulesValidateCmd statically checks a rule catalog file
var rulesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a rule catalog file without running it",
	Long: `Validate parses a rule catalog JSON file, checks every rule's fields,
account patterns, and formulas, and reports the result. Exit code is
non-zero when the catalog is invalid.

Examples:
  reconengine rules validate --rules rules.json`,
	RunE: runRulesValidate,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesValidateCmd)

	rulesValidateCmd.Flags().StringVarP(&validateRulesFile, "rules", "r", "", "path to rule catalog JSON file (required)")
	rulesValidateCmd.MarkFlagRequired("rules")
}

func runRulesValidate(cmd *cobra.Command, args []string) error {
	if err := validateFileExists(validateRulesFile, "rule catalog file"); err != nil {
		return err
	}

	registry, err := rules.LoadRules(validateRulesFile)
	if err != nil {
		handler := NewCLIErrorHandler()
		os.Exit(handler.HandleError(err))
	}

	fmt.Printf("Rule catalog is valid: %d rules\n", registry.Len())

	if viper.GetBool("verbose") {
		for _, strategy := range []models.MatchStrategy{
			models.StrategyExact, models.StrategyFuzzy, models.StrategyCalculated, models.StrategyInferred,
		} {
			tier := registry.ByStrategy(strategy)
			if len(tier) == 0 {
				continue
			}
			fmt.Printf("\n%s (%d):\n", strategy, len(tier))
			for _, rule := range tier {
				fmt.Printf("  %-40s %s\n", rule.Name, rule.Category)
			}
		}
	}

	return nil
}
