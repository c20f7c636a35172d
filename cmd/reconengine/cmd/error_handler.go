package cmd

import (
	"fmt"
	"os"

	"property-reconciliation-engine/pkg/errors"
	"property-reconciliation-engine/pkg/logger"

	"github.com/spf13/viper"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
	}
}

// HandleError prints a user-facing message for the error and returns the
// process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Error("Command failed")

	if engineErr, ok := errors.AsEngineError(err); ok {
		return h.handleEngineError(engineErr)
	}

	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleEngineError(err *errors.EngineError) int {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		fmt.Fprintf(os.Stderr, "\nContext:\n")
		for key, value := range err.Context {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", key, value)
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", err.Suggestion)
	}

	if help := h.categoryHelp(err.Category); help != "" {
		fmt.Fprintf(os.Stderr, "\n%s\n", help)
	}

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(os.Stderr, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	if os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: File not found\n")
		fmt.Fprintf(os.Stderr, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	}

	if os.IsPermission(err) {
		fmt.Fprintf(os.Stderr, "Error: Permission denied\n")
		fmt.Fprintf(os.Stderr, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	if !h.verbose {
		fmt.Fprintf(os.Stderr, "\nRun with --verbose for more details\n")
	}

	return 1
}

func (h *CLIErrorHandler) categoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryState:
		return `Session state help:
• Each (property, period) pair allows one active session at a time
• Auditor actions require the session to be in the VALIDATED state
• Resolve every CRITICAL discrepancy before completing the session`

	case errors.CategoryRule:
		return `Rule catalog help:
• Check rule names are unique and strategies are one of EXACT, FUZZY, CALCULATED, INFERRED
• Calculated rules require a formula; other strategies require a source pattern
• Account patterns use the form document_type:account_glob`

	case errors.CategoryValidation:
		return `Validation help:
• Check the line item snapshot for missing or malformed fields
• Amounts must parse as decimal numbers
• Run 'reconengine rules validate' to check the rule catalog separately`

	case errors.CategoryConcurrency:
		return `Concurrency help:
• Another actor changed the record since it was read
• Re-read the record and retry the action with its current status`

	case errors.CategoryConfiguration:
		return `Configuration help:
• Check the config file syntax and the RECONENGINE_* environment variables
• Run with --verbose to see which config file is in use`

	default:
		return ""
	}
}
