package rules

import (
	"encoding/json"
	"fmt"
	"os"

	engineerrors "property-reconciliation-engine/pkg/errors"
	"property-reconciliation-engine/pkg/logger"

	"github.com/go-playground/validator/v10"
)

// ruleValidator checks struct tags on rule definitions before the semantic
// Validate pass runs
var ruleValidator = validator.New(validator.WithRequiredStructEnabled())

// RuleFile is the on-disk shape of a rule definition file
type RuleFile struct {
	Rules []*MatchRule `json:"rules" validate:"required,min=1,dive,required"`
}

// LoadRules reads a JSON rule definition file, validates every rule, and
// builds a registry from it
func LoadRules(path string) (*Registry, error) {
	log := logger.WithComponent("rule_loader")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, engineerrors.ConfigurationError(engineerrors.CodeMissingConfig, path, err).
			WithSuggestion("check that the rule definition file exists and is readable")
	}

	var file RuleFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, engineerrors.ConfigurationError(engineerrors.CodeInvalidConfig, path, err).
			WithSuggestion("check the rule file for JSON syntax errors")
	}

	if err := ruleValidator.Struct(&file); err != nil {
		return nil, engineerrors.ConfigurationError(engineerrors.CodeInvalidConfig, path,
			fmt.Errorf("rule file failed validation: %w", err))
	}

	log.WithFields(logger.Fields{
		"path":       path,
		"rule_count": len(file.Rules),
	}).Info("Loaded rule definitions")

	return NewRegistry(file.Rules)
}

// LoadDefaultRegistry builds a registry from the built-in rule catalog
func LoadDefaultRegistry() (*Registry, error) {
	return NewRegistry(DefaultRules())
}
