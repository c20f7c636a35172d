// Package engine runs the ordered battery of matching strategies over a
// session's line item snapshot and turns strategy outcomes into match and
// discrepancy records.
package engine

import (
	"context"
	"fmt"

	"property-reconciliation-engine/internal/classify"
	"property-reconciliation-engine/internal/matcher"
	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/internal/rules"
	"property-reconciliation-engine/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Config holds orchestration options
type Config struct {
	// ParallelRules evaluates the rules of one strategy tier concurrently.
	// Rules operate on disjoint rule-scoped claim sets, so this is safe;
	// tiers always join before the next tier starts.
	ParallelRules bool

	// MaxConcurrency caps concurrent rule evaluations within a tier
	MaxConcurrency int
}

// DefaultConfig returns the default orchestration options
func DefaultConfig() *Config {
	return &Config{
		ParallelRules:  true,
		MaxConcurrency: 4,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max concurrency must be positive, got %d", c.MaxConcurrency)
	}
	return nil
}

// RuleSkip records a rule that could not be evaluated and why
type RuleSkip struct {
	RuleName string `json:"ruleName"`
	Reason   string `json:"reason"`
}

// Result is the full output of one orchestrated run
type Result struct {
	Matches         []*models.Match
	Discrepancies   []*models.Discrepancy
	Skips           []RuleSkip
	RuleEvaluations int
}

// Orchestrator executes the matching strategies in priority order over the
// candidate universe. Cheaper, higher-certainty strategies claim obvious
// matches first; later tiers only see what remains, which keeps results
// deterministic and reproducible for identical inputs.
type Orchestrator struct {
	strategies []matcher.Strategy
	classifier *classify.Classifier
	config     *Config
	logger     logger.Logger
}

// NewOrchestrator creates an orchestrator with the given strategy
// configuration. Nil arguments fall back to defaults.
func NewOrchestrator(matchingConfig *matcher.MatchingConfig, config *Config) (*Orchestrator, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if matchingConfig == nil {
		matchingConfig = matcher.DefaultMatchingConfig()
	}

	if err := matchingConfig.Validate(); err != nil {
		return nil, err
	}

	return &Orchestrator{
		strategies: matcher.Strategies(matchingConfig),
		classifier: classify.NewDefaultClassifier(),
		config:     config,
		logger:     logger.WithComponent("matching_orchestrator"),
	}, nil
}

// ruleOutcome pairs a rule with the outcomes its strategy produced
type ruleOutcome struct {
	rule     *rules.MatchRule
	outcomes []*matcher.Outcome
	err      error
}

// deferredOutcome is an exact-tier fall-through pair, revisited after all
// tiers complete
type deferredOutcome struct {
	rule    *rules.MatchRule
	outcome *matcher.Outcome
}

// Run evaluates every registry rule over the snapshot, tier by tier.
// Cancellation is honored at tier boundaries only: a cancelled run discards
// the partial tier rather than leaving inconsistent claims behind.
func (o *Orchestrator) Run(ctx context.Context, snapshot []*models.LineItem, registry *rules.Registry) (*Result, error) {
	result := &Result{}
	claimed := make(map[string]bool)
	var deferred []deferredOutcome

	for _, strategy := range o.strategies {
		if err := ctx.Err(); err != nil {
			// Partial tier results were never merged; completed tiers stay
			// committed for post-mortem inspection.
			o.logger.WithField("tier", strategy.Name().String()).Warn("Run cancelled at tier boundary")
			result.RuleEvaluations = len(result.Matches) + len(result.Discrepancies)
			return result, err
		}

		tierRules := registry.ByStrategy(strategy.Name())
		if len(tierRules) == 0 {
			continue
		}

		o.logger.WithFields(logger.Fields{
			"tier":       strategy.Name().String(),
			"rule_count": len(tierRules),
		}).Debug("Evaluating strategy tier")

		tierResults := o.evaluateTier(ctx, strategy, tierRules, snapshot, claimed)

		// Merge in rule load order so the outcome stream is deterministic
		// regardless of evaluation concurrency.
		for _, tr := range tierResults {
			if tr.err != nil {
				// A single faulty rule never aborts the run.
				o.logger.WithError(tr.err).WithField("rule", tr.rule.Name).Warn("Rule evaluation failed, skipping")
				result.Skips = append(result.Skips, RuleSkip{RuleName: tr.rule.Name, Reason: tr.err.Error()})
				continue
			}

			for _, outcome := range tr.outcomes {
				o.apply(result, tr.rule, strategy.Name(), outcome, claimed, &deferred)
			}
		}
	}

	// Exact-tier fall-throughs become discrepancies only if nothing claimed
	// their items in a later tier.
	for _, d := range deferred {
		if o.anyClaimed(d.outcome.Participants, claimed) {
			continue
		}

		severity := o.classifier.Severity(d.rule, d.outcome.Difference, d.outcome.NormalizedVariance)
		discrepancy := models.NewDiscrepancy(d.rule.Name, models.StrategyExact,
			participantIDs(d.outcome.Participants), d.outcome.Difference, d.outcome.NormalizedVariance, severity)
		result.Discrepancies = append(result.Discrepancies, discrepancy)
	}

	result.RuleEvaluations = len(result.Matches) + len(result.Discrepancies)

	o.logger.WithFields(logger.Fields{
		"matches":       len(result.Matches),
		"discrepancies": len(result.Discrepancies),
		"skipped_rules": len(result.Skips),
	}).Info("Orchestrated run complete")

	return result, nil
}

// evaluateTier runs a tier's rules, concurrently when configured. Each rule
// owns its candidate set, so rules never contend; results are collected by
// index to preserve rule order.
func (o *Orchestrator) evaluateTier(
	ctx context.Context,
	strategy matcher.Strategy,
	tierRules []*rules.MatchRule,
	snapshot []*models.LineItem,
	claimed map[string]bool,
) []ruleOutcome {

	results := make([]ruleOutcome, len(tierRules))

	if !o.config.ParallelRules || len(tierRules) == 1 {
		for i, rule := range tierRules {
			set := o.buildCandidateSet(rule, strategy.Name(), snapshot, claimed)
			outcomes, err := strategy.Evaluate(set, rule)
			results[i] = ruleOutcome{rule: rule, outcomes: outcomes, err: err}
		}
		return results
	}

	group, _ := errgroup.WithContext(ctx)
	group.SetLimit(o.config.MaxConcurrency)

	for i, rule := range tierRules {
		i, rule := i, rule
		group.Go(func() error {
			set := o.buildCandidateSet(rule, strategy.Name(), snapshot, claimed)
			outcomes, err := strategy.Evaluate(set, rule)
			results[i] = ruleOutcome{rule: rule, outcomes: outcomes, err: err}
			return nil
		})
	}

	// Evaluation errors are carried per rule, never through the group.
	_ = group.Wait()

	return results
}

// buildCandidateSet selects the rule's source and target pools. Only the
// inferred tier excludes items already claimed by earlier tiers: it is a
// fallback for the unclaimed remainder, while earlier tiers may reuse an
// item across different rules.
func (o *Orchestrator) buildCandidateSet(
	rule *rules.MatchRule,
	strategy models.MatchStrategy,
	snapshot []*models.LineItem,
	claimed map[string]bool,
) *matcher.CandidateSet {

	excludeClaimed := strategy == models.StrategyInferred

	filter := func(pattern rules.AccountPattern) []*models.LineItem {
		var selected []*models.LineItem
		for _, item := range pattern.Select(snapshot) {
			if excludeClaimed && claimed[item.ID] {
				continue
			}
			selected = append(selected, item)
		}
		return selected
	}

	set := &matcher.CandidateSet{
		Targets:  filter(rule.TargetPattern),
		Snapshot: snapshot,
	}

	if rule.SourcePattern != "" {
		set.Sources = filter(rule.SourcePattern)
	}

	return set
}

// apply folds one strategy outcome into the run result
func (o *Orchestrator) apply(
	result *Result,
	rule *rules.MatchRule,
	strategy models.MatchStrategy,
	outcome *matcher.Outcome,
	claimed map[string]bool,
	deferred *[]deferredOutcome,
) {
	switch outcome.Kind {
	case matcher.OutcomeMatch:
		match := models.NewMatch(rule.Name, strategy, participantIDs(outcome.Participants),
			outcome.Confidence, outcome.Difference)
		result.Matches = append(result.Matches, match)
		for _, item := range outcome.Participants {
			claimed[item.ID] = true
		}

	case matcher.OutcomeDiscrepancy:
		severity := o.classifier.Severity(rule, outcome.Difference, outcome.NormalizedVariance)
		discrepancy := models.NewDiscrepancy(rule.Name, strategy, participantIDs(outcome.Participants),
			outcome.Difference, outcome.NormalizedVariance, severity)
		discrepancy.Annotation = outcome.Annotation
		result.Discrepancies = append(result.Discrepancies, discrepancy)

	case matcher.OutcomeDeferred:
		*deferred = append(*deferred, deferredOutcome{rule: rule, outcome: outcome})

	case matcher.OutcomeSkipped:
		result.Skips = append(result.Skips, RuleSkip{RuleName: rule.Name, Reason: outcome.Reason})
	}
}

// anyClaimed reports whether any participant was claimed by a match
func (o *Orchestrator) anyClaimed(items []*models.LineItem, claimed map[string]bool) bool {
	for _, item := range items {
		if claimed[item.ID] {
			return true
		}
	}
	return false
}

func participantIDs(items []*models.LineItem) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}
