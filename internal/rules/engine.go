// Package rules provides the CEL-Go based alert policy engine. Policies
// are boolean or numeric expressions over a computed condition score and
// its factor breakdown; a truthy result raises an alert for the asset.
package rules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/cityinfra/heron/internal/domain"
)

// Engine compiles and evaluates alert policies.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    *domain.AlertRule
	Program cel.Program
}

// NewEngine creates an alert policy engine.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("asset", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("age", cel.DoubleType),
		cel.Variable("frequency", cel.DoubleType),
		cel.Variable("severity", cel.DoubleType),
		cel.Variable("complaint", cel.DoubleType),
		cel.Variable("region", cel.StringType),
		cel.Variable("asset_type", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles a rule without mutating the loaded set.
func (e *Engine) ValidateRule(rule *domain.AlertRule) error {
	if rule == nil {
		return fmt.Errorf("alert rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(rule)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(rule *domain.AlertRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}

	e.compiledRules[rule.ID] = compiled

	return nil
}

// LoadRules compiles and loads the enabled rules.
func (e *Engine) LoadRules(rules []*domain.AlertRule) error {
	for _, r := range rules {
		if r.Enabled {
			if err := e.LoadRule(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules swaps the loaded set atomically. Used for hot reload from
// the database.
func (e *Engine) ReloadRules(rules []*domain.AlertRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, r := range rules {
		if !r.Enabled {
			continue
		}

		compiled, err := e.compileRule(r)
		if err != nil {
			return err
		}
		newRules[r.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the currently loaded rules.
func (e *Engine) GetLoadedRules() []*domain.AlertRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.AlertRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Rule)
	}
	return rules
}

// EvaluateScores applies every loaded policy to every condition score.
// Results are ordered by rule ID then asset ID so repeated runs over the
// same scores produce identical output.
func (e *Engine) EvaluateScores(scores []domain.ConditionScore) []domain.AlertResult {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, r := range e.compiledRules {
		rules = append(rules, r)
	}
	e.mu.RUnlock()

	if len(rules) == 0 || len(scores) == 0 {
		return nil
	}

	sort.Slice(rules, func(i, j int) bool { return rules[i].Rule.ID < rules[j].Rule.ID })

	var results []domain.AlertResult
	for _, rule := range rules {
		for i := range scores {
			res := evaluateRule(rule, &scores[i])
			if res.Triggered {
				results = append(results, res)
			}
		}
	}
	return results
}

func evaluateRule(rule *CompiledRule, score *domain.ConditionScore) domain.AlertResult {
	result := domain.AlertResult{
		RuleID:   rule.Rule.ID,
		RuleName: rule.Rule.Name,
		AssetID:  score.AssetID,
		Value:    score.Score,
	}

	activation := map[string]any{
		"asset": map[string]any{
			"id":     score.AssetID,
			"type":   string(score.AssetType),
			"region": score.Region,
			"score":  score.Score,
		},
		"score":      score.Score,
		"age":        score.Breakdown.Age,
		"frequency":  score.Breakdown.Frequency,
		"severity":   score.Breakdown.Severity,
		"complaint":  score.Breakdown.Complaint,
		"region":     score.Region,
		"asset_type": string(score.AssetType),
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		result.Reason = fmt.Sprintf("evaluation error: %v", err)
		return result
	}

	result.Triggered = isTruthy(out, rule.Rule.Threshold)
	if result.Triggered {
		result.Reason = rule.Rule.Description
	}

	return result
}

// isTruthy interprets the policy output. Booleans trigger directly;
// numeric outputs trigger when they meet the rule's threshold.
func isTruthy(val ref.Val, threshold float64) bool {
	switch v := val.(type) {
	case types.Bool:
		return bool(v)
	case types.Double:
		return float64(v) >= threshold
	case types.Int:
		return float64(v) >= threshold
	default:
		return false
	}
}

// Close clears the loaded rule set.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(rule *domain.AlertRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", rule.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{
		Rule:    rule,
		Program: program,
	}, nil
}
