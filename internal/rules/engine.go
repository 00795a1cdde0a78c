package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/logging"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/metrics"
)

// Engine runs a rule set against an evaluation context, isolating any
// single rule's failure or timeout from the rest of the run (P8).
type Engine struct {
	perRuleTimeout time.Duration
	logger         *logging.Logger
}

// NewEngine returns an Engine with the spec's 10ms per-rule timeout
// unless overridden.
func NewEngine(logger *logging.Logger) *Engine {
	return &Engine{perRuleTimeout: 10 * time.Millisecond, logger: logger}
}

// WithPerRuleTimeout overrides the default 10ms budget.
func (e *Engine) WithPerRuleTimeout(d time.Duration) *Engine {
	e.perRuleTimeout = d
	return e
}

// Run evaluates every enabled rule applicable to tenantID/market against
// ec, isolating failures per rule (P8) and clamping the aggregate score
// to [0,1] per spec §4.3 (min(1, sum of triggered contributions)).
func (e *Engine) Run(ctx context.Context, ruleSet []Rule, tenantID, market string, ec EvalContext) Result {
	result := Result{TotalRules: len(ruleSet)}

	for _, rule := range ruleSet {
		if !rule.Enabled {
			continue
		}
		if rule.TenantID != "" && rule.TenantID != tenantID {
			continue
		}
		if rule.Market != "" && rule.Market != market {
			continue
		}

		triggered, err := e.evaluateWithTimeout(ctx, rule, ec)
		if err != nil {
			result.Errors = append(result.Errors, RuleError{RuleID: rule.ID, Err: err})
			if e.logger != nil {
				e.logger.WarnCtx(ctx, "rule evaluation failed, skipping")
			}
			continue
		}
		if triggered {
			result.Triggered = append(result.Triggered, TriggeredRule{
				RuleID:           rule.ID,
				Name:             rule.Name,
				Description:      rule.Description,
				RiskContribution: rule.RiskContribution,
			})
			result.RiskScore += rule.RiskContribution
		}
	}

	result.TotalTriggered = len(result.Triggered)
	if result.RiskScore > 1 {
		result.RiskScore = 1
	}
	if result.RiskScore < 0 {
		result.RiskScore = 0
	}
	return result
}

// evaluateWithTimeout runs a single rule's predicate in its own goroutine
// and enforces the per-rule timeout: a slow predicate is abandoned (its
// goroutine leaks until it happens to return, same tradeoff the teacher's
// generic try/except accepted for a slow eval) rather than allowed to
// stall the whole assessment.
func (e *Engine) evaluateWithTimeout(ctx context.Context, rule Rule, ec EvalContext) (triggered bool, err error) {
	start := time.Now()
	defer func() {
		metrics.RuleEvaluationDuration.WithLabelValues(rule.ID).Observe(time.Since(start).Seconds())
	}()

	ruleCtx, cancel := context.WithTimeout(ctx, e.perRuleTimeout)
	defer cancel()

	type outcome struct {
		result bool
		panicV interface{}
	}
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{panicV: r}
				return
			}
		}()
		ch <- outcome{result: rule.Condition.Evaluate(ruleCtx, ec)}
	}()

	select {
	case o := <-ch:
		if o.panicV != nil {
			return false, fmt.Errorf("rule %s panicked: %v", rule.ID, o.panicV)
		}
		return o.result, nil
	case <-ruleCtx.Done():
		metrics.RuleTimeoutsTotal.WithLabelValues(rule.ID).Inc()
		return false, fmt.Errorf("rule %s exceeded %s timeout", rule.ID, e.perRuleTimeout)
	}
}
