package orchestrator

import (
	"context"
	"time"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
	"github.com/innovabiz/iam-fraud-core/internal/rules"
	"github.com/innovabiz/iam-fraud-core/internal/signals"
)

// FuncAgent adapts a plain function into an Agent, the simplest way to
// wire an existing module (C2, C3) into the fan-out without a dedicated
// type per agent.
type FuncAgent struct {
	name string
	fn   func(ctx context.Context, agentCtx *AgentContext) error
}

// NewFuncAgent builds an Agent from a name and a run function.
func NewFuncAgent(name string, fn func(ctx context.Context, agentCtx *AgentContext) error) FuncAgent {
	return FuncAgent{name: name, fn: fn}
}

// Name implements Agent.
func (f FuncAgent) Name() string { return f.name }

// Run implements Agent.
func (f FuncAgent) Run(ctx context.Context, agentCtx *AgentContext) error {
	return f.fn(ctx, agentCtx)
}

// NewRulesAgent wraps the C3 rule engine as an orchestrator agent,
// recording the engine's already-0-1 score (§4.3) as a risk factor and
// each triggered rule as an indicator.
func NewRulesAgent(engine *rules.Engine, ruleSet []rules.Rule, tenantID, market string, ec rules.EvalContext) Agent {
	return NewFuncAgent("rules", func(ctx context.Context, agentCtx *AgentContext) error {
		result := engine.Run(ctx, ruleSet, tenantID, market, ec)
		agentCtx.AddRiskFactor(domain.RiskSignal{
			Type:       "rules",
			Value:      result.RiskScore,
			Confidence: 1,
			Timestamp:  time.Now(),
		})
		for _, triggered := range result.Triggered {
			agentCtx.AddIndicator(triggered.RuleID)
		}
		agentCtx.AddInsight("rules_triggered_count", result.TotalTriggered)
		return nil
	})
}

// NewBehavioralAgent wraps the C2 signal registry as an orchestrator
// agent, running every registered processor against req and folding its
// signals into the shared context.
func NewBehavioralAgent(registry *signals.Registry, req signals.Request) Agent {
	return NewFuncAgent("behavioral", func(ctx context.Context, agentCtx *AgentContext) error {
		for _, name := range registry.Names() {
			proc, ok := registry.Get(name)
			if !ok {
				continue
			}
			sigs, err := proc.Process(ctx, req)
			if err != nil {
				continue // one processor failing doesn't fail the agent (P8-style isolation)
			}
			for _, s := range sigs {
				agentCtx.AddRiskFactor(s)
			}
		}
		return nil
	})
}

// MLScorer is the pluggable ML-model contract, mirroring the teacher's
// mlProcessor.ProcessRequest delegate in adaptive_fraud_engine.go: when
// absent, the ML agent contributes nothing rather than failing.
type MLScorer interface {
	Score(ctx context.Context, userID string) (risk float64, indicators []string, err error)
}

// NewMLAgent wraps an MLScorer. Passing a nil scorer yields an agent
// that immediately returns without contributing, so the orchestrator's
// roster can always include "ml" even where no model is deployed yet.
func NewMLAgent(scorer MLScorer) Agent {
	return NewFuncAgent("ml", func(ctx context.Context, agentCtx *AgentContext) error {
		if scorer == nil {
			return nil
		}
		risk, indicators, err := scorer.Score(ctx, agentCtx.UserID)
		if err != nil {
			return err
		}
		agentCtx.AddRiskFactor(domain.RiskSignal{Type: "ml_model", Value: risk, Confidence: 1, Timestamp: time.Now()})
		for _, ind := range indicators {
			agentCtx.AddIndicator(ind)
		}
		return nil
	})
}
