// Package orchestrator implements C10: a deadline-bounded, parallel
// fan-out across heterogeneous risk agents (rules, behavioural, ML),
// collecting their insights into a shared AgentContext and resolving a
// final verdict. Grounded on the shape of the teacher's
// agent_communication.go (many independently addressable "agents"
// feeding one coordinator) but replacing its gRPC/Kafka message-bus
// transport with a direct in-process fan-out via golang.org/x/sync's
// errgroup, since §4.10 describes a synchronous call-and-collect
// pattern rather than an asynchronous message exchange.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/logging"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/metrics"
)

// Verdict is the orchestrator's final decision surface.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
	VerdictReview  Verdict = "review"
)

// AgentContext is the shared state every agent contributes into, ported
// from the teacher's per-request aggregation of agent payloads into one
// FraudDetectionResult.
type AgentContext struct {
	UserID      string
	TenantID    string
	RegionCode  string
	Insights    map[string]interface{}
	RiskFactors []domain.RiskSignal
	Indicators  []string

	mu sync.Mutex
}

// AddInsight records a named observation from an agent.
func (c *AgentContext) AddInsight(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Insights == nil {
		c.Insights = make(map[string]interface{})
	}
	c.Insights[key] = value
}

// AddRiskFactor records a risk contribution from an agent.
func (c *AgentContext) AddRiskFactor(signal domain.RiskSignal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RiskFactors = append(c.RiskFactors, signal)
}

// AddIndicator records a qualitative flag (e.g. "device_unrecognized").
func (c *AgentContext) AddIndicator(indicator string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Indicators = append(c.Indicators, indicator)
}

// Agent is one pluggable risk contributor. Implementations must respect
// ctx cancellation: an agent that doesn't return before the shared
// deadline contributes nothing (§5, "missing agents yield no signals").
type Agent interface {
	Name() string
	Run(ctx context.Context, agentCtx *AgentContext) error
}

// Result is the orchestrator's output: the final verdict, its
// confidence, the aggregate risk, and which agents actually completed.
type Result struct {
	Verdict           Verdict
	DecisionConfidence float64
	TotalRisk         float64
	Completed         []string
	Context           *AgentContext
}

// Orchestrator runs a fixed agent roster against a shared deadline.
type Orchestrator struct {
	Agents    []Agent
	Deadline  time.Duration // default 2s, per a typical §5 external-call budget
	Threshold float64       // risk threshold; review/reject boundary
	Logger    *logging.Logger
}

// New returns an Orchestrator with the given agents and a threshold; a
// non-positive deadline is replaced with the 2s default.
func New(agents []Agent, deadline time.Duration, threshold float64, logger *logging.Logger) *Orchestrator {
	if deadline <= 0 {
		deadline = 2 * time.Second
	}
	return &Orchestrator{Agents: agents, Deadline: deadline, Threshold: threshold, Logger: logger}
}

// Run fans out to every agent under one shared deadline, then resolves
// the §4.10 verdict rule from the aggregated risk factors.
func (o *Orchestrator) Run(ctx context.Context, userID, tenantID, regionCode string) Result {
	agentCtx := &AgentContext{UserID: userID, TenantID: tenantID, RegionCode: regionCode}

	deadlineCtx, cancel := context.WithTimeout(ctx, o.Deadline)
	defer cancel()

	g, gCtx := errgroup.WithContext(deadlineCtx)
	var mu sync.Mutex
	var completed []string

	for _, a := range o.Agents {
		agent := a
		g.Go(func() error {
			start := time.Now()
			err := agent.Run(gCtx, agentCtx)
			metrics.OrchestratorAgentDuration.WithLabelValues(agent.Name()).Observe(time.Since(start).Seconds())
			if err != nil {
				if gCtx.Err() != nil {
					metrics.OrchestratorDeadlineExceededTotal.WithLabelValues(agent.Name()).Inc()
					o.Logger.WarnCtx(ctx, "agent missed shared deadline, contributing nothing")
				} else {
					o.Logger.WarnCtx(ctx, "agent returned an error, contributing nothing")
				}
				return nil // an agent failing never fails the whole fan-out
			}
			mu.Lock()
			completed = append(completed, agent.Name())
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // errors are swallowed per-agent above; Wait only joins goroutines

	totalRisk := aggregateRisk(agentCtx.RiskFactors)
	verdict, confidence := decide(totalRisk, o.Threshold)

	return Result{
		Verdict:            verdict,
		DecisionConfidence: confidence,
		TotalRisk:          totalRisk,
		Completed:          completed,
		Context:            agentCtx,
	}
}

// aggregateRisk averages confidence-weighted risk factors; an agent
// contributing nothing does not pull the average down, matching
// "missing agents yield no signals (not an error)" in §5.
func aggregateRisk(factors []domain.RiskSignal) float64 {
	if len(factors) == 0 {
		return 0
	}
	var weighted, totalWeight float64
	for _, f := range factors {
		weight := f.Confidence
		if weight <= 0 {
			weight = 1
		}
		weighted += f.Value * weight
		totalWeight += weight
	}
	if totalWeight == 0 {
		return 0
	}
	risk := weighted / totalWeight
	if risk < 0 {
		return 0
	}
	if risk > 1 {
		return 1
	}
	return risk
}

// decide implements §4.10's verdict rule exactly:
// approve if total_risk <= 0.7*threshold, reject if total_risk >
// threshold, review otherwise; confidence = 1-r, r, 0.5-|0.5-r|
// respectively.
func decide(r, threshold float64) (Verdict, float64) {
	switch {
	case r <= 0.7*threshold:
		return VerdictApprove, 1 - r
	case r > threshold:
		return VerdictReject, r
	default:
		return VerdictReview, 0.5 - abs(0.5-r)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
