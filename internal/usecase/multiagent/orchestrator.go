package multiagent

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"neuroguide/internal/domain"
	"neuroguide/internal/infra/tracer"
)

// Classifier produces a routing plan for a query.
type Classifier interface {
	Classify(ctx context.Context, query string) (domain.IntentClassification, RouteOutcome)
}

// AgentRunner executes a single agent.
type AgentRunner interface {
	Execute(ctx context.Context, agent domain.AgentType, actx domain.AgentContext) (domain.AgentOutput, error)
}

// Result is the outcome of one orchestrated turn.
type Result struct {
	FinalContent string                      `json:"content"`
	AgentOutputs []domain.AgentOutput        `json:"agentOutputs"`
	Intent       domain.IntentClassification `json:"intent"`
}

// Orchestrator drives router, agents, optional critic and synthesis.
type Orchestrator struct {
	router       Classifier
	runner       AgentRunner
	enableCritic bool
	logger       *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(router Classifier, runner AgentRunner, enableCritic bool, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{router: router, runner: runner, enableCritic: enableCritic, logger: logger}
}

// Run classifies the query, executes the planned agents strictly in order
// and synthesizes their outputs. Step i sees the outputs of steps before it.
// The first agent failure aborts the run.
func (o *Orchestrator) Run(ctx context.Context, query string, history []domain.ChatMessage) (*Result, error) {
	start := time.Now()
	ctx, span := tracer.StartSpan(ctx, "orchestrate.run",
		trace.WithAttributes(tracer.IntAttr("orchestrate.history", len(history))),
	)
	defer span.End()

	intent, outcome := o.router.Classify(ctx, query)
	if outcome.Fallback {
		o.logger.InfoContext(ctx, "using default routing plan", "reason", outcome.Reason)
	}

	actx := domain.AgentContext{
		UserQuery:           query,
		ConversationHistory: history,
		Intent:              &intent,
	}

	outputs := make([]domain.AgentOutput, 0, len(intent.AgentSequence)+1)
	for i, agent := range intent.AgentSequence {
		out, err := o.step(ctx, agent, actx.WithOutputs(outputs), i)
		if err != nil {
			tracer.RecordError(span, err)
			return nil, err
		}
		outputs = append(outputs, out)
	}

	if o.enableCritic && intent.RequiresMultipleAgents && len(outputs) > 0 {
		out, err := o.step(ctx, domain.AgentCritic, actx.WithOutputs(outputs), len(outputs))
		if err != nil {
			tracer.RecordError(span, err)
			return nil, err
		}
		outputs = append(outputs, out)
	}

	result := &Result{
		FinalContent: Synthesize(outputs),
		AgentOutputs: outputs,
		Intent:       intent,
	}

	span.SetAttributes(
		tracer.StringAttr("orchestrate.intent", string(intent.PrimaryIntent)),
		tracer.IntAttr("orchestrate.agents", len(outputs)),
	)
	tracer.SetOK(span)
	o.logger.InfoContext(ctx, "orchestration complete",
		"intent", intent.PrimaryIntent,
		"agents", len(outputs),
		"duration", time.Since(start),
	)
	return result, nil
}

func (o *Orchestrator) step(ctx context.Context, agent domain.AgentType, actx domain.AgentContext, index int) (domain.AgentOutput, error) {
	o.logger.DebugContext(ctx, "running agent", "agent", agent, "step", index)
	out, err := o.runner.Execute(ctx, agent, actx)
	if err != nil {
		o.logger.ErrorContext(ctx, "agent failed",
			"agent", agent,
			"step", index,
			"error", err,
			"code", domain.ErrorCodeOf(err),
		)
		return domain.AgentOutput{}, err
	}
	return out, nil
}
