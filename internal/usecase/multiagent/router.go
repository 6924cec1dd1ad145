// Package multiagent routes a query to a sequence of specialist agents, runs
// them in order and folds their outputs into one reply.
package multiagent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"neuroguide/internal/domain"
	"neuroguide/internal/infra/tracer"
)

// ModelParams selects the model and sampling for one kind of call.
type ModelParams struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

const (
	defaultMaxAgents        = 3
	defaultRouterConfidence = 0.8
)

// agentNames maps the router's upper-case agent names to agent types.
var agentNames = map[string]domain.AgentType{
	"DATA_ENGINEER":  domain.AgentDataEngineer,
	"SCHOLAR":        domain.AgentScholar,
	"CODE_GENERATOR": domain.AgentCodeGenerator,
	"CRITIC":         domain.AgentCritic,
}

// RouteOutcome reports whether Classify fell back to the default plan.
type RouteOutcome struct {
	Fallback bool
	Reason   ParseReason
	Err      error
}

// Router classifies a query into an intent and an agent sequence.
type Router struct {
	provider  domain.LLMProvider
	params    ModelParams
	maxAgents int
	prompt    string
	logger    *slog.Logger
}

// NewRouter creates a Router. maxAgents <= 0 selects 3.
func NewRouter(provider domain.LLMProvider, params ModelParams, maxAgents int, logger *slog.Logger) *Router {
	if maxAgents <= 0 {
		maxAgents = defaultMaxAgents
	}
	return &Router{
		provider:  provider,
		params:    params,
		maxAgents: maxAgents,
		prompt:    RouterPrompt,
		logger:    logger,
	}
}

// WithPrompt replaces the routing prompt. An empty prompt is ignored.
func (r *Router) WithPrompt(prompt string) *Router {
	if prompt != "" {
		r.prompt = prompt
	}
	return r
}

// Classify asks the fast model for a routing plan. It never fails: when the
// upstream call fails or the reply cannot be read, the default plan is
// returned and the outcome says why.
func (r *Router) Classify(ctx context.Context, query string) (domain.IntentClassification, RouteOutcome) {
	ctx, span := tracer.StartSpan(ctx, "router.classify",
		trace.WithAttributes(tracer.StringAttr("llm.model", r.params.Model)),
	)
	defer span.End()

	resp, err := r.provider.Chat(ctx, domain.ChatRequest{
		Model: r.params.Model,
		Messages: []domain.ChatMessage{
			{Role: domain.RoleSystem, Content: r.prompt},
			{Role: domain.RoleUser, Content: query},
		},
		Temperature: r.params.Temperature,
		MaxTokens:   r.params.MaxTokens,
	})
	if err != nil {
		tracer.RecordError(span, err)
		return r.fallback(ctx, span, ParseUpstreamFailed, domain.WrapOp("router.classify", err))
	}

	raw, reason := extractObject(resp.Content)
	if reason != ParseOK {
		err := fmt.Errorf("%w: %s", domain.ErrClassificationParse, reason)
		return r.fallback(ctx, span, reason, err)
	}

	ic := r.fromRaw(raw)
	span.SetAttributes(
		tracer.StringAttr("router.intent", string(ic.PrimaryIntent)),
		tracer.IntAttr("router.agents", len(ic.AgentSequence)),
		tracer.Float64Attr("router.confidence", ic.Confidence),
		tracer.BoolAttr("router.fallback", false),
	)
	tracer.SetOK(span)
	r.logger.DebugContext(ctx, "query classified",
		"intent", ic.PrimaryIntent,
		"confidence", ic.Confidence,
		"agents", ic.AgentSequence,
		"multi", ic.RequiresMultipleAgents,
	)
	return ic, RouteOutcome{Reason: ParseOK}
}

func (r *Router) fallback(ctx context.Context, span trace.Span, reason ParseReason, err error) (domain.IntentClassification, RouteOutcome) {
	span.SetAttributes(
		tracer.BoolAttr("router.fallback", true),
		tracer.StringAttr("router.reason", string(reason)),
	)
	r.logger.WarnContext(ctx, "router fell back to default plan",
		"reason", reason,
		"error", err,
		"code", domain.ErrorCodeOf(err),
	)
	return domain.DefaultClassification(), RouteOutcome{Fallback: true, Reason: reason, Err: err}
}

// fromRaw normalizes a decoded routing object.
func (r *Router) fromRaw(raw map[string]any) domain.IntentClassification {
	ic := domain.IntentClassification{PrimaryIntent: domain.IntentGeneralML}

	if s, ok := raw["primary_intent"].(string); ok {
		ic.PrimaryIntent = domain.ParseIntent(s)
	}

	ic.Confidence = defaultRouterConfidence
	if c, ok := raw["confidence"].(float64); ok && c != 0 {
		ic.Confidence = min(max(c, 0), 1)
	}

	if b, ok := raw["requires_multiple_agents"].(bool); ok {
		ic.RequiresMultipleAgents = b
	}
	if s, ok := raw["reasoning"].(string); ok {
		ic.Reasoning = s
	}

	seq, _ := raw["agent_sequence"].([]any)
	ic.AgentSequence = r.mapSequence(seq)
	return ic
}

// mapSequence converts raw agent names, truncated to maxAgents. Unknown and
// non-string entries become scholar; an empty sequence becomes [scholar].
func (r *Router) mapSequence(seq []any) []domain.AgentType {
	if len(seq) == 0 {
		return []domain.AgentType{domain.AgentScholar}
	}
	if len(seq) > r.maxAgents {
		seq = seq[:r.maxAgents]
	}
	out := make([]domain.AgentType, 0, len(seq))
	for _, v := range seq {
		out = append(out, mapAgentName(v))
	}
	return out
}

func mapAgentName(v any) domain.AgentType {
	s, ok := v.(string)
	if !ok {
		return domain.AgentScholar
	}
	if a, ok := agentNames[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return a
	}
	return domain.AgentScholar
}
