package multiagent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"neuroguide/internal/domain"
	"neuroguide/internal/infra/tracer"
)

const (
	agentConfidence      = 0.85
	defaultHistoryLimit  = 10
	defaultExcerptLength = 500
)

// ExecutorConfig controls agent calls.
type ExecutorConfig struct {
	Params        ModelParams
	HistoryLimit  int
	ExcerptLength int
	// Prompts overrides the built-in system prompt per agent.
	Prompts map[domain.AgentType]string
}

// Executor runs one specialist agent against the capable model.
type Executor struct {
	provider domain.LLMProvider
	cfg      ExecutorConfig
	schemas  schemaSet
	logger   *slog.Logger
}

// NewExecutor creates an Executor and compiles the structured-output tool
// schemas.
func NewExecutor(provider domain.LLMProvider, cfg ExecutorConfig, logger *slog.Logger) (*Executor, error) {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.ExcerptLength <= 0 {
		cfg.ExcerptLength = defaultExcerptLength
	}
	schemas, err := compileToolSchemas(analyzeDataIssuesTool, provideCitationsTool, provideCodeTool)
	if err != nil {
		return nil, err
	}
	return &Executor{provider: provider, cfg: cfg, schemas: schemas, logger: logger}, nil
}

// Execute runs agent once. Upstream failures are returned unchanged in kind;
// nothing is retried.
func (e *Executor) Execute(ctx context.Context, agent domain.AgentType, actx domain.AgentContext) (domain.AgentOutput, error) {
	start := time.Now()
	ctx, span := tracer.StartSpan(ctx, "agent.execute",
		trace.WithAttributes(
			tracer.StringAttr("agent.type", string(agent)),
			tracer.IntAttr("agent.previous_outputs", len(actx.PreviousAgentOutputs)),
		),
	)
	defer span.End()

	prompt, tools := profileFor(agent)
	if override := e.cfg.Prompts[agent]; override != "" {
		prompt = override
	}

	history := domain.RecentHistory(actx.ConversationHistory, e.cfg.HistoryLimit)
	messages := make([]domain.ChatMessage, 0, len(history)+2)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: prompt})
	messages = append(messages, history...)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: e.userTurn(actx)})

	resp, err := e.provider.Chat(ctx, domain.ChatRequest{
		Model:       e.cfg.Params.Model,
		Messages:    messages,
		Tools:       tools,
		Temperature: e.cfg.Params.Temperature,
		MaxTokens:   e.cfg.Params.MaxTokens,
	})
	if err != nil {
		tracer.RecordError(span, err)
		return domain.AgentOutput{}, domain.WrapOp(fmt.Sprintf("agent.execute %s", agent), err)
	}

	structured := e.mergeToolCalls(ctx, agent, resp.ToolCalls)
	out := domain.AgentOutput{
		Agent:          agent,
		Content:        resp.Content,
		Structured:     structured,
		Confidence:     agentConfidence,
		ProcessingTime: time.Since(start),
	}

	span.SetAttributes(
		tracer.IntAttr("agent.tool_calls", len(resp.ToolCalls)),
		tracer.BoolAttr("agent.structured", structured != nil),
	)
	tracer.SetOK(span)
	e.logger.DebugContext(ctx, "agent finished",
		"agent", agent,
		"chars", len([]rune(out.Content)),
		"tool_calls", len(resp.ToolCalls),
		"duration", out.ProcessingTime,
	)
	return out, nil
}

// userTurn appends an excerpt of every previous output to the query.
func (e *Executor) userTurn(actx domain.AgentContext) string {
	if len(actx.PreviousAgentOutputs) == 0 {
		return actx.UserQuery
	}
	var sb strings.Builder
	sb.WriteString(actx.UserQuery)
	sb.WriteString("\n\nPrevious analysis:\n")
	for _, prev := range actx.PreviousAgentOutputs {
		fmt.Fprintf(&sb, "[%s]: %s...\n", prev.Agent, truncateRunes(prev.Content, e.cfg.ExcerptLength))
	}
	return sb.String()
}

// mergeToolCalls shallow-merges every decodable tool-call argument object in
// order; later keys win. It returns nil when nothing merged.
func (e *Executor) mergeToolCalls(ctx context.Context, agent domain.AgentType, calls []domain.ToolCall) map[string]any {
	var merged map[string]any
	for _, call := range calls {
		if call.Arguments == "" {
			continue
		}
		var args map[string]any
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			e.logger.WarnContext(ctx, "skipping malformed tool call",
				"agent", agent,
				"tool", call.Name,
				"error", err,
			)
			continue
		}
		if err := e.schemas.check(call.Name, args); err != nil {
			e.logger.WarnContext(ctx, "tool call does not match schema",
				"agent", agent,
				"tool", call.Name,
				"error", err,
			)
		}
		if merged == nil {
			merged = make(map[string]any, len(args))
		}
		for k, v := range args {
			merged[k] = v
		}
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
