package main

import (
	"fmt"
	"log/slog"

	"neuroguide/internal/adapter/gateway"
	"neuroguide/internal/adapter/llm"
	"neuroguide/internal/domain"
	"neuroguide/internal/infra/config"
	"neuroguide/internal/usecase/multiagent"
	"neuroguide/internal/usecase/relay"
)

// newProvider builds the upstream client, wrapped in a circuit breaker when
// enabled.
func newProvider(cfg config.UpstreamConfig, log *slog.Logger) domain.StreamingLLMProvider {
	var provider domain.StreamingLLMProvider = llm.NewOpenAIProvider(cfg, log)
	if cb := cfg.CircuitBreaker; cb.Enabled {
		provider = llm.NewCircuitBreakerProvider(provider, cb, log)
		log.Info("upstream circuit breaker enabled",
			"max_failures", cb.MaxFailures,
			"timeout", cb.Timeout,
			"interval", cb.Interval,
		)
	}
	return provider
}

func params(m config.ModelConfig) multiagent.ModelParams {
	return multiagent.ModelParams{Model: m.Model, Temperature: m.Temperature, MaxTokens: m.MaxTokens}
}

// agentPrompts converts configured prompt overrides to agent types.
func agentPrompts(cfg config.PromptsConfig) map[domain.AgentType]string {
	if len(cfg.Agents) == 0 {
		return nil
	}
	out := make(map[domain.AgentType]string, len(cfg.Agents))
	for name, prompt := range cfg.Agents {
		out[domain.AgentType(name)] = prompt
	}
	return out
}

// newGateway assembles the relay, the orchestration pipeline and the
// verifier behind an HTTP server.
func newGateway(cfg *config.Config, log *slog.Logger) (*gateway.Server, error) {
	provider := newProvider(cfg.Upstream, log)

	chat := relay.New(provider, relay.Config{
		Model:        cfg.Models.Stream.Model,
		MaxTokens:    cfg.Models.Stream.MaxTokens,
		Temperature:  cfg.Models.Stream.Temperature,
		HistoryLimit: cfg.Orchestrator.HistoryLimit,
		SystemPrompt: cfg.Prompts.Chat,
	}, log)

	prompts := agentPrompts(cfg.Prompts)
	router := multiagent.NewRouter(provider, params(cfg.Models.Router), cfg.Orchestrator.MaxAgents, log).
		WithPrompt(prompts[domain.AgentRouter])

	executor, err := multiagent.NewExecutor(provider, multiagent.ExecutorConfig{
		Params:        params(cfg.Models.Agent),
		HistoryLimit:  cfg.Orchestrator.HistoryLimit,
		ExcerptLength: cfg.Orchestrator.ExcerptLength,
		Prompts:       prompts,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}
	orchestrator := multiagent.NewOrchestrator(router, executor, cfg.Orchestrator.EnableCritic, log)

	verifier, err := gateway.NewVerifier(cfg.Auth, log)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}

	if cfg.Upstream.APIKey == "" {
		log.Warn("upstream api key not set; chat endpoints will answer 500")
	}

	return gateway.NewServer(cfg.Server, gateway.Deps{
		Relay:        chat,
		Orchestrator: orchestrator,
		Verifier:     verifier,
		Configured:   cfg.Upstream.APIKey != "",
	}, log), nil
}
