package multiagent

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neuroguide/internal/domain"
)

func newTestExecutor(t *testing.T, p domain.LLMProvider, cfg ExecutorConfig) *Executor {
	t.Helper()
	if cfg.Params.Model == "" {
		cfg.Params = ModelParams{Model: "google/gemini-2.5-pro", Temperature: 0.3, MaxTokens: 4000}
	}
	e, err := NewExecutor(p, cfg, testLogger())
	require.NoError(t, err)
	return e
}

func TestExecutorBuildsRequest(t *testing.T) {
	p := &scriptedProvider{replies: []*domain.ChatResponse{reply("answer")}}
	e := newTestExecutor(t, p, ExecutorConfig{})

	var history []domain.ChatMessage
	for i := range 12 {
		history = append(history, domain.ChatMessage{Role: domain.RoleUser, Content: fmt.Sprintf("h%d", i)})
	}

	out, err := e.Execute(context.Background(), domain.AgentScholar, domain.AgentContext{
		UserQuery:           "what is attention?",
		ConversationHistory: history,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.AgentScholar, out.Agent)
	assert.Equal(t, "answer", out.Content)
	assert.Nil(t, out.Structured)
	assert.Equal(t, 0.85, out.Confidence)
	assert.GreaterOrEqual(t, out.ProcessingTime, time.Duration(0))

	require.Len(t, p.requests, 1)
	req := p.requests[0]
	assert.Equal(t, "google/gemini-2.5-pro", req.Model)
	assert.Equal(t, 0.3, req.Temperature)
	assert.Equal(t, 4000, req.MaxTokens)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "provide_citations", req.Tools[0].Name)

	require.Len(t, req.Messages, 12, "system + last 10 history + user")
	assert.Equal(t, domain.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "h2", req.Messages[1].Content)
	assert.Equal(t, "h11", req.Messages[10].Content)
	assert.Equal(t, "what is attention?", req.Messages[11].Content, "no previous outputs means the plain query")
}

func TestExecutorToolsPerAgent(t *testing.T) {
	want := map[domain.AgentType]string{
		domain.AgentDataEngineer:  "analyze_data_issues",
		domain.AgentScholar:       "provide_citations",
		domain.AgentCodeGenerator: "provide_code",
		domain.AgentCritic:        "",
	}
	for agent, tool := range want {
		p := &scriptedProvider{replies: []*domain.ChatResponse{reply("x")}}
		_, err := newTestExecutor(t, p, ExecutorConfig{}).Execute(context.Background(), agent, domain.AgentContext{UserQuery: "q"})
		require.NoError(t, err)

		tools := p.requests[0].Tools
		if tool == "" {
			assert.Empty(t, tools, agent)
			continue
		}
		require.Len(t, tools, 1, agent)
		assert.Equal(t, tool, tools[0].Name, agent)
	}
}

func TestExecutorPreviousAnalysisExcerpt(t *testing.T) {
	p := &scriptedProvider{replies: []*domain.ChatResponse{reply("x")}}
	e := newTestExecutor(t, p, ExecutorConfig{})

	long := strings.Repeat("é", 600)
	_, err := e.Execute(context.Background(), domain.AgentCodeGenerator, domain.AgentContext{
		UserQuery: "write it",
		PreviousAgentOutputs: []domain.AgentOutput{
			{Agent: domain.AgentDataEngineer, Content: long},
			{Agent: domain.AgentScholar, Content: "short"},
		},
	})
	require.NoError(t, err)

	msgs := p.requests[0].Messages
	user := msgs[len(msgs)-1].Content
	want := "write it\n\nPrevious analysis:\n" +
		"[data_engineer]: " + strings.Repeat("é", 500) + "...\n" +
		"[scholar]: short...\n"
	assert.Equal(t, want, user)
}

func TestExecutorMergesToolCalls(t *testing.T) {
	p := &scriptedProvider{replies: []*domain.ChatResponse{{
		Content: "found problems",
		ToolCalls: []domain.ToolCall{
			{Name: "analyze_data_issues", Arguments: `{"issues":[{"type":"class_imbalance","severity":"high","description":"9:1","recommendation":"resample"}],"summary":"first"}`},
			{Name: "analyze_data_issues", Arguments: `{not json`},
			{Name: "analyze_data_issues", Arguments: `{"summary":"second"}`},
		},
	}}}

	out, err := newTestExecutor(t, p, ExecutorConfig{}).Execute(context.Background(), domain.AgentDataEngineer, domain.AgentContext{UserQuery: "q"})
	require.NoError(t, err)

	require.NotNil(t, out.Structured)
	assert.Equal(t, "second", out.Structured["summary"], "later keys win")
	issues, ok := out.Structured["issues"].([]any)
	require.True(t, ok)
	assert.Len(t, issues, 1)
}

func TestExecutorKeepsSchemaMismatch(t *testing.T) {
	p := &scriptedProvider{replies: []*domain.ChatResponse{{
		Content:   "code",
		ToolCalls: []domain.ToolCall{{Name: "provide_code", Arguments: `{"code_blocks":"not an array"}`}},
	}}}

	out, err := newTestExecutor(t, p, ExecutorConfig{}).Execute(context.Background(), domain.AgentCodeGenerator, domain.AgentContext{UserQuery: "q"})
	require.NoError(t, err)
	assert.Equal(t, "not an array", out.Structured["code_blocks"])
}

func TestExecutorAllToolCallsMalformed(t *testing.T) {
	p := &scriptedProvider{replies: []*domain.ChatResponse{{
		Content:   "x",
		ToolCalls: []domain.ToolCall{{Name: "provide_code", Arguments: `[1,2]`}, {Name: "provide_code"}},
	}}}

	out, err := newTestExecutor(t, p, ExecutorConfig{}).Execute(context.Background(), domain.AgentCodeGenerator, domain.AgentContext{UserQuery: "q"})
	require.NoError(t, err)
	assert.Nil(t, out.Structured)
}

func TestExecutorUpstreamError(t *testing.T) {
	p := &scriptedProvider{errs: []error{&domain.UpstreamError{StatusCode: 402, Err: domain.ErrQuotaExhausted}}}

	_, err := newTestExecutor(t, p, ExecutorConfig{}).Execute(context.Background(), domain.AgentScholar, domain.AgentContext{UserQuery: "q"})
	require.ErrorIs(t, err, domain.ErrQuotaExhausted)
	assert.Len(t, p.requests, 1, "no retry")
}

func TestExecutorPromptOverride(t *testing.T) {
	p := &scriptedProvider{replies: []*domain.ChatResponse{reply("x")}}
	e := newTestExecutor(t, p, ExecutorConfig{Prompts: map[domain.AgentType]string{domain.AgentCritic: "be harsh"}})

	_, err := e.Execute(context.Background(), domain.AgentCritic, domain.AgentContext{UserQuery: "q"})
	require.NoError(t, err)
	assert.Equal(t, "be harsh", p.requests[0].Messages[0].Content)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héllo", truncateRunes("héllo wörld", 5))
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "世界", truncateRunes("世界你好", 2))
	assert.Equal(t, "", truncateRunes("", 3))
}
