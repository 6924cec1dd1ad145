package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// AgentType identifies one specialist responder.
type AgentType string

const (
	AgentRouter        AgentType = "router"
	AgentDataEngineer  AgentType = "data_engineer"
	AgentScholar       AgentType = "scholar"
	AgentCodeGenerator AgentType = "code_generator"
	AgentCritic        AgentType = "critic"
)

// AllAgentTypes lists every valid agent type.
var AllAgentTypes = []AgentType{AgentRouter, AgentDataEngineer, AgentScholar, AgentCodeGenerator, AgentCritic}

// Valid reports whether a is a known agent type.
func (a AgentType) Valid() bool {
	switch a {
	case AgentRouter, AgentDataEngineer, AgentScholar, AgentCodeGenerator, AgentCritic:
		return true
	}
	return false
}

// Intent is the router's classification of a user query.
type Intent string

const (
	IntentArchitectureQuestion Intent = "architecture_question"
	IntentDataAudit            Intent = "data_audit"
	IntentResearchQuery        Intent = "research_query"
	IntentCodeGeneration       Intent = "code_generation"
	IntentGeneralML            Intent = "general_ml"
	IntentCritiqueRequest      Intent = "critique_request"
	IntentClarification        Intent = "clarification"
)

// ParseIntent maps s to a known intent, defaulting to IntentGeneralML.
func ParseIntent(s string) Intent {
	switch i := Intent(strings.ToLower(strings.TrimSpace(s))); i {
	case IntentArchitectureQuestion, IntentDataAudit, IntentResearchQuery,
		IntentCodeGeneration, IntentGeneralML, IntentCritiqueRequest, IntentClarification:
		return i
	}
	return IntentGeneralML
}

// IntentClassification is the router's plan for a turn.
type IntentClassification struct {
	PrimaryIntent          Intent      `json:"primaryIntent"`
	Confidence             float64     `json:"confidence"`
	RequiresMultipleAgents bool        `json:"requiresMultipleAgents"`
	AgentSequence          []AgentType `json:"agentSequence"`
	Reasoning              string      `json:"reasoning,omitempty"`
}

// DefaultClassification is the plan used whenever the router's reply
// cannot be interpreted.
func DefaultClassification() IntentClassification {
	return IntentClassification{
		PrimaryIntent: IntentGeneralML,
		Confidence:    0.7,
		AgentSequence: []AgentType{AgentScholar},
	}
}

// AgentOutput is one specialist's contribution to a turn.
type AgentOutput struct {
	Agent          AgentType      `json:"agent"`
	Content        string         `json:"content"`
	Structured     map[string]any `json:"structured,omitempty"`
	Confidence     float64        `json:"confidence"`
	ProcessingTime time.Duration  `json:"-"`
}

// MarshalJSON encodes ProcessingTime as whole milliseconds.
func (o AgentOutput) MarshalJSON() ([]byte, error) {
	type plain AgentOutput
	return json.Marshal(struct {
		plain
		ProcessingTime int64 `json:"processingTime"`
	}{plain(o), o.ProcessingTime.Milliseconds()})
}

// AgentContext is the per-turn state handed to each specialist.
type AgentContext struct {
	UserQuery            string
	ConversationHistory  []ChatMessage
	Intent               *IntentClassification
	PreviousAgentOutputs []AgentOutput
}

// WithOutputs returns a copy of c whose PreviousAgentOutputs is exactly
// outputs. The slice is cloned so later appends by the caller are not
// visible through the returned context.
func (c AgentContext) WithOutputs(outputs []AgentOutput) AgentContext {
	c.PreviousAgentOutputs = append([]AgentOutput(nil), outputs...)
	return c
}
