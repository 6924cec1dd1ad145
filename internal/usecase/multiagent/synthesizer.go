package multiagent

import (
	"strings"
	"unicode"

	"neuroguide/internal/domain"
)

// FallbackReply is returned when no agent produced output.
const FallbackReply = "I couldn't process your request. Please try rephrasing your question."

const qualityReviewHeader = "\n\n---\n\n**Quality Review**:\n"

// Synthesize folds agent outputs into one reply. A single output is returned
// verbatim. Otherwise non-critic contents are joined in order, then every
// critic output follows as a quality review section wherever it ran.
func Synthesize(outputs []domain.AgentOutput) string {
	switch len(outputs) {
	case 0:
		return FallbackReply
	case 1:
		return outputs[0].Content
	}

	var sb strings.Builder
	for _, out := range outputs {
		if out.Agent != domain.AgentCritic {
			sb.WriteString(out.Content)
			sb.WriteString("\n\n")
		}
	}
	for _, out := range outputs {
		if out.Agent == domain.AgentCritic {
			sb.WriteString(qualityReviewHeader)
			sb.WriteString(out.Content)
		}
	}
	return strings.TrimRightFunc(sb.String(), unicode.IsSpace)
}
