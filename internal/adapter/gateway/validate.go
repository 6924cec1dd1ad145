package gateway

import (
	"encoding/json"
	"fmt"
	"unicode/utf16"

	"neuroguide/internal/domain"
)

const (
	maxMessages      = 50
	maxContentLength = 10000
)

// ValidateMessages checks the raw "messages" value of a chat request and
// returns the role and content of each entry. The first violation is
// returned as a *domain.ValidationError whose message is safe to show.
func ValidateMessages(raw json.RawMessage) ([]domain.ChatMessage, error) {
	var value any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &value); err != nil {
			value = nil
		}
	}

	entries, ok := value.([]any)
	if !ok {
		return nil, invalid(-1, "array", "Messages must be an array")
	}
	if len(entries) == 0 {
		return nil, invalid(-1, "non_empty", "Messages array cannot be empty")
	}
	if len(entries) > maxMessages {
		return nil, invalid(-1, "max_messages", fmt.Sprintf("Too many messages. Maximum allowed: %d", maxMessages))
	}

	out := make([]domain.ChatMessage, 0, len(entries))
	for i, entry := range entries {
		var obj map[string]any
		switch v := entry.(type) {
		case map[string]any:
			obj = v
		case []any:
			// arrays have no role
		default:
			return nil, invalid(i, "object", fmt.Sprintf("Invalid message at index %d", i))
		}

		role, _ := obj["role"].(string)
		if !domain.ValidRole(role) {
			return nil, invalid(i, "role", fmt.Sprintf(
				"Invalid message role at index %d. Must be one of: %s, %s, %s",
				i, domain.RoleUser, domain.RoleAssistant, domain.RoleSystem))
		}

		content, ok := obj["content"].(string)
		if !ok {
			return nil, invalid(i, "content_type", fmt.Sprintf("Message content must be a string at index %d", i))
		}
		if contentLength(content) > maxContentLength {
			return nil, invalid(i, "content_length", fmt.Sprintf(
				"Message content too long at index %d. Maximum: %d characters", i, maxContentLength))
		}

		out = append(out, domain.ChatMessage{Role: role, Content: content})
	}
	return out, nil
}

func invalid(index int, rule, msg string) *domain.ValidationError {
	return &domain.ValidationError{Index: index, Rule: rule, Message: msg}
}

// contentLength counts UTF-16 code units, so a character outside the Basic
// Multilingual Plane counts as two.
func contentLength(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}
