package multiagent

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonschema"

	"neuroguide/internal/domain"
)

var analyzeDataIssuesTool = domain.ToolSchema{
	Name:        "analyze_data_issues",
	Description: "Report data quality issues found in a dataset",
	Parameters: json.RawMessage(`{
  "type": "object",
  "properties": {
    "issues": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "type": {"type": "string", "enum": ["class_imbalance", "data_leakage", "missing_values", "outliers", "duplicate_rows"]},
          "severity": {"type": "string", "enum": ["critical", "high", "medium", "low"]},
          "description": {"type": "string"},
          "affected_columns": {"type": "array", "items": {"type": "string"}},
          "recommendation": {"type": "string"}
        },
        "required": ["type", "severity", "description", "recommendation"]
      }
    }
  },
  "required": ["issues"]
}`),
}

var provideCitationsTool = domain.ToolSchema{
	Name:        "provide_citations",
	Description: "Provide research paper citations supporting the answer",
	Parameters: json.RawMessage(`{
  "type": "object",
  "properties": {
    "citations": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "id": {"type": "string"},
          "title": {"type": "string"},
          "authors": {"type": "array", "items": {"type": "string"}},
          "year": {"type": "integer"},
          "venue": {"type": "string"},
          "url": {"type": "string"},
          "abstract": {"type": "string"}
        },
        "required": ["title", "authors", "year"]
      }
    }
  },
  "required": ["citations"]
}`),
}

var provideCodeTool = domain.ToolSchema{
	Name:        "provide_code",
	Description: "Provide generated code files",
	Parameters: json.RawMessage(`{
  "type": "object",
  "properties": {
    "code_blocks": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "language": {"type": "string"},
          "code": {"type": "string"},
          "filename": {"type": "string"}
        },
        "required": ["language", "code"]
      }
    }
  },
  "required": ["code_blocks"]
}`),
}

// schemaSet holds the compiled parameter schema of every structured-output
// tool, keyed by tool name.
type schemaSet map[string]*jsonschema.Schema

func compileToolSchemas(tools ...domain.ToolSchema) (schemaSet, error) {
	set := make(schemaSet, len(tools))
	for _, t := range tools {
		schema, err := jsonschema.NewCompiler().Compile([]byte(t.Parameters))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %q: %w", t.Name, err)
		}
		set[t.Name] = schema
	}
	return set, nil
}

// check validates data against the named tool's schema. Unknown tools pass.
func (s schemaSet) check(tool string, data map[string]any) error {
	schema, ok := s[tool]
	if !ok {
		return nil
	}
	result := schema.Validate(data)
	if !result.IsValid() {
		return fmt.Errorf("%s", result.Error())
	}
	return nil
}
