package tool

import (
	"context"
	"encoding/json"
	"io"
)

// Tool is the unified capability set for all tools. Both native built-in
// tools and MCP tool adapters implement this interface.
type Tool interface {
	// Name returns the tool identifier (the model uses this name to invoke
	// the tool).
	Name() string

	// Description returns a natural-language description for the model.
	Description() string

	// InputSchema returns a standard JSON Schema defining the tool's
	// parameters. Compatible with MCP and OpenAI function calling.
	InputSchema() json.RawMessage

	// Validate checks args before approval. A validation failure is an
	// error result for the model, never a crash.
	Validate(ctx context.Context, args json.RawMessage) error

	// RequiresConfirmation reports whether this invocation needs operator
	// approval (e.g. a mutating shell command). A tool trusted in the
	// session trust table runs without approval even when this is true.
	RequiresConfirmation(args json.RawMessage) bool

	// Describe writes a human-readable account of what the invocation
	// will do, shown to the operator before approval.
	Describe(w io.Writer, args json.RawMessage)

	// Invoke runs the tool. Progress output may be streamed to progress
	// as the tool runs; the returned output is what the model sees.
	Invoke(ctx context.Context, args json.RawMessage, progress io.Writer) (InvokeOutput, error)
}

// InvokeOutput is a tool's result: plain text or a JSON value.
// Exactly one field is set.
type InvokeOutput struct {
	Text string
	JSON json.RawMessage
}

// TextOutput builds a text result.
func TextOutput(s string) InvokeOutput { return InvokeOutput{Text: s} }

// JSONOutput builds a JSON result.
func JSONOutput(v any) (InvokeOutput, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return InvokeOutput{}, err
	}
	return InvokeOutput{JSON: data}, nil
}

// Render flattens the output to the string handed to the model.
func (o InvokeOutput) Render() string {
	if o.JSON != nil {
		return string(o.JSON)
	}
	return o.Text
}

// Size reports the byte length used for context-window accounting.
func (o InvokeOutput) Size() int {
	if o.JSON != nil {
		return len(o.JSON)
	}
	return len(o.Text)
}

// SchemaParam describes a single parameter for the BuildSchema helper.
type SchemaParam struct {
	Name        string
	Type        string // "string", "integer", "boolean", "number"
	Description string
	Required    bool
	Enum        []string
}

// BuildSchema generates a standard JSON Schema object from a list of
// SchemaParams, letting native tools avoid hand-writing JSON strings.
func BuildSchema(params ...SchemaParam) json.RawMessage {
	properties := make(map[string]any)
	var required []string

	for _, p := range params {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	data, _ := json.Marshal(schema)
	return data
}
