package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	sdk "github.com/mark3labs/mcp-go/mcp"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pocketomega/pocket-agent/internal/tool"
)

// Adapter bridges one MCP server tool to the tool.Tool interface, making
// it indistinguishable from native built-in tools to the orchestrator.
// The registry handles display-name collisions; the adapter always
// reports the server-published name.
type Adapter struct {
	client *Client
	info   sdk.Tool

	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
}

// NewAdapter creates an adapter for a single MCP tool.
func NewAdapter(client *Client, info sdk.Tool) *Adapter {
	return &Adapter{client: client, info: info}
}

// Origin returns the owning server's name.
func (a *Adapter) Origin() string { return a.client.Name() }

func (a *Adapter) Name() string { return a.info.Name }

func (a *Adapter) Description() string { return a.info.Description }

func (a *Adapter) InputSchema() json.RawMessage {
	schema, err := json.Marshal(a.info.InputSchema)
	if err != nil {
		return tool.BuildSchema()
	}
	return schema
}

// compiledSchema lazily compiles the server-published input schema.
func (a *Adapter) compiledSchema() (*jsonschema.Schema, error) {
	a.schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("tool.json", bytes.NewReader(a.InputSchema())); err != nil {
			a.schemaErr = err
			return
		}
		a.schema, a.schemaErr = compiler.Compile("tool.json")
	})
	return a.schema, a.schemaErr
}

// Validate checks args against the server-published JSON Schema. A schema
// that itself fails to compile never blocks the call; the server is the
// final authority on its own arguments.
func (a *Adapter) Validate(_ context.Context, args json.RawMessage) error {
	schema, err := a.compiledSchema()
	if err != nil || schema == nil {
		return nil
	}

	var value any
	if len(args) == 0 {
		value = map[string]any{}
	} else if err := json.Unmarshal(args, &value); err != nil {
		return fmt.Errorf("mcp: tool %q args are not valid JSON: %w", a.info.Name, err)
	}
	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("mcp: tool %q args rejected by schema: %w", a.info.Name, err)
	}
	return nil
}

// RequiresConfirmation is always true for MCP tools: the agent cannot
// know what an external server will do, so only session trust may bypass
// the prompt.
func (a *Adapter) RequiresConfirmation(json.RawMessage) bool { return true }

func (a *Adapter) Describe(w io.Writer, args json.RawMessage) {
	fmt.Fprintf(w, "I will run the MCP tool %q from server %q", a.info.Name, a.client.Name())
	if len(args) > 0 && !bytes.Equal(args, []byte("null")) {
		fmt.Fprintf(w, " with arguments: %s", args)
	}
	fmt.Fprintln(w)
}

// Invoke issues tools/call on the owning session. A server-reported tool
// error (isError) comes back as a Go error so the orchestrator records an
// error result; infrastructure failures look the same to the model.
func (a *Adapter) Invoke(ctx context.Context, args json.RawMessage, _ io.Writer) (tool.InvokeOutput, error) {
	result, err := a.client.CallTool(ctx, a.info.Name, args)
	if err != nil {
		return tool.InvokeOutput{}, err
	}
	if result.IsError {
		return tool.InvokeOutput{}, fmt.Errorf("mcp: tool %q reported an error: %s", a.info.Name, result.Text())
	}
	return tool.TextOutput(result.Text()), nil
}
