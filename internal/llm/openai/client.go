package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pocketomega/pocket-agent/internal/llm"
	openailib "github.com/sashabaranov/go-openai"
)

// Client implements llm.LLMProvider using the OpenAI-compatible protocol.
// Works with any endpoint that supports the OpenAI chat completions API.
//
// The client performs exactly one attempt per call; the chat orchestrator
// owns backoff and retry.
type Client struct {
	client *openailib.Client
	config *Config
}

// NewClient creates a new OpenAI-compatible client.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("openai: config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("openai: invalid config: %w", err)
	}

	clientConfig := openailib.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	// Prevent indefinite hangs when the API is unresponsive.
	clientConfig.HTTPClient = &http.Client{Timeout: time.Duration(config.HTTPTimeout) * time.Second}

	return &Client{
		client: openailib.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// NewClientFromEnv creates a client using LLM_* environment variables.
func NewClientFromEnv() (*Client, error) {
	config, err := NewConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("openai: load config from env: %w", err)
	}
	return NewClient(config)
}

// GetName implements llm.LLMProvider.
func (c *Client) GetName() string {
	return "openai:" + c.config.Model
}

// CallLLM sends a request and returns the complete response.
func (c *Client) CallLLM(ctx context.Context, req llm.ChatRequest) (llm.Message, error) {
	if len(req.Messages) == 0 {
		return llm.Message{}, fmt.Errorf("openai: no messages to send")
	}

	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(req, false))
	if err != nil {
		return llm.Message{}, classifyErr(err)
	}
	if len(resp.Choices) == 0 {
		return llm.Message{}, fmt.Errorf("openai: no choices returned")
	}

	choice := resp.Choices[0]
	msg := llm.Message{
		Role:    llm.RoleAssistant,
		Content: choice.Message.Content,
	}
	for _, tc := range choice.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: []byte(tc.Function.Arguments),
		})
	}
	return msg, nil
}

// CallLLMStream sends a request and streams text chunks through onChunk.
// Tool-call fragments are accumulated by index and returned assembled.
func (c *Client) CallLLMStream(ctx context.Context, req llm.ChatRequest, onChunk llm.StreamCallback) (llm.Message, error) {
	if len(req.Messages) == 0 {
		return llm.Message{}, fmt.Errorf("openai: no messages to send")
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, c.buildRequest(req, true))
	if err != nil {
		return llm.Message{}, classifyErr(err)
	}
	defer stream.Close()

	var content strings.Builder
	// Tool-call fragments arrive interleaved across chunks; the index field
	// identifies which call a fragment belongs to.
	type partial struct {
		id   string
		name string
		args strings.Builder
	}
	var calls []*partial

	for {
		resp, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return llm.Message{}, classifyErr(recvErr)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			content.WriteString(delta.Content)
			if onChunk != nil {
				onChunk(delta.Content)
			}
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			for idx >= len(calls) {
				calls = append(calls, &partial{})
			}
			if tc.ID != "" {
				calls[idx].id = tc.ID
			}
			if tc.Function.Name != "" {
				calls[idx].name += tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				calls[idx].args.WriteString(tc.Function.Arguments)
			}
		}
	}

	msg := llm.Message{
		Role:    llm.RoleAssistant,
		Content: content.String(),
	}
	for _, p := range calls {
		args := p.args.String()
		if args == "" {
			args = "{}"
		}
		msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
			ID:        p.id,
			Name:      p.name,
			Arguments: []byte(args),
		})
	}
	return msg, nil
}

// buildRequest converts the provider-neutral request into the wire shape.
func (c *Client) buildRequest(req llm.ChatRequest, stream bool) openailib.ChatCompletionRequest {
	msgs := make([]openailib.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		om := openailib.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openailib.ToolCall{
				ID:   tc.ID,
				Type: openailib.ToolTypeFunction,
				Function: openailib.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		msgs = append(msgs, om)
	}

	out := openailib.ChatCompletionRequest{
		Model:    c.config.Model,
		Messages: msgs,
		Stream:   stream,
	}
	if c.config.MaxTokens > 0 {
		out.MaxTokens = c.config.MaxTokens
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openailib.Tool{
			Type: openailib.ToolTypeFunction,
			Function: &openailib.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

// classifyErr maps API failures onto the sentinel kinds the retry policy
// distinguishes: throttling and context overflow. Everything else passes
// through as a generic transport error.
func classifyErr(err error) error {
	var apiErr *openailib.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", llm.ErrThrottled, err)
		case apiErr.HTTPStatusCode == http.StatusBadRequest && isOverflowCode(apiErr):
			return fmt.Errorf("%w: %v", llm.ErrContextOverflow, err)
		}
	}
	return fmt.Errorf("openai: request failed: %w", err)
}

func isOverflowCode(apiErr *openailib.APIError) bool {
	if code, ok := apiErr.Code.(string); ok && code == "context_length_exceeded" {
		return true
	}
	return strings.Contains(apiErr.Message, "context length") ||
		strings.Contains(apiErr.Message, "maximum context")
}
