package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	sdk "github.com/mark3labs/mcp-go/mcp"
)

// State is the lifecycle phase of a server session.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateDegraded      State = "degraded"
	StateClosed        State = "closed"
)

// shutdownGrace bounds how long Shutdown waits for the child to exit
// before force-terminating it.
const shutdownGrace = 2 * time.Second

// callOutcome is what a pending request slot resolves to.
type callOutcome struct {
	result json.RawMessage
	err    error
}

// Client owns one MCP server session: the child process, its transport,
// request correlation, capability tracking, and the cached catalogs.
type Client struct {
	cfg ServerConfig

	mu           sync.Mutex
	state        State
	reason       string // degradation/close reason, operator-visible
	transport    *Transport
	cmd          *exec.Cmd
	capabilities json.RawMessage
	serverInfo   sdk.Implementation

	pending   map[int64]chan callOutcome
	completed map[int64]bool // fulfilled ids, for duplicate detection
	timedOut  map[int64]bool // evicted ids whose late responses are discarded

	tools          []sdk.Tool
	prompts        []sdk.Prompt
	resources      []sdk.Resource
	toolsStale     bool
	promptsStale   bool
	resourcesStale bool

	nextID atomic.Int64
}

// NewClient creates an uninitialized client for the given server config.
// Call Init to spawn the server and complete the MCP handshake.
func NewClient(cfg ServerConfig) *Client {
	return &Client{
		cfg:       cfg,
		state:     StateUninitialized,
		pending:   make(map[int64]chan callOutcome),
		completed: make(map[int64]bool),
		timedOut:  make(map[int64]bool),
	}
}

// Name returns the configured server name.
func (c *Client) Name() string { return c.cfg.Name }

// Config returns the server config this client was built from.
func (c *Client) Config() ServerConfig { return c.cfg }

// State returns the lifecycle state and, for Degraded/Closed, the reason.
func (c *Client) State() (State, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.reason
}

// ServerInfo returns the implementation the server reported at initialize.
func (c *Client) ServerInfo() sdk.Implementation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// Capabilities returns the raw capability object from initialize.
func (c *Client) Capabilities() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capabilities
}

// timeout returns the per-request timeout for this server.
func (c *Client) timeout() time.Duration {
	if c.cfg.TimeoutMs > 0 {
		return time.Duration(c.cfg.TimeoutMs) * time.Millisecond
	}
	return time.Duration(DefaultTimeoutMs) * time.Millisecond
}

// Init spawns the server process, performs the initialize handshake, and
// eagerly fetches the tool/prompt/resource catalogs. Any step failing
// within the timeout transitions the session to Degraded with a reason;
// the session stays listed so the operator can inspect the failure.
func (c *Client) Init(ctx context.Context, clientInfo sdk.Implementation) error {
	c.mu.Lock()
	if c.state != StateUninitialized {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("mcp: init server %q in state %s", c.cfg.Name, state)
	}
	c.state = StateInitializing
	c.mu.Unlock()

	if err := c.start(clientInfo); err != nil {
		c.degrade(err.Error())
		return err
	}

	if err := c.fetchCatalogs(ctx); err != nil {
		c.degrade(fmt.Sprintf("catalog fetch failed: %v", err))
		return err
	}

	c.mu.Lock()
	if c.state == StateInitializing {
		c.state = StateReady
	}
	c.mu.Unlock()
	log.Printf("[MCP] server %q ready (%d tools, %d prompts, %d resources)",
		c.cfg.Name, len(c.tools), len(c.prompts), len(c.resources))
	return nil
}

// start spawns the child, opens the transport and completes the handshake.
func (c *Client) start(clientInfo sdk.Implementation) error {
	cmd := exec.Command(c.cfg.Command, c.cfg.Args...)
	cmd.Env = os.Environ()
	for k, v := range c.cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("mcp: open stdin for %q: %w", c.cfg.Name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("mcp: open stdout for %q: %w", c.cfg.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("mcp: open stderr for %q: %w", c.cfg.Name, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("mcp: spawn %q (%s): %w", c.cfg.Name, c.cfg.Command, err)
	}

	transport := NewTransport(stdin, stdout, stderr)
	c.mu.Lock()
	c.cmd = cmd
	c.transport = transport
	c.mu.Unlock()

	go c.dispatchLoop(transport.Subscribe())

	return c.handshake(clientInfo)
}

// Attach wires the client over an existing transport instead of spawning
// a process, then completes the handshake and catalog fetch. Used by
// tests and in-process servers.
func (c *Client) Attach(ctx context.Context, transport *Transport, clientInfo sdk.Implementation) error {
	c.mu.Lock()
	if c.state != StateUninitialized {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("mcp: attach server %q in state %s", c.cfg.Name, state)
	}
	c.state = StateInitializing
	c.transport = transport
	c.mu.Unlock()

	go c.dispatchLoop(transport.Subscribe())

	if err := c.handshake(clientInfo); err != nil {
		c.degrade(err.Error())
		return err
	}
	if err := c.fetchCatalogs(ctx); err != nil {
		c.degrade(fmt.Sprintf("catalog fetch failed: %v", err))
		return err
	}

	c.mu.Lock()
	if c.state == StateInitializing {
		c.state = StateReady
	}
	c.mu.Unlock()
	return nil
}

// handshake performs initialize + notifications/initialized.
func (c *Client) handshake(clientInfo sdk.Implementation) error {
	type initParams struct {
		ProtocolVersion string             `json:"protocolVersion"`
		Capabilities    map[string]any     `json:"capabilities"`
		ClientInfo      sdk.Implementation `json:"clientInfo"`
	}
	result, err := c.call("initialize", initParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      clientInfo,
	})
	if err != nil {
		return fmt.Errorf("mcp: initialize server %q: %w", c.cfg.Name, err)
	}

	var initResult struct {
		ProtocolVersion string             `json:"protocolVersion"`
		Capabilities    json.RawMessage    `json:"capabilities"`
		ServerInfo      sdk.Implementation `json:"serverInfo"`
	}
	if err := json.Unmarshal(result, &initResult); err != nil {
		return fmt.Errorf("mcp: decode initialize result from %q: %w", c.cfg.Name, err)
	}

	c.mu.Lock()
	c.capabilities = initResult.Capabilities
	c.serverInfo = initResult.ServerInfo
	c.mu.Unlock()

	return c.notify("notifications/initialized", nil)
}

// dispatchLoop routes inbound messages: responses fulfill pending slots,
// notifications mark catalogs stale. It exits when the transport dies,
// closing the session.
func (c *Client) dispatchLoop(sub *Subscription) {
	for ev := range sub.C {
		switch {
		case ev.Lagged > 0:
			log.Printf("[MCP] %q: subscriber lagged, %d inbound message(s) dropped", c.cfg.Name, ev.Lagged)
		case ev.Err != nil:
			// Unparseable data is a transport-level failure; close the
			// session but let other sessions survive.
			log.Printf("[MCP] %q: %v", c.cfg.Name, ev.Err)
			c.closeWithReason(fmt.Sprintf("unparseable message: %v", ev.Err))
			return
		case ev.Msg != nil && ev.Msg.IsResponse():
			if violation := c.fulfill(ev.Msg); violation != nil {
				log.Printf("[MCP] %q: %v", c.cfg.Name, violation)
				c.closeWithReason(violation.Error())
				return
			}
		case ev.Msg != nil && ev.Msg.IsNotification():
			c.handleNotification(ev.Msg)
		}
	}
	// Transport closed: child exited or stdin was shut.
	c.closeWithReason("transport closed")
}

// fulfill resolves the pending slot for a response. A response to an
// already-fulfilled id is a protocol violation; a response to a
// timed-out id is silently discarded.
func (c *Client) fulfill(msg *Message) error {
	id := *msg.ID

	c.mu.Lock()
	slot, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
		c.completed[id] = true
	} else {
		if c.timedOut[id] {
			delete(c.timedOut, id)
			c.mu.Unlock()
			return nil // late response after timeout: discard
		}
		if c.completed[id] {
			c.mu.Unlock()
			return fmt.Errorf("%w: duplicate response id %d", ErrProtocolViolation, id)
		}
		c.mu.Unlock()
		log.Printf("[MCP] %q: response for unknown id %d ignored", c.cfg.Name, id)
		return nil
	}
	c.mu.Unlock()

	outcome := callOutcome{result: msg.Result}
	if msg.Error != nil {
		outcome.err = msg.Error
	}
	slot <- outcome
	return nil
}

// handleNotification applies a server notification.
func (c *Client) handleNotification(msg *Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Method {
	case "notifications/tools/list_changed":
		c.toolsStale = true
	case "notifications/prompts/list_changed":
		c.promptsStale = true
	case "notifications/resources/list_changed":
		c.resourcesStale = true
	default:
		log.Printf("[MCP] %q: notification %q ignored", c.cfg.Name, msg.Method)
	}
}

// call allocates a fresh id, registers a one-shot slot, sends the request
// and waits for the matching response or the per-request timeout. On
// timeout the slot is evicted and a late response is discarded.
func (c *Client) call(method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateDegraded {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionClosed, c.cfg.Name)
	}
	transport := c.transport
	c.mu.Unlock()
	if transport == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionClosed, c.cfg.Name)
	}

	id := c.nextID.Add(1) - 1
	msg, err := newRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	slot := make(chan callOutcome, 1)
	c.mu.Lock()
	c.pending[id] = slot
	c.mu.Unlock()

	if err := transport.Send(msg); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, err
	}

	timer := time.NewTimer(c.timeout())
	defer timer.Stop()

	select {
	case outcome := <-slot:
		if outcome.err != nil {
			return nil, outcome.err
		}
		return outcome.result, nil
	case <-timer.C:
		c.mu.Lock()
		if _, still := c.pending[id]; still {
			delete(c.pending, id)
			c.timedOut[id] = true
		}
		c.mu.Unlock()
		// The slot may have been fulfilled in the race window; prefer it.
		select {
		case outcome := <-slot:
			if outcome.err != nil {
				return nil, outcome.err
			}
			return outcome.result, nil
		default:
		}
		return nil, fmt.Errorf("%w: %s %s after %s", ErrRequestTimeout, c.cfg.Name, method, c.timeout())
	}
}

// notify sends a fire-and-forget notification.
func (c *Client) notify(method string, params any) error {
	c.mu.Lock()
	transport := c.transport
	c.mu.Unlock()
	if transport == nil {
		return fmt.Errorf("%w: %s", ErrSessionClosed, c.cfg.Name)
	}
	msg, err := newNotification(method, params)
	if err != nil {
		return err
	}
	return transport.Send(msg)
}

// degrade transitions to Degraded and records the reason.
func (c *Client) degrade(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.state = StateDegraded
	c.reason = reason
	log.Printf("[MCP] server %q degraded: %s", c.cfg.Name, reason)
}

// closeWithReason transitions to Closed and fails all pending requests.
func (c *Client) closeWithReason(reason string) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.reason = reason
	pending := c.pending
	c.pending = make(map[int64]chan callOutcome)
	c.mu.Unlock()

	for _, slot := range pending {
		slot <- callOutcome{err: fmt.Errorf("%w: %s", ErrSessionClosed, reason)}
	}
	if reason != "" {
		log.Printf("[MCP] server %q closed: %s", c.cfg.Name, reason)
	}
}

// Shutdown sends a best-effort shutdown notification, drops the transport, and
// waits for the child with a bounded grace period before force-killing.
func (c *Client) Shutdown() {
	c.mu.Lock()
	transport := c.transport
	cmd := c.cmd
	alive := c.state == StateReady || c.state == StateInitializing
	c.mu.Unlock()

	if alive {
		// Best-effort; many servers simply exit on stdin EOF.
		_ = c.notify("shutdown", nil)
	}
	if transport != nil {
		_ = transport.Shutdown()
	}
	c.closeWithReason("shut down")

	if cmd != nil && cmd.Process != nil {
		done := make(chan struct{})
		go func() {
			_, _ = cmd.Process.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(shutdownGrace):
			_ = cmd.Process.Kill()
			<-done
		}
	}
}

// ── catalogs ──

// fetchCatalogs eagerly loads all three paginated catalogs.
func (c *Client) fetchCatalogs(ctx context.Context) error {
	if err := c.refreshTools(ctx); err != nil {
		return err
	}
	// Prompts and resources are optional server capabilities; a method-
	// not-found error leaves the catalog empty rather than failing init.
	if err := c.refreshPrompts(ctx); err != nil && !isMethodNotFound(err) {
		return err
	}
	if err := c.refreshResources(ctx); err != nil && !isMethodNotFound(err) {
		return err
	}
	return nil
}

// isMethodNotFound detects JSON-RPC -32601.
func isMethodNotFound(err error) bool {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code == -32601
	}
	return false
}

// cursorParams is the paginated-list request shape; cursors are opaque.
type cursorParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// refreshTools fetches tools/list pages until nextCursor is exhausted.
func (c *Client) refreshTools(ctx context.Context) error {
	var all []sdk.Tool
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := c.call("tools/list", cursorParams{Cursor: cursor})
		if err != nil {
			return fmt.Errorf("mcp: list tools on %q: %w", c.cfg.Name, err)
		}
		var page struct {
			Tools      []sdk.Tool `json:"tools"`
			NextCursor string     `json:"nextCursor"`
		}
		if err := json.Unmarshal(result, &page); err != nil {
			return fmt.Errorf("mcp: decode tools page from %q: %w", c.cfg.Name, err)
		}
		all = append(all, page.Tools...)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	c.mu.Lock()
	c.tools = all
	c.toolsStale = false
	c.mu.Unlock()
	return nil
}

// refreshPrompts fetches prompts/list pages until exhausted.
func (c *Client) refreshPrompts(ctx context.Context) error {
	var all []sdk.Prompt
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := c.call("prompts/list", cursorParams{Cursor: cursor})
		if err != nil {
			return fmt.Errorf("mcp: list prompts on %q: %w", c.cfg.Name, err)
		}
		var page struct {
			Prompts    []sdk.Prompt `json:"prompts"`
			NextCursor string       `json:"nextCursor"`
		}
		if err := json.Unmarshal(result, &page); err != nil {
			return fmt.Errorf("mcp: decode prompts page from %q: %w", c.cfg.Name, err)
		}
		all = append(all, page.Prompts...)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	c.mu.Lock()
	c.prompts = all
	c.promptsStale = false
	c.mu.Unlock()
	return nil
}

// refreshResources fetches resources/list pages until exhausted.
func (c *Client) refreshResources(ctx context.Context) error {
	var all []sdk.Resource
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := c.call("resources/list", cursorParams{Cursor: cursor})
		if err != nil {
			return fmt.Errorf("mcp: list resources on %q: %w", c.cfg.Name, err)
		}
		var page struct {
			Resources  []sdk.Resource `json:"resources"`
			NextCursor string         `json:"nextCursor"`
		}
		if err := json.Unmarshal(result, &page); err != nil {
			return fmt.Errorf("mcp: decode resources page from %q: %w", c.cfg.Name, err)
		}
		all = append(all, page.Resources...)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	c.mu.Lock()
	c.resources = all
	c.resourcesStale = false
	c.mu.Unlock()
	return nil
}

// Tools returns the tool catalog, refetching if marked stale.
func (c *Client) Tools(ctx context.Context) ([]sdk.Tool, error) {
	c.mu.Lock()
	stale := c.toolsStale
	tools := c.tools
	c.mu.Unlock()

	if stale {
		if err := c.refreshTools(ctx); err != nil {
			return nil, err
		}
		c.mu.Lock()
		tools = c.tools
		c.mu.Unlock()
	}
	return tools, nil
}

// Prompts returns the prompt catalog, refetching if marked stale.
func (c *Client) Prompts(ctx context.Context) ([]sdk.Prompt, error) {
	c.mu.Lock()
	stale := c.promptsStale
	prompts := c.prompts
	c.mu.Unlock()

	if stale {
		if err := c.refreshPrompts(ctx); err != nil {
			return nil, err
		}
		c.mu.Lock()
		prompts = c.prompts
		c.mu.Unlock()
	}
	return prompts, nil
}

// Resources returns the resource catalog, refetching if marked stale.
func (c *Client) Resources(ctx context.Context) ([]sdk.Resource, error) {
	c.mu.Lock()
	stale := c.resourcesStale
	resources := c.resources
	c.mu.Unlock()

	if stale {
		if err := c.refreshResources(ctx); err != nil {
			return nil, err
		}
		c.mu.Lock()
		resources = c.resources
		c.mu.Unlock()
	}
	return resources, nil
}

// ── tool calls, prompts, resources ──

// ContentItem is one rendered content block of a tools/call response.
// Image blocks are redacted to a size-hint string before reaching the
// model to preserve context budget.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolCallResult is the outcome of tools/call.
type ToolCallResult struct {
	Content []ContentItem
	IsError bool
}

// Text joins all content blocks into the string handed to the model.
func (r ToolCallResult) Text() string {
	out := ""
	for i, item := range r.Content {
		if i > 0 {
			out += "\n"
		}
		out += item.Text
	}
	return out
}

// CallTool invokes the named tool on this server.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (ToolCallResult, error) {
	if err := ctx.Err(); err != nil {
		return ToolCallResult{}, err
	}
	type callParams struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments,omitempty"`
	}
	result, err := c.call("tools/call", callParams{Name: name, Arguments: args})
	if err != nil {
		return ToolCallResult{}, fmt.Errorf("mcp: call tool %q on %q: %w", name, c.cfg.Name, err)
	}

	var raw struct {
		Content []json.RawMessage `json:"content"`
		IsError bool              `json:"isError"`
	}
	if err := json.Unmarshal(result, &raw); err != nil {
		return ToolCallResult{}, fmt.Errorf("mcp: decode tools/call result from %q: %w", c.cfg.Name, err)
	}

	out := ToolCallResult{IsError: raw.IsError}
	for _, block := range raw.Content {
		out.Content = append(out.Content, decodeContentBlock(block))
	}
	return out, nil
}

// decodeContentBlock renders one content block, redacting images.
func decodeContentBlock(block json.RawMessage) ContentItem {
	var head struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Data     string `json:"data"`
		MimeType string `json:"mimeType"`
		Resource *struct {
			URI  string `json:"uri"`
			Text string `json:"text"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(block, &head); err != nil {
		return ContentItem{Type: "text", Text: fmt.Sprintf("[unreadable content block: %v]", err)}
	}
	switch head.Type {
	case "text":
		return ContentItem{Type: "text", Text: head.Text}
	case "image":
		// Base64 image payloads would blow the context budget; hand the
		// model a size hint instead.
		return ContentItem{
			Type: "image",
			Text: fmt.Sprintf("[image %s, %d bytes base64 omitted]", head.MimeType, len(head.Data)),
		}
	case "resource":
		if head.Resource != nil {
			if head.Resource.Text != "" {
				return ContentItem{Type: "resource", Text: head.Resource.Text}
			}
			return ContentItem{Type: "resource", Text: "[resource " + head.Resource.URI + "]"}
		}
		return ContentItem{Type: "resource", Text: "[empty resource block]"}
	default:
		return ContentItem{Type: head.Type, Text: fmt.Sprintf("[%s content omitted]", head.Type)}
	}
}

// PromptMessage is one rendered message of a prompts/get response.
type PromptMessage struct {
	Role    string
	Content string
}

// GetPrompt renders the named prompt with string arguments.
func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]string) ([]PromptMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type getParams struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments,omitempty"`
	}
	result, err := c.call("prompts/get", getParams{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("mcp: get prompt %q on %q: %w", name, c.cfg.Name, err)
	}

	var raw struct {
		Messages []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, fmt.Errorf("mcp: decode prompts/get result from %q: %w", c.cfg.Name, err)
	}

	out := make([]PromptMessage, 0, len(raw.Messages))
	for _, m := range raw.Messages {
		out = append(out, PromptMessage{Role: m.Role, Content: decodeContentBlock(m.Content).Text})
	}
	return out, nil
}

// ReadResource reads the named resource's text content.
func (c *Client) ReadResource(ctx context.Context, uri string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	type readParams struct {
		URI string `json:"uri"`
	}
	result, err := c.call("resources/read", readParams{URI: uri})
	if err != nil {
		return "", fmt.Errorf("mcp: read resource %q on %q: %w", uri, c.cfg.Name, err)
	}

	var raw struct {
		Contents []struct {
			URI  string `json:"uri"`
			Text string `json:"text"`
			Blob string `json:"blob"`
		} `json:"contents"`
	}
	if err := json.Unmarshal(result, &raw); err != nil {
		return "", fmt.Errorf("mcp: decode resources/read result from %q: %w", c.cfg.Name, err)
	}

	out := ""
	for i, content := range raw.Contents {
		if i > 0 {
			out += "\n"
		}
		if content.Text != "" {
			out += content.Text
		} else if content.Blob != "" {
			out += fmt.Sprintf("[binary resource %s, %d bytes base64 omitted]", content.URI, len(content.Blob))
		}
	}
	return out, nil
}

// SubscribeLogs exposes the child's stderr stream, or nil if the session
// never started a transport.
func (c *Client) SubscribeLogs() *LogSubscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport == nil {
		return nil
	}
	return c.transport.SubscribeLogs()
}
