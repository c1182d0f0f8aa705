package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	sdk "github.com/mark3labs/mcp-go/mcp"
)

// scriptedServer is an in-process MCP server speaking newline-framed
// JSON-RPC over pipes. Each inbound request is answered by handle; the
// default handler covers initialize. Notifications are recorded.
type scriptedServer struct {
	stdin  io.WriteCloser // client writes here (server's stdin)
	stdout io.Reader      // client reads here (server's stdout)

	serverIn  io.Reader
	serverOut io.WriteCloser

	mu            sync.Mutex
	calls         map[string]int
	notifications []string

	handle func(method string, id int64, params json.RawMessage) (result any, rpcErr *RPCError, respond bool)
}

func newScriptedServer(handle func(method string, id int64, params json.RawMessage) (any, *RPCError, bool)) *scriptedServer {
	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()
	s := &scriptedServer{
		stdin:     c2sW,
		stdout:    s2cR,
		serverIn:  c2sR,
		serverOut: s2cW,
		calls:     make(map[string]int),
		handle:    handle,
	}
	go s.serve()
	return s
}

// transport builds the client-side transport over the server's pipes.
func (s *scriptedServer) transport() *Transport {
	return NewTransport(s.stdin, s.stdout, nil)
}

func (s *scriptedServer) callCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *scriptedServer) notified() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.notifications...)
}

// send writes one raw message to the client.
func (s *scriptedServer) send(msg *Message) {
	data, _ := json.Marshal(msg)
	fmt.Fprintf(s.serverOut, "%s\n", data)
}

func (s *scriptedServer) respond(id int64, result any) {
	raw, _ := json.Marshal(result)
	s.send(&Message{JSONRPC: jsonrpcVersion, ID: &id, Result: raw})
}

func (s *scriptedServer) close() { _ = s.serverOut.Close() }

func (s *scriptedServer) serve() {
	scanner := bufio.NewScanner(s.serverIn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}

		s.mu.Lock()
		if msg.Method != "" {
			s.calls[msg.Method]++
		}
		if msg.IsNotification() {
			s.notifications = append(s.notifications, msg.Method)
			s.mu.Unlock()
			continue
		}
		s.mu.Unlock()

		id := *msg.ID
		if msg.Method == "initialize" {
			s.respond(id, map[string]any{
				"protocolVersion": protocolVersion,
				"capabilities":    map[string]any{"tools": map[string]any{}},
				"serverInfo":      map[string]any{"name": "scripted", "version": "0.0.1"},
			})
			continue
		}
		if s.handle != nil {
			if result, rpcErr, respond := s.handle(msg.Method, id, msg.Params); respond {
				if rpcErr != nil {
					s.send(&Message{JSONRPC: jsonrpcVersion, ID: &id, Error: rpcErr})
				} else {
					s.respond(id, result)
				}
			}
			continue
		}
		s.respond(id, map[string]any{})
	}
}

// emptyCatalogs answers tools/prompts/resources lists with empty pages.
func emptyCatalogs(method string, _ int64, _ json.RawMessage) (any, *RPCError, bool) {
	switch method {
	case "tools/list":
		return map[string]any{"tools": []any{}}, nil, true
	case "prompts/list":
		return map[string]any{"prompts": []any{}}, nil, true
	case "resources/list":
		return map[string]any{"resources": []any{}}, nil, true
	}
	return map[string]any{}, nil, true
}

func attachClient(t *testing.T, srv *scriptedServer, cfg ServerConfig) *Client {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "scripted"
	}
	client := NewClient(cfg)
	err := client.Attach(context.Background(), srv.transport(),
		sdk.Implementation{Name: "pocket-agent", Version: "0.1.0"})
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	return client
}

// ── handshake ──

func TestClient_HandshakeReachesReady(t *testing.T) {
	srv := newScriptedServer(emptyCatalogs)
	defer srv.close()

	client := attachClient(t, srv, ServerConfig{})
	defer client.Shutdown()

	state, reason := client.State()
	if state != StateReady {
		t.Fatalf("state = %s (%s), want ready", state, reason)
	}
	// The initialized notification must follow the initialize response.
	found := false
	for _, n := range srv.notified() {
		if n == "notifications/initialized" {
			found = true
		}
	}
	if !found {
		t.Errorf("notifications/initialized not sent; got %v", srv.notified())
	}
}

// ── pagination ──

func TestClient_ToolsListPagination(t *testing.T) {
	tools := func(names ...string) []map[string]any {
		out := make([]map[string]any, 0, len(names))
		for _, n := range names {
			out = append(out, map[string]any{
				"name":        n,
				"description": "tool " + n,
				"inputSchema": map[string]any{"type": "object"},
			})
		}
		return out
	}

	srv := newScriptedServer(func(method string, id int64, params json.RawMessage) (any, *RPCError, bool) {
		switch method {
		case "tools/list":
			var p cursorParams
			_ = json.Unmarshal(params, &p)
			switch p.Cursor {
			case "":
				return map[string]any{"tools": tools("A", "B"), "nextCursor": "p2"}, nil, true
			case "p2":
				return map[string]any{"tools": tools("C"), "nextCursor": "p3"}, nil, true
			case "p3":
				return map[string]any{"tools": tools("D")}, nil, true
			default:
				return nil, &RPCError{Code: -32602, Message: "bad cursor"}, true
			}
		case "prompts/list":
			return map[string]any{"prompts": []any{}}, nil, true
		case "resources/list":
			return map[string]any{"resources": []any{}}, nil, true
		}
		return map[string]any{}, nil, true
	})
	defer srv.close()

	client := attachClient(t, srv, ServerConfig{})
	defer client.Shutdown()

	got, err := client.Tools(context.Background())
	if err != nil {
		t.Fatalf("Tools: %v", err)
	}
	want := []string{"A", "B", "C", "D"}
	if len(got) != len(want) {
		t.Fatalf("got %d tools, want %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("tool %d = %q, want %q (server order must survive page merging)", i, got[i].Name, name)
		}
	}
	if n := srv.callCount("tools/list"); n != 3 {
		t.Errorf("tools/list requested %d times, want 3", n)
	}
}

// ── request timeout ──

func TestClient_RequestTimeoutKeepsSessionAlive(t *testing.T) {
	srv := newScriptedServer(func(method string, id int64, params json.RawMessage) (any, *RPCError, bool) {
		if method == "tools/call" {
			return nil, nil, false // never answer
		}
		return emptyCatalogs(method, id, params)
	})
	defer srv.close()

	client := attachClient(t, srv, ServerConfig{TimeoutMs: 100})
	defer client.Shutdown()

	_, err := client.CallTool(context.Background(), "slow", nil)
	if !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("err = %v, want ErrRequestTimeout", err)
	}

	// The session survives; a catalog fetch still works.
	if state, _ := client.State(); state != StateReady {
		t.Errorf("state = %s, want ready after request timeout", state)
	}
	if _, err := client.Tools(context.Background()); err != nil {
		t.Errorf("Tools after timeout: %v", err)
	}
}

// ── duplicate response ids (protocol violation) ──

func TestClient_DuplicateResponseIDClosesSession(t *testing.T) {
	var dupID int64 = -1
	srv := newScriptedServer(func(method string, id int64, params json.RawMessage) (any, *RPCError, bool) {
		if method == "tools/call" {
			dupID = id
			return map[string]any{"content": []map[string]any{{"type": "text", "text": "ok"}}}, nil, true
		}
		return emptyCatalogs(method, id, params)
	})
	defer srv.close()

	client := attachClient(t, srv, ServerConfig{})
	defer client.Shutdown()

	if _, err := client.CallTool(context.Background(), "x", nil); err != nil {
		t.Fatalf("CallTool: %v", err)
	}

	// Replay the same response id.
	srv.respond(dupID, map[string]any{"content": []any{}})

	deadline := time.Now().Add(2 * time.Second)
	for {
		state, reason := client.State()
		if state == StateClosed {
			if reason == "" {
				t.Error("closed without a reason")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session not closed after duplicate id, state=%s", state)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := client.CallTool(context.Background(), "x", nil); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("call on closed session: %v, want ErrSessionClosed", err)
	}
}

// ── list_changed notifications ──

func TestClient_ListChangedMarksStale(t *testing.T) {
	generation := 0
	var mu sync.Mutex
	srv := newScriptedServer(func(method string, id int64, params json.RawMessage) (any, *RPCError, bool) {
		if method == "tools/list" {
			mu.Lock()
			generation++
			name := fmt.Sprintf("tool_v%d", generation)
			mu.Unlock()
			return map[string]any{"tools": []map[string]any{{
				"name":        name,
				"description": "d",
				"inputSchema": map[string]any{"type": "object"},
			}}}, nil, true
		}
		return emptyCatalogs(method, id, params)
	})
	defer srv.close()

	client := attachClient(t, srv, ServerConfig{})
	defer client.Shutdown()

	first, err := client.Tools(context.Background())
	if err != nil || len(first) != 1 || first[0].Name != "tool_v1" {
		t.Fatalf("first fetch = %v, %v", first, err)
	}

	srv.send(&Message{JSONRPC: jsonrpcVersion, Method: "notifications/tools/list_changed"})

	// The stale flag is applied asynchronously; poll until the next read
	// refetches.
	deadline := time.Now().Add(2 * time.Second)
	for {
		tools, err := client.Tools(context.Background())
		if err != nil {
			t.Fatalf("Tools: %v", err)
		}
		if len(tools) == 1 && tools[0].Name == "tool_v2" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("catalog never refetched, still %v", tools)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if n := srv.callCount("tools/list"); n != 2 {
		t.Errorf("tools/list requested %d times, want 2 (initial + refetch)", n)
	}
}

// ── tools/call content handling ──

func TestClient_CallToolRedactsImages(t *testing.T) {
	srv := newScriptedServer(func(method string, id int64, params json.RawMessage) (any, *RPCError, bool) {
		if method == "tools/call" {
			return map[string]any{"content": []map[string]any{
				{"type": "text", "text": "before"},
				{"type": "image", "mimeType": "image/png", "data": "aGVsbG8gd29ybGQ="},
				{"type": "text", "text": "after"},
			}}, nil, true
		}
		return emptyCatalogs(method, id, params)
	})
	defer srv.close()

	client := attachClient(t, srv, ServerConfig{})
	defer client.Shutdown()

	result, err := client.CallTool(context.Background(), "shot", nil)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if len(result.Content) != 3 {
		t.Fatalf("content blocks = %d, want 3", len(result.Content))
	}
	img := result.Content[1]
	if img.Type != "image" {
		t.Errorf("block 1 type = %q", img.Type)
	}
	if img.Text == "" || len(img.Text) > 100 {
		t.Errorf("image not redacted to a size hint: %q", img.Text)
	}
	text := result.Text()
	if !strings.Contains(text, "before") || !strings.Contains(text, "after") {
		t.Errorf("text blocks lost: %q", text)
	}
	if strings.Contains(text, "aGVsbG8gd29ybGQ=") {
		t.Error("base64 payload leaked into model-visible text")
	}
}

func TestClient_CallToolIsError(t *testing.T) {
	srv := newScriptedServer(func(method string, id int64, params json.RawMessage) (any, *RPCError, bool) {
		if method == "tools/call" {
			return map[string]any{
				"content": []map[string]any{{"type": "text", "text": "disk full"}},
				"isError": true,
			}, nil, true
		}
		return emptyCatalogs(method, id, params)
	})
	defer srv.close()

	client := attachClient(t, srv, ServerConfig{})
	defer client.Shutdown()

	result, err := client.CallTool(context.Background(), "x", nil)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Error("IsError lost")
	}
	if result.Text() != "disk full" {
		t.Errorf("text = %q", result.Text())
	}
}

// ── transport death ──

func TestClient_TransportDeathClosesSession(t *testing.T) {
	srv := newScriptedServer(emptyCatalogs)

	client := attachClient(t, srv, ServerConfig{})
	srv.close() // child "exits"

	deadline := time.Now().Add(2 * time.Second)
	for {
		if state, _ := client.State(); state == StateClosed {
			break
		}
		if time.Now().After(deadline) {
			state, _ := client.State()
			t.Fatalf("state = %s, want closed after transport death", state)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// ── degraded init ──

func TestClient_MissingBinaryDegrades(t *testing.T) {
	client := NewClient(ServerConfig{
		Name:      "fs",
		Command:   "/nonexistent/definitely-not-a-binary",
		TimeoutMs: 500,
	})
	err := client.Init(context.Background(), sdk.Implementation{Name: "pocket-agent", Version: "0.1.0"})
	if err == nil {
		t.Fatal("expected init failure")
	}

	state, reason := client.State()
	if state != StateDegraded {
		t.Fatalf("state = %s, want degraded", state)
	}
	if reason == "" {
		t.Error("degradation reason not captured")
	}
}

// ── resources ──

func TestClient_ReadResource(t *testing.T) {
	srv := newScriptedServer(func(method string, id int64, params json.RawMessage) (any, *RPCError, bool) {
		switch method {
		case "resources/list":
			return map[string]any{"resources": []map[string]any{{
				"uri":  "file:///notes.txt",
				"name": "notes",
			}}}, nil, true
		case "resources/read":
			return map[string]any{"contents": []map[string]any{{
				"uri":  "file:///notes.txt",
				"text": "the notes",
			}}}, nil, true
		case "tools/list":
			return map[string]any{"tools": []any{}}, nil, true
		case "prompts/list":
			return map[string]any{"prompts": []any{}}, nil, true
		}
		return map[string]any{}, nil, true
	})
	defer srv.close()

	client := attachClient(t, srv, ServerConfig{})
	defer client.Shutdown()

	resources, err := client.Resources(context.Background())
	if err != nil || len(resources) != 1 || resources[0].URI != "file:///notes.txt" {
		t.Fatalf("Resources = %v, %v", resources, err)
	}

	content, err := client.ReadResource(context.Background(), "file:///notes.txt")
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if content != "the notes" {
		t.Errorf("content = %q", content)
	}
}

// ── prompts ──

func TestClient_GetPrompt(t *testing.T) {
	srv := newScriptedServer(func(method string, id int64, params json.RawMessage) (any, *RPCError, bool) {
		switch method {
		case "prompts/list":
			return map[string]any{"prompts": []map[string]any{{
				"name":        "review",
				"description": "code review",
				"arguments":   []map[string]any{{"name": "path", "required": true}},
			}}}, nil, true
		case "prompts/get":
			var p struct {
				Name      string            `json:"name"`
				Arguments map[string]string `json:"arguments"`
			}
			_ = json.Unmarshal(params, &p)
			return map[string]any{"messages": []map[string]any{{
				"role":    "user",
				"content": map[string]any{"type": "text", "text": "review " + p.Arguments["path"]},
			}}}, nil, true
		case "tools/list":
			return map[string]any{"tools": []any{}}, nil, true
		case "resources/list":
			return map[string]any{"resources": []any{}}, nil, true
		}
		return map[string]any{}, nil, true
	})
	defer srv.close()

	client := attachClient(t, srv, ServerConfig{})
	defer client.Shutdown()

	prompts, err := client.Prompts(context.Background())
	if err != nil || len(prompts) != 1 || prompts[0].Name != "review" {
		t.Fatalf("Prompts = %v, %v", prompts, err)
	}

	msgs, err := client.GetPrompt(context.Background(), "review", map[string]string{"path": "main.go"})
	if err != nil {
		t.Fatalf("GetPrompt: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != "user" || msgs[0].Content != "review main.go" {
		t.Errorf("messages = %+v", msgs)
	}
}
