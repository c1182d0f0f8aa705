package chat

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pocketomega/pocket-agent/internal/mcp"
	"github.com/pocketomega/pocket-agent/internal/session"
)

// commandFunc handles one slash command. Operator errors are returned and
// rendered inline; the turn is never consumed.
type commandFunc func(ctx context.Context, args []string) error

// Dispatcher routes slash commands to handlers without involving the
// model.
type Dispatcher struct {
	svc      *Services
	enqueue  func([]mcp.PromptMessage)
	commands map[string]commandFunc
}

// NewDispatcher creates a dispatcher over the service bundle. enqueue
// receives rendered prompt messages for the pending queue.
func NewDispatcher(svc *Services, enqueue func([]mcp.PromptMessage)) *Dispatcher {
	d := &Dispatcher{svc: svc, enqueue: enqueue}
	d.commands = map[string]commandFunc{
		"help":    d.cmdHelp,
		"tools":   d.cmdTools,
		"prompts": d.cmdPrompts,
		"usage":   d.cmdUsage,
		"mcp":     d.cmdMcp,
		"compact": d.cmdCompact,
		"clear":   d.cmdClear,
		"context": d.cmdContext,
	}
	return d
}

// Dispatch parses and executes one slash-command line. The leading '/'
// must already be present.
func (d *Dispatcher) Dispatch(ctx context.Context, line string) error {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		return fmt.Errorf("empty command; try /help")
	}
	fn, ok := d.commands[fields[0]]
	if !ok {
		return fmt.Errorf("unknown command /%s; try /help", fields[0])
	}
	return fn(ctx, fields[1:])
}

func (d *Dispatcher) cmdHelp(_ context.Context, _ []string) error {
	fmt.Fprint(d.svc.IO, `Available commands:
/tools [schema|trust NAME...|untrust NAME...|trust-all|reset [NAME]]
/prompts [list [word]|get NAME [ARG...]]
/usage
/mcp [list|status NAME|add NAME CMD [ARG...]|remove NAME|import PATH]
     (--scope workspace|global, --force, --timeout MS where applicable)
/compact [N]
/clear
/context [show|add PATH|rm PATH|clear]
/help
`)
	return nil
}

// ── /tools ──

func (d *Dispatcher) cmdTools(_ context.Context, args []string) error {
	svc := d.svc
	if len(args) == 0 {
		entries := svc.Registry.List()
		if len(entries) == 0 {
			fmt.Fprintln(svc.IO, "No tools available.")
			return nil
		}
		fmt.Fprintln(svc.IO, "Trusted tools will run without confirmation.")
		for _, e := range entries {
			origin := "native"
			if e.Origin != "" {
				origin = e.Origin
			}
			marker := "per-request"
			if svc.Permissions.IsTrusted(e.DisplayName) {
				marker = "trusted"
			}
			fmt.Fprintf(svc.IO, "  %-30s %-12s %s\n", e.DisplayName, origin, marker)
		}
		if svc.Permissions.TrustAllSet() {
			fmt.Fprintln(svc.IO, "trust-all is active.")
		}
		return nil
	}

	switch args[0] {
	case "schema":
		fmt.Fprintf(svc.IO, "%s\n", svc.Registry.SchemaJSON())
		return nil
	case "trust", "untrust":
		if len(args) < 2 {
			return fmt.Errorf("/tools %s needs at least one tool name", args[0])
		}
		var invalid []string
		for _, name := range args[1:] {
			if _, ok := svc.Registry.Get(name); !ok {
				invalid = append(invalid, name)
			}
		}
		if len(invalid) > 0 {
			return fmt.Errorf("cannot %s '%s': not in the tool list", args[0], strings.Join(invalid, "', '"))
		}
		for _, name := range args[1:] {
			if args[0] == "trust" {
				svc.Permissions.Trust(name)
			} else {
				svc.Permissions.Untrust(name)
			}
		}
		if args[0] == "trust" {
			fmt.Fprintf(svc.IO, "Tools '%s' are now trusted for this session.\n", strings.Join(args[1:], "', '"))
		} else {
			fmt.Fprintf(svc.IO, "Tools '%s' are set to per-request confirmation.\n", strings.Join(args[1:], "', '"))
		}
		return nil
	case "trust-all":
		svc.Permissions.TrustAll()
		fmt.Fprintln(svc.IO, "All tools are now trusted for this session.")
		return nil
	case "reset":
		if len(args) > 1 {
			svc.Permissions.ResetTool(args[1])
			fmt.Fprintf(svc.IO, "Tool '%s' reset to its default.\n", args[1])
		} else {
			svc.Permissions.Reset()
			fmt.Fprintln(svc.IO, "Tool permissions reset to defaults.")
		}
		return nil
	default:
		return fmt.Errorf("unknown /tools subcommand %q", args[0])
	}
}

// ── /prompts ──

func (d *Dispatcher) cmdPrompts(ctx context.Context, args []string) error {
	svc := d.svc
	sub := "list"
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}

	switch sub {
	case "list":
		word := ""
		if len(args) > 0 {
			word = args[0]
		}
		entries, err := svc.Prompts.List(ctx, word)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(svc.IO, "No prompts available.")
			return nil
		}
		for _, e := range entries {
			var argNames []string
			for _, a := range e.Arguments {
				name := a.Name
				if a.Required {
					name += "*"
				}
				argNames = append(argNames, name)
			}
			fmt.Fprintf(svc.IO, "  %-30s %s", e.Ref(), e.Description)
			if len(argNames) > 0 {
				fmt.Fprintf(svc.IO, " (args: %s)", strings.Join(argNames, ", "))
			}
			fmt.Fprintln(svc.IO)
		}
		return nil
	case "get":
		if len(args) == 0 {
			return fmt.Errorf("/prompts get needs a prompt name")
		}
		msgs, err := svc.Prompts.Get(ctx, args[0], args[1:])
		if err != nil {
			return err
		}
		d.enqueue(msgs)
		fmt.Fprintf(svc.IO, "Queued %d prompt message(s).\n", len(msgs))
		return nil
	default:
		return fmt.Errorf("unknown /prompts subcommand %q", sub)
	}
}

// ── /usage ──

func (d *Dispatcher) cmdUsage(_ context.Context, _ []string) error {
	renderUsage(d.svc.IO, measureUsage(d.svc))
	return nil
}

// ── /mcp ──

func (d *Dispatcher) cmdMcp(ctx context.Context, args []string) error {
	svc := d.svc
	sub := "list"
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}

	flags, rest := splitFlags(args)
	scopePath := svc.WorkspaceConfig
	if flags["scope"] == string(mcp.ScopeGlobal) {
		scopePath = svc.GlobalConfig
	}
	force := flags["force"] == "true"

	switch sub {
	case "list":
		clients := svc.Pool.All()
		if len(clients) == 0 {
			fmt.Fprintln(svc.IO, "No MCP servers configured.")
			return nil
		}
		sort.Slice(clients, func(i, j int) bool { return clients[i].Name() < clients[j].Name() })
		for _, c := range clients {
			state, _ := c.State()
			fmt.Fprintf(svc.IO, "  %-20s %-12s %s\n", c.Name(), state, c.Config().Command)
		}
		return nil

	case "status":
		if len(rest) == 0 {
			return fmt.Errorf("/mcp status needs a server name")
		}
		client, ok := svc.Pool.Get(rest[0])
		if !ok {
			return fmt.Errorf("no MCP server named %q", rest[0])
		}
		state, reason := client.State()
		fmt.Fprintf(svc.IO, "%s: %s\n", client.Name(), state)
		if reason != "" {
			fmt.Fprintf(svc.IO, "  reason: %s\n", reason)
		}
		cfg := client.Config()
		fmt.Fprintf(svc.IO, "  command: %s %s\n", cfg.Command, strings.Join(cfg.Args, " "))
		if info := client.ServerInfo(); info.Name != "" {
			fmt.Fprintf(svc.IO, "  server: %s %s\n", info.Name, info.Version)
		}

		// With a URI argument, read that resource; otherwise list them.
		if state == mcp.StateReady {
			if len(rest) > 1 {
				content, err := client.ReadResource(ctx, rest[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(svc.IO, content)
				return nil
			}
			resources, err := client.Resources(ctx)
			if err != nil {
				return err
			}
			for _, r := range resources {
				fmt.Fprintf(svc.IO, "  resource: %s\n", r.URI)
			}
		}
		return nil

	case "add":
		if len(rest) < 2 {
			return fmt.Errorf("/mcp add needs a name and a command")
		}
		cfg := mcp.ServerConfig{Name: rest[0], Command: rest[1], Args: rest[2:]}
		if ms, ok := flags["timeout"]; ok {
			n, err := strconv.ParseInt(ms, 10, 64)
			if err != nil {
				return fmt.Errorf("bad --timeout %q", ms)
			}
			cfg.TimeoutMs = n
		}
		if err := mcp.AddServer(scopePath, cfg, force); err != nil {
			return err
		}
		svc.Pool.Connect(ctx, cfg, force)
		svc.Pool.SyncRegistry(ctx, svc.Registry)
		fmt.Fprintf(svc.IO, "Added MCP server '%s'.\n", cfg.Name)
		return nil

	case "remove":
		if len(rest) == 0 {
			return fmt.Errorf("/mcp remove needs a server name")
		}
		removed, err := mcp.RemoveServer(scopePath, rest[0])
		if err != nil {
			return err
		}
		if !removed {
			fmt.Fprintf(svc.IO, "No MCP server named '%s' in that scope.\n", rest[0])
			return nil
		}
		svc.Pool.Remove(rest[0])
		svc.Pool.SyncRegistry(ctx, svc.Registry)
		svc.Registry.RemoveServer(rest[0])
		fmt.Fprintf(svc.IO, "Removed MCP server '%s'.\n", rest[0])
		return nil

	case "import":
		if len(rest) == 0 {
			return fmt.Errorf("/mcp import needs a source path")
		}
		imported, err := mcp.ImportConfig(scopePath, rest[0], force)
		if err != nil {
			return err
		}
		if len(imported) == 0 {
			fmt.Fprintln(svc.IO, "Nothing imported.")
			return nil
		}
		configs, err := mcp.LoadMerged(svc.WorkspaceConfig, svc.GlobalConfig)
		if err != nil {
			return err
		}
		for _, cfg := range configs {
			for _, name := range imported {
				if cfg.Name == name {
					svc.Pool.Connect(ctx, cfg, force)
				}
			}
		}
		svc.Pool.SyncRegistry(ctx, svc.Registry)
		fmt.Fprintf(svc.IO, "Imported: %s\n", strings.Join(imported, ", "))
		return nil

	default:
		return fmt.Errorf("unknown /mcp subcommand %q", sub)
	}
}

// ── /compact, /clear ──

func (d *Dispatcher) cmdCompact(ctx context.Context, args []string) error {
	keep := session.DefaultCompactKeep
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return fmt.Errorf("bad /compact count %q", args[0])
		}
		keep = n
	}
	before := d.svc.History.Len()
	if err := d.svc.History.Compact(ctx, d.svc.Provider, keep); err != nil {
		return err
	}
	fmt.Fprintf(d.svc.IO, "Compacted %d exchange(s) into a summary; %d kept.\n",
		before-d.svc.History.Len(), d.svc.History.Len())
	return nil
}

func (d *Dispatcher) cmdClear(_ context.Context, _ []string) error {
	d.svc.History.Clear()
	fmt.Fprintln(d.svc.IO, "Conversation cleared.")
	return nil
}

// ── /context ──

func (d *Dispatcher) cmdContext(_ context.Context, args []string) error {
	svc := d.svc
	sub := "show"
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}

	switch sub {
	case "show":
		paths := svc.Context.Paths()
		if len(paths) == 0 {
			fmt.Fprintln(svc.IO, "No context files.")
			return nil
		}
		for _, p := range paths {
			fmt.Fprintf(svc.IO, "  %s\n", p)
		}
		return nil
	case "add":
		if len(args) == 0 {
			return fmt.Errorf("/context add needs a path")
		}
		if err := svc.Context.Add(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(svc.IO, "Added context file %s.\n", args[0])
		return nil
	case "rm":
		if len(args) == 0 {
			return fmt.Errorf("/context rm needs a path")
		}
		removed, err := svc.Context.Remove(args[0])
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("%q is not a context file", args[0])
		}
		fmt.Fprintf(svc.IO, "Removed context file %s.\n", args[0])
		return nil
	case "clear":
		if err := svc.Context.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(svc.IO, "Context files cleared.")
		return nil
	default:
		return fmt.Errorf("unknown /context subcommand %q", sub)
	}
}

// splitFlags separates --key[=value] flags from positional arguments.
// A bare --flag becomes "true".
func splitFlags(args []string) (map[string]string, []string) {
	flags := make(map[string]string)
	var rest []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			rest = append(rest, arg)
			continue
		}
		body := strings.TrimPrefix(arg, "--")
		if key, value, found := strings.Cut(body, "="); found {
			flags[key] = value
		} else if body == "force" {
			flags[body] = "true"
		} else if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
			flags[body] = args[i+1]
			i++
		} else {
			flags[body] = "true"
		}
	}
	return flags, rest
}
