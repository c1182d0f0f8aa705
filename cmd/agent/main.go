// Command agent is the pocket-agent CLI: an interactive terminal chat
// session that extends a remote model with local and MCP-provided tools.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	sdk "github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/pocketomega/pocket-agent/internal/chat"
	"github.com/pocketomega/pocket-agent/internal/config"
	"github.com/pocketomega/pocket-agent/internal/llm/openai"
	"github.com/pocketomega/pocket-agent/internal/mcp"
	"github.com/pocketomega/pocket-agent/internal/prompts"
	"github.com/pocketomega/pocket-agent/internal/search"
	"github.com/pocketomega/pocket-agent/internal/session"
	"github.com/pocketomega/pocket-agent/internal/tool"
	"github.com/pocketomega/pocket-agent/internal/tool/builtin"
)

const version = "0.1.0"

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pocket-agent: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var workDir string

	cmd := &cobra.Command{
		Use:     "pocket-agent",
		Short:   "Interactive terminal agent with local and MCP tools",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), workDir)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVarP(&workDir, "workspace", "w", "", "workspace directory (default: cwd)")
	return cmd
}

func runChat(ctx context.Context, workDir string) error {
	config.LoadEnv()

	if workDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve workspace: %w", err)
		}
		workDir = cwd
	}
	if info, err := os.Stat(workDir); err != nil || !info.IsDir() {
		return fmt.Errorf("workspace %q does not exist or is not a directory", workDir)
	}

	settingsPath, err := config.SettingsPath()
	if err != nil {
		return err
	}
	settings, err := config.LoadSettings(settingsPath)
	if err != nil {
		return err
	}

	provider, err := openai.NewClientFromEnv()
	if err != nil {
		return fmt.Errorf("initialize model client: %w", err)
	}
	fmt.Printf("pocket-agent %s · model %s · workspace %s\n", version, provider.GetName(), workDir)

	// Native tool set. Read-only tools are default-trusted; write and
	// execute tools confirm per invocation.
	registry := tool.NewRegistry(
		builtin.NewShellRunTool(workDir),
		builtin.NewFileReadTool(workDir),
		builtin.NewFileWriteTool(workDir),
		builtin.NewFileAppendTool(workDir),
		builtin.NewListDirTool(workDir),
		builtin.NewCreateDirTool(workDir),
		builtin.NewReadSymlinkTool(workDir),
		builtin.NewSemanticSearchTool(search.NewLocalIndex(workDir)),
	)
	permissions := tool.NewPermissions("fs_read", "fs_list", "fs_read_symlink", "semantic_search")

	// MCP sessions from both config scopes; the workspace file wins.
	workspaceConfig := mcp.WorkspaceConfigPath(workDir)
	globalConfig, err := mcp.GlobalConfigPath()
	if err != nil {
		log.Printf("[Main] no global config dir: %v", err)
	}
	pool := mcp.NewPool(sdk.Implementation{Name: "pocket-agent", Version: version})
	defer pool.Shutdown()

	configs, err := mcp.LoadMerged(workspaceConfig, globalConfig)
	if err != nil {
		return err
	}
	pool.ConnectAll(ctx, configs)
	pool.SyncRegistry(ctx, registry)
	fmt.Printf("tools: %d registered (%d MCP server(s))\n", len(registry.List()), len(pool.All()))

	contextFiles, err := chat.LoadContextFiles(chat.ContextStorePath(workDir))
	if err != nil {
		return err
	}

	cancel := chat.NewCancelFlag()
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGINT)
	defer signal.Stop(interrupts)
	go func() {
		for range interrupts {
			cancel.Set()
			fmt.Fprintln(os.Stderr, "\n(interrupt: cancelling current turn)")
		}
	}()

	svc := &chat.Services{
		Provider:        provider,
		Registry:        registry,
		Permissions:     permissions,
		Pool:            pool,
		Prompts:         prompts.NewAggregator(pool),
		History:         session.NewHistory(settings.ContextWindow),
		Context:         contextFiles,
		IO:              chat.NewStdioOperator(os.Stdin, os.Stdout),
		Cancel:          cancel,
		SystemPrompt:    settings.SystemPrompt,
		WorkspaceConfig: workspaceConfig,
		GlobalConfig:    globalConfig,
	}

	return chat.NewSession(svc).Run(ctx)
}
