// Package cli builds the terminal entrypoint (spec §6 "CLI surface"). It
// replaces genesis's main.go gateway-bootstrap/hot-reload-restart loop with a
// single direct REPL session, since spec.md scopes the whole system to one
// local terminal user rather than a reconnecting multi-channel gateway. The
// config/monitor/client bootstrap ordering is kept from main.go's runAgent.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"forgeloop/internal/config"
	"forgeloop/internal/curator"
	"forgeloop/internal/loop"
	"forgeloop/internal/monitor"
	"forgeloop/internal/permission"
	"forgeloop/internal/provider"
	_ "forgeloop/internal/provider/lmstudio" // self-registers with the provider package
	_ "forgeloop/internal/provider/ollama"   // self-registers with the provider package
	"forgeloop/internal/tokenest"
	"forgeloop/internal/tools"
	"forgeloop/internal/tracker"
	"forgeloop/internal/tui"
)

const appName = "forgeloop"

// Exit codes per spec §6.
const (
	ExitOK              = 0
	ExitInitFailure     = 1
	ExitUnrecoverable   = 2
)

type flags struct {
	model        string
	ollamaHost   string
	lmstudioHost string
	configPath   string
	runCommand   bool
	useTUI       bool
	configure    bool
}

// Execute builds and runs the root cobra command, returning the process
// exit code.
func Execute() int {
	f := &flags{}
	exitCode := ExitOK

	root := &cobra.Command{
		Use:           appName,
		Short:         appName + " is a local agentic coding assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := run(cmd.Context(), f)
			exitCode = code
			return err
		},
	}

	root.Flags().StringVar(&f.model, "model", "", "override the configured model name")
	root.Flags().StringVar(&f.ollamaHost, "ollama-host", "", "override the configured Ollama base URL")
	root.Flags().StringVar(&f.lmstudioHost, "lmstudio-host", "", "override the configured LM Studio base URL")
	root.Flags().StringVar(&f.configPath, "config", "", "path to config.json (default: $XDG_CONFIG_HOME/"+appName+"/config.json)")
	root.Flags().BoolVar(&f.runCommand, "enable-run-command", false, "register the supplemental run_command tool")
	root.Flags().BoolVar(&f.useTUI, "tui", false, "run the bubbletea terminal UI instead of the plain REPL")
	root.Flags().BoolVar(&f.configure, "configure", false, "open the interactive config editor and exit")

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if exitCode == ExitOK {
			exitCode = ExitInitFailure
		}
	}
	return exitCode
}

func run(ctx context.Context, f *flags) (int, error) {
	monitor.SetupSlog("info")

	cfgPath := f.configPath
	if cfgPath == "" {
		cfgPath = config.Path(appName, "config.json")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return ExitInitFailure, fmt.Errorf("loading config: %w", err)
	}
	if f.model != "" {
		cfg.Model = f.model
	}
	if f.ollamaHost != "" {
		cfg.OllamaHost = f.ollamaHost
	}
	if f.lmstudioHost != "" {
		cfg.LMStudioHost = f.lmstudioHost
	}

	if f.configure {
		edited, err := tui.RunConfigForm(cfg)
		if err != nil {
			return ExitInitFailure, fmt.Errorf("config editor: %w", err)
		}
		if err := config.Save(cfgPath, edited); err != nil {
			return ExitInitFailure, fmt.Errorf("saving config: %w", err)
		}
		return ExitOK, nil
	}

	host := cfg.OllamaHost
	if cfg.Provider == "lmstudio" {
		host = cfg.LMStudioHost
	}
	client, err := provider.New(cfg.Provider, host, cfg.Model)
	if err != nil {
		return ExitInitFailure, fmt.Errorf("constructing provider client: %w", err)
	}

	opts := provider.Options{
		NumCtx:         cfg.NumCtx,
		NumPredict:     cfg.NumPredict,
		EnableThinking: cfg.EnableThinking,
		Stream:         true,
	}

	policyPath := filepath.Join(filepath.Dir(cfgPath), "policies.json")
	permEngine := permission.Load(policyPath)
	policyReloadCh := config.Watch(ctx, policyPath)

	trk := tracker.New()
	estimator := tokenest.New(tokenest.Config{
		MaxContextTokens:          cfg.NumCtx,
		TriggerThresholdPct:       0.8,
		TargetUsagePct:            0.6,
		MinMessagesBeforeCompress: 6,
		CompressionEnabled:        true,
	})
	taskStore := tools.NewTaskStore()
	once := provider.NewOnce(client, cfg.Model, opts)
	cur := curator.New(once)

	registry := tools.NewRegistry()
	registerBaselineTools(registry, cur, f.runCommand, trk)

	compressionRegistry := tools.NewRegistry()
	registerCompressionTools(compressionRegistry, trk)

	execCtx := &tools.ExecContext{
		Tracker: trk,
		Config: tools.ToolConfig{
			FileReadSmallThreshold: cfg.FileReadSmallThreshold,
			WorkingDir:             ".",
		},
		LLM:       once,
		Tasks:     taskStore,
		Estimator: estimator,
	}
	compressionExecCtx := &tools.ExecContext{
		Tracker:   trk,
		Config:    execCtx.Config,
		LLM:       once,
		Tasks:     taskStore,
		Estimator: estimator,
	}

	printer := monitor.NewPrinter()
	printer.Banner(appName)

	l := &loop.Loop{
		Provider:            client,
		Model:               cfg.Model,
		Opts:                opts,
		SystemPrompt:        systemPrompt,
		Registry:            registry,
		Permission:          permEngine,
		Tracker:             trk,
		Estimator:           estimator,
		Tasks:               taskStore,
		ExecCtx:             execCtx,
		CompressionLLM:      once,
		CompressionMode:     "mode1",
		CompressionRegistry: compressionRegistry,
		CompressionExecCtx:  compressionExecCtx,
		Printer:             printer,
		OnPrompt:            promptForPermission(printer),
		OnTextDelta: func(s string) {
			fmt.Fprint(os.Stdout, s)
		},
	}

	if f.useTUI {
		return runTUI(ctx, l)
	}
	return repl(ctx, l, printer, policyPath, policyReloadCh)
}

func runTUI(ctx context.Context, l *loop.Loop) (int, error) {
	m := tui.New(ctx, l)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return ExitUnrecoverable, fmt.Errorf("tui: %w", err)
	}
	return ExitOK, nil
}

// repl runs the plain stdin/stdout REPL. Between turns it drains
// policyReloadCh (never blocking) and reloads the permission engine from
// policyPath, so hand edits to policies.json (e.g. revoking a remembered
// grant) take effect without restarting the session.
//
// ctrl+c (SIGINT) is trapped for the life of the REPL rather than left to
// the default process-kill behavior (spec §5 cancellation): it cancels only
// the turn currently in flight, and HandleTurn keeps whatever partial
// assistant text had streamed in before the cut. Quitting the program is
// /exit or /quit, never ctrl+c.
func repl(ctx context.Context, l *loop.Loop, printer *monitor.Printer, policyPath string, policyReloadCh <-chan struct{}) (int, error) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)

	for {
		fmt.Fprint(os.Stdout, "\n> ")
		if !scanner.Scan() {
			return ExitOK, nil
		}

		select {
		case <-policyReloadCh:
			l.Permission = permission.Load(policyPath)
			printer.Diagnostic("permission policies reloaded")
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			return ExitOK, nil
		}

		// Discard a SIGINT that landed while idle at the prompt; it isn't
		// meant to cancel a turn that hasn't started yet.
		select {
		case <-sigCh:
		default:
		}

		turnCtx, cancelTurn := context.WithCancel(ctx)
		turnDone := make(chan struct{})
		go func() {
			select {
			case <-sigCh:
				cancelTurn()
			case <-turnDone:
			}
		}()

		err := l.HandleTurn(turnCtx, line)
		close(turnDone)
		cancelTurn()

		if err != nil {
			if errors.Is(err, context.Canceled) {
				printer.Diagnostic("turn interrupted")
				fmt.Fprintln(os.Stdout)
				continue
			}
			printer.Diagnostic(fmt.Sprintf("turn failed: %v", err))
			return ExitUnrecoverable, nil
		}
		fmt.Fprintln(os.Stdout)
	}
}

func promptForPermission(printer *monitor.Printer) loop.PermissionPrompter {
	scanner := bufio.NewScanner(os.Stdin)
	return func(ctx context.Context, toolName string, argsJSON []byte) permission.UserResponse {
		printer.Diagnostic(fmt.Sprintf("permission requested for %s %s — allow once (o), allow for session (s), always allow (a), deny (d)?", toolName, string(argsJSON)))
		fmt.Fprint(os.Stdout, "> ")
		if !scanner.Scan() {
			return permission.ResponseDeny
		}
		switch strings.TrimSpace(strings.ToLower(scanner.Text())) {
		case "o":
			return permission.ResponseAllowOnce
		case "s":
			return permission.ResponseAllowSession
		case "a":
			return permission.ResponseRemember
		default:
			return permission.ResponseDeny
		}
	}
}

func registerBaselineTools(registry *tools.Registry, cur *curator.Curator, runCommand bool, trk *tracker.Tracker) {
	registry.Register(tools.GetFileTreeTool{})
	registry.Register(tools.ReadFileTool{Curator: cur})
	registry.Register(tools.ReadLinesTool{})
	registry.Register(tools.WriteFileTool{})
	registry.Register(tools.InsertLinesTool{})
	registry.Register(tools.ReplaceLinesTool{})
	registry.Register(tools.AddTaskTool{})
	registry.Register(tools.ListTasksTool{})
	registry.Register(tools.UpdateTaskTool{})
	registry.Register(tools.GetCurrentTimeTool{})
	if runCommand {
		registry.Register(tools.NewRunCommandTool(trk))
	}
}

func registerCompressionTools(registry *tools.Registry, trk *tracker.Tracker) {
	registry.Register(tools.GetCompressionMetadataTool{})
	registry.Register(tools.CompressToolResultTool{Tracker: trk})
	registry.Register(tools.CompressConversationSegmentTool{})
	registry.Register(tools.VerifyCompressionTargetTool{})
}

const systemPrompt = "You are a local coding assistant running against a small model. Use the registered tools to inspect and edit files; keep responses concise and prefer acting over describing. Track outstanding work with add_task/update_task when a request spans multiple steps."
