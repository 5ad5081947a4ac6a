// Package loop implements the Master Loop (spec §4.J): the per-turn
// orchestration of token estimation, compression, hot-context injection,
// provider streaming, and tool execution. Grounded on main.go's runAgent
// bootstrap shape (config load -> monitor setup -> client construction ->
// engine construction) collapsed from genesis's multi-channel-gateway
// restart loop to a single direct CLI session loop, since spec.md scopes
// this to one terminal user rather than a reconnecting multi-channel
// gateway; the per-turn tool-call recursion itself is delegated to
// internal/statemachine (grounded separately on pkg/agent/engine.go).
package loop

import (
	"context"
	"fmt"

	"forgeloop/internal/compression"
	"forgeloop/internal/hotcontext"
	"forgeloop/internal/message"
	"forgeloop/internal/monitor"
	"forgeloop/internal/permission"
	"forgeloop/internal/provider"
	"forgeloop/internal/statemachine"
	"forgeloop/internal/tokenest"
	"forgeloop/internal/tools"
	"forgeloop/internal/tracker"
)

// PermissionPrompter asks the host to resolve an ask_user decision. It must
// not return until the user has answered; the master loop blocks the
// current turn on it, matching spec §4.I's "host must render prompt and
// report decision back" contract.
type PermissionPrompter func(ctx context.Context, toolName string, argsJSON []byte) permission.UserResponse

// Loop owns the single session's conversation, tracker, and every
// collaborator the Master Loop pseudocode names.
type Loop struct {
	Provider     provider.Client
	Model        string
	Opts         provider.Options
	SystemPrompt string

	Registry   *tools.Registry
	Permission *permission.Engine
	Tracker    *tracker.Tracker
	Estimator  *tokenest.Estimator
	Tasks      *tools.TaskStore
	ExecCtx    *tools.ExecContext

	CompressionLLM      compression.CompleteOnce
	CompressionMode     string // "mode1" (default) or "mode2"
	CompressionRegistry *tools.Registry
	CompressionExecCtx  *tools.ExecContext

	Printer    *monitor.Printer
	OnPrompt   PermissionPrompter
	OnTextDelta func(string)

	Messages []message.Message
}

// HandleTurn runs one user message to completion: compression if needed,
// streaming, and the tool-call cycles the assistant requests (spec §4.J
// steps 1-7).
func (l *Loop) HandleTurn(ctx context.Context, userInput string) error {
	warnIfInjection(userInput)

	userMsg := message.NewMessage(message.RoleUser, userInput)
	l.Messages = append(l.Messages, userMsg)
	l.Estimator.Recompute(l.Messages)

	machine := statemachine.New(l.Registry, l.Permission, l.ExecCtx)
	machine.ResetForNewTurn()

	for iteration := 0; ; iteration++ {
		if l.Estimator.NeedsCompression(len(l.Messages)) {
			if err := l.compress(ctx); err != nil {
				return fmt.Errorf("compression: %w", err)
			}
			l.Estimator.Recompute(l.Messages)
		}

		sendList := l.buildSendList()

		result, err := l.Provider.ChatStream(ctx, sendList, l.toolSchemas(), l.Opts, func(d message.StreamDelta) {
			if d.Kind == message.DeltaText && l.OnTextDelta != nil {
				l.OnTextDelta(d.Text)
			}
		})
		if result.Cancelled {
			// Cancellation safety: the partial assistant text is finalized
			// and kept in history rather than discarded, with no tool calls
			// attached (a cancelled stream never commits to one).
			assistantMsg := message.NewMessage(message.RoleAssistant, result.FullText)
			l.Messages = append(l.Messages, assistantMsg)
			l.Estimator.Recompute(l.Messages)
			return err
		}
		if err != nil {
			return fmt.Errorf("chat_stream: %w", err)
		}

		if len(result.ToolCalls) == 0 {
			assistantMsg := message.NewMessage(message.RoleAssistant, result.FullText)
			l.Messages = append(l.Messages, assistantMsg)
			l.Estimator.Recompute(l.Messages)
			return nil
		}

		assistantMsg := message.NewMessage(message.RoleAssistant, result.FullText)
		assistantMsg.ToolCalls = result.ToolCalls
		l.Messages = append(l.Messages, assistantMsg)

		machine.StartIteration(result.ToolCalls)
		shouldContinue := l.driveMachine(ctx, machine)

		l.Estimator.Recompute(l.Messages)
		if !shouldContinue {
			return nil
		}
	}
}

// driveMachine ticks the state machine to completion for one iteration,
// appending every resulting tool-result message and resolving permission
// prompts via OnPrompt. Returns the machine's should_continue verdict.
func (l *Loop) driveMachine(ctx context.Context, m *statemachine.Machine) bool {
	for {
		action := m.Tick()
		switch action.Kind {
		case statemachine.ActionShowPermissionPrompt:
			resp := permission.ResponseDeny
			if l.OnPrompt != nil {
				resp = l.OnPrompt(ctx, action.ToolName, action.ArgsJSON)
			}
			m.ResolvePermission(resp)

		case statemachine.ActionRenderRequested:
			if l.Printer != nil {
				l.Printer.Diagnostic(action.PartialOutput)
			}

		case statemachine.ActionIterationComplete:
			for _, res := range action.Results {
				l.Messages = append(l.Messages, truncateToolResult(res))
			}
			if diag := m.Diagnostic(); diag != "" && l.Printer != nil {
				l.Printer.Diagnostic(diag)
			}
			return action.ShouldContinue
		}
	}
}

// buildSendList assembles [system_prompt, hot_context_injection, …messages…]
// per spec §4.J step 3, precomputing ConversationHash for the tool context
// passed to this turn's executions.
func (l *Loop) buildSendList() []message.Message {
	l.ExecCtx.ConversationHash = tracker.HashConversation(messageContents(lastN(l.Messages, 5)))

	hot := hotcontext.Build(l.Tracker, l.hotTasks(), messageContents(lastN(l.Messages, 5)))

	out := make([]message.Message, 0, len(l.Messages)+2)
	out = append(out, message.NewMessage(message.RoleSystem, l.SystemPrompt))
	out = append(out, hot)
	out = append(out, l.Messages...)
	return out
}

func (l *Loop) hotTasks() []hotcontext.Task {
	tasks := l.Tasks.List()
	out := make([]hotcontext.Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, hotcontext.Task{ID: t.ID, Content: t.Content, Status: string(t.Status)})
	}
	return out
}

func (l *Loop) toolSchemas() []provider.ToolSchema {
	all := l.Registry.All()
	out := make([]provider.ToolSchema, 0, len(all))
	for _, t := range all {
		out = append(out, provider.ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
			Required:    t.Required(),
		})
	}
	return out
}

// compress runs the configured Compression Engine mode over l.Messages.
func (l *Loop) compress(ctx context.Context) error {
	if l.CompressionMode == "mode2" && l.CompressionRegistry != nil && l.CompressionExecCtx != nil {
		l.CompressionExecCtx.Messages = &l.Messages
		l.CompressionExecCtx.Estimator = l.Estimator
		return compression.Mode2(ctx, l.Provider, l.CompressionRegistry, l.CompressionExecCtx, l.Opts)
	}
	l.Messages = compression.Mode1(l.Messages, l.Tracker, l.CompressionLLM, l.Estimator)
	return nil
}

func messageContents(msgs []message.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func lastN(msgs []message.Message, n int) []message.Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
