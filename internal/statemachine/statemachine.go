// Package statemachine implements the Tool-Execution State Machine (spec
// §4.I): a cooperative, non-blocking tick() over an explicit state. Restructured
// from the teacher's open-recursion tool loop (pkg/agent/engine.go's
// ProcessLLMStream/HandleToolCall/ResolveAndCommitToolCall) into a struct the
// host can step through one action at a time, so the two caps spec.md
// requires are enforced in a single place rather than scattered across
// recursive calls. The panic-safe always-append-a-tool-result discipline of
// ResolveAndCommitToolCall's defer/recover is kept, here via Tick's own
// recover around tool execution. Loop-repeat detection is grounded on the
// goclaw reference agent's ToolLoopDetector.RecordAndCheck
// (other_examples/0ff094ad_jholhewres-goclaw).
package statemachine

import (
	"fmt"
	"time"

	"forgeloop/internal/message"
	"forgeloop/internal/permission"
	"forgeloop/internal/tools"
)

// State is the machine's current position in the tick() cycle.
type State string

const (
	StateIdle              State = "idle"
	StateEvaluatingPolicy  State = "evaluating_policy"
	StateAwaitingPermission State = "awaiting_permission"
	StateExecuting         State = "executing"
	StateCompleted         State = "completed"
)

// ActionKind tags the variant of Action a Tick returns.
type ActionKind string

const (
	ActionShowPermissionPrompt ActionKind = "show_permission_prompt"
	ActionRenderRequested      ActionKind = "render_requested"
	ActionIterationComplete    ActionKind = "iteration_complete"
)

// Action is what the host must do in response to one Tick call.
type Action struct {
	Kind ActionKind

	// ActionShowPermissionPrompt payload.
	ToolName string
	ArgsJSON []byte

	// ActionRenderRequested payload.
	PartialOutput string

	// ActionIterationComplete payload.
	Results        []message.Message
	ShouldContinue bool
}

const (
	maxToolCallsPerIteration = 15
	maxIterationsPerTurn     = 10
	loopBreakerStreak        = 4
)

// ToolLoopDetector flags a tool being called with identical arguments too
// many times in a row, grounded on goclaw's ToolLoopDetector.RecordAndCheck.
type ToolLoopDetector struct {
	lastKey string
	streak  int
}

// RecordAndCheck folds in one call and reports whether the repeat streak has
// crossed the circuit-breaker threshold.
func (d *ToolLoopDetector) RecordAndCheck(name string, argsJSON []byte) (broken bool, streak int) {
	key := name + ":" + string(argsJSON)
	if key == d.lastKey {
		d.streak++
	} else {
		d.lastKey = key
		d.streak = 1
	}
	return d.streak >= loopBreakerStreak, d.streak
}

// Machine drives one user turn's tool-execution cycles.
type Machine struct {
	registry *tools.Registry
	perm     *permission.Engine
	execCtx  *tools.ExecContext
	detector ToolLoopDetector

	state   State
	pending []message.ToolCall
	current message.ToolCall
	results []message.Message

	iterationCount         int
	toolCallsThisIteration int
	shouldContinue         bool
	diagnostic             string
	loopHint               string
}

// New builds a Machine bound to the given tool registry, permission engine,
// and execution context. The execution context is reused across calls; the
// master loop is responsible for keeping its ConversationHash field current.
func New(registry *tools.Registry, perm *permission.Engine, execCtx *tools.ExecContext) *Machine {
	return &Machine{registry: registry, perm: perm, execCtx: execCtx, state: StateIdle}
}

// ResetForNewTurn clears the per-turn iteration counter; call once per user
// message before the first StartIteration.
func (m *Machine) ResetForNewTurn() {
	m.iterationCount = 0
}

// StartIteration begins processing one assistant turn's tool calls. If the
// per-turn iteration cap is already exceeded, the machine synthesizes an
// internal_error tool result for every queued call (so none of this
// iteration's tool_calls ids are left unanswered) and completes immediately
// without executing any of them.
func (m *Machine) StartIteration(calls []message.ToolCall) {
	m.iterationCount++
	m.pending = calls
	m.results = nil
	m.toolCallsThisIteration = 0
	m.shouldContinue = true
	m.diagnostic = ""
	m.state = StateIdle

	if m.iterationCount > maxIterationsPerTurn {
		m.completeWithDiagnostic(fmt.Sprintf("stopped: exceeded %d iterations for this turn", maxIterationsPerTurn), false)
	}
}

// Tick performs one bounded unit of work and returns the action the host
// must take. It never blocks: permission prompts and execution both return
// immediately, the former waiting on a later ResolvePermission call.
func (m *Machine) Tick() Action {
	for {
		switch m.state {
		case StateAwaitingPermission:
			return Action{Kind: ActionShowPermissionPrompt, ToolName: m.current.Name, ArgsJSON: m.current.ArgumentsJSON}

		case StateCompleted:
			return Action{Kind: ActionIterationComplete, Results: m.results, ShouldContinue: m.shouldContinue}

		case StateIdle:
			if len(m.pending) == 0 {
				m.shouldContinue = true
				m.state = StateCompleted
				continue
			}
			m.current = m.pending[0]
			m.pending = m.pending[1:]
			m.state = StateEvaluatingPolicy

		case StateEvaluatingPolicy:
			if action, done := m.evaluatePolicy(); done {
				return action
			}

		case StateExecuting:
			return m.execute()
		}
	}
}

func (m *Machine) evaluatePolicy() (Action, bool) {
	if m.toolCallsThisIteration >= maxToolCallsPerIteration {
		m.completeWithDiagnostic(fmt.Sprintf("stopped: exceeded %d tool calls in this iteration", maxToolCallsPerIteration), true)
		return Action{}, false
	}

	// Loop repeats are flagged, not stopped: the hint rides along on
	// whichever tool result comes out of this call, and the iteration/depth
	// caps above remain the only hard stops.
	if broken, streak := m.detector.RecordAndCheck(m.current.Name, m.current.ArgumentsJSON); broken {
		m.loopHint = fmt.Sprintf("tool %q has been called identically %d times in a row", m.current.Name, streak)
	}

	tool, ok := m.registry.Get(m.current.Name)
	if !ok {
		m.appendResult(message.ToolResult{
			Success:      false,
			ErrorKind:    message.ErrorNotFound,
			ErrorMessage: fmt.Sprintf("unknown tool %q", m.current.Name),
		})
		m.state = StateIdle
		return Action{}, false
	}

	if err := tools.ValidateArguments(tool, m.current.ArgumentsJSON); err != nil {
		m.appendResult(message.ToolResult{
			Success:      false,
			ErrorKind:    message.ErrorValidationFailed,
			ErrorMessage: err.Error(),
		})
		m.state = StateIdle
		return Action{}, false
	}

	switch m.perm.Evaluate(m.current.Name, tool.Risk(), m.current.ArgumentsJSON) {
	case permission.DecisionDeny:
		m.appendResult(permission.DeniedResult(m.current.Name))
		m.state = StateIdle
	case permission.DecisionAskUser:
		m.state = StateAwaitingPermission
	default:
		m.state = StateExecuting
	}
	return Action{}, false
}

// ResolvePermission applies the host's decision for the call currently
// awaiting permission and advances the machine; call Tick again afterward.
func (m *Machine) ResolvePermission(resp permission.UserResponse) {
	if m.state != StateAwaitingPermission {
		return
	}
	if m.perm.Resolve(m.current.Name, m.current.ArgumentsJSON, resp) == permission.DecisionAllow {
		m.state = StateExecuting
		return
	}
	m.appendResult(permission.DeniedResult(m.current.Name))
	m.state = StateIdle
}

func (m *Machine) execute() (action Action) {
	tool, _ := m.registry.Get(m.current.Name)

	defer func() {
		if r := recover(); r != nil {
			m.appendResult(message.ToolResult{
				Success:      false,
				ErrorKind:    message.ErrorInternal,
				ErrorMessage: fmt.Sprintf("tool panicked: %v", r),
			})
			m.state = StateIdle
			action = Action{Kind: ActionRenderRequested, PartialOutput: m.current.Name + " failed"}
		}
	}()

	start := time.Now()
	result := tool.Execute(m.execCtx, m.current.ArgumentsJSON)
	m.appendResult(result)
	m.state = StateIdle

	preview := result.Data
	if len(preview) > 200 {
		preview = preview[:200]
	}
	return Action{
		Kind:          ActionRenderRequested,
		PartialOutput: fmt.Sprintf("%s (%dms): %s", m.current.Name, time.Since(start).Milliseconds(), preview),
	}
}

func (m *Machine) appendResult(res message.ToolResult) {
	m.appendResultFor(m.current.ID, res)
}

func (m *Machine) appendResultFor(toolCallID string, res message.ToolResult) {
	if m.loopHint != "" {
		res.Diagnostic = m.loopHint
		m.loopHint = ""
	}
	m.results = append(m.results, message.Message{
		Role:            message.RoleTool,
		Content:         res.Encode(),
		ToolCallID:      toolCallID,
		EstimatedTokens: message.EstimateTokens(res.Encode()),
		CreatedUnixMs:   time.Now().UnixMilli(),
	})
	m.toolCallsThisIteration++
}

// completeWithDiagnostic ends the iteration early because a hard cap fired.
// Every tool call the model has already committed to — the one currently
// being evaluated (if synthesizeCurrent) and everything still queued in
// m.pending — must get a matching tool-role result; leaving any of their
// ids without one would hand the provider an assistant message whose
// tool_calls are never answered (spec's Testable Invariant #1).
func (m *Machine) completeWithDiagnostic(diagnostic string, synthesizeCurrent bool) {
	stopResult := message.ToolResult{
		Success:      false,
		ErrorKind:    message.ErrorInternal,
		ErrorMessage: diagnostic,
	}
	if synthesizeCurrent {
		m.appendResultFor(m.current.ID, stopResult)
	}
	for _, tc := range m.pending {
		m.appendResultFor(tc.ID, stopResult)
	}

	m.diagnostic = diagnostic
	m.pending = nil
	m.shouldContinue = false
	m.state = StateCompleted
}

// Diagnostic returns the reason the most recent iteration ended early, if
// a cap fired; the loop detector never sets it (its hint rides on a tool
// result instead).
func (m *Machine) Diagnostic() string { return m.diagnostic }
