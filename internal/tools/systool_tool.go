// The supplemental run_command tool, wrapping internal/tools/systool's
// per-OS Worker so it can be registered like any other Tool. Not part of
// spec.md's baseline table; registered only when the --enable-run-command
// flag is set (see
// DESIGN.md "Dropped/adapted teacher modules").
package tools

import (
	"context"
	"time"

	"forgeloop/internal/message"
	"forgeloop/internal/permission"
	"forgeloop/internal/tools/systool"
	"forgeloop/internal/tracker"
)

type RunCommandArgs struct {
	Command string `json:"command"`
}

// RunCommandTool shells out to the host OS. High risk: always subject to
// the permission engine unless the user has granted standing approval.
type RunCommandTool struct {
	Worker  systool.Worker
	Tracker *tracker.Tracker
}

// NewRunCommandTool constructs the tool around a fresh per-OS worker.
func NewRunCommandTool(t *tracker.Tracker) *RunCommandTool {
	return &RunCommandTool{Worker: systool.NewWorker(), Tracker: t}
}

func (RunCommandTool) Name() string { return "run_command" }
func (RunCommandTool) Description() string {
	return "Run a shell command in the working directory and return its combined output"
}
func (RunCommandTool) Risk() permission.RiskLevel { return permission.RiskHigh }
func (RunCommandTool) Parameters() map[string]any {
	return reflectParams(RunCommandArgs{})
}
func (RunCommandTool) Required() []string { return []string{"command"} }

func (t *RunCommandTool) Execute(ctx *ExecContext, argsJSON []byte) message.ToolResult {
	start := time.Now()
	var args RunCommandArgs
	if err := toolJSON.Unmarshal(argsJSON, &args); err != nil {
		return timed(start, false, "", err.Error(), message.ErrorValidationFailed)
	}
	if args.Command == "" {
		return timed(start, false, "", "command must not be empty", message.ErrorValidationFailed)
	}

	output, err := t.Worker.RunCommand(context.Background(), args.Command)
	if err != nil {
		return timed(start, false, output, err.Error(), message.ErrorIO)
	}
	return timed(start, true, output, "", message.ErrorNone)
}
