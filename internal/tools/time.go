package tools

import (
	"time"

	"forgeloop/internal/message"
	"forgeloop/internal/permission"
)

type GetCurrentTimeArgs struct{}

type GetCurrentTimeTool struct{}

func (GetCurrentTimeTool) Name() string              { return "get_current_time" }
func (GetCurrentTimeTool) Description() string       { return "Return the current wall-clock time in ISO-8601" }
func (GetCurrentTimeTool) Risk() permission.RiskLevel { return permission.RiskSafe }
func (GetCurrentTimeTool) Parameters() map[string]any { return reflectParams(GetCurrentTimeArgs{}) }
func (GetCurrentTimeTool) Required() []string         { return nil }

func (GetCurrentTimeTool) Execute(ctx *ExecContext, argsJSON []byte) message.ToolResult {
	start := time.Now()
	return timed(start, true, start.Format(time.RFC3339), "", message.ErrorNone)
}
