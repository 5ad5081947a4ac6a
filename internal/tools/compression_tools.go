// The four compression-only tools (spec §4.C, §4.G Mode 2): used
// exclusively by the Compression Engine's agentic sub-agent, never exposed
// to the primary model. Each is its own Tool type; there is no shared
// dispatch table.
package tools

import (
	"fmt"
	"time"

	"forgeloop/internal/message"
	"forgeloop/internal/permission"
	"forgeloop/internal/tracker"
)

// ---------- get_compression_metadata ----------

type GetCompressionMetadataArgs struct {
	Index int `json:"index"`
}

type GetCompressionMetadataTool struct{}

func (GetCompressionMetadataTool) Name() string        { return "get_compression_metadata" }
func (GetCompressionMetadataTool) Description() string { return "Describe a message's role, length, and any curator/modification context available for compressing it" }
func (GetCompressionMetadataTool) Risk() permission.RiskLevel { return permission.RiskSafe }
func (GetCompressionMetadataTool) Parameters() map[string]any {
	return reflectParams(GetCompressionMetadataArgs{})
}
func (GetCompressionMetadataTool) Required() []string { return []string{"index"} }

func (GetCompressionMetadataTool) Execute(ctx *ExecContext, argsJSON []byte) message.ToolResult {
	start := time.Now()
	var args GetCompressionMetadataArgs
	if err := toolJSON.Unmarshal(argsJSON, &args); err != nil {
		return timed(start, false, "", err.Error(), message.ErrorValidationFailed)
	}
	if ctx.Messages == nil {
		return timed(start, false, "", "compression tools require a message list", message.ErrorInternal)
	}
	msgs := *ctx.Messages
	if args.Index < 0 || args.Index >= len(msgs) {
		return timed(start, false, "", "index out of range", message.ErrorValidationFailed)
	}
	m := msgs[args.Index]
	meta := map[string]any{
		"role":             m.Role,
		"estimated_tokens": m.EstimatedTokens,
		"has_tool_calls":   len(m.ToolCalls) > 0,
		"content_preview":  preview(m.Content, 120),
	}
	b, _ := toolJSON.Marshal(meta)
	return timed(start, true, string(b), "", message.ErrorNone)
}

// ---------- compress_tool_result ----------

type CompressToolResultArgs struct {
	Index int `json:"index"`
}

type CompressToolResultTool struct {
	Tracker *tracker.Tracker
}

func (CompressToolResultTool) Name() string        { return "compress_tool_result" }
func (CompressToolResultTool) Description() string { return "Replace a tool-role message with its deterministic compact summary" }
func (CompressToolResultTool) Risk() permission.RiskLevel { return permission.RiskSafe }
func (CompressToolResultTool) Parameters() map[string]any {
	return reflectParams(CompressToolResultArgs{})
}
func (CompressToolResultTool) Required() []string { return []string{"index"} }

func (t CompressToolResultTool) Execute(ctx *ExecContext, argsJSON []byte) message.ToolResult {
	start := time.Now()
	var args CompressToolResultArgs
	if err := toolJSON.Unmarshal(argsJSON, &args); err != nil {
		return timed(start, false, "", err.Error(), message.ErrorValidationFailed)
	}
	if ctx.Messages == nil {
		return timed(start, false, "", "compression tools require a message list", message.ErrorInternal)
	}
	msgs := *ctx.Messages
	if args.Index < 0 || args.Index >= len(msgs) {
		return timed(start, false, "", "index out of range", message.ErrorValidationFailed)
	}
	if msgs[args.Index].Role != message.RoleTool {
		return timed(start, false, "", "message at index is not a tool result", message.ErrorValidationFailed)
	}
	msgs[args.Index].Content = "🔧 [Compressed] Tool executed successfully"
	msgs[args.Index].EstimatedTokens = message.EstimateTokens(msgs[args.Index].Content)
	return timed(start, true, "compressed", "", message.ErrorNone)
}

// ---------- compress_conversation_segment ----------

type CompressConversationSegmentArgs struct {
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Summary string `json:"summary"`
}

type CompressConversationSegmentTool struct{}

func (CompressConversationSegmentTool) Name() string { return "compress_conversation_segment" }
func (CompressConversationSegmentTool) Description() string {
	return "Collapse a contiguous range of non-protected messages into a single provided summary"
}
func (CompressConversationSegmentTool) Risk() permission.RiskLevel { return permission.RiskSafe }
func (CompressConversationSegmentTool) Parameters() map[string]any {
	return reflectParams(CompressConversationSegmentArgs{})
}
func (CompressConversationSegmentTool) Required() []string { return []string{"start", "end", "summary"} }

func (CompressConversationSegmentTool) Execute(ctx *ExecContext, argsJSON []byte) message.ToolResult {
	start := time.Now()
	var args CompressConversationSegmentArgs
	if err := toolJSON.Unmarshal(argsJSON, &args); err != nil {
		return timed(start, false, "", err.Error(), message.ErrorValidationFailed)
	}
	if ctx.Messages == nil {
		return timed(start, false, "", "compression tools require a message list", message.ErrorInternal)
	}
	msgs := *ctx.Messages
	if args.Start < 2 || args.End >= len(msgs) || args.End < args.Start {
		return timed(start, false, "", "segment out of protected range", message.ErrorValidationFailed)
	}

	summaryMsg := message.Message{
		Role:            message.RoleSystem,
		Content:         args.Summary,
		EstimatedTokens: message.EstimateTokens(args.Summary),
	}
	newMsgs := make([]message.Message, 0, len(msgs)-(args.End-args.Start+1)+1)
	newMsgs = append(newMsgs, msgs[:args.Start]...)
	newMsgs = append(newMsgs, summaryMsg)
	newMsgs = append(newMsgs, msgs[args.End+1:]...)
	*ctx.Messages = newMsgs

	return timed(start, true, fmt.Sprintf("collapsed messages %d-%d", args.Start, args.End), "", message.ErrorNone)
}

// ---------- verify_compression_target ----------

type VerifyCompressionTargetArgs struct{}

type VerifyCompressionTargetTool struct{}

func (VerifyCompressionTargetTool) Name() string        { return "verify_compression_target" }
func (VerifyCompressionTargetTool) Description() string { return "Report whether the current token usage is below the compression target" }
func (VerifyCompressionTargetTool) Risk() permission.RiskLevel { return permission.RiskSafe }
func (VerifyCompressionTargetTool) Parameters() map[string]any {
	return reflectParams(VerifyCompressionTargetArgs{})
}
func (VerifyCompressionTargetTool) Required() []string { return nil }

func (VerifyCompressionTargetTool) Execute(ctx *ExecContext, argsJSON []byte) message.ToolResult {
	start := time.Now()
	if ctx.Messages == nil || ctx.Estimator == nil {
		return timed(start, false, "", "compression tools require a message list and estimator", message.ErrorInternal)
	}
	ctx.Estimator.Recompute(*ctx.Messages)
	satisfied := ctx.Estimator.Sum() <= ctx.Estimator.TargetTokens()
	result := map[string]any{
		"usage_fraction": ctx.Estimator.UsageFraction(),
		"target_tokens":  ctx.Estimator.TargetTokens(),
		"satisfied":      satisfied,
	}
	b, _ := toolJSON.Marshal(result)
	return timed(start, true, string(b), "", message.ErrorNone)
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
