// Package compression implements the Compression Engine (spec §4.G): a
// deterministic hybrid pass (Mode 1, default) and an agentic sub-agent pass
// (Mode 2), both invoked by the Master Loop when the Token Estimator reports
// needs_compression. Mode 1's per-role transform table is new logic (no pack
// precedent matches this exact rule table), but its shape — walk a bounded
// history, replace elements in place, re-measure, stop early — mirrors
// genesis's pkg/llm/history.go TruncateHistory idiom, generalized from a
// single truncation point to a per-message transform.
package compression

import (
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"forgeloop/internal/message"
	"forgeloop/internal/tokenest"
	"forgeloop/internal/tracker"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const protectedTailTurns = 5

// CompleteOnce is the narrow LLM dependency Mode 1 uses to compress user and
// assistant messages; nil makes every LLM compression fall back to the
// length-bounded truncation the spec names.
type CompleteOnce interface {
	CompleteOnce(systemPrompt, userPrompt string) (string, error)
}

const userCompressPrompt = "Compress the user message below to at most 50 tokens, preserving intent and key terms. Reply with the compressed text only."
const assistantCompressPrompt = "Compress the assistant message below to at most 200 tokens, preserving decisions and code changes. Reply with the compressed text only."

// protectedTailStart returns the lowest index that must never be mutated:
// indices 0 and 1 are protected by position; beyond that, a single reverse
// scan finds the start of the last 5 user/assistant messages (spec §4.G).
func protectedTailStart(msgs []message.Message) int {
	count := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == message.RoleUser || msgs[i].Role == message.RoleAssistant {
			count++
			if count >= protectedTailTurns {
				return i
			}
		}
	}
	return 0
}

func isProtected(i, tailStart int) bool {
	return i == 0 || i == 1 || i >= tailStart
}

// Mode1 walks messages in order, transforming every non-protected entry per
// the role table, re-estimating after each transform and stopping as soon as
// est reports usage at or below its target. The protected tail and indices
// 0/1 are returned untouched; display_only_data messages the walk reaches
// are dropped from the result, while those at protected positions or after
// the point where the walk stops are kept. Every kept message keeps its
// relative order (spec §4.G invariants).
func Mode1(msgs []message.Message, trk *tracker.Tracker, llm CompleteOnce, est *tokenest.Estimator) []message.Message {
	tailStart := protectedTailStart(msgs)
	work := make([]message.Message, len(msgs))
	copy(work, msgs)
	drop := make([]bool, len(msgs))

	for i := range work {
		if isProtected(i, tailStart) {
			continue
		}
		work[i], drop[i] = transform(msgs, i, work[i], trk, llm)

		est.Recompute(work)
		if est.Sum() <= est.TargetTokens() {
			break
		}
	}

	out := make([]message.Message, 0, len(work))
	for i, m := range work {
		if drop[i] {
			continue
		}
		out = append(out, m)
	}
	return out
}

func transform(original []message.Message, i int, m message.Message, trk *tracker.Tracker, llm CompleteOnce) (message.Message, bool) {
	switch m.Role {
	case message.RoleDisplayOnlyData:
		return m, true

	case message.RoleSystem:
		return m, false

	case message.RoleTool:
		m.Content = compressToolMessage(original, i, m, trk)
		m.EstimatedTokens = message.EstimateTokens(m.Content)
		return m, false

	case message.RoleUser:
		m.Content = compressWithFallback(llm, userCompressPrompt, m.Content, 200)
		m.EstimatedTokens = message.EstimateTokens(m.Content)
		return m, false

	case message.RoleAssistant:
		m.Content = compressWithFallback(llm, assistantCompressPrompt, m.Content, 800)
		m.EstimatedTokens = message.EstimateTokens(m.Content)
		return m, false

	default:
		return m, false
	}
}

func compressWithFallback(llm CompleteOnce, systemPrompt, content string, fallbackChars int) string {
	if llm != nil {
		if out, err := llm.CompleteOnce(systemPrompt, content); err == nil && strings.TrimSpace(out) != "" {
			return strings.TrimSpace(out)
		}
	}
	if len(content) <= fallbackChars {
		return content
	}
	return content[:fallbackChars]
}

// compressToolMessage classifies a tool-role message by the name of the call
// that produced it (looked up by scanning back to the assistant message that
// issued tool_call_id) and replaces its content per the three tool rows of
// the spec §4.G table.
func compressToolMessage(msgs []message.Message, i int, m message.Message, trk *tracker.Tracker) string {
	name, argsJSON, ok := findOriginatingCall(msgs, i, m.ToolCallID)
	if !ok {
		return "🔧 [Compressed] Tool executed successfully"
	}

	switch name {
	case "read_file", "read_lines":
		return compressReadResult(argsJSON, m.Content, trk)
	case "write_file", "insert_lines", "replace_lines":
		return compressWriteResult(argsJSON, trk)
	default:
		return "🔧 [Compressed] Tool executed successfully"
	}
}

func findOriginatingCall(msgs []message.Message, beforeIdx int, toolCallID string) (name string, argsJSON []byte, ok bool) {
	if toolCallID == "" {
		return "", nil, false
	}
	for i := beforeIdx - 1; i >= 0; i-- {
		if msgs[i].Role != message.RoleAssistant {
			continue
		}
		for _, tc := range msgs[i].ToolCalls {
			if tc.ID == toolCallID {
				return tc.Name, tc.ArgumentsJSON, true
			}
		}
	}
	return "", nil, false
}

func argPath(argsJSON []byte) string {
	var args struct {
		Path string `json:"path"`
	}
	_ = json.Unmarshal(argsJSON, &args)
	return args.Path
}

func compressReadResult(argsJSON []byte, toolContent string, trk *tracker.Tracker) string {
	path := argPath(argsJSON)

	var result message.ToolResult
	lines := 0
	if err := json.Unmarshal([]byte(toolContent), &result); err == nil {
		lines = strings.Count(result.Data, "\n") + 1
	}

	summary := ""
	if ft, ok := trk.FileTracker(path); ok && ft.Curated != nil {
		summary = ft.Curated.Summary
	}

	if summary != "" {
		return fmt.Sprintf("📄 [Compressed] Read %s (%d lines) • Curator Summary: %s", path, lines, summary)
	}
	return fmt.Sprintf("📄 [Compressed] Read %s (%d lines)", path, lines)
}

func compressWriteResult(argsJSON []byte, trk *tracker.Tracker) string {
	path := argPath(argsJSON)

	mods := trk.RecentModifications()
	for i := len(mods) - 1; i >= 0; i-- {
		if mods[i].Path != path {
			continue
		}
		minutesAgo := int(time.Since(time.UnixMilli(mods[i].UnixMs)) / time.Minute)
		if minutesAgo < 0 {
			minutesAgo = 0
		}
		return fmt.Sprintf("✏️ [Compressed] %s %s (%d min ago)", mods[i].Kind, path, minutesAgo)
	}
	return "🔧 [Compressed] Tool executed successfully"
}
