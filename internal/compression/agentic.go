package compression

import (
	"context"
	"fmt"

	"forgeloop/internal/message"
	"forgeloop/internal/provider"
	"forgeloop/internal/tools"
)

const agenticIterationBudget = 8

const agenticSystemPrompt = "You are a context-compression sub-agent. Use get_compression_metadata to inspect messages, compress_tool_result and compress_conversation_segment to shrink the non-protected history, and verify_compression_target to check progress. Stop issuing tool calls once verify_compression_target reports satisfied, or once you have made your best effort."

// Mode2 delegates compression to a sub-agent restricted to the four
// compression-only tools already registered on registry, looping until
// verify_compression_target reports satisfied or the iteration budget is
// exhausted (spec §4.G Mode 2). execCtx.Messages must point at the same
// slice the tools mutate in place.
func Mode2(ctx context.Context, client provider.Client, registry *tools.Registry, execCtx *tools.ExecContext, opts provider.Options) error {
	schemas := toolSchemas(registry)
	sub := []message.Message{message.NewMessage(message.RoleSystem, agenticSystemPrompt)}

	for iter := 0; iter < agenticIterationBudget; iter++ {
		result, err := client.ChatStream(ctx, sub, schemas, opts, func(message.StreamDelta) {})
		if err != nil {
			return fmt.Errorf("compression sub-agent chat_stream: %w", err)
		}

		assistantMsg := message.NewMessage(message.RoleAssistant, result.FullText)
		assistantMsg.ToolCalls = result.ToolCalls
		sub = append(sub, assistantMsg)

		if len(result.ToolCalls) == 0 {
			return nil
		}

		satisfied := false
		for _, tc := range result.ToolCalls {
			toolMsg := message.Message{Role: message.RoleTool, ToolCallID: tc.ID}

			t, ok := registry.Get(tc.Name)
			if !ok {
				toolMsg.Content = message.ToolResult{
					Success:   false,
					ErrorKind: message.ErrorNotFound,
					ErrorMessage: fmt.Sprintf("unknown compression tool %q", tc.Name),
				}.Encode()
			} else {
				res := t.Execute(execCtx, tc.ArgumentsJSON)
				toolMsg.Content = res.Encode()
				if tc.Name == "verify_compression_target" && res.Success && resultSatisfied(res.Data) {
					satisfied = true
				}
			}

			toolMsg.EstimatedTokens = message.EstimateTokens(toolMsg.Content)
			sub = append(sub, toolMsg)
		}

		if satisfied {
			return nil
		}
	}

	return fmt.Errorf("compression sub-agent exhausted its %d-iteration budget without reaching target", agenticIterationBudget)
}

func resultSatisfied(data string) bool {
	var parsed struct {
		Satisfied bool `json:"satisfied"`
	}
	if err := json.Unmarshal([]byte(data), &parsed); err != nil {
		return false
	}
	return parsed.Satisfied
}

func toolSchemas(registry *tools.Registry) []provider.ToolSchema {
	all := registry.All()
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
