package loop

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"forgeloop/internal/message"
	"forgeloop/internal/permission"
	"forgeloop/internal/provider"
	"forgeloop/internal/tokenest"
	"forgeloop/internal/tools"
	"forgeloop/internal/tracker"
)

type scriptedClient struct {
	turns []message.StreamResult
	calls int
}

func (c *scriptedClient) ChatStream(ctx context.Context, msgs []message.Message, toolSchemas []provider.ToolSchema, opts provider.Options, sink provider.Sink) (message.StreamResult, error) {
	r := c.turns[c.calls]
	c.calls++
	if r.FullText != "" {
		sink(message.StreamDelta{Kind: message.DeltaText, Text: r.FullText})
	}
	return r, nil
}

func (c *scriptedClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}

func (c *scriptedClient) IsTransientError(err error) bool { return false }

type echoTool struct{}

func (echoTool) Name() string              { return "echo_tool" }
func (echoTool) Description() string       { return "returns ok" }
func (echoTool) Risk() permission.RiskLevel { return permission.RiskSafe }
func (echoTool) Parameters() map[string]any { return map[string]any{} }
func (echoTool) Required() []string         { return nil }
func (echoTool) Execute(ctx *tools.ExecContext, argsJSON []byte) message.ToolResult {
	return message.ToolResult{Success: true, Data: "echoed"}
}

func newTestLoop(t *testing.T, client provider.Client) *Loop {
	t.Helper()
	registry := tools.NewRegistry()
	registry.Register(echoTool{})

	trk := tracker.New()
	est := tokenest.New(tokenest.Config{
		MaxContextTokens:          100000,
		TriggerThresholdPct:       0.99,
		TargetUsagePct:            0.5,
		MinMessagesBeforeCompress: 1000,
		CompressionEnabled:        true,
	})
	taskStore := tools.NewTaskStore()
	execCtx := &tools.ExecContext{Tracker: trk, Tasks: taskStore, Estimator: est}

	return &Loop{
		Provider:     client,
		Model:        "test-model",
		SystemPrompt: "you are a test assistant",
		Registry:     registry,
		Permission:   permission.Load(t.TempDir() + "/none.json"),
		Tracker:      trk,
		Estimator:    est,
		Tasks:        taskStore,
		ExecCtx:      execCtx,
	}
}

func TestHandleTurnNoToolCallsAppendsAssistantMessage(t *testing.T) {
	client := &scriptedClient{turns: []message.StreamResult{
		{FullText: "hello there"},
	}}
	l := newTestLoop(t, client)

	err := l.HandleTurn(context.Background(), "hi")
	require.NoError(t, err)
	require.Len(t, l.Messages, 2)
	require.Equal(t, message.RoleUser, l.Messages[0].Role)
	require.Equal(t, message.RoleAssistant, l.Messages[1].Role)
	require.Equal(t, "hello there", l.Messages[1].Content)
}

func TestHandleTurnExecutesToolCallThenFinalizes(t *testing.T) {
	client := &scriptedClient{turns: []message.StreamResult{
		{FullText: "", ToolCalls: []message.ToolCall{{ID: "c1", Name: "echo_tool", ArgumentsJSON: []byte("{}")}}},
		{FullText: "done"},
	}}
	l := newTestLoop(t, client)

	var streamed string
	l.OnTextDelta = func(s string) { streamed += s }

	err := l.HandleTurn(context.Background(), "please echo")
	require.NoError(t, err)
	require.Equal(t, "done", streamed)

	var sawToolResult bool
	for _, m := range l.Messages {
		if m.Role == message.RoleTool {
			sawToolResult = true
			require.Contains(t, m.Content, "echoed")
		}
	}
	require.True(t, sawToolResult)

	last := l.Messages[len(l.Messages)-1]
	require.Equal(t, message.RoleAssistant, last.Role)
	require.Equal(t, "done", last.Content)
}

func TestHandleTurnPromptsForUnknownRiskAndRespectsDeny(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(riskyTool{})

	client := &scriptedClient{turns: []message.StreamResult{
		{ToolCalls: []message.ToolCall{{ID: "c1", Name: "risky_tool", ArgumentsJSON: []byte("{}")}}},
		{FullText: "acknowledged"},
	}}

	trk := tracker.New()
	est := tokenest.New(tokenest.Config{MaxContextTokens: 100000, TargetUsagePct: 0.5, MinMessagesBeforeCompress: 1000, CompressionEnabled: true})
	l := &Loop{
		Provider:     client,
		SystemPrompt: "sys",
		Registry:     registry,
		Permission:   permission.Load(t.TempDir() + "/none.json"),
		Tracker:      trk,
		Estimator:    est,
		Tasks:        tools.NewTaskStore(),
		ExecCtx:      &tools.ExecContext{Tracker: trk, Tasks: tools.NewTaskStore(), Estimator: est},
	}

	promptCalled := false
	l.OnPrompt = func(ctx context.Context, toolName string, argsJSON []byte) permission.UserResponse {
		promptCalled = true
		require.Equal(t, "risky_tool", toolName)
		return permission.ResponseDeny
	}

	err := l.HandleTurn(context.Background(), "do something risky")
	require.NoError(t, err)
	require.True(t, promptCalled)

	var sawDenied bool
	for _, m := range l.Messages {
		if m.Role == message.RoleTool {
			sawDenied = true
			require.Contains(t, m.Content, "permission_denied")
		}
	}
	require.True(t, sawDenied)
}

type riskyTool struct{}

func (riskyTool) Name() string              { return "risky_tool" }
func (riskyTool) Description() string       { return "does something risky" }
func (riskyTool) Risk() permission.RiskLevel { return permission.RiskHigh }
func (riskyTool) Parameters() map[string]any { return map[string]any{} }
func (riskyTool) Required() []string         { return nil }
func (riskyTool) Execute(ctx *tools.ExecContext, argsJSON []byte) message.ToolResult {
	return message.ToolResult{Success: true, Data: "should not be reached"}
}

type cancellingClient struct{ partial string }

func (c *cancellingClient) ChatStream(ctx context.Context, msgs []message.Message, toolSchemas []provider.ToolSchema, opts provider.Options, sink provider.Sink) (message.StreamResult, error) {
	sink(message.StreamDelta{Kind: message.DeltaText, Text: c.partial})
	return message.StreamResult{FullText: c.partial, Cancelled: true}, context.Canceled
}

func (c *cancellingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}

func (c *cancellingClient) IsTransientError(err error) bool { return false }

func TestHandleTurnKeepsPartialTextOnCancellation(t *testing.T) {
	client := &cancellingClient{partial: "here is what I had so f"}
	l := newTestLoop(t, client)

	err := l.HandleTurn(context.Background(), "do something slow")
	require.True(t, errors.Is(err, context.Canceled))

	last := l.Messages[len(l.Messages)-1]
	require.Equal(t, message.RoleAssistant, last.Role)
	require.Equal(t, client.partial, last.Content, "partial streamed text must be finalized and kept, not discarded")
}

func TestBuildSendListPlacesSystemAndHotContextFirst(t *testing.T) {
	l := newTestLoop(t, &scriptedClient{})
	l.Messages = []message.Message{message.NewMessage(message.RoleUser, "hi")}

	send := l.buildSendList()
	require.Equal(t, message.RoleSystem, send[0].Role)
	require.Equal(t, l.SystemPrompt, send[0].Content)
	require.Equal(t, message.RoleSystem, send[1].Role, "hot context occupies index 1")
	require.Equal(t, message.RoleUser, send[2].Role)
}
