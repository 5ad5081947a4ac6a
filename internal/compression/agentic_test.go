package compression

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"forgeloop/internal/message"
	"forgeloop/internal/provider"
	"forgeloop/internal/tools"
	"forgeloop/internal/tracker"
)

type scriptedAgenticClient struct {
	steps []message.StreamResult
	call  int
}

func (c *scriptedAgenticClient) ChatStream(ctx context.Context, msgs []message.Message, schemas []provider.ToolSchema, opts provider.Options, sink provider.Sink) (message.StreamResult, error) {
	step := c.steps[c.call]
	c.call++
	return step, nil
}

func (c *scriptedAgenticClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}

func (c *scriptedAgenticClient) IsTransientError(err error) bool { return false }

func newAgenticExecCtx(msgs []message.Message) *tools.ExecContext {
	return &tools.ExecContext{
		Tracker:  tracker.New(),
		Messages: &msgs,
	}
}

func TestMode2StopsAfterVerifyReportsSatisfied(t *testing.T) {
	msgs := []message.Message{message.NewMessage(message.RoleUser, "hi")}
	ctx := newAgenticExecCtx(msgs)
	ctx.Estimator = estimator()

	registry := tools.NewRegistry()
	registry.Register(tools.VerifyCompressionTargetTool{})

	client := &scriptedAgenticClient{
		steps: []message.StreamResult{
			{ToolCalls: []message.ToolCall{{ID: "1", Name: "verify_compression_target", ArgumentsJSON: []byte("{}")}}},
		},
	}

	err := Mode2(context.Background(), client, registry, ctx, provider.Options{})
	require.NoError(t, err)
}

func TestMode2StopsWhenModelIssuesNoToolCalls(t *testing.T) {
	msgs := []message.Message{message.NewMessage(message.RoleUser, "hi")}
	ctx := newAgenticExecCtx(msgs)
	registry := tools.NewRegistry()

	client := &scriptedAgenticClient{
		steps: []message.StreamResult{{FullText: "nothing to do here"}},
	}

	err := Mode2(context.Background(), client, registry, ctx, provider.Options{})
	require.NoError(t, err)
}

func TestMode2ErrorsWhenBudgetExhaustedOnUnknownTools(t *testing.T) {
	msgs := []message.Message{message.NewMessage(message.RoleUser, "hi")}
	ctx := newAgenticExecCtx(msgs)
	ctx.Estimator = estimator()
	registry := tools.NewRegistry()

	steps := make([]message.StreamResult, agenticIterationBudget)
	for i := range steps {
		steps[i] = message.StreamResult{ToolCalls: []message.ToolCall{{ID: "1", Name: "not_a_real_tool", ArgumentsJSON: []byte("{}")}}}
	}
	client := &scriptedAgenticClient{steps: steps}

	err := Mode2(context.Background(), client, registry, ctx, provider.Options{})
	require.Error(t, err, "budget exhausted without ever reaching satisfied")
}

func TestResultSatisfiedParsesFlag(t *testing.T) {
	require.True(t, resultSatisfied(`{"satisfied":true,"usage_fraction":0.1}`))
	require.False(t, resultSatisfied(`{"satisfied":false}`))
	require.False(t, resultSatisfied(`not json`))
}

func TestToolSchemasReflectsRegisteredTools(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(tools.VerifyCompressionTargetTool{})
	schemas := toolSchemas(registry)
	require.Len(t, schemas, 1)
	require.Equal(t, "verify_compression_target", schemas[0].Name)
}
