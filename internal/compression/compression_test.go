package compression

import (
	"testing"

	"github.com/stretchr/testify/require"

	"forgeloop/internal/message"
	"forgeloop/internal/tokenest"
	"forgeloop/internal/tracker"
)

func estimator() *tokenest.Estimator {
	return tokenest.New(tokenest.Config{
		MaxContextTokens:          1000,
		TriggerThresholdPct:       0.8,
		TargetUsagePct:            0.1,
		MinMessagesBeforeCompress: 1,
		CompressionEnabled:        true,
	})
}

func longMsg(role message.Role, content string) message.Message {
	m := message.NewMessage(role, content)
	return m
}

func TestProtectedTailStartKeepsLastFiveTurns(t *testing.T) {
	msgs := []message.Message{
		longMsg(message.RoleSystem, "sys"),
		longMsg(message.RoleDisplayOnlyData, "hot"),
	}
	for i := 0; i < 10; i++ {
		msgs = append(msgs, longMsg(message.RoleUser, "u"), longMsg(message.RoleAssistant, "a"))
	}
	tail := protectedTailStart(msgs)
	require.True(t, tail > 1, "tail must start after the two pinned header indices")

	count := 0
	for i := tail; i < len(msgs); i++ {
		if msgs[i].Role == message.RoleUser || msgs[i].Role == message.RoleAssistant {
			count++
		}
	}
	require.Equal(t, protectedTailTurns, count)
}

func TestMode1NeverMutatesIndexZeroOrOne(t *testing.T) {
	msgs := []message.Message{
		longMsg(message.RoleSystem, "system prompt stays fixed"),
		longMsg(message.RoleDisplayOnlyData, "hot context stays fixed"),
	}
	for i := 0; i < 8; i++ {
		msgs = append(msgs, longMsg(message.RoleUser, "a fairly long user message that should be compressible down"))
		msgs = append(msgs, longMsg(message.RoleAssistant, "a fairly long assistant reply that should be compressible down"))
	}

	out := Mode1(msgs, tracker.New(), nil, estimator())
	require.Equal(t, msgs[0].Content, out[0].Content)
	require.Equal(t, msgs[1].Content, out[1].Content)
}

func TestMode1DropsDisplayOnlyData(t *testing.T) {
	msgs := []message.Message{
		longMsg(message.RoleSystem, "sys"),
		longMsg(message.RoleSystem, "hot"),
		longMsg(message.RoleDisplayOnlyData, "display only"),
	}
	for i := 0; i < 3; i++ {
		msgs = append(msgs, longMsg(message.RoleUser, "hello"), longMsg(message.RoleAssistant, "hi"))
	}
	out := Mode1(msgs, tracker.New(), nil, estimator())
	for _, m := range out {
		require.NotEqual(t, message.RoleDisplayOnlyData, m.Role)
	}
}

func TestMode1PreservesRelativeOrder(t *testing.T) {
	msgs := []message.Message{
		longMsg(message.RoleSystem, "sys"),
		longMsg(message.RoleDisplayOnlyData, "hot"),
	}
	for i := 0; i < 6; i++ {
		msgs = append(msgs, longMsg(message.RoleUser, "msg"))
	}
	out := Mode1(msgs, tracker.New(), nil, estimator())

	var prevCreated int64
	for _, m := range out {
		require.GreaterOrEqual(t, m.CreatedUnixMs, prevCreated)
		prevCreated = m.CreatedUnixMs
	}
}

func TestMode1LeavesFullyProtectedHistoryUntouched(t *testing.T) {
	est := tokenest.New(tokenest.Config{
		MaxContextTokens:          1000,
		TargetUsagePct:            1.0,
		MinMessagesBeforeCompress: 1,
		CompressionEnabled:        true,
	})
	msgs := []message.Message{
		longMsg(message.RoleSystem, "sys"),
		longMsg(message.RoleDisplayOnlyData, "hot"),
		longMsg(message.RoleUser, "short"),
	}
	out := Mode1(msgs, tracker.New(), nil, est)
	require.Equal(t, "short", out[2].Content, "every message is in the protected tail, so none is transformed")
}

type fakeCompleter struct {
	out string
	err error
}

func (f fakeCompleter) CompleteOnce(systemPrompt, userPrompt string) (string, error) {
	return f.out, f.err
}

func TestCompressWithFallbackUsesLLMWhenAvailable(t *testing.T) {
	out := compressWithFallback(fakeCompleter{out: "compressed"}, "sys", "original content", 5)
	require.Equal(t, "compressed", out)
}

func TestCompressWithFallbackFallsBackOnError(t *testing.T) {
	out := compressWithFallback(fakeCompleter{err: assertErr{}}, "sys", "0123456789", 5)
	require.Equal(t, "01234", out)
}

func TestCompressWithFallbackNilLLM(t *testing.T) {
	out := compressWithFallback(nil, "sys", "0123456789", 3)
	require.Equal(t, "012", out)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
