package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"forgeloop/internal/message"
	"forgeloop/internal/tokenest"
	"forgeloop/internal/tracker"
)

func withMessages(msgs []message.Message) *ExecContext {
	return &ExecContext{Tracker: tracker.New(), Messages: &msgs}
}

func TestGetCompressionMetadataRequiresMessages(t *testing.T) {
	ctx := &ExecContext{Tracker: tracker.New()}
	res := GetCompressionMetadataTool{}.Execute(ctx, []byte(`{"index":0}`))
	require.False(t, res.Success)
	require.Equal(t, message.ErrorInternal, res.ErrorKind)
}

func TestGetCompressionMetadataIndexOutOfRange(t *testing.T) {
	ctx := withMessages([]message.Message{message.NewMessage(message.RoleUser, "hi")})
	res := GetCompressionMetadataTool{}.Execute(ctx, []byte(`{"index":5}`))
	require.False(t, res.Success)
	require.Equal(t, message.ErrorValidationFailed, res.ErrorKind)
}

func TestGetCompressionMetadataReturnsPreview(t *testing.T) {
	ctx := withMessages([]message.Message{message.NewMessage(message.RoleUser, "hello world")})
	res := GetCompressionMetadataTool{}.Execute(ctx, []byte(`{"index":0}`))
	require.True(t, res.Success)
	require.Contains(t, res.Data, "hello world")
}

func TestCompressToolResultRejectsNonToolMessage(t *testing.T) {
	ctx := withMessages([]message.Message{message.NewMessage(message.RoleUser, "hi")})
	res := CompressToolResultTool{}.Execute(ctx, []byte(`{"index":0}`))
	require.False(t, res.Success)
	require.Equal(t, message.ErrorValidationFailed, res.ErrorKind)
}

func TestCompressToolResultReplacesContent(t *testing.T) {
	msgs := []message.Message{{Role: message.RoleTool, Content: "a very long tool result"}}
	ctx := withMessages(msgs)
	res := CompressToolResultTool{}.Execute(ctx, []byte(`{"index":0}`))
	require.True(t, res.Success)
	require.Contains(t, (*ctx.Messages)[0].Content, "Compressed")
}

func TestCompressConversationSegmentRejectsProtectedIndices(t *testing.T) {
	ctx := withMessages(make([]message.Message, 5))
	res := CompressConversationSegmentTool{}.Execute(ctx, []byte(`{"start":0,"end":2,"summary":"x"}`))
	require.False(t, res.Success)
	require.Equal(t, message.ErrorValidationFailed, res.ErrorKind)
}

func TestCompressConversationSegmentCollapsesRange(t *testing.T) {
	msgs := make([]message.Message, 6)
	for i := range msgs {
		msgs[i] = message.NewMessage(message.RoleUser, "content")
	}
	ctx := withMessages(msgs)

	args, _ := json.Marshal(CompressConversationSegmentArgs{Start: 2, End: 4, Summary: "collapsed summary"})
	res := CompressConversationSegmentTool{}.Execute(ctx, args)
	require.True(t, res.Success)

	out := *ctx.Messages
	require.Len(t, out, 4)
	require.Equal(t, "collapsed summary", out[2].Content)
}

func TestVerifyCompressionTargetReportsSatisfied(t *testing.T) {
	est := tokenest.New(tokenest.Config{MaxContextTokens: 1000, TargetUsagePct: 1.0})
	ctx := withMessages([]message.Message{message.NewMessage(message.RoleUser, "short")})
	ctx.Estimator = est

	res := VerifyCompressionTargetTool{}.Execute(ctx, []byte("{}"))
	require.True(t, res.Success)
	require.Contains(t, res.Data, `"satisfied":true`)
}

func TestVerifyCompressionTargetRequiresEstimator(t *testing.T) {
	ctx := withMessages([]message.Message{message.NewMessage(message.RoleUser, "short")})
	res := VerifyCompressionTargetTool{}.Execute(ctx, []byte("{}"))
	require.False(t, res.Success)
	require.Equal(t, message.ErrorInternal, res.ErrorKind)
}
