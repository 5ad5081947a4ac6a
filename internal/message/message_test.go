package message

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEstimateTokensFloorsAtOne(t *testing.T) {
	require.Equal(t, 1, EstimateTokens(""))
	require.Equal(t, 1, EstimateTokens("abc"))
	require.Equal(t, 2, EstimateTokens("12345678"))
}

func TestNewMessageStampsTokensAndTime(t *testing.T) {
	m := NewMessage(RoleUser, "hello world")
	require.Equal(t, RoleUser, m.Role)
	require.Equal(t, "hello world", m.Content)
	require.Equal(t, EstimateTokens("hello world"), m.EstimatedTokens)
	require.NotZero(t, m.CreatedUnixMs)
}

func TestToolResultEncodeRoundTrips(t *testing.T) {
	r := ToolResult{Success: true, Data: "ok", ErrorKind: ErrorNone}
	encoded := r.Encode()
	require.Contains(t, encoded, `"success":true`)
	require.Contains(t, encoded, `"data":"ok"`)
}

func TestToolResultEncodeFailureShape(t *testing.T) {
	r := ToolResult{Success: false, ErrorKind: ErrorNotFound, ErrorMessage: "no such file"}
	encoded := r.Encode()
	require.Contains(t, encoded, `"error_kind":"not_found"`)
	require.Contains(t, encoded, `"error_message":"no such file"`)
	require.Contains(t, encoded, `"success":false`)
}

func TestToolResultEncodeOmitsDiagnosticWhenEmpty(t *testing.T) {
	r := ToolResult{Success: true, ErrorKind: ErrorNone}
	require.NotContains(t, r.Encode(), "diagnostic")
}

func TestToolResultEncodeCarriesDiagnostic(t *testing.T) {
	r := ToolResult{Success: true, ErrorKind: ErrorNone, Diagnostic: "tool has looped"}
	require.Contains(t, r.Encode(), `"diagnostic":"tool has looped"`)
}
