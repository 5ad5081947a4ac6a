// Package message defines the conversation data model: messages, tool
// calls, tool results, and the streaming delta types the provider clients
// emit. Shapes are adapted from genesis's pkg/llm/messages.go, generalized
// to the roles and fields the master loop needs (display_only_data,
// estimated_tokens, structured ToolResult).
package message

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Role is the tagged-union discriminant for Message.Role.
type Role string

const (
	RoleUser             Role = "user"
	RoleAssistant        Role = "assistant"
	RoleSystem           Role = "system"
	RoleTool             Role = "tool"
	RoleDisplayOnlyData  Role = "display_only_data"
)

// Message is one entry in the conversation history. The system prompt and
// the hot-context message occupy indices 0 and 1 of the list sent to the
// provider only; they are not stored in the loop's history. Compression
// never reorders, transforms or drops indices 0 and 1 of whatever list it
// is given (see internal/compression).
type Message struct {
	Role             Role       `json:"role"`
	Content          string     `json:"content"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID       string     `json:"tool_call_id,omitempty"`
	EstimatedTokens  int        `json:"estimated_tokens"`
	CreatedUnixMs    int64      `json:"created_unix_ms,omitempty"`
}

// ToolCall is a structured request the model issued for a tool invocation.
type ToolCall struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ArgumentsJSON []byte `json:"arguments_json"`
}

// ErrorKind classifies why a tool invocation failed, if it did.
type ErrorKind string

const (
	ErrorNone             ErrorKind = "none"
	ErrorNotFound         ErrorKind = "not_found"
	ErrorValidationFailed ErrorKind = "validation_failed"
	ErrorPermissionDenied ErrorKind = "permission_denied"
	ErrorIO               ErrorKind = "io_error"
	ErrorParse            ErrorKind = "parse_error"
	ErrorInternal         ErrorKind = "internal_error"
)

// ToolResultMetadata carries execution bookkeeping for a ToolResult.
type ToolResultMetadata struct {
	ExecutionMs int64 `json:"execution_ms"`
	Bytes       int   `json:"bytes"`
	UnixMs      int64 `json:"unix_ms"`
}

// ToolResult is the structured response to a tool call, serialized as JSON
// and carried as the content of a tool-role Message.
type ToolResult struct {
	Success      bool               `json:"success"`
	Data         string             `json:"data,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
	ErrorKind    ErrorKind          `json:"error_kind"`
	Metadata     ToolResultMetadata `json:"metadata"`

	// Diagnostic carries a non-fatal hint about the tool-execution cycle
	// (e.g. a repeated-call loop warning) riding along on whichever result
	// happens to be produced next; it never changes Success/ErrorKind.
	Diagnostic string `json:"diagnostic,omitempty"`
}

// Encode serializes the result to the bytes a tool-role Message.Content holds.
func (r ToolResult) Encode() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"error_kind":"internal_error","error_message":"result encode failed"}`
	}
	return string(b)
}

// NewMessage builds a Message and stamps its creation time and token estimate.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:            role,
		Content:         content,
		CreatedUnixMs:   time.Now().UnixMilli(),
		EstimatedTokens: EstimateTokens(content),
	}
}

// EstimateTokens applies the bounded byte/4 heuristic from the token
// estimator (duplicated here, not imported, to keep message construction
// free of a dependency on internal/tokenest; internal/tokenest re-exports
// the same formula for running-sum bookkeeping).
func EstimateTokens(content string) int {
	n := len(content) / 4
	if n < 1 {
		return 1
	}
	return n
}

// StreamDeltaKind tags the three possible records a provider stream emits.
type StreamDeltaKind string

const (
	DeltaText     StreamDeltaKind = "text"
	DeltaToolCall StreamDeltaKind = "tool_call"
	DeltaDone     StreamDeltaKind = "done"
)

// StreamDelta is one record parsed off the wire (NDJSON line or SSE frame).
type StreamDelta struct {
	Kind StreamDeltaKind

	// DeltaText payload.
	Text string

	// DeltaToolCall payload. Index keys reassembly across fragmented
	// records (OpenAI-style); Ollama-style deltas arrive with a full
	// Name+ArgumentsFragment in a single record at Index 0..N.
	Index             int
	ID                string
	Name              string
	ArgumentsFragment string

	// DeltaDone payload.
	FinishReason string
}

// StreamResult is the finalized outcome of a chat_stream call.
type StreamResult struct {
	FullText     string
	ToolCalls    []ToolCall
	FinishReason string
	Cancelled    bool
}
