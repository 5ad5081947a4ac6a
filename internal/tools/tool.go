// Package tools implements the Tool Registry & Executors (spec §4.C).
// The ctx-less Tool interface below is grounded on genesis's
// pkg/tools/tool.go Tool/ToolRegistry shape (kept close, since the spec's
// synchronous (args_json, context) -> ToolResult contract matches this
// interface rather than the ctx-aware pkg/api/tools.go one the gateway's
// multi-channel engine used). The compression-tool quartet (see
// compression_tools.go) is four separate Tool types with no shared dispatch
// table.
package tools

import (
	"forgeloop/internal/message"
	"forgeloop/internal/permission"
	"forgeloop/internal/tracker"
)

// ExecContext is the AppContext handle every executor receives (spec §9
// "Global state as a context handle" — no module-level mutable state, all
// cross-component references carried explicitly).
type ExecContext struct {
	Tracker  *tracker.Tracker
	Config   ToolConfig
	LLM      SubAgentClient
	Messages  *[]message.Message // only populated for compression tools; pointer so compression tools can drop entries
	Vector    VectorStore        // optional, nullable
	Tasks     *TaskStore
	Estimator TokenEstimator

	// ConversationHash is precomputed by the master loop each turn (spec
	// §4.D hash_conversation) and handed to every tool invocation; it is
	// not the same as Messages, which stays nil outside compression tools.
	ConversationHash uint64
}

// TokenEstimator is the narrow view of internal/tokenest.Estimator the
// compression-only tools need, kept as an interface to avoid a dependency
// cycle between internal/tools and internal/tokenest.
type TokenEstimator interface {
	Recompute(messages []message.Message)
	UsageFraction() float64
	TargetTokens() int
	Sum() int
}

// ToolConfig is the subset of application config tools consult.
type ToolConfig struct {
	FileReadSmallThreshold int
	WorkingDir             string
}

// SubAgentClient is the narrow interface tools needing an LLM call use (the
// curator and compression sub-agents); nil when no provider is configured.
type SubAgentClient interface {
	CompleteOnce(systemPrompt, userPrompt string) (string, error)
}

// VectorStore is an optional semantic index handle. Tools that need it must
// fail gracefully when it is nil (spec §9).
type VectorStore interface {
	Query(text string, k int) ([]string, error)
}

// Tool is one registered capability the model can invoke.
type Tool interface {
	Name() string
	Description() string
	Risk() permission.RiskLevel
	Parameters() map[string]any
	Required() []string
	Execute(ctx *ExecContext, argsJSON []byte) message.ToolResult
}

// Registry dispatches model-issued tool calls to strongly-typed handlers.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, preserving registration order for stable schema
// listing.
func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns every registered tool in registration order.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}
