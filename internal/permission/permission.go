// Package permission implements the Permission Engine (spec §4.B): risk
// classification, stored policy matching, in-memory session grants, and a
// JSON-backed policy file. Grounded on haasonsaas-nexus's
// internal/tools/policy Policy{Allow, Deny, ByProvider, Profile} shape and
// its Merge helper (adapted here to a per-tool decision record rather than
// a profile name list), and on genesis's pkg/config/config.go's
// missing-file-means-defaults load idiom.
package permission

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"forgeloop/internal/message"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RiskLevel is the tool-declared sensitivity of an action.
type RiskLevel string

const (
	RiskSafe   RiskLevel = "safe"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Decision is the engine's verdict for one tool call.
type Decision string

const (
	DecisionAllow    Decision = "allow"
	DecisionDeny     Decision = "deny"
	DecisionAskUser  Decision = "ask_user"
)

// UserResponse is what the user chose when prompted.
type UserResponse string

const (
	ResponseAllowOnce    UserResponse = "allow_once"
	ResponseAllowSession UserResponse = "allow_session"
	ResponseRemember     UserResponse = "remember"
	ResponseDeny         UserResponse = "deny"
)

// PolicyDecision is the durable verdict a remembered policy records.
type PolicyDecision string

const (
	PolicyAlwaysAllow PolicyDecision = "always_allow"
	PolicyAlwaysDeny  PolicyDecision = "always_deny"
)

// PolicyRecord is one entry in policies.json.
type PolicyRecord struct {
	ToolName      string         `json:"tool_name"`
	Decision      PolicyDecision `json:"decision"`
	CreatedUnixMs int64          `json:"created_unix_ms"`
	Pattern       string         `json:"pattern,omitempty"`
}

type policyFile struct {
	Policies []PolicyRecord `json:"policies"`
}

// Engine evaluates tool calls against risk level, stored policy, and
// session grants.
type Engine struct {
	mu       sync.Mutex
	path     string
	policies []PolicyRecord
	grants   map[string]struct{}
}

// Load reads policies.json at path. A missing or corrupt file resolves to
// "no policies" without error, per spec §4.B.
func Load(path string) *Engine {
	e := &Engine{path: path, grants: make(map[string]struct{})}
	data, err := os.ReadFile(path)
	if err != nil {
		return e
	}
	var pf policyFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return e
	}
	e.policies = pf.Policies
	return e
}

// Evaluate produces a Decision for one tool call.
func (e *Engine) Evaluate(toolName string, risk RiskLevel, argsJSON []byte) Decision {
	if risk == RiskSafe {
		return DecisionAllow
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	fingerprint := toolName + ":" + argFingerprint(argsJSON)

	for _, p := range e.policies {
		if p.ToolName != toolName {
			continue
		}
		if p.Pattern != "" && p.Pattern != string(argsJSON) {
			continue
		}
		if p.Decision == PolicyAlwaysAllow {
			return DecisionAllow
		}
		return DecisionDeny
	}

	if _, ok := e.grants[fingerprint]; ok {
		return DecisionAllow
	}

	return DecisionAskUser
}

// Resolve applies the user's response to a prompted decision.
func (e *Engine) Resolve(toolName string, argsJSON []byte, response UserResponse) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	fingerprint := toolName + ":" + argFingerprint(argsJSON)

	switch response {
	case ResponseAllowOnce:
		return DecisionAllow
	case ResponseAllowSession:
		e.grants[fingerprint] = struct{}{}
		return DecisionAllow
	case ResponseRemember:
		e.policies = append(e.policies, PolicyRecord{
			ToolName:      toolName,
			Decision:      PolicyAlwaysAllow,
			CreatedUnixMs: time.Now().UnixMilli(),
		})
		e.save()
		return DecisionAllow
	default:
		return DecisionDeny
	}
}

// save persists policies.json best-effort; a failed write logs and
// continues per spec §5 (serial, best-effort policy writes).
func (e *Engine) save() {
	if e.path == "" {
		return
	}
	data, err := json.MarshalIndent(policyFile{Policies: e.policies}, "", "  ")
	if err != nil {
		slog.Warn("encoding policies failed", "path", e.path, "error", err)
		return
	}
	if err := os.WriteFile(e.path, data, 0o644); err != nil {
		slog.Warn("writing policies failed", "path", e.path, "error", err)
	}
}

// argFingerprint hashes the raw argument bytes with sha256 into a hex key.
// The JSON is not normalized first, so argument objects that differ only in
// key order or whitespace get different keys; hashing avoids storing
// arbitrarily large argument blobs in the in-memory grant set.
func argFingerprint(argsJSON []byte) string {
	sum := sha256.Sum256(argsJSON)
	return hex.EncodeToString(sum[:])
}

// DeniedResult builds the ToolResult the loop returns to the model when a
// call is denied without executing.
func DeniedResult(toolName string) message.ToolResult {
	return message.ToolResult{
		Success:      false,
		ErrorMessage: "permission denied for tool " + toolName,
		ErrorKind:    message.ErrorPermissionDenied,
		Metadata:     message.ToolResultMetadata{UnixMs: time.Now().UnixMilli()},
	}
}

// sortedPolicyNames lists, sorted, the distinct tool names currently
// governed by a stored policy.
func (e *Engine) sortedPolicyNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	seen := make(map[string]struct{})
	var names []string
	for _, p := range e.policies {
		if _, ok := seen[p.ToolName]; !ok {
			seen[p.ToolName] = struct{}{}
			names = append(names, p.ToolName)
		}
	}
	sort.Strings(names)
	return names
}

// PolicyNames exposes sortedPolicyNames for callers outside the package.
func (e *Engine) PolicyNames() []string { return e.sortedPolicyNames() }
