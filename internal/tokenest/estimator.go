// Package tokenest implements the Token Estimator (spec §4.E): a bounded
// byte/4 heuristic with a running sum and the compression-trigger predicate.
// Grounded on genesis's pkg/llm/llm.go LLMUsage/LogUsage table-building idiom,
// reused here for UsageTable, which nothing in this repository calls or
// logs; the estimation arithmetic
// itself has no pack precedent since every real provider returns an exact
// usage count, so it is new stdlib arithmetic (see DESIGN.md).
package tokenest

import (
	"fmt"
	"strings"

	"forgeloop/internal/message"
)

// Config carries the thresholds the estimator checks against.
type Config struct {
	MaxContextTokens        int
	TriggerThresholdPct     float64
	TargetUsagePct          float64
	MinMessagesBeforeCompress int
	CompressionEnabled      bool
}

// Estimator tracks a running token sum over a message list.
type Estimator struct {
	cfg Config
	sum int
}

// New builds an Estimator for the given config.
func New(cfg Config) *Estimator {
	return &Estimator{cfg: cfg}
}

// Estimate applies the bounded heuristic to one message's content.
func Estimate(content string) int {
	return message.EstimateTokens(content)
}

// Recompute discards the running sum and recalculates it from scratch over
// messages, skipping display_only_data per spec §4.E.
func (e *Estimator) Recompute(messages []message.Message) {
	sum := 0
	for _, m := range messages {
		if m.Role == message.RoleDisplayOnlyData {
			continue
		}
		sum += m.EstimatedTokens
	}
	e.sum = sum
}

// Sum returns the current running total.
func (e *Estimator) Sum() int { return e.sum }

// UsageFraction is the running sum relative to the configured context budget.
func (e *Estimator) UsageFraction() float64 {
	if e.cfg.MaxContextTokens <= 0 {
		return 0
	}
	return float64(e.sum) / float64(e.cfg.MaxContextTokens)
}

// NeedsCompression implements the compression-trigger predicate.
func (e *Estimator) NeedsCompression(messageCount int) bool {
	if !e.cfg.CompressionEnabled {
		return false
	}
	if messageCount < e.cfg.MinMessagesBeforeCompress {
		return false
	}
	return e.UsageFraction() >= e.cfg.TriggerThresholdPct
}

// TargetTokens is the token budget a compression pass should bring the
// history below.
func (e *Estimator) TargetTokens() int {
	return int(float64(e.cfg.MaxContextTokens) * e.cfg.TargetUsagePct)
}

// UsageTable renders a short markdown table for debug logging, mirroring
// genesis's LogUsage idiom of building tabular log output with a
// strings.Builder rather than structured key=value pairs.
func (e *Estimator) UsageTable(model string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "| model | estimated_tokens | usage_fraction |\n")
	fmt.Fprintf(&b, "|---|---|---|\n")
	fmt.Fprintf(&b, "| %s | %d | %.2f%% |\n", model, e.sum, e.UsageFraction()*100)
	return b.String()
}
