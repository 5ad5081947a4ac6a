// Package curator implements the File-Curator Sub-agent (spec §4.H): a
// single-shot LLM call producing a relevance-filtered line-range extract of
// a file, cached by (conversation_hash, content_hash). Grounded on genesis's
// provider streaming-call shape (a single non-streaming completion collected
// to finish, as pkg/agent/engine.go's CollectChunks does) and on
// haasonsaas-nexus's sync.Map-guarded compile-once cache idiom
// (pkg/pluginsdk/validation.go), applied here to a two-hash cache key
// instead of a schema string.
package curator

import (
	"fmt"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"forgeloop/internal/tracker"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CompleteOnce is the narrow LLM dependency the curator needs: one
// non-streaming prompt/response round trip.
type CompleteOnce interface {
	CompleteOnce(systemPrompt, userPrompt string) (string, error)
}

const curatorSystemPrompt = "You are a file curator. Given a file's content with line numbers and the current conversation, return strict JSON: {\"line_ranges\":[{\"start\":N,\"end\":N,\"reason\":\"...\"}],\"summary\":\"...\"}. Select only the ranges relevant to the conversation."

const maxRetries = 2

type curatorOutput struct {
	LineRanges []struct {
		Start  int    `json:"start"`
		End    int    `json:"end"`
		Reason string `json:"reason"`
	} `json:"line_ranges"`
	Summary             string `json:"summary"`
	PreservedPercentage *int   `json:"preserved_percentage,omitempty"`
}

// Curator runs and caches the curation sub-agent.
type Curator struct {
	llm CompleteOnce
	mu  sync.Mutex
}

// New builds a Curator backed by llm. A nil llm makes Curate always fall
// back to returning the full file (handled by the caller, read_file).
func New(llm CompleteOnce) *Curator {
	return &Curator{llm: llm}
}

// Curate returns the formatted, line-numbered excerpt for path's content,
// serving the tracker's cached result when conversation_hash and
// content_hash both still match (spec §4.H caching rule), otherwise
// invoking the sub-agent and storing a fresh cache entry.
func (c *Curator) Curate(path string, content []byte, conversationHash uint64, t *tracker.Tracker) (string, error) {
	contentHash := tracker.ContentHash(content)

	if ft, ok := t.FileTracker(path); ok && ft.Curated != nil && ft.ContentHash == contentHash {
		if ft.Curated.ConversationHash == conversationHash {
			return formatExcerpt(path, content, toCuratedRanges(ft.Curated.LineRanges), ft.Curated.Summary), nil
		}
	}

	if c.llm == nil {
		return "", fmt.Errorf("no curator sub-agent configured")
	}

	lines := strings.Split(string(content), "\n")
	numbered := numberLines(lines)

	var out curatorOutput
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		raw, err := c.llm.CompleteOnce(curatorSystemPrompt, numbered)
		if err != nil {
			lastErr = err
			continue
		}
		if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &out); err != nil {
			lastErr = err
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return "", lastErr
	}

	ranges := make([]tracker.CuratedRange, 0, len(out.LineRanges))
	for _, r := range out.LineRanges {
		if r.Start < 1 || r.End < r.Start || r.End > len(lines) {
			continue
		}
		if r.End-r.Start+1 < 3 {
			continue
		}
		ranges = append(ranges, tracker.CuratedRange{Start: r.Start, End: r.End, Reason: r.Reason})
	}

	t.SetCuration(path, tracker.CurationCache{
		ConversationHash: conversationHash,
		LineRanges:       ranges,
		Summary:          out.Summary,
		UnixMs:           time.Now().UnixMilli(),
	})
	// content_hash is implicitly refreshed by the caller's RecordRead call.

	return formatExcerpt(path, content, ranges, out.Summary), nil
}

func toCuratedRanges(rs []tracker.CuratedRange) []tracker.CuratedRange { return rs }

func numberLines(lines []string) string {
	var b strings.Builder
	for i, l := range lines {
		fmt.Fprintf(&b, "%d: %s\n", i+1, l)
	}
	return b.String()
}

func formatExcerpt(path string, content []byte, ranges []tracker.CuratedRange, summary string) string {
	lines := strings.Split(string(content), "\n")
	total := len(lines)
	preserved := 0

	var b strings.Builder
	fmt.Fprintf(&b, "File: %s (total %d lines)\n", path, total)
	fmt.Fprintf(&b, "Summary: %s\n\n", summary)

	for _, r := range ranges {
		fmt.Fprintf(&b, "--- lines %d-%d (%s) ---\n", r.Start, r.End, r.Reason)
		for i := r.Start; i <= r.End && i <= total; i++ {
			fmt.Fprintf(&b, "%d: %s\n", i, lines[i-1])
		}
		preserved += r.End - r.Start + 1
	}

	pct := 0
	if total > 0 {
		pct = preserved * 100 / total
	}
	fmt.Fprintf(&b, "\n(preserved %d/%d lines, %d%%)\n", preserved, total, pct)
	return b.String()
}
