// Package hotcontext implements the Hot-Context Injector (spec §4.F): a
// synthetic system message built fresh before every outbound request,
// occupying stream index 1, never persisted, and never touching the
// filesystem. Grounded on genesis's pkg/llm/history.go EnsureSystemMessage
// (index-0 replace-or-prepend idiom, generalized here to a non-persisted
// slot) and the goclaw reference agent's buildMessages context-file-listing
// assembly (sorted active files + recent-changes digest).
package hotcontext

import (
	"fmt"
	"strings"
	"time"

	"forgeloop/internal/message"
	"forgeloop/internal/tracker"
)

const maxActiveFiles = 5
const maxRecentMods = 5

// Task is the minimal view of task state the injector needs.
type Task struct {
	ID      string
	Content string
	Status  string
}

// Build assembles the hot-context system message for the current turn.
// recentMessageContents holds the text of the last 5 conversational
// messages, used to decide which tracked files count as "active".
func Build(t *tracker.Tracker, tasks []Task, recentMessageContents []string) message.Message {
	var b strings.Builder

	if active := activeTaskSection(t, tasks); active != "" {
		b.WriteString(active)
	}

	if files := activeFilesSection(t, recentMessageContents); files != "" {
		b.WriteString(files)
	}

	if mods := recentModificationsSection(t); mods != "" {
		b.WriteString(mods)
	}

	if counters := taskCountersSection(tasks); counters != "" {
		b.WriteString(counters)
	}

	content := b.String()
	return message.Message{
		Role:            message.RoleSystem,
		Content:         content,
		EstimatedTokens: message.EstimateTokens(content),
	}
}

func activeTaskSection(t *tracker.Tracker, tasks []Task) string {
	id := t.ActiveTaskID()
	if id == "" {
		return ""
	}
	var taskContent string
	for _, task := range tasks {
		if task.ID == id {
			taskContent = task.Content
			break
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Active task: %s\n", taskContent)
	if files := t.FilesTouched(); len(files) > 0 {
		fmt.Fprintf(&b, "Files touched: %s\n", strings.Join(files, ", "))
	}
	return b.String()
}

func activeFilesSection(t *tracker.Tracker, recentMessageContents []string) string {
	mentioned := mentionedPaths(t.TrackedPaths(), lastN(recentMessageContents, 5))
	touched := t.FilesTouched()

	seen := make(map[string]struct{})
	var active []string
	for _, p := range mentioned {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			active = append(active, p)
		}
	}
	for _, p := range touched {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			active = append(active, p)
		}
	}
	if len(active) == 0 {
		return ""
	}
	if len(active) > maxActiveFiles {
		active = active[:maxActiveFiles]
	}

	var b strings.Builder
	b.WriteString("Active context files:\n")
	for _, p := range active {
		ft, ok := t.FileTracker(p)
		if !ok {
			continue
		}
		detail := ""
		switch ft.LastReadType {
		case tracker.ReadCurated:
			if ft.Curated != nil {
				detail = fmt.Sprintf(" (%d sections)", len(ft.Curated.LineRanges))
			}
		case tracker.ReadLines:
			if ft.LastLineRange != nil {
				detail = fmt.Sprintf(" (lines %d-%d)", ft.LastLineRange.Start, ft.LastLineRange.End)
			}
		}
		fmt.Fprintf(&b, "- %s [%s]%s\n", p, ft.LastReadType, detail)
	}
	return b.String()
}

// mentionedPaths filters tracked paths down to those whose text appears in
// any of the recent message contents, keeping the stable ascending order
// TrackedPaths already guarantees.
func mentionedPaths(tracked []string, recent []string) []string {
	var out []string
	for _, p := range tracked {
		for _, c := range recent {
			if strings.Contains(c, p) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

func recentModificationsSection(t *tracker.Tracker) string {
	mods := t.RecentModifications()
	if len(mods) == 0 {
		return ""
	}
	if len(mods) > maxRecentMods {
		mods = mods[len(mods)-maxRecentMods:]
	}
	var b strings.Builder
	b.WriteString("Recent modifications:\n")
	now := time.Now().UnixMilli()
	for i := len(mods) - 1; i >= 0; i-- {
		m := mods[i]
		ago := time.Duration(now-m.UnixMs) * time.Millisecond
		summary := m.Summary
		if len(summary) > 80 {
			summary = summary[:80]
		}
		fmt.Fprintf(&b, "- %s %s (%s ago) %s\n", m.Kind, m.Path, ago.Round(time.Minute), summary)
	}
	return b.String()
}

func taskCountersSection(tasks []Task) string {
	var inProgress, pending, completed int
	for _, t := range tasks {
		switch t.Status {
		case "in_progress":
			inProgress++
		case "pending":
			pending++
		case "completed":
			completed++
		}
	}
	if inProgress == 0 && pending == 0 && completed == 0 {
		return ""
	}
	return fmt.Sprintf("Tasks: %d in progress, %d pending, %d completed\n", inProgress, pending, completed)
}

func lastN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
