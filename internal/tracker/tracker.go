// Package tracker implements the Context Tracker (spec §4.D): file
// read/modification tracking, the curator cache, active-task state, and
// file-relationship multimaps. It is owned exclusively by the master loop
// and mutated only on the main goroutine (spec §5), so it carries no
// internal locking — unlike genesis's pkg/llm/history.go, whose ChatHistory
// is shared across a multi-channel gateway and therefore needs a
// sync.RWMutex. The cap-20 ring for recent_modifications mirrors
// history.go's TruncateHistory bounded-slice idiom.
package tracker

import (
	"hash/fnv"
	"sort"
	"time"
)

// ReadKind tags how a file was most recently read.
type ReadKind string

const (
	ReadFull    ReadKind = "full"
	ReadCurated ReadKind = "curated"
	ReadLines   ReadKind = "lines"
)

// LineRange is an inclusive 1-based line span.
type LineRange struct {
	Start int
	End   int
}

// CurationCache holds a curator sub-agent's last result for one file.
type CurationCache struct {
	ConversationHash uint64
	LineRanges       []CuratedRange
	Summary          string
	UnixMs           int64
}

// CuratedRange is one relevance-filtered line span with its reason.
type CuratedRange struct {
	Start  int
	End    int
	Reason string
}

// FileTracker is the per-path read state.
type FileTracker struct {
	ContentHash   uint64
	LastReadUnixMs int64
	LastReadType  ReadKind
	LastLineRange *LineRange
	Curated       *CurationCache
}

// ModificationKind tags a recorded change.
type ModificationKind string

const (
	ModCreated  ModificationKind = "created"
	ModModified ModificationKind = "modified"
	ModDeleted  ModificationKind = "deleted"
)

// Modification is one entry in the bounded recent_modifications sequence.
type Modification struct {
	Path          string
	Kind          ModificationKind
	UnixMs        int64
	RelatedTaskID string
	Summary       string
}

const recentModificationsCap = 20

// TodoContext tracks the active task and the files touched while it ran.
type TodoContext struct {
	ActiveTaskID  string
	FilesTouched  map[string]struct{}
	StartedUnixMs int64
}

// FileRelationships are two symmetric multimaps, no back-pointers, no
// cycles, per spec §9's "arena + indices instead of pointer graphs" note.
type FileRelationships struct {
	Imports    map[string][]string
	ImportedBy map[string][]string
}

// Tracker is the Context Tracker. Created at session start, dropped at exit;
// no cross-session persistence (spec §4.D lifecycle).
type Tracker struct {
	readFiles           map[string]*FileTracker
	recentModifications []Modification
	todo                TodoContext
	relationships       FileRelationships
}

// New builds an empty Tracker.
func New() *Tracker {
	return &Tracker{
		readFiles: make(map[string]*FileTracker),
		todo:      TodoContext{FilesTouched: make(map[string]struct{})},
		relationships: FileRelationships{
			Imports:    make(map[string][]string),
			ImportedBy: make(map[string][]string),
		},
	}
}

// ContentHash computes the non-cryptographic 64-bit fingerprint used for
// cache keys throughout the tracker. hash/fnv is the stdlib choice; see
// DESIGN.md for why no third-party hash library is pulled in for this.
func ContentHash(content []byte) uint64 {
	h := fnv.New64a()
	h.Write(content)
	return h.Sum64()
}

// RecordRead implements record_read: updates or creates the FileTracker for
// path, preserving the curator cache unless the content actually changed.
func (t *Tracker) RecordRead(path string, content []byte, kind ReadKind, lineRange *LineRange) {
	hash := ContentHash(content)
	now := time.Now().UnixMilli()

	existing, ok := t.readFiles[path]
	if !ok {
		t.readFiles[path] = &FileTracker{
			ContentHash:    hash,
			LastReadUnixMs: now,
			LastReadType:   kind,
			LastLineRange:  lineRange,
		}
		return
	}

	if existing.ContentHash != hash {
		existing.Curated = nil
	}
	existing.ContentHash = hash
	existing.LastReadUnixMs = now
	existing.LastReadType = kind
	existing.LastLineRange = lineRange
}

// RecordModification implements record_modification: appends to the
// bounded recent_modifications ring, evicts the oldest entry past the cap,
// invalidates the path's curator cache, and marks the file touched if a
// task is active.
func (t *Tracker) RecordModification(path string, kind ModificationKind, summary string) {
	mod := Modification{
		Path:          path,
		Kind:          kind,
		UnixMs:        time.Now().UnixMilli(),
		RelatedTaskID: t.todo.ActiveTaskID,
		Summary:       summary,
	}
	t.recentModifications = append(t.recentModifications, mod)
	if len(t.recentModifications) > recentModificationsCap {
		t.recentModifications = t.recentModifications[len(t.recentModifications)-recentModificationsCap:]
	}

	if ft, ok := t.readFiles[path]; ok {
		ft.Curated = nil
	}

	if t.todo.ActiveTaskID != "" {
		t.todo.FilesTouched[path] = struct{}{}
	}
}

// RecentModifications returns the bounded ring, newest last.
func (t *Tracker) RecentModifications() []Modification {
	out := make([]Modification, len(t.recentModifications))
	copy(out, t.recentModifications)
	return out
}

// FileTracker returns the tracked state for path, if any.
func (t *Tracker) FileTracker(path string) (*FileTracker, bool) {
	ft, ok := t.readFiles[path]
	return ft, ok
}

// SetCuration stores a fresh curator result for path.
func (t *Tracker) SetCuration(path string, cache CurationCache) {
	ft, ok := t.readFiles[path]
	if !ok {
		ft = &FileTracker{}
		t.readFiles[path] = ft
	}
	ft.Curated = &cache
}

// SetActiveTask begins tracking files touched for a newly started task.
func (t *Tracker) SetActiveTask(taskID string) {
	t.todo = TodoContext{
		ActiveTaskID:  taskID,
		FilesTouched:  make(map[string]struct{}),
		StartedUnixMs: time.Now().UnixMilli(),
	}
}

// ClearActiveTask ends active-task tracking (task completed or cancelled).
func (t *Tracker) ClearActiveTask() {
	t.todo = TodoContext{FilesTouched: make(map[string]struct{})}
}

// ActiveTaskID returns the currently in-progress task, if any.
func (t *Tracker) ActiveTaskID() string { return t.todo.ActiveTaskID }

// FilesTouched returns the sorted paths touched during the active task.
func (t *Tracker) FilesTouched() []string {
	out := make([]string, 0, len(t.todo.FilesTouched))
	for p := range t.todo.FilesTouched {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// TrackedPaths returns every path the tracker currently holds state for,
// sorted ascending — the Hot-Context Injector relies on stable ordering for
// provider KV-cache reuse (spec §4.F).
func (t *Tracker) TrackedPaths() []string {
	out := make([]string, 0, len(t.readFiles))
	for p := range t.readFiles {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// AddImport records a directed import edge and its reverse.
func (t *Tracker) AddImport(from, to string) {
	t.relationships.Imports[from] = appendUnique(t.relationships.Imports[from], to)
	t.relationships.ImportedBy[to] = appendUnique(t.relationships.ImportedBy[to], from)
}

// Imports returns the files path imports.
func (t *Tracker) Imports(path string) []string { return t.relationships.Imports[path] }

// ImportedBy returns the files that import path.
func (t *Tracker) ImportedBy(path string) []string { return t.relationships.ImportedBy[path] }

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// HasFileChangedCheap compares the stored content hash against a hash of
// freshly supplied bytes without touching disk itself — the caller does the
// actual read, which keeps the tracker free of filesystem I/O per spec §9's
// "Hot-path performance" note. Nothing outside the tracker's tests calls it;
// neither the tools nor the Hot-Context Injector do.
func (t *Tracker) HasFileChangedCheap(path string, freshContent []byte) (changed bool, known bool) {
	ft, ok := t.readFiles[path]
	if !ok {
		return true, false
	}
	return ContentHash(freshContent) != ft.ContentHash, true
}

// HashConversation implements hash_conversation: a 64-bit fingerprint of the
// last N=5 messages' content, used as the curator cache key (spec §4.D).
func HashConversation(contents []string) uint64 {
	h := fnv.New64a()
	for _, c := range lastN(contents, 5) {
		h.Write([]byte(c))
	}
	return h.Sum64()
}

func lastN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
