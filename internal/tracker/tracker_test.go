package tracker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordReadCreatesThenUpdatesPreservingCuration(t *testing.T) {
	tr := New()
	tr.RecordRead("a.go", []byte("package a"), ReadFull, nil)
	tr.SetCuration("a.go", CurationCache{Summary: "s1"})

	ft, ok := tr.FileTracker("a.go")
	require.True(t, ok)
	require.NotNil(t, ft.Curated)

	tr.RecordRead("a.go", []byte("package a"), ReadCurated, &LineRange{Start: 1, End: 2})
	ft, ok = tr.FileTracker("a.go")
	require.True(t, ok)
	require.NotNil(t, ft.Curated, "unchanged content must preserve curation cache")
	require.Equal(t, ReadCurated, ft.LastReadType)
}

func TestRecordReadInvalidatesCurationOnContentChange(t *testing.T) {
	tr := New()
	tr.RecordRead("a.go", []byte("v1"), ReadFull, nil)
	tr.SetCuration("a.go", CurationCache{Summary: "s1"})

	tr.RecordRead("a.go", []byte("v2"), ReadFull, nil)
	ft, ok := tr.FileTracker("a.go")
	require.True(t, ok)
	require.Nil(t, ft.Curated, "changed content must drop the curation cache")
}

func TestRecordModificationInvalidatesCuration(t *testing.T) {
	tr := New()
	tr.RecordRead("a.go", []byte("v1"), ReadFull, nil)
	tr.SetCuration("a.go", CurationCache{Summary: "s1"})

	tr.RecordModification("a.go", ModModified, "edited")
	ft, ok := tr.FileTracker("a.go")
	require.True(t, ok)
	require.Nil(t, ft.Curated)
}

func TestRecentModificationsCapEvictsOldest(t *testing.T) {
	tr := New()
	for i := 0; i < recentModificationsCap+5; i++ {
		tr.RecordModification("f.go", ModModified, "edit")
	}
	mods := tr.RecentModifications()
	require.Len(t, mods, recentModificationsCap)
}

func TestRecordModificationTracksActiveTaskFiles(t *testing.T) {
	tr := New()
	tr.SetActiveTask("task-1")
	tr.RecordModification("a.go", ModCreated, "new file")
	tr.RecordModification("b.go", ModModified, "edit")

	require.Equal(t, []string{"a.go", "b.go"}, tr.FilesTouched())
	require.Equal(t, "task-1", tr.ActiveTaskID())

	tr.ClearActiveTask()
	require.Empty(t, tr.ActiveTaskID())
	require.Empty(t, tr.FilesTouched())
}

func TestAddImportIsBidirectional(t *testing.T) {
	tr := New()
	tr.AddImport("a.go", "b.go")
	tr.AddImport("a.go", "b.go")

	require.Equal(t, []string{"b.go"}, tr.Imports("a.go"), "duplicate edges must not be added twice")
	require.Equal(t, []string{"a.go"}, tr.ImportedBy("b.go"))
}

func TestHasFileChangedCheapUnknownPath(t *testing.T) {
	tr := New()
	changed, known := tr.HasFileChangedCheap("missing.go", []byte("x"))
	require.True(t, changed)
	require.False(t, known)
}

func TestHasFileChangedCheapDetectsChange(t *testing.T) {
	tr := New()
	tr.RecordRead("a.go", []byte("v1"), ReadFull, nil)

	changed, known := tr.HasFileChangedCheap("a.go", []byte("v1"))
	require.False(t, changed)
	require.True(t, known)

	changed, known = tr.HasFileChangedCheap("a.go", []byte("v2"))
	require.True(t, changed)
	require.True(t, known)
}

func TestTrackedPathsSortedAscending(t *testing.T) {
	tr := New()
	tr.RecordRead("z.go", []byte("z"), ReadFull, nil)
	tr.RecordRead("a.go", []byte("a"), ReadFull, nil)
	require.Equal(t, []string{"a.go", "z.go"}, tr.TrackedPaths())
}

func TestHashConversationUsesLastFiveOnly(t *testing.T) {
	all := []string{"1", "2", "3", "4", "5", "6", "7"}
	lastFive := all[2:]
	require.Equal(t, HashConversation(lastFive), HashConversation(all))
}

func TestHashConversationDeterministic(t *testing.T) {
	a := HashConversation([]string{"x", "y"})
	b := HashConversation([]string{"x", "y"})
	require.Equal(t, a, b)
}
