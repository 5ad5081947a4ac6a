package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"forgeloop/internal/message"
	"forgeloop/internal/tracker"
)

func TestTaskStoreAddListOrder(t *testing.T) {
	s := NewTaskStore()
	s.Add("first")
	s.Add("second")

	tasks := s.List()
	require.Len(t, tasks, 2)
	require.Equal(t, "first", tasks[0].Content)
	require.Equal(t, TaskPending, tasks[0].Status)
}

func TestTaskStoreUpdateEnforcesSingleInProgress(t *testing.T) {
	s := NewTaskStore()
	a := s.Add("a")
	b := s.Add("b")

	_, err := s.Update(a.ID, TaskInProgress)
	require.NoError(t, err)
	_, err = s.Update(b.ID, TaskInProgress)
	require.NoError(t, err)

	tasks := s.List()
	var inProgressCount int
	for _, t := range tasks {
		if t.Status == TaskInProgress {
			inProgressCount++
		}
	}
	require.Equal(t, 1, inProgressCount, "only the most recently started task may stay in_progress")
}

func TestTaskStoreUpdateUnknownIDErrors(t *testing.T) {
	s := NewTaskStore()
	_, err := s.Update("nonexistent", TaskCompleted)
	require.Error(t, err)
}

func TestTaskStoreCounts(t *testing.T) {
	s := NewTaskStore()
	a := s.Add("a")
	b := s.Add("b")
	s.Add("c")
	s.Update(a.ID, TaskInProgress)
	s.Update(b.ID, TaskCompleted)

	inProgress, pending, completed := s.Counts()
	require.Equal(t, 1, inProgress)
	require.Equal(t, 1, pending)
	require.Equal(t, 1, completed)
}

func TestAddTaskToolExecute(t *testing.T) {
	ctx := &ExecContext{Tracker: tracker.New(), Tasks: NewTaskStore()}
	args, _ := json.Marshal(AddTaskArgs{Content: "write tests"})
	res := AddTaskTool{}.Execute(ctx, args)

	require.True(t, res.Success)
	require.Contains(t, res.Data, "write tests")
	require.Len(t, ctx.Tasks.List(), 1)
}

func TestUpdateTaskToolSetsActiveTaskOnTracker(t *testing.T) {
	ctx := &ExecContext{Tracker: tracker.New(), Tasks: NewTaskStore()}
	task := ctx.Tasks.Add("do the thing")

	args, _ := json.Marshal(UpdateTaskArgs{ID: task.ID, Status: string(TaskInProgress)})
	res := UpdateTaskTool{}.Execute(ctx, args)

	require.True(t, res.Success)
	require.Equal(t, task.ID, ctx.Tracker.ActiveTaskID())
}

func TestUpdateTaskToolClearsActiveTaskOnCompletion(t *testing.T) {
	ctx := &ExecContext{Tracker: tracker.New(), Tasks: NewTaskStore()}
	task := ctx.Tasks.Add("do the thing")

	args, _ := json.Marshal(UpdateTaskArgs{ID: task.ID, Status: string(TaskInProgress)})
	UpdateTaskTool{}.Execute(ctx, args)

	args, _ = json.Marshal(UpdateTaskArgs{ID: task.ID, Status: string(TaskCompleted)})
	res := UpdateTaskTool{}.Execute(ctx, args)

	require.True(t, res.Success)
	require.Empty(t, ctx.Tracker.ActiveTaskID())
}

func TestUpdateTaskToolUnknownIDReturnsNotFound(t *testing.T) {
	ctx := &ExecContext{Tracker: tracker.New(), Tasks: NewTaskStore()}
	args, _ := json.Marshal(UpdateTaskArgs{ID: "nope", Status: string(TaskCompleted)})
	res := UpdateTaskTool{}.Execute(ctx, args)

	require.False(t, res.Success)
	require.Equal(t, message.ErrorNotFound, res.ErrorKind)
}

func TestListTasksToolExecute(t *testing.T) {
	ctx := &ExecContext{Tracker: tracker.New(), Tasks: NewTaskStore()}
	ctx.Tasks.Add("a")
	ctx.Tasks.Add("b")

	res := ListTasksTool{}.Execute(ctx, []byte("{}"))
	require.True(t, res.Success)
	require.Contains(t, res.Data, "a")
	require.Contains(t, res.Data, "b")
}
