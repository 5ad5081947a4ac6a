// Task tools: add_task, list_tasks, update_task (spec §4.C baseline
// table, §3 Task entity). At most one task may be in_progress; transitions
// enforce this invariant (spec §3, invariant 2 in §8).
package tools

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"forgeloop/internal/message"
	"forgeloop/internal/permission"
)

// TaskStatus is the tagged status of a Task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// Task is one todo entry (spec §3).
type Task struct {
	ID      string     `json:"id"`
	Content string     `json:"content"`
	Status  TaskStatus `json:"status"`
}

// TaskStore holds task state for the session's lifetime.
type TaskStore struct {
	mu    sync.Mutex
	tasks map[string]*Task
	order []string
}

// NewTaskStore builds an empty task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]*Task)}
}

// Add creates a new pending task.
func (s *TaskStore) Add(content string) Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := Task{ID: uuid.NewString(), Content: content, Status: TaskPending}
	s.tasks[t.ID] = &t
	s.order = append(s.order, t.ID)
	return t
}

// List returns all tasks in creation order.
func (s *TaskStore) List() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.tasks[id])
	}
	return out
}

// Update transitions a task's status, enforcing the single-in-progress
// invariant by demoting any other in_progress task back to pending.
func (s *TaskStore) Update(id string, status TaskStatus) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("task %s not found", id)
	}
	if status == TaskInProgress {
		for _, other := range s.tasks {
			if other.ID != id && other.Status == TaskInProgress {
				other.Status = TaskPending
			}
		}
	}
	t.Status = status
	return *t, nil
}

// Counts returns the {in_progress, pending, completed} counters the
// Hot-Context Injector reports.
func (s *TaskStore) Counts() (inProgress, pending, completed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		switch t.Status {
		case TaskInProgress:
			inProgress++
		case TaskPending:
			pending++
		case TaskCompleted:
			completed++
		}
	}
	return
}

// ---------- add_task ----------

type AddTaskArgs struct {
	Content string `json:"content"`
}

type AddTaskTool struct{}

func (AddTaskTool) Name() string                 { return "add_task" }
func (AddTaskTool) Description() string          { return "Add a new pending task" }
func (AddTaskTool) Risk() permission.RiskLevel    { return permission.RiskSafe }
func (AddTaskTool) Parameters() map[string]any    { return reflectParams(AddTaskArgs{}) }
func (AddTaskTool) Required() []string            { return []string{"content"} }

func (AddTaskTool) Execute(ctx *ExecContext, argsJSON []byte) message.ToolResult {
	start := time.Now()
	var args AddTaskArgs
	if err := toolJSON.Unmarshal(argsJSON, &args); err != nil {
		return timed(start, false, "", err.Error(), message.ErrorValidationFailed)
	}
	t := ctx.Tasks.Add(args.Content)
	b, _ := toolJSON.Marshal(t)
	return timed(start, true, string(b), "", message.ErrorNone)
}

// ---------- list_tasks ----------

type ListTasksArgs struct{}

type ListTasksTool struct{}

func (ListTasksTool) Name() string                 { return "list_tasks" }
func (ListTasksTool) Description() string          { return "List all tasks" }
func (ListTasksTool) Risk() permission.RiskLevel    { return permission.RiskSafe }
func (ListTasksTool) Parameters() map[string]any    { return reflectParams(ListTasksArgs{}) }
func (ListTasksTool) Required() []string            { return nil }

func (ListTasksTool) Execute(ctx *ExecContext, argsJSON []byte) message.ToolResult {
	start := time.Now()
	tasks := ctx.Tasks.List()
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Status < tasks[j].Status })
	b, _ := toolJSON.Marshal(tasks)
	return timed(start, true, string(b), "", message.ErrorNone)
}

// ---------- update_task ----------

type UpdateTaskArgs struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type UpdateTaskTool struct{}

func (UpdateTaskTool) Name() string                 { return "update_task" }
func (UpdateTaskTool) Description() string          { return "Transition a task's status" }
func (UpdateTaskTool) Risk() permission.RiskLevel    { return permission.RiskSafe }
func (UpdateTaskTool) Parameters() map[string]any    { return reflectParams(UpdateTaskArgs{}) }
func (UpdateTaskTool) Required() []string            { return []string{"id", "status"} }

func (UpdateTaskTool) Execute(ctx *ExecContext, argsJSON []byte) message.ToolResult {
	start := time.Now()
	var args UpdateTaskArgs
	if err := toolJSON.Unmarshal(argsJSON, &args); err != nil {
		return timed(start, false, "", err.Error(), message.ErrorValidationFailed)
	}
	t, err := ctx.Tasks.Update(args.ID, TaskStatus(args.Status))
	if err != nil {
		return timed(start, false, "", err.Error(), message.ErrorNotFound)
	}
	if t.Status == TaskInProgress {
		ctx.Tracker.SetActiveTask(t.ID)
	} else if ctx.Tracker.ActiveTaskID() == t.ID {
		ctx.Tracker.ClearActiveTask()
	}
	b, _ := toolJSON.Marshal(t)
	return timed(start, true, string(b), "", message.ErrorNone)
}
