package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"forgeloop/internal/message"
	"forgeloop/internal/permission"
	"forgeloop/internal/tracker"
)

type fakeSysWorker struct {
	output string
	err    error
	lastCommand string
}

func (w *fakeSysWorker) RunCommand(ctx context.Context, command string) (string, error) {
	w.lastCommand = command
	return w.output, w.err
}

func TestRunCommandToolIsHighRisk(t *testing.T) {
	require.Equal(t, permission.RiskHigh, RunCommandTool{}.Risk())
}

func TestRunCommandToolRejectsEmptyCommand(t *testing.T) {
	tool := &RunCommandTool{Worker: &fakeSysWorker{}, Tracker: tracker.New()}
	args, _ := json.Marshal(RunCommandArgs{Command: ""})
	res := tool.Execute(&ExecContext{Tracker: tracker.New()}, args)
	require.False(t, res.Success)
	require.Equal(t, message.ErrorValidationFailed, res.ErrorKind)
}

func TestRunCommandToolRejectsMalformedArgs(t *testing.T) {
	tool := &RunCommandTool{Worker: &fakeSysWorker{}, Tracker: tracker.New()}
	res := tool.Execute(&ExecContext{Tracker: tracker.New()}, []byte("not json"))
	require.False(t, res.Success)
	require.Equal(t, message.ErrorValidationFailed, res.ErrorKind)
}

func TestRunCommandToolRunsAndReturnsOutput(t *testing.T) {
	worker := &fakeSysWorker{output: "hello\n"}
	tool := &RunCommandTool{Worker: worker, Tracker: tracker.New()}
	args, _ := json.Marshal(RunCommandArgs{Command: "echo hello"})

	res := tool.Execute(&ExecContext{Tracker: tracker.New()}, args)
	require.True(t, res.Success)
	require.Equal(t, "hello\n", res.Data)
	require.Equal(t, "echo hello", worker.lastCommand)
}

func TestRunCommandToolSurfacesWorkerError(t *testing.T) {
	worker := &fakeSysWorker{output: "partial", err: errors.New("exit status 1")}
	tool := &RunCommandTool{Worker: worker, Tracker: tracker.New()}
	args, _ := json.Marshal(RunCommandArgs{Command: "false"})

	res := tool.Execute(&ExecContext{Tracker: tracker.New()}, args)
	require.False(t, res.Success)
	require.Equal(t, message.ErrorIO, res.ErrorKind)
	require.Equal(t, "partial", res.Data)
}
