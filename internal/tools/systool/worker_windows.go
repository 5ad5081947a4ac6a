//go:build windows

package systool

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"
)

type osWorker struct {
	workingDir string
}

// NewWorker builds the Windows command-execution worker, grounded on
// genesis's pkg/tools/os/worker_windows.go WindowsWorker.
func NewWorker() Worker {
	cwd, _ := os.Getwd()
	return &osWorker{workingDir: cwd}
}

func (w *osWorker) RunCommand(ctx context.Context, command string) (string, error) {
	re := regexp.MustCompile(`%([^%]+)%`)
	expanded := re.ReplaceAllString(command, `$env:$1`)
	utf8Cmd := "[Console]::OutputEncoding = [System.Text.Encoding]::UTF8; $OutputEncoding = [System.Text.Encoding]::UTF8; " + expanded
	fullCmd := fmt.Sprintf("%s; $ExecutionContext.SessionState.Path.CurrentLocation.Path", utf8Cmd)

	slog.InfoContext(ctx, "running shell command", "dir", w.workingDir, "command", fullCmd)

	cmd := exec.CommandContext(ctx, "powershell", "-Command", fullCmd)
	cmd.Dir = w.workingDir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()

	output := out.String()
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > 0 {
		newCwd := strings.TrimSpace(lines[len(lines)-1])
		if info, statErr := os.Stat(newCwd); statErr == nil && info.IsDir() {
			w.workingDir = newCwd
			output = strings.Join(lines[:len(lines)-1], "\n")
			if strings.TrimSpace(output) == "" {
				output = fmt.Sprintf("Current directory: %s", w.workingDir)
			}
		}
	}
	return output, err
}
