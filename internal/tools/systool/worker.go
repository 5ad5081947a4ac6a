// Package systool adapts genesis's pkg/tools/controller.go Controller
// abstraction and pkg/tools/os worker_*.go build-tag pattern into a
// supplemental, non-baseline tool (spec.md's baseline table has no
// shell-exec entry, but its Non-goals don't forbid one either — see
// DESIGN.md). Screenshot capture is dropped: the spec's ToolResult has no
// image content-block variant, unlike genesis's ContentBlock union.
package systool

import "context"

// Worker is the per-OS command-execution backend.
type Worker interface {
	RunCommand(ctx context.Context, command string) (output string, err error)
}
