// Printer renders turn events to the terminal, collapsed from genesis's
// pkg/monitor/cli_monitor.go CLIMonitor — that type fanned a MonitorMessage
// channel out of a multi-channel gateway; a single local terminal session
// has exactly one sink, so this keeps its timestamp-gray/role-prefix
// formatting but drops the channel/username fields entirely.
package monitor

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Printer writes role-prefixed, timestamped lines to an io.Writer (stdout by
// default), used by the non-TUI CLI frontend and by the master loop for its
// diagnostic lines; in TUI mode those lines go to the same writer, since the
// TUI has no separate debug pane.
type Printer struct {
	w io.Writer
}

// NewPrinter builds a Printer writing to stdout.
func NewPrinter() *Printer {
	return &Printer{w: os.Stdout}
}

// Banner prints the startup banner.
func (p *Printer) Banner(name string) {
	fmt.Fprintf(p.w, "\n%s — local agentic coding assistant\n\n", name)
}

// User echoes a submitted user message.
func (p *Printer) User(content string) {
	p.line("you", content)
}

// Assistant echoes the model's finalized text.
func (p *Printer) Assistant(content string) {
	p.line("ai", content)
}

// ToolCall echoes a dispatched tool invocation.
func (p *Printer) ToolCall(name string, argsJSON []byte) {
	p.line("tool", fmt.Sprintf("%s %s", name, string(argsJSON)))
}

// ToolResult echoes the outcome of a tool invocation.
func (p *Printer) ToolResult(name string, success bool, preview string) {
	status := "ok"
	if !success {
		status = "error"
	}
	p.line("tool", fmt.Sprintf("%s [%s] %s", name, status, preview))
}

// Diagnostic echoes a loop-level or compression diagnostic message.
func (p *Printer) Diagnostic(content string) {
	p.line("system", content)
}

func (p *Printer) line(role, content string) {
	ts := time.Now().Format("15:04:05")
	fmt.Fprintf(p.w, "\033[90m[%s]\033[0m [%s] %s\n", ts, role, content)
}
