// Filesystem tools: get_file_tree, read_file, read_lines, write_file,
// insert_lines, replace_lines (spec §4.C baseline table). Result metadata
// and error-kind mapping follow spec §4.C's "Result contract" and §7's
// error taxonomy.
package tools

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"forgeloop/internal/curator"
	"forgeloop/internal/message"
	"forgeloop/internal/permission"
	"forgeloop/internal/tracker"
)

var toolJSON = jsoniter.ConfigCompatibleWithStandardLibrary

func timed(start time.Time, success bool, data string, errMsg string, kind message.ErrorKind) message.ToolResult {
	return message.ToolResult{
		Success:      success,
		Data:         data,
		ErrorMessage: errMsg,
		ErrorKind:    kind,
		Metadata: message.ToolResultMetadata{
			ExecutionMs: time.Since(start).Milliseconds(),
			Bytes:       len(data),
			UnixMs:      time.Now().UnixMilli(),
		},
	}
}

// ---------- get_file_tree ----------

type GetFileTreeArgs struct {
	Path string `json:"path" jsonschema:"description=Root directory to walk"`
}

type GetFileTreeTool struct{}

func (GetFileTreeTool) Name() string        { return "get_file_tree" }
func (GetFileTreeTool) Description() string { return "Walk a directory and return its file list" }
func (GetFileTreeTool) Risk() permission.RiskLevel { return permission.RiskSafe }
func (GetFileTreeTool) Parameters() map[string]any { return reflectParams(GetFileTreeArgs{}) }
func (GetFileTreeTool) Required() []string         { return []string{"path"} }

func (GetFileTreeTool) Execute(ctx *ExecContext, argsJSON []byte) message.ToolResult {
	start := time.Now()
	var args GetFileTreeArgs
	if err := toolJSON.Unmarshal(argsJSON, &args); err != nil {
		return timed(start, false, "", err.Error(), message.ErrorValidationFailed)
	}
	root := args.Path
	if root == "" {
		root = "."
	}

	var paths []string
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") && p != root {
				return filepath.SkipDir
			}
			return nil
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return timed(start, false, "", err.Error(), message.ErrorIO)
	}
	sort.Strings(paths)
	return timed(start, true, strings.Join(paths, "\n"), "", message.ErrorNone)
}

// ---------- read_file ----------

type ReadFileArgs struct {
	Path string `json:"path" jsonschema:"description=File to read"`
}

type ReadFileTool struct {
	Curator *curator.Curator
}

func (ReadFileTool) Name() string        { return "read_file" }
func (ReadFileTool) Description() string { return "Read a file, curating large files to relevant line ranges" }
func (ReadFileTool) Risk() permission.RiskLevel { return permission.RiskMedium }
func (ReadFileTool) Parameters() map[string]any { return reflectParams(ReadFileArgs{}) }
func (ReadFileTool) Required() []string         { return []string{"path"} }

func (t ReadFileTool) Execute(ctx *ExecContext, argsJSON []byte) message.ToolResult {
	start := time.Now()
	var args ReadFileArgs
	if err := toolJSON.Unmarshal(argsJSON, &args); err != nil {
		return timed(start, false, "", err.Error(), message.ErrorValidationFailed)
	}

	info, err := os.Stat(args.Path)
	if err != nil {
		return timed(start, false, "", err.Error(), message.ErrorNotFound)
	}
	if info.IsDir() {
		return timed(start, false, "", fmt.Sprintf("%s is a directory", args.Path), message.ErrorIO)
	}

	content, err := os.ReadFile(args.Path)
	if err != nil {
		return timed(start, false, "", err.Error(), message.ErrorIO)
	}

	lineCount := strings.Count(string(content), "\n") + 1
	threshold := ctx.Config.FileReadSmallThreshold
	if threshold <= 0 {
		threshold = 300
	}

	if lineCount <= threshold || t.Curator == nil {
		ctx.Tracker.RecordRead(args.Path, content, tracker.ReadFull, nil)
		return timed(start, true, string(content), "", message.ErrorNone)
	}

	result, err := t.Curator.Curate(args.Path, content, ctx.ConversationHash, ctx.Tracker)
	if err != nil {
		ctx.Tracker.RecordRead(args.Path, content, tracker.ReadFull, nil)
		return timed(start, true, string(content), "", message.ErrorNone)
	}
	ctx.Tracker.RecordRead(args.Path, content, tracker.ReadCurated, nil)
	return timed(start, true, result, "", message.ErrorNone)
}

// ---------- read_lines ----------

type ReadLinesArgs struct {
	Path  string `json:"path"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

type ReadLinesTool struct{}

func (ReadLinesTool) Name() string        { return "read_lines" }
func (ReadLinesTool) Description() string { return "Read a 1-based inclusive line range from a file" }
func (ReadLinesTool) Risk() permission.RiskLevel { return permission.RiskMedium }
func (ReadLinesTool) Parameters() map[string]any { return reflectParams(ReadLinesArgs{}) }
func (ReadLinesTool) Required() []string         { return []string{"path", "start", "end"} }

func (ReadLinesTool) Execute(ctx *ExecContext, argsJSON []byte) message.ToolResult {
	start := time.Now()
	var args ReadLinesArgs
	if err := toolJSON.Unmarshal(argsJSON, &args); err != nil {
		return timed(start, false, "", err.Error(), message.ErrorValidationFailed)
	}
	if args.Start < 1 || args.End < args.Start {
		return timed(start, false, "", "invalid line range", message.ErrorValidationFailed)
	}

	f, err := os.Open(args.Path)
	if err != nil {
		return timed(start, false, "", err.Error(), message.ErrorNotFound)
	}
	defer f.Close()

	var b strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if line < args.Start {
			continue
		}
		if line > args.End {
			break
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return timed(start, false, "", err.Error(), message.ErrorIO)
	}

	full, err := os.ReadFile(args.Path)
	if err == nil {
		ctx.Tracker.RecordRead(args.Path, full, tracker.ReadLines, &tracker.LineRange{Start: args.Start, End: args.End})
	}

	return timed(start, true, b.String(), "", message.ErrorNone)
}

// ---------- write_file ----------

type WriteFileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type WriteFileTool struct{}

func (WriteFileTool) Name() string        { return "write_file" }
func (WriteFileTool) Description() string { return "Overwrite (or create) a file with the given content" }
func (WriteFileTool) Risk() permission.RiskLevel { return permission.RiskHigh }
func (WriteFileTool) Parameters() map[string]any { return reflectParams(WriteFileArgs{}) }
func (WriteFileTool) Required() []string         { return []string{"path", "content"} }

func (WriteFileTool) Execute(ctx *ExecContext, argsJSON []byte) message.ToolResult {
	start := time.Now()
	var args WriteFileArgs
	if err := toolJSON.Unmarshal(argsJSON, &args); err != nil {
		return timed(start, false, "", err.Error(), message.ErrorValidationFailed)
	}

	_, statErr := os.Stat(args.Path)
	kind := tracker.ModCreated
	if statErr == nil {
		kind = tracker.ModModified
	}

	if err := os.MkdirAll(filepath.Dir(args.Path), 0o755); err != nil {
		return timed(start, false, "", err.Error(), message.ErrorIO)
	}
	if err := os.WriteFile(args.Path, []byte(args.Content), 0o644); err != nil {
		return timed(start, false, "", err.Error(), message.ErrorIO)
	}

	ctx.Tracker.RecordModification(args.Path, kind, fmt.Sprintf("wrote %d bytes", len(args.Content)))
	return timed(start, true, fmt.Sprintf("wrote %d bytes to %s", len(args.Content), args.Path), "", message.ErrorNone)
}

// ---------- insert_lines ----------

type InsertLinesArgs struct {
	Path   string `json:"path"`
	AtLine int    `json:"at_line"`
	Text   string `json:"text"`
}

type InsertLinesTool struct{}

func (InsertLinesTool) Name() string        { return "insert_lines" }
func (InsertLinesTool) Description() string { return "Insert text before the given 1-based line number" }
func (InsertLinesTool) Risk() permission.RiskLevel { return permission.RiskHigh }
func (InsertLinesTool) Parameters() map[string]any { return reflectParams(InsertLinesArgs{}) }
func (InsertLinesTool) Required() []string         { return []string{"path", "at_line", "text"} }

func (InsertLinesTool) Execute(ctx *ExecContext, argsJSON []byte) message.ToolResult {
	start := time.Now()
	var args InsertLinesArgs
	if err := toolJSON.Unmarshal(argsJSON, &args); err != nil {
		return timed(start, false, "", err.Error(), message.ErrorValidationFailed)
	}

	original, err := os.ReadFile(args.Path)
	if err != nil {
		return timed(start, false, "", err.Error(), message.ErrorNotFound)
	}
	lines := strings.Split(string(original), "\n")
	if args.AtLine < 1 || args.AtLine > len(lines)+1 {
		return timed(start, false, "", "at_line out of range", message.ErrorValidationFailed)
	}

	idx := args.AtLine - 1
	newLines := make([]string, 0, len(lines)+1)
	newLines = append(newLines, lines[:idx]...)
	newLines = append(newLines, args.Text)
	newLines = append(newLines, lines[idx:]...)
	result := strings.Join(newLines, "\n")

	if err := os.WriteFile(args.Path, []byte(result), 0o644); err != nil {
		return timed(start, false, "", err.Error(), message.ErrorIO)
	}
	ctx.Tracker.RecordModification(args.Path, tracker.ModModified, fmt.Sprintf("inserted at line %d", args.AtLine))
	return timed(start, true, fmt.Sprintf("inserted 1 line at %d in %s", args.AtLine, args.Path), "", message.ErrorNone)
}

// ---------- replace_lines ----------

type ReplaceLinesArgs struct {
	Path  string `json:"path"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

type ReplaceLinesTool struct{}

func (ReplaceLinesTool) Name() string        { return "replace_lines" }
func (ReplaceLinesTool) Description() string { return "Replace a 1-based inclusive line range with new text" }
func (ReplaceLinesTool) Risk() permission.RiskLevel { return permission.RiskHigh }
func (ReplaceLinesTool) Parameters() map[string]any { return reflectParams(ReplaceLinesArgs{}) }
func (ReplaceLinesTool) Required() []string         { return []string{"path", "start", "end", "text"} }

func (ReplaceLinesTool) Execute(ctx *ExecContext, argsJSON []byte) message.ToolResult {
	start := time.Now()
	var args ReplaceLinesArgs
	if err := toolJSON.Unmarshal(argsJSON, &args); err != nil {
		return timed(start, false, "", err.Error(), message.ErrorValidationFailed)
	}
	if args.Start < 1 || args.End < args.Start {
		return timed(start, false, "", "invalid line range", message.ErrorValidationFailed)
	}

	original, err := os.ReadFile(args.Path)
	if err != nil {
		return timed(start, false, "", err.Error(), message.ErrorNotFound)
	}
	lines := strings.Split(string(original), "\n")
	if args.End > len(lines) {
		return timed(start, false, "", "end out of range", message.ErrorValidationFailed)
	}

	newLines := make([]string, 0, len(lines))
	newLines = append(newLines, lines[:args.Start-1]...)
	newLines = append(newLines, args.Text)
	newLines = append(newLines, lines[args.End:]...)
	result := strings.Join(newLines, "\n")

	if err := os.WriteFile(args.Path, []byte(result), 0o644); err != nil {
		return timed(start, false, "", err.Error(), message.ErrorIO)
	}
	ctx.Tracker.RecordModification(args.Path, tracker.ModModified, fmt.Sprintf("replaced lines %d-%d", args.Start, args.End))
	return timed(start, true, fmt.Sprintf("replaced lines %d-%d in %s", args.Start, args.End, args.Path), "", message.ErrorNone)
}
