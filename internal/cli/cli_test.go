package cli

import (
	"testing"

	"github.com/stretchr/testify/require"

	"forgeloop/internal/curator"
	"forgeloop/internal/provider"
	"forgeloop/internal/tools"
	"forgeloop/internal/tracker"
)

func TestRegisterBaselineToolsOmitsRunCommandByDefault(t *testing.T) {
	registry := tools.NewRegistry()
	cur := curator.New(provider.NewOnce(nil, "m", provider.Options{}))
	registerBaselineTools(registry, cur, false, tracker.New())

	_, ok := registry.Get("run_command")
	require.False(t, ok, "run_command must stay gated behind --enable-run-command")

	for _, name := range []string{"get_file_tree", "read_file", "read_lines", "write_file", "insert_lines", "replace_lines", "add_task", "list_tasks", "update_task", "get_current_time"} {
		_, ok := registry.Get(name)
		require.True(t, ok, "missing baseline tool %q", name)
	}
}

func TestRegisterBaselineToolsIncludesRunCommandWhenEnabled(t *testing.T) {
	registry := tools.NewRegistry()
	cur := curator.New(provider.NewOnce(nil, "m", provider.Options{}))
	registerBaselineTools(registry, cur, true, tracker.New())

	_, ok := registry.Get("run_command")
	require.True(t, ok)
}

func TestRegisterCompressionToolsRegistersAllFour(t *testing.T) {
	registry := tools.NewRegistry()
	registerCompressionTools(registry, tracker.New())

	for _, name := range []string{"get_compression_metadata", "compress_tool_result", "compress_conversation_segment", "verify_compression_target"} {
		_, ok := registry.Get(name)
		require.True(t, ok, "missing compression tool %q", name)
	}
}
