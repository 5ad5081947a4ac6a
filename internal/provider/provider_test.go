package provider

import (
	"testing"

	"github.com/stretchr/testify/require"

	"forgeloop/internal/message"
)

func TestToolCallAccumulatorMergesOpenAIStyleFragments(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.Add(message.StreamDelta{Kind: message.DeltaToolCall, Index: 0, ID: "call_1", Name: "read_file"})
	acc.Add(message.StreamDelta{Kind: message.DeltaToolCall, Index: 0, ArgumentsFragment: `{"path":`})
	acc.Add(message.StreamDelta{Kind: message.DeltaToolCall, Index: 0, ArgumentsFragment: `"a.go"}`})

	calls := acc.Finalize()
	require.Len(t, calls, 1)
	require.Equal(t, "call_1", calls[0].ID)
	require.Equal(t, "read_file", calls[0].Name)
	require.JSONEq(t, `{"path":"a.go"}`, string(calls[0].ArgumentsJSON))
}

func TestToolCallAccumulatorHandlesOllamaStyleWholeRecord(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.Add(message.StreamDelta{Kind: message.DeltaToolCall, Index: 0, Name: "get_current_time", ArgumentsFragment: `{}`})

	calls := acc.Finalize()
	require.Len(t, calls, 1)
	require.Equal(t, "get_current_time", calls[0].Name)
	require.NotEmpty(t, calls[0].ID, "missing id must be synthesized")
}

func TestToolCallAccumulatorOrdersByIndex(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.Add(message.StreamDelta{Kind: message.DeltaToolCall, Index: 1, Name: "second", ArgumentsFragment: `{}`})
	acc.Add(message.StreamDelta{Kind: message.DeltaToolCall, Index: 0, Name: "first", ArgumentsFragment: `{}`})

	calls := acc.Finalize()
	require.Len(t, calls, 2)
	require.Equal(t, "first", calls[0].Name)
	require.Equal(t, "second", calls[1].Name)
}

func TestToolCallAccumulatorSkipsEmptyEntries(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.Add(message.StreamDelta{Kind: message.DeltaToolCall, Index: 0})

	calls := acc.Finalize()
	require.Empty(t, calls)
}

func TestRegisterAndNewRoundTrip(t *testing.T) {
	Register("test-fake-provider", func(host, model string) (Client, error) {
		return nil, nil
	})
	client, err := New("test-fake-provider", "http://x", "m")
	require.NoError(t, err)
	require.Nil(t, client)
}

func TestNewUnknownProviderErrors(t *testing.T) {
	_, err := New("no-such-provider-xyz", "http://x", "m")
	require.Error(t, err)
}

func TestTextAccumulatorConcurrentWriteAndRead(t *testing.T) {
	var acc TextAccumulator
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			acc.Write("x")
		}
		close(done)
	}()
	_ = acc.String() // must not race with the writer above
	<-done
	require.Equal(t, 100, len(acc.String()))
}
