package provider

import (
	"context"
	"strings"

	"forgeloop/internal/message"
)

// Once adapts a streaming Client into the single-shot CompleteOnce shape
// the curator, the compression engine's Mode 1, and any other sub-agent
// tool client need (tools.SubAgentClient, curator.CompleteOnce,
// compression.CompleteOnce are the same three-line interface; this one
// concrete type satisfies all of them). Grounded on genesis's
// CollectChunks idiom in pkg/agent/engine.go: drive ChatStream to
// completion with a no-op sink and return the joined text.
type Once struct {
	Client Client
	Model  string
	Opts   Options
}

// NewOnce builds a Once around an already-constructed Client.
func NewOnce(client Client, model string, opts Options) *Once {
	return &Once{Client: client, Model: model, Opts: opts}
}

// CompleteOnce issues one non-streaming-from-the-caller's-perspective chat
// completion: systemPrompt and userPrompt become the whole conversation, no
// tools are advertised, and the reassembled text is returned.
func (o *Once) CompleteOnce(systemPrompt, userPrompt string) (string, error) {
	msgs := []message.Message{
		message.NewMessage(message.RoleSystem, systemPrompt),
		message.NewMessage(message.RoleUser, userPrompt),
	}
	result, err := o.Client.ChatStream(context.Background(), msgs, nil, o.Opts, func(message.StreamDelta) {})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.FullText), nil
}
