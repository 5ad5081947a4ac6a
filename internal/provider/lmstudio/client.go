// Package lmstudio implements the provider.Client interface against an
// OpenAI-compatible /v1/chat/completions and /v1/embeddings server (LM
// Studio). Adapted from genesis's pkg/llm/openailm/client.go: the SSE
// streaming shape and convertMessages structure are kept; unlike the
// teacher, tool-call deltas are folded through provider.ToolCallAccumulator
// keyed by index, since this is the wire format where OpenAI-style
// fragmented "arguments" string deltas actually occur across records.
package lmstudio

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"forgeloop/internal/message"
	"forgeloop/internal/provider"
)

func init() {
	provider.Register("lmstudio", func(host, model string) (provider.Client, error) {
		return New(model, host)
	})
}

// Client wraps the OpenAI SDK pointed at an LM Studio base URL.
type Client struct {
	api   *openai.Client
	model string
}

// New builds a Client. LM Studio does not require a real API key; a
// placeholder satisfies the SDK's non-empty-key precondition.
func New(model, host string) (*Client, error) {
	opts := []option.RequestOption{option.WithAPIKey("lm-studio")}
	if host != "" {
		opts = append(opts, option.WithBaseURL(host))
	}
	c := openai.NewClient(opts...)
	return &Client{api: &c, model: model}, nil
}

func (c *Client) ChatStream(ctx context.Context, messages []message.Message, tools []provider.ToolSchema, opts provider.Options, sink provider.Sink) (message.StreamResult, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: convertMessages(messages),
	}
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}
	if opts.Temperature != 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts.NumPredict != 0 {
		params.MaxTokens = openai.Int(int64(opts.NumPredict))
	}

	stream := c.api.Chat.Completions.NewStreaming(ctx, params)

	var fullText strings.Builder
	var finishReason string
	acc := provider.NewToolCallAccumulator()

	for stream.Next() {
		select {
		case <-ctx.Done():
			return message.StreamResult{FullText: fullText.String(), Cancelled: true}, ctx.Err()
		default:
		}

		event := stream.Current()
		if len(event.Choices) == 0 {
			continue
		}
		choice := event.Choices[0]
		if choice.FinishReason != "" {
			finishReason = normalizeStopReason(string(choice.FinishReason))
		}
		if choice.Delta.Content != "" {
			fullText.WriteString(choice.Delta.Content)
			sink(message.StreamDelta{Kind: message.DeltaText, Text: choice.Delta.Content})
		}
		for _, tc := range choice.Delta.ToolCalls {
			d := message.StreamDelta{
				Kind:              message.DeltaToolCall,
				Index:             int(tc.Index),
				ID:                tc.ID,
				Name:              tc.Function.Name,
				ArgumentsFragment: tc.Function.Arguments,
			}
			acc.Add(d)
			sink(d)
		}
	}

	if ctx.Err() != nil {
		return message.StreamResult{FullText: fullText.String(), Cancelled: true}, ctx.Err()
	}
	if err := stream.Err(); err != nil {
		return message.StreamResult{FullText: fullText.String()}, fmt.Errorf("lmstudio stream: %w", err)
	}

	if finishReason == "" {
		finishReason = "stop"
	}
	sink(message.StreamDelta{Kind: message.DeltaDone, FinishReason: finishReason})

	return message.StreamResult{
		FullText:     fullText.String(),
		ToolCalls:    acc.Finalize(),
		FinishReason: finishReason,
	}, nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var last error
	for attempt := 0; attempt < 3; attempt++ {
		resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: openai.EmbeddingModel(c.model),
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		})
		if err == nil {
			out := make([][]float32, len(resp.Data))
			for i, d := range resp.Data {
				vec := make([]float32, len(d.Embedding))
				for j, f := range d.Embedding {
					vec[j] = float32(f)
				}
				out[i] = vec
			}
			return out, nil
		}
		last = err
		if !c.IsTransientError(err) {
			return nil, err
		}
		time.Sleep(time.Duration(1<<attempt) * 200 * time.Millisecond)
	}
	return nil, fmt.Errorf("embed: exhausted retries: %w", last)
}

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout")
}

func convertMessages(messages []message.Message) []openai.ChatCompletionMessageParamUnion {
	items := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case message.RoleTool:
			toolMsg := &openai.ChatCompletionToolMessageParam{Role: "tool", ToolCallID: m.ToolCallID}
			toolMsg.Content = openai.ChatCompletionToolMessageParamContentUnion{OfString: openai.String(m.Content)}
			items = append(items, openai.ChatCompletionMessageParamUnion{OfTool: toolMsg})

		case message.RoleAssistant:
			if len(m.ToolCalls) > 0 {
				toolCalls := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(m.ToolCalls))
				for _, tc := range m.ToolCalls {
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallUnionParam{
						OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
							ID:   tc.ID,
							Type: "function",
							Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
								Name:      tc.Name,
								Arguments: string(tc.ArgumentsJSON),
							},
						},
					})
				}
				items = append(items, openai.ChatCompletionMessageParamUnion{
					OfAssistant: &openai.ChatCompletionAssistantMessageParam{Role: "assistant", ToolCalls: toolCalls},
				})
			} else {
				items = append(items, openai.ChatCompletionMessageParamUnion{
					OfAssistant: &openai.ChatCompletionAssistantMessageParam{
						Role: "assistant",
						Content: openai.ChatCompletionAssistantMessageParamContentUnion{
							OfString: openai.String(m.Content),
						},
					},
				})
			}

		case message.RoleUser:
			items = append(items, openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Role:    "user",
					Content: openai.ChatCompletionUserMessageParamContentUnion{OfString: openai.String(m.Content)},
				},
			})

		case message.RoleSystem:
			items = append(items, openai.ChatCompletionMessageParamUnion{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Role:    "system",
					Content: openai.ChatCompletionSystemMessageParamContentUnion{OfString: openai.String(m.Content)},
				},
			})
		}
	}
	return items
}

func convertTools(tools []provider.ToolSchema) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters: openai.FunctionParameters{
						"type":       "object",
						"properties": t.Parameters,
						"required":   t.Required,
					},
				},
			},
		})
	}
	return out
}

func normalizeStopReason(reason string) string {
	switch strings.ToLower(reason) {
	case "stop":
		return "stop"
	case "length":
		return "length"
	default:
		return reason
	}
}
