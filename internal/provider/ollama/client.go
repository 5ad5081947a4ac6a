// Package ollama implements the provider.Client interface against Ollama's
// native /api/chat and /api/embed endpoints. Adapted from genesis's
// pkg/llm/ollama/client.go: kept verbatim are the zero-timeout transport
// (local generations must not be killed by a client-side deadline) and the
// callback-based streaming with a one-slot buffered startResultCh used to detect
// init success/failure before the caller commits to reading the sink.
package ollama

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/ollama/ollama/api"

	"forgeloop/internal/message"
	"forgeloop/internal/provider"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func init() {
	provider.Register("ollama", func(host, model string) (provider.Client, error) {
		return New(model, host)
	})
}

// Client wraps the Ollama SDK client for one model.
type Client struct {
	api   *api.Client
	model string
}

// New builds a Client pointed at host (e.g. "http://localhost:11434").
func New(model, host string) (*Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 0,
	}
	httpClient := &http.Client{Transport: transport, Timeout: 0}

	var (
		apiClient *api.Client
		err       error
	)
	if host != "" {
		u, perr := url.Parse(host)
		if perr != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", host, perr)
		}
		apiClient = api.NewClient(u, httpClient)
	} else {
		apiClient, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client from environment: %w", err)
		}
	}

	return &Client{api: apiClient, model: model}, nil
}

func (c *Client) ChatStream(ctx context.Context, messages []message.Message, tools []provider.ToolSchema, opts provider.Options, sink provider.Sink) (message.StreamResult, error) {
	apiMessages := convertMessages(messages)
	apiTools := convertTools(tools)

	streamVal := true
	options := map[string]any{}
	if opts.Temperature != 0 {
		options["temperature"] = opts.Temperature
	}
	if opts.NumCtx != 0 {
		options["num_ctx"] = opts.NumCtx
	}
	if opts.NumPredict != 0 {
		options["num_predict"] = opts.NumPredict
	}

	req := &api.ChatRequest{
		Model:    c.model,
		Messages: apiMessages,
		Tools:    apiTools,
		Stream:   &streamVal,
		Options:  options,
	}
	// enable_thinking is Ollama-only and provider-dependent; the upstream
	// SDK's request shape doesn't expose a stable typed field for it across
	// versions, so it rides in via the free-form options map like num_ctx.
	if opts.EnableThinking {
		options["think"] = true
	}

	startResultCh := make(chan error, 1)
	doneCh := make(chan message.StreamResult, 1)
	acc := provider.NewToolCallAccumulator()
	var fullText provider.TextAccumulator

	go func() {
		var finishReason string
		started := false

		err := c.api.Chat(ctx, req, func(resp api.ChatResponse) error {
			if !started {
				started = true
				select {
				case startResultCh <- nil:
				default:
				}
			}

			if resp.Message.Content != "" {
				fullText.Write(resp.Message.Content)
				sink(message.StreamDelta{Kind: message.DeltaText, Text: resp.Message.Content})
			}

			for i, tc := range resp.Message.ToolCalls {
				argsB, _ := json.Marshal(tc.Function.Arguments)
				d := message.StreamDelta{
					Kind:              message.DeltaToolCall,
					Index:             i,
					ID:                tc.ID,
					Name:              tc.Function.Name,
					ArgumentsFragment: string(argsB),
				}
				acc.Add(d)
				sink(d)
			}

			if resp.Done {
				finishReason = resp.DoneReason
				sink(message.StreamDelta{Kind: message.DeltaDone, FinishReason: finishReason})
			}
			return nil
		})

		if err != nil && !started {
			select {
			case startResultCh <- err:
			default:
			}
			return
		}

		doneCh <- message.StreamResult{
			FullText:     fullText.String(),
			ToolCalls:    acc.Finalize(),
			FinishReason: finishReason,
		}
	}()

	select {
	case err := <-startResultCh:
		if err != nil {
			return message.StreamResult{}, err
		}
	case <-ctx.Done():
		return message.StreamResult{FullText: fullText.String(), Cancelled: true}, ctx.Err()
	}

	select {
	case result := <-doneCh:
		return result, nil
	case <-ctx.Done():
		// Tool calls aren't snapshotted here: acc isn't safe to read while
		// the streaming goroutine may still be writing to it. The partial
		// text is, since fullText is a TextAccumulator guarded by a mutex.
		return message.StreamResult{FullText: fullText.String(), Cancelled: true}, ctx.Err()
	}
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var last error
	for attempt := 0; attempt < 3; attempt++ {
		resp, err := c.api.Embed(ctx, &api.EmbedRequest{Model: c.model, Input: texts})
		if err == nil {
			out := make([][]float32, len(resp.Embeddings))
			for i, e := range resp.Embeddings {
				out[i] = e
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
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "overloaded")
}

func convertMessages(messages []message.Message) []api.Message {
	out := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		am := api.Message{Role: string(m.Role), Content: m.Content}
		if m.Role == message.RoleAssistant && len(m.ToolCalls) > 0 {
			for _, tc := range m.ToolCalls {
				var args api.ToolCallFunctionArguments
				_ = json.Unmarshal(tc.ArgumentsJSON, &args)
				am.ToolCalls = append(am.ToolCalls, api.ToolCall{
					ID: tc.ID,
					Function: api.ToolCallFunction{
						Name:      tc.Name,
						Arguments: args,
					},
				})
			}
		}
		if m.Role == message.RoleTool {
			am.ToolCallID = m.ToolCallID
		}
		out = append(out, am)
	}
	return out
}

func convertTools(tools []provider.ToolSchema) []api.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]api.Tool, 0, len(tools))
	for _, t := range tools {
		raw := map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters": map[string]any{
					"type":       "object",
					"properties": t.Parameters,
					"required":   t.Required,
				},
			},
		}
		b, err := json.Marshal(raw)
		if err != nil {
			continue
		}
		var apiTool api.Tool
		if err := json.Unmarshal(b, &apiTool); err != nil {
			continue
		}
		out = append(out, apiTool)
	}
	return out
}
