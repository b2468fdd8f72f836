package translate

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nulzo/claude-gate/internal/prepare"
	"github.com/nulzo/claude-gate/internal/store/model"
	"github.com/nulzo/claude-gate/pkg/schema"
)

// Keep-alive cadence for SSE relays; comments prevent proxy and load
// balancer idle timeouts during long thinking runs.
const KeepAliveInterval = 15 * time.Second

const keepAliveComment = ": keep-alive\n\n"

// FlushWriter is what an SSE relay writes to.
type FlushWriter interface {
	io.Writer
	Flush()
}

// RelayResult reports what a finished (or aborted) relay observed.
type RelayResult struct {
	// Usage accumulated from message_start and message_delta events.
	Usage model.TokenUsage
	// StopReason from the final message_delta, "" if none arrived.
	StopReason string
	// Canceled is set when the client went away mid-stream.
	Canceled bool
	// Err is a transport failure reading upstream.
	Err error
}

// openAIStreamState is the explicit per-stream state machine for the
// Anthropic→OpenAI event transform.
type openAIStreamState struct {
	id      string
	created int64
	model   string

	sentRole      bool
	toolCallIndex int
	inToolBlock   bool
}

func (s *openAIStreamState) chunk(delta schema.Delta, finishReason *string) []byte {
	resp := schema.ChatResponse{
		ID:      s.id,
		Object:  "chat.completion.chunk",
		Created: s.created,
		Model:   s.model,
		Choices: []schema.Choice{{
			Index:        0,
			Delta:        &delta,
			FinishReason: finishReason,
		}},
	}
	data, _ := json.Marshal(resp)
	return []byte(fmt.Sprintf("data: %s\n\n", data))
}

// delta stamps role=assistant on the first content-bearing chunk.
func (s *openAIStreamState) delta(d schema.Delta) []byte {
	if !s.sentRole {
		d.Role = "assistant"
		s.sentRole = true
	}
	return s.chunk(d, nil)
}

// handle transforms one upstream event into zero or more SSE payloads.
func (s *openAIStreamState) handle(ev *schema.StreamEvent, result *RelayResult) [][]byte {
	var out [][]byte

	switch ev.Type {
	case "message_start":
		if ev.Message != nil && ev.Message.Usage != nil {
			result.Usage.Add(UsageFromAnthropic(ev.Message.Usage))
		}

	case "content_block_start":
		if ev.ContentBlock != nil && ev.ContentBlock.Type == "tool_use" {
			s.inToolBlock = true
			out = append(out, s.delta(schema.Delta{
				ToolCalls: []schema.ToolCallDelta{{
					Index: s.toolCallIndex,
					ID:    ev.ContentBlock.ID,
					Type:  "function",
					Function: &schema.FunctionCallDelta{
						Name:      prepare.StripMCPPrefix(ev.ContentBlock.Name),
						Arguments: "",
					},
				}},
			}))
		}

	case "content_block_delta":
		if ev.Delta == nil {
			break
		}
		if ev.Delta.Thinking != "" {
			out = append(out, s.delta(schema.Delta{ReasoningContent: ev.Delta.Thinking}))
		}
		if ev.Delta.Text != "" {
			out = append(out, s.delta(schema.Delta{Content: ev.Delta.Text}))
		}
		if ev.Delta.PartialJSON != "" {
			out = append(out, s.delta(schema.Delta{
				ToolCalls: []schema.ToolCallDelta{{
					Index:    s.toolCallIndex,
					Function: &schema.FunctionCallDelta{Arguments: ev.Delta.PartialJSON},
				}},
			}))
		}

	case "content_block_stop":
		if s.inToolBlock {
			s.toolCallIndex++
			s.inToolBlock = false
		}

	case "message_delta":
		if ev.Usage != nil {
			result.Usage.Add(UsageFromAnthropic(ev.Usage))
		}
		if ev.Delta != nil && ev.Delta.StopReason != nil {
			result.StopReason = *ev.Delta.StopReason
			finish := MapStopReason(*ev.Delta.StopReason)
			out = append(out, s.chunk(schema.Delta{}, &finish))
		}

	case "message_stop":
		out = append(out, []byte("data: [DONE]\n\n"))

	case "ping":
		out = append(out, []byte(": ping\n\n"))
	}

	return out
}

// RelayOpenAIStream reads an Anthropic SSE body and writes the equivalent
// OpenAI chunk stream, inserting a keep-alive comment after every 15 s of
// upstream silence. Returns accumulated usage for accounting.
func RelayOpenAIStream(ctx context.Context, body io.Reader, w FlushWriter, modelID string, now int64) RelayResult {
	state := &openAIStreamState{
		id:      fmt.Sprintf("chatcmpl-%d", now),
		created: now,
		model:   modelID,
	}

	var result RelayResult
	relay(ctx, body, w, &result, func(line string) bool {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok || data == "[DONE]" {
			return true
		}
		var ev schema.StreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return true
		}
		for _, payload := range state.handle(&ev, &result) {
			if _, err := w.Write(payload); err != nil {
				return false
			}
		}
		w.Flush()
		return true
	})
	return result
}

// RelayAnthropicStream forwards the upstream SSE stream verbatim while
// capturing usage from message_start/message_delta, with the same
// keep-alive behavior.
func RelayAnthropicStream(ctx context.Context, body io.Reader, w FlushWriter) RelayResult {
	var result RelayResult
	relay(ctx, body, w, &result, func(line string) bool {
		if data, ok := strings.CutPrefix(line, "data: "); ok && data != "[DONE]" {
			var ev schema.StreamEvent
			if err := json.Unmarshal([]byte(data), &ev); err == nil {
				switch ev.Type {
				case "message_start":
					if ev.Message != nil && ev.Message.Usage != nil {
						result.Usage.Add(UsageFromAnthropic(ev.Message.Usage))
					}
				case "message_delta":
					if ev.Usage != nil {
						result.Usage.Add(UsageFromAnthropic(ev.Usage))
					}
					if ev.Delta != nil && ev.Delta.StopReason != nil {
						result.StopReason = *ev.Delta.StopReason
					}
				case "content_block_start":
					// tool_use names carry the mcp_ prefix upstream; strip
					// it before the event reaches the client.
					if rewritten, ok := stripToolNameFromEvent(data); ok {
						line = "data: " + rewritten
					}
				}
			}
		}

		if _, err := w.Write([]byte(line + "\n")); err != nil {
			return false
		}
		if line == "" {
			w.Flush()
		}
		return true
	})
	return result
}

// stripToolNameFromEvent rewrites a content_block_start payload whose
// tool_use block name carries the mcp_ prefix. Returns the re-encoded JSON
// and whether a rewrite happened.
func stripToolNameFromEvent(data string) (string, bool) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return "", false
	}
	block, ok := raw["content_block"].(map[string]interface{})
	if !ok {
		return "", false
	}
	if t, _ := block["type"].(string); t != "tool_use" {
		return "", false
	}
	name, ok := block["name"].(string)
	if !ok || prepare.StripMCPPrefix(name) == name {
		return "", false
	}
	block["name"] = prepare.StripMCPPrefix(name)
	out, err := json.Marshal(raw)
	if err != nil {
		return "", false
	}
	return string(out), true
}

// relay pumps upstream lines through handleLine, multiplexed with the
// keep-alive ticker and context cancellation. handleLine returns false to
// abort (client write failure).
func relay(ctx context.Context, body io.Reader, w FlushWriter, result *RelayResult, handleLine func(string) bool) {
	lines := make(chan string, 16)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(body)
		// Tool-call argument deltas can produce long lines.
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			readErr <- err
		}
	}()

	keepAlive := time.NewTicker(KeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			result.Canceled = true
			return

		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if ctx.Err() != nil {
						result.Canceled = true
					} else {
						result.Err = err
					}
				default:
				}
				return
			}
			keepAlive.Reset(KeepAliveInterval)
			if !handleLine(line) {
				result.Canceled = true
				return
			}

		case <-keepAlive.C:
			if _, err := w.Write([]byte(keepAliveComment)); err != nil {
				result.Canceled = true
				return
			}
			w.Flush()
		}
	}
}
