package translate

import (
	"encoding/json"
	"fmt"

	"github.com/nulzo/claude-gate/internal/prepare"
	"github.com/nulzo/claude-gate/internal/store/model"
	"github.com/nulzo/claude-gate/pkg/schema"
)

// MapStopReason converts an Anthropic stop_reason into an OpenAI
// finish_reason. Unknown values pass through.
func MapStopReason(stopReason string) string {
	switch stopReason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	default:
		return stopReason
	}
}

// AnthropicToOpenAI converts an Anthropic unary response into an OpenAI
// chat completion. now is the unix timestamp stamped on the response id.
func AnthropicToOpenAI(resp *schema.AnthropicResponse, now int64) *schema.ChatResponse {
	var textContent, thinkingContent string
	var toolCalls []schema.ToolCall

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			textContent += block.Text
		case "thinking":
			thinkingContent += block.Thinking
		case "tool_use":
			args := "{}"
			if len(block.Input) > 0 {
				args = string(block.Input)
			}
			toolCalls = append(toolCalls, schema.ToolCall{
				ID:   block.ID,
				Type: "function",
				Function: schema.FunctionCall{
					Name:      prepare.StripMCPPrefix(block.Name),
					Arguments: args,
				},
			})
		}
	}

	msg := &schema.ResponseMessage{Role: "assistant"}
	if textContent != "" {
		msg.Content = &textContent
	}
	if thinkingContent != "" {
		msg.ReasoningContent = &thinkingContent
	}
	msg.ToolCalls = toolCalls

	var finishReason *string
	if resp.StopReason != nil {
		mapped := MapStopReason(*resp.StopReason)
		finishReason = &mapped
	}

	usage := &schema.Usage{
		PromptTokens:             resp.Usage.InputTokens,
		CompletionTokens:         resp.Usage.OutputTokens,
		TotalTokens:              resp.Usage.InputTokens + resp.Usage.OutputTokens,
		CacheCreationInputTokens: resp.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     resp.Usage.CacheReadInputTokens,
	}

	return &schema.ChatResponse{
		ID:      fmt.Sprintf("chatcmpl-%d", now),
		Object:  "chat.completion",
		Created: now,
		Model:   resp.Model,
		Choices: []schema.Choice{{
			Index:        0,
			Message:      msg,
			FinishReason: finishReason,
		}},
		Usage: usage,
	}
}

// OpenAIMessageToBlocks converts an OpenAI assistant message back into
// Anthropic content blocks. Inverse of the unary response mapping.
func OpenAIMessageToBlocks(msg *schema.ResponseMessage) []schema.AnthropicBlock {
	var blocks []schema.AnthropicBlock
	if msg.ReasoningContent != nil && *msg.ReasoningContent != "" {
		blocks = append(blocks, schema.AnthropicBlock{Type: "thinking", Thinking: *msg.ReasoningContent})
	}
	if msg.Content != nil && *msg.Content != "" {
		blocks = append(blocks, schema.AnthropicBlock{Type: "text", Text: *msg.Content})
	}
	for _, call := range msg.ToolCalls {
		blocks = append(blocks, schema.AnthropicBlock{
			Type:  "tool_use",
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: json.RawMessage(call.Function.Arguments),
		})
	}
	return blocks
}

// UnmapFinishReason is the inverse stop-reason mapping.
func UnmapFinishReason(finishReason string) string {
	switch finishReason {
	case "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	case "tool_calls":
		return "tool_use"
	default:
		return finishReason
	}
}

// UsageFromAnthropic flattens the Anthropic usage object into the 4-type
// token report used for accounting.
func UsageFromAnthropic(u *schema.AnthropicUsage) model.TokenUsage {
	report := model.TokenUsage{
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
	}
	if u.CacheReadInputTokens != nil {
		report.CacheReadTokens = *u.CacheReadInputTokens
	}
	if u.CacheCreationInputTokens != nil {
		report.CacheWriteTokens = *u.CacheCreationInputTokens
	}
	return report
}
