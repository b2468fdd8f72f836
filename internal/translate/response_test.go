package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nulzo/claude-gate/pkg/schema"
)

func strptr(s string) *string { return &s }
func i64ptr(n int64) *int64   { return &n }

func TestAnthropicToOpenAI_Unary(t *testing.T) {
	resp := &schema.AnthropicResponse{
		ID:    "msg_123",
		Model: "claude-sonnet-4-5",
		Content: []schema.AnthropicBlock{
			{Type: "text", Text: "Hello!"},
		},
		StopReason: strptr("end_turn"),
		Usage: schema.AnthropicUsage{
			InputTokens:              8,
			OutputTokens:             2,
			CacheCreationInputTokens: i64ptr(0),
			CacheReadInputTokens:     i64ptr(0),
		},
	}

	out := AnthropicToOpenAI(resp, 1700000000)

	assert.Equal(t, "chatcmpl-1700000000", out.ID)
	assert.Equal(t, "chat.completion", out.Object)
	require.Len(t, out.Choices, 1)
	assert.Equal(t, "Hello!", *out.Choices[0].Message.Content)
	assert.Equal(t, "stop", *out.Choices[0].FinishReason)
	assert.Equal(t, int64(8), out.Usage.PromptTokens)
	assert.Equal(t, int64(2), out.Usage.CompletionTokens)
	assert.Equal(t, int64(10), out.Usage.TotalTokens)
}

func TestAnthropicToOpenAI_ThinkingAndToolUse(t *testing.T) {
	resp := &schema.AnthropicResponse{
		Model: "claude-opus-4-6",
		Content: []schema.AnthropicBlock{
			{Type: "thinking", Thinking: "let me think"},
			{Type: "text", Text: "The weather is"},
			{Type: "tool_use", ID: "toolu_1", Name: "mcp_get_weather", Input: []byte(`{"city":"Paris"}`)},
		},
		StopReason: strptr("tool_use"),
	}

	out := AnthropicToOpenAI(resp, 1)
	msg := out.Choices[0].Message

	assert.Equal(t, "let me think", *msg.ReasoningContent)
	assert.Equal(t, "The weather is", *msg.Content)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "toolu_1", msg.ToolCalls[0].ID)
	// The upstream mcp_ prefix never reaches the client.
	assert.Equal(t, "get_weather", msg.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"city":"Paris"}`, msg.ToolCalls[0].Function.Arguments)
	assert.Equal(t, "tool_calls", *out.Choices[0].FinishReason)
}

func TestMapStopReason(t *testing.T) {
	assert.Equal(t, "stop", MapStopReason("end_turn"))
	assert.Equal(t, "stop", MapStopReason("stop_sequence"))
	assert.Equal(t, "length", MapStopReason("max_tokens"))
	assert.Equal(t, "tool_calls", MapStopReason("tool_use"))
	assert.Equal(t, "refusal", MapStopReason("refusal"))
}

// Converting an Anthropic response to OpenAI and back preserves the content
// blocks and stop reason.
func TestResponseRoundTrip(t *testing.T) {
	original := &schema.AnthropicResponse{
		Model: "claude-sonnet-4-5",
		Content: []schema.AnthropicBlock{
			{Type: "thinking", Thinking: "hmm"},
			{Type: "text", Text: "Answer"},
			{Type: "tool_use", ID: "toolu_9", Name: "lookup", Input: []byte(`{"q":"x"}`)},
		},
		StopReason: strptr("end_turn"),
	}

	openai := AnthropicToOpenAI(original, 1)
	back := OpenAIMessageToBlocks(openai.Choices[0].Message)

	require.Len(t, back, len(original.Content))
	for i, block := range original.Content {
		assert.Equal(t, block.Type, back[i].Type)
		assert.Equal(t, block.Text, back[i].Text)
		assert.Equal(t, block.Thinking, back[i].Thinking)
		assert.Equal(t, block.ID, back[i].ID)
		assert.Equal(t, block.Name, back[i].Name)
		if block.Input != nil {
			assert.JSONEq(t, string(block.Input), string(back[i].Input))
		}
	}

	assert.Equal(t, *original.StopReason, UnmapFinishReason(*openai.Choices[0].FinishReason))
}

func TestUsageFromAnthropic(t *testing.T) {
	u := UsageFromAnthropic(&schema.AnthropicUsage{
		InputTokens:              100,
		OutputTokens:             50,
		CacheCreationInputTokens: i64ptr(20),
		CacheReadInputTokens:     i64ptr(30),
	})
	assert.Equal(t, int64(100), u.InputTokens)
	assert.Equal(t, int64(50), u.OutputTokens)
	assert.Equal(t, int64(30), u.CacheReadTokens)
	assert.Equal(t, int64(20), u.CacheWriteTokens)

	u = UsageFromAnthropic(&schema.AnthropicUsage{InputTokens: 1, OutputTokens: 2})
	assert.Zero(t, u.CacheReadTokens)
	assert.Zero(t, u.CacheWriteTokens)
}
