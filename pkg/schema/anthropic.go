package schema

import "encoding/json"

// AnthropicResponse is the Anthropic Messages unary response.
type AnthropicResponse struct {
	ID           string           `json:"id"`
	Type         string           `json:"type,omitempty"`
	Role         string           `json:"role,omitempty"`
	Model        string           `json:"model"`
	Content      []AnthropicBlock `json:"content"`
	StopReason   *string          `json:"stop_reason"`
	StopSequence *string          `json:"stop_sequence,omitempty"`
	Usage        AnthropicUsage   `json:"usage"`
}

// AnthropicBlock is a response content block: text, thinking or tool_use.
type AnthropicBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	Thinking string          `json:"thinking,omitempty"`
	ID       string          `json:"id,omitempty"`
	Name     string          `json:"name,omitempty"`
	Input    json.RawMessage `json:"input,omitempty"`
}

type AnthropicUsage struct {
	InputTokens              int64  `json:"input_tokens"`
	OutputTokens             int64  `json:"output_tokens"`
	CacheCreationInputTokens *int64 `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     *int64 `json:"cache_read_input_tokens,omitempty"`
}

// StreamEvent is a single Anthropic SSE event, decoded loosely so that every
// event type fits the one struct. Fields are nil when absent.
type StreamEvent struct {
	Type         string              `json:"type"`
	Index        *int                `json:"index,omitempty"`
	Message      *StreamMessageInfo  `json:"message,omitempty"`
	ContentBlock *StreamContentBlock `json:"content_block,omitempty"`
	Delta        *StreamDelta        `json:"delta,omitempty"`
	Usage        *AnthropicUsage     `json:"usage,omitempty"`
}

type StreamMessageInfo struct {
	ID    string          `json:"id,omitempty"`
	Model string          `json:"model,omitempty"`
	Usage *AnthropicUsage `json:"usage,omitempty"`
}

type StreamContentBlock struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type StreamDelta struct {
	Type        string  `json:"type,omitempty"`
	Text        string  `json:"text,omitempty"`
	Thinking    string  `json:"thinking,omitempty"`
	PartialJSON string  `json:"partial_json,omitempty"`
	StopReason  *string `json:"stop_reason,omitempty"`
}

// CountTokensResponse is the Anthropic count_tokens reply.
type CountTokensResponse struct {
	InputTokens int64 `json:"input_tokens"`
}

// AnthropicError is the error envelope Anthropic-dialect clients expect.
type AnthropicError struct {
	Type  string             `json:"type"`
	Error AnthropicErrorBody `json:"error"`
}

type AnthropicErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
