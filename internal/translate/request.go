package translate

import (
	"encoding/json"
	"strings"

	"github.com/nulzo/claude-gate/pkg/schema"
)

// DefaultModel is used when an OpenAI request omits the model.
const DefaultModel = "claude-sonnet-4-5"

// OpenAIToAnthropic converts an OpenAI chat request into an Anthropic
// messages body. The body is a generic map because the native-ingress path
// handles arbitrary client JSON the same way; downstream preparation
// (cloaking, cache anchors) works on the map form.
//
// Returns the body and the canonical model id (thinking suffix stripped).
func OpenAIToAnthropic(req *schema.ChatRequest) (map[string]interface{}, string) {
	var messages []interface{}
	var systemParts []string

	for i := range req.Messages {
		msg := &req.Messages[i]
		switch msg.Role {
		case "system":
			if text := extractText(&msg.Content); text != "" {
				systemParts = append(systemParts, text)
			}
		case "user", "assistant":
			messages = append(messages, map[string]interface{}{
				"role":    msg.Role,
				"content": convertContent(&msg.Content, msg.ToolCalls),
			})
		case "tool":
			// Tool results must ride in a user message for Anthropic.
			if msg.ToolCallID != "" {
				messages = append(messages, map[string]interface{}{
					"role": "user",
					"content": []interface{}{map[string]interface{}{
						"type":        "tool_result",
						"tool_use_id": msg.ToolCallID,
						"content":     extractText(&msg.Content),
					}},
				})
			}
		}
	}

	rawModel := req.Model
	if rawModel == "" {
		rawModel = DefaultModel
	}
	baseModel, suffixEffort, hasSuffix := ParseModelSuffix(rawModel)

	// reasoning_effort takes priority over the model suffix.
	var thinking ThinkingConfig
	if req.ReasoningEffort != "" {
		thinking = BuildThinkingConfig(baseModel, req.ReasoningEffort)
	} else if hasSuffix {
		thinking = BuildThinkingConfig(baseModel, suffixEffort)
	}

	maxTokens := int64(defaultMaxTokens)
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	// Manual thinking requires max_tokens above the budget.
	if thinking.Thinking != nil {
		if budget, ok := thinking.Thinking["budget_tokens"].(int64); ok && maxTokens <= budget {
			maxTokens = budget + 1000
		}
		// Adaptive thinking wants headroom for the hidden reasoning.
		if IsOpus46(baseModel) && maxTokens < 32000 {
			maxTokens = 32000
		}
	}
	if ceiling := modelMaxOutput(baseModel); maxTokens > ceiling {
		maxTokens = ceiling
	}

	body := map[string]interface{}{
		"model":      baseModel,
		"max_tokens": maxTokens,
		"messages":   messages,
	}
	if len(systemParts) > 0 {
		body["system"] = strings.Join(systemParts, "\n\n")
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		body["top_p"] = *req.TopP
	}
	if req.Stream {
		body["stream"] = true
	}
	if len(req.Tools) > 0 {
		tools := make([]interface{}, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, convertTool(t))
		}
		body["tools"] = tools
	}
	if thinking.Thinking != nil {
		body["thinking"] = thinking.Thinking
	}
	if thinking.OutputConfig != nil {
		body["output_config"] = thinking.OutputConfig
	}

	return body, baseModel
}

// extractText flattens content to plain text, ignoring non-text parts.
func extractText(c *schema.Content) string {
	if !c.IsParts {
		return c.Text
	}
	var parts []string
	for _, p := range c.Parts {
		if p.Type == "text" && p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// convertContent maps OpenAI message content plus tool calls onto Anthropic
// content blocks.
func convertContent(c *schema.Content, toolCalls []schema.ToolCall) []interface{} {
	var result []interface{}

	if !c.IsParts {
		if c.Text != "" {
			result = append(result, textBlock(c.Text))
		}
	} else {
		for _, part := range c.Parts {
			switch part.Type {
			case "text":
				if part.Text != "" {
					result = append(result, textBlock(part.Text))
				}
			case "image_url":
				if part.ImageURL == nil {
					continue
				}
				if mediaType, data, ok := parseDataURL(part.ImageURL.URL); ok {
					result = append(result, map[string]interface{}{
						"type": "image",
						"source": map[string]interface{}{
							"type":       "base64",
							"media_type": mediaType,
							"data":       data,
						},
					})
				}
			}
		}
	}

	for _, call := range toolCalls {
		var input interface{} = map[string]interface{}{}
		if call.Function.Arguments != "" {
			var parsed interface{}
			if err := json.Unmarshal([]byte(call.Function.Arguments), &parsed); err == nil {
				input = parsed
			}
		}
		result = append(result, map[string]interface{}{
			"type":  "tool_use",
			"id":    call.ID,
			"name":  call.Function.Name,
			"input": input,
		})
	}

	// Anthropic rejects empty content arrays.
	if len(result) == 0 {
		result = append(result, textBlock(""))
	}

	return result
}

func textBlock(text string) map[string]interface{} {
	return map[string]interface{}{"type": "text", "text": text}
}

// convertTool unwraps the OpenAI function envelope into an Anthropic tool.
// Tools already in Anthropic shape pass through untouched.
func convertTool(raw json.RawMessage) interface{} {
	var tool map[string]interface{}
	if err := json.Unmarshal(raw, &tool); err != nil {
		return map[string]interface{}{}
	}

	fn, ok := tool["function"].(map[string]interface{})
	if !ok {
		return tool
	}

	name, _ := fn["name"].(string)
	out := map[string]interface{}{"name": name}
	if desc, ok := fn["description"]; ok && desc != nil {
		out["description"] = desc
	}
	if params, ok := fn["parameters"]; ok && params != nil {
		out["input_schema"] = params
	} else {
		out["input_schema"] = map[string]interface{}{}
	}
	return out
}

// parseDataURL extracts (media type, payload) from a data:<mime>;base64,<data> URL.
func parseDataURL(url string) (string, string, bool) {
	if !strings.HasPrefix(url, "data:") {
		return "", "", false
	}
	header, data, found := strings.Cut(url, ",")
	if !found {
		return "", "", false
	}
	mediaType := strings.TrimPrefix(header, "data:")
	mediaType = strings.SplitN(mediaType, ";", 2)[0]
	if mediaType == "" {
		mediaType = "image/png"
	}
	return mediaType, data, true
}
