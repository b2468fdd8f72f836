package prepare

import "strings"

// The Anthropic OAuth backend only accepts custom tools whose names carry
// an mcp_ prefix. The prefix is added on every outbound request and
// stripped back off tool_use blocks before responses reach the client, so
// clients never see it.

const mcpPrefix = "mcp_"

// AddMCPPrefix prefixes a custom tool name. Idempotent.
func AddMCPPrefix(name string) string {
	if strings.HasPrefix(name, mcpPrefix) {
		return name
	}
	return mcpPrefix + name
}

// StripMCPPrefix removes the prefix from a tool name. Passthrough for
// names that never carried it.
func StripMCPPrefix(name string) string {
	return strings.TrimPrefix(name, mcpPrefix)
}

// TransformRequestToolNames prefixes every custom tool definition, the
// tool_choice target and tool_use blocks inside messages.
// Built-in server tools (those carrying a "type" field, e.g. web_search)
// are left alone.
func TransformRequestToolNames(body map[string]interface{}) {
	if tools, ok := body["tools"].([]interface{}); ok {
		for _, item := range tools {
			tool, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if _, builtin := tool["type"]; builtin {
				continue
			}
			if name, ok := tool["name"].(string); ok && name != "" {
				tool["name"] = AddMCPPrefix(name)
			}
		}
	}

	if toolChoice, ok := body["tool_choice"].(map[string]interface{}); ok {
		if name, ok := toolChoice["name"].(string); ok && name != "" {
			toolChoice["name"] = AddMCPPrefix(name)
		}
	}

	// Assistant turns replayed by the client carry tool_use blocks whose
	// names must match the prefixed definitions.
	if messages, ok := body["messages"].([]interface{}); ok {
		for _, item := range messages {
			msg, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			content, ok := msg["content"].([]interface{})
			if !ok {
				continue
			}
			for _, b := range content {
				block, ok := b.(map[string]interface{})
				if !ok {
					continue
				}
				if t, _ := block["type"].(string); t != "tool_use" {
					continue
				}
				if name, ok := block["name"].(string); ok && name != "" {
					block["name"] = AddMCPPrefix(name)
				}
			}
		}
	}
}

// TransformResponseToolNames strips the prefix from tool_use blocks in an
// Anthropic unary response body.
func TransformResponseToolNames(body map[string]interface{}) {
	content, ok := body["content"].([]interface{})
	if !ok {
		return
	}
	for _, item := range content {
		block, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if t, _ := block["type"].(string); t != "tool_use" {
			continue
		}
		if name, ok := block["name"].(string); ok {
			block["name"] = StripMCPPrefix(name)
		}
	}
}
