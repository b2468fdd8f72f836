// Package promptcache marks cache breakpoints on outbound Anthropic
// requests. Each anchor lets Anthropic reuse the cached request prefix up to
// that point, cutting input cost on the cached tokens.
package promptcache

// MaxAnchors is the cache_control block limit the Anthropic API enforces.
const MaxAnchors = 4

func ephemeral() map[string]interface{} {
	return map[string]interface{}{"type": "ephemeral"}
}

// CountAnchors counts existing cache_control blocks in a request body.
func CountAnchors(body map[string]interface{}) int {
	count := 0

	if system, ok := body["system"].([]interface{}); ok {
		for _, item := range system {
			if block, ok := item.(map[string]interface{}); ok {
				if _, has := block["cache_control"]; has {
					count++
				}
			}
		}
	}

	if tools, ok := body["tools"].([]interface{}); ok {
		for _, item := range tools {
			if tool, ok := item.(map[string]interface{}); ok {
				if _, has := tool["cache_control"]; has {
					count++
				}
			}
		}
	}

	for _, msg := range messageList(body) {
		if content, ok := msg["content"].([]interface{}); ok {
			for _, item := range content {
				if block, ok := item.(map[string]interface{}); ok {
					if _, has := block["cache_control"]; has {
						count++
					}
				}
			}
		}
	}

	return count
}

// Inject places up to four ephemeral anchors: last system block, last tool,
// last block of the most recent user turn, last block of the second-most-
// recent user turn. Sections that already carry any anchor are skipped, so
// the walk is idempotent and never exceeds the API limit. The body is
// modified in place.
func Inject(body map[string]interface{}) {
	remaining := MaxAnchors - CountAnchors(body)
	if remaining <= 0 {
		return
	}

	if anchorTools(body) {
		remaining--
	}
	if remaining > 0 && anchorSystem(body) {
		remaining--
	}
	if remaining > 0 {
		anchorUserTurns(body, remaining)
	}
}

// anchorTools marks the last tool; per Anthropic docs that caches all tool
// definitions. Skipped when any tool already has an anchor.
func anchorTools(body map[string]interface{}) bool {
	tools, ok := body["tools"].([]interface{})
	if !ok || len(tools) == 0 {
		return false
	}
	for _, item := range tools {
		if tool, ok := item.(map[string]interface{}); ok {
			if _, has := tool["cache_control"]; has {
				return false
			}
		}
	}
	last, ok := tools[len(tools)-1].(map[string]interface{})
	if !ok {
		return false
	}
	last["cache_control"] = ephemeral()
	return true
}

// anchorSystem marks the last system block, converting a string system
// prompt to block form first.
func anchorSystem(body map[string]interface{}) bool {
	switch system := body["system"].(type) {
	case []interface{}:
		if len(system) == 0 {
			return false
		}
		for _, item := range system {
			if block, ok := item.(map[string]interface{}); ok {
				if _, has := block["cache_control"]; has {
					return false
				}
			}
		}
		last, ok := system[len(system)-1].(map[string]interface{})
		if !ok {
			return false
		}
		last["cache_control"] = ephemeral()
		return true
	case string:
		body["system"] = []interface{}{map[string]interface{}{
			"type":          "text",
			"text":          system,
			"cache_control": ephemeral(),
		}}
		return true
	}
	return false
}

// anchorUserTurns marks the last block of the most recent user turn and,
// budget permitting, of the turn before it. Skipped entirely when any
// message content already carries an anchor.
func anchorUserTurns(body map[string]interface{}, budget int) {
	messages := messageList(body)

	for _, msg := range messages {
		if content, ok := msg["content"].([]interface{}); ok {
			for _, item := range content {
				if block, ok := item.(map[string]interface{}); ok {
					if _, has := block["cache_control"]; has {
						return
					}
				}
			}
		}
	}

	var userIdx []int
	for i, msg := range messages {
		if role, _ := msg["role"].(string); role == "user" {
			userIdx = append(userIdx, i)
		}
	}

	// Most recent first, then second-most-recent.
	for i := len(userIdx) - 1; i >= 0 && budget > 0 && i >= len(userIdx)-2; i-- {
		if anchorMessage(messages[userIdx[i]]) {
			budget--
		}
	}
}

func anchorMessage(msg map[string]interface{}) bool {
	switch content := msg["content"].(type) {
	case []interface{}:
		if len(content) == 0 {
			return false
		}
		last, ok := content[len(content)-1].(map[string]interface{})
		if !ok {
			return false
		}
		last["cache_control"] = ephemeral()
		return true
	case string:
		msg["content"] = []interface{}{map[string]interface{}{
			"type":          "text",
			"text":          content,
			"cache_control": ephemeral(),
		}}
		return true
	}
	return false
}

func messageList(body map[string]interface{}) []map[string]interface{} {
	raw, ok := body["messages"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		if msg, ok := item.(map[string]interface{}); ok {
			out = append(out, msg)
		}
	}
	return out
}
