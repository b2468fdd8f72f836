package promptcache

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fromJSON(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &body))
	return body
}

func hasAnchor(v interface{}) bool {
	m, ok := v.(map[string]interface{})
	if !ok {
		return false
	}
	_, has := m["cache_control"]
	return has
}

func TestInject_FullRequest(t *testing.T) {
	// 3-block system, 2 tools, 3 user messages.
	body := fromJSON(t, `{
		"system": [
			{"type": "text", "text": "a"},
			{"type": "text", "text": "b"},
			{"type": "text", "text": "c"}
		],
		"tools": [
			{"name": "tool1"},
			{"name": "tool2"}
		],
		"messages": [
			{"role": "user", "content": [{"type": "text", "text": "q1"}]},
			{"role": "assistant", "content": [{"type": "text", "text": "a1"}]},
			{"role": "user", "content": [{"type": "text", "text": "q2"}]},
			{"role": "assistant", "content": [{"type": "text", "text": "a2"}]},
			{"role": "user", "content": [{"type": "text", "text": "q3"}]}
		]
	}`)

	Inject(body)

	assert.Equal(t, 4, CountAnchors(body))

	system := body["system"].([]interface{})
	assert.False(t, hasAnchor(system[0]))
	assert.False(t, hasAnchor(system[1]))
	assert.True(t, hasAnchor(system[2]), "last system block")

	tools := body["tools"].([]interface{})
	assert.False(t, hasAnchor(tools[0]))
	assert.True(t, hasAnchor(tools[1]), "last tool")

	messages := body["messages"].([]interface{})
	lastUser := messages[4].(map[string]interface{})["content"].([]interface{})
	assert.True(t, hasAnchor(lastUser[0]), "last user turn")

	secondLastUser := messages[2].(map[string]interface{})["content"].([]interface{})
	assert.True(t, hasAnchor(secondLastUser[0]), "second-to-last user turn")

	firstUser := messages[0].(map[string]interface{})["content"].([]interface{})
	assert.False(t, hasAnchor(firstUser[0]))
}

func TestInject_Idempotent(t *testing.T) {
	body := fromJSON(t, `{
		"system": [{"type": "text", "text": "s"}],
		"tools": [{"name": "t"}],
		"messages": [
			{"role": "user", "content": [{"type": "text", "text": "q1"}]},
			{"role": "user", "content": [{"type": "text", "text": "q2"}]}
		]
	}`)

	Inject(body)
	once, err := json.Marshal(body)
	require.NoError(t, err)

	Inject(body)
	twice, err := json.Marshal(body)
	require.NoError(t, err)

	assert.JSONEq(t, string(once), string(twice))
	assert.LessOrEqual(t, CountAnchors(body), MaxAnchors)
}

func TestInject_RespectsExistingAnchors(t *testing.T) {
	body := fromJSON(t, `{
		"system": [
			{"type": "text", "text": "1", "cache_control": {"type": "ephemeral"}},
			{"type": "text", "text": "2", "cache_control": {"type": "ephemeral"}},
			{"type": "text", "text": "3", "cache_control": {"type": "ephemeral"}}
		],
		"tools": [{"name": "tool1"}, {"name": "tool2"}],
		"messages": [
			{"role": "user", "content": [{"type": "text", "text": "q1"}]},
			{"role": "assistant", "content": [{"type": "text", "text": "a1"}]},
			{"role": "user", "content": [{"type": "text", "text": "q2"}]}
		]
	}`)

	Inject(body)

	// Only the tool anchor fits under the limit.
	assert.Equal(t, 4, CountAnchors(body))

	tools := body["tools"].([]interface{})
	assert.True(t, hasAnchor(tools[1]))

	messages := body["messages"].([]interface{})
	q1 := messages[0].(map[string]interface{})["content"].([]interface{})
	assert.False(t, hasAnchor(q1[0]))
}

func TestInject_AtLimitDoesNothing(t *testing.T) {
	raw := `{
		"system": [
			{"type": "text", "text": "1", "cache_control": {"type": "ephemeral"}},
			{"type": "text", "text": "2", "cache_control": {"type": "ephemeral"}}
		],
		"tools": [
			{"name": "t1", "cache_control": {"type": "ephemeral"}},
			{"name": "t2", "cache_control": {"type": "ephemeral"}}
		],
		"messages": [
			{"role": "user", "content": [{"type": "text", "text": "q"}]}
		]
	}`
	body := fromJSON(t, raw)

	Inject(body)

	assert.Equal(t, 4, CountAnchors(body))
	messages := body["messages"].([]interface{})
	q := messages[0].(map[string]interface{})["content"].([]interface{})
	assert.False(t, hasAnchor(q[0]))
}

func TestInject_StringSystemConverted(t *testing.T) {
	body := fromJSON(t, `{"system": "Hello world", "messages": []}`)

	Inject(body)

	system := body["system"].([]interface{})
	require.Len(t, system, 1)
	block := system[0].(map[string]interface{})
	assert.Equal(t, "Hello world", block["text"])
	assert.True(t, hasAnchor(block))
}

func TestInject_StringUserContentConverted(t *testing.T) {
	body := fromJSON(t, `{
		"messages": [
			{"role": "user", "content": "first"},
			{"role": "assistant", "content": "answer"},
			{"role": "user", "content": "second"}
		]
	}`)

	Inject(body)

	messages := body["messages"].([]interface{})
	second := messages[2].(map[string]interface{})["content"].([]interface{})
	assert.True(t, hasAnchor(second[0]))
	first := messages[0].(map[string]interface{})["content"].([]interface{})
	assert.True(t, hasAnchor(first[0]))
}

func TestInject_SingleUserTurn(t *testing.T) {
	body := fromJSON(t, `{
		"messages": [
			{"role": "user", "content": [{"type": "text", "text": "only"}]}
		]
	}`)

	Inject(body)

	messages := body["messages"].([]interface{})
	content := messages[0].(map[string]interface{})["content"].([]interface{})
	assert.True(t, hasAnchor(content[0]))
	assert.Equal(t, 1, CountAnchors(body))
}
