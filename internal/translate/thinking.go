package translate

import (
	"strconv"
	"strings"
)

// Output ceilings per model family.
const (
	opus46MaxOutput  = 128000
	defaultMaxOutput = 64000
	defaultMaxTokens = 16000
)

// IsOpus46 reports whether the model uses adaptive thinking.
func IsOpus46(model string) bool {
	lower := strings.ToLower(model)
	return strings.HasPrefix(lower, "claude-opus-4-6") || strings.Contains(lower, "opus-4-6")
}

// ParseModelSuffix splits a "(effort)" suffix off a model id.
// "claude-sonnet-4-5(high)" → ("claude-sonnet-4-5", "high", true).
// Unknown suffixes are left on the model id.
func ParseModelSuffix(model string) (base, effort string, ok bool) {
	open := strings.LastIndexByte(model, '(')
	if open < 0 || !strings.HasSuffix(model, ")") {
		return model, "", false
	}

	suffix := model[open+1 : len(model)-1]

	valid := false
	switch strings.ToLower(suffix) {
	case "none", "off", "disabled", "low", "minimal", "medium", "med", "high", "xhigh", "max", "auto":
		valid = true
	default:
		if _, err := strconv.ParseUint(suffix, 10, 32); err == nil {
			valid = true
		}
	}
	if !valid {
		return model, "", false
	}
	return model[:open], suffix, true
}

// ThinkingConfig is the resolved extended-thinking request fragment.
type ThinkingConfig struct {
	// Thinking is the request "thinking" object, nil when disabled.
	Thinking map[string]interface{}
	// OutputConfig is the Opus 4.6 "output_config" object, nil otherwise.
	OutputConfig map[string]interface{}
}

// BuildThinkingConfig maps an effort level onto the model family's thinking
// knobs: adaptive effort for Opus 4.6, budget_tokens for older models.
func BuildThinkingConfig(model, effort string) ThinkingConfig {
	effortLower := strings.ToLower(effort)

	switch effortLower {
	case "none", "off", "disabled":
		return ThinkingConfig{}
	}

	if IsOpus46(model) {
		var level string
		switch effortLower {
		case "low", "minimal":
			level = "low"
		case "medium", "med", "auto":
			level = "medium"
		case "high":
			level = "high"
		case "xhigh", "max":
			level = "max"
		default:
			if n, err := strconv.ParseUint(effort, 10, 32); err == nil {
				switch {
				case n == 0:
					return ThinkingConfig{}
				case n <= 2048:
					level = "low"
				case n <= 16384:
					level = "medium"
				case n <= 49152:
					level = "high"
				default:
					level = "max"
				}
			} else {
				level = "high"
			}
		}
		return ThinkingConfig{
			Thinking:     map[string]interface{}{"type": "adaptive"},
			OutputConfig: map[string]interface{}{"effort": level},
		}
	}

	var budget int64
	switch effortLower {
	case "low", "minimal":
		budget = 1024
	case "medium", "med":
		budget = 8192
	case "high":
		budget = 32000
	case "xhigh", "max":
		budget = 64000
	case "auto":
		budget = 16000
	default:
		n, err := strconv.ParseInt(effort, 10, 64)
		if err != nil {
			n = 8192
		}
		budget = n
	}

	return ThinkingConfig{
		Thinking: map[string]interface{}{
			"type":          "enabled",
			"budget_tokens": budget,
		},
	}
}

// modelMaxOutput is the hard output ceiling for the model family.
func modelMaxOutput(model string) int64 {
	if IsOpus46(model) {
		return opus46MaxOutput
	}
	return defaultMaxOutput
}
