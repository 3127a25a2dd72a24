package agent

import (
	"github.com/nextlevelbuilder/agentgate/internal/compaction"
	"github.com/nextlevelbuilder/agentgate/internal/config"
	"github.com/nextlevelbuilder/agentgate/internal/providers"
)

// pruneContextMessages trims (soft) or replaces (hard) old tool result
// content in-memory, once estimated usage crosses the configured ratio of
// the context window. It never drops messages — only shrinks tool result
// payloads — so it never disturbs tool_use/tool_result pairing. nil/off
// config is a no-op.
func pruneContextMessages(messages []providers.Message, contextWindow int, cfg *config.ContextPruningConfig) []providers.Message {
	if cfg == nil || cfg.Mode == "" || cfg.Mode == "off" || contextWindow <= 0 {
		return messages
	}

	tokens := compaction.EstimateTokens(messages)
	ratio := float64(tokens) / float64(contextWindow)

	softRatio := cfg.SoftTrimRatio
	if softRatio <= 0 {
		softRatio = 0.3
	}
	hardRatio := cfg.HardClearRatio
	if hardRatio <= 0 {
		hardRatio = 0.5
	}
	if ratio < softRatio {
		return messages
	}

	keepLastAssistants := cfg.KeepLastAssistants
	if keepLastAssistants <= 0 {
		keepLastAssistants = 3
	}
	minChars := cfg.MinPrunableToolChars
	if minChars <= 0 {
		minChars = 50000
	}

	protected := protectedToolCallIDs(messages, keepLastAssistants)

	hardClear := ratio >= hardRatio && (cfg.HardClear == nil || cfg.HardClear.Enabled == nil || *cfg.HardClear.Enabled)
	placeholder := "[Old tool result content cleared]"
	if cfg.HardClear != nil && cfg.HardClear.Placeholder != "" {
		placeholder = cfg.HardClear.Placeholder
	}

	softMax, headChars, tailChars := 4000, 1500, 1500
	if cfg.SoftTrim != nil {
		if cfg.SoftTrim.MaxChars > 0 {
			softMax = cfg.SoftTrim.MaxChars
		}
		if cfg.SoftTrim.HeadChars > 0 {
			headChars = cfg.SoftTrim.HeadChars
		}
		if cfg.SoftTrim.TailChars > 0 {
			tailChars = cfg.SoftTrim.TailChars
		}
	}

	out := make([]providers.Message, len(messages))
	totalPrunable := 0
	for _, m := range messages {
		if m.Role == providers.RoleTool {
			totalPrunable += len(m.Text())
		}
	}
	if totalPrunable < minChars {
		return messages
	}

	for i, m := range messages {
		if m.Role != providers.RoleTool || protected[m.ToolCallID] {
			out[i] = m
			continue
		}
		text := m.Text()
		switch {
		case hardClear:
			out[i] = providers.Message{Role: m.Role, ToolCallID: m.ToolCallID, Content: providers.TextContent(placeholder)}
		case len(text) > softMax:
			trimmed := text[:headChars] + "\n...[trimmed]...\n" + text[len(text)-tailChars:]
			out[i] = providers.Message{Role: m.Role, ToolCallID: m.ToolCallID, Content: providers.TextContent(trimmed)}
		default:
			out[i] = m
		}
	}

	return out
}

// protectedToolCallIDs returns the tool call IDs belonging to the last N
// assistant messages that made tool calls — their results are never pruned
// so the model keeps full fidelity on its most recent actions.
func protectedToolCallIDs(messages []providers.Message, keepLastAssistants int) map[string]bool {
	protected := make(map[string]bool)
	found := 0
	for i := len(messages) - 1; i >= 0 && found < keepLastAssistants; i-- {
		m := messages[i]
		if m.Role == providers.RoleAssistant && len(m.ToolCalls) > 0 {
			for _, tc := range m.ToolCalls {
				protected[tc.ID] = true
			}
			found++
		}
	}
	return protected
}
