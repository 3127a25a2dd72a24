package store

import (
	"log/slog"

	"github.com/nextlevelbuilder/agentgate/internal/providers"
)

// LimitHistoryTurns keeps only the last N user turns (and their associated
// assistant/tool messages). A "turn" is one user message plus all subsequent
// non-user messages until the next user message. If limit is <= 0 the input
// is returned unchanged.
func LimitHistoryTurns(msgs []providers.Message, limit int) []providers.Message {
	if limit <= 0 || len(msgs) == 0 {
		return msgs
	}

	userCount := 0
	lastUserIndex := len(msgs)

	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == providers.RoleUser {
			userCount++
			if userCount > limit {
				return msgs[lastUserIndex:]
			}
			lastUserIndex = i
		}
	}

	return msgs
}

// SanitizeHistory drops messages with a missing/invalid role, drops non-assistant
// messages that have neither content nor tool calls (assistant messages with
// empty content are kept), and repairs tool-call/tool-result pairing: a toolResult message is kept only
// immediately after the assistant message whose toolCalls produced its
// toolCallId; unmatched tool calls get a synthesized missing-result message,
// and orphaned tool-result messages (no matching preceding tool call) are
// dropped.
func SanitizeHistory(msgs []providers.Message) []providers.Message {
	if len(msgs) == 0 {
		return msgs
	}

	start := 0
	for start < len(msgs) && msgs[start].Role == providers.RoleTool {
		slog.Warn("session.history: dropping orphaned tool message at start", "toolCallId", msgs[start].ToolCallID)
		start++
	}
	if start >= len(msgs) {
		return nil
	}

	var result []providers.Message
	for i := start; i < len(msgs); i++ {
		msg := msgs[i]

		if !validRole(msg.Role) {
			slog.Warn("session.history: dropping message with invalid role", "role", msg.Role)
			continue
		}
		if msg.Role != providers.RoleAssistant && !msg.HasContent() && len(msg.ToolCalls) == 0 {
			continue
		}

		if msg.Role == providers.RoleAssistant && len(msg.ToolCalls) > 0 {
			expected := make(map[string]bool, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				expected[tc.ID] = true
			}
			result = append(result, msg)

			for i+1 < len(msgs) && msgs[i+1].Role == providers.RoleTool {
				i++
				toolMsg := msgs[i]
				if expected[toolMsg.ToolCallID] {
					result = append(result, toolMsg)
					delete(expected, toolMsg.ToolCallID)
				} else {
					slog.Warn("session.history: dropping mismatched tool result", "toolCallId", toolMsg.ToolCallID)
				}
			}

			for id := range expected {
				slog.Warn("session.history: synthesizing missing tool result", "toolCallId", id)
				result = append(result, providers.Message{
					Role:       providers.RoleTool,
					Content:    providers.TextContent("[tool result missing — history was truncated]"),
					ToolCallID: id,
				})
			}
		} else if msg.Role == providers.RoleTool {
			slog.Warn("session.history: dropping orphaned tool message", "toolCallId", msg.ToolCallID)
		} else {
			result = append(result, msg)
		}
	}

	return result
}

func validRole(role string) bool {
	switch role {
	case providers.RoleSystem, providers.RoleUser, providers.RoleAssistant, providers.RoleTool:
		return true
	default:
		return false
	}
}

// ValidateAnthropicTurns merges consecutive user messages, which Anthropic's
// API rejects as separate turns. Idempotent: applying it twice yields the
// same result as applying it once.
func ValidateAnthropicTurns(msgs []providers.Message) []providers.Message {
	return mergeConsecutive(msgs, providers.RoleUser)
}

// ValidateGeminiTurns merges consecutive assistant messages, which Gemini's
// API rejects as separate turns. Idempotent for the same reason.
func ValidateGeminiTurns(msgs []providers.Message) []providers.Message {
	return mergeConsecutive(msgs, providers.RoleAssistant)
}

func mergeConsecutive(msgs []providers.Message, role string) []providers.Message {
	if len(msgs) < 2 {
		return msgs
	}
	out := make([]providers.Message, 0, len(msgs))
	for _, m := range msgs {
		if len(out) > 0 && out[len(out)-1].Role == role && m.Role == role && len(m.ToolCalls) == 0 && len(out[len(out)-1].ToolCalls) == 0 {
			last := &out[len(out)-1]
			last.Content = providers.MergeTextContent(last.Content, m.Content)
			continue
		}
		out = append(out, m)
	}
	return out
}
