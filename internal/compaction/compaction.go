// Package compaction implements the context-window check and the pluggable
// history compaction strategies applied once a session's estimated token
// usage crosses the compression threshold.
package compaction

import (
	"unicode/utf8"

	"github.com/nextlevelbuilder/agentgate/internal/providers"
)

// Strategy selects which compaction algorithm Compact runs.
type Strategy string

const (
	KeepRecent    Strategy = "keep_recent"
	KeepImportant Strategy = "keep_important"
	SlidingWindow Strategy = "sliding_window"
	Summarize     Strategy = "summarize"
)

// charsPerToken is the default text→token ratio used when no model-specific
// ratio is configured.
const charsPerToken = 0.25

// perMessageOverhead accounts for role/formatting tokens added by the wire
// protocol around each message's content.
const perMessageOverhead = 4

// ContextWindow reports the compaction decision for a message set.
type ContextWindow struct {
	MaxTokens      int
	CurrentTokens  int
	ShouldCompress bool
}

// Check estimates the token usage of messages against maxTokens and flags
// compaction once usage exceeds 80% of the budget.
func Check(messages []providers.Message, maxTokens int) ContextWindow {
	current := EstimateTokens(messages)
	return ContextWindow{
		MaxTokens:      maxTokens,
		CurrentTokens:  current,
		ShouldCompress: maxTokens > 0 && float64(current) > float64(maxTokens)*0.8,
	}
}

// EstimateTokens approximates token count: fixed overhead per message plus
// text length scaled by charsPerToken. Image content blocks add a flat
// model-independent cost since exact sizing depends on the provider.
func EstimateTokens(messages []providers.Message) int {
	total := 0
	for _, m := range messages {
		total += perMessageOverhead
		for _, block := range m.Content {
			if block.Type == "image" {
				total += 768
				continue
			}
			total += int(float64(utf8.RuneCountInString(block.Text)) * charsPerToken)
		}
	}
	return total
}

// importance assigns a relative retention priority to a message, used by
// KeepImportant. Higher survives longer under a tight budget.
func importance(m providers.Message) float64 {
	switch {
	case m.Role == providers.RoleSystem:
		return 1.0
	case m.Role == providers.RoleAssistant && len(m.ToolCalls) > 0:
		return 0.9
	case m.Role == providers.RoleAssistant:
		return 0.7
	case m.Role == providers.RoleUser:
		return 0.6
	case m.Role == providers.RoleTool:
		return 0.4
	default:
		return 0.5
	}
}

func messageTokens(m providers.Message) int {
	return EstimateTokens([]providers.Message{m})
}

// Compact applies strategy to messages, returning a subset that fits within
// budget tokens. summarize, needed only by the Summarize strategy, produces
// the replacement text for discarded messages; it may be nil for the other
// strategies.
func Compact(strategy Strategy, messages []providers.Message, budget int, summarize func([]providers.Message) string) []providers.Message {
	var out []providers.Message
	switch strategy {
	case KeepImportant:
		out = keepImportant(messages, budget)
	case SlidingWindow:
		out = slidingWindow(messages, budget)
	case Summarize:
		out = summarizeStrategy(messages, budget, summarize)
	case KeepRecent:
		fallthrough
	default:
		out = keepRecent(messages, budget)
	}
	return dropUnpairedToolCalls(out)
}

// keepRecent preserves every system message, then fills the remaining
// budget from newest to oldest conversation message.
func keepRecent(messages []providers.Message, budget int) []providers.Message {
	var system, rest []providers.Message
	for _, m := range messages {
		if m.Role == providers.RoleSystem {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}

	used := EstimateTokens(system)
	var kept []providers.Message
	for i := len(rest) - 1; i >= 0; i-- {
		cost := messageTokens(rest[i])
		if used+cost > budget && len(kept) > 0 {
			break
		}
		kept = append([]providers.Message{rest[i]}, kept...)
		used += cost
	}
	return append(system, kept...)
}

// keepImportant ranks non-system messages by importance and fills the
// budget in that order, then restores chronological order.
func keepImportant(messages []providers.Message, budget int) []providers.Message {
	var system []providers.Message
	type scored struct {
		msg   providers.Message
		idx   int
		score float64
	}
	var candidates []scored
	for i, m := range messages {
		if m.Role == providers.RoleSystem {
			system = append(system, m)
			continue
		}
		candidates = append(candidates, scored{msg: m, idx: i, score: importance(m)})
	}

	// Stable sort by descending importance.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].score > candidates[j-1].score; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}

	used := EstimateTokens(system)
	selected := make(map[int]bool)
	for _, c := range candidates {
		cost := messageTokens(c.msg)
		if used+cost > budget && len(selected) > 0 {
			continue
		}
		selected[c.idx] = true
		used += cost
	}

	out := append([]providers.Message{}, system...)
	for i, m := range messages {
		if selected[i] {
			out = append(out, m)
		}
	}
	return out
}

// slidingWindow keeps system messages plus a prefix and suffix window of
// conversation messages, growing each end alternately until the budget is
// exhausted.
func slidingWindow(messages []providers.Message, budget int) []providers.Message {
	var system, rest []providers.Message
	for _, m := range messages {
		if m.Role == providers.RoleSystem {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}

	used := EstimateTokens(system)
	head, tail := 0, len(rest)
	growHead := true
	for head < tail {
		var cost int
		if growHead {
			cost = messageTokens(rest[head])
		} else {
			cost = messageTokens(rest[tail-1])
		}
		if used+cost > budget {
			break
		}
		if growHead {
			head++
		} else {
			tail--
		}
		used += cost
		growHead = !growHead
	}

	out := append([]providers.Message{}, system...)
	out = append(out, rest[:head]...)
	out = append(out, rest[tail:]...)
	return out
}

// summarizeStrategy keeps a recent tail within budget and replaces the
// discarded prefix with a single synthesized summary message inserted at
// the position of the first discarded message.
func summarizeStrategy(messages []providers.Message, budget int, summarize func([]providers.Message) string) []providers.Message {
	var system, rest []providers.Message
	for _, m := range messages {
		if m.Role == providers.RoleSystem {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}

	used := EstimateTokens(system)
	keepFrom := len(rest)
	for i := len(rest) - 1; i >= 0; i-- {
		cost := messageTokens(rest[i])
		if used+cost > budget && keepFrom < len(rest) {
			break
		}
		used += cost
		keepFrom = i
	}

	if keepFrom == 0 || summarize == nil {
		return messages
	}

	discarded := rest[:keepFrom]
	kept := rest[keepFrom:]

	summaryText := summarize(discarded)
	summaryMsg := providers.Message{
		Role:    providers.RoleUser,
		Content: providers.TextContent("<summary>" + summaryText + "</summary>"),
	}

	out := append([]providers.Message{}, system...)
	out = append(out, summaryMsg)
	out = append(out, kept...)
	return out
}

// dropUnpairedToolCalls enforces the invariant that an assistant message
// carrying tool calls is never retained without its matching tool results
// immediately after — either both survive or neither does.
func dropUnpairedToolCalls(messages []providers.Message) []providers.Message {
	var out []providers.Message
	for i := 0; i < len(messages); i++ {
		m := messages[i]
		if m.Role == providers.RoleTool {
			// Orphaned tool result (its assistant call wasn't kept): drop.
			continue
		}
		if m.Role == providers.RoleAssistant && len(m.ToolCalls) > 0 {
			expected := make(map[string]bool, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				expected[tc.ID] = true
			}
			j := i + 1
			var results []providers.Message
			for j < len(messages) && messages[j].Role == providers.RoleTool {
				if expected[messages[j].ToolCallID] {
					results = append(results, messages[j])
					delete(expected, messages[j].ToolCallID)
				}
				j++
			}
			if len(expected) > 0 {
				// Missing results for this tool call set: drop the pair entirely.
				i = j - 1
				continue
			}
			out = append(out, m)
			out = append(out, results...)
			i = j - 1
			continue
		}
		out = append(out, m)
	}
	return out
}
