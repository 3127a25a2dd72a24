package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Content block kinds.
const (
	ContentText  = "text"
	ContentImage = "image"
)

// Provider is the interface all LLM providers must implement.
type Provider interface {
	// Chat sends messages to the LLM and returns a response.
	// tools defines available tool schemas; model overrides the default.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Stream sends messages and streams typed provider events via callback,
	// then returns the final accumulated response.
	Stream(ctx context.Context, req ChatRequest, onEvent func(ProviderEvent)) (*ChatResponse, error)

	// DefaultModel returns the provider's default model name.
	DefaultModel() string

	// Name returns the provider identifier (e.g. "anthropic", "openai").
	Name() string
}

// ThinkingCapable is implemented by providers that support extended/visible
// thinking, so callers can gate a thinking-level option on real support.
type ThinkingCapable interface {
	SupportsThinking() bool
}

// Option keys understood by provider adapters, carried in ChatRequest.Options.
const (
	OptMaxTokens       = "maxTokens"
	OptTemperature     = "temperature"
	OptThinkingLevel   = "thinkingLevel"
	OptReasoningEffort = "reasoning_effort"
	OptEnableThinking  = "enable_thinking"
	OptThinkingBudget  = "thinking_budget"
)

// ChatRequest contains the input for a Chat/Stream call.
type ChatRequest struct {
	Messages []Message              `json:"messages"`
	Tools    []ToolDefinition       `json:"tools,omitempty"`
	Model    string                 `json:"model,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// ChatResponse is the result from an LLM call.
type ChatResponse struct {
	Content             string          `json:"content"`
	Thinking            string          `json:"thinking,omitempty"`
	ToolCalls           []ToolCall      `json:"tool_calls,omitempty"`
	FinishReason        string          `json:"finish_reason"` // "stop", "tool_calls", "length"
	Usage               *Usage          `json:"usage,omitempty"`
	RawAssistantContent json.RawMessage `json:"raw_assistant_content,omitempty"`
}

// ProviderEventType enumerates the typed events a streaming provider emits.
type ProviderEventType string

// Event kinds, in the order a well-formed stream emits them:
// [thinking_start thinking_delta* thinking_end]? (text_delta | tool_call)* usage? done
// An error event may replace anything after the first event.
const (
	EventThinkingStart ProviderEventType = "thinking_start"
	EventThinkingDelta ProviderEventType = "thinking_delta"
	EventThinkingEnd   ProviderEventType = "thinking_end"
	EventTextDelta     ProviderEventType = "text_delta"
	EventToolCall      ProviderEventType = "tool_call"
	EventUsage         ProviderEventType = "usage"
	EventDone          ProviderEventType = "done"
	EventError         ProviderEventType = "error"
)

// ProviderEvent is one unit of a provider's streaming output. Exactly one of
// Content/ToolCall/Usage/Err is meaningful depending on Type.
type ProviderEvent struct {
	Type     ProviderEventType
	Content  string
	ToolCall *ToolCall
	Usage    *Usage
	Err      error
}

// StreamChunk is the simplified content/thinking/done shape some callers
// (channel preview rendering, tests) prefer over the full typed event stream.
type StreamChunk struct {
	Content  string `json:"content,omitempty"`
	Thinking string `json:"thinking,omitempty"`
	Done     bool   `json:"done,omitempty"`
}

// CollectChunks adapts a ProviderEvent callback into the simplified
// StreamChunk shape.
func CollectChunks(onChunk func(StreamChunk)) func(ProviderEvent) {
	return func(ev ProviderEvent) {
		switch ev.Type {
		case EventTextDelta:
			onChunk(StreamChunk{Content: ev.Content})
		case EventThinkingDelta:
			onChunk(StreamChunk{Thinking: ev.Content})
		case EventDone:
			onChunk(StreamChunk{Done: true})
		}
	}
}

// ContentBlock is one piece of message content: text or an inline image.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Data     string `json:"data,omitempty"` // base64, image blocks only
}

// Content is a list of blocks that (de)serializes from either a bare string
// (shorthand for a single text block) or a JSON array of block objects.
type Content []ContentBlock

// TextContent builds a single-block text Content.
func TextContent(s string) Content {
	if s == "" {
		return nil
	}
	return Content{{Type: ContentText, Text: s}}
}

// PlainText concatenates every text block, ignoring images.
func (c Content) PlainText() string {
	var b strings.Builder
	for _, blk := range c {
		if blk.Type == ContentText {
			b.WriteString(blk.Text)
		}
	}
	return b.String()
}

// Images returns the image blocks, if any.
func (c Content) Images() []ContentBlock {
	var out []ContentBlock
	for _, blk := range c {
		if blk.Type == ContentImage {
			out = append(out, blk)
		}
	}
	return out
}

// MergeTextContent concatenates two Content values' text with a newline,
// used when collapsing consecutive same-role turns for providers that
// reject them as separate turns.
func MergeTextContent(a, b Content) Content {
	at, bt := a.PlainText(), b.PlainText()
	merged := at
	switch {
	case at != "" && bt != "":
		merged += "\n" + bt
	default:
		merged += bt
	}
	out := Content{{Type: ContentText, Text: merged}}
	out = append(out, a.Images()...)
	out = append(out, b.Images()...)
	return out
}

func (c Content) MarshalJSON() ([]byte, error) {
	if len(c) == 1 && c[0].Type == ContentText {
		return json.Marshal(c[0].Text)
	}
	type alias ContentBlock
	blocks := make([]alias, len(c))
	for i, b := range c {
		blocks[i] = alias(b)
	}
	return json.Marshal(blocks)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = TextContent(s)
		return nil
	}
	type alias ContentBlock
	var blocks []alias
	if err := json.Unmarshal(data, &blocks); err != nil {
		return fmt.Errorf("content: not a string or block array: %w", err)
	}
	out := make(Content, len(blocks))
	for i, b := range blocks {
		out[i] = ContentBlock(b)
	}
	*c = out
	return nil
}

// Message represents a conversation message. Content holds either plain text
// or a mix of text/image blocks (§3's "string or list of content blocks").
type Message struct {
	Role       string     `json:"role"` // "system", "user", "assistant", "tool"
	Content    Content    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // for role="tool" responses
	Thinking   string     `json:"thinking,omitempty"`
	Timestamp  int64      `json:"timestamp,omitempty"`

	// RawAssistantContent preserves provider-specific wire content (e.g. an
	// Anthropic thinking-block signature) needed to replay an assistant turn
	// verbatim on a later request.
	RawAssistantContent json.RawMessage `json:"raw_assistant_content,omitempty"`
}

// HasContent reports whether the message carries any text or image content.
func (m Message) HasContent() bool {
	return len(m.Content) > 0
}

// Text is shorthand for Content.PlainText(), used wherever only the textual
// transcript matters (sanitization, summarization, loop detection).
func (m Message) Text() string { return m.Content.PlainText() }

// ToolCall represents a tool invocation requested by the LLM.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
	// Metadata carries provider-specific passback state, e.g. Gemini's
	// thought_signature that must be echoed on the next request.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ToolDefinition describes a tool available to the LLM.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function ToolFunctionSchema `json:"function"`
}

// ToolFunctionSchema is the schema for a function tool.
type ToolFunctionSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens        int `json:"prompt_tokens"`
	CompletionTokens    int `json:"completion_tokens"`
	TotalTokens         int `json:"total_tokens"`
	ThinkingTokens      int `json:"thinking_tokens,omitempty"`
	CacheCreationTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadTokens     int `json:"cache_read_input_tokens,omitempty"`
}

type retryHookKey struct{}

// RetryHookFunc is invoked by a provider's retry loop on each retryable
// failure, before sleeping and re-attempting.
type RetryHookFunc func(attempt, maxAttempts int, err error)

// WithRetryHook attaches a retry-notification callback to ctx, consumed by
// RetryDo so callers (e.g. the turn loop) can surface retry/backoff events.
func WithRetryHook(ctx context.Context, fn RetryHookFunc) context.Context {
	return context.WithValue(ctx, retryHookKey{}, fn)
}

// RetryHookFromContext returns the retry hook attached to ctx, or a no-op.
func RetryHookFromContext(ctx context.Context) RetryHookFunc {
	if fn, ok := ctx.Value(retryHookKey{}).(RetryHookFunc); ok && fn != nil {
		return fn
	}
	return func(int, int, error) {}
}
