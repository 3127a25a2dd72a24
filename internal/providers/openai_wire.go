package providers

import "encoding/json"

// OpenAI-compatible wire types (OpenAI, Groq, OpenRouter, DeepSeek, vLLM,
// Gemini-via-OpenAI-shim, DashScope). Kept intentionally loose (plain structs,
// no validation) since every backend speaks a close-but-not-identical dialect.

type openAIResponse struct {
	Choices []openAIChoice    `json:"choices"`
	Usage   *openAIUsageField `json:"usage,omitempty"`
}

type openAIChoice struct {
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIMessage struct {
	Content          string               `json:"content"`
	ReasoningContent string               `json:"reasoning_content,omitempty"`
	ToolCalls        []openAIToolCallWire `json:"tool_calls,omitempty"`
}

type openAIToolCallWire struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Function struct {
		Name             string `json:"name"`
		Arguments        string `json:"arguments"`
		ThoughtSignature string `json:"thought_signature,omitempty"`
	} `json:"function"`
}

type openAIUsageField struct {
	PromptTokens            int                       `json:"prompt_tokens"`
	CompletionTokens        int                       `json:"completion_tokens"`
	TotalTokens              int                      `json:"total_tokens"`
	PromptTokensDetails     *openAIPromptTokenDetails `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails *openAICompletionDetails  `json:"completion_tokens_details,omitempty"`
}

type openAIPromptTokenDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

type openAICompletionDetails struct {
	ReasoningTokens int `json:"reasoning_tokens"`
}

type openAIStreamChunk struct {
	Choices []openAIStreamChoice `json:"choices"`
	Usage   *openAIUsageField    `json:"usage,omitempty"`
}

type openAIStreamChoice struct {
	Delta        openAIMessage `json:"delta"`
	FinishReason string        `json:"finish_reason"`
}

// toolCallAccumulator gathers one tool call's streamed argument fragments
// (OpenAI streams tool_call.function.arguments as incremental JSON text)
// until the stream ends, at which point the accumulated string is parsed.
type toolCallAccumulator struct {
	ToolCall
	rawArgs    string
	thoughtSig string
}

// collapseToolCallsWithoutSig drops assistant tool_calls (and their matching
// tool results) that lack a Gemini thought_signature, folding the tool
// result's text into a plain user message instead. Gemini 2.5+ returns HTTP
// 400 if a tool_call is replayed without its thought_signature, which some
// models (e.g. gemini-3-flash) simply never emit.
func collapseToolCallsWithoutSig(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	dropped := make(map[string]bool)

	for _, m := range msgs {
		if m.Role == RoleAssistant && len(m.ToolCalls) > 0 {
			var kept []ToolCall
			for _, tc := range m.ToolCalls {
				if tc.Metadata["thought_signature"] == "" {
					dropped[tc.ID] = true
					continue
				}
				kept = append(kept, tc)
			}
			if len(kept) == 0 && !m.HasContent() {
				continue
			}
			m.ToolCalls = kept
			out = append(out, m)
			continue
		}
		if m.Role == RoleTool && dropped[m.ToolCallID] {
			out = append(out, Message{Role: RoleUser, Content: m.Content})
			continue
		}
		out = append(out, m)
	}
	return out
}

// CleanToolSchemas adapts tool definitions to a provider's JSON-schema
// dialect and returns them in OpenAI-compatible wire shape.
func CleanToolSchemas(providerName string, tools []ToolDefinition) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        t.Function.Name,
				"description": t.Function.Description,
				"parameters":  CleanSchemaForProvider(providerName, t.Function.Parameters),
			},
		})
	}
	return out
}

// CleanSchemaForProvider strips JSON-schema keywords a given provider's tool
// API rejects. Anthropic and most OpenAI-compatible backends accept standard
// JSON Schema, but Gemini's OpenAPI-subset schema rejects "additionalProperties"
// and "$schema", and none of them want a top-level empty "required": [].
func CleanSchemaForProvider(providerName string, schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	cleaned := cloneSchema(schema)
	if providerName == "gemini" || providerName == "dashscope" {
		delete(cleaned, "additionalProperties")
		delete(cleaned, "$schema")
	}
	if req, ok := cleaned["required"].([]interface{}); ok && len(req) == 0 {
		delete(cleaned, "required")
	}
	return cleaned
}

func cloneSchema(schema map[string]interface{}) map[string]interface{} {
	b, err := json.Marshal(schema)
	if err != nil {
		return schema
	}
	var out map[string]interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return schema
	}
	return out
}
