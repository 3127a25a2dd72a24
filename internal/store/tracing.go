package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// GenNewID returns a fresh random identifier for traces and spans.
func GenNewID() uuid.UUID { return uuid.New() }

// Trace status values.
const (
	TraceStatusRunning   = "running"
	TraceStatusCompleted = "completed"
	TraceStatusError     = "error"
)

// Span types.
const (
	SpanTypeAgent    = "agent"
	SpanTypeLLMCall  = "llm_call"
	SpanTypeToolCall = "tool_call"
)

// Span status values.
const (
	SpanStatusRunning   = "running"
	SpanStatusCompleted = "completed"
	SpanStatusError     = "error"
)

// Span levels (OTel-style severity, matching TS trace level field).
const (
	SpanLevelDebug   = "DEBUG"
	SpanLevelDefault = "DEFAULT"
	SpanLevelWarning = "WARNING"
	SpanLevelError   = "ERROR"
)

// TraceData is one agent run's trace record: the root of a span tree.
type TraceData struct {
	ID            uuid.UUID  `json:"id"`
	RunID         string     `json:"runId"`
	SessionKey    string     `json:"sessionKey"`
	UserID        string     `json:"userId,omitempty"`
	Channel       string     `json:"channel,omitempty"`
	Name          string     `json:"name"`
	InputPreview  string     `json:"inputPreview,omitempty"`
	Status        string     `json:"status"`
	StartTime     time.Time  `json:"startTime"`
	EndTime       *time.Time `json:"endTime,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	Tags          []string   `json:"tags,omitempty"`
	AgentID       *uuid.UUID `json:"agentId,omitempty"`
	ParentTraceID *uuid.UUID `json:"parentTraceId,omitempty"`
}

// SpanData is one unit of work (LLM call, tool call, agent run) within a trace.
type SpanData struct {
	ID           uuid.UUID       `json:"id"`
	TraceID      uuid.UUID       `json:"traceId"`
	ParentSpanID *uuid.UUID      `json:"parentSpanId,omitempty"`
	SpanType     string          `json:"spanType"`
	Name         string          `json:"name"`
	StartTime    time.Time       `json:"startTime"`
	EndTime      *time.Time      `json:"endTime,omitempty"`
	DurationMS   int             `json:"durationMs"`
	Model        string          `json:"model,omitempty"`
	Provider     string          `json:"provider,omitempty"`
	ToolName     string          `json:"toolName,omitempty"`
	ToolCallID   string          `json:"toolCallId,omitempty"`
	InputPreview string          `json:"inputPreview,omitempty"`
	OutputPreview string         `json:"outputPreview,omitempty"`
	FinishReason string          `json:"finishReason,omitempty"`
	Status       string          `json:"status"`
	Level        string          `json:"level,omitempty"`
	Error        string          `json:"error,omitempty"`
	InputTokens  int             `json:"inputTokens,omitempty"`
	OutputTokens int             `json:"outputTokens,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	AgentID      *uuid.UUID      `json:"agentId,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// TracingStore persists traces and spans.
type TracingStore interface {
	CreateTrace(ctx context.Context, trace *TraceData) error
	CompleteTrace(ctx context.Context, id uuid.UUID, status string, endTime time.Time) error
	EmitSpan(ctx context.Context, span SpanData) error
	ListTraces(agentID string, limit int) []TraceData
	GetTrace(id uuid.UUID) (*TraceData, []SpanData, bool)
}

type ctxKey string

const ctxAgentID ctxKey = "store_agent_id"

// WithAgentID attaches the owning agent's DB UUID to ctx (managed mode).
// In standalone mode this is never called and AgentIDFromContext returns the zero UUID.
func WithAgentID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxAgentID, id)
}

// AgentIDFromContext returns the agent UUID set by WithAgentID, or the zero UUID.
func AgentIDFromContext(ctx context.Context) uuid.UUID {
	if v, ok := ctx.Value(ctxAgentID).(uuid.UUID); ok {
		return v
	}
	return uuid.UUID{}
}
