// Package tracing carries per-run trace/span identifiers through context and
// buffers span records for a trace collector to flush to the tracing store.
package tracing

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agentgate/internal/store"
)

type ctxKey int

const (
	keyTraceID ctxKey = iota
	keyCollector
	keyParentSpanID
	keyAnnounceParentSpanID
	keyDelegateParentTraceID
)

func WithTraceID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, keyTraceID, id)
}

func TraceIDFromContext(ctx context.Context) uuid.UUID {
	if v, ok := ctx.Value(keyTraceID).(uuid.UUID); ok {
		return v
	}
	return uuid.UUID{}
}

func WithParentSpanID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, keyParentSpanID, id)
}

func ParentSpanIDFromContext(ctx context.Context) uuid.UUID {
	if v, ok := ctx.Value(keyParentSpanID).(uuid.UUID); ok {
		return v
	}
	return uuid.UUID{}
}

// WithAnnounceParentSpanID marks the span that a delegated sub-agent run should
// report progress updates against (distinct from its own execution parent).
func WithAnnounceParentSpanID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, keyAnnounceParentSpanID, id)
}

func AnnounceParentSpanIDFromContext(ctx context.Context) uuid.UUID {
	if v, ok := ctx.Value(keyAnnounceParentSpanID).(uuid.UUID); ok {
		return v
	}
	return uuid.UUID{}
}

// WithDelegateParentTraceID marks the root trace a delegated sub-agent run was
// spawned from, so its own trace can record lineage.
func WithDelegateParentTraceID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, keyDelegateParentTraceID, id)
}

func DelegateParentTraceIDFromContext(ctx context.Context) uuid.UUID {
	if v, ok := ctx.Value(keyDelegateParentTraceID).(uuid.UUID); ok {
		return v
	}
	return uuid.UUID{}
}

// Collector buffers spans for one trace and flushes the trace record and its
// spans to a TracingStore. A nil *Collector is valid and silently drops spans.
type Collector struct {
	store   store.TracingStore
	verbose bool

	mu    sync.Mutex
	spans []store.SpanData
}

// NewCollector returns a collector that writes through to st. verbose governs
// whether callers should attach full input/output previews to spans (set
// false to keep previews truncated/redacted in production).
func NewCollector(st store.TracingStore, verbose bool) *Collector {
	return &Collector{store: st, verbose: verbose}
}

func (c *Collector) Verbose() bool {
	if c == nil {
		return false
	}
	return c.verbose
}

// EmitSpan buffers span and, if a backing store is attached, persists it
// immediately. Safe to call on a nil Collector.
func (c *Collector) EmitSpan(span store.SpanData) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.spans = append(c.spans, span)
	c.mu.Unlock()

	if c.store != nil {
		_ = c.store.EmitSpan(context.Background(), span)
	}
}

// CreateTrace persists the trace root record. Safe to call on a nil Collector
// (no-op, returns nil).
func (c *Collector) CreateTrace(ctx context.Context, trace *store.TraceData) error {
	if c == nil || c.store == nil {
		return nil
	}
	return c.store.CreateTrace(ctx, trace)
}

// Spans returns the spans buffered so far, for callers that want to inspect
// or test trace output without a backing store.
func (c *Collector) Spans() []store.SpanData {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]store.SpanData, len(c.spans))
	copy(out, c.spans)
	return out
}

func WithCollector(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, keyCollector, c)
}

// CollectorFromContext returns the collector attached to ctx, or nil if none.
// Methods on a nil *Collector are safe no-ops.
func CollectorFromContext(ctx context.Context) *Collector {
	if v, ok := ctx.Value(keyCollector).(*Collector); ok {
		return v
	}
	return nil
}
