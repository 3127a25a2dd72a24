package bus

import (
	"sync"
	"time"
)

// InboundDebouncer merges rapid-fire inbound messages from the same sender
// into one flush, so a burst of quick follow-up texts reaches the agent as a
// single turn instead of N overlapping runs.
type InboundDebouncer struct {
	delay time.Duration
	flush func(InboundMessage)

	mu      sync.Mutex
	pending map[string]*pendingGroup
}

type pendingGroup struct {
	merged InboundMessage
	timer  *time.Timer
}

func debounceKey(msg InboundMessage) string {
	return msg.Channel + "|" + msg.ChatID + "|" + msg.SenderID
}

// NewInboundDebouncer returns a debouncer that calls flush at most once per
// key every delay, with Content concatenated across merged messages.
func NewInboundDebouncer(delay time.Duration, flush func(InboundMessage)) *InboundDebouncer {
	return &InboundDebouncer{
		delay:   delay,
		flush:   flush,
		pending: make(map[string]*pendingGroup),
	}
}

// Push queues msg, merging it into any in-flight group for the same sender/chat.
func (d *InboundDebouncer) Push(msg InboundMessage) {
	key := debounceKey(msg)

	d.mu.Lock()
	defer d.mu.Unlock()

	if group, ok := d.pending[key]; ok {
		group.timer.Stop()
		if group.merged.Content != "" && msg.Content != "" {
			group.merged.Content += "\n" + msg.Content
		} else if msg.Content != "" {
			group.merged.Content = msg.Content
		}
		group.merged.Media = append(group.merged.Media, msg.Media...)
		group.merged.Metadata = msg.Metadata // latest metadata wins (reply target etc.)
		group.timer = time.AfterFunc(d.delay, func() { d.fire(key) })
		return
	}

	group := &pendingGroup{merged: msg}
	group.timer = time.AfterFunc(d.delay, func() { d.fire(key) })
	d.pending[key] = group
}

func (d *InboundDebouncer) fire(key string) {
	d.mu.Lock()
	group, ok := d.pending[key]
	if ok {
		delete(d.pending, key)
	}
	d.mu.Unlock()

	if ok {
		d.flush(group.merged)
	}
}

// Stop cancels all pending timers without flushing them.
func (d *InboundDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, group := range d.pending {
		group.timer.Stop()
		delete(d.pending, key)
	}
}
