// Package scheduler fans agent runs out across named lanes, each with a
// global concurrency cap, while keeping per-session execution FIFO-ordered
// with its own (usually 1) concurrency limit — so a user's messages are
// always answered in order and a slow run can't be raced by a faster one.
package scheduler

import (
	"context"
	"sync"

	"github.com/nextlevelbuilder/agentgate/internal/agent"
)

// Lane names used throughout the gateway.
const (
	LaneMain     = "main"
	LaneCron     = "cron"
	LaneSubagent = "subagent"
	LaneDelegate = "delegate"
)

// Lane configures one named work queue's global concurrency cap.
type Lane struct {
	Name                string
	MaxGlobalConcurrent int
}

// DefaultLanes returns the lane set wired by the gateway entrypoint.
func DefaultLanes() []Lane {
	return []Lane{
		{Name: LaneMain, MaxGlobalConcurrent: 8},
		{Name: LaneCron, MaxGlobalConcurrent: 2},
		{Name: LaneSubagent, MaxGlobalConcurrent: 4},
		{Name: LaneDelegate, MaxGlobalConcurrent: 4},
	}
}

// QueueConfig holds defaults applied when a caller doesn't set ScheduleOpts.
type QueueConfig struct {
	DefaultMaxConcurrentPerSession int
}

func DefaultQueueConfig() QueueConfig {
	return QueueConfig{DefaultMaxConcurrentPerSession: 1}
}

// ScheduleOpts overrides per-session concurrency for one Schedule call.
type ScheduleOpts struct {
	MaxConcurrent int
}

// RunFunc executes one agent turn. Implementations resolve the target agent
// loop from req (typically from the session key's embedded agent ID).
type RunFunc func(ctx context.Context, req agent.RunRequest) (*agent.RunResult, error)

// Outcome is delivered on a Schedule call's return channel once the run finishes.
type Outcome struct {
	Err    error
	Result *agent.RunResult
}

// TokenEstimateFunc returns (estimated prompt tokens, context window size)
// for a session, used to throttle per-session concurrency as it nears the
// compaction threshold.
type TokenEstimateFunc func(sessionKey string) (tokens int, contextWindow int)

type job struct {
	lane   string
	req    agent.RunRequest
	outCh  chan Outcome
	cancel context.CancelFunc
	ctx    context.Context
}

type sessionQueue struct {
	mu            sync.Mutex
	queue         []*job
	active        []*job
	maxConcurrent int
}

// Scheduler is the lane-based dispatcher described above.
type Scheduler struct {
	cfg   QueueConfig
	run   RunFunc
	sems  map[string]chan struct{} // lane name → global concurrency semaphore

	mu       sync.Mutex
	sessions map[string]*sessionQueue

	tokenEstFn TokenEstimateFunc

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewScheduler builds a Scheduler with the given lanes, queue defaults, and
// run function.
func NewScheduler(lanes []Lane, cfg QueueConfig, run RunFunc) *Scheduler {
	s := &Scheduler{
		cfg:      cfg,
		run:      run,
		sems:     make(map[string]chan struct{}),
		sessions: make(map[string]*sessionQueue),
		stopCh:   make(chan struct{}),
	}
	for _, l := range lanes {
		cap := l.MaxGlobalConcurrent
		if cap <= 0 {
			cap = 1
		}
		s.sems[l.Name] = make(chan struct{}, cap)
	}
	return s
}

// SetTokenEstimateFunc wires an adaptive-throttle hook; when set, a session
// whose estimated token usage is within 10% of its context window is capped
// to concurrency 1 regardless of the caller's requested MaxConcurrent.
func (s *Scheduler) SetTokenEstimateFunc(fn TokenEstimateFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenEstFn = fn
}

// Schedule queues req on lane using the default per-session concurrency.
func (s *Scheduler) Schedule(ctx context.Context, lane string, req agent.RunRequest) <-chan Outcome {
	return s.ScheduleWithOpts(ctx, lane, req, ScheduleOpts{MaxConcurrent: s.cfg.DefaultMaxConcurrentPerSession})
}

// ScheduleWithOpts queues req on lane with an explicit per-session concurrency cap.
func (s *Scheduler) ScheduleWithOpts(ctx context.Context, lane string, req agent.RunRequest, opts ScheduleOpts) <-chan Outcome {
	outCh := make(chan Outcome, 1)

	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	s.mu.Lock()
	if fn := s.tokenEstFn; fn != nil {
		if tokens, window := fn(req.SessionKey); window > 0 && tokens > 0 {
			if float64(tokens)/float64(window) >= 0.9 {
				maxConcurrent = 1
			}
		}
	}
	sq, ok := s.sessions[req.SessionKey]
	if !ok {
		sq = &sessionQueue{maxConcurrent: maxConcurrent}
		s.sessions[req.SessionKey] = sq
	}
	s.mu.Unlock()

	jobCtx, cancel := context.WithCancel(ctx)
	j := &job{lane: lane, req: req, outCh: outCh, cancel: cancel, ctx: jobCtx}

	sq.mu.Lock()
	sq.maxConcurrent = maxConcurrent
	sq.queue = append(sq.queue, j)
	sq.mu.Unlock()

	s.dispatch(req.SessionKey, sq)
	return outCh
}

// dispatch pulls as many queued jobs as the session's concurrency allows and
// runs each in its own goroutine, gated additionally by the lane's global semaphore.
func (s *Scheduler) dispatch(sessionKey string, sq *sessionQueue) {
	for {
		sq.mu.Lock()
		if len(sq.active) >= sq.maxConcurrent || len(sq.queue) == 0 {
			sq.mu.Unlock()
			return
		}
		j := sq.queue[0]
		sq.queue = sq.queue[1:]
		sq.active = append(sq.active, j)
		sq.mu.Unlock()

		go s.execute(sessionKey, sq, j)
	}
}

func (s *Scheduler) execute(sessionKey string, sq *sessionQueue, j *job) {
	defer func() {
		sq.mu.Lock()
		for i, a := range sq.active {
			if a == j {
				sq.active = append(sq.active[:i], sq.active[i+1:]...)
				break
			}
		}
		sq.mu.Unlock()
		s.dispatch(sessionKey, sq)
	}()

	sem := s.sems[j.lane]
	if sem == nil {
		sem = make(chan struct{}, 4)
		s.mu.Lock()
		s.sems[j.lane] = sem
		s.mu.Unlock()
	}

	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	case <-j.ctx.Done():
		j.outCh <- Outcome{Err: j.ctx.Err()}
		return
	}

	result, err := s.run(j.ctx, j.req)
	j.outCh <- Outcome{Err: err, Result: result}
}

// CancelSession cancels every queued and active run for sessionKey. Returns
// true if anything was cancelled.
func (s *Scheduler) CancelSession(sessionKey string) bool {
	s.mu.Lock()
	sq, ok := s.sessions[sessionKey]
	s.mu.Unlock()
	if !ok {
		return false
	}

	sq.mu.Lock()
	defer sq.mu.Unlock()
	cancelled := false
	for _, j := range sq.active {
		j.cancel()
		cancelled = true
	}
	for _, j := range sq.queue {
		j.cancel()
		j.outCh <- Outcome{Err: context.Canceled}
		cancelled = true
	}
	sq.queue = nil
	return cancelled
}

// CancelOneSession cancels the oldest active run for sessionKey (or, absent
// an active run, the oldest queued one). Used by /stop.
func (s *Scheduler) CancelOneSession(sessionKey string) bool {
	s.mu.Lock()
	sq, ok := s.sessions[sessionKey]
	s.mu.Unlock()
	if !ok {
		return false
	}

	sq.mu.Lock()
	defer sq.mu.Unlock()
	if len(sq.active) > 0 {
		sq.active[0].cancel()
		return true
	}
	if len(sq.queue) > 0 {
		j := sq.queue[0]
		sq.queue = sq.queue[1:]
		j.cancel()
		j.outCh <- Outcome{Err: context.Canceled}
		return true
	}
	return false
}

// Stop releases scheduler resources. Active runs are left to finish; their
// contexts are not cancelled by Stop.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
