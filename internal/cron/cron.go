// Package cron implements the persistent scheduled-job service (spec §4.11):
// a single dispatch timer walks due jobs in a JSON-backed store, runs them
// sequentially through a caller-supplied handler, retries failures with
// backoff, and appends each run to a per-job JSONL log.
package cron

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agentgate/internal/store"
)

// RetryConfig controls how a failed job run is retried before being marked errored.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
}

func (r RetryConfig) backoff(attempt int) time.Duration {
	d := r.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > r.MaxDelay {
			return r.MaxDelay
		}
	}
	return d
}

// Service is a file-backed cron scheduler: jobs.json holds job definitions,
// <jobID>.jsonl under the same directory logs each run.
type Service struct {
	path   string
	logDir string
	retry  RetryConfig

	mu      sync.Mutex
	jobs    map[string]*store.CronJob
	onJob   func(job *store.CronJob) (*store.CronJobResult, error)
	ticker  *time.Ticker
	stopCh  chan struct{}
	running bool
}

// NewService loads (or creates) the job store at path. retry may be nil to
// use DefaultRetryConfig; callers typically override it afterward via
// SetRetryConfig once config.json has been parsed.
func NewService(path string, retry *RetryConfig) *Service {
	cfg := DefaultRetryConfig()
	if retry != nil {
		cfg = *retry
	}
	s := &Service{
		path:   path,
		logDir: filepath.Dir(path),
		retry:  cfg,
		jobs:   make(map[string]*store.CronJob),
		stopCh: make(chan struct{}),
	}
	s.load()
	return s
}

func (s *Service) SetRetryConfig(cfg RetryConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retry = cfg
}

func (s *Service) SetOnJob(handler func(job *store.CronJob) (*store.CronJobResult, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onJob = handler
}

func (s *Service) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var jobs []*store.CronJob
	if err := json.Unmarshal(data, &jobs); err != nil {
		slog.Warn("cron: failed to parse jobs.json", "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
}

// saveLocked persists s.jobs to disk. Callers must hold s.mu.
func (s *Service) saveLocked() error {
	jobs := make([]*store.CronJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

func (s *Service) List() ([]*store.CronJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*store.CronJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (s *Service) Get(id string) (*store.CronJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("cron job %q not found", id)
	}
	return j, nil
}

func (s *Service) Create(job *store.CronJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if !gronx.IsValid(job.Schedule) {
		return fmt.Errorf("invalid cron schedule %q", job.Schedule)
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	job.Enabled = true

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return s.saveLocked()
}

func (s *Service) Update(job *store.CronJob) error {
	if job.Schedule != "" && !gronx.IsValid(job.Schedule) {
		return fmt.Errorf("invalid cron schedule %q", job.Schedule)
	}
	job.UpdatedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return fmt.Errorf("cron job %q not found", job.ID)
	}
	s.jobs[job.ID] = job
	return s.saveLocked()
}

func (s *Service) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return fmt.Errorf("cron job %q not found", id)
	}
	delete(s.jobs, id)
	return s.saveLocked()
}

// Start begins the single dispatch timer. It checks due jobs once per tick
// and dispatches them sequentially on the same goroutine (no overlap between
// ticks — a slow job delays the next tick's scan, never runs concurrently
// with itself).
func (s *Service) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.ticker = time.NewTicker(15 * time.Second)
	stopCh := s.stopCh
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-s.ticker.C:
				s.tick()
			case <-stopCh:
				return
			}
		}
	}()
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
	s.stopCh = make(chan struct{})
}

func (s *Service) tick() {
	now := time.Now()

	s.mu.Lock()
	due := make([]*store.CronJob, 0)
	for _, j := range s.jobs {
		if !j.Enabled {
			continue
		}
		if j.LastStatus == "running" && j.LastRunAt != nil && now.Sub(*j.LastRunAt) < 30*time.Minute {
			continue // stuck-job sweeper: skip, don't double-fire; a later pass reclaims it
		}
		// A job already run this same minute doesn't fire again even if IsDue
		// still matches on the next tick within that minute.
		if j.LastRunAt != nil && sameMinute(*j.LastRunAt, now) {
			continue
		}
		ok, err := gronx.IsDue(j.Schedule, now)
		if err != nil || !ok {
			continue
		}
		due = append(due, j)
	}
	handler := s.onJob
	s.mu.Unlock()

	if handler == nil {
		return
	}

	for _, j := range due {
		s.runJob(j, handler)
	}
}

func sameMinute(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Truncate(time.Minute).Equal(b.Truncate(time.Minute))
}

func (s *Service) runJob(job *store.CronJob, handler func(job *store.CronJob) (*store.CronJobResult, error)) {
	s.markRunning(job.ID)

	var lastErr error
	var result *store.CronJobResult
	retry := s.currentRetry()
	for attempt := 0; attempt <= retry.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(retry.backoff(attempt - 1))
		}
		result, lastErr = handler(job)
		if lastErr == nil {
			break
		}
		slog.Warn("cron: job run failed", "job", job.ID, "attempt", attempt, "error", lastErr)
	}

	s.recordResult(job.ID, result, lastErr)
	s.appendLog(job.ID, result, lastErr)
}

func (s *Service) currentRetry() RetryConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retry
}

func (s *Service) markRunning(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return
	}
	now := time.Now()
	j.LastRunAt = &now
	j.LastStatus = "running"
	_ = s.saveLocked()
}

func (s *Service) recordResult(id string, result *store.CronJobResult, runErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return
	}
	if runErr != nil {
		j.LastStatus = "error"
		j.LastError = runErr.Error()
	} else {
		j.LastStatus = "ok"
		j.LastError = ""
	}
	_ = s.saveLocked()
}

type logEntry struct {
	Time    time.Time `json:"time"`
	Status  string    `json:"status"`
	Content string    `json:"content,omitempty"`
	Error   string    `json:"error,omitempty"`
}

func (s *Service) appendLog(jobID string, result *store.CronJobResult, runErr error) {
	entry := logEntry{Time: time.Now()}
	if runErr != nil {
		entry.Status = "error"
		entry.Error = runErr.Error()
	} else {
		entry.Status = "ok"
		if result != nil {
			entry.Content = result.Content
		}
	}

	if err := os.MkdirAll(s.logDir, 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(filepath.Join(s.logDir, jobID+".jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	f.Write(append(data, '\n'))
}
