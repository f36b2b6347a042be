// Package cron fires scheduled objectives into the task scheduler.
//
// Jobs are persisted as JSON:
//
//	{ "version": 1, "jobs": [ { "id":"…", "name":"…", "enabled":true,
//	    "schedule":{"kind":"every","everyMs":…},
//	    "payload":{"kind":"objective","objective":"…","fingerprint":"…"},
//	    "state":{"nextRunAtMs":…,"lastRunAtMs":…,"lastStatus":"ok"},
//	    "createdAtMs":…, "updatedAtMs":…, "deleteAfterRun":false } ] }
package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	robfigcron "github.com/robfig/cron/v3"
)

// Schedule kinds.
const (
	KindEvery = "every"
	KindCron  = "cron"
	KindAt    = "at"
)

// PayloadObjective is the only payload kind: enqueue an objective as a task.
const PayloadObjective = "objective"

// --------------------------------------------------------------------------
// Data types
// --------------------------------------------------------------------------

type Schedule struct {
	Kind    string  `json:"kind"`              // "every" | "cron" | "at"
	AtMs    *int64  `json:"atMs,omitempty"`    // one-time
	EveryMs *int64  `json:"everyMs,omitempty"` // interval
	Expr    *string `json:"expr,omitempty"`    // cron expression
	TZ      *string `json:"tz,omitempty"`      // IANA timezone
}

type Payload struct {
	Kind        string   `json:"kind"`
	Objective   string   `json:"objective"`
	Fingerprint string   `json:"fingerprint,omitempty"`
	Pages       []string `json:"pages,omitempty"`
}

type JobState struct {
	NextRunAtMs *int64  `json:"nextRunAtMs,omitempty"`
	LastRunAtMs *int64  `json:"lastRunAtMs,omitempty"`
	LastStatus  *string `json:"lastStatus,omitempty"`
	LastError   *string `json:"lastError,omitempty"`
}

type Job struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	Schedule       Schedule `json:"schedule"`
	Payload        Payload  `json:"payload"`
	State          JobState `json:"state"`
	CreatedAtMs    int64    `json:"createdAtMs"`
	UpdatedAtMs    int64    `json:"updatedAtMs"`
	DeleteAfterRun bool     `json:"deleteAfterRun"`
}

// JobSpec describes a job to add.
type JobSpec struct {
	Name           string
	Objective      string
	Fingerprint    string
	Pages          []string
	Kind           string
	EveryMs        int64
	Expr           string
	TZ             string
	AtMs           int64
	DeleteAfterRun bool
}

// JobSummary is the short form used by chat commands.
type JobSummary struct {
	ID   string
	Name string
	Kind string
}

type store struct {
	Version int   `json:"version"`
	Jobs    []Job `json:"jobs"`
}

// --------------------------------------------------------------------------
// Service
// --------------------------------------------------------------------------

// OnJobFunc is called when a job fires.
type OnJobFunc func(ctx context.Context, job Job) error

// Service manages scheduled jobs.
type Service struct {
	storePath string
	onJob     OnJobFunc
	logger    *slog.Logger

	mu     sync.Mutex
	store  store
	loaded bool
	runCtx context.Context // set while Start is running

	// Active timers / cron entries keyed by job ID.
	timers    map[string]*time.Timer
	robfig    *robfigcron.Cron
	robfigIDs map[string]robfigcron.EntryID
}

// NewService creates a Service persisting to storePath
// (e.g. ~/.companion/cron/jobs.json).
func NewService(storePath string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		storePath: storePath,
		logger:    logger,
		timers:    make(map[string]*time.Timer),
		robfig:    robfigcron.New(),
		robfigIDs: make(map[string]robfigcron.EntryID),
	}
}

// OnJob registers the callback executed when a job fires.
// Must be set before Start().
func (s *Service) OnJob(fn OnJobFunc) { s.onJob = fn }

// Start loads jobs from disk, recomputes next-run times and arms all
// timers. Blocks until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if err := s.loadLocked(); err != nil {
		s.logger.Warn("cron: load failed, starting empty", "err", err)
	}
	s.runCtx = ctx
	s.recomputeNextRunsLocked()
	s.saveLocked()
	s.armAllLocked(ctx)
	n := len(s.store.Jobs)
	s.mu.Unlock()

	s.robfig.Start()
	s.logger.Info("cron: started", "jobs", n)

	<-ctx.Done()

	<-s.robfig.Stop().Done()
	s.mu.Lock()
	for id := range s.timers {
		s.cancelTimerLocked(id)
	}
	s.runCtx = nil
	s.mu.Unlock()
	s.logger.Info("cron: stopped")
	return ctx.Err()
}

// AddJob validates spec, saves the job and arms it when the service is
// running.
func (s *Service) AddJob(spec JobSpec) (Job, error) {
	if spec.Objective == "" {
		return Job{}, fmt.Errorf("objective is required")
	}

	sched := Schedule{Kind: spec.Kind}
	switch spec.Kind {
	case KindEvery:
		if spec.EveryMs <= 0 {
			return Job{}, fmt.Errorf("every: interval must be positive")
		}
		sched.EveryMs = &spec.EveryMs
	case KindCron:
		if _, err := parseExpr(spec.Expr); err != nil {
			return Job{}, fmt.Errorf("cron expression %q: %w", spec.Expr, err)
		}
		sched.Expr = &spec.Expr
		if spec.TZ != "" {
			if _, err := time.LoadLocation(spec.TZ); err != nil {
				return Job{}, fmt.Errorf("timezone %q: %w", spec.TZ, err)
			}
			sched.TZ = &spec.TZ
		}
	case KindAt:
		sched.AtMs = &spec.AtMs
	default:
		return Job{}, fmt.Errorf("unknown schedule kind %q", spec.Kind)
	}

	now := nowMs()
	job := Job{
		ID:       shortID(),
		Name:     spec.Name,
		Enabled:  true,
		Schedule: sched,
		Payload: Payload{
			Kind:        PayloadObjective,
			Objective:   spec.Objective,
			Fingerprint: spec.Fingerprint,
			Pages:       spec.Pages,
		},
		State:          JobState{NextRunAtMs: computeNextRun(sched, now)},
		CreatedAtMs:    now,
		UpdatedAtMs:    now,
		DeleteAfterRun: spec.DeleteAfterRun,
	}

	s.mu.Lock()
	if err := s.loadLocked(); err != nil {
		s.logger.Warn("cron: load failed", "err", err)
	}
	s.store.Jobs = append(s.store.Jobs, job)
	s.saveLocked()
	if s.runCtx != nil {
		s.armJobLocked(s.runCtx, job)
	}
	s.mu.Unlock()

	s.logger.Info("cron: added job", "name", job.Name, "id", job.ID, "kind", job.Schedule.Kind)
	return job, nil
}

// ListJobs returns summaries of all enabled jobs.
func (s *Service) ListJobs() []JobSummary {
	var out []JobSummary
	for _, j := range s.ListAllJobs(false) {
		out = append(out, JobSummary{ID: j.ID, Name: j.Name, Kind: j.Schedule.Kind})
	}
	return out
}

// RemoveJob removes a job by ID and returns true if found.
func (s *Service) RemoveJob(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.loadLocked()
	if !s.deleteLocked(id) {
		return false
	}
	s.cancelTimerLocked(id)
	s.saveLocked()
	return true
}

// ListAllJobs returns all jobs sorted by next run; includeDisabled controls
// visibility.
func (s *Service) ListAllJobs(includeDisabled bool) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.loadLocked()
	var jobs []Job
	for _, j := range s.store.Jobs {
		if includeDisabled || j.Enabled {
			jobs = append(jobs, j)
		}
	}
	sort.Slice(jobs, func(i, k int) bool {
		return nextRunOrMax(jobs[i]) < nextRunOrMax(jobs[k])
	})
	return jobs
}

func nextRunOrMax(j Job) int64 {
	if j.State.NextRunAtMs != nil {
		return *j.State.NextRunAtMs
	}
	return int64(^uint64(0) >> 1)
}

// EnableJob enables or disables a job.
func (s *Service) EnableJob(id string, enabled bool) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.loadLocked()
	for i := range s.store.Jobs {
		if s.store.Jobs[i].ID != id {
			continue
		}
		s.store.Jobs[i].Enabled = enabled
		s.store.Jobs[i].UpdatedAtMs = nowMs()
		if enabled {
			s.store.Jobs[i].State.NextRunAtMs = computeNextRun(s.store.Jobs[i].Schedule, nowMs())
			if s.runCtx != nil {
				s.armJobLocked(s.runCtx, s.store.Jobs[i])
			}
		} else {
			s.store.Jobs[i].State.NextRunAtMs = nil
			s.cancelTimerLocked(id)
		}
		s.saveLocked()
		return s.store.Jobs[i], true
	}
	return Job{}, false
}

// RunJob executes a job now (force=true ignores the disabled flag).
func (s *Service) RunJob(ctx context.Context, id string, force bool) bool {
	s.mu.Lock()
	_ = s.loadLocked()
	var job *Job
	for i := range s.store.Jobs {
		if s.store.Jobs[i].ID == id {
			job = &s.store.Jobs[i]
			break
		}
	}
	if job == nil || (!force && !job.Enabled) {
		s.mu.Unlock()
		return false
	}
	jobCopy := *job
	s.mu.Unlock()

	s.executeJob(ctx, jobCopy)
	return true
}

// --------------------------------------------------------------------------
// Internal scheduling logic
// --------------------------------------------------------------------------

func (s *Service) recomputeNextRunsLocked() {
	now := nowMs()
	for i := range s.store.Jobs {
		if s.store.Jobs[i].Enabled {
			s.store.Jobs[i].State.NextRunAtMs = computeNextRun(s.store.Jobs[i].Schedule, now)
		}
	}
}

func (s *Service) armAllLocked(ctx context.Context) {
	for _, j := range s.store.Jobs {
		if j.Enabled {
			s.armJobLocked(ctx, j)
		}
	}
}

func (s *Service) armJobLocked(ctx context.Context, job Job) {
	s.cancelTimerLocked(job.ID)

	switch job.Schedule.Kind {
	case KindEvery:
		if job.Schedule.EveryMs == nil || *job.Schedule.EveryMs <= 0 {
			return
		}
		d := time.Duration(*job.Schedule.EveryMs) * time.Millisecond
		s.timers[job.ID] = time.AfterFunc(d, func() {
			s.executeJob(ctx, job)
			s.mu.Lock()
			defer s.mu.Unlock()
			if ctx.Err() != nil {
				return
			}
			// Re-arm from the stored copy in case it changed.
			for _, j := range s.store.Jobs {
				if j.ID == job.ID && j.Enabled {
					s.armJobLocked(ctx, j)
					break
				}
			}
		})

	case KindAt:
		if job.Schedule.AtMs == nil {
			return
		}
		delay := time.Until(time.UnixMilli(*job.Schedule.AtMs))
		if delay < 0 {
			return
		}
		s.timers[job.ID] = time.AfterFunc(delay, func() { s.executeJob(ctx, job) })

	case KindCron:
		if job.Schedule.Expr == nil {
			return
		}
		sched, err := parseExpr(*job.Schedule.Expr)
		if err != nil {
			s.logger.Warn("cron: invalid cron expression", "job", job.ID, "expr", *job.Schedule.Expr, "err", err)
			return
		}
		jobCopy := job
		s.robfigIDs[job.ID] = s.robfig.Schedule(
			withLocation(sched, scheduleLocation(job.Schedule)),
			robfigcron.FuncJob(func() { s.executeJob(ctx, jobCopy) }),
		)
	}
}

func (s *Service) cancelTimerLocked(id string) {
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	if eid, ok := s.robfigIDs[id]; ok {
		s.robfig.Remove(eid)
		delete(s.robfigIDs, id)
	}
}

func (s *Service) deleteLocked(id string) bool {
	before := len(s.store.Jobs)
	filtered := s.store.Jobs[:0]
	for _, j := range s.store.Jobs {
		if j.ID != id {
			filtered = append(filtered, j)
		}
	}
	s.store.Jobs = filtered
	return len(filtered) < before
}

func (s *Service) executeJob(ctx context.Context, job Job) {
	startMs := nowMs()
	s.logger.Info("cron: executing job", "name", job.Name, "id", job.ID)

	lastStatus := "ok"
	var lastErr *string

	if s.onJob != nil {
		if err := s.onJob(ctx, job); err != nil {
			lastStatus = "error"
			e := err.Error()
			lastErr = &e
			s.logger.Error("cron: job failed", "name", job.Name, "err", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.store.Jobs {
		if s.store.Jobs[i].ID != job.ID {
			continue
		}
		now := nowMs()
		s.store.Jobs[i].State.LastRunAtMs = &startMs
		s.store.Jobs[i].State.LastStatus = &lastStatus
		s.store.Jobs[i].State.LastError = lastErr
		s.store.Jobs[i].UpdatedAtMs = now

		switch {
		case job.Schedule.Kind == KindAt && job.DeleteAfterRun:
			s.deleteLocked(job.ID)
			delete(s.timers, job.ID)
		case job.Schedule.Kind == KindAt:
			s.store.Jobs[i].Enabled = false
			s.store.Jobs[i].State.NextRunAtMs = nil
		default:
			s.store.Jobs[i].State.NextRunAtMs = computeNextRun(job.Schedule, now)
		}
		break
	}
	s.saveLocked()
}

// --------------------------------------------------------------------------
// Persistence
// --------------------------------------------------------------------------

func (s *Service) loadLocked() error {
	if s.loaded {
		return nil
	}
	s.loaded = true
	data, err := os.ReadFile(s.storePath)
	if os.IsNotExist(err) {
		s.store = store{Version: 1}
		return nil
	}
	if err != nil {
		return err
	}
	var st store
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	if st.Version == 0 {
		st.Version = 1
	}
	s.store = st
	return nil
}

func (s *Service) saveLocked() {
	if s.store.Version == 0 {
		s.store.Version = 1
	}
	if err := os.MkdirAll(filepath.Dir(s.storePath), 0o755); err != nil {
		s.logger.Warn("cron: mkdir failed", "err", err)
		return
	}
	data, err := json.MarshalIndent(s.store, "", "  ")
	if err != nil {
		s.logger.Warn("cron: marshal failed", "err", err)
		return
	}
	if err := os.WriteFile(s.storePath, data, 0o644); err != nil {
		s.logger.Warn("cron: write failed", "err", err)
	}
}

// --------------------------------------------------------------------------
// Utility
// --------------------------------------------------------------------------

func nowMs() int64 { return time.Now().UnixMilli() }

func shortID() string { return uuid.NewString()[:8] }

var exprParser = robfigcron.NewParser(
	robfigcron.Minute | robfigcron.Hour | robfigcron.Dom | robfigcron.Month | robfigcron.Dow,
)

func parseExpr(expr string) (robfigcron.Schedule, error) {
	return exprParser.Parse(expr)
}

func scheduleLocation(sched Schedule) *time.Location {
	if sched.TZ != nil && *sched.TZ != "" {
		if l, err := time.LoadLocation(*sched.TZ); err == nil {
			return l
		}
	}
	return time.Local
}

func computeNextRun(sched Schedule, nowMs int64) *int64 {
	switch sched.Kind {
	case KindAt:
		if sched.AtMs != nil && *sched.AtMs > nowMs {
			v := *sched.AtMs
			return &v
		}
	case KindEvery:
		if sched.EveryMs != nil && *sched.EveryMs > 0 {
			v := nowMs + *sched.EveryMs
			return &v
		}
	case KindCron:
		if sched.Expr == nil {
			return nil
		}
		parsed, err := parseExpr(*sched.Expr)
		if err != nil {
			return nil
		}
		v := parsed.Next(time.UnixMilli(nowMs).In(scheduleLocation(sched))).UnixMilli()
		return &v
	}
	return nil
}

// locSchedule evaluates a Schedule in a fixed location.
type locSchedule struct {
	inner robfigcron.Schedule
	loc   *time.Location
}

func (l locSchedule) Next(t time.Time) time.Time {
	return l.inner.Next(t.In(l.loc))
}

func withLocation(s robfigcron.Schedule, loc *time.Location) robfigcron.Schedule {
	return locSchedule{inner: s, loc: loc}
}
