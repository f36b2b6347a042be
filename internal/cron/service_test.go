package cron

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// newTestService creates a Service backed by a temp file.
func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")
	return NewService(path, nil), path
}

// startService starts the service in the background and returns a stop func
// that waits for Start to return.
func startService(t *testing.T, s *Service) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Start(ctx)
		close(done)
	}()
	// Give Start() a moment to arm timers.
	time.Sleep(20 * time.Millisecond)
	return func() {
		cancel()
		<-done
	}
}

func every(name string, ms int64) JobSpec {
	return JobSpec{Name: name, Objective: "check " + name, Kind: KindEvery, EveryMs: ms}
}

// ─── AddJob ────────────────────────────────────────────────────────────────

func TestAddJob_Every(t *testing.T) {
	s, _ := newTestService(t)
	job, err := s.AddJob(every("tick", 5000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected non-empty id")
	}
	jobs := s.ListAllJobs(false)
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if jobs[0].Schedule.EveryMs == nil || *jobs[0].Schedule.EveryMs != 5000 {
		t.Errorf("unexpected everyMs: %v", jobs[0].Schedule.EveryMs)
	}
	if jobs[0].Payload.Kind != PayloadObjective || jobs[0].Payload.Objective != "check tick" {
		t.Errorf("unexpected payload: %+v", jobs[0].Payload)
	}
}

func TestAddJob_At(t *testing.T) {
	s, _ := newTestService(t)
	futureMs := time.Now().Add(time.Hour).UnixMilli()
	job, err := s.AddJob(JobSpec{Name: "once", Objective: "do it", Kind: KindAt, AtMs: futureMs, DeleteAfterRun: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !job.DeleteAfterRun {
		t.Error("expected deleteAfterRun=true")
	}
	if job.State.NextRunAtMs == nil || *job.State.NextRunAtMs != futureMs {
		t.Errorf("unexpected next run: %v", job.State.NextRunAtMs)
	}
}

func TestAddJob_Cron(t *testing.T) {
	s, _ := newTestService(t)
	job, err := s.AddJob(JobSpec{Name: "daily", Objective: "report", Fingerprint: "daily-report", Kind: KindCron, Expr: "0 9 * * *", TZ: "UTC"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Payload.Fingerprint != "daily-report" {
		t.Errorf("unexpected fingerprint: %q", job.Payload.Fingerprint)
	}
	if job.Schedule.TZ == nil || *job.Schedule.TZ != "UTC" {
		t.Errorf("unexpected tz: %v", job.Schedule.TZ)
	}
}

func TestAddJob_Rejects(t *testing.T) {
	s, _ := newTestService(t)
	cases := map[string]JobSpec{
		"unknown kind":  {Objective: "x", Kind: "weekly"},
		"bad expr":      {Objective: "x", Kind: KindCron, Expr: "not a cron"},
		"bad tz":        {Objective: "x", Kind: KindCron, Expr: "0 9 * * *", TZ: "Mars/Olympus"},
		"no objective":  {Kind: KindEvery, EveryMs: 1000},
		"zero interval": {Objective: "x", Kind: KindEvery},
	}
	for name, spec := range cases {
		if _, err := s.AddJob(spec); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if n := len(s.ListAllJobs(true)); n != 0 {
		t.Fatalf("expected nothing stored, got %d", n)
	}
}

// ─── RemoveJob / EnableJob ────────────────────────────────────────────────

func TestRemoveJob(t *testing.T) {
	s, _ := newTestService(t)
	job, _ := s.AddJob(every("job", 1000))
	if !s.RemoveJob(job.ID) {
		t.Fatal("expected RemoveJob to return true")
	}
	if len(s.ListAllJobs(true)) != 0 {
		t.Error("expected empty job list after remove")
	}
	if s.RemoveJob("nonexistent") {
		t.Fatal("expected RemoveJob to return false for unknown id")
	}
}

func TestListJobs_OnlyEnabled(t *testing.T) {
	s, _ := newTestService(t)
	s.AddJob(every("a", 1000))
	b, _ := s.AddJob(every("b", 2000))
	s.EnableJob(b.ID, false)

	summaries := s.ListJobs()
	if len(summaries) != 1 || summaries[0].Name != "a" {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}
}

func TestEnableJob_ToggleDisableEnable(t *testing.T) {
	s, _ := newTestService(t)
	added, _ := s.AddJob(every("j", 1000))

	job, ok := s.EnableJob(added.ID, false)
	if !ok || job.Enabled || job.State.NextRunAtMs != nil {
		t.Fatalf("expected disabled job without next run: %+v", job)
	}

	job, ok = s.EnableJob(added.ID, true)
	if !ok || !job.Enabled || job.State.NextRunAtMs == nil {
		t.Fatalf("expected re-enabled job: %+v", job)
	}

	if _, ok := s.EnableJob("ghost", true); ok {
		t.Fatal("expected ok=false for unknown id")
	}
}

func TestListAllJobs_SortedByNextRun(t *testing.T) {
	s, _ := newTestService(t)
	s.AddJob(every("slow", 60000))
	s.AddJob(every("fast", 1000))

	jobs := s.ListAllJobs(false)
	if len(jobs) != 2 || jobs[0].Name != "fast" {
		t.Fatalf("jobs not sorted by next run: %+v", jobs)
	}
}

// ─── Persistence ───────────────────────────────────────────────────────────

func TestPersistence_RoundTrip(t *testing.T) {
	s, path := newTestService(t)
	job, _ := s.AddJob(every("persist", 5000))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read jobs.json: %v", err)
	}
	var st store
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if st.Version != 1 || len(st.Jobs) != 1 || st.Jobs[0].ID != job.ID {
		t.Fatalf("unexpected store: %+v", st)
	}

	reloaded := NewService(path, nil)
	if got := reloaded.ListAllJobs(true); len(got) != 1 || got[0].Name != "persist" {
		t.Fatalf("unexpected reload: %+v", got)
	}
}

func TestPersistence_MissingFile(t *testing.T) {
	s, _ := newTestService(t)
	if jobs := s.ListAllJobs(false); len(jobs) != 0 {
		t.Fatalf("expected 0 jobs from missing file, got %d", len(jobs))
	}
}

// ─── computeNextRun ────────────────────────────────────────────────────────

func TestComputeNextRun(t *testing.T) {
	now := time.Now().UnixMilli()
	everyMs := int64(5000)
	zero := int64(0)
	future := time.Now().Add(time.Hour).UnixMilli()
	past := time.Now().Add(-time.Hour).UnixMilli()
	expr := "0 12 * * *"
	bad := "not a cron"
	utc := "UTC"

	if got := computeNextRun(Schedule{Kind: KindEvery, EveryMs: &everyMs}, now); got == nil || *got != now+everyMs {
		t.Errorf("every: got %v", got)
	}
	if got := computeNextRun(Schedule{Kind: KindEvery, EveryMs: &zero}, now); got != nil {
		t.Errorf("zero interval: expected nil")
	}
	if got := computeNextRun(Schedule{Kind: KindAt, AtMs: &future}, now); got == nil || *got != future {
		t.Errorf("at future: got %v", got)
	}
	if got := computeNextRun(Schedule{Kind: KindAt, AtMs: &past}, now); got != nil {
		t.Errorf("at past: expected nil")
	}
	if got := computeNextRun(Schedule{Kind: KindCron, Expr: &expr, TZ: &utc}, now); got == nil || *got <= now {
		t.Errorf("cron: expected future run, got %v", got)
	}
	if got := computeNextRun(Schedule{Kind: KindCron, Expr: &bad}, now); got != nil {
		t.Errorf("invalid cron: expected nil")
	}
}

// ─── Job execution ─────────────────────────────────────────────────────────

func TestRunJob_CallsOnJobAndUpdatesState(t *testing.T) {
	s, _ := newTestService(t)
	var got Job
	s.OnJob(func(_ context.Context, job Job) error {
		got = job
		return nil
	})

	job, _ := s.AddJob(every("run", 10000))
	if !s.RunJob(context.Background(), job.ID, true) {
		t.Fatal("RunJob returned false")
	}
	if got.Payload.Objective != "check run" {
		t.Fatalf("unexpected job passed to callback: %+v", got)
	}

	jobs := s.ListAllJobs(false)
	if jobs[0].State.LastRunAtMs == nil {
		t.Error("expected LastRunAtMs to be set after execution")
	}
	if jobs[0].State.LastStatus == nil || *jobs[0].State.LastStatus != "ok" {
		t.Errorf("unexpected status: %v", jobs[0].State.LastStatus)
	}
}

func TestRunJob_RecordsError(t *testing.T) {
	s, _ := newTestService(t)
	s.OnJob(func(context.Context, Job) error { return os.ErrPermission })

	job, _ := s.AddJob(every("err", 10000))
	s.RunJob(context.Background(), job.ID, true)

	jobs := s.ListAllJobs(false)
	if jobs[0].State.LastStatus == nil || *jobs[0].State.LastStatus != "error" || jobs[0].State.LastError == nil {
		t.Fatalf("expected error status: %+v", jobs[0].State)
	}
}

func TestRunJob_AtDeleteAfterRun(t *testing.T) {
	s, _ := newTestService(t)
	futureMs := time.Now().Add(time.Hour).UnixMilli()
	job, _ := s.AddJob(JobSpec{Name: "once", Objective: "x", Kind: KindAt, AtMs: futureMs, DeleteAfterRun: true})

	s.RunJob(context.Background(), job.ID, true)
	if jobs := s.ListAllJobs(true); len(jobs) != 0 {
		t.Errorf("expected job deleted after run, got %d jobs", len(jobs))
	}
}

func TestRunJob_DisabledOrMissing(t *testing.T) {
	s, _ := newTestService(t)
	job, _ := s.AddJob(every("j", 10000))
	s.EnableJob(job.ID, false)

	if s.RunJob(context.Background(), job.ID, false) {
		t.Error("expected RunJob to return false for disabled job without force")
	}
	if s.RunJob(context.Background(), "ghost", true) {
		t.Error("expected RunJob to return false for unknown id")
	}
}

// ─── Timer firing ──────────────────────────────────────────────────────────

func TestEveryJob_FiresAfterInterval(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, _ := newTestService(t)
	var count atomic.Int32
	s.OnJob(func(context.Context, Job) error {
		count.Add(1)
		return nil
	})

	s.AddJob(every("fast", 50))
	stop := startService(t, s)

	time.Sleep(180 * time.Millisecond)
	stop()
	if n := count.Load(); n < 2 {
		t.Errorf("expected at least 2 executions, got %d", n)
	}
}

func TestAddJob_ArmsWhileRunning(t *testing.T) {
	s, _ := newTestService(t)
	var count atomic.Int32
	s.OnJob(func(context.Context, Job) error {
		count.Add(1)
		return nil
	})

	stop := startService(t, s)
	defer stop()

	atMs := time.Now().Add(50 * time.Millisecond).UnixMilli()
	s.AddJob(JobSpec{Name: "once", Objective: "x", Kind: KindAt, AtMs: atMs})

	time.Sleep(200 * time.Millisecond)
	if n := count.Load(); n != 1 {
		t.Errorf("expected exactly 1 execution for at-job, got %d", n)
	}
}
