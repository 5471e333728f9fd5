package qjobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quatton/qhook/pkg/kv"
	"github.com/quatton/qhook/pkg/qart"
	"github.com/quatton/qhook/pkg/qerr"
	"github.com/quatton/qhook/pkg/qrunner"
	"github.com/quatton/qhook/pkg/qscript"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// go-redis starts a clock goroutine when the package loads
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/redis/go-redis/v9/internal/pool.startGlobalTimeCache.func1"))
}

type fakeExecutor struct {
	mu    sync.Mutex
	calls []qscript.Request
	run   func(req qscript.Request) (*qrunner.Result, error)
}

func (f *fakeExecutor) Execute(ctx context.Context, req qscript.Request) (*qrunner.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.run != nil {
		return f.run(req)
	}
	return &qrunner.Result{ScriptName: req.Script, Success: true, Output: "ok\n"}, nil
}

func (f *fakeExecutor) Calls() []qscript.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]qscript.Request(nil), f.calls...)
}

func newTestManager(t *testing.T, exec Executor, opts Options) (*Manager, *KVStore) {
	t.Helper()
	mem := kv.NewMemoryStore()
	store := NewKVStore(mem, time.Hour)
	opts.PollTimeout = 20 * time.Millisecond
	return NewManager(store, mem, exec, opts), store
}

// runWorkers starts the manager and returns a func stopping it.
func runWorkers(t *testing.T, m *Manager) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func waitForState(t *testing.T, m *Manager, id string, want State) *Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		job, err := m.Status(context.Background(), id)
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if job.State == want {
			return job
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s stuck in %s, want %s", id, job.State, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEnqueueRunsJob(t *testing.T) {
	exec := &fakeExecutor{}
	m, store := newTestManager(t, exec, Options{Workers: 2})

	var during State
	req := qscript.Request{Script: "hello.ps1", Key: "abc", Parameters: "-x 1"}
	id, err := m.Enqueue(context.Background(), req, SourceAPI)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	job, err := m.Status(context.Background(), id)
	if err != nil || job.State != StateEnqueued {
		t.Fatalf("expected Enqueued before workers start, got %v %v", job, err)
	}

	exec.run = func(req qscript.Request) (*qrunner.Result, error) {
		j, _ := store.Get(context.Background(), id)
		during = j.State
		return &qrunner.Result{ScriptName: req.Script, Success: true, Output: "hello\n"}, nil
	}

	stop := runWorkers(t, m)
	defer stop()

	job = waitForState(t, m, id, StateSucceeded)
	if during != StateProcessing {
		t.Errorf("job should be Processing while it runs, was %s", during)
	}
	if job.Result == nil || job.Result.Output != "hello\n" {
		t.Errorf("unexpected result %+v", job.Result)
	}
	if job.StartedAt == nil || job.FinishedAt == nil || job.FinishedAt.Before(*job.StartedAt) {
		t.Errorf("timestamps not set: %+v", job)
	}
	if calls := exec.Calls(); len(calls) != 1 || calls[0] != req {
		t.Errorf("executor called with %v", calls)
	}
}

func TestRejectedJobFails(t *testing.T) {
	exec := &fakeExecutor{run: func(qscript.Request) (*qrunner.Result, error) {
		return nil, qerr.Reject(qerr.CodeValidation, "invalid access key")
	}}
	m, _ := newTestManager(t, exec, Options{Workers: 1})
	stop := runWorkers(t, m)
	defer stop()

	id, err := m.Enqueue(context.Background(), qscript.Request{Script: "x.ps1", Key: "wrong"}, SourceAPI)
	if err != nil {
		t.Fatal(err)
	}

	job := waitForState(t, m, id, StateFailed)
	if len(job.Reasons) != 1 || job.Reasons[0] != "invalid access key" {
		t.Errorf("unexpected reasons %v", job.Reasons)
	}
}

func TestFailedExecutionFails(t *testing.T) {
	exec := &fakeExecutor{run: func(req qscript.Request) (*qrunner.Result, error) {
		return &qrunner.Result{ScriptName: req.Script, ExitCode: 2, Code: qerr.CodeExecutionFailed, Error: "boom"}, nil
	}}
	m, _ := newTestManager(t, exec, Options{Workers: 1})
	stop := runWorkers(t, m)
	defer stop()

	id, _ := m.Enqueue(context.Background(), qscript.Request{Script: "x.ps1"}, SourceAPI)
	job := waitForState(t, m, id, StateFailed)
	if job.Result == nil || job.Result.ExitCode != 2 {
		t.Errorf("result should be kept on failure: %+v", job.Result)
	}
}

func TestPanickingExecutorFailsJob(t *testing.T) {
	exec := &fakeExecutor{run: func(qscript.Request) (*qrunner.Result, error) {
		panic("kaboom")
	}}
	m, _ := newTestManager(t, exec, Options{Workers: 1})
	stop := runWorkers(t, m)
	defer stop()

	id, _ := m.Enqueue(context.Background(), qscript.Request{Script: "x.ps1"}, SourceAPI)
	job := waitForState(t, m, id, StateFailed)
	if len(job.Reasons) != 1 || !strings.Contains(job.Reasons[0], "kaboom") {
		t.Errorf("unexpected reasons %v", job.Reasons)
	}

	// the worker survives the panic
	id, _ = m.Enqueue(context.Background(), qscript.Request{Script: "y.ps1"}, SourceAPI)
	waitForState(t, m, id, StateFailed)
}

func TestDuplicateDeliveryRunsOnce(t *testing.T) {
	exec := &fakeExecutor{}
	mem := kv.NewMemoryStore()
	store := NewKVStore(mem, time.Hour)
	m := NewManager(store, mem, exec, Options{Workers: 3, PollTimeout: 20 * time.Millisecond})

	id, err := m.Enqueue(context.Background(), qscript.Request{Script: "once.ps1"}, SourceAPI)
	if err != nil {
		t.Fatal(err)
	}
	// at-least-once delivery may hand the same id out again
	_ = mem.Push(context.Background(), DefaultQueue, []byte(id))
	_ = mem.Push(context.Background(), DefaultQueue, []byte(id))

	stop := runWorkers(t, m)
	waitForState(t, m, id, StateSucceeded)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if n, _ := mem.Len(context.Background(), DefaultQueue); n == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	stop()

	if n := len(exec.Calls()); n != 1 {
		t.Errorf("job ran %d times", n)
	}
}

func TestScheduleDelaysJob(t *testing.T) {
	exec := &fakeExecutor{}
	m, _ := newTestManager(t, exec, Options{Workers: 1})
	stop := runWorkers(t, m)
	defer stop()

	id, err := m.Schedule(context.Background(), qscript.Request{Script: "later.ps1"}, SourceAPI, 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	job, _ := m.Status(context.Background(), id)
	if job.State != StateScheduled || job.ScheduledAt == nil {
		t.Fatalf("expected Scheduled job, got %+v", job)
	}

	job = waitForState(t, m, id, StateSucceeded)
	if job.StartedAt.Before(*job.ScheduledAt) {
		t.Errorf("job started at %s before its schedule %s", job.StartedAt, job.ScheduledAt)
	}
}

func TestScheduleWithoutDelayEnqueues(t *testing.T) {
	m, _ := newTestManager(t, &fakeExecutor{}, Options{})
	id, err := m.Schedule(context.Background(), qscript.Request{Script: "now.ps1"}, SourceAPI, 0)
	if err != nil {
		t.Fatal(err)
	}
	if job, _ := m.Status(context.Background(), id); job.State != StateEnqueued {
		t.Errorf("expected Enqueued, got %s", job.State)
	}
	if n, _ := m.Pending(context.Background()); n != 1 {
		t.Errorf("expected 1 pending job, got %d", n)
	}
}

func TestStatusUnknown(t *testing.T) {
	m, _ := newTestManager(t, &fakeExecutor{}, Options{})
	if _, err := m.Status(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type fakeArtifacts struct {
	mu      sync.Mutex
	objects map[string]string
	deleted []string
}

func (f *fakeArtifacts) Put(_ context.Context, jobID, name, content string, _ map[string]string) (*qart.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = map[string]string{}
	}
	key := qart.JobKey(jobID, name)
	f.objects[key] = content
	return &qart.Artifact{Key: key, JobID: jobID, Size: int64(len(content)), ContentType: qart.ContentType(name)}, nil
}

func (f *fakeArtifacts) Presign(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://s3.test/" + key + "?sig=1", nil
}

func (f *fakeArtifacts) ListJob(_ context.Context, jobID string) ([]*qart.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*qart.Artifact
	for k, v := range f.objects {
		if strings.HasPrefix(k, qart.JobPrefix(jobID)) {
			out = append(out, &qart.Artifact{Key: k, JobID: jobID, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (f *fakeArtifacts) DeleteJob(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, jobID)
	return nil
}

func (f *fakeArtifacts) EnsureBucket(context.Context) error { return nil }

func TestArtifactsUploaded(t *testing.T) {
	arts := &fakeArtifacts{}
	exec := &fakeExecutor{run: func(req qscript.Request) (*qrunner.Result, error) {
		return &qrunner.Result{Success: true, Output: "out\n"}, nil
	}}
	m, _ := newTestManager(t, exec, Options{Workers: 1, Artifacts: arts})
	stop := runWorkers(t, m)
	defer stop()

	id, _ := m.Enqueue(context.Background(), qscript.Request{Script: "a.ps1"}, SourceAPI)
	job := waitForState(t, m, id, StateSucceeded)

	want := qart.JobKey(id, "stdout.log")
	if len(job.Artifacts) != 1 || job.Artifacts[0] != want {
		t.Fatalf("expected only stdout artifact, got %v", job.Artifacts)
	}

	list, err := m.Artifacts(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || !strings.HasPrefix(list[0].URL, "https://s3.test/"+want) {
		t.Errorf("unexpected artifacts %+v", list)
	}
}

func TestArtifactsNotConfigured(t *testing.T) {
	m, _ := newTestManager(t, &fakeExecutor{}, Options{})
	if _, err := m.Artifacts(context.Background(), "x"); !errors.Is(err, qart.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

type pruningStore struct {
	*KVStore
	before time.Time
}

func (p *pruningStore) Prune(_ context.Context, before time.Time) ([]string, error) {
	p.before = before
	return []string{"old-1", "old-2"}, nil
}

func TestPrune(t *testing.T) {
	mem := kv.NewMemoryStore()
	arts := &fakeArtifacts{}

	m := NewManager(NewKVStore(mem, time.Hour), mem, &fakeExecutor{}, Options{Artifacts: arts})
	if n, err := m.Prune(context.Background(), time.Hour); err != nil || n != 0 {
		t.Fatalf("kv store should not prune, got %d %v", n, err)
	}

	ps := &pruningStore{KVStore: NewKVStore(mem, time.Hour)}
	m = NewManager(ps, mem, &fakeExecutor{}, Options{Artifacts: arts})
	n, err := m.Prune(context.Background(), 24*time.Hour)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 pruned, got %d %v", n, err)
	}
	if time.Since(ps.before) < 24*time.Hour-time.Minute {
		t.Errorf("cutoff too recent: %s", ps.before)
	}
	if len(arts.deleted) != 2 || arts.deleted[0] != "old-1" {
		t.Errorf("artifacts not deleted: %v", arts.deleted)
	}
}
