package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grand-thief-cash/yggdrasil/internal/model"
)

func startOrchestrator(t *testing.T, cfg Config) *Orchestrator {
	o := New(cfg)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	return o
}

func TestSubmitCompletes(t *testing.T) {
	o := startOrchestrator(t, Config{})
	defer o.Stop(context.Background())

	h, err := o.Submit(context.Background(), model.Task{
		Name: "greet",
		Func: func(ctx context.Context) (interface{}, error) { return "hello", nil },
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if h.ID() == "" {
		t.Fatalf("expected an assigned task id")
	}

	env, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if env.State != model.TaskStateCompleted {
		t.Fatalf("expected completed, got %s", env.State)
	}
	if env.Value != "hello" {
		t.Fatalf("expected value hello, got %v", env.Value)
	}
	if env.Kind != model.TaskKindIO {
		t.Fatalf("empty kind should default to io, got %s", env.Kind)
	}
	if env.StartedAt == nil {
		t.Fatalf("completed task has no start time")
	}
	if env.Error != "" {
		t.Fatalf("unexpected error text %q", env.Error)
	}
}

func TestSubmitKeepsCallerID(t *testing.T) {
	o := startOrchestrator(t, Config{})
	defer o.Stop(context.Background())

	h, err := o.Submit(context.Background(), model.Task{
		ID:   "job-42",
		Func: func(ctx context.Context) (interface{}, error) { return nil, nil },
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if h.ID() != "job-42" {
		t.Fatalf("expected job-42, got %s", h.ID())
	}
	if _, err := h.Wait(context.Background()); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
}

func TestSubmitRejectsInvalidTask(t *testing.T) {
	o := startOrchestrator(t, Config{})
	defer o.Stop(context.Background())

	if _, err := o.Submit(context.Background(), model.Task{Name: "nofunc"}); err == nil {
		t.Fatalf("expected error for nil func")
	}
	task := model.Task{
		Kind: model.TaskKind("gpu"),
		Func: func(ctx context.Context) (interface{}, error) { return nil, nil },
	}
	if _, err := o.Submit(context.Background(), task); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestTaskDeadlineSettlesEarly(t *testing.T) {
	o := startOrchestrator(t, Config{MaxWorkerPoolSize: 2, MaxPendingTasks: 8})
	defer o.Stop(context.Background())

	// the body ignores its context; the watcher must settle the task anyway
	h, err := o.Submit(context.Background(), model.Task{
		ID:       "slow",
		Deadline: 100 * time.Millisecond,
		Func: func(ctx context.Context) (interface{}, error) {
			time.Sleep(600 * time.Millisecond)
			return "late", nil
		},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	start := time.Now()
	env, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if waited := time.Since(start); waited > 500*time.Millisecond {
		t.Fatalf("handle resolved with the body, not the deadline: %v", waited)
	}
	if env.State != model.TaskStateTimedOut {
		t.Fatalf("expected timed_out, got %s", env.State)
	}
	if !errors.Is(env.Err, ErrDeadlineExceeded) {
		t.Fatalf("expected ErrDeadlineExceeded, got %v", env.Err)
	}
	if env.Value != nil {
		t.Fatalf("late result leaked into the envelope: %v", env.Value)
	}
}

func TestDefaultDeadlineApplied(t *testing.T) {
	o := startOrchestrator(t, Config{DefaultDeadline: 100 * time.Millisecond})
	defer o.Stop(context.Background())

	h, err := o.Submit(context.Background(), model.Task{
		Func: func(ctx context.Context) (interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	env, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if env.State != model.TaskStateTimedOut {
		t.Fatalf("expected timed_out from default deadline, got %s", env.State)
	}
	if !errors.Is(env.Err, ErrDeadlineExceeded) {
		t.Fatalf("expected ErrDeadlineExceeded, got %v", env.Err)
	}
}

func TestTaskFailure(t *testing.T) {
	o := startOrchestrator(t, Config{})
	defer o.Stop(context.Background())

	errBoom := errors.New("boom")
	h, err := o.Submit(context.Background(), model.Task{
		Func: func(ctx context.Context) (interface{}, error) { return nil, errBoom },
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	env, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if env.State != model.TaskStateFailed {
		t.Fatalf("expected failed, got %s", env.State)
	}
	if !errors.Is(env.Err, errBoom) {
		t.Fatalf("expected boom, got %v", env.Err)
	}
	if env.Error != "boom" {
		t.Fatalf("expected error text boom, got %q", env.Error)
	}
}

func TestTaskPanicBecomesFailure(t *testing.T) {
	o := startOrchestrator(t, Config{MaxWorkerPoolSize: 1})
	defer o.Stop(context.Background())

	h, err := o.Submit(context.Background(), model.Task{
		Kind: model.TaskKindCPU,
		Func: func(ctx context.Context) (interface{}, error) { panic("kaboom") },
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	env, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if env.State != model.TaskStateFailed {
		t.Fatalf("expected failed, got %s", env.State)
	}
	if !strings.Contains(env.Error, "task panicked") || !strings.Contains(env.Error, "kaboom") {
		t.Fatalf("panic not reported: %q", env.Error)
	}

	// the worker survived the panic
	h2, err := o.Submit(context.Background(), model.Task{
		Kind: model.TaskKindCPU,
		Func: func(ctx context.Context) (interface{}, error) { return "ok", nil },
	})
	if err != nil {
		t.Fatalf("submit after panic failed: %v", err)
	}
	env2, err := h2.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait after panic failed: %v", err)
	}
	if env2.State != model.TaskStateCompleted {
		t.Fatalf("worker did not survive panic: %s", env2.State)
	}
}

func TestCancelQueuedTask(t *testing.T) {
	o := startOrchestrator(t, Config{MaxWorkerPoolSize: 1, MaxPendingTasks: 8, DefaultDeadline: 10 * time.Second})
	defer o.Stop(context.Background())

	aStarted := make(chan struct{})
	gate := make(chan struct{})
	ah, err := o.Submit(context.Background(), model.Task{
		ID:   "a",
		Kind: model.TaskKindCPU,
		Func: func(ctx context.Context) (interface{}, error) {
			close(aStarted)
			<-gate
			return "a", nil
		},
	})
	if err != nil {
		t.Fatalf("submit a failed: %v", err)
	}
	<-aStarted

	// b sits in the cpu queue behind a
	bh, err := o.Submit(context.Background(), model.Task{
		ID:   "b",
		Kind: model.TaskKindCPU,
		Func: func(ctx context.Context) (interface{}, error) { return "b", nil },
	})
	if err != nil {
		t.Fatalf("submit b failed: %v", err)
	}

	if err := o.Cancel("b"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	env, err := bh.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if env.State != model.TaskStateCancelled {
		t.Fatalf("expected cancelled, got %s", env.State)
	}
	if !errors.Is(env.Err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", env.Err)
	}
	if env.StartedAt != nil {
		t.Fatalf("cancelled-while-queued task should never start")
	}

	close(gate)
	if env, err := ah.Wait(context.Background()); err != nil || env.State != model.TaskStateCompleted {
		t.Fatalf("task a did not complete: %v %v", env.State, err)
	}
}

func TestCancelRunningTask(t *testing.T) {
	o := startOrchestrator(t, Config{DefaultDeadline: 10 * time.Second})
	defer o.Stop(context.Background())

	running := make(chan struct{})
	h, err := o.Submit(context.Background(), model.Task{
		ID: "victim",
		Func: func(ctx context.Context) (interface{}, error) {
			close(running)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	<-running

	if err := o.Cancel("victim"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	env, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if env.State != model.TaskStateCancelled {
		t.Fatalf("expected cancelled, got %s", env.State)
	}
	if !errors.Is(env.Err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", env.Err)
	}
}

func TestCancelUnknownTask(t *testing.T) {
	o := startOrchestrator(t, Config{})
	defer o.Stop(context.Background())

	if err := o.Cancel("never-submitted"); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}

	// terminal tasks are pruned; a late cancel gets the same answer
	h, err := o.Submit(context.Background(), model.Task{
		ID:   "done-and-gone",
		Func: func(ctx context.Context) (interface{}, error) { return nil, nil },
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := h.Wait(context.Background()); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if err := o.Cancel("done-and-gone"); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask after settle, got %v", err)
	}
}

func TestDuplicateTaskID(t *testing.T) {
	o := startOrchestrator(t, Config{MaxWorkerPoolSize: 1, DefaultDeadline: 10 * time.Second})
	defer o.Stop(context.Background())

	started := make(chan struct{})
	gate := make(chan struct{})
	first, err := o.Submit(context.Background(), model.Task{
		ID:   "same",
		Kind: model.TaskKindCPU,
		Func: func(ctx context.Context) (interface{}, error) {
			close(started)
			<-gate
			return "first", nil
		},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	<-started

	second, err := o.Submit(context.Background(), model.Task{
		ID:   "same",
		Func: func(ctx context.Context) (interface{}, error) { return "second", nil },
	})
	if err != nil {
		t.Fatalf("duplicate submit should be admitted, then fail: %v", err)
	}
	env, err := second.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if env.State != model.TaskStateFailed {
		t.Fatalf("expected failed, got %s", env.State)
	}
	if !strings.Contains(env.Error, "duplicate task id") {
		t.Fatalf("expected duplicate id error, got %q", env.Error)
	}

	close(gate)
	if env, err := first.Wait(context.Background()); err != nil || env.State != model.TaskStateCompleted {
		t.Fatalf("original task was disturbed: %v %v", env.State, err)
	}
}

func TestTrySubmitQueueFull(t *testing.T) {
	o := startOrchestrator(t, Config{MaxWorkerPoolSize: 1, MaxPendingTasks: 2, DefaultDeadline: 10 * time.Second})
	defer o.Stop(context.Background())

	started := make(chan struct{})
	gate := make(chan struct{})
	blocked := func(ctx context.Context) (interface{}, error) {
		<-gate
		return nil, nil
	}

	ah, err := o.Submit(context.Background(), model.Task{
		ID:   "a",
		Kind: model.TaskKindCPU,
		Func: func(ctx context.Context) (interface{}, error) {
			close(started)
			<-gate
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("submit a failed: %v", err)
	}
	<-started // a is on the worker, its admission slot is free again

	bh, err := o.Submit(context.Background(), model.Task{ID: "b", Kind: model.TaskKindCPU, Func: blocked})
	if err != nil {
		t.Fatalf("submit b failed: %v", err)
	}
	ch, err := o.Submit(context.Background(), model.Task{ID: "c", Kind: model.TaskKindCPU, Func: blocked})
	if err != nil {
		t.Fatalf("submit c failed: %v", err)
	}

	if _, err := o.TrySubmit(model.Task{ID: "d", Kind: model.TaskKindCPU, Func: blocked}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	// the blocking variant waits, then gives up with the caller's context
	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	if _, err := o.Submit(ctx, model.Task{ID: "e", Kind: model.TaskKindCPU, Func: blocked}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline, got %v", err)
	}

	close(gate)
	for _, h := range []*TaskHandle{ah, bh, ch} {
		if env, err := h.Wait(context.Background()); err != nil || env.State != model.TaskStateCompleted {
			t.Fatalf("task %s did not complete: %v %v", h.ID(), env.State, err)
		}
	}
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	o := startOrchestrator(t, Config{MaxWorkerPoolSize: 2, MaxPendingTasks: 16, DefaultDeadline: 10 * time.Second})
	defer o.Stop(context.Background())

	var cur, peak atomic.Int32
	body := func(ctx context.Context) (interface{}, error) {
		n := cur.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		cur.Add(-1)
		return nil, nil
	}

	handles := make([]*TaskHandle, 0, 6)
	for i := 0; i < 6; i++ {
		h, err := o.Submit(context.Background(), model.Task{Kind: model.TaskKindCPU, Func: body})
		if err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
		handles = append(handles, h)
	}
	for _, h := range handles {
		if env, err := h.Wait(context.Background()); err != nil || env.State != model.TaskStateCompleted {
			t.Fatalf("task did not complete: %v %v", env.State, err)
		}
	}
	if got := peak.Load(); got > 2 {
		t.Fatalf("cpu concurrency exceeded the pool: %d", got)
	}
}

func TestStopCancelsInflight(t *testing.T) {
	o := startOrchestrator(t, Config{MaxWorkerPoolSize: 1, MaxPendingTasks: 8, DefaultDeadline: 10 * time.Second})

	waitCtx := func(ctx context.Context) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	ioStarted := make(chan struct{})
	rh, err := o.Submit(context.Background(), model.Task{
		ID: "running-io",
		Func: func(ctx context.Context) (interface{}, error) {
			close(ioStarted)
			return waitCtx(ctx)
		},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	cpuStarted := make(chan struct{})
	wh, err := o.Submit(context.Background(), model.Task{
		ID:   "running-cpu",
		Kind: model.TaskKindCPU,
		Func: func(ctx context.Context) (interface{}, error) {
			close(cpuStarted)
			return waitCtx(ctx)
		},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	<-ioStarted
	<-cpuStarted

	// the worker is pinned, so this one stays queued
	qh, err := o.Submit(context.Background(), model.Task{
		ID:   "queued",
		Kind: model.TaskKindCPU,
		Func: func(ctx context.Context) (interface{}, error) { return nil, nil },
	})
	if err != nil {
		t.Fatalf("submit queued failed: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Stop(stopCtx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	for _, h := range []*TaskHandle{rh, wh, qh} {
		env, ok := h.Envelope()
		if !ok {
			t.Fatalf("task %s not settled by stop", h.ID())
		}
		if env.State != model.TaskStateCancelled {
			t.Fatalf("task %s: expected cancelled, got %s", h.ID(), env.State)
		}
		if !errors.Is(env.Err, ErrCancelled) {
			t.Fatalf("task %s: expected ErrCancelled, got %v", h.ID(), env.Err)
		}
	}

	if _, err := o.Submit(context.Background(), model.Task{
		Func: func(ctx context.Context) (interface{}, error) { return nil, nil },
	}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped from Submit, got %v", err)
	}
	if _, err := o.TrySubmit(model.Task{
		Func: func(ctx context.Context) (interface{}, error) { return nil, nil },
	}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped from TrySubmit, got %v", err)
	}
	if err := o.Cancel("anything"); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped from Cancel, got %v", err)
	}

	// stop is idempotent
	if err := o.Stop(context.Background()); err != nil {
		t.Fatalf("repeat stop failed: %v", err)
	}
}

// recordingObserver implements TaskObserver for tests
type recordingObserver struct {
	mu     sync.Mutex
	starts map[string]bool
	ends   map[string]model.TaskState
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{starts: make(map[string]bool), ends: make(map[string]model.TaskState)}
}

func (r *recordingObserver) OnTaskStart(taskID, groupID string) {
	r.mu.Lock()
	r.starts[taskID] = true
	r.mu.Unlock()
}

func (r *recordingObserver) OnTaskEnd(taskID string, state model.TaskState, elapsed time.Duration) {
	r.mu.Lock()
	r.ends[taskID] = state
	r.mu.Unlock()
}

func (r *recordingObserver) started(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts[taskID]
}

func (r *recordingObserver) ended(taskID string) (model.TaskState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.ends[taskID]
	return st, ok
}

func TestObserversSeeTransitions(t *testing.T) {
	obs := newRecordingObserver()
	o := New(Config{MaxWorkerPoolSize: 1, MaxPendingTasks: 8, DefaultDeadline: 10 * time.Second})
	o.AddObserver(obs)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer o.Stop(context.Background())

	okh, err := o.Submit(context.Background(), model.Task{
		ID:   "ok-task",
		Func: func(ctx context.Context) (interface{}, error) { return nil, nil },
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := okh.Wait(context.Background()); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if !obs.started("ok-task") {
		t.Fatalf("missing OnTaskStart for ok-task")
	}
	if st, ok := obs.ended("ok-task"); !ok || st != model.TaskStateCompleted {
		t.Fatalf("missing or wrong OnTaskEnd for ok-task: %v %v", st, ok)
	}

	// a task cancelled while queued ends without ever starting
	started := make(chan struct{})
	gate := make(chan struct{})
	if _, err := o.Submit(context.Background(), model.Task{
		ID:   "blocker",
		Kind: model.TaskKindCPU,
		Func: func(ctx context.Context) (interface{}, error) {
			close(started)
			<-gate
			return nil, nil
		},
	}); err != nil {
		t.Fatalf("submit blocker failed: %v", err)
	}
	<-started
	qh, err := o.Submit(context.Background(), model.Task{
		ID:   "queued-task",
		Kind: model.TaskKindCPU,
		Func: func(ctx context.Context) (interface{}, error) { return nil, nil },
	})
	if err != nil {
		t.Fatalf("submit queued failed: %v", err)
	}
	if err := o.Cancel("queued-task"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if _, err := qh.Wait(context.Background()); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if obs.started("queued-task") {
		t.Fatalf("queue-cancelled task should not report OnTaskStart")
	}
	if st, ok := obs.ended("queued-task"); !ok || st != model.TaskStateCancelled {
		t.Fatalf("missing or wrong OnTaskEnd for queued-task: %v %v", st, ok)
	}
	close(gate)
}

func TestStatsCounters(t *testing.T) {
	o := startOrchestrator(t, Config{MaxWorkerPoolSize: 3, MaxPendingTasks: 32, DefaultDeadline: 10 * time.Second})

	// one terminal task per state
	ch, err := o.Submit(context.Background(), model.Task{
		Func: func(ctx context.Context) (interface{}, error) { return nil, nil },
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	fh, err := o.Submit(context.Background(), model.Task{
		Func: func(ctx context.Context) (interface{}, error) { return nil, errors.New("nope") },
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	th, err := o.Submit(context.Background(), model.Task{
		Deadline: 80 * time.Millisecond,
		Func: func(ctx context.Context) (interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	running := make(chan struct{})
	xh, err := o.Submit(context.Background(), model.Task{
		ID: "victim",
		Func: func(ctx context.Context) (interface{}, error) {
			close(running)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	<-running
	if err := o.Cancel("victim"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	for _, h := range []*TaskHandle{ch, fh, th, xh} {
		if _, err := h.Wait(context.Background()); err != nil {
			t.Fatalf("wait failed: %v", err)
		}
	}

	st := o.Stats()
	if st.Completed != 1 || st.Failed != 1 || st.TimedOut != 1 || st.Cancelled != 1 {
		t.Fatalf("wrong terminal counts: %+v", st)
	}
	if st.Pending != 0 || st.Running != 0 || st.ActiveGroups != 0 {
		t.Fatalf("expected quiet orchestrator: %+v", st)
	}
	if st.Workers != 3 || st.QueueCapacity != 32 {
		t.Fatalf("config echo wrong: %+v", st)
	}

	if err := o.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}
