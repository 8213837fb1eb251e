// Package orchestrator runs tasks for the rest of the service: io tasks on
// their own goroutines, cpu tasks on a bounded worker pool, everything
// under per-task deadlines and cooperative cancellation. One scheduler
// goroutine owns every task and group record; workers, task bodies and
// watchers talk to it only through the event channel.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/grand-thief-cash/yggdrasil/infra/components/logging"
	appconsts "github.com/grand-thief-cash/yggdrasil/infra/consts"
	"github.com/grand-thief-cash/yggdrasil/infra/core"
	"github.com/grand-thief-cash/yggdrasil/internal/consts"
	"github.com/grand-thief-cash/yggdrasil/internal/model"
)

type Config struct {
	MaxWorkerPoolSize int           // cpu-bound worker count
	MaxPendingTasks   int           // admission slots; submits block beyond
	DefaultDeadline   time.Duration // applied when a task carries none
}

// TaskHandle is the caller's view of one submitted task. Envelope reads
// are safe once Done is closed.
type TaskHandle struct {
	id   string
	done chan struct{}
	rec  *taskRecord
}

func (h *TaskHandle) ID() string            { return h.id }
func (h *TaskHandle) Done() <-chan struct{} { return h.done }

// Wait blocks until the task is terminal or ctx gives up.
func (h *TaskHandle) Wait(ctx context.Context) (model.ResultEnvelope, error) {
	select {
	case <-h.done:
		return h.rec.env, nil
	case <-ctx.Done():
		return model.ResultEnvelope{}, ctx.Err()
	}
}

// Envelope returns the result and true once the task is terminal.
func (h *TaskHandle) Envelope() (model.ResultEnvelope, bool) {
	select {
	case <-h.done:
		return h.rec.env, true
	default:
		return model.ResultEnvelope{}, false
	}
}

// taskRecord is owned by the scheduler loop. task, ctx, cancel, done and
// submitted are written once before the record reaches any other
// goroutine; workers may read those and wait on done, nothing else.
type taskRecord struct {
	task      model.Task
	groupID   string
	state     model.TaskState
	submitted time.Time
	started   *time.Time
	env       model.ResultEnvelope
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	handle    *TaskHandle
}

type eventKind int

const (
	evSubmit eventKind = iota
	evSubmitGroup
	evStarted
	evDone
	evExpired
	evCancelTask
	evCancelGroup
	evStop
	evStopLoop
)

type event struct {
	kind    eventKind
	rec     *taskRecord
	recs    []*taskRecord
	group   *groupRecord
	taskID  string
	groupID string
	value   interface{}
	err     error
	at      time.Time
	reply   chan error
}

type Stats struct {
	Pending       int64 `json:"pending"`
	Running       int64 `json:"running"`
	Completed     int64 `json:"completed"`
	Failed        int64 `json:"failed"`
	TimedOut      int64 `json:"timed_out"`
	Cancelled     int64 `json:"cancelled"`
	ActiveGroups  int64 `json:"active_groups"`
	Workers       int   `json:"workers"`
	QueueCapacity int   `json:"queue_capacity"`
}

type Orchestrator struct {
	*core.BaseComponent

	cfg Config

	slots  chan struct{}    // admission; filled at submit, drained at dispatch/dequeue
	poolCh chan *taskRecord // cpu queue; occupancy bounded by slots, sends never block
	evCh   chan event

	baseCtx  context.Context
	baseStop context.CancelFunc

	stopped atomic.Bool
	// sendMu orders external event sends against Stop: a send under RLock
	// lands in evCh before evStop does, so the loop always consumes it.
	sendMu   sync.RWMutex
	groupMu  sync.Mutex // serializes group admissions (partial slot holds must not interleave)
	loopWG   sync.WaitGroup
	senderWG sync.WaitGroup // workers, io bodies, watchers: everyone who sends events

	observers observerSet

	// loop-owned maps
	tasks  map[string]*taskRecord
	groups map[string]*groupRecord

	pendingN, runningN    atomic.Int64
	completedN, failedN   atomic.Int64
	timedOutN, cancelledN atomic.Int64
	groupsN               atomic.Int64
}

func New(cfg Config) *Orchestrator {
	if cfg.MaxWorkerPoolSize <= 0 {
		cfg.MaxWorkerPoolSize = 4
	}
	if cfg.MaxPendingTasks <= 0 {
		cfg.MaxPendingTasks = 256
	}
	if cfg.DefaultDeadline <= 0 {
		cfg.DefaultDeadline = 5 * time.Second
	}
	baseCtx, baseStop := context.WithCancel(context.Background())
	return &Orchestrator{
		BaseComponent: core.NewBaseComponent(consts.COMP_SVC_ORCHESTRATOR, appconsts.COMPONENT_LOGGING),
		cfg:           cfg,
		slots:         make(chan struct{}, cfg.MaxPendingTasks),
		poolCh:        make(chan *taskRecord, cfg.MaxPendingTasks),
		evCh:          make(chan event, 1024),
		baseCtx:       baseCtx,
		baseStop:      baseStop,
		tasks:         make(map[string]*taskRecord),
		groups:        make(map[string]*groupRecord),
	}
}

// AddObserver registers a transition observer. Not safe after Start.
func (o *Orchestrator) AddObserver(obs TaskObserver) { o.observers.add(obs) }

func (o *Orchestrator) Start(ctx context.Context) error {
	if o.IsActive() {
		return nil
	}
	if err := o.BaseComponent.Start(ctx); err != nil {
		return err
	}
	o.loopWG.Add(1)
	go o.loop()
	// workers outlive Start's ctx: the lifecycle manager cancels it as
	// soon as Start returns
	for i := 0; i < o.cfg.MaxWorkerPoolSize; i++ {
		o.senderWG.Add(1)
		go o.worker(o.baseCtx)
	}
	logging.Info(ctx, "orchestrator started",
		zap.Int("workers", o.cfg.MaxWorkerPoolSize),
		zap.Int("max_pending", o.cfg.MaxPendingTasks),
		zap.Duration("default_deadline", o.cfg.DefaultDeadline),
	)
	return nil
}

// Stop refuses new submissions, settles every non-terminal task as
// cancelled, then joins workers, bodies, watchers and the loop. A body
// that ignores its context can hold Stop until ctx expires.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if !o.IsActive() {
		return nil
	}
	if o.stopped.Swap(true) {
		return nil
	}
	defer o.BaseComponent.Stop(ctx)

	// barrier: every send already under RLock finishes, every later
	// sender observes stopped
	o.sendMu.Lock()
	o.sendMu.Unlock()

	reply := make(chan error, 1)
	o.evCh <- event{kind: evStop, reply: reply}
	<-reply

	o.baseStop()

	drained := make(chan struct{})
	go func() {
		o.senderWG.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		return fmt.Errorf("orchestrator stop: senders did not drain: %w", ctx.Err())
	}

	o.evCh <- event{kind: evStopLoop}
	o.loopWG.Wait()
	logging.Info(ctx, "orchestrator stopped")
	return nil
}

func (o *Orchestrator) HealthCheck() error {
	if err := o.BaseComponent.HealthCheck(); err != nil {
		return err
	}
	if o.stopped.Load() {
		return ErrStopped
	}
	return nil
}

// Submit admits one task, blocking while all admission slots are taken.
// The handle resolves exactly once with the task's terminal envelope.
func (o *Orchestrator) Submit(ctx context.Context, task model.Task) (*TaskHandle, error) {
	if err := o.checkTask(&task); err != nil {
		return nil, err
	}
	if o.stopped.Load() {
		return nil, ErrStopped
	}
	select {
	case o.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-o.baseCtx.Done():
		return nil, ErrStopped
	}
	return o.admit(task, "")
}

// TrySubmit is the non-blocking variant: a full queue answers ErrQueueFull
// instead of waiting.
func (o *Orchestrator) TrySubmit(task model.Task) (*TaskHandle, error) {
	if err := o.checkTask(&task); err != nil {
		return nil, err
	}
	if o.stopped.Load() {
		return nil, ErrStopped
	}
	select {
	case o.slots <- struct{}{}:
	default:
		return nil, ErrQueueFull
	}
	return o.admit(task, "")
}

// admit hands a slot-holding task to the loop. Caller owns a slot.
func (o *Orchestrator) admit(task model.Task, groupID string) (*TaskHandle, error) {
	o.sendMu.RLock()
	defer o.sendMu.RUnlock()
	if o.stopped.Load() {
		<-o.slots
		return nil, ErrStopped
	}
	rec := o.newRecord(task, groupID, time.Now())
	o.evCh <- event{kind: evSubmit, rec: rec}
	return rec.handle, nil
}

func (o *Orchestrator) checkTask(task *model.Task) error {
	if task.Func == nil {
		return fmt.Errorf("orchestrator: task %q has no func", task.Name)
	}
	if task.Kind == "" {
		task.Kind = model.TaskKindIO
	}
	if !task.Kind.Valid() {
		return fmt.Errorf("orchestrator: unknown task kind %q", task.Kind)
	}
	return nil
}

func (o *Orchestrator) newRecord(task model.Task, groupID string, now time.Time) *taskRecord {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	d := task.Deadline
	if d <= 0 {
		d = o.cfg.DefaultDeadline
	}
	var ctx context.Context
	var cancel context.CancelFunc
	if d > 0 {
		ctx, cancel = context.WithDeadline(o.baseCtx, now.Add(d))
	} else {
		ctx, cancel = context.WithCancel(o.baseCtx)
	}
	rec := &taskRecord{
		task:      task,
		groupID:   groupID,
		state:     model.TaskStatePending,
		submitted: now,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	rec.handle = &TaskHandle{id: task.ID, done: rec.done, rec: rec}
	return rec
}

// Cancel settles a non-terminal task as cancelled and cancels its context.
// Ids the orchestrator no longer tracks (or never saw) answer
// ErrUnknownTask.
func (o *Orchestrator) Cancel(taskID string) error {
	return o.ask(event{kind: evCancelTask, taskID: taskID, reply: make(chan error, 1)})
}

func (o *Orchestrator) ask(ev event) error {
	o.sendMu.RLock()
	if o.stopped.Load() {
		o.sendMu.RUnlock()
		return ErrStopped
	}
	o.evCh <- ev
	o.sendMu.RUnlock()
	return <-ev.reply
}

func (o *Orchestrator) Stats() Stats {
	return Stats{
		Pending:       o.pendingN.Load(),
		Running:       o.runningN.Load(),
		Completed:     o.completedN.Load(),
		Failed:        o.failedN.Load(),
		TimedOut:      o.timedOutN.Load(),
		Cancelled:     o.cancelledN.Load(),
		ActiveGroups:  o.groupsN.Load(),
		Workers:       o.cfg.MaxWorkerPoolSize,
		QueueCapacity: o.cfg.MaxPendingTasks,
	}
}

// loop is the scheduler: the only goroutine that touches tasks, groups
// and record state after submission.
func (o *Orchestrator) loop() {
	defer o.loopWG.Done()
	for ev := range o.evCh {
		switch ev.kind {
		case evSubmit:
			o.handleSubmit(ev.rec)
		case evSubmitGroup:
			o.handleSubmitGroup(ev.group, ev.recs)
		case evStarted:
			o.handleStarted(ev.rec, ev.at)
		case evDone:
			o.handleDone(ev.rec, ev.value, ev.err)
		case evExpired:
			o.handleExpired(ev.rec)
		case evCancelTask:
			ev.reply <- o.handleCancelTask(ev.taskID)
		case evCancelGroup:
			ev.reply <- o.handleCancelGroup(ev.groupID)
		case evStop:
			o.handleStop()
			ev.reply <- nil
		case evStopLoop:
			return
		}
	}
}

func (o *Orchestrator) handleSubmit(rec *taskRecord) {
	if _, dup := o.tasks[rec.task.ID]; dup {
		<-o.slots // never dispatched, give the admission slot back
		o.pendingN.Add(1)
		o.settle(rec, model.TaskStateFailed, nil, fmt.Errorf("orchestrator: duplicate task id %s", rec.task.ID))
		return
	}
	o.tasks[rec.task.ID] = rec
	o.pendingN.Add(1)

	// the deadline counts from submission, queued or not
	o.senderWG.Add(1)
	go o.watch(rec)

	o.dispatch(rec)
}

// dispatch routes a registered task: cpu tasks queue for the pool, io
// tasks start immediately on their own goroutine. The io path frees the
// admission slot here; the cpu path frees it at worker dequeue.
func (o *Orchestrator) dispatch(rec *taskRecord) {
	switch rec.task.Kind {
	case model.TaskKindCPU:
		o.poolCh <- rec // never blocks: every queued record holds a slot
	default:
		o.startTask(rec, time.Now())
		<-o.slots
		o.senderWG.Add(1)
		go o.runBody(rec)
	}
}

func (o *Orchestrator) handleStarted(rec *taskRecord, at time.Time) {
	if rec.state != model.TaskStatePending {
		return
	}
	o.startTask(rec, at)
}

func (o *Orchestrator) startTask(rec *taskRecord, at time.Time) {
	rec.state = model.TaskStateRunning
	started := at
	rec.started = &started
	o.pendingN.Add(-1)
	o.runningN.Add(1)
	o.observers.taskStart(rec.task.ID, rec.groupID)
}

func (o *Orchestrator) handleDone(rec *taskRecord, value interface{}, err error) {
	if rec.state.Terminal() {
		return // settled earlier; late result discarded
	}
	switch {
	case rec.ctx.Err() == context.DeadlineExceeded:
		o.settle(rec, model.TaskStateTimedOut, nil, ErrDeadlineExceeded)
	case err != nil:
		o.settle(rec, model.TaskStateFailed, nil, err)
	default:
		o.settle(rec, model.TaskStateCompleted, value, nil)
	}
}

func (o *Orchestrator) handleExpired(rec *taskRecord) {
	if rec.state.Terminal() {
		return
	}
	if rec.ctx.Err() == context.DeadlineExceeded {
		o.settle(rec, model.TaskStateTimedOut, nil, ErrDeadlineExceeded)
	} else {
		o.settle(rec, model.TaskStateCancelled, nil, ErrCancelled)
	}
}

func (o *Orchestrator) handleCancelTask(taskID string) error {
	rec, ok := o.tasks[taskID]
	if !ok {
		return ErrUnknownTask
	}
	o.settle(rec, model.TaskStateCancelled, nil, ErrCancelled)
	return nil
}

func (o *Orchestrator) handleStop() {
	ids := make([]string, 0, len(o.tasks))
	for id := range o.tasks {
		ids = append(ids, id)
	}
	for _, id := range ids {
		if rec, ok := o.tasks[id]; ok {
			o.settle(rec, model.TaskStateCancelled, nil, ErrCancelled)
		}
	}
}

// settle writes the terminal envelope, closes the handle, releases the
// task context and tells the observers and the task's group. Exactly one
// settle wins; later calls for the same record are no-ops.
func (o *Orchestrator) settle(rec *taskRecord, state model.TaskState, value interface{}, err error) {
	if rec.state.Terminal() {
		return
	}
	prev := rec.state
	rec.state = state

	now := time.Now()
	elapsed := now.Sub(rec.submitted)
	if rec.started != nil {
		elapsed = now.Sub(*rec.started)
	}
	rec.env = model.ResultEnvelope{
		TaskID:      rec.task.ID,
		Name:        rec.task.Name,
		Kind:        rec.task.Kind,
		State:       state,
		Value:       value,
		Err:         err,
		SubmittedAt: rec.submitted,
		StartedAt:   rec.started,
		Elapsed:     elapsed,
	}
	if err != nil {
		rec.env.Error = err.Error()
	}

	rec.cancel()

	if prev == model.TaskStatePending {
		o.pendingN.Add(-1)
	} else if prev == model.TaskStateRunning {
		o.runningN.Add(-1)
	}
	switch state {
	case model.TaskStateCompleted:
		o.completedN.Add(1)
	case model.TaskStateFailed:
		o.failedN.Add(1)
	case model.TaskStateTimedOut:
		o.timedOutN.Add(1)
	case model.TaskStateCancelled:
		o.cancelledN.Add(1)
	}
	o.observers.taskEnd(rec.task.ID, state, elapsed)

	// counters and observers land before the handle resolves
	close(rec.done)
	if cur, ok := o.tasks[rec.task.ID]; ok && cur == rec {
		delete(o.tasks, rec.task.ID)
	}

	if rec.groupID != "" {
		o.onMemberSettled(rec)
	}
}

// watch parks on the task context and reports expiry to the loop. It exits
// silently when the task settles first.
func (o *Orchestrator) watch(rec *taskRecord) {
	defer o.senderWG.Done()
	select {
	case <-rec.ctx.Done():
		o.evCh <- event{kind: evExpired, rec: rec}
	case <-rec.done:
	}
}

// runBody executes an io task body on its own goroutine.
func (o *Orchestrator) runBody(rec *taskRecord) {
	defer o.senderWG.Done()
	value, err := invoke(rec.ctx, rec.task.Func)
	o.evCh <- event{kind: evDone, rec: rec, value: value, err: err}
}

// worker drains the cpu queue. The admission slot frees at dequeue, so a
// task timed out while queued still gives its slot back here.
func (o *Orchestrator) worker(ctx context.Context) {
	defer o.senderWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-o.poolCh:
			<-o.slots
			select {
			case <-rec.done: // settled while queued; nothing to run
				continue
			default:
			}
			o.evCh <- event{kind: evStarted, rec: rec, at: time.Now()}
			value, err := invoke(rec.ctx, rec.task.Func)
			o.evCh <- event{kind: evDone, rec: rec, value: value, err: err}
		}
	}
}

// invoke shields the caller from panicking bodies: a panic becomes a
// failed result, never a dead worker.
func invoke(ctx context.Context, fn model.TaskFunc) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx)
}
