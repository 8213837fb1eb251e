package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/grand-thief-cash/yggdrasil/internal/model"
)

// groupRecord is owned by the scheduler loop, like taskRecord. The report
// is built once when the last member settles; handle readers see it only
// after done closes.
type groupRecord struct {
	id        string
	policy    model.GroupPolicy
	members   []*taskRecord // submission order
	remaining int
	submitted time.Time
	cancelled bool // fail-fast tripped or CancelGroup arrived
	completed bool
	report    *model.GroupReport
	done      chan struct{}
	handle    *GroupHandle
}

// GroupHandle is the caller's view of one submitted group.
type GroupHandle struct {
	id   string
	done chan struct{}
	grp  *groupRecord
}

func (h *GroupHandle) ID() string            { return h.id }
func (h *GroupHandle) Done() <-chan struct{} { return h.done }

// Wait blocks until every member is terminal or ctx gives up. The second
// return mirrors the report's group error: non-nil only for a fail-fast
// group with failed members.
func (h *GroupHandle) Wait(ctx context.Context) (*model.GroupReport, error) {
	select {
	case <-h.done:
		return h.grp.report, h.grp.report.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Report returns the group report and true once the group has completed.
func (h *GroupHandle) Report() (*model.GroupReport, bool) {
	select {
	case <-h.done:
		return h.grp.report, true
	default:
		return nil, false
	}
}

// SubmitGroup admits a batch of tasks that complete as a unit. Admission
// is all-or-nothing: the call blocks until every member has a slot, and
// gives back everything it took when ctx expires first. Groups admit one
// at a time, two groups racing for the last slots would otherwise both
// hold partial sets and starve each other.
func (o *Orchestrator) SubmitGroup(ctx context.Context, tasks []model.Task, policy model.GroupPolicy) (*GroupHandle, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("orchestrator: empty task group")
	}
	if len(tasks) > cap(o.slots) {
		return nil, fmt.Errorf("orchestrator: group of %d tasks exceeds max pending %d", len(tasks), cap(o.slots))
	}
	if policy == "" {
		policy = model.PolicyCollectAll
	}
	if !policy.Valid() {
		return nil, fmt.Errorf("orchestrator: unknown group policy %q", policy)
	}
	for i := range tasks {
		if err := o.checkTask(&tasks[i]); err != nil {
			return nil, err
		}
	}
	if o.stopped.Load() {
		return nil, ErrStopped
	}

	o.groupMu.Lock()
	defer o.groupMu.Unlock()
	for acquired := 0; acquired < len(tasks); acquired++ {
		select {
		case o.slots <- struct{}{}:
		case <-ctx.Done():
			o.releaseSlots(acquired)
			return nil, ctx.Err()
		case <-o.baseCtx.Done():
			o.releaseSlots(acquired)
			return nil, ErrStopped
		}
	}

	o.sendMu.RLock()
	defer o.sendMu.RUnlock()
	if o.stopped.Load() {
		o.releaseSlots(len(tasks))
		return nil, ErrStopped
	}

	now := time.Now()
	grp := &groupRecord{
		id:        uuid.NewString(),
		policy:    policy,
		submitted: now,
		done:      make(chan struct{}),
	}
	grp.handle = &GroupHandle{id: grp.id, done: grp.done, grp: grp}
	recs := make([]*taskRecord, len(tasks))
	for i, t := range tasks {
		recs[i] = o.newRecord(t, grp.id, now)
	}
	grp.members = recs
	grp.remaining = len(recs)

	o.evCh <- event{kind: evSubmitGroup, group: grp, recs: recs}
	return grp.handle, nil
}

func (o *Orchestrator) releaseSlots(n int) {
	for i := 0; i < n; i++ {
		<-o.slots
	}
}

// CancelGroup settles every non-terminal member of a live group as
// cancelled. Completed groups are no longer tracked and answer
// ErrUnknownGroup.
func (o *Orchestrator) CancelGroup(groupID string) error {
	return o.ask(event{kind: evCancelGroup, groupID: groupID, reply: make(chan error, 1)})
}

// handleSubmitGroup registers every member before dispatching any. A
// duplicate id settles its member at registration, and under fail-fast
// that settles the whole group, so dispatch has to re-check state and
// give back the slots of members that are already terminal.
func (o *Orchestrator) handleSubmitGroup(grp *groupRecord, recs []*taskRecord) {
	o.groups[grp.id] = grp
	o.groupsN.Add(1)
	o.pendingN.Add(int64(len(recs)))

	for _, rec := range recs {
		if rec.state.Terminal() {
			continue // settled by an earlier member's fail-fast trip
		}
		if _, dup := o.tasks[rec.task.ID]; dup {
			o.settle(rec, model.TaskStateFailed, nil, fmt.Errorf("orchestrator: duplicate task id %s", rec.task.ID))
			continue
		}
		o.tasks[rec.task.ID] = rec
		o.senderWG.Add(1)
		go o.watch(rec)
	}

	for _, rec := range recs {
		if rec.state.Terminal() {
			<-o.slots // settled before dispatch, still holds its admission slot
			continue
		}
		o.dispatch(rec)
	}
}

func (o *Orchestrator) handleCancelGroup(groupID string) error {
	grp, ok := o.groups[groupID]
	if !ok {
		return ErrUnknownGroup
	}
	grp.cancelled = true
	o.cancelGroupMembers(grp)
	return nil
}

// onMemberSettled runs inside settle for group members. Under fail-fast a
// failed member cancels its live siblings; the last settle closes out the
// group.
func (o *Orchestrator) onMemberSettled(rec *taskRecord) {
	grp, ok := o.groups[rec.groupID]
	if !ok {
		return
	}
	grp.remaining--
	if grp.policy == model.PolicyFailFast && rec.state == model.TaskStateFailed && !grp.cancelled {
		grp.cancelled = true
		o.cancelGroupMembers(grp)
	}
	if grp.remaining == 0 && !grp.completed {
		o.completeGroup(grp)
	}
}

func (o *Orchestrator) cancelGroupMembers(grp *groupRecord) {
	for _, rec := range grp.members {
		if !rec.state.Terminal() {
			o.settle(rec, model.TaskStateCancelled, nil, ErrCancelled)
		}
	}
}

// completeGroup builds the report in member submission order and releases
// the handle. Completed groups leave the map; their reports live on
// through the handle.
func (o *Orchestrator) completeGroup(grp *groupRecord) {
	grp.completed = true

	report := &model.GroupReport{
		GroupID:     grp.id,
		Policy:      grp.policy,
		Results:     make([]model.ResultEnvelope, 0, len(grp.members)),
		StateCounts: make(map[model.TaskState]int),
		SubmittedAt: grp.submitted,
		Elapsed:     time.Since(grp.submitted),
	}
	var failures []error
	for _, rec := range grp.members {
		report.Results = append(report.Results, rec.env)
		report.StateCounts[rec.env.State]++
		if rec.env.State == model.TaskStateFailed {
			failures = append(failures, fmt.Errorf("task %s: %w", rec.task.ID, rec.env.Err))
		}
	}
	if grp.policy == model.PolicyFailFast && len(failures) > 0 {
		agg := &AggregateError{GroupID: grp.id, Errs: failures}
		report.Err = agg
		report.Error = agg.Error()
	}
	grp.report = report

	delete(o.groups, grp.id)
	o.groupsN.Add(-1)
	close(grp.done)
}
