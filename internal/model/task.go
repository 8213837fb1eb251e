package model

import (
	"context"
	"time"
)

// TaskKind selects the execution strategy: io tasks get their own
// goroutine, cpu tasks go through the bounded worker pool.
type TaskKind string

const (
	TaskKindIO  TaskKind = "io"
	TaskKindCPU TaskKind = "cpu"
)

func (k TaskKind) Valid() bool { return k == TaskKindIO || k == TaskKindCPU }

type TaskState string

const (
	TaskStatePending   TaskState = "pending"
	TaskStateRunning   TaskState = "running"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
	TaskStateTimedOut  TaskState = "timed_out"
	TaskStateCancelled TaskState = "cancelled"
)

// Terminal reports whether the state is final. A task reaches exactly one
// terminal state, exactly once.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateTimedOut, TaskStateCancelled:
		return true
	}
	return false
}

type TaskFunc func(ctx context.Context) (interface{}, error)

// Task is a unit of work handed to the orchestrator. ID is assigned at
// submission when empty. Deadline zero means the orchestrator default
// applies.
type Task struct {
	ID       string
	Name     string
	Kind     TaskKind
	Deadline time.Duration
	Func     TaskFunc
}
