package orchestrator

import (
	"time"

	"github.com/grand-thief-cash/yggdrasil/internal/model"
)

// TaskObserver receives task transitions from the scheduler loop. Both
// callbacks run on the loop goroutine: implementations must return quickly
// and never call back into the orchestrator. A task cancelled before it
// ever ran gets OnTaskEnd without a preceding OnTaskStart.
type TaskObserver interface {
	OnTaskStart(taskID, groupID string)
	OnTaskEnd(taskID string, state model.TaskState, elapsed time.Duration)
}

// observerSet fans out to every registered observer in registration order.
type observerSet struct {
	obs []TaskObserver
}

func (s *observerSet) add(o TaskObserver) {
	if o != nil {
		s.obs = append(s.obs, o)
	}
}

func (s *observerSet) taskStart(taskID, groupID string) {
	for _, o := range s.obs {
		o.OnTaskStart(taskID, groupID)
	}
}

func (s *observerSet) taskEnd(taskID string, state model.TaskState, elapsed time.Duration) {
	for _, o := range s.obs {
		o.OnTaskEnd(taskID, state, elapsed)
	}
}
