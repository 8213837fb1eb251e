package tracing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/grand-thief-cash/yggdrasil/infra/components/logging"
	"github.com/grand-thief-cash/yggdrasil/internal/model"
)

// LogObserver writes one debug line per transition. Useful in development,
// noisy beyond that; wire it only when the log level allows.
type LogObserver struct{}

func NewLogObserver() LogObserver { return LogObserver{} }

func (LogObserver) OnTaskStart(taskID, groupID string) {
	logging.Debug(context.Background(), "task started",
		zap.String("task_id", taskID),
		zap.String("group_id", groupID),
	)
}

func (LogObserver) OnTaskEnd(taskID string, state model.TaskState, elapsed time.Duration) {
	logging.Debug(context.Background(), "task settled",
		zap.String("task_id", taskID),
		zap.String("state", string(state)),
		zap.Duration("elapsed", elapsed),
	)
}
