package queue

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// dispatchMaxRetry bounds asynq-level retries of an aborted run. Per-job
// retries are tracked on the job row, not here.
const dispatchMaxRetry = 3

// Enqueuer is the part of *asynq.Client the triggers need.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueueDispatch queues a dispatch run. Identical payloads are collapsed for
// uniqueTTL; a collapsed enqueue reports false with no error.
func EnqueueDispatch(client Enqueuer, payload DispatchPayload, uniqueTTL time.Duration) (bool, error) {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}

	task := asynq.NewTask(TaskTypeDispatch, taskPayload)
	return enqueueUnique(client, task, uniqueTTL, asynq.MaxRetry(dispatchMaxRetry))
}

func EnqueueReconcile(client Enqueuer, uniqueTTL time.Duration) (bool, error) {
	task := asynq.NewTask(TaskTypeReconcile, nil)
	return enqueueUnique(client, task, uniqueTTL, asynq.MaxRetry(0))
}

func enqueueUnique(client Enqueuer, task *asynq.Task, uniqueTTL time.Duration, opts ...asynq.Option) (bool, error) {
	if uniqueTTL > 0 {
		opts = append(opts, asynq.Unique(uniqueTTL))
	}

	info, err := client.Enqueue(task, opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			slog.Debug("task already queued", "type", task.Type())
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	slog.Debug("task queued", "type", task.Type(), "id", info.ID)
	return true, nil
}
