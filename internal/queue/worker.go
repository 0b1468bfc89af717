package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/service"
)

// Mux routes both task types to this queue's handlers.
func (q *Queue) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeDispatch, q.HandleDispatchTask)
	mux.HandleFunc(TaskTypeReconcile, q.HandleReconcileTask)
	return mux
}

func (q *Queue) HandleDispatchTask(ctx context.Context, task *asynq.Task) error {
	var payload DispatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		slog.Error("malformed dispatch payload", "error", err)
		return fmt.Errorf("error decoding payload: %v: %w", err, asynq.SkipRetry)
	}

	platform, err := models.ParsePlatform(payload.Platform)
	if err != nil {
		slog.Error("dispatch task for unknown platform", "platform", payload.Platform)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	_, err = q.ds.Run(ctx, service.RunRequest{Platform: platform, OwnerID: payload.OwnerID})
	if errors.Is(err, service.ErrUnknownPlatform) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

func (q *Queue) HandleReconcileTask(ctx context.Context, task *asynq.Task) error {
	_, err := q.rs.Sweep(ctx)
	return err
}
