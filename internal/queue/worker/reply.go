package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"ig-autoreply/internal/dispatch"
	"ig-autoreply/internal/logging"
	"ig-autoreply/internal/queue"
)

func registerReplyHandler(mux *asynq.ServeMux, h dispatch.Handler, logger *slog.Logger) {
	mux.HandleFunc(queue.TypeSendReply, func(ctx context.Context, t *asynq.Task) error {
		var p queue.TaskSendReplyPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("decode reply payload: %v: %w", err, asynq.SkipRetry)
		}

		out := h.Dispatch(ctx, p.Event())
		logger.Debug("reply task done", logging.Outcome(string(out)), logging.Sender(p.SenderID))

		// The dispatcher already logged failures; returning nil keeps asynq
		// from archiving tasks that are intentionally never retried.
		return nil
	})
}
