package worker

import (
	"log/slog"

	"github.com/hibiken/asynq"

	"ig-autoreply/internal/dispatch"
	"ig-autoreply/internal/logging"
)

// RegisterHandlers binds every task handler to the asynq mux.
func RegisterHandlers(mux *asynq.ServeMux, h dispatch.Handler, logger *slog.Logger) {
	if logger == nil {
		logger = logging.Noop()
	}
	registerReplyHandler(mux, h, logger.With(logging.Component("worker")))
}
