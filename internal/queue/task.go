package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"ig-autoreply/internal/logging"
	"ig-autoreply/internal/types"
)

const (
	QueueDefault = "default"

	TypeSendReply = "ig:send_reply"
)

// TaskSendReplyPayload carries a replyable message. Credentials are read by
// the worker at run time, not stored in Redis.
type TaskSendReplyPayload struct {
	EntryID   string `json:"entry_id"`
	SenderID  string `json:"sender_id"`
	MID       string `json:"mid"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

func NewSendReplyTask(p TaskSendReplyPayload, timeout time.Duration) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, nil, err
	}
	t := asynq.NewTask(TypeSendReply, b, asynq.Queue(QueueDefault))
	opts := []asynq.Option{
		asynq.MaxRetry(0), // failed sends are dropped
		asynq.Timeout(timeout),
	}
	return t, opts, nil
}

// Event rebuilds the classified message from a payload.
func (p TaskSendReplyPayload) Event() types.Classified {
	return types.Classified{
		EntryID:   p.EntryID,
		SenderID:  p.SenderID,
		Timestamp: p.Timestamp,
		Event:     types.Message{MID: p.MID, Text: p.Text},
	}
}

type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler enqueues replyable messages as asynq tasks. Everything else is
// handed to inert so it is still logged and counted.
type Scheduler struct {
	client  Enqueuer
	inert   func(types.Classified)
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewScheduler(client Enqueuer, inert func(types.Classified), timeout time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Noop()
	}
	return &Scheduler{client: client, inert: inert, timeout: timeout, logger: logger.With(logging.Component("queue"))}
}

func (s *Scheduler) Schedule(ev types.Classified) {
	msg, ok := ev.Event.(types.Message)
	if !ok || !ev.Replyable() || !ev.HasSender() {
		if s.inert != nil {
			s.inert(ev)
		}
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Warn("scheduler is shutting down; dropping reply", logging.Sender(ev.SenderID))
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		task, opts, err := NewSendReplyTask(TaskSendReplyPayload{
			EntryID:   ev.EntryID,
			SenderID:  ev.SenderID,
			MID:       msg.MID,
			Text:      msg.Text,
			Timestamp: ev.Timestamp,
		}, s.timeout)
		if err != nil {
			s.logger.Error("build reply task", logging.Error(err))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		info, err := s.client.EnqueueContext(ctx, task, opts...)
		if err != nil {
			s.logger.Error("enqueue reply task", logging.Error(err), logging.Sender(ev.SenderID))
			return
		}
		s.logger.Debug("reply task enqueued", slog.String("task_id", info.ID), logging.Sender(ev.SenderID))
	}()
}

// Shutdown stops accepting events and waits for pending enqueues until ctx
// ends. The asynq client must stay open until it returns.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("shutdown grace period elapsed with enqueues in flight")
		return ctx.Err()
	}
}
