// Package dispatch decides whether a classified event gets a reply and sends
// it. Dispatch runs detached from the webhook request; failures are logged
// and dropped, never retried.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"ig-autoreply/internal/ig"
	"ig-autoreply/internal/logging"
	"ig-autoreply/internal/metrics"
	"ig-autoreply/internal/store"
	"ig-autoreply/internal/types"
)

// Sender is the outbound send-message API.
type Sender interface {
	SendText(ctx context.Context, token, recipientID, text string) (json.RawMessage, error)
	SendAction(ctx context.Context, token, recipientID, action string) (json.RawMessage, error)
}

type CredentialSource interface {
	Get() (store.Credentials, bool)
}

// Handler processes one event to completion.
type Handler interface {
	Dispatch(ctx context.Context, ev types.Classified) Outcome
}

// Scheduler hands an event to background work and returns immediately.
type Scheduler interface {
	Schedule(ev types.Classified)
}

type Outcome string

const (
	Replied         Outcome = "replied"
	Ignored         Outcome = "ignored"
	SkippedNoSender Outcome = "skipped_no_sender"
	NoCredentials   Outcome = "no_credentials"
	Failed          Outcome = "failed"
)

type Options struct {
	ReplyDelay time.Duration // pause between typing indicator and reply
	Typing     bool
	Logger     *slog.Logger
}

type Dispatcher struct {
	sender Sender
	creds  CredentialSource
	delay  time.Duration
	typing bool
	logger *slog.Logger

	missingCreds rate.Sometimes
}

func New(sender Sender, creds CredentialSource, opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Noop()
	}
	return &Dispatcher{
		sender:       sender,
		creds:        creds,
		delay:        opts.ReplyDelay,
		typing:       opts.Typing,
		logger:       logger.With(logging.Component("dispatcher")),
		missingCreds: rate.Sometimes{Interval: time.Minute},
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, ev types.Classified) Outcome {
	start := time.Now()
	out := d.dispatch(ctx, ev)
	metrics.DispatchOutcomes.WithLabelValues(string(out)).Inc()
	metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	return out
}

func (d *Dispatcher) dispatch(ctx context.Context, ev types.Classified) Outcome {
	log := d.logger.With(logging.Kind(string(kindOf(ev))), logging.Sender(ev.SenderID))

	if !ev.HasSender() {
		log.Warn("skipping event without sender id", slog.String("entry_id", ev.EntryID))
		return SkippedNoSender
	}

	msg, ok := ev.Event.(types.Message)
	if !ok || !ev.Replyable() {
		d.logIgnored(log, ev)
		return Ignored
	}

	creds, ok := d.creds.Get()
	if !ok {
		d.missingCreds.Do(func() {
			log.Warn("no credentials yet; complete /auth/login to enable replies")
		})
		log.Debug("dropping reply, no credentials")
		return NoCredentials
	}

	log.Info("received message", slog.String("mid", msg.MID), slog.Int("text_len", len(msg.Text)))

	if d.typing {
		if _, err := d.sender.SendAction(ctx, creds.AccessToken, ev.SenderID, ig.ActionTypingOn); err != nil {
			log.Warn("typing indicator failed", logging.Error(err))
		}
	}

	if err := wait(ctx, d.delay); err != nil {
		log.Warn("reply abandoned during delay", logging.Error(err))
		return Failed
	}

	if _, err := d.sender.SendText(ctx, creds.AccessToken, ev.SenderID, msg.Text); err != nil {
		log.Error("send reply failed", logging.Error(err))
		return Failed
	}

	log.Info("echoed message back", slog.String("mid", msg.MID))
	return Replied
}

func (d *Dispatcher) logIgnored(log *slog.Logger, ev types.Classified) {
	switch e := ev.Event.(type) {
	case types.Message:
		log.Debug("ignoring message", slog.Bool("is_echo", e.IsEcho),
			slog.Bool("is_deleted", e.IsDeleted), slog.Bool("has_attachments", e.HasAttachments))
	case types.MessageEdit:
		if e.PossibleFirstMessage() {
			// Unresolved upstream quirk; see DESIGN.md.
			log.Info("message_edit with num_edit=0 (possible first message); not replying",
				slog.String("mid", e.MID))
			return
		}
		log.Debug("ignoring message edit", slog.Int("num_edit", e.NumEdit))
	case types.Postback:
		log.Info("postback received", slog.String("payload", e.Payload))
	case types.Reaction:
		log.Info("reaction received", slog.String("action", e.Action), slog.String("reaction", e.Reaction))
	default:
		log.Debug("ignoring unknown messaging event")
	}
}

func kindOf(ev types.Classified) types.Kind {
	if ev.Event == nil {
		return types.KindUnknown
	}
	return ev.Event.Kind()
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
