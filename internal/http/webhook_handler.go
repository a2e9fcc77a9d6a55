package httpserver

import (
	"crypto/subtle"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"ig-autoreply/internal/classifier"
	"ig-autoreply/internal/dispatch"
	"ig-autoreply/internal/logging"
	"ig-autoreply/internal/metrics"
	"ig-autoreply/internal/signature"
	"ig-autoreply/internal/types"
)

type WebhookHandler struct {
	verifier    *signature.Verifier
	verifyToken string
	scheduler   dispatch.Scheduler
	logger      *slog.Logger
}

func NewWebhookHandler(
	verifier *signature.Verifier,
	verifyToken string,
	scheduler dispatch.Scheduler,
	logger *slog.Logger,
) *WebhookHandler {
	if logger == nil {
		logger = logging.Noop()
	}
	return &WebhookHandler{
		verifier:    verifier,
		verifyToken: verifyToken,
		scheduler:   scheduler,
		logger:      logger.With(logging.Component("webhook")),
	}
}

// HandleVerify answers the hub.challenge subscription handshake.
func (h *WebhookHandler) HandleVerify(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")

	if mode == "subscribe" && h.tokenMatches(token) {
		h.logger.Info("webhook verified")
		metrics.WebhookRequests.WithLabelValues(http.MethodGet, "verified").Inc()
		return c.String(http.StatusOK, challenge)
	}

	h.logger.Warn("webhook verification failed", slog.String("mode", mode), slog.Bool("token_present", token != ""))
	metrics.WebhookRequests.WithLabelValues(http.MethodGet, "forbidden").Inc()
	return c.NoContent(http.StatusForbidden)
}

func (h *WebhookHandler) tokenMatches(token string) bool {
	if h.verifyToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) == 1
}

// HandleEvents verifies, classifies and acknowledges a delivery, then hands
// each event to the scheduler. Nothing after the acknowledgment can change
// the response.
func (h *WebhookHandler) HandleEvents(c echo.Context) error {
	// 1) Raw body, untouched
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		h.logger.Error("read webhook body", logging.Error(err))
		metrics.WebhookRequests.WithLabelValues(http.MethodPost, "error").Inc()
		return c.JSON(http.StatusInternalServerError, errorBody("failed to read request body"))
	}

	// 2) X-Hub-Signature-256 over those bytes
	if !h.verifier.Check(body, c.Request().Header.Get(signature.Header)) {
		metrics.WebhookRequests.WithLabelValues(http.MethodPost, "forbidden").Inc()
		return c.NoContent(http.StatusForbidden)
	}

	// 3) Parse + classify
	env, err := classifier.ParseEnvelope(body)
	if err != nil {
		h.logger.Error("parse webhook", logging.Error(err), slog.Int("body_len", len(body)))
		metrics.WebhookRequests.WithLabelValues(http.MethodPost, "error").Inc()
		return c.JSON(http.StatusInternalServerError, errorBody("invalid webhook payload"))
	}
	events := classifier.Collect(env)
	for _, ev := range events {
		metrics.EventsClassified.WithLabelValues(string(ev.Event.Kind())).Inc()
	}
	if env.Object != types.PlatformInstagram {
		h.logger.Info("ignoring webhook for other object", slog.String("object", env.Object))
	}

	// 4) Quick ACK, then detach
	metrics.WebhookRequests.WithLabelValues(http.MethodPost, "accepted").Inc()
	if err := c.NoContent(http.StatusOK); err != nil {
		return err
	}
	for _, ev := range events {
		if !ev.HasSender() {
			h.logger.Warn("skipping messaging event without sender",
				logging.Kind(string(ev.Event.Kind())), slog.String("entry_id", ev.EntryID))
			continue
		}
		h.scheduler.Schedule(ev)
	}
	return nil
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
