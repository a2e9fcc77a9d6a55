package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ig-autoreply/internal/logging"
)

const (
	serviceName    = "Instagram Chatbot API"
	serviceVersion = "1.0.0"
	webhookLimit   = "1M"
)

type Options struct {
	Environment string
	FrontendURL string
	Logger      *slog.Logger
	Now         func() time.Time
}

// NewServer wires middleware and every route onto a fresh echo instance.
func NewServer(webhook *WebhookHandler, auth *AuthHandler, opts Options) *echo.Echo {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Noop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = jsonErrorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(requestLogger(logger.With(logging.Component("http"))))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{opts.FrontendURL},
		AllowHeaders: []string{echo.HeaderOrigin, "X-Requested-With", echo.HeaderContentType, echo.HeaderAccept},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
	}))

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"name":    serviceName,
			"version": serviceVersion,
			"endpoints": map[string]any{
				"health":  "/health",
				"metrics": "/metrics",
				"auth": map[string]string{
					"login":    "/auth/login",
					"callback": "/auth/callback",
					"status":   "/auth/status",
				},
				"webhook": map[string]string{
					"verify":  "GET /webhook",
					"receive": "POST /webhook",
				},
			},
		})
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":      "ok",
			"timestamp":   now().UTC().Format(time.RFC3339),
			"environment": opts.Environment,
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	wh := e.Group("/webhook", middleware.BodyLimit(webhookLimit))
	wh.GET("", webhook.HandleVerify)
	wh.POST("", webhook.HandleEvents)

	if auth != nil {
		a := e.Group("/auth")
		a.GET("/login", auth.HandleLogin)
		a.GET("/callback", auth.HandleCallback)
		a.GET("/status", auth.HandleStatus)
	}

	return e
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("path", v.URIPath),
				slog.Int("status", v.Status),
				slog.Int64("duration_ms", v.Latency.Milliseconds()),
				slog.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				attrs = append(attrs, logging.Error(v.Error))
			}
			logger.LogAttrs(context.Background(), level, "request", attrs...)
			return nil
		},
	})
}

// jsonErrorHandler renders every error as {"error": "..."}.
func jsonErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		msg := "Internal server error"

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			switch m := he.Message.(type) {
			case string:
				msg = m
			default:
				msg = http.StatusText(code)
			}
			if code == http.StatusNotFound {
				msg = "Not found"
			}
		} else {
			logger.Error("unhandled error", logging.Error(err))
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, errorBody(msg))
		}
		if werr != nil {
			logger.Error("write error response", logging.Error(werr))
		}
	}
}
