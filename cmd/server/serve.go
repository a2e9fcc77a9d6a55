package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"ig-autoreply/internal/config"
	"ig-autoreply/internal/dispatch"
	httpserver "ig-autoreply/internal/http"
	"ig-autoreply/internal/ig"
	"ig-autoreply/internal/logging"
	"ig-autoreply/internal/oauth"
	"ig-autoreply/internal/queue"
	"ig-autoreply/internal/queue/worker"
	"ig-autoreply/internal/signature"
	"ig-autoreply/internal/store"
	"ig-autoreply/internal/types"
)

type shutdowner func(ctx context.Context) error

func runServe(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)

	if missing := cfg.MissingRecommended(); len(missing) > 0 {
		logger.Warn("missing recommended environment variables", slog.String("vars", strings.Join(missing, ",")))
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	creds := store.NewCredentialStore()
	if cfg.IGPageAccessToken != "" && cfg.IGAccountID != "" {
		creds.Set(store.Credentials{AccessToken: cfg.IGPageAccessToken, AccountID: cfg.IGAccountID})
		logger.Info("credentials seeded from environment", slog.String("account_id", cfg.IGAccountID))
	}

	states, closeStates, err := newStateStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStates()

	client := ig.NewClient(cfg.GraphAPIBase, cfg.GraphAPIVersion)
	client.HTTP.Timeout = cfg.SendTimeout

	d := dispatch.New(client, creds, dispatch.Options{
		ReplyDelay: cfg.ReplyDelay,
		Typing:     cfg.TypingIndicator,
		Logger:     logger,
	})
	taskTimeout := cfg.ReplyDelay + 2*cfg.SendTimeout

	var (
		scheduler dispatch.Scheduler
		drain     []shutdowner
		runWorker func() error
	)
	switch cfg.DispatchMode {
	case config.DispatchQueue:
		opt := asynq.RedisClientOpt{
			Addr:     cfg.AsynqRedisAddr,
			Password: cfg.AsynqRedisPassword,
			DB:       cfg.AsynqRedisDB,
		}
		asynqClient := asynq.NewClient(opt)
		defer asynqClient.Close()

		// Non-replyable events never touch Redis; they are only logged and counted.
		inert := func(ev types.Classified) { d.Dispatch(context.Background(), ev) }
		qs := queue.NewScheduler(asynqClient, inert, taskTimeout, logger)
		scheduler = qs

		srv := asynq.NewServer(opt, asynq.Config{
			Concurrency:     cfg.AsynqConcurrency,
			Queues:          map[string]int{queue.QueueDefault: 1},
			ShutdownTimeout: cfg.DispatchGrace,
			Logger:          asynqLogger{logger.With(logging.Component("asynq"))},
		})
		mux := asynq.NewServeMux()
		worker.RegisterHandlers(mux, d, logger)
		runWorker = func() error { return srv.Start(mux) }
		drain = append(drain, qs.Shutdown, func(context.Context) error {
			srv.Shutdown()
			return nil
		})
	default:
		pool := dispatch.NewPool(d, taskTimeout, logger)
		scheduler = pool
		drain = append(drain, pool.Shutdown)
	}

	flow := oauth.NewFlow(oauth.Options{
		AppID:       cfg.IGAppID,
		AppSecret:   cfg.IGAppSecret,
		RedirectURI: cfg.IGRedirectURI,
		GraphBase:   cfg.GraphAPIBase,
		Version:     cfg.GraphAPIVersion,
		HTTPClient:  client.HTTP,
		Logger:      logger,
	}, client, states, creds)

	verifier := signature.NewVerifier(cfg.IGAppSecret, signature.Mode(cfg.SignatureMode), logger)
	webhook := httpserver.NewWebhookHandler(verifier, cfg.WebhookVerifyToken, scheduler, logger)
	auth := httpserver.NewAuthHandler(flow, creds, cfg.FrontendURL, logger)
	e := httpserver.NewServer(webhook, auth, httpserver.Options{
		Environment: cfg.AppEnv,
		FrontendURL: cfg.FrontendURL,
		Logger:      logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	if runWorker != nil {
		g.Go(func() error {
			if err := runWorker(); err != nil {
				return errors.Wrap(err, "asynq server")
			}
			return nil
		})
	}
	g.Go(func() error {
		s := &http.Server{
			Addr:              cfg.HTTPAddr,
			ReadHeaderTimeout: 5 * time.Second,
		}
		logger.Info("http listening",
			slog.String("addr", cfg.HTTPAddr),
			slog.String("env", cfg.AppEnv),
			slog.String("dispatch_mode", cfg.DispatchMode),
			slog.String("signature_mode", string(verifier.Mode())),
		)
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.DispatchGrace)
		defer cancel()
		if err := e.Shutdown(sctx); err != nil {
			logger.Error("http shutdown", logging.Error(err))
		}
		for _, fn := range drain {
			if err := fn(sctx); err != nil {
				logger.Warn("dispatch drain incomplete", logging.Error(err))
			}
		}
		return nil
	})

	err = g.Wait()
	logger.Info("stopped")
	return err
}

// newStateStore picks Redis when REDIS_ADDR is set, otherwise an in-process map.
func newStateStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.StateStore, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Info("oauth state store: memory")
		return store.NewMemoryStateStore(), func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	kv := store.NewRedisStore(rdb)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := kv.Ping(pctx); err != nil {
		_ = rdb.Close()
		return nil, nil, errors.Wrap(err, "redis ping")
	}
	logger.Info("oauth state store: redis", slog.String("addr", cfg.RedisAddr))
	return kv, func() { _ = rdb.Close() }, nil
}

// asynqLogger routes asynq's internal logging through slog.
type asynqLogger struct{ l *slog.Logger }

func (a asynqLogger) Debug(args ...any) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...any)  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...any) { a.l.Error(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...any) {
	a.l.Error(fmt.Sprint(args...))
	os.Exit(1)
}
