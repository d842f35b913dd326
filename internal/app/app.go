package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"limoride/webhook-service/internal/config"
	"limoride/webhook-service/internal/eventlog"
	"limoride/webhook-service/internal/gateway"
	"limoride/webhook-service/internal/httpapi"
	"limoride/webhook-service/internal/messaging"
	"limoride/webhook-service/internal/notify"
	"limoride/webhook-service/internal/storage"
	"limoride/webhook-service/internal/webhook"
	"limoride/webhook-service/internal/ws"
)

type App struct {
	cfg        config.Config
	logger     *slog.Logger
	store      *storage.Store
	events     *eventlog.Store
	dispatcher *webhook.Dispatcher
	publisher  messaging.Publisher
	outbox     *messaging.OutboxRelay
	hub        *ws.Hub
	httpSrv    *http.Server
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	store, err := storage.New(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return nil, err
	}

	events := eventlog.NewStore(store.Pool())
	stripeGateway := gateway.New(cfg.StripeAPIKey, logger)
	notifier := notify.NewClient(cfg.NotifierBaseURL, cfg.AdminEmail, cfg.AdminPhone, cfg.NotifierTimeout)

	dispatcher := webhook.NewDispatcher(cfg.StripeWebhookSecret, stripeGateway, notifier, events, logger)

	publisher, err := messaging.NewRabbitPublisher(cfg.RabbitURL, cfg.EventsExchange)
	if err != nil {
		store.Close()
		return nil, err
	}

	hub := ws.NewHub()
	dispatcher.AttachFeed(hub)
	feed := ws.NewHandler(hub, events, logger)

	api := httpapi.NewServer(dispatcher, http.HandlerFunc(feed.ServeWS), logger)
	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api,
	}

	outbox := messaging.NewOutboxRelay(store.Pool(), publisher, cfg.OutboxInterval, cfg.OutboxBatch, logger)

	return &App{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		events:     events,
		dispatcher: dispatcher,
		publisher:  publisher,
		outbox:     outbox,
		hub:        hub,
		httpSrv:    httpSrv,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)

	go a.hub.Run(ctx)
	a.outbox.Start(ctx)

	go func() {
		a.logger.Info("webhook http server listening", "addr", a.cfg.HTTPAddr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *App) Close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.ShutdownGracePeriod)
	defer cancel()
	_ = a.httpSrv.Shutdown(shutdownCtx)
	a.publisher.Close()
	a.store.Close()
}

func Run() error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer app.Close(ctx)

	return app.Run(ctx)
}
