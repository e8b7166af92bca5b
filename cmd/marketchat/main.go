package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"marketchat/internal/app/chat"
	"marketchat/internal/app/gateway"
	"marketchat/internal/app/presence"
	"marketchat/internal/app/services/auth"
	"marketchat/internal/infra/broker/kafka"
	"marketchat/internal/infra/catalog"
	"marketchat/internal/infra/config"
	ginserver "marketchat/internal/infra/http/gin"
	"marketchat/internal/infra/http/ws"
	"marketchat/internal/infra/inbox"
	"marketchat/internal/infra/notify"
	"marketchat/internal/infra/obs"
	"marketchat/internal/infra/outbox"
	"marketchat/internal/infra/security"
	"marketchat/internal/infra/storage/memory"
	"marketchat/internal/infra/storage/s3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		obs.NewLogger("dev").Warn(".env load failed", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger := obs.NewLogger("dev")
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("application init failed", "error", err)
		os.Exit(1)
	}
	defer app.close(logger)

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Checks: app.checks,
	}, app.handlers)

	app.startBackground(ctx, logger)

	go func() {
		<-ctx.Done()
		app.registry.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type application struct {
	handlers ginserver.Handlers
	registry *presence.Registry
	checks   map[string]obs.Check

	background []func(ctx context.Context) error
	closers    []func(ctx context.Context) error
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{checks: map[string]obs.Check{}}

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, store.close)
	for name, check := range store.checks {
		app.checks[name] = check
	}

	listings := memory.NewListingCatalog()
	if cfg.ListingsFixtures != "" {
		n, err := catalog.LoadFixtures(cfg.ListingsFixtures, listings)
		if err != nil {
			logger.Warn("listing fixtures load failed", "error", err, "path", cfg.ListingsFixtures)
		} else {
			logger.Info("listing fixtures loaded", "count", n)
		}
	}

	registry := presence.NewRegistry(logger)
	app.registry = registry

	notifier, err := app.buildNotifier(ctx, cfg, store, logger)
	if err != nil {
		return nil, err
	}
	if err := app.subscribeListings(ctx, cfg, store, listings, logger); err != nil {
		return nil, err
	}

	chatService := &chat.Service{
		Store:            chat.MessageStore{Repo: store.messages, Catalog: listings},
		Blocks:           store.blocks,
		Users:            store.users,
		Presence:         registry,
		Notifier:         notifier,
		Logger:           logger,
		OperationTimeout: cfg.OperationTimeout,
	}
	gw := &gateway.Gateway{
		Chat:     chatService,
		Presence: registry,
		Logger:   logger,
	}
	authService := &auth.Service{
		Tokens: security.JWTVerifier{Secret: []byte(cfg.JWTSecret), Issuer: cfg.JWTIssuer},
		Users:  store.users,
		Logger: logger,
	}

	attachments, err := app.buildAttachmentStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	app.handlers = ginserver.Handlers{
		Chat:   ginserver.ChatHandler{Chat: chatService, Logger: logger},
		Blocks: ginserver.BlockHandler{Chat: chatService, Logger: logger},
		Realtime: ginserver.RealtimeHandler{
			Dispatcher: gw,
			Presence:   registry,
			Upgrader:   ws.NewUpgrader(cfg.CORSAllowedOrigins),
			Options: ws.Options{
				SendBuffer:      cfg.WSSendBuffer,
				PingInterval:    cfg.WSPingInterval,
				PongWait:        cfg.WSPongWait,
				MaxMessageBytes: cfg.WSMaxMessageBytes,
			},
			BaseContext: ctx,
			Logger:      logger,
		},
		Attachments: ginserver.AttachmentHandler{
			Store:    attachments,
			MaxBytes: cfg.AttachmentMaxBytes,
			Logger:   logger,
		},
		AuthMiddleware: ginserver.AuthMiddleware{Service: authService, Logger: logger}.Handle,
	}
	return app, nil
}

// buildNotifier publishes offline notifications to Kafka when brokers are
// configured and logs them otherwise. With Mongo available they go through the
// outbox first.
func (a *application) buildNotifier(ctx context.Context, cfg config.Config, store storage, logger *slog.Logger) (chat.Notifier, error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("kafka not configured, notifications are logged only")
		return notify.LogNotifier{Logger: logger}, nil
	}
	producer, err := kafka.NewProducer(cfg.KafkaBrokers, kafka.NewConfig("marketchat-notify"), logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return producer.Close() })
	topic := kafka.Topic(cfg.KafkaTopicPrefix, cfg.NotificationsTopic)

	if store.mongoDB == nil {
		n := notify.NewKafkaNotifier(producer, topic, 0, logger)
		a.background = append(a.background, n.Run)
		return n, nil
	}
	box, err := outbox.NewStore(ctx, store.mongoDB)
	if err != nil {
		return nil, err
	}
	worker := &notify.OutboxWorker{
		Store:     box,
		Publisher: producer,
		Topic:     topic,
		Backoff:   []time.Duration{time.Second, 5 * time.Second, 30 * time.Second, 2 * time.Minute},
		Logger:    logger,
	}
	a.background = append(a.background, worker.Run)
	return notify.OutboxNotifier{Store: box, Logger: logger}, nil
}

// subscribeListings replays the listings topic into the in-memory set. Each
// process uses its own consumer group so a restart rebuilds the set from the
// oldest retained event.
func (a *application) subscribeListings(ctx context.Context, cfg config.Config, store storage, listings *memory.ListingCatalog, logger *slog.Logger) error {
	if len(cfg.KafkaBrokers) == 0 {
		return nil
	}
	instance := cfg.KafkaGroupID + "-catalog-" + uuid.NewString()
	projection := &catalog.Projection{Listings: listings, Logger: logger}
	if store.mongoDB != nil {
		seen, err := inbox.NewStore(ctx, store.mongoDB, instance, 0)
		if err != nil {
			return err
		}
		projection.Inbox = seen
	}
	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, instance, kafka.NewConfig("marketchat-catalog"), projection, logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func(context.Context) error { return consumer.Close() })

	topic := kafka.Topic(cfg.KafkaTopicPrefix, cfg.ListingsTopic)
	a.background = append(a.background, func(ctx context.Context) error {
		return consumer.Run(ctx, []string{topic})
	})
	return nil
}

func (a *application) buildAttachmentStore(cfg config.Config, logger *slog.Logger) (s3.AttachmentStore, error) {
	if cfg.S3Endpoint == "" {
		logger.Info("s3 not configured, attachment uploads disabled")
		return s3.NoopStore{}, nil
	}
	client, err := s3.NewClient(s3.Options{
		Endpoint:       cfg.S3Endpoint,
		PublicEndpoint: cfg.S3PublicEndpoint,
		AccessKey:      cfg.S3AccessKey,
		SecretKey:      cfg.S3SecretKey,
		Bucket:         cfg.S3Bucket,
		UseSSL:         cfg.S3UseSSL,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.checks["s3"] = client.Ping
	return client, nil
}

func (a *application) startBackground(ctx context.Context, logger *slog.Logger) {
	for _, run := range a.background {
		go func(run func(context.Context) error) {
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("background worker stopped", "error", err)
			}
		}(run)
	}
}

// close releases resources in reverse order of acquisition.
func (a *application) close(logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logger.Warn("resource close failed", "error", err)
		}
	}
}
