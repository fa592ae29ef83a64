package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"updatebot/internal/awsutil"
	"updatebot/internal/config"
	"updatebot/internal/coordinator"
	"updatebot/internal/gateway"
	"updatebot/internal/httpserver"
	"updatebot/internal/inbound"
	"updatebot/internal/ingest"
	"updatebot/internal/logging"
	"updatebot/internal/observability"
	"updatebot/internal/providers/settings"
	"updatebot/internal/providers/telegram"
	"updatebot/internal/publisher"
	sqsqueue "updatebot/internal/queue/sqs"
	"updatebot/internal/store"
	"updatebot/internal/store/memory"
	"updatebot/internal/store/pg"
)

func main() {
	cfg := config.LoadBot()
	logging.Init("updatebot", cfg.LogFormat)

	if cfg.TelegramMode == "webhook" && cfg.TelegramWebhookSecret == "" {
		slog.Error("TELEGRAM_WEBHOOK_SECRET is required in webhook mode")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	observability.Register(reg)

	var readyChecks []httpserver.ReadyzCheck

	// correlation store
	var st store.CorrelationStore
	switch strings.ToLower(cfg.StoreBackend) {
	case "postgres":
		db, err := pg.NewPool(ctx, cfg.StoreDBDSN, pg.PoolOptions{
			MaxConns:          cfg.DBMaxConns,
			MinConns:          cfg.DBMinConns,
			MaxConnLifetime:   cfg.DBMaxConnLifetime,
			MaxConnIdleTime:   cfg.DBMaxConnIdleTime,
			HealthCheckPeriod: cfg.DBHealthCheck,
			ConnectTimeout:    cfg.DBConnectTimeout,
		})
		if err != nil {
			slog.Error("store db connect failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		pgStore := pg.New(db)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			slog.Error("store schema init failed", "err", err)
			os.Exit(1)
		}
		st = pgStore
		readyChecks = append(readyChecks, func(c context.Context) error { return db.Ping(c) })
	default:
		st = memory.New()
	}
	if n, err := st.Len(ctx); err == nil {
		observability.LiveContexts.Set(float64(n))
	}

	// broker
	sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
	if err != nil {
		slog.Error("sqs client init failed", "err", err)
		os.Exit(1)
	}
	topics := []sqsqueue.Topic{
		{Exchange: ingest.ExchangeSubscriptions, RoutingKey: ingest.KeySubscriptionCreated, QueueURL: cfg.SubscriptionCreatedQueueURL},
		{Exchange: ingest.ExchangeSubscriptions, RoutingKey: ingest.KeySubscriptionRemoved, QueueURL: cfg.SubscriptionRemovedQueueURL},
		{Exchange: ingest.ExchangeSubscriptions, RoutingKey: ingest.KeySubscriptionUpdated, QueueURL: cfg.SubscriptionUpdatedQueueURL},
		{Exchange: ingest.ExchangeNotifications, RoutingKey: ingest.KeyPatchNote, QueueURL: cfg.PatchNoteQueueURL},
		{Exchange: ingest.ExchangeUpdates, RoutingKey: ingest.KeyUpdateStatus, QueueURL: cfg.UpdateStatusQueueURL},
	}
	requested := sqsqueue.Topic{Exchange: ingest.ExchangeUpdates, RoutingKey: ingest.KeyUpdateRequested, QueueURL: cfg.UpdateRequestedQueueURL}

	startupCtx, startupCancel := context.WithTimeout(ctx, 5*time.Second)
	defer startupCancel()
	for _, t := range append(topics, requested) {
		if err := queueReachable(startupCtx, sqsClient, t.QueueURL); err != nil {
			slog.Error("sqs queue not reachable", "topic", t.String(), "err", err)
			os.Exit(1)
		}
	}
	readyChecks = append(readyChecks, func(c context.Context) error {
		return queueReachable(c, sqsClient, cfg.UpdateStatusQueueURL)
	})

	// telegram gateway
	bot := &telegram.Client{
		Token:   cfg.TelegramToken,
		BaseURL: cfg.TelegramBaseURL,
		HTTP:    &http.Client{Timeout: cfg.TelegramPollTimeout + 10*time.Second},
	}
	gw := gateway.New(bot,
		rate.NewLimiter(rate.Limit(cfg.TelegramRPS), cfg.TelegramBurst),
		gateway.NewBreaker("telegram"),
	)

	pub := &publisher.Publisher{
		Settings: &settings.Client{
			BaseURL: cfg.SettingsAPIURL,
			APIKey:  cfg.SettingsAPIKey,
			HTTP:    &http.Client{Timeout: 8 * time.Second},
		},
		Broker:  &sqsqueue.Producer{SQS: sqsClient},
		Topic:   requested,
		Breaker: publisher.NewBreaker(),
	}

	coord := coordinator.New(st, gw, pub)
	ingestor := ingest.New(coord)
	router := &inbound.Router{Interactions: coord}

	// http: health + webhook, metrics on its own port
	srv := httpserver.New()
	srv.RegisterHealth(httpserver.Readyz(2*time.Second, readyChecks...))
	if cfg.TelegramMode == "webhook" {
		(&httpserver.Webhook{Dispatcher: router, Secret: cfg.TelegramWebhookSecret}).Register(srv.Mux)
	}
	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: srv.Mux, ReadHeaderTimeout: 5 * time.Second}
	metricsSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: httpserver.MetricsHandler(reg), ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)

	for _, t := range topics {
		consumer := &sqsqueue.Consumer{
			SQS:               sqsClient,
			Topic:             t,
			WaitTimeSeconds:   cfg.SQSWaitTime,
			MaxMessages:       cfg.SQSMaxMsgs,
			VisibilityTimeout: cfg.SQSVizTimeout,
		}
		g.Go(func() error {
			slog.Info("consumer starting", "topic", consumer.Topic.String(), "queue_url", consumer.Topic.QueueURL)
			return ignoreCanceled(consumer.PollConcurrent(gctx, cfg.WorkerConcurrency, ingestor.Handle))
		})
	}

	if cfg.TelegramMode != "webhook" {
		poller := &telegram.Poller{Client: bot, Timeout: cfg.TelegramPollTimeout}
		g.Go(func() error {
			slog.Info("telegram long polling started")
			return ignoreCanceled(poller.Run(gctx, router.Handle))
		})
	}

	g.Go(func() error {
		slog.Info("http listening", "port", cfg.Port, "telegram_mode", cfg.TelegramMode)
		return ignoreClosed(httpSrv.ListenAndServe())
	})
	g.Go(func() error {
		slog.Info("metrics listening", "port", cfg.MetricsPort)
		return ignoreClosed(metricsSrv.ListenAndServe())
	})

	// shutdown wiring
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("updatebot shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		_ = metricsSrv.Shutdown(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("updatebot stopped", "err", err)
		os.Exit(1)
	}
}

func queueReachable(ctx context.Context, c *sqs.Client, queueURL string) error {
	_, err := c.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       &queueURL,
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	})
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
