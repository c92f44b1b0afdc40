package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"vcwallet/internal/apptoken"
	credhandler "vcwallet/internal/credential/handler"
	credservice "vcwallet/internal/credential/service"
	"vcwallet/internal/issuance/client"
	issuancehandler "vcwallet/internal/issuance/handler"
	"vcwallet/internal/issuance/metadata"
	"vcwallet/internal/issuance/service"
	sessionstore "vcwallet/internal/issuance/store"
	"vcwallet/internal/keystore"
	"vcwallet/internal/notification"
	"vcwallet/internal/platform/config"
	"vcwallet/internal/platform/httpserver"
	"vcwallet/internal/platform/kafka"
	"vcwallet/internal/platform/logger"
	"vcwallet/internal/platform/metrics"
	"vcwallet/internal/platform/redis"
	"vcwallet/internal/signing"
	httptransport "vcwallet/internal/transport/http"
)

func newServeCommand() *cobra.Command {
	flags := config.FlagSet()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and signing channel server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().AddFlagSet(flags)
	return cmd
}

// serve wires dependencies and runs until ctx is cancelled.
func serve(ctx context.Context, cfg config.Config) error {
	log := logger.New(cfg.Log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	st, err := openStores(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error("failed to close database", "error", err)
		}
	}()

	checks := map[string]func(context.Context) error{}
	if st.db != nil {
		checks["database"] = st.db.PingContext
	}

	tokens := apptoken.New(cfg.Wallet.AppSecret)
	hub := signing.NewHub(signing.WithLogger(log), signing.WithMetrics(m))

	issuer := client.New(&http.Client{Timeout: cfg.Issuance.HTTPTimeout}, client.WithMetrics(m))
	cache, closeCache, err := metadataCache(ctx, cfg, checks, log)
	if err != nil {
		return err
	}
	defer closeCache()

	notifier, closeNotifier, err := newNotifier(ctx, cfg.Kafka, log)
	if err != nil {
		return err
	}
	defer closeNotifier()

	var prover service.Prover
	switch cfg.Keystore.Mode {
	case config.KeystoreModeLocal:
		prover = keystore.NewLocal(st.users, keystore.WithLogger(log))
	default:
		prover = keystore.NewRemote(hub, st.users, log)
	}

	orchestrator := service.New(
		service.Config{
			WalletURL:       cfg.Wallet.URL,
			WalletClientURL: cfg.Wallet.ClientURL,
			PollInterval:    cfg.Issuance.PollInterval,
		},
		sessionstore.New(),
		issuer,
		st.legalPersons,
		st.users,
		st.credentials,
		prover,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithMetadataResolver(metadata.NewResolver(issuer, cache, cfg.Issuance.MetadataCacheTTL, log)),
		service.WithNotifier(notifier),
	)
	defer orchestrator.Close()

	storage := credservice.New(st.credentials, st.presentations, st.users, st.tx, credservice.WithLogger(log))

	router := httptransport.NewRouter(httptransport.Deps{
		Tokens:  tokens,
		Signing: signing.NewHandler(hub, tokens, signing.WithHandlerLogger(log)),
		Protected: []httptransport.Registrar{
			issuancehandler.New(orchestrator, log),
			credhandler.New(storage, log),
		},
		Gatherer: reg,
		Checks:   checks,
		Logger:   log,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting vcwallet", "addr", cfg.Server.Addr, "keystore", cfg.Keystore.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// metadataCache uses Redis when configured so replicas share discovery
// results, and an in-process cache otherwise.
func metadataCache(ctx context.Context, cfg config.Config, checks map[string]func(context.Context) error, log *slog.Logger) (metadata.Cache, func(), error) {
	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if rc == nil {
		return metadata.NewMemoryCache(cfg.Issuance.MetadataCacheTTL), func() {}, nil
	}
	log.Info("issuer metadata cached in redis")
	checks["redis"] = rc.Health
	return metadata.NewRedisCache(rc.Client, log), func() {
		if err := rc.Close(); err != nil {
			log.Error("failed to close redis", "error", err)
		}
	}, nil
}

// newNotifier publishes to Kafka when brokers are configured and only logs
// otherwise.
func newNotifier(ctx context.Context, cfg config.KafkaConfig, log *slog.Logger) (service.Notifier, func(), error) {
	producer, err := kafka.NewProducer(cfg)
	if err != nil {
		return nil, nil, err
	}
	if producer == nil {
		return notification.NewLogNotifier(log), func() {}, nil
	}
	if err := kafka.EnsureTopic(ctx, producer, cfg.NotificationTopic, cfg.Partitions, cfg.ReplicationFactor); err != nil {
		producer.Close()
		return nil, nil, err
	}
	log.Info("notifications published to kafka", "topic", cfg.NotificationTopic)
	return notification.NewKafkaNotifier(producer, cfg.NotificationTopic), producer.Close, nil
}
