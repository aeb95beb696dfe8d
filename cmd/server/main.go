package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cradle/internal/family/events"
	"cradle/internal/family/handler"
	"cradle/internal/family/lock"
	familymetrics "cradle/internal/family/metrics"
	"cradle/internal/family/models"
	"cradle/internal/family/store"
	"cradle/internal/family/store/memory"
	storemongo "cradle/internal/family/store/mongo"
	storepg "cradle/internal/family/store/postgres"
	"cradle/internal/family/unitofwork"
	"cradle/internal/platform/config"
	"cradle/internal/platform/httpserver"
	"cradle/internal/platform/kafka"
	"cradle/internal/platform/logger"
	"cradle/internal/platform/metrics"
	"cradle/internal/platform/middleware"
	platformmongo "cradle/internal/platform/mongo"
	"cradle/internal/platform/postgres"
	"cradle/internal/platform/redis"
)

const (
	eventBuffer     = 1024
	startupTimeout  = 15 * time.Second
	topicPartitions = 3
)

// infra holds the connections opened at startup so they can be closed in
// reverse order on shutdown.
type infra struct {
	closers []func(context.Context)
}

func (i *infra) onClose(fn func(context.Context)) {
	i.closers = append(i.closers, fn)
}

func (i *infra) close(ctx context.Context) {
	for j := len(i.closers) - 1; j >= 0; j-- {
		i.closers[j](ctx)
	}
}

type repositories struct {
	guardians  store.Repository[*models.Guardian]
	dependents store.Repository[*models.Dependent]
	activities store.Repository[*models.ActivityRecord]
}

func main() {
	configPath := flag.String("config", os.Getenv("CRADLE_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	res := &infra{}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		res.close(ctx)
	}()

	startCtx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	repos, opts, err := buildStore(startCtx, cfg.Store, res, log)
	if err != nil {
		return err
	}

	locker, err := buildLocker(startCtx, cfg, res, log)
	if err != nil {
		return err
	}
	if locker != nil {
		opts = append(opts, unitofwork.WithLocker(locker))
	}

	publisher, err := buildPublisher(startCtx, cfg.Kafka, res, log)
	if err != nil {
		return err
	}

	opts = append(opts,
		unitofwork.WithLogger(log),
		unitofwork.WithMetrics(familymetrics.New()),
		unitofwork.WithPublisher(publisher),
		unitofwork.WithCascadeConcurrency(cfg.UnitOfWork.CascadeConcurrency),
	)
	uow := unitofwork.New(repos.guardians, repos.dependents, repos.activities, opts...)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log, metrics.New()))
	handler.New(uow, log).Register(r)
	r.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Server, r)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting cradle", "addr", cfg.Server.Addr, "backend", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func buildStore(ctx context.Context, cfg config.Store, res *infra, log *slog.Logger) (repositories, []unitofwork.Option, error) {
	switch cfg.Backend {
	case config.BackendMongo:
		client, err := platformmongo.New(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return repositories{}, nil, err
		}
		res.onClose(func(ctx context.Context) {
			if err := client.Close(ctx); err != nil {
				log.Warn("mongo disconnect failed", "error", err)
			}
		})
		if err := storemongo.EnsureIndexes(ctx, client.DB); err != nil {
			return repositories{}, nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		return repositories{
			guardians:  storemongo.New[*models.Guardian](client.DB),
			dependents: storemongo.New[*models.Dependent](client.DB),
			activities: storemongo.New[*models.ActivityRecord](client.DB),
		}, nil, nil

	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return repositories{}, nil, err
		}
		res.onClose(func(context.Context) { _ = db.Close() })
		if err := storepg.EnsureSchema(ctx, db); err != nil {
			return repositories{}, nil, fmt.Errorf("ensure postgres schema: %w", err)
		}
		return repositories{
			guardians:  storepg.New[*models.Guardian](db),
			dependents: storepg.New[*models.Dependent](db),
			activities: storepg.New[*models.ActivityRecord](db),
		}, []unitofwork.Option{unitofwork.WithTransactor(postgres.NewTransactor(db))}, nil

	default:
		log.Warn("using in-memory store; records are lost on restart")
		return repositories{
			guardians:  memory.New[*models.Guardian](),
			dependents: memory.New[*models.Dependent](),
			activities: memory.New[*models.ActivityRecord](),
		}, nil, nil
	}
}

func buildLocker(ctx context.Context, cfg *config.Config, res *infra, log *slog.Logger) (lock.Locker, error) {
	if !cfg.UnitOfWork.SerializeTransitions {
		return nil, nil
	}
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		log.Info("serializing transitions with an in-process lock")
		return lock.NewSharded(), nil
	}
	res.onClose(func(context.Context) { _ = client.Close() })
	log.Info("serializing transitions with redis", "ttl", cfg.UnitOfWork.LockTTL)
	return lock.NewRedisLocker(client.Client, lock.WithTTL(cfg.UnitOfWork.LockTTL)), nil
}

func buildPublisher(ctx context.Context, cfg config.Kafka, res *infra, log *slog.Logger) (events.Publisher, error) {
	producer, err := kafka.NewProducer(cfg.Brokers, cfg.Topic)
	if err != nil {
		return nil, err
	}
	if producer == nil {
		return events.NopPublisher{}, nil
	}
	res.onClose(func(context.Context) { producer.Close() })
	if err := producer.EnsureTopic(ctx, topicPartitions, 1); err != nil {
		return nil, fmt.Errorf("ensure topic %s: %w", cfg.Topic, err)
	}
	async := events.NewAsyncPublisher(events.NewKafkaPublisher(producer), eventBuffer, log)
	// Closed before the producer so queued events flush.
	res.onClose(func(context.Context) { async.Close() })
	return async, nil
}
