package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"warden/internal/platform/config"
	"warden/internal/platform/database"
	"warden/internal/platform/health"
	"warden/internal/platform/kafka/consumer"
	"warden/internal/platform/kafka/producer"
	"warden/internal/platform/redis"
	"warden/internal/platform/tracing"
	"warden/internal/risk/classifier"
	riskconfig "warden/internal/risk/config"
	"warden/internal/risk/events"
	riskmetrics "warden/internal/risk/metrics"
	"warden/internal/risk/ports"
	"warden/internal/risk/service/engine"
	"warden/internal/risk/store/ban"
	devicestore "warden/internal/risk/store/device"
	"warden/internal/risk/store/window"
	"warden/internal/risk/store/writebehind"
	"warden/internal/risk/trustedcaller"
	"warden/internal/risk/workers/logins"
	"warden/internal/risk/workers/sweeper"
	"warden/pkg/platform/circuit"
)

const (
	serviceName         = "warden"
	poolStatsInterval   = 15 * time.Second
	publisherBufferSize = 4096
)

// app owns every long-lived dependency. Fields that depend on optional
// infrastructure (db, redis, kafka) stay nil when it is not configured.
type app struct {
	cfg      config.Server
	riskCfg  *riskconfig.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *riskmetrics.Metrics

	db       *database.Pool
	redis    *redis.Client
	producer *producer.Producer
	consumer *consumer.Consumer

	queue     *writebehind.Queue
	publisher *events.Publisher
	engine    *engine.Engine
	sweeper   *sweeper.Sweeper
	verifier  *trustedcaller.Verifier
	health    *health.Handler

	shutdownTracing func(context.Context) error
}

func newApp(ctx context.Context, cfg config.Server, riskCfg *riskconfig.Config, log *slog.Logger) (_ *app, err error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &app{
		cfg:      cfg,
		riskCfg:  riskCfg,
		logger:   log,
		registry: registry,
		metrics:  riskmetrics.New(registry),
		health:   health.New(cfg.Environment),
	}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.shutdownTracing, err = tracing.InitProvider(ctx, cfg.OTLPEndpoint, serviceName, cfg.Environment, log)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	if err := a.connectInfrastructure(ctx); err != nil {
		return nil, err
	}
	if err := a.buildEngine(ctx); err != nil {
		return nil, err
	}
	if err := a.buildConsumer(); err != nil {
		return nil, err
	}

	if cfg.ServiceToken.Secret != "" {
		a.verifier, err = trustedcaller.New(cfg.ServiceToken.Secret, cfg.ServiceToken.Audience, cfg.ServiceToken.Subjects)
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *app) connectInfrastructure(ctx context.Context) error {
	var err error

	a.db, err = database.New(ctx, a.cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if a.db != nil {
		if a.cfg.Database.AutoMigrate {
			if err := database.Migrate(ctx, a.db.DB()); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}
		}
		if err := a.db.RegisterMetrics(a.registry); err != nil {
			return fmt.Errorf("register database metrics: %w", err)
		}
		a.health.RegisterCheck("postgres", a.db.Health)
	} else {
		a.logger.Warn("postgres_disabled", "reason", "DATABASE_URL not set; bans and devices will not survive restarts")
	}

	a.redis, err = redis.New(ctx, a.cfg.Redis, redis.NewPoolMetrics(a.registry))
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if a.redis != nil {
		a.health.RegisterCheck("redis", a.redis.Health)
	}

	if len(a.cfg.Kafka.Brokers) > 0 {
		a.producer, err = producer.New(producer.DefaultConfig(a.cfg.Kafka.Brokers), a.logger)
		if err != nil {
			return fmt.Errorf("create kafka producer: %w", err)
		}
		a.health.RegisterCheck("kafka", a.producer.Health)
	}
	return nil
}

func (a *app) buildEngine(ctx context.Context) error {
	a.publisher = events.NewPublisher(a.sinks(),
		events.WithBufferSize(publisherBufferSize),
		events.WithLogger(a.logger),
		events.WithMetrics(a.metrics),
	)

	persist := a.riskCfg.Persist
	a.queue = writebehind.New(persist.QueueSize,
		writebehind.WithLogger(a.logger),
		writebehind.WithMetrics(a.metrics),
		writebehind.WithOpTimeout(persist.OpTimeout),
		writebehind.WithBreaker(circuit.New("durable",
			circuit.WithFailureThreshold(persist.FailureThreshold),
			circuit.WithCooldown(persist.Cooldown),
		)),
		writebehind.WithFailureHandler(a.reportPersistFailure),
	)

	bans, err := a.banStore(ctx)
	if err != nil {
		return err
	}
	devices, err := a.deviceStore(ctx)
	if err != nil {
		return err
	}

	cls, err := classifier.New(a.riskCfg.Network)
	if err != nil {
		return err
	}

	windows := window.New(
		window.WithMaxKeys(a.riskCfg.Windows.MaxTrackedKeys),
		window.WithRateWindow(a.riskCfg.Signals.RateWindow),
		window.WithRecentSize(4*a.riskCfg.Signals.CoordinatedSampleLimit),
	)
	offenses := ban.NewOffenseLedger(a.riskCfg.Windows.MaxTrackedKeys)

	var tracer tracing.Tracer = tracing.NewNoop()
	if a.cfg.OTLPEndpoint != "" {
		tracer = tracing.NewOTel()
	}

	a.engine, err = engine.New(a.riskCfg, engine.Deps{
		Bans:       bans,
		Windows:    windows,
		Devices:    devices,
		Offenses:   offenses,
		Classifier: cls,
		Publisher:  a.publisher,
	},
		engine.WithLogger(a.logger),
		engine.WithMetrics(a.metrics),
		engine.WithTracer(tracer),
	)
	if err != nil {
		return err
	}

	a.sweeper = sweeper.New(windows, bans, offenses, a.engine, a.riskCfg.Sweeper,
		sweeper.WithLogger(a.logger),
		sweeper.WithMetrics(a.metrics),
		sweeper.WithPublisher(a.publisher),
		sweeper.WithTask(sweeper.TaskPurgeClassifierCache, func(context.Context) (int, error) {
			return cls.Purge(), nil
		}),
	)
	return nil
}

func (a *app) sinks() []events.Sink {
	sinks := []events.Sink{events.NewLogSink(a.logger)}
	if a.producer != nil {
		sinks = append(sinks, events.NewKafkaSink(a.producer, a.cfg.Kafka.Topic))
	}
	if a.db != nil {
		sinks = append(sinks, events.NewPostgresSink(a.db.DB()))
	}
	return sinks
}

// banStore layers memory over whichever durable stores are configured and
// hydrates it before the first request is scored.
func (a *app) banStore(ctx context.Context) (ports.BanStore, error) {
	var durables []ports.BanStore
	if a.db != nil {
		durables = append(durables, ban.NewPostgres(a.db.DB()))
	}
	if a.redis != nil {
		durables = append(durables, ban.NewRedis(a.redis))
	}

	store := ban.NewWriteBehind(ban.New(), a.queue, a.logger, durables...)
	if _, err := store.Hydrate(ctx, time.Now()); err != nil {
		return nil, err
	}
	return store, nil
}

func (a *app) deviceStore(ctx context.Context) (ports.DeviceStore, error) {
	mem := devicestore.New(a.riskCfg.Windows.MaxTrackedKeys)
	if a.db == nil {
		return mem, nil
	}
	store := devicestore.NewWriteBehind(mem, devicestore.NewPostgres(a.db.DB()), a.queue, a.logger)
	if _, err := store.Hydrate(ctx, a.riskCfg.Windows.MaxTrackedKeys); err != nil {
		return nil, err
	}
	return store, nil
}

func (a *app) buildConsumer() error {
	topic := a.cfg.Kafka.LoginOutcomesTopic
	if topic == "" || len(a.cfg.Kafka.Brokers) == 0 {
		return nil
	}
	c, err := consumer.New(consumer.Config{
		Brokers: a.cfg.Kafka.Brokers,
		GroupID: a.cfg.Kafka.GroupID,
		Topics:  []string{topic},
	}, logins.NewHandler(a.engine, a.logger), a.logger)
	if err != nil {
		return fmt.Errorf("create login outcome consumer: %w", err)
	}
	a.consumer = c
	a.health.RegisterCheck("kafka_consumer", c.Health)
	return nil
}

// reportPersistFailure turns dropped durable writes into store events so an
// operator sees them even though the request path never blocked.
func (a *app) reportPersistFailure(op writebehind.Op, err error) {
	ip := ""
	if op.Store == "ban" {
		ip = op.Key
	}
	_ = a.publisher.Publish(context.Background(), events.StoreUnavailable(op.Store, op.Name, ip, err, time.Now())) //nolint:errcheck // publisher logs its own drops
}

func (a *app) startBackground(ctx context.Context, wg *sync.WaitGroup) {
	wg.Go(func() {
		_ = a.queue.Run(ctx) //nolint:errcheck // Run only returns on cancel
	})
	wg.Go(func() {
		if err := a.sweeper.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("sweeper_stopped", "error", err)
		}
	})
	if a.consumer != nil {
		a.consumer.Start(ctx)
	}
	if a.redis != nil {
		wg.Go(func() {
			ticker := time.NewTicker(poolStatsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					a.redis.RecordPoolStats()
				}
			}
		})
	}
}

func (a *app) stopConsumers(ctx context.Context) {
	if a.consumer == nil {
		return
	}
	if err := a.consumer.Stop(ctx); err != nil {
		a.logger.Error("consumer_stop_failed", "error", err)
	}
}

// close releases resources in reverse dependency order. Safe on a partially
// built app.
func (a *app) close(ctx context.Context) {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.producer != nil {
		if err := a.producer.Close(ctx); err != nil {
			a.logger.Error("kafka_producer_close_failed", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis_close_failed", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("database_close_failed", "error", err)
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.logger.Error("tracing_shutdown_failed", "error", err)
		}
	}
}
