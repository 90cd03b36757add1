package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/clover/config"
	billingrepo "github.com/Ramsey-B/clover/internal/repositories/billingevent"
	customerrepo "github.com/Ramsey-B/clover/internal/repositories/customer"
	qualityrepo "github.com/Ramsey-B/clover/internal/repositories/dataquality"
	snapshotrepo "github.com/Ramsey-B/clover/internal/repositories/featuresnapshot"
	modelrepo "github.com/Ramsey-B/clover/internal/repositories/modelmetadata"
	predictionrepo "github.com/Ramsey-B/clover/internal/repositories/prediction"
	quarantinerepo "github.com/Ramsey-B/clover/internal/repositories/quarantine"
	actionrepo "github.com/Ramsey-B/clover/internal/repositories/retentionaction"
	interactionrepo "github.com/Ramsey-B/clover/internal/repositories/serviceinteraction"
	telemetryrepo "github.com/Ramsey-B/clover/internal/repositories/telemetry"
	webeventrepo "github.com/Ramsey-B/clover/internal/repositories/webevent"
	"github.com/Ramsey-B/clover/pkg/actions"
	"github.com/Ramsey-B/clover/pkg/aggregator"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/featurestore"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/logger"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizer"
	"github.com/Ramsey-B/clover/pkg/processor"
	"github.com/Ramsey-B/clover/pkg/quality"
	"github.com/Ramsey-B/clover/pkg/redis"
	actionroutes "github.com/Ramsey-B/clover/pkg/routes/action"
	customerroutes "github.com/Ramsey-B/clover/pkg/routes/customer"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	ingestroutes "github.com/Ramsey-B/clover/pkg/routes/ingest"
	modelroutes "github.com/Ramsey-B/clover/pkg/routes/model"
	predictionroutes "github.com/Ramsey-B/clover/pkg/routes/prediction"
	qualityroutes "github.com/Ramsey-B/clover/pkg/routes/quality"
	"github.com/Ramsey-B/clover/pkg/scorer"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, zapLogger, err := logger.New(cfg)
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	defer func() { _ = zapLogger.Sync() }()

	log.WithFields(map[string]any{
		"app":     cfg.AppName,
		"version": version,
		"port":    cfg.Port,
	}).Info("Starting clover")

	var exporter sdktrace.SpanExporter
	if cfg.OTLPEnabled {
		exporter, err = exporters.NewOTLPExporter(context.Background(), exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
			Timeout:  10 * time.Second,
		})
		if err != nil {
			log.WithError(err).Error("Failed to create OTLP exporter")
			os.Exit(1)
		}
	} else {
		exporter = &exporters.ConsoleExporter{}
	}
	tracerProvider := tracing.Init(cfg.AppName, exporter)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracerProvider.Shutdown(shutdownCtx)
	}()

	sqlxDB, err := database.Connect(cfg, log)
	if err != nil {
		log.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	db := database.NewDatabaseInstance(sqlxDB, log)

	migrationService := database.NewMigrationService(log, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})

	redisClient, err := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, log)
	if err != nil {
		log.WithError(err).Error("Failed to connect to Redis")
		os.Exit(1)
	}
	locker := redis.NewLocker(redisClient, "clover")
	limiter := redis.NewRateLimiter(redisClient, "clover")

	// Repositories
	customers := customerrepo.NewRepository(db, log)
	interactions := interactionrepo.NewRepository(db, log)
	telemetry := telemetryrepo.NewRepository(db, log)
	webEvents := webeventrepo.NewRepository(db, log)
	billing := billingrepo.NewRepository(db, log)
	predictions := predictionrepo.NewRepository(db, log)
	retentionActions := actionrepo.NewRepository(db, log)
	snapshots := snapshotrepo.NewRepository(db, log)
	modelMetadata := modelrepo.NewRepository(db, log)
	qualityMetrics := qualityrepo.NewRepository(db, log)
	quarantined := quarantinerepo.NewRepository(db, log)

	// Pipeline components
	windows := aggregator.NewWindows(cfg.WindowSpansDays)
	agg := aggregator.NewAggregator(windows, log)

	norm := normalizer.NewNormalizer(normalizer.Config{
		MaxFutureSkew:    cfg.FutureEventMaxSkew,
		RetentionHorizon: agg.Horizon(),
	}, log)

	gate := quality.NewGate(quality.Config{
		CompletenessThreshold: cfg.CompletenessThreshold,
		FreshnessThreshold:    cfg.FreshnessLagThreshold,
		DriftThreshold:        cfg.DriftPSIThreshold,
	}, qualityMetrics, quarantined, log)

	store := featurestore.NewStore(redisClient, snapshots, log)

	churnScorer := scorer.New(store, modelMetadata, predictions, scorer.Thresholds{
		Medium:   cfg.RiskThresholdMedium,
		High:     cfg.RiskThresholdHigh,
		Critical: cfg.RiskThresholdCritical,
	}, cfg.ScoringDeadline, log)

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaOutputTopic,
		BatchSize:    cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: cfg.KafkaRequiredAcks,
		Compression:  cfg.KafkaCompression,
	}, log)

	engine := actions.NewEngine(retentionActions, customers, actions.RedisLocker{Locker: locker}, limiter, producer, actions.Config{
		RiskThreshold: cfg.ActionRiskThreshold,
		Cooldown:      cfg.ActionCooldown,
		TTL:           cfg.ActionTTL,
		RateLimit:     cfg.ActionRateLimit,
		RateWindow:    cfg.ActionRateLimitWindow,
	}, log)

	facts := &processor.Facts{
		ServiceInteractions: interactions,
		Telemetry:           telemetry,
		WebEvents:           webEvents,
		Billing:             billing,
	}

	proc := processor.New(norm, agg, gate, store, churnScorer, engine, facts, snapshots, producer, processor.Config{
		SnapshotTTLSeconds: cfg.SnapshotTTLSeconds,
		HorizonDays:        cfg.PredictionHorizonDays,
	}, log)

	emitter := aggregator.NewEmitter(agg, aggregator.EmitterConfig{
		DebounceInterval: cfg.EmitDebounceInterval,
		MaxDelay:         cfg.EmitMaxDelay,
	}, proc.EmitSnapshot, log)
	proc.SetEmitter(emitter)

	sweeper := actions.NewSweeper(engine, actions.RedisLocker{Locker: locker}, cfg.ActionSweepInterval, log)
	monitor := quality.NewMonitor(gate, cfg.QualityEvalInterval, log)

	// HTTP surface
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.HTTPErrorHandler = middleware.Error(log)
	e.Use(middleware.Context())
	e.Use(middleware.Logger(log))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(echomiddleware.Recover())

	healthChecker := health.NewChecker(db, redisClient, version)
	healthChecker.RegisterRoutes(e)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")

	predictionHandler := predictionroutes.NewHandler(churnScorer, predictions, cfg.PredictionHorizonDays, cfg.BatchScoreMaxCustomers)
	predictionHandler.Register(api.Group("/predictions"))

	actionHandler := actionroutes.NewHandler(engine, retentionActions)
	actionHandler.Register(api.Group("/actions"))

	customerGroup := api.Group("/customers")
	customerroutes.NewHandler(customers).Register(customerGroup)
	predictionHandler.RegisterCustomer(customerGroup)
	actionHandler.RegisterCustomer(customerGroup)

	ingestroutes.NewHandler(proc).Register(api.Group("/events"))
	modelroutes.NewHandler(modelMetadata, churnScorer).Register(api.Group("/models"))
	qualityroutes.NewHandler(gate, qualityMetrics, proc).Register(api.Group("/quality"))

	// Ordered startup with reverse-order shutdown
	boot := startup.NewStartup(log, cfg.StartupMaxAttempts)
	boot.AddDependency(&databaseDependency{db: db})
	boot.AddDependency(&redisDependency{client: redisClient})
	boot.AddDependency(&migrationDependency{service: migrationService, db: sqlxDB, databaseName: cfg.DatabaseName})
	boot.AddDependency(&hydrationDependency{facts: facts, aggregator: agg, logger: log})
	boot.AddDependency(&producerDependency{producer: producer})
	boot.AddDependency(&emitterDependency{emitter: emitter})

	if cfg.KafkaConsumerEnabled {
		for _, c := range []struct {
			name      string
			topic     string
			eventType models.EventType
		}{
			{"consumer-customer-service", cfg.KafkaServiceTopic, models.EventTypeServiceInteraction},
			{"consumer-stb-telemetry", cfg.KafkaTelemetryTopic, models.EventTypeTelemetry},
			{"consumer-web-analytics", cfg.KafkaWebAnalyticsTopic, models.EventTypeWebAnalytics},
			{"consumer-billing", cfg.KafkaBillingTopic, models.EventTypeBilling},
		} {
			consumer := kafka.NewConsumer(kafka.ConsumerConfig{
				Brokers:       cfg.KafkaBrokers,
				Topic:         c.topic,
				ConsumerGroup: cfg.KafkaConsumerGroup,
				EventType:     string(c.eventType),
			}, log, proc.HandleMessage)
			boot.AddDependency(&consumerDependency{name: c.name, consumer: consumer})
		}
	}

	boot.AddDependency(sweeper)
	boot.AddDependency(monitor)
	boot.AddDependency(&serverDependency{echo: e, port: cfg.Port, checker: healthChecker, logger: log})

	if err := boot.Start(context.Background()); err != nil {
		log.WithError(err).Error("Startup failed")
		os.Exit(1)
	}
	log.Infof("clover is up on port %d", cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := boot.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("Shutdown finished with errors")
	}
}
