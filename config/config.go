package config

import "time"

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"clover-api"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// PostgreSQL
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:""`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"clover"`
	DatabaseSSLMode               string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis (online snapshot cache, locks, rate limits)
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Kafka source topics (one per upstream event stream, keyed by customer_id)
	KafkaBrokers           []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaServiceTopic      string   `env:"KAFKA_TOPIC_CUSTOMER_SERVICE" env-default:"customer-service-events"`
	KafkaTelemetryTopic    string   `env:"KAFKA_TOPIC_STB_TELEMETRY" env-default:"stb-telemetry-events"`
	KafkaWebAnalyticsTopic string   `env:"KAFKA_TOPIC_ANALYTICS" env-default:"web-analytics-events"`
	KafkaBillingTopic      string   `env:"KAFKA_TOPIC_BILLING" env-default:"billing-events"`
	KafkaConsumerGroup     string   `env:"KAFKA_CONSUMER_GROUP" env-default:"clover-consumer"`
	KafkaConsumerEnabled   bool     `env:"KAFKA_CONSUMER_ENABLED" env-default:"true"`

	// Kafka producer (prediction / action lifecycle events)
	KafkaOutputTopic  string `env:"KAFKA_OUTPUT_TOPIC" env-default:"churn-events"`
	KafkaBatchSize    int    `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int    `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int    `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Event intake
	FutureEventMaxSkew time.Duration `env:"FUTURE_EVENT_MAX_SKEW" env-default:"5m"`

	// Feature aggregation
	WindowSpansDays      []int         `env:"WINDOW_SPANS_DAYS" env-default:"7,30,90"`
	SnapshotTTLSeconds   int           `env:"SNAPSHOT_TTL_SECONDS" env-default:"3600"`
	EmitDebounceInterval time.Duration `env:"EMIT_DEBOUNCE_INTERVAL" env-default:"2s"`
	EmitMaxDelay         time.Duration `env:"EMIT_MAX_DELAY" env-default:"10s"`

	// Scoring
	ScoringDeadline        time.Duration `env:"SCORING_DEADLINE" env-default:"100ms"`
	PredictionHorizonDays  int           `env:"PREDICTION_HORIZON_DAYS" env-default:"30"`
	BatchScoreMaxCustomers int           `env:"BATCH_SCORE_MAX_CUSTOMERS" env-default:"1000"`

	// Risk tiers (probability cut points; below medium is low)
	RiskThresholdMedium   float64 `env:"RISK_THRESHOLD_MEDIUM" env-default:"0.3"`
	RiskThresholdHigh     float64 `env:"RISK_THRESHOLD_HIGH" env-default:"0.6"`
	RiskThresholdCritical float64 `env:"RISK_THRESHOLD_CRITICAL" env-default:"0.8"`

	// Retention actions
	ActionRiskThreshold   float64       `env:"ACTION_RISK_THRESHOLD" env-default:"0.6"`
	ActionCooldown        time.Duration `env:"ACTION_COOLDOWN" env-default:"720h"` // 30 days
	ActionTTL             time.Duration `env:"ACTION_TTL" env-default:"168h"`      // 7 days
	ActionSweepInterval   time.Duration `env:"ACTION_SWEEP_INTERVAL" env-default:"1m"`
	ActionRateLimit       int64         `env:"ACTION_RATE_LIMIT" env-default:"100"`
	ActionRateLimitWindow time.Duration `env:"ACTION_RATE_LIMIT_WINDOW" env-default:"1m"`

	// Tracing
	OTLPEnabled  bool   `env:"OTLP_ENABLED" env-default:"false"`
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	OTLPInsecure bool   `env:"OTLP_INSECURE" env-default:"true"`

	// Data quality
	CompletenessThreshold float64       `env:"DQ_COMPLETENESS_THRESHOLD" env-default:"0.95"`
	FreshnessLagThreshold time.Duration `env:"DQ_FRESHNESS_LAG_THRESHOLD" env-default:"10m"`
	DriftPSIThreshold     float64       `env:"DQ_DRIFT_PSI_THRESHOLD" env-default:"0.2"`
	QualityEvalInterval   time.Duration `env:"DQ_EVAL_INTERVAL" env-default:"1m"`
}
