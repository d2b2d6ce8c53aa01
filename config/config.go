package config

import "time"

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"namthar-api"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`
	TracingEnabled                bool     `env:"TRACING_ENABLED" env-default:"false"`
	OtlpEndpoint                  string   `env:"OTLP_ENDPOINT" env-default:"localhost:4318"`
	OtlpInsecure                  bool     `env:"OTLP_INSECURE" env-default:"true"`

	// PostgreSQL (system of record)
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:""`
	DatabasePort                  int           `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"namthar"`
	DatabaseSSLMode               string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseReconnectRetryCount   int           `env:"DB_RECONNECT_RETRY_COUNT" env-default:"3"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Graph database (Memgraph or Neo4j, Bolt protocol)
	GraphDBEnabled  bool   `env:"GRAPH_DB_ENABLED" env-default:"true"`
	GraphDBHost     string `env:"GRAPH_DB_HOST" env-default:"localhost"`
	GraphDBPort     int    `env:"GRAPH_DB_PORT" env-default:"7687"`
	GraphDBUser     string `env:"GRAPH_DB_USER" env-default:""`
	GraphDBPassword string `env:"GRAPH_DB_PASSWORD" env-default:""`

	// Kafka consumer (extraction intake)
	KafkaBrokers         []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaInputTopic      string   `env:"KAFKA_INPUT_TOPIC" env-default:"extracted-records"`
	KafkaConsumerGroup   string   `env:"KAFKA_CONSUMER_GROUP" env-default:"namthar-intake"`
	KafkaConsumerEnabled bool     `env:"KAFKA_CONSUMER_ENABLED" env-default:"true"`

	// Kafka producer settings
	KafkaOutputTopic  string `env:"KAFKA_OUTPUT_TOPIC" env-default:"namthar-events"`
	KafkaBatchSize    int    `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int    `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int    `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Graph sync
	SyncBatchSize       int           `env:"SYNC_BATCH_SIZE" env-default:"500"`
	SyncMaxRetries      int           `env:"SYNC_MAX_RETRIES" env-default:"3"`
	SyncRetryDelay      time.Duration `env:"SYNC_RETRY_DELAY" env-default:"500ms"`
	SyncConcurrency     int           `env:"SYNC_CONCURRENCY" env-default:"4"`
	SyncBidirectional   bool          `env:"SYNC_BIDIRECTIONAL" env-default:"true"`
	SyncContinueOnError bool          `env:"SYNC_CONTINUE_ON_ERROR" env-default:"true"`

	// Dedup scanning
	DedupeRecordThreshold  float64 `env:"DEDUPE_RECORD_THRESHOLD" env-default:"0.70"`
	DedupeClusterThreshold float64 `env:"DEDUPE_CLUSTER_THRESHOLD" env-default:"0.70"`
	DedupeConcurrency      int     `env:"DEDUPE_CONCURRENCY" env-default:"4"`
	DedupeScanOnIntake     bool    `env:"DEDUPE_SCAN_ON_INTAKE" env-default:"true"`

	// Consistency checking
	ConsistencySampleSize  int `env:"CONSISTENCY_SAMPLE_SIZE" env-default:"100"`
	ConsistencyMaxReported int `env:"CONSISTENCY_MAX_REPORTED" env-default:"50"`
}
