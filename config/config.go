package config

import "time"

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"fern-actions"`
	Port                          int      `env:"PORT" env-default:"3000"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"30"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Database driver
	DatabaseDriver string `env:"DB_DRIVER" env-default:"postgres"`
	// Database host
	DatabaseHost string `env:"DB_HOST" env-default:""`
	// Database port
	DatabasePort string `env:"DB_PORT" env-default:"5432"`
	// Database user
	DatabaseUserName string `env:"DB_USER_NAME" env-default:""`
	// Database user password
	DatabasePassword string `env:"DB_PASSWORD" env-default:""`
	// Database name
	DatabaseName string `env:"DB_NAME" env-default:"fern"`
	// Database SSL Mode
	DatabaseSSLMode string `env:"DB_SQL_MODE" env-default:"disable"`
	// Max Open Conns
	DatabaseMaxOpenConns int `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	// Max Idle Conns
	DatabaseMaxIdleConns int `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	// Conn Max Lifetime
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	// Migration Folder Path
	DatabaseMigrationFolderPath string `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	// Database Migration Version
	DatabaseMigrationVersion int `env:"DB_MIGRATION_VERSION" env-default:"0"`
	// Database Migration Force
	DatabaseMigrationForce int `env:"DB_MIGRATION_FORCE" env-default:"0"`

	// Commerce backend base URL
	BackendURL string `env:"BACKEND_URL" env-default:"http://localhost:3001"`
	// API key sent on every backend request
	BackendAPIKey string `env:"BACKEND_API_KEY" env-default:""`
	// Per-request timeout for backend calls
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT" env-default:"10s"`

	// Identity provider issuer URL
	AuthIssuerURL string `env:"AUTH_ISSUER_URL" env-default:""`
	// Identity provider client ID
	AuthClientID string `env:"AUTH_CLIENT_ID" env-default:""`
	// Timeout for a single token verification
	AuthVerifyTimeout time.Duration `env:"AUTH_VERIFY_TIMEOUT" env-default:"5s"`

	// Redis host
	RedisHost string `env:"REDIS_HOST" env-default:"localhost"`
	// Redis port
	RedisPort int `env:"REDIS_PORT" env-default:"6379"`
	// Redis password
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	// Redis database number
	RedisDB int `env:"REDIS_DB" env-default:"0"`
	// TTL for persisted conversation slots
	SlotTTL time.Duration `env:"SLOT_TTL" env-default:"30m"`

	// Kafka brokers (comma-separated)
	KafkaBrokers string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	// Kafka topic for turn audit events
	KafkaAuditTopic string `env:"KAFKA_AUDIT_TOPIC" env-default:"fern-audit"`
	// Kafka topic for blocked generative responses
	KafkaBlockedTopic string `env:"KAFKA_BLOCKED_TOPIC" env-default:"fern-blocked"`

	// Gemini API key (generative fallback disabled when empty)
	GeminiAPIKey string `env:"GEMINI_API_KEY" env-default:""`
	// Gemini model name
	GeminiModel string `env:"GEMINI_MODEL" env-default:"gemini-2.0-flash"`
	// Timeout for a single generation call
	GeminiTimeout time.Duration `env:"GEMINI_TIMEOUT" env-default:"15s"`

	// Intents below this confidence are routed to the generative fallback
	IntentConfidenceThreshold float64 `env:"INTENT_CONFIDENCE_THRESHOLD" env-default:"0.6"`
	// Upper bound for a full turn, entry to response
	MaxTurnDuration time.Duration `env:"MAX_TURN_DURATION" env-default:"30s"`

	// Tracing settings
	// Enable OTLP tracing export (set to true to send traces to collector)
	OTLPEnabled bool `env:"OTLP_ENABLED" env-default:"false"`
	// OTLP collector endpoint
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	// Disable TLS for OTLP (for local development)
	OTLPInsecure bool `env:"OTLP_INSECURE" env-default:"true"`
}
