package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	LogLevel    string
	HTTP        HTTPConfig
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	Redis       RedisConfig
	Validation  ValidationConfig
	Analysis    AnalysisConfig
	API         APIConfig
	MQTT        MQTTConfig
	Archive     ArchiveConfig
}

// HTTPConfig holds REST API listener settings
type HTTPConfig struct {
	Port        int
	BearerToken string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL string
}

// RabbitMQConfig holds RabbitMQ connection and queue settings
type RabbitMQConfig struct {
	URL              string
	IngestExchange   string
	IngestQueue      string
	IngestRoutingKey string
	WorkerExchange   string
	IngestedKey      string
	AnalysisKey      string
	SiteAlertKey     string
	DLQQueue         string
	PrefetchCount    int
}

// RedisConfig holds cache settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// ValidationConfig holds validation settings
type ValidationConfig struct {
	FutureSkewMinutes int
}

// AnalysisConfig holds analysis scheduling settings
type AnalysisConfig struct {
	Interval       time.Duration
	FullBatchLimit int
	// BatchCap keeps only the newest valid readings in the analysed batch; 0 means no cap
	BatchCap int
}

// APIConfig holds query defaults
type APIConfig struct {
	DefaultPageSize int
	LatestLimit     int
}

// MQTTConfig holds the optional MQTT ingest settings; an empty broker disables it
type MQTTConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	Topic     string
	QoS       int
}

// ArchiveConfig holds the optional object storage settings; an empty endpoint disables it
type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "battery-drain-worker"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		HTTP: HTTPConfig{
			Port:        getEnvAsInt("HTTP_PORT", 8081),
			BearerToken: getEnv("API_BEARER_TOKEN", ""),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		RabbitMQ: RabbitMQConfig{
			URL:              getEnv("RABBITMQ_URL", ""),
			IngestExchange:   getEnv("RABBITMQ_INGEST_EXCHANGE", "battery.ingest.exchange"),
			IngestQueue:      getEnv("RABBITMQ_INGEST_QUEUE", "battery.ingest.queue"),
			IngestRoutingKey: getEnv("RABBITMQ_INGEST_ROUTING_KEY", "battery.reading.raw"),
			WorkerExchange:   getEnv("RABBITMQ_WORKER_EXCHANGE", "battery.worker.events.exchange"),
			IngestedKey:      getEnv("RABBITMQ_INGESTED_ROUTING_KEY", "battery.readings.ingested"),
			AnalysisKey:      getEnv("RABBITMQ_ANALYSIS_ROUTING_KEY", "battery.analysis.completed"),
			SiteAlertKey:     getEnv("RABBITMQ_SITE_ALERT_ROUTING_KEY", "battery.site.attention"),
			DLQQueue:         getEnv("RABBITMQ_DLQ_QUEUE", "battery.ingest.dlq"),
			PrefetchCount:    getEnvAsInt("RABBITMQ_PREFETCH", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			CacheTTL: time.Duration(getEnvAsInt("CACHE_TTL_SECONDS", 300)) * time.Second,
		},
		Validation: ValidationConfig{
			FutureSkewMinutes: getEnvAsInt("VALIDATION_FUTURE_SKEW_MINUTES", 10),
		},
		Analysis: AnalysisConfig{
			Interval:       time.Duration(getEnvAsInt("ANALYSIS_INTERVAL_SECONDS", 300)) * time.Second,
			FullBatchLimit: getEnvAsInt("ANALYSIS_FULL_BATCH_LIMIT", 10000),
			BatchCap:       getEnvAsInt("ANALYSIS_BATCH_CAP", 0),
		},
		API: APIConfig{
			DefaultPageSize: getEnvAsInt("API_DEFAULT_PAGE_SIZE", 100),
			LatestLimit:     getEnvAsInt("API_LATEST_LIMIT", 50),
		},
		MQTT: MQTTConfig{
			BrokerURL: getEnv("MQTT_BROKER_URL", ""),
			ClientID:  getEnv("MQTT_CLIENT_ID", "battery-drain-worker"),
			Username:  getEnv("MQTT_USERNAME", ""),
			Password:  getEnv("MQTT_PASSWORD", ""),
			Topic:     getEnv("MQTT_INGEST_TOPIC", "battery/readings/#"),
			QoS:       getEnvAsInt("MQTT_QOS", 1),
		},
		Archive: ArchiveConfig{
			Endpoint:  getEnv("ARCHIVE_ENDPOINT", ""),
			AccessKey: getEnv("ARCHIVE_ACCESS_KEY", ""),
			SecretKey: getEnv("ARCHIVE_SECRET_KEY", ""),
			Bucket:    getEnv("ARCHIVE_BUCKET", "battery-analysis"),
			UseSSL:    getEnvAsBool("ARCHIVE_USE_SSL", false),
		},
	}

	// Validate required fields
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set in environment variables")
	}
	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required but not set in environment variables")
	}
	if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
		return nil, fmt.Errorf("invalid MQTT_QOS: %d", cfg.MQTT.QoS)
	}
	if cfg.Analysis.BatchCap < 0 {
		return nil, fmt.Errorf("invalid ANALYSIS_BATCH_CAP: %d", cfg.Analysis.BatchCap)
	}
	if cfg.HTTP.Port <= 0 {
		return nil, fmt.Errorf("invalid HTTP_PORT: %d", cfg.HTTP.Port)
	}

	return cfg, nil
}

// ListenAddr returns the host:port string for the HTTP server
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.HTTP.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
