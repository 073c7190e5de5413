package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/smukkama/aqi-server/internal/aqi"
)

type Config struct {
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Provider    ProviderConfig
	Ingestion   IngestionConfig
	Alerting    AlertingConfig
	Training    TrainingConfig
	Aggregation AggregationConfig
	Minio       MinioConfig
	SMTP        SMTPConfig
	SMS         SMSConfig
	HTTP        HTTPConfig
	LogLevel    string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers       []string
	TopicReadings string
	TopicAlerts   string
	NumPartitions int
	StatsInterval time.Duration // consumer stats log period; 0 disables
}

type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type IngestionConfig struct {
	Interval      time.Duration
	PassTimeout   time.Duration
	Concurrency   int
	RetryAttempts int
	RetryMin      time.Duration
	RetryMax      time.Duration
	Locations     []aqi.Location
}

type AlertingConfig struct {
	Cooldown time.Duration
	StateTTL time.Duration
}

type TrainingConfig struct {
	DailyTime    string
	Lookback     time.Duration
	TestFraction float64
	Tolerance    float64
	Lambda       float64
}

type AggregationConfig struct {
	DailyTime string
	// CatchUpDelay schedules a one-off run of the previous day this long
	// after startup; 0 disables it.
	CatchUpDelay time.Duration
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Secure    bool
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Configured reports whether SMTP credentials were provided
func (s SMTPConfig) Configured() bool {
	return s.Username != "" && s.Password != ""
}

type SMSConfig struct {
	URL      string
	Username string
	Password string
}

// Configured reports whether an SMS gateway was provided
func (s SMSConfig) Configured() bool {
	return s.URL != ""
}

type HTTPConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	locations, err := ParseLocations(getEnv("AQI_LOCATIONS", ""))
	if err != nil {
		return nil, err
	}

	config := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "aqi_user"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "aqi_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicReadings: getEnv("KAFKA_TOPIC_READINGS", "aqi.readings"),
			TopicAlerts:   getEnv("KAFKA_TOPIC_ALERTS", "aqi.alerts"),
			NumPartitions: getEnvAsInt("KAFKA_NUM_PARTITIONS", 10),
			StatsInterval: getEnvAsDuration("KAFKA_STATS_INTERVAL", time.Minute),
		},
		Provider: ProviderConfig{
			APIKey:  getEnv("OPENWEATHER_API_KEY", ""),
			BaseURL: getEnv("OPENWEATHER_BASE_URL", "https://api.openweathermap.org"),
			Timeout: getEnvAsDuration("OPENWEATHER_TIMEOUT", 10*time.Second),
		},
		Ingestion: IngestionConfig{
			Interval:      getEnvAsDuration("INGESTION_INTERVAL", time.Hour),
			PassTimeout:   getEnvAsDuration("INGESTION_PASS_TIMEOUT", 5*time.Minute),
			Concurrency:   getEnvAsInt("INGESTION_CONCURRENCY", 4),
			RetryAttempts: getEnvAsInt("INGESTION_RETRY_ATTEMPTS", 3),
			RetryMin:      getEnvAsDuration("INGESTION_RETRY_MIN", 500*time.Millisecond),
			RetryMax:      getEnvAsDuration("INGESTION_RETRY_MAX", 10*time.Second),
			Locations:     locations,
		},
		Alerting: AlertingConfig{
			Cooldown: getEnvAsDuration("ALERT_COOLDOWN", 6*time.Hour),
			StateTTL: getEnvAsDuration("ALERT_STATE_TTL", 7*24*time.Hour),
		},
		Training: TrainingConfig{
			DailyTime:    getEnv("TRAINING_DAILY_TIME", "02:00"),
			Lookback:     getEnvAsDuration("TRAINING_LOOKBACK", 30*24*time.Hour),
			TestFraction: getEnvAsFloat("TRAINING_TEST_FRACTION", 0.2),
			Tolerance:    getEnvAsFloat("TRAINING_TOLERANCE", 10),
			Lambda:       getEnvAsFloat("TRAINING_RIDGE_LAMBDA", 1.0),
		},
		Aggregation: AggregationConfig{
			DailyTime:    getEnv("AGGREGATION_DAILY_TIME", "00:05"),
			CatchUpDelay: getEnvAsDuration("AGGREGATION_CATCH_UP_DELAY", time.Minute),
		},
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "aqi-models"),
			Region:    getEnv("MINIO_REGION", ""),
			Secure:    getEnvAsBool("MINIO_SECURE", false),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
		},
		SMS: SMSConfig{
			URL:      getEnv("SMS_GATEWAY_URL", ""),
			Username: getEnv("SMS_GATEWAY_USERNAME", ""),
			Password: getEnv("SMS_GATEWAY_PASSWORD", ""),
		},
		HTTP: HTTPConfig{
			Port:         getEnvAsInt("HTTP_PORT", 8080),
			ReadTimeout:  getEnvAsDuration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getEnvAsDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
