package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the full service configuration, loaded from the environment.
type Config struct {
	Port     int
	LogLevel string
	Env      string
	BaseURL  string
	DB       DBConfig
	SMTP     SMTPConfig
	Paystack PaystackConfig
	Auth     AuthConfig
	Redis    RedisConfig
	S3       S3Config
	Kafka    KafkaConfig
	// CronSecret authenticates the periodic email sweep caller. An empty or
	// mismatched secret does not block the sweep; it only raises a warning.
	CronSecret string
}

// DBConfig holds the Postgres configuration
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// SMTPConfig holds the mail transport configuration
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// PaystackConfig holds the payment gateway configuration
type PaystackConfig struct {
	WebhookSecret string
}

// AuthConfig holds admin authentication settings
type AuthConfig struct {
	JWTSecret string
	TokenTTL  string
}

// RedisConfig holds the menu cache configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// S3Config holds the image store configuration
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
}

// KafkaConfig holds the event publishing configuration
type KafkaConfig struct {
	Brokers       []string
	OrdersTopic   string
	ConsumerGroup string
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}

	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, strconv.Itoa(defaultValue))
	value, err := strconv.Atoi(raw)

	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return value, nil
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	port, err := getEnvInt("PORT", 8080)

	if err != nil {
		return nil, err
	}

	dbPort, err := getEnvInt("DB_PORT", 5432)

	if err != nil {
		return nil, err
	}

	smtpPort, err := getEnvInt("SMTP_PORT", 587)

	if err != nil {
		return nil, err
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)

	if err != nil {
		return nil, err
	}

	return &Config{
		Port:       port,
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		Env:        getEnv("APP_ENV", "development"),
		BaseURL:    getEnv("BASE_URL", "http://localhost:8080"),
		CronSecret: getEnv("CRON_SECRET", ""),
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "platepay"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     smtpPort,
			Username: getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "orders@platepay.local"),
			FromName: getEnv("SMTP_FROM_NAME", "PlatePay"),
		},
		Paystack: PaystackConfig{
			WebhookSecret: getEnv("PAYSTACK_WEBHOOK_SECRET", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret"),
			TokenTTL:  getEnv("JWT_TTL", "168h"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		S3: S3Config{
			Bucket:   getEnv("S3_BUCKET", "platepay-media"),
			Region:   getEnv("S3_REGION", "us-east-1"),
			Endpoint: getEnv("S3_ENDPOINT", ""),
			Prefix:   getEnv("S3_PREFIX", "menu/"),
		},
		Kafka: KafkaConfig{
			Brokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			OrdersTopic:   getEnv("KAFKA_ORDERS_TOPIC", "platepay.orders"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "platepay-api"),
		},
	}, nil
}

// GetDBConnString returns the Postgres connection string
func (c *Config) GetDBConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode)
}
