// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	QueueDriverRabbitMQ = "rabbitmq"
	QueueDriverMemory   = "memory"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	RabbitMQ RabbitMQConfig
	Batch    BatchConfig
	Redis    RedisConfig
	Queue    string
	LogLevel string
}

type ServerConfig struct {
	Host         string
	Port         string
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RabbitMQConfig struct {
	URL             string
	Host            string
	Port            string
	User            string
	Password        string
	VHost           string
	Exchange        string
	Queue           string
	RoutingKey      string
	DeadLetterExch  string
	DeadLetterQueue string
	PublishTimeout  time.Duration
}

// BatchConfig drives the consumer side of the queue.
type BatchConfig struct {
	Size        int
	Window      time.Duration
	Prefetch    int
	MaxRetries  int
	ItemTimeout time.Duration
	Concurrency int
}

// RedisConfig is optional; an empty Addr disables the tenant cache.
// TenantTTL bounds how long a suspended tenant can still pass auth.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	TenantTTL time.Duration
}

// Load reads an optional .env file and then the process environment.
// Every missing required key is reported in a single error.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return fromEnv(os.Getenv)
}

func fromEnv(getenv func(string) string) (*Config, error) {
	var missing, invalid []string

	get := func(key string) string {
		val := strings.TrimSpace(getenv(key))
		if val == "" {
			missing = append(missing, key)
		}
		return val
	}
	opt := func(key, fallback string) string {
		if val := strings.TrimSpace(getenv(key)); val != "" {
			return val
		}
		return fallback
	}
	optInt := func(key string, fallback int) int {
		raw := strings.TrimSpace(getenv(key))
		if raw == "" {
			return fallback
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			invalid = append(invalid, key)
			return fallback
		}
		return n
	}
	optDuration := func(key string, fallback time.Duration) time.Duration {
		raw := strings.TrimSpace(getenv(key))
		if raw == "" {
			return fallback
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			invalid = append(invalid, key)
			return fallback
		}
		return d
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         opt("SERVER_HOST", "0.0.0.0"),
			Port:         opt("SERVER_PORT", "8080"),
			MaxBodyBytes: int64(optInt("SERVER_MAX_BODY_BYTES", 1<<20)),
			ReadTimeout:  optDuration("SERVER_READ_TIMEOUT", 5*time.Second),
			WriteTimeout: optDuration("SERVER_WRITE_TIMEOUT", 5*time.Second),
		},
		Database: DatabaseConfig{
			Host:            get("DB_HOST"),
			Port:            opt("DB_PORT", "5432"),
			User:            get("DB_USER"),
			Password:        getenv("DB_PASSWORD"),
			DBName:          get("DB_NAME"),
			SSLMode:         opt("DB_SSLMODE", "disable"),
			MaxOpenConns:    optInt("DB_MAX_OPEN_CONNS", 4),
			MaxIdleConns:    optInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: optDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Queue:    strings.ToLower(opt("QUEUE_DRIVER", QueueDriverRabbitMQ)),
		LogLevel: opt("LOG_LEVEL", "info"),
		Batch: BatchConfig{
			Size:        optInt("QUEUE_BATCH_SIZE", 10),
			Window:      optDuration("QUEUE_BATCH_WINDOW", 500*time.Millisecond),
			Prefetch:    optInt("QUEUE_PREFETCH", 20),
			MaxRetries:  optInt("QUEUE_MAX_RETRIES", 3),
			ItemTimeout: optDuration("QUEUE_ITEM_TIMEOUT", 10*time.Second),
			Concurrency: optInt("QUEUE_BATCH_CONCURRENCY", 1),
		},
		Redis: RedisConfig{
			Addr:      getenv("REDIS_ADDR"),
			Password:  getenv("REDIS_PASSWORD"),
			DB:        optInt("REDIS_DB", 0),
			TenantTTL: optDuration("REDIS_TENANT_TTL", 30*time.Second),
		},
	}

	rmq := RabbitMQConfig{
		URL:             getenv("RABBITMQ_URL"),
		Exchange:        opt("RABBITMQ_EXCHANGE", "whatsapp.webhooks"),
		Queue:           opt("RABBITMQ_QUEUE", "whatsapp.webhooks.inbound"),
		RoutingKey:      opt("RABBITMQ_ROUTING_KEY", "inbound"),
		DeadLetterExch:  opt("RABBITMQ_DLX", "whatsapp.webhooks.dlx"),
		DeadLetterQueue: opt("RABBITMQ_DLQ", "whatsapp.webhooks.dead"),
		PublishTimeout:  optDuration("RABBITMQ_PUBLISH_TIMEOUT", 2*time.Second),
	}
	// Individual parts are only required when no URL is given and the
	// broker is actually in use.
	if cfg.Queue == QueueDriverRabbitMQ && rmq.URL == "" {
		rmq.Host = get("RABBITMQ_HOST")
		rmq.Port = opt("RABBITMQ_PORT", "5672")
		rmq.User = get("RABBITMQ_USER")
		rmq.Password = getenv("RABBITMQ_PASSWORD")
		rmq.VHost = opt("RABBITMQ_VHOST", "/")
	}
	cfg.RabbitMQ = rmq

	if cfg.Queue != QueueDriverRabbitMQ && cfg.Queue != QueueDriverMemory {
		invalid = append(invalid, "QUEUE_DRIVER")
	}
	if cfg.Batch.Size == 0 {
		invalid = append(invalid, "QUEUE_BATCH_SIZE")
	}
	if cfg.Batch.Concurrency == 0 {
		cfg.Batch.Concurrency = 1
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("invalid environment variables: %v", invalid)
	}
	return cfg, nil
}

// ConnectionString returns a lib/pq DSN.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

func (c *RabbitMQConfig) ConnectionURL() string {
	if c.URL != "" {
		return c.URL
	}
	vhost := c.VHost
	if vhost == "/" {
		vhost = ""
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s/%s",
		c.User, c.Password, c.Host, c.Port, strings.TrimPrefix(vhost, "/"))
}
