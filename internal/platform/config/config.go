// Package config builds runtime configuration from the environment so main
// stays lean. Every knob has a development default; production overrides via
// env vars.
package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Postgres configures the database/sql pool. An empty URL means Postgres is
// not configured and in-memory stores are used.
type Postgres struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Redis configures the duplicate-index client. An empty URL means Redis is
// not configured.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the stage event stream. Empty brokers disable streaming.
type Kafka struct {
	Brokers []string
	Topic   string
	Buffer  int
}

// Forensics configures the AI-forensics gateway, including the submit retry
// policy. Backoff delay and ceiling live here, not at call sites.
type Forensics struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	WebhookURL    string

	SubmitBaseDelay  time.Duration
	SubmitMaxDelay   time.Duration
	SubmitMaxRetries int

	PollInterval   time.Duration
	RequestTimeout time.Duration
}

// Anchor configures the blockchain registry gateway.
type Anchor struct {
	BaseURL        string
	IssuerKey      string
	Network        string
	RequestTimeout time.Duration
	BatchLimit     int
}

// Pipeline configures the verification orchestrator.
type Pipeline struct {
	Workers          int
	QueueCapacity    int
	StageTimeout     time.Duration
	StageMaxAttempts int
}

// Config is the root configuration aggregate.
type Config struct {
	Server    Server
	Postgres  Postgres
	Redis     Redis
	Kafka     Kafka
	Forensics Forensics
	Anchor    Anchor
	Pipeline  Pipeline
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:            envString("DOCANCHOR_ADDR", ":8080"),
			ShutdownTimeout: envDuration("DOCANCHOR_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Postgres: Postgres{
			URL:             os.Getenv("DOCANCHOR_POSTGRES_URL"),
			MaxOpenConns:    envInt("DOCANCHOR_POSTGRES_MAX_OPEN", 25),
			MaxIdleConns:    envInt("DOCANCHOR_POSTGRES_MAX_IDLE", 5),
			ConnMaxLifetime: envDuration("DOCANCHOR_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		},
		Redis: Redis{
			URL:          os.Getenv("DOCANCHOR_REDIS_URL"),
			PoolSize:     envInt("DOCANCHOR_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("DOCANCHOR_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("DOCANCHOR_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("DOCANCHOR_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("DOCANCHOR_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers: envList("DOCANCHOR_KAFKA_BROKERS"),
			Topic:   envString("DOCANCHOR_KAFKA_TOPIC", "docanchor.stage-events"),
			Buffer:  envInt("DOCANCHOR_KAFKA_BUFFER", 256),
		},
		Forensics: Forensics{
			BaseURL:          envString("DOCANCHOR_FORENSICS_URL", "http://localhost:9090"),
			APIKey:           os.Getenv("DOCANCHOR_FORENSICS_API_KEY"),
			WebhookSecret:    envString("DOCANCHOR_FORENSICS_WEBHOOK_SECRET", "dev-webhook-secret-change-in-production"),
			WebhookURL:       os.Getenv("DOCANCHOR_FORENSICS_WEBHOOK_URL"),
			SubmitBaseDelay:  envDuration("DOCANCHOR_FORENSICS_SUBMIT_BASE_DELAY", 500*time.Millisecond),
			SubmitMaxDelay:   envDuration("DOCANCHOR_FORENSICS_SUBMIT_MAX_DELAY", 30*time.Second),
			SubmitMaxRetries: envInt("DOCANCHOR_FORENSICS_SUBMIT_MAX_RETRIES", 5),
			PollInterval:     envDuration("DOCANCHOR_FORENSICS_POLL_INTERVAL", 5*time.Second),
			RequestTimeout:   envDuration("DOCANCHOR_FORENSICS_REQUEST_TIMEOUT", 30*time.Second),
		},
		Anchor: Anchor{
			BaseURL:        envString("DOCANCHOR_ANCHOR_URL", "http://localhost:9091"),
			IssuerKey:      os.Getenv("DOCANCHOR_ANCHOR_ISSUER_KEY"),
			Network:        envString("DOCANCHOR_ANCHOR_NETWORK", "testnet"),
			RequestTimeout: envDuration("DOCANCHOR_ANCHOR_REQUEST_TIMEOUT", 60*time.Second),
			BatchLimit:     envInt("DOCANCHOR_ANCHOR_BATCH_LIMIT", 8),
		},
		Pipeline: Pipeline{
			Workers:          envInt("DOCANCHOR_PIPELINE_WORKERS", 8),
			QueueCapacity:    envInt("DOCANCHOR_PIPELINE_QUEUE_CAPACITY", 1024),
			StageTimeout:     envDuration("DOCANCHOR_PIPELINE_STAGE_TIMEOUT", 5*time.Minute),
			StageMaxAttempts: envInt("DOCANCHOR_PIPELINE_STAGE_MAX_ATTEMPTS", 2),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}
