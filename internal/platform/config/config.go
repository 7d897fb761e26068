// Package config reads service configuration from the environment so each
// main stays lean. Missing optional infrastructure URLs disable the
// corresponding component instead of failing startup.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "corridor/pkg/platform/strings"
)

// Server captures process-level settings shared by both binaries.
type Server struct {
	ServiceName string
	Addr        string
	Environment string
	LogLevel    string
	LogFormat   string

	Auth      AuthConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Bus       BusConfig
	Audit     AuditConfig
	Database  DatabaseConfig
	Query     QueryConfig
}

// AuthConfig configures the claims validator.
type AuthConfig struct {
	TenantID    string
	ClientID    string
	Issuers     []string
	Audiences   []string
	JWKSURL     string
	JWKSTimeout time.Duration
	HMACSecret  string
	DecodeOnly  bool
	ClockLeeway time.Duration
}

// RedisConfig configures the shared counter store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RateLimitConfig tunes limiter behaviour around the store.
type RateLimitConfig struct {
	Disabled     bool
	StoreTimeout time.Duration
}

// BusConfig configures the AMQP topology and reconnect policy.
type BusConfig struct {
	URL                string
	Exchange           string
	Queue              string
	Binding            string
	DeadLetterExchange string
	Prefetch           int
	ReconnectInitial   time.Duration
	ReconnectMax       time.Duration
}

// AuditConfig points audit emission at the log service.
type AuditConfig struct {
	LogServiceURL string
	Timeout       time.Duration
	// BufferSize > 0 switches emission to a background worker. Zero delivers
	// inline, bounded by Timeout.
	BufferSize int
	// IngestToken, when set, is sent by emitters and required by POST /log.
	IngestToken string
}

// DatabaseConfig configures the log store. Empty URL selects the in-memory store.
type DatabaseConfig struct {
	URL string
}

// QueryConfig points POST /query at the answering service. Empty URL answers
// locally without a model.
type QueryConfig struct {
	AnswererURL string
	Timeout     time.Duration
}

// IsProduction reports whether ENVIRONMENT is production.
func (s Server) IsProduction() bool {
	return strings.EqualFold(s.Environment, "production")
}

// FromEnv builds a Server config from environment variables. defaultName and
// defaultAddr differ per binary.
func FromEnv(defaultName, defaultAddr string) Server {
	return Server{
		ServiceName: envString("SERVICE_NAME", defaultName),
		Addr:        envString("HTTP_ADDR", defaultAddr),
		Environment: envString("ENVIRONMENT", "development"),
		LogLevel:    envString("LOG_LEVEL", "info"),
		LogFormat:   envString("LOG_FORMAT", "json"),
		Auth: AuthConfig{
			TenantID:    os.Getenv("ENTRA_TENANT_ID"),
			ClientID:    os.Getenv("ENTRA_CLIENT_ID"),
			Issuers:     envList("AUTH_ISSUERS"),
			Audiences:   envList("AUTH_AUDIENCES"),
			JWKSURL:     os.Getenv("AUTH_JWKS_URL"),
			JWKSTimeout: envDuration("AUTH_JWKS_TIMEOUT", 300*time.Millisecond),
			HMACSecret:  os.Getenv("AUTH_HMAC_SECRET"),
			DecodeOnly:  envBool("AUTH_DECODE_ONLY", false),
			ClockLeeway: envDuration("AUTH_CLOCK_LEEWAY", 0),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 200*time.Millisecond),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 200*time.Millisecond),
		},
		RateLimit: RateLimitConfig{
			Disabled:     envBool("RATE_LIMIT_DISABLED", false),
			StoreTimeout: envDuration("RATE_LIMIT_STORE_TIMEOUT", 200*time.Millisecond),
		},
		Bus: BusConfig{
			URL:                os.Getenv("RABBITMQ_URL"),
			Exchange:           envString("BUS_EXCHANGE", "user_events"),
			Queue:              envString("BUS_QUEUE", "log_queue"),
			Binding:            envString("BUS_BINDING", "user.*"),
			DeadLetterExchange: os.Getenv("BUS_DEAD_LETTER_EXCHANGE"),
			Prefetch:           envInt("BUS_PREFETCH", 10),
			ReconnectInitial:   envDuration("BUS_RECONNECT_INITIAL", time.Second),
			ReconnectMax:       envDuration("BUS_RECONNECT_MAX", 30*time.Second),
		},
		Audit: AuditConfig{
			LogServiceURL: strings.TrimRight(os.Getenv("LOG_SERVICE_URL"), "/"),
			Timeout:       envDuration("AUDIT_TIMEOUT", 3*time.Second),
			BufferSize:    envInt("AUDIT_BUFFER_SIZE", 0),
			IngestToken:   os.Getenv("LOG_INGEST_TOKEN"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Query: QueryConfig{
			AnswererURL: os.Getenv("QUERY_ANSWERER_URL"),
			Timeout:     envDuration("QUERY_ANSWERER_TIMEOUT", 30*time.Second),
		},
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

// envDuration accepts Go durations ("250ms") or bare milliseconds ("250").
func envDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

func envList(key string) []string {
	return pstrings.SplitList(os.Getenv(key))
}
