package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	dErrors "warden/pkg/domain-errors"
	wstrings "warden/pkg/platform/strings"
)

// Server captures process level configuration. Risk thresholds live in
// internal/risk/config and are read through the same Env.
type Server struct {
	Addr            string
	Environment     string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration

	// UpstreamURL, when set, makes the server a guarding reverse proxy.
	UpstreamURL    string
	TrustedProxies []string

	// APIRateLimit caps /v1 calls per caller per minute. Zero disables it.
	APIRateLimit       int
	// CORSAllowedOrigins lets browser dashboards read /v1. Empty disables CORS.
	CORSAllowedOrigins []string
	// OTLPEndpoint, when set, exports engine spans over OTLP/gRPC.
	OTLPEndpoint       string

	Database     DatabaseConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	ServiceToken ServiceTokenConfig
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers []string
	// Topic receives the risk event stream.
	Topic string
	// LoginOutcomesTopic, when set, is consumed to feed device profiles.
	LoginOutcomesTopic string
	GroupID            string
}

// ServiceTokenConfig configures the trusted-caller fast path. Empty Secret
// disables it.
type ServiceTokenConfig struct {
	Secret   string
	Audience string
	Subjects []string
}

// LoadDotEnv loads a .env file if present. Missing files are not an error.
func LoadDotEnv(paths ...string) {
	_ = godotenv.Load(paths...)
}

// FromEnv builds the Server config from environment variables.
func FromEnv() (Server, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup is FromEnv with an injectable lookup, for tests.
func FromLookup(lookup func(string) (string, bool)) (Server, error) {
	env := NewEnv(lookup)

	cfg := Server{
		Addr:               env.String("WARDEN_ADDR", ":8080"),
		Environment:        env.String("WARDEN_ENV", "development"),
		LogLevel:           env.String("LOG_LEVEL", "info"),
		LogFormat:          env.String("LOG_FORMAT", "json"),
		ShutdownTimeout:    env.Duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		RequestTimeout:     env.Duration("REQUEST_TIMEOUT", 5*time.Second),
		UpstreamURL:        env.String("UPSTREAM_URL", ""),
		TrustedProxies:     env.List("TRUSTED_PROXIES", nil),
		APIRateLimit:       env.Int("API_RATE_LIMIT_PER_MINUTE", 6000),
		OTLPEndpoint:       env.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		CORSAllowedOrigins: env.List("CORS_ALLOWED_ORIGINS", nil),
		Database: DatabaseConfig{
			URL:             env.String("DATABASE_URL", ""),
			MaxOpenConns:    env.Int("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    env.Int("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: env.Duration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			AutoMigrate:     env.Bool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:          env.String("REDIS_URL", ""),
			PoolSize:     env.Int("REDIS_POOL_SIZE", 10),
			MinIdleConns: env.Int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  env.Duration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:  env.Duration("REDIS_READ_TIMEOUT", time.Second),
			WriteTimeout: env.Duration("REDIS_WRITE_TIMEOUT", time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:            env.List("KAFKA_BROKERS", nil),
			Topic:              env.String("KAFKA_RISK_EVENTS_TOPIC", "warden.risk-events"),
			LoginOutcomesTopic: env.String("KAFKA_LOGIN_OUTCOMES_TOPIC", ""),
			GroupID:            env.String("KAFKA_GROUP_ID", "warden"),
		},
		ServiceToken: ServiceTokenConfig{
			Secret:   env.String("SERVICE_TOKEN_SECRET", ""),
			Audience: env.String("SERVICE_TOKEN_AUDIENCE", "warden"),
			Subjects: env.List("SERVICE_TOKEN_SUBJECTS", nil),
		},
	}

	if err := env.Err(); err != nil {
		return Server{}, err
	}
	if cfg.APIRateLimit < 0 {
		return Server{}, dErrors.New(dErrors.CodeConfiguration, "API_RATE_LIMIT_PER_MINUTE must not be negative")
	}
	if cfg.ServiceToken.Secret != "" && len(cfg.ServiceToken.Secret) < 32 {
		return Server{}, dErrors.New(dErrors.CodeConfiguration, "SERVICE_TOKEN_SECRET must be at least 32 characters")
	}
	return cfg, nil
}

// Env reads typed values from an environment lookup. Malformed values are
// recorded rather than silently replaced by the default; Err reports the
// first one.
type Env struct {
	lookup func(string) (string, bool)
	err    error
}

func NewEnv(lookup func(string) (string, bool)) *Env {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &Env{lookup: lookup}
}

// Err returns the first parse failure as a CodeConfiguration error.
func (e *Env) Err() error {
	return e.err
}

func (e *Env) raw(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *Env) fail(key, value string, err error) {
	if e.err == nil {
		e.err = dErrors.Wrap(err, dErrors.CodeConfiguration, fmt.Sprintf("invalid %s=%q", key, value))
	}
}

func (e *Env) String(key, def string) string {
	if v, ok := e.raw(key); ok {
		return v
	}
	return def
}

func (e *Env) Int(key string, def int) int {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return n
}

func (e *Env) Float(key string, def float64) float64 {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return f
}

func (e *Env) Bool(key string, def bool) bool {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return b
}

func (e *Env) Duration(key string, def time.Duration) time.Duration {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return d
}

// List reads a comma separated list, lowercased and de-duplicated.
func (e *Env) List(key string, def []string) []string {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	return wstrings.SplitList(v)
}
