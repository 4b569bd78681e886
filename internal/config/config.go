// Package config loads the service configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/vadimbarashkov/shortlink/internal/shortcode"
	"gopkg.in/yaml.v3"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

// Storage backends. StorageMemory keeps records, cache entries and rate limit
// counters in process and is meant for local runs.
const (
	StorageExternal = "external"
	StorageMemory   = "memory"
)

var errInvalidConfig = errors.New("invalid config")

type Config struct {
	Env             string `yaml:"env"`
	Storage         string `yaml:"storage"`
	BaseURL         string `yaml:"base_url"`
	ShortCodeLength int    `yaml:"short_code_length"`
	HTTPServer      `yaml:"http_server"`
	Postgres        `yaml:"postgres"`
	Redis           `yaml:"redis"`
	Cache           `yaml:"cache"`
	RateLimit       `yaml:"rate_limit"`
	Issuance        `yaml:"issuance"`
	Timeouts        `yaml:"timeouts"`
}

type HTTPServer struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
	CertFile       string        `yaml:"cert_file"`
	KeyFile        string        `yaml:"key_file"`
}

var defaultHTTPServer = HTTPServer{
	Port:           8080,
	ReadTimeout:    5 * time.Second,
	WriteTimeout:   10 * time.Second,
	IdleTimeout:    time.Minute,
	MaxHeaderBytes: 1 << 20,
}

func (s *HTTPServer) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type Postgres struct {
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	DB              string        `yaml:"db"`
	SSLMode         string        `yaml:"sslmode"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
}

var defaultPostgres = Postgres{
	Host:            "localhost",
	Port:            5432,
	SSLMode:         "disable",
	ConnMaxIdleTime: 5 * time.Minute,
	ConnMaxLifetime: 30 * time.Minute,
	MaxIdleConns:    5,
	MaxOpenConns:    25,
}

func (p *Postgres) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DB, p.SSLMode)
}

type Redis struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
}

var defaultRedis = Redis{
	Host:         "localhost",
	Port:         6379,
	DialTimeout:  5 * time.Second,
	ReadTimeout:  time.Second,
	WriteTimeout: time.Second,
	PoolSize:     20,
	MinIdleConns: 5,
}

func (r *Redis) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// Cache configures the short code to original URL cache.
type Cache struct {
	TTL time.Duration `yaml:"ttl"`
}

var defaultCache = Cache{
	TTL: 24 * time.Hour,
}

// RateLimit configures the fixed window limiter applied to URL creation.
type RateLimit struct {
	Requests int64         `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

var defaultRateLimit = RateLimit{
	Requests: 100,
	Window:   time.Minute,
}

// Issuance configures how a request that lost an insert race waits for the winner.
type Issuance struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
}

var defaultIssuance = Issuance{
	MaxRetries: 3,
	BaseDelay:  10 * time.Millisecond,
}

// Timeouts bound every single call to the record store and to the cache.
type Timeouts struct {
	Store time.Duration `yaml:"store"`
	Cache time.Duration `yaml:"cache"`
}

var defaultTimeouts = Timeouts{
	Store: 2 * time.Second,
	Cache: 500 * time.Millisecond,
}

func Load(path string) (*Config, error) {
	const op = "config.Load"

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open config file: %w", op, err)
	}
	defer f.Close()

	var cfg Config
	setDefaults(&cfg)

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%s: failed to decode config file: %w", op, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Storage != StorageExternal && c.Storage != StorageMemory:
		return fmt.Errorf("%w: storage must be %q or %q", errInvalidConfig, StorageExternal, StorageMemory)
	case c.ShortCodeLength < shortcode.MinLength || c.ShortCodeLength > shortcode.MaxLength:
		return fmt.Errorf("%w: short_code_length must be between %d and %d",
			errInvalidConfig, shortcode.MinLength, shortcode.MaxLength)
	case c.RateLimit.Requests <= 0:
		return fmt.Errorf("%w: rate_limit.requests must be positive", errInvalidConfig)
	case c.RateLimit.Window < time.Millisecond:
		return fmt.Errorf("%w: rate_limit.window must be at least 1ms", errInvalidConfig)
	case c.Cache.TTL <= 0:
		return fmt.Errorf("%w: cache.ttl must be positive", errInvalidConfig)
	case c.Issuance.MaxRetries < 1:
		return fmt.Errorf("%w: issuance.max_retries must be at least 1", errInvalidConfig)
	case c.Issuance.BaseDelay < 0:
		return fmt.Errorf("%w: issuance.base_delay must not be negative", errInvalidConfig)
	case c.Timeouts.Store <= 0 || c.Timeouts.Cache <= 0:
		return fmt.Errorf("%w: timeouts must be positive", errInvalidConfig)
	}

	return nil
}

func setDefaults(cfg *Config) {
	cfg.Env = EnvDev
	cfg.Storage = StorageExternal
	cfg.BaseURL = "http://localhost:8080"
	cfg.ShortCodeLength = 10
	cfg.HTTPServer = defaultHTTPServer
	cfg.Postgres = defaultPostgres
	cfg.Redis = defaultRedis
	cfg.Cache = defaultCache
	cfg.RateLimit = defaultRateLimit
	cfg.Issuance = defaultIssuance
	cfg.Timeouts = defaultTimeouts
}
