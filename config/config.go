package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cwrk-planet/presence-service/internal/pg"

	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
	RouteTimeout time.Duration `yaml:"routeTimeout"` // plain JSON routes only; streams are exempt
}

func (h *HTTP) validate() error {
	if h.Addr == "" {
		return errors.New("http.addr is required")
	}
	h.ReadTimeout = orDefault(h.ReadTimeout, 10*time.Second)
	h.IdleTimeout = orDefault(h.IdleTimeout, 60*time.Second)
	h.RouteTimeout = orDefault(h.RouteTimeout, 30*time.Second)

	return nil
}

type GRPC struct {
	Addr string `yaml:"addr"`
}

type Logging struct {
	Env       string `yaml:"env"`     // dev|stage|prod
	Service   string `yaml:"service"` // presence-service
	Version   string `yaml:"version"`
	Backend   string `yaml:"backend"` // std|zap
	Level     string `yaml:"level"`   // debug|info|warn|error
	AddSource bool   `yaml:"addSource"`
	Debug     bool   `yaml:"debug"`
}

type Postgres struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	ApplicationName   string        `yaml:"applicationName"`
	LockTimeout       time.Duration `yaml:"lockTimeout"`
	StatementTimeout  time.Duration `yaml:"statementTimeout"`
	Migrate           bool          `yaml:"migrate"`
}

func (p Postgres) ToPGConfig() pg.Config {
	return pg.Config{
		DSN:               p.DSN,
		MaxConns:          p.MaxConns,
		MinConns:          p.MinConns,
		MaxConnLifetime:   p.MaxConnLifetime,
		MaxConnIdleTime:   p.MaxConnIdleTime,
		HealthCheckPeriod: p.HealthCheckPeriod,
		ApplicationName:   p.ApplicationName,
		LockTimeout:       p.LockTimeout,
		StatementTimeout:  p.StatementTimeout,
	}
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type NATS struct {
	URL string `yaml:"url"`
}

type Presence struct {
	WatchdogPeriod  time.Duration `yaml:"watchdogPeriod"`
	WatchdogTimeout time.Duration `yaml:"watchdogTimeout"`
	PingEvery       time.Duration `yaml:"pingEvery"`
	ConnectTimeout  time.Duration `yaml:"connectTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	MaxMessageBytes int64         `yaml:"maxMessageBytes"`
	SSELifetime     time.Duration `yaml:"sseLifetime"`
	SSERetry        time.Duration `yaml:"sseRetry"`
}

func (p *Presence) validate() error {
	p.WatchdogPeriod = orDefault(p.WatchdogPeriod, 10*time.Second)
	p.WatchdogTimeout = orDefault(p.WatchdogTimeout, 60*time.Second)
	p.PingEvery = orDefault(p.PingEvery, 30*time.Second)
	p.ConnectTimeout = orDefault(p.ConnectTimeout, 10*time.Second)
	p.WriteTimeout = orDefault(p.WriteTimeout, 15*time.Second)
	p.SSELifetime = orDefault(p.SSELifetime, 60*time.Second)
	p.SSERetry = orDefault(p.SSERetry, time.Second)
	if p.MaxMessageBytes <= 0 {
		p.MaxMessageBytes = 128 << 10
	}
	if p.WatchdogTimeout <= p.WatchdogPeriod {
		return errors.New("presence.watchdogTimeout must be greater than presence.watchdogPeriod")
	}

	return nil
}

type JWT struct {
	PublicKeyPath string        `yaml:"publicKeyPath"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ClockSkew     time.Duration `yaml:"clockSkew"`
}

func (j JWT) validate() error {
	if j.PublicKeyPath == "" {
		return errors.New("auth.jwt.publicKeyPath is required")
	}
	if j.Issuer == "" {
		return errors.New("auth.jwt.issuer is required")
	}
	if j.ClockSkew < 0 || j.ClockSkew > time.Minute {
		return errors.New("auth.jwt.clockSkew must be in [0..1m]")
	}

	return nil
}

type Auth struct {
	JWT JWT `yaml:"jwt"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// Backends choose the implementation of swappable components.
type Backends struct {
	Store string `yaml:"store"` // memory|postgres
	Cache string `yaml:"cache"` // memory|redis
	Relay string `yaml:"relay"` // none|redis|nats
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	Logging  Logging  `yaml:"logging"`
	Postgres Postgres `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	NATS     NATS     `yaml:"nats"`
	Presence Presence `yaml:"presence"`
	Auth     Auth     `yaml:"auth"`
	CORS     CORS     `yaml:"cors"`
	Backends Backends `yaml:"backends"`
}

func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := c.HTTP.validate(); err != nil {
		return err
	}
	if c.GRPC.Addr == "" {
		return errors.New("grpc.addr is required")
	}
	if err := c.Presence.validate(); err != nil {
		return err
	}
	if err := c.Auth.JWT.validate(); err != nil {
		return err
	}

	if c.Backends.Store == "" {
		c.Backends.Store = "memory"
	}
	if c.Backends.Cache == "" {
		c.Backends.Cache = "memory"
	}
	if c.Backends.Relay == "" {
		c.Backends.Relay = "none"
	}
	if err := oneOf("backends.store", c.Backends.Store, "memory", "postgres"); err != nil {
		return err
	}
	if err := oneOf("backends.cache", c.Backends.Cache, "memory", "redis"); err != nil {
		return err
	}
	if err := oneOf("backends.relay", c.Backends.Relay, "none", "redis", "nats"); err != nil {
		return err
	}
	if c.Backends.Store == "postgres" && c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required for the postgres store")
	}
	if (c.Backends.Cache == "redis" || c.Backends.Relay == "redis") && c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	if c.Backends.Relay == "nats" && c.NATS.URL == "" {
		return errors.New("nats.url is required")
	}

	if c.Logging.Service == "" {
		c.Logging.Service = "presence-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}

	return nil
}

func oneOf(field, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}

	return fmt.Errorf("%s must be one of %v, got %q", field, allowed, v)
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}

	return def
}
