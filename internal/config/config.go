package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/skills-gamification/internal/domain"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Storage      StorageConfig      `yaml:"storage"`
	Postgres     PostgresConfig     `yaml:"postgres"`
	Redis        RedisConfig        `yaml:"redis"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Reconcile    ReconcileConfig    `yaml:"reconcile"`
	Auth         AuthConfig         `yaml:"auth"`
	Gamification GamificationConfig `yaml:"gamification"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Driver string `yaml:"driver" validate:"oneof=postgres memory"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// KafkaConfig holds Kafka connection configuration. The consumer reads
// workout completions; the publisher emits gamification events.
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	Topic         string        `yaml:"topic"`
	GroupID       string        `yaml:"group_id"`
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	BatchTimeout  time.Duration `yaml:"batch_timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	EventsTopic   string        `yaml:"events_topic"`
	PublishEvents bool          `yaml:"publish_events"`
}

// ReconcileConfig holds the balance reconciliation job configuration
type ReconcileConfig struct {
	Interval  time.Duration `yaml:"interval"`
	OnStartup bool          `yaml:"on_startup"`
	Enabled   bool          `yaml:"enabled"`
}

// AuthConfig selects how callers are identified
type AuthConfig struct {
	Mode     string `yaml:"mode" validate:"oneof=header jwt"`
	Secret   string `yaml:"secret" validate:"required_if=Mode jwt"`
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
}

// GamificationConfig holds the scoring and progression knobs
type GamificationConfig struct {
	Timezone           string        `yaml:"timezone"`
	Milestones         []int         `yaml:"milestones"`
	MilestoneBonus     map[int]int64 `yaml:"milestone_bonus"`
	RankCurrency       string        `yaml:"rank_currency"`
	BadgeAwardCurrency string        `yaml:"badge_award_currency"`
	DrillLookupTimeout time.Duration `yaml:"drill_lookup_timeout"`
	DrillCacheSize     int           `yaml:"drill_cache_size" validate:"min=1"`
	DrillCacheTTL      time.Duration `yaml:"drill_cache_ttl"`
	LeaderboardLimit   int           `yaml:"leaderboard_limit" validate:"min=1"`
	LeaderboardMax     int           `yaml:"leaderboard_max" validate:"gtefield=LeaderboardLimit"`
}

// Location resolves the configured IANA timezone
func (g GamificationConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", g.Timezone, err)
	}
	return loc, nil
}

// WebSocketConfig holds the live push hub configuration
type WebSocketConfig struct {
	Enabled         bool     `yaml:"enabled"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	ReadBufferSize  int      `yaml:"read_buffer_size"`
	WriteBufferSize int      `yaml:"write_buffer_size"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and the currency and timezone names
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, name := range []string{c.Gamification.RankCurrency, c.Gamification.BadgeAwardCurrency} {
		if err := domain.Currency(name).Validate(); err != nil {
			return fmt.Errorf("invalid config: currency %q: %w", name, err)
		}
	}
	if _, err := c.Gamification.Location(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 100
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 10
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 50
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 5
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "workout-completions"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "gamification-consumer"
	}
	if c.Kafka.BatchSize == 0 {
		c.Kafka.BatchSize = 100
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = 1 * time.Second
	}
	if c.Kafka.RetryAttempts == 0 {
		c.Kafka.RetryAttempts = 3
	}
	if c.Kafka.RetryDelay == 0 {
		c.Kafka.RetryDelay = 1 * time.Second
	}
	if c.Kafka.EventsTopic == "" {
		c.Kafka.EventsTopic = "gamification-events"
	}

	if c.Reconcile.Interval == 0 {
		c.Reconcile.Interval = 30 * time.Minute
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = "header"
	}

	// Gamification defaults
	g := &c.Gamification
	if g.Timezone == "" {
		g.Timezone = "UTC"
	}
	if g.Milestones == nil {
		g.Milestones = []int{7, 30, 100}
	}
	if g.MilestoneBonus == nil {
		g.MilestoneBonus = map[int]int64{7: 100, 30: 500, 100: 2000}
	}
	if g.RankCurrency == "" {
		g.RankCurrency = string(domain.CurrencyLaxCredit)
	}
	if g.BadgeAwardCurrency == "" {
		g.BadgeAwardCurrency = string(domain.CurrencyLaxCredit)
	}
	if g.DrillLookupTimeout == 0 {
		g.DrillLookupTimeout = 3 * time.Second
	}
	if g.DrillCacheSize == 0 {
		g.DrillCacheSize = 1024
	}
	if g.DrillCacheTTL == 0 {
		g.DrillCacheTTL = 10 * time.Minute
	}
	if g.LeaderboardLimit == 0 {
		g.LeaderboardLimit = 10
	}
	if g.LeaderboardMax == 0 {
		g.LeaderboardMax = 100
	}

	if c.WebSocket.ReadBufferSize == 0 {
		c.WebSocket.ReadBufferSize = 1024
	}
	if c.WebSocket.WriteBufferSize == 0 {
		c.WebSocket.WriteBufferSize = 1024
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Reconcile.Enabled = true
	cfg.Reconcile.OnStartup = true
	cfg.WebSocket.Enabled = true
	return cfg
}
